package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/robrotell/vril/app/database"
	"github.com/robrotell/vril/app/images"
	"github.com/robrotell/vril/app/taxonomy"
	"github.com/robrotell/vril/app/tmdb"
)

// MovieResult is the outcome of a movie ingestion. Warnings carry
// secondary-path failures (credits, taxonomy, images) that did not stop
// the movie from being persisted.
type MovieResult struct {
	Movie    *database.Movie
	Terms    []database.Term
	Warnings []string
	Created  bool
}

// Pipeline ingests movies end to end: metadata fetch, credits, taxonomy
// resolution, image fetch and persistence. A per-ID lock keeps
// concurrent ingestions of the same movie from racing each other.
type Pipeline struct {
	tmdb      *tmdb.Client
	resolver  *taxonomy.Resolver
	fetcher   *images.Fetcher
	store     *images.Store
	movieRepo database.MovieRepository
	assetRepo database.AssetRepository
	metaRepo  database.MetaRepository
	locks     *keyedMutex
}

func NewPipeline(client *tmdb.Client, resolver *taxonomy.Resolver, fetcher *images.Fetcher, store *images.Store, movieRepo database.MovieRepository, assetRepo database.AssetRepository, metaRepo database.MetaRepository) *Pipeline {
	return &Pipeline{
		tmdb:      client,
		resolver:  resolver,
		fetcher:   fetcher,
		store:     store,
		movieRepo: movieRepo,
		assetRepo: assetRepo,
		metaRepo:  metaRepo,
		locks:     newKeyedMutex(),
	}
}

// IngestMovie fetches a movie from TMDb and persists it. An existing
// movie with the same TMDb ID is updated in place, keeping its watch
// status and skipping images whose upstream path is unchanged.
func (p *Pipeline) IngestMovie(ctx context.Context, tmdbID int) (*MovieResult, error) {
	key := "movie:" + strconv.Itoa(tmdbID)
	p.locks.Lock(key)
	defer p.locks.Unlock(key)

	existing, err := p.movieRepo.GetMovieByTMDbID(tmdbID)
	if err != nil {
		return nil, &IngestionError{Stage: StageDedupe, Err: err}
	}

	details, err := p.tmdb.FetchDetails(ctx, tmdbID)
	if err != nil {
		return nil, &IngestionError{Stage: StageDetails, Err: err}
	}

	result := &MovieResult{Created: existing == nil}

	movie := p.buildMovie(existing, details)

	credits, err := p.tmdb.FetchCredits(ctx, tmdbID)
	if err != nil {
		slog.Warn("Failed to fetch credits", "tmdb_id", tmdbID, "error", err)
		result.Warnings = append(result.Warnings, "credits unavailable")
	} else {
		movie.Director = strings.Join(credits.Directors(), ", ")
		movie.Writer = strings.Join(credits.Writers(), ", ")
	}

	terms := p.resolveTerms(details)

	if err := p.movieRepo.UpsertMovie(movie); err != nil {
		return nil, &IngestionError{Stage: StagePersist, Err: err}
	}

	termIDs := make([]string, 0, len(terms))
	for _, term := range terms {
		termIDs = append(termIDs, term.ID)
	}
	if err := p.movieRepo.SetMovieTerms(movie.ID, termIDs); err != nil {
		return nil, &IngestionError{Stage: StagePersist, Err: err}
	}

	result.Warnings = append(result.Warnings, p.syncImages(ctx, movie, details)...)

	if _, err := p.metaRepo.BumpWatermark(); err != nil {
		slog.Error("Failed to bump watermark", "error", err)
	}

	result.Movie = movie
	result.Terms = terms

	slog.Info("Movie ingested", "tmdb_id", tmdbID, "title", movie.Title, "created", result.Created, "warnings", len(result.Warnings))

	return result, nil
}

func (p *Pipeline) buildMovie(existing *database.Movie, details *tmdb.Details) *database.Movie {
	movie := &database.Movie{
		TMDbID:          details.ID.Int(),
		Title:           details.Title,
		ComparisonTitle: ComparisonTitle(details.Title),
		Synopsis:        details.Overview,
		Tagline:         details.Tagline,
		ReleaseDate:     details.ReleaseDate,
		Runtime:         details.Runtime.Int(),
		Budget:          int64(details.Budget.Int()),
		BoxOffice:       int64(details.Revenue.Int()),
		Rating:          details.VoteAverage,
		Website:         details.Homepage,
		ToWatch:         true,
	}

	if existing != nil {
		movie.ID = existing.ID
		movie.ToWatch = existing.ToWatch
	}

	return movie
}

func (p *Pipeline) resolveTerms(details *tmdb.Details) []database.Term {
	terms := p.resolver.ResolveAll(database.TaxonomyGenre, namedRefs(details.Genres))
	terms = append(terms, p.resolver.ResolveAll(database.TaxonomyProductionCompany, namedRefs(details.ProductionCompanies))...)
	return terms
}

func namedRefs(refs []tmdb.NamedRef) []taxonomy.Ref {
	out := make([]taxonomy.Ref, 0, len(refs))
	for _, ref := range refs {
		out = append(out, taxonomy.Ref{TMDbID: ref.ID.Int(), Name: ref.Name})
	}
	return out
}

// syncImages brings the movie's poster and backdrop in line with the
// upstream paths. Failures never abort the pipeline, they come back as
// warnings.
func (p *Pipeline) syncImages(ctx context.Context, movie *database.Movie, details *tmdb.Details) []string {
	var warnings []string

	kinds := []struct {
		kind       string
		sourcePath string
		width      int
	}{
		{database.AssetKindPoster, details.PosterPath, tmdb.PosterWidth},
		{database.AssetKindBackdrop, details.BackdropPath, tmdb.BackdropWidth},
	}

	for _, k := range kinds {
		if k.sourcePath == "" {
			continue
		}

		existing, err := p.assetRepo.GetAsset(movie.ID, k.kind)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s lookup failed", k.kind))
			continue
		}

		if existing != nil && existing.SourcePath == k.sourcePath {
			continue
		}

		url := p.tmdb.ImageURL(k.width, k.sourcePath)

		filePath, err := p.fetcher.Fetch(ctx, url, movie.Title, k.kind)
		if err != nil {
			slog.Warn("Failed to fetch image", "movie_id", movie.ID, "kind", k.kind, "error", err)
			warnings = append(warnings, fmt.Sprintf("%s unavailable", k.kind))
			continue
		}

		asset := &database.Asset{
			MovieID:    movie.ID,
			Kind:       k.kind,
			SourcePath: k.sourcePath,
			FilePath:   filePath,
		}
		if err := p.assetRepo.SaveAsset(asset); err != nil {
			warnings = append(warnings, fmt.Sprintf("%s not saved", k.kind))
			continue
		}

		if existing != nil && existing.FilePath != filePath {
			if err := p.store.Remove(existing.FilePath); err != nil {
				slog.Warn("Failed to remove replaced image", "file", existing.FilePath, "error", err)
			}
		}
	}

	return warnings
}

// SetWatchStatus updates a movie's to-watch flag and bumps the
// watermark so cached listings refresh.
func (p *Pipeline) SetWatchStatus(id string, toWatch bool) error {
	if err := p.movieRepo.SetWatchStatus(id, toWatch); err != nil {
		return err
	}

	if _, err := p.metaRepo.BumpWatermark(); err != nil {
		slog.Error("Failed to bump watermark", "error", err)
	}

	return nil
}

// RemoveMovie deletes a movie together with its stored image blobs and
// bumps the watermark.
func (p *Pipeline) RemoveMovie(id string) error {
	assets, err := p.assetRepo.DeleteAssetsForMovie(id)
	if err != nil {
		return fmt.Errorf("failed to delete movie assets: %w", err)
	}

	if err := p.movieRepo.DeleteMovie(id); err != nil {
		return err
	}

	for _, asset := range assets {
		if err := p.store.Remove(asset.FilePath); err != nil {
			slog.Warn("Failed to remove image blob", "file", asset.FilePath, "error", err)
		}
	}

	if _, err := p.metaRepo.BumpWatermark(); err != nil {
		slog.Error("Failed to bump watermark", "error", err)
	}

	return nil
}
