package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/robrotell/vril/app/cache"
	"github.com/robrotell/vril/app/database"
	"github.com/robrotell/vril/app/ingest"
)

const defaultPageSize = 20

type movieListResult struct {
	Movies []movieBlock `json:"movies"`
	Meta   listMeta     `json:"meta"`
}

// GetMovies handles GET /movies with paging, genre, keyword and
// to-watch filters. Results are served from the query cache until a
// write bumps the watermark.
func (h *Handler) GetMovies(c *gin.Context) {
	env := h.envelope()

	params := map[string]string{
		"page":     c.DefaultQuery("page", "1"),
		"count":    c.DefaultQuery("count", strconv.Itoa(defaultPageSize)),
		"genre":    c.Query("genre"),
		"keyword":  c.Query("keyword"),
		"to_watch": c.Query("to_watch"),
	}

	key := cache.Key("movies", params)
	if cached, ok := h.cache.Get(key); ok {
		result := cached.(movieListResult)
		c.JSON(env.AddData("movies", result.Movies).AddData("meta", result.Meta).Package())
		return
	}

	query := database.MovieQuery{
		Page:    atoiDefault(params["page"], 1),
		Count:   atoiDefault(params["count"], defaultPageSize),
		Keyword: params["keyword"],
		ToWatch: params["to_watch"] == "true",
	}

	if params["genre"] != "" {
		termID, err := h.resolveGenreParam(params["genre"])
		if err != nil {
			c.JSON(env.SetError(fmt.Sprintf("Invalid genre: %q", params["genre"]), http.StatusBadRequest).Package())
			return
		}
		query.TermID = termID
	}

	movies, total, err := h.movieRepo.ListMovies(query)
	if err != nil {
		slog.Error("Failed to list movies", "error", err)
		c.JSON(env.SetError("Failed to list movies", http.StatusInternalServerError).Package())
		return
	}

	blocks := make([]movieBlock, 0, len(movies))
	for _, movie := range movies {
		blocks = append(blocks, h.movieToBlock(&movie))
	}

	result := movieListResult{
		Movies: blocks,
		Meta:   listMeta{PostCount: len(blocks), TotalPosts: total},
	}
	h.cache.Put(key, result)

	c.JSON(env.AddData("movies", result.Movies).AddData("meta", result.Meta).Package())
}

// GetMovie handles GET /movies/:id.
func (h *Handler) GetMovie(c *gin.Context) {
	env := h.envelope()
	id := c.Param("id")

	movie, err := h.movieRepo.GetMovie(id)
	if err != nil {
		slog.Error("Failed to get movie", "id", id, "error", err)
		c.JSON(env.SetError("Failed to get movie", http.StatusInternalServerError).Package())
		return
	}
	if movie == nil {
		c.JSON(env.SetError(fmt.Sprintf("Invalid movie ID: %q", id), http.StatusBadRequest).Package())
		return
	}

	c.JSON(env.AddData("movie", h.movieToDetail(movie)).Package())
}

// AddMovie handles POST /movies/:id, where :id is a TMDb movie ID. The
// full ingestion pipeline runs synchronously and the persisted movie
// comes back in the response.
func (h *Handler) AddMovie(c *gin.Context) {
	env := h.envelope()

	tmdbID, err := strconv.Atoi(c.Param("id"))
	if err != nil || tmdbID <= 0 {
		c.JSON(env.SetError(fmt.Sprintf("Invalid TMDb ID: %q", c.Param("id")), http.StatusBadRequest).Package())
		return
	}

	result, err := h.pipeline.IngestMovie(c.Request.Context(), tmdbID)
	if err == nil {
		// Optional override: adding a movie already seen keeps it out of
		// the to-watch queue.
		if toWatch, parseErr := strconv.ParseBool(c.Query("to_watch")); parseErr == nil && toWatch != result.Movie.ToWatch {
			if err := h.pipeline.SetWatchStatus(result.Movie.ID, toWatch); err == nil {
				result.Movie.ToWatch = toWatch
			}
		}
	}
	if err != nil {
		var ingestionErr *ingest.IngestionError
		if errors.As(err, &ingestionErr) {
			slog.Error("Movie ingestion failed", "tmdb_id", tmdbID, "stage", ingestionErr.Stage, "error", err)
			c.JSON(env.SetError(fmt.Sprintf("Failed to add movie: %s stage failed", ingestionErr.Stage), http.StatusInternalServerError).Package())
			return
		}
		slog.Error("Movie ingestion failed", "tmdb_id", tmdbID, "error", err)
		c.JSON(env.SetError("Failed to add movie", http.StatusInternalServerError).Package())
		return
	}

	env.AddData("movie", h.detailFromResult(result))
	env.AddData("created", result.Created)
	if len(result.Warnings) > 0 {
		env.AddData("warnings", result.Warnings)
	}

	c.JSON(env.Package())
}

// UpdateMovie handles PATCH /movies/:id?watched=true|false. Watching a
// movie clears its to-watch flag.
func (h *Handler) UpdateMovie(c *gin.Context) {
	env := h.envelope()
	id := c.Param("id")

	watched, err := strconv.ParseBool(c.Query("watched"))
	if err != nil {
		c.JSON(env.SetError(`Missing or invalid "watched" parameter`, http.StatusBadRequest).Package())
		return
	}

	movie, err := h.movieRepo.GetMovie(id)
	if err != nil {
		slog.Error("Failed to get movie", "id", id, "error", err)
		c.JSON(env.SetError("Failed to update movie", http.StatusInternalServerError).Package())
		return
	}
	if movie == nil {
		c.JSON(env.SetError(fmt.Sprintf("Invalid movie ID: %q", id), http.StatusBadRequest).Package())
		return
	}

	if err := h.pipeline.SetWatchStatus(id, !watched); err != nil {
		slog.Error("Failed to set watch status", "id", id, "error", err)
		c.JSON(env.SetError("Failed to update movie", http.StatusInternalServerError).Package())
		return
	}

	movie.ToWatch = !watched
	c.JSON(env.AddData("movie", h.movieToDetail(movie)).Package())
}

// DeleteMovie handles DELETE /movies/:id, removing the movie and its
// stored images.
func (h *Handler) DeleteMovie(c *gin.Context) {
	env := h.envelope()
	id := c.Param("id")

	movie, err := h.movieRepo.GetMovie(id)
	if err != nil {
		slog.Error("Failed to get movie", "id", id, "error", err)
		c.JSON(env.SetError("Failed to delete movie", http.StatusInternalServerError).Package())
		return
	}
	if movie == nil {
		c.JSON(env.SetError(fmt.Sprintf("Invalid movie ID: %q", id), http.StatusBadRequest).Package())
		return
	}

	if err := h.pipeline.RemoveMovie(id); err != nil {
		slog.Error("Failed to delete movie", "id", id, "error", err)
		c.JSON(env.SetError("Failed to delete movie", http.StatusInternalServerError).Package())
		return
	}

	c.JSON(env.AddData("deleted", true).Package())
}

type tmdbQueryResult struct {
	Results []searchBlock `json:"results"`
	Meta    listMeta      `json:"meta"`
}

// QueryTMDb handles POST /query-tmdb?title&page. Search results are
// annotated with the library status of each match so a client can tell
// already-added movies apart.
func (h *Handler) QueryTMDb(c *gin.Context) {
	env := h.envelope()

	title := c.Query("title")
	if title == "" {
		c.JSON(env.SetError(`Missing "title" parameter`, http.StatusBadRequest).Package())
		return
	}

	params := map[string]string{
		"title": title,
		"page":  c.DefaultQuery("page", "1"),
	}

	key := cache.Key("query-tmdb", params)
	if cached, ok := h.cache.Get(key); ok {
		result := cached.(tmdbQueryResult)
		c.JSON(env.AddData("results", result.Results).AddData("meta", result.Meta).Package())
		return
	}

	page, err := h.tmdb.SearchByTitle(c.Request.Context(), title, atoiDefault(params["page"], 1))
	if err != nil {
		slog.Error("TMDb search failed", "title", title, "error", err)
		c.JSON(env.SetError("Movie search failed", http.StatusInternalServerError).Package())
		return
	}

	blocks := make([]searchBlock, 0, len(page.Results))
	for _, r := range page.Results {
		block := searchBlock{
			TMDbID:      r.ID.Int(),
			Title:       r.Title,
			Overview:    r.Overview,
			ReleaseDate: r.ReleaseDate,
			PosterPath:  r.PosterPath,
		}

		existing, err := h.movieRepo.GetMovieByTMDbID(r.ID.Int())
		if err == nil && existing != nil {
			block.Added = true
			block.PostID = existing.ID
			block.ToWatch = existing.ToWatch
		}

		blocks = append(blocks, block)
	}

	result := tmdbQueryResult{
		Results: blocks,
		Meta:    listMeta{PostCount: len(blocks), TotalPosts: page.TotalResults.Int()},
	}
	h.cache.Put(key, result)

	c.JSON(env.AddData("results", result.Results).AddData("meta", result.Meta).Package())
}

// GetGenres handles GET /genres.
func (h *Handler) GetGenres(c *gin.Context) {
	env := h.envelope()

	key := cache.Key("genres", nil)
	if cached, ok := h.cache.Get(key); ok {
		c.JSON(env.AddData("genres", cached.([]termBlock)).Package())
		return
	}

	terms, err := h.termRepo.ListTerms(database.TaxonomyGenre)
	if err != nil {
		slog.Error("Failed to list genres", "error", err)
		c.JSON(env.SetError("Failed to list genres", http.StatusInternalServerError).Package())
		return
	}

	blocks := termBlocks(terms)
	h.cache.Put(key, blocks)

	c.JSON(env.AddData("genres", blocks).Package())
}

// resolveGenreParam maps the genre query parameter to an internal term
// ID. Numeric values are tried as TMDb genre IDs first, then as
// internal IDs; anything else is taken as an internal ID directly.
func (h *Handler) resolveGenreParam(genre string) (string, error) {
	if tmdbID, err := strconv.Atoi(genre); err == nil {
		term, err := h.termRepo.GetTermByTMDbID(database.TaxonomyGenre, tmdbID)
		if err != nil {
			return "", err
		}
		if term != nil {
			return term.ID, nil
		}
	}

	return genre, nil
}

func (h *Handler) movieToBlock(movie *database.Movie) movieBlock {
	block := movieBlock{
		ID:          movie.ID,
		TMDbID:      movie.TMDbID,
		Title:       movie.Title,
		Synopsis:    movie.Synopsis,
		ReleaseDate: movie.ReleaseDate,
		Rating:      movie.Rating,
		ToWatch:     movie.ToWatch,
	}

	if terms, err := h.movieRepo.GetMovieTerms(movie.ID, database.TaxonomyGenre); err == nil {
		block.Genres = termNames(terms, database.TaxonomyGenre)
	} else {
		block.Genres = []string{}
	}

	if asset, err := h.assetRepo.GetAsset(movie.ID, database.AssetKindPoster); err == nil && asset != nil {
		block.Poster = mediaPath(asset.FilePath)
	}

	return block
}

func (h *Handler) movieToDetail(movie *database.Movie) movieDetail {
	detail := movieDetail{
		movieBlock: h.movieToBlock(movie),
		Tagline:    movie.Tagline,
		Runtime:    movie.Runtime,
		Budget:     movie.Budget,
		BoxOffice:  movie.BoxOffice,
		Website:    movie.Website,
		Director:   movie.Director,
		Writer:     movie.Writer,
	}

	if terms, err := h.movieRepo.GetMovieTerms(movie.ID, database.TaxonomyProductionCompany); err == nil {
		detail.ProductionCompanies = termNames(terms, database.TaxonomyProductionCompany)
	} else {
		detail.ProductionCompanies = []string{}
	}

	if asset, err := h.assetRepo.GetAsset(movie.ID, database.AssetKindBackdrop); err == nil && asset != nil {
		detail.Backdrop = mediaPath(asset.FilePath)
	}

	return detail
}

// detailFromResult builds the response block from a fresh ingestion
// without re-reading terms from the store.
func (h *Handler) detailFromResult(result *ingest.MovieResult) movieDetail {
	detail := h.movieToDetail(result.Movie)
	detail.Genres = termNames(result.Terms, database.TaxonomyGenre)
	detail.ProductionCompanies = termNames(result.Terms, database.TaxonomyProductionCompany)
	return detail
}

func mediaPath(filePath string) string {
	return "/media/" + filePath
}

func atoiDefault(s string, fallback int) int {
	value, err := strconv.Atoi(s)
	if err != nil || value < 1 {
		return fallback
	}
	return value
}
