package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robrotell/vril/app/database"
	"github.com/robrotell/vril/app/images"
	"github.com/robrotell/vril/app/taxonomy"
	"github.com/robrotell/vril/app/tmdb"
)

type pipelineFixture struct {
	pipeline  *Pipeline
	movieRepo database.MovieRepository
	assetRepo database.AssetRepository
	metaRepo  database.MetaRepository

	creditsFail   atomic.Bool
	imageRequests atomic.Int64
	posterPath    atomic.Value
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()

	db, err := database.NewConnection(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, _, err := database.RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	f := &pipelineFixture{
		movieRepo: database.NewMovieRepository(db),
		assetRepo: database.NewAssetRepository(db),
		metaRepo:  database.NewMetaRepository(db),
	}
	f.posterPath.Store("/poster-v1.jpg")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/credits"):
			if f.creditsFail.Load() {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"crew": []map[string]string{
					{"department": "Directing", "job": "Director", "name": "Lana Wachowski"},
					{"department": "Writing", "job": "Screenplay", "name": "Lilly Wachowski"},
				},
			})
		case strings.HasPrefix(r.URL.Path, "/movie/603"):
			json.NewEncoder(w).Encode(map[string]any{
				"id":            603,
				"title":         "The Matrix",
				"overview":      "A hacker learns the truth.",
				"tagline":       "Free your mind",
				"release_date":  "1999-03-30",
				"runtime":       136,
				"budget":        63000000,
				"revenue":       463517383,
				"vote_average":  8.2,
				"poster_path":   f.posterPath.Load().(string),
				"backdrop_path": "",
				"genres": []map[string]any{
					{"id": 28, "name": "Action"},
					{"id": 878, "name": "Science Fiction"},
				},
				"production_companies": []map[string]any{
					{"id": 79, "name": "Village Roadshow Pictures"},
				},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)

	imageServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.imageRequests.Add(1)
		w.Write([]byte("image-bytes"))
	}))
	t.Cleanup(imageServer.Close)

	client := tmdb.NewClient("key", "Vril/test", 5*time.Second)
	client.SetAPIURL(server.URL)
	client.SetImageURL(imageServer.URL)

	store, err := images.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	termRepo := database.NewTermRepository(db)

	f.pipeline = NewPipeline(
		client,
		taxonomy.NewResolver(termRepo),
		images.NewFetcher(images.NoopOptimizer{}, store, "Vril/test", 5*time.Second),
		store,
		f.movieRepo,
		f.assetRepo,
		f.metaRepo,
	)

	return f
}

func TestIngestMovie_FullRun(t *testing.T) {
	f := newPipelineFixture(t)

	result, err := f.pipeline.IngestMovie(context.Background(), 603)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if !result.Created {
		t.Error("Expected movie to be created")
	}
	if result.Movie.Title != "The Matrix" {
		t.Errorf("Unexpected title: %q", result.Movie.Title)
	}
	if result.Movie.ComparisonTitle != "matrix" {
		t.Errorf("Unexpected comparison title: %q", result.Movie.ComparisonTitle)
	}
	if result.Movie.Director != "Lana Wachowski" {
		t.Errorf("Unexpected director: %q", result.Movie.Director)
	}
	if result.Movie.Writer != "Lilly Wachowski" {
		t.Errorf("Unexpected writer: %q", result.Movie.Writer)
	}
	if len(result.Terms) != 3 {
		t.Errorf("Expected 3 terms (2 genres, 1 company), got %d", len(result.Terms))
	}
	if len(result.Warnings) != 0 {
		t.Errorf("Expected no warnings, got %v", result.Warnings)
	}

	asset, err := f.assetRepo.GetAsset(result.Movie.ID, database.AssetKindPoster)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if asset == nil || asset.SourcePath != "/poster-v1.jpg" {
		t.Errorf("Expected stored poster asset, got %+v", asset)
	}

	watermark, _ := f.metaRepo.Watermark()
	if watermark == 0 {
		t.Error("Expected watermark to be bumped")
	}
}

func TestIngestMovie_SecondRunUpdatesInPlace(t *testing.T) {
	f := newPipelineFixture(t)

	first, err := f.pipeline.IngestMovie(context.Background(), 603)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	// Mark watched so we can verify the refresh keeps the flag.
	if err := f.movieRepo.SetWatchStatus(first.Movie.ID, false); err != nil {
		t.Fatalf("Failed to set watch status: %v", err)
	}

	second, err := f.pipeline.IngestMovie(context.Background(), 603)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if second.Created {
		t.Error("Expected update, not creation")
	}
	if second.Movie.ID != first.Movie.ID {
		t.Errorf("Expected same movie ID, got %s and %s", first.Movie.ID, second.Movie.ID)
	}
	if second.Movie.ToWatch {
		t.Error("Expected watch status to survive the refresh")
	}

	count, err := f.movieRepo.CountMovies()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if count != 1 {
		t.Errorf("Expected one movie, got %d", count)
	}
}

func TestIngestMovie_UnchangedImageIsNotRefetched(t *testing.T) {
	f := newPipelineFixture(t)

	if _, err := f.pipeline.IngestMovie(context.Background(), 603); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if f.imageRequests.Load() != 1 {
		t.Fatalf("Expected one image download, got %d", f.imageRequests.Load())
	}

	if _, err := f.pipeline.IngestMovie(context.Background(), 603); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if f.imageRequests.Load() != 1 {
		t.Errorf("Expected unchanged poster to be skipped, got %d downloads", f.imageRequests.Load())
	}

	// Upstream replaced the poster, so the next run must download again.
	f.posterPath.Store("/poster-v2.jpg")

	if _, err := f.pipeline.IngestMovie(context.Background(), 603); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if f.imageRequests.Load() != 2 {
		t.Errorf("Expected changed poster to be refetched, got %d downloads", f.imageRequests.Load())
	}
}

func TestIngestMovie_CreditsFailureIsAWarning(t *testing.T) {
	f := newPipelineFixture(t)
	f.creditsFail.Store(true)

	result, err := f.pipeline.IngestMovie(context.Background(), 603)
	if err != nil {
		t.Fatalf("Expected partial success, got %v", err)
	}

	if result.Movie.Director != "" || result.Movie.Writer != "" {
		t.Errorf("Expected empty credits, got %q / %q", result.Movie.Director, result.Movie.Writer)
	}
	if len(result.Warnings) == 0 {
		t.Error("Expected a warning for the failed credits fetch")
	}
}

func TestIngestMovie_DetailsFailureIsFatal(t *testing.T) {
	f := newPipelineFixture(t)

	_, err := f.pipeline.IngestMovie(context.Background(), 999999)
	if err == nil {
		t.Fatal("Expected error for unknown movie")
	}

	ingestionErr, ok := err.(*IngestionError)
	if !ok {
		t.Fatalf("Expected IngestionError, got %T", err)
	}
	if ingestionErr.Stage != StageDetails {
		t.Errorf("Expected details stage, got %q", ingestionErr.Stage)
	}
}

func TestRemoveMovie_DeletesAssets(t *testing.T) {
	f := newPipelineFixture(t)

	result, err := f.pipeline.IngestMovie(context.Background(), 603)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if err := f.pipeline.RemoveMovie(result.Movie.ID); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	movie, err := f.movieRepo.GetMovie(result.Movie.ID)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if movie != nil {
		t.Error("Expected movie to be deleted")
	}

	assets, err := f.assetRepo.GetAssetsForMovie(result.Movie.ID)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(assets) != 0 {
		t.Errorf("Expected no assets, got %d", len(assets))
	}
}

func TestComparisonTitle(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"The Matrix", "matrix"},
		{"A Quiet Place", "quietplace"},
		{"Amélie", "amelie"},
		{"Mad Max: Fury Road", "madmaxfuryroad"},
		{"Se7en", "se7en"},
		{"The Good, the Bad and the Ugly", "goodthebadandtheugly"},
		{"The A Team", "ateam"},
		{"Alien &amp; Aliens", "alienaliens"},
	}

	for _, tt := range tests {
		if got := ComparisonTitle(tt.in); got != tt.expected {
			t.Errorf("ComparisonTitle(%q) = %q, expected %q", tt.in, got, tt.expected)
		}
	}
}
