package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/robrotell/vril/app/auth"
	"github.com/robrotell/vril/app/cache"
	"github.com/robrotell/vril/app/database"
	"github.com/robrotell/vril/app/images"
	"github.com/robrotell/vril/app/ingest"
	"github.com/robrotell/vril/app/scrape"
	"github.com/robrotell/vril/app/taxonomy"
	"github.com/robrotell/vril/app/tmdb"
)

// countingMovieRepo records how often the listing query hits the store,
// so cache tests can prove the second request never reaches it.
type countingMovieRepo struct {
	database.MovieRepository
	listCalls atomic.Int64
}

func (r *countingMovieRepo) ListMovies(q database.MovieQuery) ([]database.Movie, int, error) {
	r.listCalls.Add(1)
	return r.MovieRepository.ListMovies(q)
}

type apiFixture struct {
	router    *gin.Engine
	cache     *cache.QueryCache
	movieRepo *countingMovieRepo

	// token is attached as a bearer token on every request unless the
	// test overrides the Authorization header explicitly.
	token string
}

func newAPIFixture(t *testing.T, withAuth bool) *apiFixture {
	t.Helper()

	db, err := database.NewConnection(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, _, err := database.RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	tmdbServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/credits"):
			json.NewEncoder(w).Encode(map[string]any{
				"crew": []map[string]string{
					{"department": "Directing", "job": "Director", "name": "Lana Wachowski"},
					{"department": "Writing", "job": "Screenplay", "name": "Lilly Wachowski"},
				},
			})
		case r.URL.Path == "/movie/603":
			json.NewEncoder(w).Encode(map[string]any{
				"id":           603,
				"title":        "The Matrix",
				"overview":     "A hacker learns the truth.",
				"release_date": "1999-03-30",
				"runtime":      136,
				"vote_average": 8.2,
				"poster_path":  "/matrix.jpg",
				"genres": []map[string]any{
					{"id": 28, "name": "Action"},
					{"id": 878, "name": "Science Fiction"},
				},
				"production_companies": []map[string]any{
					{"id": 79, "name": "Village Roadshow Pictures"},
				},
			})
		case r.URL.Path == "/search/movie":
			json.NewEncoder(w).Encode(map[string]any{
				"page": 1,
				"results": []map[string]any{
					{"id": 603, "title": "The Matrix", "release_date": "1999-03-30"},
					{"id": 604, "title": "The Matrix Reloaded", "release_date": "2003-05-15"},
				},
				"total_pages":   1,
				"total_results": 2,
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(tmdbServer.Close)

	imageServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("image-bytes"))
	}))
	t.Cleanup(imageServer.Close)

	client := tmdb.NewClient("key", "Vril/test", 5*time.Second)
	client.SetAPIURL(tmdbServer.URL)
	client.SetImageURL(imageServer.URL)

	store, err := images.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	movieRepo := &countingMovieRepo{MovieRepository: database.NewMovieRepository(db)}
	articleRepo := database.NewArticleRepository(db)
	termRepo := database.NewTermRepository(db)
	assetRepo := database.NewAssetRepository(db)
	metaRepo := database.NewMetaRepository(db)

	resolver := taxonomy.NewResolver(termRepo)
	fetcher := images.NewFetcher(images.NoopOptimizer{}, store, "Vril/test", 5*time.Second)
	pipeline := ingest.NewPipeline(client, resolver, fetcher, store, movieRepo, assetRepo, metaRepo)
	articleIngestor := ingest.NewArticleIngestor(scrape.NewScraper("Vril/test", 2*time.Second), resolver, articleRepo, metaRepo)
	queryCache := cache.NewQueryCache(metaRepo)

	var tokens *auth.TokenService
	var token string
	if withAuth {
		hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
		if err != nil {
			t.Fatalf("Failed to hash password: %v", err)
		}
		tokens = auth.NewTokenService("test-secret", "rob", string(hash), time.Hour)

		token, _, err = tokens.Sign("rob")
		if err != nil {
			t.Fatalf("Failed to sign token: %v", err)
		}
	}

	handler := NewHandler(pipeline, articleIngestor, client, queryCache, movieRepo, articleRepo, termRepo, assetRepo, tokens, false, "test")

	return &apiFixture{
		router:    NewServer(handler, store.Dir()),
		cache:     queryCache,
		movieRepo: movieRepo,
		token:     token,
	}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any, headers map[string]string) (int, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if _, overridden := headers["Authorization"]; !overridden && f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var decoded map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("Failed to decode response %q: %v", w.Body.String(), err)
	}

	return w.Code, decoded
}

func data(t *testing.T, body map[string]any) map[string]any {
	t.Helper()

	d, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("Expected data object, got %v", body)
	}
	return d
}

func TestAddMovie_EndToEnd(t *testing.T) {
	f := newAPIFixture(t, true)

	status, body := f.do(t, http.MethodPost, "/movies/603", nil, nil)

	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", status, body)
	}
	if body["success"] != true {
		t.Fatalf("Expected success, got %v", body)
	}

	movie := data(t, body)["movie"].(map[string]any)
	if movie["title"] != "The Matrix" {
		t.Errorf("Unexpected title: %v", movie["title"])
	}

	genres, ok := movie["genres"].([]any)
	if !ok || len(genres) == 0 {
		t.Errorf("Expected non-empty genres, got %v", movie["genres"])
	}
	if movie["director"] != "Lana Wachowski" {
		t.Errorf("Unexpected director: %v", movie["director"])
	}
	if !strings.HasPrefix(movie["poster"].(string), "/media/") {
		t.Errorf("Expected media poster path, got %v", movie["poster"])
	}
}

func TestAddMovie_ToWatchOverride(t *testing.T) {
	f := newAPIFixture(t, true)

	status, body := f.do(t, http.MethodPost, "/movies/603?to_watch=false", nil, nil)
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", status, body)
	}

	movie := data(t, body)["movie"].(map[string]any)
	if movie["to_watch"] != false {
		t.Error("Expected to_watch override to stick")
	}
}

func TestAddMovie_InvalidTMDbID(t *testing.T) {
	f := newAPIFixture(t, true)

	status, body := f.do(t, http.MethodPost, "/movies/abc", nil, nil)

	if status != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", status)
	}
	if !strings.Contains(body["error"].(string), "Invalid TMDb ID") {
		t.Errorf("Unexpected error: %v", body["error"])
	}
}

func TestAddMovie_UpstreamFailure(t *testing.T) {
	f := newAPIFixture(t, true)

	status, body := f.do(t, http.MethodPost, "/movies/999999", nil, nil)

	if status != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", status)
	}
	if body["success"] != false {
		t.Error("Expected failure envelope")
	}
}

func TestDeleteMovie_NonExistentIDIs400(t *testing.T) {
	f := newAPIFixture(t, true)

	status, body := f.do(t, http.MethodDelete, "/movies/no-such-id", nil, nil)

	if status != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", status)
	}
	if !strings.Contains(body["error"].(string), "Invalid movie ID") {
		t.Errorf("Expected invalid ID error, got %v", body["error"])
	}
}

func TestMovieLifecycle(t *testing.T) {
	f := newAPIFixture(t, true)

	_, body := f.do(t, http.MethodPost, "/movies/603", nil, nil)
	movieID := data(t, body)["movie"].(map[string]any)["id"].(string)

	// Listing includes the new movie.
	status, body := f.do(t, http.MethodGet, "/movies", nil, nil)
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	movies := data(t, body)["movies"].([]any)
	if len(movies) != 1 {
		t.Fatalf("Expected one movie, got %d", len(movies))
	}
	meta := data(t, body)["meta"].(map[string]any)
	if meta["total_posts"].(float64) != 1 {
		t.Errorf("Unexpected total: %v", meta["total_posts"])
	}

	// Mark watched, to-watch flag clears.
	status, body = f.do(t, http.MethodPatch, "/movies/"+movieID+"?watched=true", nil, nil)
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", status, body)
	}
	if data(t, body)["movie"].(map[string]any)["to_watch"] != false {
		t.Error("Expected to_watch to clear after watching")
	}

	// Delete removes it.
	status, body = f.do(t, http.MethodDelete, "/movies/"+movieID, nil, nil)
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if data(t, body)["deleted"] != true {
		t.Error("Expected deleted true")
	}

	_, body = f.do(t, http.MethodGet, "/movies", nil, nil)
	if len(data(t, body)["movies"].([]any)) != 0 {
		t.Error("Expected empty library after delete")
	}
}

func TestGetMovies_SecondRequestIsCached(t *testing.T) {
	f := newAPIFixture(t, true)

	f.do(t, http.MethodPost, "/movies/603", nil, nil)
	f.movieRepo.listCalls.Store(0)

	// The second identical request must come out of the cache without
	// touching the store.
	_, first := f.do(t, http.MethodGet, "/movies?page=1", nil, nil)
	if first["success"] != true {
		t.Fatalf("Expected success, got %v", first)
	}
	_, second := f.do(t, http.MethodGet, "/movies?page=1", nil, nil)

	if calls := f.movieRepo.listCalls.Load(); calls != 1 {
		t.Errorf("Expected one store query across two requests, got %d", calls)
	}
	if f.cache.Len() == 0 {
		t.Fatal("Expected listing to be cached")
	}

	a, _ := json.Marshal(first["data"])
	b, _ := json.Marshal(second["data"])
	if string(a) != string(b) {
		t.Error("Expected identical cached responses")
	}
}

func TestQueryTMDb_AnnotatesLibraryStatus(t *testing.T) {
	f := newAPIFixture(t, true)

	f.do(t, http.MethodPost, "/movies/603", nil, nil)

	status, body := f.do(t, http.MethodPost, "/query-tmdb?title=matrix", nil, nil)
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", status, body)
	}

	results := data(t, body)["results"].([]any)
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}

	first := results[0].(map[string]any)
	if first["added"] != true {
		t.Error("Expected the ingested movie to be marked added")
	}
	if first["post_id"] == "" {
		t.Error("Expected post_id for added movie")
	}

	second := results[1].(map[string]any)
	if second["added"] != false {
		t.Error("Expected un-ingested movie to not be marked added")
	}
}

func TestQueryTMDb_RequiresTitle(t *testing.T) {
	f := newAPIFixture(t, true)

	status, _ := f.do(t, http.MethodPost, "/query-tmdb", nil, nil)
	if status != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", status)
	}
}

func TestGetGenres_PopulatedByIngestion(t *testing.T) {
	f := newAPIFixture(t, true)

	f.do(t, http.MethodPost, "/movies/603", nil, nil)

	status, body := f.do(t, http.MethodGet, "/genres", nil, nil)
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}

	genres := data(t, body)["genres"].([]any)
	if len(genres) != 2 {
		t.Errorf("Expected 2 genres, got %d", len(genres))
	}
}

func TestArticleLifecycle(t *testing.T) {
	f := newAPIFixture(t, true)

	pageServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><title>Deep Work</title></head><body><p>Focus matters more than ever in a distracted world.</p></body></html>`))
	}))
	defer pageServer.Close()

	status, body := f.do(t, http.MethodPost, "/articles", map[string]any{
		"url":  pageServer.URL + "/deep-work",
		"tags": []string{"productivity"},
	}, nil)
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", status, body)
	}

	article := data(t, body)["article"].(map[string]any)
	if article["title"] != "Deep Work" {
		t.Errorf("Unexpected title: %v", article["title"])
	}
	articleID := article["id"].(string)

	// Mark read.
	status, body = f.do(t, http.MethodPatch, "/articles/"+articleID+"?read=true", nil, nil)
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", status, body)
	}
	updated := data(t, body)["article"].(map[string]any)
	if updated["is_read"] != true {
		t.Error("Expected article to be read")
	}
	if updated["date_read"] == "" {
		t.Error("Expected read date to be set")
	}

	// Totals reflect the read state.
	_, body = f.do(t, http.MethodGet, "/articles-meta", nil, nil)
	meta := data(t, body)["meta"].(map[string]any)
	if meta["total"].(float64) != 1 || meta["read"].(float64) != 1 {
		t.Errorf("Unexpected totals: %v", meta)
	}

	// Tags endpoint sees the new tag.
	_, body = f.do(t, http.MethodGet, "/tags", nil, nil)
	tags := data(t, body)["tags"].([]any)
	if len(tags) != 1 {
		t.Fatalf("Expected one tag, got %d", len(tags))
	}

	// Delete.
	status, body = f.do(t, http.MethodDelete, "/articles/"+articleID, nil, nil)
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if data(t, body)["deleted"] != true {
		t.Error("Expected deleted true")
	}
}

func TestAddArticle_RequiresURL(t *testing.T) {
	f := newAPIFixture(t, true)

	status, body := f.do(t, http.MethodPost, "/articles", map[string]any{}, nil)
	if status != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d: %v", status, body)
	}
}

func TestAuth_WriteEndpointsRequireToken(t *testing.T) {
	f := newAPIFixture(t, true)
	noToken := map[string]string{"Authorization": ""}

	// Reads stay public even with auth configured.
	status, body := f.do(t, http.MethodGet, "/movies", nil, noToken)
	if status != http.StatusOK {
		t.Fatalf("Expected public listing, got %d: %v", status, body)
	}

	// Writes do not.
	status, body = f.do(t, http.MethodPost, "/movies/603", nil, noToken)
	if status != http.StatusUnauthorized {
		t.Fatalf("Expected 401 for unauthenticated write, got %d: %v", status, body)
	}
	status, _ = f.do(t, http.MethodDelete, "/movies/some-id", nil, noToken)
	if status != http.StatusUnauthorized {
		t.Errorf("Expected 401 for unauthenticated delete, got %d", status)
	}
	status, _ = f.do(t, http.MethodPost, "/articles", map[string]any{"url": "https://example.com"}, noToken)
	if status != http.StatusUnauthorized {
		t.Errorf("Expected 401 for unauthenticated article write, got %d", status)
	}

	// Health stays open.
	status, _ = f.do(t, http.MethodGet, "/health", nil, noToken)
	if status != http.StatusOK {
		t.Errorf("Expected health to stay open, got %d", status)
	}
}

func TestWriteEndpoints_DisabledWithoutAuthConfig(t *testing.T) {
	f := newAPIFixture(t, false)

	// Reads work without any auth configuration.
	status, body := f.do(t, http.MethodGet, "/movies", nil, nil)
	if status != http.StatusOK {
		t.Fatalf("Expected public listing, got %d: %v", status, body)
	}

	// Writes are not registered at all.
	status, _ = f.do(t, http.MethodPost, "/movies/603", nil, nil)
	if status != http.StatusNotFound {
		t.Errorf("Expected 404 for disabled movie write, got %d", status)
	}
	status, _ = f.do(t, http.MethodPost, "/articles", map[string]any{"url": "https://example.com"}, nil)
	if status != http.StatusNotFound {
		t.Errorf("Expected 404 for disabled article write, got %d", status)
	}
	status, _ = f.do(t, http.MethodPost, "/query-tmdb?title=matrix", nil, nil)
	if status != http.StatusNotFound {
		t.Errorf("Expected 404 for disabled search proxy, got %d", status)
	}
}

func TestAuth_TokenFlow(t *testing.T) {
	f := newAPIFixture(t, true)

	// Wrong password is rejected.
	status, _ := f.do(t, http.MethodPost, "/auth-token", map[string]any{
		"username": "rob",
		"password": "wrong",
	}, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("Expected 401, got %d", status)
	}

	// Correct credentials yield a token.
	status, body := f.do(t, http.MethodPost, "/auth-token", map[string]any{
		"username": "rob",
		"password": "correct-horse",
	}, nil)
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", status, body)
	}
	token := data(t, body)["token"].(string)
	if token == "" {
		t.Fatal("Expected a token")
	}

	headers := map[string]string{"Authorization": "Bearer " + token}

	// Token opens the write endpoints.
	status, _ = f.do(t, http.MethodPost, "/movies/603", nil, headers)
	if status != http.StatusOK {
		t.Errorf("Expected 200 with token, got %d", status)
	}

	// And validates.
	status, body = f.do(t, http.MethodGet, "/auth-token/validate", nil, headers)
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if data(t, body)["valid"] != true {
		t.Error("Expected token to validate")
	}

	// Garbage is rejected.
	status, _ = f.do(t, http.MethodPost, "/movies/603", nil, map[string]string{"Authorization": "Bearer junk"})
	if status != http.StatusUnauthorized {
		t.Errorf("Expected 401 for bad token, got %d", status)
	}
}

func TestHealthCheck(t *testing.T) {
	f := newAPIFixture(t, true)

	status, body := f.do(t, http.MethodGet, "/health", nil, nil)
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if data(t, body)["status"] != "ok" {
		t.Errorf("Unexpected health payload: %v", body)
	}
}
