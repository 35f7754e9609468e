package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/robrotell/vril/app/auth"
	"github.com/robrotell/vril/app/cache"
	"github.com/robrotell/vril/app/database"
	"github.com/robrotell/vril/app/ingest"
	"github.com/robrotell/vril/app/tmdb"
)

// Handler carries the collaborators the REST endpoints need. All
// dependencies are passed in explicitly, nothing is reached through
// globals.
type Handler struct {
	pipeline    *ingest.Pipeline
	articles    *ingest.ArticleIngestor
	tmdb        *tmdb.Client
	cache       *cache.QueryCache
	movieRepo   database.MovieRepository
	articleRepo database.ArticleRepository
	termRepo    database.TermRepository
	assetRepo   database.AssetRepository
	tokens      *auth.TokenService // nil when auth is not configured
	debug       bool
	version     string
}

func NewHandler(pipeline *ingest.Pipeline, articles *ingest.ArticleIngestor, client *tmdb.Client, queryCache *cache.QueryCache, movieRepo database.MovieRepository, articleRepo database.ArticleRepository, termRepo database.TermRepository, assetRepo database.AssetRepository, tokens *auth.TokenService, debug bool, version string) *Handler {
	return &Handler{
		pipeline:    pipeline,
		articles:    articles,
		tmdb:        client,
		cache:       queryCache,
		movieRepo:   movieRepo,
		articleRepo: articleRepo,
		termRepo:    termRepo,
		assetRepo:   assetRepo,
		tokens:      tokens,
		debug:       debug,
		version:     version,
	}
}

func (h *Handler) envelope() *Envelope {
	return NewEnvelope(h.debug)
}

// NewServer creates the HTTP server with all routes configured
func NewServer(handler *Handler, mediaDir string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// Middleware
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))

	// A panic must still come back as an envelope, not an empty 500.
	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		slog.Error("Handler panicked", "path", c.Request.URL.Path, "panic", recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"data":    gin.H{},
			"error":   "Internal server error",
		})
	}))

	// CORS middleware for API endpoints
	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	setupRoutes(r, handler, mediaDir)

	return r
}

// setupRoutes configures all the application routes
func setupRoutes(r *gin.Engine, handler *Handler, mediaDir string) {
	r.GET("/health", handler.HealthCheck)
	r.POST("/auth-token", handler.CreateAuthToken)
	r.GET("/auth-token/validate", handler.ValidateAuthToken)

	if mediaDir != "" {
		r.Static("/media", mediaDir)
	}

	// Read endpoints are public.
	r.GET("/movies", handler.GetMovies)
	r.GET("/movies/:id", handler.GetMovie)
	r.GET("/genres", handler.GetGenres)
	r.GET("/articles", handler.GetArticles)
	r.GET("/tags", handler.GetTags)
	r.GET("/articles-meta", handler.GetArticlesMeta)

	// Write endpoints require a bearer token. Without auth configured
	// they are not registered at all.
	if handler.tokens != nil {
		writes := r.Group("/")
		writes.Use(authMiddleware(handler))

		writes.POST("/movies/:id", handler.AddMovie)
		writes.PATCH("/movies/:id", handler.UpdateMovie)
		writes.DELETE("/movies/:id", handler.DeleteMovie)
		writes.POST("/query-tmdb", handler.QueryTMDb)

		writes.POST("/articles", handler.AddArticle)
		writes.PATCH("/articles/:id", handler.UpdateArticle)
		writes.DELETE("/articles/:id", handler.DeleteArticle)

		slog.Info("Write endpoints enabled with authentication")
	} else {
		slog.Warn("Write endpoints disabled (no auth settings configured)")
	}

	// Favicon handler (return 204 to avoid 404s)
	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(204)
	})

	// Unknown routes, including write endpoints when auth is not
	// configured, answer with an envelope instead of plain text.
	r.NoRoute(func(c *gin.Context) {
		env := handler.envelope().SetError("Not found", http.StatusNotFound)
		c.JSON(env.Package())
	})
}

// authMiddleware validates the Bearer token on protected endpoints
func authMiddleware(handler *Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			env := handler.envelope().SetError("Missing bearer token", http.StatusUnauthorized)
			c.AbortWithStatusJSON(env.Package())
			return
		}

		claims, err := handler.tokens.Parse(token)
		if err != nil {
			env := handler.envelope().SetError("Invalid or expired token", http.StatusUnauthorized)
			c.AbortWithStatusJSON(env.Package())
			return
		}

		c.Set("username", claims.Username)
		c.Next()
	}
}
