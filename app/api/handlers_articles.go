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

type articleListResult struct {
	Articles []articleBlock `json:"articles"`
	Meta     listMeta       `json:"meta"`
}

// GetArticles handles GET /articles with paging, tag, keyword, read and
// favorite filters.
func (h *Handler) GetArticles(c *gin.Context) {
	env := h.envelope()

	params := map[string]string{
		"page":     c.DefaultQuery("page", "1"),
		"count":    c.DefaultQuery("count", strconv.Itoa(defaultPageSize)),
		"tag":      c.Query("tag"),
		"keyword":  c.Query("keyword"),
		"read":     c.Query("read"),
		"favorite": c.Query("favorite"),
	}

	key := cache.Key("articles", params)
	if cached, ok := h.cache.Get(key); ok {
		result := cached.(articleListResult)
		c.JSON(env.AddData("articles", result.Articles).AddData("meta", result.Meta).Package())
		return
	}

	query := database.ArticleQuery{
		Page:     atoiDefault(params["page"], 1),
		Count:    atoiDefault(params["count"], defaultPageSize),
		TermID:   params["tag"],
		Keyword:  params["keyword"],
		Read:     parseBoolFilter(params["read"]),
		Favorite: parseBoolFilter(params["favorite"]),
	}

	articles, total, err := h.articleRepo.ListArticles(query)
	if err != nil {
		slog.Error("Failed to list articles", "error", err)
		c.JSON(env.SetError("Failed to list articles", http.StatusInternalServerError).Package())
		return
	}

	blocks := make([]articleBlock, 0, len(articles))
	for _, article := range articles {
		blocks = append(blocks, h.articleToBlock(&article))
	}

	result := articleListResult{
		Articles: blocks,
		Meta:     listMeta{PostCount: len(blocks), TotalPosts: total},
	}
	h.cache.Put(key, result)

	c.JSON(env.AddData("articles", result.Articles).AddData("meta", result.Meta).Package())
}

type addArticleRequest struct {
	URL      string   `json:"url"`
	Tags     []string `json:"tags"`
	Read     bool     `json:"read"`
	Favorite bool     `json:"favorite"`
}

// AddArticle handles POST /articles with a JSON body carrying the URL
// and optional tag names.
func (h *Handler) AddArticle(c *gin.Context) {
	env := h.envelope()

	var req addArticleRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.URL == "" {
		c.JSON(env.SetError(`Missing or invalid "url" in request body`, http.StatusBadRequest).Package())
		return
	}

	result, err := h.articles.IngestArticle(c.Request.Context(), req.URL, req.Tags)
	if err != nil {
		var ingestionErr *ingest.IngestionError
		if errors.As(err, &ingestionErr) && ingestionErr.Stage == ingest.StageDedupe {
			c.JSON(env.SetError(fmt.Sprintf("Invalid article URL: %q", req.URL), http.StatusBadRequest).Package())
			return
		}
		slog.Error("Article ingestion failed", "url", req.URL, "error", err)
		c.JSON(env.SetError("Failed to add article", http.StatusInternalServerError).Package())
		return
	}

	if req.Read && !result.Article.IsRead {
		if err := h.articles.SetReadStatus(result.Article.ID, true); err == nil {
			result.Article.IsRead = true
		}
	}
	if req.Favorite && !result.Article.IsFavorite {
		if err := h.articles.SetFavoriteStatus(result.Article.ID, true); err == nil {
			result.Article.IsFavorite = true
		}
	}

	block := h.articleToBlock(result.Article)
	block.Tags = termNames(result.Terms, database.TaxonomyArticleTag)

	env.AddData("article", block)
	env.AddData("created", result.Created)
	if len(result.Warnings) > 0 {
		env.AddData("warnings", result.Warnings)
	}

	c.JSON(env.Package())
}

// UpdateArticle handles PATCH /articles/:id?read=&favorite=. Either or
// both flags may be supplied.
func (h *Handler) UpdateArticle(c *gin.Context) {
	env := h.envelope()
	id := c.Param("id")

	readParam := c.Query("read")
	favoriteParam := c.Query("favorite")
	if readParam == "" && favoriteParam == "" {
		c.JSON(env.SetError(`Missing "read" or "favorite" parameter`, http.StatusBadRequest).Package())
		return
	}

	article, err := h.articleRepo.GetArticle(id)
	if err != nil {
		slog.Error("Failed to get article", "id", id, "error", err)
		c.JSON(env.SetError("Failed to update article", http.StatusInternalServerError).Package())
		return
	}
	if article == nil {
		c.JSON(env.SetError(fmt.Sprintf("Invalid article ID: %q", id), http.StatusBadRequest).Package())
		return
	}

	if readParam != "" {
		read, err := strconv.ParseBool(readParam)
		if err != nil {
			c.JSON(env.SetError(`Invalid "read" parameter`, http.StatusBadRequest).Package())
			return
		}
		if err := h.articles.SetReadStatus(id, read); err != nil {
			slog.Error("Failed to set read status", "id", id, "error", err)
			c.JSON(env.SetError("Failed to update article", http.StatusInternalServerError).Package())
			return
		}
	}

	if favoriteParam != "" {
		favorite, err := strconv.ParseBool(favoriteParam)
		if err != nil {
			c.JSON(env.SetError(`Invalid "favorite" parameter`, http.StatusBadRequest).Package())
			return
		}
		if err := h.articles.SetFavoriteStatus(id, favorite); err != nil {
			slog.Error("Failed to set favorite status", "id", id, "error", err)
			c.JSON(env.SetError("Failed to update article", http.StatusInternalServerError).Package())
			return
		}
	}

	updated, err := h.articleRepo.GetArticle(id)
	if err != nil || updated == nil {
		slog.Error("Failed to reload article", "id", id, "error", err)
		c.JSON(env.SetError("Failed to update article", http.StatusInternalServerError).Package())
		return
	}

	c.JSON(env.AddData("article", h.articleToBlock(updated)).Package())
}

// DeleteArticle handles DELETE /articles/:id.
func (h *Handler) DeleteArticle(c *gin.Context) {
	env := h.envelope()
	id := c.Param("id")

	article, err := h.articleRepo.GetArticle(id)
	if err != nil {
		slog.Error("Failed to get article", "id", id, "error", err)
		c.JSON(env.SetError("Failed to delete article", http.StatusInternalServerError).Package())
		return
	}
	if article == nil {
		c.JSON(env.SetError(fmt.Sprintf("Invalid article ID: %q", id), http.StatusBadRequest).Package())
		return
	}

	if err := h.articles.RemoveArticle(id); err != nil {
		slog.Error("Failed to delete article", "id", id, "error", err)
		c.JSON(env.SetError("Failed to delete article", http.StatusInternalServerError).Package())
		return
	}

	c.JSON(env.AddData("deleted", true).Package())
}

// GetTags handles GET /tags.
func (h *Handler) GetTags(c *gin.Context) {
	env := h.envelope()

	key := cache.Key("tags", nil)
	if cached, ok := h.cache.Get(key); ok {
		c.JSON(env.AddData("tags", cached.([]termBlock)).Package())
		return
	}

	terms, err := h.termRepo.ListTerms(database.TaxonomyArticleTag)
	if err != nil {
		slog.Error("Failed to list tags", "error", err)
		c.JSON(env.SetError("Failed to list tags", http.StatusInternalServerError).Package())
		return
	}

	blocks := termBlocks(terms)
	h.cache.Put(key, blocks)

	c.JSON(env.AddData("tags", blocks).Package())
}

// GetArticlesMeta handles GET /articles-meta, reporting library totals.
func (h *Handler) GetArticlesMeta(c *gin.Context) {
	env := h.envelope()

	total, err := h.articleRepo.CountArticles()
	if err != nil {
		slog.Error("Failed to count articles", "error", err)
		c.JSON(env.SetError("Failed to load article totals", http.StatusInternalServerError).Package())
		return
	}

	read, err := h.articleRepo.CountReadArticles()
	if err != nil {
		slog.Error("Failed to count read articles", "error", err)
		c.JSON(env.SetError("Failed to load article totals", http.StatusInternalServerError).Package())
		return
	}

	c.JSON(env.AddData("meta", gin.H{
		"total":  total,
		"read":   read,
		"unread": total - read,
	}).Package())
}

func (h *Handler) articleToBlock(article *database.Article) articleBlock {
	block := articleBlock{
		ID:         article.ID,
		URL:        article.URL,
		Title:      article.Title,
		Excerpt:    article.Excerpt,
		IsRead:     article.IsRead,
		IsFavorite: article.IsFavorite,
		DateAdded:  article.DateAdded,
		DateRead:   article.DateRead,
		Tags:       []string{},
	}

	if terms, err := h.articleRepo.GetArticleTerms(article.ID); err == nil {
		block.Tags = termNames(terms, database.TaxonomyArticleTag)
	}

	return block
}

// parseBoolFilter maps an optional query parameter onto a tri-state
// filter: nil when absent or unparseable.
func parseBoolFilter(value string) *bool {
	if value == "" {
		return nil
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return nil
	}

	return &parsed
}
