package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robrotell/vril/app/database"
	"github.com/robrotell/vril/app/scrape"
	"github.com/robrotell/vril/app/taxonomy"
)

// ArticleResult is the outcome of an article ingestion.
type ArticleResult struct {
	Article  *database.Article
	Terms    []database.Term
	Warnings []string
	Created  bool
}

// ArticleIngestor saves read-later articles: URL normalization, dedupe,
// page scraping and persistence.
type ArticleIngestor struct {
	scraper     *scrape.Scraper
	resolver    *taxonomy.Resolver
	articleRepo database.ArticleRepository
	metaRepo    database.MetaRepository
	locks       *keyedMutex
	now         func() time.Time
}

func NewArticleIngestor(scraper *scrape.Scraper, resolver *taxonomy.Resolver, articleRepo database.ArticleRepository, metaRepo database.MetaRepository) *ArticleIngestor {
	return &ArticleIngestor{
		scraper:     scraper,
		resolver:    resolver,
		articleRepo: articleRepo,
		metaRepo:    metaRepo,
		locks:       newKeyedMutex(),
		now:         time.Now,
	}
}

// NormalizeURL canonicalizes an article URL for dedupe: whitespace
// trimmed, scheme forced to https, missing scheme added.
func NormalizeURL(raw string) string {
	url := strings.TrimSpace(raw)

	switch {
	case strings.HasPrefix(url, "https://"):
	case strings.HasPrefix(url, "http://"):
		url = "https://" + strings.TrimPrefix(url, "http://")
	case url != "":
		url = "https://" + url
	}

	return strings.TrimRight(url, "/")
}

// IngestArticle saves the page at rawURL for later reading. An article
// with the same normalized URL is updated in place. Scrape failures do
// not abort ingestion, the URL itself stands in for the title.
func (a *ArticleIngestor) IngestArticle(ctx context.Context, rawURL string, tagNames []string) (*ArticleResult, error) {
	url := NormalizeURL(rawURL)
	if url == "" {
		return nil, &IngestionError{Stage: StageDedupe, Err: fmt.Errorf("article URL is empty")}
	}

	key := "article:" + url
	a.locks.Lock(key)
	defer a.locks.Unlock(key)

	existing, err := a.articleRepo.GetArticleByURL(url)
	if err != nil {
		return nil, &IngestionError{Stage: StageDedupe, Err: err}
	}

	result := &ArticleResult{Created: existing == nil}

	// Scrape the URL as given; the https form is only the storage key,
	// and some sources are reachable over plain http alone.
	fetchURL := strings.TrimSpace(rawURL)
	if !strings.Contains(fetchURL, "://") {
		fetchURL = url
	}

	page := a.scraper.Fetch(ctx, fetchURL)
	if page.Title == "" {
		result.Warnings = append(result.Warnings, "page title unavailable")
		page.Title = url
	}

	article := &database.Article{
		URL:       url,
		Title:     page.Title,
		Excerpt:   page.Excerpt,
		DateAdded: a.now().UTC().Format("2006-01-02"),
	}

	if existing != nil {
		article.ID = existing.ID
		article.IsRead = existing.IsRead
		article.IsFavorite = existing.IsFavorite
		article.DateAdded = existing.DateAdded
		article.DateRead = existing.DateRead
		if article.Title == url && existing.Title != "" {
			article.Title = existing.Title
		}
		if article.Excerpt == "" {
			article.Excerpt = existing.Excerpt
		}
	}

	if err := a.articleRepo.UpsertArticle(article); err != nil {
		return nil, &IngestionError{Stage: StagePersist, Err: err}
	}

	terms := a.resolveTags(tagNames)
	if len(tagNames) > 0 {
		termIDs := make([]string, 0, len(terms))
		for _, term := range terms {
			termIDs = append(termIDs, term.ID)
		}
		if err := a.articleRepo.SetArticleTerms(article.ID, termIDs); err != nil {
			return nil, &IngestionError{Stage: StagePersist, Err: err}
		}
	} else {
		terms, err = a.articleRepo.GetArticleTerms(article.ID)
		if err != nil {
			slog.Warn("Failed to load article tags", "article_id", article.ID, "error", err)
		}
	}

	if _, err := a.metaRepo.BumpWatermark(); err != nil {
		slog.Error("Failed to bump watermark", "error", err)
	}

	result.Article = article
	result.Terms = terms

	slog.Info("Article ingested", "url", url, "created", result.Created)

	return result, nil
}

func (a *ArticleIngestor) resolveTags(names []string) []database.Term {
	refs := make([]taxonomy.Ref, 0, len(names))
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		refs = append(refs, taxonomy.Ref{Name: strings.TrimSpace(name)})
	}

	return a.resolver.ResolveAll(database.TaxonomyArticleTag, refs)
}

// SetReadStatus marks an article read or unread, recording the read
// date, and bumps the watermark.
func (a *ArticleIngestor) SetReadStatus(id string, read bool) error {
	dateRead := ""
	if read {
		dateRead = a.now().UTC().Format("2006-01-02")
	}

	if err := a.articleRepo.SetReadStatus(id, read, dateRead); err != nil {
		return err
	}

	if _, err := a.metaRepo.BumpWatermark(); err != nil {
		slog.Error("Failed to bump watermark", "error", err)
	}

	return nil
}

// SetFavoriteStatus toggles an article's favorite flag and bumps the
// watermark.
func (a *ArticleIngestor) SetFavoriteStatus(id string, favorite bool) error {
	if err := a.articleRepo.SetFavoriteStatus(id, favorite); err != nil {
		return err
	}

	if _, err := a.metaRepo.BumpWatermark(); err != nil {
		slog.Error("Failed to bump watermark", "error", err)
	}

	return nil
}

// RemoveArticle deletes an article and bumps the watermark.
func (a *ArticleIngestor) RemoveArticle(id string) error {
	if err := a.articleRepo.DeleteArticle(id); err != nil {
		return err
	}

	if _, err := a.metaRepo.BumpWatermark(); err != nil {
		slog.Error("Failed to bump watermark", "error", err)
	}

	return nil
}
