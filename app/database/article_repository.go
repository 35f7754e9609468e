package database

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

type SQLArticleRepository struct {
	db *DB
}

var _ ArticleRepository = (*SQLArticleRepository)(nil)

func NewArticleRepository(db *DB) *SQLArticleRepository {
	return &SQLArticleRepository{db: db}
}

const articleColumns = `id, url, title, excerpt, is_read, is_favorite,
	date_added, date_read, created_at, updated_at`

func scanArticle(row interface{ Scan(...any) error }) (*Article, error) {
	var a Article
	err := row.Scan(
		&a.ID, &a.URL, &a.Title, &a.Excerpt, &a.IsRead, &a.IsFavorite,
		&a.DateAdded, &a.DateRead, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *SQLArticleRepository) GetArticle(id string) (*Article, error) {
	row := r.db.QueryRow(`SELECT `+articleColumns+` FROM articles WHERE id = ?`, id)

	article, err := scanArticle(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get article: %w", err)
	}

	return article, nil
}

func (r *SQLArticleRepository) GetArticleByURL(url string) (*Article, error) {
	row := r.db.QueryRow(`SELECT `+articleColumns+` FROM articles WHERE url = ?`, url)

	article, err := scanArticle(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get article by URL: %w", err)
	}

	return article, nil
}

func (r *SQLArticleRepository) ListArticles(q ArticleQuery) ([]Article, int, error) {
	where := "1 = 1"
	var args []any

	if q.TermID != "" {
		where += " AND a.id IN (SELECT entity_id FROM entity_terms WHERE term_id = ?)"
		args = append(args, q.TermID)
	}
	if q.Keyword != "" {
		where += " AND (a.title LIKE ? OR a.url LIKE ?)"
		pattern := "%" + q.Keyword + "%"
		args = append(args, pattern, pattern)
	}
	if q.Read != nil {
		where += " AND a.is_read = ?"
		args = append(args, *q.Read)
	}
	if q.Favorite != nil {
		where += " AND a.is_favorite = ?"
		args = append(args, *q.Favorite)
	}

	var total int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM articles a WHERE `+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count articles: %w", err)
	}

	page := q.Page
	if page < 1 {
		page = 1
	}
	count := q.Count
	if count < 1 {
		count = 50
	}

	query := `SELECT ` + articleColumns + ` FROM articles a WHERE ` + where +
		` ORDER BY a.date_added DESC, a.created_at DESC LIMIT ? OFFSET ?`
	args = append(args, count, (page-1)*count)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list articles: %w", err)
	}
	defer rows.Close()

	var articles []Article
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan article row: %w", err)
		}
		articles = append(articles, *article)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating article rows: %w", err)
	}

	return articles, total, nil
}

func (r *SQLArticleRepository) CountArticles() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM articles`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count articles: %w", err)
	}
	return count, nil
}

func (r *SQLArticleRepository) CountReadArticles() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM articles WHERE is_read = 1`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count read articles: %w", err)
	}
	return count, nil
}

// UpsertArticle inserts the article or overwrites the row with the same URL.
func (r *SQLArticleRepository) UpsertArticle(a *Article) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}

	err := r.db.QueryRow(`
		INSERT INTO articles (id, url, title, excerpt, is_read, is_favorite, date_added, date_read)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (url) DO UPDATE SET
			title = excluded.title,
			excerpt = excluded.excerpt,
			is_read = excluded.is_read,
			is_favorite = excluded.is_favorite,
			date_read = excluded.date_read,
			updated_at = CURRENT_TIMESTAMP
		RETURNING id
	`, a.ID, a.URL, a.Title, a.Excerpt, a.IsRead, a.IsFavorite, a.DateAdded, a.DateRead).Scan(&a.ID)

	if err != nil {
		return fmt.Errorf("failed to upsert article: %w", err)
	}

	return nil
}

func (r *SQLArticleRepository) SetReadStatus(id string, read bool, dateRead string) error {
	result, err := r.db.Exec(`
		UPDATE articles SET is_read = ?, date_read = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, read, dateRead, id)
	if err != nil {
		return fmt.Errorf("failed to set read status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check read status update: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("no article with id %s", id)
	}

	return nil
}

func (r *SQLArticleRepository) SetFavoriteStatus(id string, favorite bool) error {
	result, err := r.db.Exec(`
		UPDATE articles SET is_favorite = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, favorite, id)
	if err != nil {
		return fmt.Errorf("failed to set favorite status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check favorite status update: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("no article with id %s", id)
	}

	return nil
}

func (r *SQLArticleRepository) DeleteArticle(id string) error {
	if _, err := r.db.Exec(`DELETE FROM entity_terms WHERE entity_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete article term assignments: %w", err)
	}

	result, err := r.db.Exec(`DELETE FROM articles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete article: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check article deletion: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("no article with id %s", id)
	}

	return nil
}

func (r *SQLArticleRepository) SetArticleTerms(articleID string, termIDs []string) error {
	return setEntityTerms(r.db, articleID, termIDs)
}

func (r *SQLArticleRepository) GetArticleTerms(articleID string) ([]Term, error) {
	return getEntityTerms(r.db, articleID, TaxonomyArticleTag)
}
