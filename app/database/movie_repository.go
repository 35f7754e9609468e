package database

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

type SQLMovieRepository struct {
	db *DB
}

var _ MovieRepository = (*SQLMovieRepository)(nil)

func NewMovieRepository(db *DB) *SQLMovieRepository {
	return &SQLMovieRepository{db: db}
}

const movieColumns = `id, tmdb_id, title, comparison_title, synopsis, tagline,
	release_date, runtime, budget, box_office, rating, website,
	director, writer, to_watch, created_at, updated_at`

func scanMovie(row interface{ Scan(...any) error }) (*Movie, error) {
	var m Movie
	err := row.Scan(
		&m.ID, &m.TMDbID, &m.Title, &m.ComparisonTitle, &m.Synopsis, &m.Tagline,
		&m.ReleaseDate, &m.Runtime, &m.Budget, &m.BoxOffice, &m.Rating, &m.Website,
		&m.Director, &m.Writer, &m.ToWatch, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *SQLMovieRepository) GetMovie(id string) (*Movie, error) {
	row := r.db.QueryRow(`SELECT `+movieColumns+` FROM movies WHERE id = ?`, id)

	movie, err := scanMovie(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get movie: %w", err)
	}

	return movie, nil
}

func (r *SQLMovieRepository) GetMovieByTMDbID(tmdbID int) (*Movie, error) {
	row := r.db.QueryRow(`SELECT `+movieColumns+` FROM movies WHERE tmdb_id = ?`, tmdbID)

	movie, err := scanMovie(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get movie by TMDb ID: %w", err)
	}

	return movie, nil
}

// ListMovies returns one page of movies matching the query, ordered by
// comparison title, plus the total match count for pagination.
func (r *SQLMovieRepository) ListMovies(q MovieQuery) ([]Movie, int, error) {
	where := "1 = 1"
	var args []any

	if q.TermID != "" {
		where += " AND m.id IN (SELECT entity_id FROM entity_terms WHERE term_id = ?)"
		args = append(args, q.TermID)
	}
	if q.Keyword != "" {
		where += " AND (m.title LIKE ? OR m.synopsis LIKE ?)"
		pattern := "%" + q.Keyword + "%"
		args = append(args, pattern, pattern)
	}
	if q.ToWatch {
		where += " AND m.to_watch = 1"
	}

	var total int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM movies m WHERE `+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count movies: %w", err)
	}

	page := q.Page
	if page < 1 {
		page = 1
	}
	count := q.Count
	if count < 1 {
		count = 50
	}

	query := `SELECT ` + movieColumns + ` FROM movies m WHERE ` + where +
		` ORDER BY m.comparison_title ASC LIMIT ? OFFSET ?`
	args = append(args, count, (page-1)*count)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list movies: %w", err)
	}
	defer rows.Close()

	var movies []Movie
	for rows.Next() {
		movie, err := scanMovie(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan movie row: %w", err)
		}
		movies = append(movies, *movie)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating movie rows: %w", err)
	}

	return movies, total, nil
}

func (r *SQLMovieRepository) CountMovies() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM movies`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count movies: %w", err)
	}
	return count, nil
}

// UpsertMovie inserts the movie or, when a row with the same TMDb ID exists,
// overwrites its fields in place. The movie's ID is filled in either way.
func (r *SQLMovieRepository) UpsertMovie(m *Movie) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}

	err := r.db.QueryRow(`
		INSERT INTO movies (
			id, tmdb_id, title, comparison_title, synopsis, tagline,
			release_date, runtime, budget, box_office, rating, website,
			director, writer, to_watch
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tmdb_id) DO UPDATE SET
			title = excluded.title,
			comparison_title = excluded.comparison_title,
			synopsis = excluded.synopsis,
			tagline = excluded.tagline,
			release_date = excluded.release_date,
			runtime = excluded.runtime,
			budget = excluded.budget,
			box_office = excluded.box_office,
			rating = excluded.rating,
			website = excluded.website,
			director = excluded.director,
			writer = excluded.writer,
			to_watch = excluded.to_watch,
			updated_at = CURRENT_TIMESTAMP
		RETURNING id
	`, m.ID, m.TMDbID, m.Title, m.ComparisonTitle, m.Synopsis, m.Tagline,
		m.ReleaseDate, m.Runtime, m.Budget, m.BoxOffice, m.Rating, m.Website,
		m.Director, m.Writer, m.ToWatch).Scan(&m.ID)

	if err != nil {
		return fmt.Errorf("failed to upsert movie: %w", err)
	}

	return nil
}

func (r *SQLMovieRepository) SetWatchStatus(id string, toWatch bool) error {
	result, err := r.db.Exec(`
		UPDATE movies SET to_watch = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, toWatch, id)
	if err != nil {
		return fmt.Errorf("failed to set watch status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check watch status update: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("no movie with id %s", id)
	}

	return nil
}

func (r *SQLMovieRepository) DeleteMovie(id string) error {
	if _, err := r.db.Exec(`DELETE FROM entity_terms WHERE entity_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete movie term assignments: %w", err)
	}

	result, err := r.db.Exec(`DELETE FROM movies WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete movie: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check movie deletion: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("no movie with id %s", id)
	}

	return nil
}

// SetMovieTerms replaces the movie's term assignments.
func (r *SQLMovieRepository) SetMovieTerms(movieID string, termIDs []string) error {
	return setEntityTerms(r.db, movieID, termIDs)
}

func (r *SQLMovieRepository) GetMovieTerms(movieID string, taxonomy string) ([]Term, error) {
	return getEntityTerms(r.db, movieID, taxonomy)
}

func setEntityTerms(db *DB, entityID string, termIDs []string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin term assignment: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM entity_terms WHERE entity_id = ?`, entityID); err != nil {
		return fmt.Errorf("failed to clear term assignments: %w", err)
	}

	for _, termID := range termIDs {
		_, err := tx.Exec(`
			INSERT INTO entity_terms (entity_id, term_id) VALUES (?, ?)
			ON CONFLICT (entity_id, term_id) DO NOTHING
		`, entityID, termID)
		if err != nil {
			return fmt.Errorf("failed to assign term %s: %w", termID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit term assignments: %w", err)
	}

	return nil
}

func getEntityTerms(db *DB, entityID string, taxonomy string) ([]Term, error) {
	query := `
		SELECT t.id, t.taxonomy, t.name, COALESCE(t.tmdb_id, 0)
		FROM terms t
		JOIN entity_terms et ON et.term_id = t.id
		WHERE et.entity_id = ?`
	args := []any{entityID}

	if taxonomy != "" {
		query += ` AND t.taxonomy = ?`
		args = append(args, taxonomy)
	}
	query += ` ORDER BY t.name ASC`

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get entity terms: %w", err)
	}
	defer rows.Close()

	var terms []Term
	for rows.Next() {
		var t Term
		if err := rows.Scan(&t.ID, &t.Taxonomy, &t.Name, &t.TMDbID); err != nil {
			return nil, fmt.Errorf("failed to scan term row: %w", err)
		}
		terms = append(terms, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating term rows: %w", err)
	}

	return terms, nil
}
