package database

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

type SQLTermRepository struct {
	db *DB
}

var _ TermRepository = (*SQLTermRepository)(nil)

func NewTermRepository(db *DB) *SQLTermRepository {
	return &SQLTermRepository{db: db}
}

func scanTerm(row interface{ Scan(...any) error }) (*Term, error) {
	var t Term
	var tmdbID sql.NullInt64
	if err := row.Scan(&t.ID, &t.Taxonomy, &t.Name, &tmdbID); err != nil {
		return nil, err
	}
	t.TMDbID = int(tmdbID.Int64)
	return &t, nil
}

func (r *SQLTermRepository) GetTerm(id string) (*Term, error) {
	row := r.db.QueryRow(`SELECT id, taxonomy, name, tmdb_id FROM terms WHERE id = ?`, id)

	term, err := scanTerm(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get term: %w", err)
	}

	return term, nil
}

func (r *SQLTermRepository) GetTermByTMDbID(taxonomy string, tmdbID int) (*Term, error) {
	row := r.db.QueryRow(`
		SELECT id, taxonomy, name, tmdb_id FROM terms WHERE taxonomy = ? AND tmdb_id = ?
	`, taxonomy, tmdbID)

	term, err := scanTerm(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get term by TMDb ID: %w", err)
	}

	return term, nil
}

// GetTermByName is a case-sensitive exact match. sqlite LIKE would fold
// case; BINARY comparison via = on a case-sensitive collation is the default.
func (r *SQLTermRepository) GetTermByName(taxonomy, name string) (*Term, error) {
	row := r.db.QueryRow(`
		SELECT id, taxonomy, name, tmdb_id FROM terms WHERE taxonomy = ? AND name = ?
	`, taxonomy, name)

	term, err := scanTerm(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get term by name: %w", err)
	}

	return term, nil
}

func (r *SQLTermRepository) ListTerms(taxonomy string) ([]Term, error) {
	rows, err := r.db.Query(`
		SELECT id, taxonomy, name, tmdb_id FROM terms WHERE taxonomy = ? ORDER BY name ASC
	`, taxonomy)
	if err != nil {
		return nil, fmt.Errorf("failed to list terms: %w", err)
	}
	defer rows.Close()

	var terms []Term
	for rows.Next() {
		term, err := scanTerm(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan term row: %w", err)
		}
		terms = append(terms, *term)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating term rows: %w", err)
	}

	return terms, nil
}

// CreateTerm inserts the term; when a concurrent request already created a
// term with the same name or TMDb ID, the preexisting term is returned
// instead of an error.
func (r *SQLTermRepository) CreateTerm(taxonomy, name string, tmdbID int) (*Term, error) {
	var tmdbValue any
	if tmdbID > 0 {
		tmdbValue = tmdbID
	}

	id := uuid.NewString()
	_, err := r.db.Exec(`
		INSERT INTO terms (id, taxonomy, name, tmdb_id) VALUES (?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, id, taxonomy, name, tmdbValue)
	if err != nil {
		return nil, fmt.Errorf("failed to create term: %w", err)
	}

	// Re-read: either our row or the one that won the race.
	if tmdbID > 0 {
		if term, err := r.GetTermByTMDbID(taxonomy, tmdbID); err != nil || term != nil {
			return term, err
		}
	}

	term, err := r.GetTermByName(taxonomy, name)
	if err != nil {
		return nil, err
	}
	if term == nil {
		return nil, fmt.Errorf("term %q vanished after insert", name)
	}

	return term, nil
}

func (r *SQLTermRepository) SetTermTMDbID(termID string, tmdbID int) error {
	_, err := r.db.Exec(`UPDATE terms SET tmdb_id = ? WHERE id = ?`, tmdbID, termID)
	if err != nil {
		return fmt.Errorf("failed to set term TMDb ID: %w", err)
	}
	return nil
}
