package database

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

type SQLAssetRepository struct {
	db *DB
}

var _ AssetRepository = (*SQLAssetRepository)(nil)

func NewAssetRepository(db *DB) *SQLAssetRepository {
	return &SQLAssetRepository{db: db}
}

func (r *SQLAssetRepository) GetAsset(movieID, kind string) (*Asset, error) {
	var a Asset
	err := r.db.QueryRow(`
		SELECT id, movie_id, kind, source_path, file_path, created_at
		FROM assets WHERE movie_id = ? AND kind = ?
	`, movieID, kind).Scan(&a.ID, &a.MovieID, &a.Kind, &a.SourcePath, &a.FilePath, &a.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}

	return &a, nil
}

func (r *SQLAssetRepository) GetAssetsForMovie(movieID string) ([]Asset, error) {
	rows, err := r.db.Query(`
		SELECT id, movie_id, kind, source_path, file_path, created_at
		FROM assets WHERE movie_id = ?
	`, movieID)
	if err != nil {
		return nil, fmt.Errorf("failed to get assets: %w", err)
	}
	defer rows.Close()

	var assets []Asset
	for rows.Next() {
		var a Asset
		if err := rows.Scan(&a.ID, &a.MovieID, &a.Kind, &a.SourcePath, &a.FilePath, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan asset row: %w", err)
		}
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating asset rows: %w", err)
	}

	return assets, nil
}

// SaveAsset records an image blob reference, replacing any prior asset of
// the same kind for the movie.
func (r *SQLAssetRepository) SaveAsset(a *Asset) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}

	err := r.db.QueryRow(`
		INSERT INTO assets (id, movie_id, kind, source_path, file_path)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (movie_id, kind) DO UPDATE SET
			source_path = excluded.source_path,
			file_path = excluded.file_path
		RETURNING id
	`, a.ID, a.MovieID, a.Kind, a.SourcePath, a.FilePath).Scan(&a.ID)

	if err != nil {
		return fmt.Errorf("failed to save asset: %w", err)
	}

	return nil
}

// DeleteAssetsForMovie removes asset rows and returns what was deleted so
// the caller can clean up the blobs.
func (r *SQLAssetRepository) DeleteAssetsForMovie(movieID string) ([]Asset, error) {
	assets, err := r.GetAssetsForMovie(movieID)
	if err != nil {
		return nil, err
	}

	if _, err := r.db.Exec(`DELETE FROM assets WHERE movie_id = ?`, movieID); err != nil {
		return nil, fmt.Errorf("failed to delete assets: %w", err)
	}

	return assets, nil
}
