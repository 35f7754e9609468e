package database

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"
)

const watermarkKey = "last_updated"

type SQLMetaRepository struct {
	db *DB
}

var _ MetaRepository = (*SQLMetaRepository)(nil)

func NewMetaRepository(db *DB) *SQLMetaRepository {
	return &SQLMetaRepository{db: db}
}

// Watermark returns the global last-updated value, or 0 when nothing has
// ever been written.
func (r *SQLMetaRepository) Watermark() (int64, error) {
	var value string
	err := r.db.QueryRow(`SELECT value FROM app_meta WHERE key = ?`, watermarkKey).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read watermark: %w", err)
	}

	watermark, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed watermark value %q: %w", value, err)
	}

	return watermark, nil
}

// BumpWatermark advances the watermark in a single statement. The CASE keeps
// it strictly increasing even when two writers land on the same clock tick.
func (r *SQLMetaRepository) BumpWatermark() (int64, error) {
	now := strconv.FormatInt(time.Now().UnixNano(), 10)

	_, err := r.db.Exec(`
		INSERT INTO app_meta (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = CASE
			WHEN CAST(excluded.value AS INTEGER) > CAST(app_meta.value AS INTEGER)
				THEN excluded.value
			ELSE CAST(CAST(app_meta.value AS INTEGER) + 1 AS TEXT)
		END
	`, watermarkKey, now)
	if err != nil {
		return 0, fmt.Errorf("failed to bump watermark: %w", err)
	}

	return r.Watermark()
}
