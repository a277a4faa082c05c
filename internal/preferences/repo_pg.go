package preferences

import (
	"context"
	"database/sql"
	"errors"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Get returns the stored preferences for a visitor.
func (r *PGRepo) Get(ctx context.Context, visitorID string) (Preferences, error) {
	const query = `
SELECT visitor_id, theme, language, updated_at
FROM visitor_preferences
WHERE visitor_id = $1`
	var p Preferences
	var theme, language string
	err := r.DB.QueryRowContext(ctx, query, visitorID).Scan(&p.VisitorID, &theme, &language, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Preferences{}, ErrNotFound
		}
		return Preferences{}, err
	}
	p.Theme = Theme(theme)
	p.Language = Language(language)
	return p, nil
}

// Upsert inserts or updates the preferences for a visitor.
func (r *PGRepo) Upsert(ctx context.Context, p Preferences) error {
	const query = `
INSERT INTO visitor_preferences (visitor_id, theme, language, created_at, updated_at)
VALUES ($1, $2, $3, $4, $4)
ON CONFLICT (visitor_id) DO UPDATE
SET theme = EXCLUDED.theme,
    language = EXCLUDED.language,
    updated_at = EXCLUDED.updated_at`
	_, err := r.DB.ExecContext(ctx, query, p.VisitorID, string(p.Theme), string(p.Language), p.UpdatedAt)
	return err
}
