package preferences

import "context"

// Repo persists visitor preferences.
type Repo interface {
	Get(ctx context.Context, visitorID string) (Preferences, error)
	Upsert(ctx context.Context, p Preferences) error
}
