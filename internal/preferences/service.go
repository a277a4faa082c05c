package preferences

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Service loads preferences on first use and writes them on every change.
type Service struct {
	Repo Repo
	Now  func() time.Time
}

// NewService constructs a Service backed by repo.
func NewService(repo Repo) *Service {
	return &Service{Repo: repo, Now: time.Now}
}

// Load returns the stored preferences, or the defaults when none exist.
func (s *Service) Load(ctx context.Context, visitorID string) (Preferences, error) {
	p, err := s.Repo.Get(ctx, visitorID)
	if errors.Is(err, ErrNotFound) {
		return Defaults(visitorID), nil
	}
	if err != nil {
		return Preferences{}, fmt.Errorf("load preferences: %w", err)
	}
	return p, nil
}

// Update carries optional changes; empty fields are left as they are.
type Update struct {
	Theme    string `json:"theme"`
	Language string `json:"language"`
}

// Set applies an update and persists the result.
func (s *Service) Set(ctx context.Context, visitorID string, u Update) (Preferences, error) {
	p, err := s.Load(ctx, visitorID)
	if err != nil {
		return Preferences{}, err
	}
	if v := strings.ToLower(strings.TrimSpace(u.Theme)); v != "" {
		if !Theme(v).valid() {
			return Preferences{}, fmt.Errorf("%w: theme %q", ErrInvalid, u.Theme)
		}
		p.Theme = Theme(v)
	}
	if v := strings.ToLower(strings.TrimSpace(u.Language)); v != "" {
		if !Language(v).valid() {
			return Preferences{}, fmt.Errorf("%w: language %q", ErrInvalid, u.Language)
		}
		p.Language = Language(v)
	}
	return s.save(ctx, p)
}

// ToggleTheme flips between light and dark.
func (s *Service) ToggleTheme(ctx context.Context, visitorID string) (Preferences, error) {
	p, err := s.Load(ctx, visitorID)
	if err != nil {
		return Preferences{}, err
	}
	if p.Theme == ThemeDark {
		p.Theme = ThemeLight
	} else {
		p.Theme = ThemeDark
	}
	return s.save(ctx, p)
}

// ToggleLanguage flips between Arabic and English.
func (s *Service) ToggleLanguage(ctx context.Context, visitorID string) (Preferences, error) {
	p, err := s.Load(ctx, visitorID)
	if err != nil {
		return Preferences{}, err
	}
	if p.Language == LanguageArabic {
		p.Language = LanguageEnglish
	} else {
		p.Language = LanguageArabic
	}
	return s.save(ctx, p)
}

func (s *Service) save(ctx context.Context, p Preferences) (Preferences, error) {
	p.UpdatedAt = s.Now().UTC()
	if err := s.Repo.Upsert(ctx, p); err != nil {
		return Preferences{}, fmt.Errorf("save preferences: %w", err)
	}
	return p, nil
}
