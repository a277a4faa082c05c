package preferences

import (
	"errors"
	"time"
)

// Theme is the colour scheme.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// Language is the interface language.
type Language string

const (
	LanguageArabic  Language = "ar"
	LanguageEnglish Language = "en"
)

// Defaults applied to visitors without stored preferences.
const (
	DefaultTheme    = ThemeLight
	DefaultLanguage = LanguageArabic
)

var (
	// ErrNotFound is returned by repos when a visitor has no stored preferences.
	ErrNotFound = errors.New("preferences not found")
	// ErrInvalid is returned for unknown theme or language values.
	ErrInvalid = errors.New("invalid preferences")
)

// Preferences are the per-visitor display settings.
type Preferences struct {
	VisitorID string    `json:"-"`
	Theme     Theme     `json:"theme"`
	Language  Language  `json:"language"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Defaults returns the preferences of a new visitor.
func Defaults(visitorID string) Preferences {
	return Preferences{VisitorID: visitorID, Theme: DefaultTheme, Language: DefaultLanguage}
}

func (t Theme) valid() bool    { return t == ThemeLight || t == ThemeDark }
func (l Language) valid() bool { return l == LanguageArabic || l == LanguageEnglish }

// Direction is the text direction for the language.
func (l Language) Direction() string {
	if l == LanguageArabic {
		return "rtl"
	}
	return "ltr"
}
