package domain

import (
	"fmt"
	"time"
)

const (
	// DefaultRefreshInterval is applied when a prompt does not set one.
	DefaultRefreshInterval = 24
	// MaxArticlesLimit caps how many articles a single prompt may hold.
	MaxArticlesLimit = 1000
)

// Prompt is a user-defined newspaper: instructions for rewriting plus
// preferences for collecting and presenting articles.
type Prompt struct {
	ID           int64
	UserID       int64
	Name         string
	Description  string
	PromptText   string
	SystemPrompt string
	IsPublic     bool

	RefreshInterval int
	MaxArticles     int

	SourcePreferences *SourcePreferences
	CustomCategories  map[string]any

	LLMProvider string
	LLMConfig   map[string]any

	LayoutSettings     map[string]any
	SortingPreferences map[string]any
	MetaInfo           map[string]any

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SourcePreferences steers article collection for one prompt. All fields
// are optional; zero values fall back to provider defaults.
type SourcePreferences struct {
	Provider        string   `json:"provider,omitempty"`
	Language        string   `json:"language,omitempty"`
	SortBy          string   `json:"sort_by,omitempty"`
	Keywords        []string `json:"keywords,omitempty"`
	Sources         []string `json:"sources,omitempty"`
	ExcludedSources []string `json:"excluded_sources,omitempty"`
	Category        string   `json:"category,omitempty"`
	FeedURLs        []string `json:"feed_urls,omitempty"`
	WindowHours     int      `json:"window_hours,omitempty"`
}

// Validate enforces the prompt invariants before the pipeline acts on it.
func (p Prompt) Validate() error {
	if p.PromptText == "" {
		return fmt.Errorf("prompt %d: prompt text is empty", p.ID)
	}
	if p.RefreshInterval < 1 {
		return fmt.Errorf("prompt %d: refresh interval %d is below 1 hour", p.ID, p.RefreshInterval)
	}
	if p.MaxArticles < 1 || p.MaxArticles > MaxArticlesLimit {
		return fmt.Errorf("prompt %d: max articles %d outside 1..%d", p.ID, p.MaxArticles, MaxArticlesLimit)
	}
	return nil
}

// Preferences returns the source preferences, treating an absent block
// as empty preferences rather than an error.
func (p Prompt) Preferences() SourcePreferences {
	if p.SourcePreferences == nil {
		return SourcePreferences{}
	}
	return *p.SourcePreferences
}

// RefreshWindow converts the hour-based interval into a duration.
func (p Prompt) RefreshWindow() time.Duration {
	hours := p.RefreshInterval
	if hours < 1 {
		hours = DefaultRefreshInterval
	}
	return time.Duration(hours) * time.Hour
}

// Tag labels prompts for discovery.
type Tag struct {
	ID   int64
	Name string
	Slug string
}
