package source

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/aineus/aineus/internal/domain"
	"github.com/aineus/aineus/internal/ports"
)

// RSSSource pulls articles from RSS/Atom feeds. Feed URLs come from the
// prompt's preferences, falling back to the configured defaults.
type RSSSource struct {
	defaultFeeds []string
	parser       *gofeed.Parser
	logger       *slog.Logger
	now          func() time.Time
}

var _ ports.ArticleSource = (*RSSSource)(nil)

// NewRSSSource wires a gofeed parser over the configured default feeds.
func NewRSSSource(feeds []string, logger *slog.Logger) *RSSSource {
	return &RSSSource{
		defaultFeeds: feeds,
		parser:       gofeed.NewParser(),
		logger:       logger,
		now:          time.Now,
	}
}

// Name identifies the strategy inside the registry.
func (s *RSSSource) Name() string {
	return "rss"
}

// Fetch parses each feed, keeps items inside the time window that match
// the keyword list, and maps them to raw articles. A failing feed is
// logged and skipped rather than failing the fetch.
func (s *RSSSource) Fetch(ctx context.Context, prefs domain.SourcePreferences, limit int) ([]domain.RawArticle, error) {
	feeds := prefs.FeedURLs
	if len(feeds) == 0 {
		feeds = s.defaultFeeds
	}

	window := defaultWindow
	if prefs.WindowHours > 0 {
		window = time.Duration(prefs.WindowHours) * time.Hour
	}
	cutoff := s.now().UTC().Add(-window)

	seen := map[string]struct{}{}
	articles := make([]domain.RawArticle, 0, limit)
	for _, feedURL := range feeds {
		feed, err := s.parser.ParseURLWithContext(feedURL, ctx)
		if err != nil {
			s.warn("parse feed failed", "feed", feedURL, "error", err)
			continue
		}

		sourceName := feed.Title
		if sourceName == "" {
			sourceName = feedURL
		}

		for _, item := range feed.Items {
			if len(articles) >= limit {
				return articles, nil
			}
			if item.Link == "" || item.Title == "" {
				continue
			}
			if _, dup := seen[item.Link]; dup {
				continue
			}

			publishedAt := s.now().UTC()
			if item.PublishedParsed != nil {
				publishedAt = item.PublishedParsed.UTC()
			}
			if publishedAt.Before(cutoff) {
				continue
			}
			if !matchesKeywords(item, prefs.Keywords) {
				continue
			}

			content := item.Content
			if content == "" {
				content = item.Description
			}

			author := ""
			if len(item.Authors) > 0 {
				author = item.Authors[0].Name
			}
			imageURL := ""
			if item.Image != nil {
				imageURL = item.Image.URL
			}

			seen[item.Link] = struct{}{}
			articles = append(articles, domain.RawArticle{
				Title:       item.Title,
				Content:     content,
				Summary:     item.Description,
				Source:      sourceName,
				URL:         item.Link,
				PublishedAt: publishedAt,
				ImageURL:    imageURL,
				Author:      author,
				Raw: map[string]any{
					"feed_url": feedURL,
					"guid":     item.GUID,
					"provider": s.Name(),
				},
			})
		}
	}

	return articles, nil
}

// matchesKeywords is an OR-match over title and description; an empty
// keyword list matches everything.
func matchesKeywords(item *gofeed.Item, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	haystack := strings.ToLower(item.Title + " " + item.Description)
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(haystack, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func (s *RSSSource) warn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
