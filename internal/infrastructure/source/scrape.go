package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/aineus/aineus/internal/config"
	"github.com/aineus/aineus/internal/domain"
	"github.com/aineus/aineus/internal/ports"
)

// ScrapeSource crawls configured HTML listing pages and extracts
// articles with per-page CSS selectors.
type ScrapeSource struct {
	pages  []config.ScrapePage
	client *http.Client
	logger *slog.Logger
	now    func() time.Time
}

var _ ports.ArticleSource = (*ScrapeSource)(nil)

// NewScrapeSource wires an HTTP client over the configured pages.
func NewScrapeSource(pages []config.ScrapePage, client *http.Client, logger *slog.Logger) *ScrapeSource {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &ScrapeSource{pages: pages, client: client, logger: logger, now: time.Now}
}

// Name identifies the strategy inside the registry.
func (s *ScrapeSource) Name() string {
	return "scrape"
}

// Fetch walks each configured page and returns articles published inside
// the time window. Pages that fail to load are logged and skipped.
func (s *ScrapeSource) Fetch(ctx context.Context, prefs domain.SourcePreferences, limit int) ([]domain.RawArticle, error) {
	if len(s.pages) == 0 {
		return nil, nil
	}

	window := defaultWindow
	if prefs.WindowHours > 0 {
		window = time.Duration(prefs.WindowHours) * time.Hour
	}
	cutoff := s.now().UTC().Add(-window)

	seen := map[string]struct{}{}
	results := make([]domain.RawArticle, 0, limit)
	for _, page := range s.pages {
		doc, err := s.fetchDocument(ctx, page.URL)
		if err != nil {
			s.warn("fetch page failed", "page", page.Name, "error", err)
			continue
		}

		doc.Find(page.ItemSelector).EachWithBreak(func(i int, sel *goquery.Selection) bool {
			if len(results) >= limit {
				return false
			}

			article, ok := s.extractArticle(sel, page, cutoff)
			if !ok {
				return true
			}
			if _, dup := seen[article.URL]; dup {
				return true
			}
			if !keywordMatch(article, prefs.Keywords) {
				return true
			}

			seen[article.URL] = struct{}{}
			results = append(results, article)
			return true
		})
	}

	return results, nil
}

func (s *ScrapeSource) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "aineus/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("page returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

func (s *ScrapeSource) extractArticle(sel *goquery.Selection, page config.ScrapePage, cutoff time.Time) (domain.RawArticle, bool) {
	title := strings.TrimSpace(sel.Find(page.TitleSelector).First().Text())
	link, _ := sel.Find(page.LinkSelector).First().Attr("href")
	link = absoluteURL(page.URL, link)
	if title == "" || link == "" {
		return domain.RawArticle{}, false
	}

	summary := strings.TrimSpace(sel.Find(page.SummarySelector).First().Text())

	publishedAt := s.now().UTC()
	if page.DateSelector != "" && page.DateFormat != "" {
		dateText := strings.TrimSpace(sel.Find(page.DateSelector).First().Text())
		if parsed, err := time.Parse(page.DateFormat, dateText); err == nil {
			publishedAt = parsed.UTC()
		}
	}
	if publishedAt.Before(cutoff) {
		return domain.RawArticle{}, false
	}

	return domain.RawArticle{
		Title:       title,
		Content:     summary,
		Summary:     summary,
		Source:      page.Name,
		URL:         link,
		PublishedAt: publishedAt,
		Raw: map[string]any{
			"page":     page.Name,
			"page_url": page.URL,
			"provider": s.Name(),
		},
	}, true
}

func keywordMatch(article domain.RawArticle, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	haystack := strings.ToLower(article.Title + " " + article.Summary)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(haystack, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func absoluteURL(base, href string) string {
	if href == "" || strings.HasPrefix(href, "http") {
		return href
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return href
	}
	resolved, err := parsed.Parse(href)
	if err != nil {
		return href
	}
	return resolved.String()
}

func (s *ScrapeSource) warn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
