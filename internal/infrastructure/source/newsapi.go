package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aineus/aineus/internal/config"
	"github.com/aineus/aineus/internal/domain"
	"github.com/aineus/aineus/internal/ports"
)

const (
	defaultWindow = 24 * time.Hour
	// NewsAPI rejects pageSize above 100.
	newsAPIMaxPageSize = 100
)

// NewsAPIClient fetches candidate articles from a NewsAPI-compatible
// /v2/everything endpoint.
type NewsAPIClient struct {
	endpoint string
	apiKey   string
	client   *http.Client
	now      func() time.Time
}

var _ ports.ArticleSource = (*NewsAPIClient)(nil)

// NewNewsAPIClient wires the hosted provider; client may be nil.
func NewNewsAPIClient(cfg config.NewsAPIConfig, client *http.Client) *NewsAPIClient {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &NewsAPIClient{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		client:   client,
		now:      time.Now,
	}
}

// Name identifies the strategy inside the registry.
func (c *NewsAPIClient) Name() string {
	return "newsapi"
}

type newsAPIArticle struct {
	Source struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"source"`
	Author      string `json:"author"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	URLToImage  string `json:"urlToImage"`
	PublishedAt string `json:"publishedAt"`
	Content     string `json:"content"`
}

type newsAPIResponse struct {
	Status   string           `json:"status"`
	Message  string           `json:"message"`
	Articles []newsAPIArticle `json:"articles"`
}

// Fetch queries the provider with prompt-derived parameters. Keywords
// are OR-joined, the time window defaults to the last 24 hours, and the
// result cap comes from the prompt's max article count.
func (c *NewsAPIClient) Fetch(ctx context.Context, prefs domain.SourcePreferences, limit int) ([]domain.RawArticle, error) {
	reqURL, err := c.buildURL(prefs, limit)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("newsapi request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("newsapi returned %s", resp.Status)
	}

	var decoded newsAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode newsapi response: %w", err)
	}
	if decoded.Status != "ok" {
		return nil, fmt.Errorf("newsapi status %s: %s", decoded.Status, decoded.Message)
	}

	excluded := map[string]struct{}{}
	for _, name := range prefs.ExcludedSources {
		excluded[strings.ToLower(name)] = struct{}{}
	}

	seen := map[string]struct{}{}
	articles := make([]domain.RawArticle, 0, len(decoded.Articles))
	for _, item := range decoded.Articles {
		if item.URL == "" || item.Title == "" {
			continue
		}
		if _, dup := seen[item.URL]; dup {
			continue
		}
		if _, skip := excluded[strings.ToLower(item.Source.Name)]; skip {
			continue
		}

		content := item.Content
		if content == "" {
			content = item.Description
		}

		publishedAt := c.now().UTC()
		if ts, err := time.Parse(time.RFC3339, item.PublishedAt); err == nil {
			publishedAt = ts
		}

		articles = append(articles, domain.RawArticle{
			Title:       item.Title,
			Content:     content,
			Summary:     item.Description,
			Source:      item.Source.Name,
			URL:         item.URL,
			PublishedAt: publishedAt,
			ImageURL:    item.URLToImage,
			Author:      item.Author,
			Raw: map[string]any{
				"source_id":   item.Source.ID,
				"source_name": item.Source.Name,
				"provider":    c.Name(),
			},
		})
		seen[item.URL] = struct{}{}
		if len(articles) >= limit {
			break
		}
	}

	return articles, nil
}

func (c *NewsAPIClient) buildURL(prefs domain.SourcePreferences, limit int) (string, error) {
	parsed, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid newsapi endpoint %s: %w", c.endpoint, err)
	}

	window := defaultWindow
	if prefs.WindowHours > 0 {
		window = time.Duration(prefs.WindowHours) * time.Hour
	}

	query := parsed.Query()
	if len(prefs.Keywords) > 0 {
		query.Set("q", strings.Join(prefs.Keywords, " OR "))
	} else if prefs.Category != "" {
		query.Set("q", prefs.Category)
	} else {
		query.Set("q", "news")
	}
	if prefs.Language != "" {
		query.Set("language", prefs.Language)
	}
	sortBy := prefs.SortBy
	if sortBy == "" {
		sortBy = "publishedAt"
	}
	query.Set("sortBy", sortBy)
	if len(prefs.Sources) > 0 {
		query.Set("sources", strings.Join(prefs.Sources, ","))
	}
	pageSize := limit
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > newsAPIMaxPageSize {
		pageSize = newsAPIMaxPageSize
	}
	query.Set("pageSize", strconv.Itoa(pageSize))
	query.Set("from", c.now().UTC().Add(-window).Format(time.RFC3339))

	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
