package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"

	"github.com/aineus/aineus/internal/domain"
)

var promptRowColumns = []string{
	"id", "user_id", "name", "description", "prompt_text", "system_prompt",
	"is_public", "refresh_interval", "max_articles",
	"source_preferences", "custom_categories", "llm_provider", "llm_config",
	"layout_settings", "sorting_preferences", "meta_info", "created_at", "updated_at",
}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("new mock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func TestStorePrompt(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	now := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT .+ FROM prompts WHERE id = \$1`).
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows(promptRowColumns).AddRow(
			int64(7), int64(3), "Pirate Daily", "", "rewrite like a pirate", "you are a pirate",
			true, 24, 10,
			[]byte(`{"keywords":["AI"],"language":"en"}`), nil, "openai", []byte(`{"model":"gpt-4o"}`),
			nil, nil, nil, now, now,
		))

	store := New(mock, nil)
	prompt, err := store.Prompt(context.Background(), 7)
	if err != nil {
		t.Fatalf("prompt: %v", err)
	}

	if prompt.Name != "Pirate Daily" || prompt.LLMProvider != "openai" {
		t.Fatalf("unexpected prompt: %+v", prompt)
	}
	if prompt.SourcePreferences == nil || prompt.SourcePreferences.Keywords[0] != "AI" {
		t.Fatalf("source preferences not decoded: %+v", prompt.SourcePreferences)
	}
	if prompt.LLMConfig["model"] != "gpt-4o" {
		t.Fatalf("llm config not decoded: %+v", prompt.LLMConfig)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestStorePromptNotFound(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	mock.ExpectQuery(`SELECT .+ FROM prompts WHERE id = \$1`).
		WithArgs(int64(404)).
		WillReturnError(pgx.ErrNoRows)

	store := New(mock, nil)
	if _, err := store.Prompt(context.Background(), 404); !errors.Is(err, domain.ErrPromptNotFound) {
		t.Fatalf("expected ErrPromptNotFound, got %v", err)
	}
}

func TestStoreLastRefresh(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	last := time.Date(2026, 8, 30, 6, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT MAX\(a.created_at\) FROM articles a`).
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"max"}).AddRow(&last))

	store := New(mock, nil)
	got, ok, err := store.LastRefresh(context.Background(), 7)
	if err != nil {
		t.Fatalf("last refresh: %v", err)
	}
	if !ok || !got.Equal(last) {
		t.Fatalf("unexpected last refresh: %v ok=%v", got, ok)
	}
}

func TestStoreLastRefreshNever(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	mock.ExpectQuery(`SELECT MAX\(a.created_at\) FROM articles a`).
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"max"}).AddRow((*time.Time)(nil)))

	store := New(mock, nil)
	_, ok, err := store.LastRefresh(context.Background(), 7)
	if err != nil {
		t.Fatalf("last refresh: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for a prompt with no stored articles")
	}
}

func TestStoreArticlesForPromptOrder(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	now := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)

	rows := pgxmock.NewRows([]string{
		"id", "title", "content", "summary", "source", "url",
		"published_at", "image_url", "author",
		"read_time", "importance_score", "sentiment_score",
		"raw_data", "meta_info", "created_at", "updated_at",
		"relevance_score", "display_order",
	}).
		AddRow(int64(1), "First", "body", "", "Reuters", "https://e.com/1",
			now, "", "", 2, 0.9, 0.0, nil, nil, now, now, 0.9, 1).
		AddRow(int64(2), "Second", "body", "", "Reuters", "https://e.com/2",
			now, "", "", 3, 0.6, 1.0, nil, nil, now, now, 0.6, 2)

	mock.ExpectQuery(`SELECT .+ FROM articles a JOIN news_prompts np`).
		WithArgs(int64(7)).
		WillReturnRows(rows)

	store := New(mock, nil)
	items, err := store.ArticlesForPrompt(context.Background(), 7)
	if err != nil {
		t.Fatalf("articles for prompt: %v", err)
	}

	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].DisplayOrder != 1 || items[1].DisplayOrder != 2 {
		t.Fatalf("display order broken: %+v", items)
	}
	if items[0].RelevanceScore != 0.9 {
		t.Fatalf("relevance lost: %+v", items[0])
	}
}

func TestStoreCategories(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	parent := int64(1)

	mock.ExpectQuery(`SELECT id, name, slug, COALESCE\(description, ''\), parent_id FROM categories`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "slug", "description", "parent_id"}).
			AddRow(int64(1), "World", "world", "", (*int64)(nil)).
			AddRow(int64(2), "Europe", "europe", "", &parent))

	store := New(mock, nil)
	categories, err := store.Categories(context.Background())
	if err != nil {
		t.Fatalf("categories: %v", err)
	}
	if len(categories) != 2 || categories[1].ParentID == nil || *categories[1].ParentID != 1 {
		t.Fatalf("unexpected categories: %+v", categories)
	}
}
