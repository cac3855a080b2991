package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/aineus/aineus/internal/domain"
	"github.com/aineus/aineus/internal/ports"
)

const uniqueViolation = "23505"

// DB is the slice of pgxpool.Pool the store needs. pgxmock satisfies it
// in tests.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// Store persists the newspaper pipeline state in Postgres.
type Store struct {
	db     DB
	sb     sq.StatementBuilderType
	logger *slog.Logger
}

var _ ports.NewsStore = (*Store)(nil)

// New wires a pgx-backed store.
func New(db DB, logger *slog.Logger) *Store {
	return &Store{
		db:     db,
		sb:     sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		logger: logger,
	}
}

var promptColumns = []string{
	"id",
	"user_id",
	"name",
	"COALESCE(description, '')",
	"prompt_text",
	"COALESCE(system_prompt, '')",
	"is_public",
	"refresh_interval",
	"max_articles",
	"source_preferences",
	"custom_categories",
	"COALESCE(llm_provider, '')",
	"llm_config",
	"layout_settings",
	"sorting_preferences",
	"meta_info",
	"created_at",
	"updated_at",
}

// Prompt loads one prompt or domain.ErrPromptNotFound.
func (s *Store) Prompt(ctx context.Context, id int64) (domain.Prompt, error) {
	query, args, err := s.sb.Select(promptColumns...).
		From("prompts").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return domain.Prompt{}, fmt.Errorf("build prompt query: %w", err)
	}

	prompt, err := scanPrompt(s.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Prompt{}, fmt.Errorf("prompt %d: %w", id, domain.ErrPromptNotFound)
	}
	if err != nil {
		return domain.Prompt{}, fmt.Errorf("scan prompt: %w", err)
	}
	return prompt, nil
}

// Prompts lists every prompt; the staleness sweep walks this.
func (s *Store) Prompts(ctx context.Context) ([]domain.Prompt, error) {
	query, args, err := s.sb.Select(promptColumns...).
		From("prompts").
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build prompts query: %w", err)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query prompts: %w", err)
	}
	defer rows.Close()

	var prompts []domain.Prompt
	for rows.Next() {
		prompt, err := scanPrompt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan prompt: %w", err)
		}
		prompts = append(prompts, prompt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return prompts, nil
}

// LastRefresh derives a prompt's last refresh time as the max creation
// timestamp among its associated articles. ok is false when the prompt
// never stored anything.
func (s *Store) LastRefresh(ctx context.Context, promptID int64) (time.Time, bool, error) {
	query, args, err := s.sb.Select("MAX(a.created_at)").
		From("articles a").
		Join("news_prompts np ON np.article_id = a.id").
		Where(sq.Eq{"np.prompt_id": promptID}).
		ToSql()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("build last refresh query: %w", err)
	}

	var last *time.Time
	if err := s.db.QueryRow(ctx, query, args...).Scan(&last); err != nil {
		return time.Time{}, false, fmt.Errorf("query last refresh: %w", err)
	}
	if last == nil {
		return time.Time{}, false, nil
	}
	return *last, true, nil
}

// ArticlesForPrompt returns the stored newspaper in display order.
func (s *Store) ArticlesForPrompt(ctx context.Context, promptID int64) ([]domain.FeedItem, error) {
	query, args, err := s.sb.Select(
		"a.id", "a.title", "a.content", "COALESCE(a.summary, '')", "a.source", "a.url",
		"a.published_at", "COALESCE(a.image_url, '')", "COALESCE(a.author, '')",
		"a.read_time", "a.importance_score", "a.sentiment_score",
		"a.raw_data", "a.meta_info", "a.created_at", "a.updated_at",
		"np.relevance_score", "np.display_order",
	).
		From("articles a").
		Join("news_prompts np ON np.article_id = a.id").
		Where(sq.Eq{"np.prompt_id": promptID}).
		OrderBy("np.display_order ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build feed query: %w", err)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query feed: %w", err)
	}
	defer rows.Close()

	var items []domain.FeedItem
	for rows.Next() {
		var (
			item    domain.FeedItem
			rawData []byte
			meta    []byte
		)
		err := rows.Scan(
			&item.ID, &item.Title, &item.Content, &item.Summary, &item.Source, &item.URL,
			&item.PublishedAt, &item.ImageURL, &item.Author,
			&item.ReadTime, &item.ImportanceScore, &item.SentimentScore,
			&rawData, &meta, &item.CreatedAt, &item.UpdatedAt,
			&item.RelevanceScore, &item.DisplayOrder,
		)
		if err != nil {
			return nil, fmt.Errorf("scan feed item: %w", err)
		}
		item.RawData = unmarshalMap(rawData)
		item.MetaInfo = unmarshalMap(meta)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return items, nil
}

// Categories returns the flat category rows; callers build the tree.
func (s *Store) Categories(ctx context.Context) ([]domain.Category, error) {
	query, args, err := s.sb.Select("id", "name", "slug", "COALESCE(description, '')", "parent_id").
		From("categories").
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build categories query: %w", err)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	var categories []domain.Category
	for rows.Next() {
		var cat domain.Category
		if err := rows.Scan(&cat.ID, &cat.Name, &cat.Slug, &cat.Description, &cat.ParentID); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, cat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return categories, nil
}

// Ping reports database reachability.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Begin opens the transaction for one refresh cycle's writes.
func (s *Store) Begin(ctx context.Context) (ports.NewsBatch, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin batch: %w", err)
	}
	return &Batch{tx: tx, sb: s.sb, logger: s.logger}, nil
}

func scanPrompt(row pgx.Row) (domain.Prompt, error) {
	var (
		p          domain.Prompt
		prefs      []byte
		customCats []byte
		llmConfig  []byte
		layout     []byte
		sorting    []byte
		meta       []byte
	)
	err := row.Scan(
		&p.ID, &p.UserID, &p.Name, &p.Description, &p.PromptText, &p.SystemPrompt,
		&p.IsPublic, &p.RefreshInterval, &p.MaxArticles,
		&prefs, &customCats, &p.LLMProvider, &llmConfig,
		&layout, &sorting, &meta, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return domain.Prompt{}, err
	}

	if len(prefs) > 0 {
		var sp domain.SourcePreferences
		if err := json.Unmarshal(prefs, &sp); err == nil {
			p.SourcePreferences = &sp
		}
	}
	p.CustomCategories = unmarshalMap(customCats)
	p.LLMConfig = unmarshalMap(llmConfig)
	p.LayoutSettings = unmarshalMap(layout)
	p.SortingPreferences = unmarshalMap(sorting)
	p.MetaInfo = unmarshalMap(meta)
	return p, nil
}

func unmarshalMap(raw []byte) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

func marshalMap(m map[string]any) []byte {
	if len(m) == 0 {
		return []byte("{}")
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return []byte("{}")
	}
	return raw
}
