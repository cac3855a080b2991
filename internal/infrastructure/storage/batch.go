package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/aineus/aineus/internal/domain"
	"github.com/aineus/aineus/internal/ports"
)

// Batch writes one refresh cycle inside a single transaction. Each
// StoreItem runs under a savepoint so a failing article leaves the rest
// of the batch committable.
type Batch struct {
	tx     pgx.Tx
	sb     sq.StatementBuilderType
	logger *slog.Logger
}

var _ ports.NewsBatch = (*Batch)(nil)

// ClearAssociations drops the prompt's previous display ordering so the
// new cycle can assign a dense 1..N sequence.
func (b *Batch) ClearAssociations(ctx context.Context, promptID int64) error {
	query, args, err := b.sb.Delete("news_prompts").
		Where(sq.Eq{"prompt_id": promptID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build clear query: %w", err)
	}
	if _, err := b.tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("clear associations: %w", err)
	}
	return nil
}

// StoreItem resolves-or-creates the article, records the transformation,
// and writes the prompt association with the given display order.
func (b *Batch) StoreItem(ctx context.Context, prompt domain.Prompt, item domain.TransformedArticle, displayOrder int) (domain.Article, error) {
	sp, err := b.tx.Begin(ctx)
	if err != nil {
		return domain.Article{}, fmt.Errorf("open savepoint: %w", err)
	}

	article, err := b.storeItem(ctx, sp, prompt, item, displayOrder)
	if err != nil {
		if rbErr := sp.Rollback(ctx); rbErr != nil {
			b.warn("savepoint rollback failed", "error", rbErr)
		}
		return domain.Article{}, err
	}
	if err := sp.Commit(ctx); err != nil {
		return domain.Article{}, fmt.Errorf("release savepoint: %w", err)
	}
	return article, nil
}

func (b *Batch) storeItem(ctx context.Context, sp pgx.Tx, prompt domain.Prompt, item domain.TransformedArticle, displayOrder int) (domain.Article, error) {
	article, err := b.resolveArticle(ctx, sp, item)
	if err != nil {
		return domain.Article{}, err
	}
	if err := b.insertTransformation(ctx, sp, article.ID, prompt, item); err != nil {
		return domain.Article{}, err
	}
	if err := b.upsertAssociation(ctx, sp, article.ID, prompt.ID, item, displayOrder); err != nil {
		return domain.Article{}, err
	}
	return article, nil
}

// resolveArticle deduplicates by URL: an existing row is reused without
// overwriting its fields, and a concurrent duplicate insert is resolved
// by the uniqueness constraint plus retry-as-lookup.
func (b *Batch) resolveArticle(ctx context.Context, sp pgx.Tx, item domain.TransformedArticle) (domain.Article, error) {
	article, err := b.articleByURL(ctx, sp, item.Raw.URL)
	if err == nil {
		return article, nil
	}
	if !errors.Is(err, domain.ErrArticleNotFound) {
		return domain.Article{}, err
	}

	inner, err := sp.Begin(ctx)
	if err != nil {
		return domain.Article{}, fmt.Errorf("open insert savepoint: %w", err)
	}
	article, err = b.insertArticle(ctx, inner, item)
	if err != nil {
		if rbErr := inner.Rollback(ctx); rbErr != nil {
			b.warn("insert savepoint rollback failed", "error", rbErr)
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return b.articleByURL(ctx, sp, item.Raw.URL)
		}
		return domain.Article{}, err
	}
	if err := inner.Commit(ctx); err != nil {
		return domain.Article{}, fmt.Errorf("release insert savepoint: %w", err)
	}
	return article, nil
}

func (b *Batch) articleByURL(ctx context.Context, sp pgx.Tx, url string) (domain.Article, error) {
	query, args, err := b.sb.Select(
		"id", "title", "content", "COALESCE(summary, '')", "source", "url",
		"published_at", "COALESCE(image_url, '')", "COALESCE(author, '')",
		"read_time", "importance_score", "sentiment_score",
		"raw_data", "meta_info", "created_at", "updated_at",
	).
		From("articles").
		Where(sq.Eq{"url": url}).
		ToSql()
	if err != nil {
		return domain.Article{}, fmt.Errorf("build article query: %w", err)
	}

	var (
		article domain.Article
		rawData []byte
		meta    []byte
	)
	err = sp.QueryRow(ctx, query, args...).Scan(
		&article.ID, &article.Title, &article.Content, &article.Summary, &article.Source, &article.URL,
		&article.PublishedAt, &article.ImageURL, &article.Author,
		&article.ReadTime, &article.ImportanceScore, &article.SentimentScore,
		&rawData, &meta, &article.CreatedAt, &article.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Article{}, fmt.Errorf("article %s: %w", url, domain.ErrArticleNotFound)
	}
	if err != nil {
		return domain.Article{}, fmt.Errorf("scan article: %w", err)
	}
	article.RawData = unmarshalMap(rawData)
	article.MetaInfo = unmarshalMap(meta)
	return article, nil
}

func (b *Batch) insertArticle(ctx context.Context, tx pgx.Tx, item domain.TransformedArticle) (domain.Article, error) {
	raw := item.Raw
	article := domain.Article{
		Title:           raw.Title,
		Content:         raw.Content,
		Summary:         raw.Summary,
		Source:          raw.Source,
		URL:             raw.URL,
		PublishedAt:     raw.PublishedAt,
		ImageURL:        raw.ImageURL,
		Author:          raw.Author,
		ReadTime:        metaInt(item.MetaInfo, "read_time"),
		ImportanceScore: item.Relevance,
		SentimentScore:  metaFloat(item.MetaInfo, "sentiment"),
		RawData:         raw.Raw,
		MetaInfo:        item.MetaInfo,
	}

	query, args, err := b.sb.Insert("articles").
		Columns(
			"title", "content", "summary", "source", "url", "published_at",
			"image_url", "author", "read_time", "importance_score",
			"sentiment_score", "raw_data", "meta_info",
		).
		Values(
			article.Title, article.Content, article.Summary, article.Source,
			article.URL, article.PublishedAt, article.ImageURL, article.Author,
			article.ReadTime, article.ImportanceScore, article.SentimentScore,
			marshalMap(article.RawData), marshalMap(article.MetaInfo),
		).
		Suffix("RETURNING id, created_at, updated_at").
		ToSql()
	if err != nil {
		return domain.Article{}, fmt.Errorf("build article insert: %w", err)
	}

	if err := tx.QueryRow(ctx, query, args...).Scan(&article.ID, &article.CreatedAt, &article.UpdatedAt); err != nil {
		return domain.Article{}, fmt.Errorf("insert article: %w", err)
	}
	return article, nil
}

func (b *Batch) insertTransformation(ctx context.Context, sp pgx.Tx, articleID int64, prompt domain.Prompt, item domain.TransformedArticle) error {
	query, args, err := b.sb.Insert("news_transformations").
		Columns(
			"article_id", "prompt_id", "transformed_content", "llm_provider",
			"transformation_type", "quality_score", "processing_time", "meta_info",
		).
		Values(
			articleID, prompt.ID, item.Content, item.Provider,
			domain.TransformationTypeRewrite, item.Relevance,
			item.Duration.Seconds(), marshalMap(item.MetaInfo),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build transformation insert: %w", err)
	}
	if _, err := sp.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert transformation: %w", err)
	}
	return nil
}

func (b *Batch) upsertAssociation(ctx context.Context, sp pgx.Tx, articleID, promptID int64, item domain.TransformedArticle, displayOrder int) error {
	query, args, err := b.sb.Insert("news_prompts").
		Columns("article_id", "prompt_id", "relevance_score", "display_order", "meta_info").
		Values(articleID, promptID, item.Relevance, displayOrder, marshalMap(item.MetaInfo)).
		Suffix(`ON CONFLICT (article_id, prompt_id) DO UPDATE
			SET relevance_score = EXCLUDED.relevance_score,
			    display_order = EXCLUDED.display_order,
			    meta_info = EXCLUDED.meta_info`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build association upsert: %w", err)
	}
	if _, err := sp.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert association: %w", err)
	}
	return nil
}

// Commit finishes the batch.
func (b *Batch) Commit(ctx context.Context) error {
	if err := b.tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// Rollback discards the batch; safe to call after Commit.
func (b *Batch) Rollback(ctx context.Context) error {
	err := b.tx.Rollback(ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}

func metaInt(meta map[string]any, key string) int {
	switch v := meta[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

func metaFloat(meta map[string]any, key string) float64 {
	switch v := meta[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

func (b *Batch) warn(msg string, args ...any) {
	if b.logger != nil {
		b.logger.Warn(msg, args...)
	}
}
