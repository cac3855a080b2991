package ports

import (
	"context"
	"time"

	"github.com/aineus/aineus/internal/domain"
)

// GenerateRequest is a single text-generation call: the prompt's
// instruction pair plus the content being worked on.
type GenerateRequest struct {
	Instruction       string
	SystemInstruction string
	Content           string
}

// GenerateResponse carries the generated text and provider metadata
// (model, finish reason, and similar).
type GenerateResponse struct {
	Content string
	Meta    map[string]any
}

// LLMClient is the uniform surface over text-generation backends.
type LLMClient interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error)
	HealthCheck(ctx context.Context) error
}

// ArticleSource pulls candidate articles from an upstream provider.
// Limit caps the result set; implementations may return fewer.
type ArticleSource interface {
	Name() string
	Fetch(ctx context.Context, prefs domain.SourcePreferences, limit int) ([]domain.RawArticle, error)
}

// NewsStore is the read side plus transaction entry point of the
// persistence layer.
type NewsStore interface {
	Prompt(ctx context.Context, id int64) (domain.Prompt, error)
	Prompts(ctx context.Context) ([]domain.Prompt, error)
	LastRefresh(ctx context.Context, promptID int64) (time.Time, bool, error)
	ArticlesForPrompt(ctx context.Context, promptID int64) ([]domain.FeedItem, error)
	Categories(ctx context.Context) ([]domain.Category, error)
	Begin(ctx context.Context) (NewsBatch, error)
	Ping(ctx context.Context) error
}

// NewsBatch accumulates one refresh cycle's writes inside a single
// transaction. StoreItem is failure-isolated: an error leaves the rest
// of the batch committable.
type NewsBatch interface {
	ClearAssociations(ctx context.Context, promptID int64) error
	StoreItem(ctx context.Context, prompt domain.Prompt, item domain.TransformedArticle, displayOrder int) (domain.Article, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Notifier pushes refresh digests to an outbound channel.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Scheduler drives recurring background work.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
