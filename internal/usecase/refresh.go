package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aineus/aineus/internal/domain"
	"github.com/aineus/aineus/internal/ports"
)

// SourceResolver turns a preference's provider name into a fetch
// strategy. The source registry satisfies this.
type SourceResolver interface {
	Resolve(name string) (ports.ArticleSource, error)
}

// CoordinatorDeps wires the driven adapters into the refresh workflow.
type CoordinatorDeps struct {
	Store       ports.NewsStore
	Sources     SourceResolver
	Transformer *Transformer
	Notifier    ports.Notifier
	Logger      *slog.Logger
}

// Coordinator decides whether a prompt's newspaper is stale and, when it
// is, runs fetch -> transform -> store and rebuilds the display order.
type Coordinator struct {
	store       ports.NewsStore
	sources     SourceResolver
	transformer *Transformer
	notifier    ports.Notifier
	logger      *slog.Logger
	now         func() time.Time
}

// NewCoordinator constructs the refresh orchestration component.
func NewCoordinator(deps CoordinatorDeps) *Coordinator {
	return &Coordinator{
		store:       deps.Store,
		sources:     deps.Sources,
		transformer: deps.Transformer,
		notifier:    deps.Notifier,
		logger:      deps.Logger,
		now:         time.Now,
	}
}

// RefreshNewsForPrompt returns the prompt's newspaper, refreshing it
// first when the refresh interval has elapsed. A fresh prompt performs
// zero external calls.
func (c *Coordinator) RefreshNewsForPrompt(ctx context.Context, promptID int64) ([]domain.FeedItem, error) {
	return c.refresh(ctx, promptID, false)
}

// ForceRefresh runs the pipeline regardless of staleness.
func (c *Coordinator) ForceRefresh(ctx context.Context, promptID int64) ([]domain.FeedItem, error) {
	return c.refresh(ctx, promptID, true)
}

func (c *Coordinator) refresh(ctx context.Context, promptID int64, force bool) ([]domain.FeedItem, error) {
	prompt, err := c.store.Prompt(ctx, promptID)
	if err != nil {
		return nil, err
	}
	if err := prompt.Validate(); err != nil {
		return nil, err
	}

	if !force {
		last, ok, err := c.store.LastRefresh(ctx, promptID)
		if err != nil {
			return nil, fmt.Errorf("derive last refresh: %w", err)
		}
		if ok && c.now().Sub(last) < prompt.RefreshWindow() {
			c.debug("prompt still fresh", "prompt_id", promptID, "last_refresh", last)
			return c.store.ArticlesForPrompt(ctx, promptID)
		}
	}

	raws := c.collect(ctx, prompt)
	if len(raws) == 0 {
		// degrade to the previously stored newspaper
		return c.store.ArticlesForPrompt(ctx, promptID)
	}

	processed, err := c.transformer.Transform(ctx, prompt, raws)
	if err != nil {
		return nil, err
	}
	if len(processed) == 0 {
		return c.store.ArticlesForPrompt(ctx, promptID)
	}

	items, err := c.storeBatch(ctx, prompt, processed)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return c.store.ArticlesForPrompt(ctx, promptID)
	}

	c.notify(ctx, prompt, items)
	return items, nil
}

// collect fetches raw candidates. Provider failures are logged and turn
// into an empty batch: the refresh becomes a no-op, not an error.
func (c *Coordinator) collect(ctx context.Context, prompt domain.Prompt) []domain.RawArticle {
	prefs := prompt.Preferences()

	src, err := c.sources.Resolve(prefs.Provider)
	if err != nil {
		c.warn("news source unavailable", "prompt_id", prompt.ID, "provider", prefs.Provider, "error", err)
		return nil
	}

	raws, err := src.Fetch(ctx, prefs, prompt.MaxArticles)
	if err != nil {
		c.warn("fetch failed", "prompt_id", prompt.ID, "source", src.Name(), "error", err)
		return nil
	}
	raws = dedupeByURL(raws)
	if len(raws) > prompt.MaxArticles {
		raws = raws[:prompt.MaxArticles]
	}
	return raws
}

// dedupeByURL keeps the first occurrence of each URL. A duplicate would
// resolve to the same article row and its association upsert would steal
// the earlier display_order slot.
func dedupeByURL(raws []domain.RawArticle) []domain.RawArticle {
	seen := make(map[string]struct{}, len(raws))
	out := raws[:0]
	for _, raw := range raws {
		if _, dup := seen[raw.URL]; dup {
			continue
		}
		seen[raw.URL] = struct{}{}
		out = append(out, raw)
	}
	return out
}

// storeBatch writes the whole cycle in one transaction. display_order is
// assigned densely from 1 in the already-sorted batch order; an article
// that fails to store is skipped and does not consume an order slot.
func (c *Coordinator) storeBatch(ctx context.Context, prompt domain.Prompt, processed []domain.TransformedArticle) ([]domain.FeedItem, error) {
	batch, err := c.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rbErr := batch.Rollback(ctx); rbErr != nil {
			c.warn("batch rollback failed", "prompt_id", prompt.ID, "error", rbErr)
		}
	}()

	if err := batch.ClearAssociations(ctx, prompt.ID); err != nil {
		return nil, err
	}

	items := make([]domain.FeedItem, 0, len(processed))
	order := 1
	for _, item := range processed {
		article, err := batch.StoreItem(ctx, prompt, item, order)
		if err != nil {
			c.warn("store article failed",
				"prompt_id", prompt.ID, "url", item.Raw.URL, "error", err)
			continue
		}
		items = append(items, domain.FeedItem{
			Article:        article,
			RelevanceScore: item.Relevance,
			DisplayOrder:   order,
		})
		order++
	}

	if len(items) == 0 {
		return nil, nil
	}
	if err := batch.Commit(ctx); err != nil {
		return nil, err
	}
	return items, nil
}

// notify sends a best-effort digest of the refreshed newspaper.
func (c *Coordinator) notify(ctx context.Context, prompt domain.Prompt, items []domain.FeedItem) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.PublishDigest(ctx, buildDigest(prompt, items)); err != nil {
		c.warn("publish digest failed", "prompt_id", prompt.ID, "error", err)
	}
}

func buildDigest(prompt domain.Prompt, items []domain.FeedItem) string {
	digest := fmt.Sprintf("%s refreshed: %d articles\n", prompt.Name, len(items))
	for _, item := range items {
		digest += fmt.Sprintf("%d. %s (%.2f)\n%s\n", item.DisplayOrder, item.Title, item.RelevanceScore, item.URL)
	}
	return digest
}

func (c *Coordinator) debug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}

func (c *Coordinator) warn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
