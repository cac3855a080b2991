package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aineus/aineus/internal/domain"
	"github.com/aineus/aineus/internal/ports"
)

const (
	wordsPerMinute = 200.0

	defaultRelevance = 0.5
	defaultSentiment = 0.0
)

// ClientResolver turns a prompt's provider choice into a usable client.
// The llm registry satisfies this.
type ClientResolver interface {
	Resolve(name string, overrides map[string]any) (ports.LLMClient, error)
}

// Transformer rewrites, scores, and enriches raw articles per prompt.
// Articles run through a bounded worker pool; every generation call has
// its own deadline.
type Transformer struct {
	resolver    ClientResolver
	logger      *slog.Logger
	workers     int
	callTimeout time.Duration
	now         func() time.Time
}

// NewTransformer builds the transform stage.
func NewTransformer(resolver ClientResolver, workers int, callTimeout time.Duration, logger *slog.Logger) *Transformer {
	if workers < 1 {
		workers = 1
	}
	if callTimeout <= 0 {
		callTimeout = 60 * time.Second
	}
	return &Transformer{
		resolver:    resolver,
		logger:      logger,
		workers:     workers,
		callTimeout: callTimeout,
		now:         time.Now,
	}
}

// Transform processes the batch and returns surviving articles sorted by
// relevance, descending. Ties keep their input order. A single article's
// failure is logged and drops only that article; an unknown provider
// fails the whole operation.
func (t *Transformer) Transform(ctx context.Context, prompt domain.Prompt, raws []domain.RawArticle) ([]domain.TransformedArticle, error) {
	if len(raws) == 0 {
		return nil, nil
	}

	client, err := t.resolver.Resolve(prompt.LLMProvider, prompt.LLMConfig)
	if err != nil {
		return nil, fmt.Errorf("resolve llm provider for prompt %d: %w", prompt.ID, err)
	}

	slots := make([]*domain.TransformedArticle, len(raws))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.workers)

	for i, raw := range raws {
		i, raw := i, raw
		g.Go(func() error {
			item, err := t.transformOne(gctx, client, prompt, raw)
			if err != nil {
				t.warn("article transform failed",
					"prompt_id", prompt.ID, "url", raw.URL, "error", err)
				return nil
			}
			slots[i] = &item
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// compact in input order, then stable-sort so equal scores keep it
	survivors := make([]domain.TransformedArticle, 0, len(slots))
	for _, item := range slots {
		if item != nil {
			survivors = append(survivors, *item)
		}
	}
	sort.SliceStable(survivors, func(i, j int) bool {
		return survivors[i].Relevance > survivors[j].Relevance
	})
	return survivors, nil
}

func (t *Transformer) transformOne(ctx context.Context, client ports.LLMClient, prompt domain.Prompt, raw domain.RawArticle) (domain.TransformedArticle, error) {
	start := t.now()
	rewrite, err := t.generate(ctx, client, ports.GenerateRequest{
		Instruction:       prompt.PromptText,
		SystemInstruction: prompt.SystemPrompt,
		Content:           raw.Content,
	})
	if err != nil {
		return domain.TransformedArticle{}, fmt.Errorf("rewrite: %w", err)
	}
	duration := t.now().Sub(start)

	relevance, err := t.scoreRelevance(ctx, client, prompt, raw, rewrite.Content)
	if err != nil {
		return domain.TransformedArticle{}, fmt.Errorf("relevance: %w", err)
	}

	sentiment, err := t.scoreSentiment(ctx, client, rewrite.Content)
	if err != nil {
		return domain.TransformedArticle{}, fmt.Errorf("sentiment: %w", err)
	}

	words := len(strings.Fields(rewrite.Content))
	meta := map[string]any{
		"word_count":   words,
		"read_time":    readingTime(words),
		"sentiment":    sentiment,
		"processed_at": t.now().UTC().Format(time.RFC3339),
	}
	if len(raw.Raw) > 0 {
		meta["source_meta"] = raw.Raw
	}
	for k, v := range rewrite.Meta {
		meta["llm_"+k] = v
	}

	return domain.TransformedArticle{
		Raw:       raw,
		Content:   rewrite.Content,
		Relevance: relevance,
		Provider:  providerName(rewrite.Meta, prompt.LLMProvider),
		Duration:  duration,
		MetaInfo:  meta,
	}, nil
}

// scoreRelevance asks for a 0..1 judgment against the prompt's keyword
// list. A provider error drops the article; unparseable output falls
// back to the neutral 0.5.
func (t *Transformer) scoreRelevance(ctx context.Context, client ports.LLMClient, prompt domain.Prompt, raw domain.RawArticle, rewritten string) (float64, error) {
	keywords := prompt.Preferences().Keywords
	instruction := fmt.Sprintf(
		"Rate how relevant this article is for a reader interested in: %s.\n"+
			"Consider topical match and overall quality.\n"+
			"Respond with a single number between 0 and 1.",
		strings.Join(keywords, ", "))

	resp, err := t.generate(ctx, client, ports.GenerateRequest{
		Instruction: instruction,
		Content:     fmt.Sprintf("Title: %s\n\n%s", raw.Title, rewritten),
	})
	if err != nil {
		return 0, err
	}
	return parseRelevance(resp.Content), nil
}

// scoreSentiment classifies the tone into -1, 0, or 1; unparseable
// output falls back to neutral.
func (t *Transformer) scoreSentiment(ctx context.Context, client ports.LLMClient, content string) (float64, error) {
	resp, err := t.generate(ctx, client, ports.GenerateRequest{
		Instruction: "Classify the sentiment of this article. Respond with one number: -1 for negative, 0 for neutral, 1 for positive.",
		Content:     content,
	})
	if err != nil {
		return 0, err
	}
	return parseSentiment(resp.Content), nil
}

func (t *Transformer) generate(ctx context.Context, client ports.LLMClient, req ports.GenerateRequest) (ports.GenerateResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, t.callTimeout)
	defer cancel()
	return client.Generate(callCtx, req)
}

func parseRelevance(text string) float64 {
	score, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return defaultRelevance
	}
	return math.Min(1, math.Max(0, score))
}

func parseSentiment(text string) float64 {
	score, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return defaultSentiment
	}
	switch {
	case score >= 0.5:
		return 1
	case score <= -0.5:
		return -1
	default:
		return 0
	}
}

// readingTime estimates minutes at 200 words per minute; any non-empty
// text reads for at least a minute.
func readingTime(words int) int {
	if words == 0 {
		return 0
	}
	minutes := int(math.Ceil(float64(words) / wordsPerMinute))
	if minutes < 1 {
		minutes = 1
	}
	return minutes
}

func providerName(meta map[string]any, fallback string) string {
	if name, ok := meta["provider"].(string); ok && name != "" {
		return name
	}
	return fallback
}

func (t *Transformer) warn(msg string, args ...any) {
	if t.logger != nil {
		t.logger.Warn(msg, args...)
	}
}
