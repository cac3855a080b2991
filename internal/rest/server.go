package rest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aineus/aineus/internal/domain"
	"github.com/aineus/aineus/internal/ports"
)

// Refresher serves a prompt's newspaper, refreshing it when stale. The
// usecase coordinator satisfies this.
type Refresher interface {
	RefreshNewsForPrompt(ctx context.Context, promptID int64) ([]domain.FeedItem, error)
	ForceRefresh(ctx context.Context, promptID int64) ([]domain.FeedItem, error)
}

// HealthChecker reports reachability of an external dependency. The LLM
// clients satisfy this.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server exposes the newspaper over HTTP.
type Server struct {
	addr      string
	refresher Refresher
	store     ports.NewsStore
	llm       HealthChecker
	log       *slog.Logger
}

// NewServer wires handlers to the refresh coordinator, the store, and
// the default text-generation backend. llm may be nil when no provider
// is configured; /health then covers the database only.
func NewServer(addr string, refresher Refresher, store ports.NewsStore, llm HealthChecker, log *slog.Logger) *Server {
	return &Server{addr: addr, refresher: refresher, store: store, llm: llm, log: log}
}

// Router builds the chi handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/prompts/{id}/news", s.handleNews)
		r.Post("/prompts/{id}/refresh", s.handleForceRefresh)
		r.Get("/categories", s.handleCategories)
	})
	return r
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server starting", slog.String("addr", s.addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

type errorResponse struct {
	Error string `json:"error"`
}

type articleResponse struct {
	ID              int64          `json:"id"`
	Title           string         `json:"title"`
	Content         string         `json:"content"`
	Summary         string         `json:"summary,omitempty"`
	Source          string         `json:"source"`
	URL             string         `json:"url"`
	PublishedAt     time.Time      `json:"published_at"`
	ImageURL        string         `json:"image_url,omitempty"`
	Author          string         `json:"author,omitempty"`
	ReadTime        int            `json:"read_time"`
	ImportanceScore float64        `json:"importance_score"`
	SentimentScore  float64        `json:"sentiment_score"`
	MetaInfo        map[string]any `json:"meta_info,omitempty"`
	RelevanceScore  float64        `json:"relevance_score"`
	DisplayOrder    int            `json:"display_order"`
}

type newsResponse struct {
	PromptID int64             `json:"prompt_id"`
	Count    int               `json:"count"`
	Articles []articleResponse `json:"articles"`
}

type categoryResponse struct {
	ID       int64              `json:"id"`
	Name     string             `json:"name"`
	Slug     string             `json:"slug,omitempty"`
	Children []categoryResponse `json:"children"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded", "database": err.Error(),
		})
		return
	}
	if s.llm != nil {
		if err := s.llm.HealthCheck(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "degraded", "llm": err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	promptID, err := promptID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	// refresh=true is accepted but does not bypass the staleness window;
	// only POST /prompts/{id}/refresh forces a new cycle.
	items, err := s.refresher.RefreshNewsForPrompt(r.Context(), promptID)
	if err != nil {
		s.writeError(w, promptID, err)
		return
	}

	writeJSON(w, http.StatusOK, toNewsResponse(promptID, items))
}

func (s *Server) handleForceRefresh(w http.ResponseWriter, r *http.Request) {
	promptID, err := promptID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	items, err := s.refresher.ForceRefresh(r.Context(), promptID)
	if err != nil {
		s.writeError(w, promptID, err)
		return
	}

	writeJSON(w, http.StatusOK, toNewsResponse(promptID, items))
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.store.Categories(r.Context())
	if err != nil {
		s.log.Error("list categories", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	tree := domain.BuildCategoryTree(categories)
	writeJSON(w, http.StatusOK, toCategoryResponses(tree))
}

func (s *Server) writeError(w http.ResponseWriter, promptID int64, err error) {
	if errors.Is(err, domain.ErrPromptNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "prompt not found"})
		return
	}
	s.log.Error("refresh newspaper", slog.Int64("prompt_id", promptID), slog.Any("err", err))
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

func promptID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("prompt id must be a positive integer")
	}
	return id, nil
}

func toNewsResponse(promptID int64, items []domain.FeedItem) newsResponse {
	articles := make([]articleResponse, 0, len(items))
	for _, item := range items {
		articles = append(articles, articleResponse{
			ID:              item.ID,
			Title:           item.Title,
			Content:         item.Content,
			Summary:         item.Summary,
			Source:          item.Source,
			URL:             item.URL,
			PublishedAt:     item.PublishedAt,
			ImageURL:        item.ImageURL,
			Author:          item.Author,
			ReadTime:        item.ReadTime,
			ImportanceScore: item.ImportanceScore,
			SentimentScore:  item.SentimentScore,
			MetaInfo:        item.MetaInfo,
			RelevanceScore:  item.RelevanceScore,
			DisplayOrder:    item.DisplayOrder,
		})
	}
	return newsResponse{PromptID: promptID, Count: len(articles), Articles: articles}
}

func toCategoryResponses(nodes []*domain.CategoryNode) []categoryResponse {
	out := make([]categoryResponse, 0, len(nodes))
	for _, node := range nodes {
		out = append(out, categoryResponse{
			ID:       node.Category.ID,
			Name:     node.Category.Name,
			Slug:     node.Category.Slug,
			Children: toCategoryResponses(node.Children),
		})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
