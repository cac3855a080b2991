package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aineus/aineus/internal/domain"
	"github.com/aineus/aineus/internal/ports"
)

type stubRefresher struct {
	items     []domain.FeedItem
	err       error
	refreshed []int64
	forced    []int64
}

func (r *stubRefresher) RefreshNewsForPrompt(ctx context.Context, promptID int64) ([]domain.FeedItem, error) {
	r.refreshed = append(r.refreshed, promptID)
	return r.items, r.err
}

func (r *stubRefresher) ForceRefresh(ctx context.Context, promptID int64) ([]domain.FeedItem, error) {
	r.forced = append(r.forced, promptID)
	return r.items, r.err
}

type stubStore struct {
	categories []domain.Category
	pingErr    error
}

func (s *stubStore) Prompt(ctx context.Context, id int64) (domain.Prompt, error) {
	return domain.Prompt{}, domain.ErrPromptNotFound
}
func (s *stubStore) Prompts(ctx context.Context) ([]domain.Prompt, error) { return nil, nil }
func (s *stubStore) LastRefresh(ctx context.Context, promptID int64) (time.Time, bool, error) {
	return time.Time{}, false, nil
}
func (s *stubStore) ArticlesForPrompt(ctx context.Context, promptID int64) ([]domain.FeedItem, error) {
	return nil, nil
}
func (s *stubStore) Categories(ctx context.Context) ([]domain.Category, error) {
	return s.categories, nil
}
func (s *stubStore) Begin(ctx context.Context) (ports.NewsBatch, error) {
	return nil, errors.New("not implemented")
}
func (s *stubStore) Ping(ctx context.Context) error { return s.pingErr }

type stubHealthChecker struct {
	err error
}

func (h *stubHealthChecker) HealthCheck(ctx context.Context) error { return h.err }

func newTestServer(refresher *stubRefresher, store *stubStore) *Server {
	return NewServer(":0", refresher, store, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestHandleNews(t *testing.T) {
	t.Parallel()

	refresher := &stubRefresher{items: []domain.FeedItem{
		{
			Article:        domain.Article{ID: 10, Title: "first", URL: "https://example.com/a"},
			RelevanceScore: 0.9,
			DisplayOrder:   1,
		},
		{
			Article:        domain.Article{ID: 11, Title: "second", URL: "https://example.com/b"},
			RelevanceScore: 0.4,
			DisplayOrder:   2,
		},
	}}
	srv := newTestServer(refresher, &stubStore{})

	req := httptest.NewRequest(http.MethodGet, "/v1/prompts/7/news", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []int64{7}, refresher.refreshed)
	require.Empty(t, refresher.forced)

	var body newsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, int64(7), body.PromptID)
	require.Equal(t, 2, body.Count)
	require.Equal(t, 1, body.Articles[0].DisplayOrder)
	require.Equal(t, "first", body.Articles[0].Title)
}

func TestHandleNewsRefreshParamRespectsWindow(t *testing.T) {
	t.Parallel()

	refresher := &stubRefresher{}
	srv := newTestServer(refresher, &stubStore{})

	req := httptest.NewRequest(http.MethodGet, "/v1/prompts/7/news?refresh=true", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []int64{7}, refresher.refreshed)
	require.Empty(t, refresher.forced)
}

func TestHandleNewsUnknownPrompt(t *testing.T) {
	t.Parallel()

	refresher := &stubRefresher{err: domain.ErrPromptNotFound}
	srv := newTestServer(refresher, &stubStore{})

	req := httptest.NewRequest(http.MethodGet, "/v1/prompts/404/news", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleNewsBadID(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&stubRefresher{}, &stubStore{})

	for _, raw := range []string{"abc", "-3", "0"} {
		req := httptest.NewRequest(http.MethodGet, "/v1/prompts/"+raw+"/news", nil)
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code, "id %q", raw)
	}
}

func TestHandleForceRefresh(t *testing.T) {
	t.Parallel()

	refresher := &stubRefresher{}
	srv := newTestServer(refresher, &stubStore{})

	req := httptest.NewRequest(http.MethodPost, "/v1/prompts/9/refresh", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []int64{9}, refresher.forced)
}

func TestHandleCategoriesTree(t *testing.T) {
	t.Parallel()

	parent := int64(1)
	store := &stubStore{categories: []domain.Category{
		{ID: 1, Name: "Tech"},
		{ID: 2, Name: "AI", ParentID: &parent},
		{ID: 3, Name: "Sports"},
	}}
	srv := newTestServer(&stubRefresher{}, store)

	req := httptest.NewRequest(http.MethodGet, "/v1/categories", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var tree []categoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tree))
	require.Len(t, tree, 2)
	require.Equal(t, "Tech", tree[0].Name)
	require.Len(t, tree[0].Children, 1)
	require.Equal(t, "AI", tree[0].Children[0].Name)
}

func TestHandleHealth(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&stubRefresher{}, &stubStore{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	down := newTestServer(&stubRefresher{}, &stubStore{pingErr: errors.New("connection refused")})
	rec = httptest.NewRecorder()
	down.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleHealthChecksLLM(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)

	healthy := NewServer(":0", &stubRefresher{}, &stubStore{}, &stubHealthChecker{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	rec := httptest.NewRecorder()
	healthy.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	down := NewServer(":0", &stubRefresher{}, &stubStore{}, &stubHealthChecker{err: errors.New("model not loaded")}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	rec = httptest.NewRecorder()
	down.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "degraded", body["status"])
	require.Contains(t, body["llm"], "model not loaded")
}
