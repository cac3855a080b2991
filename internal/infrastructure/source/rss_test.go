package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aineus/aineus/internal/domain"
)

const testFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Example Wire</title>
    <item>
      <title>AI regulation advances</title>
      <link>https://example.com/reg</link>
      <description>Lawmakers moved on AI rules.</description>
      <pubDate>Mon, 31 Aug 2026 09:00:00 GMT</pubDate>
    </item>
    <item>
      <title>Sports roundup</title>
      <link>https://example.com/sports</link>
      <description>Weekend scores.</description>
      <pubDate>Mon, 31 Aug 2026 08:00:00 GMT</pubDate>
    </item>
    <item>
      <title>Ancient AI history</title>
      <link>https://example.com/old</link>
      <description>A look back at AI.</description>
      <pubDate>Sat, 01 Aug 2026 08:00:00 GMT</pubDate>
    </item>
  </channel>
</rss>`

func TestRSSSourceFetch(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(testFeed))
	}))
	defer server.Close()

	src := NewRSSSource(nil, nil)
	src.now = func() time.Time { return time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC) }

	articles, err := src.Fetch(context.Background(), domain.SourcePreferences{
		FeedURLs: []string{server.URL},
		Keywords: []string{"ai"},
	}, 10)
	require.NoError(t, err)

	require.Len(t, articles, 1)
	require.Equal(t, "AI regulation advances", articles[0].Title)
	require.Equal(t, "Example Wire", articles[0].Source)
	require.Equal(t, "https://example.com/reg", articles[0].URL)
}

func TestRSSSourceBrokenFeedDegrades(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer server.Close()

	src := NewRSSSource([]string{server.URL}, nil)

	articles, err := src.Fetch(context.Background(), domain.SourcePreferences{}, 10)
	require.NoError(t, err)
	require.Empty(t, articles)
}
