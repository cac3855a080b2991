package domain

import "time"

// Article is the shared news entity. One row exists per canonical URL no
// matter how many prompts reference it.
type Article struct {
	ID              int64
	Title           string
	Content         string
	Summary         string
	Source          string
	URL             string
	PublishedAt     time.Time
	ImageURL        string
	Author          string
	ReadTime        int
	ImportanceScore float64
	SentimentScore  float64
	RawData         map[string]any
	MetaInfo        map[string]any
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// RawArticle is an article as delivered by a source provider, before any
// transformation.
type RawArticle struct {
	Title       string
	Content     string
	Summary     string
	Source      string
	URL         string
	PublishedAt time.Time
	ImageURL    string
	Author      string
	Raw         map[string]any
}

// TransformedArticle carries one article through the transform stage:
// the raw provider record plus the rewrite, the relevance judgment and
// the enriched metadata.
type TransformedArticle struct {
	Raw       RawArticle
	Content   string
	Relevance float64
	Provider  string
	Duration  time.Duration
	MetaInfo  map[string]any
}

// TransformationTypeRewrite tags transformations produced by the
// per-prompt rewrite pipeline.
const TransformationTypeRewrite = "rewrite"

// Transformation is the immutable record of a single rewrite of an
// article for a prompt. A new refresh cycle creates a new record.
type Transformation struct {
	ID          int64
	ArticleID   int64
	PromptID    int64
	Content     string
	LLMProvider string
	Type        string
	Quality     float64
	Duration    float64
	MetaInfo    map[string]any
	CreatedAt   time.Time
}

// FeedItem is an article as it appears inside one prompt's newspaper.
type FeedItem struct {
	Article
	RelevanceScore float64
	DisplayOrder   int
}
