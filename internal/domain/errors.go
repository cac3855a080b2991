package domain

import "errors"

// Sentinel errors surfaced across component boundaries. Callers match
// with errors.Is; everything else stays wrapped provider/driver detail.
var (
	ErrPromptNotFound  = errors.New("prompt not found")
	ErrArticleNotFound = errors.New("article not found")
)
