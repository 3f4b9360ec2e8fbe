package core

import (
	"context"
)

// Prompt is a single request to a language model
type Prompt struct {
	System string
	User   string
}

// LLMClient defines the interface for interacting with LLM services
type LLMClient interface {
	// Complete sends the prompt and returns the raw text of the reply
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// Fetcher yields the input stream one page at a time
type Fetcher interface {
	// FetchPage returns the page starting at cursor; an empty cursor is the first page
	FetchPage(ctx context.Context, cursor string) (Page, error)
}

// DomainProtector answers whether a sender domain must never be deleted
type DomainProtector interface {
	IsProtected(ctx context.Context, domain string) (bool, error)
}

// LabelState answers whether an item carries a user-applied flag
type LabelState interface {
	HasManualFlag(ctx context.Context, item EmailSummary) (bool, error)
}

// Deleter removes an item from the mailbox
type Deleter interface {
	Delete(ctx context.Context, emailID string) error
}

// SenderCache stores verified verdicts per sender as classification hints
type SenderCache interface {
	// Get retrieves the hint for a sender; a miss returns ErrCacheMiss
	Get(ctx context.Context, sender string) (*SenderHint, error)

	// Set stores a hint
	Set(ctx context.Context, hint *SenderHint) error

	// Delete removes a hint
	Delete(ctx context.Context, sender string) error

	// Cleanup removes expired hints
	Cleanup(ctx context.Context) error
}

// Notifier reports a completed run
type Notifier interface {
	Notify(ctx context.Context, summary RunSummary) error
}
