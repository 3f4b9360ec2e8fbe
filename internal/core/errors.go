package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedResponse marks a model reply that breaks the response contract
	ErrMalformedResponse = errors.New("malformed model response")
	// ErrCacheMiss is returned by SenderCache.Get when no live hint exists
	ErrCacheMiss = errors.New("sender hint not found")
	// ErrSessionCorrupt is returned when persisted state cannot be trusted
	ErrSessionCorrupt = errors.New("session state corrupt")
	// ErrSessionComplete is returned for any mutation of a completed session
	ErrSessionComplete = errors.New("session already complete")
	// ErrNoActiveSession is returned when resuming without a saved session
	ErrNoActiveSession = errors.New("no active session")
	// ErrSessionActive is returned when starting over an unfinished session
	ErrSessionActive = errors.New("an active session already exists")
	// ErrDeleteUnsupported is returned by sources that cannot delete
	ErrDeleteUnsupported = errors.New("delete not supported by this mailbox")
)

// BatchError reports a batch that could not be classified or verified.
// None of its items are decided.
type BatchError struct {
	Stage    string
	EmailIDs []string
	Err      error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%s failed for batch of %d items [%s]: %v",
		e.Stage, len(e.EmailIDs), strings.Join(e.EmailIDs, ","), e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}
