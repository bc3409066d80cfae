package summarize

import (
	"errors"
	"time"
)

// DefaultPageLimit is the longest page sent as one chat message.
const DefaultPageLimit = 4000

// Header opens every summary.
const Header = "📋 AI总结要点："

var (
	// ErrRateLimited is returned when the model provider throttles the request.
	ErrRateLimited = errors.New("summarizer rate limited")
	// ErrEmptySummary is returned when the model answers with no text.
	ErrEmptySummary = errors.New("summarizer returned an empty summary")
	// ErrNoPosts is returned when there is nothing to summarize.
	ErrNoPosts = errors.New("no posts to summarize")
)

// Summary is a finished digest split into sendable pages.
type Summary struct {
	ID     string
	Handle string
	// Text is the whole summary including the header.
	Text string
	// Pages are the chat messages Text is delivered as, each within the page limit.
	Pages     []string
	CreatedAt time.Time
}
