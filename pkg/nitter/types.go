// Package nitter retrieves a profile's recent posts through public nitter mirrors.
//
// Retrieval walks a shuffled list of mirror candidates, fetches the profile page of each one in turn and
// stops at the first mirror whose page yields at least one usable post. Every per-mirror failure is absorbed
// into the fallback loop; only exhaustion of all candidates reaches the caller, as an empty result.
package nitter

import (
	"errors"
	"fmt"
	"time"
)

// UnknownTime is the timestamp of a post whose time label could not be recovered.
const UnknownTime = "Unknown time"

// StatKind names an engagement counter.
type StatKind string

const (
	StatLikes    StatKind = "likes"
	StatRetweets StatKind = "retweets"
)

// Post is one normalized post scraped from a mirror page.
type Post struct {
	// Text is the cleaned post body. Never empty.
	Text string `json:"text"`
	// Timestamp is a best-effort time label, UnknownTime when absent.
	Timestamp string `json:"time"`
	// Stats holds only the counters that were found on the page.
	Stats map[StatKind]int `json:"stats,omitempty"`
	// Pinned reports whether the mirror marked the post as pinned.
	Pinned bool `json:"pinned,omitempty"`
	// SourceURL is the canonical status URL, if the page linked one.
	SourceURL string `json:"url,omitempty"`
}

// Likes returns the like counter, or zero when it was not found.
func (p Post) Likes() int {
	return p.Stats[StatLikes]
}

// Retweets returns the retweet counter, or zero when it was not found.
func (p Post) Retweets() int {
	return p.Stats[StatRetweets]
}

// ErrorKind classifies a failed fetch attempt.
type ErrorKind string

const (
	KindTimeout         ErrorKind = "timeout"
	KindTLS             ErrorKind = "tls_error"
	KindNetwork         ErrorKind = "network_error"
	KindRedirectToLocal ErrorKind = "redirect_to_local"
	KindHTTP            ErrorKind = "http_error"
	KindCanceled        ErrorKind = "canceled"
	KindUnknown         ErrorKind = "unknown"
)

// FetchError describes why a fetch attempt did not produce a usable document.
type FetchError struct {
	Kind ErrorKind
	// Status is set for KindHTTP.
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Kind == KindHTTP {
		return fmt.Sprintf("%s(%d)", e.Kind, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// FetchResult is the outcome of a single transport attempt.
type FetchResult struct {
	// URL is the final URL after redirects.
	URL    string
	Status int
	Body   string
	// Err is nil when the attempt succeeded.
	Err *FetchError
}

// OK reports whether the attempt produced a document.
func (r FetchResult) OK() bool {
	return r.Err == nil
}

// Outcome is the result category of one mirror attempt.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeEmpty     Outcome = "empty"
	OutcomeFailed    Outcome = "failed"
)

// Attempt records what happened at one mirror during a retrieval.
type Attempt struct {
	Mirror  string
	URL     string
	Outcome Outcome
	// Kind is set when Outcome is OutcomeFailed.
	Kind    ErrorKind
	Posts   int
	Elapsed time.Duration
}

// Report is the detailed result of a retrieval.
type Report struct {
	ID       string
	Handle   string
	Posts    []Post
	Attempts []Attempt
	// Mirror is the candidate that produced Posts, empty when none did.
	Mirror string
}

var (
	ErrInvalidHandle = errors.New("invalid profile handle")
	ErrInvalidCount  = errors.New("desired count must be positive")
)
