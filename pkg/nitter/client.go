package nitter

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var handlePattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,50}$`)

// Fetcher performs one page fetch.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) FetchResult
}

// CandidateLister supplies the mirrors to try.
type CandidateLister interface {
	ListCandidates(ctx context.Context) []string
}

// Retriever walks mirror candidates until one yields posts.
type Retriever struct {
	directory CandidateLister
	fetcher   Fetcher
	extractor *Extractor
	pacer     *Pacer
	budget    time.Duration
	shuffle   func([]string) []string
	logger    *logrus.Logger
}

// RetrieverOption customizes a Retriever.
type RetrieverOption func(*Retriever)

// WithShuffle replaces the candidate shuffle, e.g. with an identity function in tests.
func WithShuffle(shuffle func([]string) []string) RetrieverOption {
	return func(r *Retriever) {
		r.shuffle = shuffle
	}
}

// WithExtractor replaces the default extraction rules.
func WithExtractor(extractor *Extractor) RetrieverOption {
	return func(r *Retriever) {
		r.extractor = extractor
	}
}

// NewRetriever wires a retriever from its collaborators.
func NewRetriever(config *Config, directory CandidateLister, fetcher Fetcher, pacer *Pacer, opts ...RetrieverOption) *Retriever {
	r := &Retriever{
		directory: directory,
		fetcher:   fetcher,
		extractor: NewExtractor(DefaultRules()),
		pacer:     pacer,
		budget:    config.RetrievalBudget,
		shuffle:   Shuffle,
		logger:    config.Logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Client bundles the production directory, transport and retriever.
type Client struct {
	*Retriever
	Directory *Directory
	Transport *Transport
}

// NewClient builds a retriever backed by live mirrors.
func NewClient(config *Config) *Client {
	pacer := NewPacer(config.DelayMin, config.DelayMax)
	transport := NewTransport(config, pacer)
	directory := NewDirectory(config, transport.HTTPClient())
	return &Client{
		Retriever: NewRetriever(config, directory, transport, pacer),
		Directory: directory,
		Transport: transport,
	}
}

// Close releases pooled connections.
func (c *Client) Close() {
	c.Transport.Close()
}

// Retrieve returns up to count recent posts of handle. An empty result means no mirror produced
// posts and is not an error. Only invalid arguments and cancellation of ctx are reported as errors.
func (r *Retriever) Retrieve(ctx context.Context, handle string, count int) ([]Post, error) {
	report, err := r.RetrieveDetailed(ctx, handle, count)
	if err != nil {
		return nil, err
	}
	return report.Posts, nil
}

// RetrieveDetailed is Retrieve with the per-mirror attempt log.
func (r *Retriever) RetrieveDetailed(ctx context.Context, handle string, count int) (*Report, error) {
	handle, err := NormalizeHandle(handle)
	if err != nil {
		return nil, err
	}
	if count <= 0 {
		return nil, ErrInvalidCount
	}

	report := &Report{ID: uuid.New().String(), Handle: handle}
	log := r.logger.WithFields(logrus.Fields{
		"retrieval_id": report.ID,
		"handle":       handle,
	})

	budgetCtx := ctx
	if r.budget > 0 {
		var cancel context.CancelFunc
		budgetCtx, cancel = context.WithTimeout(ctx, r.budget)
		defer cancel()
	}

	if err := r.pacer.Wait(budgetCtx); err != nil {
		return r.finish(ctx, report, log)
	}

	candidates := r.shuffle(r.directory.ListCandidates(budgetCtx))
	log.WithField("candidates", len(candidates)).Debug("Starting retrieval")

	for _, mirror := range candidates {
		if budgetCtx.Err() != nil {
			break
		}

		attempt := r.attempt(budgetCtx, mirror, handle, count)
		report.Attempts = append(report.Attempts, attempt.Attempt)

		entry := log.WithFields(logrus.Fields{
			"mirror":  mirror,
			"outcome": attempt.Outcome,
			"elapsed": attempt.Elapsed.String(),
		})
		switch attempt.Outcome {
		case OutcomeSucceeded:
			entry.WithField("posts", len(attempt.posts)).Info("Mirror returned posts")
			report.Posts = attempt.posts
			report.Mirror = mirror
			return r.finish(ctx, report, log)
		case OutcomeEmpty:
			entry.Debug("Mirror page had no usable posts")
		case OutcomeFailed:
			entry.WithField("kind", attempt.Kind).Debug("Mirror attempt failed")
		}
	}

	return r.finish(ctx, report, log)
}

type attemptResult struct {
	Attempt
	posts []Post
}

func (r *Retriever) attempt(ctx context.Context, mirror, handle string, count int) attemptResult {
	start := time.Now()
	target := strings.TrimRight(mirror, "/") + "/" + url.PathEscape(handle)

	res := r.fetcher.Fetch(ctx, target)
	result := attemptResult{Attempt: Attempt{Mirror: mirror, URL: target}}
	if !res.OK() {
		result.Outcome = OutcomeFailed
		result.Kind = res.Err.Kind
		result.Elapsed = time.Since(start)
		return result
	}

	posts := r.extractor.Extract(res.Body, count)
	if len(posts) > count {
		posts = posts[:count]
	}
	result.Elapsed = time.Since(start)
	result.Posts = len(posts)
	if len(posts) == 0 {
		result.Outcome = OutcomeEmpty
		return result
	}
	result.Outcome = OutcomeSucceeded
	result.posts = posts
	return result
}

// finish reports caller cancellation as an error; an expired budget ends with whatever was accepted.
func (r *Retriever) finish(ctx context.Context, report *Report, log *logrus.Entry) (*Report, error) {
	if err := ctx.Err(); err != nil && report.Mirror == "" {
		log.WithError(err).Info("Retrieval canceled")
		return nil, err
	}
	if report.Mirror == "" {
		log.WithField("attempts", len(report.Attempts)).Warn("No mirror returned posts")
	}
	return report, nil
}

// NormalizeHandle strips a leading @ and checks the handle is a plausible profile name.
func NormalizeHandle(handle string) (string, error) {
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	if !handlePattern.MatchString(handle) {
		return "", ErrInvalidHandle
	}
	return handle, nil
}

// IsInvalidArgument reports whether err came from a bad handle or count.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidHandle) || errors.Is(err, ErrInvalidCount)
}
