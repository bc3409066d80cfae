// Package summarize turns a batch of scraped posts into a bilingual digest through a language model.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/prompts"

	"github.com/lisanmuaddib/tweet-digest/internal/personality/traits"
	"github.com/lisanmuaddib/tweet-digest/pkg/llm"
	"github.com/lisanmuaddib/tweet-digest/pkg/nitter"
)

// Config holds the summarizer settings.
type Config struct {
	LLM         llm.LLM
	Logger      *logrus.Logger
	Temperature float64
	MaxTokens   int
	PageLimit   int
	// Model overrides the client's configured model when set.
	Model string
}

// Summarizer produces digests of posts.
type Summarizer struct {
	logger      *logrus.Logger
	llm         llm.LLM
	prompt      prompts.PromptTemplate
	temperature float64
	maxTokens   int
	pageLimit   int
	model       string
}

func NewSummarizer(config Config) (*Summarizer, error) {
	if config.LLM == nil {
		return nil, fmt.Errorf("LLM is required")
	}
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	if config.Temperature == 0 {
		config.Temperature = 0.7
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 800
	}
	if config.PageLimit <= 0 {
		config.PageLimit = DefaultPageLimit
	}

	return &Summarizer{
		logger:      config.Logger,
		llm:         config.LLM,
		prompt:      traits.NewDigestPrompt(),
		temperature: config.Temperature,
		maxTokens:   config.MaxTokens,
		pageLimit:   config.PageLimit,
		model:       config.Model,
	}, nil
}

// Summarize asks the model for a digest of posts and paginates it.
func (s *Summarizer) Summarize(ctx context.Context, handle string, posts []nitter.Post) (*Summary, error) {
	if len(posts) == 0 {
		return nil, ErrNoPosts
	}

	summary := &Summary{
		ID:        uuid.New().String(),
		Handle:    handle,
		CreatedAt: time.Now(),
	}
	log := s.logger.WithFields(logrus.Fields{
		"summary_id": summary.ID,
		"handle":     handle,
		"posts":      len(posts),
	})

	formattedPrompt, err := s.prompt.Format(map[string]any{
		"handle": handle,
		"count":  len(posts),
		"posts":  FormatPosts(posts),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to format prompt: %w", err)
	}

	log.Debug("Requesting summary")
	opts := []llm.Option{
		llm.WithSystemPrompt(traits.SystemPrompt),
		llm.WithTemperature(s.temperature),
		llm.WithMaxTokens(s.maxTokens),
	}
	if s.model != "" {
		opts = append(opts, llm.WithModel(s.model))
	}
	completion, err := s.llm.Generate(ctx, formattedPrompt, opts...)
	if err != nil {
		if isRateLimit(err) {
			log.WithError(err).Warn("Summarizer rate limited")
			return nil, fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
		log.WithError(err).Error("Summarizer call failed")
		return nil, fmt.Errorf("failed to generate summary: %w", err)
	}

	completion = strings.TrimSpace(completion)
	if completion == "" {
		return nil, ErrEmptySummary
	}

	summary.Text = Header + paragraphSep + completion
	summary.Pages = Paginate(summary.Text, s.pageLimit)

	log.WithField("pages", len(summary.Pages)).Info("Summary generated")
	return summary, nil
}

// FormatPosts renders posts as the numbered list placed in the prompt.
func FormatPosts(posts []nitter.Post) string {
	var b strings.Builder
	for i, p := range posts {
		fmt.Fprintf(&b, "[%d] ", i+1)
		if p.Pinned {
			b.WriteString("[置顶] ")
		}
		if p.Timestamp != "" && p.Timestamp != nitter.UnknownTime {
			fmt.Fprintf(&b, "(%s) ", p.Timestamp)
		}
		b.WriteString(p.Text)
		if len(p.Stats) > 0 {
			fmt.Fprintf(&b, "\n    ❤️ %d  🔄 %d", p.Likes(), p.Retweets())
		}
		if p.SourceURL != "" {
			fmt.Fprintf(&b, "\n    %s", p.SourceURL)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// Notice renders a summarizer failure as a chat message.
func Notice(err error) string {
	switch {
	case err == nil:
		return ""
	case isRateLimit(err):
		return "⚠️ *请求过于频繁，请稍后再试*"
	case errors.Is(err, ErrEmptySummary):
		return "❌ *AI总结为空，请稍后再试*"
	default:
		return fmt.Sprintf("❌ *API调用错误*：%v", err)
	}
}

func isRateLimit(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") || strings.Contains(msg, "status code: 429") ||
		strings.Contains(msg, "too many requests")
}
