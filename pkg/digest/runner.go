// Package digest delivers a handle's recent posts to a chat: a short brief with engagement totals,
// followed by the AI summary pages and a link to the profile.
package digest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lisanmuaddib/tweet-digest/pkg/nitter"
	"github.com/lisanmuaddib/tweet-digest/pkg/summarize"
)

// Trigger records what started a digest run.
type Trigger string

const (
	TriggerOnDemand  Trigger = "on_demand"
	TriggerScheduled Trigger = "scheduled"
)

// Request describes one digest delivery.
type Request struct {
	ChatID  int64
	Handle  string
	Count   int
	Trigger Trigger
}

type Retriever interface {
	Retrieve(ctx context.Context, handle string, count int) ([]nitter.Post, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, handle string, posts []nitter.Post) (*summarize.Summary, error)
}

// Sender delivers one plain text message to a chat.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Config wires the runner. Summarizer may be nil, in which case only the brief is sent.
type Config struct {
	Retriever  Retriever
	Summarizer Summarizer
	Sender     Sender
	Logger     *logrus.Logger
}

type Runner struct {
	retriever  Retriever
	summarizer Summarizer
	sender     Sender
	logger     *logrus.Logger
}

func NewRunner(config Config) (*Runner, error) {
	if config.Retriever == nil {
		return nil, fmt.Errorf("retriever is required")
	}
	if config.Sender == nil {
		return nil, fmt.Errorf("sender is required")
	}
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	return &Runner{
		retriever:  config.Retriever,
		summarizer: config.Summarizer,
		sender:     config.Sender,
		logger:     config.Logger,
	}, nil
}

// Run retrieves the posts of req.Handle and sends the digest to req.ChatID.
// It returns an error only when nothing could be delivered: the first message failed to send,
// or ctx was canceled before anything was sent. Later send failures are logged.
func (r *Runner) Run(ctx context.Context, req Request) error {
	handle := strings.TrimPrefix(strings.TrimSpace(req.Handle), "@")
	log := r.logger.WithFields(logrus.Fields{
		"digest_id": uuid.New().String(),
		"chat_id":   req.ChatID,
		"handle":    handle,
		"count":     req.Count,
		"trigger":   req.Trigger,
	})
	log.Info("Starting digest")

	posts, err := r.retriever.Retrieve(ctx, handle, req.Count)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		log.WithError(err).Warn("Retrieval rejected")
		return r.send(ctx, req.ChatID, fmt.Sprintf("❌ 获取推文时发生错误：%v", err))
	}

	if len(posts) == 0 {
		log.Warn("No posts found")
		return r.send(ctx, req.ChatID, fmt.Sprintf("❌ 未能找到 @%s 的推文，请检查用户名是否正确或稍后重试", handle))
	}

	if err := r.send(ctx, req.ChatID, Brief(handle, posts)); err != nil {
		return err
	}

	if r.summarizer != nil {
		if req.Trigger == TriggerOnDemand {
			r.sendLogged(ctx, log, req.ChatID, "🤖 正在生成AI总结...")
		}
		summary, err := r.summarizer.Summarize(ctx, handle, posts)
		switch {
		case err != nil && ctx.Err() != nil:
			log.WithError(err).Warn("Digest canceled during summary")
			return nil
		case err != nil:
			log.WithError(err).Warn("Summary failed")
			r.sendLogged(ctx, log, req.ChatID, summarize.Notice(err))
		default:
			for _, page := range summary.Pages {
				r.sendLogged(ctx, log, req.ChatID, page)
			}
		}
	}

	r.sendLogged(ctx, log, req.ChatID, LinkHint(handle))
	log.WithField("posts", len(posts)).Info("Digest delivered")
	return nil
}

// Brief renders the post count, time range and engagement totals. posts must not be empty.
func Brief(handle string, posts []nitter.Post) string {
	var likes, retweets int
	for _, p := range posts {
		likes += p.Likes()
		retweets += p.Retweets()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "✅ 已获取 @%s 的 %d 条推文\n", handle, len(posts))
	fmt.Fprintf(&b, "📅 时间范围：%s 至 %s\n", posts[len(posts)-1].Timestamp, posts[0].Timestamp)
	b.WriteString("📊 总体数据：\n")
	fmt.Fprintf(&b, "❤️ 总点赞：%d\n", likes)
	fmt.Fprintf(&b, "🔄 总转发：%d", retweets)
	return b.String()
}

// LinkHint points the reader at the full profile.
func LinkHint(handle string) string {
	return "💡 提示：如需查看完整推文内容，请访问：\nhttps://twitter.com/" + handle
}

func (r *Runner) send(ctx context.Context, chatID int64, text string) error {
	if err := r.sender.Send(ctx, chatID, text); err != nil {
		return fmt.Errorf("failed to send digest message: %w", err)
	}
	return nil
}

func (r *Runner) sendLogged(ctx context.Context, log *logrus.Entry, chatID int64, text string) {
	if err := r.sender.Send(ctx, chatID, text); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Warn("Failed to send digest message")
	}
}
