package telegram

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/lisanmuaddib/tweet-digest/pkg/summarize"
)

// API is the part of the bot client used to send messages.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// per-chat pacing: Telegram allows about one message per second in a chat, with short bursts
const (
	chatInterval = time.Second
	chatBurst    = 3
)

// Sender delivers plain text messages, pacing them globally and per chat.
type Sender struct {
	api    API
	logger *logrus.Logger
	global *rate.Limiter

	mu    sync.Mutex
	chats map[int64]*rate.Limiter
}

func NewSender(api API, ratePerSecond float64, logger *logrus.Logger) *Sender {
	if ratePerSecond <= 0 {
		ratePerSecond = DefaultRatePerSecond
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Sender{
		api:    api,
		logger: logger,
		global: rate.NewLimiter(rate.Limit(ratePerSecond), max(1, int(math.Ceil(ratePerSecond)))),
		chats:  make(map[int64]*rate.Limiter),
	}
}

// Send delivers text to chatID. Text longer than one message is split into several.
func (s *Sender) Send(ctx context.Context, chatID int64, text string) error {
	for _, chunk := range summarize.Paginate(text, summarize.DefaultPageLimit) {
		if err := s.wait(ctx, chatID); err != nil {
			return err
		}
		if _, err := s.api.Send(tgbotapi.NewMessage(chatID, chunk)); err != nil {
			s.logger.WithFields(logrus.Fields{
				"chat_id": chatID,
				"error":   err,
			}).Warn("Failed to send message")
			return fmt.Errorf("failed to send message: %w", err)
		}
	}
	return nil
}

func (s *Sender) wait(ctx context.Context, chatID int64) error {
	if err := s.chat(chatID).Wait(ctx); err != nil {
		return err
	}
	return s.global.Wait(ctx)
}

func (s *Sender) chat(chatID int64) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.chats[chatID]
	if !ok {
		l = rate.NewLimiter(rate.Every(chatInterval), chatBurst)
		s.chats[chatID] = l
	}
	return l
}
