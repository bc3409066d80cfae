// Package telegram is the chat surface of the digest bot: commands, the /schedule conversation,
// long polling and paced message delivery.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/lisanmuaddib/tweet-digest/pkg/db/models"
	"github.com/lisanmuaddib/tweet-digest/pkg/digest"
	"github.com/lisanmuaddib/tweet-digest/pkg/jobs"
	"github.com/lisanmuaddib/tweet-digest/pkg/nitter"
	"github.com/lisanmuaddib/tweet-digest/pkg/scheduler"
	"github.com/lisanmuaddib/tweet-digest/pkg/store"
)

const welcome = "欢迎使用Twitter监控机器人！\n" +
	"可用命令：\n" +
	"/get_tweets [用户名] [数量] - 立即获取推文\n" +
	"/schedule - 设置定时任务\n" +
	"/list_tasks - 查看所有任务\n" +
	"/delete_task [任务ID] - 删除任务\n" +
	"/run_task [任务ID] - 立即执行任务\n" +
	"/cancel - 取消当前操作"

const badTime = "时间格式错误，请使用HH:MM格式（如：09:00）"

// TaskScheduler manages a chat's scheduled tasks.
type TaskScheduler interface {
	AddTask(ctx context.Context, chatID int64, handle string, count int, at string) (*models.ScheduledTask, error)
	RemoveTask(ctx context.Context, chatID int64, id uint) error
	Tasks(ctx context.Context, chatID int64) ([]models.ScheduledTask, error)
	RunTask(ctx context.Context, chatID int64, id uint) (*models.ScheduledTask, error)
}

type Submitter interface {
	Submit(name string, run func(ctx context.Context) error, opts ...jobs.JobOption) (string, error)
}

type DigestRunner interface {
	Run(ctx context.Context, req digest.Request) error
}

type MessageSender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

type BotConfig struct {
	Sender    MessageSender
	Scheduler TaskScheduler
	Jobs      Submitter
	Digest    DigestRunner
	MaxTweets int
	Logger    *logrus.Logger
}

type step int

const (
	stepHandle step = iota
	stepCount
	stepTime
)

// conversation is the state of one user's /schedule dialogue in one chat.
type conversation struct {
	step   step
	handle string
	count  int
}

type conversationKey struct {
	chatID int64
	userID int64
}

// Bot dispatches chat commands.
type Bot struct {
	sender    MessageSender
	scheduler TaskScheduler
	jobs      Submitter
	digest    DigestRunner
	maxTweets int
	logger    *logrus.Logger

	mu            sync.Mutex
	conversations map[conversationKey]*conversation
}

func NewBot(config BotConfig) (*Bot, error) {
	if config.Sender == nil {
		return nil, fmt.Errorf("sender is required")
	}
	if config.Scheduler == nil {
		return nil, fmt.Errorf("scheduler is required")
	}
	if config.Jobs == nil {
		return nil, fmt.Errorf("job submitter is required")
	}
	if config.Digest == nil {
		return nil, fmt.Errorf("digest runner is required")
	}
	if config.MaxTweets <= 0 {
		config.MaxTweets = DefaultMaxTweets
	}
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	return &Bot{
		sender:        config.Sender,
		scheduler:     config.Scheduler,
		jobs:          config.Jobs,
		digest:        config.Digest,
		maxTweets:     config.MaxTweets,
		logger:        config.Logger,
		conversations: make(map[conversationKey]*conversation),
	}, nil
}

// ProcessUpdate handles one update. Only messages are acted on.
func (b *Bot) ProcessUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return
	}

	key := conversationKey{chatID: msg.Chat.ID}
	if msg.From != nil {
		key.userID = msg.From.ID
	}

	if !msg.IsCommand() {
		b.continueConversation(ctx, key, strings.TrimSpace(msg.Text))
		return
	}

	command := msg.Command()
	args := strings.Fields(msg.CommandArguments())
	b.logger.WithFields(logrus.Fields{
		"chat_id": key.chatID,
		"command": command,
	}).Debug("Handling command")

	if command != "cancel" {
		b.endConversation(key)
	}

	switch command {
	case "start", "help":
		b.reply(ctx, key.chatID, welcome)
	case "get_tweets":
		b.handleGetTweets(ctx, key.chatID, args)
	case "schedule":
		b.startConversation(ctx, key)
	case "cancel":
		if b.endConversation(key) {
			b.reply(ctx, key.chatID, "操作已取消。")
		} else {
			b.reply(ctx, key.chatID, "当前没有进行中的操作。")
		}
	case "list_tasks":
		b.handleListTasks(ctx, key.chatID)
	case "delete_task", "remove_task":
		b.handleDeleteTask(ctx, key.chatID, args)
	case "run_task":
		b.handleRunTask(ctx, key.chatID, args)
	default:
		b.reply(ctx, key.chatID, "未知命令，请使用 /help 查看可用命令")
	}
}

func (b *Bot) handleGetTweets(ctx context.Context, chatID int64, args []string) {
	if len(args) != 2 {
		b.reply(ctx, chatID, "参数错误，请使用格式：/get_tweets [用户名] [数量]")
		return
	}
	handle, err := nitter.NormalizeHandle(args[0])
	if err != nil {
		b.reply(ctx, chatID, fmt.Sprintf("用户名无效：%s", args[0]))
		return
	}
	count, ok := b.parseCount(ctx, chatID, args[1])
	if !ok {
		b.reply(ctx, chatID, "数量必须是正整数")
		return
	}

	b.reply(ctx, chatID, fmt.Sprintf("正在获取 @%s 的最新 %d 条推文...", handle, count))

	req := digest.Request{ChatID: chatID, Handle: handle, Count: count, Trigger: digest.TriggerOnDemand}
	jobID, err := b.jobs.Submit("digest:"+handle, func(ctx context.Context) error {
		return b.digest.Run(ctx, req)
	})
	if err != nil {
		b.logger.WithError(err).WithField("chat_id", chatID).Warn("Failed to queue digest")
		b.reply(ctx, chatID, busyNotice(err))
		return
	}
	b.logger.WithFields(logrus.Fields{
		"chat_id": chatID,
		"handle":  handle,
		"job_id":  jobID,
	}).Info("Queued on-demand digest")
}

// parseCount reads a positive count, clamping it to the configured cap with a notice.
func (b *Bot) parseCount(ctx context.Context, chatID int64, raw string) (int, bool) {
	count, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || count <= 0 {
		return 0, false
	}
	if count > b.maxTweets {
		b.reply(ctx, chatID, fmt.Sprintf("单次最多获取 %d 条推文，已调整为 %d 条", b.maxTweets, b.maxTweets))
		count = b.maxTweets
	}
	return count, true
}

func (b *Bot) startConversation(ctx context.Context, key conversationKey) {
	b.mu.Lock()
	b.conversations[key] = &conversation{step: stepHandle}
	b.mu.Unlock()
	b.reply(ctx, key.chatID, "请输入要监控的Twitter用户名：")
}

// endConversation drops key's conversation and reports whether one existed.
func (b *Bot) endConversation(key conversationKey) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.conversations[key]
	delete(b.conversations, key)
	return ok
}

func (b *Bot) continueConversation(ctx context.Context, key conversationKey, text string) {
	b.mu.Lock()
	conv, ok := b.conversations[key]
	b.mu.Unlock()
	if !ok {
		return
	}

	switch conv.step {
	case stepHandle:
		handle, err := nitter.NormalizeHandle(text)
		if err != nil {
			b.reply(ctx, key.chatID, "用户名无效，请重新输入：")
			return
		}
		conv.handle = handle
		conv.step = stepCount
		b.reply(ctx, key.chatID, "请输入要获取的推文数量：")

	case stepCount:
		count, ok := b.parseCount(ctx, key.chatID, text)
		if !ok {
			b.reply(ctx, key.chatID, "数量必须是正整数，请重新输入：")
			return
		}
		conv.count = count
		conv.step = stepTime
		b.reply(ctx, key.chatID, "请输入执行时间（HH:MM）：")

	case stepTime:
		if _, err := scheduler.NormalizeTime(text); err != nil {
			b.reply(ctx, key.chatID, badTime)
			return
		}
		b.endConversation(key)

		task, err := b.scheduler.AddTask(ctx, key.chatID, conv.handle, conv.count, text)
		if err != nil {
			b.logger.WithError(err).WithField("chat_id", key.chatID).Error("Failed to add task")
			b.reply(ctx, key.chatID, "设置任务失败，请重试")
			return
		}
		b.reply(ctx, key.chatID, fmt.Sprintf("定时任务已设置！\n将在每天 %s 获取 @%s 的 %d 条推文",
			task.ScheduleTime, task.TwitterUsername, task.TweetCount))
	}
}

func (b *Bot) handleListTasks(ctx context.Context, chatID int64) {
	tasks, err := b.scheduler.Tasks(ctx, chatID)
	if err != nil {
		b.logger.WithError(err).WithField("chat_id", chatID).Error("Failed to list tasks")
		b.reply(ctx, chatID, fmt.Sprintf("发生错误：%v", err))
		return
	}
	if len(tasks) == 0 {
		b.reply(ctx, chatID, "当前没有定时任务")
		return
	}
	b.reply(ctx, chatID, FormatTasks(tasks))
}

// FormatTasks renders a chat's task list.
func FormatTasks(tasks []models.ScheduledTask) string {
	var sb strings.Builder
	sb.WriteString("当前的定时任务：\n\n")
	for _, t := range tasks {
		fmt.Fprintf(&sb, "ID: %d\n", t.ID)
		fmt.Fprintf(&sb, "用户: @%s\n", t.TwitterUsername)
		fmt.Fprintf(&sb, "数量: %d\n", t.TweetCount)
		fmt.Fprintf(&sb, "时间: %s\n", t.ScheduleTime)
		sb.WriteString("-------------------\n")
	}
	return sb.String()
}

func (b *Bot) handleDeleteTask(ctx context.Context, chatID int64, args []string) {
	id, ok := parseTaskID(args)
	if !ok {
		b.reply(ctx, chatID, "参数错误，请使用格式：/delete_task [任务ID]")
		return
	}
	err := b.scheduler.RemoveTask(ctx, chatID, id)
	switch {
	case errors.Is(err, store.ErrTaskNotFound):
		b.reply(ctx, chatID, fmt.Sprintf("未找到任务 %d", id))
	case err != nil:
		b.logger.WithError(err).WithField("task_id", id).Error("Failed to remove task")
		b.reply(ctx, chatID, "删除任务失败，请重试")
	default:
		b.reply(ctx, chatID, fmt.Sprintf("任务 %d 已删除", id))
	}
}

func (b *Bot) handleRunTask(ctx context.Context, chatID int64, args []string) {
	id, ok := parseTaskID(args)
	if !ok {
		b.reply(ctx, chatID, "参数错误，请使用格式：/run_task [任务ID]")
		return
	}
	task, err := b.scheduler.RunTask(ctx, chatID, id)
	switch {
	case errors.Is(err, store.ErrTaskNotFound):
		b.reply(ctx, chatID, fmt.Sprintf("未找到任务 %d", id))
	case err != nil:
		b.logger.WithError(err).WithField("task_id", id).Warn("Failed to run task")
		b.reply(ctx, chatID, busyNotice(err))
	default:
		b.reply(ctx, chatID, fmt.Sprintf("正在获取 @%s 的最新 %d 条推文...", task.TwitterUsername, task.TweetCount))
	}
}

func parseTaskID(args []string) (uint, bool) {
	if len(args) != 1 {
		return 0, false
	}
	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func busyNotice(err error) string {
	if errors.Is(err, jobs.ErrQueueFull) {
		return "⚠️ 当前任务过多，请稍后再试"
	}
	return fmt.Sprintf("❌ 获取推文时发生错误：%v", err)
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if err := b.sender.Send(ctx, chatID, text); err != nil {
		b.logger.WithError(err).WithField("chat_id", chatID).Warn("Failed to reply")
	}
}
