package telegram_test

import (
	"context"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/lisanmuaddib/tweet-digest/pkg/db/models"
	"github.com/lisanmuaddib/tweet-digest/pkg/digest"
	"github.com/lisanmuaddib/tweet-digest/pkg/jobs"
	"github.com/lisanmuaddib/tweet-digest/pkg/scheduler"
	"github.com/lisanmuaddib/tweet-digest/pkg/store"
	"github.com/lisanmuaddib/tweet-digest/pkg/telegram"
)

type chatLog struct {
	mu       sync.Mutex
	messages []string
}

func (c *chatLog) Send(_ context.Context, _ int64, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, text)
	return nil
}

func (c *chatLog) Last() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.messages) == 0 {
		return ""
	}
	return c.messages[len(c.messages)-1]
}

type memoryScheduler struct {
	tasks []models.ScheduledTask
	ran   []uint
}

func (m *memoryScheduler) AddTask(_ context.Context, chatID int64, handle string, count int, at string) (*models.ScheduledTask, error) {
	normalized, err := scheduler.NormalizeTime(at)
	if err != nil {
		return nil, err
	}
	task := models.ScheduledTask{
		ID:              uint(len(m.tasks) + 1),
		ChatID:          chatID,
		TwitterUsername: handle,
		TweetCount:      count,
		ScheduleTime:    normalized,
	}
	m.tasks = append(m.tasks, task)
	return &task, nil
}

func (m *memoryScheduler) find(chatID int64, id uint) int {
	for i, t := range m.tasks {
		if t.ID == id && t.ChatID == chatID {
			return i
		}
	}
	return -1
}

func (m *memoryScheduler) RemoveTask(_ context.Context, chatID int64, id uint) error {
	i := m.find(chatID, id)
	if i < 0 {
		return store.ErrTaskNotFound
	}
	m.tasks = append(m.tasks[:i], m.tasks[i+1:]...)
	return nil
}

func (m *memoryScheduler) Tasks(_ context.Context, chatID int64) ([]models.ScheduledTask, error) {
	var out []models.ScheduledTask
	for _, t := range m.tasks {
		if t.ChatID == chatID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memoryScheduler) RunTask(_ context.Context, chatID int64, id uint) (*models.ScheduledTask, error) {
	i := m.find(chatID, id)
	if i < 0 {
		return nil, store.ErrTaskNotFound
	}
	m.ran = append(m.ran, id)
	return &m.tasks[i], nil
}

type queuedJobs struct {
	names []string
	runs  []func(ctx context.Context) error
	err   error
}

func (q *queuedJobs) Submit(name string, run func(ctx context.Context) error, _ ...jobs.JobOption) (string, error) {
	if q.err != nil {
		return "", q.err
	}
	q.names = append(q.names, name)
	q.runs = append(q.runs, run)
	return "job", nil
}

type requestLog struct {
	requests []digest.Request
}

func (r *requestLog) Run(_ context.Context, req digest.Request) error {
	r.requests = append(r.requests, req)
	return nil
}

const chatID int64 = 100

func command(text string) tgbotapi.Update {
	name := text
	if i := strings.Index(text, " "); i >= 0 {
		name = text[:i]
	}
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Text: text,
		Chat: &tgbotapi.Chat{ID: chatID},
		From: &tgbotapi.User{ID: 1},
		Entities: []tgbotapi.MessageEntity{{
			Type:   "bot_command",
			Offset: 0,
			Length: len(name),
		}},
	}}
}

func text(s string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Text: s,
		Chat: &tgbotapi.Chat{ID: chatID},
		From: &tgbotapi.User{ID: 1},
	}}
}

var _ = Describe("Bot", func() {
	var (
		chat   *chatLog
		sched  *memoryScheduler
		queue  *queuedJobs
		runner *requestLog
		bot    *telegram.Bot
		ctx    context.Context
	)

	BeforeEach(func() {
		logger := logrus.New()
		logger.SetOutput(GinkgoWriter)

		chat = &chatLog{}
		sched = &memoryScheduler{}
		queue = &queuedJobs{}
		runner = &requestLog{}

		var err error
		bot, err = telegram.NewBot(telegram.BotConfig{
			Sender:    chat,
			Scheduler: sched,
			Jobs:      queue,
			Digest:    runner,
			MaxTweets: 21,
			Logger:    logger,
		})
		Expect(err).NotTo(HaveOccurred())
		ctx = context.Background()
	})

	send := func(updates ...tgbotapi.Update) {
		for _, u := range updates {
			bot.ProcessUpdate(ctx, u)
		}
	}

	It("should greet on /start and /help", func() {
		send(command("/start"))
		Expect(chat.Last()).To(ContainSubstring("/get_tweets [用户名] [数量]"))
		send(command("/help"))
		Expect(chat.messages).To(HaveLen(2))
	})

	It("should answer unknown commands", func() {
		send(command("/nope"))
		Expect(chat.Last()).To(ContainSubstring("/help"))
	})

	It("should ignore updates without a message", func() {
		send(tgbotapi.Update{UpdateID: 1})
		Expect(chat.messages).To(BeEmpty())
	})

	Describe("/get_tweets", func() {
		It("should acknowledge and queue a digest job", func() {
			send(command("/get_tweets @jack 5"))

			Expect(chat.messages).To(Equal([]string{"正在获取 @jack 的最新 5 条推文..."}))
			Expect(queue.names).To(Equal([]string{"digest:jack"}))

			Expect(queue.runs[0](ctx)).To(Succeed())
			Expect(runner.requests).To(Equal([]digest.Request{{
				ChatID:  chatID,
				Handle:  "jack",
				Count:   5,
				Trigger: digest.TriggerOnDemand,
			}}))
		})

		It("should clamp large counts with a notice", func() {
			send(command("/get_tweets jack 100"))

			Expect(chat.messages[0]).To(ContainSubstring("21"))
			Expect(chat.Last()).To(Equal("正在获取 @jack 的最新 21 条推文..."))
			queue.runs[0](ctx)
			Expect(runner.requests[0].Count).To(Equal(21))
		})

		DescribeTable("should reject bad arguments without queueing",
			func(line, reply string) {
				send(command(line))
				Expect(chat.Last()).To(ContainSubstring(reply))
				Expect(queue.names).To(BeEmpty())
			},
			Entry("no arguments", "/get_tweets", "参数错误"),
			Entry("one argument", "/get_tweets jack", "参数错误"),
			Entry("three arguments", "/get_tweets jack 5 6", "参数错误"),
			Entry("non-numeric count", "/get_tweets jack five", "正整数"),
			Entry("zero count", "/get_tweets jack 0", "正整数"),
			Entry("bad handle", "/get_tweets ../etc 5", "用户名无效"),
		)

		It("should report a full queue", func() {
			queue.err = jobs.ErrQueueFull
			send(command("/get_tweets jack 5"))
			Expect(chat.Last()).To(ContainSubstring("任务过多"))
		})
	})

	Describe("/schedule", func() {
		It("should walk through handle, count and time", func() {
			send(command("/schedule"))
			Expect(chat.Last()).To(Equal("请输入要监控的Twitter用户名："))
			send(text("@jack"))
			Expect(chat.Last()).To(Equal("请输入要获取的推文数量："))
			send(text("5"))
			Expect(chat.Last()).To(Equal("请输入执行时间（HH:MM）："))
			send(text("9:30"))
			Expect(chat.Last()).To(Equal("定时任务已设置！\n将在每天 09:30 获取 @jack 的 5 条推文"))

			Expect(sched.tasks).To(HaveLen(1))
			Expect(sched.tasks[0].ChatID).To(Equal(chatID))
		})

		It("should re-prompt on a bad time and stay in the time step", func() {
			send(command("/schedule"), text("jack"), text("5"), text("25:00"))
			Expect(chat.Last()).To(Equal("时间格式错误，请使用HH:MM格式（如：09:00）"))
			Expect(sched.tasks).To(BeEmpty())

			send(text("08:00"))
			Expect(sched.tasks).To(HaveLen(1))
		})

		It("should re-prompt on a bad count", func() {
			send(command("/schedule"), text("jack"), text("lots"))
			Expect(chat.Last()).To(ContainSubstring("正整数"))

			send(text("3"))
			Expect(chat.Last()).To(Equal("请输入执行时间（HH:MM）："))
		})

		It("should abort on /cancel", func() {
			send(command("/schedule"), text("jack"), command("/cancel"))
			Expect(chat.Last()).To(Equal("操作已取消。"))

			send(text("5"), text("09:00"))
			Expect(sched.tasks).To(BeEmpty())
		})

		It("should say when there is nothing to cancel", func() {
			send(command("/cancel"))
			Expect(chat.Last()).To(Equal("当前没有进行中的操作。"))
		})

		It("should ignore plain text outside a conversation", func() {
			send(text("hello"))
			Expect(chat.messages).To(BeEmpty())
		})
	})

	Describe("task commands", func() {
		BeforeEach(func() {
			sched.AddTask(ctx, chatID, "jack", 5, "09:00")
			sched.AddTask(ctx, 999, "other", 3, "10:00")
		})

		It("should list only this chat's tasks", func() {
			send(command("/list_tasks"))
			Expect(chat.Last()).To(Equal("当前的定时任务：\n\n" +
				"ID: 1\n用户: @jack\n数量: 5\n时间: 09:00\n-------------------\n"))
		})

		It("should say when there are no tasks", func() {
			sched.tasks = nil
			send(command("/list_tasks"))
			Expect(chat.Last()).To(Equal("当前没有定时任务"))
		})

		It("should delete a task", func() {
			send(command("/delete_task 1"))
			Expect(chat.Last()).To(Equal("任务 1 已删除"))
			Expect(sched.tasks).To(HaveLen(1))
		})

		It("should not delete another chat's task", func() {
			send(command("/delete_task 2"))
			Expect(chat.Last()).To(Equal("未找到任务 2"))
			Expect(sched.tasks).To(HaveLen(2))
		})

		It("should validate the task id", func() {
			send(command("/delete_task abc"))
			Expect(chat.Last()).To(ContainSubstring("参数错误"))
			send(command("/run_task"))
			Expect(chat.Last()).To(ContainSubstring("参数错误"))
		})

		It("should run a task now", func() {
			send(command("/run_task 1"))
			Expect(sched.ran).To(Equal([]uint{1}))
			Expect(chat.Last()).To(Equal("正在获取 @jack 的最新 5 条推文..."))
		})
	})
})
