package digest_test

import (
	"context"
	"errors"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/lisanmuaddib/tweet-digest/pkg/digest"
	"github.com/lisanmuaddib/tweet-digest/pkg/nitter"
	"github.com/lisanmuaddib/tweet-digest/pkg/summarize"
)

type fakeRetriever struct {
	posts  []nitter.Post
	err    error
	handle string
	count  int
}

func (f *fakeRetriever) Retrieve(_ context.Context, handle string, count int) ([]nitter.Post, error) {
	f.handle, f.count = handle, count
	return f.posts, f.err
}

type fakeSummarizer struct {
	pages []string
	err   error
	calls int
}

func (f *fakeSummarizer) Summarize(_ context.Context, handle string, _ []nitter.Post) (*summarize.Summary, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &summarize.Summary{Handle: handle, Pages: f.pages}, nil
}

type recordingSender struct {
	mu       sync.Mutex
	messages []string
	failAt   map[int]error
}

func (s *recordingSender) Send(_ context.Context, _ int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failAt[len(s.messages)]; err != nil {
		s.messages = append(s.messages, "")
		return err
	}
	s.messages = append(s.messages, text)
	return nil
}

var _ = Describe("Runner", func() {
	var (
		retriever  *fakeRetriever
		summarizer *fakeSummarizer
		sender     *recordingSender
		runner     *digest.Runner
		ctx        context.Context
	)

	posts := []nitter.Post{
		{Text: "newest", Timestamp: "Oct 3", Stats: map[nitter.StatKind]int{nitter.StatLikes: 10, nitter.StatRetweets: 2}},
		{Text: "middle", Timestamp: "Oct 2", Stats: map[nitter.StatKind]int{nitter.StatLikes: 5}},
		{Text: "oldest", Timestamp: "Oct 1"},
	}

	BeforeEach(func() {
		retriever = &fakeRetriever{posts: posts}
		summarizer = &fakeSummarizer{pages: []string{"page one", "page two"}}
		sender = &recordingSender{failAt: map[int]error{}}
		ctx = context.Background()
	})

	JustBeforeEach(func() {
		logger := logrus.New()
		logger.SetOutput(GinkgoWriter)
		var err error
		runner, err = digest.NewRunner(digest.Config{
			Retriever:  retriever,
			Summarizer: summarizer,
			Sender:     sender,
			Logger:     logger,
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("should send the brief, the summary pages and the link hint", func() {
		err := runner.Run(ctx, digest.Request{ChatID: 7, Handle: "@jack", Count: 3, Trigger: digest.TriggerOnDemand})
		Expect(err).NotTo(HaveOccurred())

		Expect(retriever.handle).To(Equal("jack"))
		Expect(retriever.count).To(Equal(3))
		Expect(sender.messages).To(HaveLen(5))
		Expect(sender.messages[0]).To(ContainSubstring("已获取 @jack 的 3 条推文"))
		Expect(sender.messages[1]).To(Equal("🤖 正在生成AI总结..."))
		Expect(sender.messages[2:4]).To(Equal([]string{"page one", "page two"}))
		Expect(sender.messages[4]).To(HaveSuffix("https://twitter.com/jack"))
	})

	It("should skip the progress notice for scheduled runs", func() {
		Expect(runner.Run(ctx, digest.Request{ChatID: 7, Handle: "jack", Count: 3, Trigger: digest.TriggerScheduled})).To(Succeed())
		Expect(sender.messages).NotTo(ContainElement("🤖 正在生成AI总结..."))
		Expect(sender.messages).To(HaveLen(4))
	})

	Context("when no posts are found", func() {
		BeforeEach(func() {
			retriever.posts = nil
		})

		It("should tell the chat and skip the summary", func() {
			Expect(runner.Run(ctx, digest.Request{ChatID: 7, Handle: "ghost", Count: 3})).To(Succeed())
			Expect(sender.messages).To(Equal([]string{"❌ 未能找到 @ghost 的推文，请检查用户名是否正确或稍后重试"}))
			Expect(summarizer.calls).To(BeZero())
		})
	})

	Context("when the handle is rejected", func() {
		BeforeEach(func() {
			retriever.err = nitter.ErrInvalidHandle
		})

		It("should report the error to the chat", func() {
			Expect(runner.Run(ctx, digest.Request{ChatID: 7, Handle: "bad handle", Count: 3})).To(Succeed())
			Expect(sender.messages).To(HaveLen(1))
			Expect(sender.messages[0]).To(HavePrefix("❌ 获取推文时发生错误："))
		})
	})

	Context("when the summarizer fails", func() {
		BeforeEach(func() {
			summarizer.err = summarize.ErrRateLimited
		})

		It("should keep the brief and send a notice", func() {
			Expect(runner.Run(ctx, digest.Request{ChatID: 7, Handle: "jack", Count: 3, Trigger: digest.TriggerOnDemand})).To(Succeed())
			Expect(sender.messages[0]).To(ContainSubstring("总点赞：15"))
			Expect(sender.messages).To(ContainElement("⚠️ *请求过于频繁，请稍后再试*"))
			Expect(sender.messages[len(sender.messages)-1]).To(HaveSuffix("https://twitter.com/jack"))
		})
	})

	Context("without a summarizer", func() {
		JustBeforeEach(func() {
			var err error
			runner, err = digest.NewRunner(digest.Config{Retriever: retriever, Sender: sender})
			Expect(err).NotTo(HaveOccurred())
		})

		It("should send only the brief and the link hint", func() {
			Expect(runner.Run(ctx, digest.Request{ChatID: 7, Handle: "jack", Count: 3, Trigger: digest.TriggerOnDemand})).To(Succeed())
			Expect(sender.messages).To(HaveLen(2))
		})
	})

	Context("when the first message cannot be sent", func() {
		BeforeEach(func() {
			sender.failAt[0] = errors.New("chat not found")
		})

		It("should return the error", func() {
			err := runner.Run(ctx, digest.Request{ChatID: 7, Handle: "jack", Count: 3})
			Expect(err).To(MatchError(ContainSubstring("chat not found")))
			Expect(summarizer.calls).To(BeZero())
		})
	})

	Context("when a later message cannot be sent", func() {
		BeforeEach(func() {
			sender.failAt[2] = errors.New("flood")
		})

		It("should carry on", func() {
			Expect(runner.Run(ctx, digest.Request{ChatID: 7, Handle: "jack", Count: 3, Trigger: digest.TriggerOnDemand})).To(Succeed())
			Expect(sender.messages).To(HaveLen(5))
		})
	})

	It("should require a retriever and a sender", func() {
		_, err := digest.NewRunner(digest.Config{Sender: sender})
		Expect(err).To(HaveOccurred())
		_, err = digest.NewRunner(digest.Config{Retriever: retriever})
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Brief", func() {
	It("should span the oldest to the newest post", func() {
		brief := digest.Brief("jack", []nitter.Post{
			{Text: "b", Timestamp: "2h", Stats: map[nitter.StatKind]int{nitter.StatRetweets: 4}},
			{Text: "a", Timestamp: nitter.UnknownTime},
		})

		Expect(brief).To(Equal("✅ 已获取 @jack 的 2 条推文\n" +
			"📅 时间范围：Unknown time 至 2h\n" +
			"📊 总体数据：\n" +
			"❤️ 总点赞：0\n" +
			"🔄 总转发：4"))
	})
})
