package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"
)

var _ = Describe("Dispatcher", func() {
	var (
		config     *Config
		dispatcher *Dispatcher
		cancel     context.CancelFunc
		stopped    chan struct{}
	)

	BeforeEach(func() {
		cancel = nil
		logger := logrus.New()
		logger.SetOutput(GinkgoWriter)
		config = &Config{
			WorkerCount:    2,
			QueueSize:      4,
			MaxRetries:     2,
			RetryBackoffMs: 1,
			StatusInterval: time.Hour,
			Logger:         logger,
		}
		Expect(config.Validate()).To(Succeed())
	})

	start := func() {
		dispatcher = NewDispatcher(config)
		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		stopped = make(chan struct{})
		go func() {
			defer close(stopped)
			dispatcher.Execute(ctx)
		}()
	}

	AfterEach(func() {
		if cancel != nil {
			cancel()
			Eventually(stopped).Should(BeClosed())
		}
	})

	Context("when a job succeeds", func() {
		It("should run it once and mark it complete", func() {
			start()
			var runs atomic.Int32

			id, err := dispatcher.Submit("ok", func(ctx context.Context) error {
				runs.Add(1)
				return nil
			})
			Expect(err).NotTo(HaveOccurred())

			Eventually(func() Status {
				job, _ := dispatcher.Job(id)
				return job.Status
			}).Should(Equal(StatusComplete))
			Expect(runs.Load()).To(Equal(int32(1)))
			Expect(dispatcher.Status().Completed).To(Equal(1))
		})
	})

	Context("when a job keeps failing", func() {
		It("should retry up to the limit and then fail", func() {
			start()
			var runs atomic.Int32

			id, err := dispatcher.Submit("flaky", func(ctx context.Context) error {
				runs.Add(1)
				return errors.New("mirror down")
			})
			Expect(err).NotTo(HaveOccurred())

			Eventually(func() Status {
				job, _ := dispatcher.Job(id)
				return job.Status
			}).Should(Equal(StatusFailed))

			job, _ := dispatcher.Job(id)
			Expect(runs.Load()).To(Equal(int32(3)))
			Expect(job.RetryCount).To(Equal(2))
			Expect(job.LastError).To(Equal("mirror down"))
			Expect(dispatcher.Status().Failed).To(Equal(1))
			Expect(dispatcher.Status().Retrying).To(BeZero())
		})

		It("should honor a per-job retry override", func() {
			start()
			var runs atomic.Int32

			id, _ := dispatcher.Submit("once", func(ctx context.Context) error {
				runs.Add(1)
				return errors.New("no")
			}, WithMaxRetries(0))

			Eventually(func() Status {
				job, _ := dispatcher.Job(id)
				return job.Status
			}).Should(Equal(StatusFailed))
			Consistently(runs.Load, 50*time.Millisecond).Should(Equal(int32(1)))
		})

		It("should recover from a panicking job", func() {
			start()

			id, _ := dispatcher.Submit("panics", func(ctx context.Context) error {
				panic("bad")
			}, WithMaxRetries(0))

			Eventually(func() string {
				job, _ := dispatcher.Job(id)
				return job.LastError
			}).Should(ContainSubstring("panicked"))
		})
	})

	Context("when the queue is full", func() {
		It("should reject new jobs", func() {
			dispatcher = NewDispatcher(config)
			noop := func(ctx context.Context) error { return nil }

			for i := 0; i < config.QueueSize; i++ {
				_, err := dispatcher.Submit("fill", noop)
				Expect(err).NotTo(HaveOccurred())
			}
			_, err := dispatcher.Submit("overflow", noop)
			Expect(err).To(MatchError(ErrQueueFull))
		})
	})

	Context("when stopped", func() {
		It("should cancel running jobs and reject new ones", func() {
			start()
			started := make(chan struct{})
			var sawCancel atomic.Bool

			dispatcher.Submit("long", func(ctx context.Context) error {
				close(started)
				<-ctx.Done()
				sawCancel.Store(true)
				return ctx.Err()
			})
			Eventually(started).Should(BeClosed())

			cancel()
			Eventually(stopped).Should(BeClosed())
			Expect(sawCancel.Load()).To(BeTrue())

			_, err := dispatcher.Submit("late", func(ctx context.Context) error { return nil })
			Expect(err).To(MatchError(ErrStopped))
		})
	})
})

var _ = DescribeTable("calculateBackoff",
	func(retry, base int, want time.Duration) {
		Expect(calculateBackoff(retry, base)).To(Equal(want))
	},
	Entry("clamps to the minimum", 1, 1, 100*time.Millisecond),
	Entry("doubles per retry", 2, 1000, 4*time.Second),
	Entry("clamps to the maximum", 10, 1000, 30*time.Second),
)
