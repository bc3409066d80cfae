// Package scheduler fires persisted digest tasks once a day at their HH:MM time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/lisanmuaddib/tweet-digest/internal/env"
	"github.com/lisanmuaddib/tweet-digest/pkg/db/models"
	"github.com/lisanmuaddib/tweet-digest/pkg/digest"
	"github.com/lisanmuaddib/tweet-digest/pkg/jobs"
)

// DefaultTimezone is the zone task times are read in.
const DefaultTimezone = "Asia/Shanghai"

// ErrInvalidTime is returned for a schedule time that is not a valid HH:MM.
var ErrInvalidTime = errors.New("invalid schedule time")

var timePattern = regexp.MustCompile(`^(\d{1,2}):(\d{1,2})$`)

// TaskStore persists tasks.
type TaskStore interface {
	Create(ctx context.Context, task *models.ScheduledTask) error
	ListByChat(ctx context.Context, chatID int64) ([]models.ScheduledTask, error)
	All(ctx context.Context) ([]models.ScheduledTask, error)
	Get(ctx context.Context, chatID int64, id uint) (*models.ScheduledTask, error)
	Delete(ctx context.Context, chatID int64, id uint) error
}

// Submitter queues background work.
type Submitter interface {
	Submit(name string, run func(ctx context.Context) error, opts ...jobs.JobOption) (string, error)
}

type DigestRunner interface {
	Run(ctx context.Context, req digest.Request) error
}

type Config struct {
	Store    TaskStore
	Jobs     Submitter
	Digest   DigestRunner
	Location *time.Location
	Logger   *logrus.Logger
}

// NewConfig reads the scheduler timezone from SCHEDULER_TIMEZONE. The collaborators are left for the caller.
func NewConfig(logger *logrus.Logger) (*Config, error) {
	name := env.String("SCHEDULER_TIMEZONE", DefaultTimezone)
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", name, err)
	}
	return &Config{
		Location: loc,
		Logger:   logger,
	}, nil
}

// Scheduler keeps one cron entry per stored task.
type Scheduler struct {
	store    TaskStore
	jobs     Submitter
	digest   DigestRunner
	location *time.Location
	logger   *logrus.Logger
	cron     *cron.Cron

	mu      sync.Mutex
	entries map[uint]cron.EntryID

	done     chan struct{}
	stopOnce sync.Once
}

func New(config *Config) (*Scheduler, error) {
	if config.Store == nil {
		return nil, fmt.Errorf("task store is required")
	}
	if config.Jobs == nil {
		return nil, fmt.Errorf("job submitter is required")
	}
	if config.Digest == nil {
		return nil, fmt.Errorf("digest runner is required")
	}
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	if config.Location == nil {
		config.Location = time.Local
	}

	return &Scheduler{
		store:    config.Store,
		jobs:     config.Jobs,
		digest:   config.Digest,
		location: config.Location,
		logger:   config.Logger,
		cron:     cron.New(cron.WithLocation(config.Location)),
		entries:  make(map[uint]cron.EntryID),
		done:     make(chan struct{}),
	}, nil
}

// Name implements actions.Action.
func (s *Scheduler) Name() string {
	return "task_scheduler"
}

// Execute registers every stored task, starts firing and blocks until ctx is done or Stop is called.
func (s *Scheduler) Execute(ctx context.Context) error {
	if err := s.Load(ctx); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.WithFields(logrus.Fields{
		"tasks":    s.Len(),
		"timezone": s.location.String(),
	}).Info("Scheduler started")

	select {
	case <-ctx.Done():
	case <-s.done:
	}

	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
	return nil
}

// Stop ends Execute. It is safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
}

// Load registers a cron entry for every stored task. Tasks with an unreadable time are skipped.
func (s *Scheduler) Load(ctx context.Context) error {
	tasks, err := s.store.All(ctx)
	if err != nil {
		return fmt.Errorf("failed to load tasks: %w", err)
	}
	for _, task := range tasks {
		if err := s.register(task); err != nil {
			s.logger.WithFields(logrus.Fields{
				"task_id": task.ID,
				"error":   err,
			}).Warn("Skipping stored task")
		}
	}
	return nil
}

// AddTask persists a daily task for chatID and starts firing it at at (HH:MM).
func (s *Scheduler) AddTask(ctx context.Context, chatID int64, handle string, count int, at string) (*models.ScheduledTask, error) {
	normalized, err := NormalizeTime(at)
	if err != nil {
		return nil, err
	}
	if count <= 0 {
		return nil, fmt.Errorf("tweet count must be positive, got %d", count)
	}

	task := &models.ScheduledTask{
		ChatID:          chatID,
		TwitterUsername: handle,
		TweetCount:      count,
		ScheduleTime:    normalized,
	}
	if err := s.store.Create(ctx, task); err != nil {
		return nil, err
	}

	if err := s.register(*task); err != nil {
		if delErr := s.store.Delete(ctx, chatID, task.ID); delErr != nil {
			s.logger.WithError(delErr).WithField("task_id", task.ID).Error("Failed to roll back task")
		}
		return nil, err
	}
	return task, nil
}

// RemoveTask deletes one of chatID's tasks and its cron entry.
func (s *Scheduler) RemoveTask(ctx context.Context, chatID int64, id uint) error {
	if err := s.store.Delete(ctx, chatID, id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.entries[id]; ok {
		s.cron.Remove(entry)
		delete(s.entries, id)
	}
	return nil
}

// Tasks lists chatID's tasks.
func (s *Scheduler) Tasks(ctx context.Context, chatID int64) ([]models.ScheduledTask, error) {
	return s.store.ListByChat(ctx, chatID)
}

// RunTask fires one of chatID's tasks now.
func (s *Scheduler) RunTask(ctx context.Context, chatID int64, id uint) (*models.ScheduledTask, error) {
	task, err := s.store.Get(ctx, chatID, id)
	if err != nil {
		return nil, err
	}
	if err := s.fire(*task, digest.TriggerOnDemand); err != nil {
		return nil, err
	}
	return task, nil
}

// Len returns the number of registered entries.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// NextRun returns the next firing time of task id.
func (s *Scheduler) NextRun(id uint) (time.Time, bool) {
	s.mu.Lock()
	entryID, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	entry := s.cron.Entry(entryID)
	if !entry.Valid() {
		return time.Time{}, false
	}
	return entry.Schedule.Next(time.Now().In(s.location)), true
}

func (s *Scheduler) register(task models.ScheduledTask) error {
	hour, minute, err := ParseTime(task.ScheduleTime)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[task.ID]; ok {
		s.cron.Remove(old)
	}
	entry, err := s.cron.AddFunc(fmt.Sprintf("%d %d * * *", minute, hour), func() {
		if err := s.fire(task, digest.TriggerScheduled); err != nil {
			s.logger.WithFields(logrus.Fields{
				"task_id": task.ID,
				"error":   err,
			}).Error("Failed to fire scheduled task")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule task: %w", err)
	}
	s.entries[task.ID] = entry

	s.logger.WithFields(logrus.Fields{
		"task_id":  task.ID,
		"chat_id":  task.ChatID,
		"handle":   task.TwitterUsername,
		"schedule": task.ScheduleTime,
	}).Debug("Registered task")
	return nil
}

func (s *Scheduler) fire(task models.ScheduledTask, trigger digest.Trigger) error {
	req := digest.Request{
		ChatID:  task.ChatID,
		Handle:  task.TwitterUsername,
		Count:   task.TweetCount,
		Trigger: trigger,
	}
	jobID, err := s.jobs.Submit("digest:"+task.TwitterUsername, func(ctx context.Context) error {
		return s.digest.Run(ctx, req)
	})
	if err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"task_id": task.ID,
		"job_id":  jobID,
		"trigger": trigger,
	}).Info("Task fired")
	return nil
}

// ParseTime reads an HH:MM time of day. One-digit hours and minutes are accepted.
func ParseTime(value string) (hour, minute int, err error) {
	m := timePattern.FindStringSubmatch(value)
	if m == nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, value)
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	if hour > 23 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, value)
	}
	return hour, minute, nil
}

// NormalizeTime returns value as zero-padded HH:MM.
func NormalizeTime(value string) (string, error) {
	hour, minute, err := ParseTime(value)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), nil
}
