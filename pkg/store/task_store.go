// Package store persists scheduled digest tasks.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/lisanmuaddib/tweet-digest/pkg/db/models"
)

// ErrTaskNotFound is returned when no task matches the id and chat.
var ErrTaskNotFound = errors.New("task not found")

type TaskStore struct {
	mu     sync.RWMutex
	logger *logrus.Logger
	db     *gorm.DB
}

func NewTaskStore(logger *logrus.Logger, db *gorm.DB) (*TaskStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &TaskStore{
		logger: logger,
		db:     db,
	}, nil
}

// Create stores task and fills in its ID and creation time.
func (s *TaskStore) Create(ctx context.Context, task *models.ScheduledTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}

	if err := s.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"task_id":  task.ID,
		"chat_id":  task.ChatID,
		"handle":   task.TwitterUsername,
		"count":    task.TweetCount,
		"schedule": task.ScheduleTime,
	}).Info("Saved scheduled task")
	return nil
}

// ListByChat returns the tasks of one chat, oldest first.
func (s *TaskStore) ListByChat(ctx context.Context, chatID int64) ([]models.ScheduledTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tasks []models.ScheduledTask
	if err := s.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("id ASC").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

// All returns every stored task.
func (s *TaskStore) All(ctx context.Context) ([]models.ScheduledTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tasks []models.ScheduledTask
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("failed to load tasks: %w", err)
	}
	return tasks, nil
}

// Get returns the task with id owned by chatID.
func (s *TaskStore) Get(ctx context.Context, chatID int64, id uint) (*models.ScheduledTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var task models.ScheduledTask
	err := s.db.WithContext(ctx).
		Where("id = ? AND chat_id = ?", id, chatID).
		First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load task: %w", err)
	}
	return &task, nil
}

// Delete removes the task with id owned by chatID.
func (s *TaskStore) Delete(ctx context.Context, chatID int64, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := s.db.WithContext(ctx).
		Where("id = ? AND chat_id = ?", id, chatID).
		Delete(&models.ScheduledTask{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete task: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrTaskNotFound
	}

	s.logger.WithFields(logrus.Fields{
		"task_id": id,
		"chat_id": chatID,
	}).Info("Deleted scheduled task")
	return nil
}
