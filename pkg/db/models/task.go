package models

import (
	"fmt"
	"time"
)

// ScheduledTask is a chat's daily digest subscription
type ScheduledTask struct {
	ID              uint   `gorm:"primaryKey;column:id" json:"id"`
	ChatID          int64  `gorm:"column:chat_id;not null;index" json:"chat_id"`
	TwitterUsername string `gorm:"column:twitter_username;size:64;not null" json:"twitter_username"`
	TweetCount      int    `gorm:"column:tweet_count;not null" json:"tweet_count"`
	// ScheduleTime is the daily firing time as HH:MM in the scheduler's timezone
	ScheduleTime string    `gorm:"column:schedule_time;size:5;not null" json:"schedule_time"`
	CreatedAt    time.Time `gorm:"column:created_at;not null" json:"created_at"`
}

// TableName specifies the table name for GORM
func (ScheduledTask) TableName() string {
	return "scheduled_tasks"
}

func (t ScheduledTask) String() string {
	return fmt.Sprintf("<Task %s at %s>", t.TwitterUsername, t.ScheduleTime)
}
