package model

import (
	"errors"
	"time"
)

// SubmissionModel 工作者提交数据模型
// (task_id, user_id) 唯一: 每个工作者对同一任务只能提交一次
type SubmissionModel struct {
	ID          string    `gorm:"primaryKey;type:varchar(64)"`
	TaskID      string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_task_user;index"`
	UserID      string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_task_user;index"`
	Answer      string    `gorm:"type:varchar(255);not null"` // 归一化后的标签
	Confidence  float64   `gorm:"type:decimal(4,3);default:0"`
	TimeSpentMs int64     `gorm:"type:bigint;default:0"` // 作答耗时
	IsCorrect   *bool     `gorm:""` // 共识裁决后回填,未裁决为 NULL
	SubmittedAt time.Time `gorm:"not null;index"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// TableName 指定表名
func (SubmissionModel) TableName() string {
	return "submissions"
}

// Validate 验证提交模型
func (sm *SubmissionModel) Validate() error {
	if sm.ID == "" {
		return errors.New("submission ID is required")
	}
	if sm.TaskID == "" {
		return errors.New("task ID is required")
	}
	if sm.UserID == "" {
		return errors.New("user ID is required")
	}
	if sm.Answer == "" {
		return errors.New("answer is required")
	}
	if sm.Confidence < 0 || sm.Confidence > 1 {
		return errors.New("confidence must be in [0,1]")
	}
	return nil
}
