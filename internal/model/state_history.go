package model

import (
	"errors"
	"time"
)

// StateHistoryModel 状态变更历史数据模型
// 每次成功的状态迁移追加一条,构成任务的审计轨迹
type StateHistoryModel struct {
	ID        string    `gorm:"primaryKey;type:varchar(64)"`
	TaskID    string    `gorm:"type:varchar(64);not null;index"`
	FromState string    `gorm:"type:varchar(32)"`
	ToState   string    `gorm:"type:varchar(32);not null"`
	Reason    string    `gorm:"type:text"`
	UserID    string    `gorm:"type:varchar(64);index"` // 触发迁移的工作者或管理员
	Metadata  []byte    `gorm:"type:jsonb"` // 迁移上下文(蜜罐判定、共识占比等)
	CreatedAt time.Time `gorm:"not null;index"`
}

// TableName 指定表名
func (StateHistoryModel) TableName() string {
	return "state_history"
}

// Validate 验证状态历史模型
func (shm *StateHistoryModel) Validate() error {
	if shm.ID == "" {
		return errors.New("history ID is required")
	}
	if shm.TaskID == "" {
		return errors.New("task ID is required")
	}
	if shm.ToState == "" {
		return errors.New("to state is required")
	}
	return nil
}
