package model

import (
	"errors"
	"time"
)

// EventModel 事件发件箱数据模型
// 事件先落库再投递,保证至少一次语义
type EventModel struct {
	ID          string     `gorm:"primaryKey;type:varchar(64)"`
	TaskID      string     `gorm:"type:varchar(64);not null;index"`
	UserID      string     `gorm:"type:varchar(64);index"`
	Type        string     `gorm:"type:varchar(64);not null;index"`
	Data        []byte     `gorm:"type:jsonb;not null"` // 序列化后的事件负载
	Status      string     `gorm:"type:varchar(32);not null;default:'pending';index"` // pending/delivered/failed
	RetryCount  int        `gorm:"type:int;default:0"`
	LastError   string     `gorm:"type:text"` // 最后一次投递失败原因
	DeliveredAt *time.Time `gorm:""`
	CreatedAt   time.Time  `gorm:"not null;index"`
	UpdatedAt   time.Time  `gorm:"not null"`
}

// 事件投递状态
const (
	EventStatusPending   = "pending"
	EventStatusDelivered = "delivered"
	EventStatusFailed    = "failed"
)

// TableName 指定表名
func (EventModel) TableName() string {
	return "events"
}

// Validate 验证事件模型
func (em *EventModel) Validate() error {
	if em.ID == "" {
		return errors.New("event ID is required")
	}
	if em.TaskID == "" {
		return errors.New("task ID is required")
	}
	if em.Type == "" {
		return errors.New("event type is required")
	}
	if len(em.Data) == 0 {
		return errors.New("event data is required")
	}
	if em.Status == "" {
		em.Status = EventStatusPending
	}
	return nil
}
