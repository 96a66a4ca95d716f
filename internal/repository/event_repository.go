package repository

import (
	"time"

	"github.com/crowdqc/quality-gin/internal/eventbus"
	"github.com/crowdqc/quality-gin/internal/model"
	"gorm.io/gorm"
)

// EventRepository 事件发件箱仓储接口
// 实现 eventbus.Outbox,事件先落库再投递
type EventRepository interface {
	eventbus.Outbox
	FindByTaskID(taskID string) ([]*model.EventModel, error)
	FindPending(limit int) ([]*model.EventModel, error)
}

// eventRepository 事件仓储实现
type eventRepository struct {
	db *gorm.DB
}

// NewEventRepository 创建事件仓储
func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

// Save 持久化事件,投递状态初始为 pending
func (r *eventRepository) Save(evt *eventbus.Event) error {
	now := time.Now()
	m := &model.EventModel{
		ID:        evt.ID,
		TaskID:    evt.TaskID,
		UserID:    evt.UserID,
		Type:      string(evt.Type),
		Data:      evt.Payload,
		Status:    model.EventStatusPending,
		CreatedAt: evt.CreatedAt,
		UpdatedAt: now,
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	return r.db.Create(m).Error
}

// MarkDelivered 标记事件已成功投递给全部订阅者
func (r *eventRepository) MarkDelivered(eventID string) error {
	now := time.Now()
	return r.db.Model(&model.EventModel{}).
		Where("id = ?", eventID).
		Updates(map[string]interface{}{
			"status":       model.EventStatusDelivered,
			"delivered_at": now,
			"updated_at":   now,
		}).Error
}

// MarkFailed 标记事件重试耗尽后投递失败
func (r *eventRepository) MarkFailed(eventID string) error {
	return r.db.Model(&model.EventModel{}).
		Where("id = ?", eventID).
		Updates(map[string]interface{}{
			"status":      model.EventStatusFailed,
			"retry_count": gorm.Expr("retry_count + 1"),
			"updated_at":  time.Now(),
		}).Error
}

// FindByTaskID 根据任务 ID 查找事件
func (r *eventRepository) FindByTaskID(taskID string) ([]*model.EventModel, error) {
	var events []*model.EventModel
	err := r.db.Where("task_id = ?", taskID).Order("created_at ASC").Find(&events).Error
	return events, err
}

// FindPending 查找尚未投递的事件,用于启动时补发
func (r *eventRepository) FindPending(limit int) ([]*model.EventModel, error) {
	var events []*model.EventModel
	query := r.db.Where("status = ?", model.EventStatusPending).Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&events).Error
	return events, err
}
