package repository

import (
	"encoding/json"
	"time"

	"github.com/crowdqc/quality-gin/internal/model"
	"github.com/crowdqc/quality-gin/internal/statemachine"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StateHistoryRepository 状态历史仓储接口
type StateHistoryRepository interface {
	Save(history *model.StateHistoryModel) error
	// Record 把一次状态迁移追加为历史记录
	Record(change *statemachine.Change) error
	FindByTaskID(taskID string) ([]*model.StateHistoryModel, error)
}

// stateHistoryRepository 状态历史仓储实现
type stateHistoryRepository struct {
	db *gorm.DB
}

// NewStateHistoryRepository 创建状态历史仓储
func NewStateHistoryRepository(db *gorm.DB) StateHistoryRepository {
	return &stateHistoryRepository{db: db}
}

// Save 保存状态历史
func (r *stateHistoryRepository) Save(history *model.StateHistoryModel) error {
	return r.db.Save(history).Error
}

// Record 把状态机的迁移记录落库
func (r *stateHistoryRepository) Record(change *statemachine.Change) error {
	history := &model.StateHistoryModel{
		ID:        uuid.New().String(),
		FromState: string(change.From),
		ToState:   string(change.To),
		CreatedAt: change.Time,
	}
	if change.Context != nil {
		history.TaskID = change.Context.TaskID
		history.UserID = change.Context.UserID
		history.Reason = change.Context.Reason
		if len(change.Context.Metadata) > 0 {
			data, err := json.Marshal(change.Context.Metadata)
			if err != nil {
				return err
			}
			history.Metadata = data
		}
	}
	if history.CreatedAt.IsZero() {
		history.CreatedAt = time.Now()
	}
	return r.db.Create(history).Error
}

// FindByTaskID 根据任务 ID 查找状态历史
func (r *stateHistoryRepository) FindByTaskID(taskID string) ([]*model.StateHistoryModel, error) {
	var histories []*model.StateHistoryModel
	err := r.db.Where("task_id = ?", taskID).Order("created_at ASC").Find(&histories).Error
	return histories, err
}
