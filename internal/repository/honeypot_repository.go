package repository

import (
	"errors"
	"time"

	"github.com/crowdqc/quality-gin/internal/honeypot"
	"github.com/crowdqc/quality-gin/internal/model"
	"gorm.io/gorm"
)

// honeypotRepository 活跃蜜罐池的数据库实现
// Remove 做软删除(active=false),保留历史蜜罐定义供审计
type honeypotRepository struct {
	db *gorm.DB
}

// NewHoneypotRepository 创建蜜罐池仓储
func NewHoneypotRepository(db *gorm.DB) honeypot.Store {
	return &honeypotRepository{db: db}
}

func (r *honeypotRepository) Get(taskID string) (*honeypot.Honeypot, error) {
	var m model.HoneypotModel
	if err := r.db.Where("task_id = ? AND active = ?", taskID, true).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toHoneypot(&m), nil
}

func (r *honeypotRepository) ListActive() ([]*honeypot.Honeypot, error) {
	var models []*model.HoneypotModel
	if err := r.db.Where("active = ?", true).Find(&models).Error; err != nil {
		return nil, err
	}
	list := make([]*honeypot.Honeypot, 0, len(models))
	for _, m := range models {
		list = append(list, toHoneypot(m))
	}
	return list, nil
}

func (r *honeypotRepository) Add(hp *honeypot.Honeypot) error {
	if err := hp.Validate(); err != nil {
		return err
	}
	now := time.Now()
	m := &model.HoneypotModel{
		TaskID:        hp.TaskID,
		ExpectedLabel: hp.ExpectedLabel,
		Difficulty:    string(hp.Difficulty),
		Points:        hp.Points,
		TrustBonus:    hp.TrustBonus,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return r.db.Save(m).Error
}

func (r *honeypotRepository) Remove(taskID string) error {
	return r.db.Model(&model.HoneypotModel{}).
		Where("task_id = ?", taskID).
		Updates(map[string]interface{}{"active": false, "updated_at": time.Now()}).Error
}

// toHoneypot 数据模型转领域对象
func toHoneypot(m *model.HoneypotModel) *honeypot.Honeypot {
	return &honeypot.Honeypot{
		TaskID:        m.TaskID,
		ExpectedLabel: m.ExpectedLabel,
		Difficulty:    honeypot.Difficulty(m.Difficulty),
		Points:        m.Points,
		TrustBonus:    m.TrustBonus,
	}
}
