package model

import (
	"errors"
	"time"
)

// HoneypotModel 活跃蜜罐池数据模型
// 与 tasks 表的蜜罐任务一一对应,Active=false 表示已退出池
type HoneypotModel struct {
	TaskID        string    `gorm:"primaryKey;type:varchar(64)"`
	ExpectedLabel string    `gorm:"type:varchar(255);not null"`
	Difficulty    string    `gorm:"type:varchar(16);not null;index"`
	Points        int       `gorm:"type:int;not null;default:0"`
	TrustBonus    int       `gorm:"type:int;not null;default:0"`
	Active        bool      `gorm:"not null;default:true;index"`
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

// TableName 指定表名
func (HoneypotModel) TableName() string {
	return "honeypots"
}

// Validate 验证蜜罐模型
func (hm *HoneypotModel) Validate() error {
	if hm.TaskID == "" {
		return errors.New("honeypot task ID is required")
	}
	if hm.ExpectedLabel == "" {
		return errors.New("expected label is required")
	}
	if hm.Difficulty == "" {
		return errors.New("difficulty is required")
	}
	if hm.Points < 0 || hm.TrustBonus < 0 {
		return errors.New("points and trust bonus must be non-negative")
	}
	return nil
}
