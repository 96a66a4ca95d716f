package model

import (
	"errors"
	"time"
)

// TrustRecordModel 工作者信任记录数据模型
// 每个工作者一行,蜜罐引擎在提交事务内更新
type TrustRecordModel struct {
	UserID         string     `gorm:"primaryKey;type:varchar(64)"`
	TotalAttempted int        `gorm:"type:int;not null;default:0"`
	TotalCorrect   int        `gorm:"type:int;not null;default:0"`
	AccuracyRate   float64    `gorm:"type:decimal(5,4);not null;default:0"`
	TrustScore     float64    `gorm:"type:decimal(6,2);not null;default:50"` // [0,100]
	Streak         int        `gorm:"type:int;not null;default:0"`
	BestStreak     int        `gorm:"type:int;not null;default:0"`
	AttemptsToday  int        `gorm:"type:int;not null;default:0"` // 按 UTC 日历日滚动
	LastHoneypotAt *time.Time `gorm:""`
	CreatedAt      time.Time  `gorm:"not null"`
	UpdatedAt      time.Time  `gorm:"not null;index"`
}

// TableName 指定表名
func (TrustRecordModel) TableName() string {
	return "trust_records"
}

// Validate 验证信任记录模型
func (trm *TrustRecordModel) Validate() error {
	if trm.UserID == "" {
		return errors.New("user ID is required")
	}
	if trm.TrustScore < 0 || trm.TrustScore > 100 {
		return errors.New("trust score must be in [0,100]")
	}
	if trm.TotalCorrect > trm.TotalAttempted {
		return errors.New("total correct cannot exceed total attempted")
	}
	return nil
}
