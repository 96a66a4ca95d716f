package model

import (
	"errors"
	"time"
)

// TaskModel 标注任务数据模型
type TaskModel struct {
	ID                  string     `gorm:"primaryKey;type:varchar(64)"`
	BatchID             string     `gorm:"type:varchar(64);index"` // 所属批次 ID
	Title               string     `gorm:"type:varchar(255)"`
	Payload             []byte     `gorm:"type:jsonb;not null"` // 标注素材(图片 URL、文本等)
	State               string     `gorm:"type:varchar(32);not null;index"` // 任务状态
	IsHoneypot          bool       `gorm:"not null;default:false;index"` // 蜜罐任务
	ExpectedLabel       string     `gorm:"type:varchar(255)"` // 蜜罐标准答案,普通任务为空
	Difficulty          string     `gorm:"type:varchar(16)"` // 蜜罐难度
	Points              int        `gorm:"type:int;default:0"`
	TrustBonus          int        `gorm:"type:int;default:0"`
	RequiredSubmissions int        `gorm:"type:int;not null;default:3"` // 达成共识所需提交数
	ConsensusThreshold  float64    `gorm:"type:decimal(4,3);not null;default:0.6"` // 多数派占比门槛
	ConsensusLevel      string     `gorm:"type:varchar(32);not null;default:'PENDING';index"` // 共识级别
	FinalAnswer         string     `gorm:"type:varchar(255)"` // 共识达成后的最终标签
	AssignedTo          string     `gorm:"type:varchar(64);index"` // 指派的工作者 ID
	CreatedBy           string     `gorm:"type:varchar(64);index"`
	CreatedAt           time.Time  `gorm:"not null;index"`
	UpdatedAt           time.Time  `gorm:"not null;index"`
	ExpiresAt           *time.Time `gorm:"index"` // 超过该时间未完成则过期
}

// TableName 指定表名
func (TaskModel) TableName() string {
	return "tasks"
}

// Validate 验证任务模型
func (tm *TaskModel) Validate() error {
	if tm.ID == "" {
		return errors.New("task ID is required")
	}
	if tm.State == "" {
		return errors.New("task state is required")
	}
	if len(tm.Payload) == 0 {
		return errors.New("task payload is required")
	}
	if tm.IsHoneypot {
		if tm.ExpectedLabel == "" {
			return errors.New("honeypot task requires expected label")
		}
		// 蜜罐永远由单个工作者判定,不允许携带多提交共识目标
		if tm.RequiredSubmissions > 1 {
			return errors.New("honeypot task cannot require multiple submissions")
		}
	}
	if !tm.IsHoneypot {
		if tm.RequiredSubmissions <= 0 {
			return errors.New("required submissions must be positive")
		}
		if tm.ConsensusThreshold <= 0 || tm.ConsensusThreshold > 1 {
			return errors.New("consensus threshold must be in (0,1]")
		}
	}
	return nil
}
