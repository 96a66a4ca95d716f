package repository

import (
	"errors"
	"time"

	"github.com/crowdqc/quality-gin/internal/honeypot"
	"github.com/crowdqc/quality-gin/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// trustRepository 信任账本的数据库实现
// Update 在事务内用行级锁读-改-写,同一工作者的并发更新在数据库层串行化
type trustRepository struct {
	db *gorm.DB
}

// NewTrustRepository 创建信任账本仓储
func NewTrustRepository(db *gorm.DB) honeypot.TrustLedger {
	return &trustRepository{db: db}
}

func (r *trustRepository) Get(userID string) (*honeypot.TrustRecord, error) {
	var m model.TrustRecordModel
	if err := r.db.Where("user_id = ?", userID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toTrustRecord(&m), nil
}

func (r *trustRepository) Update(userID string, fn func(rec *honeypot.TrustRecord) error) (*honeypot.TrustRecord, error) {
	var out *honeypot.TrustRecord
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var m model.TrustRecordModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).First(&m).Error
		created := errors.Is(err, gorm.ErrRecordNotFound)
		if err != nil && !created {
			return err
		}

		var rec *honeypot.TrustRecord
		if created {
			rec = honeypot.NewTrustRecord(userID)
		} else {
			rec = toTrustRecord(&m)
		}

		if err := fn(rec); err != nil {
			return err
		}

		m = *toTrustModel(rec)
		if created {
			m.CreatedAt = time.Now()
		}
		m.UpdatedAt = time.Now()
		if err := tx.Save(&m).Error; err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *trustRepository) Reset(userID string) error {
	return r.db.Where("user_id = ?", userID).Delete(&model.TrustRecordModel{}).Error
}

func (r *trustRepository) Snapshot() ([]*honeypot.TrustRecord, error) {
	var models []*model.TrustRecordModel
	if err := r.db.Find(&models).Error; err != nil {
		return nil, err
	}
	records := make([]*honeypot.TrustRecord, 0, len(models))
	for _, m := range models {
		records = append(records, toTrustRecord(m))
	}
	return records, nil
}

// toTrustRecord 数据模型转领域记录
func toTrustRecord(m *model.TrustRecordModel) *honeypot.TrustRecord {
	rec := &honeypot.TrustRecord{
		UserID:         m.UserID,
		TotalAttempted: m.TotalAttempted,
		TotalCorrect:   m.TotalCorrect,
		AccuracyRate:   m.AccuracyRate,
		TrustScore:     m.TrustScore,
		Streak:         m.Streak,
		BestStreak:     m.BestStreak,
		AttemptsToday:  m.AttemptsToday,
	}
	if m.LastHoneypotAt != nil {
		rec.LastHoneypotAt = *m.LastHoneypotAt
	}
	return rec
}

// toTrustModel 领域记录转数据模型
func toTrustModel(rec *honeypot.TrustRecord) *model.TrustRecordModel {
	m := &model.TrustRecordModel{
		UserID:         rec.UserID,
		TotalAttempted: rec.TotalAttempted,
		TotalCorrect:   rec.TotalCorrect,
		AccuracyRate:   rec.AccuracyRate,
		TrustScore:     rec.TrustScore,
		Streak:         rec.Streak,
		BestStreak:     rec.BestStreak,
		AttemptsToday:  rec.AttemptsToday,
	}
	if !rec.LastHoneypotAt.IsZero() {
		t := rec.LastHoneypotAt
		m.LastHoneypotAt = &t
	}
	return m
}
