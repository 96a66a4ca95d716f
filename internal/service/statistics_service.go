package service

import (
	"fmt"

	"github.com/crowdqc/quality-gin/internal/honeypot"
	"github.com/crowdqc/quality-gin/internal/model"
	"gorm.io/gorm"
)

// StatisticsService 统计服务接口
type StatisticsService interface {
	GetTaskStatisticsByState() ([]*TaskStatisticsByState, error)
	GetTaskStatisticsByBatch() ([]*TaskStatisticsByBatch, error)
	GetTaskStatisticsByTime() ([]*TaskStatisticsByTime, error)
	GetConsensusStatistics() (*ConsensusStatistics, error)
	GetWorkerStatistics(userID string) (*WorkerStatistics, error)
	GetHoneypotStatistics() (*honeypot.Statistics, error)
}

// TaskStatisticsByState 按状态统计
type TaskStatisticsByState struct {
	State string `json:"state"`
	Count int64  `json:"count"`
}

// TaskStatisticsByBatch 按批次统计
type TaskStatisticsByBatch struct {
	BatchID string `json:"batch_id"`
	Count   int64  `json:"count"`
}

// TaskStatisticsByTime 按时间统计
type TaskStatisticsByTime struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// ConsensusStatistics 共识统计
type ConsensusStatistics struct {
	TotalTasks       int64   `json:"total_tasks"`
	AgreedCount      int64   `json:"agreed_count"`
	ConflictingCount int64   `json:"conflicting_count"`
	ValidatedCount   int64   `json:"validated_count"`
	RejectedCount    int64   `json:"rejected_count"`
	AgreementRate    float64 `json:"agreement_rate"`
}

// WorkerStatistics 单个工作者统计
type WorkerStatistics struct {
	UserID           string                `json:"user_id"`
	TotalSubmissions int64                 `json:"total_submissions"`
	CorrectCount     int64                 `json:"correct_count"`
	Trust            *honeypot.TrustRecord `json:"trust,omitempty"`
}

// statisticsService 统计服务实现
type statisticsService struct {
	db     *gorm.DB
	engine *honeypot.Engine
}

// NewStatisticsService 创建统计服务
func NewStatisticsService(db *gorm.DB, engine *honeypot.Engine) StatisticsService {
	return &statisticsService{db: db, engine: engine}
}

// GetTaskStatisticsByState 按状态统计任务
func (s *statisticsService) GetTaskStatisticsByState() ([]*TaskStatisticsByState, error) {
	var results []struct {
		State string
		Count int64
	}

	err := s.db.Model(&model.TaskModel{}).
		Select("state, COUNT(*) as count").
		Group("state").
		Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get task statistics by state: %w", err)
	}

	stats := make([]*TaskStatisticsByState, 0, len(results))
	for _, r := range results {
		stats = append(stats, &TaskStatisticsByState{State: r.State, Count: r.Count})
	}
	return stats, nil
}

// GetTaskStatisticsByBatch 按批次统计任务
func (s *statisticsService) GetTaskStatisticsByBatch() ([]*TaskStatisticsByBatch, error) {
	var results []struct {
		BatchID string
		Count   int64
	}

	err := s.db.Model(&model.TaskModel{}).
		Select("batch_id, COUNT(*) as count").
		Where("batch_id <> ''").
		Group("batch_id").
		Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get task statistics by batch: %w", err)
	}

	stats := make([]*TaskStatisticsByBatch, 0, len(results))
	for _, r := range results {
		stats = append(stats, &TaskStatisticsByBatch{BatchID: r.BatchID, Count: r.Count})
	}
	return stats, nil
}

// GetTaskStatisticsByTime 按天统计任务创建量
func (s *statisticsService) GetTaskStatisticsByTime() ([]*TaskStatisticsByTime, error) {
	var results []struct {
		Date  string
		Count int64
	}

	// DATE() 在 PostgreSQL 和 SQLite 下行为一致
	err := s.db.Model(&model.TaskModel{}).
		Select("DATE(created_at) as date, COUNT(*) as count").
		Group("DATE(created_at)").
		Order("date DESC").
		Limit(30).
		Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get task statistics by time: %w", err)
	}

	stats := make([]*TaskStatisticsByTime, 0, len(results))
	for _, r := range results {
		stats = append(stats, &TaskStatisticsByTime{Date: r.Date, Count: r.Count})
	}
	return stats, nil
}

// GetConsensusStatistics 共识整体统计
func (s *statisticsService) GetConsensusStatistics() (*ConsensusStatistics, error) {
	var results []struct {
		ConsensusLevel string
		Count          int64
	}

	err := s.db.Model(&model.TaskModel{}).
		Select("consensus_level, COUNT(*) as count").
		Where("is_honeypot = ?", false).
		Group("consensus_level").
		Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get consensus statistics: %w", err)
	}

	stats := &ConsensusStatistics{}
	for _, r := range results {
		stats.TotalTasks += r.Count
		switch r.ConsensusLevel {
		case "AGREED":
			stats.AgreedCount = r.Count
		case "CONFLICTING":
			stats.ConflictingCount = r.Count
		case "VALIDATED":
			stats.ValidatedCount = r.Count
		case "REJECTED":
			stats.RejectedCount = r.Count
		}
	}
	if stats.TotalTasks > 0 {
		resolved := stats.AgreedCount + stats.ValidatedCount
		stats.AgreementRate = float64(resolved) / float64(stats.TotalTasks)
	}
	return stats, nil
}

// GetWorkerStatistics 单个工作者统计
func (s *statisticsService) GetWorkerStatistics(userID string) (*WorkerStatistics, error) {
	stats := &WorkerStatistics{UserID: userID}

	if err := s.db.Model(&model.SubmissionModel{}).
		Where("user_id = ?", userID).
		Count(&stats.TotalSubmissions).Error; err != nil {
		return nil, fmt.Errorf("failed to count submissions: %w", err)
	}
	if err := s.db.Model(&model.SubmissionModel{}).
		Where("user_id = ? AND is_correct = ?", userID, true).
		Count(&stats.CorrectCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count correct submissions: %w", err)
	}

	trust, err := s.engine.GetTrustRecord(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read trust record: %w", err)
	}
	stats.Trust = trust
	return stats, nil
}

// GetHoneypotStatistics 蜜罐引擎聚合统计
func (s *statisticsService) GetHoneypotStatistics() (*honeypot.Statistics, error) {
	return s.engine.GetStatistics()
}
