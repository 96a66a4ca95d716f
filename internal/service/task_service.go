package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/crowdqc/quality-gin/internal/consensus"
	"github.com/crowdqc/quality-gin/internal/honeypot"
	"github.com/crowdqc/quality-gin/internal/metrics"
	"github.com/crowdqc/quality-gin/internal/model"
	"github.com/crowdqc/quality-gin/internal/repository"
	"github.com/crowdqc/quality-gin/internal/statemachine"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrTaskNotFound 任务不存在
var ErrTaskNotFound = errors.New("task not found")

// TaskService 任务服务接口
type TaskService interface {
	Create(ctx context.Context, req *CreateTaskRequest) (*model.TaskModel, error)
	Get(id string) (*model.TaskModel, error)
	List(filter *repository.TaskFilter) ([]*model.TaskModel, error)
	Assign(ctx context.Context, id, userID string) error
	Start(ctx context.Context, id, userID string) error
	Cancel(ctx context.Context, id, userID, reason string) error
	Expire(ctx context.Context, id string) error
	// ExpireOverdue 扫描并过期所有已超时的非终态任务,返回过期数量
	ExpireOverdue(ctx context.Context) (int, error)
	Resolve(ctx context.Context, id string, req *ResolveRequest) (*consensus.Snapshot, error)
	History(id string) ([]*model.StateHistoryModel, error)
	ConsensusState(id string) (*consensus.Snapshot, error)
}

// CreateTaskRequest 创建任务请求
type CreateTaskRequest struct {
	BatchID             string          `json:"batch_id"`
	Title               string          `json:"title"`
	Payload             json.RawMessage `json:"payload" binding:"required"` // 标注素材
	IsHoneypot          bool            `json:"is_honeypot"`
	ExpectedLabel       string          `json:"expected_label"` // 蜜罐必填
	Difficulty          string          `json:"difficulty"`     // 蜜罐必填: easy/medium/hard
	Points              int             `json:"points"`
	TrustBonus          int             `json:"trust_bonus"`
	RequiredSubmissions int             `json:"required_submissions"` // 0 使用默认值
	ConsensusThreshold  float64         `json:"consensus_threshold"`  // 0 使用默认值
	CreatedBy           string          `json:"created_by"`
	TTLSeconds          int             `json:"ttl_seconds"` // 0 表示不过期
}

// ResolveRequest 冲突裁决请求
type ResolveRequest struct {
	FinalLabel string `json:"final_label" binding:"required"`
	Level      string `json:"level" binding:"required"` // VALIDATED / REJECTED
	Operator   string `json:"operator"`
}

// taskService 任务服务实现
type taskService struct {
	registry   *Registry
	tasks      repository.TaskRepository
	subs       repository.SubmissionRepository
	history    repository.StateHistoryRepository
	aggregator *consensus.Aggregator
	hpStore    honeypot.Store
	defaults   consensus.Defaults
	logger     *logrus.Logger
}

// NewTaskService 创建任务服务
func NewTaskService(
	registry *Registry,
	tasks repository.TaskRepository,
	subs repository.SubmissionRepository,
	history repository.StateHistoryRepository,
	aggregator *consensus.Aggregator,
	hpStore honeypot.Store,
	defaults consensus.Defaults,
	logger *logrus.Logger,
) TaskService {
	if logger == nil {
		logger = logrus.New()
	}
	return &taskService{
		registry:   registry,
		tasks:      tasks,
		subs:       subs,
		history:    history,
		aggregator: aggregator,
		hpStore:    hpStore,
		defaults:   defaults,
		logger:     logger,
	}
}

// Create 创建标注任务
// 蜜罐任务会同时进入活跃蜜罐池
func (s *taskService) Create(ctx context.Context, req *CreateTaskRequest) (*model.TaskModel, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}

	now := time.Now()
	task := &model.TaskModel{
		ID:                  uuid.New().String(),
		BatchID:             req.BatchID,
		Title:               req.Title,
		Payload:             req.Payload,
		State:               string(statemachine.StateCreated),
		IsHoneypot:          req.IsHoneypot,
		ExpectedLabel:       req.ExpectedLabel,
		Points:              req.Points,
		TrustBonus:          req.TrustBonus,
		RequiredSubmissions: req.RequiredSubmissions,
		ConsensusThreshold:  req.ConsensusThreshold,
		ConsensusLevel:      string(consensus.LevelPending),
		CreatedBy:           req.CreatedBy,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if req.IsHoneypot {
		// 蜜罐由单个工作者对照标准答案判定,不参与多提交共识
		task.RequiredSubmissions = 1
		task.ConsensusThreshold = 1
	} else {
		if task.RequiredSubmissions <= 0 {
			task.RequiredSubmissions = s.defaults.RequiredSubmissions
		}
		if task.ConsensusThreshold <= 0 {
			task.ConsensusThreshold = s.defaults.Threshold
		}
	}
	if req.TTLSeconds > 0 {
		expires := now.Add(time.Duration(req.TTLSeconds) * time.Second)
		task.ExpiresAt = &expires
	}

	if req.IsHoneypot {
		difficulty, err := honeypot.ParseDifficulty(req.Difficulty)
		if err != nil {
			return nil, err
		}
		task.Difficulty = string(difficulty)
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}
	if err := s.tasks.Save(task); err != nil {
		return nil, fmt.Errorf("failed to save task: %w", err)
	}

	if req.IsHoneypot {
		hp := &honeypot.Honeypot{
			TaskID:        task.ID,
			ExpectedLabel: task.ExpectedLabel,
			Difficulty:    honeypot.Difficulty(task.Difficulty),
			Points:        task.Points,
			TrustBonus:    task.TrustBonus,
		}
		if err := s.hpStore.Add(hp); err != nil {
			return nil, fmt.Errorf("failed to register honeypot: %w", err)
		}
	}

	s.registry.register(task)
	metrics.RecordTaskCreated()
	s.logger.WithFields(logrus.Fields{
		"task_id":     task.ID,
		"is_honeypot": task.IsHoneypot,
	}).Info("task created")
	return task, nil
}

// Get 查询任务
func (s *taskService) Get(id string) (*model.TaskModel, error) {
	task, err := s.tasks.FindByID(id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return task, nil
}

// List 按过滤器查询任务
func (s *taskService) List(filter *repository.TaskFilter) ([]*model.TaskModel, error) {
	return s.tasks.FindByFilter(filter)
}

// Assign 指派任务给工作者
func (s *taskService) Assign(ctx context.Context, id, userID string) error {
	return s.transition(id, statemachine.StateAssigned, &statemachine.Context{
		TaskID: id, UserID: userID, Reason: "assigned", Timestamp: time.Now(),
	}, func(task *model.TaskModel) { task.AssignedTo = userID })
}

// Start 工作者开始处理任务
func (s *taskService) Start(ctx context.Context, id, userID string) error {
	return s.transition(id, statemachine.StateInProgress, &statemachine.Context{
		TaskID: id, UserID: userID, Reason: "started", Timestamp: time.Now(),
	}, nil)
}

// Cancel 管理性取消任务
func (s *taskService) Cancel(ctx context.Context, id, userID, reason string) error {
	if reason == "" {
		reason = "cancelled"
	}
	return s.transition(id, statemachine.StateCancelled, &statemachine.Context{
		TaskID: id, UserID: userID, Reason: reason, Timestamp: time.Now(),
	}, nil)
}

// Expire 任务超时
func (s *taskService) Expire(ctx context.Context, id string) error {
	return s.transition(id, statemachine.StateExpired, &statemachine.Context{
		TaskID: id, Reason: "deadline exceeded", Timestamp: time.Now(),
	}, nil)
}

// ExpireOverdue 过期扫描
// 对每个超时任务单独迁移,单个失败不阻塞其余任务
func (s *taskService) ExpireOverdue(ctx context.Context) (int, error) {
	overdue, err := s.tasks.FindExpired(time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to find expired tasks: %w", err)
	}

	expired := 0
	for _, task := range overdue {
		select {
		case <-ctx.Done():
			return expired, ctx.Err()
		default:
		}
		if err := s.Expire(ctx, task.ID); err != nil {
			s.logger.WithField("task_id", task.ID).WithError(err).Warn("failed to expire task")
			continue
		}
		expired++
	}
	return expired, nil
}

// Resolve 人工裁决冲突任务
func (s *taskService) Resolve(ctx context.Context, id string, req *ResolveRequest) (*consensus.Snapshot, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}

	rt, task, err := s.registry.acquire(id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	snap, err := s.aggregator.Resolve(rt.consensus, rt.machine, req.FinalLabel, consensus.Level(req.Level))
	if err != nil {
		return nil, err
	}

	if err := s.persistTransition(rt, task); err != nil {
		return nil, err
	}
	if err := s.subs.MarkCorrectness(id, snap.FinalLabel); err != nil {
		s.logger.WithField("task_id", id).WithError(err).Warn("failed to backfill submission correctness")
	}

	metrics.RecordConsensusOutcome(string(snap.Level))
	s.logger.WithFields(logrus.Fields{
		"task_id":     id,
		"level":       snap.Level,
		"final_label": snap.FinalLabel,
		"operator":    req.Operator,
	}).Info("task adjudicated")
	return snap, nil
}

// History 查询任务状态变更历史
func (s *taskService) History(id string) ([]*model.StateHistoryModel, error) {
	task, err := s.tasks.FindByID(id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return s.history.FindByTaskID(id)
}

// ConsensusState 查询任务共识状态快照
func (s *taskService) ConsensusState(id string) (*consensus.Snapshot, error) {
	rt, task, err := s.registry.acquire(id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return rt.consensus.Snapshot(), nil
}

// transition 执行一次状态迁移并持久化
func (s *taskService) transition(id string, target statemachine.State, smCtx *statemachine.Context, mutate func(task *model.TaskModel)) error {
	rt, task, err := s.registry.acquire(id)
	if err != nil {
		return err
	}
	if task == nil {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	if err := rt.machine.Transition(target, smCtx); err != nil {
		return err
	}
	if mutate != nil {
		mutate(task)
	}
	return s.persistTransition(rt, task)
}

// persistTransition 把运行时状态写回数据库并追加历史记录
func (s *taskService) persistTransition(rt *taskRuntime, task *model.TaskModel) error {
	syncTask(task, rt)
	if err := s.tasks.Save(task); err != nil {
		return fmt.Errorf("failed to persist task state: %w", err)
	}

	changes := rt.machine.History()
	if len(changes) > 0 {
		if err := s.history.Record(changes[len(changes)-1]); err != nil {
			s.logger.WithField("task_id", task.ID).WithError(err).Warn("failed to record state history")
		}
	}

	if statemachine.IsTerminal(rt.machine.CurrentState()) {
		s.registry.evict(task.ID)
	}
	return nil
}
