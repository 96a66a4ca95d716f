package service

import (
	"context"
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

// ErrInvalidSubmission 提交参数不合法
var ErrInvalidSubmission = errors.New("invalid submission")

// SubmissionService 提交服务接口
// 提交入口按任务类型路由: 蜜罐任务走蜜罐引擎,普通任务走共识聚合
type SubmissionService interface {
	Submit(ctx context.Context, req *SubmitRequest) (*SubmitResult, error)
	ListByTask(taskID string) ([]*model.SubmissionModel, error)
	ListByUser(userID string, limit int) ([]*model.SubmissionModel, error)
}

// SubmitRequest 工作者提交请求
type SubmitRequest struct {
	TaskID      string  `json:"task_id" binding:"required"`
	UserID      string  `json:"user_id"` // 缺省时取认证身份
	Answer      string  `json:"answer" binding:"required"`
	Confidence  float64 `json:"confidence"`
	TimeSpentMs int64   `json:"time_spent_ms"`
}

// SubmitResult 提交处理结果
// 普通任务返回共识快照,蜜罐任务返回判定结果
type SubmitResult struct {
	TaskID     string              `json:"task_id"`
	State      string              `json:"state"`
	IsHoneypot bool                `json:"is_honeypot"`
	Consensus  *consensus.Snapshot `json:"consensus,omitempty"`
	Honeypot   *honeypot.Result    `json:"honeypot,omitempty"`
}

// submissionService 提交服务实现
type submissionService struct {
	registry   *Registry
	tasks      repository.TaskRepository
	subs       repository.SubmissionRepository
	history    repository.StateHistoryRepository
	aggregator *consensus.Aggregator
	engine     *honeypot.Engine
	logger     *logrus.Logger
}

// NewSubmissionService 创建提交服务
func NewSubmissionService(
	registry *Registry,
	tasks repository.TaskRepository,
	subs repository.SubmissionRepository,
	history repository.StateHistoryRepository,
	aggregator *consensus.Aggregator,
	engine *honeypot.Engine,
	logger *logrus.Logger,
) SubmissionService {
	if logger == nil {
		logger = logrus.New()
	}
	return &submissionService{
		registry:   registry,
		tasks:      tasks,
		subs:       subs,
		history:    history,
		aggregator: aggregator,
		engine:     engine,
		logger:     logger,
	}
}

// Submit 处理一次工作者提交
func (s *submissionService) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResult, error) {
	if req == nil || req.TaskID == "" || req.UserID == "" || req.Answer == "" {
		return nil, fmt.Errorf("%w: task_id, user_id and answer are required", ErrInvalidSubmission)
	}
	if req.Confidence < 0 || req.Confidence > 1 {
		return nil, fmt.Errorf("%w: confidence must be in [0,1]", ErrInvalidSubmission)
	}

	rt, task, err := s.registry.acquire(req.TaskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, req.TaskID)
	}

	// 提交到来意味着工作者已经领取并完成了任务:
	// 把落后的生命周期状态快进到 SUBMITTED,每一步都走状态机并留痕
	if err := s.advanceToSubmitted(rt, task, req.UserID); err != nil {
		return nil, err
	}

	if task.IsHoneypot {
		return s.submitHoneypot(rt, task, req)
	}
	return s.submitConsensus(rt, task, req)
}

// advanceToSubmitted 把任务状态快进到 SUBMITTED
// 终态任务在这里直接失败,由下游路由返回统一的终态错误
func (s *submissionService) advanceToSubmitted(rt *taskRuntime, task *model.TaskModel, userID string) error {
	steps := map[statemachine.State]statemachine.State{
		statemachine.StateCreated:    statemachine.StateAssigned,
		statemachine.StateAssigned:   statemachine.StateInProgress,
		statemachine.StateInProgress: statemachine.StateSubmitted,
	}

	advanced := false
	for {
		current := rt.machine.CurrentState()
		if current == statemachine.StateSubmitted || statemachine.IsTerminal(current) {
			break
		}
		next, ok := steps[current]
		if !ok {
			break
		}
		if err := rt.machine.Transition(next, &statemachine.Context{
			TaskID:    task.ID,
			UserID:    userID,
			Reason:    "submission received",
			Timestamp: time.Now(),
		}); err != nil {
			return err
		}
		advanced = true
	}

	if advanced {
		syncTask(task, rt)
		if err := s.tasks.Save(task); err != nil {
			return fmt.Errorf("failed to persist task state: %w", err)
		}
		for _, change := range rt.machine.History() {
			if change.Context != nil && change.Context.Reason == "submission received" {
				if err := s.history.Record(change); err != nil {
					s.logger.WithField("task_id", task.ID).WithError(err).Warn("failed to record state history")
					break
				}
			}
		}
	}
	return nil
}

// submitHoneypot 蜜罐任务提交路由
// 先落库再计分: 唯一索引保证同一工作者在进程重启后不会被重复计分
func (s *submissionService) submitHoneypot(rt *taskRuntime, task *model.TaskModel, req *SubmitRequest) (*SubmitResult, error) {
	if err := s.persistSubmission(req); err != nil {
		return nil, err
	}

	result, err := s.engine.ProcessSubmission(&honeypot.Submission{
		TaskID:         req.TaskID,
		UserID:         req.UserID,
		SubmittedLabel: req.Answer,
		Confidence:     req.Confidence,
		TimeSpentMs:    req.TimeSpentMs,
	}, rt.machine)
	if err != nil {
		// 判定未发生,回滚占位行,保持提交表与信任账本一致
		if derr := s.subs.DeleteByTaskUser(req.TaskID, req.UserID); derr != nil {
			s.logger.WithFields(logrus.Fields{
				"task_id": req.TaskID,
				"user_id": req.UserID,
			}).WithError(derr).Warn("failed to roll back submission row")
		}
		return nil, err
	}

	if err := s.subs.MarkCorrectness(req.TaskID, result.ExpectedLabel); err != nil {
		s.logger.WithField("task_id", req.TaskID).WithError(err).Warn("failed to backfill submission correctness")
	}
	if err := s.persistOutcome(rt, task); err != nil {
		return nil, err
	}

	metrics.RecordSubmission("honeypot")
	metrics.RecordHoneypotResult(result.IsCorrect)
	s.logger.WithFields(logrus.Fields{
		"task_id":    req.TaskID,
		"user_id":    req.UserID,
		"is_correct": result.IsCorrect,
	}).Info("honeypot submission processed")

	return &SubmitResult{
		TaskID:     req.TaskID,
		State:      string(rt.machine.CurrentState()),
		IsHoneypot: true,
		Honeypot:   result,
	}, nil
}

// submitConsensus 普通任务提交路由
func (s *submissionService) submitConsensus(rt *taskRuntime, task *model.TaskModel, req *SubmitRequest) (*SubmitResult, error) {
	sub := &consensus.Submission{
		ID:          uuid.New().String(),
		UserID:      req.UserID,
		Answer:      req.Answer,
		Confidence:  req.Confidence,
		TimeSpentMs: req.TimeSpentMs,
		SubmittedAt: time.Now(),
	}

	snap, err := s.aggregator.RecordSubmission(rt.consensus, rt.machine, sub)
	if err != nil {
		return nil, err
	}

	if err := s.persistSubmission(req); err != nil {
		return nil, err
	}
	if err := s.persistOutcome(rt, task); err != nil {
		return nil, err
	}

	// 共识达成后回填提交正确性
	if snap.Level == consensus.LevelAgreed {
		if err := s.subs.MarkCorrectness(task.ID, snap.FinalLabel); err != nil {
			s.logger.WithField("task_id", task.ID).WithError(err).Warn("failed to backfill submission correctness")
		}
	}

	metrics.RecordSubmission("consensus")
	if snap.Level == consensus.LevelAgreed || snap.Level == consensus.LevelConflicting {
		metrics.RecordConsensusOutcome(string(snap.Level))
	}
	s.logger.WithFields(logrus.Fields{
		"task_id": req.TaskID,
		"user_id": req.UserID,
		"level":   snap.Level,
		"current": snap.Current,
	}).Info("consensus submission processed")

	return &SubmitResult{
		TaskID:     req.TaskID,
		State:      string(rt.machine.CurrentState()),
		IsHoneypot: false,
		Consensus:  snap,
	}, nil
}

// persistSubmission 提交落库
// 数据库唯一索引是重复提交的最终防线; 正确性由裁决后统一回填
func (s *submissionService) persistSubmission(req *SubmitRequest) error {
	now := time.Now()
	m := &model.SubmissionModel{
		ID:          uuid.New().String(),
		TaskID:      req.TaskID,
		UserID:      req.UserID,
		Answer:      req.Answer,
		Confidence:  req.Confidence,
		TimeSpentMs: req.TimeSpentMs,
		SubmittedAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.subs.Save(m); err != nil {
		if errors.Is(err, repository.ErrDuplicateSubmission) {
			return fmt.Errorf("%w: user %s already submitted task %s", consensus.ErrDuplicateSubmission, req.UserID, req.TaskID)
		}
		return fmt.Errorf("failed to persist submission: %w", err)
	}
	return nil
}

// persistOutcome 把提交后的任务状态写回数据库
func (s *submissionService) persistOutcome(rt *taskRuntime, task *model.TaskModel) error {
	syncTask(task, rt)
	if err := s.tasks.Save(task); err != nil {
		return fmt.Errorf("failed to persist task state: %w", err)
	}

	changes := rt.machine.History()
	if len(changes) > 0 {
		last := changes[len(changes)-1]
		if last.Context == nil || last.Context.Reason != "submission received" {
			if err := s.history.Record(last); err != nil {
				s.logger.WithField("task_id", task.ID).WithError(err).Warn("failed to record state history")
			}
		}
	}

	if statemachine.IsTerminal(rt.machine.CurrentState()) {
		s.registry.evict(task.ID)
	}
	return nil
}

// ListByTask 查询任务的全部提交
func (s *submissionService) ListByTask(taskID string) ([]*model.SubmissionModel, error) {
	return s.subs.FindByTaskID(taskID)
}

// ListByUser 查询工作者最近的提交
func (s *submissionService) ListByUser(userID string, limit int) ([]*model.SubmissionModel, error) {
	return s.subs.FindByUserID(userID, limit)
}
