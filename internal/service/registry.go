package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/crowdqc/quality-gin/internal/consensus"
	"github.com/crowdqc/quality-gin/internal/model"
	"github.com/crowdqc/quality-gin/internal/repository"
	"github.com/crowdqc/quality-gin/internal/statemachine"
)

// taskRuntime 单个任务的进程内运行时
// 状态机和共识状态常驻内存,数据库行是它们的持久化投影
type taskRuntime struct {
	machine   statemachine.Machine
	consensus *consensus.TaskState
}

// Registry 任务运行时注册表
// 首次访问时从数据库水合,之后同一任务的所有请求共享同一个运行时,
// 保证每任务临界区在进程内成立
type Registry struct {
	mu       sync.Mutex
	runtimes map[string]*taskRuntime

	tasks       repository.TaskRepository
	submissions repository.SubmissionRepository
}

// NewRegistry 创建任务运行时注册表
func NewRegistry(tasks repository.TaskRepository, submissions repository.SubmissionRepository) *Registry {
	return &Registry{
		runtimes:    make(map[string]*taskRuntime),
		tasks:       tasks,
		submissions: submissions,
	}
}

// acquire 获取任务运行时,必要时从数据库水合
// 返回运行时和对应的任务行
func (r *Registry) acquire(taskID string) (*taskRuntime, *model.TaskModel, error) {
	task, err := r.tasks.FindByID(taskID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load task: %w", err)
	}
	if task == nil {
		return nil, nil, nil
	}

	r.mu.Lock()
	if rt, ok := r.runtimes[taskID]; ok {
		r.mu.Unlock()
		return rt, task, nil
	}
	r.mu.Unlock()

	// 首次水合: 先恢复持久化的提交,水合完成后才发布到注册表,
	// 并发的首次访问不会拿到空提交列表的运行时
	subs, err := r.submissions.FindByTaskID(taskID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to hydrate submissions: %w", err)
	}
	rt := &taskRuntime{
		machine:   statemachine.NewAt(statemachine.State(task.State)),
		consensus: consensus.NewTaskState(taskID, task.RequiredSubmissions, task.ConsensusThreshold),
	}
	rt.consensus.Hydrate(consensus.Level(task.ConsensusLevel), task.FinalAnswer, toConsensusSubmissions(subs))

	r.mu.Lock()
	defer r.mu.Unlock()
	// 另一个请求可能已经完成水合并注册,复用它的运行时
	if existing, ok := r.runtimes[taskID]; ok {
		return existing, task, nil
	}
	r.runtimes[taskID] = rt
	return rt, task, nil
}

// register 为新建任务预注册运行时,避免创建后的首次访问再读库水合
func (r *Registry) register(task *model.TaskModel) *taskRuntime {
	rt := &taskRuntime{
		machine:   statemachine.NewAt(statemachine.State(task.State)),
		consensus: consensus.NewTaskState(task.ID, task.RequiredSubmissions, task.ConsensusThreshold),
	}
	r.mu.Lock()
	r.runtimes[task.ID] = rt
	r.mu.Unlock()
	return rt
}

// evict 移除终态任务的运行时,释放内存
func (r *Registry) evict(taskID string) {
	r.mu.Lock()
	delete(r.runtimes, taskID)
	r.mu.Unlock()
}

// toConsensusSubmissions 提交数据模型转共识领域对象
func toConsensusSubmissions(models []*model.SubmissionModel) []*consensus.Submission {
	subs := make([]*consensus.Submission, 0, len(models))
	for _, m := range models {
		subs = append(subs, &consensus.Submission{
			ID:          m.ID,
			UserID:      m.UserID,
			Answer:      m.Answer,
			Confidence:  m.Confidence,
			TimeSpentMs: m.TimeSpentMs,
			SubmittedAt: m.SubmittedAt,
			IsCorrect:   m.IsCorrect,
		})
	}
	return subs
}

// syncTask 把运行时状态写回任务行
func syncTask(task *model.TaskModel, rt *taskRuntime) {
	snap := rt.consensus.Snapshot()
	task.State = string(rt.machine.CurrentState())
	task.ConsensusLevel = string(snap.Level)
	task.FinalAnswer = snap.FinalLabel
	task.RequiredSubmissions = snap.Required
	task.UpdatedAt = time.Now()
}
