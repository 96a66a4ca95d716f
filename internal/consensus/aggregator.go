package consensus

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/crowdqc/quality-gin/internal/statemachine"
)

// ErrDuplicateSubmission 同一工作者对同一任务已有有效提交
var ErrDuplicateSubmission = errors.New("duplicate submission")

// ErrTaskTerminal 任务已处于终态,不再接受提交
var ErrTaskTerminal = errors.New("task is in a terminal state")

// Level 共识等级
type Level string

const (
	LevelPending     Level = "PENDING"
	LevelConflicting Level = "CONFLICTING"
	LevelAgreed      Level = "AGREED"
	LevelValidated   Level = "VALIDATED"
	LevelRejected    Level = "REJECTED"
)

// Submission 参与共识的一条提交
type Submission struct {
	ID          string
	UserID      string
	Answer      string
	Confidence  float64
	TimeSpentMs int64
	SubmittedAt time.Time
	// IsCorrect 仅在最终标签确定后回填
	IsCorrect *bool
}

// TaskState 单个任务的共识状态
// 所有读写都必须经过 Aggregator,由每任务互斥锁保证
// 读取-递增-判定是一个临界区
type TaskState struct {
	mu sync.Mutex

	TaskID      string
	Required    int
	Threshold   float64
	Level       Level
	FinalLabel  string
	Submissions []*Submission
}

// NewTaskState 创建任务共识状态
func NewTaskState(taskID string, required int, threshold float64) *TaskState {
	return &TaskState{
		TaskID:    taskID,
		Required:  required,
		Threshold: threshold,
		Level:     LevelPending,
	}
}

// Hydrate 从持久化存储恢复已有提交
// 只应在状态刚创建、尚未接收并发请求时调用
func (ts *TaskState) Hydrate(level Level, finalLabel string, subs []*Submission) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if level != "" {
		ts.Level = level
	}
	ts.FinalLabel = finalLabel
	ts.Submissions = append(ts.Submissions[:0], subs...)
}

// Snapshot 共识状态快照
type Snapshot struct {
	TaskID        string  `json:"task_id"`
	Level         Level   `json:"level"`
	FinalLabel    string  `json:"final_label,omitempty"`
	Current       int     `json:"current"`
	Required      int     `json:"required"`
	Threshold     float64 `json:"threshold"`
	MajorityShare float64 `json:"majority_share"`
}

// Snapshot 返回当前状态快照
func (ts *TaskState) Snapshot() *Snapshot {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.snapshotLocked()
}

func (ts *TaskState) snapshotLocked() *Snapshot {
	share := 0.0
	if len(ts.Submissions) > 0 {
		groups := groupByAnswer(ts.Submissions)
		if len(groups) > 0 {
			share = float64(len(groups[0].members)) / float64(len(ts.Submissions))
		}
	}
	return &Snapshot{
		TaskID:        ts.TaskID,
		Level:         ts.Level,
		FinalLabel:    ts.FinalLabel,
		Current:       len(ts.Submissions),
		Required:      ts.Required,
		Threshold:     ts.Threshold,
		MajorityShare: share,
	}
}

// Config 聚合器配置
type Config struct {
	// GrowOnConflict 为 true 时,CONFLICTING 结果会自动扩大所需提交数,
	// 等待更多提交; 为 false 时任务停留在 SUBMITTED 等待人工裁决
	GrowOnConflict bool
	// ConflictGrowth 每次冲突时 Required 的增量
	ConflictGrowth int
	// MaxSubmissions Required 自动增长的上限
	MaxSubmissions int
}

// DefaultConfig 返回默认聚合器配置
// 默认开启冲突增长: 每次冲突 +2,上限 9
func DefaultConfig() Config {
	return Config{
		GrowOnConflict: true,
		ConflictGrowth: 2,
		MaxSubmissions: 9,
	}
}

// Defaults 新建任务未指定共识参数时的默认值
type Defaults struct {
	RequiredSubmissions int
	Threshold           float64
}

// NewDefaults 返回默认共识参数: 3 份提交,多数派占比 0.6
func NewDefaults() Defaults {
	return Defaults{
		RequiredSubmissions: 3,
		Threshold:           0.6,
	}
}

// Aggregator 共识聚合器
// 将 N 个独立工作者的提交聚合为一个可信标签
type Aggregator struct {
	cfg Config
}

// NewAggregator 创建共识聚合器
func NewAggregator(cfg Config) *Aggregator {
	if cfg.ConflictGrowth <= 0 {
		cfg.ConflictGrowth = 2
	}
	if cfg.MaxSubmissions <= 0 {
		cfg.MaxSubmissions = 9
	}
	return &Aggregator{cfg: cfg}
}

// RecordSubmission 记录一条提交并在达到所需数量时判定共识
// 任务已终态返回 ErrTaskTerminal,重复投票返回 ErrDuplicateSubmission
// 判定到 AGREED 时驱动状态机到 COMPLETED
func (a *Aggregator) RecordSubmission(ts *TaskState, machine statemachine.Machine, sub *Submission) (*Snapshot, error) {
	if sub == nil {
		return nil, fmt.Errorf("nil submission")
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()

	// 1. 终态任务拒绝提交
	if statemachine.IsTerminal(machine.CurrentState()) {
		return nil, fmt.Errorf("%w: task %s", ErrTaskTerminal, ts.TaskID)
	}
	if ts.Level == LevelAgreed || ts.Level == LevelValidated || ts.Level == LevelRejected {
		return nil, fmt.Errorf("%w: task %s already resolved", ErrTaskTerminal, ts.TaskID)
	}

	// 2. 同一工作者不允许重复投票
	for _, existing := range ts.Submissions {
		if existing.UserID == sub.UserID {
			return nil, fmt.Errorf("%w: user %s already voted on task %s", ErrDuplicateSubmission, sub.UserID, ts.TaskID)
		}
	}

	// 3. 追加提交
	ts.Submissions = append(ts.Submissions, sub)

	// 4. 未达到所需提交数,保持 PENDING
	if len(ts.Submissions) < ts.Required {
		ts.Level = LevelPending
		return ts.snapshotLocked(), nil
	}

	// 5. 计算一致性: 按归一化答案分组,多数组占比与阈值比较
	groups := groupByAnswer(ts.Submissions)
	majority := groups[0]
	share := float64(len(majority.members)) / float64(len(ts.Submissions))

	if share >= ts.Threshold {
		ts.Level = LevelAgreed
		ts.FinalLabel = majority.answer
		a.markCorrectness(ts)

		if err := machine.Transition(statemachine.StateCompleted, &statemachine.Context{
			TaskID:    ts.TaskID,
			Reason:    "consensus agreed",
			Timestamp: time.Now(),
			Metadata: map[string]interface{}{
				"final_label":    majority.answer,
				"majority_share": share,
			},
		}); err != nil {
			return nil, fmt.Errorf("failed to complete task: %w", err)
		}
		return ts.snapshotLocked(), nil
	}

	// 6. 冲突: 任务停留在 SUBMITTED,可配置地扩大所需提交数
	ts.Level = LevelConflicting
	if a.cfg.GrowOnConflict && ts.Required < a.cfg.MaxSubmissions {
		ts.Required += a.cfg.ConflictGrowth
		if ts.Required > a.cfg.MaxSubmissions {
			ts.Required = a.cfg.MaxSubmissions
		}
	}
	return ts.snapshotLocked(), nil
}

// Resolve 裁决覆盖
// level 只能是 VALIDATED 或 REJECTED,分别驱动状态机到 COMPLETED / FAILED
func (a *Aggregator) Resolve(ts *TaskState, machine statemachine.Machine, finalLabel string, level Level) (*Snapshot, error) {
	if level != LevelValidated && level != LevelRejected {
		return nil, fmt.Errorf("invalid resolve level %q: must be VALIDATED or REJECTED", level)
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()

	target := statemachine.StateCompleted
	if level == LevelRejected {
		target = statemachine.StateFailed
	}

	if err := machine.Transition(target, &statemachine.Context{
		TaskID:    ts.TaskID,
		Reason:    "adjudicated",
		Timestamp: time.Now(),
		Metadata: map[string]interface{}{
			"final_label": finalLabel,
			"level":       string(level),
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to resolve task: %w", err)
	}

	ts.Level = level
	ts.FinalLabel = finalLabel
	a.markCorrectness(ts)
	return ts.snapshotLocked(), nil
}

// markCorrectness 最终标签确定后回填每条提交的正确性
func (a *Aggregator) markCorrectness(ts *TaskState) {
	if ts.FinalLabel == "" {
		return
	}
	final := normalizeAnswer(ts.FinalLabel)
	for _, sub := range ts.Submissions {
		correct := normalizeAnswer(sub.Answer) == final
		sub.IsCorrect = &correct
	}
}

// answerGroup 同一答案的提交分组
type answerGroup struct {
	answer     string
	members    []*Submission
	earliest   time.Time
	firstIndex int // 该答案在提交序列中首次出现的位置
}

// groupByAnswer 按归一化答案分组并排序
// 排序规则: 组大小降序; 大小相同时最早提交的组优先;
// 时间戳也相同时按提交序列中的首次出现位置,保证平局打破完全确定
func groupByAnswer(subs []*Submission) []*answerGroup {
	byAnswer := make(map[string]*answerGroup)
	for i, sub := range subs {
		key := normalizeAnswer(sub.Answer)
		group, ok := byAnswer[key]
		if !ok {
			group = &answerGroup{answer: sub.Answer, earliest: sub.SubmittedAt, firstIndex: i}
			byAnswer[key] = group
		}
		group.members = append(group.members, sub)
		if sub.SubmittedAt.Before(group.earliest) {
			group.earliest = sub.SubmittedAt
		}
	}

	groups := make([]*answerGroup, 0, len(byAnswer))
	for _, group := range byAnswer {
		groups = append(groups, group)
	}
	sort.Slice(groups, func(i, j int) bool {
		if len(groups[i].members) != len(groups[j].members) {
			return len(groups[i].members) > len(groups[j].members)
		}
		if !groups[i].earliest.Equal(groups[j].earliest) {
			return groups[i].earliest.Before(groups[j].earliest)
		}
		return groups[i].firstIndex < groups[j].firstIndex
	})
	return groups
}

// normalizeAnswer 答案归一化
// 只去除首尾空白,保持大小写敏感
func normalizeAnswer(answer string) string {
	return strings.TrimSpace(answer)
}
