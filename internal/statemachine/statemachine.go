package statemachine

import (
	"fmt"
	"sync"
	"time"
)

// State 任务生命周期状态
type State string

const (
	StateCreated    State = "CREATED"
	StateAssigned   State = "ASSIGNED"
	StateInProgress State = "IN_PROGRESS"
	StateSubmitted  State = "SUBMITTED"
	StateCompleted  State = "COMPLETED"
	StateFailed     State = "FAILED"
	StateCancelled  State = "CANCELLED"
	StateExpired    State = "EXPIRED"
)

// Valid 检查状态是否为已知状态
func (s State) Valid() bool {
	switch s {
	case StateCreated, StateAssigned, StateInProgress, StateSubmitted,
		StateCompleted, StateFailed, StateCancelled, StateExpired:
		return true
	default:
		return false
	}
}

// IsTerminal 检查状态是否为终态
// 终态任务不再接受任何状态转换
func IsTerminal(s State) bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled, StateExpired:
		return true
	default:
		return false
	}
}

// Context 状态转换上下文
// 记录是谁、因为什么、在什么时间触发了转换
type Context struct {
	TaskID    string
	UserID    string
	Reason    string
	Timestamp time.Time
	Metadata  map[string]interface{}
}

// Change 一次已完成的状态转换记录
type Change struct {
	From    State
	To      State
	Context *Context
	Time    time.Time
}

// Machine 任务状态机接口
// ConsensusAggregator 和 HoneypotEngine 都只通过这个窄接口驱动任务,
// 状态机本身不会反向调用它们
type Machine interface {
	CurrentState() State
	Transition(target State, ctx *Context) error
	History() []*Change
}

// machine 基于互斥锁的状态机实现
// Transition 对读到的当前状态是原子的: 两个并发调用者竞争转换同一任务时,
// 后到者会观察到已经转换后的状态并得到 ErrInvalidTransition
type machine struct {
	mu      sync.Mutex
	state   State
	history []*Change
}

// New 创建初始状态为 CREATED 的状态机
func New() Machine {
	return NewAt(StateCreated)
}

// NewAt 创建指定初始状态的状态机
// 用于从持久化存储中恢复任务
func NewAt(initial State) Machine {
	return &machine{state: initial}
}

// CurrentState 返回当前状态
func (m *machine) CurrentState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Transition 执行状态转换
// 转换不合法时返回 ErrInvalidTransition,任务状态保持不变
func (m *machine) Transition(target State, ctx *Context) error {
	if !target.Valid() {
		return invalidTransitionf("unknown target state %q", target)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !canTransition(m.state, target) {
		return &InvalidTransitionError{From: m.state, To: target}
	}

	now := time.Now()
	if ctx != nil && !ctx.Timestamp.IsZero() {
		now = ctx.Timestamp
	}

	change := &Change{
		From:    m.state,
		To:      target,
		Context: ctx,
		Time:    now,
	}

	m.state = target
	m.history = append(m.history, change)
	return nil
}

// History 返回状态转换历史的副本
func (m *machine) History() []*Change {
	m.mu.Lock()
	defer m.mu.Unlock()

	history := make([]*Change, len(m.history))
	copy(history, m.history)
	return history
}

// canTransition 检查从 from 到 to 的转换是否合法
// 转换表: CREATED → ASSIGNED → IN_PROGRESS → SUBMITTED → {COMPLETED | FAILED}
// 任何非终态都可以转换到 CANCELLED 或 EXPIRED
func canTransition(from, to State) bool {
	if IsTerminal(from) {
		return false
	}

	// 非终态都允许被取消或过期
	if to == StateCancelled || to == StateExpired {
		return true
	}

	switch from {
	case StateCreated:
		return to == StateAssigned
	case StateAssigned:
		return to == StateInProgress
	case StateInProgress:
		return to == StateSubmitted
	case StateSubmitted:
		return to == StateCompleted || to == StateFailed
	default:
		return false
	}
}

// CanTransition 检查转换是否合法(不执行)
func CanTransition(from, to State) bool {
	return to.Valid() && canTransition(from, to)
}

func invalidTransitionf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidTransition, fmt.Sprintf(format, args...))
}
