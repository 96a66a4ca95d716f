package statemachine_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/crowdqc/quality-gin/internal/statemachine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMachine_HappyPath 测试完整生命周期转换
func TestMachine_HappyPath(t *testing.T) {
	m := statemachine.New()
	assert.Equal(t, statemachine.StateCreated, m.CurrentState())

	steps := []statemachine.State{
		statemachine.StateAssigned,
		statemachine.StateInProgress,
		statemachine.StateSubmitted,
		statemachine.StateCompleted,
	}

	for _, target := range steps {
		err := m.Transition(target, &statemachine.Context{TaskID: "task-001", Reason: "test"})
		require.NoError(t, err)
		assert.Equal(t, target, m.CurrentState())
	}

	// 验证历史记录完整
	history := m.History()
	require.Len(t, history, 4)
	assert.Equal(t, statemachine.StateCreated, history[0].From)
	assert.Equal(t, statemachine.StateCompleted, history[3].To)
}

// TestMachine_InvalidTransition 测试非法转换被拒绝且状态不变
func TestMachine_InvalidTransition(t *testing.T) {
	m := statemachine.New()

	// CREATED 不能直接到 SUBMITTED
	err := m.Transition(statemachine.StateSubmitted, nil)
	assert.ErrorIs(t, err, statemachine.ErrInvalidTransition)
	assert.Equal(t, statemachine.StateCreated, m.CurrentState())
	assert.Empty(t, m.History())

	// 未知状态
	err = m.Transition(statemachine.State("UNKNOWN"), nil)
	assert.ErrorIs(t, err, statemachine.ErrInvalidTransition)
}

// TestMachine_TerminalStatesAreFinal 测试终态幂等性
// 任务到达终态后,任何转换都返回 ErrInvalidTransition 且状态不变
func TestMachine_TerminalStatesAreFinal(t *testing.T) {
	terminals := []statemachine.State{
		statemachine.StateCompleted,
		statemachine.StateFailed,
		statemachine.StateCancelled,
		statemachine.StateExpired,
	}

	allStates := []statemachine.State{
		statemachine.StateCreated, statemachine.StateAssigned,
		statemachine.StateInProgress, statemachine.StateSubmitted,
		statemachine.StateCompleted, statemachine.StateFailed,
		statemachine.StateCancelled, statemachine.StateExpired,
	}

	for _, term := range terminals {
		m := statemachine.NewAt(term)
		for _, target := range allStates {
			err := m.Transition(target, nil)
			assert.ErrorIs(t, err, statemachine.ErrInvalidTransition,
				"terminal %s should reject transition to %s", term, target)
			assert.Equal(t, term, m.CurrentState())
		}
	}
}

// TestMachine_CancelAndExpireFromAnyNonTerminal 测试任何非终态可取消/过期
func TestMachine_CancelAndExpireFromAnyNonTerminal(t *testing.T) {
	nonTerminals := []statemachine.State{
		statemachine.StateCreated, statemachine.StateAssigned,
		statemachine.StateInProgress, statemachine.StateSubmitted,
	}

	for _, from := range nonTerminals {
		m := statemachine.NewAt(from)
		require.NoError(t, m.Transition(statemachine.StateCancelled, nil))

		m = statemachine.NewAt(from)
		require.NoError(t, m.Transition(statemachine.StateExpired, nil))
	}
}

// TestMachine_ConcurrentTransition 测试并发转换竞争
// 两个调用者竞争转换同一任务时,只有一个成功,另一个观察到转换后的状态并失败
func TestMachine_ConcurrentTransition(t *testing.T) {
	m := statemachine.NewAt(statemachine.StateSubmitted)

	const goroutines = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.Transition(statemachine.StateCompleted, nil); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// 只有第一个转换成功
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, statemachine.StateCompleted, m.CurrentState())
	assert.Len(t, m.History(), 1)
}

// TestMachine_ContextTimestamp 测试上下文时间戳被记录
func TestMachine_ContextTimestamp(t *testing.T) {
	m := statemachine.New()
	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	err := m.Transition(statemachine.StateAssigned, &statemachine.Context{
		TaskID:    "task-001",
		UserID:    "user-001",
		Reason:    "assigned to worker",
		Timestamp: ts,
	})
	require.NoError(t, err)

	history := m.History()
	require.Len(t, history, 1)
	assert.Equal(t, ts, history[0].Time)
	assert.Equal(t, "user-001", history[0].Context.UserID)
}

// TestCanTransition 测试转换表查询
func TestCanTransition(t *testing.T) {
	assert.True(t, statemachine.CanTransition(statemachine.StateCreated, statemachine.StateAssigned))
	assert.True(t, statemachine.CanTransition(statemachine.StateSubmitted, statemachine.StateFailed))
	assert.False(t, statemachine.CanTransition(statemachine.StateCreated, statemachine.StateCompleted))
	assert.False(t, statemachine.CanTransition(statemachine.StateCompleted, statemachine.StateCancelled))
}

// TestInvalidTransitionError 测试错误类型携带转换详情
func TestInvalidTransitionError(t *testing.T) {
	m := statemachine.NewAt(statemachine.StateCompleted)
	err := m.Transition(statemachine.StateFailed, nil)

	var ite *statemachine.InvalidTransitionError
	require.True(t, errors.As(err, &ite))
	assert.Equal(t, statemachine.StateCompleted, ite.From)
	assert.Equal(t, statemachine.StateFailed, ite.To)
}
