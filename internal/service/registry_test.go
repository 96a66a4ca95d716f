package service

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crowdqc/quality-gin/internal/consensus"
	"github.com/crowdqc/quality-gin/internal/model"
	"github.com/crowdqc/quality-gin/internal/statemachine"
)

// seedPersistedTask 直接落库一个任务和它的历史提交,模拟重启前的状态
func seedPersistedTask(t *testing.T, h *harness, taskID string, voters ...string) {
	t.Helper()
	now := time.Now()
	require.NoError(t, h.tasks.Save(&model.TaskModel{
		ID:                  taskID,
		Payload:             []byte(`{"image_url":"https://example.com/1.jpg"}`),
		State:               string(statemachine.StateSubmitted),
		RequiredSubmissions: 3,
		ConsensusThreshold:  0.6,
		ConsensusLevel:      string(consensus.LevelPending),
		CreatedAt:           now,
		UpdatedAt:           now,
	}))
	for _, voter := range voters {
		require.NoError(t, h.subs.Save(&model.SubmissionModel{
			ID:          uuid.New().String(),
			TaskID:      taskID,
			UserID:      voter,
			Answer:      "cat",
			SubmittedAt: now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}))
	}
}

func TestRegistry_ConcurrentFirstAccessSeesHydratedState(t *testing.T) {
	h := newHarness(t)
	seedPersistedTask(t, h, "task-restart", "w-1", "w-2")

	// 重启后的空注册表: 首次访问必须在发布运行时之前完成水合
	fresh := NewRegistry(h.tasks, h.subs)

	const n = 8
	var wg sync.WaitGroup
	runtimes := make([]*taskRuntime, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rt, task, err := fresh.acquire("task-restart")
			assert.NoError(t, err)
			assert.NotNil(t, task)
			runtimes[i] = rt
		}(i)
	}
	wg.Wait()

	// 所有请求共享同一个运行时,且它已恢复持久化提交
	for i := 1; i < n; i++ {
		assert.Same(t, runtimes[0], runtimes[i])
	}
	snap := runtimes[0].consensus.Snapshot()
	assert.Equal(t, 2, snap.Current)
}

func TestRegistry_HydratedRuntimeRejectsRepeatVoter(t *testing.T) {
	h := newHarness(t)
	seedPersistedTask(t, h, "task-restart", "w-1")

	fresh := NewRegistry(h.tasks, h.subs)
	rt, task, err := fresh.acquire("task-restart")
	require.NoError(t, err)
	require.NotNil(t, task)

	aggregator := consensus.NewAggregator(consensus.DefaultConfig())
	_, err = aggregator.RecordSubmission(rt.consensus, rt.machine, &consensus.Submission{
		ID: uuid.New().String(), UserID: "w-1", Answer: "dog", SubmittedAt: time.Now(),
	})
	assert.ErrorIs(t, err, consensus.ErrDuplicateSubmission)
}
