package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatisticsService_TaskStatistics(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	svc := NewStatisticsService(h.db, h.engine)

	for i := 0; i < 2; i++ {
		_, err := h.taskSvc.Create(ctx, &CreateTaskRequest{Payload: testPayload(), BatchID: "batch-1"})
		require.NoError(t, err)
	}
	task, err := h.taskSvc.Create(ctx, &CreateTaskRequest{Payload: testPayload()})
	require.NoError(t, err)
	require.NoError(t, h.taskSvc.Cancel(ctx, task.ID, "admin", ""))

	byState, err := svc.GetTaskStatisticsByState()
	require.NoError(t, err)
	counts := map[string]int64{}
	for _, s := range byState {
		counts[s.State] = s.Count
	}
	assert.Equal(t, int64(2), counts["CREATED"])
	assert.Equal(t, int64(1), counts["CANCELLED"])

	byBatch, err := svc.GetTaskStatisticsByBatch()
	require.NoError(t, err)
	require.Len(t, byBatch, 1)
	assert.Equal(t, "batch-1", byBatch[0].BatchID)
	assert.Equal(t, int64(2), byBatch[0].Count)

	byTime, err := svc.GetTaskStatisticsByTime()
	require.NoError(t, err)
	require.Len(t, byTime, 1)
	assert.Equal(t, int64(3), byTime[0].Count)
}

func TestStatisticsService_ConsensusStatistics(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	svc := NewStatisticsService(h.db, h.engine)

	agreed, err := h.taskSvc.Create(ctx, &CreateTaskRequest{Payload: testPayload(), RequiredSubmissions: 2})
	require.NoError(t, err)
	for _, user := range []string{"w-1", "w-2"} {
		_, err = h.subSvc.Submit(ctx, &SubmitRequest{TaskID: agreed.ID, UserID: user, Answer: "cat"})
		require.NoError(t, err)
	}

	conflicting, err := h.taskSvc.Create(ctx, &CreateTaskRequest{
		Payload: testPayload(), RequiredSubmissions: 2, ConsensusThreshold: 0.9,
	})
	require.NoError(t, err)
	_, err = h.subSvc.Submit(ctx, &SubmitRequest{TaskID: conflicting.ID, UserID: "w-1", Answer: "cat"})
	require.NoError(t, err)
	_, err = h.subSvc.Submit(ctx, &SubmitRequest{TaskID: conflicting.ID, UserID: "w-2", Answer: "dog"})
	require.NoError(t, err)

	// 蜜罐任务不计入共识统计
	_, err = h.taskSvc.Create(ctx, &CreateTaskRequest{
		Payload: testPayload(), IsHoneypot: true, ExpectedLabel: "cat", Difficulty: "easy",
	})
	require.NoError(t, err)

	stats, err := svc.GetConsensusStatistics()
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalTasks)
	assert.Equal(t, int64(1), stats.AgreedCount)
	assert.Equal(t, int64(1), stats.ConflictingCount)
	assert.Equal(t, 0.5, stats.AgreementRate)
}

func TestStatisticsService_WorkerStatistics(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	svc := NewStatisticsService(h.db, h.engine)

	hp, err := h.taskSvc.Create(ctx, &CreateTaskRequest{
		Payload: testPayload(), IsHoneypot: true, ExpectedLabel: "cat", Difficulty: "easy", Points: 5,
	})
	require.NoError(t, err)
	_, err = h.subSvc.Submit(ctx, &SubmitRequest{TaskID: hp.ID, UserID: "w-1", Answer: "cat"})
	require.NoError(t, err)

	stats, err := svc.GetWorkerStatistics("w-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalSubmissions)
	assert.Equal(t, int64(1), stats.CorrectCount)
	require.NotNil(t, stats.Trust)
	assert.Equal(t, 1, stats.Trust.TotalAttempted)

	// 无任何记录的工作者
	empty, err := svc.GetWorkerStatistics("never-seen")
	require.NoError(t, err)
	assert.Equal(t, int64(0), empty.TotalSubmissions)
}

func TestStatisticsService_HoneypotStatistics(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	svc := NewStatisticsService(h.db, h.engine)

	hp, err := h.taskSvc.Create(ctx, &CreateTaskRequest{
		Payload: testPayload(), IsHoneypot: true, ExpectedLabel: "cat", Difficulty: "easy",
	})
	require.NoError(t, err)
	_, err = h.subSvc.Submit(ctx, &SubmitRequest{TaskID: hp.ID, UserID: "w-1", Answer: "cat"})
	require.NoError(t, err)

	stats, err := svc.GetHoneypotStatistics()
	require.NoError(t, err)
	require.NotNil(t, stats)
}
