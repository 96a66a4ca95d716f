package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crowdqc/quality-gin/internal/consensus"
	"github.com/crowdqc/quality-gin/internal/honeypot"
	"github.com/crowdqc/quality-gin/internal/statemachine"
)

func TestSubmissionService_RejectsInvalidRequest(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.subSvc.Submit(ctx, nil)
	assert.ErrorIs(t, err, ErrInvalidSubmission)

	_, err = h.subSvc.Submit(ctx, &SubmitRequest{TaskID: "t", UserID: "", Answer: "cat"})
	assert.ErrorIs(t, err, ErrInvalidSubmission)

	_, err = h.subSvc.Submit(ctx, &SubmitRequest{TaskID: "t", UserID: "w", Answer: "cat", Confidence: 1.5})
	assert.ErrorIs(t, err, ErrInvalidSubmission)
}

func TestSubmissionService_UnknownTask(t *testing.T) {
	h := newHarness(t)

	_, err := h.subSvc.Submit(context.Background(), &SubmitRequest{
		TaskID: "missing", UserID: "w-1", Answer: "cat",
	})
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestSubmissionService_PendingBelowQuorum(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	task, err := h.taskSvc.Create(ctx, &CreateTaskRequest{Payload: testPayload()})
	require.NoError(t, err)

	res, err := h.subSvc.Submit(ctx, &SubmitRequest{TaskID: task.ID, UserID: "w-1", Answer: "cat"})
	require.NoError(t, err)
	assert.False(t, res.IsHoneypot)
	assert.Equal(t, consensus.LevelPending, res.Consensus.Level)
	assert.Equal(t, 1, res.Consensus.Current)
	assert.Equal(t, string(statemachine.StateSubmitted), res.State)
}

func TestSubmissionService_ConsensusAgreed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	task, err := h.taskSvc.Create(ctx, &CreateTaskRequest{Payload: testPayload()})
	require.NoError(t, err)

	_, err = h.subSvc.Submit(ctx, &SubmitRequest{TaskID: task.ID, UserID: "w-1", Answer: "cat"})
	require.NoError(t, err)
	_, err = h.subSvc.Submit(ctx, &SubmitRequest{TaskID: task.ID, UserID: "w-2", Answer: "cat"})
	require.NoError(t, err)
	res, err := h.subSvc.Submit(ctx, &SubmitRequest{TaskID: task.ID, UserID: "w-3", Answer: "dog"})
	require.NoError(t, err)

	// 2/3 超过 0.6 阈值
	assert.Equal(t, consensus.LevelAgreed, res.Consensus.Level)
	assert.Equal(t, "cat", res.Consensus.FinalLabel)
	assert.Equal(t, string(statemachine.StateCompleted), res.State)

	stored, err := h.taskSvc.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, string(statemachine.StateCompleted), stored.State)
	assert.Equal(t, "cat", stored.FinalAnswer)
	assert.Equal(t, string(consensus.LevelAgreed), stored.ConsensusLevel)

	// 共识达成后回填提交正确性
	subs, err := h.subSvc.ListByTask(task.ID)
	require.NoError(t, err)
	require.Len(t, subs, 3)
	for _, sub := range subs {
		require.NotNil(t, sub.IsCorrect)
		assert.Equal(t, sub.Answer == "cat", *sub.IsCorrect)
	}
}

func TestSubmissionService_ConflictGrowsQuorum(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	task, err := h.taskSvc.Create(ctx, &CreateTaskRequest{
		Payload:             testPayload(),
		RequiredSubmissions: 2,
		ConsensusThreshold:  0.9,
	})
	require.NoError(t, err)

	_, err = h.subSvc.Submit(ctx, &SubmitRequest{TaskID: task.ID, UserID: "w-1", Answer: "cat"})
	require.NoError(t, err)
	res, err := h.subSvc.Submit(ctx, &SubmitRequest{TaskID: task.ID, UserID: "w-2", Answer: "dog"})
	require.NoError(t, err)

	assert.Equal(t, consensus.LevelConflicting, res.Consensus.Level)
	// 冲突后扩大所需提交数等待更多工作者
	assert.Equal(t, 4, res.Consensus.Required)
	assert.Equal(t, string(statemachine.StateSubmitted), res.State)

	stored, err := h.taskSvc.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, stored.RequiredSubmissions)
	assert.Equal(t, string(consensus.LevelConflicting), stored.ConsensusLevel)
}

func TestSubmissionService_DuplicateSubmission(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	task, err := h.taskSvc.Create(ctx, &CreateTaskRequest{Payload: testPayload()})
	require.NoError(t, err)

	_, err = h.subSvc.Submit(ctx, &SubmitRequest{TaskID: task.ID, UserID: "w-1", Answer: "cat"})
	require.NoError(t, err)

	_, err = h.subSvc.Submit(ctx, &SubmitRequest{TaskID: task.ID, UserID: "w-1", Answer: "dog"})
	assert.ErrorIs(t, err, consensus.ErrDuplicateSubmission)
}

func TestSubmissionService_TerminalTaskRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	task, err := h.taskSvc.Create(ctx, &CreateTaskRequest{Payload: testPayload()})
	require.NoError(t, err)
	require.NoError(t, h.taskSvc.Cancel(ctx, task.ID, "admin", "withdrawn"))

	_, err = h.subSvc.Submit(ctx, &SubmitRequest{TaskID: task.ID, UserID: "w-1", Answer: "cat"})
	assert.ErrorIs(t, err, consensus.ErrTaskTerminal)
}

func TestSubmissionService_FastForwardLeavesAuditTrail(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	task, err := h.taskSvc.Create(ctx, &CreateTaskRequest{Payload: testPayload()})
	require.NoError(t, err)

	// 直接对 CREATED 任务提交: 生命周期被快进且每步留痕
	_, err = h.subSvc.Submit(ctx, &SubmitRequest{TaskID: task.ID, UserID: "w-1", Answer: "cat"})
	require.NoError(t, err)

	histories, err := h.history.FindByTaskID(task.ID)
	require.NoError(t, err)
	require.Len(t, histories, 3)
	assert.Equal(t, string(statemachine.StateAssigned), histories[0].ToState)
	assert.Equal(t, string(statemachine.StateInProgress), histories[1].ToState)
	assert.Equal(t, string(statemachine.StateSubmitted), histories[2].ToState)
	for _, hist := range histories {
		assert.Equal(t, "submission received", hist.Reason)
	}
}

func TestSubmissionService_HoneypotCorrect(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	task, err := h.taskSvc.Create(ctx, &CreateTaskRequest{
		Payload:       testPayload(),
		IsHoneypot:    true,
		ExpectedLabel: "cat",
		Difficulty:    "easy",
		Points:        10,
		TrustBonus:    2,
	})
	require.NoError(t, err)

	res, err := h.subSvc.Submit(ctx, &SubmitRequest{
		TaskID:      task.ID,
		UserID:      "w-1",
		Answer:      "cat",
		TimeSpentMs: 4000,
	})
	require.NoError(t, err)

	assert.True(t, res.IsHoneypot)
	require.NotNil(t, res.Honeypot)
	assert.True(t, res.Honeypot.IsCorrect)
	assert.Greater(t, res.Honeypot.PointsEarned, 0)
	assert.Equal(t, string(statemachine.StateCompleted), res.State)

	rec, err := h.ledger.Get("w-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 1, rec.TotalAttempted)
	assert.Equal(t, 1, rec.TotalCorrect)
	assert.Equal(t, 1, rec.Streak)
	assert.Greater(t, rec.TrustScore, honeypot.NeutralTrustScore)

	subs, err := h.subSvc.ListByTask(task.ID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	require.NotNil(t, subs[0].IsCorrect)
	assert.True(t, *subs[0].IsCorrect)
}

func TestSubmissionService_HoneypotWrong(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	task, err := h.taskSvc.Create(ctx, &CreateTaskRequest{
		Payload:       testPayload(),
		IsHoneypot:    true,
		ExpectedLabel: "cat",
		Difficulty:    "easy",
		Points:        10,
	})
	require.NoError(t, err)

	res, err := h.subSvc.Submit(ctx, &SubmitRequest{
		TaskID: task.ID,
		UserID: "w-1",
		// 标准答案大小写敏感
		Answer: "Cat",
	})
	require.NoError(t, err)

	assert.False(t, res.Honeypot.IsCorrect)
	assert.Equal(t, 0, res.Honeypot.PointsEarned)
	assert.Equal(t, string(statemachine.StateFailed), res.State)

	rec, err := h.ledger.Get("w-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 0, rec.Streak)
	assert.Less(t, rec.TrustScore, honeypot.NeutralTrustScore)

	stored, err := h.taskSvc.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, string(statemachine.StateFailed), stored.State)
}

func TestSubmissionService_HoneypotRetiredAfterResolution(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	task, err := h.taskSvc.Create(ctx, &CreateTaskRequest{
		Payload:       testPayload(),
		IsHoneypot:    true,
		ExpectedLabel: "cat",
		Difficulty:    "easy",
		Points:        10,
	})
	require.NoError(t, err)

	_, err = h.subSvc.Submit(ctx, &SubmitRequest{TaskID: task.ID, UserID: "w-1", Answer: "cat"})
	require.NoError(t, err)

	// 判定后蜜罐退出活跃池,不再被推荐
	hp, err := h.hpStore.Get(task.ID)
	require.NoError(t, err)
	assert.Nil(t, hp)

	next, err := h.engine.GetNextHoneypot("w-2", 0)
	require.NoError(t, err)
	assert.Nil(t, next)

	// 后来的工作者撞上已判定的蜜罐: 拒绝且不留下提交行
	_, err = h.subSvc.Submit(ctx, &SubmitRequest{TaskID: task.ID, UserID: "w-2", Answer: "cat"})
	assert.ErrorIs(t, err, honeypot.ErrHoneypotNotFound)

	subs, err := h.subSvc.ListByTask(task.ID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "w-1", subs[0].UserID)
}

func TestSubmissionService_HoneypotDuplicateNotRescored(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	task, err := h.taskSvc.Create(ctx, &CreateTaskRequest{
		Payload:       testPayload(),
		IsHoneypot:    true,
		ExpectedLabel: "cat",
		Difficulty:    "easy",
		Points:        10,
	})
	require.NoError(t, err)

	_, err = h.subSvc.Submit(ctx, &SubmitRequest{TaskID: task.ID, UserID: "w-1", Answer: "cat"})
	require.NoError(t, err)

	// 唯一索引在计分之前拦截重复提交,账本不变
	_, err = h.subSvc.Submit(ctx, &SubmitRequest{TaskID: task.ID, UserID: "w-1", Answer: "cat"})
	assert.ErrorIs(t, err, consensus.ErrDuplicateSubmission)

	rec, err := h.ledger.Get("w-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 1, rec.TotalAttempted)
}

func TestSubmissionService_ListByUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		task, err := h.taskSvc.Create(ctx, &CreateTaskRequest{Payload: testPayload()})
		require.NoError(t, err)
		_, err = h.subSvc.Submit(ctx, &SubmitRequest{TaskID: task.ID, UserID: "w-9", Answer: "cat"})
		require.NoError(t, err)
	}

	subs, err := h.subSvc.ListByUser("w-9", 10)
	require.NoError(t, err)
	assert.Len(t, subs, 2)
}
