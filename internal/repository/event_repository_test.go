package repository

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crowdqc/quality-gin/internal/eventbus"
	"github.com/crowdqc/quality-gin/internal/model"
)

func newTestEvent(taskID, userID string) *eventbus.Event {
	return &eventbus.Event{
		ID:        uuid.New().String(),
		Type:      eventbus.EventHoneypotPassed,
		TaskID:    taskID,
		UserID:    userID,
		Payload:   []byte(`{"points":10}`),
		CreatedAt: time.Now(),
	}
}

func TestEventRepository_SaveStartsPending(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEventRepository(db)

	evt := newTestEvent("task-e1", "worker-1")
	require.NoError(t, repo.Save(evt))

	events, err := repo.FindByTaskID("task-e1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventStatusPending, events[0].Status)
	assert.Equal(t, string(eventbus.EventHoneypotPassed), events[0].Type)
	assert.Equal(t, "worker-1", events[0].UserID)
}

func TestEventRepository_MarkDelivered(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEventRepository(db)

	evt := newTestEvent("task-e2", "worker-1")
	require.NoError(t, repo.Save(evt))
	require.NoError(t, repo.MarkDelivered(evt.ID))

	events, err := repo.FindByTaskID("task-e2")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventStatusDelivered, events[0].Status)
	assert.NotNil(t, events[0].DeliveredAt)
}

func TestEventRepository_MarkFailedIncrementsRetry(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEventRepository(db)

	evt := newTestEvent("task-e3", "worker-1")
	require.NoError(t, repo.Save(evt))
	require.NoError(t, repo.MarkFailed(evt.ID))
	require.NoError(t, repo.MarkFailed(evt.ID))

	events, err := repo.FindByTaskID("task-e3")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventStatusFailed, events[0].Status)
	assert.Equal(t, 2, events[0].RetryCount)
}

func TestEventRepository_FindPending(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEventRepository(db)

	base := time.Now().Add(-time.Hour)
	var ids []string
	for i := 0; i < 3; i++ {
		evt := newTestEvent("task-e4", "worker-1")
		evt.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.Save(evt))
		ids = append(ids, evt.ID)
	}
	require.NoError(t, repo.MarkDelivered(ids[0]))

	pending, err := repo.FindPending(0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	// 按创建时间升序补发
	assert.Equal(t, ids[1], pending[0].ID)
	assert.Equal(t, ids[2], pending[1].ID)

	pending, err = repo.FindPending(1)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}
