package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crowdqc/quality-gin/internal/honeypot"
)

func newTestHoneypot(taskID string) *honeypot.Honeypot {
	return &honeypot.Honeypot{
		TaskID:        taskID,
		ExpectedLabel: "cat",
		Difficulty:    honeypot.DifficultyMedium,
		Points:        10,
		TrustBonus:    2,
	}
}

func TestHoneypotRepository_AddAndGet(t *testing.T) {
	db := setupTestDB(t)
	store := NewHoneypotRepository(db)

	require.NoError(t, store.Add(newTestHoneypot("hp-1")))

	hp, err := store.Get("hp-1")
	require.NoError(t, err)
	require.NotNil(t, hp)
	assert.Equal(t, "cat", hp.ExpectedLabel)
	assert.Equal(t, honeypot.DifficultyMedium, hp.Difficulty)
	assert.Equal(t, 10, hp.Points)
}

func TestHoneypotRepository_AddRejectsInvalid(t *testing.T) {
	db := setupTestDB(t)
	store := NewHoneypotRepository(db)

	bad := newTestHoneypot("hp-bad")
	bad.Difficulty = "IMPOSSIBLE"
	assert.Error(t, store.Add(bad))

	hp, err := store.Get("hp-bad")
	require.NoError(t, err)
	assert.Nil(t, hp)
}

func TestHoneypotRepository_GetMissingReturnsNil(t *testing.T) {
	db := setupTestDB(t)
	store := NewHoneypotRepository(db)

	hp, err := store.Get("missing")
	require.NoError(t, err)
	assert.Nil(t, hp)
}

func TestHoneypotRepository_ListActive(t *testing.T) {
	db := setupTestDB(t)
	store := NewHoneypotRepository(db)

	require.NoError(t, store.Add(newTestHoneypot("hp-a")))
	require.NoError(t, store.Add(newTestHoneypot("hp-b")))
	require.NoError(t, store.Remove("hp-b"))

	active, err := store.ListActive()
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "hp-a", active[0].TaskID)
}

func TestHoneypotRepository_RemoveIsSoftDelete(t *testing.T) {
	db := setupTestDB(t)
	store := NewHoneypotRepository(db)

	require.NoError(t, store.Add(newTestHoneypot("hp-r")))
	require.NoError(t, store.Remove("hp-r"))

	// 下线后对外不可见
	hp, err := store.Get("hp-r")
	require.NoError(t, err)
	assert.Nil(t, hp)

	// 但行仍保留在表里
	var count int64
	require.NoError(t, db.Table("honeypots").Where("task_id = ?", "hp-r").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
