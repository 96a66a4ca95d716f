package repository

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/crowdqc/quality-gin/internal/database"
	"github.com/crowdqc/quality-gin/internal/model"
	"github.com/crowdqc/quality-gin/internal/statemachine"
)

// setupTestDB 创建内存数据库并执行迁移
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

// newTestTask 构造一个合法的普通标注任务
func newTestTask(id string) *model.TaskModel {
	now := time.Now()
	return &model.TaskModel{
		ID:                  id,
		Title:               "classify image",
		Payload:             []byte(`{"image_url":"https://example.com/1.jpg"}`),
		State:               string(statemachine.StateCreated),
		RequiredSubmissions: 3,
		ConsensusThreshold:  0.6,
		ConsensusLevel:      "PENDING",
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// newTestSubmission 构造一条提交
func newTestSubmission(taskID, userID, answer string) *model.SubmissionModel {
	now := time.Now()
	return &model.SubmissionModel{
		ID:          uuid.New().String(),
		TaskID:      taskID,
		UserID:      userID,
		Answer:      answer,
		Confidence:  0.9,
		TimeSpentMs: 4000,
		SubmittedAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
