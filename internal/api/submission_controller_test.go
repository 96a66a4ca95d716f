package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmissionController_ConsensusFlow(t *testing.T) {
	env := newAPIEnv(t)
	id := env.createTask(t, map[string]interface{}{"required_submissions": 2})

	w := env.doJSON(t, http.MethodPost, "/api/v1/submissions", map[string]interface{}{
		"task_id": id, "user_id": "w-1", "answer": "cat",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result struct {
		State     string `json:"state"`
		Consensus struct {
			Level   string `json:"level"`
			Current int    `json:"current"`
		} `json:"consensus"`
	}
	decodeData(t, w, &result)
	assert.Equal(t, "SUBMITTED", result.State)
	assert.Equal(t, "PENDING", result.Consensus.Level)
	assert.Equal(t, 1, result.Consensus.Current)

	w = env.doJSON(t, http.MethodPost, "/api/v1/submissions", map[string]interface{}{
		"task_id": id, "user_id": "w-2", "answer": "cat",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decodeData(t, w, &result)
	assert.Equal(t, "COMPLETED", result.State)
	assert.Equal(t, "AGREED", result.Consensus.Level)
}

func TestSubmissionController_HoneypotFlow(t *testing.T) {
	env := newAPIEnv(t)
	id := env.createTask(t, map[string]interface{}{
		"is_honeypot":    true,
		"expected_label": "cat",
		"difficulty":     "easy",
		"points":         10,
	})

	w := env.doJSON(t, http.MethodPost, "/api/v1/submissions", map[string]interface{}{
		"task_id": id, "user_id": "w-1", "answer": "cat", "time_spent_ms": 4000,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result struct {
		State      string `json:"state"`
		IsHoneypot bool   `json:"is_honeypot"`
		Honeypot   struct {
			IsCorrect    bool `json:"is_correct"`
			PointsEarned int  `json:"points_earned"`
		} `json:"honeypot"`
	}
	decodeData(t, w, &result)
	assert.True(t, result.IsHoneypot)
	assert.True(t, result.Honeypot.IsCorrect)
	assert.Greater(t, result.Honeypot.PointsEarned, 0)
	assert.Equal(t, "COMPLETED", result.State)
}

func TestSubmissionController_DuplicateConflict(t *testing.T) {
	env := newAPIEnv(t)
	id := env.createTask(t, map[string]interface{}{})

	body := map[string]interface{}{"task_id": id, "user_id": "w-1", "answer": "cat"}
	w := env.doJSON(t, http.MethodPost, "/api/v1/submissions", body)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.doJSON(t, http.MethodPost, "/api/v1/submissions", body)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSubmissionController_RejectsDangerousAnswer(t *testing.T) {
	env := newAPIEnv(t)
	id := env.createTask(t, map[string]interface{}{})

	w := env.doJSON(t, http.MethodPost, "/api/v1/submissions", map[string]interface{}{
		"task_id": id, "user_id": "w-1", "answer": "<script>alert(1)</script>",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmissionController_UnknownTask(t *testing.T) {
	env := newAPIEnv(t)

	w := env.doJSON(t, http.MethodPost, "/api/v1/submissions", map[string]interface{}{
		"task_id": "missing", "user_id": "w-1", "answer": "cat",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSubmissionController_FallsBackToAuthIdentity(t *testing.T) {
	env := newAPIEnv(t)
	id := env.createTask(t, map[string]interface{}{})

	// user_id 缺省时取认证身份 (X-User-ID: tester)
	w := env.doJSON(t, http.MethodPost, "/api/v1/submissions", map[string]interface{}{
		"task_id": id, "answer": "cat",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.doJSON(t, http.MethodGet, "/api/v1/tasks/"+id+"/submissions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var subs []struct {
		UserID string `json:"UserID"`
	}
	decodeData(t, w, &subs)
	require.Len(t, subs, 1)
	assert.Equal(t, "tester", subs[0].UserID)
}

func TestSubmissionController_ListByUser(t *testing.T) {
	env := newAPIEnv(t)
	id := env.createTask(t, map[string]interface{}{})

	w := env.doJSON(t, http.MethodPost, "/api/v1/submissions", map[string]interface{}{
		"task_id": id, "user_id": "w-7", "answer": "cat",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.doJSON(t, http.MethodGet, "/api/v1/workers/w-7/submissions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var subs []struct {
		TaskID string `json:"TaskID"`
	}
	decodeData(t, w, &subs)
	require.Len(t, subs, 1)
	assert.Equal(t, id, subs[0].TaskID)

	w = env.doJSON(t, http.MethodGet, "/api/v1/workers/w-7/submissions?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
