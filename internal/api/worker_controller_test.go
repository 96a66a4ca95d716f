package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// submitHoneypot 创建一个蜜罐任务并让工作者提交
func submitHoneypot(t *testing.T, env *apiEnv, userID, answer string) string {
	t.Helper()
	id := env.createTask(t, map[string]interface{}{
		"is_honeypot":    true,
		"expected_label": "cat",
		"difficulty":     "easy",
		"points":         10,
	})
	w := env.doJSON(t, http.MethodPost, "/api/v1/submissions", map[string]interface{}{
		"task_id": id, "user_id": userID, "answer": answer,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return id
}

func TestWorkerController_GetTrust(t *testing.T) {
	env := newAPIEnv(t)
	submitHoneypot(t, env, "w-1", "cat")

	w := env.doJSON(t, http.MethodGet, "/api/v1/workers/w-1/trust", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var record struct {
		UserID         string  `json:"user_id"`
		TotalAttempted int     `json:"total_attempted"`
		TrustScore     float64 `json:"trust_score"`
	}
	decodeData(t, w, &record)
	assert.Equal(t, "w-1", record.UserID)
	assert.Equal(t, 1, record.TotalAttempted)
	assert.Greater(t, record.TrustScore, 50.0)
}

func TestWorkerController_GetTrustNotFound(t *testing.T) {
	env := newAPIEnv(t)

	w := env.doJSON(t, http.MethodGet, "/api/v1/workers/never-seen/trust", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWorkerController_Eligibility(t *testing.T) {
	env := newAPIEnv(t)
	submitHoneypot(t, env, "w-1", "cat")

	w := env.doJSON(t, http.MethodGet, "/api/v1/workers/w-1/eligibility", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		UserID   string `json:"user_id"`
		Eligible bool   `json:"eligible"`
	}
	decodeData(t, w, &resp)
	assert.True(t, resp.Eligible)
}

func TestWorkerController_NextHoneypot(t *testing.T) {
	env := newAPIEnv(t)
	env.createTask(t, map[string]interface{}{
		"is_honeypot":    true,
		"expected_label": "cat",
		"difficulty":     "easy",
		"points":         10,
	})

	w := env.doJSON(t, http.MethodGet, "/api/v1/workers/w-1/next-honeypot", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var hp struct {
		TaskID        string `json:"task_id"`
		Difficulty    string `json:"difficulty"`
		ExpectedLabel string `json:"expected_label"`
	}
	decodeData(t, w, &hp)
	assert.NotEmpty(t, hp.TaskID)
	assert.Equal(t, "EASY", hp.Difficulty)
	// 不向工作者泄露标准答案
	assert.Empty(t, hp.ExpectedLabel)
}

func TestWorkerController_NextHoneypotRejectsBadLevel(t *testing.T) {
	env := newAPIEnv(t)

	w := env.doJSON(t, http.MethodGet, "/api/v1/workers/w-1/next-honeypot?level=minus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWorkerController_Statistics(t *testing.T) {
	env := newAPIEnv(t)
	submitHoneypot(t, env, "w-1", "cat")

	w := env.doJSON(t, http.MethodGet, "/api/v1/workers/w-1/statistics", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stats struct {
		UserID           string `json:"user_id"`
		TotalSubmissions int64  `json:"total_submissions"`
		CorrectCount     int64  `json:"correct_count"`
	}
	decodeData(t, w, &stats)
	assert.Equal(t, int64(1), stats.TotalSubmissions)
	assert.Equal(t, int64(1), stats.CorrectCount)
}

func TestWorkerController_ResetStats(t *testing.T) {
	env := newAPIEnv(t)
	submitHoneypot(t, env, "w-1", "cat")

	w := env.doJSON(t, http.MethodPost, "/api/v1/workers/w-1/reset", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.doJSON(t, http.MethodGet, "/api/v1/workers/w-1/trust", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
