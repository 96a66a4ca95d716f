package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/crowdqc/quality-gin/internal/auth"
	"github.com/crowdqc/quality-gin/internal/config"
	"github.com/crowdqc/quality-gin/internal/consensus"
	"github.com/crowdqc/quality-gin/internal/database"
	"github.com/crowdqc/quality-gin/internal/eventbus"
	"github.com/crowdqc/quality-gin/internal/honeypot"
	"github.com/crowdqc/quality-gin/internal/repository"
	"github.com/crowdqc/quality-gin/internal/service"
)

// apiEnv API 测试环境: 完整服务栈 + 注册好路由的 gin 引擎
type apiEnv struct {
	router  *gin.Engine
	db      *gorm.DB
	taskSvc service.TaskService
	subSvc  service.SubmissionService
	engine  *honeypot.Engine
	tasks   repository.TaskRepository
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	tasks := repository.NewTaskRepository(db)
	subs := repository.NewSubmissionRepository(db)
	history := repository.NewStateHistoryRepository(db)
	events := repository.NewEventRepository(db)
	ledger := repository.NewTrustRepository(db)
	hpStore := repository.NewHoneypotRepository(db)

	bus := eventbus.New(events, 1, logger)
	t.Cleanup(bus.Stop)

	engine, err := honeypot.NewEngine(honeypot.DefaultConfig(), ledger, hpStore, bus, honeypot.RealClock(), logger)
	require.NoError(t, err)

	registry := service.NewRegistry(tasks, subs)
	aggregator := consensus.NewAggregator(consensus.DefaultConfig())
	taskSvc := service.NewTaskService(registry, tasks, subs, history, aggregator, hpStore, consensus.NewDefaults(), logger)
	subSvc := service.NewSubmissionService(registry, tasks, subs, history, aggregator, engine, logger)
	statsSvc := service.NewStatisticsService(db, engine)
	exportSvc := service.NewExportService(db, config.ExportConfig{Dir: t.TempDir()}, logger)

	// 空密钥: 认证中间件透传, 身份来自 X-User-ID 头
	validator := auth.NewTokenValidator("", "")

	router := gin.New()
	RegisterAPIRoutes(router, validator,
		NewTaskController(taskSvc),
		NewSubmissionController(subSvc),
		NewWorkerController(engine, statsSvc),
		NewAdminController(engine, taskSvc, statsSvc),
		NewExportController(exportSvc),
	)

	return &apiEnv{
		router:  router,
		db:      db,
		taskSvc: taskSvc,
		subSvc:  subSvc,
		engine:  engine,
		tasks:   tasks,
	}
}

// doJSON 发送 JSON 请求并返回响应
func (e *apiEnv) doJSON(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "tester")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// decodeData 解析统一响应体的 data 字段
func decodeData(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()

	var resp struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 0, resp.Code)
	if out != nil {
		require.NoError(t, json.Unmarshal(resp.Data, out))
	}
}

// createTask 通过 HTTP 创建任务并返回任务 ID
func (e *apiEnv) createTask(t *testing.T, req map[string]interface{}) string {
	t.Helper()

	if _, ok := req["payload"]; !ok {
		req["payload"] = map[string]string{"image_url": "https://example.com/1.jpg"}
	}
	w := e.doJSON(t, http.MethodPost, "/api/v1/tasks", req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var task struct {
		ID string `json:"ID"`
	}
	decodeData(t, w, &task)
	require.NotEmpty(t, task.ID)
	return task.ID
}
