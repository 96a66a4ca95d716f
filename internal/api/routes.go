package api

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/crowdqc/quality-gin/internal/auth"
	"github.com/crowdqc/quality-gin/internal/config"
	"github.com/crowdqc/quality-gin/internal/websocket"
)

// SetupRoutes 构建基础路由: 中间件、健康检查、指标端点和 WebSocket
// 业务路由组由 cmd/server.go 注册控制器
func SetupRoutes(cfg *config.Config, db *gorm.DB, hub *websocket.Hub, broker *SSEBroker, validator *auth.TokenValidator) *gin.Engine {
	if cfg != nil && cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// 中间件
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	router.Use(RequestLogMiddleware())
	router.Use(ErrorHandlerMiddleware())
	router.Use(SecurityHeadersMiddleware())
	router.Use(VersionMiddleware())

	if cfg != nil {
		router.Use(HTTPSRedirectMiddlewareWithConfig(cfg.Server.HTTPSRedirect))
		router.Use(CORSMiddleware(cfg.CORS.AllowedOrigins))
		if cfg.Server.RateLimitRPS > 0 {
			router.Use(RateLimitMiddleware(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst))
		}
		if cfg.Tracing.Enabled {
			router.Use(TracingMiddleware())
		}
	}

	// 健康检查
	healthController := NewHealthController(db)
	router.GET("/health", healthController.Check)

	// Prometheus 指标端点
	router.GET("/metrics", MetricsHandler)

	// WebSocket 路由, 客户端通过它接收蜜罐结果和信任分变更事件
	if hub != nil && validator != nil {
		router.GET("/ws", websocket.WebSocketHandler(hub, validator))
	}

	// SSE 路由, 与 WebSocket 等价的单向推送通道
	if broker != nil && validator != nil {
		router.GET("/sse", SSEHandler(broker, validator))
	}

	return router
}

// RegisterAPIRoutes 注册 /api/v1 业务路由组
func RegisterAPIRoutes(
	router *gin.Engine,
	validator *auth.TokenValidator,
	taskController *TaskController,
	submissionController *SubmissionController,
	workerController *WorkerController,
	adminController *AdminController,
	exportController *ExportController,
) {
	v1 := router.Group("/api/v1")
	v1.Use(auth.AuthMiddleware(validator))
	{
		// 任务管理路由
		tasks := v1.Group("/tasks")
		{
			tasks.POST("", taskController.Create)
			tasks.GET("", taskController.List)

			tasks.GET("/:id", taskController.Get)

			// 具体路径的路由（必须在 /:id 之后，Gin 会优先匹配更长的路径）
			tasks.POST("/:id/assign", taskController.Assign)
			tasks.POST("/:id/start", taskController.Start)
			tasks.POST("/:id/cancel", taskController.Cancel)
			tasks.POST("/:id/resolve", taskController.Resolve)
			tasks.GET("/:id/history", taskController.History)
			tasks.GET("/:id/consensus", taskController.Consensus)
			tasks.GET("/:id/submissions", submissionController.ListByTask)
		}

		// 提交路由
		submissions := v1.Group("/submissions")
		{
			submissions.POST("", submissionController.Submit)
		}

		// 工作者路由
		workers := v1.Group("/workers")
		{
			workers.GET("/:id/trust", workerController.GetTrust)
			workers.GET("/:id/eligibility", workerController.GetEligibility)
			workers.GET("/:id/next-honeypot", workerController.NextHoneypot)
			workers.GET("/:id/statistics", workerController.GetStatistics)
			workers.GET("/:id/submissions", submissionController.ListByUser)
			workers.POST("/:id/reset", workerController.ResetStats)
		}

		// 管理路由
		admin := v1.Group("/admin")
		{
			admin.GET("/honeypot/config", adminController.GetHoneypotConfig)
			admin.PUT("/honeypot/config", adminController.UpdateHoneypotConfig)
			admin.GET("/honeypot/statistics", adminController.GetHoneypotStatistics)
			admin.GET("/consensus/statistics", adminController.GetConsensusStatistics)
			admin.GET("/tasks/statistics", adminController.GetTaskStatistics)
			admin.POST("/tasks/expire", adminController.ExpireOverdue)

			// 数据集导出
			admin.POST("/exports", exportController.CreateExport)
			admin.GET("/exports", exportController.ListExports)
			admin.GET("/exports/:filename", exportController.DownloadExport)
			admin.DELETE("/exports/:filename", exportController.DeleteExport)
		}
	}
}
