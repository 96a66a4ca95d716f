package api

import (
	"net/http"

	"github.com/crowdqc/quality-gin/internal/honeypot"
	"github.com/crowdqc/quality-gin/internal/service"
	"github.com/gin-gonic/gin"
)

// AdminController 管理控制器
// 蜜罐引擎配置、全局统计和过期扫描的管理入口
type AdminController struct {
	engine            *honeypot.Engine
	taskService       service.TaskService
	statisticsService service.StatisticsService
}

// NewAdminController 创建管理控制器
func NewAdminController(engine *honeypot.Engine, taskService service.TaskService, statisticsService service.StatisticsService) *AdminController {
	return &AdminController{
		engine:            engine,
		taskService:       taskService,
		statisticsService: statisticsService,
	}
}

// GetHoneypotConfig 查询蜜罐引擎配置
func (c *AdminController) GetHoneypotConfig(ctx *gin.Context) {
	Success(ctx, c.engine.Config())
}

// UpdateHoneypotConfig 运行时更新蜜罐引擎配置
func (c *AdminController) UpdateHoneypotConfig(ctx *gin.Context) {
	var cfg honeypot.Config
	if err := ctx.ShouldBindJSON(&cfg); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	if err := c.engine.UpdateConfig(cfg); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid config", err.Error())
		return
	}

	Success(ctx, c.engine.Config())
}

// GetHoneypotStatistics 查询蜜罐引擎聚合统计
func (c *AdminController) GetHoneypotStatistics(ctx *gin.Context) {
	stats, err := c.statisticsService.GetHoneypotStatistics()
	if err != nil {
		ServiceError(ctx, err)
		return
	}

	Success(ctx, stats)
}

// GetConsensusStatistics 查询共识整体统计
func (c *AdminController) GetConsensusStatistics(ctx *gin.Context) {
	stats, err := c.statisticsService.GetConsensusStatistics()
	if err != nil {
		ServiceError(ctx, err)
		return
	}

	Success(ctx, stats)
}

// GetTaskStatistics 查询任务状态分布统计
func (c *AdminController) GetTaskStatistics(ctx *gin.Context) {
	byState, err := c.statisticsService.GetTaskStatisticsByState()
	if err != nil {
		ServiceError(ctx, err)
		return
	}
	byTime, err := c.statisticsService.GetTaskStatisticsByTime()
	if err != nil {
		ServiceError(ctx, err)
		return
	}

	Success(ctx, gin.H{
		"by_state": byState,
		"by_time":  byTime,
	})
}

// ExpireOverdue 触发一次过期扫描
func (c *AdminController) ExpireOverdue(ctx *gin.Context) {
	expired, err := c.taskService.ExpireOverdue(ctx.Request.Context())
	if err != nil {
		ServiceError(ctx, err)
		return
	}

	Success(ctx, gin.H{"expired": expired})
}
