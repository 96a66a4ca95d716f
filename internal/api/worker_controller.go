package api

import (
	"net/http"
	"strconv"

	"github.com/crowdqc/quality-gin/internal/honeypot"
	"github.com/crowdqc/quality-gin/internal/service"
	"github.com/gin-gonic/gin"
)

// WorkerController 工作者控制器
// 暴露信任记录、蜜罐资格和下一蜜罐选择
type WorkerController struct {
	engine            *honeypot.Engine
	statisticsService service.StatisticsService
}

// NewWorkerController 创建工作者控制器
func NewWorkerController(engine *honeypot.Engine, statisticsService service.StatisticsService) *WorkerController {
	return &WorkerController{
		engine:            engine,
		statisticsService: statisticsService,
	}
}

// GetTrust 查询工作者信任记录
func (c *WorkerController) GetTrust(ctx *gin.Context) {
	userID := ctx.Param("id")

	record, err := c.engine.GetTrustRecord(userID)
	if err != nil {
		ServiceError(ctx, err)
		return
	}
	if record == nil {
		Error(ctx, http.StatusNotFound, "trust record not found", "worker has no honeypot history")
		return
	}

	Success(ctx, record)
}

// GetEligibility 查询工作者蜜罐资格
func (c *WorkerController) GetEligibility(ctx *gin.Context) {
	userID := ctx.Param("id")

	eligible, err := c.engine.IsEligibleForHoneypot(userID)
	if err != nil {
		ServiceError(ctx, err)
		return
	}

	Success(ctx, gin.H{"user_id": userID, "eligible": eligible})
}

// NextHoneypot 为工作者选择下一个蜜罐
// 无资格或池中没有合适蜜罐时 data 为 null
func (c *WorkerController) NextHoneypot(ctx *gin.Context) {
	userID := ctx.Param("id")

	level := 0
	if v := ctx.Query("level"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			Error(ctx, http.StatusBadRequest, "invalid level", "level must be a non-negative integer")
			return
		}
		level = parsed
	}

	hp, err := c.engine.GetNextHoneypot(userID, level)
	if err != nil {
		ServiceError(ctx, err)
		return
	}
	if hp == nil {
		Success(ctx, nil)
		return
	}

	// 不向工作者泄露标准答案
	Success(ctx, gin.H{
		"task_id":    hp.TaskID,
		"difficulty": hp.Difficulty,
		"points":     hp.Points,
	})
}

// GetStatistics 查询工作者统计
func (c *WorkerController) GetStatistics(ctx *gin.Context) {
	userID := ctx.Param("id")

	stats, err := c.statisticsService.GetWorkerStatistics(userID)
	if err != nil {
		ServiceError(ctx, err)
		return
	}

	Success(ctx, stats)
}

// ResetStats 管理性重置工作者统计
func (c *WorkerController) ResetStats(ctx *gin.Context) {
	userID := ctx.Param("id")

	if err := c.engine.ResetWorkerStats(userID); err != nil {
		ServiceError(ctx, err)
		return
	}

	Success(ctx, nil)
}
