package api

import (
	"net/http"
	"strconv"

	"github.com/crowdqc/quality-gin/internal/service"
	"github.com/crowdqc/quality-gin/internal/utils"
	"github.com/gin-gonic/gin"
)

// SubmissionController 提交控制器
type SubmissionController struct {
	submissionService service.SubmissionService
}

// NewSubmissionController 创建提交控制器
func NewSubmissionController(submissionService service.SubmissionService) *SubmissionController {
	return &SubmissionController{
		submissionService: submissionService,
	}
}

// Submit 工作者提交标注结果
// 蜜罐任务立即返回判定结果,普通任务返回当前共识快照
func (c *SubmissionController) Submit(ctx *gin.Context) {
	var req service.SubmitRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	if req.UserID == "" {
		req.UserID = ctx.GetString("user_id")
	}
	if err := utils.ValidateLabel(req.Answer); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid answer", err.Error())
		return
	}

	result, err := c.submissionService.Submit(ctx.Request.Context(), &req)
	if err != nil {
		ServiceError(ctx, err)
		return
	}

	Success(ctx, result)
}

// ListByTask 查询任务的全部提交
func (c *SubmissionController) ListByTask(ctx *gin.Context) {
	taskID := ctx.Param("id")
	if err := utils.ValidateTaskID(taskID); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid task ID", err.Error())
		return
	}

	subs, err := c.submissionService.ListByTask(taskID)
	if err != nil {
		ServiceError(ctx, err)
		return
	}

	Success(ctx, subs)
}

// ListByUser 查询工作者最近的提交
func (c *SubmissionController) ListByUser(ctx *gin.Context) {
	userID := ctx.Param("id")
	if userID == "" {
		Error(ctx, http.StatusBadRequest, "invalid user ID", "user ID is required")
		return
	}

	limit := 50
	if v := ctx.Query("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			Error(ctx, http.StatusBadRequest, "invalid limit", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	subs, err := c.submissionService.ListByUser(userID, limit)
	if err != nil {
		ServiceError(ctx, err)
		return
	}

	Success(ctx, subs)
}
