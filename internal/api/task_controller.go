package api

import (
	"net/http"
	"strconv"

	"github.com/crowdqc/quality-gin/internal/repository"
	"github.com/crowdqc/quality-gin/internal/service"
	"github.com/crowdqc/quality-gin/internal/utils"
	"github.com/gin-gonic/gin"
)

// TaskController 任务控制器
type TaskController struct {
	taskService service.TaskService
}

// NewTaskController 创建任务控制器
func NewTaskController(taskService service.TaskService) *TaskController {
	return &TaskController{
		taskService: taskService,
	}
}

// validateTaskID 验证任务 ID 并返回错误响应（如果无效）
func (c *TaskController) validateTaskID(ctx *gin.Context, id string) bool {
	if err := utils.ValidateTaskID(id); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid task ID", err.Error())
		return false
	}
	return true
}

// Create 创建标注任务
// 蜜罐任务需要 expected_label 和 difficulty
func (c *TaskController) Create(ctx *gin.Context) {
	var req service.CreateTaskRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	if req.CreatedBy == "" {
		req.CreatedBy = ctx.GetString("user_id")
	}

	task, err := c.taskService.Create(ctx.Request.Context(), &req)
	if err != nil {
		ServiceError(ctx, err)
		return
	}

	Success(ctx, task)
}

// Get 获取任务详情
func (c *TaskController) Get(ctx *gin.Context) {
	id := ctx.Param("id")
	if !c.validateTaskID(ctx, id) {
		return
	}

	task, err := c.taskService.Get(id)
	if err != nil {
		ServiceError(ctx, err)
		return
	}

	Success(ctx, task)
}

// List 按过滤器查询任务列表
func (c *TaskController) List(ctx *gin.Context) {
	filter := &repository.TaskFilter{}
	if state := ctx.Query("state"); state != "" {
		filter.State = &state
	}
	if batchID := ctx.Query("batch_id"); batchID != "" {
		filter.BatchID = &batchID
	}
	if assignedTo := ctx.Query("assigned_to"); assignedTo != "" {
		filter.AssignedTo = &assignedTo
	}
	if v := ctx.Query("is_honeypot"); v != "" {
		isHoneypot, err := strconv.ParseBool(v)
		if err != nil {
			Error(ctx, http.StatusBadRequest, "invalid is_honeypot", err.Error())
			return
		}
		filter.IsHoneypot = &isHoneypot
	}
	if v := ctx.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			Error(ctx, http.StatusBadRequest, "invalid limit", "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}
	if v := ctx.Query("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			Error(ctx, http.StatusBadRequest, "invalid offset", "offset must be a non-negative integer")
			return
		}
		filter.Offset = offset
	}
	if sortBy := ctx.Query("sort_by"); sortBy != "" {
		if err := utils.ValidateSortField(sortBy); err != nil {
			Error(ctx, http.StatusBadRequest, "invalid sort_by", err.Error())
			return
		}
		order := ctx.DefaultQuery("order", "DESC")
		if err := utils.ValidateSortOrder(order); err != nil {
			Error(ctx, http.StatusBadRequest, "invalid order", err.Error())
			return
		}
		filter.SortBy = sortBy
		filter.SortOrder = order
	}

	tasks, err := c.taskService.List(filter)
	if err != nil {
		ServiceError(ctx, err)
		return
	}

	Success(ctx, tasks)
}

// assignRequest 指派请求
type assignRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// Assign 指派任务给工作者
func (c *TaskController) Assign(ctx *gin.Context) {
	id := ctx.Param("id")
	if !c.validateTaskID(ctx, id) {
		return
	}

	var req assignRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	if err := c.taskService.Assign(ctx.Request.Context(), id, req.UserID); err != nil {
		ServiceError(ctx, err)
		return
	}

	Success(ctx, nil)
}

// Start 工作者开始处理任务
func (c *TaskController) Start(ctx *gin.Context) {
	id := ctx.Param("id")
	if !c.validateTaskID(ctx, id) {
		return
	}

	userID := ctx.GetString("user_id")
	if err := c.taskService.Start(ctx.Request.Context(), id, userID); err != nil {
		ServiceError(ctx, err)
		return
	}

	Success(ctx, nil)
}

// cancelRequest 取消请求
type cancelRequest struct {
	Reason string `json:"reason"`
}

// Cancel 取消任务
func (c *TaskController) Cancel(ctx *gin.Context) {
	id := ctx.Param("id")
	if !c.validateTaskID(ctx, id) {
		return
	}

	var req cancelRequest
	_ = ctx.ShouldBindJSON(&req)

	userID := ctx.GetString("user_id")
	if err := c.taskService.Cancel(ctx.Request.Context(), id, userID, req.Reason); err != nil {
		ServiceError(ctx, err)
		return
	}

	Success(ctx, nil)
}

// Resolve 人工裁决冲突任务
func (c *TaskController) Resolve(ctx *gin.Context) {
	id := ctx.Param("id")
	if !c.validateTaskID(ctx, id) {
		return
	}

	var req service.ResolveRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	if req.Operator == "" {
		req.Operator = ctx.GetString("user_id")
	}

	snap, err := c.taskService.Resolve(ctx.Request.Context(), id, &req)
	if err != nil {
		ServiceError(ctx, err)
		return
	}

	Success(ctx, snap)
}

// History 查询任务状态变更历史
func (c *TaskController) History(ctx *gin.Context) {
	id := ctx.Param("id")
	if !c.validateTaskID(ctx, id) {
		return
	}

	history, err := c.taskService.History(id)
	if err != nil {
		ServiceError(ctx, err)
		return
	}

	Success(ctx, history)
}

// Consensus 查询任务共识状态快照
func (c *TaskController) Consensus(ctx *gin.Context) {
	id := ctx.Param("id")
	if !c.validateTaskID(ctx, id) {
		return
	}

	snap, err := c.taskService.ConsensusState(id)
	if err != nil {
		ServiceError(ctx, err)
		return
	}

	Success(ctx, snap)
}
