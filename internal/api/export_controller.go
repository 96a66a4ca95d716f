package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/crowdqc/quality-gin/internal/service"
)

// ExportController 数据集导出控制器
type ExportController struct {
	exportService *service.ExportService
}

// NewExportController 创建导出控制器
func NewExportController(exportService *service.ExportService) *ExportController {
	return &ExportController{
		exportService: exportService,
	}
}

// CreateExport 导出已完成任务
// batch_id 参数可选, 只导出指定批次
func (c *ExportController) CreateExport(ctx *gin.Context) {
	batchID := ctx.Query("batch_id")

	info, count, err := c.exportService.CreateExport(ctx.Request.Context(), batchID)
	if err != nil {
		Error(ctx, http.StatusInternalServerError, "failed to create export", err.Error())
		return
	}

	Success(ctx, gin.H{
		"export": info,
		"tasks":  count,
	})
}

// ListExports 列出所有导出文件
func (c *ExportController) ListExports(ctx *gin.Context) {
	exports, err := c.exportService.ListExports(ctx.Request.Context())
	if err != nil {
		Error(ctx, http.StatusInternalServerError, "failed to list exports", err.Error())
		return
	}

	Success(ctx, exports)
}

// DownloadExport 下载导出文件
func (c *ExportController) DownloadExport(ctx *gin.Context) {
	filename := ctx.Param("filename")
	if filename == "" {
		Error(ctx, http.StatusBadRequest, "invalid filename", "filename is required")
		return
	}

	exports, err := c.exportService.ListExports(ctx.Request.Context())
	if err != nil {
		Error(ctx, http.StatusInternalServerError, "failed to list exports", err.Error())
		return
	}

	for _, export := range exports {
		if export.Filename == filename {
			ctx.FileAttachment(export.Path, export.Filename)
			return
		}
	}

	Error(ctx, http.StatusNotFound, "export not found", "")
}

// DeleteExport 删除导出文件
func (c *ExportController) DeleteExport(ctx *gin.Context) {
	filename := ctx.Param("filename")
	if filename == "" {
		Error(ctx, http.StatusBadRequest, "invalid filename", "filename is required")
		return
	}

	if err := c.exportService.DeleteExport(ctx.Request.Context(), filename); err != nil {
		Error(ctx, http.StatusInternalServerError, "failed to delete export", err.Error())
		return
	}

	Success(ctx, nil)
}
