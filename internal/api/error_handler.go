package api

import (
	"errors"
	"net/http"

	"github.com/crowdqc/quality-gin/internal/consensus"
	"github.com/crowdqc/quality-gin/internal/honeypot"
	"github.com/crowdqc/quality-gin/internal/service"
	"github.com/crowdqc/quality-gin/internal/statemachine"
	"github.com/gin-gonic/gin"
)

// APIError API 错误
type APIError struct {
	Code    int
	Message string
	Detail  string
}

func (e *APIError) Error() string {
	return e.Message
}

// ErrorHandlerMiddleware 错误处理中间件
func ErrorHandlerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			err := c.Errors.Last()

			var apiErr *APIError
			if errors.As(err, &apiErr) {
				Error(c, apiErr.Code, apiErr.Message, apiErr.Detail)
			} else {
				Error(c, http.StatusInternalServerError, "internal server error", err.Error())
			}
		}
	}
}

// WrapError 包装错误
func WrapError(err error, code int, message string) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
		Detail:  err.Error(),
	}
}

// ServiceError 把服务层错误映射为 HTTP 响应
// 领域哨兵错误映射到对应的 4xx,其余一律 500
func ServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrTaskNotFound),
		errors.Is(err, honeypot.ErrHoneypotNotFound):
		Error(c, http.StatusNotFound, "not found", err.Error())
	case errors.Is(err, service.ErrInvalidSubmission):
		Error(c, http.StatusBadRequest, "invalid request", err.Error())
	case errors.Is(err, consensus.ErrDuplicateSubmission):
		Error(c, http.StatusConflict, "duplicate submission", err.Error())
	case errors.Is(err, consensus.ErrTaskTerminal),
		errors.Is(err, honeypot.ErrTaskTerminal),
		errors.Is(err, statemachine.ErrInvalidTransition):
		Error(c, http.StatusConflict, "invalid task state", err.Error())
	case errors.Is(err, honeypot.ErrDailyLimitExceeded):
		Error(c, http.StatusTooManyRequests, "daily honeypot limit exceeded", err.Error())
	default:
		Error(c, http.StatusInternalServerError, "internal server error", err.Error())
	}
}
