// Package dto holds the request and response shapes of the HTTP API.
package dto

import (
	"time"

	"github.com/turtacn/fincore-risk/pkg/constants"
	"github.com/turtacn/fincore-risk/pkg/errors"
)

// APIResponse 通用 API 响应结构
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *ErrorDTO   `json:"error,omitempty"`
	TraceID   string      `json:"trace_id,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// ErrorDTO 错误信息 DTO
type ErrorDTO struct {
	Code        string                 `json:"code"`
	Message     string                 `json:"message"`
	Description string                 `json:"description,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
}

// SuccessResponse 创建成功响应
func SuccessResponse(data interface{}, traceID string) *APIResponse {
	return &APIResponse{
		Success:   true,
		Data:      data,
		TraceID:   traceID,
		Timestamp: time.Now().Unix(),
	}
}

// ErrorResponse 创建错误响应，并返回对应的 HTTP 状态码
func ErrorResponse(err error, traceID string) (int, *APIResponse) {
	status, body := errors.ToGenericErrorResponse(err)
	message := body.Message
	if message == "" {
		message = body.ErrorDescription
	}
	return status, &APIResponse{
		Success: false,
		Error: &ErrorDTO{
			Code:        body.Error,
			Message:     message,
			Description: body.ErrorDescription,
			Details:     body.Metadata,
		},
		TraceID:   traceID,
		Timestamp: time.Now().Unix(),
	}
}

// NotFoundResponse 创建资源未找到响应
func NotFoundResponse(resource string, traceID string) *APIResponse {
	return &APIResponse{
		Success: false,
		Error: &ErrorDTO{
			Code:        string(constants.ErrCodeNotFound),
			Message:     "Resource not found",
			Description: resource + " not found",
		},
		TraceID:   traceID,
		Timestamp: time.Now().Unix(),
	}
}

// WithMetadata 添加元数据到响应
func (r *APIResponse) WithMetadata(key string, value interface{}) *APIResponse {
	if dataMap, ok := r.Data.(map[string]interface{}); ok {
		dataMap[key] = value
	} else {
		r.Data = map[string]interface{}{
			"result": r.Data,
			key:      value,
		}
	}
	return r
}
