package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode 错误码类型
type ErrorCode string

// 预定义错误码（故障分类）
const (
	// 调用方输入错误
	ErrCodeValidationFault ErrorCode = "VALIDATION_FAULT"

	// 摄取阶段错误（解析/分块失败）
	ErrCodeIngestFault ErrorCode = "INGEST_FAULT"

	// 外部能力错误
	ErrCodeEmbeddingFault  ErrorCode = "EMBEDDING_FAULT"
	ErrCodeGenerationFault ErrorCode = "GENERATION_FAULT"

	// 一致性错误：子块引用了不存在的父块（就地降级，不向上传播）
	ErrCodeConsistencyFault ErrorCode = "CONSISTENCY_FAULT"

	// 持久化错误
	ErrCodeLoadFault    ErrorCode = "LOAD_FAULT"
	ErrCodeStorageFault ErrorCode = "STORAGE_FAULT"

	// 查找错误
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// 通用错误
	ErrCodeInternalServer ErrorCode = "INTERNAL_SERVER_ERROR"
)

// AppError 应用错误结构体
type AppError struct {
	Code     ErrorCode   `json:"code"`
	Message  string      `json:"message"`
	HTTPCode int         `json:"-"`
	Details  interface{} `json:"details,omitempty"`
	Cause    error       `json:"-"`
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails 添加错误详情
func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

// WithCause 添加错误原因
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

func newError(code ErrorCode, httpCode int, message string) *AppError {
	return &AppError{
		Code:     code,
		Message:  message,
		HTTPCode: httpCode,
	}
}

// NewValidationFault 调用方输入不合法
func NewValidationFault(message string) *AppError {
	return newError(ErrCodeValidationFault, http.StatusBadRequest, message)
}

// NewIngestFault 文档解析或分块失败
func NewIngestFault(message string) *AppError {
	return newError(ErrCodeIngestFault, http.StatusUnprocessableEntity, message)
}

// NewEmbeddingFault 向量化服务不可达或返回非法结果
func NewEmbeddingFault(message string) *AppError {
	return newError(ErrCodeEmbeddingFault, http.StatusBadGateway, message)
}

// NewGenerationFault 生成模型调用失败
func NewGenerationFault(message string) *AppError {
	return newError(ErrCodeGenerationFault, http.StatusBadGateway, message)
}

// NewConsistencyFault 子块引用的父块不存在
func NewConsistencyFault(message string) *AppError {
	return newError(ErrCodeConsistencyFault, http.StatusInternalServerError, message)
}

// NewLoadFault 持久化数据不可读或已损坏（加载无副作用）
func NewLoadFault(message string) *AppError {
	return newError(ErrCodeLoadFault, http.StatusInternalServerError, message)
}

// NewStorageFault 持久化写入失败（内存状态保持不变，可重试）
func NewStorageFault(message string) *AppError {
	return newError(ErrCodeStorageFault, http.StatusInternalServerError, message)
}

// NewNotFound 条目不存在
func NewNotFound(message string) *AppError {
	return newError(ErrCodeNotFound, http.StatusNotFound, message)
}

// NewInternalError 内部错误
func NewInternalError(message string) *AppError {
	return newError(ErrCodeInternalServer, http.StatusInternalServerError, message)
}

// IsCode 判断错误链中是否存在指定错误码
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// HTTPStatus 从错误中提取HTTP状态码，非AppError时返回500
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.HTTPCode != 0 {
		return appErr.HTTPCode
	}
	return http.StatusInternalServerError
}
