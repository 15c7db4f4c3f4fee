package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"texResume/internal/api/middleware"
	"texResume/internal/resume"
)

// requestLogger 优先使用请求级 logger（带 correlation_id），否则回落到 fallback。
func requestLogger(c *gin.Context, fallback *slog.Logger) *slog.Logger {
	if logger, ok := middleware.RequestLogger(c); ok {
		return logger
	}
	if fallback != nil {
		return fallback
	}
	return slog.Default()
}

func Error(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

func AbortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

func Unauthorized(c *gin.Context)           { Error(c, http.StatusUnauthorized, "unauthorized") }
func BadRequest(c *gin.Context, msg string) { Error(c, http.StatusBadRequest, msg) }
func Forbidden(c *gin.Context, msg string)  { Error(c, http.StatusForbidden, msg) }
func NotFound(c *gin.Context, msg string)   { Error(c, http.StatusNotFound, msg) }
func Conflict(c *gin.Context, msg string)   { Error(c, http.StatusConflict, msg) }
func Internal(c *gin.Context, msg string)   { Error(c, http.StatusInternalServerError, msg) }
func Unavailable(c *gin.Context, msg string) {
	Error(c, http.StatusServiceUnavailable, msg)
}

// domainError 把 resume 包的错误映射为 HTTP 状态码。
func domainError(c *gin.Context, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, resume.ErrDuplicateClientID):
		Conflict(c, err.Error())
	case errors.Is(err, resume.ErrNotFound):
		NotFound(c, err.Error())
	case errors.Is(err, resume.ErrInvalidSectionKind),
		errors.Is(err, resume.ErrMalformedBlock),
		errors.Is(err, resume.ErrInvalidResume):
		BadRequest(c, err.Error())
	case errors.Is(err, resume.ErrCorruptBlock):
		logger.Error("corrupt stored block", slog.Any("error", err))
		Internal(c, "internal error")
	case errors.Is(err, resume.ErrStorageUnavailable):
		logger.Error("storage unavailable", slog.Any("error", err))
		Unavailable(c, "storage unavailable")
	default:
		logger.Error("unexpected error", slog.Any("error", err))
		Internal(c, "internal error")
	}
}

// bindError 处理请求体解码失败：块解码产生的领域错误按领域规则映射，其余一律 400。
func bindError(c *gin.Context, logger *slog.Logger, err error) {
	if errors.Is(err, resume.ErrInvalidSectionKind) || errors.Is(err, resume.ErrMalformedBlock) {
		domainError(c, logger, err)
		return
	}
	BadRequest(c, err.Error())
}
