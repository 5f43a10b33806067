package util

import (
	"errors"
	"learnhub_backend/pkg/logger"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Response 统一响应结构
type Response struct {
	Code      int         `json:"code"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Retryable bool        `json:"retryable,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    http.StatusCreated,
		Message: "created",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(code, Response{
		Code:    code,
		Message: message,
	})
}

func Unauthorized(c *gin.Context) {
	Error(c, http.StatusUnauthorized, "Unauthorized")
}

func Forbidden(c *gin.Context) {
	Error(c, http.StatusForbidden, "Forbidden")
}

func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

var errorStatus = []struct {
	err  error
	code int
}{
	{ErrValidation, http.StatusBadRequest},
	{ErrInvalidFileType, http.StatusBadRequest},
	{ErrInvalidPromo, http.StatusBadRequest},
	{ErrUnauthorized, http.StatusUnauthorized},
	{ErrInvalidCredentials, http.StatusUnauthorized},
	{ErrInvalidSignature, http.StatusUnauthorized},
	{ErrPermissionDenied, http.StatusForbidden},
	{ErrNotEnrolled, http.StatusForbidden},
	{ErrAmbassadorNotActive, http.StatusForbidden},
	{ErrQuizLocked, http.StatusForbidden},
	{ErrNotFound, http.StatusNotFound},
	{ErrEmailRegistered, http.StatusConflict},
	{ErrAlreadyEnrolled, http.StatusConflict},
	{ErrAlreadyApplied, http.StatusConflict},
	{ErrAlreadyGraded, http.StatusConflict},
	{ErrInvalidTransition, http.StatusConflict},
	{ErrPaymentMismatch, http.StatusConflict},
	{ErrCourseUnavailable, http.StatusConflict},
	{ErrInsufficientPoints, http.StatusUnprocessableEntity},
	{ErrNotEligible, http.StatusUnprocessableEntity},
	{ErrPaymentFailed, http.StatusPaymentRequired},
	{ErrPaymentPending, http.StatusAccepted},
	{ErrExternalService, http.StatusServiceUnavailable},
}

// StatusFor 将业务错误映射为 HTTP 状态码，未知错误为 500
func StatusFor(err error) int {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return http.StatusInternalServerError
}

// HandleError 统一错误出口。5xx 记录日志（附带 user/course/transaction 等上下文），4xx 直接返回可读信息
func HandleError(c *gin.Context, err error, fields ...zap.Field) {
	code := StatusFor(err)
	if code >= http.StatusInternalServerError {
		fields = append(fields, zap.Error(err), zap.String("path", c.FullPath()))
		if claims := GetUserFromContext(c); claims != nil {
			fields = append(fields, zap.Uint("userID", claims.UserID))
		}
		logger.Log.Error("request failed", fields...)
	}

	msg := err.Error()
	if code == http.StatusInternalServerError {
		msg = "Internal server error"
	}
	c.JSON(code, Response{
		Code:      code,
		Message:   msg,
		Retryable: IsRetryable(err),
	})
}
