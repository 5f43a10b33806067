package util

import "errors"

var (
	ErrNotFound            = errors.New("resource not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrValidation          = errors.New("validation failed")
	ErrEmailRegistered     = errors.New("该邮箱已被注册")
	ErrInvalidCredentials  = errors.New("邮箱或密码错误")
	ErrInsufficientPoints  = errors.New("insufficient points")
	ErrPaymentMismatch     = errors.New("transaction does not match course or user")
	ErrExternalService     = errors.New("external service unavailable")
	ErrPaymentPending      = errors.New("payment not confirmed yet")
	ErrPaymentFailed       = errors.New("payment failed")
	ErrAlreadyEnrolled     = errors.New("already enrolled in this course")
	ErrNotEnrolled         = errors.New("not enrolled in this course")
	ErrCourseUnavailable   = errors.New("course is not available")
	ErrQuizLocked          = errors.New("quiz is locked until enough videos are watched")
	ErrAlreadyGraded       = errors.New("submission already graded")
	ErrAlreadyApplied      = errors.New("ambassador application already exists")
	ErrAmbassadorNotActive = errors.New("ambassador is not active")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrNotEligible         = errors.New("not eligible for certificate")
	ErrInvalidPromo        = errors.New("invalid or exhausted promo code")
	ErrInvalidSignature    = errors.New("invalid signature")
	ErrInvalidFileType     = errors.New("invalid file type")
)

// IsRetryable 客户端可重试的错误（网关超时、支付未确认）
func IsRetryable(err error) bool {
	return errors.Is(err, ErrExternalService) || errors.Is(err, ErrPaymentPending)
}
