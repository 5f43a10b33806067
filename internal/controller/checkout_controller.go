package controller

import (
	"learnhub_backend/internal/service"
	"learnhub_backend/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type CheckoutController struct {
	Checkout    *service.CheckoutService
	Enrollments *service.EnrollmentService
}

func NewCheckoutController(checkout *service.CheckoutService, enrollments *service.EnrollmentService) *CheckoutController {
	return &CheckoutController{Checkout: checkout, Enrollments: enrollments}
}

// EnrollRequest 客户端传入的价格会被忽略，以服务端计算为准
type EnrollRequest struct {
	CourseID  uint   `json:"courseId" binding:"required"`
	PromoCode string `json:"promoCode"`
}

// Enroll godoc
// @Summary 发起购买
// @Description 免费课程直接报名；付费课程返回网关 token 与跳转地址
// @Tags 报名
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body EnrollRequest true "课程与优惠码"
// @Success 201 {object} util.Response{data=service.CheckoutResult}
// @Failure 409 {object} util.Response "已报名或课程未上架"
// @Failure 503 {object} util.Response "支付网关不可用，可重试"
// @Router /api/courses/enroll [post]
func (c *CheckoutController) Enroll(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	var req EnrollRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	result, err := c.Checkout.StartCheckout(ctx.Request.Context(), userID, req.CourseID, req.PromoCode)
	if err != nil {
		util.HandleError(ctx, err, zap.Uint("courseID", req.CourseID))
		return
	}
	util.Created(ctx, result)
}

type ConfirmRequest struct {
	CourseID      uint   `json:"courseId" binding:"required"`
	TransactionID string `json:"transactionId" binding:"required"`
}

// ConfirmPayment godoc
// @Summary 确认支付
// @Description 向网关查询交易状态并完成报名，重复调用幂等
// @Tags 报名
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body ConfirmRequest true "课程与交易号"
// @Success 200 {object} util.Response{data=service.CheckoutResult}
// @Failure 202 {object} util.Response "支付尚未完成"
// @Failure 409 {object} util.Response "交易与课程或用户不匹配"
// @Router /api/courses/enroll/confirm [post]
func (c *CheckoutController) ConfirmPayment(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	var req ConfirmRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	result, err := c.Checkout.ConfirmPayment(ctx.Request.Context(), userID, req.CourseID, req.TransactionID)
	if err != nil {
		util.HandleError(ctx, err,
			zap.Uint("courseID", req.CourseID),
			zap.String("transactionID", req.TransactionID))
		return
	}
	util.Success(ctx, result)
}

// Notification godoc
// @Summary 支付网关通知
// @Description Midtrans HTTP notification，使用签名校验，无需登录
// @Tags 报名
// @Accept json
// @Produce json
// @Param body body service.PaymentNotification true "网关通知"
// @Success 200 {object} util.Response{data=service.NotificationResult}
// @Failure 401 {object} util.Response "签名错误"
// @Router /api/payments/notifications [post]
func (c *CheckoutController) Notification(ctx *gin.Context) {
	var n service.PaymentNotification
	if err := ctx.ShouldBindJSON(&n); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	result, err := c.Checkout.HandleNotification(ctx.Request.Context(), &n)
	if err != nil {
		util.HandleError(ctx, err, zap.String("transactionID", n.OrderID))
		return
	}
	util.Success(ctx, result)
}

// ListEnrollments godoc
// @Summary 我的报名
// @Tags 报名
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=[]model.Enrollment}
// @Router /api/enrollments [get]
func (c *CheckoutController) ListEnrollments(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	list, err := c.Enrollments.ListEnrollments(ctx.Request.Context(), userID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, list)
}

// ListPurchases godoc
// @Summary 我的购买记录
// @Tags 报名
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=[]model.PurchaseAttempt}
// @Router /api/purchases [get]
func (c *CheckoutController) ListPurchases(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	list, err := c.Checkout.ListPurchases(ctx.Request.Context(), userID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, list)
}
