package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"learnhub_backend/internal/model"
	"learnhub_backend/internal/repository"
	"learnhub_backend/internal/util"
	"learnhub_backend/pkg/logger"
	"learnhub_backend/pkg/monitoring"
	"learnhub_backend/pkg/tracing"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var openStatuses = []model.PurchaseStatus{model.PurchaseInitiated, model.PurchasePaymentPending}

type CheckoutResult struct {
	Purchase   *model.PurchaseAttempt `json:"purchase"`
	Enrollment *model.Enrollment      `json:"enrollment,omitempty"`
}

// NotificationResult webhook 处理结果；ignored/pending/failed 均返回 200，避免网关无限重试
type NotificationResult struct {
	OrderID string         `json:"orderId"`
	Outcome GatewayOutcome `json:"outcome"`
	Status  string         `json:"status"`
}

// CheckoutService 购买状态机：INITIATED -> PAYMENT_PENDING -> PAYMENT_CONFIRMED -> ENROLLED，任一阶段可进入 FAILED
type CheckoutService struct {
	PurchaseRepo   *repository.PurchaseRepository
	CourseRepo     *repository.CourseRepository
	UserRepo       *repository.UserRepository
	Enrollments    *EnrollmentService
	Eligibility    *EligibilityService
	Gateway        PaymentGateway
	Currency       string
	ConfirmTimeout time.Duration
}

func NewCheckoutService(
	purchaseRepo *repository.PurchaseRepository,
	courseRepo *repository.CourseRepository,
	userRepo *repository.UserRepository,
	enrollments *EnrollmentService,
	eligibility *EligibilityService,
	gateway PaymentGateway,
	currency string,
	confirmTimeout time.Duration,
) *CheckoutService {
	if confirmTimeout <= 0 {
		confirmTimeout = 5 * time.Second
	}
	return &CheckoutService{
		PurchaseRepo:   purchaseRepo,
		CourseRepo:     courseRepo,
		UserRepo:       userRepo,
		Enrollments:    enrollments,
		Eligibility:    eligibility,
		Gateway:        gateway,
		Currency:       currency,
		ConfirmTimeout: confirmTimeout,
	}
}

func newTransactionID() string {
	return "LH-" + strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))
}

func applyPromo(amount int64, percentOff int) int64 {
	if percentOff <= 0 {
		return amount
	}
	if percentOff >= 100 {
		return 0
	}
	return (amount*int64(100-percentOff) + 50) / 100
}

func (s *CheckoutService) transition(ctx context.Context, p *model.PurchaseAttempt, from []model.PurchaseStatus, to model.PurchaseStatus, fields map[string]interface{}) (bool, error) {
	changed, err := s.PurchaseRepo.Transition(ctx, p.ID, from, to, fields)
	if err != nil {
		return false, err
	}
	if changed {
		monitoring.CheckoutTransitions.WithLabelValues(string(to)).Inc()
		logger.Log.Info("购买状态变更",
			zap.String("transactionID", p.TransactionID),
			zap.Uint("userID", p.UserID),
			zap.Uint("courseID", p.CourseID),
			zap.String("to", string(to)))
	}
	return changed, nil
}

// StartCheckout 金额始终由服务端根据课程与优惠码计算
func (s *CheckoutService) StartCheckout(ctx context.Context, userID, courseID uint, promoCode string) (result *CheckoutResult, err error) {
	ctx, span := tracing.Start(ctx, "checkout.start",
		attribute.Int64("user.id", int64(userID)),
		attribute.Int64("course.id", int64(courseID)))
	defer func() {
		tracing.RecordError(span, err)
		span.End()
	}()

	course, err := s.CourseRepo.FindByID(ctx, courseID)
	if err != nil {
		return nil, notFound(err)
	}
	if !course.IsAvailable {
		return nil, util.ErrCourseUnavailable
	}
	enrolled, err := s.Enrollments.IsEnrolled(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	if enrolled {
		return nil, util.ErrAlreadyEnrolled
	}

	listPrice := EffectivePrice(course)
	amount := listPrice
	promoCode = strings.ToUpper(strings.TrimSpace(promoCode))
	if promoCode != "" {
		promo, err := s.PurchaseRepo.FindPromo(ctx, promoCode)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, util.ErrInvalidPromo
			}
			return nil, err
		}
		ok, err := s.PurchaseRepo.ReservePromo(ctx, promoCode, time.Now())
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, util.ErrInvalidPromo
		}
		amount = applyPromo(amount, promo.PercentOff)
	}

	attempt := &model.PurchaseAttempt{
		UserID:        userID,
		CourseID:      courseID,
		TransactionID: newTransactionID(),
		PromoCode:     promoCode,
		ListPrice:     listPrice,
		Amount:        amount,
		Currency:      s.Currency,
		Status:        model.PurchaseInitiated,
	}
	if err := s.PurchaseRepo.Create(ctx, attempt); err != nil {
		s.releasePromo(promoCode)
		return nil, err
	}
	span.SetAttributes(attribute.String("transaction.id", attempt.TransactionID))

	// 免费课程跳过网关
	if amount == 0 {
		if _, err := s.transition(ctx, attempt, []model.PurchaseStatus{model.PurchaseInitiated}, model.PurchasePaymentConfirmed, nil); err != nil {
			return nil, err
		}
		enrollment, err := s.completeEnrollment(ctx, attempt)
		if err != nil {
			return nil, err
		}
		return &CheckoutResult{Purchase: s.reload(ctx, attempt), Enrollment: enrollment}, nil
	}

	req := ChargeRequest{
		OrderID:     attempt.TransactionID,
		Amount:      amount,
		CourseID:    course.ID,
		CourseTitle: course.Title,
	}
	if user, err := s.UserRepo.FindByID(ctx, userID); err == nil {
		req.CustomerName = user.Name
		req.CustomerEmail = user.Email
	}

	gwCtx, cancel := context.WithTimeout(ctx, s.ConfirmTimeout)
	defer cancel()
	resp, gwErr := s.Gateway.CreateTransaction(gwCtx, req)
	if gwErr != nil {
		logger.Log.Error("创建支付交易失败",
			zap.String("transactionID", attempt.TransactionID),
			zap.Uint("userID", userID),
			zap.Uint("courseID", courseID),
			zap.Error(gwErr))
		if _, err := s.transition(ctx, attempt, openStatuses, model.PurchaseFailed, map[string]interface{}{
			"failure_reason": truncate(gwErr.Error(), 255),
		}); err != nil {
			return nil, err
		}
		s.releasePromo(promoCode)
		return nil, fmt.Errorf("%w: %v", util.ErrExternalService, gwErr)
	}

	if _, err := s.transition(ctx, attempt, []model.PurchaseStatus{model.PurchaseInitiated}, model.PurchasePaymentPending, map[string]interface{}{
		"gateway_token": resp.Token,
		"redirect_url":  resp.RedirectURL,
	}); err != nil {
		return nil, err
	}
	return &CheckoutResult{Purchase: s.reload(ctx, attempt)}, nil
}

// ConfirmPayment 客户端支付完成后的回调，向网关查询最终状态（有超时）
func (s *CheckoutService) ConfirmPayment(ctx context.Context, userID, courseID uint, transactionID string) (result *CheckoutResult, err error) {
	ctx, span := tracing.Start(ctx, "checkout.confirm",
		attribute.Int64("user.id", int64(userID)),
		attribute.Int64("course.id", int64(courseID)),
		attribute.String("transaction.id", transactionID))
	defer func() {
		tracing.RecordError(span, err)
		span.End()
	}()

	attempt, err := s.PurchaseRepo.FindByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, notFound(err)
	}
	if attempt.UserID != userID || attempt.CourseID != courseID {
		return nil, util.ErrPaymentMismatch
	}

	switch attempt.Status {
	case model.PurchaseEnrolled:
		e, err := s.Enrollments.EnrollmentRepo.FindByUserAndCourse(ctx, userID, courseID)
		if err != nil {
			return nil, notFound(err)
		}
		return &CheckoutResult{Purchase: attempt, Enrollment: e}, nil
	case model.PurchaseFailed:
		return nil, util.ErrPaymentFailed
	case model.PurchasePaymentConfirmed:
		e, err := s.completeEnrollment(ctx, attempt)
		if err != nil {
			return nil, err
		}
		return &CheckoutResult{Purchase: s.reload(ctx, attempt), Enrollment: e}, nil
	}

	gwCtx, cancel := context.WithTimeout(ctx, s.ConfirmTimeout)
	defer cancel()
	status, gwErr := s.Gateway.CheckStatus(gwCtx, transactionID)
	if gwErr != nil {
		logger.Log.Warn("查询支付状态失败",
			zap.String("transactionID", transactionID),
			zap.Uint("userID", userID),
			zap.Error(gwErr))
		return nil, fmt.Errorf("%w: %v", util.ErrExternalService, gwErr)
	}

	_, e, err := s.applyGatewayStatus(ctx, attempt, status.TransactionStatus, status.FraudStatus, status.GrossAmount)
	if err != nil {
		return nil, err
	}
	return &CheckoutResult{Purchase: s.reload(ctx, attempt), Enrollment: e}, nil
}

// HandleNotification 处理网关异步通知，重复投递是幂等的
func (s *CheckoutService) HandleNotification(ctx context.Context, n *PaymentNotification) (result *NotificationResult, err error) {
	ctx, span := tracing.Start(ctx, "checkout.notification",
		attribute.String("transaction.id", n.OrderID),
		attribute.String("gateway.status", n.TransactionStatus))
	defer func() {
		tracing.RecordError(span, err)
		span.End()
	}()

	if !s.Gateway.VerifySignature(n) {
		monitoring.GatewayNotifications.WithLabelValues("rejected").Inc()
		logger.Log.Warn("支付通知签名校验失败", zap.String("orderID", n.OrderID))
		return nil, util.ErrInvalidSignature
	}

	payload, _ := json.Marshal(n)
	event := &model.PaymentGatewayEvent{
		Provider:          "midtrans",
		OrderID:           n.OrderID,
		TransactionStatus: n.TransactionStatus,
		FraudStatus:       n.FraudStatus,
		GrossAmount:       n.GrossAmount,
		Payload:           datatypes.JSON(payload),
		Status:            "received",
	}
	if err := s.PurchaseRepo.LogGatewayEvent(ctx, event); err != nil {
		logger.Log.Error("记录支付通知失败", zap.String("orderID", n.OrderID), zap.Error(err))
	}
	finish := func(status string, procErr error) {
		monitoring.GatewayNotifications.WithLabelValues(status).Inc()
		if event.ID == 0 {
			return
		}
		msg := ""
		if procErr != nil {
			msg = procErr.Error()
		}
		if err := s.PurchaseRepo.UpdateGatewayEvent(context.Background(), event.ID, status, msg); err != nil {
			logger.Log.Warn("更新支付通知状态失败", zap.Uint("eventID", event.ID), zap.Error(err))
		}
	}

	attempt, err := s.PurchaseRepo.FindByTransactionID(ctx, n.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			finish("ignored", errors.New("purchase attempt not found"))
			return &NotificationResult{OrderID: n.OrderID, Outcome: OutcomeIgnored, Status: "ignored"}, nil
		}
		finish("failed", err)
		return nil, err
	}

	outcome, _, err := s.applyGatewayStatus(ctx, attempt, n.TransactionStatus, n.FraudStatus, n.GrossAmount)
	switch {
	case err == nil, errors.Is(err, util.ErrPaymentPending), errors.Is(err, util.ErrPaymentFailed):
		finish("processed", nil)
		current := s.reload(ctx, attempt)
		return &NotificationResult{OrderID: n.OrderID, Outcome: outcome, Status: string(current.Status)}, nil
	default:
		finish("failed", err)
		return nil, err
	}
}

// applyGatewayStatus 根据网关状态推进状态机；金额不一致时不做任何转换
func (s *CheckoutService) applyGatewayStatus(ctx context.Context, attempt *model.PurchaseAttempt, transactionStatus, fraudStatus, grossAmount string) (GatewayOutcome, *model.Enrollment, error) {
	outcome := MapMidtransStatus(transactionStatus, fraudStatus)
	if outcome == OutcomeIgnored {
		return outcome, nil, nil
	}

	if grossAmount != "" {
		paid, err := ParseGrossAmount(grossAmount)
		if err != nil || paid != attempt.Amount {
			logger.Log.Error("支付金额与订单不一致",
				zap.String("transactionID", attempt.TransactionID),
				zap.Uint("userID", attempt.UserID),
				zap.Uint("courseID", attempt.CourseID),
				zap.Int64("expected", attempt.Amount),
				zap.String("gross", grossAmount))
			return outcome, nil, util.ErrPaymentMismatch
		}
	}

	switch outcome {
	case OutcomePending:
		return outcome, nil, util.ErrPaymentPending
	case OutcomeFailed:
		changed, err := s.transition(ctx, attempt, openStatuses, model.PurchaseFailed, map[string]interface{}{
			"failure_reason": "gateway status: " + transactionStatus,
		})
		if err != nil {
			return outcome, nil, err
		}
		if changed {
			s.releasePromo(attempt.PromoCode)
		}
		return outcome, nil, util.ErrPaymentFailed
	}

	if _, err := s.transition(ctx, attempt, openStatuses, model.PurchasePaymentConfirmed, map[string]interface{}{"failure_reason": ""}); err != nil {
		return outcome, nil, err
	}
	current := s.reload(ctx, attempt)
	switch current.Status {
	case model.PurchaseFailed:
		return outcome, nil, util.ErrPaymentFailed
	case model.PurchaseEnrolled:
		e, err := s.Enrollments.EnrollmentRepo.FindByUserAndCourse(ctx, attempt.UserID, attempt.CourseID)
		if err != nil {
			return outcome, nil, notFound(err)
		}
		return outcome, e, nil
	}
	e, err := s.completeEnrollment(ctx, current)
	return outcome, e, err
}

// completeEnrollment PAYMENT_CONFIRMED -> ENROLLED；报名写入对 transactionID 幂等
func (s *CheckoutService) completeEnrollment(ctx context.Context, attempt *model.PurchaseAttempt) (*model.Enrollment, error) {
	exists, err := s.CourseRepo.Exists(ctx, attempt.CourseID)
	if err != nil {
		return nil, err
	}
	if !exists {
		// 付款期间课程被删除：不写报名，转人工退款
		logger.Log.Error("课程已删除，支付需人工退款",
			zap.String("transactionID", attempt.TransactionID),
			zap.Uint("userID", attempt.UserID),
			zap.Uint("courseID", attempt.CourseID),
			zap.Int64("amount", attempt.Amount))
		if _, err := s.transition(ctx, attempt, []model.PurchaseStatus{model.PurchasePaymentConfirmed}, model.PurchaseFailed, map[string]interface{}{
			"failure_reason": "course deleted",
		}); err != nil {
			return nil, err
		}
		return nil, util.ErrPaymentFailed
	}

	e, err := s.Enrollments.Enroll(ctx, attempt.UserID, attempt.CourseID, attempt.TransactionID, attempt.Amount)
	if err != nil {
		logger.Log.Error("支付已确认但报名写入失败",
			zap.String("transactionID", attempt.TransactionID),
			zap.Uint("userID", attempt.UserID),
			zap.Uint("courseID", attempt.CourseID),
			zap.Error(err))
		return nil, err
	}
	if e.TransactionID != attempt.TransactionID {
		// 同一课程被重复支付，保留原报名，需人工退款
		logger.Log.Warn("重复支付同一课程",
			zap.String("transactionID", attempt.TransactionID),
			zap.String("enrolledWith", e.TransactionID),
			zap.Uint("userID", attempt.UserID))
	}

	if _, err := s.transition(ctx, attempt, []model.PurchaseStatus{model.PurchasePaymentConfirmed}, model.PurchaseEnrolled, map[string]interface{}{
		"enrollment_id": e.ID,
	}); err != nil {
		return nil, err
	}
	if s.Eligibility != nil {
		s.Eligibility.RefreshAsync(attempt.UserID, attempt.CourseID)
	}
	return e, nil
}

func (s *CheckoutService) reload(ctx context.Context, attempt *model.PurchaseAttempt) *model.PurchaseAttempt {
	fresh, err := s.PurchaseRepo.FindByTransactionID(ctx, attempt.TransactionID)
	if err != nil {
		return attempt
	}
	return fresh
}

func (s *CheckoutService) releasePromo(code string) {
	if code == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.PurchaseRepo.ReleasePromo(ctx, code); err != nil {
		logger.Log.Warn("释放优惠码额度失败", zap.String("code", code), zap.Error(err))
	}
}

func (s *CheckoutService) ListPurchases(ctx context.Context, userID uint) ([]model.PurchaseAttempt, error) {
	return s.PurchaseRepo.ListByUser(ctx, userID)
}

// Reconcile 补偿丢失的 webhook：重新查询长时间未完成的购买
func (s *CheckoutService) Reconcile(ctx context.Context, olderThan time.Duration) int {
	stale, err := s.PurchaseRepo.ListStale(ctx, time.Now().Add(-olderThan), 100)
	if err != nil {
		logger.Log.Error("查询待对账购买失败", zap.Error(err))
		return 0
	}
	done := 0
	for i := range stale {
		attempt := &stale[i]
		if attempt.Status == model.PurchasePaymentConfirmed {
			if _, err := s.completeEnrollment(ctx, attempt); err == nil {
				done++
			}
			continue
		}
		gwCtx, cancel := context.WithTimeout(ctx, s.ConfirmTimeout)
		status, err := s.Gateway.CheckStatus(gwCtx, attempt.TransactionID)
		cancel()
		if err != nil {
			logger.Log.Warn("对账查询失败", zap.String("transactionID", attempt.TransactionID), zap.Error(err))
			continue
		}
		if _, _, err := s.applyGatewayStatus(ctx, attempt, status.TransactionStatus, status.FraudStatus, status.GrossAmount); err == nil {
			done++
		}
	}
	return done
}

// RunReconciler 周期执行对账直到 ctx 取消
func (s *CheckoutService) RunReconciler(ctx context.Context, interval, olderThan time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Reconcile(ctx, olderThan); n > 0 {
				logger.Log.Info("对账完成", zap.Int("resolved", n))
			}
		}
	}
}
