package repository

import (
	"context"
	"learnhub_backend/internal/model"
	"time"

	"gorm.io/gorm"
)

type PurchaseRepository struct {
	DB *gorm.DB
}

func NewPurchaseRepository(db *gorm.DB) *PurchaseRepository {
	return &PurchaseRepository{DB: db}
}

func (r *PurchaseRepository) Create(ctx context.Context, p *model.PurchaseAttempt) error {
	return r.DB.WithContext(ctx).Create(p).Error
}

func (r *PurchaseRepository) FindByTransactionID(ctx context.Context, transactionID string) (*model.PurchaseAttempt, error) {
	var p model.PurchaseAttempt
	err := r.DB.WithContext(ctx).Where("transaction_id = ?", transactionID).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PurchaseRepository) ListByUser(ctx context.Context, userID uint) ([]model.PurchaseAttempt, error) {
	var list []model.PurchaseAttempt
	err := r.DB.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&list).Error
	return list, err
}

// Transition 条件更新状态：仅当当前状态属于 from 时生效，返回是否实际发生了转换。
// 并发的 webhook 与客户端确认依赖这里保证只有一方推进状态
func (r *PurchaseRepository) Transition(ctx context.Context, id string, from []model.PurchaseStatus, to model.PurchaseStatus, fields map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{"status": to, "updated_at": time.Now()}
	for k, v := range fields {
		updates[k] = v
	}
	res := r.DB.WithContext(ctx).Model(&model.PurchaseAttempt{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	return res.RowsAffected > 0, res.Error
}

// ListStale 超过 olderThan 仍未完成的购买，供对账任务使用
func (r *PurchaseRepository) ListStale(ctx context.Context, olderThan time.Time, limit int) ([]model.PurchaseAttempt, error) {
	var list []model.PurchaseAttempt
	err := r.DB.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", []model.PurchaseStatus{model.PurchasePaymentPending, model.PurchasePaymentConfirmed}, olderThan).
		Order("updated_at ASC").
		Limit(limit).
		Find(&list).Error
	return list, err
}

func (r *PurchaseRepository) LogGatewayEvent(ctx context.Context, e *model.PaymentGatewayEvent) error {
	return r.DB.WithContext(ctx).Create(e).Error
}

func (r *PurchaseRepository) UpdateGatewayEvent(ctx context.Context, id uint, status, errMsg string) error {
	return r.DB.WithContext(ctx).Model(&model.PaymentGatewayEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "error": errMsg, "updated_at": time.Now()}).Error
}

// 优惠码

func (r *PurchaseRepository) FindPromo(ctx context.Context, code string) (*model.PromoCode, error) {
	var p model.PromoCode
	if err := r.DB.WithContext(ctx).Where("code = ?", code).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// ReservePromo 原子占用一次使用额度，额度耗尽或已失效时返回 false
func (r *PurchaseRepository) ReservePromo(ctx context.Context, code string, now time.Time) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&model.PromoCode{}).
		Where("code = ? AND active = ?", code, true).
		Where("(max_uses = 0 OR used_count < max_uses)").
		Where("(valid_from IS NULL OR valid_from <= ?)", now).
		Where("(valid_until IS NULL OR valid_until >= ?)", now).
		UpdateColumn("used_count", gorm.Expr("used_count + 1"))
	return res.RowsAffected > 0, res.Error
}

func (r *PurchaseRepository) ReleasePromo(ctx context.Context, code string) error {
	return r.DB.WithContext(ctx).Model(&model.PromoCode{}).
		Where("code = ? AND used_count > 0", code).
		UpdateColumn("used_count", gorm.Expr("used_count - 1")).Error
}

func (r *PurchaseRepository) CreatePromo(ctx context.Context, p *model.PromoCode) error {
	return r.DB.WithContext(ctx).Create(p).Error
}
