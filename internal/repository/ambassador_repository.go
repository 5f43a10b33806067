package repository

import (
	"context"
	"learnhub_backend/internal/model"
	"learnhub_backend/internal/util"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AmbassadorRepository struct {
	DB *gorm.DB
}

func NewAmbassadorRepository(db *gorm.DB) *AmbassadorRepository {
	return &AmbassadorRepository{DB: db}
}

func (r *AmbassadorRepository) FindByUserID(ctx context.Context, userID uint) (*model.AmbassadorProfile, error) {
	var p model.AmbassadorProfile
	if err := r.DB.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *AmbassadorRepository) FindByReferralCode(ctx context.Context, code string) (*model.AmbassadorProfile, error) {
	var p model.AmbassadorProfile
	err := r.DB.WithContext(ctx).Where("referral_code = ? AND status = ?", code, model.AmbassadorActive).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SaveApplication 新建申请，或在此前被拒绝时重新提交。返回 false 表示已有进行中/已通过的申请
func (r *AmbassadorRepository) SaveApplication(ctx context.Context, p *model.AmbassadorProfile) (bool, error) {
	applied := false
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(p)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			applied = true
			return nil
		}
		res = tx.Model(&model.AmbassadorProfile{}).
			Where("user_id = ? AND status IN ?", p.UserID, []model.AmbassadorStatus{model.AmbassadorNone, model.AmbassadorRejected}).
			Updates(map[string]interface{}{
				"status":      model.AmbassadorPending,
				"college":     p.College,
				"motivation":  p.Motivation,
				"resume_kind": p.ResumeKind,
				"resume_url":  p.ResumeURL,
				"reviewed_at": nil,
				"updated_at":  time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		applied = res.RowsAffected > 0
		return nil
	})
	return applied, err
}

// Review 仅处理 PENDING 申请
func (r *AmbassadorRepository) Review(ctx context.Context, userID uint, approve bool, referralCode string) (bool, error) {
	now := time.Now()
	updates := map[string]interface{}{"reviewed_at": now, "updated_at": now}
	if approve {
		updates["status"] = model.AmbassadorActive
		updates["referral_code"] = referralCode
	} else {
		updates["status"] = model.AmbassadorRejected
	}
	res := r.DB.WithContext(ctx).Model(&model.AmbassadorProfile{}).
		Where("user_id = ? AND status = ?", userID, model.AmbassadorPending).
		Updates(updates)
	return res.RowsAffected > 0, res.Error
}

// CreditReferral 同一被推荐用户只记一次积分
func (r *AmbassadorRepository) CreditReferral(ctx context.Context, ambassadorID, referredUserID uint, points int) (bool, error) {
	credited := false
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&model.ReferralSignup{
			AmbassadorID:   ambassadorID,
			ReferredUserID: referredUserID,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		credited = true
		return tx.Model(&model.AmbassadorProfile{}).
			Where("id = ?", ambassadorID).
			Updates(map[string]interface{}{
				"signup_count": gorm.Expr("signup_count + 1"),
				"points":       gorm.Expr("points + ?", points),
				"updated_at":   time.Now(),
			}).Error
	})
	return credited, err
}

// 奖励目录

func (r *AmbassadorRepository) ListActiveRewards(ctx context.Context) ([]model.RewardItem, error) {
	var items []model.RewardItem
	err := r.DB.WithContext(ctx).Where("active = ?", true).Order("cost ASC").Find(&items).Error
	return items, err
}

func (r *AmbassadorRepository) FindReward(ctx context.Context, id uint) (*model.RewardItem, error) {
	var item model.RewardItem
	if err := r.DB.WithContext(ctx).First(&item, id).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// Redeem 写入兑换记录并条件扣减积分。
// ClaimKey 冲突时返回已存在的记录且不扣分；余额不足时整体回滚并返回 ErrInsufficientPoints
func (r *AmbassadorRepository) Redeem(ctx context.Context, h *model.RedemptionHistory) (*model.RedemptionHistory, bool, error) {
	var existing *model.RedemptionHistory
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(h)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var prev model.RedemptionHistory
			if err := tx.Where("ambassador_id = ? AND claim_key = ?", h.AmbassadorID, h.ClaimKey).First(&prev).Error; err != nil {
				return err
			}
			existing = &prev
			return nil
		}

		res = tx.Model(&model.AmbassadorProfile{}).
			Where("id = ? AND status = ? AND points >= ?", h.AmbassadorID, model.AmbassadorActive, h.Cost).
			Updates(map[string]interface{}{
				"points":     gorm.Expr("points - ?", h.Cost),
				"updated_at": time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return util.ErrInsufficientPoints
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}
	return h, true, nil
}

func (r *AmbassadorRepository) History(ctx context.Context, ambassadorID uint) ([]model.RedemptionHistory, error) {
	var list []model.RedemptionHistory
	err := r.DB.WithContext(ctx).Where("ambassador_id = ?", ambassadorID).Order("created_at DESC, id DESC").Find(&list).Error
	return list, err
}

func (r *AmbassadorRepository) FindRedemption(ctx context.Context, id uint) (*model.RedemptionHistory, error) {
	var h model.RedemptionHistory
	if err := r.DB.WithContext(ctx).First(&h, id).Error; err != nil {
		return nil, err
	}
	return &h, nil
}

// UpdateRedemptionStatus 只允许从 pending 流转；拒绝时退还积分
func (r *AmbassadorRepository) UpdateRedemptionStatus(ctx context.Context, id uint, to model.RedemptionStatus) (bool, error) {
	changed := false
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var h model.RedemptionHistory
		if err := tx.First(&h, id).Error; err != nil {
			return err
		}
		res := tx.Model(&model.RedemptionHistory{}).
			Where("id = ? AND status = ?", id, model.RedemptionPending).
			Updates(map[string]interface{}{"status": to, "updated_at": time.Now()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		changed = true
		if to != model.RedemptionRejected {
			return nil
		}
		return tx.Model(&model.AmbassadorProfile{}).
			Where("id = ?", h.AmbassadorID).
			Updates(map[string]interface{}{
				"points":     gorm.Expr("points + ?", h.Cost),
				"updated_at": time.Now(),
			}).Error
	})
	return changed, err
}
