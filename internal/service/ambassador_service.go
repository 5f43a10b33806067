package service

import (
	"context"
	"errors"
	"fmt"
	"learnhub_backend/internal/model"
	"learnhub_backend/internal/repository"
	"learnhub_backend/internal/util"
	"learnhub_backend/pkg/logger"
	"learnhub_backend/pkg/monitoring"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type AmbassadorApplication struct {
	College    string           `json:"college" binding:"required"`
	Motivation string           `json:"motivation" binding:"required"`
	ResumeKind model.ResumeKind `json:"resumeKind" binding:"required"`
	ResumeURL  string           `json:"resumeUrl" binding:"required"`
}

func (a AmbassadorApplication) Validate() error {
	if strings.TrimSpace(a.College) == "" || strings.TrimSpace(a.Motivation) == "" {
		return fmt.Errorf("%w: college and motivation are required", util.ErrValidation)
	}
	switch a.ResumeKind {
	case model.ResumeFile, model.ResumeLink:
	default:
		return fmt.Errorf("%w: resumeKind must be file or link", util.ErrValidation)
	}
	u, err := url.Parse(strings.TrimSpace(a.ResumeURL))
	if err != nil || a.ResumeURL == "" {
		return fmt.Errorf("%w: invalid resume url", util.ErrValidation)
	}
	if a.ResumeKind == model.ResumeLink && u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: resume link must be http(s)", util.ErrValidation)
	}
	return nil
}

type RedeemRequest struct {
	RewardID        uint   `json:"rewardId" binding:"required"`
	ShippingAddress string `json:"shippingAddress"`
}

type AmbassadorService struct {
	Repo            *repository.AmbassadorRepository
	PointsPerSignup int
}

func NewAmbassadorService(repo *repository.AmbassadorRepository, pointsPerSignup int) *AmbassadorService {
	return &AmbassadorService{Repo: repo, PointsPerSignup: pointsPerSignup}
}

// Profile 未申请过的用户返回 NONE 状态的空档案
func (s *AmbassadorService) Profile(ctx context.Context, userID uint) (*model.AmbassadorProfile, error) {
	p, err := s.Repo.FindByUserID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &model.AmbassadorProfile{UserID: userID, Status: model.AmbassadorNone}, nil
	}
	return p, err
}

func (s *AmbassadorService) Apply(ctx context.Context, userID uint, app AmbassadorApplication) (*model.AmbassadorProfile, error) {
	if err := app.Validate(); err != nil {
		return nil, err
	}
	applied, err := s.Repo.SaveApplication(ctx, &model.AmbassadorProfile{
		UserID:     userID,
		Status:     model.AmbassadorPending,
		College:    strings.TrimSpace(app.College),
		Motivation: strings.TrimSpace(app.Motivation),
		ResumeKind: app.ResumeKind,
		ResumeURL:  strings.TrimSpace(app.ResumeURL),
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, util.ErrAlreadyApplied
	}
	return s.Repo.FindByUserID(ctx, userID)
}

func newReferralCode() string {
	return "AMB" + strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
}

// Review 通过时生成推荐码；推荐码冲突时重试
func (s *AmbassadorService) Review(ctx context.Context, userID uint, approve bool) (*model.AmbassadorProfile, error) {
	if _, err := s.Repo.FindByUserID(ctx, userID); err != nil {
		return nil, notFound(err)
	}

	var (
		changed bool
		err     error
	)
	for i := 0; i < 3; i++ {
		changed, err = s.Repo.Review(ctx, userID, approve, newReferralCode())
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, util.ErrInvalidTransition
	}
	logger.Log.Info("大使申请已审核", zap.Uint("userID", userID), zap.Bool("approved", approve))
	return s.Repo.FindByUserID(ctx, userID)
}

// RecordReferralSignup 新用户注册时使用推荐码；无效推荐码不影响注册
func (s *AmbassadorService) RecordReferralSignup(ctx context.Context, code string, newUserID uint) (bool, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return false, nil
	}
	p, err := s.Repo.FindByReferralCode(ctx, code)
	if err != nil {
		return false, notFound(err)
	}
	if p.UserID == newUserID {
		return false, nil
	}
	return s.Repo.CreditReferral(ctx, p.ID, newUserID, s.PointsPerSignup)
}

func (s *AmbassadorService) ListRewards(ctx context.Context) ([]model.RewardItem, error) {
	return s.Repo.ListActiveRewards(ctx)
}

// Redeem 虚拟奖励同一大使只能领取一次，重复领取返回首次记录且不扣分
func (s *AmbassadorService) Redeem(ctx context.Context, userID uint, req RedeemRequest) (*model.RedemptionHistory, error) {
	profile, err := s.Repo.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrAmbassadorNotActive
		}
		return nil, err
	}
	if profile.Status != model.AmbassadorActive {
		return nil, util.ErrAmbassadorNotActive
	}

	item, err := s.Repo.FindReward(ctx, req.RewardID)
	if err != nil {
		return nil, notFound(err)
	}
	if !item.Active {
		return nil, util.ErrNotFound
	}

	h := &model.RedemptionHistory{
		AmbassadorID: profile.ID,
		RewardItemID: item.ID,
		RewardName:   item.Name,
		Kind:         item.Kind,
		Cost:         item.Cost,
	}
	switch item.Kind {
	case model.RewardVirtual:
		h.ClaimKey = "reward:" + strconv.FormatUint(uint64(item.ID), 10)
		h.Status = model.RedemptionApproved
	default:
		if strings.TrimSpace(req.ShippingAddress) == "" {
			return nil, fmt.Errorf("%w: shipping address is required for merch", util.ErrValidation)
		}
		h.ClaimKey = uuid.New().String()
		h.Status = model.RedemptionPending
		h.ShippingAddress = strings.TrimSpace(req.ShippingAddress)
	}

	record, created, err := s.Repo.Redeem(ctx, h)
	if err != nil {
		result := "error"
		if errors.Is(err, util.ErrInsufficientPoints) {
			result = "insufficient"
		}
		monitoring.Redemptions.WithLabelValues(string(item.Kind), result).Inc()
		return nil, err
	}
	if created {
		monitoring.Redemptions.WithLabelValues(string(item.Kind), "success").Inc()
		logger.Log.Info("奖励兑换成功",
			zap.Uint("userID", userID),
			zap.String("reward", item.Name),
			zap.Int("cost", item.Cost))
	} else {
		monitoring.Redemptions.WithLabelValues(string(item.Kind), "duplicate").Inc()
	}
	return record, nil
}

func (s *AmbassadorService) History(ctx context.Context, userID uint) ([]model.RedemptionHistory, error) {
	profile, err := s.Repo.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return []model.RedemptionHistory{}, nil
		}
		return nil, err
	}
	return s.Repo.History(ctx, profile.ID)
}

// UpdateRedemptionStatus pending -> shipped | rejected，拒绝时退还积分
func (s *AmbassadorService) UpdateRedemptionStatus(ctx context.Context, id uint, to model.RedemptionStatus) (*model.RedemptionHistory, error) {
	if to != model.RedemptionShipped && to != model.RedemptionRejected {
		return nil, fmt.Errorf("%w: status must be shipped or rejected", util.ErrValidation)
	}
	if _, err := s.Repo.FindRedemption(ctx, id); err != nil {
		return nil, notFound(err)
	}
	changed, err := s.Repo.UpdateRedemptionStatus(ctx, id, to)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, util.ErrInvalidTransition
	}
	return s.Repo.FindRedemption(ctx, id)
}
