package service

import (
	"context"
	"errors"
	"fmt"
	"learnhub_backend/internal/config"
	"learnhub_backend/internal/model"
	"learnhub_backend/internal/repository"
	"learnhub_backend/internal/util"
	"learnhub_backend/pkg/logger"
	"net/mail"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type RegisterInput struct {
	Name         string `json:"name" binding:"required"`
	Email        string `json:"email" binding:"required"`
	Password     string `json:"password" binding:"required,min=8"`
	ReferralCode string `json:"referralCode"`
}

type AuthService struct {
	UserRepo    *repository.UserRepository
	Ambassadors *AmbassadorService
	Cfg         *config.Config
}

func NewAuthService(userRepo *repository.UserRepository, ambassadors *AmbassadorService, cfg *config.Config) *AuthService {
	return &AuthService{
		UserRepo:    userRepo,
		Ambassadors: ambassadors,
		Cfg:         cfg,
	}
}

// Register 推荐码无效只记录日志，不影响注册
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return nil, fmt.Errorf("%w: invalid email", util.ErrValidation)
	}
	_, err := s.UserRepo.FindByEmail(ctx, in.Email)
	if err == nil {
		return nil, util.ErrEmailRegistered
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user := &model.User{
		Name:     strings.TrimSpace(in.Name),
		Email:    in.Email,
		Password: string(hashedPassword),
		Role:     model.Student,
	}
	if err := s.UserRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	if in.ReferralCode != "" && s.Ambassadors != nil {
		credited, err := s.Ambassadors.RecordReferralSignup(ctx, in.ReferralCode, user.ID)
		if err != nil {
			logger.Log.Warn("推荐码处理失败", zap.String("code", in.ReferralCode), zap.Uint("userID", user.ID), zap.Error(err))
		} else if credited {
			logger.Log.Info("推荐注册已计入", zap.String("code", in.ReferralCode), zap.Uint("userID", user.ID))
		}
	}
	return user, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (string, *model.User, error) {
	user, err := s.UserRepo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, util.ErrInvalidCredentials
		}
		return "", nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return "", nil, util.ErrInvalidCredentials
	}

	token, err := util.GenerateJWT(user, s.Cfg.JWT.Secret, s.Cfg.JWT.ExpireTime)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

func (s *AuthService) GetUser(ctx context.Context, id uint) (*model.User, error) {
	user, err := s.UserRepo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	return user, nil
}
