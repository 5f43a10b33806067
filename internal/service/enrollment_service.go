package service

import (
	"context"
	"errors"
	"fmt"
	"learnhub_backend/internal/model"
	"learnhub_backend/internal/repository"
	"learnhub_backend/internal/util"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type EnrollmentService struct {
	EnrollmentRepo *repository.EnrollmentRepository
}

func NewEnrollmentService(enrollmentRepo *repository.EnrollmentRepository) *EnrollmentService {
	return &EnrollmentService{EnrollmentRepo: enrollmentRepo}
}

// Enroll 幂等：相同 (user, course) 或相同 transactionID 重复调用返回同一条记录。
// transactionID 已被其他用户/课程占用时返回 ErrPaymentMismatch
func (s *EnrollmentService) Enroll(ctx context.Context, userID, courseID uint, transactionID string, pricePaid int64) (*model.Enrollment, error) {
	if strings.TrimSpace(transactionID) == "" {
		return nil, fmt.Errorf("%w: transaction id is required", util.ErrValidation)
	}
	e, _, err := s.EnrollmentRepo.CreateIfAbsent(ctx, &model.Enrollment{
		UserID:        userID,
		CourseID:      courseID,
		TransactionID: transactionID,
		PricePaid:     pricePaid,
		EnrolledAt:    time.Now(),
	})
	if err != nil {
		return nil, err
	}
	if e.UserID != userID || e.CourseID != courseID {
		return nil, util.ErrPaymentMismatch
	}
	return e, nil
}

func (s *EnrollmentService) IsEnrolled(ctx context.Context, userID, courseID uint) (bool, error) {
	return s.EnrollmentRepo.Exists(ctx, userID, courseID)
}

func (s *EnrollmentService) ListEnrollments(ctx context.Context, userID uint) ([]model.Enrollment, error) {
	return s.EnrollmentRepo.ListByUser(ctx, userID)
}

type CertificateService struct {
	EnrollmentRepo *repository.EnrollmentRepository
	Eligibility    *EligibilityService
}

func NewCertificateService(enrollmentRepo *repository.EnrollmentRepository, eligibility *EligibilityService) *CertificateService {
	return &CertificateService{EnrollmentRepo: enrollmentRepo, Eligibility: eligibility}
}

func newCertificateNumber(now time.Time) string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	return fmt.Sprintf("CERT-%s-%s", now.Format("20060102"), strings.ToUpper(id[:8]))
}

// Issue 已颁发过则直接返回原证书
func (s *CertificateService) Issue(ctx context.Context, userID, courseID uint) (*model.Certificate, error) {
	existing, err := s.EnrollmentRepo.FindCertificate(ctx, userID, courseID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if _, err := s.Eligibility.Evaluate(ctx, userID, courseID); err != nil {
		return nil, err
	}
	// 颁发前强制重新计算，避免使用过期缓存
	e, err := s.Eligibility.Refresh(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	if !e.IsEligible {
		return nil, util.ErrNotEligible
	}

	now := time.Now()
	return s.EnrollmentRepo.CreateCertificateIfAbsent(ctx, &model.Certificate{
		UserID:            userID,
		CourseID:          courseID,
		CertificateNumber: newCertificateNumber(now),
		OverallScore:      e.OverallScore,
		VideoProgress:     e.VideoProgress,
		IssuedAt:          now,
	})
}

func (s *CertificateService) ListCertificates(ctx context.Context, userID uint) ([]model.Certificate, error) {
	return s.EnrollmentRepo.ListCertificates(ctx, userID)
}
