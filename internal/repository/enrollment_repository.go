package repository

import (
	"context"
	"errors"
	"learnhub_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EnrollmentRepository struct {
	DB *gorm.DB
}

func NewEnrollmentRepository(db *gorm.DB) *EnrollmentRepository {
	return &EnrollmentRepository{DB: db}
}

func (r *EnrollmentRepository) WithTx(tx *gorm.DB) *EnrollmentRepository {
	return &EnrollmentRepository{DB: tx}
}

// CreateIfAbsent 依赖 (user_id, course_id) 与 transaction_id 唯一索引做原子插入。
// 冲突时返回已存在的记录，created=false
func (r *EnrollmentRepository) CreateIfAbsent(ctx context.Context, e *model.Enrollment) (*model.Enrollment, bool, error) {
	res := r.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(e)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected > 0 {
		return e, true, nil
	}

	existing, err := r.FindByUserAndCourse(ctx, e.UserID, e.CourseID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	existing, err = r.FindByTransactionID(ctx, e.TransactionID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *EnrollmentRepository) FindByUserAndCourse(ctx context.Context, userID, courseID uint) (*model.Enrollment, error) {
	var e model.Enrollment
	err := r.DB.WithContext(ctx).Where("user_id = ? AND course_id = ?", userID, courseID).First(&e).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *EnrollmentRepository) FindByTransactionID(ctx context.Context, transactionID string) (*model.Enrollment, error) {
	var e model.Enrollment
	err := r.DB.WithContext(ctx).Where("transaction_id = ?", transactionID).First(&e).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *EnrollmentRepository) Exists(ctx context.Context, userID, courseID uint) (bool, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&model.Enrollment{}).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		Count(&n).Error
	return n > 0, err
}

func (r *EnrollmentRepository) ListByUser(ctx context.Context, userID uint) ([]model.Enrollment, error) {
	var list []model.Enrollment
	err := r.DB.WithContext(ctx).Where("user_id = ?", userID).Order("enrolled_at DESC").Find(&list).Error
	return list, err
}

func (r *EnrollmentRepository) CountByTransactionID(ctx context.Context, transactionID string) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&model.Enrollment{}).Where("transaction_id = ?", transactionID).Count(&n).Error
	return n, err
}

// 证书

func (r *EnrollmentRepository) FindCertificate(ctx context.Context, userID, courseID uint) (*model.Certificate, error) {
	var c model.Certificate
	err := r.DB.WithContext(ctx).Where("user_id = ? AND course_id = ?", userID, courseID).First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *EnrollmentRepository) CreateCertificateIfAbsent(ctx context.Context, c *model.Certificate) (*model.Certificate, error) {
	res := r.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(c)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected > 0 {
		return c, nil
	}
	return r.FindCertificate(ctx, c.UserID, c.CourseID)
}

func (r *EnrollmentRepository) ListCertificates(ctx context.Context, userID uint) ([]model.Certificate, error) {
	var list []model.Certificate
	err := r.DB.WithContext(ctx).Where("user_id = ?", userID).Order("issued_at DESC").Find(&list).Error
	return list, err
}
