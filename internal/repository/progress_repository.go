package repository

import (
	"context"
	"database/sql"
	"learnhub_backend/internal/model"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProgressRepository struct {
	DB *gorm.DB
}

func NewProgressRepository(db *gorm.DB) *ProgressRepository {
	return &ProgressRepository{DB: db}
}

// RecordVideoWatch 首次观看插入记录，之后只在百分比更高时更新，保证进度不回退
func (r *ProgressRepository) RecordVideoWatch(ctx context.Context, userID, courseID uint, videoID string, percent float64) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := &model.VideoProgress{
			UserID:         userID,
			CourseID:       courseID,
			VideoID:        videoID,
			WatchedPercent: percent,
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}
		return tx.Model(&model.VideoProgress{}).
			Where("user_id = ? AND video_id = ? AND watched_percent < ?", userID, videoID, percent).
			Updates(map[string]interface{}{"watched_percent": percent, "updated_at": time.Now()}).Error
	})
}

// CountWatchedVideos 只统计仍属于该课程的视频
func (r *ProgressRepository) CountWatchedVideos(ctx context.Context, userID, courseID uint, minPercent float64) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).
		Table("video_progress AS vp").
		Joins("JOIN module_videos mv ON mv.id = vp.video_id AND mv.course_id = ?", courseID).
		Where("vp.user_id = ? AND vp.watched_percent >= ?", userID, minPercent).
		Distinct("vp.video_id").
		Count(&n).Error
	return n, err
}

func (r *ProgressRepository) ListVideoProgress(ctx context.Context, userID, courseID uint) ([]model.VideoProgress, error) {
	var list []model.VideoProgress
	err := r.DB.WithContext(ctx).Where("user_id = ? AND course_id = ?", userID, courseID).Find(&list).Error
	return list, err
}

func (r *ProgressRepository) CreateQuizAttempt(ctx context.Context, a *model.QuizAttempt) error {
	return r.DB.WithContext(ctx).Create(a).Error
}

func (r *ProgressRepository) BestQuizScore(ctx context.Context, userID uint, quizID string) (float64, error) {
	var best sql.NullFloat64
	err := r.DB.WithContext(ctx).Model(&model.QuizAttempt{}).
		Select("MAX(score)").
		Where("user_id = ? AND quiz_id = ?", userID, quizID).
		Row().Scan(&best)
	if err != nil {
		return 0, err
	}
	return best.Float64, nil
}

type quizBest struct {
	QuizID string
	Best   float64
}

// BestQuizScores quizID -> 历次最高分
func (r *ProgressRepository) BestQuizScores(ctx context.Context, userID, courseID uint) (map[string]float64, error) {
	var rows []quizBest
	err := r.DB.WithContext(ctx).Model(&model.QuizAttempt{}).
		Select("quiz_id, MAX(score) AS best").
		Where("user_id = ? AND course_id = ?", userID, courseID).
		Group("quiz_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(rows))
	for _, row := range rows {
		out[row.QuizID] = row.Best
	}
	return out, nil
}

// SaveSubmission 首次提交插入；待批改时允许覆盖，已批改返回 replaced=false
func (r *ProgressRepository) SaveSubmission(ctx context.Context, s *model.AssignmentSubmission) (saved bool, err error) {
	err = r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(s)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			saved = true
			return nil
		}
		res = tx.Model(&model.AssignmentSubmission{}).
			Where("user_id = ? AND assignment_id = ? AND status = ?", s.UserID, s.AssignmentID, model.SubmissionPending).
			Updates(map[string]interface{}{"kind": s.Kind, "content": s.Content, "updated_at": time.Now()})
		if res.Error != nil {
			return res.Error
		}
		saved = res.RowsAffected > 0
		return nil
	})
	return saved, err
}

func (r *ProgressRepository) FindSubmission(ctx context.Context, userID uint, assignmentID string) (*model.AssignmentSubmission, error) {
	var s model.AssignmentSubmission
	err := r.DB.WithContext(ctx).Where("user_id = ? AND assignment_id = ?", userID, assignmentID).First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *ProgressRepository) FindSubmissionByID(ctx context.Context, id uint) (*model.AssignmentSubmission, error) {
	var s model.AssignmentSubmission
	if err := r.DB.WithContext(ctx).First(&s, id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// GradeSubmission 仅对待批改的提交生效
func (r *ProgressRepository) GradeSubmission(ctx context.Context, id uint, marks float64, feedback string) (bool, error) {
	now := time.Now()
	res := r.DB.WithContext(ctx).Model(&model.AssignmentSubmission{}).
		Where("id = ? AND status = ?", id, model.SubmissionPending).
		Updates(map[string]interface{}{
			"status":     model.SubmissionGraded,
			"marks":      marks,
			"feedback":   feedback,
			"graded_at":  now,
			"updated_at": now,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *ProgressRepository) ListGradedSubmissions(ctx context.Context, userID, courseID uint) ([]model.AssignmentSubmission, error) {
	var list []model.AssignmentSubmission
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND course_id = ? AND status = ?", userID, courseID, model.SubmissionGraded).
		Find(&list).Error
	return list, err
}
