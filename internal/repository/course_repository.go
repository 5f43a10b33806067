package repository

import (
	"context"
	"learnhub_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CourseRepository struct {
	DB *gorm.DB
}

func NewCourseRepository(db *gorm.DB) *CourseRepository {
	return &CourseRepository{DB: db}
}

func (r *CourseRepository) preloadTree(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Modules", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order ASC, created_at ASC") }).
		Preload("Modules.Videos", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order ASC, created_at ASC") }).
		Preload("Quizzes", func(db *gorm.DB) *gorm.DB { return db.Order("after_module ASC") }).
		Preload("Assignments", func(db *gorm.DB) *gorm.DB { return db.Order("after_module ASC") })
}

func (r *CourseRepository) FindByID(ctx context.Context, id uint) (*model.Course, error) {
	var course model.Course
	err := r.preloadTree(r.DB.WithContext(ctx)).First(&course, id).Error
	if err != nil {
		return nil, err
	}
	return &course, nil
}

func (r *CourseRepository) List(ctx context.Context, onlyAvailable bool) ([]model.Course, error) {
	var courses []model.Course
	q := r.DB.WithContext(ctx).Order("created_at DESC")
	if onlyAvailable {
		q = q.Where("is_available = ?", true)
	}
	err := q.Find(&courses).Error
	return courses, err
}

// Create 课程与模块/视频/测验/作业在同一事务中写入
func (r *CourseRepository) Create(ctx context.Context, course *model.Course) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(course).Error; err != nil {
			return err
		}
		return writeCourseChildren(tx, course, true, true, true)
	})
}

// Update 更新课程字段，replace* 为 true 时整体替换对应的子记录
func (r *CourseRepository) Update(ctx context.Context, course *model.Course, replaceModules, replaceQuizzes, replaceAssignments bool) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Save(course).Error; err != nil {
			return err
		}
		if replaceModules {
			if err := tx.Where("course_id = ?", course.ID).Delete(&model.ModuleVideo{}).Error; err != nil {
				return err
			}
			if err := tx.Where("course_id = ?", course.ID).Delete(&model.CourseModule{}).Error; err != nil {
				return err
			}
		}
		if replaceQuizzes {
			if err := tx.Where("course_id = ?", course.ID).Delete(&model.Quiz{}).Error; err != nil {
				return err
			}
		}
		if replaceAssignments {
			if err := tx.Where("course_id = ?", course.ID).Delete(&model.Assignment{}).Error; err != nil {
				return err
			}
		}
		return writeCourseChildren(tx, course, replaceModules, replaceQuizzes, replaceAssignments)
	})
}

func writeCourseChildren(tx *gorm.DB, course *model.Course, modules, quizzes, assignments bool) error {
	if modules {
		for i := range course.Modules {
			m := &course.Modules[i]
			m.CourseID = course.ID
			videos := m.Videos
			m.Videos = nil
			if err := tx.Omit(clause.Associations).Create(m).Error; err != nil {
				return err
			}
			for j := range videos {
				videos[j].ModuleID = m.ID
				videos[j].CourseID = course.ID
			}
			if len(videos) > 0 {
				if err := tx.Create(&videos).Error; err != nil {
					return err
				}
			}
			m.Videos = videos
		}
	}
	if quizzes {
		for i := range course.Quizzes {
			course.Quizzes[i].CourseID = course.ID
		}
		if len(course.Quizzes) > 0 {
			if err := tx.Create(&course.Quizzes).Error; err != nil {
				return err
			}
		}
	}
	if assignments {
		for i := range course.Assignments {
			course.Assignments[i].CourseID = course.ID
		}
		if len(course.Assignments) > 0 {
			if err := tx.Create(&course.Assignments).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

// Delete 级联删除课程相关的报名、学习进度及子记录。证书与购买记录保留用于审计
func (r *CourseRepository) Delete(ctx context.Context, id uint) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, m := range []interface{}{
			&model.VideoProgress{},
			&model.QuizAttempt{},
			&model.AssignmentSubmission{},
			&model.Enrollment{},
			&model.ModuleVideo{},
			&model.CourseModule{},
			&model.Quiz{},
			&model.Assignment{},
		} {
			if err := tx.Where("course_id = ?", id).Delete(m).Error; err != nil {
				return err
			}
		}
		res := tx.Unscoped().Delete(&model.Course{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (r *CourseRepository) FindVideo(ctx context.Context, courseID uint, videoID string) (*model.ModuleVideo, error) {
	var v model.ModuleVideo
	err := r.DB.WithContext(ctx).Where("id = ? AND course_id = ?", videoID, courseID).First(&v).Error
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *CourseRepository) Exists(ctx context.Context, id uint) (bool, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&model.Course{}).Where("id = ?", id).Count(&n).Error
	return n > 0, err
}

func (r *CourseRepository) CountVideos(ctx context.Context, courseID uint) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&model.ModuleVideo{}).Where("course_id = ?", courseID).Count(&n).Error
	return n, err
}

func (r *CourseRepository) FindQuiz(ctx context.Context, quizID string) (*model.Quiz, error) {
	var q model.Quiz
	if err := r.DB.WithContext(ctx).First(&q, "id = ?", quizID).Error; err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *CourseRepository) FindAssignment(ctx context.Context, assignmentID string) (*model.Assignment, error) {
	var a model.Assignment
	if err := r.DB.WithContext(ctx).First(&a, "id = ?", assignmentID).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *CourseRepository) ListQuizzes(ctx context.Context, courseID uint) ([]model.Quiz, error) {
	var qs []model.Quiz
	err := r.DB.WithContext(ctx).Where("course_id = ?", courseID).Find(&qs).Error
	return qs, err
}

func (r *CourseRepository) ListAssignments(ctx context.Context, courseID uint) ([]model.Assignment, error) {
	var as []model.Assignment
	err := r.DB.WithContext(ctx).Where("course_id = ?", courseID).Find(&as).Error
	return as, err
}
