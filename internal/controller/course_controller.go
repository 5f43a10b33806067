package controller

import (
	"learnhub_backend/internal/model"
	"learnhub_backend/internal/service"
	"learnhub_backend/internal/util"
	"learnhub_backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type CourseController struct {
	Catalog     *service.CatalogService
	Enrollments *service.EnrollmentService
	Progress    *service.ProgressService
}

func NewCourseController(catalog *service.CatalogService, enrollments *service.EnrollmentService, progress *service.ProgressService) *CourseController {
	return &CourseController{
		Catalog:     catalog,
		Enrollments: enrollments,
		Progress:    progress,
	}
}

// CourseSummary 课程列表项
type CourseSummary struct {
	model.Course
	// 覆盖内嵌的 Quizzes，答案只在管理端返回
	Quizzes        []model.PublicQuiz `json:"quizzes"`
	EffectivePrice int64              `json:"effectivePrice"`
}

// CourseDetail 课程详情，已报名时附带学习进度
type CourseDetail struct {
	*model.Course
	Quizzes        []model.PublicQuiz      `json:"quizzes"`
	Videos         []model.ModuleVideo     `json:"videos"`
	EffectivePrice int64                   `json:"effectivePrice"`
	Enrolled       bool                    `json:"enrolled"`
	Progress       *service.CourseProgress `json:"progress,omitempty"`
}

// ListCourses godoc
// @Summary 课程列表
// @Description 仅返回已上架课程
// @Tags 课程
// @Produce json
// @Success 200 {object} util.Response{data=[]CourseSummary}
// @Router /api/courses [get]
func (c *CourseController) ListCourses(ctx *gin.Context) {
	courses, err := c.Catalog.ListCourses(ctx.Request.Context(), true)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	out := make([]CourseSummary, 0, len(courses))
	for i := range courses {
		out = append(out, CourseSummary{
			Course:         courses[i],
			Quizzes:        model.PublicQuizzes(courses[i].Quizzes),
			EffectivePrice: service.EffectivePrice(&courses[i]),
		})
	}
	util.Success(ctx, out)
}

// GetCourse godoc
// @Summary 课程详情
// @Description 返回模块、视频（按模块顺序展开）、测验与作业；登录且已报名时附带进度与证书资格
// @Tags 课程
// @Produce json
// @Param id path int true "课程ID"
// @Success 200 {object} util.Response{data=CourseDetail}
// @Failure 404 {object} util.Response
// @Router /api/courses/{id} [get]
func (c *CourseController) GetCourse(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	course, err := c.Catalog.GetCourse(ctx.Request.Context(), id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	detail := CourseDetail{
		Course:         course,
		Quizzes:        model.PublicQuizzes(course.Quizzes),
		Videos:         model.FlattenVideos(course.Modules),
		EffectivePrice: service.EffectivePrice(course),
	}

	if claims := util.GetUserFromContext(ctx); claims != nil {
		enrolled, err := c.Enrollments.IsEnrolled(ctx.Request.Context(), claims.UserID, id)
		if err != nil {
			util.HandleError(ctx, err)
			return
		}
		detail.Enrolled = enrolled
		if enrolled {
			progress, err := c.Progress.GetCourseProgress(ctx.Request.Context(), claims.UserID, id)
			if err != nil {
				// 进度面板失败不影响课程内容
				logger.Log.Warn("加载学习进度失败", zap.Uint("userID", claims.UserID), zap.Uint("courseID", id), zap.Error(err))
			} else {
				detail.Progress = progress
			}
		}
	}
	util.Success(ctx, detail)
}
