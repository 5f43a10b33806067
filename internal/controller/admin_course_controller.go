package controller

import (
	"learnhub_backend/internal/service"
	"learnhub_backend/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AdminCourseController struct {
	Catalog  *service.CatalogService
	Progress *service.ProgressService
}

func NewAdminCourseController(catalog *service.CatalogService, progress *service.ProgressService) *AdminCourseController {
	return &AdminCourseController{Catalog: catalog, Progress: progress}
}

// CreateCourse godoc
// @Summary 创建课程
// @Tags 管理-课程
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body service.CoursePayload true "课程内容"
// @Success 201 {object} util.Response{data=model.Course}
// @Failure 400 {object} util.Response
// @Router /api/admin/courses [post]
func (c *AdminCourseController) CreateCourse(ctx *gin.Context) {
	var req service.CoursePayload
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	course, err := c.Catalog.CreateCourse(ctx.Request.Context(), &req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, course)
}

// UpdateCourse godoc
// @Summary 更新课程
// @Description 只修改传入的字段；传入 modules 时整体替换模块与视频，回传已有视频 ID 可保留观看进度
// @Tags 管理-课程
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "课程ID"
// @Param body body service.CoursePayload true "修改内容"
// @Success 200 {object} util.Response{data=model.Course}
// @Router /api/admin/courses/{id} [put]
func (c *AdminCourseController) UpdateCourse(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req service.CoursePayload
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	course, err := c.Catalog.UpdateCourse(ctx.Request.Context(), id, &req)
	if err != nil {
		util.HandleError(ctx, err, zap.Uint("courseID", id))
		return
	}
	util.Success(ctx, course)
}

// DeleteCourse godoc
// @Summary 删除课程
// @Description 同时删除报名与学习记录，外部媒体异步清理
// @Tags 管理-课程
// @Security ApiKeyAuth
// @Param id path int true "课程ID"
// @Success 200 {object} util.Response
// @Router /api/admin/courses/{id} [delete]
func (c *AdminCourseController) DeleteCourse(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	if err := c.Catalog.DeleteCourse(ctx.Request.Context(), id); err != nil {
		util.HandleError(ctx, err, zap.Uint("courseID", id))
		return
	}
	util.Success(ctx, gin.H{"id": id})
}

// UploadMedia godoc
// @Summary 上传课程媒体
// @Description 支持图片、PDF 与视频；视频自动识别时长
// @Tags 管理-课程
// @Accept multipart/form-data
// @Produce json
// @Security ApiKeyAuth
// @Param file formData file true "文件"
// @Success 201 {object} util.Response{data=service.UploadResult}
// @Router /api/admin/uploads [post]
func (c *AdminCourseController) UploadMedia(ctx *gin.Context) {
	fh, err := ctx.FormFile("file")
	if err != nil {
		util.BadRequest(ctx, "file is required")
		return
	}
	result, err := c.Catalog.UploadMedia(ctx.Request.Context(), fh)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, result)
}

type GradeRequest struct {
	Marks    *float64 `json:"marks" binding:"required"`
	Feedback string   `json:"feedback"`
}

// GradeSubmission godoc
// @Summary 批改作业
// @Tags 管理-课程
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "提交ID"
// @Param body body GradeRequest true "分数与评语"
// @Success 200 {object} util.Response{data=model.AssignmentSubmission}
// @Failure 409 {object} util.Response "已批改"
// @Router /api/admin/submissions/{id}/grade [post]
func (c *AdminCourseController) GradeSubmission(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req GradeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	sub, err := c.Progress.GradeSubmission(ctx.Request.Context(), id, *req.Marks, req.Feedback)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, sub)
}
