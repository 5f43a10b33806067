package controller

import (
	"learnhub_backend/internal/service"
	"learnhub_backend/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ProgressController struct {
	Progress     *service.ProgressService
	Eligibility  *service.EligibilityService
	Certificates *service.CertificateService
}

func NewProgressController(progress *service.ProgressService, eligibility *service.EligibilityService, certificates *service.CertificateService) *ProgressController {
	return &ProgressController{
		Progress:     progress,
		Eligibility:  eligibility,
		Certificates: certificates,
	}
}

type WatchRequest struct {
	Percent *float64 `json:"percent"`
}

// WatchVideo godoc
// @Summary 记录视频观看
// @Description percent 缺省视为看完；进度只增不减
// @Tags 学习
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "课程ID"
// @Param videoId path string true "视频ID"
// @Param body body WatchRequest false "观看百分比"
// @Success 200 {object} util.Response{data=service.Eligibility}
// @Failure 403 {object} util.Response "未报名"
// @Router /api/courses/{id}/videos/{videoId}/watch [post]
func (c *ProgressController) WatchVideo(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	courseID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req WatchRequest
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			util.BadRequest(ctx, err.Error())
			return
		}
	}
	e, err := c.Progress.RecordVideoWatch(ctx.Request.Context(), userID, courseID, ctx.Param("videoId"), req.Percent)
	if err != nil {
		util.HandleError(ctx, err, zap.Uint("courseID", courseID))
		return
	}
	util.Success(ctx, e)
}

// SubmitQuiz godoc
// @Summary 提交测验
// @Description 视频进度达到解锁阈值后才能作答；可提交答案由服务端判分
// @Tags 学习
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "测验ID"
// @Param body body service.QuizSubmission true "答案；无题目的测验提交分数"
// @Success 201 {object} util.Response{data=service.QuizAttemptResult}
// @Failure 403 {object} util.Response "测验未解锁或未报名"
// @Router /api/quizzes/{id}/attempts [post]
func (c *ProgressController) SubmitQuiz(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	var req service.QuizSubmission
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	result, err := c.Progress.RecordQuizAttempt(ctx.Request.Context(), userID, ctx.Param("id"), req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, result)
}

// SubmitAssignment godoc
// @Summary 提交作业
// @Description 批改前可重复提交覆盖
// @Tags 学习
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "作业ID"
// @Param body body service.SubmissionPayload true "提交内容"
// @Success 201 {object} util.Response{data=model.AssignmentSubmission}
// @Failure 409 {object} util.Response "已批改"
// @Router /api/assignments/{id}/submissions [post]
func (c *ProgressController) SubmitAssignment(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	var req service.SubmissionPayload
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	sub, err := c.Progress.SubmitAssignment(ctx.Request.Context(), userID, ctx.Param("id"), req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, sub)
}

// GetEligibility godoc
// @Summary 证书资格
// @Tags 证书
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "课程ID"
// @Success 200 {object} util.Response{data=service.Eligibility}
// @Router /api/courses/{id}/certificate-eligibility [get]
func (c *ProgressController) GetEligibility(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	courseID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	e, err := c.Eligibility.Evaluate(ctx.Request.Context(), userID, courseID)
	if err != nil {
		util.HandleError(ctx, err, zap.Uint("courseID", courseID))
		return
	}
	util.Success(ctx, e)
}

// IssueCertificate godoc
// @Summary 领取证书
// @Description 满足资格时颁发，重复调用返回同一证书
// @Tags 证书
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "课程ID"
// @Success 201 {object} util.Response{data=model.Certificate}
// @Failure 422 {object} util.Response "未满足条件"
// @Router /api/courses/{id}/certificate [post]
func (c *ProgressController) IssueCertificate(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	courseID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	cert, err := c.Certificates.Issue(ctx.Request.Context(), userID, courseID)
	if err != nil {
		util.HandleError(ctx, err, zap.Uint("courseID", courseID))
		return
	}
	util.Created(ctx, cert)
}

// ListCertificates godoc
// @Summary 我的证书
// @Tags 证书
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=[]model.Certificate}
// @Router /api/certificates [get]
func (c *ProgressController) ListCertificates(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	list, err := c.Certificates.ListCertificates(ctx.Request.Context(), userID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, list)
}
