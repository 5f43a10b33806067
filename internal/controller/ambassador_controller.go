package controller

import (
	"learnhub_backend/internal/model"
	"learnhub_backend/internal/service"
	"learnhub_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type AmbassadorController struct {
	Ambassadors *service.AmbassadorService
}

func NewAmbassadorController(ambassadors *service.AmbassadorService) *AmbassadorController {
	return &AmbassadorController{Ambassadors: ambassadors}
}

// Apply godoc
// @Summary 申请成为校园大使
// @Description 被拒绝后可重新申请
// @Tags 大使
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body service.AmbassadorApplication true "申请信息"
// @Success 201 {object} util.Response{data=model.AmbassadorProfile}
// @Failure 409 {object} util.Response "已申请"
// @Router /api/ambassador/register [post]
func (c *AmbassadorController) Apply(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	var req service.AmbassadorApplication
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	profile, err := c.Ambassadors.Apply(ctx.Request.Context(), userID, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, profile)
}

// Profile godoc
// @Summary 大使档案
// @Tags 大使
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=model.AmbassadorProfile}
// @Router /api/ambassador/profile [get]
func (c *AmbassadorController) Profile(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	profile, err := c.Ambassadors.Profile(ctx.Request.Context(), userID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, profile)
}

// ListRewards godoc
// @Summary 奖励目录
// @Tags 大使
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=[]model.RewardItem}
// @Router /api/ambassador/rewards [get]
func (c *AmbassadorController) ListRewards(ctx *gin.Context) {
	items, err := c.Ambassadors.ListRewards(ctx.Request.Context())
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, items)
}

// Redeem godoc
// @Summary 兑换奖励
// @Description 实物奖励需填写收货地址；虚拟奖励重复兑换返回首次记录
// @Tags 大使
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body service.RedeemRequest true "奖励"
// @Success 201 {object} util.Response{data=model.RedemptionHistory}
// @Failure 422 {object} util.Response "积分不足"
// @Router /api/ambassador/rewards [post]
func (c *AmbassadorController) Redeem(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	var req service.RedeemRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	record, err := c.Ambassadors.Redeem(ctx.Request.Context(), userID, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, record)
}

// History godoc
// @Summary 兑换记录
// @Tags 大使
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=[]model.RedemptionHistory}
// @Router /api/ambassador/rewards/history [get]
func (c *AmbassadorController) History(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	list, err := c.Ambassadors.History(ctx.Request.Context(), userID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, list)
}

type ReviewRequest struct {
	Approve *bool `json:"approve" binding:"required"`
}

// Review godoc
// @Summary 审核大使申请
// @Tags 管理-大使
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param userId path int true "用户ID"
// @Param body body ReviewRequest true "是否通过"
// @Success 200 {object} util.Response{data=model.AmbassadorProfile}
// @Failure 409 {object} util.Response "状态不允许审核"
// @Router /api/admin/ambassadors/{userId}/review [post]
func (c *AmbassadorController) Review(ctx *gin.Context) {
	userID, ok := pathID(ctx, "userId")
	if !ok {
		return
	}
	var req ReviewRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	profile, err := c.Ambassadors.Review(ctx.Request.Context(), userID, *req.Approve)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, profile)
}

type RedemptionStatusRequest struct {
	Status model.RedemptionStatus `json:"status" binding:"required"`
}

// UpdateRedemption godoc
// @Summary 更新兑换状态
// @Description pending 可改为 shipped 或 rejected，拒绝时退还积分
// @Tags 管理-大使
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "兑换记录ID"
// @Param body body RedemptionStatusRequest true "目标状态"
// @Success 200 {object} util.Response{data=model.RedemptionHistory}
// @Router /api/admin/redemptions/{id} [patch]
func (c *AmbassadorController) UpdateRedemption(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req RedemptionStatusRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	record, err := c.Ambassadors.UpdateRedemptionStatus(ctx.Request.Context(), id, req.Status)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, record)
}
