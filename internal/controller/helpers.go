package controller

import (
	"learnhub_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// currentUserID 路由已挂载 AuthMiddleware 时一定存在
func currentUserID(ctx *gin.Context) (uint, bool) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return 0, false
	}
	return claims.UserID, true
}

func pathID(ctx *gin.Context, name string) (uint, bool) {
	id, err := util.ParseUintParam(ctx.Param(name))
	if err != nil {
		util.BadRequest(ctx, "invalid "+name)
		return 0, false
	}
	return id, true
}
