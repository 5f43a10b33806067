package controller

import (
	"learnhub_backend/internal/util"
	"learnhub_backend/pkg/database"
	"net/http"

	"github.com/gin-gonic/gin"
)

type HealthController struct {
	Monitor *database.StatusMonitor
}

func NewHealthController(monitor *database.StatusMonitor) *HealthController {
	return &HealthController{Monitor: monitor}
}

// @Summary 健康检查
// @Description 实时探测数据库（5 秒超时），并返回状态监视器最近一次结果
// @Tags 系统
// @Produce json
// @Success 200 {object} util.Response
// @Failure 503 {object} util.Response
// @Router /api/health [get]
func (c *HealthController) HealthCheck(ctx *gin.Context) {
	status := c.Monitor.Check(ctx.Request.Context())
	_, lastChecked := c.Monitor.Current()
	if status != database.StatusUp {
		util.Error(ctx, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	util.Success(ctx, gin.H{
		"status": "ok",
		"components": gin.H{
			"database": status,
		},
		"lastChecked": lastChecked,
	})
}
