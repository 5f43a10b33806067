package app

import (
	"learnhub_backend/docs"
	"learnhub_backend/internal/config"
	"learnhub_backend/internal/middleware"
	"learnhub_backend/internal/model"
	"learnhub_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	a.registerPublicRoutes(router, c, cfg)

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg.JWT.Secret))
	{
		a.registerStudentRoutes(authGroup, c)
		a.registerAmbassadorRoutes(authGroup, c)
	}

	// 3. 管理员相关接口
	a.registerAdminRoutes(router, c, cfg)
}

func (a *App) registerPublicRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)

		// 课程目录允许游客访问，登录用户额外返回报名状态与进度
		public.GET("/courses", middleware.OptionalAuthMiddleware(cfg.JWT.Secret), c.course.ListCourses)
		public.GET("/courses/:id", middleware.OptionalAuthMiddleware(cfg.JWT.Secret), c.course.GetCourse)

		// 网关回调，靠签名校验
		public.POST("/payments/notifications", c.checkout.Notification)
	}
}

func (a *App) registerStudentRoutes(group *gin.RouterGroup, c *controllers) {
	group.GET("/me", c.auth.Me)

	// 报名与支付
	group.POST("/courses/enroll", c.checkout.Enroll)
	group.POST("/courses/enroll/confirm", c.checkout.ConfirmPayment)
	group.GET("/enrollments", c.checkout.ListEnrollments)
	group.GET("/purchases", c.checkout.ListPurchases)

	// 学习进度
	group.POST("/courses/:id/videos/:videoId/watch", c.progress.WatchVideo)
	group.POST("/quizzes/:id/attempts", c.progress.SubmitQuiz)
	group.POST("/assignments/:id/submissions", c.progress.SubmitAssignment)

	// 证书
	group.GET("/courses/:id/certificate-eligibility", c.progress.GetEligibility)
	group.POST("/courses/:id/certificate", c.progress.IssueCertificate)
	group.GET("/certificates", c.progress.ListCertificates)
}

func (a *App) registerAmbassadorRoutes(group *gin.RouterGroup, c *controllers) {
	amb := group.Group("/ambassador")
	{
		amb.POST("/register", c.ambassador.Apply)
		amb.GET("/profile", c.ambassador.Profile)
		amb.GET("/rewards", c.ambassador.ListRewards)
		amb.POST("/rewards", c.ambassador.Redeem)
		amb.GET("/rewards/history", c.ambassador.History)
	}
}

func (a *App) registerAdminRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	admin := router.Group("/api/admin")
	admin.Use(middleware.AuthMiddleware(cfg.JWT.Secret), middleware.RoleMiddleware(model.Admin))
	{
		admin.POST("/courses", c.adminCourse.CreateCourse)
		admin.PUT("/courses/:id", c.adminCourse.UpdateCourse)
		admin.DELETE("/courses/:id", c.adminCourse.DeleteCourse)
		admin.POST("/uploads", c.adminCourse.UploadMedia)
		admin.POST("/submissions/:id/grade", c.adminCourse.GradeSubmission)

		admin.POST("/ambassadors/:userId/review", c.ambassador.Review)
		admin.PATCH("/redemptions/:id", c.ambassador.UpdateRedemption)
	}
}
