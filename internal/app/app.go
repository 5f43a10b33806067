package app

import (
	"context"
	"learnhub_backend/internal/config"
	"learnhub_backend/internal/controller"
	"learnhub_backend/internal/repository"
	"learnhub_backend/internal/service"
	"learnhub_backend/internal/util"
	"learnhub_backend/pkg/configwatcher"
	"learnhub_backend/pkg/database"
	"learnhub_backend/pkg/logger"
	"learnhub_backend/pkg/monitoring"
	"learnhub_backend/pkg/security"
	"learnhub_backend/pkg/tracing"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const configFile = "configs/config.yaml"

type App struct {
	Config  *config.Config
	Router  *gin.Engine
	DB      *gorm.DB
	Redis   *redis.Client
	Monitor *database.StatusMonitor

	services        *services
	tracer          *sdktrace.TracerProvider
	configCallbacks []func(*config.Config)
	cfgMu           sync.Mutex

	// 后台任务
	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

type repositories struct {
	user        *repository.UserRepository
	course      *repository.CourseRepository
	enrollment  *repository.EnrollmentRepository
	progress    *repository.ProgressRepository
	purchase    *repository.PurchaseRepository
	ambassador  *repository.AmbassadorRepository
	deadLetters *repository.DeadLetterRepository
}

type services struct {
	policy       *service.PolicyHolder
	storage      *service.StorageService
	cleanupQueue service.MediaCleanupQueue
	janitor      *service.MediaJanitor
	catalog      *service.CatalogService
	eligibility  *service.EligibilityService
	progress     *service.ProgressService
	enrollment   *service.EnrollmentService
	certificate  *service.CertificateService
	checkout     *service.CheckoutService
	ambassador   *service.AmbassadorService
	auth         *service.AuthService
}

type controllers struct {
	auth        *controller.AuthController
	health      *controller.HealthController
	course      *controller.CourseController
	adminCourse *controller.AdminCourseController
	checkout    *controller.CheckoutController
	progress    *controller.ProgressController
	ambassador  *controller.AmbassadorController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.cfgMu.Lock()
	defer a.cfgMu.Unlock()
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) applyConfig(cfg *config.Config) {
	a.cfgMu.Lock()
	callbacks := append([]func(*config.Config){}, a.configCallbacks...)
	a.cfgMu.Unlock()
	for _, cb := range callbacks {
		cb(cfg)
	}
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		user:        repository.NewUserRepository(db),
		course:      repository.NewCourseRepository(db),
		enrollment:  repository.NewEnrollmentRepository(db),
		progress:    repository.NewProgressRepository(db),
		purchase:    repository.NewPurchaseRepository(db),
		ambassador:  repository.NewAmbassadorRepository(db),
		deadLetters: repository.NewDeadLetterRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) *services {
	s := &services{}

	s.policy = service.NewPolicyHolder(cfg.Policy)
	s.storage = service.NewStorageService(cfg)

	// Redis 不可用时退化为进程内队列与无缓存
	var cache service.EligibilityCache
	if rdb != nil {
		s.cleanupQueue = service.NewRedisCleanupQueue(rdb)
		cache = service.NewRedisEligibilityCache(rdb)
	} else {
		s.cleanupQueue = service.NewMemoryCleanupQueue(1024)
		cache = service.NewNoopEligibilityCache()
	}
	s.janitor = service.NewMediaJanitor(s.cleanupQueue, s.storage, repos.deadLetters,
		cfg.Cleanup.Workers, cfg.Cleanup.MaxAttempts, cfg.Cleanup.BaseDelay)

	s.catalog = service.NewCatalogService(repos.course, s.storage, s.cleanupQueue)
	s.eligibility = service.NewEligibilityService(repos.course, repos.progress, repos.enrollment, s.policy, cache)
	s.progress = service.NewProgressService(repos.course, repos.progress, repos.enrollment, s.eligibility)
	s.enrollment = service.NewEnrollmentService(repos.enrollment)
	s.certificate = service.NewCertificateService(repos.enrollment, s.eligibility)

	if cfg.Payment.ServerKey == "" {
		logger.Log.Warn("未配置 Midtrans server key，付费课程的支付请求将失败")
	}
	gateway := service.NewMidtransGateway(cfg.Payment.ServerKey, cfg.Payment.Production)
	s.checkout = service.NewCheckoutService(
		repos.purchase,
		repos.course,
		repos.user,
		s.enrollment,
		s.eligibility,
		gateway,
		cfg.Payment.Currency,
		cfg.Payment.ConfirmTimeout,
	)

	s.ambassador = service.NewAmbassadorService(repos.ambassador, cfg.Ambassador.PointsPerSignup)
	s.auth = service.NewAuthService(repos.user, s.ambassador, cfg)

	return s
}

func (a *App) initControllers(s *services) *controllers {
	return &controllers{
		auth:        controller.NewAuthController(s.auth),
		health:      controller.NewHealthController(a.Monitor),
		course:      controller.NewCourseController(s.catalog, s.enrollment, s.progress),
		adminCourse: controller.NewAdminCourseController(s.catalog, s.progress),
		checkout:    controller.NewCheckoutController(s.checkout, s.enrollment),
		progress:    controller.NewProgressController(s.progress, s.eligibility, s.certificate),
		ambassador:  controller.NewAmbassadorController(s.ambassador),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(cfg.RateLimit))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func (a *App) goBackground(ctx context.Context, name string, fn func(ctx context.Context)) {
	a.bgWG.Add(1)
	go func() {
		defer a.bgWG.Done()
		fn(ctx)
		logger.Log.Info("后台任务退出", zap.String("task", name))
	}()
}

func (a *App) startBackgroundTasks(s *services) {
	ctx, cancel := context.WithCancel(context.Background())
	a.bgCancel = cancel
	cfg := a.Config

	a.goBackground(ctx, "media-janitor", s.janitor.Run)

	a.goBackground(ctx, "payment-reconciler", func(ctx context.Context) {
		s.checkout.RunReconciler(ctx, cfg.Payment.ReconcileInterval, cfg.Payment.ReconcileAfter)
	})

	a.goBackground(ctx, "config-watcher", func(ctx context.Context) {
		if err := configwatcher.New(configFile, a.applyConfig).Run(ctx); err != nil {
			logger.Log.Warn("配置热更新不可用", zap.Error(err))
		}
	})

	updates := a.Monitor.Subscribe()
	a.Monitor.Start()
	go func() {
		for status := range updates {
			if status == database.StatusUp {
				logger.Log.Info("数据库连接恢复")
			} else {
				logger.Log.Error("数据库连接异常", zap.String("status", string(status)))
			}
		}
	}()
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode == "debug")
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	// release 模式默认不自动迁移，需显式 -migrate
	if cfg.Server.Mode == "debug" || cfg.ForceMigrate || cfg.MigrateOnly {
		if err := database.Migrate(db); err != nil {
			logger.Log.Fatal("Failed to migrate database", zap.Error(err))
		}
		logger.Log.Info("Database migrated")
	}

	app := &App{
		Config: cfg,
		DB:     db,
	}
	if cfg.MigrateOnly {
		return app
	}

	if n, err := database.SeedRewards(db, cfg.Ambassador.RewardsFile); err != nil {
		logger.Log.Warn("奖励目录加载失败", zap.String("file", cfg.Ambassador.RewardsFile), zap.Error(err))
	} else {
		logger.Log.Info("奖励目录已同步", zap.Int("count", n))
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		// Redis 只承载缓存和清理队列，失败时降级运行
		logger.Log.Warn("Failed to initialize redis, falling back to in-memory", zap.Error(err))
		rdb = nil
	}
	app.Redis = rdb
	app.Monitor = database.NewStatusMonitor(db, 30*time.Second)

	repos := app.initRepositories(db)
	services := app.initServices(repos, cfg, rdb)
	app.services = services
	controllers := app.initControllers(services)

	app.RegisterConfigCallback(func(newCfg *config.Config) {
		if err := services.policy.Set(newCfg.Policy); err != nil {
			logger.Log.Error("资格策略更新被拒绝", zap.Error(err))
			return
		}
		logger.Log.Info("资格策略已更新", zap.Any("policy", newCfg.Policy))
	})
	app.RegisterConfigCallback(func(newCfg *config.Config) {
		if logger.SetLevel(newCfg.Log.Level) {
			logger.Log.Info("日志级别已更新", zap.String("level", logger.Level().String()))
		}
	})

	// 监控初始化
	monitoring.Init()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("learnhub-backend", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Error("Failed to initialize tracing", zap.Error(err))
		} else {
			app.tracer = tp
		}
	}

	app.registerRoutes(router, controllers, cfg)

	if cfg.Storage.Type == util.StorageLocal {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	app.startBackgroundTasks(services)

	return app
}

func (a *App) shutdownBackground() {
	if a.bgCancel != nil {
		a.bgCancel()
	}
	done := make(chan struct{})
	go func() {
		a.bgWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		logger.Log.Warn("后台任务未在超时内退出")
	}

	if a.Monitor != nil {
		a.Monitor.Stop()
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(context.Background()); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}

	a.shutdownBackground()
	logger.Log.Info("Server exiting")
}
