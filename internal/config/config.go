package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Log        LogConfig `mapstructure:"log"`
	Database   DatabaseConfig
	JWT        JWTConfig
	Storage    StorageConfig
	Tracing    TracingConfig `mapstructure:"tracing"`
	Redis      RedisConfig
	CORS       CORSConfig       `mapstructure:"cors"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Payment    PaymentConfig    `mapstructure:"payment"`
	Policy     PolicyConfig     `mapstructure:"policy"`
	Ambassador AmbassadorConfig `mapstructure:"ambassador"`
	Cleanup    CleanupConfig    `mapstructure:"cleanup"`

	// 运行时标志（非配置文件，通过命令行参数设置）
	ForceMigrate bool `mapstructure:"-"`
	MigrateOnly  bool `mapstructure:"-"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Driver    string
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
	// sqlite 文件路径，driver=sqlite 时使用
	Path string
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	ExpireTime time.Duration `mapstructure:"expire_hours"`
}

type StorageConfig struct {
	Type          string `mapstructure:"type"`
	LocalPath     string `mapstructure:"local_path"`
	MinioEndpoint string `mapstructure:"minio_endpoint"`
	MinioAccessID string `mapstructure:"minio_access_key"`
	MinioSecret   string `mapstructure:"minio_secret_key"`
	MinioBucket   string `mapstructure:"minio_bucket"`
	MinioUseSSL   bool   `mapstructure:"minio_use_ssl"`
	OSSEndpoint   string `mapstructure:"oss_endpoint"`
	OSSAccessKey  string `mapstructure:"oss_access_key"`
	OSSSecretKey  string `mapstructure:"oss_secret_key"`
	OSSBucket     string `mapstructure:"oss_bucket"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// PaymentConfig 支付网关（Midtrans）配置
type PaymentConfig struct {
	ServerKey         string        `mapstructure:"server_key"`
	Production        bool          `mapstructure:"production"`
	Currency          string        `mapstructure:"currency"`
	ConfirmTimeout    time.Duration `mapstructure:"confirm_timeout"`
	// 超过 ReconcileAfter 仍未完成的购买由对账任务重新查询
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
	ReconcileAfter    time.Duration `mapstructure:"reconcile_after"`
}

// PolicyConfig 证书资格相关的产品策略，均可热更新
type PolicyConfig struct {
	QuizUnlockVideoProgress     float64       `mapstructure:"quiz_unlock_video_progress"`
	CertificateMinScore         float64       `mapstructure:"certificate_min_score"`
	CertificateMinVideoProgress float64       `mapstructure:"certificate_min_video_progress"`
	VideoCompletionPercent      float64       `mapstructure:"video_completion_percent"`
	QuizWeight                  float64       `mapstructure:"quiz_weight"`
	AssignmentWeight            float64       `mapstructure:"assignment_weight"`
	CacheTTL                    time.Duration `mapstructure:"cache_ttl"`
}

type AmbassadorConfig struct {
	PointsPerSignup int    `mapstructure:"points_per_signup"`
	RewardsFile     string `mapstructure:"rewards_file"`
}

type CleanupConfig struct {
	Workers     int           `mapstructure:"workers"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("log.file", "logs/app.log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.charset", "utf8mb4")
	v.SetDefault("database.parsetime", true)
	v.SetDefault("jwt.expire_hours", 72)
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "uploads")
	v.SetDefault("rate_limit.max_requests", 600)
	v.SetDefault("rate_limit.window_minutes", 1)
	v.SetDefault("payment.currency", "INR")
	v.SetDefault("payment.confirm_timeout", 5*time.Second)
	v.SetDefault("payment.reconcile_interval", 5*time.Minute)
	v.SetDefault("payment.reconcile_after", 10*time.Minute)
	v.SetDefault("policy.quiz_unlock_video_progress", 25)
	v.SetDefault("policy.certificate_min_score", 90)
	v.SetDefault("policy.certificate_min_video_progress", 100)
	v.SetDefault("policy.video_completion_percent", 90)
	v.SetDefault("policy.quiz_weight", 0.5)
	v.SetDefault("policy.assignment_weight", 0.5)
	v.SetDefault("policy.cache_ttl", 10*time.Minute)
	v.SetDefault("ambassador.points_per_signup", 50)
	v.SetDefault("ambassador.rewards_file", "configs/rewards.yaml")
	v.SetDefault("cleanup.workers", 2)
	v.SetDefault("cleanup.max_attempts", 5)
	v.SetDefault("cleanup.base_delay", 2*time.Second)
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix("LEARNHUB")
	v.AutomaticEnv()

	// Database
	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("database.host", "DATABASE_HOST")
	v.BindEnv("database.port", "DATABASE_PORT")
	v.BindEnv("database.user", "DATABASE_USER")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("database.dbname", "DATABASE_NAME")

	// JWT
	v.BindEnv("jwt.secret", "JWT_SECRET")

	// Redis
	v.BindEnv("redis.enabled", "REDIS_ENABLED")
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	v.BindEnv("server.mode", "SERVER_MODE")
	v.BindEnv("log.level", "LOG_LEVEL")

	// Storage
	v.BindEnv("storage.type", "STORAGE_TYPE")
	v.BindEnv("storage.oss_endpoint", "OSS_ENDPOINT")
	v.BindEnv("storage.oss_access_key", "OSS_ACCESS_KEY")
	v.BindEnv("storage.oss_secret_key", "OSS_SECRET_KEY")
	v.BindEnv("storage.oss_bucket", "OSS_BUCKET")
	v.BindEnv("storage.minio_endpoint", "MINIO_ENDPOINT")
	v.BindEnv("storage.minio_access_key", "MINIO_ACCESS_KEY")
	v.BindEnv("storage.minio_secret_key", "MINIO_SECRET_KEY")
	v.BindEnv("storage.minio_bucket", "MINIO_BUCKET")

	// Payment
	v.BindEnv("payment.server_key", "MIDTRANS_SERVER_KEY")
	v.BindEnv("payment.production", "MIDTRANS_PRODUCTION")

	// Tracing
	v.BindEnv("tracing.enabled", "TRACING_ENABLED")
	v.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.JWT.ExpireTime = cfg.JWT.ExpireTime * time.Hour

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Storage.Type == "local" {
		if _, err := os.Stat(cfg.Storage.LocalPath); os.IsNotExist(err) {
			os.MkdirAll(cfg.Storage.LocalPath, 0755)
		}
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	// 生产环境校验 JWT Secret 强度
	if c.Server.Mode == "release" && len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(c.JWT.Secret))
	}
	return c.Policy.Validate()
}

func (p PolicyConfig) Validate() error {
	for name, v := range map[string]float64{
		"quiz_unlock_video_progress":     p.QuizUnlockVideoProgress,
		"certificate_min_score":          p.CertificateMinScore,
		"certificate_min_video_progress": p.CertificateMinVideoProgress,
		"video_completion_percent":       p.VideoCompletionPercent,
	} {
		if v < 0 || v > 100 {
			return fmt.Errorf("policy.%s must be within [0,100], got %v", name, v)
		}
	}
	if p.QuizWeight < 0 || p.AssignmentWeight < 0 || p.QuizWeight+p.AssignmentWeight == 0 {
		return fmt.Errorf("policy weights must be non-negative and not both zero")
	}
	return nil
}
