package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Env       string          `mapstructure:"env"` // 环境: development, production
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Log       LogConfig       `mapstructure:"log"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Honeypot  HoneypotConfig  `mapstructure:"honeypot"`
	Consensus ConsensusConfig `mapstructure:"consensus"`
	EventBus  EventBusConfig  `mapstructure:"eventbus"`
	Export    ExportConfig    `mapstructure:"export"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host           string  `mapstructure:"host"`
	Port           int     `mapstructure:"port"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
	HTTPSRedirect  bool    `mapstructure:"https_redirect"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // 秒
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time"` // 秒
}

// AuthConfig JWT 鉴权配置
type AuthConfig struct {
	// Secret HMAC 签名密钥,为空时鉴权中间件放行所有请求(仅开发环境)
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
	MaxAge         int      `mapstructure:"max_age"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`  // 日志级别: debug, info, warn, error
	Format string `mapstructure:"format"`  // 日志格式: json, text
	Output string `mapstructure:"output"` // 输出位置: stdout, file, both
}

// TracingConfig 链路追踪配置
type TracingConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	ServiceName    string `mapstructure:"service_name"`
	SampleRate     float64 `mapstructure:"sample_rate"`
}

// HoneypotConfig 蜜罐引擎配置
type HoneypotConfig struct {
	AccuracyThreshold   float64 `mapstructure:"accuracy_threshold"`
	TrustScoreThreshold float64 `mapstructure:"trust_score_threshold"`
	MaxDailyAttempts    int     `mapstructure:"max_daily_attempts"`
	AccuracyWeight      float64 `mapstructure:"accuracy_weight"`
	TimeWeight          float64 `mapstructure:"time_weight"`
	StreakBonus         float64 `mapstructure:"streak_bonus"`
	MaxStreak           int     `mapstructure:"max_streak"`
	PenaltyMultiplier   float64 `mapstructure:"penalty_multiplier"`
}

// ConsensusConfig 共识聚合配置
type ConsensusConfig struct {
	DefaultRequiredSubmissions int     `mapstructure:"default_required_submissions"`
	DefaultThreshold           float64 `mapstructure:"default_threshold"`
	GrowOnConflict             bool    `mapstructure:"grow_on_conflict"`
	ConflictGrowth             int     `mapstructure:"conflict_growth"`
	MaxSubmissions             int     `mapstructure:"max_submissions"`
}

// EventBusConfig 事件总线配置
type EventBusConfig struct {
	Workers int `mapstructure:"workers"`
}

// ExportConfig 数据集导出配置
type ExportConfig struct {
	// Dir 导出文件目录
	Dir string `mapstructure:"dir"`
	// EncryptionKey 非空时导出文件用 AES-256-GCM 加密, 至少 32 字节
	EncryptionKey string `mapstructure:"encryption_key"`
	// ScheduleEnabled 是否启用周期性自动导出
	ScheduleEnabled bool `mapstructure:"schedule_enabled"`
	// ScheduleInterval 自动导出间隔 (分钟)
	ScheduleInterval int `mapstructure:"schedule_interval"`
	// RetentionDays 导出文件保留天数, 0 表示不清理
	RetentionDays int `mapstructure:"retention_days"`
}

// Load 加载配置,支持配置文件和环境变量
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// 设置默认值
	setDefaults(v)

	// 如果提供了配置文件路径,从文件加载
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		// 尝试从默认位置加载
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.quality-gin")
		// 忽略配置文件不存在的错误,使用默认值
		_ = v.ReadInConfig()
	}

	// 支持环境变量
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// IsProduction 判断是否为生产环境
func IsProduction(cfg *Config) bool {
	if cfg == nil {
		return false
	}
	return cfg.Env == "production"
}

// Default 返回默认配置
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// setDefaults 设置配置默认值
func setDefaults(v *viper.Viper) {
	// 环境变量
	env := v.GetString("env")
	if env == "" {
		env = os.Getenv("APP_ENV")
		if env == "" {
			env = "development"
		}
	}
	v.SetDefault("env", env)

	// 服务器默认配置
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit_rps", 100)
	v.SetDefault("server.rate_limit_burst", 200)
	v.SetDefault("server.https_redirect", false)

	// 数据库默认配置
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "qualityctl")
	v.SetDefault("database.sslmode", "disable")

	// 数据库连接池配置（根据环境设置默认值）
	if env == "production" {
		v.SetDefault("database.max_idle_conns", 20)
		v.SetDefault("database.max_open_conns", 200)
		v.SetDefault("database.conn_max_lifetime", 3600) // 1 小时
		v.SetDefault("database.conn_max_idle_time", 300)  // 5 分钟
	} else {
		v.SetDefault("database.max_idle_conns", 10)
		v.SetDefault("database.max_open_conns", 100)
		v.SetDefault("database.conn_max_lifetime", 3600) // 1 小时
		v.SetDefault("database.conn_max_idle_time", 600)  // 10 分钟
	}

	// 鉴权默认配置
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.issuer", "quality-gin")

	// CORS 默认配置
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Content-Type", "Authorization", "X-Request-ID"})
	v.SetDefault("cors.max_age", 86400)

	// 日志配置（根据环境设置默认值）
	if env == "production" {
		v.SetDefault("log.level", "warn")
		v.SetDefault("log.format", "json")
	} else {
		v.SetDefault("log.level", "debug")
		v.SetDefault("log.format", "text")
	}
	v.SetDefault("log.output", "stdout")

	// 链路追踪默认配置
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("tracing.service_name", "quality-gin")
	v.SetDefault("tracing.sample_rate", 0.1)

	// 蜜罐引擎默认配置
	v.SetDefault("honeypot.accuracy_threshold", 0.85)
	v.SetDefault("honeypot.trust_score_threshold", 50.0)
	v.SetDefault("honeypot.max_daily_attempts", 10)
	v.SetDefault("honeypot.accuracy_weight", 0.7)
	v.SetDefault("honeypot.time_weight", 0.3)
	v.SetDefault("honeypot.streak_bonus", 0.1)
	v.SetDefault("honeypot.max_streak", 5)
	v.SetDefault("honeypot.penalty_multiplier", 2.0)

	// 共识聚合默认配置
	v.SetDefault("consensus.default_required_submissions", 3)
	v.SetDefault("consensus.default_threshold", 0.6)
	v.SetDefault("consensus.grow_on_conflict", true)
	v.SetDefault("consensus.conflict_growth", 2)
	v.SetDefault("consensus.max_submissions", 9)

	// 事件总线默认配置
	v.SetDefault("eventbus.workers", 4)

	// 数据集导出默认配置
	v.SetDefault("export.dir", "./exports")
	v.SetDefault("export.encryption_key", "")
	v.SetDefault("export.schedule_enabled", false)
	v.SetDefault("export.schedule_interval", 1440) // 每天一次
	v.SetDefault("export.retention_days", 30)
}
