package database

import (
	"context"
	"fmt"
	"time"

	"github.com/crowdqc/quality-gin/internal/config"
	"github.com/crowdqc/quality-gin/internal/model"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// PoolConfig 连接池配置
type PoolConfig struct {
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime int // 秒
	ConnMaxIdleTime int // 秒
}

// BuildDSN 构建 PostgreSQL DSN
func BuildDSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
}

// GetPoolConfig 获取连接池配置
func GetPoolConfig() *PoolConfig {
	return &PoolConfig{
		MaxIdleConns:    10,
		MaxOpenConns:    100,
		ConnMaxLifetime: 3600, // 1 小时
		ConnMaxIdleTime: 600,  // 10 分钟
	}
}

// GetProductionPoolConfig 获取生产环境连接池配置
func GetProductionPoolConfig() *PoolConfig {
	return &PoolConfig{
		MaxIdleConns:    20,
		MaxOpenConns:    200,
		ConnMaxLifetime: 3600, // 1 小时
		ConnMaxIdleTime: 300,  // 5 分钟（生产环境缩短空闲时间）
	}
}

// Connect 连接数据库
func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := BuildDSN(cfg)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	// 配置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	// 从配置中读取连接池参数,未设置的字段回退默认值
	poolConfig := GetPoolConfig()
	if cfg.MaxIdleConns > 0 {
		poolConfig.MaxIdleConns = cfg.MaxIdleConns
	}
	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxOpenConns = cfg.MaxOpenConns
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.ConnMaxLifetime = cfg.ConnMaxLifetime
	}
	if cfg.ConnMaxIdleTime > 0 {
		poolConfig.ConnMaxIdleTime = cfg.ConnMaxIdleTime
	}

	sqlDB.SetMaxIdleConns(poolConfig.MaxIdleConns)
	sqlDB.SetMaxOpenConns(poolConfig.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(poolConfig.ConnMaxLifetime) * time.Second)
	sqlDB.SetConnMaxIdleTime(time.Duration(poolConfig.ConnMaxIdleTime) * time.Second)

	return db, nil
}

// Migrate 执行数据库迁移
func Migrate(db *gorm.DB) error {
	// 检测数据库类型
	dialector := db.Dialector.Name()

	// SQLite 不支持 jsonb,需要手动创建表
	// GORM SQLite dialector 的名称可能是 "sqlite" 或 "sqlite3"
	if dialector == "sqlite" || dialector == "sqlite3" {
		if err := createSQLiteTables(db); err != nil {
			return fmt.Errorf("failed to create SQLite tables: %w", err)
		}
	} else {
		// PostgreSQL 等其他数据库使用 AutoMigrate
		if err := db.AutoMigrate(
			&model.TaskModel{},
			&model.SubmissionModel{},
			&model.HoneypotModel{},
			&model.TrustRecordModel{},
			&model.StateHistoryModel{},
			&model.EventModel{},
		); err != nil {
			return fmt.Errorf("failed to auto migrate: %w", err)
		}
	}

	// 创建索引
	if err := CreateIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

// createSQLiteTables 为 SQLite 手动创建表(使用 TEXT 替代 jsonb)
func createSQLiteTables(db *gorm.DB) error {
	// 创建 tasks 表
	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS tasks (
			id VARCHAR(64) PRIMARY KEY,
			batch_id VARCHAR(64),
			title VARCHAR(255),
			payload TEXT NOT NULL,
			state VARCHAR(32) NOT NULL,
			is_honeypot BOOLEAN NOT NULL DEFAULT 0,
			expected_label VARCHAR(255),
			difficulty VARCHAR(16),
			points INTEGER DEFAULT 0,
			trust_bonus INTEGER DEFAULT 0,
			required_submissions INTEGER NOT NULL DEFAULT 3,
			consensus_threshold DECIMAL(4,3) NOT NULL DEFAULT 0.6,
			consensus_level VARCHAR(32) NOT NULL DEFAULT 'PENDING',
			final_answer VARCHAR(255),
			assigned_to VARCHAR(64),
			created_by VARCHAR(64),
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			expires_at DATETIME
		)
	`).Error; err != nil {
		return fmt.Errorf("failed to create tasks table: %w", err)
	}

	// 创建 submissions 表
	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS submissions (
			id VARCHAR(64) PRIMARY KEY,
			task_id VARCHAR(64) NOT NULL,
			user_id VARCHAR(64) NOT NULL,
			answer VARCHAR(255) NOT NULL,
			confidence DECIMAL(4,3) DEFAULT 0,
			time_spent_ms BIGINT DEFAULT 0,
			is_correct BOOLEAN,
			submitted_at DATETIME NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			UNIQUE (task_id, user_id)
		)
	`).Error; err != nil {
		return fmt.Errorf("failed to create submissions table: %w", err)
	}

	// 创建 honeypots 表
	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS honeypots (
			task_id VARCHAR(64) PRIMARY KEY,
			expected_label VARCHAR(255) NOT NULL,
			difficulty VARCHAR(16) NOT NULL,
			points INTEGER NOT NULL DEFAULT 0,
			trust_bonus INTEGER NOT NULL DEFAULT 0,
			active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)
	`).Error; err != nil {
		return fmt.Errorf("failed to create honeypots table: %w", err)
	}

	// 创建 trust_records 表
	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS trust_records (
			user_id VARCHAR(64) PRIMARY KEY,
			total_attempted INTEGER NOT NULL DEFAULT 0,
			total_correct INTEGER NOT NULL DEFAULT 0,
			accuracy_rate DECIMAL(5,4) NOT NULL DEFAULT 0,
			trust_score DECIMAL(6,2) NOT NULL DEFAULT 50,
			streak INTEGER NOT NULL DEFAULT 0,
			best_streak INTEGER NOT NULL DEFAULT 0,
			attempts_today INTEGER NOT NULL DEFAULT 0,
			last_honeypot_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)
	`).Error; err != nil {
		return fmt.Errorf("failed to create trust_records table: %w", err)
	}

	// 创建 state_history 表
	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS state_history (
			id VARCHAR(64) PRIMARY KEY,
			task_id VARCHAR(64) NOT NULL,
			from_state VARCHAR(32),
			to_state VARCHAR(32) NOT NULL,
			reason TEXT,
			user_id VARCHAR(64),
			metadata TEXT,
			created_at DATETIME NOT NULL
		)
	`).Error; err != nil {
		return fmt.Errorf("failed to create state_history table: %w", err)
	}

	// 创建 events 表
	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id VARCHAR(64) PRIMARY KEY,
			task_id VARCHAR(64) NOT NULL,
			user_id VARCHAR(64),
			type VARCHAR(64) NOT NULL,
			data TEXT NOT NULL,
			status VARCHAR(32) NOT NULL DEFAULT 'pending',
			retry_count INTEGER DEFAULT 0,
			last_error TEXT,
			delivered_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)
	`).Error; err != nil {
		return fmt.Errorf("failed to create events table: %w", err)
	}

	return nil
}

// CreateIndexes 创建数据库索引
func CreateIndexes(db *gorm.DB) error {
	indexes := []string{
		// tasks 表索引
		"CREATE INDEX IF NOT EXISTS idx_tasks_state ON tasks(state)",
		"CREATE INDEX IF NOT EXISTS idx_tasks_batch_id ON tasks(batch_id)",
		"CREATE INDEX IF NOT EXISTS idx_tasks_is_honeypot ON tasks(is_honeypot)",
		"CREATE INDEX IF NOT EXISTS idx_tasks_assigned_to ON tasks(assigned_to)",
		"CREATE INDEX IF NOT EXISTS idx_tasks_expires_at ON tasks(expires_at)",
		"CREATE INDEX IF NOT EXISTS idx_tasks_updated_at ON tasks(updated_at)",

		// submissions 表索引
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_task_user ON submissions(task_id, user_id)",
		"CREATE INDEX IF NOT EXISTS idx_submissions_task_id ON submissions(task_id)",
		"CREATE INDEX IF NOT EXISTS idx_submissions_user_id ON submissions(user_id)",
		"CREATE INDEX IF NOT EXISTS idx_submissions_submitted_at ON submissions(submitted_at)",

		// honeypots 表索引
		"CREATE INDEX IF NOT EXISTS idx_honeypots_active ON honeypots(active)",
		"CREATE INDEX IF NOT EXISTS idx_honeypots_difficulty ON honeypots(difficulty)",

		// trust_records 表索引
		"CREATE INDEX IF NOT EXISTS idx_trust_updated_at ON trust_records(updated_at)",

		// state_history 表索引
		"CREATE INDEX IF NOT EXISTS idx_history_task_id ON state_history(task_id)",
		"CREATE INDEX IF NOT EXISTS idx_history_created_at ON state_history(created_at)",

		// events 表索引
		"CREATE INDEX IF NOT EXISTS idx_events_status ON events(status)",
		"CREATE INDEX IF NOT EXISTS idx_events_task_id ON events(task_id)",
		"CREATE INDEX IF NOT EXISTS idx_events_created_at ON events(created_at)",
	}
	for _, stmt := range indexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	// PostgreSQL 特定的 GIN 索引
	if db.Dialector.Name() == "postgres" {
		if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_tasks_payload_gin ON tasks USING GIN (payload)").Error; err != nil {
			return fmt.Errorf("failed to create idx_tasks_payload_gin: %w", err)
		}
	}

	return nil
}

// ConnectWithRetry 带重试的数据库连接
func ConnectWithRetry(cfg config.DatabaseConfig, maxRetries int, retryInterval time.Duration) (*gorm.DB, error) {
	var db *gorm.DB
	var err error

	for i := 0; i < maxRetries; i++ {
		db, err = Connect(cfg)
		if err == nil {
			return db, nil
		}

		// 如果不是最后一次重试,等待后指数退避重试
		if i < maxRetries-1 {
			time.Sleep(retryInterval)
			retryInterval *= 2
		}
	}

	return nil, fmt.Errorf("failed to connect database after %d retries: %w", maxRetries, err)
}

// CheckHealth 检查数据库连接健康状态
func CheckHealth(db *gorm.DB) bool {
	if db == nil {
		return false
	}

	sqlDB, err := db.DB()
	if err != nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return sqlDB.PingContext(ctx) == nil
}

// Reconnect 重新连接数据库
func Reconnect(cfg config.DatabaseConfig, oldDB *gorm.DB) (*gorm.DB, error) {
	// 关闭旧连接
	if oldDB != nil {
		if sqlDB, err := oldDB.DB(); err == nil {
			sqlDB.Close()
		}
	}

	return Connect(cfg)
}
