package container

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/crowdqc/quality-gin/internal/auth"
	"github.com/crowdqc/quality-gin/internal/config"
	"github.com/crowdqc/quality-gin/internal/consensus"
	"github.com/crowdqc/quality-gin/internal/database"
	"github.com/crowdqc/quality-gin/internal/eventbus"
	"github.com/crowdqc/quality-gin/internal/honeypot"
	"github.com/crowdqc/quality-gin/internal/repository"
	"github.com/crowdqc/quality-gin/internal/service"
	"github.com/crowdqc/quality-gin/internal/websocket"
)

// Container 依赖注入容器
// 管理所有应用依赖,包括数据库、事件总线、引擎和服务
type Container struct {
	db         *gorm.DB
	logger     *logrus.Logger
	bus        eventbus.Bus
	hub        *websocket.Hub
	validator  *auth.TokenValidator
	engine     *honeypot.Engine
	aggregator *consensus.Aggregator

	tasks       repository.TaskRepository
	submissions repository.SubmissionRepository
	history     repository.StateHistoryRepository
	events      repository.EventRepository

	taskService       service.TaskService
	submissionService service.SubmissionService
	statisticsService service.StatisticsService
	exportService     *service.ExportService
}

// NewContainer 创建依赖注入容器
// 根据配置初始化所有依赖组件
func NewContainer(cfg *config.Config, logger *logrus.Logger) (*Container, error) {
	if logger == nil {
		logger = logrus.New()
	}

	// 1. 初始化数据库（带重试机制）
	// 默认重试 3 次，初始间隔 1 秒，指数退避
	db, err := database.ConnectWithRetry(cfg.Database, 3, time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// 执行数据库迁移
	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	// 2. 仓储层
	tasks := repository.NewTaskRepository(db)
	submissions := repository.NewSubmissionRepository(db)
	history := repository.NewStateHistoryRepository(db)
	events := repository.NewEventRepository(db)
	ledger := repository.NewTrustRepository(db)
	hpStore := repository.NewHoneypotRepository(db)

	// 3. 事件总线,以数据库事件表为 outbox
	bus := eventbus.New(events, cfg.EventBus.Workers, logger)

	// 4. 蜜罐引擎
	engine, err := honeypot.NewEngine(honeypot.Config{
		AccuracyThreshold:   cfg.Honeypot.AccuracyThreshold,
		TrustScoreThreshold: cfg.Honeypot.TrustScoreThreshold,
		MaxDailyAttempts:    cfg.Honeypot.MaxDailyAttempts,
		AccuracyWeight:      cfg.Honeypot.AccuracyWeight,
		TimeWeight:          cfg.Honeypot.TimeWeight,
		StreakBonus:         cfg.Honeypot.StreakBonus,
		MaxStreak:           cfg.Honeypot.MaxStreak,
		PenaltyMultiplier:   cfg.Honeypot.PenaltyMultiplier,
	}, ledger, hpStore, bus, honeypot.RealClock(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize honeypot engine: %w", err)
	}

	// 5. 共识聚合器
	aggregator := consensus.NewAggregator(consensus.Config{
		GrowOnConflict: cfg.Consensus.GrowOnConflict,
		ConflictGrowth: cfg.Consensus.ConflictGrowth,
		MaxSubmissions: cfg.Consensus.MaxSubmissions,
	})
	defaults := consensus.Defaults{
		RequiredSubmissions: cfg.Consensus.DefaultRequiredSubmissions,
		Threshold:           cfg.Consensus.DefaultThreshold,
	}

	// 6. 服务层
	registry := service.NewRegistry(tasks, submissions)
	taskService := service.NewTaskService(registry, tasks, submissions, history, aggregator, hpStore, defaults, logger)
	submissionService := service.NewSubmissionService(registry, tasks, submissions, history, aggregator, engine, logger)
	statisticsService := service.NewStatisticsService(db, engine)
	exportService := service.NewExportService(db, cfg.Export, logger)

	// 7. WebSocket Hub 与 JWT 验证器
	hub := websocket.NewHub()
	websocket.BridgeEvents(hub, bus)
	validator := auth.NewTokenValidator(cfg.Auth.Secret, cfg.Auth.Issuer)

	return &Container{
		db:                db,
		logger:            logger,
		bus:               bus,
		hub:               hub,
		validator:         validator,
		engine:            engine,
		aggregator:        aggregator,
		tasks:             tasks,
		submissions:       submissions,
		history:           history,
		events:            events,
		taskService:       taskService,
		submissionService: submissionService,
		statisticsService: statisticsService,
		exportService:     exportService,
	}, nil
}

// DB 获取数据库连接
func (c *Container) DB() *gorm.DB {
	return c.db
}

// Logger 获取日志器
func (c *Container) Logger() *logrus.Logger {
	return c.logger
}

// Bus 获取事件总线
func (c *Container) Bus() eventbus.Bus {
	return c.bus
}

// Hub 获取 WebSocket Hub
func (c *Container) Hub() *websocket.Hub {
	return c.hub
}

// TokenValidator 获取 JWT 验证器
func (c *Container) TokenValidator() *auth.TokenValidator {
	return c.validator
}

// Engine 获取蜜罐引擎
func (c *Container) Engine() *honeypot.Engine {
	return c.engine
}

// Aggregator 获取共识聚合器
func (c *Container) Aggregator() *consensus.Aggregator {
	return c.aggregator
}

// TaskService 获取任务服务
func (c *Container) TaskService() service.TaskService {
	return c.taskService
}

// SubmissionService 获取提交服务
func (c *Container) SubmissionService() service.SubmissionService {
	return c.submissionService
}

// StatisticsService 获取统计服务
func (c *Container) StatisticsService() service.StatisticsService {
	return c.statisticsService
}

// ExportService 获取数据集导出服务
func (c *Container) ExportService() *service.ExportService {
	return c.exportService
}

// Close 关闭容器,清理资源
// 先停事件总线再停 Hub, 保证在途事件尽量投递完
func (c *Container) Close() error {
	if c.bus != nil {
		c.bus.Stop()
	}
	if c.hub != nil {
		c.hub.Stop()
	}
	if c.db != nil {
		sqlDB, err := c.db.DB()
		if err == nil {
			sqlDB.Close()
		}
	}
	return nil
}
