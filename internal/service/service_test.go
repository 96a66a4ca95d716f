package service

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/crowdqc/quality-gin/internal/consensus"
	"github.com/crowdqc/quality-gin/internal/database"
	"github.com/crowdqc/quality-gin/internal/eventbus"
	"github.com/crowdqc/quality-gin/internal/honeypot"
	"github.com/crowdqc/quality-gin/internal/repository"
)

// harness 服务层测试环境: 内存数据库 + 真实仓储 + 真实引擎
type harness struct {
	db       *gorm.DB
	registry *Registry
	tasks    repository.TaskRepository
	subs     repository.SubmissionRepository
	history  repository.StateHistoryRepository
	ledger   honeypot.TrustLedger
	hpStore  honeypot.Store
	bus      eventbus.Bus
	engine   *honeypot.Engine

	taskSvc TaskService
	subSvc  SubmissionService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	tasks := repository.NewTaskRepository(db)
	subs := repository.NewSubmissionRepository(db)
	history := repository.NewStateHistoryRepository(db)
	events := repository.NewEventRepository(db)
	ledger := repository.NewTrustRepository(db)
	hpStore := repository.NewHoneypotRepository(db)

	bus := eventbus.New(events, 1, logger)
	t.Cleanup(bus.Stop)

	engine, err := honeypot.NewEngine(honeypot.DefaultConfig(), ledger, hpStore, bus, honeypot.RealClock(), logger)
	require.NoError(t, err)

	registry := NewRegistry(tasks, subs)
	aggregator := consensus.NewAggregator(consensus.DefaultConfig())
	defaults := consensus.NewDefaults()

	return &harness{
		db:       db,
		registry: registry,
		tasks:    tasks,
		subs:     subs,
		history:  history,
		ledger:   ledger,
		hpStore:  hpStore,
		bus:      bus,
		engine:   engine,
		taskSvc:  NewTaskService(registry, tasks, subs, history, aggregator, hpStore, defaults, logger),
		subSvc:   NewSubmissionService(registry, tasks, subs, history, aggregator, engine, logger),
	}
}
