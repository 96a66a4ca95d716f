package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// ExportScheduler 周期性导出调度器
// 按固定间隔导出全量已完成任务, 并按保留期清理旧文件
type ExportScheduler struct {
	exports  *ExportService
	interval time.Duration
	// retention 为 0 时不清理
	retention time.Duration
	logger    *logrus.Logger
	stopChan  chan struct{}
}

// NewExportScheduler 创建导出调度器
func NewExportScheduler(exports *ExportService, interval, retention time.Duration, logger *logrus.Logger) *ExportScheduler {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &ExportScheduler{
		exports:   exports,
		interval:  interval,
		retention: retention,
		logger:    logger,
		stopChan:  make(chan struct{}),
	}
}

// Start 启动调度循环
func (s *ExportScheduler) Start(ctx context.Context) {
	go s.run(ctx)
}

// Stop 停止调度
func (s *ExportScheduler) Stop() {
	close(s.stopChan)
}

func (s *ExportScheduler) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *ExportScheduler) runOnce(ctx context.Context) {
	info, count, err := s.exports.CreateExport(ctx, "")
	if err != nil {
		s.logger.WithError(err).Warn("scheduled export failed")
	} else {
		s.logger.WithFields(logrus.Fields{
			"filename": info.Filename,
			"tasks":    count,
		}).Info("scheduled export created")
	}

	if s.retention > 0 {
		pruned, err := s.exports.PruneOlderThan(ctx, s.retention)
		if err != nil {
			s.logger.WithError(err).Warn("export pruning failed")
			return
		}
		if pruned > 0 {
			s.logger.WithField("pruned", pruned).Info("pruned old exports")
		}
	}
}
