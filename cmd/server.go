/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/crowdqc/quality-gin/internal/api"
	"github.com/crowdqc/quality-gin/internal/config"
	"github.com/crowdqc/quality-gin/internal/container"
	"github.com/crowdqc/quality-gin/internal/honeypot"
	"github.com/crowdqc/quality-gin/internal/metrics"
	"github.com/crowdqc/quality-gin/internal/service"
)

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the API server",
	Long: `Start the Quality Gin API server.
The server will listen on the configured host and port,
and provide REST API interfaces for labeling task lifecycle,
consensus aggregation and honeypot trust scoring.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1. 加载配置
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// 2. 初始化日志
		logger, err := api.NewLoggerFromConfig(&cfg.Log)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		api.SetDefaultLogger(logger)

		// 3. 初始化链路追踪
		if cfg.Tracing.Enabled {
			if err := api.InitTracing(cfg.Tracing.ServiceName, cfg.Tracing.JaegerEndpoint); err != nil {
				return fmt.Errorf("failed to initialize tracing: %w", err)
			}
		}

		// 4. 初始化容器
		ctr, err := container.NewContainer(cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize container: %w", err)
		}
		defer ctr.Close()

		// 5. 启动 WebSocket Hub 和指标采集器
		go ctr.Hub().Run()
		collector := metrics.NewCollector(ctr.DB(), 15*time.Second)
		collector.Start()
		defer collector.Stop()

		// 6. SSE 分发器, 与 WebSocket 并行的推送通道
		broker := api.NewSSEBroker()
		api.BridgeSSE(broker, ctr.Bus())

		// 7. 初始化控制器
		taskController := api.NewTaskController(ctr.TaskService())
		submissionController := api.NewSubmissionController(ctr.SubmissionService())
		workerController := api.NewWorkerController(ctr.Engine(), ctr.StatisticsService())
		adminController := api.NewAdminController(ctr.Engine(), ctr.TaskService(), ctr.StatisticsService())
		exportController := api.NewExportController(ctr.ExportService())

		// 8. 设置路由
		router := api.SetupRoutes(cfg, ctr.DB(), ctr.Hub(), broker, ctr.TokenValidator())
		api.RegisterAPIRoutes(router, ctr.TokenValidator(), taskController, submissionController, workerController, adminController, exportController)

		// 9. 后台任务: 过期扫描和周期性导出
		bgCtx, cancelBG := context.WithCancel(context.Background())
		defer cancelBG()
		go runExpiryLoop(bgCtx, ctr)

		if cfg.Export.ScheduleEnabled {
			scheduler := service.NewExportScheduler(
				ctr.ExportService(),
				time.Duration(cfg.Export.ScheduleInterval)*time.Minute,
				time.Duration(cfg.Export.RetentionDays)*24*time.Hour,
				logger,
			)
			scheduler.Start(bgCtx)
			defer scheduler.Stop()
		}

		// 10. 配置热更新: 蜜罐引擎参数可以在运行时调整
		if configPath != "" {
			watcher := config.NewConfigWatcher(cfg, configPath)
			watcher.OnConfigChange(func(newCfg *config.Config) {
				if err := ctr.Engine().UpdateConfig(honeypotConfigFrom(&newCfg.Honeypot)); err != nil {
					logger.WithError(err).Warn("rejected honeypot config reload")
					return
				}
				logger.Info("honeypot config reloaded")
			})
			if err := watcher.Start(); err != nil {
				logger.WithError(err).Warn("config watcher disabled")
			} else {
				defer watcher.Stop()
			}
		}

		// 11. 启动服务器
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		srv := &http.Server{
			Addr:    addr,
			Handler: router,
		}

		// 启动服务器（在 goroutine 中）
		go func() {
			logger.WithField("addr", addr).Info("server starting")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.WithError(err).Fatal("failed to start server")
			}
		}()

		// 等待中断信号
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		logger.Info("shutting down server...")
		cancelBG()

		// 优雅关闭
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.WithError(err).Fatal("server forced to shutdown")
		}

		if cfg.Tracing.Enabled {
			if err := api.ShutdownTracing(ctx); err != nil {
				logger.WithError(err).Warn("failed to shutdown tracing")
			}
		}

		logger.Info("server exited")
		return nil
	},
}

// honeypotConfigFrom 把配置文件中的蜜罐参数转换为引擎配置
func honeypotConfigFrom(cfg *config.HoneypotConfig) honeypot.Config {
	return honeypot.Config{
		AccuracyThreshold:   cfg.AccuracyThreshold,
		TrustScoreThreshold: cfg.TrustScoreThreshold,
		MaxDailyAttempts:    cfg.MaxDailyAttempts,
		AccuracyWeight:      cfg.AccuracyWeight,
		TimeWeight:          cfg.TimeWeight,
		StreakBonus:         cfg.StreakBonus,
		MaxStreak:           cfg.MaxStreak,
		PenaltyMultiplier:   cfg.PenaltyMultiplier,
	}
}

// runExpiryLoop 周期性扫描超时任务并置为 EXPIRED
func runExpiryLoop(ctx context.Context, ctr *container.Container) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, err := ctr.TaskService().ExpireOverdue(ctx)
			if err != nil {
				ctr.Logger().WithError(err).Warn("expiry scan failed")
				continue
			}
			if expired > 0 {
				ctr.Logger().WithField("expired", expired).Info("expired overdue tasks")
			}
		}
	}
}

func init() {
	rootCmd.AddCommand(serverCmd)

	// 服务器配置标志
	serverCmd.Flags().String("config", "", "Config file path (default: config.yaml)")
	serverCmd.Flags().String("host", "0.0.0.0", "Server host")
	serverCmd.Flags().Int("port", 8080, "Server port")
}
