// jobpoller — фоновый воркер, запускающий задания из таблицы PostgreSQL.
//
// Воркер:
//   - Просыпается по таймеру (scheduler.wake_interval) или по latch
//     (NOTIFY, RabbitMQ, SIGUSR1)
//   - Выбирает due задания с FOR UPDATE SKIP LOCKED
//   - Передаёт каждое функции выполнения в одной транзакции цикла
//   - Фиксирует или откатывает цикл целиком
//
// Экземпляры масштабируются горизонтально: блокировки строк не дают
// двум воркерам запустить одно задание в одном окне.
//
// Коды выхода: 0 — штатная остановка, 1 — гибель хоста, 2 — ошибка.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/shaiso/jobpoller/internal/config"
	"github.com/shaiso/jobpoller/internal/host"
	"github.com/shaiso/jobpoller/internal/interval"
	"github.com/shaiso/jobpoller/internal/mq"
	"github.com/shaiso/jobpoller/internal/repo"
	"github.com/shaiso/jobpoller/internal/scheduler"
	"github.com/shaiso/jobpoller/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var configFile string
	exitCode := host.ExitOK

	v := config.New()

	rootCmd := &cobra.Command{
		Use:           "jobpoller",
		Short:         "Background worker that runs due jobs from PostgreSQL",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, configFile)
			if err != nil {
				return err
			}
			exitCode = run(cfg)
			return nil
		},
	}

	rootCmd.Flags().StringVar(&configFile, "config", "", "Config file (yaml or toml)")
	if err := config.BindFlags(v, rootCmd.Flags()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(host.ExitFatal)
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(host.ExitFatal)
	}
	os.Exit(exitCode)
}

// run запускает воркер и возвращает код выхода.
// При гибели хоста процесс завершается сразу, без очистки.
func run(cfg *config.Config) int {
	instance := uuid.New().String()
	logger := telemetry.WithInstance(telemetry.SetupLogger(cfg.Log.Level, cfg.Log.Format), instance)
	logger.Info("starting jobpoller", "version", version)

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), host.TerminateSignals...)
	defer cancel()

	// гибель хоста
	watcher := host.NewShutdownWatcher(host.ShutdownConfig{
		WatchParent: cfg.Scheduler.WatchParent,
		Logger:      logger,
	})
	stopWatch := watcher.Start()
	defer stopWatch()

	// DB pool
	pool, err := repo.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return host.ExitFatal
	}
	defer pool.Close()
	logger.Info("database connected")

	jobs, err := repo.NewJobRepo(pool, repo.JobRepoConfig{
		Table:     cfg.Scheduler.Table,
		ClaimMode: cfg.Scheduler.ClaimModeValue(),
		LeaseTTL:  cfg.Scheduler.LeaseTTL,
		BatchSize: cfg.Scheduler.BatchSize,
		Owner:     instance,
	})
	if err != nil {
		logger.Error("failed to create job repo", "error", err)
		return host.ExitFatal
	}

	executor, err := repo.NewProcExecutor(cfg.Scheduler.ExecuteFunction)
	if err != nil {
		logger.Error("failed to create executor", "error", err)
		return host.ExitFatal
	}

	sched := scheduler.New(scheduler.Config{
		Store:        jobs,
		Executor:     executor,
		HostShutdown: watcher.Done(),
		Interval:     interval.ParseOrDefault(logger, cfg.Scheduler.WakeInterval),
		Logger:       logger,
		Metrics:      telemetry.NewMetrics(prometheus.DefaultRegisterer),
	})
	logger.Info("scheduler configured",
		"interval", sched.Interval(),
		"claim_mode", cfg.Scheduler.ClaimModeValue(),
		"table", cfg.Scheduler.Table,
	)

	// Источники пробуждения
	go host.WakeOnSignal(ctx, sched.Latch(), logger)

	if cfg.Scheduler.NotifyChannel != "" {
		listener := repo.NewWakeListener(pool, cfg.Scheduler.NotifyChannel, sched.Latch(), logger)
		go func() {
			if err := listener.Run(ctx); err != nil {
				logger.Error("wake listener stopped", "error", err)
			}
		}()
	}

	if cfg.MQ.URL != "" {
		mqConn, err := mq.NewConnection(cfg.MQ.URL, logger)
		if err != nil {
			logger.Warn("RabbitMQ not available, running without mq wakeups", "error", err)
		} else {
			defer mqConn.Close()
			logger.Info("RabbitMQ connected")
			logger.Debug(mq.TopologyInfo(mq.WakeQueue(instance)))

			consumer := mq.NewWakeConsumer(mqConn, instance, sched.Latch(), logger)
			go func() {
				if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("wake consumer stopped", "error", err)
				}
			}()
		}
	}

	// HTTP: /healthz + /metrics
	var srv *http.Server
	if cfg.HTTP.Addr != "" {
		srv = newHTTPServer(cfg.HTTP.Addr, sched)
		go func() {
			logger.Info("listening", "addr", cfg.HTTP.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
	}

	notifier := host.NewNotifier(logger)
	notifier.Ready()
	go notifier.RunWatchdog(ctx)

	sup := &host.Supervisor{
		RestartDelay: cfg.Scheduler.RestartDelay,
		HostShutdown: watcher.Done(),
		Logger:       logger,
	}
	err = sup.Run(ctx, sched.Run)

	code := host.ExitCode(err)
	if code == host.ExitHostShutdown {
		logger.Warn("host shutdown, exiting without cleanup")
		os.Exit(code)
	}

	notifier.Stopping()
	if srv != nil {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		_ = srv.Shutdown(shutdownCtx)
	}

	if code != host.ExitOK {
		logger.Error("jobpoller stopped", "error", err, "exit_code", code)
		return code
	}
	logger.Info("jobpoller stopped")
	return code
}

// newHTTPServer создаёт сервер /healthz и /metrics.
// /healthz отвечает 503, когда цикл не в RUNNING.
func newHTTPServer(addr string, sched *scheduler.Scheduler) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		state := sched.State()
		if state != scheduler.StateRunning {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		_, _ = w.Write([]byte(state.String()))
	})
	mux.Handle("/metrics", promhttp.Handler())

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          slog.NewLogLogger(slog.Default().Handler(), slog.LevelError),
	}
}
