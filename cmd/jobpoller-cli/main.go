// jobpoller-cli — административная утилита воркера jobpoller.
//
// Использование:
//
//	jobpoller-cli [--config FILE] [--json] <command> [flags]
//
// Команды:
//
//	interval  Как воркер поймёт строку интервала
//	due       Задания, которые пора запускать
//	wake      Разбудить работающие воркеры (pg_notify или RabbitMQ)
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/jobpoller/internal/cli"
	"github.com/shaiso/jobpoller/internal/config"
	"github.com/shaiso/jobpoller/internal/mq"
	"github.com/shaiso/jobpoller/internal/repo"
	"github.com/shaiso/jobpoller/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

var (
	errNoNotifyChannel = errors.New("scheduler.notify_channel is empty, pg wakeups are disabled")
	errNoMQ            = errors.New("mq.url is empty, RabbitMQ wakeups are disabled")
)

func main() {
	var configFile string
	var jsonOutput bool
	var cfg *config.Config
	var logger *slog.Logger

	v := config.New()

	rootCmd := &cobra.Command{
		Use:           "jobpoller-cli",
		Short:         "jobpoller admin tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(v, configFile)
			if err != nil {
				return err
			}
			// Логи утилиты — только в stderr и только важное.
			logger = telemetry.NewLogger(os.Stderr, "WARN", "text")
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (yaml or toml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	jobsFn := func(ctx context.Context) (cli.DueLister, func(), error) {
		r, closeFn, err := openJobs(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return r, closeFn, nil
	}

	wakeFn := func(ctx context.Context, via string) (cli.WakeSender, func(), error) {
		switch via {
		case cli.WakeViaMQ:
			return openMQWake(cfg, logger)
		default:
			if cfg.Scheduler.NotifyChannel == "" {
				return nil, nil, errNoNotifyChannel
			}
			r, closeFn, err := openJobs(ctx, cfg)
			if err != nil {
				return nil, nil, err
			}
			return &pgWake{repo: r, channel: cfg.Scheduler.NotifyChannel}, closeFn, nil
		}
	}

	rootCmd.AddCommand(
		cli.NewIntervalCmd(outputFn),
		cli.NewDueCmd(jobsFn, outputFn),
		cli.NewWakeCmd(wakeFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// openJobs открывает пул и репозиторий заданий.
func openJobs(ctx context.Context, cfg *config.Config) (*repo.JobRepo, func(), error) {
	db := cfg.Database
	db.MaxConns = 1

	pool, err := repo.NewPool(ctx, db)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}

	r, err := repo.NewJobRepo(pool, repo.JobRepoConfig{
		Table:     cfg.Scheduler.Table,
		ClaimMode: cfg.Scheduler.ClaimModeValue(),
	})
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return r, pool.Close, nil
}

// openMQWake подключается к RabbitMQ и объявляет exchange пробуждений.
func openMQWake(cfg *config.Config, logger *slog.Logger) (cli.WakeSender, func(), error) {
	if cfg.MQ.URL == "" {
		return nil, nil, errNoMQ
	}

	conn, err := mq.NewConnection(cfg.MQ.URL, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}

	pub := mq.NewPublisher(conn, logger)
	if err := pub.EnsureWakeExchange(); err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return &mqWake{pub: pub}, func() { _ = conn.Close() }, nil
}

// pgWake будит воркеры через NOTIFY.
type pgWake struct {
	repo    *repo.JobRepo
	channel string
}

func (w *pgWake) Wake(ctx context.Context, reason string) error {
	return w.repo.Notify(ctx, w.channel, reason)
}

// mqWake будит воркеры через fanout exchange.
type mqWake struct {
	pub *mq.Publisher
}

func (w *mqWake) Wake(ctx context.Context, reason string) error {
	return w.pub.PublishWake(ctx, reason)
}
