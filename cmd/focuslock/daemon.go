package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focuslock/internal/broadcast"
	"github.com/eliteGoblin/focusd/focuslock/internal/config"
	"github.com/eliteGoblin/focusd/focuslock/internal/daemon"
	"github.com/eliteGoblin/focusd/focuslock/internal/filter"
	"github.com/eliteGoblin/focusd/focuslock/internal/infra"
	"github.com/eliteGoblin/focusd/focuslock/internal/usecase"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run or start the blocking daemon",
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon in the background",
	Long: `Starts the daemon detached from the terminal. Web blocking needs
permission to create the virtual interface (root or CAP_NET_ADMIN);
without it the daemon still blocks apps.`,
	RunE: runDaemonStart,
}

// Hidden daemon command - used for self-exec when spawning the daemon
var daemonRunCmd = &cobra.Command{
	Use:    "run",
	Short:  "Run the daemon in the foreground",
	Hidden: true,
	RunE:   runDaemon,
}

func init() {
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonRunCmd)
	rootCmd.AddCommand(daemonCmd)
}

func runDaemonStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	pidFile := daemon.NewPIDFile(cfg.DataDir)
	if pid, ok := pidFile.Running(); ok {
		fmt.Printf("focuslock daemon is already running (pid %d)\n", pid)
		return nil
	}

	pid, err := daemon.StartDetached("--config", configPath)
	if err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	// Give the daemon a moment to claim the pid file
	time.Sleep(500 * time.Millisecond)

	fmt.Println("\n=== focuslock daemon started ===")
	fmt.Printf("PID: %d\n", pid)
	fmt.Printf("Data: %s\n", cfg.DataDir)
	fmt.Printf("Log: %s\n", cfg.Logging.File)
	if !cfg.Filter.Enabled {
		fmt.Println("Web blocking: disabled in config")
	}
	fmt.Println("================================")
	return nil
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := cfg.DaemonLogger()
	defer func() { _ = logger.Sync() }()

	pidFile := daemon.NewPIDFile(cfg.DataDir)
	if err := pidFile.Acquire(os.Getpid()); err != nil {
		logger.Error("refusing to start", zap.Error(err))
		return err
	}
	defer pidFile.Release(os.Getpid())

	store, err := infra.OpenStore(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open store", zap.String("data_dir", cfg.DataDir), zap.Error(err))
		return err
	}
	defer store.Close()

	clock := infra.SystemClock{}
	hub := broadcast.NewHub(logger.Named("hub"))
	engine := usecase.NewSessionEngine(
		store,
		store,
		hub,
		clock,
		infra.NewZapNotifier(logger.Named("notify")),
		logger.Named("engine"),
		usecase.WithDeepLinkPrefixes(cfg.DeepLink.Prefixes),
	)
	enforcer := usecase.NewAppEnforcer(infra.NewProcessManager(), logger.Named("enforcer"))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	daemon.RegisterSnapshotGauges(reg, hub)

	var trafficFilter daemon.TrafficFilter
	if cfg.Filter.Enabled {
		trafficFilter = filter.NewController(
			infra.TUNFactory(cfg.TUN(), logger.Named("tun")),
			filter.NewMetrics(reg),
			store,
			clock,
			logger.Named("filter"),
		)
	}

	watcher := daemon.NewWatcher(
		daemon.WatcherConfig{
			TickInterval:        cfg.Daemon.TickInterval,
			EnforcementInterval: cfg.Daemon.EnforcementInterval,
			StorePath:           store.Path(),
		},
		engine,
		store,
		store,
		hub,
		enforcer,
		trafficFilter,
		clock,
		logger,
	)

	// Set up graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Listen != "" {
		go func() {
			if err := daemon.ServeMetrics(ctx, cfg.Metrics.Listen, reg, logger); err != nil {
				logger.Warn("metrics endpoint stopped", zap.Error(err))
			}
		}()
	}

	logger.Info("daemon starting",
		zap.Int("pid", os.Getpid()),
		zap.String("version", Version),
		zap.String("data_dir", cfg.DataDir))

	err = watcher.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info("received shutdown signal")
		return nil
	}
	return err
}
