// Package main is the CLI entry point for focuslock.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/focusd/focuslock/internal/broadcast"
	"github.com/eliteGoblin/focusd/focuslock/internal/config"
	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
	"github.com/eliteGoblin/focusd/focuslock/internal/infra"
	"github.com/eliteGoblin/focusd/focuslock/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "focuslock",
	Short: "Focus sessions that block distracting apps and sites",
	Long: `focuslock runs focus sessions built from profiles. While a session is
active the daemon kills blocked applications and drops DNS and TLS
traffic for blocked domains.

Depending on the profile, a session can only be ended by scanning a
physical NFC tag or QR code, by its timer, or by a limited emergency
unlock.`,
	Version:      Version,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

var (
	configPath string
	verbose    bool
	jsonOutput bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "Path to the config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log engine activity to stderr")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	rootCmd.AddCommand(versionCmd)
}

// app bundles what one-shot commands need. The daemon builds its own.
type app struct {
	cfg      *config.Config
	store    *infra.EncryptedStore
	clock    domain.Clock
	engine   *usecase.SessionEngine
	profiles *usecase.ProfileService
	logger   *zap.Logger
}

func openApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := cliLogger()

	store, err := infra.OpenStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open store in %s: %w", cfg.DataDir, err)
	}

	clock := infra.SystemClock{}
	// The daemon reloads from the store; the CLI hub only needs to exist.
	hub := broadcast.NewHub(logger)
	engine := usecase.NewSessionEngine(
		store,
		store,
		hub,
		clock,
		infra.NewZapNotifier(logger.Named("notify")),
		logger,
		usecase.WithDeepLinkPrefixes(cfg.DeepLink.Prefixes),
	)

	return &app{
		cfg:      cfg,
		store:    store,
		clock:    clock,
		engine:   engine,
		profiles: usecase.NewProfileService(store, clock, logger),
		logger:   logger,
	}, nil
}

func (a *app) Close() {
	_ = a.logger.Sync()
	_ = a.store.Close()
}

// withApp opens the store for the duration of fn.
func withApp(fn func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, args, a)
	}
}

// cliLogger is quiet unless --verbose; command output goes to stdout.
func cliLogger() *zap.Logger {
	zc := zap.NewDevelopmentConfig()
	if !verbose {
		zc.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	}
	logger, err := zc.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("focuslock %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}
