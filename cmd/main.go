package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/brettbedarf/datafs/adapters"
	"github.com/brettbedarf/datafs/config"
	"github.com/brettbedarf/datafs/internal/metrics"
	"github.com/brettbedarf/datafs/internal/util"
	"github.com/brettbedarf/datafs/server"
	flag "github.com/spf13/pflag"
)

func main() {
	var (
		configPath  string
		verbose     int
		umount      bool
		apiAddr     string
		apiKey      string
		metricsAddr string
		connectors  []string
		allowOther  bool
		debug       bool
	)
	flag.StringVarP(&configPath, "config", "c", "", "Path to a yaml or json config file")
	flag.IntVarP(&verbose, "verbose", "v", config.InfoVerbose, "Log verbosity level between 1 (error) and 5 (trace)")
	flag.BoolVarP(&umount, "umount", "u", false,
		"Unmount the fs first if needed before mounting again. Useful for debuggers that don't exit properly.")
	flag.StringVar(&apiAddr, "api", os.Getenv("DATAFS_API"), "Base URL of the data API (env DATAFS_API)")
	flag.StringVar(&apiKey, "api-key", os.Getenv("DATAFS_API_KEY"), "Data API key (env DATAFS_API_KEY)")
	flag.StringVar(&metricsAddr, "metrics-addr", "", "Serve prometheus metrics on this address, e.g. :9090")
	flag.StringSliceVar(&connectors, "connectors", nil, "Connector name prefixes accepted at the mount root")
	flag.BoolVar(&allowOther, "allow-other", false, "Allow other users to access the mount")
	flag.BoolVar(&debug, "debug", false, "Log every FUSE request")
	flag.Parse()

	// Config file first, then flags that were set explicitly
	cfg := config.NewDefaultConfig()
	if configPath != "" {
		override, err := config.LoadConfigOverrideFile(configPath)
		if err != nil {
			util.InitializeLogger(config.VerboseToLogLevel(verbose))
			l := util.GetLogger("main")
			l.Fatal().Err(err).Str("config", configPath).Msg("Failed to load config file")
		}
		cfg.Merge(override)
	}
	cli := &config.ConfigOverride{}
	if flag.CommandLine.Changed("verbose") || configPath == "" {
		cli.LogLvl = &verbose
	}
	if apiAddr != "" {
		cli.API = &config.APIOverride{Address: &apiAddr}
		if apiKey != "" {
			cli.API.Key = &apiKey
		}
	}
	if flag.CommandLine.Changed("metrics-addr") {
		cli.MetricsAddr = &metricsAddr
	}
	if flag.CommandLine.Changed("connectors") {
		cli.Connectors = connectors
	}
	if flag.CommandLine.Changed("allow-other") {
		cli.AllowOther = &allowOther
	}
	if flag.CommandLine.Changed("debug") {
		cli.Debug = &debug
	}
	cfg.Merge(cli)

	util.InitializeLogger(cfg.LogLvl)
	logger := util.GetLogger("main")

	mnt := flag.Arg(0)
	logger.Info().Int("verbose", verbose).Str("config", configPath).Str("mnt", mnt).Msg("DataFS server initializing")
	if mnt == "" {
		logger.Fatal().Msg("Mount point not specified; it must be passed as the argument")
	}
	// Try unmount if requested
	if umount {
		cmd := exec.Command("fusermount", "-u", mnt)
		// we ignore error here if not already mounted
		cmd.Run() // nolint:errcheck
	}

	ctx := context.Background()
	registry := adapters.NewRegistry()
	if err := adapters.RegisterBuiltins(ctx, registry, cfg); err != nil {
		logger.Fatal().Err(err).Msg("Failed to register connectors")
	}
	if cfg.API.Address == "" {
		logger.Warn().Msg("No data API configured; only natively supported connectors are reachable")
	}

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Str("addr", cfg.MetricsAddr).Msg("Metrics server stopped")
			}
		}()
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("Serving metrics")
	}

	fs := server.New(cfg, registry)
	if err := fs.Serve(mnt); err != nil {
		logger.Fatal().Err(err).Msg("Failed to mount filesystem")
	}

	// Setup signal handling for graceful shutdown
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	logger.Info().Str("mountpoint", mnt).Msg("Filesystem mounted successfully")

	sig := <-signalChan
	logger.Info().Str("signal", sig.String()).Msg("Received signal, unmounting filesystem")

	if err := fs.Unmount(); err != nil {
		logger.Error().Err(err).Msg("Failed to unmount filesystem")
	} else {
		logger.Info().Msg("Filesystem unmounted successfully")
	}
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		metricsSrv.Shutdown(shutdownCtx) // nolint:errcheck
	}
}
