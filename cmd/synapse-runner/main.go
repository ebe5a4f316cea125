package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/fusionlabs-tech/chronos-synapse-sub001/internal/common"
	"github.com/fusionlabs-tech/chronos-synapse-sub001/internal/jobs"
	"github.com/fusionlabs-tech/chronos-synapse-sub001/pkg/models"
	"github.com/fusionlabs-tech/chronos-synapse-sub001/pkg/synapse"
)

var (
	configFile  = flag.String("config", "", "Configuration file path")
	configFileC = flag.String("c", "", "Configuration file path (shorthand)")
	jobsDir     = flag.String("jobs", "", "Job definitions directory (overrides config)")
	showVersion = flag.Bool("version", false, "Print version information")

	config *common.Config
	logger arbor.ILogger
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("Synapse Runner version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	// Merge config flags (shorthand takes precedence)
	configPath := *configFile
	if *configFileC != "" {
		configPath = *configFileC
	}
	// Auto-discover config file if not specified
	if configPath == "" {
		if _, err := os.Stat("synapse.toml"); err == nil {
			configPath = "synapse.toml"
		}
	}

	// Startup sequence (REQUIRED ORDER):
	// 1. Load config (defaults -> file -> env)
	// 2. Apply CLI overrides (highest priority)
	// 3. Initialize logger
	// 4. Print banner
	var err error
	config, err = common.LoadFromFile(configPath)
	if err != nil {
		arbor.NewLogger().Fatal().Err(err).Str("path", configPath).Msg("Failed to load configuration")
		os.Exit(1)
	}

	if *jobsDir != "" {
		config.Jobs.DefinitionsDir = *jobsDir
	}

	logger = common.InitLogger(config)
	common.PrintBanner(common.GetVersion())

	common.InstallCrashHandler("logs")
	defer common.RecoverWithCrashFile()

	if err := run(); err != nil {
		logger.Fatal().Err(err).Msg("Runner failed")
		os.Exit(1)
	}
}

func run() error {
	defs, err := jobs.LoadDir(config.Jobs.DefinitionsDir, logger)
	if err != nil {
		return err
	}
	if len(defs) == 0 {
		return fmt.Errorf("no job definitions found in %s", config.Jobs.DefinitionsDir)
	}

	client, err := synapse.New(synapse.Config{
		Endpoint:              config.Client.Endpoint,
		APIKey:                config.Client.APIKey,
		OrgID:                 config.Client.OrgID,
		AppID:                 config.Client.AppID,
		AppVersion:            config.Client.AppVersion,
		BatchSize:             config.Client.BatchSize,
		FlushInterval:         config.Client.FlushInterval,
		DisableConsoleCapture: !config.Client.CaptureConsole,
		MaxOutputLength:       config.Client.MaxOutputLength,
		Logger:                logger,
		OnStateChange: func(state synapse.ConnectionState, err error) {
			if err != nil {
				logger.Warn().Err(err).Str("state", string(state)).Msg("Event channel state changed")
			} else {
				logger.Debug().Str("state", string(state)).Msg("Event channel state changed")
			}
		},
	})
	if err != nil {
		return err
	}

	signatures := make([]models.JobSignature, 0, len(defs))
	for _, def := range defs {
		signatures = append(signatures, def.Job)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	if err := client.RegisterJobs(ctx, signatures); err != nil {
		return err
	}

	for _, def := range defs {
		client.Register(def.Job.ID, def.Handler())
	}

	client.Connect()
	logger.Info().
		Int("jobs", len(defs)).
		Str("endpoint", config.Client.Endpoint).
		Msg("Synapse runner started, waiting for triggers")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("Shutting down")

	client.Stop()

	// Drain whatever telemetry is still queued before exiting
	flushCtx, flushCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer flushCancel()
	for client.Pending() > 0 && flushCtx.Err() == nil {
		if err := client.Flush(flushCtx); err != nil {
			logger.Warn().Err(err).Msg("Final flush failed")
			break
		}
		if client.Pending() > 0 {
			// A flush was already in flight; give it a moment
			time.Sleep(100 * time.Millisecond)
		}
	}

	logger.Info().Msg("Synapse runner stopped")
	return nil
}
