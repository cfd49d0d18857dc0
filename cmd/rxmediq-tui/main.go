package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"rxmediq-tui/internal/app"
	"rxmediq-tui/internal/config"
	"rxmediq-tui/internal/logging"
	"rxmediq-tui/internal/ops"
	"rxmediq-tui/internal/service"

	"github.com/cenkalti/backoff/v4"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
)

type healthChecker interface {
	Health(ctx context.Context) error
}

func main() {
	envFile := flag.String("env", "", "optional .env file applied before reading the environment")
	presetPath := flag.String("preset", "", "optional JSON file that prefills the prediction form")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Config{File: cfg.LogFile, Level: cfg.LogLevel})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	preset, presetSource, err := resolveStartupPreset(*presetPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load preset: %v\n", err)
		os.Exit(1)
	}

	client := service.NewClient(service.ClientOptions{
		BaseURL:        cfg.APIBaseURL,
		UploadPath:     cfg.UploadPath,
		RequestTimeout: cfg.RequestTimeout,
		UploadTimeout:  cfg.UploadTimeout,
		Logger:         logger.Named("service"),
	})

	if cfg.StartupWait > 0 {
		startupCtx, cancel := context.WithTimeout(context.Background(), cfg.StartupWait)
		err := waitForService(startupCtx, client, newStartupBackOff(cfg.StartupWait))
		cancel()
		if err != nil {
			logger.Warn("service not reachable at startup, continuing",
				zap.String("base_url", client.BaseURL()),
				zap.Error(err))
		}
	}

	model := app.NewModelWithOptions(client, ops.RetrainEvents(), app.ModelOptions{
		BaseURL:               client.BaseURL(),
		LiveInterval:          cfg.LiveInterval,
		VisualizationInterval: cfg.VisualizationInterval,
		Preset:                preset,
		PresetSource:          presetSource,
		Logger:                logger.Named("app"),
	})
	program := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		logger.Error("tui exited with error", zap.Error(err))
		fmt.Fprintf(os.Stderr, "tui exited with error: %v\n", err)
		os.Exit(1)
	}
}

func newStartupBackOff(maxWait time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = maxWait
	return b
}

// waitForService polls Health until it succeeds or b gives up.
func waitForService(ctx context.Context, checker healthChecker, b backoff.BackOff) error {
	if checker == nil {
		return errors.New("no health checker")
	}
	return backoff.Retry(func() error {
		return checker.Health(ctx)
	}, backoff.WithContext(b, ctx))
}

func resolveStartupPreset(path string) (*service.PredictionRequest, string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, "", nil
	}
	preset, source, err := app.LoadPresetFile(path)
	if err != nil {
		return nil, "", err
	}
	return &preset, source, nil
}
