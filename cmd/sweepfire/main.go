package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/torosent/sweepfire/internal/auth"
	"github.com/torosent/sweepfire/internal/config"
	"github.com/torosent/sweepfire/internal/httpclient"
	"github.com/torosent/sweepfire/internal/logging"
	"github.com/torosent/sweepfire/internal/metrics"
	"github.com/torosent/sweepfire/internal/output"
	"github.com/torosent/sweepfire/internal/runner"
	"github.com/torosent/sweepfire/internal/sweep"
	"github.com/torosent/sweepfire/internal/threshold"
	"github.com/torosent/sweepfire/internal/tracing"
)

const (
	progressInterval = time.Second
	shutdownTimeout  = 5 * time.Second
)

// ErrThresholdsFailed is returned when at least one threshold failed at some level.
var ErrThresholdsFailed = errors.New("thresholds failed")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg, err := config.NewLoader().Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}

	logger, err := logging.NewWithWriter(cfg.LogLevel, stderr)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	for _, warning := range cfg.Warnings() {
		logger.Warn(warning)
	}

	tp, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	provider, err := newProvider(cfg)
	if err != nil {
		return err
	}
	defer provider.Close()

	builder, err := httpclient.NewRequestBuilder(cfg.TargetURL(), cfg.FileField, cfg.Headers)
	if err != nil {
		return err
	}
	client := httpclient.NewClient(maxLevel(cfg.Levels))
	defer client.CloseIdleConnections()
	executor := httpclient.NewExecutor(client, builder, httpclient.ExecutorOptions{
		DegradedAnswer: cfg.DegradedAnswer,
		AnswerPath:     cfg.AnswerPath,
		Tracer:         tp.Tracer(),
		Propagate:      tp.ShouldPropagate(),
	})

	collector := metrics.NewCollector()
	observers := []runner.Observer{collector, runner.LoggingObserver(logger)}
	if cfg.MetricsAddr != "" {
		exporter := metrics.NewExporter()
		exporter.Serve(cfg.MetricsAddr, func(err error) {
			logger.Error("metrics endpoint failed", zap.String("addr", cfg.MetricsAddr), zap.Error(err))
		})
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = exporter.Shutdown(shutdownCtx)
		}()
		observers = append(observers, exporter)
	}

	r := runner.New(runner.Options{
		Executor:      executor,
		RatePerSecond: cfg.Rate,
		ArrivalModel:  toRunnerArrivalModel(cfg.Arrival),
		Observers:     observers,
		Tracer:        tp.Tracer(),
	})

	var resultsLog *output.ResultsLog
	if cfg.ResultsFile != "" {
		resultsLog, err = output.OpenResultsLog(cfg.ResultsFile)
		if err != nil {
			return err
		}
		defer func() {
			if err := resultsLog.Close(); err != nil {
				logger.Warn("closing results log failed", zap.Error(err))
			}
		}()
	}

	controller, err := sweep.New(sweep.Options{
		Provider:     provider,
		Runner:       r,
		Target:       cfg.TargetURL(),
		AuthAttempts: cfg.AuthAttempts,
		Logger:       logger,
		Tracer:       tp.Tracer(),
		OnLevel: func(stats metrics.LevelStats) {
			if resultsLog == nil {
				return
			}
			if err := resultsLog.Append(stats); err != nil {
				logger.Warn("writing results log failed", zap.Error(err))
			}
		},
	})
	if err != nil {
		return err
	}

	var progress *output.Progress
	if !cfg.Quiet && !cfg.JSONOutput && !cfg.YAMLOutput {
		progress = output.StartProgress(collector, progressInterval, stdout)
		defer progress.Stop()
	}

	plan := sweep.Plan{
		Levels:           cfg.Levels,
		RequestsPerLevel: cfg.Requests,
		Timeout:          cfg.Timeout,
		Cooldown:         cfg.Cooldown,
	}
	result, err := controller.Sweep(ctx, plan, httpclient.FilePayload{Path: cfg.ImagePath})
	progress.Stop()
	if err != nil {
		return err
	}

	results := threshold.NewEvaluator(thresholds).Evaluate(result.Levels)
	switch {
	case cfg.JSONOutput:
		if err := output.PrintJSONReport(stdout, result, results); err != nil {
			return err
		}
	case cfg.YAMLOutput:
		if err := output.PrintYAMLReport(stdout, result, results); err != nil {
			return err
		}
	default:
		output.PrintReport(stdout, result, results)
	}

	if !threshold.Passed(results) {
		failed := 0
		for _, r := range results {
			if !r.Pass {
				failed++
			}
		}
		return fmt.Errorf("%w: %d of %d checks", ErrThresholdsFailed, failed, len(results))
	}
	return nil
}

func newProvider(cfg *config.Config) (auth.Provider, error) {
	if cfg.UsesStaticToken() {
		return auth.NewStaticProvider(cfg.Token), nil
	}
	return auth.NewLoginProvider(cfg.LoginURL(), cfg.Username, cfg.Password, cfg.TokenPaths, cfg.LoginTimeout)
}

func toRunnerArrivalModel(model config.ArrivalModel) runner.ArrivalModel {
	if model == config.ArrivalModelPoisson {
		return runner.ArrivalModelPoisson
	}
	return runner.ArrivalModelUniform
}

func maxLevel(levels []int) int {
	highest := 0
	for _, level := range levels {
		highest = max(highest, level)
	}
	return highest
}
