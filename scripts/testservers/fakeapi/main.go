// Command fakeapi serves a stand-in for the image-processing API so sweeps
// can be exercised locally. Latency, failures and degraded answers are
// configurable.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/torosent/sweepfire/internal/logging"
)

func main() {
	var opts serverOptions
	port := pflag.Int("port", 8080, "Listening port")
	pflag.StringVar(&opts.Username, "username", "tester", "Accepted login username")
	pflag.StringVar(&opts.Password, "password", "secret", "Accepted login password")
	pflag.DurationVar(&opts.Latency, "latency", 200*time.Millisecond, "Base processing latency")
	pflag.DurationVar(&opts.Jitter, "jitter", 100*time.Millisecond, "Random latency added on top of the base")
	pflag.Float64Var(&opts.DegradedRate, "degraded-rate", 0, "Share of uploads answered with the degraded message")
	pflag.Float64Var(&opts.ErrorRate, "error-rate", 0, "Share of uploads answered with HTTP 500")
	pflag.IntVar(&opts.MaxInFlight, "max-inflight", 0, "Uploads processed at once before answering 503 (0 means unlimited)")
	pflag.DurationVar(&opts.TokenTTL, "token-ttl", time.Hour, "Lifetime of issued tokens")
	logLevel := pflag.String("log-level", "info", "Log level")
	pflag.Parse()

	logger, err := logging.New(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	opts.Logger = logger

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", *port),
		Handler:           newServer(opts).routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("fake API listening", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server failed", zap.Error(err))
	}
}
