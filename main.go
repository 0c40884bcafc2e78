package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-console/mode"
	"github.com/khaledhikmat/vs-console/pipeline"
	"github.com/khaledhikmat/vs-console/service/auth"
	"github.com/khaledhikmat/vs-console/service/config"
	"github.com/khaledhikmat/vs-console/service/lgr"
	"github.com/khaledhikmat/vs-console/service/metrics"
	"github.com/khaledhikmat/vs-console/service/resource"
)

const (
	// WARNING: this has to be bigger that the mode processor shutdown time
	waitOnShutdown = 8 * time.Second
)

func main() {
	rootCtx := context.Background()
	canxCtx, canxFn := context.WithCancel(rootCtx)
	defer canxFn()

	// Hook up a signal handler to cancel the context
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		lgr.Logger.Info(
			"received kill signal",
			slog.Any("signal", sig),
		)
		canxFn()
	}()

	// Load env vars if we are in DEV mode
	if os.Getenv("RUN_TIME_ENV") == "dev" || os.Getenv("RUN_TIME_ENV") == "" {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			lgr.Logger.Error("error loading .env file", lgr.Err(xerrors.New(err.Error())))
			os.Exit(1)
		}
	}

	if err := newApp().RunContext(canxCtx, os.Args); err != nil {
		lgr.Logger.Error("command failed", lgr.Err(err))
		os.Exit(1)
	}
}

// svcs is the factory every command runs against. It is built in the app's
// Before hook once the global flags are parsed.
var (
	svcs      pipeline.ServicesFactory
	logCloser io.Closer
)

func setup(c *cli.Context) error {
	cfgSvc, err := config.NewFile(c.String(flagConfig))
	if err != nil {
		return err
	}

	params := cfgSvc.GetLogParameters()
	if c.IsSet(flagLogLevel) {
		params.Level = c.String(flagLogLevel)
	}
	logCloser = lgr.Configure(params)

	// Metrics service
	metricsSvc := metrics.NewPrometheus()
	// Auth service
	authSvc := auth.NewStatic(cfgSvc)
	// Resource service
	resourceSvc := resource.NewHTTP(cfgSvc, authSvc, metricsSvc)

	svcs = pipeline.ServicesFactory{
		CfgSvc:      cfgSvc,
		AuthSvc:     authSvc,
		ResourceSvc: resourceSvc,
		MetricsSvc:  metricsSvc,
	}
	return nil
}

func teardown(*cli.Context) error {
	if logCloser == nil {
		return nil
	}
	return logCloser.Close()
}

// runMode runs a long-running processor until it exits or the context is cancelled,
// then gives it `waitOnShutdown` to report.
func runMode(canxCtx context.Context, name string, proc mode.Processor, opts mode.Options) error {
	canxCtx, canxFn := context.WithCancel(canxCtx)
	defer canxFn()

	// Create mode processor result
	modeProcResult := make(chan error, 1)

	// Start the mode processor
	go func() {
		modeProcResult <- proc(canxCtx, svcs, opts)
	}()

	// Wait for cancellation or mode proc
	select {
	case <-canxCtx.Done():
		lgr.Logger.Info(
			name + " context cancelled",
		)
	case err := <-modeProcResult:
		return err
	}

	lgr.Logger.Info(
		name + " is waiting for the mode processor to exit",
	)

	timer := time.NewTimer(waitOnShutdown)
	defer timer.Stop()

	select {
	case <-timer.C:
		lgr.Logger.Info(
			name+" shutdown waiting period expired. Exiting now",
			slog.Duration("period", waitOnShutdown),
		)
		return nil
	case err := <-modeProcResult:
		return err
	}
}
