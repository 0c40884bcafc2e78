package mode

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/khaledhikmat/vs-console/console"
	"github.com/khaledhikmat/vs-console/model"
	"github.com/khaledhikmat/vs-console/pipeline"
	"github.com/khaledhikmat/vs-console/service/config"
	"github.com/khaledhikmat/vs-console/service/lgr"
)

// Options carry the command line inputs of a processor.
type Options struct {
	Params model.StreamParams
	Out    io.Writer
}

type Processor func(canxCtx context.Context, svcs pipeline.ServicesFactory, opts Options) error

func procError(err interface{}) {
	switch err := err.(type) {
	case model.CustomError:
		lgr.Logger.Error(
			err.Message,
			slog.String("processor", err.Processor),
			slog.Any("misc", err.Misc),
			lgr.Err(err),
		)
	case error:
		lgr.Logger.Error(
			"processor error",
			lgr.Err(err),
		)
	default:
		lgr.Logger.Error(
			"unknown error type",
			slog.Any("error", err),
		)
	}
}

// shutdown closes the controller and waits at most the configured shutdown period
// for its sessions to exit.
func shutdown(cfgsvc config.IService, ctrl *console.Controller, name string) {
	period := time.Duration(cfgsvc.GetModeMaxShutdownTime()) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), period)
	defer cancel()

	lgr.Logger.Info(
		name+" is waiting for all go routines to exit",
	)

	if err := ctrl.Close(ctx); err != nil {
		lgr.Logger.Info(
			name+" shutdown waiting period expired. Exiting now",
			slog.Duration("period", period),
		)
	}
}
