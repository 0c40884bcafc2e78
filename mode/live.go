package mode

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-console/console"
	"github.com/khaledhikmat/vs-console/model"
	"github.com/khaledhikmat/vs-console/pipeline"
	"github.com/khaledhikmat/vs-console/service/lgr"
	"github.com/khaledhikmat/vs-console/view"
)

// Live watches one live stream from the terminal. It prints a line whenever the
// live panel changes and returns when the context is cancelled or the stream fails.
func Live(canxCtx context.Context, svcs pipeline.ServicesFactory, opts Options) error {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	ctrl := console.New(canxCtx, svcs)
	defer shutdown(svcs.CfgSvc, ctrl, "live watcher")

	snapshots, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()

	if err := ctrl.StartLiveStream(opts.Params); err != nil {
		return err
	}

	// Create an error stream
	errorStream := make(chan interface{}, 1)

	lastLine, lastStatus := "", model.Status{}
	for {
		select {
		case <-canxCtx.Done():
			lgr.Logger.Info(
				"live watcher context cancelled",
			)
			ctrl.StopLiveStream()
			return nil

		case snap, ok := <-snapshots:
			if !ok {
				return nil
			}

			if snap.Status != lastStatus && snap.Status.Message != "" {
				lastStatus = snap.Status
				fmt.Fprintln(out, view.Status(snap.Status))
			}

			if line := view.LiveLine(snap.Live); line != lastLine {
				lastLine = line
				fmt.Fprintln(out, line)
			}

			if snap.Status.Type == model.StatusError && !snap.Live.Active {
				select {
				case errorStream <- model.GenError("live_watcher",
					xerrors.New(snap.Status.Message),
					map[string]interface{}{
						"target": opts.Params.String(),
					},
					"live stream ended"):
				default:
				}
			}

		case e := <-errorStream:
			procError(e)
			lgr.Logger.Info(
				"live watcher exiting",
				slog.String("target", opts.Params.String()),
			)
			if err, ok := e.(error); ok {
				return err
			}
			return nil
		}
	}
}
