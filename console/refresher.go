package console

import (
	"context"
	"log/slog"

	"github.com/khaledhikmat/vs-console/service/lgr"
)

// refresher runs fn in the background each time it is triggered. Triggers that
// arrive while a run is pending or in flight collapse into one follow-up run.
type refresher struct {
	name    string
	trigger chan struct{}
	done    chan struct{}
}

func startRefresher(canx context.Context, name string, fn func(ctx context.Context)) *refresher {
	r := &refresher{
		name:    name,
		trigger: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	go func() {
		defer close(r.done)

		for {
			select {
			case <-canx.Done():
				lgr.Logger.Debug(
					"refresher context cancelled",
					slog.String("refresher", r.name),
				)
				return

			case <-r.trigger:
				fn(canx)
			}
		}
	}()

	return r
}

// Trigger never blocks.
func (r *refresher) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

func (r *refresher) Done() <-chan struct{} {
	return r.done
}
