package console

import (
	"context"
	"log/slog"

	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-console/model"
	"github.com/khaledhikmat/vs-console/pipeline"
	"github.com/khaledhikmat/vs-console/service/lgr"
)

const (
	LiveStartedMessage = "Live stream started"
	LiveStoppedMessage = "Live stream stopped"
)

var errControllerClosed = xerrors.New("console controller is closed")

// StartLiveStream replaces any open session with a new one for params. Invalid
// params are rejected before the current session is touched.
func (c *Controller) StartLiveStream(params model.StreamParams) error {
	if err := params.Validate(); err != nil {
		c.setError(err)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errControllerClosed
	}

	c.detachLocked()
	generation := c.generation

	session, err := pipeline.Open(c.canx, c.svcs, params, c.bind(generation))
	if err != nil {
		lgr.Logger.Error(
			"live stream failed to open",
			slog.Uint64("generation", generation),
			lgr.Err(err),
		)
		c.live = model.InactiveLiveState()
		c.setStatusLocked(model.StatusError, model.Message(err))
		return err
	}

	c.session = session
	c.sessions.Add(1)
	go func() {
		defer c.sessions.Done()
		<-session.Done()
	}()

	c.live = model.LiveState{Active: true, Detections: []model.Detection{}}
	c.setStatusLocked(model.StatusSuccess, LiveStartedMessage)

	lgr.Logger.Info(
		"live stream started",
		slog.String("sessionID", session.ID),
		slog.Uint64("generation", generation),
		slog.String("target", params.String()),
	)
	return nil
}

// StopLiveStream closes the current session if there is one. It is idempotent.
func (c *Controller) StopLiveStream() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.detachLocked()
	c.live = model.InactiveLiveState()
	c.setStatusLocked(model.StatusSuccess, LiveStoppedMessage)
}

// detachLocked invalidates the callbacks of the bound session before closing it.
func (c *Controller) detachLocked() {
	c.generation++
	if c.session == nil {
		return
	}

	lgr.Logger.Info(
		"live stream detached",
		slog.String("sessionID", c.session.ID),
		slog.Uint64("generation", c.generation),
	)
	c.session.Close()
	c.session = nil
}

func (c *Controller) bind(generation uint64) pipeline.Handlers {
	return pipeline.Handlers{
		OnUpdate: func(frame string, detections []model.Detection) {
			c.onUpdate(generation, frame, detections)
		},
		OnError: func(message string) {
			c.onError(generation, message)
		},
	}
}

func (c *Controller) onUpdate(generation uint64, frame string, detections []model.Detection) {
	c.mu.Lock()
	if generation != c.generation {
		c.mu.Unlock()
		c.dropStale(generation)
		return
	}

	c.live = model.LiveState{
		Active:     true,
		Frame:      frame,
		Detections: append([]model.Detection{}, detections...),
	}
	c.publishLocked()
	c.mu.Unlock()

	if len(detections) > 0 {
		c.eventRefresher.Trigger()
	}
}

func (c *Controller) onError(generation uint64, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != c.generation {
		c.dropStale(generation)
		return
	}

	c.session = nil
	c.live = model.InactiveLiveState()
	c.setStatusLocked(model.StatusError, message)
}

func (c *Controller) dropStale(generation uint64) {
	c.svcs.MetricsSvc.StaleUpdateDropped()
	lgr.Logger.Debug(
		"dropping callback from a detached live stream",
		slog.Uint64("generation", generation),
	)
}

func (c *Controller) refreshEvents(ctx context.Context) {
	events, err := c.svcs.ResourceSvc.ListEvents(ctx, model.EventListParams{
		ListParams: model.ListParams{Limit: c.svcs.CfgSvc.GetListLimits().Events},
	})
	c.svcs.MetricsSvc.RefreshIssued(err == nil)
	if err != nil {
		lgr.Logger.Warn("background event refresh failed", lgr.Err(err))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = events
	c.publishLocked()
}
