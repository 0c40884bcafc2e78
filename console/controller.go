package console

import (
	"context"
	"sync"

	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-console/model"
	"github.com/khaledhikmat/vs-console/pipeline"
	"github.com/khaledhikmat/vs-console/service/lgr"
)

// Snapshot is a consistent copy of everything the console shows.
type Snapshot struct {
	Live       model.LiveState   `json:"live"`
	Status     model.Status      `json:"status"`
	Cameras    []model.Camera    `json:"cameras"`
	Events     []model.Event     `json:"events"`
	Users      []model.User      `json:"users"`
	Detections []model.Detection `json:"detections"`
	Busy       bool              `json:"busy"`
}

// Controller owns the live presentation state and the cached resource lists.
// At most one stream session is bound to it at a time. Every session callback is
// tagged with the generation it was opened under and dropped if that generation
// is no longer current.
type Controller struct {
	svcs pipeline.ServicesFactory

	canx   context.Context
	canxFn context.CancelFunc

	mu          sync.Mutex
	closed      bool
	generation  uint64
	session     *pipeline.Session
	sessions    sync.WaitGroup
	live        model.LiveState
	status      model.Status
	cameras     []model.Camera
	events      []model.Event
	users       []model.User
	detections  []model.Detection
	busy        int
	subscribers map[chan Snapshot]struct{}

	eventRefresher *refresher
}

func New(canx context.Context, svcs pipeline.ServicesFactory) *Controller {
	ctx, cancel := context.WithCancel(canx)
	c := &Controller{
		svcs:        svcs,
		canx:        ctx,
		canxFn:      cancel,
		live:        model.InactiveLiveState(),
		status:      model.Status{Type: model.StatusIdle},
		cameras:     []model.Camera{},
		events:      []model.Event{},
		users:       []model.User{},
		detections:  []model.Detection{},
		subscribers: map[chan Snapshot]struct{}{},
	}
	c.eventRefresher = startRefresher(ctx, "events", c.refreshEvents)
	return c
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) Live() model.LiveState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live.Clone()
}

func (c *Controller) Status() model.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Subscribe returns a channel that always holds the latest snapshot. Slow readers
// skip intermediate snapshots. The returned func unsubscribes.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	c.subscribers[ch] = struct{}{}
	ch <- c.snapshotLocked()

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.subscribers[ch]; ok {
			delete(c.subscribers, ch)
			close(ch)
		}
	}
}

// Close detaches and closes any open session, stops background refreshes and waits
// for session goroutines until ctx expires. It is safe to call more than once.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		c.detachLocked()
		c.live = model.InactiveLiveState()
		for ch := range c.subscribers {
			delete(c.subscribers, ch)
			close(ch)
		}
		lgr.Logger.Info("console controller closing")
	}
	c.mu.Unlock()

	c.canxFn()

	stopped := make(chan struct{})
	go func() {
		c.sessions.Wait()
		<-c.eventRefresher.Done()
		close(stopped)
	}()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		lgr.Logger.Warn(
			"console controller shutdown waiting period expired",
			lgr.Err(ctx.Err()),
		)
		return xerrors.Errorf("waiting for live stream sessions: %w", ctx.Err())
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		Live:       c.live.Clone(),
		Status:     c.status,
		Cameras:    append([]model.Camera{}, c.cameras...),
		Events:     append([]model.Event{}, c.events...),
		Users:      append([]model.User{}, c.users...),
		Detections: append([]model.Detection{}, c.detections...),
		Busy:       c.busy > 0,
	}
}

// publishLocked replaces whatever snapshot a subscriber has not read yet.
func (c *Controller) publishLocked() {
	if len(c.subscribers) == 0 {
		return
	}
	snap := c.snapshotLocked()
	for ch := range c.subscribers {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

func (c *Controller) setStatusLocked(kind model.StatusType, message string) {
	c.status = model.Status{Type: kind, Message: message}
	c.publishLocked()
}

func (c *Controller) setStatus(kind model.StatusType, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setStatusLocked(kind, message)
}

func (c *Controller) setError(err error) {
	lgr.Logger.Debug("console command failed", lgr.Err(err))
	c.setStatus(model.StatusError, model.Message(err))
}

func (c *Controller) begin() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = model.Status{Type: model.StatusIdle}
	c.busy++
	c.publishLocked()
}

func (c *Controller) end() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy--
	c.publishLocked()
}
