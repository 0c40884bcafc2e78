package pipeline

import (
	"context"
	"log/slog"
	"mime"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-console/model"
	"github.com/khaledhikmat/vs-console/service/config"
	"github.com/khaledhikmat/vs-console/service/lgr"
	"github.com/khaledhikmat/vs-console/service/metrics"
)

const (
	ConnectionFailedMessage = "Live stream connection failed"

	defaultMaxEventSize = 8 << 20
)

// Session owns one live event-stream connection. A receiver goroutine reads and
// decodes events into a bounded queue and a dispatcher goroutine drains it into the
// handlers, so handlers see updates in receipt order, once each.
type Session struct {
	ID     string
	Params model.StreamParams

	svcs         ServicesFactory
	handlers     Handlers
	url          string
	token        string
	client       *http.Client
	maxEventSize int

	queue  chan payload
	cancel context.CancelFunc
	done   chan struct{}

	state  atomic.Int32
	reason atomic.Value

	started time.Time
	// delivered and errors belong to the dispatcher. malformed belongs to the
	// receiver and is read once the queue is closed.
	delivered int
	errors    int
	malformed int
	stats     model.SessionStats
}

// Open validates params and starts a session in the CONNECTING state. Invalid params
// or an unusable token fail here, before any connection is attempted. The handshake
// and all later outcomes are reported through handlers.
func Open(ctx context.Context, svcs ServicesFactory, params model.StreamParams, handlers Handlers) (*Session, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	target, err := svcs.ResourceSvc.LiveStreamURL(params)
	if err != nil {
		return nil, err
	}

	token, err := svcs.AuthSvc.Token()
	if err != nil {
		return nil, err
	}

	streamParams := svcs.CfgSvc.GetStreamParameters()
	maxEventSize := streamParams.MaxEventSize
	if maxEventSize <= 0 {
		maxEventSize = defaultMaxEventSize
	}

	s := &Session{
		ID:           uuid.NewString(),
		Params:       params,
		svcs:         svcs,
		handlers:     handlers.withDefaults(),
		url:          target,
		token:        token,
		client:       streamClient(svcs.CfgSvc),
		maxEventSize: maxEventSize,
		queue:        make(chan payload, max(streamParams.QueueSize, 0)),
		done:         make(chan struct{}),
		started:      time.Now(),
	}
	s.reason.Store("")

	sessionCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	lgr.Logger.Info(
		"live stream session opening",
		slog.String("sessionID", s.ID),
		slog.String("target", params.String()),
		slog.Float64("confidenceThreshold", params.ConfidenceThreshold),
		slog.Int("fps", params.FPS),
	)

	s.state.Store(int32(StateConnecting))
	svcs.MetricsSvc.SessionOpened()

	go s.receive(sessionCtx)
	go s.dispatch()

	return s, nil
}

// Close releases the connection. It is idempotent, never blocks and never fires
// OnError. A handler already running may still complete; Done reports when the
// session has fully stopped.
func (s *Session) Close() {
	if s.terminate(metrics.ReasonClosed) {
		lgr.Logger.Info(
			"live stream session closing",
			slog.String("sessionID", s.ID),
		)
	}
	s.cancel()
}

func (s *Session) State() State {
	return State(s.state.Load())
}

// Done is closed once both session goroutines have exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Reason is why the session closed, empty while it is still open.
func (s *Session) Reason() string {
	return s.reason.Load().(string)
}

// Stats waits for the session to stop.
func (s *Session) Stats() model.SessionStats {
	<-s.done
	return s.stats
}

// terminate moves the session to CLOSED. Only the first caller wins.
func (s *Session) terminate(reason string) bool {
	for {
		current := s.state.Load()
		if State(current) == StateClosed {
			return false
		}
		if s.state.CompareAndSwap(current, int32(StateClosed)) {
			s.reason.Store(reason)
			s.cancel()
			return true
		}
	}
}

func (s *Session) fail(reason, message string) {
	if !s.terminate(reason) {
		return
	}
	s.errors++
	lgr.Logger.Error(
		"live stream session failed",
		slog.String("sessionID", s.ID),
		slog.String("reason", reason),
		slog.String("message", message),
	)
	s.handlers.OnError(message)
}

func (s *Session) receive(ctx context.Context) {
	defer func() {
		// cancelled by Close or by the parent context
		if ctx.Err() != nil {
			s.terminate(metrics.ReasonClosed)
		}
		s.client.CloseIdleConnections()
		close(s.queue)
	}()

	resp, err := s.connect(ctx)
	if err != nil {
		s.transportFailure(ctx, err)
		return
	}
	defer resp.Body.Close()

	if s.state.CompareAndSwap(int32(StateConnecting), int32(StateStreaming)) {
		lgr.Logger.Info(
			"live stream session streaming",
			slog.String("sessionID", s.ID),
		)
	}

	reader := newSSEReader(resp.Body, s.maxEventSize)
	for {
		ev, err := reader.Next()
		if xerrors.Is(err, errEventTooLarge) {
			s.malformed++
			s.svcs.MetricsSvc.PayloadReceived(metrics.PayloadMalformed)
			lgr.Logger.Warn(
				"dropping oversized live stream event",
				slog.String("sessionID", s.ID),
				slog.Int("maxEventSize", s.maxEventSize),
			)
			continue
		}
		if err != nil {
			s.transportFailure(ctx, err)
			return
		}

		if ev.Type != defaultEventType {
			lgr.Logger.Debug(
				"ignoring live stream event",
				slog.String("sessionID", s.ID),
				slog.String("type", ev.Type),
			)
			continue
		}

		p, err := decodePayload(ev.Data)
		s.svcs.MetricsSvc.PayloadReceived(p.Kind)
		if err != nil {
			s.malformed++
			lgr.Logger.Warn(
				"dropping malformed live stream payload",
				slog.String("sessionID", s.ID),
				slog.String("eventID", ev.ID),
				slog.Int("size", len(ev.Data)),
				lgr.Err(err),
			)
			continue
		}

		if !s.push(ctx, p) || p.Kind == metrics.PayloadError {
			return
		}
	}
}

func (s *Session) transportFailure(ctx context.Context, err error) {
	if ctx.Err() != nil {
		return
	}

	lgr.Logger.Warn(
		"live stream transport error",
		slog.String("sessionID", s.ID),
		slog.String("state", s.State().String()),
		lgr.Err(err),
	)
	s.push(ctx, payload{
		Kind:    metrics.PayloadError,
		Message: ConnectionFailedMessage,
		Reason:  metrics.ReasonTransport,
	})
}

func (s *Session) push(ctx context.Context, p payload) bool {
	select {
	case s.queue <- p:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Session) dispatch() {
	defer close(s.done)

	for p := range s.queue {
		if p.Kind != metrics.PayloadUpdate {
			s.fail(p.Reason, p.Message)
			continue
		}

		if s.State() == StateClosed {
			continue
		}
		s.delivered++
		s.handlers.OnUpdate(p.Frame, p.Detections)
	}

	s.terminate(metrics.ReasonClosed)
	s.publishStats()
}

func (s *Session) publishStats() {
	uptime := time.Since(s.started)
	s.stats = model.SessionStats{
		ID:        s.ID,
		Target:    s.Params.String(),
		Payloads:  s.delivered,
		Malformed: s.malformed,
		Errors:    s.errors,
		Uptime:    int64(uptime.Seconds()),
		Reason:    s.Reason(),
		Timestamp: time.Now().Unix(),
	}
	if uptime > 0 {
		s.stats.FPS = float64(s.delivered) / uptime.Seconds()
	}

	s.svcs.MetricsSvc.SessionClosed(s.stats)
	lgr.Logger.Info(
		"live stream session closed",
		slog.Any("stats", s.stats),
	)
}

func (s *Session) connect(ctx context.Context) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, xerrors.Errorf("create live stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, xerrors.Errorf("connecting to live stream: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, xerrors.Errorf("live stream handshake returned status %d", resp.StatusCode)
	}

	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || mediaType != "text/event-stream" {
		resp.Body.Close()
		return nil, xerrors.Errorf("live stream handshake returned content type %q", resp.Header.Get("Content-Type"))
	}

	return resp, nil
}

// streamClient bounds the handshake but not the stream itself.
func streamClient(cfgsvc config.IService) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = time.Duration(cfgsvc.GetRequestTimeout()) * time.Second
	return &http.Client{Transport: transport}
}
