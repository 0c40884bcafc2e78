package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.viam.com/test"

	"github.com/khaledhikmat/vs-console/model"
	"github.com/khaledhikmat/vs-console/service/auth"
	"github.com/khaledhikmat/vs-console/service/config"
	"github.com/khaledhikmat/vs-console/service/metrics"
	"github.com/khaledhikmat/vs-console/service/resource"
)

const waitTimeout = 5 * time.Second

type testConfig struct {
	config.IService
	baseURL      string
	token        string
	maxEventSize int
}

func (c testConfig) GetAPIBaseURL() string {
	return c.baseURL
}

func (c testConfig) GetAuthParameters() config.AuthParameters {
	params := c.IService.GetAuthParameters()
	params.AccessToken = c.token
	return params
}

func (c testConfig) GetStreamParameters() config.StreamParameters {
	params := c.IService.GetStreamParameters()
	if c.maxEventSize > 0 {
		params.MaxEventSize = c.maxEventSize
	}
	return params
}

func newServices(baseURL, token string) ServicesFactory {
	return servicesFor(testConfig{IService: config.NewHardCoded(), baseURL: baseURL, token: token})
}

func servicesFor(cfg testConfig) ServicesFactory {
	authSvc := auth.NewStatic(cfg)
	metricsSvc := metrics.NewPrometheus()
	return ServicesFactory{
		CfgSvc:      cfg,
		AuthSvc:     authSvc,
		ResourceSvc: resource.NewHTTP(cfg, authSvc, metricsSvc),
		MetricsSvc:  metricsSvc,
	}
}

// streamServer serves each request with script and then holds the connection open
// until the client leaves or the test ends.
func streamServer(t *testing.T, script func(w http.ResponseWriter, r *http.Request)) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	requests := &atomic.Int32{}
	release := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()

		script(w, r)

		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })
	return srv, requests
}

func writeEvent(w http.ResponseWriter, data string) {
	fmt.Fprintf(w, "data: %s\n\n", data)
	w.(http.Flusher).Flush()
}

func updatePayload(frame string) string {
	return fmt.Sprintf(`{"frame":%q,"detections":[{"label":"person","confidence":0.91}]}`, frame)
}

type recorder struct {
	mu      sync.Mutex
	frames  []string
	errs    []string
	updates chan string
	errors  chan string
}

func newRecorder() *recorder {
	return &recorder{
		updates: make(chan string, 100),
		errors:  make(chan string, 100),
	}
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		OnUpdate: func(frame string, _ []model.Detection) {
			r.mu.Lock()
			r.frames = append(r.frames, frame)
			r.mu.Unlock()
			r.updates <- frame
		},
		OnError: func(message string) {
			r.mu.Lock()
			r.errs = append(r.errs, message)
			r.mu.Unlock()
			r.errors <- message
		},
	}
}

func (r *recorder) snapshot() ([]string, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.frames...), append([]string{}, r.errs...)
}

func receive(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for a handler")
		return ""
	}
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for the session to stop")
	}
}

func cameraParams(id int) model.StreamParams {
	return model.StreamParams{
		StreamTarget:        model.StreamTarget{CameraID: &id},
		ConfidenceThreshold: 0.8,
		FPS:                 30,
	}
}

func TestSessionDeliversUpdatesInOrder(t *testing.T) {
	queries := make(chan string, 1)
	srv, _ := streamServer(t, func(w http.ResponseWriter, r *http.Request) {
		queries <- r.URL.RawQuery
		for i := 0; i < 20; i++ {
			writeEvent(w, updatePayload(fmt.Sprintf("f%d", i)))
		}
	})

	rec := newRecorder()
	s, err := Open(context.Background(), newServices(srv.URL, ""), cameraParams(7), rec.handlers())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.ID, test.ShouldNotBeEmpty)

	for i := 0; i < 20; i++ {
		test.That(t, receive(t, rec.updates), test.ShouldEqual, fmt.Sprintf("f%d", i))
	}
	test.That(t, s.State(), test.ShouldEqual, StateStreaming)
	test.That(t, receive(t, queries), test.ShouldContainSubstring, "camera_id=7")

	s.Close()
	waitDone(t, s)

	frames, errs := rec.snapshot()
	test.That(t, len(frames), test.ShouldEqual, 20)
	test.That(t, errs, test.ShouldBeEmpty)
	test.That(t, s.State(), test.ShouldEqual, StateClosed)
	test.That(t, s.Reason(), test.ShouldEqual, metrics.ReasonClosed)
	test.That(t, s.Stats().Payloads, test.ShouldEqual, 20)
}

func TestSessionDropsMalformedPayloads(t *testing.T) {
	srv, _ := streamServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeEvent(w, updatePayload("a"))
		writeEvent(w, `{"oops":1}`)
		writeEvent(w, `not json`)
		writeEvent(w, `{"frame":5}`)
		writeEvent(w, `{"frame":"x","detections":"none"}`)
		writeEvent(w, updatePayload("b"))
	})

	rec := newRecorder()
	s, err := Open(context.Background(), newServices(srv.URL, ""), cameraParams(1), rec.handlers())
	test.That(t, err, test.ShouldBeNil)

	test.That(t, receive(t, rec.updates), test.ShouldEqual, "a")
	test.That(t, receive(t, rec.updates), test.ShouldEqual, "b")
	test.That(t, s.State(), test.ShouldEqual, StateStreaming)

	s.Close()
	waitDone(t, s)

	_, errs := rec.snapshot()
	test.That(t, errs, test.ShouldBeEmpty)
	test.That(t, s.Stats().Malformed, test.ShouldEqual, 4)
}

func TestSessionSkipsOversizedEvents(t *testing.T) {
	srv, _ := streamServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeEvent(w, updatePayload("a"))
		writeEvent(w, updatePayload(strings.Repeat("x", 2048)))
		writeEvent(w, updatePayload("b"))
	})

	cfg := testConfig{IService: config.NewHardCoded(), baseURL: srv.URL, maxEventSize: 1024}
	rec := newRecorder()
	s, err := Open(context.Background(), servicesFor(cfg), cameraParams(1), rec.handlers())
	test.That(t, err, test.ShouldBeNil)

	test.That(t, receive(t, rec.updates), test.ShouldEqual, "a")
	test.That(t, receive(t, rec.updates), test.ShouldEqual, "b")
	test.That(t, s.State(), test.ShouldEqual, StateStreaming)

	s.Close()
	waitDone(t, s)

	frames, errs := rec.snapshot()
	test.That(t, frames, test.ShouldResemble, []string{"a", "b"})
	test.That(t, errs, test.ShouldBeEmpty)
	test.That(t, s.Reason(), test.ShouldEqual, metrics.ReasonClosed)
	test.That(t, s.Stats().Malformed, test.ShouldEqual, 1)
}

func TestSessionServerErrorIsTerminal(t *testing.T) {
	srv, _ := streamServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeEvent(w, updatePayload("a"))
		writeEvent(w, `{"error":"camera unreachable"}`)
		writeEvent(w, updatePayload("c"))
		writeEvent(w, `{"error":"second"}`)
	})

	rec := newRecorder()
	s, err := Open(context.Background(), newServices(srv.URL, ""), cameraParams(1), rec.handlers())
	test.That(t, err, test.ShouldBeNil)

	test.That(t, receive(t, rec.errors), test.ShouldEqual, "camera unreachable")
	waitDone(t, s)

	frames, errs := rec.snapshot()
	test.That(t, frames, test.ShouldResemble, []string{"a"})
	test.That(t, errs, test.ShouldResemble, []string{"camera unreachable"})
	test.That(t, s.State(), test.ShouldEqual, StateClosed)
	test.That(t, s.Reason(), test.ShouldEqual, metrics.ReasonServer)

	// closing after the error is a no-op
	s.Close()
	_, errs = rec.snapshot()
	test.That(t, len(errs), test.ShouldEqual, 1)
}

func TestSessionHandshakeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	rec := newRecorder()
	s, err := Open(context.Background(), newServices(srv.URL, ""), cameraParams(1), rec.handlers())
	test.That(t, err, test.ShouldBeNil)

	test.That(t, receive(t, rec.errors), test.ShouldEqual, ConnectionFailedMessage)
	waitDone(t, s)

	frames, _ := rec.snapshot()
	test.That(t, frames, test.ShouldBeEmpty)
	test.That(t, s.Reason(), test.ShouldEqual, metrics.ReasonTransport)
}

func TestSessionRejectsNonEventStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"detail":"nope"}`))
	}))
	t.Cleanup(srv.Close)

	rec := newRecorder()
	s, err := Open(context.Background(), newServices(srv.URL, ""), cameraParams(1), rec.handlers())
	test.That(t, err, test.ShouldBeNil)

	test.That(t, receive(t, rec.errors), test.ShouldEqual, ConnectionFailedMessage)
	waitDone(t, s)
}

func TestSessionStreamDropIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeEvent(w, updatePayload("a"))
	}))
	t.Cleanup(srv.Close)

	rec := newRecorder()
	s, err := Open(context.Background(), newServices(srv.URL, ""), cameraParams(1), rec.handlers())
	test.That(t, err, test.ShouldBeNil)

	test.That(t, receive(t, rec.updates), test.ShouldEqual, "a")
	test.That(t, receive(t, rec.errors), test.ShouldEqual, ConnectionFailedMessage)
	waitDone(t, s)
	test.That(t, s.Reason(), test.ShouldEqual, metrics.ReasonTransport)
}

func TestOpenRejectsMissingTargetWithoutConnecting(t *testing.T) {
	srv, requests := streamServer(t, func(http.ResponseWriter, *http.Request) {})

	rec := newRecorder()
	blank := "  "
	for _, params := range []model.StreamParams{
		{},
		{StreamTarget: model.StreamTarget{StreamURL: &blank}, FPS: 30},
	} {
		s, err := Open(context.Background(), newServices(srv.URL, ""), params, rec.handlers())
		test.That(t, s, test.ShouldBeNil)
		test.That(t, model.IsValidationError(err), test.ShouldBeTrue)
		test.That(t, err.Error(), test.ShouldEqual, model.MissingStreamTargetMessage)
	}
	test.That(t, requests.Load(), test.ShouldEqual, 0)
}

func TestCloseBeforePayloadAndTwice(t *testing.T) {
	srv, _ := streamServer(t, func(http.ResponseWriter, *http.Request) {})

	rec := newRecorder()
	s, err := Open(context.Background(), newServices(srv.URL, ""), cameraParams(1), rec.handlers())
	test.That(t, err, test.ShouldBeNil)

	s.Close()
	s.Close()
	waitDone(t, s)
	s.Close()

	frames, errs := rec.snapshot()
	test.That(t, frames, test.ShouldBeEmpty)
	test.That(t, errs, test.ShouldBeEmpty)
	test.That(t, s.State(), test.ShouldEqual, StateClosed)
	test.That(t, s.Reason(), test.ShouldEqual, metrics.ReasonClosed)
}

func TestParentCancelClosesQuietly(t *testing.T) {
	srv, _ := streamServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeEvent(w, updatePayload("a"))
	})

	ctx, cancel := context.WithCancel(context.Background())
	rec := newRecorder()
	s, err := Open(ctx, newServices(srv.URL, ""), cameraParams(1), rec.handlers())
	test.That(t, err, test.ShouldBeNil)

	test.That(t, receive(t, rec.updates), test.ShouldEqual, "a")
	cancel()
	waitDone(t, s)

	_, errs := rec.snapshot()
	test.That(t, errs, test.ShouldBeEmpty)
	test.That(t, s.Reason(), test.ShouldEqual, metrics.ReasonClosed)
}

func TestSessionSendsBearerToken(t *testing.T) {
	authz := make(chan string, 1)
	srv, _ := streamServer(t, func(w http.ResponseWriter, r *http.Request) {
		authz <- r.Header.Get("Authorization")
	})

	s, err := Open(context.Background(), newServices(srv.URL, "opaque-token"), cameraParams(1), Handlers{})
	test.That(t, err, test.ShouldBeNil)
	defer s.Close()

	test.That(t, receive(t, authz), test.ShouldEqual, "Bearer opaque-token")
}

func TestSessionIgnoresNamedEvents(t *testing.T) {
	srv, _ := streamServer(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, ": keep-alive\n\nevent: ping\ndata: {}\n\n")
		writeEvent(w, updatePayload("a"))
	})

	rec := newRecorder()
	s, err := Open(context.Background(), newServices(srv.URL, ""), cameraParams(1), rec.handlers())
	test.That(t, err, test.ShouldBeNil)
	defer s.Close()

	test.That(t, receive(t, rec.updates), test.ShouldEqual, "a")
}
