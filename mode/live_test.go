package mode

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"go.viam.com/test"

	"github.com/khaledhikmat/vs-console/model"
)

func cameraParams(id int) model.StreamParams {
	return model.StreamParams{
		StreamTarget:        model.StreamTarget{CameraID: &id},
		ConfidenceThreshold: 0.8,
		FPS:                 30,
	}
}

func TestLiveReturnsOnStreamError(t *testing.T) {
	src, payloads, requests := liveServer(t)

	go func() {
		eventually(t, func() bool { return requests.Load() == 1 })
		payloads <- `{"frame":"Zm9v","detections":[]}`
		payloads <- `{"error":"camera unreachable"}`
	}()

	var out bytes.Buffer
	err := Live(context.Background(), newServices(src.URL), Options{Params: cameraParams(2), Out: &out})
	test.That(t, err, test.ShouldNotBeNil)

	var custom model.CustomError
	test.That(t, errors.As(err, &custom), test.ShouldBeTrue)
	test.That(t, custom.Processor, test.ShouldEqual, "live_watcher")
	test.That(t, custom.Inner.Error(), test.ShouldEqual, "camera unreachable")
	test.That(t, out.String(), test.ShouldContainSubstring, "camera unreachable")
	test.That(t, out.String(), test.ShouldContainSubstring, "Live stream inactive")
}

func TestLiveRejectsMissingTarget(t *testing.T) {
	src, _, requests := liveServer(t)

	var out bytes.Buffer
	err := Live(context.Background(), newServices(src.URL), Options{Out: &out})
	test.That(t, model.IsValidationError(err), test.ShouldBeTrue)
	test.That(t, requests.Load(), test.ShouldEqual, 0)
}

func TestLiveExitsQuietlyOnCancel(t *testing.T) {
	src, _, requests := liveServer(t)
	canx, cancel := context.WithCancel(context.Background())

	go func() {
		eventually(t, func() bool { return requests.Load() == 1 })
		cancel()
	}()

	done := make(chan error, 1)
	go func() {
		done <- Live(canx, newServices(src.URL), Options{Params: cameraParams(2), Out: &bytes.Buffer{}})
	}()

	select {
	case err := <-done:
		test.That(t, err, test.ShouldBeNil)
	case <-time.After(waitTimeout):
		t.Fatal("live watcher did not exit")
	}
}
