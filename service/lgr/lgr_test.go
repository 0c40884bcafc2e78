package lgr

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"go.viam.com/test"
)

func TestConsoleHandlerLine(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewConsoleHandler(&buf, slog.LevelInfo, false))

	logger.Debug("hidden")
	logger.With(slog.String("session", "abc")).Info("live stream started", slog.Int("fps", 30))

	out := buf.String()
	test.That(t, out, test.ShouldNotContainSubstring, "hidden")
	test.That(t, out, test.ShouldContainSubstring, "INFO live stream started")
	test.That(t, out, test.ShouldContainSubstring, "session=abc")
	test.That(t, out, test.ShouldContainSubstring, "fps=30")
}

func TestConsoleHandlerGroups(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewConsoleHandler(&buf, slog.LevelInfo, false))

	logger.WithGroup("stream").Info("update", slog.Int("detections", 2))
	test.That(t, buf.String(), test.ShouldContainSubstring, "stream.detections=2")
}

func TestErrRendersMessage(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewConsoleHandler(&buf, slog.LevelInfo, false))

	logger.Error("refresh failed", Err(errors.New("connection refused")))
	test.That(t, buf.String(), test.ShouldContainSubstring, "error.msg=connection refused")
	test.That(t, buf.String(), test.ShouldNotContainSubstring, "trace")
}

func TestParseLevel(t *testing.T) {
	test.That(t, ParseLevel("DEBUG"), test.ShouldEqual, slog.LevelDebug)
	test.That(t, ParseLevel("warning"), test.ShouldEqual, slog.LevelWarn)
	test.That(t, ParseLevel("error"), test.ShouldEqual, slog.LevelError)
	test.That(t, ParseLevel(""), test.ShouldEqual, slog.LevelInfo)
}
