package main

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
	"go.viam.com/test"

	"github.com/khaledhikmat/vs-console/model"
	"github.com/khaledhikmat/vs-console/pipeline"
	"github.com/khaledhikmat/vs-console/service/auth"
	"github.com/khaledhikmat/vs-console/service/config"
	"github.com/khaledhikmat/vs-console/service/metrics"
	"github.com/khaledhikmat/vs-console/service/resource"
)

func init() {
	color.NoColor = true
}

// run executes the CLI against the resource fake and returns stdout and stderr.
func run(t *testing.T, fake *resource.FakeService, args ...string) (string, string, error) {
	t.Helper()
	cfg := config.NewHardCoded()
	svcs = pipeline.ServicesFactory{
		CfgSvc:      cfg,
		AuthSvc:     auth.NewStatic(cfg),
		ResourceSvc: fake,
		MetricsSvc:  metrics.NewPrometheus(),
	}

	var stdout, stderr bytes.Buffer
	app := newApp()
	app.Before = nil
	app.After = nil
	app.Writer = &stdout
	app.ErrWriter = &stderr
	app.ExitErrHandler = func(*cli.Context, error) {}

	err := app.Run(append([]string{"vs-console"}, args...))
	return stdout.String(), stderr.String(), err
}

func TestCamerasCommands(t *testing.T) {
	fake := resource.NewFake(config.NewHardCoded())

	out, status, err := run(t, fake, "cameras", "create", "--name", " Dock ", "--location", "North gate")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "Dock")
	test.That(t, out, test.ShouldContainSubstring, "North gate")
	test.That(t, status, test.ShouldContainSubstring, "Camera created.")

	out, _, err = run(t, fake, "cameras", "options")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "Dock #1")

	out, _, err = run(t, fake, "cameras", "update", "--active=false", "1")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "Paused")

	_, status, err = run(t, fake, "cameras", "delete", "9")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, status, test.ShouldContainSubstring, "Camera not found")

	_, _, err = run(t, fake, "cameras", "delete", "one")
	test.That(t, model.IsValidationError(err), test.ShouldBeTrue)

	out, _, err = run(t, fake, "cameras", "list")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "Dock")
}

func TestUsersCommands(t *testing.T) {
	fake := resource.NewFake(config.NewHardCoded())

	_, status, err := run(t, fake, "users", "create", "--email", "not-an-email")
	test.That(t, model.IsValidationError(err), test.ShouldBeTrue)
	test.That(t, status, test.ShouldContainSubstring, "Enter a valid email address")
	test.That(t, fake.CallCount("create_user"), test.ShouldEqual, 0)

	out, _, err := run(t, fake, "users", "create", "--email", "ops@example.com", "--full-name", "Ops")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "ops@example.com")
}

func TestEventsListFiltersByCamera(t *testing.T) {
	fake := resource.NewFake(config.NewHardCoded())
	two, three := 2, 3
	fake.AddEvent(model.Event{Label: "person", Confidence: 0.9, CameraID: &two})
	fake.AddEvent(model.Event{Label: "truck", Confidence: 0.7, CameraID: &three})

	out, _, err := run(t, fake, "events", "list", "--camera", "2")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "person")
	test.That(t, out, test.ShouldNotContainSubstring, "truck")
}

func TestInferStreamRequiresTarget(t *testing.T) {
	fake := resource.NewFake(config.NewHardCoded())

	_, status, err := run(t, fake, "infer", "stream")
	test.That(t, model.IsValidationError(err), test.ShouldBeTrue)
	test.That(t, status, test.ShouldContainSubstring, model.MissingStreamTargetMessage)
	test.That(t, fake.CallCount("infer_stream"), test.ShouldEqual, 0)

	fake.SetInferenceResult(model.InferenceResult{Detections: []model.Detection{{Label: "dog", Confidence: 0.66}}})
	out, _, err := run(t, fake, "infer", "stream", "--camera", "4")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "66.0%")
}
