package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/khaledhikmat/vs-console/console"
	"github.com/khaledhikmat/vs-console/mode"
	"github.com/khaledhikmat/vs-console/model"
	"github.com/khaledhikmat/vs-console/service/resource"
	"github.com/khaledhikmat/vs-console/view"
)

const (
	flagConfig     = "config"
	flagLogLevel   = "log-level"
	flagName       = "name"
	flagStreamURL  = "stream-url"
	flagLocation   = "location"
	flagActive     = "active"
	flagEmail      = "email"
	flagFullName   = "full-name"
	flagCamera     = "camera"
	flagSkip       = "skip"
	flagLimit      = "limit"
	flagConfidence = "confidence"
	flagFPS        = "fps"
)

func targetFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: flagCamera, Usage: "camera id"},
		&cli.StringFlag{Name: flagStreamURL, Usage: "stream url used when no camera is given"},
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "vs-console",
		Usage: "operator console for camera object detection",
		Flags: []cli.Flag{
			&cli.PathFlag{Name: flagConfig, Usage: "YAML config file", EnvVars: []string{"CONSOLE_CONFIG"}},
			&cli.StringFlag{Name: flagLogLevel, Usage: "debug, info, warn or error"},
		},
		Before: setup,
		After:  teardown,
		Commands: []*cli.Command{
			{
				Name:            "cameras",
				Usage:           "work with cameras",
				HideHelpCommand: true,
				Subcommands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "list cameras",
						Action: listCamerasAction,
					},
					{
						Name:   "options",
						Usage:  "list the camera picker entries",
						Action: cameraOptionsAction,
					},
					{
						Name:  "create",
						Usage: "create a camera",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: flagName, Required: true},
							&cli.StringFlag{Name: flagStreamURL},
							&cli.StringFlag{Name: flagLocation},
							&cli.BoolFlag{Name: flagActive, Value: true},
						},
						Action: createCameraAction,
					},
					{
						Name:      "update",
						Usage:     "update the given fields of a camera",
						ArgsUsage: "<id>",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: flagName},
							&cli.StringFlag{Name: flagStreamURL},
							&cli.StringFlag{Name: flagLocation},
							&cli.BoolFlag{Name: flagActive},
						},
						Action: updateCameraAction,
					},
					{
						Name:      "delete",
						Usage:     "delete a camera",
						ArgsUsage: "<id>",
						Action:    deleteCameraAction,
					},
				},
			},
			{
				Name:            "users",
				Usage:           "work with users",
				HideHelpCommand: true,
				Subcommands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "list users",
						Action: listUsersAction,
					},
					{
						Name:  "create",
						Usage: "create a user",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: flagEmail, Required: true},
							&cli.StringFlag{Name: flagFullName},
							&cli.BoolFlag{Name: flagActive, Value: true},
						},
						Action: createUserAction,
					},
					{
						Name:      "delete",
						Usage:     "delete a user",
						ArgsUsage: "<id>",
						Action:    deleteUserAction,
					},
				},
			},
			{
				Name:            "events",
				Usage:           "work with detection events",
				HideHelpCommand: true,
				Subcommands: []*cli.Command{
					{
						Name:  "list",
						Usage: "list events, newest first",
						Flags: []cli.Flag{
							&cli.IntFlag{Name: flagCamera, Usage: "only events of this camera"},
							&cli.IntFlag{Name: flagSkip},
							&cli.IntFlag{Name: flagLimit},
						},
						Action: listEventsAction,
					},
				},
			},
			{
				Name:            "infer",
				Usage:           "run one-shot inference",
				HideHelpCommand: true,
				Subcommands: []*cli.Command{
					{
						Name:      "image",
						Usage:     "detect objects in a JPEG, PNG or WebP image",
						ArgsUsage: "<path>",
						Flags: []cli.Flag{
							&cli.IntFlag{Name: flagCamera, Usage: "camera to attribute events to"},
						},
						Action: inferImageAction,
					},
					{
						Name:   "stream",
						Usage:  "detect objects in one frame of a stream",
						Flags:  targetFlags(),
						Action: inferStreamAction,
					},
				},
			},
			{
				Name:  "live",
				Usage: "watch a live detection stream",
				Flags: append([]cli.Flag{
					&cli.Float64Flag{Name: flagConfidence, Usage: "minimum detection confidence"},
					&cli.IntFlag{Name: flagFPS, Usage: "frames per second"},
				}, targetFlags()...),
				Action: liveAction,
			},
			{
				Name:   "panel",
				Usage:  "serve the live panel over local HTTP",
				Action: panelAction,
			},
			{
				Name:   "summary",
				Usage:  "show resource counts",
				Action: summaryAction,
			},
			{
				Name:            "auth",
				Usage:           "work with the identity provider",
				HideHelpCommand: true,
				Subcommands: []*cli.Command{
					{
						Name:   "url",
						Usage:  "print the sign-in URL",
						Action: authorizeURLAction,
					},
					{
						Name:   "logout-url",
						Usage:  "print the sign-out URL",
						Action: logoutURLAction,
					},
					{
						Name:   "whoami",
						Usage:  "describe the configured access token",
						Action: whoamiAction,
					},
				},
			},
		},
	}
}

// withController runs fn against a fresh controller and prints the resulting status.
func withController(c *cli.Context, fn func(ctrl *console.Controller) error) error {
	ctrl := console.New(c.Context, svcs)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(svcs.CfgSvc.GetModeMaxShutdownTime())*time.Second)
		defer cancel()
		_ = ctrl.Close(ctx)
	}()

	err := fn(ctrl)
	if status := view.Status(ctrl.Status()); status != "" {
		fmt.Fprintln(c.App.ErrWriter, status)
	}
	return err
}

func output(c *cli.Context, s string) {
	fmt.Fprintln(c.App.Writer, s)
}

func idArg(c *cli.Context, what string) (int, error) {
	id, err := strconv.Atoi(c.Args().First())
	if err != nil {
		return 0, model.NewValidationError(what + " id must be a number")
	}
	return id, nil
}

func optional(c *cli.Context, name string) *string {
	if !c.IsSet(name) {
		return nil
	}
	s := c.String(name)
	return &s
}

func optionalInt(c *cli.Context, name string) *int {
	if !c.IsSet(name) {
		return nil
	}
	i := c.Int(name)
	return &i
}

func target(c *cli.Context) model.StreamTarget {
	return model.StreamTarget{
		CameraID:  optionalInt(c, flagCamera),
		StreamURL: optional(c, flagStreamURL),
	}
}

func listCamerasAction(c *cli.Context) error {
	return withController(c, func(ctrl *console.Controller) error {
		if err := ctrl.Refresh(c.Context); err != nil {
			return err
		}
		output(c, view.CamerasTable(ctrl.Snapshot().Cameras))
		return nil
	})
}

func cameraOptionsAction(c *cli.Context) error {
	return withController(c, func(ctrl *console.Controller) error {
		if err := ctrl.Refresh(c.Context); err != nil {
			return err
		}
		output(c, view.CameraOptionsTable(ctrl.CameraOptions()))
		return nil
	})
}

func createCameraAction(c *cli.Context) error {
	return withController(c, func(ctrl *console.Controller) error {
		camera, err := ctrl.CreateCamera(c.Context, model.CameraCreate{
			Name:      c.String(flagName),
			StreamURL: optional(c, flagStreamURL),
			Location:  optional(c, flagLocation),
			IsActive:  c.Bool(flagActive),
		})
		if err != nil {
			return err
		}
		output(c, view.CamerasTable([]model.Camera{camera}))
		return nil
	})
}

func updateCameraAction(c *cli.Context) error {
	id, err := idArg(c, "Camera")
	if err != nil {
		return err
	}

	update := model.CameraUpdate{
		Name:      optional(c, flagName),
		StreamURL: optional(c, flagStreamURL),
		Location:  optional(c, flagLocation),
	}
	if c.IsSet(flagActive) {
		active := c.Bool(flagActive)
		update.IsActive = &active
	}

	return withController(c, func(ctrl *console.Controller) error {
		camera, err := ctrl.UpdateCamera(c.Context, id, update)
		if err != nil {
			return err
		}
		output(c, view.CamerasTable([]model.Camera{camera}))
		return nil
	})
}

func deleteCameraAction(c *cli.Context) error {
	id, err := idArg(c, "Camera")
	if err != nil {
		return err
	}
	return withController(c, func(ctrl *console.Controller) error {
		return ctrl.DeleteCamera(c.Context, id)
	})
}

func listUsersAction(c *cli.Context) error {
	return withController(c, func(ctrl *console.Controller) error {
		if err := ctrl.Refresh(c.Context); err != nil {
			return err
		}
		output(c, view.UsersTable(ctrl.Snapshot().Users))
		return nil
	})
}

func createUserAction(c *cli.Context) error {
	return withController(c, func(ctrl *console.Controller) error {
		user, err := ctrl.CreateUser(c.Context, model.UserCreate{
			Email:    c.String(flagEmail),
			FullName: optional(c, flagFullName),
			IsActive: c.Bool(flagActive),
		})
		if err != nil {
			return err
		}
		output(c, view.UsersTable([]model.User{user}))
		return nil
	})
}

func deleteUserAction(c *cli.Context) error {
	id, err := idArg(c, "User")
	if err != nil {
		return err
	}
	return withController(c, func(ctrl *console.Controller) error {
		return ctrl.DeleteUser(c.Context, id)
	})
}

func listEventsAction(c *cli.Context) error {
	limit := svcs.CfgSvc.GetListLimits().Events
	if c.IsSet(flagLimit) {
		limit = c.Int(flagLimit)
	}

	events, err := svcs.ResourceSvc.ListEvents(c.Context, model.EventListParams{
		ListParams: model.ListParams{Skip: c.Int(flagSkip), Limit: limit},
		CameraID:   optionalInt(c, flagCamera),
	})
	if err != nil {
		return err
	}
	output(c, view.EventsTable(events))
	return nil
}

func inferImageAction(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return model.NewValidationError(console.MissingImageMessage)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	img := &resource.Image{
		Filename:    filepath.Base(path),
		ContentType: console.DetectContentType(data),
		Data:        data,
	}

	return withController(c, func(ctrl *console.Controller) error {
		result, err := ctrl.InferImage(c.Context, img, optionalInt(c, flagCamera))
		if err != nil {
			return err
		}
		output(c, view.DetectionsTable(result.Detections))
		return nil
	})
}

func inferStreamAction(c *cli.Context) error {
	return withController(c, func(ctrl *console.Controller) error {
		result, err := ctrl.InferStream(c.Context, target(c))
		if err != nil {
			return err
		}
		output(c, view.DetectionsTable(result.Detections))
		return nil
	})
}

func liveAction(c *cli.Context) error {
	defaults := svcs.CfgSvc.GetStreamParameters()
	params := model.StreamParams{
		StreamTarget:        target(c),
		ConfidenceThreshold: defaults.ConfidenceThreshold,
		FPS:                 defaults.FPS,
	}
	if c.IsSet(flagConfidence) {
		params.ConfidenceThreshold = c.Float64(flagConfidence)
	}
	if c.IsSet(flagFPS) {
		params.FPS = c.Int(flagFPS)
	}

	return runMode(c.Context, "live", mode.Live, mode.Options{Params: params, Out: c.App.Writer})
}

func panelAction(c *cli.Context) error {
	return runMode(c.Context, "panel", mode.Panel, mode.Options{Out: c.App.Writer})
}

func summaryAction(c *cli.Context) error {
	return withController(c, func(ctrl *console.Controller) error {
		if err := ctrl.Refresh(c.Context); err != nil {
			return err
		}
		output(c, view.Summary(ctrl.Snapshot()))
		return nil
	})
}

func authorizeURLAction(c *cli.Context) error {
	state := uuid.NewString()
	u, err := svcs.AuthSvc.AuthorizeURL(state)
	if err != nil {
		return err
	}
	output(c, u)
	output(c, "state: "+state)
	return nil
}

func logoutURLAction(c *cli.Context) error {
	u, err := svcs.AuthSvc.LogoutURL()
	if err != nil {
		return err
	}
	output(c, u)
	return nil
}

func whoamiAction(c *cli.Context) error {
	identity, err := svcs.AuthSvc.Identity()
	if err != nil {
		return err
	}
	output(c, fmt.Sprintf("subject: %s", identity.Subject))
	output(c, fmt.Sprintf("email:   %s", identity.Email))
	if !identity.ExpiresAt.IsZero() {
		output(c, fmt.Sprintf("expires: %s", view.FormatDateTime(&identity.ExpiresAt)))
	}
	return nil
}
