package console

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-console/model"
	"github.com/khaledhikmat/vs-console/service/resource"
)

const (
	CameraCreatedMessage  = "Camera created."
	CameraUpdatedMessage  = "Camera updated."
	CameraDeletedMessage  = "Camera deleted."
	UserCreatedMessage    = "User created."
	UserDeletedMessage    = "User deleted."
	ImageInferredMessage  = "Image inference complete."
	StreamInferredMessage = "Stream inference complete."

	MissingImageMessage     = "Choose an image first."
	UnsupportedImageMessage = "Unsupported image type"
	MissingNameMessage      = "Camera name is required"
	MissingEmailMessage     = "Email is required"
	InvalidEmailMessage     = "Enter a valid email address"
)

var imageTypes = map[string]string{
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"webp": "image/webp",
}

// CameraOption is one entry of a camera picker.
type CameraOption struct {
	Label string `json:"label"`
	Value int    `json:"value"`
}

// Refresh reloads cameras, events and users concurrently. Any failure becomes the
// console status and leaves the cached lists untouched.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	c.busy++
	c.publishLocked()
	c.mu.Unlock()
	defer c.end()

	return c.refresh(ctx)
}

func (c *Controller) refresh(ctx context.Context) error {
	limits := c.svcs.CfgSvc.GetListLimits()

	var (
		cameras []model.Camera
		events  []model.Event
		users   []model.User
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		cameras, err = c.svcs.ResourceSvc.ListCameras(gctx, model.ListParams{Limit: limits.Cameras})
		return err
	})
	g.Go(func() error {
		var err error
		events, err = c.svcs.ResourceSvc.ListEvents(gctx, model.EventListParams{
			ListParams: model.ListParams{Limit: limits.Events},
		})
		return err
	})
	g.Go(func() error {
		var err error
		users, err = c.svcs.ResourceSvc.ListUsers(gctx, model.ListParams{Limit: limits.Users})
		return err
	})

	if err := g.Wait(); err != nil {
		c.setError(err)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cameras = lo.Ternary(cameras == nil, []model.Camera{}, cameras)
	c.events = lo.Ternary(events == nil, []model.Event{}, events)
	c.users = lo.Ternary(users == nil, []model.User{}, users)
	c.publishLocked()
	return nil
}

func (c *Controller) CreateCamera(ctx context.Context, camera model.CameraCreate) (model.Camera, error) {
	camera.Name = strings.TrimSpace(camera.Name)
	if err := validateForm(camera); err != nil {
		c.setError(err)
		return model.Camera{}, err
	}
	camera.StreamURL = emptyToNil(camera.StreamURL)
	camera.Location = emptyToNil(camera.Location)

	var created model.Camera
	err := c.run(ctx, CameraCreatedMessage, func() error {
		var err error
		created, err = c.svcs.ResourceSvc.CreateCamera(ctx, camera)
		return err
	})
	return created, err
}

func (c *Controller) UpdateCamera(ctx context.Context, id int, update model.CameraUpdate) (model.Camera, error) {
	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		update.Name = &name
	}
	if err := validateForm(update); err != nil {
		c.setError(err)
		return model.Camera{}, err
	}

	var updated model.Camera
	err := c.run(ctx, CameraUpdatedMessage, func() error {
		var err error
		updated, err = c.svcs.ResourceSvc.UpdateCamera(ctx, id, update)
		return err
	})
	return updated, err
}

func (c *Controller) DeleteCamera(ctx context.Context, id int) error {
	return c.run(ctx, CameraDeletedMessage, func() error {
		return c.svcs.ResourceSvc.DeleteCamera(ctx, id)
	})
}

func (c *Controller) CreateUser(ctx context.Context, user model.UserCreate) (model.User, error) {
	user.Email = strings.TrimSpace(user.Email)
	if err := validateForm(user); err != nil {
		c.setError(err)
		return model.User{}, err
	}
	user.FullName = emptyToNil(user.FullName)

	var created model.User
	err := c.run(ctx, UserCreatedMessage, func() error {
		var err error
		created, err = c.svcs.ResourceSvc.CreateUser(ctx, user)
		return err
	})
	return created, err
}

func (c *Controller) DeleteUser(ctx context.Context, id int) error {
	return c.run(ctx, UserDeletedMessage, func() error {
		return c.svcs.ResourceSvc.DeleteUser(ctx, id)
	})
}

// InferImage runs one-shot inference on img. A nil or empty image and anything
// that does not decode as jpeg, png or webp are rejected locally.
func (c *Controller) InferImage(ctx context.Context, img *resource.Image, cameraID *int) (model.InferenceResult, error) {
	if img == nil || len(img.Data) == 0 {
		err := model.NewValidationError(MissingImageMessage)
		c.setError(err)
		return model.InferenceResult{}, err
	}

	upload, err := checkImage(*img)
	if err != nil {
		c.setError(err)
		return model.InferenceResult{}, err
	}

	var result model.InferenceResult
	err = c.run(ctx, ImageInferredMessage, func() error {
		var err error
		result, err = c.svcs.ResourceSvc.InferImage(ctx, upload, cameraID)
		if err == nil {
			c.setDetections(result.Detections)
		}
		return err
	})
	return result, err
}

func (c *Controller) InferStream(ctx context.Context, target model.StreamTarget) (model.InferenceResult, error) {
	if err := target.Validate(); err != nil {
		c.setError(err)
		return model.InferenceResult{}, err
	}

	var result model.InferenceResult
	err := c.run(ctx, StreamInferredMessage, func() error {
		var err error
		result, err = c.svcs.ResourceSvc.InferStream(ctx, target)
		if err == nil {
			c.setDetections(result.Detections)
		}
		return err
	})
	return result, err
}

func (c *Controller) CameraOptions() []CameraOption {
	c.mu.Lock()
	defer c.mu.Unlock()
	return lo.Map(c.cameras, func(camera model.Camera, _ int) CameraOption {
		return CameraOption{
			Label: fmt.Sprintf("%s #%d", camera.Name, camera.ID),
			Value: camera.ID,
		}
	})
}

// run clears the status, performs fn, refreshes the cached lists and reports
// success. A refresh failure after fn succeeded does not hide the success.
func (c *Controller) run(ctx context.Context, success string, fn func() error) error {
	c.begin()
	defer c.end()

	if err := fn(); err != nil {
		c.setError(err)
		return err
	}

	_ = c.refresh(ctx)
	c.setStatus(model.StatusSuccess, success)
	return nil
}

func (c *Controller) setDetections(detections []model.Detection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.detections = append([]model.Detection{}, detections...)
	c.publishLocked()
}

func checkImage(img resource.Image) (resource.Image, error) {
	_, format, err := image.DecodeConfig(bytes.NewReader(img.Data))
	if err != nil {
		return img, model.NewValidationError(UnsupportedImageMessage)
	}

	contentType, ok := imageTypes[format]
	if !ok {
		return img, model.NewValidationError(UnsupportedImageMessage)
	}

	if img.ContentType == "" || img.ContentType == "application/octet-stream" {
		img.ContentType = contentType
	}
	if !lo.Contains(lo.Values(imageTypes), img.ContentType) {
		return img, model.NewValidationError(UnsupportedImageMessage)
	}
	if img.Filename == "" {
		img.Filename = "upload." + format
	}
	return img, nil
}

// formMessages maps a failed field rule to the message shown for it.
var formMessages = map[string]string{
	"Name.required":  MissingNameMessage,
	"Name.min":       MissingNameMessage,
	"Email.required": MissingEmailMessage,
	"Email.email":    InvalidEmailMessage,
}

var validate = validator.New()

// validateForm checks form against its validate tags and reports the first
// failing field as a validation error.
func validateForm(form any) error {
	err := validate.Struct(form)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !xerrors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return model.NewValidationError(err.Error())
	}

	fe := fieldErrs[0]
	if message, ok := formMessages[fe.Field()+"."+fe.Tag()]; ok {
		return model.NewValidationError(message)
	}
	return model.NewValidationError(fe.Error())
}

func emptyToNil(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}

// DetectContentType sniffs the upload content type for callers that read files
// from disk.
func DetectContentType(data []byte) string {
	return http.DetectContentType(data)
}
