package resource

import (
	"context"

	"github.com/khaledhikmat/vs-console/model"
)

// Image is an upload for one-shot inference.
type Image struct {
	Filename    string
	ContentType string
	Data        []byte
}

// IService is the request/response client of the backend resource API.
// Every call either returns the decoded payload or a single error whose message is
// the backend's `detail`, or a generic message when the body cannot be parsed.
type IService interface {
	ListCameras(ctx context.Context, params model.ListParams) ([]model.Camera, error)
	CreateCamera(ctx context.Context, camera model.CameraCreate) (model.Camera, error)
	UpdateCamera(ctx context.Context, id int, update model.CameraUpdate) (model.Camera, error)
	DeleteCamera(ctx context.Context, id int) error

	ListUsers(ctx context.Context, params model.ListParams) ([]model.User, error)
	CreateUser(ctx context.Context, user model.UserCreate) (model.User, error)
	DeleteUser(ctx context.Context, id int) error

	ListEvents(ctx context.Context, params model.EventListParams) ([]model.Event, error)

	InferImage(ctx context.Context, image Image, cameraID *int) (model.InferenceResult, error)
	InferStream(ctx context.Context, target model.StreamTarget) (model.InferenceResult, error)

	// LiveStreamURL builds the server-push endpoint for params. It performs no I/O.
	LiveStreamURL(params model.StreamParams) (string, error)
}
