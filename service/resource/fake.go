package resource

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/khaledhikmat/vs-console/model"
	"github.com/khaledhikmat/vs-console/service/config"
)

// FakeService keeps resources in memory. Errors can be injected per operation
// and every call is counted.
type FakeService struct {
	CfgSvc  config.IService
	BaseURL string

	mu          sync.Mutex
	nextID      int
	cameras     []model.Camera
	users       []model.User
	events      []model.Event
	inferResult model.InferenceResult
	failures    map[string]error
	calls       map[string]int
}

func NewFake(cfgsvc config.IService) *FakeService {
	return &FakeService{
		CfgSvc:   cfgsvc,
		BaseURL:  cfgsvc.GetAPIBaseURL(),
		nextID:   1,
		failures: map[string]error{},
		calls:    map[string]int{},
	}
}

func (svc *FakeService) SetError(operation string, err error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if err == nil {
		delete(svc.failures, operation)
		return
	}
	svc.failures[operation] = err
}

func (svc *FakeService) SetInferenceResult(result model.InferenceResult) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.inferResult = result
}

func (svc *FakeService) AddEvent(event model.Event) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if event.ID == 0 {
		event.ID = svc.id()
	}
	svc.events = append(svc.events, event)
}

func (svc *FakeService) CallCount(operation string) int {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.calls[operation]
}

func (svc *FakeService) ListCameras(_ context.Context, params model.ListParams) ([]model.Camera, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if err := svc.enter("list_cameras"); err != nil {
		return nil, err
	}
	return page(svc.cameras, params), nil
}

func (svc *FakeService) CreateCamera(_ context.Context, camera model.CameraCreate) (model.Camera, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if err := svc.enter("create_camera"); err != nil {
		return model.Camera{}, err
	}

	now := time.Now()
	created := model.Camera{
		ID:        svc.id(),
		Name:      camera.Name,
		StreamURL: camera.StreamURL,
		Location:  camera.Location,
		IsActive:  camera.IsActive,
		CreatedAt: &now,
	}
	svc.cameras = append(svc.cameras, created)
	return created, nil
}

func (svc *FakeService) UpdateCamera(_ context.Context, id int, update model.CameraUpdate) (model.Camera, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if err := svc.enter("update_camera"); err != nil {
		return model.Camera{}, err
	}

	for i, camera := range svc.cameras {
		if camera.ID != id {
			continue
		}
		if update.Name != nil {
			camera.Name = *update.Name
		}
		if update.StreamURL != nil {
			camera.StreamURL = update.StreamURL
		}
		if update.Location != nil {
			camera.Location = update.Location
		}
		if update.IsActive != nil {
			camera.IsActive = *update.IsActive
		}
		svc.cameras[i] = camera
		return camera, nil
	}
	return model.Camera{}, &model.APIError{StatusCode: 404, Detail: "Camera not found"}
}

func (svc *FakeService) DeleteCamera(_ context.Context, id int) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if err := svc.enter("delete_camera"); err != nil {
		return err
	}

	_, index, found := lo.FindIndexOf(svc.cameras, func(c model.Camera) bool { return c.ID == id })
	if !found {
		return &model.APIError{StatusCode: 404, Detail: "Camera not found"}
	}
	svc.cameras = append(svc.cameras[:index], svc.cameras[index+1:]...)
	return nil
}

func (svc *FakeService) ListUsers(_ context.Context, params model.ListParams) ([]model.User, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if err := svc.enter("list_users"); err != nil {
		return nil, err
	}
	return page(svc.users, params), nil
}

func (svc *FakeService) CreateUser(_ context.Context, user model.UserCreate) (model.User, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if err := svc.enter("create_user"); err != nil {
		return model.User{}, err
	}

	if lo.ContainsBy(svc.users, func(u model.User) bool { return strings.EqualFold(u.Email, user.Email) }) {
		return model.User{}, &model.APIError{StatusCode: 400, Detail: "Email already registered"}
	}

	now := time.Now()
	created := model.User{
		ID:        svc.id(),
		Email:     user.Email,
		FullName:  user.FullName,
		IsActive:  user.IsActive,
		CreatedAt: &now,
	}
	svc.users = append(svc.users, created)
	return created, nil
}

func (svc *FakeService) DeleteUser(_ context.Context, id int) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if err := svc.enter("delete_user"); err != nil {
		return err
	}

	_, index, found := lo.FindIndexOf(svc.users, func(u model.User) bool { return u.ID == id })
	if !found {
		return &model.APIError{StatusCode: 404, Detail: "User not found"}
	}
	svc.users = append(svc.users[:index], svc.users[index+1:]...)
	return nil
}

func (svc *FakeService) ListEvents(_ context.Context, params model.EventListParams) ([]model.Event, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if err := svc.enter("list_events"); err != nil {
		return nil, err
	}

	events := svc.events
	if params.CameraID != nil {
		events = lo.Filter(events, func(e model.Event, _ int) bool {
			return e.CameraID != nil && *e.CameraID == *params.CameraID
		})
	}
	return page(events, params.ListParams), nil
}

func (svc *FakeService) InferImage(_ context.Context, _ Image, _ *int) (model.InferenceResult, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if err := svc.enter("infer_image"); err != nil {
		return model.InferenceResult{}, err
	}
	return svc.inferResult, nil
}

func (svc *FakeService) InferStream(_ context.Context, _ model.StreamTarget) (model.InferenceResult, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if err := svc.enter("infer_stream"); err != nil {
		return model.InferenceResult{}, err
	}
	return svc.inferResult, nil
}

func (svc *FakeService) LiveStreamURL(params model.StreamParams) (string, error) {
	if err := params.Validate(); err != nil {
		return "", err
	}
	return strings.TrimRight(svc.BaseURL, "/") + "/events/live-stream?" + params.Query().Encode(), nil
}

func (svc *FakeService) enter(operation string) error {
	svc.calls[operation]++
	return svc.failures[operation]
}

func (svc *FakeService) id() int {
	id := svc.nextID
	svc.nextID++
	return id
}

func page[T any](items []T, params model.ListParams) []T {
	if params.Skip >= len(items) {
		return []T{}
	}
	items = items[params.Skip:]
	if params.Limit > 0 && params.Limit < len(items) {
		items = items[:params.Limit]
	}
	return append([]T{}, items...)
}
