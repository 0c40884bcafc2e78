package resource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-console/model"
	"github.com/khaledhikmat/vs-console/service/auth"
	"github.com/khaledhikmat/vs-console/service/config"
	"github.com/khaledhikmat/vs-console/service/metrics"
)

const maxErrorBody = 64 << 10

type httpService struct {
	CfgSvc     config.IService
	AuthSvc    auth.IService
	MetricsSvc metrics.IService
	Client     *http.Client
}

func NewHTTP(cfgsvc config.IService, authsvc auth.IService, metricssvc metrics.IService) IService {
	return &httpService{
		CfgSvc:     cfgsvc,
		AuthSvc:    authsvc,
		MetricsSvc: metricssvc,
		Client: &http.Client{
			Timeout: time.Duration(cfgsvc.GetRequestTimeout()) * time.Second,
		},
	}
}

func (svc *httpService) ListCameras(ctx context.Context, params model.ListParams) ([]model.Camera, error) {
	cameras := []model.Camera{}
	err := svc.do(ctx, call{
		operation: "list_cameras",
		method:    http.MethodGet,
		path:      "/cameras/",
		query:     listQuery(params, nil),
	}, &cameras)
	return cameras, err
}

func (svc *httpService) CreateCamera(ctx context.Context, camera model.CameraCreate) (model.Camera, error) {
	created := model.Camera{}
	body, err := json.Marshal(camera)
	if err != nil {
		return created, xerrors.Errorf("encoding camera: %w", err)
	}

	err = svc.do(ctx, call{
		operation:   "create_camera",
		method:      http.MethodPost,
		path:        "/cameras/",
		body:        body,
		contentType: "application/json",
	}, &created)
	return created, err
}

func (svc *httpService) UpdateCamera(ctx context.Context, id int, update model.CameraUpdate) (model.Camera, error) {
	updated := model.Camera{}
	body, err := json.Marshal(update)
	if err != nil {
		return updated, xerrors.Errorf("encoding camera update: %w", err)
	}

	err = svc.do(ctx, call{
		operation:   "update_camera",
		method:      http.MethodPut,
		path:        "/cameras/" + strconv.Itoa(id),
		body:        body,
		contentType: "application/json",
	}, &updated)
	return updated, err
}

func (svc *httpService) DeleteCamera(ctx context.Context, id int) error {
	return svc.do(ctx, call{
		operation: "delete_camera",
		method:    http.MethodDelete,
		path:      "/cameras/" + strconv.Itoa(id),
	}, nil)
}

func (svc *httpService) ListUsers(ctx context.Context, params model.ListParams) ([]model.User, error) {
	users := []model.User{}
	err := svc.do(ctx, call{
		operation: "list_users",
		method:    http.MethodGet,
		path:      "/users/",
		query:     listQuery(params, nil),
	}, &users)
	return users, err
}

func (svc *httpService) CreateUser(ctx context.Context, user model.UserCreate) (model.User, error) {
	created := model.User{}
	body, err := json.Marshal(user)
	if err != nil {
		return created, xerrors.Errorf("encoding user: %w", err)
	}

	err = svc.do(ctx, call{
		operation:   "create_user",
		method:      http.MethodPost,
		path:        "/users/",
		body:        body,
		contentType: "application/json",
	}, &created)
	return created, err
}

func (svc *httpService) DeleteUser(ctx context.Context, id int) error {
	return svc.do(ctx, call{
		operation: "delete_user",
		method:    http.MethodDelete,
		path:      "/users/" + strconv.Itoa(id),
	}, nil)
}

func (svc *httpService) ListEvents(ctx context.Context, params model.EventListParams) ([]model.Event, error) {
	events := []model.Event{}
	err := svc.do(ctx, call{
		operation: "list_events",
		method:    http.MethodGet,
		path:      "/events/",
		query:     listQuery(params.ListParams, params.CameraID),
	}, &events)
	return events, err
}

func (svc *httpService) InferImage(ctx context.Context, image Image, cameraID *int) (model.InferenceResult, error) {
	result := model.InferenceResult{}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, image.Filename))
	h.Set("Content-Type", image.ContentType)

	part, err := writer.CreatePart(h)
	if err != nil {
		return result, xerrors.Errorf("create form part: %w", err)
	}

	if _, err := part.Write(image.Data); err != nil {
		return result, xerrors.Errorf("write image data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return result, xerrors.Errorf("close writer: %w", err)
	}

	query := url.Values{}
	if cameraID != nil {
		query.Set("camera_id", strconv.Itoa(*cameraID))
	}

	err = svc.do(ctx, call{
		operation:   "infer_image",
		method:      http.MethodPost,
		path:        "/events/infer",
		query:       query,
		body:        buf.Bytes(),
		contentType: writer.FormDataContentType(),
		fallback:    model.GenericInferenceFailure,
	}, &result)
	return result, err
}

func (svc *httpService) InferStream(ctx context.Context, target model.StreamTarget) (model.InferenceResult, error) {
	result := model.InferenceResult{}
	body, err := json.Marshal(target)
	if err != nil {
		return result, xerrors.Errorf("encoding stream target: %w", err)
	}

	err = svc.do(ctx, call{
		operation:   "infer_stream",
		method:      http.MethodPost,
		path:        "/events/infer-stream",
		body:        body,
		contentType: "application/json",
	}, &result)
	return result, err
}

func (svc *httpService) LiveStreamURL(params model.StreamParams) (string, error) {
	if err := params.Validate(); err != nil {
		return "", err
	}

	u, err := svc.url("/events/live-stream", params.Query())
	if err != nil {
		return "", err
	}
	return u, nil
}

type call struct {
	operation   string
	method      string
	path        string
	query       url.Values
	body        []byte
	contentType string
	fallback    string
}

func (svc *httpService) url(path string, query url.Values) (string, error) {
	base := strings.TrimRight(svc.CfgSvc.GetAPIBaseURL(), "/")
	u, err := url.Parse(base + path)
	if err != nil {
		return "", xerrors.Errorf("building url for %s: %w", path, err)
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}

func (svc *httpService) do(ctx context.Context, c call, out any) error {
	token, err := svc.AuthSvc.Token()
	if err != nil {
		return err
	}

	target, err := svc.url(c.path, c.query)
	if err != nil {
		return err
	}

	var body io.Reader
	if c.body != nil {
		body = bytes.NewReader(c.body)
	}

	req, err := http.NewRequestWithContext(ctx, c.method, target, body)
	if err != nil {
		return xerrors.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.contentType != "" {
		req.Header.Set("Content-Type", c.contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := svc.Client.Do(req)
	if err != nil {
		svc.MetricsSvc.ResourceCall(c.operation, 0, time.Since(start).Seconds())
		return xerrors.Errorf("%s %s: %w", c.method, c.path, err)
	}
	defer resp.Body.Close()
	svc.MetricsSvc.ResourceCall(c.operation, resp.StatusCode, time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		fallback := c.fallback
		if fallback == "" {
			fallback = model.GenericRequestFailure
		}
		return decodeError(resp, fallback)
	}

	if resp.StatusCode == http.StatusNoContent || out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return xerrors.Errorf("decoding %s response: %w", c.operation, err)
	}
	return nil
}

// decodeError extracts `detail` from the error body. FastAPI validation errors carry a
// list of objects with a `msg` field instead of a string.
func decodeError(resp *http.Response, fallback string) error {
	apiErr := &model.APIError{
		StatusCode: resp.StatusCode,
		Detail:     fallback,
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return apiErr
	}

	var body struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return apiErr
	}

	switch detail := body.Detail.(type) {
	case string:
		if detail != "" {
			apiErr.Detail = detail
		}
	case []any:
		msgs := lo.FilterMap(detail, func(item any, _ int) (string, bool) {
			m, ok := item.(map[string]any)
			if !ok {
				return "", false
			}
			msg, ok := m["msg"].(string)
			return msg, ok && msg != ""
		})
		if len(msgs) > 0 {
			apiErr.Detail = strings.Join(msgs, "; ")
		}
	}

	return apiErr
}

func listQuery(params model.ListParams, cameraID *int) url.Values {
	values := map[string]string{
		"skip":  "",
		"limit": "",
	}
	if params.Skip > 0 {
		values["skip"] = strconv.Itoa(params.Skip)
	}
	if params.Limit > 0 {
		values["limit"] = strconv.Itoa(params.Limit)
	}
	if cameraID != nil {
		values["camera_id"] = strconv.Itoa(*cameraID)
	}

	query := url.Values{}
	for k, v := range lo.OmitByValues(values, []string{""}) {
		query.Set(k, v)
	}
	return query
}
