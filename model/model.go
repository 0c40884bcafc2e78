package model

import (
	"fmt"
	"runtime/debug"
	"time"
)

type CustomError struct {
	Processor  string                 `json:"processor"`
	Inner      error                  `json:"innerError"`
	Message    string                 `json:"message"`
	StackTrace string                 `json:"stackTrace"`
	Misc       map[string]interface{} `json:"misc"`
}

func (e CustomError) Error() string {
	if e.Inner == nil {
		return fmt.Sprintf("%s: %s", e.Processor, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Processor, e.Message, e.Inner)
}

func (e CustomError) Unwrap() error {
	return e.Inner
}

func GenError(proc string, err error, misc map[string]interface{}, messagef string, args ...interface{}) CustomError {
	return CustomError{
		Processor:  proc,
		Inner:      err,
		Message:    fmt.Sprintf(messagef, args...),
		StackTrace: string(debug.Stack()),
		Misc:       misc,
	}
}

type Camera struct {
	ID        int        `json:"id"`
	Name      string     `json:"name"`
	StreamURL *string    `json:"stream_url"`
	Location  *string    `json:"location"`
	IsActive  bool       `json:"is_active"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// CameraCreate is the body of a camera create call. Empty optional fields are sent as null.
type CameraCreate struct {
	Name      string  `json:"name" validate:"required"`
	StreamURL *string `json:"stream_url"`
	Location  *string `json:"location"`
	IsActive  bool    `json:"is_active"`
}

// CameraUpdate only carries the fields being changed.
type CameraUpdate struct {
	Name      *string `json:"name,omitempty" validate:"omitnil,min=1"`
	StreamURL *string `json:"stream_url,omitempty"`
	Location  *string `json:"location,omitempty"`
	IsActive  *bool   `json:"is_active,omitempty"`
}

type User struct {
	ID        int        `json:"id"`
	Email     string     `json:"email"`
	FullName  *string    `json:"full_name"`
	IsActive  bool       `json:"is_active"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

type UserCreate struct {
	Email    string  `json:"email" validate:"required,email"`
	FullName *string `json:"full_name"`
	IsActive bool    `json:"is_active"`
}

// Event is created by the backend inference pipeline. The console only lists events.
type Event struct {
	ID         int        `json:"id"`
	Label      string     `json:"label"`
	Confidence float64    `json:"confidence"`
	CameraID   *int       `json:"camera_id"`
	OccurredAt *time.Time `json:"occurred_at"`
}

type Detection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

type InferenceResult struct {
	Detections []Detection `json:"detections"`
}

type ListParams struct {
	Skip  int
	Limit int
}

type EventListParams struct {
	ListParams
	CameraID *int
}

type StatusType string

const (
	StatusIdle    StatusType = "idle"
	StatusSuccess StatusType = "success"
	StatusError   StatusType = "error"
)

// Status is the single console-wide notification: the most recent error or success.
type Status struct {
	Type    StatusType `json:"type"`
	Message string     `json:"message"`
}

// SessionStats is published once by every stream session when it ends.
type SessionStats struct {
	ID        string  `json:"id"`
	Target    string  `json:"target"`
	Payloads  int     `json:"payloads"`
	Malformed int     `json:"malformed"`
	Errors    int     `json:"errors"`
	Uptime    int64   `json:"uptime"`
	FPS       float64 `json:"fps"`
	Reason    string  `json:"reason"`
	Timestamp int64   `json:"timestamp"`
}
