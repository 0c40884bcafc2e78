package pipeline

import (
	"github.com/khaledhikmat/vs-console/model"
	"github.com/khaledhikmat/vs-console/service/auth"
	"github.com/khaledhikmat/vs-console/service/config"
	"github.com/khaledhikmat/vs-console/service/metrics"
	"github.com/khaledhikmat/vs-console/service/resource"
)

// ServicesFactory carries the services shared by sessions, the console and the mode processors.
type ServicesFactory struct {
	CfgSvc      config.IService
	AuthSvc     auth.IService
	ResourceSvc resource.IService
	MetricsSvc  metrics.IService
}

type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Handlers are invoked from the session's dispatcher goroutine, one at a time and in
// receipt order. OnError fires at most once and nothing fires after it.
type Handlers struct {
	OnUpdate func(frame string, detections []model.Detection)
	OnError  func(message string)
}

func (h Handlers) withDefaults() Handlers {
	if h.OnUpdate == nil {
		h.OnUpdate = func(string, []model.Detection) {}
	}
	if h.OnError == nil {
		h.OnError = func(string) {}
	}
	return h
}
