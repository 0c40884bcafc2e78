package model

import (
	"encoding/base64"
	"net/url"
	"strconv"
	"strings"
)

const MissingStreamTargetMessage = "Provide a camera or stream URL"

// StreamTarget names the source of a one-shot stream inference.
type StreamTarget struct {
	CameraID  *int    `json:"camera_id"`
	StreamURL *string `json:"stream_url"`
}

// HasCamera reports whether a camera is named. Camera ids start at 1, so 0 counts
// as no camera.
func (t StreamTarget) HasCamera() bool {
	return t.CameraID != nil && *t.CameraID != 0
}

func (t StreamTarget) Validate() error {
	if !t.HasCamera() && (t.StreamURL == nil || strings.TrimSpace(*t.StreamURL) == "") {
		return NewValidationError(MissingStreamTargetMessage)
	}
	return nil
}

func (t StreamTarget) String() string {
	if t.HasCamera() {
		return "camera #" + strconv.Itoa(*t.CameraID)
	}
	if t.StreamURL != nil {
		return *t.StreamURL
	}
	return "-"
}

// StreamParams are the connection parameters of a live stream session.
// They are treated as immutable once a session is opened.
type StreamParams struct {
	StreamTarget
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	FPS                 int     `json:"fps"`
}

// Query encodes the params for the live stream endpoint. Absent targets are omitted.
func (p StreamParams) Query() url.Values {
	q := url.Values{}
	if p.HasCamera() {
		q.Set("camera_id", strconv.Itoa(*p.CameraID))
	}
	if p.StreamURL != nil && *p.StreamURL != "" {
		q.Set("stream_url", *p.StreamURL)
	}
	q.Set("confidence_threshold", strconv.FormatFloat(p.ConfidenceThreshold, 'f', -1, 64))
	q.Set("fps", strconv.Itoa(p.FPS))
	return q
}

// LiveState is what the live panel currently shows.
type LiveState struct {
	Active     bool        `json:"active"`
	Frame      string      `json:"frame,omitempty"`
	Detections []Detection `json:"detections"`
}

func InactiveLiveState() LiveState {
	return LiveState{Detections: []Detection{}}
}

func (s LiveState) HasFrame() bool {
	return s.Frame != ""
}

// FrameBytes decodes the base64 frame. A data URI prefix is tolerated.
func (s LiveState) FrameBytes() ([]byte, error) {
	frame := s.Frame
	if i := strings.Index(frame, ";base64,"); i >= 0 && strings.HasPrefix(frame, "data:") {
		frame = frame[i+len(";base64,"):]
	}
	return base64.StdEncoding.DecodeString(frame)
}

func (s LiveState) Clone() LiveState {
	c := s
	c.Detections = append([]Detection{}, s.Detections...)
	return c
}
