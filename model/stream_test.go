package model

import (
	"testing"

	"go.viam.com/test"
)

func TestStreamParamsQuery(t *testing.T) {
	seven, zero := 7, 0
	url := "rtsp://cam.local/live"

	q := StreamParams{
		StreamTarget:        StreamTarget{CameraID: &seven},
		ConfidenceThreshold: 0.8,
		FPS:                 30,
	}.Query()
	test.That(t, q.Encode(), test.ShouldEqual, "camera_id=7&confidence_threshold=0.8&fps=30")

	q = StreamParams{
		StreamTarget:        StreamTarget{CameraID: &zero, StreamURL: &url},
		ConfidenceThreshold: 0.5,
		FPS:                 10,
	}.Query()
	test.That(t, q.Has("camera_id"), test.ShouldBeFalse)
	test.That(t, q.Get("stream_url"), test.ShouldEqual, url)
}

func TestStreamTargetValidate(t *testing.T) {
	zero, one := 0, 1
	blank, url := "  ", "rtsp://cam.local/live"

	for _, target := range []StreamTarget{
		{},
		{CameraID: &zero},
		{StreamURL: &blank},
		{CameraID: &zero, StreamURL: &blank},
	} {
		err := target.Validate()
		test.That(t, IsValidationError(err), test.ShouldBeTrue)
		test.That(t, err.Error(), test.ShouldEqual, MissingStreamTargetMessage)
	}

	test.That(t, StreamTarget{CameraID: &one}.Validate(), test.ShouldBeNil)
	test.That(t, StreamTarget{CameraID: &zero, StreamURL: &url}.Validate(), test.ShouldBeNil)
	test.That(t, StreamTarget{CameraID: &zero, StreamURL: &url}.String(), test.ShouldEqual, url)
}
