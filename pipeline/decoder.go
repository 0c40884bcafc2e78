package pipeline

import (
	"encoding/json"

	"github.com/khaledhikmat/vs-console/model"
	"github.com/khaledhikmat/vs-console/service/metrics"
)

type payload struct {
	Kind       string
	Frame      string
	Detections []model.Detection
	Message    string
	Reason     string
}

type wirePayload struct {
	Frame      *string           `json:"frame"`
	Detections []model.Detection `json:"detections"`
	Error      *string           `json:"error"`
}

// decodePayload classifies one event body. A non-empty error string is terminal and
// wins over any frame in the same body. A frame string makes an update, with absent
// detections meaning none. Anything else is malformed.
func decodePayload(data []byte) (payload, error) {
	var wire wirePayload
	if err := json.Unmarshal(data, &wire); err != nil {
		return payload{Kind: metrics.PayloadMalformed}, err
	}

	if wire.Error != nil && *wire.Error != "" {
		return payload{
			Kind:    metrics.PayloadError,
			Message: *wire.Error,
			Reason:  metrics.ReasonServer,
		}, nil
	}

	if wire.Frame == nil {
		return payload{Kind: metrics.PayloadMalformed}, errMissingFrame
	}

	detections := wire.Detections
	if detections == nil {
		detections = []model.Detection{}
	}
	return payload{
		Kind:       metrics.PayloadUpdate,
		Frame:      *wire.Frame,
		Detections: detections,
	}, nil
}
