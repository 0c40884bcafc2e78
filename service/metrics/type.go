package metrics

import (
	"net/http"

	"github.com/khaledhikmat/vs-console/model"
)

// Payload kinds observed on the live stream.
const (
	PayloadUpdate    = "update"
	PayloadMalformed = "malformed"
	PayloadError     = "error"
)

// Session close reasons.
const (
	ReasonClosed    = "closed"
	ReasonServer    = "server_error"
	ReasonTransport = "transport_error"
)

type IService interface {
	SessionOpened()
	SessionClosed(stats model.SessionStats)
	PayloadReceived(kind string)
	StaleUpdateDropped()
	RefreshIssued(ok bool)
	ResourceCall(operation string, statusCode int, seconds float64)
	Handler() http.Handler
}
