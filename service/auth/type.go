package auth

import "time"

// Identity is what the console can tell about the bearer token without verifying it.
// Verification is the backend's job.
type Identity struct {
	Subject   string    `json:"sub"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"exp"`
}

type IService interface {
	// Token returns the bearer token to attach to backend calls. An empty token
	// means the backend runs without authentication.
	Token() (string, error)
	Identity() (Identity, error)
	AuthorizeURL(state string) (string, error)
	LogoutURL() (string, error)
}
