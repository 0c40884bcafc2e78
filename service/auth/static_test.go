package auth

import (
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.viam.com/test"

	"github.com/khaledhikmat/vs-console/model"
	"github.com/khaledhikmat/vs-console/service/config"
)

type authConfig struct {
	config.IService
	params config.AuthParameters
}

func (c authConfig) GetAuthParameters() config.AuthParameters {
	return c.params
}

func newService(params config.AuthParameters) *staticService {
	svc := NewStatic(authConfig{IService: config.NewHardCoded(), params: params}).(*staticService)
	svc.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	return svc
}

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	test.That(t, err, test.ShouldBeNil)
	return token
}

func TestTokenEmptyMeansNoAuth(t *testing.T) {
	token, err := newService(config.AuthParameters{}).Token()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, token, test.ShouldEqual, "")
}

func TestTokenOpaquePassesThrough(t *testing.T) {
	token, err := newService(config.AuthParameters{AccessToken: "opaque"}).Token()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, token, test.ShouldEqual, "opaque")
}

func TestTokenExpiredFailsPreflight(t *testing.T) {
	expired := signed(t, jwt.MapClaims{
		"sub": "operator",
		"exp": time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC).Unix(),
	})

	_, err := newService(config.AuthParameters{AccessToken: expired}).Token()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, model.IsValidationError(err), test.ShouldBeTrue)
}

func TestIdentity(t *testing.T) {
	exp := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	token := signed(t, jwt.MapClaims{
		"sub":   "operator",
		"email": "ops@example.com",
		"exp":   exp.Unix(),
	})

	svc := newService(config.AuthParameters{AccessToken: token})
	got, err := svc.Token()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldEqual, token)

	identity, err := svc.Identity()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, identity.Subject, test.ShouldEqual, "operator")
	test.That(t, identity.Email, test.ShouldEqual, "ops@example.com")
	test.That(t, identity.ExpiresAt.Equal(exp), test.ShouldBeTrue)
}

func TestAuthorizeURL(t *testing.T) {
	svc := newService(config.AuthParameters{
		ClientID:              "client-1",
		AuthorizationEndpoint: "https://idp.example.com/oauth2/authorize",
		RedirectURI:           "http://localhost:3000/",
		Scopes:                []string{"email", "openid", "phone"},
	})

	raw, err := svc.AuthorizeURL("state-1")
	test.That(t, err, test.ShouldBeNil)

	u, err := url.Parse(raw)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, u.Host, test.ShouldEqual, "idp.example.com")
	q := u.Query()
	test.That(t, q.Get("response_type"), test.ShouldEqual, "code")
	test.That(t, q.Get("client_id"), test.ShouldEqual, "client-1")
	test.That(t, q.Get("redirect_uri"), test.ShouldEqual, "http://localhost:3000/")
	test.That(t, q.Get("scope"), test.ShouldEqual, "email openid phone")
	test.That(t, q.Get("state"), test.ShouldEqual, "state-1")
}

func TestURLsRequireProvider(t *testing.T) {
	svc := newService(config.AuthParameters{})

	_, err := svc.AuthorizeURL("")
	test.That(t, model.IsValidationError(err), test.ShouldBeTrue)

	_, err = svc.LogoutURL()
	test.That(t, model.IsValidationError(err), test.ShouldBeTrue)
}
