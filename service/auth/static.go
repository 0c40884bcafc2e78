package auth

import (
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-console/model"
	"github.com/khaledhikmat/vs-console/service/config"
)

const expiredTokenMessage = "Session expired, sign in again"

type staticService struct {
	CfgSvc config.IService
	now    func() time.Time
}

// NewStatic serves the access token held in configuration.
func NewStatic(cfgsvc config.IService) IService {
	return &staticService{
		CfgSvc: cfgsvc,
		now:    time.Now,
	}
}

func (svc *staticService) Token() (string, error) {
	token := svc.CfgSvc.GetAuthParameters().AccessToken
	if token == "" {
		return "", nil
	}

	// Opaque tokens are passed through untouched
	claims, ok := svc.claims(token)
	if !ok {
		return token, nil
	}

	exp, err := claims.GetExpirationTime()
	if err == nil && exp != nil && !exp.After(svc.now()) {
		return "", model.NewValidationError(expiredTokenMessage)
	}

	return token, nil
}

func (svc *staticService) Identity() (Identity, error) {
	token := svc.CfgSvc.GetAuthParameters().AccessToken
	if token == "" {
		return Identity{}, model.NewValidationError("No access token configured")
	}

	claims, ok := svc.claims(token)
	if !ok {
		return Identity{}, model.NewValidationError("Access token is not a JWT")
	}

	identity := Identity{}
	identity.Subject, _ = claims.GetSubject()
	if email, ok := claims["email"].(string); ok {
		identity.Email = email
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		identity.ExpiresAt = exp.Time
	}
	return identity, nil
}

func (svc *staticService) AuthorizeURL(state string) (string, error) {
	params := svc.CfgSvc.GetAuthParameters()
	if params.AuthorizationEndpoint == "" || params.ClientID == "" {
		return "", model.NewValidationError("Identity provider is not configured")
	}

	u, err := url.Parse(params.AuthorizationEndpoint)
	if err != nil {
		return "", xerrors.Errorf("parsing authorization endpoint: %w", err)
	}

	q := u.Query()
	q.Set("response_type", "code")
	q.Set("client_id", params.ClientID)
	q.Set("redirect_uri", params.RedirectURI)
	q.Set("scope", strings.Join(params.Scopes, " "))
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (svc *staticService) LogoutURL() (string, error) {
	params := svc.CfgSvc.GetAuthParameters()
	if params.EndSessionEndpoint == "" || params.ClientID == "" {
		return "", model.NewValidationError("Identity provider is not configured")
	}

	u, err := url.Parse(params.EndSessionEndpoint)
	if err != nil {
		return "", xerrors.Errorf("parsing end session endpoint: %w", err)
	}

	q := u.Query()
	q.Set("client_id", params.ClientID)
	q.Set("logout_uri", params.PostLogoutRedirectURI)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (svc *staticService) claims(token string) (jwt.MapClaims, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, false
	}
	return claims, true
}
