package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/wbrelay/webrtc-broadcast-relay/internal/config"
)

var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Role is the signaling role a credential grants.
type Role string

const (
	// RoleAny is granted by credentials without a role restriction (API keys,
	// JWTs without a role claim).
	RoleAny       Role = ""
	RolePublisher Role = "publish"
	RoleViewer    Role = "view"
)

// Claims carries metadata extracted from a verified credential.
type Claims struct {
	// Subject is a stable client identity when the credential carries one
	// (the JWT `sub` claim). Empty for API keys.
	Subject string

	// Role restricts what the client may do. RoleAny allows both publishing
	// and viewing; RoleViewer tokens must not publish.
	Role Role
}

// Allows reports whether the claims permit acting as want.
func (c Claims) Allows(want Role) bool {
	return c.Role == RoleAny || c.Role == want
}

type Verifier interface {
	Verify(credential string) (Claims, error)
}

func NewVerifier(cfg config.Config) (Verifier, error) {
	switch cfg.AuthMode {
	case config.AuthModeAPIKey:
		return APIKeyVerifier{Expected: cfg.APIKey}, nil
	case config.AuthModeJWT:
		return NewJWTVerifier(cfg.JWTSecret), nil
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.AuthMode)
	}
}

// CredentialFromRequest extracts the credential for mode from HTTP headers
// (preferred) or the query string (fallback, for browser EventSource/WS
// clients that cannot set headers).
func CredentialFromRequest(mode config.AuthMode, r *http.Request) (string, error) {
	switch mode {
	case config.AuthModeAPIKey:
		if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
			return key, nil
		}
		if key := r.URL.Query().Get("apiKey"); key != "" {
			return key, nil
		}
		return "", ErrMissingCredentials
	case config.AuthModeJWT:
		if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
			scheme, token, found := strings.Cut(h, " ")
			if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
				return "", ErrInvalidCredentials
			}
			return strings.TrimSpace(token), nil
		}
		if token := r.URL.Query().Get("token"); token != "" {
			return token, nil
		}
		return "", ErrMissingCredentials
	default:
		return "", fmt.Errorf("unsupported auth mode %q", mode)
	}
}
