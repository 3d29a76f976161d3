package auth

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/wbrelay/webrtc-broadcast-relay/internal/config"
)

func TestAPIKeyVerifier(t *testing.T) {
	v := APIKeyVerifier{Expected: "sekrit"}

	claims, err := v.Verify("sekrit")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !claims.Allows(RolePublisher) || !claims.Allows(RoleViewer) {
		t.Fatalf("api key claims should allow both roles, got %+v", claims)
	}

	if _, err := v.Verify("wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("Verify(wrong) err=%v, want %v", err, ErrInvalidCredentials)
	}
	if _, err := v.Verify(""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("Verify(empty) err=%v, want %v", err, ErrInvalidCredentials)
	}
	if _, err := (APIKeyVerifier{}).Verify("sekrit"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("Verify with unset expected key err=%v, want %v", err, ErrInvalidCredentials)
	}
}

func TestCredentialFromRequest_APIKey(t *testing.T) {
	r := httptest.NewRequest("POST", "/offer", nil)
	r.Header.Set("X-API-Key", "header-key")
	cred, err := CredentialFromRequest(config.AuthModeAPIKey, r)
	if err != nil || cred != "header-key" {
		t.Fatalf("header credential=(%q, %v), want (header-key, nil)", cred, err)
	}

	r = httptest.NewRequest("POST", "/offer?apiKey=query-key", nil)
	cred, err = CredentialFromRequest(config.AuthModeAPIKey, r)
	if err != nil || cred != "query-key" {
		t.Fatalf("query credential=(%q, %v), want (query-key, nil)", cred, err)
	}

	r = httptest.NewRequest("POST", "/offer", nil)
	if _, err := CredentialFromRequest(config.AuthModeAPIKey, r); !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("missing credential err=%v, want %v", err, ErrMissingCredentials)
	}
}

func TestCredentialFromRequest_JWT(t *testing.T) {
	r := httptest.NewRequest("POST", "/offer", nil)
	r.Header.Set("Authorization", "Bearer tok123")
	cred, err := CredentialFromRequest(config.AuthModeJWT, r)
	if err != nil || cred != "tok123" {
		t.Fatalf("bearer credential=(%q, %v), want (tok123, nil)", cred, err)
	}

	r = httptest.NewRequest("POST", "/offer", nil)
	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	if _, err := CredentialFromRequest(config.AuthModeJWT, r); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("non-bearer scheme err=%v, want %v", err, ErrInvalidCredentials)
	}

	r = httptest.NewRequest("POST", "/offer?token=qtok", nil)
	cred, err = CredentialFromRequest(config.AuthModeJWT, r)
	if err != nil || cred != "qtok" {
		t.Fatalf("query token=(%q, %v), want (qtok, nil)", cred, err)
	}
}
