package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

const testSecret = "jwt-test-secret"

func signHS256(t *testing.T, secret string, payload map[string]any) string {
	t.Helper()
	return signHS256Header(t, secret, map[string]any{"alg": "HS256", "typ": "JWT"}, payload)
}

func signHS256Header(t *testing.T, secret string, header, payload map[string]any) string {
	t.Helper()
	headerJSON, err := json.Marshal(header)
	if err != nil {
		t.Fatalf("marshal header: %v", err)
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	h := base64.RawURLEncoding.EncodeToString(headerJSON)
	p := base64.RawURLEncoding.EncodeToString(payloadJSON)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(h + "." + p))
	sig := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	return h + "." + p + "." + sig
}

func verifierAt(now time.Time) JWTVerifier {
	v := NewJWTVerifier(testSecret)
	v.now = func() time.Time { return now }
	return v
}

func TestJWTVerifier_ValidToken(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	token := signHS256(t, testSecret, map[string]any{
		"exp":  now.Unix() + 60,
		"iat":  now.Unix() - 10,
		"sub":  "client-7",
		"role": "publish",
	})

	claims, err := verifierAt(now).Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != "client-7" {
		t.Fatalf("Subject=%q, want client-7", claims.Subject)
	}
	if claims.Role != RolePublisher {
		t.Fatalf("Role=%q, want %q", claims.Role, RolePublisher)
	}
	if !claims.Allows(RolePublisher) {
		t.Fatal("publish token should allow publishing")
	}
	if claims.Allows(RoleViewer) {
		t.Fatal("publish token should not allow viewing role")
	}
}

func TestJWTVerifier_NoRoleAllowsBoth(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	token := signHS256(t, testSecret, map[string]any{
		"exp": now.Unix() + 60,
		"iat": now.Unix(),
	})

	claims, err := verifierAt(now).Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !claims.Allows(RolePublisher) || !claims.Allows(RoleViewer) {
		t.Fatalf("role-less token should allow both roles, got %+v", claims)
	}
}

func TestJWTVerifier_Rejections(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	base := map[string]any{"exp": now.Unix() + 60, "iat": now.Unix()}

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{
			name:    "expired",
			token:   signHS256(t, testSecret, map[string]any{"exp": now.Unix() - 1, "iat": now.Unix() - 60}),
			wantErr: ErrInvalidCredentials,
		},
		{
			name:    "missing exp",
			token:   signHS256(t, testSecret, map[string]any{"iat": now.Unix()}),
			wantErr: ErrInvalidCredentials,
		},
		{
			name:    "missing iat",
			token:   signHS256(t, testSecret, map[string]any{"exp": now.Unix() + 60}),
			wantErr: ErrInvalidCredentials,
		},
		{
			name:    "not yet valid",
			token:   signHS256(t, testSecret, map[string]any{"exp": now.Unix() + 60, "iat": now.Unix(), "nbf": now.Unix() + 30}),
			wantErr: ErrInvalidCredentials,
		},
		{
			name:    "wrong secret",
			token:   signHS256(t, "other-secret", base),
			wantErr: ErrInvalidCredentials,
		},
		{
			name:    "alg none",
			token:   signHS256Header(t, testSecret, map[string]any{"alg": "none"}, base),
			wantErr: ErrUnsupportedJWT,
		},
		{
			name:    "bad role",
			token:   signHS256(t, testSecret, map[string]any{"exp": now.Unix() + 60, "iat": now.Unix(), "role": "admin"}),
			wantErr: ErrInvalidCredentials,
		},
		{
			name:    "not a jwt",
			token:   "definitely-not-a-jwt",
			wantErr: ErrInvalidCredentials,
		},
		{
			name:    "oversized",
			token:   strings.Repeat("a", maxJWTLen+1),
			wantErr: ErrInvalidCredentials,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := verifierAt(now).Verify(tc.token)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("Verify err=%v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestJWTVerifier_TrailingPayloadData(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	// Two concatenated JSON objects in the payload must be rejected.
	payload := []byte(`{"exp":` + jsonInt(now.Unix()+60) + `,"iat":` + jsonInt(now.Unix()) + `}{}`)
	h := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256"}`))
	p := base64.RawURLEncoding.EncodeToString(payload)
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(h + "." + p))
	token := h + "." + p + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))

	if _, err := verifierAt(now).Verify(token); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("Verify err=%v, want %v", err, ErrInvalidCredentials)
	}
}

func jsonInt(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
