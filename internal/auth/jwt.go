package auth

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

var ErrUnsupportedJWT = errors.New("unsupported jwt")

const (
	// HMAC-SHA256 output size in bytes, and its base64url-no-pad length.
	hmacSHA256SigLen    = 32
	hmacSHA256SigB64Len = 43

	maxJWTHeaderB64Len  = 4 * 1024
	maxJWTPayloadB64Len = 16 * 1024
	maxJWTLen           = maxJWTHeaderB64Len + 1 + maxJWTPayloadB64Len + 1 + hmacSHA256SigB64Len
)

// JWTVerifier verifies HS256 JWTs minted by the deployment's token service.
//
// Accepted claims:
//   - exp (required): unix expiry, token rejected at/after it.
//   - iat (required): unix issue time.
//   - nbf (optional): token rejected before it.
//   - sub (optional): stable client identity, surfaced as Claims.Subject.
//   - role (optional): "publish" or "view"; absent means both are allowed.
type JWTVerifier struct {
	secret []byte
	now    func() time.Time
}

func NewJWTVerifier(secret string) JWTVerifier {
	return JWTVerifier{
		secret: []byte(secret),
		now:    time.Now,
	}
}

func (v JWTVerifier) Verify(token string) (Claims, error) {
	headerB64, payloadB64, sigB64, ok := splitJWTParts(token)
	if !ok {
		return Claims{}, ErrInvalidCredentials
	}

	headerJSON, err := base64.RawURLEncoding.DecodeString(headerB64)
	if err != nil {
		return Claims{}, ErrInvalidCredentials
	}
	var header struct {
		Alg string `json:"alg"`
		Typ string `json:"typ"`
	}
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return Claims{}, ErrInvalidCredentials
	}
	if header.Alg != "HS256" {
		// Never fall back to another algorithm the attacker picks.
		return Claims{}, ErrUnsupportedJWT
	}

	gotSig, err := base64.RawURLEncoding.DecodeString(sigB64)
	if err != nil || len(gotSig) != hmacSHA256SigLen {
		return Claims{}, ErrInvalidCredentials
	}
	mac := hmac.New(sha256.New, v.secret)
	_, _ = mac.Write([]byte(headerB64))
	_, _ = mac.Write([]byte{'.'})
	_, _ = mac.Write([]byte(payloadB64))
	if !hmac.Equal(gotSig, mac.Sum(nil)) {
		return Claims{}, ErrInvalidCredentials
	}

	payloadJSON, err := base64.RawURLEncoding.DecodeString(payloadB64)
	if err != nil {
		return Claims{}, ErrInvalidCredentials
	}

	dec := json.NewDecoder(bytes.NewReader(payloadJSON))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return Claims{}, ErrInvalidCredentials
	}
	// json.Decoder tolerates trailing bytes after the first top-level value;
	// require the payload to be exactly one JSON object.
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return Claims{}, ErrInvalidCredentials
	}

	now := v.now().Unix()

	exp, err := requiredUnixClaim(payload, "exp")
	if err != nil {
		return Claims{}, err
	}
	if now >= exp {
		return Claims{}, ErrInvalidCredentials
	}
	if _, err := requiredUnixClaim(payload, "iat"); err != nil {
		return Claims{}, err
	}
	if nbfRaw, ok := payload["nbf"]; ok {
		nbf, err := parseUnixTimestamp(nbfRaw)
		if err != nil {
			return Claims{}, ErrInvalidCredentials
		}
		if now < nbf {
			return Claims{}, ErrInvalidCredentials
		}
	}

	claims := Claims{}
	if subRaw, ok := payload["sub"]; ok {
		sub, ok := subRaw.(string)
		if !ok || sub == "" {
			return Claims{}, ErrInvalidCredentials
		}
		claims.Subject = sub
	}
	if roleRaw, ok := payload["role"]; ok {
		role, ok := roleRaw.(string)
		if !ok {
			return Claims{}, ErrInvalidCredentials
		}
		switch Role(role) {
		case RolePublisher, RoleViewer:
			claims.Role = Role(role)
		default:
			return Claims{}, ErrInvalidCredentials
		}
	}
	return claims, nil
}

func requiredUnixClaim(payload map[string]any, key string) (int64, error) {
	raw, ok := payload[key]
	if !ok {
		return 0, ErrInvalidCredentials
	}
	n, err := parseUnixTimestamp(raw)
	if err != nil {
		return 0, ErrInvalidCredentials
	}
	return n, nil
}

func parseUnixTimestamp(raw any) (int64, error) {
	num, ok := raw.(json.Number)
	if !ok {
		return 0, fmt.Errorf("timestamp claim is not a number")
	}
	n, err := num.Int64()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative timestamp")
	}
	return n, nil
}

func splitJWTParts(token string) (headerB64, payloadB64, sigB64 string, ok bool) {
	if token == "" || len(token) > maxJWTLen {
		return "", "", "", false
	}
	headerB64, rest, found := strings.Cut(token, ".")
	if !found {
		return "", "", "", false
	}
	payloadB64, sigB64, found = strings.Cut(rest, ".")
	if !found || strings.Contains(sigB64, ".") {
		return "", "", "", false
	}
	if headerB64 == "" || payloadB64 == "" {
		return "", "", "", false
	}
	if len(headerB64) > maxJWTHeaderB64Len || len(payloadB64) > maxJWTPayloadB64Len {
		return "", "", "", false
	}
	if len(sigB64) != hmacSHA256SigB64Len {
		return "", "", "", false
	}
	return headerB64, payloadB64, sigB64, true
}
