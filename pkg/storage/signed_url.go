package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignedURLSigner mints and checks HMAC download tokens. A token embeds the
// owning resource ID, the stored file path and an expiry, so downloads need
// no session and the server keeps no token state.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
}

func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SignedURLSigner{secret: []byte(secret), ttl: ttl}
}

func (s *SignedURLSigner) sign(payload string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// Generate issues a token for the given resource and stored path.
func (s *SignedURLSigner) Generate(resourceID, relPath string) (string, time.Time, error) {
	if resourceID == "" || relPath == "" {
		return "", time.Time{}, fmt.Errorf("signer: resource and path required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signer: secret not configured")
	}

	expiresAt := time.Now().Add(s.ttl)
	payload := strings.Join([]string{
		resourceID,
		strconv.FormatInt(expiresAt.Unix(), 10),
		base64.RawURLEncoding.EncodeToString([]byte(relPath)),
	}, ".")

	return payload + "." + s.sign(payload), expiresAt, nil
}

// Parse checks the signature and expiry and returns the embedded fields.
// allowExpired skips the expiry check, which the cleanup path needs to map
// stale tokens back to files.
func (s *SignedURLSigner) Parse(token string, allowExpired bool) (resourceID, relPath string, expiresAt time.Time, err error) {
	idx := strings.LastIndex(token, ".")
	if idx < 0 {
		return "", "", time.Time{}, fmt.Errorf("signer: malformed token")
	}
	payload, signature := token[:idx], token[idx+1:]
	if !hmac.Equal([]byte(s.sign(payload)), []byte(signature)) {
		return "", "", time.Time{}, fmt.Errorf("signer: bad signature")
	}

	parts := strings.Split(payload, ".")
	if len(parts) != 3 {
		return "", "", time.Time{}, fmt.Errorf("signer: malformed token")
	}
	unix, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("signer: bad expiry")
	}
	rawPath, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("signer: bad path encoding")
	}

	expiresAt = time.Unix(unix, 0)
	if !allowExpired && time.Now().After(expiresAt) {
		return "", "", time.Time{}, fmt.Errorf("signer: token expired")
	}
	return parts[0], string(rawPath), expiresAt, nil
}
