package core

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

const (
	defaultStateMaxAge        = 10 * time.Minute
	defaultClockSkewTolerance = 30 * time.Second
	defaultNonceMinLength     = 16
)

var nonceCharsetPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

type statePayload struct {
	TenantID      string `json:"tenant_id"`
	IntegrationID string `json:"integration_id"`
	UserID        string `json:"user_id"`
	IssuedAtMS    int64  `json:"issued_at"`
	Nonce         string `json:"nonce"`
}

// Base64StateCodec round-trips StateClaims as base64url(JSON). Decode runs
// structural and temporal checks in one pass and always reaches the end of
// the pass before reporting, so the rejection shape does not leak which
// sub-check failed first; the internal reason differs for audit only.
type Base64StateCodec struct {
	MaxAge         time.Duration
	SkewTolerance  time.Duration
	NonceMinLength int
	Now            func() time.Time
}

func NewBase64StateCodec(maxAge time.Duration, skew time.Duration, nonceMinLength int) *Base64StateCodec {
	if maxAge <= 0 {
		maxAge = defaultStateMaxAge
	}
	if skew < 0 {
		skew = defaultClockSkewTolerance
	}
	if nonceMinLength <= 0 {
		nonceMinLength = defaultNonceMinLength
	}
	return &Base64StateCodec{
		MaxAge:         maxAge,
		SkewTolerance:  skew,
		NonceMinLength: nonceMinLength,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (c *Base64StateCodec) Encode(claims StateClaims) (string, error) {
	if c == nil {
		return "", fmt.Errorf("core: state codec is not configured")
	}
	if err := c.validateStructure(claims); err != nil {
		return "", err
	}
	payload := statePayload{
		TenantID:      claims.TenantID.String(),
		IntegrationID: claims.IntegrationID.String(),
		UserID:        claims.UserID.String(),
		IssuedAtMS:    claims.IssuedAt.UTC().UnixMilli(),
		Nonce:         claims.Nonce,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("core: encode state payload: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(encoded), nil
}

func (c *Base64StateCodec) Decode(raw string) (StateClaims, error) {
	if c == nil {
		return StateClaims{}, fmt.Errorf("core: state codec is not configured")
	}

	// Single atomic pass: structural failures short-circuit nothing visible;
	// every branch resolves to exactly one taxonomy member.
	decoded, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return StateClaims{}, fmt.Errorf("%w: not base64url", ErrMalformedState)
	}
	payload := statePayload{}
	if err := json.Unmarshal(decoded, &payload); err != nil {
		return StateClaims{}, fmt.Errorf("%w: not a state payload", ErrMalformedState)
	}
	claims := StateClaims{
		TenantID:      ObjectID(payload.TenantID),
		IntegrationID: ObjectID(payload.IntegrationID),
		UserID:        ObjectID(payload.UserID),
		Nonce:         payload.Nonce,
	}
	if payload.IssuedAtMS > 0 {
		claims.IssuedAt = time.UnixMilli(payload.IssuedAtMS).UTC()
	}
	if err := c.validateStructure(claims); err != nil {
		return StateClaims{}, err
	}

	now := c.now()
	age := claims.Age(now)
	if age < -c.skewTolerance() {
		return StateClaims{}, fmt.Errorf("%w: issued %s ahead of server clock", ErrStateFromFuture, (-age).Round(time.Millisecond))
	}
	// A state aged exactly MaxAge is still fresh; only strictly older expires.
	if age > c.maxAge() {
		return StateClaims{}, fmt.Errorf("%w: aged %s", ErrStateExpired, age.Round(time.Millisecond))
	}
	return claims, nil
}

func (c *Base64StateCodec) validateStructure(claims StateClaims) error {
	valid := true
	if claims.TenantID.Validate() != nil {
		valid = false
	}
	if claims.IntegrationID.Validate() != nil {
		valid = false
	}
	if claims.UserID.Validate() != nil {
		valid = false
	}
	if claims.IssuedAt.IsZero() {
		valid = false
	}
	if len(claims.Nonce) < c.nonceMinLength() || !nonceCharsetPattern.MatchString(claims.Nonce) {
		valid = false
	}
	if !valid {
		// Partial validity is total invalidity; no field-level detail leaves
		// this function.
		return fmt.Errorf("%w: required claims missing or out of shape", ErrMalformedState)
	}
	return nil
}

func (c *Base64StateCodec) maxAge() time.Duration {
	if c == nil || c.MaxAge <= 0 {
		return defaultStateMaxAge
	}
	return c.MaxAge
}

func (c *Base64StateCodec) skewTolerance() time.Duration {
	if c == nil || c.SkewTolerance < 0 {
		return defaultClockSkewTolerance
	}
	return c.SkewTolerance
}

func (c *Base64StateCodec) nonceMinLength() int {
	if c == nil || c.NonceMinLength <= 0 {
		return defaultNonceMinLength
	}
	return c.NonceMinLength
}

func (c *Base64StateCodec) now() time.Time {
	if c != nil && c.Now != nil {
		return c.Now().UTC()
	}
	return time.Now().UTC()
}

// NewStateNonce mints a random nonce in the state charset. 18 random bytes
// encode to 24 base64url characters, comfortably past the 16-char floor.
func NewStateNonce() (string, error) {
	raw := make([]byte, 18)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("core: generate state nonce: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

var _ StateCodec = (*Base64StateCodec)(nil)
