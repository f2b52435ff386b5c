package qrtoken

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Role identifies what kind of account a token was minted for.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
	RoleGuard   Role = "guard"
)

// ParseRole validates a role string against the closed set.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(s)) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleTeacher:
		return RoleTeacher, nil
	case RoleStudent:
		return RoleStudent, nil
	case RoleGuard:
		return RoleGuard, nil
	}
	return "", fmt.Errorf("%w: unknown role %q", ErrInvalidRequest, s)
}

// EventType is the attendance action a token authorizes.
type EventType string

const (
	Entry EventType = "entry"
	Exit  EventType = "exit"
)

// ParseEventType validates an action string against the closed set.
func ParseEventType(s string) (EventType, error) {
	switch EventType(strings.ToLower(s)) {
	case Entry:
		return Entry, nil
	case Exit:
		return Exit, nil
	}
	return "", fmt.Errorf("%w: unknown type %q", ErrInvalidRequest, s)
}

var (
	ErrInvalidRequest   = errors.New("invalid request")
	ErrMalformedToken   = errors.New("malformed token")
	ErrBadSignature     = errors.New("bad signature")
	ErrMalformedPayload = errors.New("malformed payload")
)

// Payload travels inside a signed token. It is never persisted.
type Payload struct {
	UserID    string    `json:"userId"`
	Role      Role      `json:"role"`
	Type      EventType `json:"type"`
	IssuedAt  int64     `json:"iat"` // epoch millis
	ExpiresAt int64     `json:"exp"` // epoch millis
}

// Expired reports whether the payload is past its expiry at the given instant.
func (p Payload) Expired(now time.Time) bool {
	return now.UnixMilli() > p.ExpiresAt
}

// Codec signs and verifies compact tokens with no server-side state.
// Wire format: base64url(JSON payload) + "." + hex(HMAC-SHA256(secret, base64url part)).
type Codec struct {
	secret []byte
}

// NewCodec creates a codec for the given signing secret. Rotating the secret
// invalidates all outstanding tokens.
func NewCodec(secret string) *Codec {
	return &Codec{secret: []byte(secret)}
}

// Sign serializes and signs a payload.
func (c *Codec) Sign(p Payload) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	enc := base64.RawURLEncoding.EncodeToString(raw)
	return enc + "." + c.signature(enc), nil
}

// Verify checks a token's shape and signature and returns its payload.
// It does not check expiry: the codec has no clock, callers enforce exp.
func (c *Codec) Verify(token string) (Payload, error) {
	if token == "" {
		return Payload{}, ErrMalformedToken
	}
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return Payload{}, ErrMalformedToken
	}
	expected := c.signature(parts[0])
	if !hmac.Equal([]byte(expected), []byte(parts[1])) {
		return Payload{}, ErrBadSignature
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return Payload{}, ErrMalformedPayload
	}
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, ErrMalformedPayload
	}
	return p, nil
}

// Signature extracts the signature half of a token without verifying it.
// Used as the key for replay tracking.
func Signature(token string) string {
	if i := strings.LastIndexByte(token, '.'); i >= 0 {
		return token[i+1:]
	}
	return token
}

func (c *Codec) signature(encodedPayload string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(encodedPayload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Issuer mints short-lived tokens. Issuance is pure signing: it never touches
// the attendance ledger.
type Issuer struct {
	codec *Codec
	ttl   time.Duration
	now   func() time.Time
}

// NewIssuer creates an issuer with a fixed time-to-live per token.
func NewIssuer(codec *Codec, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Issuer{codec: codec, ttl: ttl, now: time.Now}
}

// Issue validates the request and returns a signed token plus its payload.
func (i *Issuer) Issue(userID, role, eventType string) (string, Payload, error) {
	if userID == "" {
		return "", Payload{}, fmt.Errorf("%w: userId required", ErrInvalidRequest)
	}
	r, err := ParseRole(role)
	if err != nil {
		return "", Payload{}, err
	}
	t, err := ParseEventType(eventType)
	if err != nil {
		return "", Payload{}, err
	}
	now := i.now()
	p := Payload{
		UserID:    userID,
		Role:      r,
		Type:      t,
		IssuedAt:  now.UnixMilli(),
		ExpiresAt: now.Add(i.ttl).UnixMilli(),
	}
	token, err := i.codec.Sign(p)
	if err != nil {
		return "", Payload{}, err
	}
	return token, p, nil
}

// TTL returns the fixed validity window for issued tokens.
func (i *Issuer) TTL() time.Duration { return i.ttl }
