package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Envelope is the signed claim set shared by every action token. P is the
// action-specific payload, carried under the "dat" claim.
type Envelope[P any] struct {
	Type      string `json:"typ"`
	Nonce     string `json:"nonce"`
	IssuedFor string `json:"azp,omitempty"`
	Data      P      `json:"dat"`
	jwt.RegisteredClaims
}

// Raw is an envelope whose payload is left undecoded. It is what a dispatcher
// reads before it knows the action type.
type Raw = Envelope[json.RawMessage]

// Encode validates env and signs it with c.
func Encode[P any](c *Codec, env *Envelope[P]) (string, error) {
	if c == nil || env == nil {
		return "", fmt.Errorf("%w: nil codec or envelope", ErrInvalidConfig)
	}
	switch {
	case env.Type == "":
		return "", fmt.Errorf("%w: envelope type is required", ErrInvalidConfig)
	case env.ID == "":
		return "", fmt.Errorf("%w: envelope id is required", ErrInvalidConfig)
	case env.Nonce == "":
		return "", fmt.Errorf("%w: envelope nonce is required", ErrInvalidConfig)
	case env.ExpiresAt == nil || env.IssuedAt == nil:
		return "", fmt.Errorf("%w: envelope iat and exp are required", ErrInvalidConfig)
	case !env.ExpiresAt.After(env.IssuedAt.Time):
		return "", fmt.Errorf("%w: envelope exp must be after iat", ErrInvalidConfig)
	}
	return c.sign(env)
}

// Decode verifies raw and returns its envelope. wantType == "" accepts any type.
//
// Errors are checked in order: ErrMalformed for input with no separator,
// ErrSignatureInvalid for any other segment layout or an unverified signature,
// ErrMalformed for undecodable claims, ErrWrongType, then ErrExpired.
func Decode[P any](c *Codec, raw string, wantType string) (*Envelope[P], error) {
	if c == nil {
		return nil, fmt.Errorf("%w: nil codec", ErrInvalidConfig)
	}
	if _, err := c.verify(raw); err != nil {
		return nil, err
	}

	env := new(Envelope[P])
	tok, _, err := c.parser.ParseUnverified(raw, env)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if tok.Method == nil || tok.Method.Alg() != c.method.Alg() {
		return nil, ErrMalformed
	}
	if env.Type == "" || env.ID == "" || env.Nonce == "" {
		return nil, ErrMalformed
	}
	if wantType != "" && env.Type != wantType {
		return nil, ErrWrongType
	}
	if env.ExpiresAt == nil {
		return nil, ErrMalformed
	}
	if c.now().Add(-c.skew).After(env.ExpiresAt.Time) {
		return nil, ErrExpired
	}
	return env, nil
}

// DecodePayload re-reads the payload of a dispatched envelope as P.
func DecodePayload[P any](env *Raw) (*Envelope[P], error) {
	if env == nil {
		return nil, ErrMalformed
	}
	out := &Envelope[P]{
		Type:             env.Type,
		Nonce:            env.Nonce,
		IssuedFor:        env.IssuedFor,
		RegisteredClaims: env.RegisteredClaims,
	}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &out.Data); err != nil {
			return nil, fmt.Errorf("%w: payload: %v", ErrMalformed, err)
		}
	}
	return out, nil
}

// Expiry returns the envelope expiry, or the zero time when unset.
func (e *Envelope[P]) Expiry() time.Time {
	if e == nil || e.ExpiresAt == nil {
		return time.Time{}
	}
	return e.ExpiresAt.Time
}

// IsDecodeError reports whether err came from envelope verification.
func IsDecodeError(err error) bool {
	return errors.Is(err, ErrMalformed) ||
		errors.Is(err, ErrSignatureInvalid) ||
		errors.Is(err, ErrWrongType) ||
		errors.Is(err, ErrExpired)
}
