package token

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the signature algorithm of a [Codec].
type SigningMethod string

const (
	// MethodHS256 signs with a shared HMAC-SHA256 secret.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 signs with an Ed25519 private key.
	MethodEd25519 SigningMethod = "ed25519"
)

// MinSecretLength is the smallest accepted HS256 secret, in bytes.
const MinSecretLength = 32

// MaxClockSkew bounds Config.ClockSkew.
const MaxClockSkew = 5 * time.Minute

var (
	// ErrMalformed is returned for tokens that are not a well-formed envelope.
	ErrMalformed = errors.New("token: malformed")
	// ErrSignatureInvalid is returned when no configured key verifies the signature.
	ErrSignatureInvalid = errors.New("token: signature invalid")
	// ErrWrongType is returned when the envelope type differs from the expected one.
	ErrWrongType = errors.New("token: wrong type")
	// ErrExpired is returned when the envelope is past its expiry.
	ErrExpired = errors.New("token: expired")
	// ErrInvalidConfig is returned by NewCodec and Encode for unusable settings.
	ErrInvalidConfig = errors.New("token: invalid configuration")
)

// Config holds the realm-scoped signing material of a [Codec].
//
// For HS256, PrivateKey is the shared secret. VerifyKeys holds additional keys
// accepted during verification (previous secrets, or Ed25519 public keys of
// rotated signers), indexed by kid.
type Config struct {
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	KeyID         string
	VerifyKeys    map[string][]byte

	// ClockSkew is subtracted from the current time before the expiry check.
	ClockSkew time.Duration
	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

// Codec signs and verifies envelopes. A Codec is immutable after NewCodec and
// safe for concurrent use.
type Codec struct {
	method     jwt.SigningMethod
	signKey    interface{}
	verifyKeys []interface{}
	keyID      string
	skew       time.Duration
	now        func() time.Time
	parser     *jwt.Parser
}

// NewCodec validates cfg and returns a ready codec.
func NewCodec(cfg Config) (*Codec, error) {
	if cfg.ClockSkew < 0 || cfg.ClockSkew > MaxClockSkew {
		return nil, fmt.Errorf("%w: clock skew must be within [0, %s]", ErrInvalidConfig, MaxClockSkew)
	}
	c := &Codec{
		keyID: strings.TrimSpace(cfg.KeyID),
		skew:  cfg.ClockSkew,
		now:   cfg.Now,
	}
	if c.now == nil {
		c.now = time.Now
	}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < MinSecretLength {
			return nil, fmt.Errorf("%w: hs256 secret must be at least %d bytes", ErrInvalidConfig, MinSecretLength)
		}
		c.method = jwt.SigningMethodHS256
		c.signKey = cfg.PrivateKey
		c.verifyKeys = append(c.verifyKeys, cfg.PrivateKey)
	case MethodEd25519:
		c.method = jwt.SigningMethodEdDSA
		if len(cfg.PrivateKey) > 0 {
			priv, err := parseEdPrivateKey(cfg.PrivateKey)
			if err != nil {
				return nil, err
			}
			c.signKey = priv
			if len(cfg.PublicKey) == 0 {
				c.verifyKeys = append(c.verifyKeys, priv.Public())
			}
		}
		if len(cfg.PublicKey) > 0 {
			pub, err := parseEdPublicKey(cfg.PublicKey)
			if err != nil {
				return nil, err
			}
			c.verifyKeys = append(c.verifyKeys, pub)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported signing method %q", ErrInvalidConfig, cfg.SigningMethod)
	}

	kids := make([]string, 0, len(cfg.VerifyKeys))
	for kid := range cfg.VerifyKeys {
		if strings.TrimSpace(kid) == "" {
			return nil, fmt.Errorf("%w: verify key map contains empty kid", ErrInvalidConfig)
		}
		kids = append(kids, kid)
	}
	sort.Strings(kids)
	for _, kid := range kids {
		key, err := c.verifyKeyFromBytes(cfg.VerifyKeys[kid])
		if err != nil {
			return nil, fmt.Errorf("%w: verify key %q: %v", ErrInvalidConfig, kid, err)
		}
		c.verifyKeys = append(c.verifyKeys, key)
	}
	if len(c.verifyKeys) == 0 {
		return nil, fmt.Errorf("%w: no verification key configured", ErrInvalidConfig)
	}

	c.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithStrictDecoding(),
		jwt.WithoutClaimsValidation(),
	)
	return c, nil
}

// CanSign reports whether the codec holds a signing key.
func (c *Codec) CanSign() bool {
	return c != nil && c.signKey != nil
}

// Algorithm returns the JWS alg header value the codec emits.
func (c *Codec) Algorithm() string {
	return c.method.Alg()
}

// ClockSkew returns the configured expiry tolerance.
func (c *Codec) ClockSkew() time.Duration {
	return c.skew
}

// Now returns the codec clock reading.
func (c *Codec) Now() time.Time {
	return c.now()
}

func (c *Codec) sign(claims jwt.Claims) (string, error) {
	if c.signKey == nil {
		return "", fmt.Errorf("%w: codec has no signing key", ErrInvalidConfig)
	}
	tok := jwt.NewWithClaims(c.method, claims)
	if c.keyID != "" {
		tok.Header["kid"] = c.keyID
	}
	return tok.SignedString(c.signKey)
}

// verify checks the signature over the raw signing input and returns the
// segments. Claims are not inspected. Input without any separator is not a
// token at all; dotted input with the wrong segment layout cannot carry a
// signature we made and fails as unverified.
func (c *Codec) verify(raw string) ([]string, error) {
	if !strings.Contains(raw, ".") {
		return nil, ErrMalformed
	}
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil, ErrSignatureInvalid
	}
	for _, p := range parts {
		if p == "" {
			return nil, ErrSignatureInvalid
		}
	}
	sig, err := c.parser.DecodeSegment(parts[2])
	if err != nil {
		return nil, ErrSignatureInvalid
	}
	signingInput := parts[0] + "." + parts[1]
	for _, key := range c.verifyKeys {
		if c.method.Verify(signingInput, sig, key) == nil {
			return parts, nil
		}
	}
	return nil, ErrSignatureInvalid
}

func (c *Codec) verifyKeyFromBytes(key []byte) (interface{}, error) {
	if c.method == jwt.SigningMethodHS256 {
		if len(key) < MinSecretLength {
			return nil, errors.New("secret too short")
		}
		return key, nil
	}
	return parseEdPublicKey(key)
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid ed25519 private key", ErrInvalidConfig)
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: invalid ed25519 private key type", ErrInvalidConfig)
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid ed25519 public key", ErrInvalidConfig)
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: invalid ed25519 public key type", ErrInvalidConfig)
	}
	return edKey, nil
}
