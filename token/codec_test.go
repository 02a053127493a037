package token

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

type linkPayload struct {
	RedirectURI string            `json:"rdu,omitempty"`
	RememberMe  bool              `json:"rme,omitempty"`
	Notes       map[string]string `json:"cno,omitempty"`
}

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func newHSCodec(t *testing.T, clock *fakeClock) *Codec {
	t.Helper()
	c, err := NewCodec(Config{SigningMethod: MethodHS256, PrivateKey: testSecret, Now: clock.Now})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	return c
}

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func sampleEnvelope(now time.Time) *Envelope[linkPayload] {
	return &Envelope[linkPayload]{
		Type:      "magic-link",
		Nonce:     "n-1",
		IssuedFor: "account-console",
		Data: linkPayload{
			RedirectURI: "https://app.example.com/cb",
			RememberMe:  true,
			Notes:       map[string]string{"state": "abc", "scope": "openid email"},
		},
		RegisteredClaims: gjwt.RegisteredClaims{
			ID:        "jti-1",
			Subject:   "user-1",
			Issuer:    "demo",
			IssuedAt:  gjwt.NewNumericDate(now),
			ExpiresAt: gjwt.NewNumericDate(now.Add(15 * time.Minute)),
		},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c := newHSCodec(t, clock)

	in := sampleEnvelope(clock.t)
	raw, err := Encode(c, in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if strings.Count(raw, ".") != 2 {
		t.Fatalf("expected compact serialization, got %q", raw)
	}
	for _, r := range raw {
		if !(r == '-' || r == '_' || r == '.' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			t.Fatalf("token is not url-safe: %q", r)
		}
	}

	out, err := Decode[linkPayload](c, raw, "magic-link")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Type != in.Type || out.Nonce != in.Nonce || out.IssuedFor != in.IssuedFor {
		t.Fatalf("envelope header mismatch: %+v", out)
	}
	if out.ID != in.ID || out.Subject != in.Subject || out.Issuer != in.Issuer {
		t.Fatalf("registered claims mismatch: %+v", out.RegisteredClaims)
	}
	if !out.IssuedAt.Equal(in.IssuedAt.Time) || !out.ExpiresAt.Equal(in.ExpiresAt.Time) {
		t.Fatalf("lifetime mismatch: iat=%v exp=%v", out.IssuedAt, out.ExpiresAt)
	}
	if !reflect.DeepEqual(in.Data, out.Data) {
		t.Fatalf("payload mismatch:\nin:  %+v\nout: %+v", in.Data, out.Data)
	}
}

func TestDecodeAcceptsAnyTypeWhenUnspecified(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c := newHSCodec(t, clock)
	raw, err := Encode(c, sampleEnvelope(clock.t))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	env, err := Decode[json.RawMessage](c, raw, "")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Type != "magic-link" {
		t.Fatalf("unexpected type %q", env.Type)
	}

	typed, err := DecodePayload[linkPayload](env)
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if typed.Data.RedirectURI != "https://app.example.com/cb" || typed.Data.Notes["state"] != "abc" {
		t.Fatalf("unexpected payload %+v", typed.Data)
	}
}

func TestDecodeWrongType(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c := newHSCodec(t, clock)
	raw, err := Encode(c, sampleEnvelope(clock.t))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := Decode[linkPayload](c, raw, "reset-credentials"); !errors.Is(err, ErrWrongType) {
		t.Fatalf("expected ErrWrongType, got %v", err)
	}
}

func TestDecodeExpired(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c := newHSCodec(t, clock)
	raw, err := Encode(c, sampleEnvelope(clock.t))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	clock.t = clock.t.Add(15 * time.Minute)
	if _, err := Decode[linkPayload](c, raw, "magic-link"); err != nil {
		t.Fatalf("token at exact expiry should decode: %v", err)
	}

	clock.t = clock.t.Add(time.Second)
	if _, err := Decode[linkPayload](c, raw, "magic-link"); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestDecodeClockSkew(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c, err := NewCodec(Config{SigningMethod: MethodHS256, PrivateKey: testSecret, Now: clock.Now, ClockSkew: 30 * time.Second})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	raw, err := Encode(c, sampleEnvelope(clock.t))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	clock.t = clock.t.Add(15*time.Minute + 20*time.Second)
	if _, err := Decode[linkPayload](c, raw, "magic-link"); err != nil {
		t.Fatalf("expected skew tolerance, got %v", err)
	}
	clock.t = clock.t.Add(time.Minute)
	if _, err := Decode[linkPayload](c, raw, "magic-link"); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired past skew, got %v", err)
	}
}

func TestDecodeSingleByteTamper(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c := newHSCodec(t, clock)
	raw, err := Encode(c, sampleEnvelope(clock.t))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	for i := 0; i < len(raw); i++ {
		repl := byte('A')
		if raw[i] == 'A' {
			repl = 'B'
		}
		for _, b := range []byte{repl, '.', '%'} {
			if b == raw[i] {
				continue
			}
			tampered := raw[:i] + string(b) + raw[i+1:]
			if _, err := Decode[linkPayload](c, tampered, "magic-link"); !errors.Is(err, ErrSignatureInvalid) {
				t.Fatalf("position %d byte %q: expected ErrSignatureInvalid, got %v", i, b, err)
			}
		}
	}
}

func TestDecodeMalformed(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c := newHSCodec(t, clock)

	for _, raw := range []string{"", "abc", "not-a-token"} {
		if _, err := Decode[linkPayload](c, raw, "magic-link"); !errors.Is(err, ErrMalformed) {
			t.Fatalf("%q: expected ErrMalformed, got %v", raw, err)
		}
	}
	for _, raw := range []string{"a.b", "a..c", ".b.c", "a.b.c.d"} {
		if _, err := Decode[linkPayload](c, raw, "magic-link"); !errors.Is(err, ErrSignatureInvalid) {
			t.Fatalf("%q: expected ErrSignatureInvalid, got %v", raw, err)
		}
	}

	// Correctly signed but not a JSON claim set.
	signingInput := "eyJhbGciOiJIUzI1NiJ9.bm90LWpzb24"
	sig, err := gjwt.SigningMethodHS256.Sign(signingInput, testSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	raw := signingInput + "." + base64.RawURLEncoding.EncodeToString(sig)
	if _, err := Decode[linkPayload](c, raw, "magic-link"); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for bad claims, got %v", err)
	}
}

func TestDecodeMissingExpiryIsMalformed(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c := newHSCodec(t, clock)
	env := sampleEnvelope(clock.t)
	env.ExpiresAt = nil
	raw, err := c.sign(env)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := Decode[linkPayload](c, raw, "magic-link"); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestDecodeRejectsForeignSecret(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c := newHSCodec(t, clock)
	other, err := NewCodec(Config{SigningMethod: MethodHS256, PrivateKey: []byte("ffffffffffffffffffffffffffffffff"), Now: clock.Now})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	raw, err := Encode(other, sampleEnvelope(clock.t))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := Decode[linkPayload](c, raw, "magic-link"); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
}

func TestDecodeAcceptsRotatedSecret(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	old := newHSCodec(t, clock)
	raw, err := Encode(old, sampleEnvelope(clock.t))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	rotated, err := NewCodec(Config{
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("ffffffffffffffffffffffffffffffff"),
		KeyID:         "k2",
		VerifyKeys:    map[string][]byte{"k1": testSecret},
		Now:           clock.Now,
	})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	if _, err := Decode[linkPayload](rotated, raw, "magic-link"); err != nil {
		t.Fatalf("expected previous secret to verify: %v", err)
	}
}

func TestEd25519RoundTripAndAlgorithmConfusion(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	pub, priv := newEdKeys(t)
	c, err := NewCodec(Config{SigningMethod: MethodEd25519, PrivateKey: priv, PublicKey: pub, KeyID: "k1", Now: clock.Now})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	raw, err := Encode(c, sampleEnvelope(clock.t))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := Decode[linkPayload](c, raw, "magic-link"); err != nil {
		t.Fatalf("decode: %v", err)
	}

	// An HS256 token keyed with the public key bytes must not verify.
	forged := gjwt.NewWithClaims(gjwt.SigningMethodHS256, sampleEnvelope(clock.t))
	forgedRaw, err := forged.SignedString([]byte(pub))
	if err != nil {
		t.Fatalf("sign forged: %v", err)
	}
	if _, err := Decode[linkPayload](c, forgedRaw, "magic-link"); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}

	verifyOnly, err := NewCodec(Config{SigningMethod: MethodEd25519, PublicKey: pub, Now: clock.Now})
	if err != nil {
		t.Fatalf("new verify-only codec: %v", err)
	}
	if verifyOnly.CanSign() {
		t.Fatal("verify-only codec must not report signing capability")
	}
	if _, err := Decode[linkPayload](verifyOnly, raw, "magic-link"); err != nil {
		t.Fatalf("verify-only decode: %v", err)
	}
	if _, err := Encode(verifyOnly, sampleEnvelope(clock.t)); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig from verify-only encode, got %v", err)
	}
}

func TestNewCodecValidation(t *testing.T) {
	cases := []Config{
		{SigningMethod: MethodHS256, PrivateKey: []byte("short")},
		{SigningMethod: "rs256", PrivateKey: testSecret},
		{SigningMethod: MethodEd25519},
		{SigningMethod: MethodHS256, PrivateKey: testSecret, ClockSkew: time.Hour},
		{SigningMethod: MethodHS256, PrivateKey: testSecret, VerifyKeys: map[string][]byte{" ": testSecret}},
	}
	for i, cfg := range cases {
		if _, err := NewCodec(cfg); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("case %d: expected ErrInvalidConfig, got %v", i, err)
		}
	}
}

func TestEncodeRequiresLifetime(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c := newHSCodec(t, clock)
	env := sampleEnvelope(clock.t)
	env.ExpiresAt = env.IssuedAt
	if _, err := Encode(c, env); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestFingerprint(t *testing.T) {
	fp := Fingerprint("abc.def.ghi")
	if len(fp) != 8 {
		t.Fatalf("expected 8 hex chars, got %q", fp)
	}
	if fp != Fingerprint("abc.def.ghi") {
		t.Fatal("fingerprint must be deterministic")
	}
	if fp == Fingerprint("abc.def.ghj") {
		t.Fatal("fingerprint must differ for different tokens")
	}
}
