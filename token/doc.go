// Package token signs and verifies self-contained action tokens.
//
// A token is a compact JWS (header.claims.signature, base64url) carrying an
// [Envelope]: registered JWT claims, a type tag, a single-use nonce, the
// authorized client, and a typed payload. The serialized form is URL-safe and
// can travel as a single query parameter value.
//
// # Verification order
//
// [Decode] checks structure, then the signature over the raw signing input,
// and only then parses claims. A token that fails signature verification is
// never parsed, so no claim is trusted before the signature holds.
//
// # What this package must NOT do
//
//   - Log or return raw token strings in errors. Use [Fingerprint] instead.
//   - Track consumption. Single-use enforcement belongs to the caller.
package token
