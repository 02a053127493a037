package magiclink

import (
	"fmt"
	"time"

	"github.com/MrEthical07/magiclink/internal/flows"
	"github.com/MrEthical07/magiclink/token"
	"github.com/golang-jwt/jwt/v5"
)

// MagicLinkTokenType is the envelope type of magic-link tokens.
const MagicLinkTokenType = "magic-link"

// magicLinkPayload is the action-specific part of a magic-link envelope.
type magicLinkPayload struct {
	RedirectURI string            `json:"rdu,omitempty"`
	RememberMe  bool              `json:"rme,omitempty"`
	ClientNotes map[string]string `json:"cno,omitempty"`
}

func newCodec(cfg TokenConfig, now func() time.Time) (*token.Codec, error) {
	return token.NewCodec(token.Config{
		SigningMethod: token.SigningMethod(cfg.SigningMethod),
		PrivateKey:    cloneBytes(cfg.PrivateKey),
		PublicKey:     cloneBytes(cfg.PublicKey),
		KeyID:         cfg.KeyID,
		VerifyKeys:    cfg.VerifyKeys,
		ClockSkew:     cfg.ClockSkew,
		Now:           now,
	})
}

func (e *Engine) signMagicLink(claims flows.MagicLinkClaims) (string, error) {
	env := &token.Envelope[magicLinkPayload]{
		Type:      MagicLinkTokenType,
		Nonce:     claims.Nonce,
		IssuedFor: claims.ClientID,
		Data: magicLinkPayload{
			RedirectURI: claims.RedirectURI,
			RememberMe:  claims.RememberMe,
			ClientNotes: claims.ClientNotes,
		},
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        claims.TokenID,
			Subject:   claims.UserID,
			Issuer:    e.config.Realm.Name,
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
	}
	return token.Encode(e.codec, env)
}

func (e *Engine) decodeMagicLink(raw string) (flows.MagicLinkClaims, error) {
	env, err := token.Decode[magicLinkPayload](e.codec, raw, MagicLinkTokenType)
	if err != nil {
		return flows.MagicLinkClaims{}, err
	}
	return e.claimsFromEnvelope(env)
}

// claimsFromEnvelope checks the magic-link specific claims of a verified
// envelope. Failures are reported as malformed tokens.
func (e *Engine) claimsFromEnvelope(env *token.Envelope[magicLinkPayload]) (flows.MagicLinkClaims, error) {
	switch {
	case env.Issuer != e.config.Realm.Name:
		return flows.MagicLinkClaims{}, fmt.Errorf("%w: issuer does not match realm", token.ErrMalformed)
	case env.Subject == "":
		return flows.MagicLinkClaims{}, fmt.Errorf("%w: missing subject", token.ErrMalformed)
	case env.IssuedAt == nil || !env.Expiry().After(env.IssuedAt.Time):
		return flows.MagicLinkClaims{}, fmt.Errorf("%w: invalid lifetime", token.ErrMalformed)
	}
	return flows.MagicLinkClaims{
		TokenID:     env.ID,
		UserID:      env.Subject,
		ClientID:    env.IssuedFor,
		Nonce:       env.Nonce,
		IssuedAt:    env.IssuedAt.Time,
		ExpiresAt:   env.Expiry(),
		RedirectURI: env.Data.RedirectURI,
		RememberMe:  env.Data.RememberMe,
		ClientNotes: env.Data.ClientNotes,
	}, nil
}
