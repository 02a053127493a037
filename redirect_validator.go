package magiclink

import (
	"context"

	"github.com/MrEthical07/magiclink/redirect"
)

// PatternRedirectValidator is the default [RedirectValidator]. It matches
// candidates against Client.RedirectURIs, resolving relative entries against
// Client.RootURL.
type PatternRedirectValidator struct{}

// Verify implements [RedirectValidator].
func (PatternRedirectValidator) Verify(_ context.Context, candidate string, client Client) (string, bool) {
	return redirect.Verify(candidate, client.RootURL, client.RedirectURIs)
}

// DefaultRedirect returns the client's base URL resolved against its root
// URL. It is the redirect candidate of tokens issued without one.
func DefaultRedirect(client Client) string {
	return redirect.ResolveRelative(client.RootURL, client.BaseURL)
}
