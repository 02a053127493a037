// Package flows contains the orchestrators behind every Engine operation:
// magic-link issuance and the consumption state machine.
//
// Each flow function (RunIssue, RunConsume) accepts a typed dependency struct
// of closures and returns a classified result. The Engine builds the deps once
// per call from its collaborators; the flows never own those collaborators.
//
// # Architecture boundaries
//
// Flow functions coordinate the token codec, marker store, host directories,
// notifier, audit dispatcher, and metrics. Response pages and status codes are
// chosen by the root package from the classified result.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import the root package (to avoid import cycles).
//   - Log or audit raw tokens, links, or message bodies.
package flows
