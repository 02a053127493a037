// Package magiclink implements passwordless "magic link" authentication: a user
// submits an email address, receives a single-use signed link, and opening the
// link completes login.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// magiclink is the public surface. It exposes [Engine], [Builder], [Config], the host
// collaborator interfaces ([UserDirectory], [ClientRegistry], [SessionFactory], ...) and
// value types ([Response], [ConsumeResult], [MetricsSnapshot]). Flow orchestration, marker
// stores and audit dispatch live under internal/; token signing lives in package token.
//
// The authentication context of a link is rebuilt entirely from token claims at click
// time. The session that requested the link may be gone by then.
//
// # What this package must NOT do
//
//   - Log or audit raw tokens, links, or message bodies. Only [token.Fingerprint] values
//     leave the engine.
//   - Distinguish unknown, disabled, or domain-restricted users in issuance responses.
//   - Perform I/O outside of Engine methods (construction via Builder is allocation-only
//     until Build).
//   - Import any sub-package that re-imports magiclink (no import cycles).
package magiclink
