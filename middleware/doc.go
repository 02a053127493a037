// Package middleware exposes HTTP middleware for hosts serving magic-link
// endpoints.
//
// # Middleware
//
//   - [RequestContext] copies the caller's IP and User-Agent into the request
//     context so the Engine can attach them to audit events.
//   - [NoStore] keeps bearer links out of caches and Referer headers.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into context values. It does NOT
// issue or consume links; all decisions are delegated to the Engine.
package middleware
