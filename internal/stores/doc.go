// Package stores provides the single-use marker stores behind magic-link
// consumption.
//
// # Design
//
// A marker records that a (token id, nonce) pair has been consumed. Marking is
// a single atomic check-and-set: Redis SET NX for the shared store, a
// mutex-guarded map for the process-local store. Markers expire with the token
// they shadow, so the stores never grow past the set of live tokens.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control for markers. It does
// NOT verify tokens or decide outcomes; that belongs to internal/flows.
//
// # What this package must NOT do
//
//   - Import the root package or any sibling internal package.
//   - Persist the token itself.
//   - Implement marking as a read followed by a write.
package stores
