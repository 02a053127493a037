// Package redirect validates post-login redirect targets against a client's
// registered redirect URIs.
//
// Registered entries are exact URIs or prefixes ending in "*". Entries that
// start with "/" are resolved against the client root URL. A candidate is
// accepted only when it is an absolute http(s) URL without user info, without
// a fragment, without dot segments, and it matches an entry.
//
// # What this package must NOT do
//
//   - Import magiclink or perform I/O.
//   - Accept a candidate on a parse error.
package redirect
