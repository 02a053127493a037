// Package memhost provides in-memory implementations of the magiclink host
// collaborators: a user/client/group directory, an authentication session
// factory, and a next-step resolver that redirects to the validated target.
//
// It backs examples, the load test, and tests. State is process-local and
// lost on restart.
package memhost
