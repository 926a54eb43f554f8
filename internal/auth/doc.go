// Package auth is the session and identity provider. It authenticates users
// either against a local account store with HS256 access tokens or against a
// GoTrue-compatible REST backend, and hands an explicit Session to the rest of
// the service through the request context.
package auth
