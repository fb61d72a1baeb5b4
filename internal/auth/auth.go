// Package auth defines the identity verifier contract for player connections.
//
// The game core treats identity as an external concern: a connection presents
// an opaque bearer token and the verifier either yields a stable user identity
// or rejects the connection. The default implementation verifies HMAC-signed
// tokens; deployments fronted by a real identity provider swap in their own
// Verifier.
package auth

import (
	"context"
	"errors"
)

// Identity is the result of a successful token verification.
type Identity struct {
	UID   string
	Email string
}

// ErrInvalidToken covers every verification failure. Callers must not
// distinguish missing from malformed or expired tokens.
var ErrInvalidToken = errors.New("authentication error")

type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}
