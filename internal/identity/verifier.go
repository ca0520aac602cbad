package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"firebase.google.com/go/v4/auth"
)

// TokenClient is the part of the Firebase Auth client the verifier uses.
// *auth.Client satisfies it.
type TokenClient interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// Verifier validates ID tokens through the Firebase Admin SDK. The SDK checks
// the signature against Google's cached public keys and validates issuer,
// audience, expiry, issued-at and subject.
type Verifier struct {
	client  TokenClient
	timeout time.Duration
}

// NewVerifier wraps a Firebase Auth client. A positive timeout bounds each
// verification, including any public-key refresh the SDK performs.
func NewVerifier(client TokenClient, timeout time.Duration) *Verifier {
	return &Verifier{client: client, timeout: timeout}
}

// Verify checks the token's signature and claims and returns the verified identity.
// Failures wrap ErrTokenMissing, ErrTokenExpired, ErrTokenInvalid or ErrKeysUnavailable.
func (v *Verifier) Verify(ctx context.Context, raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrTokenMissing
	}

	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	tok, err := v.client.VerifyIDToken(ctx, raw)
	if err != nil {
		return nil, classifyTokenError(err)
	}
	if tok == nil || tok.UID == "" {
		return nil, fmt.Errorf("%w: bad subject", ErrTokenInvalid)
	}
	return claimsFromToken(tok), nil
}

// classifyTokenError maps SDK failures onto the package sentinels. Anything the
// SDK does not attribute to the token itself (certificate fetch, transport,
// cancelled context) is treated as a provider outage.
func classifyTokenError(err error) error {
	switch {
	case auth.IsIDTokenExpired(err):
		return fmt.Errorf("%w: %w", ErrTokenExpired, err)
	case auth.IsIDTokenInvalid(err), auth.IsIDTokenRevoked(err):
		return fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	default:
		return fmt.Errorf("%w: %w", ErrKeysUnavailable, err)
	}
}

func claimsFromToken(tok *auth.Token) *Claims {
	c := &Claims{Subject: tok.UID}
	if tok.Claims == nil {
		return c
	}
	if s, ok := tok.Claims["email"].(string); ok {
		c.Email = s
	}
	if b, ok := tok.Claims["email_verified"].(bool); ok {
		c.EmailVerified = b
	}
	if s, ok := tok.Claims["name"].(string); ok {
		c.Name = s
	}
	return c
}
