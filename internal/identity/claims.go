package identity

import "context"

// Claims are the verified claims of an ID token.
type Claims struct {
	Subject       string `json:"sub"`
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
	Name          string `json:"name,omitempty"`
}

type contextKey string

const (
	claimsContextKey contextKey = "identity_claims"
	subjectSinkKey   contextKey = "identity_subject_sink"
)

// ContextWithClaims adds verified claims to the context.
// The subject is also written to any sink installed by ContextWithSubjectSink.
func ContextWithClaims(ctx context.Context, c *Claims) context.Context {
	if sink, ok := ctx.Value(subjectSinkKey).(*string); ok && c != nil {
		*sink = c.Subject
	}
	return context.WithValue(ctx, claimsContextKey, c)
}

// ContextWithSubjectSink lets an outer middleware learn the subject
// authenticated further down the chain.
func ContextWithSubjectSink(ctx context.Context, sink *string) context.Context {
	return context.WithValue(ctx, subjectSinkKey, sink)
}

// ClaimsFromContext retrieves verified claims.
// Returns nil if the request was not authenticated.
func ClaimsFromContext(ctx context.Context) *Claims {
	c, ok := ctx.Value(claimsContextKey).(*Claims)
	if !ok {
		return nil
	}
	return c
}

// SubjectFromContext returns the authenticated subject id, or "".
func SubjectFromContext(ctx context.Context) string {
	c := ClaimsFromContext(ctx)
	if c == nil {
		return ""
	}
	return c.Subject
}
