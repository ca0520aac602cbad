package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"firebase.google.com/go/v4/auth"
)

type fakeTokenClient struct {
	tokens map[string]*auth.Token
	err    error
	calls  int
	ctx    context.Context
}

func (f *fakeTokenClient) VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error) {
	f.calls++
	f.ctx = ctx
	if f.err != nil {
		return nil, f.err
	}
	tok, ok := f.tokens[idToken]
	if !ok {
		return nil, errors.New("no such token")
	}
	return tok, nil
}

func TestVerifier_Verify(t *testing.T) {
	t.Parallel()

	client := &fakeTokenClient{tokens: map[string]*auth.Token{
		"full": {UID: "u1", Claims: map[string]interface{}{
			"email":          "jane@example.com",
			"email_verified": true,
			"name":           "Jane Doe",
		}},
		"bare":   {UID: "u2"},
		"no-uid": {Claims: map[string]interface{}{"email": "x@example.com"}},
		"mistyped": {UID: "u3", Claims: map[string]interface{}{
			"email":          42,
			"email_verified": "yes",
		}},
	}}
	v := NewVerifier(client, 0)

	tests := []struct {
		name    string
		token   string
		want    *Claims
		wantErr error
	}{
		{"all claims", "full", &Claims{Subject: "u1", Email: "jane@example.com", EmailVerified: true, Name: "Jane Doe"}, nil},
		{"subject only", "bare", &Claims{Subject: "u2"}, nil},
		{"surrounding space", "  bare\n", &Claims{Subject: "u2"}, nil},
		{"wrong claim types ignored", "mistyped", &Claims{Subject: "u3"}, nil},
		{"missing", "", nil, ErrTokenMissing},
		{"blank", "   ", nil, ErrTokenMissing},
		{"empty uid", "no-uid", nil, ErrTokenInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.Verify(context.Background(), tt.token)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Verify() error = %v, want %v", err, tt.wantErr)
				}
				if !ShouldClearSession(err) {
					t.Errorf("ShouldClearSession(%v) = false, want true", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Verify() error = %v", err)
			}
			if *got != *tt.want {
				t.Errorf("claims = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestVerifier_MissingTokenSkipsProvider(t *testing.T) {
	t.Parallel()

	client := &fakeTokenClient{}
	if _, err := NewVerifier(client, 0).Verify(context.Background(), ""); !errors.Is(err, ErrTokenMissing) {
		t.Fatalf("Verify() error = %v, want ErrTokenMissing", err)
	}
	if client.calls != 0 {
		t.Errorf("provider calls = %d, want 0", client.calls)
	}
}

func TestVerifier_ProviderFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
	}{
		{"certificate fetch", errors.New("failed to fetch public keys: 503")},
		{"cancelled", context.Canceled},
		{"deadline", context.DeadlineExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewVerifier(&fakeTokenClient{err: tt.err}, 0)
			_, err := v.Verify(context.Background(), "tok")
			if !errors.Is(err, ErrKeysUnavailable) {
				t.Fatalf("Verify() error = %v, want ErrKeysUnavailable", err)
			}
			if !errors.Is(err, tt.err) {
				t.Errorf("Verify() error = %v, want it to wrap %v", err, tt.err)
			}
			if ShouldClearSession(err) {
				t.Error("provider outage must not clear the session")
			}
		})
	}
}

func TestVerifier_Timeout(t *testing.T) {
	t.Parallel()

	client := &fakeTokenClient{tokens: map[string]*auth.Token{"tok": {UID: "u1"}}}
	if _, err := NewVerifier(client, time.Second).Verify(context.Background(), "tok"); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	deadline, ok := client.ctx.Deadline()
	if !ok {
		t.Fatal("provider call had no deadline")
	}
	if until := time.Until(deadline); until > time.Second {
		t.Errorf("deadline in %v, want at most 1s", until)
	}
}

func TestClaimsContext(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if SubjectFromContext(ctx) != "" {
		t.Error("empty context should have no subject")
	}
	ctx = ContextWithClaims(ctx, &Claims{Subject: "u1"})
	if got := SubjectFromContext(ctx); got != "u1" {
		t.Errorf("SubjectFromContext() = %q, want u1", got)
	}

	var sink string
	ctx = ContextWithSubjectSink(context.Background(), &sink)
	_ = ContextWithClaims(ctx, &Claims{Subject: "u2"})
	if sink != "u2" {
		t.Errorf("subject sink = %q, want u2", sink)
	}
}
