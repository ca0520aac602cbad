package billing

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	stripe "github.com/stripe/stripe-go/v82"

	"github.com/scholarsite/scholarsite/internal/metrics"
)

func newStripeTestServer(t *testing.T, handler http.HandlerFunc, opts ...func(*StripeConfig)) (*StripeProvider, *metrics.InMemoryRecorder) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := StripeConfig{
		SecretKey:  "sk_test_123",
		Timeout:    2 * time.Second,
		BaseURL:    srv.URL,
		MaxRetries: stripe.Int64(0),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	rec := metrics.NewInMemory()
	return NewStripeProvider(cfg, rec), rec
}

func TestStripeProvider_GetSubscription(t *testing.T) {
	t.Parallel()

	p, rec := newStripeTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/subscriptions/sub_1" {
			http.NotFound(w, r)
			return
		}
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer sk_test_123") {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "sub_1",
			"object": "subscription",
			"status": "active",
			"customer": "cus_1",
			"cancel_at_period_end": true,
			"metadata": {"userId": "u1", "plan": "monthly"},
			"items": {"object": "list", "data": [{
				"id": "si_1",
				"object": "subscription_item",
				"current_period_start": 1767225600,
				"current_period_end": 1769904000,
				"price": {"id": "price_m", "object": "price", "recurring": {"interval": "month"}}
			}]}
		}`))
	})

	ps, err := p.GetSubscription(context.Background(), "sub_1")
	if err != nil {
		t.Fatalf("GetSubscription() error = %v", err)
	}

	if ps.ID != "sub_1" || ps.CustomerID != "cus_1" || ps.Status != "active" || ps.Interval != "month" {
		t.Errorf("GetSubscription() = %+v", ps)
	}
	if !ps.CancelAtPeriodEnd {
		t.Error("CancelAtPeriodEnd should be true")
	}
	if ps.Metadata[MetadataTenantKey] != "u1" {
		t.Errorf("metadata = %v", ps.Metadata)
	}
	if want := time.Unix(1767225600, 0).UTC(); !ps.PeriodStart.Equal(want) {
		t.Errorf("PeriodStart = %v, want %v", ps.PeriodStart, want)
	}
	if rec.Snapshot().ProviderCalls["stripe/subscription.get"] != 1 {
		t.Errorf("provider calls = %v", rec.Snapshot().ProviderCalls)
	}
}

func TestStripeProvider_ErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		status        int
		body          string
		wantRetryable bool
	}{
		{"server error", http.StatusInternalServerError, `{"error":{"type":"api_error","message":"boom"}}`, true},
		{"rate limited", http.StatusTooManyRequests, `{"error":{"type":"invalid_request_error","code":"rate_limit","message":"slow down"}}`, true},
		{"not found", http.StatusNotFound, `{"error":{"type":"invalid_request_error","code":"resource_missing","message":"No such subscription"}}`, false},
		{"bad key", http.StatusUnauthorized, `{"error":{"type":"invalid_request_error","message":"Invalid API Key"}}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p, _ := newStripeTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := p.GetSubscription(context.Background(), "sub_1")
			if err == nil {
				t.Fatal("GetSubscription() should fail")
			}
			if got := IsRetryable(err); got != tt.wantRetryable {
				t.Errorf("IsRetryable() = %v, want %v (err %v)", got, tt.wantRetryable, err)
			}
		})
	}
}

func TestStripeProvider_CanceledContextIsRetryable(t *testing.T) {
	t.Parallel()

	p, _ := newStripeTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.GetSubscription(ctx, "sub_1"); !IsRetryable(err) {
		t.Errorf("GetSubscription() error = %v, want retryable", err)
	}
}

func TestStripeProvider_HonorsContextDeadline(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	hang := func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}
	// Retries and a generous client timeout must not stretch the call past ctx.
	p, rec := newStripeTestServer(t, hang, func(c *StripeConfig) {
		c.Timeout = 5 * time.Second
		c.MaxRetries = stripe.Int64(2)
	})

	calls := map[string]func(ctx context.Context) error{
		"subscription.get": func(ctx context.Context) error {
			_, err := p.GetSubscription(ctx, "sub_1")
			return err
		},
		"checkout.get": func(ctx context.Context) error {
			_, err := p.GetCheckoutSession(ctx, "cs_1")
			return err
		},
		"checkout.create": func(ctx context.Context) error {
			_, err := p.CreateCheckoutSession(ctx, CheckoutRequest{TenantID: "u1", PriceID: "price_m"})
			return err
		},
		"portal.create": func(ctx context.Context) error {
			_, err := p.CreatePortalSession(ctx, "cus_1", "https://platform.app/dashboard/billing")
			return err
		},
	}

	for op, call := range calls {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		start := time.Now()
		err := call(ctx)
		elapsed := time.Since(start)
		cancel()

		if elapsed > time.Second {
			t.Errorf("%s took %v after a 100ms deadline", op, elapsed)
		}
		var pe *ProviderError
		if !errors.As(err, &pe) || !pe.Retryable {
			t.Errorf("%s error = %v, want retryable ProviderError", op, err)
		}
		if rec.Snapshot().ProviderCalls["stripe/"+op] != 1 {
			t.Errorf("%s not recorded: %v", op, rec.Snapshot().ProviderCalls)
		}
	}
	if got := requests.Load(); got != int32(len(calls)) {
		t.Errorf("requests = %d, want %d with no retry after the deadline", got, len(calls))
	}
}

func TestStripeProvider_SDKLogsGoToSlog(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	p, _ := newStripeTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","code":"resource_missing","message":"No such subscription"}}`))
	}, func(c *StripeConfig) { c.Logger = logger })

	if _, err := p.GetSubscription(context.Background(), "sub_missing"); err == nil {
		t.Fatal("GetSubscription() should fail")
	}

	out := buf.String()
	for _, want := range []string{`"component":"stripe-sdk"`, "Requesting GET", "/v1/subscriptions/sub_missing"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestStripeProvider_CreateCheckoutSession(t *testing.T) {
	t.Parallel()

	p, _ := newStripeTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/checkout/sessions" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseForm(); err != nil {
			t.Error(err)
			return
		}
		checks := map[string]string{
			"mode":                              "subscription",
			"line_items[0][price]":              "price_y",
			"client_reference_id":               "u1",
			"metadata[userId]":                  "u1",
			"subscription_data[metadata][plan]": "yearly",
			"customer_email":                    "jane@example.com",
		}
		for k, want := range checks {
			if got := r.PostForm.Get(k); got != want {
				t.Errorf("form %s = %q, want %q", k, got, want)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_1","object":"checkout.session","url":"https://checkout.stripe.com/c/cs_1","status":"open","client_reference_id":"u1"}`))
	})

	cs, err := p.CreateCheckoutSession(context.Background(), CheckoutRequest{
		TenantID:   "u1",
		Email:      "jane@example.com",
		PriceID:    "price_y",
		Plan:       "yearly",
		SuccessURL: "https://platform.app/dashboard/billing?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  "https://platform.app/dashboard/billing?canceled=1",
	})
	if err != nil {
		t.Fatalf("CreateCheckoutSession() error = %v", err)
	}
	if cs.ID != "cs_1" || cs.URL == "" || cs.Status != CheckoutOpen || cs.TenantID != "u1" {
		t.Errorf("CreateCheckoutSession() = %+v", cs)
	}
}

func TestStripeProvider_PortalAndCheckoutGet(t *testing.T) {
	t.Parallel()

	p, _ := newStripeTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/billing_portal/sessions":
			_ = r.ParseForm()
			if r.PostForm.Get("customer") != "cus_1" {
				t.Errorf("customer = %q", r.PostForm.Get("customer"))
			}
			_, _ = w.Write([]byte(`{"id":"bps_1","object":"billing_portal.session","url":"https://billing.stripe.com/p/session/x"}`))
		case "/v1/checkout/sessions/cs_1":
			_, _ = w.Write([]byte(`{"id":"cs_1","object":"checkout.session","status":"complete","customer":"cus_1","subscription":"sub_1","metadata":{"userId":"u1"}}`))
		default:
			http.NotFound(w, r)
		}
	})

	url, err := p.CreatePortalSession(context.Background(), "cus_1", "https://platform.app/dashboard/billing")
	if err != nil || url != "https://billing.stripe.com/p/session/x" {
		t.Errorf("CreatePortalSession() = %q, %v", url, err)
	}

	cs, err := p.GetCheckoutSession(context.Background(), "cs_1")
	if err != nil {
		t.Fatalf("GetCheckoutSession() error = %v", err)
	}
	want := CheckoutSession{ID: "cs_1", Status: CheckoutComplete, TenantID: "u1", CustomerID: "cus_1", SubscriptionID: "sub_1"}
	if *cs != want {
		t.Errorf("GetCheckoutSession() = %+v, want %+v", *cs, want)
	}
}
