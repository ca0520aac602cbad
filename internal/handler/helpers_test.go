package handler

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/scholarsite/scholarsite/internal/billing"
	"github.com/scholarsite/scholarsite/internal/identity"
	"github.com/scholarsite/scholarsite/internal/model"
	"github.com/scholarsite/scholarsite/internal/openalex"
	"github.com/scholarsite/scholarsite/internal/profile"
	"github.com/scholarsite/scholarsite/internal/service"
	"github.com/scholarsite/scholarsite/internal/session"
	"github.com/scholarsite/scholarsite/internal/storage"
	"github.com/scholarsite/scholarsite/internal/tenant"
)

const testSessionSecret = "0123456789abcdef0123456789abcdef"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeVerifier struct {
	tokens map[string]*identity.Claims
	err    error
}

func (f *fakeVerifier) Verify(_ context.Context, raw string) (*identity.Claims, error) {
	if f.err != nil {
		return nil, f.err
	}
	c, ok := f.tokens[raw]
	if !ok {
		return nil, identity.ErrTokenInvalid
	}
	return c, nil
}

type fakeCVs struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeCVs) Put(_ context.Context, userID string, r io.Reader, _ string) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, storage.MaxCVSize+1))
	if err != nil {
		return "", err
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return "", storage.ErrNotPDF
	}
	if len(data) > storage.MaxCVSize {
		return "", storage.ErrTooLarge
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	path := storage.ObjectPath(userID)
	f.objects[path] = data
	return path, nil
}

func (f *fakeCVs) Delete(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, path)
	return nil
}

type fakeSource struct {
	authors []model.Author
	works   map[string][]model.Publication
	err     error
}

func (f *fakeSource) SearchAuthors(_ context.Context, q openalex.AuthorQuery) ([]model.Author, error) {
	if f.err != nil {
		return nil, f.err
	}
	if q.ORCID == "" && q.Name == "" {
		return nil, openalex.ErrInvalidQuery
	}
	return f.authors, nil
}

func (f *fakeSource) AuthorByORCID(_ context.Context, orcid string) (*model.Author, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, a := range f.authors {
		if a.ORCID == orcid {
			return &a, nil
		}
	}
	return nil, openalex.ErrNotFound
}

func (f *fakeSource) ListWorks(_ context.Context, authorID string, page int) (*openalex.WorksPage, error) {
	if f.err != nil {
		return nil, f.err
	}
	pubs, ok := f.works[authorID]
	if !ok {
		return nil, openalex.ErrNotFound
	}
	return &openalex.WorksPage{Publications: pubs, Count: len(pubs), Page: page, PerPage: openalex.DefaultPerPage}, nil
}

type fakeProvider struct {
	mu       sync.Mutex
	subs     map[string]*billing.ProviderSubscription
	sessions map[string]*billing.CheckoutSession
	err      error
	requests []billing.CheckoutRequest
}

func (f *fakeProvider) GetSubscription(_ context.Context, id string) (*billing.ProviderSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	ps, ok := f.subs[id]
	if !ok {
		return nil, &billing.ProviderError{Op: "get_subscription", StatusCode: http.StatusNotFound}
	}
	cp := *ps
	return &cp, nil
}

func (f *fakeProvider) GetCheckoutSession(_ context.Context, id string) (*billing.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	cs, ok := f.sessions[id]
	if !ok {
		return nil, &billing.ProviderError{Op: "get_checkout_session", StatusCode: http.StatusNotFound}
	}
	cp := *cs
	return &cp, nil
}

func (f *fakeProvider) CreateCheckoutSession(_ context.Context, req billing.CheckoutRequest) (*billing.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.requests = append(f.requests, req)
	return &billing.CheckoutSession{ID: "cs_new", URL: "https://checkout.stripe.test/cs_new", Status: billing.CheckoutOpen, TenantID: req.TenantID}, nil
}

func (f *fakeProvider) CreatePortalSession(_ context.Context, customerID, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "https://billing.stripe.test/" + customerID, nil
}

type noLock struct{}

func (noLock) Acquire(context.Context, string) (func(), error) { return func() {}, nil }

type testEnv struct {
	store      *profile.Memory
	sites      *service.SiteService
	sessions   *session.Manager
	verifier   *fakeVerifier
	cvs        *fakeCVs
	source     *fakeSource
	provider   *fakeProvider
	reconciler *billing.Reconciler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	sessions, err := session.NewManager(testSessionSecret, false)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	env := &testEnv{
		store:    profile.NewMemory(),
		sessions: sessions,
		verifier: &fakeVerifier{tokens: map[string]*identity.Claims{}},
		cvs:      &fakeCVs{objects: map[string][]byte{}},
		source: &fakeSource{
			authors: []model.Author{{ID: "A1", DisplayName: "Jane Doe", ORCID: "0000-0002-1825-0097"}},
			works:   map[string][]model.Publication{"A1": {{ID: "W1", Title: "Soil carbon", Category: "journal"}}},
		},
		provider: &fakeProvider{
			subs:     map[string]*billing.ProviderSubscription{},
			sessions: map[string]*billing.CheckoutSession{},
		},
	}

	env.sites = service.NewSiteService(service.SiteDeps{
		Store:     env.store,
		Resolver:  tenant.NewResolver("platform.app", nil),
		Directory: tenant.NewDirectory(env.store, nil, testLogger()),
		Source:    env.source,
		CVs:       env.cvs,
		Logger:    testLogger(),
	})
	env.reconciler = billing.NewReconciler(env.provider, env.store, noLock{}, billing.Config{
		Prices:  map[model.Plan]string{model.PlanMonthly: "price_m", model.PlanYearly: "price_y"},
		BaseURL: "https://platform.app",
	}, testLogger(), nil)
	return env
}

// signUp creates a profile for id as a first sign-in would.
func (e *testEnv) signUp(t *testing.T, id string) {
	t.Helper()
	if _, _, err := e.sites.SignIn(context.Background(), &identity.Claims{Subject: id, Name: "Jane Doe", Email: id + "@example.com"}); err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
}

// activate stores an active subscription for id.
func (e *testEnv) activate(t *testing.T, id string) {
	t.Helper()
	err := e.store.UpsertSubscription(context.Background(), id, model.Subscription{
		Status:         model.SubscriptionStatusActive,
		Plan:           model.PlanMonthly,
		CustomerID:     "cus_" + id,
		SubscriptionID: "sub_" + id,
	}, time.Now())
	if err != nil {
		t.Fatalf("UpsertSubscription() error = %v", err)
	}
}

func withSubject(r *http.Request, sub string) *http.Request {
	return r.WithContext(identity.ContextWithClaims(r.Context(), &identity.Claims{Subject: sub}))
}
