package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"anipink/internal/backend"
	"anipink/internal/validate"
	"anipink/pkg/models"
)

type fakeAuth struct {
	mu         sync.Mutex
	status     models.AccountStatus
	loginErr   error
	profileErr error
	logins     int
	registers  int
	logouts    []string
}

func (f *fakeAuth) Login(_ context.Context, email, _ string) (backend.AuthResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins++
	if f.loginErr != nil {
		return backend.AuthResult{}, f.loginErr
	}
	return backend.AuthResult{UserID: "u1", Email: email, Token: "tok-1", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (f *fakeAuth) Register(ctx context.Context, email, password, _ string) (backend.AuthResult, error) {
	f.mu.Lock()
	f.registers++
	f.mu.Unlock()
	return backend.AuthResult{UserID: "u2", Email: email, Token: "tok-2"}, nil
}

func (f *fakeAuth) Logout(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts = append(f.logouts, token)
	return nil
}

func (f *fakeAuth) Profile(context.Context, string) (models.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return models.Profile{Status: f.status}, f.profileErr
}

var goodCreds = Credentials{Email: "rin@example.com", Password: "hunter2hunter2"}

func TestSignInActive(t *testing.T) {
	for _, status := range []models.AccountStatus{"", models.AccountActive} {
		fa := &fakeAuth{status: status}
		g := NewGate(fa)
		if err := g.SignIn(context.Background(), goodCreds); err != nil {
			t.Fatalf("status %q: %v", status, err)
		}
		uid, token, ok := g.Credential()
		if g.State() != Active || !ok || uid != "u1" || token != "tok-1" {
			t.Fatalf("status %q: state %v credential %q %q %v", status, g.State(), uid, token, ok)
		}
		if len(fa.logouts) != 0 {
			t.Fatal("active account was signed out")
		}
	}
}

func TestSignInPendingActivationSignsOut(t *testing.T) {
	fa := &fakeAuth{status: models.AccountPendingActivation}
	g := NewGate(fa)

	err := g.SignIn(context.Background(), goodCreds)
	if !errors.Is(err, ErrPendingActivation) {
		t.Fatalf("expected ErrPendingActivation, got %v", err)
	}
	if g.State() != PendingActivation || g.Message() != MsgPendingApproval {
		t.Fatalf("state %v message %q", g.State(), g.Message())
	}
	if _, _, ok := g.Credential(); ok {
		t.Fatal("pending account exposed a credential")
	}
	if len(fa.logouts) != 1 || fa.logouts[0] != "tok-1" {
		t.Fatalf("token not revoked: %v", fa.logouts)
	}
}

func TestSignInOtherStatusIsDenied(t *testing.T) {
	for _, status := range []models.AccountStatus{models.AccountDenied, "banned"} {
		fa := &fakeAuth{status: status}
		g := NewGate(fa)
		if err := g.SignIn(context.Background(), goodCreds); !errors.Is(err, ErrAccessDenied) {
			t.Fatalf("status %q: got %v", status, err)
		}
		if g.State() != Denied || g.Message() != MsgAccessDenied {
			t.Fatalf("status %q: state %v message %q", status, g.State(), g.Message())
		}
		if _, _, ok := g.Credential(); ok {
			t.Fatal("denied account exposed a credential")
		}
	}
}

func TestSignInStatusFetchFailure(t *testing.T) {
	fa := &fakeAuth{profileErr: backend.ErrUnavailable}
	g := NewGate(fa)
	err := g.SignIn(context.Background(), goodCreds)
	if !errors.Is(err, backend.ErrUnavailable) {
		t.Fatalf("got %v", err)
	}
	if g.State() != Unauthenticated || len(fa.logouts) != 1 {
		t.Fatalf("state %v logouts %v", g.State(), fa.logouts)
	}
}

func TestSignInValidationNeverCallsProvider(t *testing.T) {
	fa := &fakeAuth{}
	g := NewGate(fa)
	cases := []Credentials{
		{Email: "not-an-email", Password: "hunter2hunter2"},
		{Email: "rin@example.com", Password: "short"},
		{},
	}
	for _, c := range cases {
		var verr *validate.Error
		if err := g.SignIn(context.Background(), c); !errors.As(err, &verr) {
			t.Fatalf("%+v: expected validation error, got %v", c, err)
		}
	}
	if fa.logins != 0 {
		t.Fatalf("provider called %d times", fa.logins)
	}
}

func TestSignInProviderError(t *testing.T) {
	fa := &fakeAuth{loginErr: backend.ErrUnauthorized}
	g := NewGate(fa)
	if err := g.SignIn(context.Background(), goodCreds); !errors.Is(err, backend.ErrUnauthorized) {
		t.Fatalf("got %v", err)
	}
	if g.State() != Unauthenticated {
		t.Fatalf("state %v", g.State())
	}
}

func TestRegisterChecks(t *testing.T) {
	fa := &fakeAuth{}
	g := NewGate(fa)
	ctx := context.Background()

	mismatch := Registration{Email: "a@b.co", Password: "longenough", ConfirmPassword: "different1", Consent: true}
	if err := g.Register(ctx, mismatch); err == nil {
		t.Fatal("password mismatch accepted")
	}
	noConsent := Registration{Email: "a@b.co", Password: "longenough", ConfirmPassword: "longenough"}
	var verr *validate.Error
	if err := g.Register(ctx, noConsent); !errors.As(err, &verr) || verr.Fields["consent"] == "" {
		t.Fatalf("missing consent: %v", err)
	}
	if fa.registers != 0 {
		t.Fatal("invalid registration reached the provider")
	}

	ok := Registration{Email: "a@b.co", Password: "longenough", ConfirmPassword: "longenough", Consent: true}
	if err := g.Register(ctx, ok); err != nil {
		t.Fatal(err)
	}
	if g.State() != Active {
		t.Fatalf("state %v", g.State())
	}
}

func TestResumeAndSignOut(t *testing.T) {
	fa := &fakeAuth{}
	g := NewGate(fa)
	ctx := context.Background()

	expired := backend.AuthResult{UserID: "u1", Token: "old", ExpiresAt: time.Now().Add(-time.Minute)}
	if err := g.Resume(ctx, expired); !errors.Is(err, ErrExpired) {
		t.Fatalf("got %v", err)
	}

	if err := g.Resume(ctx, backend.AuthResult{UserID: "u1", Token: "saved"}); err != nil {
		t.Fatal(err)
	}
	if g.State() != Active {
		t.Fatalf("state %v", g.State())
	}
	if err := g.SignOut(ctx); err != nil {
		t.Fatal(err)
	}
	if g.State() != Unauthenticated || len(fa.logouts) != 1 || fa.logouts[0] != "saved" {
		t.Fatalf("state %v logouts %v", g.State(), fa.logouts)
	}
	if _, _, ok := g.Credential(); ok {
		t.Fatal("credential survived sign out")
	}
}

// A pending account falls back to guest data and never reaches the relay.
func TestPendingAccountUsesGuestBackend(t *testing.T) {
	var hits atomic.Int32
	relaySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer relaySrv.Close()

	g := NewGate(&fakeAuth{status: models.AccountPendingActivation})
	ctx := context.Background()
	_ = g.SignIn(ctx, goodCreds)

	s, err := Open(ctx, Options{Gate: g, Client: backend.NewRelayClient(relaySrv.URL)})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if !s.Guest || s.Owner != backend.GuestOwner {
		t.Fatalf("owner %q guest %v", s.Owner, s.Guest)
	}
	if n := len(s.Store().List()); n != 2 {
		t.Fatalf("expected sample data, got %d entries", n)
	}
	if _, err := s.Orchestrator.AddAnime(ctx, "Mushishi", 1); err != nil {
		t.Fatal(err)
	}
	s.Orchestrator.Wait()
	if hits.Load() != 0 {
		t.Fatalf("relay contacted %d times", hits.Load())
	}
}

func TestTokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token.json")
	if _, ok, err := LoadToken(path); err != nil || ok {
		t.Fatalf("missing file: ok=%v err=%v", ok, err)
	}
	want := backend.AuthResult{UserID: "u1", Username: "rin", Email: "rin@example.com", Token: "t", ExpiresAt: time.Now().Add(time.Hour).UTC().Truncate(time.Second)}
	if err := SaveToken(path, want); err != nil {
		t.Fatal(err)
	}
	got, ok, err := LoadToken(path)
	if err != nil || !ok || got.Token != want.Token || !got.ExpiresAt.Equal(want.ExpiresAt) {
		t.Fatalf("got %+v ok=%v err=%v", got, ok, err)
	}
	if err := ClearToken(path); err != nil {
		t.Fatal(err)
	}
	if err := ClearToken(path); err != nil {
		t.Fatalf("second clear: %v", err)
	}
}
