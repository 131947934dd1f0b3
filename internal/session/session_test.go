package session

import (
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"anipink/internal/auth"
	"anipink/internal/backend"
	"anipink/internal/docstore"
	"anipink/internal/relay"
	synchub "anipink/internal/sync"
	"anipink/pkg/database"
	"anipink/pkg/models"
)

type stubAdvisor struct{}

func (stubAdvisor) LookupArcInfo(context.Context, string, int) (models.ArcInfo, error) {
	return models.ArcInfo{CurrentArc: "Opening Arc", EpisodesToArcEnd: 4, TotalEpisodes: 24}, nil
}

func (stubAdvisor) PredictCompletion(context.Context, string, []string) (models.Prediction, error) {
	return models.Prediction{}, errors.New("unused")
}

func (stubAdvisor) Recommend(context.Context, []models.Anime, []string, []string) ([]models.Recommendation, error) {
	return nil, errors.New("unused")
}

func (stubAdvisor) Motivate(context.Context, string) (string, error) { return "", errors.New("unused") }

func startRelay(t *testing.T, status models.AccountStatus) *backend.RelayClient {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db, err := database.OpenMigrated(database.Config{Path: filepath.Join(t.TempDir(), "relay.db")})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	hub := synchub.NewHub()
	srv := httptest.NewServer(relay.NewRouter(relay.Options{
		Tokens:        auth.TokenService{Secret: []byte("s"), Issuer: "anipink-test", Duration: time.Hour},
		Users:         auth.NewRepo(db),
		Store:         docstore.New(db, hub),
		Hub:           hub,
		StaticDir:     t.TempDir(),
		DefaultStatus: status,
	}))
	t.Cleanup(srv.Close)
	return backend.NewRelayClient(srv.URL)
}

func TestActiveSessionSyncsThroughRelay(t *testing.T) {
	client := startRelay(t, models.AccountActive)
	ctx := context.Background()

	g := NewGate(client)
	reg := Registration{Email: "shinji@example.com", Password: "evangelion", ConfirmPassword: "evangelion", Consent: true}
	if err := g.Register(ctx, reg); err != nil {
		t.Fatal(err)
	}

	s, err := Open(ctx, Options{Gate: g, Client: client, Advisor: stubAdvisor{}})
	if err != nil {
		t.Fatal(err)
	}
	user, _ := g.User()
	if s.Guest || s.Owner != user.UserID {
		t.Fatalf("owner %q guest %v", s.Owner, s.Guest)
	}
	if n := len(s.Store().List()); n != 0 {
		t.Fatalf("new account should start empty, got %d", n)
	}

	a, err := s.Orchestrator.AddAnime(ctx, "Evangelion", 1)
	if err != nil {
		t.Fatal(err)
	}
	s.Orchestrator.Wait()
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	list, err := client.ListAnime(ctx, user.Token)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != a.ID || list[0].CurrentArc == nil || *list[0].CurrentArc != "Opening Arc" {
		t.Fatalf("relay holds %+v", list)
	}
}

func TestPendingRegistrationIsSignedOut(t *testing.T) {
	client := startRelay(t, models.AccountPendingActivation)
	ctx := context.Background()

	g := NewGate(client)
	reg := Registration{Email: "asuka@example.com", Password: "evangelion", ConfirmPassword: "evangelion", Consent: true}
	if err := g.Register(ctx, reg); !errors.Is(err, ErrPendingActivation) {
		t.Fatalf("got %v", err)
	}
	if g.Message() != MsgPendingApproval {
		t.Fatalf("message %q", g.Message())
	}

	// status is checked again on every sign in
	if err := g.SignIn(ctx, Credentials{Email: reg.Email, Password: reg.Password}); !errors.Is(err, ErrPendingActivation) {
		t.Fatalf("second sign in: %v", err)
	}
}
