package backend

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

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"anipink/internal/auth"
	"anipink/internal/docstore"
	"anipink/internal/relay"
	synchub "anipink/internal/sync"
	"anipink/pkg/database"
	"anipink/pkg/models"
)

type staticCreds struct {
	uid, token string
	ok         bool
}

func (c staticCreds) Credential() (string, string, bool) { return c.uid, c.token, c.ok }

func TestRemoteWithoutCredentialNeverCallsRelay(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := NewRemote(NewRelayClient(srv.URL), staticCreds{})
	ctx := context.Background()

	if err := r.WriteAnime(ctx, "u1", models.Anime{ID: "a"}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("write anime: %v", err)
	}
	if err := r.WriteProfile(ctx, "u1", models.ProfileUpdate{}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("write profile: %v", err)
	}
	if _, err := r.SubscribeList(ctx, "u1", func(models.Anime) {}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("subscribe: %v", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("relay called %d times without a credential", calls.Load())
	}
}

func TestRelayStatusMapping(t *testing.T) {
	for status, want := range map[int]error{
		http.StatusBadRequest:         ErrInvalid,
		http.StatusUnauthorized:       ErrUnauthorized,
		http.StatusForbidden:          ErrForbidden,
		http.StatusServiceUnavailable: ErrUnavailable,
	} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":"nope"}`))
		}))
		err := NewRelayClient(srv.URL).PutAnime(context.Background(), "tok", "u1", models.Anime{ID: "a"})
		srv.Close()
		if !errors.Is(err, want) {
			t.Fatalf("status %d: got %v want %v", status, err, want)
		}
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Message != "nope" {
			t.Fatalf("status %d: missing api error detail: %v", status, err)
		}
	}
}

func TestRelayUnreachableIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	err := NewRelayClient(url).PutProfile(context.Background(), "tok", "u1", models.ProfileUpdate{})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

// startRelay runs the real relay over a temp sqlite database.
func startRelay(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db, err := database.OpenMigrated(database.Config{Path: filepath.Join(t.TempDir(), "relay.db")})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	hub := synchub.NewHub()
	router := relay.NewRouter(relay.Options{
		Tokens:    auth.TokenService{Secret: []byte("s"), Issuer: "anipink-test", Duration: time.Hour},
		Users:     auth.NewRepo(db),
		Store:     docstore.New(db, hub),
		Hub:       hub,
		StaticDir: t.TempDir(),
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

type animeSink struct {
	mu  sync.Mutex
	got []models.Anime
	ch  chan struct{}
}

func newAnimeSink() *animeSink { return &animeSink{ch: make(chan struct{}, 16)} }

func (s *animeSink) add(a models.Anime) {
	s.mu.Lock()
	s.got = append(s.got, a)
	s.mu.Unlock()
	s.ch <- struct{}{}
}

func (s *animeSink) wait(t *testing.T) models.Anime {
	t.Helper()
	select {
	case <-s.ch:
	case <-time.After(3 * time.Second):
		t.Fatal("no notification")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.got[len(s.got)-1]
}

func TestRemoteRoundTripAcrossSessions(t *testing.T) {
	srv := startRelay(t)
	client := NewRelayClient(srv.URL)
	ctx := context.Background()

	acct, err := client.Register(ctx, "levi@scouts.example", "password1", "")
	if err != nil {
		t.Fatal(err)
	}
	creds := staticCreds{uid: acct.UserID, token: acct.Token, ok: true}

	// two devices on the same account
	deviceA := NewRemote(client, creds)
	deviceB := NewRemote(NewRelayClient(srv.URL), creds)

	sink := newAnimeSink()
	sub, err := deviceB.SubscribeList(ctx, acct.UserID, sink.add)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	a := models.Anime{ID: "aot", Title: "Attack on Titan", CurrentEpisode: 1, Status: models.StatusWatching, Rating: models.IntPtr(9), Revision: 1}
	if err := deviceA.WriteAnime(ctx, acct.UserID, a); err != nil {
		t.Fatal(err)
	}
	if got := sink.wait(t); got.ID != "aot" || got.CurrentEpisode != 1 {
		t.Fatalf("unexpected %+v", got)
	}

	a.CurrentEpisode = 2
	a.Rating = nil
	if err := deviceA.WriteAnime(ctx, acct.UserID, a); err != nil {
		t.Fatal(err)
	}
	got := sink.wait(t)
	if got.CurrentEpisode != 2 || got.Rating == nil || *got.Rating != 9 {
		t.Fatalf("merge not reflected: %+v", got)
	}

	if err := deviceA.WriteAnime(ctx, "someone-else", a); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestRemoteProfileRoundTrip(t *testing.T) {
	srv := startRelay(t)
	client := NewRelayClient(srv.URL)
	ctx := context.Background()

	acct, err := client.Register(ctx, "hange@scouts.example", "password1", "")
	if err != nil {
		t.Fatal(err)
	}
	r := NewRemote(client, staticCreds{uid: acct.UserID, token: acct.Token, ok: true})

	profiles := make(chan models.Profile, 8)
	sub, err := r.SubscribeProfile(ctx, acct.UserID, func(p models.Profile) { profiles <- p })
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	first := <-profiles
	if first.Username != "hange" {
		t.Fatalf("initial profile %+v", first)
	}

	likes := []string{"Titans", "Science"}
	if err := r.WriteProfile(ctx, acct.UserID, models.ProfileUpdate{Likes: &likes}); err != nil {
		t.Fatal(err)
	}
	select {
	case p := <-profiles:
		set := map[string]bool{}
		for _, l := range p.Likes {
			set[l] = true
		}
		if len(set) != 2 || !set["Titans"] || !set["Science"] {
			t.Fatalf("likes round trip %v", p.Likes)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("profile change not delivered")
	}
}

func TestRemoteSubscriptionEndsWhenRelayDrops(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"anime.change","doc_id":"a","seq":1,"doc":{"id":"a"}}`))
		_ = conn.Close()
	}))
	defer srv.Close()

	r := NewRemote(NewRelayClient(srv.URL), staticCreds{uid: "u1", token: "tok", ok: true})
	sink := newAnimeSink()
	sub, err := r.SubscribeList(context.Background(), "u1", sink.add)
	if err != nil {
		t.Fatal(err)
	}
	if got := sink.wait(t); got.ID != "a" {
		t.Fatalf("unexpected %+v", got)
	}

	select {
	case <-sub.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("subscription did not end")
	}
	if !errors.Is(sub.Err(), ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", sub.Err())
	}
}

func TestRemoteDropsStaleEvents(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, msg := range []string{
			`{"type":"anime.change","doc_id":"a","seq":5,"doc":{"id":"a","currentEpisode":5}}`,
			`{"type":"anime.change","doc_id":"a","seq":5,"doc":{"id":"a","currentEpisode":5}}`,
			`{"type":"anime.change","doc_id":"a","seq":3,"doc":{"id":"a","currentEpisode":3}}`,
			`{"type":"anime.change","doc_id":"a","seq":6,"doc":{"id":"a","currentEpisode":6}}`,
		} {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(msg))
		}
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	r := NewRemote(NewRelayClient(srv.URL), staticCreds{uid: "u1", token: "tok", ok: true})
	sink := newAnimeSink()
	sub, err := r.SubscribeList(context.Background(), "u1", sink.add)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	if got := sink.wait(t); got.CurrentEpisode != 5 {
		t.Fatalf("first %+v", got)
	}
	if got := sink.wait(t); got.CurrentEpisode != 6 {
		t.Fatalf("stale event applied: %+v", got)
	}
}
