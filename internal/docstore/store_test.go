package docstore

import (
	"context"
	"errors"
	"path/filepath"
	gosync "sync"
	"testing"

	"github.com/goccy/go-json"

	"anipink/internal/sync"
	"anipink/pkg/database"
	"anipink/pkg/models"
)

type recorder struct {
	mu     gosync.Mutex
	events []sync.ChangeEvent
}

func (r *recorder) Publish(ev sync.ChangeEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func newTestStore(t *testing.T) (*Store, *recorder) {
	t.Helper()
	db, err := database.OpenMigrated(database.Config{Path: filepath.Join(t.TempDir(), "docs.db")})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	rec := &recorder{}
	return New(db, rec), rec
}

func mustFields(t *testing.T, v any) Fields {
	t.Helper()
	f, err := toFields(v)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestUpsertAnimeMergesTopLevelFields(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	full := models.Anime{
		ID: "a1", Title: "Naruto", CurrentEpisode: 3, Status: models.StatusWatching,
		CurrentArc: models.StringPtr("Land of Waves"), EpisodesToArcEnd: models.IntPtr(16),
		TotalEpisodes: models.IntPtr(220), Rating: models.IntPtr(8), Revision: 1,
	}
	if _, err := s.UpsertAnime(ctx, "u1", mustFields(t, full)); err != nil {
		t.Fatal(err)
	}

	// advance-style write without optional fields keeps them
	patch := models.Anime{ID: "a1", Title: "Naruto", CurrentEpisode: 4, Status: models.StatusWatching, Revision: 2}
	if _, err := s.UpsertAnime(ctx, "u1", mustFields(t, patch)); err != nil {
		t.Fatal(err)
	}

	docs, err := s.ListAnime(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected one doc, got %d", len(docs))
	}
	var got models.Anime
	if err := json.Unmarshal(docs[0].Doc, &got); err != nil {
		t.Fatal(err)
	}
	if got.CurrentEpisode != 4 || got.Revision != 2 {
		t.Fatalf("scalars not applied: %+v", got)
	}
	if got.CurrentArc == nil || *got.CurrentArc != "Land of Waves" || got.Rating == nil || *got.Rating != 8 {
		t.Fatalf("optional fields lost: %+v", got)
	}
}

func TestUpsertAnimeRequiresID(t *testing.T) {
	s, rec := newTestStore(t)
	_, err := s.UpsertAnime(context.Background(), "u1", Fields{"title": json.RawMessage(`"x"`)})
	if !errors.Is(err, ErrMissingID) {
		t.Fatalf("expected ErrMissingID, got %v", err)
	}
	if len(rec.events) != 0 {
		t.Fatal("rejected write must not publish")
	}
}

func TestCommitsPublishInSequenceOrder(t *testing.T) {
	s, rec := newTestStore(t)
	ctx := context.Background()

	for i, id := range []string{"a", "b", "a"} {
		f := Fields{"id": json.RawMessage(`"` + id + `"`), "currentEpisode": json.RawMessage([]byte{byte('0' + i)})}
		if _, err := s.UpsertAnime(ctx, "u1", f); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.SetAccountStatus(ctx, "u1", models.AccountDenied); err != nil {
		t.Fatal(err)
	}

	if len(rec.events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(rec.events))
	}
	for i := 1; i < len(rec.events); i++ {
		if rec.events[i].Seq <= rec.events[i-1].Seq {
			t.Fatalf("seq not increasing: %d then %d", rec.events[i-1].Seq, rec.events[i].Seq)
		}
	}
	if rec.events[3].Type != sync.EventProfileChange || rec.events[3].Topic() != sync.TopicProfile {
		t.Fatalf("unexpected last event %+v", rec.events[3])
	}

	docs, _ := s.ListAnime(ctx, "u1")
	if len(docs) != 2 || docs[0].ID != "b" || docs[1].ID != "a" {
		t.Fatalf("list not in commit order: %+v", docs)
	}
}

func TestProfileDefaultsAndMerge(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	p, err := s.Profile(ctx, "u2")
	if err != nil {
		t.Fatal(err)
	}
	if p.Status != "" || len(p.Likes) != 0 {
		t.Fatalf("unexpected default profile %+v", p)
	}

	if err := s.InitProfile(ctx, "u2", models.Profile{Username: "mikasa", Likes: []string{}, Dislikes: []string{}, Status: models.AccountPendingActivation}); err != nil {
		t.Fatal(err)
	}
	upd := models.ProfileUpdate{Likes: &[]string{"Mecha"}}
	if _, err := s.MergeProfile(ctx, "u2", mustFields(t, upd)); err != nil {
		t.Fatal(err)
	}

	p, err = s.Profile(ctx, "u2")
	if err != nil {
		t.Fatal(err)
	}
	if p.Username != "mikasa" || p.UID != "u2" || p.Status != models.AccountPendingActivation {
		t.Fatalf("merge lost fields: %+v", p)
	}
	if len(p.Likes) != 1 || p.Likes[0] != "Mecha" {
		t.Fatalf("likes not merged: %+v", p.Likes)
	}
}

func TestSnapshot(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	_, _ = s.UpsertAnime(ctx, "u1", Fields{"id": json.RawMessage(`"x"`)})
	_, _ = s.UpsertAnime(ctx, "u2", Fields{"id": json.RawMessage(`"y"`)})

	evs, err := s.Snapshot(ctx, "u1", sync.TopicAnime)
	if err != nil {
		t.Fatal(err)
	}
	if len(evs) != 1 || evs[0].DocID != "x" || evs[0].Type != sync.EventAnimeChange {
		t.Fatalf("unexpected snapshot %+v", evs)
	}

	evs, err = s.Snapshot(ctx, "u1", sync.TopicProfile)
	if err != nil || len(evs) != 1 || evs[0].Seq != 0 {
		t.Fatalf("profile snapshot %+v %v", evs, err)
	}

	if _, err := s.Snapshot(ctx, "u1", "chat"); err == nil {
		t.Fatal("expected unknown topic error")
	}
}

func TestNilStoreIsUnavailable(t *testing.T) {
	var s *Store
	if err := s.Ping(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("ping: %v", err)
	}
	if _, err := s.ListAnime(context.Background(), "u"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("list: %v", err)
	}
}

func TestClosedDatabaseIsUnavailable(t *testing.T) {
	s, _ := newTestStore(t)
	_ = s.DB.Close()
	_, err := s.UpsertAnime(context.Background(), "u1", Fields{"id": json.RawMessage(`"z"`)})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
