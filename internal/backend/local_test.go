package backend

import (
	"context"
	"errors"
	"testing"

	"anipink/pkg/models"
)

func collectList(t *testing.T, b Backend, owner string) (*[]models.Anime, *Subscription) {
	t.Helper()
	var got []models.Anime
	sub, err := b.SubscribeList(context.Background(), owner, func(a models.Anime) {
		got = append(got, a)
	})
	if err != nil {
		t.Fatal(err)
	}
	return &got, sub
}

func TestLocalSeedsSampleList(t *testing.T) {
	l := NewLocal(NewMemoryKV(), LocalOptions{Seed: true})
	got, sub := collectList(t, l, GuestOwner)
	defer sub.Close()

	if len(*got) != 2 {
		t.Fatalf("expected sample list, got %+v", *got)
	}
	op := (*got)[0]
	if op.Title != "One Piece" || op.CurrentEpisode != 1089 || *op.EpisodesToArcEnd != 15 || *op.TotalEpisodes != 1100 || *op.Rating != 9 {
		t.Fatalf("unexpected sample %+v", op)
	}
	fr := (*got)[1]
	if fr.Status != models.StatusCompleted || fr.CurrentEpisode != 28 || *fr.TotalEpisodes != 28 {
		t.Fatalf("unexpected sample %+v", fr)
	}
}

func TestLocalDeliversWritesInCommitOrder(t *testing.T) {
	l := NewLocal(nil, LocalOptions{})
	got, sub := collectList(t, l, GuestOwner)
	defer sub.Close()
	ctx := context.Background()

	for ep := 1; ep <= 5; ep++ {
		if err := l.WriteAnime(ctx, GuestOwner, models.Anime{ID: "a", Title: "Mushishi", CurrentEpisode: ep}); err != nil {
			t.Fatal(err)
		}
	}
	if len(*got) != 5 {
		t.Fatalf("expected 5 notifications, got %d", len(*got))
	}
	for i, a := range *got {
		if a.CurrentEpisode != i+1 {
			t.Fatalf("notification %d out of order: %+v", i, a)
		}
	}
}

func TestLocalMergeKeepsOptionalFields(t *testing.T) {
	l := NewLocal(nil, LocalOptions{})
	ctx := context.Background()
	_ = l.WriteAnime(ctx, GuestOwner, models.Anime{ID: "a", Title: "Monster", CurrentEpisode: 3, Rating: models.IntPtr(8), CurrentArc: models.StringPtr("Heinemann")})
	_ = l.WriteAnime(ctx, GuestOwner, models.Anime{ID: "a", Title: "Monster", CurrentEpisode: 4})

	list, err := l.Anime(GuestOwner)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].CurrentEpisode != 4 || list[0].Rating == nil || *list[0].Rating != 8 || *list[0].CurrentArc != "Heinemann" {
		t.Fatalf("unexpected %+v", list)
	}
}

func TestLocalCloseStopsDelivery(t *testing.T) {
	l := NewLocal(nil, LocalOptions{})
	got, sub := collectList(t, l, GuestOwner)
	sub.Close()
	sub.Close()
	select {
	case <-sub.Done():
	default:
		t.Fatal("Done not closed")
	}
	if sub.Err() != nil {
		t.Fatalf("unexpected err %v", sub.Err())
	}

	_ = l.WriteAnime(context.Background(), GuestOwner, models.Anime{ID: "a"})
	if len(*got) != 0 {
		t.Fatalf("closed subscription still notified: %+v", *got)
	}
}

func TestLocalInstancesAreIsolated(t *testing.T) {
	a := NewLocal(nil, LocalOptions{})
	b := NewLocal(nil, LocalOptions{})
	gotB, sub := collectList(t, b, GuestOwner)
	defer sub.Close()

	_ = a.WriteAnime(context.Background(), GuestOwner, models.Anime{ID: "x"})
	if len(*gotB) != 0 {
		t.Fatal("write leaked across backend instances")
	}
}

func TestLocalProfile(t *testing.T) {
	l := NewLocal(nil, LocalOptions{})
	var seen []models.Profile
	sub, err := l.SubscribeProfile(context.Background(), GuestOwner, func(p models.Profile) { seen = append(seen, p) })
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	likes := []string{"Mecha", "Isekai", "Mecha"}
	if err := l.WriteProfile(context.Background(), GuestOwner, models.ProfileUpdate{Likes: &likes}); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 2 || seen[0].Username != "Guest" {
		t.Fatalf("unexpected notifications %+v", seen)
	}
	if got := seen[1].Likes; len(got) != 2 || got[0] != "Mecha" || got[1] != "Isekai" {
		t.Fatalf("likes not deduplicated: %v", got)
	}
}

func TestLocalRejectsMissingID(t *testing.T) {
	l := NewLocal(nil, LocalOptions{})
	if err := l.WriteAnime(context.Background(), GuestOwner, models.Anime{Title: "x"}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestBadgerKVPersists(t *testing.T) {
	dir := t.TempDir()
	kv, err := OpenBadgerKV(dir)
	if err != nil {
		t.Fatal(err)
	}
	l := NewLocal(kv, LocalOptions{Seed: true})
	if err := l.WriteAnime(context.Background(), GuestOwner, models.Anime{ID: "1", Title: "One Piece", CurrentEpisode: 1090}); err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	kv, err = OpenBadgerKV(dir)
	if err != nil {
		t.Fatal(err)
	}
	l = NewLocal(kv, LocalOptions{Seed: true})
	defer l.Close()
	list, err := l.Anime(GuestOwner)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].CurrentEpisode != 1090 || list[0].CurrentArc == nil {
		t.Fatalf("unexpected persisted list %+v", list)
	}
}

func TestBadgerKVInMemory(t *testing.T) {
	kv, err := OpenBadgerKV("")
	if err != nil {
		t.Fatal(err)
	}
	defer kv.Close()
	if _, ok, err := kv.Get("missing"); ok || err != nil {
		t.Fatalf("missing key: ok=%v err=%v", ok, err)
	}
	if err := kv.Set("k", []byte("v")); err != nil {
		t.Fatal(err)
	}
	v, ok, err := kv.Get("k")
	if !ok || err != nil || string(v) != "v" {
		t.Fatalf("got %q ok=%v err=%v", v, ok, err)
	}
}
