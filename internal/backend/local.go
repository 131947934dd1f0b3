package backend

import (
	"context"
	"fmt"
	"sync"

	"github.com/goccy/go-json"

	"anipink/pkg/models"
)

type LocalOptions struct {
	// Seed fills an owner's empty list with SampleAnime on first use.
	Seed bool
}

// Local is the guest backend. Writes commit synchronously to the KV and
// are delivered to this instance's subscribers before the write returns.
type Local struct {
	kv   KV
	opts LocalOptions

	mu       sync.Mutex
	nextID   int
	lists    map[int]listListener
	profiles map[int]profileListener
}

type listListener struct {
	owner string
	fn    func(models.Anime)
}

type profileListener struct {
	owner string
	fn    func(models.Profile)
}

func NewLocal(kv KV, opts LocalOptions) *Local {
	if kv == nil {
		kv = NewMemoryKV()
	}
	return &Local{
		kv:       kv,
		opts:     opts,
		lists:    make(map[int]listListener),
		profiles: make(map[int]profileListener),
	}
}

func listKey(owner string) string    { return owner + "/animeList" }
func profileKey(owner string) string { return owner + "/profile" }

func (l *Local) SubscribeList(ctx context.Context, ownerID string, fn func(models.Anime)) (*Subscription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	list, err := l.loadList(ownerID)
	if err != nil {
		return nil, err
	}
	for _, a := range list {
		fn(a.Clone())
	}

	id := l.nextID
	l.nextID++
	l.lists[id] = listListener{owner: ownerID, fn: fn}
	return newSubscription(func() {
		l.mu.Lock()
		delete(l.lists, id)
		l.mu.Unlock()
	}), nil
}

func (l *Local) SubscribeProfile(ctx context.Context, ownerID string, fn func(models.Profile)) (*Subscription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, err := l.loadProfile(ownerID)
	if err != nil {
		return nil, err
	}
	fn(p.Clone())

	id := l.nextID
	l.nextID++
	l.profiles[id] = profileListener{owner: ownerID, fn: fn}
	return newSubscription(func() {
		l.mu.Lock()
		delete(l.profiles, id)
		l.mu.Unlock()
	}), nil
}

// WriteAnime merge-upserts a by id, the same way the document store does.
func (l *Local) WriteAnime(ctx context.Context, ownerID string, a models.Anime) error {
	if a.ID == "" {
		return fmt.Errorf("write anime: %w: missing id", ErrInvalid)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	list, err := l.loadList(ownerID)
	if err != nil {
		return err
	}
	merged := a.Clone()
	found := false
	for i := range list {
		if list[i].ID == a.ID {
			merged = models.MergeAnime(list[i], a)
			list[i] = merged
			found = true
			break
		}
	}
	if !found {
		list = append(list, merged)
	}
	if err := l.save(listKey(ownerID), list); err != nil {
		return err
	}

	for _, lis := range l.lists {
		if lis.owner == ownerID {
			lis.fn(merged.Clone())
		}
	}
	return nil
}

func (l *Local) WriteProfile(ctx context.Context, ownerID string, u models.ProfileUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	p, err := l.loadProfile(ownerID)
	if err != nil {
		return err
	}
	p = p.Apply(u)
	if err := l.save(profileKey(ownerID), p); err != nil {
		return err
	}

	for _, lis := range l.profiles {
		if lis.owner == ownerID {
			lis.fn(p.Clone())
		}
	}
	return nil
}

// Anime returns the committed list.
func (l *Local) Anime(ownerID string) ([]models.Anime, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadList(ownerID)
}

func (l *Local) Close() error {
	return l.kv.Close()
}

func (l *Local) loadList(owner string) ([]models.Anime, error) {
	raw, ok, err := l.kv.Get(listKey(owner))
	if err != nil {
		return nil, fmt.Errorf("load anime list: %w: %w", ErrUnavailable, err)
	}
	if !ok {
		if !l.opts.Seed {
			return nil, nil
		}
		list := SampleAnime()
		if err := l.save(listKey(owner), list); err != nil {
			return nil, err
		}
		return list, nil
	}
	var list []models.Anime
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decode anime list: %w", err)
	}
	return list, nil
}

func (l *Local) loadProfile(owner string) (models.Profile, error) {
	raw, ok, err := l.kv.Get(profileKey(owner))
	if err != nil {
		return models.Profile{}, fmt.Errorf("load profile: %w: %w", ErrUnavailable, err)
	}
	if !ok {
		return models.GuestProfile(), nil
	}
	var p models.Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return models.Profile{}, fmt.Errorf("decode profile: %w", err)
	}
	return p, nil
}

func (l *Local) save(key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := l.kv.Set(key, b); err != nil {
		return fmt.Errorf("save %s: %w: %w", key, ErrUnavailable, err)
	}
	return nil
}
