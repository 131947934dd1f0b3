package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"anipink/internal/backend"
	"anipink/pkg/logging"
	"anipink/pkg/models"
)

var (
	// ErrSuperseded rejects an enrichment write whose base revision is
	// older than the entity held in the Store.
	ErrSuperseded = errors.New("enrichment superseded by a newer revision")
	ErrNotFound   = errors.New("anime not found")
	ErrNotStarted = errors.New("reconciler not started")
)

// Reconciler keeps the Store in step with one backend. Every notification
// replaces the matching entity or the profile wholesale; every write goes
// through it so read-modify-write on an entity is atomic.
type Reconciler struct {
	backend backend.Backend
	store   *Store

	mu      sync.Mutex
	owner   string
	listSub *backend.Subscription
	profSub *backend.Subscription

	entities keyedMutex
	profile  sync.Mutex
}

func NewReconciler(b backend.Backend, store *Store) *Reconciler {
	if store == nil {
		store = NewStore()
	}
	return &Reconciler{backend: b, store: store}
}

func (r *Reconciler) Store() *Store { return r.store }

func (r *Reconciler) Owner() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.owner
}

// Start subscribes to the owner's list and profile. A second Start without
// Stop is an error.
func (r *Reconciler) Start(ctx context.Context, ownerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listSub != nil {
		return fmt.Errorf("start reconciler: already started for %s", r.owner)
	}

	listSub, err := r.backend.SubscribeList(ctx, ownerID, func(a models.Anime) {
		r.store.applyAnime(a)
	})
	if err != nil {
		return fmt.Errorf("subscribe list: %w", err)
	}
	profSub, err := r.backend.SubscribeProfile(ctx, ownerID, func(p models.Profile) {
		r.store.applyProfile(p)
	})
	if err != nil {
		listSub.Close()
		return fmt.Errorf("subscribe profile: %w", err)
	}

	r.owner = ownerID
	r.listSub = listSub
	r.profSub = profSub
	watch("list", listSub)
	watch("profile", profSub)
	return nil
}

func watch(name string, sub *backend.Subscription) {
	go func() {
		<-sub.Done()
		if err := sub.Err(); err != nil {
			log := logging.Component("reconciler")
			log.Warn().Err(err).Str("subscription", name).Msg("subscription ended")
		}
	}()
}

// Stop disposes both subscriptions and clears the Store.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	listSub, profSub := r.listSub, r.profSub
	r.listSub, r.profSub = nil, nil
	r.owner = ""
	r.mu.Unlock()

	if listSub != nil {
		listSub.Close()
	}
	if profSub != nil {
		profSub.Close()
	}
	r.store.reset()
}

// Create writes a new entity at revision 1.
func (r *Reconciler) Create(ctx context.Context, a models.Anime) (models.Anime, error) {
	unlock := r.entities.lock(a.ID)
	defer unlock()
	a.Revision = 1
	return r.write(ctx, a)
}

// Mutate applies fn to the current entity and writes the result at the
// next revision. Writes for one id never interleave.
func (r *Reconciler) Mutate(ctx context.Context, id string, fn func(models.Anime) (models.Anime, error)) (models.Anime, error) {
	unlock := r.entities.lock(id)
	defer unlock()

	cur, ok := r.store.Anime(id)
	if !ok {
		return models.Anime{}, fmt.Errorf("mutate %s: %w", id, ErrNotFound)
	}
	next, err := fn(cur.Clone())
	if err != nil {
		return models.Anime{}, err
	}
	next.ID = cur.ID
	next.Revision = cur.Revision + 1
	return r.write(ctx, next)
}

// CommitEnrichment writes the result of an AI lookup that started from
// base. It fails with ErrSuperseded if the entity moved on meanwhile.
func (r *Reconciler) CommitEnrichment(ctx context.Context, base models.Anime, apply func(models.Anime) models.Anime) (models.Anime, error) {
	unlock := r.entities.lock(base.ID)
	defer unlock()

	cur, ok := r.store.Anime(base.ID)
	if !ok {
		return models.Anime{}, fmt.Errorf("enrich %s: %w", base.ID, ErrNotFound)
	}
	if cur.Revision > base.Revision {
		log := logging.Component("reconciler")
		log.Info().Str("anime_id", base.ID).Int("base_revision", base.Revision).Int("revision", cur.Revision).Msg("enrichment superseded")
		return cur, fmt.Errorf("enrich %s: %w", base.ID, ErrSuperseded)
	}
	next := apply(cur.Clone())
	next.ID = cur.ID
	next.Revision = base.Revision + 1
	return r.write(ctx, next)
}

func (r *Reconciler) write(ctx context.Context, a models.Anime) (models.Anime, error) {
	owner := r.Owner()
	if owner == "" {
		return models.Anime{}, ErrNotStarted
	}
	if err := r.backend.WriteAnime(ctx, owner, a); err != nil {
		log := logging.Component("reconciler")
		log.Error().Err(err).Str("anime_id", a.ID).Msg("write anime failed")
		return models.Anime{}, err
	}
	// the subscription echo may lag behind; apply what the backend committed
	return r.store.applyWrite(a), nil
}

// UpdateProfile computes a partial update from the current profile and
// writes it. Profile edits are serialized.
func (r *Reconciler) UpdateProfile(ctx context.Context, fn func(models.Profile) (models.ProfileUpdate, error)) (models.Profile, error) {
	r.profile.Lock()
	defer r.profile.Unlock()

	owner := r.Owner()
	if owner == "" {
		return models.Profile{}, ErrNotStarted
	}
	cur := r.store.Profile()
	upd, err := fn(cur.Clone())
	if err != nil {
		return models.Profile{}, err
	}
	if upd.Empty() {
		return cur, nil
	}
	if err := r.backend.WriteProfile(ctx, owner, upd); err != nil {
		log := logging.Component("reconciler")
		log.Error().Err(err).Msg("write profile failed")
		return models.Profile{}, err
	}
	next := cur.Apply(upd)
	r.store.applyProfile(next)
	return next, nil
}
