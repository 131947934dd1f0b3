// Package backend persists the watch list and profile. Local keeps guest
// data on this machine; Remote talks to the relay for signed-in accounts.
// Both deliver every committed write to their subscribers in commit order.
package backend

import (
	"context"
	"errors"
	"sync"

	"anipink/pkg/models"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrUnavailable  = errors.New("backend unavailable")
	ErrInvalid      = errors.New("invalid request")
	ErrForbidden    = errors.New("forbidden")
)

type Backend interface {
	SubscribeList(ctx context.Context, ownerID string, fn func(models.Anime)) (*Subscription, error)
	SubscribeProfile(ctx context.Context, ownerID string, fn func(models.Profile)) (*Subscription, error)
	WriteAnime(ctx context.Context, ownerID string, a models.Anime) error
	WriteProfile(ctx context.Context, ownerID string, u models.ProfileUpdate) error
}

// Subscription is the handle returned by Subscribe*. Close stops delivery;
// Done is closed once no further notification will be made.
type Subscription struct {
	cancel func()
	done   chan struct{}

	once    sync.Once
	errOnce sync.Once
	mu      sync.Mutex
	err     error
}

func newSubscription(cancel func()) *Subscription {
	return &Subscription{cancel: cancel, done: make(chan struct{})}
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.finish(nil)
	})
}

func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err reports why delivery ended. It is nil after a plain Close.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Subscription) finish(err error) {
	s.errOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
	})
}
