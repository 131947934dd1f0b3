package session

import (
	"context"
	"errors"
	"fmt"

	"anipink/internal/backend"
	"anipink/internal/tracker"
	"anipink/pkg/logging"
)

type Options struct {
	Gate    *Gate
	Client  *backend.RelayClient
	GuestKV backend.KV
	Advisor tracker.Advisor
}

// Session is one signed-in or guest run of the tracker. The backend is
// chosen once in Open and never swapped.
type Session struct {
	Owner        string
	Guest        bool
	Reconciler   *tracker.Reconciler
	Orchestrator *tracker.Orchestrator

	local *backend.Local
}

// Open starts a Reconciler over the remote backend when the gate is Active
// and over a seeded local backend otherwise.
func Open(ctx context.Context, opts Options) (*Session, error) {
	s := &Session{}
	var b backend.Backend

	var (
		uid string
		ok  bool
	)
	if opts.Gate != nil {
		uid, _, ok = opts.Gate.Credential()
	}
	if ok {
		if opts.Client == nil {
			return nil, errors.New("open session: relay client required for signed-in use")
		}
		b = backend.NewRemote(opts.Client, opts.Gate)
		s.Owner = uid
	} else {
		s.local = backend.NewLocal(opts.GuestKV, backend.LocalOptions{Seed: true})
		b = s.local
		s.Owner = backend.GuestOwner
		s.Guest = true
	}

	s.Reconciler = tracker.NewReconciler(b, nil)
	if err := s.Reconciler.Start(ctx, s.Owner); err != nil {
		if s.local != nil {
			_ = s.local.Close()
		}
		return nil, fmt.Errorf("open session: %w", err)
	}
	s.Orchestrator = tracker.NewOrchestrator(s.Reconciler, opts.Advisor)

	log := logging.Component("session")
	log.Debug().Str("owner", s.Owner).Bool("guest", s.Guest).Msg("session opened")
	return s, nil
}

func (s *Session) Store() *tracker.Store { return s.Reconciler.Store() }

// Close waits for enrichments, disposes the subscriptions and closes the
// guest store.
func (s *Session) Close() error {
	s.Orchestrator.Wait()
	s.Reconciler.Stop()
	if s.local != nil {
		return s.local.Close()
	}
	return nil
}
