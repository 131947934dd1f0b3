package backend

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"anipink/pkg/logging"
	"anipink/pkg/models"
)

// CredentialSource hands out the signed-in account's token. ok is false
// whenever no active session exists.
type CredentialSource interface {
	Credential() (uid, token string, ok bool)
}

// Remote is the signed-in backend. It never touches the network without a
// credential.
type Remote struct {
	Client *RelayClient
	Creds  CredentialSource
}

func NewRemote(client *RelayClient, creds CredentialSource) *Remote {
	return &Remote{Client: client, Creds: creds}
}

func (r *Remote) token() (string, error) {
	if r.Creds == nil {
		return "", ErrUnauthorized
	}
	_, token, ok := r.Creds.Credential()
	if !ok || token == "" {
		return "", ErrUnauthorized
	}
	return token, nil
}

func (r *Remote) WriteAnime(ctx context.Context, ownerID string, a models.Anime) error {
	token, err := r.token()
	if err != nil {
		return fmt.Errorf("write anime: %w", err)
	}
	if a.ID == "" {
		return fmt.Errorf("write anime: %w: missing id", ErrInvalid)
	}
	return r.Client.PutAnime(ctx, token, ownerID, a)
}

func (r *Remote) WriteProfile(ctx context.Context, ownerID string, u models.ProfileUpdate) error {
	token, err := r.token()
	if err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	return r.Client.PutProfile(ctx, token, ownerID, u)
}

func (r *Remote) SubscribeList(ctx context.Context, ownerID string, fn func(models.Anime)) (*Subscription, error) {
	return r.subscribe(ctx, "anime", func(doc []byte) error {
		var a models.Anime
		if err := json.Unmarshal(doc, &a); err != nil {
			return err
		}
		fn(a)
		return nil
	})
}

func (r *Remote) SubscribeProfile(ctx context.Context, ownerID string, fn func(models.Profile)) (*Subscription, error) {
	return r.subscribe(ctx, "profile", func(doc []byte) error {
		var p models.Profile
		if err := json.Unmarshal(doc, &p); err != nil {
			return err
		}
		if p.Likes == nil {
			p.Likes = []string{}
		}
		if p.Dislikes == nil {
			p.Dislikes = []string{}
		}
		fn(p)
		return nil
	})
}

// changeEvent mirrors what the relay pushes on the subscribe stream.
type changeEvent struct {
	Type  string          `json:"type"`
	DocID string          `json:"doc_id"`
	Seq   int64           `json:"seq"`
	Doc   json.RawMessage `json:"doc"`
}

func (r *Remote) subscribe(ctx context.Context, topic string, deliver func(doc []byte) error) (*Subscription, error) {
	token, err := r.token()
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}
	conn, err := r.Client.Subscribe(ctx, token, topic)
	if err != nil {
		return nil, err
	}

	var closed atomic.Bool
	var closeOnce sync.Once
	sub := newSubscription(func() {
		closed.Store(true)
		closeOnce.Do(func() {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = conn.Close()
		})
	})

	go func() {
		log := logging.Component("remote")
		// snapshot and live events can overlap; only newer commits apply
		lastSeq := map[string]int64{}
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				if closed.Load() {
					sub.finish(nil)
				} else {
					log.Warn().Err(err).Str("topic", topic).Msg("subscription ended")
					sub.finish(fmt.Errorf("subscribe %s: %w: %w", topic, ErrUnavailable, err))
				}
				closeOnce.Do(func() { _ = conn.Close() })
				return
			}
			var ev changeEvent
			if err := json.Unmarshal(raw, &ev); err != nil {
				log.Warn().Err(err).Str("topic", topic).Msg("drop malformed change")
				continue
			}
			if ev.Seq > 0 && ev.Seq <= lastSeq[ev.DocID] {
				continue
			}
			lastSeq[ev.DocID] = ev.Seq
			if closed.Load() {
				continue
			}
			if err := deliver(ev.Doc); err != nil {
				log.Warn().Err(err).Str("topic", topic).Str("doc_id", ev.DocID).Msg("drop undecodable document")
			}
		}
	}()
	return sub, nil
}
