package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"anipink/internal/sync"
	"anipink/pkg/models"
)

// Doc is a stored document with the sequence of its last commit.
type Doc struct {
	ID  string
	Seq int64
	Doc json.RawMessage
}

// ListAnime returns the account's anime documents in commit order.
func (s *Store) ListAnime(ctx context.Context, uid string) ([]Doc, error) {
	if s == nil || s.DB == nil {
		return nil, ErrUnavailable
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, seq, doc FROM anime_docs
		WHERE uid = ?
		ORDER BY seq
	`, uid)
	if err != nil {
		return nil, fmt.Errorf("list anime: %w: %w", ErrUnavailable, err)
	}
	defer rows.Close()

	var out []Doc
	for rows.Next() {
		var d Doc
		var raw string
		if err := rows.Scan(&d.ID, &d.Seq, &raw); err != nil {
			return nil, fmt.Errorf("scan anime: %w", err)
		}
		d.Doc = json.RawMessage(raw)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list anime rows: %w", err)
	}
	return out, nil
}

// ProfileDoc returns the raw profile document. A missing profile yields an
// empty one with seq 0.
func (s *Store) ProfileDoc(ctx context.Context, uid string) (Doc, error) {
	if s == nil || s.DB == nil {
		return Doc{}, ErrUnavailable
	}
	var d Doc
	var raw string
	err := s.DB.QueryRowContext(ctx, `SELECT seq, doc FROM profile_docs WHERE uid = ?`, uid).Scan(&d.Seq, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		b, err := json.Marshal(models.Profile{UID: uid, Likes: []string{}, Dislikes: []string{}})
		if err != nil {
			return Doc{}, fmt.Errorf("encode default profile: %w", err)
		}
		return Doc{ID: uid, Doc: b}, nil
	}
	if err != nil {
		return Doc{}, fmt.Errorf("get profile: %w: %w", ErrUnavailable, err)
	}
	d.ID = uid
	d.Doc = json.RawMessage(raw)
	return d, nil
}

func (s *Store) Profile(ctx context.Context, uid string) (models.Profile, error) {
	d, err := s.ProfileDoc(ctx, uid)
	if err != nil {
		return models.Profile{}, err
	}
	var p models.Profile
	if err := json.Unmarshal(d.Doc, &p); err != nil {
		return models.Profile{}, fmt.Errorf("decode profile: %w", err)
	}
	return p, nil
}

// Snapshot implements sync.Snapshotter.
func (s *Store) Snapshot(ctx context.Context, uid, topic string) ([]sync.ChangeEvent, error) {
	switch topic {
	case sync.TopicProfile:
		d, err := s.ProfileDoc(ctx, uid)
		if err != nil {
			return nil, err
		}
		return []sync.ChangeEvent{{Type: sync.EventProfileChange, UID: uid, Seq: d.Seq, Doc: d.Doc}}, nil
	case sync.TopicAnime:
		docs, err := s.ListAnime(ctx, uid)
		if err != nil {
			return nil, err
		}
		out := make([]sync.ChangeEvent, 0, len(docs))
		for _, d := range docs {
			out = append(out, sync.ChangeEvent{Type: sync.EventAnimeChange, UID: uid, DocID: d.ID, Seq: d.Seq, Doc: d.Doc})
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown topic %q", topic)
	}
}
