package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"github.com/goccy/go-json"

	"anipink/internal/sync"
	"anipink/pkg/models"
)

var (
	ErrUnavailable = errors.New("document store unavailable")
	ErrMissingID   = errors.New("document id missing")
)

// Fields is one JSON document split at the top level. Writes merge their
// fields over the stored document; keys that are absent keep their value.
type Fields map[string]json.RawMessage

// Store keeps per-account JSON documents: one profile and an anime
// collection keyed by anime id. Every commit takes the next value of a
// store-wide sequence and is published while the write lock is held, so
// subscribers see changes in commit order.
type Store struct {
	DB  *sql.DB
	Pub sync.Publisher

	mu gosync.Mutex
}

func New(db *sql.DB, pub sync.Publisher) *Store {
	return &Store{DB: db, Pub: pub}
}

func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return ErrUnavailable
	}
	if err := s.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w: %w", ErrUnavailable, err)
	}
	return nil
}

// UpsertAnime merge-writes one anime document. fields must carry "id".
func (s *Store) UpsertAnime(ctx context.Context, uid string, fields Fields) (sync.ChangeEvent, error) {
	id, err := stringField(fields, "id")
	if err != nil {
		return sync.ChangeEvent{}, err
	}
	return s.commit(ctx, sync.EventAnimeChange, uid, id, fields,
		`SELECT doc FROM anime_docs WHERE uid = ? AND id = ?`, []any{uid, id},
		`INSERT INTO anime_docs (uid, id, doc, seq) VALUES (?, ?, ?, ?)
		 ON CONFLICT (uid, id) DO UPDATE SET doc = excluded.doc, seq = excluded.seq, updated_at = CURRENT_TIMESTAMP`,
		func(doc []byte, seq int64) []any { return []any{uid, id, string(doc), seq} },
	)
}

// MergeProfile merge-writes the account's profile document.
func (s *Store) MergeProfile(ctx context.Context, uid string, fields Fields) (sync.ChangeEvent, error) {
	return s.commit(ctx, sync.EventProfileChange, uid, "", fields,
		`SELECT doc FROM profile_docs WHERE uid = ?`, []any{uid},
		`INSERT INTO profile_docs (uid, doc, seq) VALUES (?, ?, ?)
		 ON CONFLICT (uid) DO UPDATE SET doc = excluded.doc, seq = excluded.seq, updated_at = CURRENT_TIMESTAMP`,
		func(doc []byte, seq int64) []any { return []any{uid, string(doc), seq} },
	)
}

// InitProfile writes the first profile of a new account.
func (s *Store) InitProfile(ctx context.Context, uid string, p models.Profile) error {
	p.UID = uid
	fields, err := toFields(p)
	if err != nil {
		return err
	}
	_, err = s.MergeProfile(ctx, uid, fields)
	return err
}

// SetAccountStatus is the administrative switch for account activation.
func (s *Store) SetAccountStatus(ctx context.Context, uid string, status models.AccountStatus) error {
	raw, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	_, err = s.MergeProfile(ctx, uid, Fields{"status": raw})
	return err
}

func (s *Store) commit(
	ctx context.Context,
	eventType, uid, docID string,
	fields Fields,
	selectSQL string, selectArgs []any,
	upsertSQL string, upsertArgs func(doc []byte, seq int64) []any,
) (sync.ChangeEvent, error) {
	if s == nil || s.DB == nil {
		return sync.ChangeEvent{}, ErrUnavailable
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return sync.ChangeEvent{}, fmt.Errorf("begin: %w: %w", ErrUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	stored := Fields{}
	var raw string
	switch err := tx.QueryRowContext(ctx, selectSQL, selectArgs...).Scan(&raw); {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return sync.ChangeEvent{}, fmt.Errorf("load document: %w: %w", ErrUnavailable, err)
	default:
		if err := json.Unmarshal([]byte(raw), &stored); err != nil {
			return sync.ChangeEvent{}, fmt.Errorf("decode stored document: %w", err)
		}
	}
	for k, v := range fields {
		stored[k] = v
	}

	doc, err := json.Marshal(stored)
	if err != nil {
		return sync.ChangeEvent{}, fmt.Errorf("encode document: %w", err)
	}

	seq, err := nextSeq(ctx, tx)
	if err != nil {
		return sync.ChangeEvent{}, err
	}
	if _, err := tx.ExecContext(ctx, upsertSQL, upsertArgs(doc, seq)...); err != nil {
		return sync.ChangeEvent{}, fmt.Errorf("upsert document: %w: %w", ErrUnavailable, err)
	}
	if err := tx.Commit(); err != nil {
		return sync.ChangeEvent{}, fmt.Errorf("commit: %w: %w", ErrUnavailable, err)
	}

	ev := sync.ChangeEvent{
		Type:  eventType,
		UID:   uid,
		DocID: docID,
		Seq:   seq,
		Doc:   doc,
		At:    time.Now().UTC(),
	}
	if s.Pub != nil {
		s.Pub.Publish(ev)
	}
	return ev, nil
}

func nextSeq(ctx context.Context, tx *sql.Tx) (int64, error) {
	if _, err := tx.ExecContext(ctx, `UPDATE doc_seq SET value = value + 1 WHERE id = 1`); err != nil {
		return 0, fmt.Errorf("bump seq: %w: %w", ErrUnavailable, err)
	}
	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT value FROM doc_seq WHERE id = 1`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("read seq: %w: %w", ErrUnavailable, err)
	}
	return seq, nil
}

func stringField(fields Fields, key string) (string, error) {
	raw, ok := fields[key]
	if !ok {
		return "", ErrMissingID
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil || v == "" {
		return "", ErrMissingID
	}
	return v, nil
}

func toFields(v any) (Fields, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var f Fields
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("split document: %w", err)
	}
	return f, nil
}
