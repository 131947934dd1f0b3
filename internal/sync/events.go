package sync

import (
	"time"

	"github.com/goccy/go-json"
)

const (
	TopicAnime   = "anime"
	TopicProfile = "profile"
)

const (
	EventAnimeChange   = "anime.change"
	EventProfileChange = "profile.change"
)

// ChangeEvent is one committed document, pushed to every subscriber of the
// owning account. Seq is the store-wide commit sequence.
type ChangeEvent struct {
	Type  string          `json:"type"`
	UID   string          `json:"uid"`
	DocID string          `json:"doc_id,omitempty"`
	Seq   int64           `json:"seq"`
	Doc   json.RawMessage `json:"doc"`
	At    time.Time       `json:"at"`
}

func (e ChangeEvent) Topic() string {
	if e.Type == EventProfileChange {
		return TopicProfile
	}
	return TopicAnime
}

// Publisher receives committed changes in commit order.
type Publisher interface {
	Publish(ev ChangeEvent)
}
