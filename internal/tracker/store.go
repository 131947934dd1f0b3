package tracker

import (
	"reflect"
	"sort"
	"sync"

	"anipink/pkg/models"
)

// Store holds the canonical in-memory copy of the session's watch list and
// profile. Only the Reconciler writes to it.
type Store struct {
	mu      sync.RWMutex
	anime   map[string]models.Anime
	order   map[string]int
	next    int
	profile models.Profile
}

func NewStore() *Store {
	return &Store{
		anime:   make(map[string]models.Anime),
		order:   make(map[string]int),
		profile: models.GuestProfile(),
	}
}

// applyAnime replaces the entity with the same id. Notifications arrive in
// commit order, so the incoming value wins regardless of its revision. It
// reports whether anything changed.
func (s *Store) applyAnime(a models.Anime) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.anime[a.ID]
	if ok {
		if reflect.DeepEqual(cur, a) {
			return false
		}
	} else {
		s.order[a.ID] = s.next
		s.next++
	}
	s.anime[a.ID] = a.Clone()
	return true
}

// applyWrite merges a write this session just committed into the held
// entity and returns the merged value. A held revision newer than a means a
// later commit was already delivered, so the store keeps it.
func (s *Store) applyWrite(a models.Anime) models.Anime {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.anime[a.ID]
	if !ok {
		s.order[a.ID] = s.next
		s.next++
		s.anime[a.ID] = a.Clone()
		return a.Clone()
	}
	merged := models.MergeAnime(cur, a)
	if cur.Revision <= a.Revision {
		s.anime[a.ID] = merged.Clone()
	}
	return merged
}

func (s *Store) applyProfile(p models.Profile) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if reflect.DeepEqual(s.profile, p) {
		return false
	}
	s.profile = p.Clone()
	return true
}

func (s *Store) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.anime = make(map[string]models.Anime)
	s.order = make(map[string]int)
	s.next = 0
	s.profile = models.GuestProfile()
}

func (s *Store) Anime(id string) (models.Anime, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.anime[id]
	if !ok {
		return models.Anime{}, false
	}
	return a.Clone(), true
}

// List returns entities in the order they first appeared.
func (s *Store) List() []models.Anime {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Anime, 0, len(s.anime))
	for _, a := range s.anime {
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return s.order[out[i].ID] < s.order[out[j].ID] })
	return out
}

// Watching returns the entities with status Watching.
func (s *Store) Watching() []models.Anime {
	var out []models.Anime
	for _, a := range s.List() {
		if a.Status == models.StatusWatching {
			out = append(out, a)
		}
	}
	return out
}

func (s *Store) Profile() models.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile.Clone()
}
