package models

import "strings"

type AnimeStatus string

const (
	StatusWatching    AnimeStatus = "Watching"
	StatusCompleted   AnimeStatus = "Completed"
	StatusPlanToWatch AnimeStatus = "Plan to Watch"
	StatusDropped     AnimeStatus = "Dropped"
)

// ArcLookupPending is written to CurrentArc when enrichment failed and
// the entity is waiting for a manual refresh.
const ArcLookupPending = "Unknown (Lookup Pending)"

// Anime is one tracked show. Optional fields are pointers: nil means the
// field is absent from a write and a merge leaves the stored value alone.
type Anime struct {
	ID               string      `json:"id"`
	Title            string      `json:"title"`
	CurrentEpisode   int         `json:"currentEpisode"`
	TotalEpisodes    *int        `json:"totalEpisodes,omitempty"`
	Status           AnimeStatus `json:"status"`
	CoverImage       *string     `json:"coverImage,omitempty"`
	Rating           *int        `json:"rating,omitempty"`
	CurrentArc       *string     `json:"currentArc,omitempty"`
	EpisodesToArcEnd *int        `json:"episodesToArcEnd,omitempty"`
	PendingLookup    bool        `json:"pendingLookup"`
	Revision         int         `json:"revision"`
}

func ParseStatus(s string) (AnimeStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "watching":
		return StatusWatching, true
	case "completed":
		return StatusCompleted, true
	case "plan to watch", "plan_to_watch", "plantowatch":
		return StatusPlanToWatch, true
	case "dropped":
		return StatusDropped, true
	default:
		return "", false
	}
}

// Clone returns a deep copy so callers never share pointer fields.
func (a Anime) Clone() Anime {
	out := a
	out.TotalEpisodes = cloneInt(a.TotalEpisodes)
	out.Rating = cloneInt(a.Rating)
	out.EpisodesToArcEnd = cloneInt(a.EpisodesToArcEnd)
	out.CoverImage = cloneString(a.CoverImage)
	out.CurrentArc = cloneString(a.CurrentArc)
	return out
}

// ReachedEnd reports whether the known episode total has been reached.
func (a Anime) ReachedEnd() bool {
	return a.TotalEpisodes != nil && a.CurrentEpisode >= *a.TotalEpisodes
}

// MergeAnime overlays incoming onto stored the same way the document store
// merges JSON: scalar fields always win, nil pointers keep the stored value.
func MergeAnime(stored, incoming Anime) Anime {
	out := incoming.Clone()
	if out.TotalEpisodes == nil {
		out.TotalEpisodes = cloneInt(stored.TotalEpisodes)
	}
	if out.CoverImage == nil {
		out.CoverImage = cloneString(stored.CoverImage)
	}
	if out.Rating == nil {
		out.Rating = cloneInt(stored.Rating)
	}
	if out.CurrentArc == nil {
		out.CurrentArc = cloneString(stored.CurrentArc)
	}
	if out.EpisodesToArcEnd == nil {
		out.EpisodesToArcEnd = cloneInt(stored.EpisodesToArcEnd)
	}
	return out
}

func IntPtr(v int) *int { return &v }

func StringPtr(s string) *string { return &s }

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
