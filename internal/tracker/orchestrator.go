package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"anipink/internal/validate"
	"anipink/pkg/logging"
	"anipink/pkg/metrics"
	"anipink/pkg/models"
)

// Advisor is the generative AI service. Any error is treated as "no answer".
type Advisor interface {
	LookupArcInfo(ctx context.Context, title string, episode int) (models.ArcInfo, error)
	PredictCompletion(ctx context.Context, title string, likes []string) (models.Prediction, error)
	Recommend(ctx context.Context, watched []models.Anime, likes, dislikes []string) ([]models.Recommendation, error)
	Motivate(ctx context.Context, title string) (string, error)
}

const (
	FallbackMotivation        = "Don't give up now, the best part is coming!"
	fallbackProbability       = 45
	fallbackProbabilityReason = "It's a long journey, proceed with caution."
)

// FallbackRecommendations is shown when the AI service cannot answer.
func FallbackRecommendations() []models.Recommendation {
	return []models.Recommendation{
		{Title: "Cowboy Bebop", Reason: "A classic you might have missed.", MatchScore: 90},
		{Title: "Jujutsu Kaisen", Reason: "Action packed and modern.", MatchScore: 85},
		{Title: "Spy x Family", Reason: "Wholesome and fun.", MatchScore: 80},
	}
}

// Orchestrator turns user actions into entity writes and runs arc
// enrichment: Provisional -> Enriching -> Resolved.
type Orchestrator struct {
	rec     *Reconciler
	advisor Advisor
	newID   func() string

	wg      sync.WaitGroup
	refresh singleflight.Group
}

func NewOrchestrator(rec *Reconciler, advisor Advisor) *Orchestrator {
	return &Orchestrator{rec: rec, advisor: advisor, newID: uuid.NewString}
}

func (o *Orchestrator) Store() *Store { return o.rec.Store() }

// Wait blocks until background enrichments have finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

type addIntent struct {
	Title   string `json:"title" validate:"required,max=200"`
	Episode int    `json:"episode" validate:"gte=0,lte=100000"`
}

// AddAnime writes the provisional entity and starts enrichment in the
// background. Titles are not deduplicated.
func (o *Orchestrator) AddAnime(ctx context.Context, title string, episode int) (models.Anime, error) {
	in := addIntent{Title: strings.TrimSpace(title), Episode: episode}
	if err := validate.Struct(in); err != nil {
		return models.Anime{}, err
	}

	a, err := o.rec.Create(ctx, models.Anime{
		ID:             o.newID(),
		Title:          in.Title,
		CurrentEpisode: in.Episode,
		Status:         models.StatusWatching,
	})
	if err != nil {
		return models.Anime{}, fmt.Errorf("add anime: %w", err)
	}
	o.enrichAsync(ctx, a)
	return a, nil
}

// Advance moves to the next episode. Crossing the end of the current arc
// starts a new lookup.
func (o *Orchestrator) Advance(ctx context.Context, id string) (models.Anime, error) {
	var arcEnded bool
	a, err := o.rec.Mutate(ctx, id, func(a models.Anime) (models.Anime, error) {
		a.CurrentEpisode++
		if a.EpisodesToArcEnd != nil {
			prev := *a.EpisodesToArcEnd
			a.EpisodesToArcEnd = models.IntPtr(max(0, prev-1))
			arcEnded = prev > 0 && *a.EpisodesToArcEnd == 0
		}
		if a.ReachedEnd() {
			a.Status = models.StatusCompleted
		}
		return a, nil
	})
	if err != nil {
		return models.Anime{}, fmt.Errorf("advance: %w", err)
	}
	if arcEnded {
		o.enrichAsync(ctx, a)
	}
	return a, nil
}

// RefreshArc re-runs enrichment now. Concurrent refreshes of one entity
// share a single lookup.
func (o *Orchestrator) RefreshArc(ctx context.Context, id string) (models.Anime, error) {
	v, err, _ := o.refresh.Do(id, func() (any, error) {
		base, ok := o.rec.Store().Anime(id)
		if !ok {
			return models.Anime{}, fmt.Errorf("refresh arc %s: %w", id, ErrNotFound)
		}
		return o.enrich(context.WithoutCancel(ctx), base)
	})
	a, _ := v.(models.Anime)
	return a, err
}

type rateIntent struct {
	Rating int `json:"rating" validate:"gte=1,lte=10"`
}

func (o *Orchestrator) Rate(ctx context.Context, id string, rating int) (models.Anime, error) {
	if err := validate.Struct(rateIntent{Rating: rating}); err != nil {
		return models.Anime{}, err
	}
	return o.rec.Mutate(ctx, id, func(a models.Anime) (models.Anime, error) {
		a.Rating = models.IntPtr(rating)
		return a, nil
	})
}

// SetStatus changes the status as asked; it may bypass the Completed rule.
func (o *Orchestrator) SetStatus(ctx context.Context, id string, status models.AnimeStatus) (models.Anime, error) {
	if _, ok := models.ParseStatus(string(status)); !ok {
		return models.Anime{}, validate.Fields("status", "must be one of Watching, Completed, Plan to Watch, Dropped")
	}
	return o.rec.Mutate(ctx, id, func(a models.Anime) (models.Anime, error) {
		a.Status = status
		return a, nil
	})
}

func (o *Orchestrator) enrichAsync(ctx context.Context, base models.Anime) {
	ctx = context.WithoutCancel(ctx)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		_, _ = o.enrich(ctx, base)
	}()
}

// maxEnrichAttempts bounds lookups for one enrichment when edits keep
// landing while the lookup is in flight.
const maxEnrichAttempts = 3

// enrich looks up arc info for base and commits the resolved or degraded
// entity. A lookup overtaken by an edit is repeated against the current
// revision; once attempts run out the entity is left pending so a refresh
// can pick it up. Lookup failures never reach the caller.
func (o *Orchestrator) enrich(ctx context.Context, base models.Anime) (models.Anime, error) {
	log := logging.Component("enrichment")

	for attempt := 1; attempt <= maxEnrichAttempts; attempt++ {
		a, err := o.enrichOnce(ctx, base)
		if !errors.Is(err, ErrSuperseded) {
			return a, err
		}
		metrics.Enrichments.WithLabelValues("superseded").Inc()
		log.Debug().Str("anime_id", base.ID).Int("attempt", attempt).Int("revision", a.Revision).Msg("retrying superseded lookup")
		base = a
	}

	a, err := o.rec.Mutate(ctx, base.ID, func(cur models.Anime) (models.Anime, error) {
		return markPending(cur), nil
	})
	if err != nil {
		metrics.Enrichments.WithLabelValues("error").Inc()
		log.Error().Err(err).Str("anime_id", base.ID).Msg("enrichment write failed")
		return models.Anime{}, err
	}
	log.Warn().Str("anime_id", base.ID).Msg("arc lookup kept being superseded")
	metrics.Enrichments.WithLabelValues("pending").Inc()
	return a, nil
}

func (o *Orchestrator) enrichOnce(ctx context.Context, base models.Anime) (models.Anime, error) {
	log := logging.Component("enrichment")

	info, lookupErr := o.lookup(ctx, base)
	if lookupErr != nil {
		log.Warn().Err(lookupErr).Str("anime_id", base.ID).Str("title", base.Title).Msg("arc lookup failed")
	}

	a, err := o.rec.CommitEnrichment(ctx, base, func(cur models.Anime) models.Anime {
		if lookupErr != nil {
			return markPending(cur)
		}
		return resolve(cur, info)
	})
	switch {
	case errors.Is(err, ErrSuperseded):
		return a, err
	case err != nil:
		metrics.Enrichments.WithLabelValues("error").Inc()
		log.Error().Err(err).Str("anime_id", base.ID).Msg("enrichment write failed")
		return models.Anime{}, err
	case lookupErr != nil:
		metrics.Enrichments.WithLabelValues("pending").Inc()
	default:
		metrics.Enrichments.WithLabelValues("resolved").Inc()
	}
	return a, nil
}

func markPending(a models.Anime) models.Anime {
	a.CurrentArc = models.StringPtr(models.ArcLookupPending)
	a.EpisodesToArcEnd = models.IntPtr(0)
	a.PendingLookup = true
	return a
}

func (o *Orchestrator) lookup(ctx context.Context, base models.Anime) (models.ArcInfo, error) {
	if o.advisor == nil {
		return models.ArcInfo{}, errors.New("no advisor configured")
	}
	info, err := o.advisor.LookupArcInfo(ctx, base.Title, base.CurrentEpisode)
	if err != nil {
		return models.ArcInfo{}, err
	}
	if strings.TrimSpace(info.CurrentArc) == "" || info.EpisodesToArcEnd < 0 || info.TotalEpisodes < 0 {
		return models.ArcInfo{}, fmt.Errorf("malformed arc info %+v", info)
	}
	return info, nil
}

func resolve(a models.Anime, info models.ArcInfo) models.Anime {
	a.CurrentArc = models.StringPtr(info.CurrentArc)
	a.EpisodesToArcEnd = models.IntPtr(info.EpisodesToArcEnd)
	if info.TotalEpisodes > 0 {
		a.TotalEpisodes = models.IntPtr(info.TotalEpisodes)
	}
	if t := strings.TrimSpace(info.CorrectTitle); t != "" {
		a.Title = t
	}
	a.PendingLookup = false
	if a.ReachedEnd() {
		a.Status = models.StatusCompleted
	}
	return a
}
