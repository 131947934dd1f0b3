package tracker

import (
	"context"
	"strings"

	"anipink/internal/validate"
	"anipink/pkg/logging"
	"anipink/pkg/models"
)

// PredictCompletion estimates whether the user will finish title. When the
// AI service fails a neutral estimate is returned instead.
func (o *Orchestrator) PredictCompletion(ctx context.Context, title string) (models.Prediction, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return models.Prediction{}, validate.Fields("title", "is required")
	}
	fallback := models.Prediction{Probability: fallbackProbability, Reason: fallbackProbabilityReason}
	if o.advisor == nil {
		return fallback, nil
	}
	p, err := o.advisor.PredictCompletion(ctx, title, o.Store().Profile().Likes)
	if err != nil {
		log := logging.Component("advice")
		log.Warn().Err(err).Msg("prediction failed, using fallback")
		return fallback, nil
	}
	return p, nil
}

// Recommend suggests shows that are not already on the list.
func (o *Orchestrator) Recommend(ctx context.Context) []models.Recommendation {
	watched := o.Store().List()
	profile := o.Store().Profile()

	var recs []models.Recommendation
	var err error
	if o.advisor != nil {
		recs, err = o.advisor.Recommend(ctx, watched, profile.Likes, profile.Dislikes)
	}
	if o.advisor == nil || err != nil {
		if err != nil {
			log := logging.Component("advice")
			log.Warn().Err(err).Msg("recommendations failed, using fallback")
		}
		recs = FallbackRecommendations()
	}
	return excludeWatched(recs, watched)
}

// Motivate returns a short message for a user about to put title on hold.
func (o *Orchestrator) Motivate(ctx context.Context, title string) string {
	if o.advisor == nil {
		return FallbackMotivation
	}
	msg, err := o.advisor.Motivate(ctx, title)
	if err != nil || strings.TrimSpace(msg) == "" {
		return FallbackMotivation
	}
	return strings.TrimSpace(msg)
}

func excludeWatched(recs []models.Recommendation, watched []models.Anime) []models.Recommendation {
	seen := make(map[string]struct{}, len(watched))
	for _, w := range watched {
		seen[strings.ToLower(strings.TrimSpace(w.Title))] = struct{}{}
	}
	out := make([]models.Recommendation, 0, len(recs))
	for _, r := range recs {
		if _, ok := seen[strings.ToLower(strings.TrimSpace(r.Title))]; ok {
			continue
		}
		out = append(out, r)
	}
	return out
}
