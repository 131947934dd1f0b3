package ai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"anipink/pkg/logging"
	"anipink/pkg/metrics"
	"anipink/pkg/models"
	"anipink/pkg/utils"
)

// ErrMalformed is returned when the model answered but the payload is
// missing required data.
var ErrMalformed = errors.New("malformed ai response")

// Generator is the model call the advisor depends on.
type Generator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
	GenerateJSON(ctx context.Context, prompt string, schema *Schema) (string, error)
}

type BreakerConfig struct {
	Name             string
	FailureThreshold uint32
	Timeout          time.Duration
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{Name: "gemini", FailureThreshold: 3, Timeout: 30 * time.Second}
}

// Advisor answers arc, completion, recommendation and motivation queries.
// All calls share one circuit breaker so an outage fails fast.
type Advisor struct {
	gen     Generator
	breaker *gobreaker.CircuitBreaker[string]
}

func NewAdvisor(gen Generator, cfg BreakerConfig) *Advisor {
	settings := gobreaker.Settings{
		Name:    cfg.Name,
		Timeout: cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			log := logging.Component("ai")
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	}
	return &Advisor{gen: gen, breaker: gobreaker.NewCircuitBreaker[string](settings)}
}

// New builds the advisor from configuration. Without an API key every call
// fails with ErrNoAPIKey and callers fall back to their defaults.
func New(cfg utils.AIConfig) *Advisor {
	client, err := NewClient(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiBaseURL, cfg.Timeout)
	if err != nil {
		return NewAdvisor(offline{}, DefaultBreakerConfig())
	}
	return NewAdvisor(client, DefaultBreakerConfig())
}

func (a *Advisor) State() string {
	return a.breaker.State().String()
}

var arcSchema = &Schema{
	Type: "OBJECT",
	Properties: map[string]*Schema{
		"currentArc":       {Type: "STRING"},
		"episodesToArcEnd": {Type: "NUMBER"},
		"totalEpisodes":    {Type: "NUMBER"},
		"correctTitle":     {Type: "STRING"},
	},
	Required: []string{"currentArc", "episodesToArcEnd", "totalEpisodes"},
}

func (a *Advisor) LookupArcInfo(ctx context.Context, title string, episode int) (models.ArcInfo, error) {
	prompt := fmt.Sprintf(`For the anime %q, looking at episode %d:
1. What is the name of the current story arc?
2. How many episodes are left until this specific arc ends?
3. What is the total number of episodes currently released/planned?
4. If the title is misspelled or not the official English title, give the correct title.

Return JSON.`, title, episode)

	text, err := a.json(ctx, "arc", prompt, arcSchema)
	if err != nil {
		return models.ArcInfo{}, err
	}

	var raw struct {
		CurrentArc       *string  `json:"currentArc"`
		EpisodesToArcEnd *float64 `json:"episodesToArcEnd"`
		TotalEpisodes    *float64 `json:"totalEpisodes"`
		CorrectTitle     string   `json:"correctTitle"`
	}
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return models.ArcInfo{}, fmt.Errorf("decode arc info: %w: %w", ErrMalformed, err)
	}
	if raw.CurrentArc == nil || strings.TrimSpace(*raw.CurrentArc) == "" || raw.EpisodesToArcEnd == nil || raw.TotalEpisodes == nil {
		return models.ArcInfo{}, fmt.Errorf("arc info: %w: missing fields", ErrMalformed)
	}

	info := models.ArcInfo{
		CurrentArc:       strings.TrimSpace(*raw.CurrentArc),
		EpisodesToArcEnd: max(0, round(*raw.EpisodesToArcEnd)),
		TotalEpisodes:    max(0, round(*raw.TotalEpisodes)),
		CorrectTitle:     strings.TrimSpace(raw.CorrectTitle),
	}
	if strings.EqualFold(info.CorrectTitle, title) {
		info.CorrectTitle = ""
	}
	return info, nil
}

var predictionSchema = &Schema{
	Type: "OBJECT",
	Properties: map[string]*Schema{
		"probability": {Type: "NUMBER"},
		"reason":      {Type: "STRING"},
	},
	Required: []string{"probability", "reason"},
}

func (a *Advisor) PredictCompletion(ctx context.Context, title string, likes []string) (models.Prediction, error) {
	prompt := fmt.Sprintf(`The user wants to watch %q.
User previously liked: %s.

Based on the anime's length, pacing, and genre fit with user likes:
Calculate a percentage probability (0-100) that they will finish it.
Give a short, witty reason.`, title, strings.Join(likes, ", "))

	text, err := a.json(ctx, "predict", prompt, predictionSchema)
	if err != nil {
		return models.Prediction{}, err
	}
	var raw struct {
		Probability *float64 `json:"probability"`
		Reason      string   `json:"reason"`
	}
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return models.Prediction{}, fmt.Errorf("decode prediction: %w: %w", ErrMalformed, err)
	}
	if raw.Probability == nil {
		return models.Prediction{}, fmt.Errorf("prediction: %w: missing probability", ErrMalformed)
	}
	return models.Prediction{Probability: clampPercent(round(*raw.Probability)), Reason: strings.TrimSpace(raw.Reason)}, nil
}

var recommendationSchema = &Schema{
	Type: "ARRAY",
	Items: &Schema{
		Type: "OBJECT",
		Properties: map[string]*Schema{
			"title":      {Type: "STRING"},
			"reason":     {Type: "STRING"},
			"matchScore": {Type: "NUMBER"},
		},
		Required: []string{"title", "reason", "matchScore"},
	},
}

// Recommend suggests new shows. Titles already in watched are removed even
// when the model ignores the instruction.
func (a *Advisor) Recommend(ctx context.Context, watched []models.Anime, likes, dislikes []string) ([]models.Recommendation, error) {
	history := make([]string, 0, len(watched))
	for _, w := range watched {
		rating := "unrated"
		if w.Rating != nil {
			rating = fmt.Sprintf("%d", *w.Rating)
		}
		history = append(history, fmt.Sprintf("%s (%s)", w.Title, rating))
	}
	prompt := fmt.Sprintf(`User History:
ALREADY WATCHED / WATCHING (DO NOT RECOMMEND THESE): %s

User Likes: %s
User Dislikes: %s

Task: Recommend 3 NEW anime they haven't seen.
Rules:
1. IGNORE any title listed in "ALREADY WATCHED".
2. Base recommendations on their "Likes" and "Dislikes".
3. If "Likes" is empty, suggest generally highly-rated diverse anime not in the watched list.
4. Ensure variety in genres.

Return JSON array.`, strings.Join(history, ", "), strings.Join(likes, ", "), strings.Join(dislikes, ", "))

	text, err := a.json(ctx, "recommend", prompt, recommendationSchema)
	if err != nil {
		return nil, err
	}
	var raw []struct {
		Title      string   `json:"title"`
		Reason     string   `json:"reason"`
		MatchScore *float64 `json:"matchScore"`
	}
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("decode recommendations: %w: %w", ErrMalformed, err)
	}

	out := make([]models.Recommendation, 0, len(raw))
	for _, r := range raw {
		title := strings.TrimSpace(r.Title)
		if title == "" || Watched(watched, title) {
			continue
		}
		score := 0
		if r.MatchScore != nil {
			score = clampPercent(round(*r.MatchScore))
		}
		out = append(out, models.Recommendation{Title: title, Reason: strings.TrimSpace(r.Reason), MatchScore: score})
	}
	return out, nil
}

func (a *Advisor) Motivate(ctx context.Context, title string) (string, error) {
	prompt := fmt.Sprintf(`The user wants to put %q on hold. Give a very short, intense 1-sentence motivation to keep watching because the next arc is fire.`, title)
	text, err := a.call("motivate", func() (string, error) {
		return a.gen.GenerateText(ctx, prompt)
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

// Watched reports whether title is already in the list, ignoring case.
func Watched(list []models.Anime, title string) bool {
	for _, w := range list {
		if strings.EqualFold(strings.TrimSpace(w.Title), strings.TrimSpace(title)) {
			return true
		}
	}
	return false
}

func (a *Advisor) json(ctx context.Context, op, prompt string, schema *Schema) (string, error) {
	return a.call(op, func() (string, error) {
		return a.gen.GenerateJSON(ctx, prompt, schema)
	})
}

func (a *Advisor) call(op string, fn func() (string, error)) (string, error) {
	text, err := a.breaker.Execute(fn)
	outcome := "ok"
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		outcome = "rejected"
	case errors.Is(err, ErrNoAPIKey):
		outcome = "offline"
	case err != nil:
		outcome = "error"
	}
	metrics.AIRequests.WithLabelValues(op, outcome).Inc()
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return text, nil
}

// maxCount bounds model-supplied numbers before integer conversion.
const maxCount = 1_000_000

func round(f float64) int {
	if math.IsNaN(f) {
		return 0
	}
	return int(math.Round(min(maxCount, max(-maxCount, f))))
}

func clampPercent(v int) int {
	return min(100, max(0, v))
}

type offline struct{}

func (offline) GenerateText(context.Context, string) (string, error) { return "", ErrNoAPIKey }

func (offline) GenerateJSON(context.Context, string, *Schema) (string, error) {
	return "", ErrNoAPIKey
}
