package models

// ArcInfo is what the AI service knows about a show at a given episode.
type ArcInfo struct {
	CurrentArc       string `json:"currentArc"`
	EpisodesToArcEnd int    `json:"episodesToArcEnd"`
	TotalEpisodes    int    `json:"totalEpisodes"`
	CorrectTitle     string `json:"correctTitle,omitempty"`
}

type Prediction struct {
	Probability int    `json:"probability"`
	Reason      string `json:"reason"`
}

type Recommendation struct {
	Title      string `json:"title"`
	Reason     string `json:"reason"`
	MatchScore int    `json:"matchScore"`
}
