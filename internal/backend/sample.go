package backend

import "anipink/pkg/models"

// GuestOwner is the owner key used for the signed-out session.
const GuestOwner = "guest"

// SampleAnime is the watch list a fresh guest session starts with.
func SampleAnime() []models.Anime {
	return []models.Anime{
		{
			ID:               "1",
			Title:            "One Piece",
			CurrentEpisode:   1089,
			Status:           models.StatusWatching,
			CurrentArc:       models.StringPtr("Egghead Island"),
			EpisodesToArcEnd: models.IntPtr(15),
			TotalEpisodes:    models.IntPtr(1100),
			Rating:           models.IntPtr(9),
			Revision:         1,
		},
		{
			ID:             "2",
			Title:          "Frieren: Beyond Journey's End",
			CurrentEpisode: 28,
			Status:         models.StatusCompleted,
			TotalEpisodes:  models.IntPtr(28),
			Rating:         models.IntPtr(10),
			Revision:       1,
		},
	}
}
