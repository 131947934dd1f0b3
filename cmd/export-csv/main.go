package main

import (
	"context"
	"encoding/csv"
	"flag"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"anipink/internal/auth"
	"anipink/internal/docstore"
	"anipink/pkg/database"
	"anipink/pkg/logging"
	"anipink/pkg/models"
)

func main() {
	var (
		email = flag.String("email", "", "account whose list to export")
		out   = flag.String("out", "data/anime_list.csv", "output CSV path")
	)
	flag.Parse()

	logging.Init(logging.Config{Level: "info", Format: "console"})
	log := logging.Component("export-csv")
	if *email == "" {
		log.Fatal().Msg("-email is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.OpenMigrated(database.DefaultConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()

	user, err := auth.NewRepo(db).FindByEmail(ctx, *email)
	if err != nil {
		log.Fatal().Err(err).Str("email", *email).Msg("lookup user")
	}

	n, err := exportAnime(ctx, docstore.New(db, nil), user.ID, *out)
	if err != nil {
		log.Fatal().Err(err).Msg("export anime")
	}
	log.Info().Int("rows", n).Str("path", *out).Msg("exported anime list")
}

func exportAnime(ctx context.Context, store *docstore.Store, uid, outPath string) (int, error) {
	docs, err := store.ListAnime(ctx, uid)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return 0, err
	}
	f, err := os.Create(outPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"id", "title", "status", "current_episode", "total_episodes", "rating", "current_arc", "episodes_to_arc_end"}); err != nil {
		return 0, err
	}

	for _, d := range docs {
		var a models.Anime
		if err := json.Unmarshal(d.Doc, &a); err != nil {
			return 0, err
		}
		if err := w.Write([]string{
			a.ID,
			a.Title,
			string(a.Status),
			strconv.Itoa(a.CurrentEpisode),
			optInt(a.TotalEpisodes),
			optInt(a.Rating),
			optString(a.CurrentArc),
			optInt(a.EpisodesToArcEnd),
		}); err != nil {
			return 0, err
		}
	}

	w.Flush()
	return len(docs), w.Error()
}

func optInt(p *int) string {
	if p == nil {
		return ""
	}
	return strconv.Itoa(*p)
}

func optString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
