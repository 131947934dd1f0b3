package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"anipink/internal/auth"
	"anipink/internal/docstore"
	"anipink/pkg/database"
	"anipink/pkg/logging"
	"anipink/pkg/models"
)

func main() {
	var (
		email = flag.String("email", "", "account to import into")
		in    = flag.String("in", "data/anime_list.csv", "input CSV path (export-csv format)")
	)
	flag.Parse()

	logging.Init(logging.Config{Level: "info", Format: "console"})
	log := logging.Component("import-csv")
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

	n, err := importAnime(ctx, docstore.New(db, nil), user.ID, *in)
	if err != nil {
		log.Fatal().Err(err).Msg("import anime")
	}
	log.Info().Int("rows", n).Str("path", *in).Msg("imported anime list")
}

// importAnime merges each row into the account's list. Existing entries
// move to the next revision so signed-in clients accept the change.
func importAnime(ctx context.Context, store *docstore.Store, uid, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	existing, err := revisions(ctx, store, uid)
	if err != nil {
		return 0, err
	}

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := readHeader(r)
	if err != nil {
		return 0, err
	}

	n := 0
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return n, err
		}
		if len(row) == 0 {
			continue
		}

		a, err := parseRow(header, row)
		if err != nil {
			return n, err
		}
		if a.Title == "" {
			continue
		}
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		a.Revision = existing[a.ID] + 1

		raw, err := json.Marshal(a)
		if err != nil {
			return n, err
		}
		var fields docstore.Fields
		if err := json.Unmarshal(raw, &fields); err != nil {
			return n, err
		}
		if _, err := store.UpsertAnime(ctx, uid, fields); err != nil {
			return n, fmt.Errorf("upsert %s: %w", a.ID, err)
		}
		n++
	}

	return n, nil
}

func revisions(ctx context.Context, store *docstore.Store, uid string) (map[string]int, error) {
	docs, err := store.ListAnime(ctx, uid)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(docs))
	for _, d := range docs {
		var a models.Anime
		if err := json.Unmarshal(d.Doc, &a); err != nil {
			return nil, err
		}
		out[d.ID] = a.Revision
	}
	return out, nil
}

func parseRow(header map[string]int, row []string) (models.Anime, error) {
	a := models.Anime{
		ID:     valueAt(header, row, "id"),
		Title:  valueAt(header, row, "title"),
		Status: models.StatusWatching,
	}
	if raw := valueAt(header, row, "status"); raw != "" {
		st, ok := models.ParseStatus(raw)
		if !ok {
			return a, fmt.Errorf("parse status for %q: unknown %q", a.Title, raw)
		}
		a.Status = st
	}

	ep, err := parseOptInt(valueAt(header, row, "current_episode"))
	if err != nil {
		return a, fmt.Errorf("parse current_episode for %q: %w", a.Title, err)
	}
	if ep != nil {
		a.CurrentEpisode = *ep
	}
	if a.TotalEpisodes, err = parseOptInt(valueAt(header, row, "total_episodes")); err != nil {
		return a, fmt.Errorf("parse total_episodes for %q: %w", a.Title, err)
	}
	if a.Rating, err = parseOptInt(valueAt(header, row, "rating")); err != nil {
		return a, fmt.Errorf("parse rating for %q: %w", a.Title, err)
	}
	if a.EpisodesToArcEnd, err = parseOptInt(valueAt(header, row, "episodes_to_arc_end")); err != nil {
		return a, fmt.Errorf("parse episodes_to_arc_end for %q: %w", a.Title, err)
	}
	if arc := valueAt(header, row, "current_arc"); arc != "" {
		a.CurrentArc = models.StringPtr(arc)
	}
	return a, nil
}

func readHeader(r *csv.Reader) (map[string]int, error) {
	row, err := r.Read()
	if err != nil {
		return nil, err
	}
	header := make(map[string]int, len(row))
	for idx, name := range row {
		header[strings.TrimSpace(strings.ToLower(name))] = idx
	}
	return header, nil
}

func valueAt(header map[string]int, row []string, key string) string {
	idx, ok := header[key]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func parseOptInt(raw string) (*int, error) {
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, err
	}
	return &n, nil
}
