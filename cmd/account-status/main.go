// Command account-status sets the admin-managed account status that the
// client checks at sign in.
package main

import (
	"context"
	"flag"
	"strings"
	"time"

	"anipink/internal/auth"
	"anipink/internal/docstore"
	"anipink/pkg/database"
	"anipink/pkg/logging"
	"anipink/pkg/models"
)

func main() {
	var (
		email  = flag.String("email", "", "account email")
		status = flag.String("status", string(models.AccountActive), "active, pending_activation or denied")
	)
	flag.Parse()

	logging.Init(logging.Config{Level: "info", Format: "console"})
	log := logging.Component("account-status")
	*email = strings.ToLower(strings.TrimSpace(*email))
	if *email == "" {
		log.Fatal().Msg("-email is required")
	}
	st := models.NormalizeStatus(models.AccountStatus(*status))
	switch st {
	case models.AccountActive, models.AccountPendingActivation, models.AccountDenied:
	default:
		log.Fatal().Str("status", *status).Msg("unknown status")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
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
	// publishes nothing: running relays pick the status up at the next sign in
	if err := docstore.New(db, nil).SetAccountStatus(ctx, user.ID, st); err != nil {
		log.Fatal().Err(err).Msg("set status")
	}
	log.Info().Str("user_id", user.ID).Str("status", string(st)).Msg("account status updated")
}
