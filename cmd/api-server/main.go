package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"anipink/internal/auth"
	"anipink/internal/docstore"
	"anipink/internal/relay"
	synchub "anipink/internal/sync"
	"anipink/pkg/database"
	"anipink/pkg/logging"
	"anipink/pkg/models"
	"anipink/pkg/utils"
)

func main() {
	srvCfg, err := utils.LoadServerConfig()
	if err != nil {
		bootLog := logging.Logger()
		bootLog.Fatal().Err(err).Msg("config")
	}
	logging.Init(logging.Config{Level: srvCfg.LogLevel, Format: srvCfg.LogFormat})
	log := logging.Component("api-server")

	authCfg, err := utils.LoadAuthConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("auth config")
	}
	tokenSvc := auth.TokenService{
		Secret:   []byte(authCfg.JWTSecret),
		Issuer:   authCfg.JWTIssuer,
		Duration: authCfg.JWTDuration,
	}

	// A missing database keeps the server up; writes answer 503.
	dbCfg := database.DefaultConfig()
	db, err := database.OpenMigrated(dbCfg)
	if err != nil {
		log.Error().Err(err).Str("path", dbCfg.Path).Msg("document store unavailable")
	} else {
		defer db.Close()
	}

	hub := synchub.NewHub()
	var pub synchub.Publisher = hub

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var bridge *synchub.RedisBridge
	if srvCfg.RedisAddr != "" {
		bridge = synchub.NewRedisBridge(srvCfg.RedisAddr, srvCfg.RedisPassword, srvCfg.RedisChannel, hub)
		if err := bridge.Start(ctx); err != nil {
			log.Warn().Err(err).Str("addr", srvCfg.RedisAddr).Msg("redis fan-out disabled")
			_ = bridge.Close()
			bridge = nil
		} else {
			pub = bridge
		}
	}

	opts := relay.Options{
		Tokens:        tokenSvc,
		Hub:           hub,
		StaticDir:     srvCfg.StaticDir,
		DefaultStatus: models.AccountStatus(srvCfg.DefaultAccountStatus),
	}
	var users *auth.Repo
	if db != nil {
		users = auth.NewRepo(db)
		opts.Users = users
		opts.Store = docstore.New(db, pub)
	}

	verify := func(token string) (string, error) {
		vctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		claims, err := auth.Verify(vctx, tokenSvc, users, token)
		if err != nil {
			return "", err
		}
		return claims.UserID, nil
	}
	tcpSrv := synchub.NewServer(srvCfg.SyncAddr, hub, verify)

	httpSrv := &http.Server{
		Addr:              srvCfg.Addr,
		Handler:           relay.NewRouter(opts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := tcpSrv.Run(); err != nil {
			errCh <- err
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Str("addr", srvCfg.Addr).Msg("relay listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := tcpSrv.Close(); err != nil {
		log.Error().Err(err).Msg("tcp shutdown")
	}
	if bridge != nil {
		_ = bridge.Close()
	}

	wg.Wait()
	log.Info().Msg("servers stopped")
}
