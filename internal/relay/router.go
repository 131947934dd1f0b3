package relay

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"anipink/internal/auth"
	"anipink/internal/docstore"
	"anipink/internal/sync"
	"anipink/pkg/models"
)

type Options struct {
	Tokens auth.TokenService
	// Users and Store are nil when the database could not be opened; the
	// relay then still serves the UI and answers 503 on the API.
	Users         *auth.Repo
	Store         *docstore.Store
	Hub           *sync.Hub
	StaticDir     string
	DefaultStatus models.AccountStatus
}

func NewRouter(opts Options) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	_ = router.SetTrustedProxies([]string{"127.0.0.1"})

	hub := opts.Hub
	if hub == nil {
		hub = sync.NewHub()
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/ready", func(c *gin.Context) {
		stats := hub.Stats()
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := opts.Store.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":      "not_ready",
				"db_error":    err.Error(),
				"tcp_clients": stats.TCPClients,
				"ws_clients":  stats.WSClients,
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":      "ready",
			"db":          "ok",
			"tcp_clients": stats.TCPClients,
			"ws_clients":  stats.WSClients,
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authGroup := router.Group("/auth")
	if opts.Users != nil {
		var profiles auth.ProfileCreator
		if opts.Store != nil {
			profiles = opts.Store
		}
		auth.NewHandler(opts.Users, opts.Tokens, profiles, opts.DefaultStatus).RegisterRoutes(authGroup)
	} else {
		authGroup.Any("/*path", unavailable)
	}

	api := router.Group("/api")
	api.Use(auth.AuthMiddleware(opts.Tokens, opts.Users))

	var docs Documents
	var snap sync.Snapshotter
	if opts.Store != nil {
		docs = opts.Store
		snap = opts.Store
	}
	NewHandler(docs).RegisterRoutes(api)
	api.GET("/subscribe", sync.WSHandler(hub, snap))

	router.NoRoute(spaHandler(opts.StaticDir))
	return router
}

func unavailable(c *gin.Context) {
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": "server database not connected"})
}

// spaHandler serves files from dir and falls back to index.html so the
// client-side router can resolve the path.
func spaHandler(dir string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}

		rel := filepath.FromSlash(filepath.Clean("/" + c.Request.URL.Path))
		candidate := filepath.Join(dir, rel)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			c.File(candidate)
			return
		}

		index := filepath.Join(dir, "index.html")
		if _, err := os.Stat(index); err != nil {
			c.String(http.StatusInternalServerError, "Error loading application.")
			return
		}
		c.File(index)
	}
}
