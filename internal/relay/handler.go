package relay

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"anipink/internal/auth"
	"anipink/internal/docstore"
	"anipink/internal/sync"
	"anipink/pkg/logging"
	"anipink/pkg/metrics"
)

// Documents is the document store as seen by the relay.
type Documents interface {
	UpsertAnime(ctx context.Context, uid string, fields docstore.Fields) (sync.ChangeEvent, error)
	MergeProfile(ctx context.Context, uid string, fields docstore.Fields) (sync.ChangeEvent, error)
	ListAnime(ctx context.Context, uid string) ([]docstore.Doc, error)
	ProfileDoc(ctx context.Context, uid string) (docstore.Doc, error)
}

// Handler serves the /api write and read endpoints. A nil Docs means the
// document store never came up and every call answers 503.
type Handler struct {
	Docs Documents
}

func NewHandler(docs Documents) *Handler {
	return &Handler{Docs: docs}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/anime", h.writeAnime)
	rg.GET("/anime", h.listAnime)
	rg.POST("/profile", h.writeProfile)
	rg.GET("/profile", h.getProfile)
}

type animeReq struct {
	UID   string          `json:"uid"`
	Anime docstore.Fields `json:"anime"`
}

func (h *Handler) writeAnime(c *gin.Context) {
	claims, ok := h.begin(c, "anime")
	if !ok {
		return
	}

	var req animeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		reject(c, "anime", http.StatusBadRequest, "invalid json")
		return
	}
	req.UID = strings.TrimSpace(req.UID)
	if req.UID == "" || req.Anime == nil {
		reject(c, "anime", http.StatusBadRequest, "missing data")
		return
	}
	if req.UID != claims.UserID {
		reject(c, "anime", http.StatusForbidden, "uid does not match token")
		return
	}

	ev, err := h.Docs.UpsertAnime(c.Request.Context(), req.UID, req.Anime)
	if err != nil {
		h.fail(c, "anime", err)
		return
	}

	log := logging.Component("relay")
	log.Info().Str("uid", req.UID).Str("anime_id", ev.DocID).Int64("seq", ev.Seq).Msg("anime written")
	metrics.RelayWrites.WithLabelValues("anime", "ok").Inc()
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type profileReq struct {
	UID     string          `json:"uid"`
	Updates docstore.Fields `json:"updates"`
}

func (h *Handler) writeProfile(c *gin.Context) {
	claims, ok := h.begin(c, "profile")
	if !ok {
		return
	}

	var req profileReq
	if err := c.ShouldBindJSON(&req); err != nil {
		reject(c, "profile", http.StatusBadRequest, "invalid json")
		return
	}
	req.UID = strings.TrimSpace(req.UID)
	if req.UID == "" || req.Updates == nil {
		reject(c, "profile", http.StatusBadRequest, "missing data")
		return
	}
	if req.UID != claims.UserID {
		reject(c, "profile", http.StatusForbidden, "uid does not match token")
		return
	}

	// account state is changed by administrators only
	delete(req.Updates, "status")
	delete(req.Updates, "uid")
	if len(req.Updates) == 0 {
		metrics.RelayWrites.WithLabelValues("profile", "ok").Inc()
		c.JSON(http.StatusOK, gin.H{"success": true})
		return
	}

	ev, err := h.Docs.MergeProfile(c.Request.Context(), req.UID, req.Updates)
	if err != nil {
		h.fail(c, "profile", err)
		return
	}

	log := logging.Component("relay")
	log.Info().Str("uid", req.UID).Int64("seq", ev.Seq).Msg("profile written")
	metrics.RelayWrites.WithLabelValues("profile", "ok").Inc()
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) listAnime(c *gin.Context) {
	claims, ok := h.begin(c, "")
	if !ok {
		return
	}
	docs, err := h.Docs.ListAnime(c.Request.Context(), claims.UserID)
	if err != nil {
		h.fail(c, "", err)
		return
	}
	items := make([]any, 0, len(docs))
	for _, d := range docs {
		items = append(items, d.Doc)
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": len(items)})
}

func (h *Handler) getProfile(c *gin.Context) {
	claims, ok := h.begin(c, "")
	if !ok {
		return
	}
	d, err := h.Docs.ProfileDoc(c.Request.Context(), claims.UserID)
	if err != nil {
		h.fail(c, "", err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", d.Doc)
}

// begin checks the caller and the store. kind is the write metric label,
// empty for reads.
func (h *Handler) begin(c *gin.Context, kind string) (*auth.Claims, bool) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		reject(c, kind, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}
	if h.Docs == nil {
		reject(c, kind, http.StatusServiceUnavailable, "server database not connected")
		return nil, false
	}
	return claims, true
}

func (h *Handler) fail(c *gin.Context, kind string, err error) {
	switch {
	case errors.Is(err, docstore.ErrMissingID):
		reject(c, kind, http.StatusBadRequest, "missing data")
	case errors.Is(err, docstore.ErrUnavailable):
		log := logging.Component("relay")
		log.Error().Err(err).Msg("document store unavailable")
		reject(c, kind, http.StatusServiceUnavailable, "server database not connected")
	default:
		log := logging.Component("relay")
		log.Error().Err(err).Msg("write failed")
		reject(c, kind, http.StatusInternalServerError, err.Error())
	}
}

func reject(c *gin.Context, kind string, status int, msg string) {
	if kind != "" {
		metrics.RelayWrites.WithLabelValues(kind, outcomeFor(status)).Inc()
	}
	c.JSON(status, gin.H{"error": msg})
}

func outcomeFor(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusServiceUnavailable:
		return "unavailable"
	default:
		return "error"
	}
}
