package sync

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"anipink/internal/auth"
	"anipink/pkg/logging"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // the relay serves the UI and the API from one origin
	},
}

// Snapshotter returns the current documents of one topic for an account.
type Snapshotter interface {
	Snapshot(ctx context.Context, uid, topic string) ([]ChangeEvent, error)
}

// WSHandler streams an account's documents for ?topic=anime|profile:
// first the current snapshot, then every committed change.
func WSHandler(hub *Hub, snap Snapshotter) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := auth.MustGetClaims(c)
		if claims == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		topic := c.DefaultQuery("topic", TopicAnime)
		if topic != TopicAnime && topic != TopicProfile {
			c.JSON(http.StatusBadRequest, gin.H{"error": "topic must be anime or profile"})
			return
		}
		if snap == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "document store unavailable"})
			return
		}

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		log := logging.Component("ws")

		// Register before reading the snapshot so no commit falls between them.
		client := hub.Register(claims.UserID, topic, TransportWS)
		log.Debug().Str("uid", claims.UserID).Str("topic", topic).Msg("client connected")

		events, err := snap.Snapshot(c.Request.Context(), claims.UserID, topic)
		if err != nil {
			log.Error().Err(err).Str("uid", claims.UserID).Msg("snapshot failed")
			hub.Unregister(client)
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "snapshot failed"),
				time.Now().Add(writeWait))
			_ = ws.Close()
			return
		}
		for _, ev := range events {
			if err := writeEvent(ws, ev); err != nil {
				hub.Unregister(client)
				_ = ws.Close()
				return
			}
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			readLoop(ws)
		}()

		writeLoop(ws, client, done)
		hub.Unregister(client)
		_ = ws.Close()
		<-done
		log.Debug().Str("uid", claims.UserID).Str("topic", topic).Msg("client disconnected")
	}
}

func writeEvent(ws *websocket.Conn, ev ChangeEvent) error {
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteJSON(ev)
}

// readLoop only consumes control frames; subscribers never send data.
func readLoop(ws *websocket.Conn) {
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

func writeLoop(ws *websocket.Conn, client *Client, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-client.Send():
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "dropped"))
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
