package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"cafe_backend/internal/cache"
	"cafe_backend/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	liveWriteWait  = 10 * time.Second
	livePongWait   = 60 * time.Second
	livePingPeriod = (livePongWait * 9) / 10
	liveReadLimit  = 512
)

// EventSubscriber streams raw realtime events.
type EventSubscriber interface {
	Subscribe(ctx context.Context, channels ...string) (<-chan []byte, error)
}

// LiveHandler relays order and stock events to the admin board over a websocket.
type LiveHandler struct {
	events   EventSubscriber
	upgrader websocket.Upgrader
}

// NewLiveHandler creates a new LiveHandler. An empty allowedOrigins list accepts any origin.
func NewLiveHandler(events EventSubscriber, allowedOrigins []string) *LiveHandler {
	return &LiveHandler{
		events: events,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || len(allowedOrigins) == 0 {
					return true
				}
				for _, allowed := range allowedOrigins {
					if allowed == "*" || strings.EqualFold(allowed, origin) {
						return true
					}
				}
				return false
			},
		},
	}
}

// StreamOrders upgrades the request and forwards every event until either side closes.
func (h *LiveHandler) StreamOrders(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		utils.LogWarn("StreamOrders: websocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	events, err := h.events.Subscribe(ctx, cache.ChannelOrders, cache.ChannelInventory)
	if err != nil {
		utils.LogError(err, "StreamOrders: Failed to subscribe to realtime channels")
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscription failed"),
			time.Now().Add(liveWriteWait))
		return
	}

	go readLive(conn, cancel)
	writeLive(ctx, conn, events)
}

// readLive drains client frames so pongs and close frames are processed.
func readLive(conn *websocket.Conn, done context.CancelFunc) {
	defer done()
	conn.SetReadLimit(liveReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(livePongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(livePongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				utils.LogDebug("live board connection closed", map[string]interface{}{"error": err.Error()})
			}
			return
		}
	}
}

func writeLive(ctx context.Context, conn *websocket.Conn, events <-chan []byte) {
	ticker := time.NewTicker(livePingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(liveWriteWait))
			return
		case msg, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
