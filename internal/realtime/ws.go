package realtime

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/eventpass/checkin-backend/internal/middleware"
	"github.com/eventpass/checkin-backend/pkg/response"
)

const (
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
	sendBuffer   = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Routes are behind JWT auth; tokens travel in the query string.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Subscriber is the read side of ScanFeed.
type Subscriber interface {
	Subscribe(ctx context.Context, eventID uuid.UUID, handler func(payload []byte)) (cancel func(), err error)
}

// ServeScans handles GET /ws/events/:id/scans. Every message on the event's
// feed is written to the socket until the client goes away.
func ServeScans(feed Subscriber, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		eventID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			response.BadRequest(c, "invalid event id")
			return
		}
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		send := make(chan []byte, sendBuffer)
		unsubscribe, err := feed.Subscribe(ctx, eventID, func(payload []byte) {
			select {
			case send <- payload:
			default:
				logger.Warn("scan feed client too slow, dropping message", zap.String("event_id", eventID.String()))
			}
		})
		if err != nil {
			logger.Error("scan feed subscribe failed", zap.Error(err))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscribe failed"))
			_ = conn.Close()
			return
		}
		defer unsubscribe()

		logger.Info("scan feed client connected",
			zap.String("event_id", eventID.String()),
			zap.String("user", c.GetString(middleware.ContextUserEmail)),
		)
		go readPump(conn, cancel)
		writePump(ctx, conn, send)
		logger.Info("scan feed client disconnected", zap.String("event_id", eventID.String()))
	}
}

// readPump discards client frames and cancels ctx once the connection drops.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writePump(ctx context.Context, conn *websocket.Conn, send <-chan []byte) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
