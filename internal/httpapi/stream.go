package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"call-agent/internal/session"
	"call-agent/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	streamWriteWait      = 10 * time.Second
	streamPongWait       = 60 * time.Second
	streamPingPeriod     = (streamPongWait * 9) / 10
	streamMaxMessageSize = 512
	streamBuffer         = 8
)

var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Single-operator tool; the session carries no credentials.
		return true
	},
}

// SessionStream upgrades to a websocket and pushes a JSON snapshot after
// every session change. Client messages are read and discarded.
func (h Handlers) SessionStream(c *gin.Context) {
	log := logger.FromGin(c)
	conn, err := streamUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn("session stream upgrade failed", "err", err)
		return
	}

	snaps, unsubscribe := h.Session.Subscribe(streamBuffer)
	sc := &streamClient{
		conn:        conn,
		snaps:       snaps,
		unsubscribe: unsubscribe,
		log:         log,
		done:        make(chan struct{}),
	}
	go sc.readPump()
	sc.writePump()
}

type streamClient struct {
	conn        *websocket.Conn
	snaps       <-chan session.Snapshot
	unsubscribe func()
	log         *slog.Logger
	done        chan struct{}
}

func (sc *streamClient) readPump() {
	defer func() {
		close(sc.done)
		sc.unsubscribe()
	}()

	sc.conn.SetReadLimit(streamMaxMessageSize)
	sc.conn.SetReadDeadline(time.Now().Add(streamPongWait))
	sc.conn.SetPongHandler(func(string) error {
		sc.conn.SetReadDeadline(time.Now().Add(streamPongWait))
		return nil
	})

	for {
		if _, _, err := sc.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				sc.log.Debug("session stream read error", "err", err)
			}
			return
		}
	}
}

func (sc *streamClient) writePump() {
	ticker := time.NewTicker(streamPingPeriod)
	defer func() {
		ticker.Stop()
		sc.unsubscribe()
		sc.conn.Close()
	}()

	for {
		select {
		case snap, ok := <-sc.snaps:
			sc.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if !ok {
				// Session closed.
				sc.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"))
				return
			}
			if err := sc.conn.WriteJSON(snap); err != nil {
				return
			}

		case <-ticker.C:
			sc.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := sc.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-sc.done:
			return
		}
	}
}
