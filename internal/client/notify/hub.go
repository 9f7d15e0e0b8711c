package notify

import (
	"context"
	"net/http"
	"time"

	"github.com/dmitrijs2005/htgen/internal/logging"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const writeTimeout = 5 * time.Second

// Hub streams broadcast notifications to websocket clients as JSON text
// frames. Clients only listen; anything they send is discarded.
type Hub struct {
	b   *Broadcaster
	log logging.Logger
}

func NewHub(b *Broadcaster, log logging.Logger) *Hub {
	return &Hub{b: b, log: log}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.log.Warn(r.Context(), "websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "")

	ctx := conn.CloseRead(r.Context())
	ch, cancel := h.b.Subscribe()
	defer cancel()

	h.log.Debug(ctx, "notification client attached", "remote", r.RemoteAddr)

	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-ch:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, conn, n)
			wcancel()
			if err != nil {
				h.log.Debug(ctx, "notification client detached", "error", err)
				return
			}
		}
	}
}
