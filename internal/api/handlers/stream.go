package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Kvijay199428/VEGA-sub001/internal/contracts"
	"github.com/Kvijay199428/VEGA-sub001/internal/persistence"
	"github.com/Kvijay199428/VEGA-sub001/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// StreamHandler pushes audit events of the caller's orders over a WebSocket
type StreamHandler struct {
	orders   *persistence.Orchestrator
	upgrader websocket.Upgrader
	buffer   int
	logger   *logger.Logger
}

// NewStreamHandler creates the handler; buffer is the per-connection event backlog
func NewStreamHandler(orders *persistence.Orchestrator, buffer int, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		orders: orders,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		buffer: buffer,
		logger: log,
	}
}

// StreamOrders upgrades the connection and streams events until either side closes
// GET /ws/orders
func (h *StreamHandler) StreamOrders(w http.ResponseWriter, r *http.Request) {
	userID := UserID(r)

	// subscribe first so no event between handshake and loop is lost
	events, cancel := h.orders.Subscribe(h.buffer)
	defer cancel()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go h.readLoop(conn, stop)

	h.logger.WithField("user_id", userID).Info("Order stream connected")
	defer h.logger.WithField("user_id", userID).Info("Order stream disconnected")

	owners := make(map[string]bool)
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !h.visible(ctx, owners, userID, ev) {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				h.logger.WithError(err).Debug("Order stream write failed")
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// visible reports whether ev belongs to userID; owners caches the answer per order
func (h *StreamHandler) visible(ctx context.Context, owners map[string]bool, userID string, ev contracts.AuditEvent) bool {
	if mine, ok := owners[ev.OrderID]; ok {
		return mine
	}
	order, err := h.orders.GetOrder(ctx, ev.OrderID)
	if err != nil {
		return false
	}
	mine := order.UserID == userID
	owners[ev.OrderID] = mine
	return mine
}

// readLoop drains client frames so pongs and close are processed
func (h *StreamHandler) readLoop(conn *websocket.Conn, stop context.CancelFunc) {
	defer stop()
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
