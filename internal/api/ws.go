package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/xtrntr/poolshare/internal/exchange"
	"github.com/xtrntr/poolshare/internal/models"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 5 * time.Second

// BookMessage is the frame pushed to feed subscribers
type BookMessage struct {
	Type string              `json:"type"`
	Book models.BookSnapshot `json:"book"`
}

type wsClient struct {
	conn *websocket.Conn
	pool string
	mu   sync.Mutex
}

func (c *wsClient) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub fans out order book snapshots to websocket subscribers, one pool per
// connection.
type Hub struct {
	engine   exchange.Matcher
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

// NewHub creates a hub. An origin list containing "*" accepts any origin.
func NewHub(engine exchange.Matcher, logger *zap.Logger, allowedOrigins []string) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &Hub{
		engine: engine,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed["*"] || allowed[origin]
			},
		},
		clients: make(map[*wsClient]struct{}),
	}
}

// ServeWS subscribes the caller to the pool named by the pool query parameter
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	poolID := r.URL.Query().Get("pool")
	if poolID == "" {
		respondError(w, http.StatusBadRequest, "pool query parameter required")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade connection", zap.Error(err))
		return
	}

	client := &wsClient{conn: conn, pool: poolID}
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("feed subscriber joined", zap.String("pool_id", poolID))

	if data, err := h.message(poolID); err == nil {
		if err := client.write(data); err != nil {
			h.drop(client)
			return
		}
	}

	// Subscribers only listen; reading detects disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.drop(client)
			return
		}
	}
}

func (h *Hub) message(poolID string) ([]byte, error) {
	book, ok := h.engine.GetOrderBook(poolID)
	if !ok {
		book = models.BookSnapshot{
			PoolID:       poolID,
			BuyOrders:    []models.Order{},
			SellOrders:   []models.Order{},
			StopOrders:   []models.Order{},
			PriceHistory: []models.PricePoint{},
		}
	}
	return json.Marshal(BookMessage{Type: "orderbook", Book: book})
}

func (h *Hub) drop(c *wsClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		c.conn.Close()
	}
}

func (h *Hub) subscribers(poolID string) []*wsClient {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []*wsClient
	for c := range h.clients {
		if poolID == "" || c.pool == poolID {
			out = append(out, c)
		}
	}
	return out
}

// Broadcast pushes the current book of poolID to its subscribers
func (h *Hub) Broadcast(poolID string) {
	clients := h.subscribers(poolID)
	if len(clients) == 0 {
		return
	}
	data, err := h.message(poolID)
	if err != nil {
		h.logger.Error("failed to marshal order book", zap.String("pool_id", poolID), zap.Error(err))
		return
	}
	for _, c := range clients {
		if err := c.write(data); err != nil {
			h.logger.Debug("dropping feed subscriber", zap.String("pool_id", poolID), zap.Error(err))
			h.drop(c)
		}
	}
}

// BroadcastAll pushes every subscribed pool's book
func (h *Hub) BroadcastAll() {
	pools := map[string]bool{}
	for _, c := range h.subscribers("") {
		pools[c.pool] = true
	}
	for poolID := range pools {
		h.Broadcast(poolID)
	}
}

// Run broadcasts every interval until ctx is done
func (h *Hub) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.BroadcastAll()
		}
	}
}

// Close disconnects every subscriber
func (h *Hub) Close() {
	for _, c := range h.subscribers("") {
		h.drop(c)
	}
}
