package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"chartgate/internal/memorystore"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

// priceEvent is the frame pushed to websocket clients.
type priceEvent struct {
	Type   string                    `json:"type"` // "snapshot" on connect, "capture" afterwards
	Prices []memorystore.PriceMemory `json:"prices"`
}

type hubClient struct {
	id   string
	conn *websocket.Conn
}

// Hub fans captured floor prices out to websocket subscribers.
type Hub struct {
	clients    map[*hubClient]bool
	broadcast  chan []memorystore.PriceMemory
	register   chan *hubClient
	unregister chan *hubClient
	done       chan struct{}
	mutex      sync.RWMutex

	memory   *memorystore.PriceStore
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewHub(memory *memorystore.PriceStore, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*hubClient]bool),
		broadcast:  make(chan []memorystore.PriceMemory, 16),
		register:   make(chan *hubClient),
		unregister: make(chan *hubClient),
		done:       make(chan struct{}),
		memory:     memory,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Run serves the hub until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mutex.Lock()
			for c := range h.clients {
				c.conn.Close()
				delete(h.clients, c)
			}
			h.mutex.Unlock()
			return

		case c := <-h.register:
			h.mutex.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("websocket client connected", zap.String("client_id", c.id), zap.Int("clients", n))

			if h.memory != nil {
				h.send(c, priceEvent{Type: "snapshot", Prices: h.memory.Latest()})
			}

		case c := <-h.unregister:
			h.drop(c)

		case batch := <-h.broadcast:
			h.mutex.RLock()
			clients := make([]*hubClient, 0, len(h.clients))
			for c := range h.clients {
				clients = append(clients, c)
			}
			h.mutex.RUnlock()

			ev := priceEvent{Type: "capture", Prices: batch}
			for _, c := range clients {
				h.send(c, ev)
			}
		}
	}
}

func (h *Hub) send(c *hubClient, ev priceEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("failed to marshal price event", zap.Error(err))
		return
	}

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		h.logger.Warn("failed to send to websocket client", zap.String("client_id", c.id), zap.Error(err))
		h.drop(c)
	}
}

func (h *Hub) drop(c *hubClient) {
	h.mutex.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mutex.Unlock()

	if ok {
		c.conn.Close()
		h.logger.Info("websocket client disconnected", zap.String("client_id", c.id), zap.Int("clients", n))
	}
}

// Publish queues a capture batch; a full queue drops the batch.
func (h *Hub) Publish(batch []memorystore.PriceMemory) {
	select {
	case h.broadcast <- batch:
	default:
		h.logger.Warn("price broadcast queue full, dropping batch", zap.Int("size", len(batch)))
	}
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade websocket", zapRequestID(r), zap.Error(err))
		return
	}

	c := &hubClient{id: uuid.NewString(), conn: conn}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	// clients only listen; reading detects the close
	go func() {
		defer func() {
			select {
			case h.unregister <- c:
			case <-h.done:
			}
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.logger.Debug("websocket read error", zap.String("client_id", c.id), zap.Error(err))
				}
				return
			}
		}
	}()
}

func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
