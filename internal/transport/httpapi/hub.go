package httpapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/TangB5/restaurant/internal/domain"
)

const (
	feedWriteWait  = 10 * time.Second
	feedPongWait   = 60 * time.Second
	feedPingPeriod = 54 * time.Second
	feedSendBuffer = 64
)

var feedUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Лента предназначена для бэк-офиса за внешним периметром.
		return true
	},
}

// feedMessage — кадр живой ленты событий.
type feedMessage struct {
	EventType   string          `json:"event_type"`
	AggregateID string          `json:"aggregate_id"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	SentAt      string          `json:"sent_at"`
}

type feedClient struct {
	conn *websocket.Conn
	send chan feedMessage
	hub  *FeedHub
}

// FeedHub транслирует опубликованные события заказов и меню подключённым
// клиентам бэк-офиса. Реализует domain.OutboxPublisher, чтобы outbox worker
// мог раздавать события в ленту fan-out'ом рядом с Kafka.
type FeedHub struct {
	clients    map[*feedClient]struct{}
	broadcast  chan feedMessage
	register   chan *feedClient
	unregister chan *feedClient
	mu         sync.RWMutex
	logger     *log.Entry
}

// NewFeedHub создаёт hub живой ленты.
func NewFeedHub(logger *log.Entry) *FeedHub {
	if logger == nil {
		logger = log.New().WithField("component", "order-feed")
	}
	return &FeedHub{
		clients:    make(map[*feedClient]struct{}),
		broadcast:  make(chan feedMessage, 256),
		register:   make(chan *feedClient),
		unregister: make(chan *feedClient),
		logger:     logger,
	}
}

// Run обслуживает подключения и рассылку до отмены ctx.
func (h *FeedHub) Run(done <-chan struct{}) {
	for {
		select {
		case <-done:
			h.closeAll()
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.WithField("clients", count).Info("feed client connected")
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.WithField("clients", count).Info("feed client disconnected")
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Медленный клиент отстаёт — отключаем, не блокируя остальных.
					delete(h.clients, client)
					close(client.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *FeedHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

// Publish ставит событие в очередь рассылки. Переполнение очереди роняет
// сообщение: лента best-effort и не должна тормозить outbox worker.
func (h *FeedHub) Publish(event domain.OutboxMessage) error {
	message := feedMessage{
		EventType:   event.EventType,
		AggregateID: event.AggregateID,
		Payload:     json.RawMessage(event.Payload),
		SentAt:      time.Now().UTC().Format(time.RFC3339),
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("feed broadcast queue full, dropping event")
	}
	return nil
}

// ClientCount возвращает число подключённых клиентов.
func (h *FeedHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket апгрейдит соединение и подключает клиента к ленте.
func (h *FeedHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := feedUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Error("websocket upgrade failed")
		return
	}

	client := &feedClient{
		conn: conn,
		send: make(chan feedMessage, feedSendBuffer),
		hub:  h,
	}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *feedClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(feedPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(feedPongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.WithError(err).Warn("feed read error")
			}
			return
		}
	}
}

func (c *feedClient) writePump() {
	ticker := time.NewTicker(feedPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var _ domain.OutboxPublisher = (*FeedHub)(nil)
