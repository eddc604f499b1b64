package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds inbound frames. Clients only listen, so
	// anything beyond a control frame is oversized.
	maxMessageSize = 512

	// clientSendBuffer is the per-client outbound queue. A client that
	// falls this far behind is dropped rather than allowed to stall the
	// broadcast loop.
	clientSendBuffer = 32
)

// Hub fans lifecycle events out to dashboard clients over websockets.
// Run owns the client set exclusively, so no lock guards it. Publish
// implements Sink.
type Hub struct {
	log      zerolog.Logger
	upgrader websocket.Upgrader

	register   chan *hubClient
	unregister chan *hubClient
	broadcast  chan []byte
	done       chan struct{}

	clientCount atomic.Int64
}

// NewHub constructs a hub. Run must be started before ServeWS accepts
// connections.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		log: log.With().Str("component", "ws-hub").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Dashboard clients live on the boat's own network.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		register:   make(chan *hubClient),
		unregister: make(chan *hubClient),
		broadcast:  make(chan []byte),
		done:       make(chan struct{}),
	}
}

// Run processes client registration and broadcasts until ctx is
// cancelled, then closes every client's send channel and returns.
func (h *Hub) Run(ctx context.Context) {
	clients := make(map[*hubClient]bool)
	defer func() {
		for client := range clients {
			close(client.send)
		}
		h.clientCount.Store(0)
	}()

	for {
		select {
		case client := <-h.register:
			clients[client] = true
			h.clientCount.Store(int64(len(clients)))
			h.log.Info().Str("remote", client.conn.RemoteAddr().String()).Msg("Dashboard client connected")

		case client := <-h.unregister:
			if _, ok := clients[client]; ok {
				delete(clients, client)
				close(client.send)
				h.clientCount.Store(int64(len(clients)))
				h.log.Info().Str("remote", client.conn.RemoteAddr().String()).Msg("Dashboard client disconnected")
			}

		case message := <-h.broadcast:
			for client := range clients {
				select {
				case client.send <- message:
				default:
					// Slow consumer. Drop it so one stuck helm
					// display cannot back up events for the rest.
					delete(clients, client)
					close(client.send)
					h.clientCount.Store(int64(len(clients)))
					h.log.Warn().Str("remote", client.conn.RemoteAddr().String()).Msg("Dashboard client too slow, dropping")
				}
			}

		case <-ctx.Done():
			close(h.done)
			return
		}
	}
}

// Publish implements Sink by broadcasting the event as JSON to all
// connected clients. Once the hub has stopped events are discarded.
func (h *Hub) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- data:
		return nil
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ClientCount reports how many dashboard clients are connected.
func (h *Hub) ClientCount() int {
	return int(h.clientCount.Load())
}

// ServeWS upgrades an HTTP request to a websocket connection and
// attaches it to the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	client := &hubClient{hub: h, conn: conn, send: make(chan []byte, clientSendBuffer)}
	select {
	case h.register <- client:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// hubClient is a middleman between one websocket connection and the hub.
type hubClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// readPump drains inbound frames so pong handling and close detection
// work. Dashboard clients only listen; payloads are ignored.
func (c *hubClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug().Err(err).Msg("Websocket read ended")
			}
			return
		}
	}
}

// writePump forwards hub messages to the connection and keeps the peer
// alive with pings.
func (c *hubClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
