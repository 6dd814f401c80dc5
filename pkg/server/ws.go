package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/flightwatch/flightboard/pkg/config"
	"github.com/flightwatch/flightboard/pkg/flight"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// Same-origin browsers plus non-browser clients (no Origin header).
		return origin == "" || origin == "http://"+r.Host || origin == "https://"+r.Host
	},
	ReadBufferSize:  config.WSReadBufferSize,
	WriteBufferSize: config.WSWriteBufferSize,
}

// PositionUpdate is the frame pushed to dashboard clients whenever a newer
// snapshot has been captured.
type PositionUpdate struct {
	Type       string            `json:"type"`
	Timestamp  int64             `json:"timestamp"`
	CapturedAt time.Time         `json:"captured_at"`
	Count      int               `json:"count"`
	Aircraft   []flight.Position `json:"aircraft"`
}

// positionClient is one connected dashboard. Frames reach it through a small
// buffered queue; a slow client that lets the queue fill gets older frames
// dropped in favor of the newest, since every frame is a full snapshot and
// only the latest matters.
type positionClient struct {
	conn *websocket.Conn
	send chan []byte
}

// PositionsHub fans position-update frames out to connected dashboards. The
// client set is owned exclusively by the Run goroutine; registration and
// frames arrive over channels, so no lock guards the set.
type PositionsHub struct {
	clients    map[*positionClient]bool
	register   chan *positionClient
	unregister chan *positionClient

	// frames holds at most one pending update. Broadcast replaces a stale
	// queued frame instead of blocking behind it.
	frames chan []byte

	// done releases client goroutines that try to unregister after Run
	// has already exited.
	done chan struct{}

	connected atomic.Int32
}

// NewPositionsHub creates the hub. Run must be started for clients to
// receive anything.
func NewPositionsHub() *PositionsHub {
	return &PositionsHub{
		clients:    make(map[*positionClient]bool),
		register:   make(chan *positionClient, config.WSChannelBuffer),
		unregister: make(chan *positionClient, config.WSChannelBuffer),
		frames:     make(chan []byte, 1),
		done:       make(chan struct{}),
	}
}

// Run owns the client set until ctx is cancelled, at which point every client
// queue is closed and the write pumps shut the connections down.
func (h *PositionsHub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
			}
			h.connected.Store(0)
			return
		case c := <-h.register:
			h.clients[c] = true
			h.connected.Store(int32(len(h.clients)))
			log.Printf("Dashboard client connected (total: %d)", len(h.clients))
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.connected.Store(int32(len(h.clients)))
			log.Printf("Dashboard client disconnected (total: %d)", len(h.clients))
		case frame := <-h.frames:
			for c := range h.clients {
				select {
				case c.send <- frame:
				default:
					// Queue full: this client is behind. Make room by
					// discarding its oldest frame, then queue the new one.
					select {
					case <-c.send:
					default:
					}
					select {
					case c.send <- frame:
					default:
					}
				}
			}
		}
	}
}

// Broadcast queues an update for fan-out. A frame still sitting unqueued
// from a previous call is superseded rather than waited on.
func (h *PositionsHub) Broadcast(u PositionUpdate) error {
	frame, err := json.Marshal(u)
	if err != nil {
		return err
	}

	select {
	case h.frames <- frame:
	default:
		select {
		case <-h.frames:
		default:
		}
		select {
		case h.frames <- frame:
		default:
		}
	}
	return nil
}

// HasClients reports whether any dashboard is connected, letting the
// broadcaster skip snapshot marshalling entirely when nobody is listening.
func (h *PositionsHub) HasClients() bool {
	return h.connected.Load() > 0
}

// writePump drains the client's frame queue onto the wire and keeps the
// connection alive with periodic pings. Exits on the first failed write or
// when the hub closes the queue.
func (c *positionClient) writePump() {
	ticker := time.NewTicker(config.WSPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(config.WSWriteDeadline))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(config.WSWriteDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump watches the connection for pongs and close frames. Clients never
// send application data; a read error means the connection is gone, and the
// pump hands the client back to the hub for removal.
func (c *positionClient) readPump(hub *PositionsHub) {
	defer func() {
		select {
		case hub.unregister <- c:
		case <-hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(config.WSReadDeadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(config.WSReadDeadline))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("Dashboard connection error: %v", err)
			}
			return
		}
	}
}

// HandleWebSocket upgrades the request and attaches the client to the hub.
func HandleWebSocket(hub *PositionsHub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WebSocket upgrade failed: %v", err)
			return
		}

		c := &positionClient{
			conn: conn,
			send: make(chan []byte, config.WSClientQueue),
		}
		hub.register <- c

		go c.writePump()
		c.readPump(hub)
	}
}
