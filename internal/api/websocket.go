package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/fieldsim-core/internal/infrastructure/config"
	"github.com/nerrad567/fieldsim-core/internal/infrastructure/logging"
)

// Frame types.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FramePing        = "ping"
	FramePong        = "pong"
	FrameEvent       = "event"
	FrameAck         = "ack"
	FrameError       = "error"
)

// ChannelAll matches every event channel.
const ChannelAll = "*"

// outboxSize is the per-client queue of encoded frames.
const outboxSize = 256

// Frame is one WebSocket message in either direction.
//
// Clients send subscribe/unsubscribe with Channels and optionally Devices,
// and ping. The server sends event, ack, pong and error frames.
type Frame struct {
	Type     string    `json:"type"`
	ID       string    `json:"id,omitempty"`
	Channel  string    `json:"channel,omitempty"`
	Channels []string  `json:"channels,omitempty"`
	Devices  []string  `json:"devices,omitempty"`
	Time     time.Time `json:"time,omitzero"`
	Data     any       `json:"data,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// deviceScoped payloads carry the sensor they concern, which lets clients
// follow a subset of the fleet.
type deviceScoped interface {
	DeviceID() string
}

// filter is a client's subscription: the channels it follows and, when
// non-empty, the only devices it wants events for.
type filter struct {
	mu       sync.RWMutex
	channels map[string]bool
	devices  map[string]bool
}

func newFilter(channels, devices []string) *filter {
	f := &filter{channels: map[string]bool{}, devices: map[string]bool{}}
	f.add(channels, devices)
	return f
}

func (f *filter) add(channels, devices []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range channels {
		f.channels[c] = true
	}
	for _, d := range devices {
		f.devices[d] = true
	}
}

func (f *filter) remove(channels, devices []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range channels {
		delete(f.channels, c)
	}
	for _, d := range devices {
		delete(f.devices, d)
	}
}

func (f *filter) matches(channel, sensorID string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.channels[ChannelAll] && !f.channels[channel] {
		return false
	}
	return len(f.devices) == 0 || sensorID == "" || f.devices[sensorID]
}

// wsClient is one connected subscriber.
type wsClient struct {
	conn   *websocket.Conn
	outbox chan []byte
	filter *filter
	once   sync.Once
}

// enqueue drops the frame when the client is slow or already closed.
func (c *wsClient) enqueue(data []byte) bool {
	defer func() {
		recover() //nolint:errcheck // send on a closed outbox during shutdown
	}()
	select {
	case c.outbox <- data:
		return true
	default:
		return false
	}
}

func (c *wsClient) close() {
	c.once.Do(func() { close(c.outbox) })
}

// Hub fans events out to WebSocket clients.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	closed  bool
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CORS middleware has already run.
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewHub creates an empty hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	h.closed = true
	clients := h.clients
	h.clients = make(map[*wsClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.close()
		if c.conn != nil {
			c.conn.Close()
		}
	}
}

func (h *Hub) add(c *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		c.close()
	}
}

// Broadcast sends payload to every client following channel. Payloads that
// name a device are also filtered by each client's device list.
func (h *Hub) Broadcast(channel string, payload any) {
	var sensorID string
	if p, ok := payload.(deviceScoped); ok {
		sensorID = p.DeviceID()
	}

	data, err := json.Marshal(Frame{
		Type:    FrameEvent,
		Channel: channel,
		Time:    time.Now().UTC(),
		Data:    payload,
	})
	if err != nil {
		h.logger.Error("encoding websocket event failed", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		if c.filter.matches(channel, sensorID) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	dropped := 0
	for _, c := range targets {
		if !c.enqueue(data) {
			dropped++
		}
	}
	if dropped > 0 {
		h.logger.Warn("websocket clients too slow, event dropped",
			"channel", channel, "dropped", dropped, "recipients", len(targets))
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// handleWebSocket upgrades the connection. The optional "channels" and
// "devices" query parameters pre-load the subscription.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	q := r.URL.Query()
	c := &wsClient{
		conn:   conn,
		outbox: make(chan []byte, outboxSize),
		filter: newFilter(splitIDs(q.Get("channels")), splitIDs(q.Get("devices"))),
	}
	if !s.hub.add(c) {
		conn.Close()
		return
	}
	s.logger.Debug("websocket client connected", "clients", s.hub.ClientCount())

	go s.writeLoop(c)
	go s.readLoop(c)
}

func (s *Server) readLoop(c *wsClient) {
	defer func() {
		s.hub.remove(c)
		c.conn.Close()
		s.logger.Debug("websocket client disconnected", "clients", s.hub.ClientCount())
	}()

	deadline := time.Duration(s.wsCfg.PingInterval+s.wsCfg.PongTimeout) * time.Second
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(deadline)) }

	c.conn.SetReadLimit(int64(s.wsCfg.MaxMessageSize))
	extend() //nolint:errcheck // a failed deadline surfaces on the next read
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		extend() //nolint:errcheck // as above

		if reply := s.handleFrame(c, raw); reply != nil {
			reply.Time = time.Now().UTC()
			if data, err := json.Marshal(reply); err == nil {
				c.enqueue(data)
			}
		}
	}
}

func (s *Server) writeLoop(c *wsClient) {
	ping := time.NewTicker(time.Duration(s.wsCfg.PingInterval) * time.Second)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()
	writeWait := time.Duration(s.wsCfg.PongTimeout) * time.Second

	for {
		select {
		case data, ok := <-c.outbox:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // write error checked below
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil) //nolint:errcheck // closing anyway
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // write error checked below
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleFrame applies one client frame and returns the reply, if any.
func (s *Server) handleFrame(c *wsClient, raw []byte) *Frame {
	var in Frame
	if err := json.Unmarshal(raw, &in); err != nil {
		return &Frame{Type: FrameError, Error: "malformed frame"}
	}

	switch in.Type {
	case FramePing:
		return &Frame{Type: FramePong, ID: in.ID}
	case FrameSubscribe:
		if len(in.Channels) == 0 && len(in.Devices) == 0 {
			return &Frame{Type: FrameError, ID: in.ID, Error: "subscribe needs channels or devices"}
		}
		c.filter.add(in.Channels, in.Devices)
		s.logger.Debug("websocket subscription added", "channels", in.Channels, "devices", in.Devices)
		return &Frame{Type: FrameAck, ID: in.ID, Channels: in.Channels, Devices: in.Devices}
	case FrameUnsubscribe:
		c.filter.remove(in.Channels, in.Devices)
		return &Frame{Type: FrameAck, ID: in.ID, Channels: in.Channels, Devices: in.Devices}
	default:
		return &Frame{Type: FrameError, ID: in.ID, Error: "unknown frame type " + in.Type}
	}
}
