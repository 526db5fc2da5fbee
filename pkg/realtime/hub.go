package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Hub keeps websocket subscribers per channel and delivers relay events to them.
type Hub struct {
	relay      *RedisRelay
	auth       *Authorizer
	logger     *zap.Logger
	upgrader   websocket.Upgrader
	sendBuffer int

	mu       sync.RWMutex
	channels map[string]map[*Client]struct{}
	members  map[string]map[*Client]PresenceMember
}

// NewHub wires a hub to the relay it mirrors and the authorizer it checks subscriptions with.
func NewHub(relay *RedisRelay, auth *Authorizer, sendBuffer int, allowedOrigins []string, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	h := &Hub{
		relay:      relay,
		auth:       auth,
		logger:     logger.With(zap.String("component", "realtime_hub")),
		sendBuffer: sendBuffer,
		channels:   make(map[string]map[*Client]struct{}),
		members:    make(map[string]map[*Client]PresenceMember),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[strings.TrimRight(origin, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[strings.TrimRight(origin, "/")]
		return ok
	}
}

// Run mirrors relay traffic into local subscribers until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	if h.relay == nil || h.relay.client == nil {
		return fmt.Errorf("realtime hub requires a redis relay")
	}
	sub := h.relay.client.PSubscribe(ctx, h.relay.Pattern())
	defer sub.Close() //nolint:errcheck

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", h.relay.Pattern(), err)
	}
	h.logger.Info("realtime hub subscribed", zap.String("pattern", h.relay.Pattern()))

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			h.handleRelayMessage(msg)
		}
	}
}

func (h *Hub) handleRelayMessage(msg *redis.Message) {
	var event Event
	if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
		h.logger.Warn("discarding malformed relay message", zap.String("topic", msg.Channel), zap.Error(err))
		return
	}
	h.Deliver(event)
}

// Deliver sends an event to every local subscriber of its channel, dropping clients that cannot keep up.
func (h *Hub) Deliver(event Event) int {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Warn("encode event", zap.Error(err))
		return 0
	}

	h.mu.RLock()
	subscribers := make([]*Client, 0, len(h.channels[event.Channel]))
	for c := range h.channels[event.Channel] {
		subscribers = append(subscribers, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range subscribers {
		if c.enqueue(payload) {
			delivered++
			continue
		}
		h.logger.Warn("client send buffer full, disconnecting", zap.String("socket_id", c.SocketID), zap.String("channel", event.Channel))
		h.unregister(c)
	}
	return delivered
}

// ServeWS upgrades the request and pumps the connection until it closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("upgrade websocket: %w", err)
	}
	client := newClient(h, conn, newSocketID(), userID, h.sendBuffer, h.logger)
	client.sendControl("connection_established", map[string]string{"socket_id": client.SocketID})

	go client.writePump()
	client.readPump()
	return nil
}

// subscribe verifies the signature and adds c to channel.
func (h *Hub) subscribe(c *Client, req clientMessage) error {
	if !ValidChannel(req.Channel) {
		return fmt.Errorf("invalid channel name %q", req.Channel)
	}
	if h.auth == nil && IsPrivate(req.Channel) {
		return fmt.Errorf("private channels are disabled")
	}
	if IsPrivate(req.Channel) && !h.auth.Verify(c.SocketID, req.Channel, req.Auth, req.ChannelData) {
		return fmt.Errorf("invalid signature for %s", req.Channel)
	}

	h.mu.Lock()
	if h.channels[req.Channel] == nil {
		h.channels[req.Channel] = make(map[*Client]struct{})
	}
	h.channels[req.Channel][c] = struct{}{}
	var members []PresenceMember
	var joined *PresenceMember
	if IsPresence(req.Channel) {
		var member PresenceMember
		if err := json.Unmarshal([]byte(req.ChannelData), &member); err != nil {
			delete(h.channels[req.Channel], c)
			h.mu.Unlock()
			return fmt.Errorf("decode channel data: %w", err)
		}
		if h.members[req.Channel] == nil {
			h.members[req.Channel] = make(map[*Client]PresenceMember)
		}
		h.members[req.Channel][c] = member
		joined = &member
		for _, m := range h.members[req.Channel] {
			members = append(members, m)
		}
	}
	h.mu.Unlock()

	c.track(req.Channel)
	c.sendControl("subscription_succeeded", map[string]interface{}{"channel": req.Channel, "members": members})
	if joined != nil {
		h.broadcastLocal(req.Channel, "member_added", joined, c)
	}
	return nil
}

func (h *Hub) unsubscribe(c *Client, channel string) {
	h.mu.Lock()
	var left *PresenceMember
	if subs, ok := h.channels[channel]; ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.channels, channel)
		}
	}
	if members, ok := h.members[channel]; ok {
		if m, present := members[c]; present {
			left = &m
			delete(members, c)
		}
		if len(members) == 0 {
			delete(h.members, channel)
		}
	}
	h.mu.Unlock()
	c.untrack(channel)
	if left != nil {
		h.broadcastLocal(channel, "member_removed", left, c)
	}
}

func (h *Hub) broadcastLocal(channel, event string, data interface{}, except *Client) {
	raw, err := json.Marshal(data)
	if err != nil {
		return
	}
	payload, err := json.Marshal(Event{Channel: channel, Event: event, Data: raw})
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.channels[channel] {
		if c != except {
			c.enqueue(payload)
		}
	}
}

func (h *Hub) unregister(c *Client) {
	for _, channel := range c.subscriptions() {
		h.unsubscribe(c, channel)
	}
	c.closeSend()
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	clients := make(map[*Client]struct{})
	for _, subs := range h.channels {
		for c := range subs {
			clients[c] = struct{}{}
		}
	}
	h.mu.RUnlock()
	for c := range clients {
		h.unregister(c)
	}
}

// Subscribers counts local subscribers of a channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

var socketRand = rand.New(rand.NewSource(time.Now().UnixNano()))
var socketRandMu sync.Mutex

func newSocketID() string {
	socketRandMu.Lock()
	defer socketRandMu.Unlock()
	return fmt.Sprintf("%d.%d", socketRand.Int63n(1_000_000_000), socketRand.Int63n(1_000_000_000))
}
