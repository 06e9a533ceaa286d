package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/meetingbot/core/internal/store"
)

// catchupLimit bounds how many rows a single catchup reply replays before
// telling the client to fall back to a REST reload.
const catchupLimit = 200

// listenTimeout bounds how long a Subscribe's LISTEN may block.
const listenTimeout = 10 * time.Second

// EventsQuerier is the slice of *store.Store a Manager needs for catchup
// replay and notified-row lookup. Narrowed to an interface so tests can
// substitute an in-memory fake instead of a live Postgres connection.
type EventsQuerier interface {
	EventsSince(ctx context.Context, channel string, afterID int64, limit int) ([]store.EventRow, error)
}

// Manager owns every websocket connection on this process and the set of
// bot channels at least one of them is subscribed to. One Manager per
// serve-api process; NOTIFY delivery crosses processes via Listener, so
// every replica observes every bot regardless of which one a client is
// attached to.
type Manager struct {
	store EventsQuerier

	connections map[string]*connection
	mu          sync.RWMutex

	channels  map[string]map[string]bool // channel -> set of connection ids
	channelMu sync.RWMutex

	listener     *Listener
	listenerMu   sync.RWMutex
	writeTimeout time.Duration
}

type connection struct {
	id            string
	conn          *websocket.Conn
	subscriptions map[string]bool // owned by this connection's read-loop goroutine only
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewManager builds a Manager backed by s for catchup replay.
func NewManager(s EventsQuerier, writeTimeout time.Duration) *Manager {
	return &Manager{
		store:        s,
		connections:  make(map[string]*connection),
		channels:     make(map[string]map[string]bool),
		writeTimeout: writeTimeout,
	}
}

// SetListener wires the NOTIFY listener in after construction, breaking the
// Manager<->Listener construction cycle.
func (m *Manager) SetListener(l *Listener) {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()
	m.listener = l
}

// HandleConnection drives one websocket client's lifetime. Called from the
// HTTP handler after the upgrade; blocks until the socket closes.
func (m *Manager) HandleConnection(parentCtx context.Context, ws *websocket.Conn) {
	ctx, cancel := context.WithCancel(parentCtx)
	c := &connection{
		id:            uuid.NewString(),
		conn:          ws,
		subscriptions: make(map[string]bool),
		ctx:           ctx,
		cancel:        cancel,
	}

	m.register(c)
	defer m.unregister(c)

	m.sendJSON(c, map[string]string{"type": "connection.established", "connection_id": c.id})

	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("invalid realtime websocket message", "connection_id", c.id, "error", err)
			continue
		}
		m.dispatch(ctx, c, &msg)
	}
}

func (m *Manager) dispatch(ctx context.Context, c *connection, msg *ClientMessage) {
	switch msg.Action {
	case "subscribe":
		if msg.Channel == "" {
			m.sendJSON(c, map[string]string{"type": "error", "message": "channel is required"})
			return
		}
		if err := m.subscribe(c, msg.Channel); err != nil {
			m.sendJSON(c, map[string]string{"type": "subscription.error", "channel": msg.Channel})
			return
		}
		m.sendJSON(c, map[string]string{"type": "subscription.confirmed", "channel": msg.Channel})
		m.catchup(ctx, c, msg.Channel, 0)

	case "unsubscribe":
		if msg.Channel != "" {
			m.unsubscribe(c, msg.Channel)
		}

	case "catchup":
		if msg.Channel != "" && msg.LastEventID != nil {
			m.catchup(ctx, c, msg.Channel, *msg.LastEventID)
		}

	case "ping":
		m.sendJSON(c, map[string]string{"type": "pong"})
	}
}

// subscribe registers c for channel and, if it is the first subscriber,
// blocks until LISTEN is established — so the catchup query that follows is
// guaranteed not to race a NOTIFY that arrives between catchup and LISTEN.
func (m *Manager) subscribe(c *connection, channel string) error {
	m.channelMu.Lock()
	needsListen := false
	if _, ok := m.channels[channel]; !ok {
		m.channels[channel] = make(map[string]bool)
		needsListen = true
	}
	m.channels[channel][c.id] = true
	m.channelMu.Unlock()

	if needsListen {
		m.listenerMu.RLock()
		l := m.listener
		m.listenerMu.RUnlock()
		if l != nil {
			listenCtx, cancel := context.WithTimeout(context.Background(), listenTimeout)
			defer cancel()
			if err := l.Subscribe(listenCtx, channel); err != nil {
				slog.Error("failed to LISTEN on channel", "channel", channel, "error", err)
				m.channelMu.Lock()
				delete(m.channels, channel)
				m.channelMu.Unlock()
				return err
			}
		}
	}
	c.subscriptions[channel] = true
	return nil
}

func (m *Manager) unsubscribe(c *connection, channel string) {
	m.channelMu.Lock()
	if subs, ok := m.channels[channel]; ok {
		delete(subs, c.id)
		if len(subs) == 0 {
			delete(m.channels, channel)
			m.listenerMu.RLock()
			l := m.listener
			m.listenerMu.RUnlock()
			if l != nil {
				go func() {
					m.channelMu.RLock()
					_, resubscribed := m.channels[channel]
					m.channelMu.RUnlock()
					if resubscribed {
						return
					}
					if err := l.Unsubscribe(context.Background(), channel); err != nil {
						slog.Error("failed to UNLISTEN channel", "channel", channel, "error", err)
					}
				}()
			}
		}
	}
	m.channelMu.Unlock()
	delete(c.subscriptions, channel)
}

// catchup replays every event on channel with id > lastEventID, for a
// client that just subscribed or reconnected after a gap.
func (m *Manager) catchup(ctx context.Context, c *connection, channel string, lastEventID int64) {
	rows, err := m.store.EventsSince(ctx, channel, lastEventID, catchupLimit+1)
	if err != nil {
		slog.Error("catchup query failed", "channel", channel, "error", err)
		return
	}
	hasMore := len(rows) > catchupLimit
	if hasMore {
		rows = rows[:catchupLimit]
	}
	for _, row := range rows {
		var env Envelope
		if err := json.Unmarshal(row.Payload, &env); err != nil {
			continue
		}
		env.EventID = row.ID
		if err := m.sendEnvelope(c, env); err != nil {
			return
		}
	}
	if hasMore {
		m.sendJSON(c, map[string]any{"type": "catchup.overflow", "channel": channel, "has_more": true})
	}
}

// handleNotification is invoked by Listener's receive loop for every
// NOTIFY it receives. payload is the events.id the Publish transaction
// just inserted; the full row is re-read here rather than carried in the
// NOTIFY payload itself, to stay clear of PostgreSQL's 8000-byte limit.
func (m *Manager) handleNotification(ctx context.Context, channel, payload string) {
	id, err := strconv.ParseInt(payload, 10, 64)
	if err != nil {
		slog.Error("malformed realtime NOTIFY payload", "channel", channel, "payload", payload, "error", err)
		return
	}
	rows, err := m.store.EventsSince(ctx, channel, id-1, 1)
	if err != nil || len(rows) == 0 {
		slog.Error("failed to load notified event", "channel", channel, "event_id", id, "error", err)
		return
	}
	var env Envelope
	if err := json.Unmarshal(rows[0].Payload, &env); err != nil {
		slog.Error("failed to unmarshal notified event", "event_id", id, "error", err)
		return
	}
	env.EventID = rows[0].ID
	m.broadcast(channel, env)
}

func (m *Manager) broadcast(channel string, env Envelope) {
	m.channelMu.RLock()
	connIDs, ok := m.channels[channel]
	if !ok {
		m.channelMu.RUnlock()
		return
	}
	ids := make([]string, 0, len(connIDs))
	for id := range connIDs {
		ids = append(ids, id)
	}
	m.channelMu.RUnlock()

	m.mu.RLock()
	conns := make([]*connection, 0, len(ids))
	for _, id := range ids {
		if c, ok := m.connections[id]; ok {
			conns = append(conns, c)
		}
	}
	m.mu.RUnlock()

	for _, c := range conns {
		if err := m.sendEnvelope(c, env); err != nil {
			slog.Warn("failed to send realtime event", "connection_id", c.id, "error", err)
		}
	}
}

func (m *Manager) register(c *connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[c.id] = c
}

func (m *Manager) unregister(c *connection) {
	for ch := range c.subscriptions {
		m.unsubscribe(c, ch)
	}
	m.mu.Lock()
	delete(m.connections, c.id)
	m.mu.Unlock()
	c.cancel()
	_ = c.conn.Close(websocket.StatusNormalClosure, "")
}

func (m *Manager) sendJSON(c *connection, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	writeCtx, cancel := context.WithTimeout(c.ctx, m.writeTimeout)
	defer cancel()
	if err := c.conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		slog.Warn("failed to write realtime websocket message", "connection_id", c.id, "error", err)
	}
}

func (m *Manager) sendEnvelope(c *connection, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(c.ctx, m.writeTimeout)
	defer cancel()
	return c.conn.Write(writeCtx, websocket.MessageText, data)
}

// ActiveConnections reports how many websocket clients are attached to
// this process, for health/readiness reporting.
func (m *Manager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}
