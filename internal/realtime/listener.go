package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
)

// listenCmd is a LISTEN/UNLISTEN request handed to the receive loop, the
// sole goroutine that touches the dedicated pgx connection.
type listenCmd struct {
	sql     string
	channel string
	gen     uint64 // generation captured at Unsubscribe time; 0 for LISTEN
	result  chan error
}

// Listener holds one dedicated connection LISTENing on however many
// per-bot channels currently have a subscriber, and hands every NOTIFY it
// receives to a Manager for websocket fan-out.
type Listener struct {
	connString string
	conn       *pgx.Conn
	connMu     sync.Mutex
	manager    *Manager

	channels   map[string]bool
	channelsMu sync.RWMutex

	// cmdCh serializes LISTEN/UNLISTEN through the receive loop to avoid a
	// "conn busy" race between WaitForNotification and Exec on the same
	// connection.
	cmdCh   chan listenCmd
	running atomic.Bool

	// listenGen is a per-channel generation counter, bumped by the receive
	// loop whenever a LISTEN actually executes. Unsubscribe captures the
	// generation at call time; if it has since advanced (a newer Subscribe
	// raced it), the UNLISTEN is dropped as stale rather than undoing the
	// newer subscriber's LISTEN.
	listenGen   map[string]uint64
	listenGenMu sync.Mutex

	cancelLoop context.CancelFunc
	loopDone   chan struct{}
}

// NewListener builds a Listener. connString must not go through a pooler
// that multiplexes connections (pgbouncer transaction mode breaks LISTEN) —
// it needs its own direct connection.
func NewListener(connString string, manager *Manager) *Listener {
	return &Listener{
		connString: connString,
		manager:    manager,
		channels:   make(map[string]bool),
		cmdCh:      make(chan listenCmd, 16),
		listenGen:  make(map[string]uint64),
	}
}

// Start opens the dedicated LISTEN connection and begins the receive loop.
func (l *Listener) Start(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.connString)
	if err != nil {
		return fmt.Errorf("failed to connect for LISTEN: %w", err)
	}
	l.connMu.Lock()
	l.conn = conn
	l.connMu.Unlock()
	l.running.Store(true)

	loopCtx, cancel := context.WithCancel(ctx)
	l.cancelLoop = cancel
	l.loopDone = make(chan struct{})
	go func() {
		defer close(l.loopDone)
		l.receiveLoop(loopCtx)
	}()
	slog.Info("realtime listener started")
	return nil
}

// Subscribe issues LISTEN for channel. Always sent even if already marked
// active locally, since a concurrent Unsubscribe may have raced it; Postgres
// treats duplicate LISTEN as a no-op.
func (l *Listener) Subscribe(ctx context.Context, channel string) error {
	if !l.running.Load() {
		return fmt.Errorf("LISTEN connection not established")
	}
	sanitized := pgx.Identifier{channel}.Sanitize()
	cmd := listenCmd{sql: "LISTEN " + sanitized, channel: channel, result: make(chan error, 1)}

	select {
	case l.cmdCh <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.result:
		if err != nil {
			return fmt.Errorf("LISTEN %s failed: %w", sanitized, err)
		}
		l.channelsMu.Lock()
		l.channels[channel] = true
		l.channelsMu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unsubscribe issues UNLISTEN for channel, unless a newer Subscribe has
// since raced it (detected via the generation counter).
func (l *Listener) Unsubscribe(ctx context.Context, channel string) error {
	l.channelsMu.Lock()
	if !l.channels[channel] {
		l.channelsMu.Unlock()
		return nil
	}
	l.channelsMu.Unlock()
	if !l.running.Load() {
		return nil
	}

	l.listenGenMu.Lock()
	gen := l.listenGen[channel]
	l.listenGenMu.Unlock()

	sanitized := pgx.Identifier{channel}.Sanitize()
	cmd := listenCmd{sql: "UNLISTEN " + sanitized, channel: channel, gen: gen, result: make(chan error, 1)}

	select {
	case l.cmdCh <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.result:
		if err != nil {
			return fmt.Errorf("UNLISTEN %s failed: %w", sanitized, err)
		}
		l.listenGenMu.Lock()
		stale := l.listenGen[channel] != gen
		l.listenGenMu.Unlock()
		if !stale {
			l.channelsMu.Lock()
			delete(l.channels, channel)
			l.channelsMu.Unlock()
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Listener) receiveLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		l.processPendingCmds(ctx)

		l.connMu.Lock()
		conn := l.conn
		l.connMu.Unlock()
		if conn == nil {
			l.reconnect(ctx)
			continue
		}

		waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		notification, err := conn.WaitForNotification(waitCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if waitCtx.Err() != nil {
				continue
			}
			slog.Error("NOTIFY receive error", "error", err)
			l.reconnect(ctx)
			continue
		}

		l.manager.handleNotification(ctx, notification.Channel, notification.Payload)
	}
}

func (l *Listener) processPendingCmds(ctx context.Context) {
	for {
		select {
		case cmd := <-l.cmdCh:
			if cmd.gen > 0 {
				l.listenGenMu.Lock()
				stale := l.listenGen[cmd.channel] != cmd.gen
				l.listenGenMu.Unlock()
				if stale {
					cmd.result <- nil
					continue
				}
			}
			l.connMu.Lock()
			conn := l.conn
			l.connMu.Unlock()
			if conn == nil {
				cmd.result <- fmt.Errorf("LISTEN connection not established")
				continue
			}
			_, err := conn.Exec(ctx, cmd.sql)
			if err == nil && cmd.gen == 0 && cmd.channel != "" {
				l.listenGenMu.Lock()
				l.listenGen[cmd.channel]++
				l.listenGenMu.Unlock()
			}
			cmd.result <- err
		default:
			return
		}
	}
}

func (l *Listener) reconnect(ctx context.Context) {
	l.connMu.Lock()
	defer l.connMu.Unlock()
	if l.conn != nil {
		_ = l.conn.Close(ctx)
		l.conn = nil
	}

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		conn, err := pgx.Connect(ctx, l.connString)
		if err != nil {
			slog.Error("LISTEN reconnect failed", "error", err, "backoff", backoff)
			backoff = min(backoff*2, 30*time.Second)
			continue
		}
		l.conn = conn

		l.channelsMu.RLock()
		for ch := range l.channels {
			sanitized := pgx.Identifier{ch}.Sanitize()
			if _, err := conn.Exec(ctx, "LISTEN "+sanitized); err != nil {
				slog.Error("re-LISTEN failed", "channel", ch, "error", err)
			}
		}
		l.channelsMu.RUnlock()
		slog.Info("realtime listener reconnected")
		return
	}
}

// Stop halts the receive loop and closes the LISTEN connection.
func (l *Listener) Stop(ctx context.Context) {
	l.running.Store(false)
	if l.cancelLoop != nil {
		l.cancelLoop()
	}
	if l.loopDone != nil {
		<-l.loopDone
	}
	l.connMu.Lock()
	defer l.connMu.Unlock()
	if l.conn != nil {
		_ = l.conn.Close(ctx)
		l.conn = nil
	}
}
