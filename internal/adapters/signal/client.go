package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/peercall/internal/core"
	"github.com/dkeye/peercall/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ClientConn is a peer's connection to the relay. It is the signaling
// channel a call controller is constructed with.
type ClientConn struct {
	conn      *websocket.Conn
	send      chan core.Frame
	envelopes chan domain.Envelope
	opts      Options

	cancel context.CancelFunc
	pumps  sync.WaitGroup
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

// Dial connects to the relay at url (ws:// or wss://).
func Dial(ctx context.Context, url string, opts Options) (*ClientConn, error) {
	opts = opts.withDefaults()
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay %s: %w", url, err)
	}
	ws.SetReadLimit(opts.ReadLimit)

	pumpCtx, cancel := context.WithCancel(context.Background())
	c := &ClientConn{
		conn:      ws,
		send:      make(chan core.Frame, opts.SendQueue),
		envelopes: make(chan domain.Envelope, opts.SendQueue),
		opts:      opts,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	c.pumps.Add(2)
	go c.writePump(pumpCtx)
	go c.readPump(pumpCtx)
	go func() {
		c.pumps.Wait()
		close(c.done)
	}()
	log.Info().Str("module", "signal.client").Str("url", url).Msg("connected to relay")
	return c, nil
}

// Send queues env for the relay without waiting for delivery.
func (c *ClientConn) Send(env domain.Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", env.Type, err)
	}
	return c.TrySend(b)
}

func (c *ClientConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnectionClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

// Envelopes yields every envelope received from the relay. It is closed
// when the connection ends.
func (c *ClientConn) Envelopes() <-chan domain.Envelope {
	return c.envelopes
}

// Done is closed once both pumps have stopped.
func (c *ClientConn) Done() <-chan struct{} {
	return c.done
}

func (c *ClientConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.cancel()
	c.mu.Unlock()
}

func (c *ClientConn) writePump(ctx context.Context) {
	defer func() {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.opts.WriteWait))
		_ = c.conn.Close()
		c.pumps.Done()
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal.client").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal.client").Msg("writePump write error")
				return
			}
		}
	}
}

func (c *ClientConn) readPump(ctx context.Context) {
	defer func() {
		close(c.envelopes)
		c.Close()
		c.pumps.Done()
	}()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.Warn().Err(err).Str("module", "signal.client").Msg("relay connection lost")
			}
			return
		}
		var env domain.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Error().Err(err).Str("module", "signal.client").Msg("bad json")
			continue
		}
		select {
		case c.envelopes <- env:
		case <-ctx.Done():
			return
		}
	}
}
