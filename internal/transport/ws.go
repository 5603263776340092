package transport

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"griddata/internal/jsonrpc"
)

const (
	wsWriteWait       = 10 * time.Second
	wsPongWait        = 60 * time.Second
	wsPingPeriod      = (wsPongWait * 9) / 10
	wsMaxMessageSize  = 10 * 1024 * 1024 // 10MB
	wsReconnectPeriod = 2 * time.Second
)

// WSCaller performs server-data calls over a single WebSocket
// connection, multiplexing request/response pairs by request id. It
// reconnects on read failure; requests in flight when the connection
// drops fail and surface their error through the cache like any other
// RPC failure.
type WSCaller struct {
	url    string
	logger zerolog.Logger

	conn    *websocket.Conn
	connMu  sync.RWMutex
	writeMu sync.Mutex

	pending   map[int64]chan *jsonrpc.Response
	pendingMu sync.Mutex
	reqID     int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWSCaller creates a WSCaller for the given WebSocket URL
func NewWSCaller(url string, logger zerolog.Logger) *WSCaller {
	ctx, cancel := context.WithCancel(context.Background())
	return &WSCaller{
		url:     url,
		logger:  logger.With().Str("component", "ws-caller").Logger(),
		pending: make(map[int64]chan *jsonrpc.Response),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Connect establishes the connection and starts the reader goroutine
func (c *WSCaller) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.url, err)
	}

	conn.SetReadLimit(wsMaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()

	c.logger.Info().Str("url", c.url).Msg("connected")
	return nil
}

// Close shuts down the connection and fails all pending requests
func (c *WSCaller) Close() {
	c.cancel()

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	c.failPending()
	c.wg.Wait()
}

// Call implements endpoint.Caller
func (c *WSCaller) Call(ctx context.Context, model, method string, args []any) (any, error) {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()

	if conn == nil {
		return nil, fmt.Errorf("WebSocket not connected")
	}

	id := atomic.AddInt64(&c.reqID, 1)
	req, err := jsonrpc.NewCallRequest(model, method, args, jsonrpc.NewIDInt(id))
	if err != nil {
		return nil, err
	}

	reqBytes, err := req.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	respChan := make(chan *jsonrpc.Response, 1)
	c.pendingMu.Lock()
	c.pending[id] = respChan
	c.pendingMu.Unlock()

	c.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	writeErr := conn.WriteMessage(websocket.TextMessage, reqBytes)
	c.writeMu.Unlock()
	if writeErr != nil {
		c.dropPending(id)
		return nil, fmt.Errorf("failed to send request: %w", writeErr)
	}

	select {
	case resp := <-respChan:
		if resp == nil {
			return nil, fmt.Errorf("connection closed")
		}
		if resp.HasError() {
			return nil, resp.Error
		}
		return resp.DecodeResult()
	case <-ctx.Done():
		c.dropPending(id)
		return nil, ctx.Err()
	case <-c.ctx.Done():
		c.dropPending(id)
		return nil, fmt.Errorf("caller closed")
	}
}

// readLoop reads responses and dispatches them to pending requests
func (c *WSCaller) readLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		c.connMu.RLock()
		conn := c.conn
		c.connMu.RUnlock()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.ctx.Done():
				return
			default:
			}

			c.logger.Warn().Err(err).Msg("connection lost, reconnecting")
			c.failPending()
			if !c.reconnect() {
				return
			}
			continue
		}

		resp, err := jsonrpc.ParseResponse(data)
		if err != nil {
			c.logger.Warn().Err(err).Msg("failed to parse response")
			continue
		}

		id, ok := resp.ID.Int64()
		if !ok {
			c.logger.Warn().Msg("response without numeric id, dropping")
			continue
		}

		c.pendingMu.Lock()
		ch, ok := c.pending[id]
		if ok {
			delete(c.pending, id)
		}
		c.pendingMu.Unlock()

		if ok {
			ch <- resp
		}
	}
}

// pingLoop keeps the connection alive
func (c *WSCaller) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.connMu.RLock()
			conn := c.conn
			c.connMu.RUnlock()
			if conn == nil {
				continue
			}

			c.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Debug().Err(err).Msg("ping failed")
			}
		}
	}
}

// reconnect redials until it succeeds or the caller is closed
func (c *WSCaller) reconnect() bool {
	for {
		select {
		case <-c.ctx.Done():
			return false
		case <-time.After(wsReconnectPeriod):
		}

		conn, _, err := websocket.DefaultDialer.DialContext(c.ctx, c.url, nil)
		if err != nil {
			c.logger.Warn().Err(err).Msg("reconnect failed")
			continue
		}

		conn.SetReadLimit(wsMaxMessageSize)
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(wsPongWait))
			return nil
		})

		c.connMu.Lock()
		c.conn = conn
		c.connMu.Unlock()

		c.logger.Info().Str("url", c.url).Msg("reconnected")
		return true
	}
}

// failPending removes every pending request and delivers a nil response
// to each, which its Call reports as a closed connection
func (c *WSCaller) failPending() {
	c.pendingMu.Lock()
	for id, ch := range c.pending {
		delete(c.pending, id)
		ch <- nil
	}
	c.pendingMu.Unlock()
}

func (c *WSCaller) dropPending(id int64) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}
