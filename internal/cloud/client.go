package cloud

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"codeberg.org/mutker/envirod/internal/errors"
	"codeberg.org/mutker/envirod/internal/logger"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	defaultTokenTTL         = time.Hour
	defaultHandshakeTimeout = 15 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	closeGracePeriod        = time.Second

	modelIDHeader = "X-Model-Id"
)

type Config struct {
	// Endpoint overrides the websocket URL derived from the credential.
	Endpoint         string
	ModelID          string
	TokenTTL         time.Duration
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

// Client is a device connection to the cloud hub over a single websocket.
// Connect is idempotent and redials after the connection drops.
type Client struct {
	cred   *Credential
	cfg    Config
	log    logger.Logger
	dialer *websocket.Dialer

	mu      sync.Mutex
	conn    *websocket.Conn
	handler Handler
	pending map[string]chan Envelope
	closed  bool

	writeMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewClient(cred *Credential, cfg Config, log logger.Logger) *Client {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = cred.WebsocketURL()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		cred: cred,
		cfg:  cfg,
		log:  log,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		pending: make(map[string]chan Envelope),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// SetHandler installs the receiver of inbound methods, patches and messages.
func (c *Client) SetHandler(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// Connected reports whether a websocket is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Connect dials the hub unless a connection is already open.
func (c *Client) Connect(ctx context.Context) error {
	errFactory := errors.New()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errFactory.New(ErrClosed)
	}
	if c.conn != nil {
		return nil
	}

	token, err := c.cred.Token(c.cfg.ModelID, c.cfg.TokenTTL, time.Now())
	if err != nil {
		return errFactory.Wrap(ErrConnect, err)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	if c.cfg.ModelID != "" {
		header.Set(modelIDHeader, c.cfg.ModelID)
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.cfg.Endpoint, header)
	if err != nil {
		if resp != nil {
			return errFactory.WithData(ErrConnect, struct {
				Endpoint string
				Status   int
				Error    string
			}{
				Endpoint: c.cfg.Endpoint,
				Status:   resp.StatusCode,
				Error:    err.Error(),
			})
		}
		return errFactory.Wrap(ErrConnect, err)
	}

	c.conn = conn
	c.wg.Add(1)
	go c.readPump(conn)

	c.log.Info().
		Str("endpoint", c.cfg.Endpoint).
		Str("device_id", c.cred.DeviceID).
		Msg("Connected to cloud hub")

	return nil
}

// SendTelemetry publishes one device-to-cloud message.
func (c *Client) SendTelemetry(ctx context.Context, msg Message) error {
	return c.send(ctx, Envelope{
		Type:            TypeTelemetry,
		ContentType:     msg.ContentType,
		ContentEncoding: msg.ContentEncoding,
		Properties:      msg.Properties,
		Payload:         bodyPayload(msg.Body, msg.ContentType),
		Timestamp:       time.Now().UTC(),
	})
}

// SendMethodResponse answers a method request, tagged with its request id.
func (c *Client) SendMethodResponse(ctx context.Context, resp MethodResponse) error {
	payload, err := json.Marshal(resp.Payload)
	if err != nil {
		return errors.New().Wrap(ErrSend, err)
	}

	return c.send(ctx, Envelope{
		Type:      TypeMethodResponse,
		ID:        resp.RequestID,
		Status:    resp.Status,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	})
}

// PatchReported pushes reported properties to the device twin.
func (c *Client) PatchReported(ctx context.Context, patch map[string]any) error {
	payload, err := json.Marshal(patch)
	if err != nil {
		return errors.New().Wrap(ErrSend, err)
	}

	return c.send(ctx, Envelope{
		Type:      TypeTwinReported,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	})
}

// GetTwin requests the full twin document and waits for the reply.
func (c *Client) GetTwin(ctx context.Context) (json.RawMessage, error) {
	errFactory := errors.New()

	id := uuid.NewString()
	ch := make(chan Envelope, 1)

	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.send(ctx, Envelope{Type: TypeTwinGet, ID: id, Timestamp: time.Now().UTC()}); err != nil {
		return nil, errFactory.Wrap(ErrTwinRequest, err)
	}

	select {
	case <-ctx.Done():
		return nil, errFactory.Wrap(ErrTwinRequest, ctx.Err())
	case env, ok := <-ch:
		if !ok {
			return nil, errFactory.Wrap(ErrTwinRequest, errFactory.New(ErrNotConnected))
		}
		return env.Payload, nil
	}
}

// Close shuts the connection down and waits for in-flight handlers.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.failPending()
	c.mu.Unlock()

	c.cancel()

	var closeErr error
	if conn != nil {
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod)); err != nil {
			c.log.Debug().Err(err).Msg("Failed to send close frame")
		}
		c.writeMu.Unlock()
		closeErr = conn.Close()
	}

	c.wg.Wait()
	c.log.Info().Msg("Cloud connection closed")

	if closeErr != nil {
		return errors.New().Wrap(errors.ErrShutdownFailed, closeErr)
	}
	return nil
}

func (c *Client) send(ctx context.Context, env Envelope) error {
	errFactory := errors.New()

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return errFactory.New(ErrNotConnected)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(c.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return errFactory.Wrap(ErrSend, err)
	}

	if err := conn.WriteJSON(env); err != nil {
		c.drop(conn, err)
		return errFactory.Wrap(ErrSend, err)
	}

	return nil
}

func (c *Client) readPump(conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			c.drop(conn, err)
			return
		}
		c.route(env)
	}
}

func (c *Client) route(env Envelope) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()

	switch env.Type {
	case TypeTwin:
		c.mu.Lock()
		ch, ok := c.pending[env.ID]
		delete(c.pending, env.ID)
		c.mu.Unlock()
		if ok {
			ch <- env
		}
	case TypeMethodRequest:
		if h == nil {
			c.log.Warn().Str("method", env.Name).Msg("No handler installed, dropping method request")
			return
		}
		req := MethodRequest{RequestID: env.ID, Name: env.Name, Payload: env.Payload}
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			h.HandleMethod(c.ctx, req)
		}()
	case TypeTwinPatch:
		if h == nil {
			c.log.Warn().Msg("No handler installed, dropping twin patch")
			return
		}
		patch := env.Payload
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			h.HandlePatch(c.ctx, patch)
		}()
	case TypeMessage:
		if h == nil {
			return
		}
		h.HandleMessage(c.ctx, Message{
			Body:            messageBody(env.Payload),
			ContentType:     env.ContentType,
			ContentEncoding: env.ContentEncoding,
			Properties:      env.Properties,
		})
	default:
		c.log.Debug().Str("type", env.Type).Msg("Ignoring unknown envelope")
	}
}

// drop forgets conn if it is still the current connection so that the next
// Connect redials.
func (c *Client) drop(conn *websocket.Conn, cause error) {
	c.mu.Lock()
	current := c.conn == conn
	if current {
		c.conn = nil
		c.failPending()
	}
	closed := c.closed
	c.mu.Unlock()

	conn.Close()

	if current && !closed {
		c.log.Warn().Err(cause).Msg("Cloud connection lost")
	}
}

// failPending releases twin requests waiting on a dead connection.
// Callers hold c.mu.
func (c *Client) failPending() {
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

func bodyPayload(body []byte, contentType string) json.RawMessage {
	if contentType == "application/json" && json.Valid(body) {
		return json.RawMessage(body)
	}
	quoted, _ := json.Marshal(string(body))
	return quoted
}

func messageBody(payload json.RawMessage) []byte {
	var s string
	if len(payload) > 0 && payload[0] == '"' && json.Unmarshal(payload, &s) == nil {
		return []byte(s)
	}
	return payload
}
