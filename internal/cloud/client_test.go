package cloud

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"codeberg.org/mutker/envirod/internal/errors"
	"codeberg.org/mutker/envirod/internal/logger"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hub is a minimal cloud endpoint: it checks the bearer token and hands
// every accepted websocket to the test.
type hub struct {
	cred     *Credential
	upgrader websocket.Upgrader
	conns    chan *websocket.Conn
	dials    atomic.Int32
	models   chan string
}

func newHub(t *testing.T) (*hub, *httptest.Server) {
	t.Helper()

	cred, err := ParseConnectionString(testConnectionString)
	require.NoError(t, err)

	h := &hub{
		cred:   cred,
		conns:  make(chan *websocket.Conn, 4),
		models: make(chan string, 4),
	}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return h, srv
}

func (h *hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if _, err := h.cred.VerifyToken(token); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	h.dials.Add(1)
	h.models <- r.Header.Get(modelIDHeader)
	h.conns <- conn
}

func (h *hub) accept(t *testing.T) *websocket.Conn {
	t.Helper()

	select {
	case conn := <-h.conns:
		t.Cleanup(func() { conn.Close() })
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("no connection accepted")
		return nil
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/devices/enviro-01/ws"
}

func newTestClient(t *testing.T, srv *httptest.Server, connectionString string) *Client {
	t.Helper()

	cred, err := ParseConnectionString(connectionString)
	require.NoError(t, err)

	c := NewClient(cred, Config{Endpoint: wsURL(srv), ModelID: "dtmi:test;1"}, logger.Nop())
	t.Cleanup(func() { c.Close() })

	return c
}

type recordingHandler struct {
	client   *Client
	methods  chan MethodRequest
	patches  chan json.RawMessage
	messages chan Message
}

func newRecordingHandler(c *Client) *recordingHandler {
	return &recordingHandler{
		client:   c,
		methods:  make(chan MethodRequest, 4),
		patches:  make(chan json.RawMessage, 4),
		messages: make(chan Message, 4),
	}
}

func (h *recordingHandler) HandleMethod(ctx context.Context, req MethodRequest) {
	h.methods <- req
	_ = h.client.SendMethodResponse(ctx, MethodResponse{
		RequestID: req.RequestID,
		Status:    200,
		Payload:   map[string]string{"Response": "ok " + req.Name},
	})
}

func (h *recordingHandler) HandlePatch(_ context.Context, patch json.RawMessage) {
	h.patches <- patch
}

func (h *recordingHandler) HandleMessage(_ context.Context, msg Message) {
	h.messages <- msg
}

func TestConnectIsIdempotent(t *testing.T) {
	h, srv := newHub(t)
	c := newTestClient(t, srv, testConnectionString)

	require.NoError(t, c.Connect(context.Background()))
	h.accept(t)
	require.NoError(t, c.Connect(context.Background()))

	assert.Equal(t, int32(1), h.dials.Load())
	assert.Equal(t, "dtmi:test;1", <-h.models)
	assert.True(t, c.Connected())
}

func TestConnectRejected(t *testing.T) {
	_, srv := newHub(t)
	c := newTestClient(t, srv, "HostName=hub.example.net;DeviceId=enviro-01;SharedAccessKey=d3Jvbmc=")

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrConnect))
	assert.False(t, c.Connected())
}

func TestSendTelemetry(t *testing.T) {
	h, srv := newHub(t)
	c := newTestClient(t, srv, testConnectionString)

	require.NoError(t, c.Connect(context.Background()))
	conn := h.accept(t)

	body := []byte(`{"timestamp":"2024-05-01T10:00:00.000000","temperature":24.00}`)
	require.NoError(t, c.SendTelemetry(context.Background(), Message{
		Body:            body,
		ContentType:     "application/json",
		ContentEncoding: "utf-8",
	}))

	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, TypeTelemetry, env.Type)
	assert.Equal(t, "application/json", env.ContentType)
	assert.Equal(t, "utf-8", env.ContentEncoding)
	assert.JSONEq(t, string(body), string(env.Payload))
}

func TestSendWithoutConnection(t *testing.T) {
	_, srv := newHub(t)
	c := newTestClient(t, srv, testConnectionString)

	err := c.SendTelemetry(context.Background(), Message{Body: []byte("{}")})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrNotConnected))
}

func TestMethodRoundTrip(t *testing.T) {
	h, srv := newHub(t)
	c := newTestClient(t, srv, testConnectionString)
	handler := newRecordingHandler(c)
	c.SetHandler(handler)

	require.NoError(t, c.Connect(context.Background()))
	conn := h.accept(t)

	require.NoError(t, conn.WriteJSON(Envelope{
		Type:    TypeMethodRequest,
		ID:      "req-1",
		Name:    "SetTelemetryInterval",
		Payload: json.RawMessage(`"30"`),
	}))

	select {
	case req := <-handler.methods:
		assert.Equal(t, "req-1", req.RequestID)
		assert.Equal(t, "SetTelemetryInterval", req.Name)
		assert.JSONEq(t, `"30"`, string(req.Payload))
	case <-time.After(2 * time.Second):
		t.Fatal("method request not delivered")
	}

	var resp Envelope
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, TypeMethodResponse, resp.Type)
	assert.Equal(t, "req-1", resp.ID)
	assert.Equal(t, 200, resp.Status)
	assert.JSONEq(t, `{"Response":"ok SetTelemetryInterval"}`, string(resp.Payload))
}

func TestPatchAndMessageRouting(t *testing.T) {
	h, srv := newHub(t)
	c := newTestClient(t, srv, testConnectionString)
	handler := newRecordingHandler(c)
	c.SetHandler(handler)

	require.NoError(t, c.Connect(context.Background()))
	conn := h.accept(t)

	require.NoError(t, conn.WriteJSON(Envelope{Type: TypeTwinPatch, Payload: json.RawMessage(`{"interval":10}`)}))
	require.NoError(t, conn.WriteJSON(Envelope{
		Type:       TypeMessage,
		Payload:    json.RawMessage(`"hello device"`),
		Properties: map[string]string{"origin": "ops"},
	}))

	select {
	case patch := <-handler.patches:
		assert.JSONEq(t, `{"interval":10}`, string(patch))
	case <-time.After(2 * time.Second):
		t.Fatal("patch not delivered")
	}

	select {
	case msg := <-handler.messages:
		assert.Equal(t, "hello device", string(msg.Body))
		assert.Equal(t, "ops", msg.Properties["origin"])
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestPatchReported(t *testing.T) {
	h, srv := newHub(t)
	c := newTestClient(t, srv, testConnectionString)

	require.NoError(t, c.Connect(context.Background()))
	conn := h.accept(t)

	require.NoError(t, c.PatchReported(context.Background(), map[string]any{"reportedValue": 42}))

	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, TypeTwinReported, env.Type)
	assert.JSONEq(t, `{"reportedValue":42}`, string(env.Payload))
}

func TestGetTwin(t *testing.T) {
	h, srv := newHub(t)
	c := newTestClient(t, srv, testConnectionString)

	require.NoError(t, c.Connect(context.Background()))
	conn := h.accept(t)

	go func() {
		var req Envelope
		if err := conn.ReadJSON(&req); err != nil || req.Type != TypeTwinGet {
			return
		}
		_ = conn.WriteJSON(Envelope{
			Type:    TypeTwin,
			ID:      req.ID,
			Payload: json.RawMessage(`{"desired":{"$version":3}}`),
		})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	twin, err := c.GetTwin(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"desired":{"$version":3}}`, string(twin))
}

func TestReconnectAfterDrop(t *testing.T) {
	h, srv := newHub(t)
	c := newTestClient(t, srv, testConnectionString)

	require.NoError(t, c.Connect(context.Background()))
	conn := h.accept(t)
	conn.Close()

	require.Eventually(t, func() bool { return !c.Connected() }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, c.Connect(context.Background()))
	h.accept(t)
	assert.Equal(t, int32(2), h.dials.Load())
}

func TestConnectAfterClose(t *testing.T) {
	h, srv := newHub(t)
	c := newTestClient(t, srv, testConnectionString)

	require.NoError(t, c.Connect(context.Background()))
	h.accept(t)
	require.NoError(t, c.Close())

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrClosed))
}
