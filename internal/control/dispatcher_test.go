package control_test

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"sync"
	"testing"

	"codeberg.org/mutker/envirod/internal/cloud"
	"codeberg.org/mutker/envirod/internal/control"
	"codeberg.org/mutker/envirod/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResponder struct {
	mu        sync.Mutex
	responses []cloud.MethodResponse
	patches   []map[string]any
	err       error
}

func (f *fakeResponder) SendMethodResponse(_ context.Context, resp cloud.MethodResponse) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, resp)
	return f.err
}

func (f *fakeResponder) PatchReported(_ context.Context, patch map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patches = append(f.patches, patch)
	return f.err
}

func responseText(t *testing.T, resp cloud.MethodResponse) string {
	t.Helper()
	payload, ok := resp.Payload.(control.ResponsePayload)
	require.True(t, ok, "unexpected payload type %T", resp.Payload)
	return payload.Response
}

func TestSetTelemetryInterval(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    int
	}{
		{name: "bare integer", payload: `30`, want: 30},
		{name: "string integer", payload: `"120"`, want: 120},
		{name: "padded string", payload: `" 15 "`, want: 15},
		{name: "padded bare", payload: " 5\n", want: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := control.NewState(60)
			d := control.NewDispatcher(state, &fakeResponder{}, logger.Nop())

			resp := d.Invoke(control.MethodSetTelemetryInterval, []byte(tt.payload))

			assert.Equal(t, http.StatusOK, resp.Status)
			assert.Equal(t, "Executed direct method SetTelemetryInterval, interval updated", responseText(t, resp))
			assert.Equal(t, tt.want, state.Interval())
			assert.Positive(t, state.IntervalDuration())
		})
	}
}

func TestSetTelemetryIntervalInvalid(t *testing.T) {
	payloads := []string{
		`"abc"`,
		`abc`,
		``,
		`null`,
		`0`,
		`-5`,
		`"-1"`,
		`2.5`,
		`{"interval":30}`,
		`[30]`,
		`"30`,
		`"9223372037"`,
		`"9300000000"`,
		`99999999999999999999`,
	}

	for _, payload := range payloads {
		t.Run(payload, func(t *testing.T) {
			state := control.NewState(60)
			d := control.NewDispatcher(state, &fakeResponder{}, logger.Nop())

			resp := d.Invoke(control.MethodSetTelemetryInterval, []byte(payload))

			assert.Equal(t, http.StatusBadRequest, resp.Status)
			assert.Equal(t, "Invalid parameter", responseText(t, resp))
			assert.Equal(t, 60, state.Interval())
		})
	}
}

func TestUnknownMethod(t *testing.T) {
	state := control.NewState(60)
	d := control.NewDispatcher(state, &fakeResponder{}, logger.Nop())

	resp := d.Invoke("Reboot", []byte(`{}`))

	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.Equal(t, "Direct method Reboot not defined", responseText(t, resp))
	assert.Equal(t, 60, state.Interval())
}

func TestHandleMethodSendsOneResponse(t *testing.T) {
	state := control.NewState(60)
	out := &fakeResponder{}
	d := control.NewDispatcher(state, out, logger.Nop())

	d.HandleMethod(context.Background(), cloud.MethodRequest{
		RequestID: "req-7",
		Name:      control.MethodSetTelemetryInterval,
		Payload:   json.RawMessage(`"10"`),
	})

	require.Len(t, out.responses, 1)
	assert.Equal(t, "req-7", out.responses[0].RequestID)
	assert.Equal(t, http.StatusOK, out.responses[0].Status)
	assert.Equal(t, 10, state.Interval())

	body, err := json.Marshal(out.responses[0].Payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"Response":"Executed direct method SetTelemetryInterval, interval updated"}`, string(body))
}

func TestHandleMethodSendFailure(t *testing.T) {
	state := control.NewState(60)
	out := &fakeResponder{err: stderrors.New("link down")}
	d := control.NewDispatcher(state, out, logger.Nop())

	d.HandleMethod(context.Background(), cloud.MethodRequest{
		RequestID: "req-8",
		Name:      control.MethodSetTelemetryInterval,
		Payload:   json.RawMessage(`20`),
	})

	// The interval change stands even when the response is lost.
	assert.Len(t, out.responses, 1)
	assert.Equal(t, 20, state.Interval())
}

func TestHandlePatchAcknowledges(t *testing.T) {
	state := control.NewState(60)
	out := &fakeResponder{}
	d := control.NewDispatcher(state, out, logger.Nop())

	d.HandlePatch(context.Background(), json.RawMessage(`{"interval":5,"$version":3}`))
	d.HandlePatch(context.Background(), json.RawMessage(`{}`))

	require.Len(t, out.patches, 2)
	for _, p := range out.patches {
		assert.Equal(t, map[string]any{control.ReportedValueKey: 42}, p)
	}
	assert.Equal(t, 60, state.Interval())
	assert.Empty(t, out.responses)
}

func TestHandleMessageOnlyLogs(t *testing.T) {
	state := control.NewState(60)
	out := &fakeResponder{}
	d := control.NewDispatcher(state, out, logger.Nop())

	d.HandleMessage(context.Background(), cloud.Message{
		Body:       []byte("hello"),
		Properties: map[string]string{"k": "v"},
	})

	assert.Empty(t, out.responses)
	assert.Empty(t, out.patches)
	assert.Equal(t, 60, state.Interval())
}

func TestConcurrentInvocations(t *testing.T) {
	state := control.NewState(60)
	out := &fakeResponder{}
	d := control.NewDispatcher(state, out, logger.Nop())

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(seconds int) {
			defer wg.Done()
			payload, _ := json.Marshal(seconds)
			d.HandleMethod(context.Background(), cloud.MethodRequest{
				RequestID: "req",
				Name:      control.MethodSetTelemetryInterval,
				Payload:   payload,
			})
		}(i)
		_ = state.Interval()
	}
	wg.Wait()

	assert.Len(t, out.responses, 20)
	assert.GreaterOrEqual(t, state.Interval(), 1)
	assert.LessOrEqual(t, state.Interval(), 20)
}
