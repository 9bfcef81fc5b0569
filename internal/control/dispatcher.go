// Package control holds the agent's tunable state and answers commands and
// configuration patches sent from the cloud.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"codeberg.org/mutker/envirod/internal/cloud"
	"codeberg.org/mutker/envirod/internal/logger"
)

const (
	MethodSetTelemetryInterval = "SetTelemetryInterval"

	// ReportedValueKey and placeholderReportedValue form the reported state
	// pushed after every desired-state patch. The value carries no meaning.
	ReportedValueKey         = "reportedValue"
	placeholderReportedValue = 42

	responseTimeout = 10 * time.Second
)

// ResponsePayload is the body of every method response.
type ResponsePayload struct {
	Response string `json:"Response"`
}

// Responder carries responses and reported state back to the cloud.
type Responder interface {
	SendMethodResponse(ctx context.Context, resp cloud.MethodResponse) error
	PatchReported(ctx context.Context, patch map[string]any) error
}

// Dispatcher routes inbound methods, patches and messages. It keeps no state
// between invocations; concurrent calls only meet at State.
type Dispatcher struct {
	state *State
	out   Responder
	log   logger.Logger
}

func NewDispatcher(state *State, out Responder, log logger.Logger) *Dispatcher {
	return &Dispatcher{
		state: state,
		out:   out,
		log:   log,
	}
}

// Invoke executes a named method and returns its response. Invalid
// parameters and unknown names are answered, never returned as errors.
func (d *Dispatcher) Invoke(name string, payload []byte) cloud.MethodResponse {
	switch name {
	case MethodSetTelemetryInterval:
		seconds, ok := parseInterval(payload)
		if !ok {
			return respond(http.StatusBadRequest, "Invalid parameter")
		}

		previous := d.state.Interval()
		d.state.SetInterval(seconds)
		d.log.Info().
			Int("previous", previous).
			Int("interval", seconds).
			Msg("Telemetry interval updated")

		return respond(http.StatusOK, fmt.Sprintf("Executed direct method %s, interval updated", name))
	default:
		return respond(http.StatusNotFound, fmt.Sprintf("Direct method %s not defined", name))
	}
}

// HandleMethod answers one invocation and sends exactly one response, tagged
// with the request id, before returning.
func (d *Dispatcher) HandleMethod(ctx context.Context, req cloud.MethodRequest) {
	d.log.Info().
		Str("name", req.Name).
		Str("payload", string(req.Payload)).
		Msg("Method request received")

	resp := d.Invoke(req.Name, req.Payload)
	resp.RequestID = req.RequestID

	ctx, cancel := context.WithTimeout(ctx, responseTimeout)
	defer cancel()

	if err := d.out.SendMethodResponse(ctx, resp); err != nil {
		d.log.ErrorWithCode(err).
			Str("name", req.Name).
			Str("request_id", req.RequestID).
			Msg("Failed to send method response")
		return
	}

	d.log.Debug().
		Str("name", req.Name).
		Int("status", resp.Status).
		Msg("Method response sent")
}

// HandlePatch acknowledges a desired-state patch with reported state.
func (d *Dispatcher) HandlePatch(ctx context.Context, patch json.RawMessage) {
	d.log.Info().Str("patch", string(patch)).Msg("Desired properties patch received")

	ctx, cancel := context.WithTimeout(ctx, responseTimeout)
	defer cancel()

	reported := map[string]any{ReportedValueKey: placeholderReportedValue}
	if err := d.out.PatchReported(ctx, reported); err != nil {
		d.log.ErrorWithCode(err).Msg("Failed to update reported properties")
		return
	}

	d.log.Info().Msg("Reported properties updated")
}

// HandleMessage logs a cloud-to-device message. Nothing else happens.
func (d *Dispatcher) HandleMessage(_ context.Context, msg cloud.Message) {
	d.log.Info().
		Str("data", string(msg.Body)).
		Interface("custom_properties", msg.Properties).
		Msg("Cloud message received")
}

func respond(status int, text string) cloud.MethodResponse {
	return cloud.MethodResponse{
		Status:  status,
		Payload: ResponsePayload{Response: text},
	}
}

// parseInterval accepts an integer in 1..MaxInterval given either bare or
// as a JSON string.
func parseInterval(payload []byte) (int, bool) {
	text := strings.TrimSpace(string(payload))
	if strings.HasPrefix(text, `"`) {
		var s string
		if err := json.Unmarshal([]byte(text), &s); err != nil {
			return 0, false
		}
		text = strings.TrimSpace(s)
	}

	seconds, err := strconv.Atoi(text)
	if err != nil || seconds <= 0 || int64(seconds) > MaxInterval {
		return 0, false
	}

	return seconds, true
}
