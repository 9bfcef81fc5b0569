package cloud

import (
	"context"
	"encoding/json"
	"time"
)

// Envelope types exchanged over the device websocket.
const (
	TypeTelemetry      = "telemetry"
	TypeMethodRequest  = "method_request"
	TypeMethodResponse = "method_response"
	TypeTwinGet        = "twin_get"
	TypeTwin           = "twin"
	TypeTwinPatch      = "twin_patch"
	TypeTwinReported   = "twin_reported"
	TypeMessage        = "message"
)

// Envelope is the JSON frame carried by every websocket message.
type Envelope struct {
	Type            string            `json:"type"`
	ID              string            `json:"id,omitempty"`
	Name            string            `json:"name,omitempty"`
	Status          int               `json:"status,omitempty"`
	ContentType     string            `json:"content_type,omitempty"`
	ContentEncoding string            `json:"content_encoding,omitempty"`
	Properties      map[string]string `json:"properties,omitempty"`
	Payload         json.RawMessage   `json:"payload,omitempty"`
	Timestamp       time.Time         `json:"timestamp"`
}

// Message is an outbound telemetry message or an inbound cloud-to-device message.
type Message struct {
	Body            []byte
	ContentType     string
	ContentEncoding string
	Properties      map[string]string
}

// MethodRequest is a direct method invocation from the cloud.
type MethodRequest struct {
	RequestID string
	Name      string
	Payload   json.RawMessage
}

// MethodResponse answers exactly one MethodRequest.
type MethodResponse struct {
	RequestID string
	Status    int
	Payload   any
}

// Handler receives inbound traffic. Methods may be called concurrently.
type Handler interface {
	HandleMethod(ctx context.Context, req MethodRequest)
	HandlePatch(ctx context.Context, patch json.RawMessage)
	HandleMessage(ctx context.Context, msg Message)
}
