// Package protocol defines the WebSocket message types exchanged between
// guardiand and the mobile shell over the local bridge.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of bridge message
type MessageType string

const (
	// Shell → Daemon messages
	TypePress    MessageType = "press"    // Hardware button / lock-screen event
	TypeCommand  MessageType = "command"  // User gesture (confirm, cancel, stop)
	TypeLocation MessageType = "location" // Position fix from the shell's GPS

	// Daemon → Shell messages
	TypeConfirm MessageType = "confirm" // Show the drag-to-confirm surface
	TypeAlert   MessageType = "alert"   // Urgent, bypass-quiet-hours alert
	TypeStatus  MessageType = "status"  // Ongoing-response status card
	TypeClear   MessageType = "clear"   // Take down the status card

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all bridge messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return &msg, nil
}

// =============================================================================
// Shell → Daemon Message Types
// =============================================================================

// PressKind identifies the lock-screen event that reached the shell.
type PressKind string

const (
	PressScreenOff   PressKind = "screen_off"
	PressScreenOn    PressKind = "screen_on"
	PressUserPresent PressKind = "user_present"
)

// PressData carries one hardware press event
type PressData struct {
	Kind PressKind `json:"kind"`
}

// CommandAction identifies a user gesture on a daemon surface.
type CommandAction string

const (
	ActionConfirm CommandAction = "confirm" // Drag completed, start response
	ActionCancel  CommandAction = "cancel"  // Dismissed the confirmation
	ActionStop    CommandAction = "stop"    // Stop the active response
)

// CommandData carries a user gesture
type CommandData struct {
	Action CommandAction `json:"action"`
	// Track is the drag progress (0..1) for confirm gestures.
	Track float64 `json:"track,omitempty"`
}

// LocationData carries one GPS fix from the shell
type LocationData struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// =============================================================================
// Daemon → Shell Message Types
// =============================================================================

// ConfirmRequest asks the shell to show the drag-to-confirm surface
type ConfirmRequest struct {
	Title          string  `json:"title"`
	Body           string  `json:"body"`
	TimeoutMs      int64   `json:"timeout_ms"`
	TrackThreshold float64 `json:"track_threshold"` // Drag fraction that confirms
}

// AlertData is an urgent notification that bypasses quiet hours
type AlertData struct {
	Title  string `json:"title"`
	Body   string `json:"body"`
	Urgent bool   `json:"urgent"`
}

// StatusData is the ongoing-response status card
type StatusData struct {
	Title   string   `json:"title"`
	Body    string   `json:"body"`
	Actions []string `json:"actions,omitempty"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
