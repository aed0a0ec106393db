package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies a mirrored message sent to dashboard clients.
type MessageType string

const (
	TypeEvent   MessageType = "event"   // Presence transition
	TypeCommand MessageType = "command" // Applied host or dashboard command
	TypeStatus  MessageType = "status"  // Periodic controller snapshot
)

// Message is the JSON envelope for everything pushed over websockets.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a message stamped with the current time.
func NewMessage(msgType MessageType, data any) (*Message, error) {
	var raw json.RawMessage
	if data != nil {
		var err error
		raw, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      raw,
	}, nil
}

// ParseData unmarshals the message data into v.
func (m *Message) ParseData(v any) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message.
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes.
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return &msg, nil
}

// EventData describes one presence transition.
type EventData struct {
	Name      string `json:"name"`
	Line      string `json:"line"`
	From      string `json:"from"`
	To        string `json:"to"`
	Movement  string `json:"movement"`
	SessionID string `json:"session_id,omitempty"`
}

// CommandData describes one applied command.
type CommandData struct {
	Line     string `json:"line"`
	Source   string `json:"source"`
	Movement string `json:"movement"`
}

// NewEventMessage wraps a transition for broadcast.
func NewEventMessage(ev EventData) (*Message, error) {
	if ev.Line == "" {
		ev.Line = FormatEvent(ev.Name)
	}
	return NewMessage(TypeEvent, ev)
}

// NewCommandMessage wraps an applied command for broadcast.
func NewCommandMessage(cmd CommandData) (*Message, error) {
	return NewMessage(TypeCommand, cmd)
}
