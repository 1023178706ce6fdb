// Package notifier fans out trading events to configured sinks.
package notifier

import "time"

// EventKind classifies a notification.
type EventKind string

const (
	EventSignalGenerated EventKind = "signal_generated"
	EventTradeExecuted   EventKind = "trade_executed"
	EventPositionClosed  EventKind = "position_closed"
)

// Event is a single notification payload.
type Event struct {
	Kind       EventKind      `json:"event"`
	Symbol     string         `json:"symbol"`
	Detail     map[string]any `json:"detail,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Config holds notifier configuration
type Config struct {
	Type   string         `mapstructure:"type"`
	Params map[string]any `mapstructure:"params"`
}

// Notifier defines the interface for event notification
type Notifier interface {
	// Name returns the unique identifier for this notifier
	Name() string

	// Init initializes the notifier with configuration
	Init(cfg Config) error

	// Send sends a single event notification
	Send(event Event) error

	// SendBatch sends multiple event notifications
	SendBatch(events []Event) error
}
