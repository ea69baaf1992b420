package domain

import (
	"context"
	"time"
)

// Channel is the interface for user-facing I/O (Telegram, Web, CLI).
type Channel interface {
	Name() string
	Start(ctx context.Context, bus MessageBus) error
	Stop() error
	Send(ctx context.Context, chatID string, content string) error
}

// ChannelStatus is a point-in-time view of a channel for health reporting.
type ChannelStatus struct {
	Name       string    `json:"name"`
	Running    bool      `json:"running"`
	Username   string    `json:"username,omitempty"`
	LastUpdate time.Time `json:"lastUpdate,omitempty"`
}
