package domain

import (
	"fmt"
	"time"
)

type ChannelName string

const (
	ChannelBookingCom ChannelName = "booking.com"
	ChannelExpedia    ChannelName = "expedia"
	ChannelAgoda      ChannelName = "agoda"
)

// Channels lists every supported OTA, in the order "sync all" walks them.
func Channels() []ChannelName {
	return []ChannelName{ChannelBookingCom, ChannelExpedia, ChannelAgoda}
}

func ParseChannelName(s string) (ChannelName, error) {
	switch ChannelName(s) {
	case ChannelBookingCom, ChannelExpedia, ChannelAgoda:
		return ChannelName(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedChannel, s)
}

type ConnectionStatus string

const (
	ConnConnected    ConnectionStatus = "connected"
	ConnDisconnected ConnectionStatus = "disconnected"
	ConnError        ConnectionStatus = "error"
	ConnTesting      ConnectionStatus = "testing"
)

type SyncStatus string

const (
	SyncActive  SyncStatus = "active"
	SyncSyncing SyncStatus = "syncing"
	SyncError   SyncStatus = "error"
	SyncPaused  SyncStatus = "paused"
)

// Credentials is the opaque per-channel secret bundle. Values are never
// logged and never quoted into sync log messages.
type Credentials map[string]string

// ChannelConfig is the per-(property, channel) distribution setup. syncStatus
// and the error counter are owned by the sync orchestrator; everything else
// is written by property management.
type ChannelConfig struct {
	PropertyID       int64
	Channel          ChannelName
	Enabled          bool
	Credentials      Credentials
	ConnectionStatus ConnectionStatus
	SyncStatus       SyncStatus
	LastSyncAt       *time.Time
	SyncErrorCount   int
	UpdatedAt        time.Time
}
