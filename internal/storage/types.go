package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned for lookups of rows that do not exist.
var ErrNotFound = errors.New("storage: not found")

// Config configures the sqlite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// AlertDestination is a channel subscribed to active-alert reporting for a
// coordinate pair.
type AlertDestination struct {
	ID            string
	Latitude      string
	Longitude     string
	ZoneID        string
	CountyID      string
	GuildID       string
	ChannelID     string
	AutoCleanup   bool
	PingOnSevere  bool
	RadarImageURL string
}

// ForecastDestination is a channel subscribed to hourly forecast reporting.
type ForecastDestination struct {
	ID            string
	Latitude      string
	Longitude     string
	GuildID       string
	ChannelID     string
	AutoCleanup   bool
	RadarImageURL string
}

// RadarChannel tracks a message that gets its radar image refreshed in place.
type RadarChannel struct {
	ID            string
	Latitude      string
	Longitude     string
	GuildID       string
	ChannelID     string
	MessageID     string
	Location      string
	RadarStation  string
	RadarImageURL string
}

// SentAlert is one row of the alert dedup ledger. Created exactly once per
// (alert, destination); never mutated.
type SentAlert struct {
	ID        string
	AlertID   string
	GuildID   string
	ChannelID string
	MessageID string
	// Payload is a serialized snapshot of the alert, kept so reference
	// chains can be resolved after the upstream stops returning the alert.
	Payload string
	SentAt  time.Time
}

// VolatileMessage is one row of the ephemeral-message ledger.
type VolatileMessage struct {
	ID        string
	GuildID   string
	ChannelID string
	MessageID string
	ExpiresAt time.Time
}

// Store is the persistence surface consumed by the reporting engine.
// Implementations must be safe for concurrent use from multiple jobs.
type Store interface {
	// Alert destinations.
	CreateAlertDestination(ctx context.Context, d AlertDestination) error
	AlertDestinations(ctx context.Context) ([]AlertDestination, error)
	DeleteAlertDestination(ctx context.Context, id string) error
	CountAlertDestinationsByGuild(ctx context.Context, guildID string) (int, error)
	AlertDestinationExists(ctx context.Context, latitude, longitude, channelID string) (bool, error)

	// Forecast destinations.
	CreateForecastDestination(ctx context.Context, d ForecastDestination) error
	ForecastDestinations(ctx context.Context) ([]ForecastDestination, error)
	DeleteForecastDestination(ctx context.Context, id string) error
	CountForecastDestinationsByGuild(ctx context.Context, guildID string) (int, error)
	ForecastDestinationExists(ctx context.Context, latitude, longitude, channelID string) (bool, error)

	// Radar channels.
	CreateRadarChannel(ctx context.Context, c RadarChannel) error
	RadarChannels(ctx context.Context) ([]RadarChannel, error)
	DeleteRadarChannel(ctx context.Context, id string) error
	CountRadarChannelsByGuild(ctx context.Context, guildID string) (int, error)
	RadarChannelExists(ctx context.Context, latitude, longitude, channelID string) (bool, error)

	// Alert dedup ledger.
	HasSentAlert(ctx context.Context, alertID, guildID, channelID string) (bool, error)
	RecordSentAlert(ctx context.Context, a SentAlert) error
	FindSentAlert(ctx context.Context, alertID, guildID, channelID string) (SentAlert, error)
	SentAlertsByAlertID(ctx context.Context, alertID string) ([]SentAlert, error)

	// Ephemeral message ledger.
	CreateVolatileMessage(ctx context.Context, m VolatileMessage) error
	DueVolatileMessages(ctx context.Context, now time.Time) ([]VolatileMessage, error)
	DeleteVolatileMessage(ctx context.Context, id string) error

	Close() error
}
