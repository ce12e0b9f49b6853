package platform

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Resource-gone signal. Adapters must wrap channel/guild/message lookups that
// fail because the target no longer exists so callers can self-heal their
// local records with errors.Is.
var ErrNotFound = errors.New("platform: resource not found")

// NotFoundError carries which resource kind vanished. It matches ErrNotFound.
type NotFoundError struct {
	Kind string // "guild", "channel", "message", "webhook"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("platform: %s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// IsNotFound reports whether err signals a missing platform resource.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

type Channel struct {
	ID      string
	GuildID string
	Name    string
	// Text is false for voice/category/forum channels that cannot receive
	// plain messages.
	Text bool
}

type MessageRef struct {
	ID        string
	ChannelID string
	GuildID   string
}

// URL returns the canonical jump link for the message.
func (r MessageRef) URL() string {
	return fmt.Sprintf("https://discord.com/channels/%s/%s/%s", r.GuildID, r.ChannelID, r.ID)
}

type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

type Embed struct {
	Title         string
	Description   string
	URL           string
	Color         int
	AuthorName    string
	AuthorIconURL string
	FooterText    string
	ImageURL      string
	ThumbnailURL  string
	Fields        []EmbedField
	Timestamp     time.Time
}

const (
	// Platform-enforced embed limits.
	MaxEmbedDescription = 4096
	MaxEmbedTotal       = 6000
)

// Length approximates the character count the platform bills an embed for.
func (e *Embed) Length() int {
	n := len(e.Title) + len(e.Description) + len(e.AuthorName) + len(e.FooterText)
	for _, f := range e.Fields {
		n += len(f.Name) + len(f.Value)
	}
	return n
}

type Message struct {
	Content string
	Embed   *Embed
	// SuppressNotifications sends the message without triggering push/desktop
	// notifications (informational traffic such as forecasts).
	SuppressNotifications bool
}

// SenderIdentity is a named posting identity bound to one channel (a webhook
// in Discord terms). Reporting jobs post under per-purpose identities so
// their messages are visually attributable.
type SenderIdentity struct {
	ID        string
	ChannelID string
	Name      string
}

type Presence struct {
	Status   string // "online", "dnd", "idle"
	Activity string
}

// Adapter is the narrow chat-platform surface the reporting engine consumes.
// The concrete client (gateway, shards, slash commands) lives elsewhere and
// is out of scope here; tests use in-memory fakes.
type Adapter interface {
	// ResolveChannel returns the channel or ErrNotFound if it no longer
	// exists or is not visible to the bot.
	ResolveChannel(ctx context.Context, channelID string) (Channel, error)

	SendMessage(ctx context.Context, channelID string, msg Message) (MessageRef, error)
	// SendAs posts through the given sender identity instead of the bot user.
	SendAs(ctx context.Context, identity SenderIdentity, msg Message) (MessageRef, error)
	EditMessage(ctx context.Context, channelID, messageID string, msg Message) error
	DeleteMessage(ctx context.Context, channelID, messageID string) error

	// GetOrCreateSenderIdentity returns the channel's identity with the given
	// name, creating it (with an audit reason) when absent.
	GetOrCreateSenderIdentity(ctx context.Context, channelID, name, reason string) (SenderIdentity, error)

	SetPresence(ctx context.Context, p Presence) error
}
