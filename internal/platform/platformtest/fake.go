// Package platformtest provides an in-memory platform.Adapter for tests.
package platformtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/depthbomb/weathergoat-sub000/internal/platform"
)

// SentMessage is one recorded SendMessage/SendAs call.
type SentMessage struct {
	ChannelID string
	Identity  string // empty for plain sends
	Msg       platform.Message
	Ref       platform.MessageRef
}

// Edit is one recorded EditMessage call.
type Edit struct {
	ChannelID string
	MessageID string
	Msg       platform.Message
}

// Adapter is an in-memory platform.Adapter. Zero value is not usable; call
// New. Safe for concurrent use.
type Adapter struct {
	mu sync.Mutex

	nextID     int
	channels   map[string]platform.Channel
	messages   map[string]bool // "channelID/messageID"
	identities map[string]platform.SenderIdentity

	sent      []SentMessage
	edits     []Edit
	deleted   []string // "channelID/messageID"
	presences []platform.Presence

	// FailDeletes makes DeleteMessage return an opaque error for these keys.
	FailDeletes map[string]error
}

var _ platform.Adapter = (*Adapter)(nil)

func New() *Adapter {
	return &Adapter{
		channels:    make(map[string]platform.Channel),
		messages:    make(map[string]bool),
		identities:  make(map[string]platform.SenderIdentity),
		FailDeletes: make(map[string]error),
	}
}

// AddChannel registers a text channel the fake will resolve.
func (a *Adapter) AddChannel(id, guildID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.channels[id] = platform.Channel{ID: id, GuildID: guildID, Name: "chan-" + id, Text: true}
}

func (a *Adapter) ResolveChannel(ctx context.Context, channelID string) (platform.Channel, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ch, ok := a.channels[channelID]
	if !ok {
		return platform.Channel{}, &platform.NotFoundError{Kind: "channel", ID: channelID}
	}
	return ch, nil
}

func (a *Adapter) SendMessage(ctx context.Context, channelID string, msg platform.Message) (platform.MessageRef, error) {
	return a.record(channelID, "", msg)
}

func (a *Adapter) SendAs(ctx context.Context, identity platform.SenderIdentity, msg platform.Message) (platform.MessageRef, error) {
	return a.record(identity.ChannelID, identity.Name, msg)
}

func (a *Adapter) record(channelID, identity string, msg platform.Message) (platform.MessageRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ch, ok := a.channels[channelID]
	if !ok {
		return platform.MessageRef{}, &platform.NotFoundError{Kind: "channel", ID: channelID}
	}
	a.nextID++
	ref := platform.MessageRef{
		ID:        fmt.Sprintf("msg-%d", a.nextID),
		ChannelID: channelID,
		GuildID:   ch.GuildID,
	}
	a.messages[channelID+"/"+ref.ID] = true
	a.sent = append(a.sent, SentMessage{ChannelID: channelID, Identity: identity, Msg: msg, Ref: ref})
	return ref, nil
}

func (a *Adapter) EditMessage(ctx context.Context, channelID, messageID string, msg platform.Message) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.messages[channelID+"/"+messageID] {
		return &platform.NotFoundError{Kind: "message", ID: messageID}
	}
	a.edits = append(a.edits, Edit{ChannelID: channelID, MessageID: messageID, Msg: msg})
	return nil
}

func (a *Adapter) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := channelID + "/" + messageID
	if err, ok := a.FailDeletes[key]; ok {
		return err
	}
	if !a.messages[key] {
		return &platform.NotFoundError{Kind: "message", ID: messageID}
	}
	delete(a.messages, key)
	a.deleted = append(a.deleted, key)
	return nil
}

func (a *Adapter) GetOrCreateSenderIdentity(ctx context.Context, channelID, name, reason string) (platform.SenderIdentity, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.channels[channelID]; !ok {
		return platform.SenderIdentity{}, &platform.NotFoundError{Kind: "channel", ID: channelID}
	}
	key := channelID + "/" + name
	if id, ok := a.identities[key]; ok {
		return id, nil
	}
	id := platform.SenderIdentity{ID: "wh-" + key, ChannelID: channelID, Name: name}
	a.identities[key] = id
	return id, nil
}

func (a *Adapter) SetPresence(ctx context.Context, p platform.Presence) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.presences = append(a.presences, p)
	return nil
}

// Sent returns a snapshot of recorded sends.
func (a *Adapter) Sent() []SentMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]SentMessage(nil), a.sent...)
}

// Edits returns a snapshot of recorded edits.
func (a *Adapter) Edits() []Edit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Edit(nil), a.edits...)
}

// Deleted returns a snapshot of "channelID/messageID" keys deleted so far.
func (a *Adapter) Deleted() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.deleted...)
}

// Presences returns a snapshot of recorded presence updates.
func (a *Adapter) Presences() []platform.Presence {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]platform.Presence(nil), a.presences...)
}

// Seed registers an existing message so deletes and edits can target it.
func (a *Adapter) Seed(channelID, messageID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages[channelID+"/"+messageID] = true
}

// Has reports whether a message still exists.
func (a *Adapter) Has(channelID, messageID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.messages[channelID+"/"+messageID]
}
