// Package discord implements platform.Adapter over the Discord REST API.
//
// Only the surface the reporting engine needs is covered. Gateway concerns
// (events, slash commands, sharding) are out of scope; presence updates need
// a gateway session and are therefore best-effort no-ops here.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/depthbomb/weathergoat-sub000/internal/platform"
	"github.com/depthbomb/weathergoat-sub000/pkg/logx"
)

const defaultBaseURL = "https://discord.com/api/v10"

const (
	channelTypeGuildText         = 0
	channelTypeGuildAnnouncement = 5

	flagSuppressNotifications = 1 << 12
)

type Config struct {
	Token   string
	BaseURL string
	Timeout time.Duration
}

type Adapter struct {
	token   string
	baseURL string
	http    *http.Client
	// Coarse global pacing under Discord's 50 req/s bucket; per-route bursts
	// are already smoothed by the action queue.
	limiter *rate.Limiter
	log     logx.Logger
}

var _ platform.Adapter = (*Adapter)(nil)

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("discord: token is required")
	}
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Adapter{
		token:   cfg.Token,
		baseURL: base,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(40), 40),
		log:     log,
	}, nil
}

// ---- wire models ----

type wireChannel struct {
	ID      string `json:"id"`
	GuildID string `json:"guild_id"`
	Name    string `json:"name"`
	Type    int    `json:"type"`
}

type wireMessage struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
}

type wireWebhook struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	Name      string `json:"name"`
	Token     string `json:"token"`
}

type wireEmbed struct {
	Title       string           `json:"title,omitempty"`
	Description string           `json:"description,omitempty"`
	URL         string           `json:"url,omitempty"`
	Color       int              `json:"color,omitempty"`
	Timestamp   string           `json:"timestamp,omitempty"`
	Author      *wireNamed       `json:"author,omitempty"`
	Footer      *wireFooter      `json:"footer,omitempty"`
	Image       *wireMedia       `json:"image,omitempty"`
	Thumbnail   *wireMedia       `json:"thumbnail,omitempty"`
	Fields      []wireEmbedField `json:"fields,omitempty"`
}

type wireNamed struct {
	Name    string `json:"name,omitempty"`
	IconURL string `json:"icon_url,omitempty"`
}

type wireFooter struct {
	Text string `json:"text,omitempty"`
}

type wireMedia struct {
	URL string `json:"url"`
}

type wireEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type messagePayload struct {
	Content string      `json:"content,omitempty"`
	Embeds  []wireEmbed `json:"embeds,omitempty"`
	Flags   int         `json:"flags,omitempty"`
}

func toPayload(msg platform.Message) messagePayload {
	p := messagePayload{Content: msg.Content}
	if msg.SuppressNotifications {
		p.Flags |= flagSuppressNotifications
	}
	if e := msg.Embed; e != nil {
		we := wireEmbed{
			Title:       e.Title,
			Description: e.Description,
			URL:         e.URL,
			Color:       e.Color,
		}
		if !e.Timestamp.IsZero() {
			we.Timestamp = e.Timestamp.Format(time.RFC3339)
		}
		if e.AuthorName != "" {
			we.Author = &wireNamed{Name: e.AuthorName, IconURL: e.AuthorIconURL}
		}
		if e.FooterText != "" {
			we.Footer = &wireFooter{Text: e.FooterText}
		}
		if e.ImageURL != "" {
			we.Image = &wireMedia{URL: e.ImageURL}
		}
		if e.ThumbnailURL != "" {
			we.Thumbnail = &wireMedia{URL: e.ThumbnailURL}
		}
		for _, f := range e.Fields {
			we.Fields = append(we.Fields, wireEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
		}
		p.Embeds = []wireEmbed{we}
	}
	return p
}

// ---- Adapter implementation ----

func (a *Adapter) ResolveChannel(ctx context.Context, channelID string) (platform.Channel, error) {
	var ch wireChannel
	err := a.do(ctx, http.MethodGet, "/channels/"+channelID, nil, &ch,
		&platform.NotFoundError{Kind: "channel", ID: channelID})
	if err != nil {
		return platform.Channel{}, err
	}
	return platform.Channel{
		ID:      ch.ID,
		GuildID: ch.GuildID,
		Name:    ch.Name,
		Text:    ch.Type == channelTypeGuildText || ch.Type == channelTypeGuildAnnouncement,
	}, nil
}

func (a *Adapter) SendMessage(ctx context.Context, channelID string, msg platform.Message) (platform.MessageRef, error) {
	var m wireMessage
	err := a.do(ctx, http.MethodPost, "/channels/"+channelID+"/messages", toPayload(msg), &m,
		&platform.NotFoundError{Kind: "channel", ID: channelID})
	if err != nil {
		return platform.MessageRef{}, err
	}
	return platform.MessageRef{ID: m.ID, ChannelID: m.ChannelID}, nil
}

func (a *Adapter) SendAs(ctx context.Context, identity platform.SenderIdentity, msg platform.Message) (platform.MessageRef, error) {
	var m wireMessage
	// identity.ID carries "webhookID/webhookToken"; ?wait=true makes Discord
	// return the created message instead of 204.
	err := a.do(ctx, http.MethodPost, "/webhooks/"+identity.ID+"?wait=true", toPayload(msg), &m,
		&platform.NotFoundError{Kind: "webhook", ID: identity.ID})
	if err != nil {
		return platform.MessageRef{}, err
	}
	return platform.MessageRef{ID: m.ID, ChannelID: m.ChannelID}, nil
}

func (a *Adapter) EditMessage(ctx context.Context, channelID, messageID string, msg platform.Message) error {
	return a.do(ctx, http.MethodPatch, "/channels/"+channelID+"/messages/"+messageID, toPayload(msg), nil,
		&platform.NotFoundError{Kind: "message", ID: messageID})
}

func (a *Adapter) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return a.do(ctx, http.MethodDelete, "/channels/"+channelID+"/messages/"+messageID, nil, nil,
		&platform.NotFoundError{Kind: "message", ID: messageID})
}

func (a *Adapter) GetOrCreateSenderIdentity(ctx context.Context, channelID, name, reason string) (platform.SenderIdentity, error) {
	var hooks []wireWebhook
	err := a.do(ctx, http.MethodGet, "/channels/"+channelID+"/webhooks", nil, &hooks,
		&platform.NotFoundError{Kind: "channel", ID: channelID})
	if err != nil {
		return platform.SenderIdentity{}, err
	}
	for _, h := range hooks {
		if h.Name == name && h.Token != "" {
			return platform.SenderIdentity{ID: h.ID + "/" + h.Token, ChannelID: channelID, Name: name}, nil
		}
	}

	var created wireWebhook
	err = a.doWithReason(ctx, http.MethodPost, "/channels/"+channelID+"/webhooks",
		map[string]string{"name": name}, &created, reason,
		&platform.NotFoundError{Kind: "channel", ID: channelID})
	if err != nil {
		return platform.SenderIdentity{}, err
	}
	return platform.SenderIdentity{ID: created.ID + "/" + created.Token, ChannelID: channelID, Name: name}, nil
}

func (a *Adapter) SetPresence(ctx context.Context, p platform.Presence) error {
	// Presence updates ride the gateway connection, which this REST adapter
	// does not hold. Log at trace so the status job stays observable.
	a.log.Trace("presence update skipped (no gateway session)",
		logx.String("status", p.Status), logx.String("activity", p.Activity))
	return nil
}

func (a *Adapter) do(ctx context.Context, method, path string, body, dst any, notFound error) error {
	return a.doWithReason(ctx, method, path, body, dst, "", notFound)
}

func (a *Adapter) doWithReason(ctx context.Context, method, path string, body, dst any, reason string, notFound error) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}

	var buf *bytes.Buffer
	if body != nil {
		buf = &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return err
		}
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bot "+a.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if reason != "" {
		req.Header.Set("X-Audit-Log-Reason", reason)
	}

	res, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusNotFound:
		return notFound
	case res.StatusCode < 200 || res.StatusCode >= 300:
		return fmt.Errorf("discord: %s %s returned %d", method, path, res.StatusCode)
	}

	if dst != nil && res.StatusCode != http.StatusNoContent {
		return json.NewDecoder(res.Body).Decode(dst)
	}
	return nil
}
