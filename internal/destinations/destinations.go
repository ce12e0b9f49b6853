// Package destinations creates and removes reporting destinations, enforcing
// coordinate validation, per-guild limits, and duplicate rejection.
package destinations

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/depthbomb/weathergoat-sub000/internal/platform"
	"github.com/depthbomb/weathergoat-sub000/internal/storage"
	"github.com/depthbomb/weathergoat-sub000/internal/weather"
	"github.com/depthbomb/weathergoat-sub000/pkg/logx"
)

var (
	// ErrExists means the channel already reports for these coordinates.
	ErrExists = errors.New("destinations: already exists")
	// ErrLimitReached means the guild is at its destination quota.
	ErrLimitReached = errors.New("destinations: guild limit reached")
	// ErrInvalidCoordinates means latitude/longitude failed validation.
	ErrInvalidCoordinates = errors.New("destinations: invalid coordinates")
	// ErrChannelNotUsable means the channel is missing or cannot receive text.
	ErrChannelNotUsable = errors.New("destinations: channel not usable")
)

// Limits caps how many destinations of each kind a guild may hold.
type Limits struct {
	AlertsPerGuild    int
	ForecastsPerGuild int
	RadarsPerGuild    int
}

type coords struct {
	Latitude  string `validate:"required,latitude"`
	Longitude string `validate:"required,longitude"`
}

// Service is the destination lifecycle manager.
type Service struct {
	store    storage.Store
	provider weather.Provider
	adapter  platform.Adapter
	validate *validator.Validate
	limits   Limits
	log      logx.Logger
}

func New(store storage.Store, provider weather.Provider, adapter platform.Adapter, limits Limits, log logx.Logger) *Service {
	return &Service{
		store:    store,
		provider: provider,
		adapter:  adapter,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		limits:   limits,
		log:      log,
	}
}

// AlertDestinationInput describes a new alert destination.
type AlertDestinationInput struct {
	Latitude     string
	Longitude    string
	ChannelID    string
	AutoCleanup  bool
	PingOnSevere bool
}

// AddAlertDestination validates and persists a new alert destination,
// resolving the coordinates to their forecast zone and county up front.
func (s *Service) AddAlertDestination(ctx context.Context, in AlertDestinationInput) (storage.AlertDestination, error) {
	ch, err := s.usableChannel(ctx, in.ChannelID)
	if err != nil {
		return storage.AlertDestination{}, err
	}
	if err := s.checkCoords(in.Latitude, in.Longitude); err != nil {
		return storage.AlertDestination{}, err
	}

	exists, err := s.store.AlertDestinationExists(ctx, in.Latitude, in.Longitude, in.ChannelID)
	if err != nil {
		return storage.AlertDestination{}, err
	}
	if exists {
		return storage.AlertDestination{}, ErrExists
	}
	n, err := s.store.CountAlertDestinationsByGuild(ctx, ch.GuildID)
	if err != nil {
		return storage.AlertDestination{}, err
	}
	if s.limits.AlertsPerGuild > 0 && n >= s.limits.AlertsPerGuild {
		return storage.AlertDestination{}, ErrLimitReached
	}

	info, err := s.provider.LocationInfo(ctx, in.Latitude, in.Longitude)
	if err != nil {
		return storage.AlertDestination{}, fmt.Errorf("resolving location: %w", err)
	}

	d := storage.AlertDestination{
		ID:            uuid.Must(uuid.NewV7()).String(),
		Latitude:      in.Latitude,
		Longitude:     in.Longitude,
		ZoneID:        info.ZoneID,
		CountyID:      info.CountyID,
		GuildID:       ch.GuildID,
		ChannelID:     in.ChannelID,
		AutoCleanup:   in.AutoCleanup,
		PingOnSevere:  in.PingOnSevere,
		RadarImageURL: info.RadarImageURL,
	}
	if err := s.store.CreateAlertDestination(ctx, d); err != nil {
		return storage.AlertDestination{}, err
	}
	s.log.Info("alert destination created",
		logx.String("id", d.ID),
		logx.String("zone_id", d.ZoneID),
		logx.String("channel_id", d.ChannelID))
	return d, nil
}

// ForecastDestinationInput describes a new forecast destination.
type ForecastDestinationInput struct {
	Latitude    string
	Longitude   string
	ChannelID   string
	AutoCleanup bool
}

func (s *Service) AddForecastDestination(ctx context.Context, in ForecastDestinationInput) (storage.ForecastDestination, error) {
	ch, err := s.usableChannel(ctx, in.ChannelID)
	if err != nil {
		return storage.ForecastDestination{}, err
	}
	if err := s.checkCoords(in.Latitude, in.Longitude); err != nil {
		return storage.ForecastDestination{}, err
	}

	exists, err := s.store.ForecastDestinationExists(ctx, in.Latitude, in.Longitude, in.ChannelID)
	if err != nil {
		return storage.ForecastDestination{}, err
	}
	if exists {
		return storage.ForecastDestination{}, ErrExists
	}
	n, err := s.store.CountForecastDestinationsByGuild(ctx, ch.GuildID)
	if err != nil {
		return storage.ForecastDestination{}, err
	}
	if s.limits.ForecastsPerGuild > 0 && n >= s.limits.ForecastsPerGuild {
		return storage.ForecastDestination{}, ErrLimitReached
	}

	info, err := s.provider.LocationInfo(ctx, in.Latitude, in.Longitude)
	if err != nil {
		return storage.ForecastDestination{}, fmt.Errorf("resolving location: %w", err)
	}

	d := storage.ForecastDestination{
		ID:            uuid.Must(uuid.NewV7()).String(),
		Latitude:      in.Latitude,
		Longitude:     in.Longitude,
		GuildID:       ch.GuildID,
		ChannelID:     in.ChannelID,
		AutoCleanup:   in.AutoCleanup,
		RadarImageURL: info.RadarImageURL,
	}
	if err := s.store.CreateForecastDestination(ctx, d); err != nil {
		return storage.ForecastDestination{}, err
	}
	s.log.Info("forecast destination created",
		logx.String("id", d.ID),
		logx.String("channel_id", d.ChannelID))
	return d, nil
}

// RadarChannelInput describes a new radar channel.
type RadarChannelInput struct {
	Latitude  string
	Longitude string
	ChannelID string
}

// AddRadarChannel posts the initial radar message and records it so the radar
// job can keep editing it in place.
func (s *Service) AddRadarChannel(ctx context.Context, in RadarChannelInput) (storage.RadarChannel, error) {
	ch, err := s.usableChannel(ctx, in.ChannelID)
	if err != nil {
		return storage.RadarChannel{}, err
	}
	if err := s.checkCoords(in.Latitude, in.Longitude); err != nil {
		return storage.RadarChannel{}, err
	}

	exists, err := s.store.RadarChannelExists(ctx, in.Latitude, in.Longitude, in.ChannelID)
	if err != nil {
		return storage.RadarChannel{}, err
	}
	if exists {
		return storage.RadarChannel{}, ErrExists
	}
	n, err := s.store.CountRadarChannelsByGuild(ctx, ch.GuildID)
	if err != nil {
		return storage.RadarChannel{}, err
	}
	if s.limits.RadarsPerGuild > 0 && n >= s.limits.RadarsPerGuild {
		return storage.RadarChannel{}, ErrLimitReached
	}

	info, err := s.provider.LocationInfo(ctx, in.Latitude, in.Longitude)
	if err != nil {
		return storage.RadarChannel{}, fmt.Errorf("resolving location: %w", err)
	}

	ref, err := s.adapter.SendMessage(ctx, in.ChannelID, platform.Message{
		Embed:                 radarEmbed(info),
		SuppressNotifications: true,
	})
	if err != nil {
		return storage.RadarChannel{}, fmt.Errorf("posting radar message: %w", err)
	}

	c := storage.RadarChannel{
		ID:            uuid.Must(uuid.NewV7()).String(),
		Latitude:      in.Latitude,
		Longitude:     in.Longitude,
		GuildID:       ch.GuildID,
		ChannelID:     in.ChannelID,
		MessageID:     ref.ID,
		Location:      info.Location,
		RadarStation:  info.RadarStation,
		RadarImageURL: info.RadarImageURL,
	}
	if err := s.store.CreateRadarChannel(ctx, c); err != nil {
		return storage.RadarChannel{}, err
	}
	s.log.Info("radar channel created",
		logx.String("id", c.ID),
		logx.String("station", c.RadarStation),
		logx.String("channel_id", c.ChannelID))
	return c, nil
}

func (s *Service) RemoveAlertDestination(ctx context.Context, id string) error {
	return s.store.DeleteAlertDestination(ctx, id)
}

func (s *Service) RemoveForecastDestination(ctx context.Context, id string) error {
	return s.store.DeleteForecastDestination(ctx, id)
}

func (s *Service) RemoveRadarChannel(ctx context.Context, id string) error {
	return s.store.DeleteRadarChannel(ctx, id)
}

func (s *Service) checkCoords(latitude, longitude string) error {
	if err := s.validate.Struct(coords{Latitude: latitude, Longitude: longitude}); err != nil {
		return fmt.Errorf("%w: %s,%s", ErrInvalidCoordinates, latitude, longitude)
	}
	return nil
}

func (s *Service) usableChannel(ctx context.Context, channelID string) (platform.Channel, error) {
	ch, err := s.adapter.ResolveChannel(ctx, channelID)
	if err != nil {
		if platform.IsNotFound(err) {
			return platform.Channel{}, fmt.Errorf("%w: %s", ErrChannelNotUsable, channelID)
		}
		return platform.Channel{}, err
	}
	if !ch.Text {
		return platform.Channel{}, fmt.Errorf("%w: %s is not a text channel", ErrChannelNotUsable, channelID)
	}
	return ch, nil
}

func radarEmbed(info weather.LocationInfo) *platform.Embed {
	return &platform.Embed{
		Title:       "Radar for " + info.Location,
		Description: "This image updates automatically.",
		Color:       0x5876aa,
		ImageURL:    info.RadarImageURL,
	}
}
