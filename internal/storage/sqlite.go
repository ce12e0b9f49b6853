package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "github.com/depthbomb/weathergoat-sub000/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

// Open initializes the sqlite store at cfg.Path, creating parent directories
// and applying migrations.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- Alert destinations ----

func (s *sqliteStore) CreateAlertDestination(ctx context.Context, d AlertDestination) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alert_destinations(id, latitude, longitude, zone_id, county_id, guild_id, channel_id, auto_cleanup, ping_on_severe, radar_image_url)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		d.ID, d.Latitude, d.Longitude, d.ZoneID, d.CountyID, d.GuildID, d.ChannelID,
		boolInt(d.AutoCleanup), boolInt(d.PingOnSevere), nullStr(d.RadarImageURL),
	)
	return err
}

func (s *sqliteStore) AlertDestinations(ctx context.Context) ([]AlertDestination, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, latitude, longitude, zone_id, county_id, guild_id, channel_id, auto_cleanup, ping_on_severe, COALESCE(radar_image_url, '')
		 FROM alert_destinations ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AlertDestination
	for rows.Next() {
		var d AlertDestination
		var cleanup, ping int
		if err := rows.Scan(&d.ID, &d.Latitude, &d.Longitude, &d.ZoneID, &d.CountyID, &d.GuildID, &d.ChannelID, &cleanup, &ping, &d.RadarImageURL); err != nil {
			return nil, err
		}
		d.AutoCleanup = cleanup != 0
		d.PingOnSevere = ping != 0
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *sqliteStore) DeleteAlertDestination(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM alert_destinations WHERE id = ?`, id)
	return err
}

func (s *sqliteStore) CountAlertDestinationsByGuild(ctx context.Context, guildID string) (int, error) {
	return s.countByGuild(ctx, "alert_destinations", guildID)
}

func (s *sqliteStore) AlertDestinationExists(ctx context.Context, latitude, longitude, channelID string) (bool, error) {
	return s.existsByCoords(ctx, "alert_destinations", latitude, longitude, channelID)
}

// ---- Forecast destinations ----

func (s *sqliteStore) CreateForecastDestination(ctx context.Context, d ForecastDestination) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO forecast_destinations(id, latitude, longitude, guild_id, channel_id, auto_cleanup, radar_image_url)
		 VALUES(?,?,?,?,?,?,?)`,
		d.ID, d.Latitude, d.Longitude, d.GuildID, d.ChannelID, boolInt(d.AutoCleanup), nullStr(d.RadarImageURL),
	)
	return err
}

func (s *sqliteStore) ForecastDestinations(ctx context.Context) ([]ForecastDestination, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, latitude, longitude, guild_id, channel_id, auto_cleanup, COALESCE(radar_image_url, '')
		 FROM forecast_destinations ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ForecastDestination
	for rows.Next() {
		var d ForecastDestination
		var cleanup int
		if err := rows.Scan(&d.ID, &d.Latitude, &d.Longitude, &d.GuildID, &d.ChannelID, &cleanup, &d.RadarImageURL); err != nil {
			return nil, err
		}
		d.AutoCleanup = cleanup != 0
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *sqliteStore) DeleteForecastDestination(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM forecast_destinations WHERE id = ?`, id)
	return err
}

func (s *sqliteStore) CountForecastDestinationsByGuild(ctx context.Context, guildID string) (int, error) {
	return s.countByGuild(ctx, "forecast_destinations", guildID)
}

func (s *sqliteStore) ForecastDestinationExists(ctx context.Context, latitude, longitude, channelID string) (bool, error) {
	return s.existsByCoords(ctx, "forecast_destinations", latitude, longitude, channelID)
}

// ---- Radar channels ----

func (s *sqliteStore) CreateRadarChannel(ctx context.Context, c RadarChannel) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO radar_channels(id, latitude, longitude, guild_id, channel_id, message_id, location, radar_station, radar_image_url)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		c.ID, c.Latitude, c.Longitude, c.GuildID, c.ChannelID, c.MessageID, c.Location, c.RadarStation, c.RadarImageURL,
	)
	return err
}

func (s *sqliteStore) RadarChannels(ctx context.Context) ([]RadarChannel, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, latitude, longitude, guild_id, channel_id, message_id, location, radar_station, radar_image_url
		 FROM radar_channels ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RadarChannel
	for rows.Next() {
		var c RadarChannel
		if err := rows.Scan(&c.ID, &c.Latitude, &c.Longitude, &c.GuildID, &c.ChannelID, &c.MessageID, &c.Location, &c.RadarStation, &c.RadarImageURL); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *sqliteStore) DeleteRadarChannel(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM radar_channels WHERE id = ?`, id)
	return err
}

func (s *sqliteStore) CountRadarChannelsByGuild(ctx context.Context, guildID string) (int, error) {
	return s.countByGuild(ctx, "radar_channels", guildID)
}

func (s *sqliteStore) RadarChannelExists(ctx context.Context, latitude, longitude, channelID string) (bool, error) {
	return s.existsByCoords(ctx, "radar_channels", latitude, longitude, channelID)
}

// ---- Alert dedup ledger ----

func (s *sqliteStore) HasSentAlert(ctx context.Context, alertID, guildID, channelID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM sent_alerts WHERE alert_id = ? AND guild_id = ? AND channel_id = ?`,
		alertID, guildID, channelID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *sqliteStore) RecordSentAlert(ctx context.Context, a SentAlert) error {
	if a.SentAt.IsZero() {
		a.SentAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sent_alerts(id, alert_id, guild_id, channel_id, message_id, payload, sent_at)
		 VALUES(?,?,?,?,?,?,?)`,
		a.ID, a.AlertID, a.GuildID, a.ChannelID, a.MessageID, nullStr(a.Payload), a.SentAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) FindSentAlert(ctx context.Context, alertID, guildID, channelID string) (SentAlert, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, alert_id, guild_id, channel_id, message_id, COALESCE(payload, ''), sent_at
		 FROM sent_alerts WHERE alert_id = ? AND guild_id = ? AND channel_id = ?`,
		alertID, guildID, channelID)
	return scanSentAlert(row)
}

func (s *sqliteStore) SentAlertsByAlertID(ctx context.Context, alertID string) ([]SentAlert, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, alert_id, guild_id, channel_id, message_id, COALESCE(payload, ''), sent_at
		 FROM sent_alerts WHERE alert_id = ?`, alertID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SentAlert
	for rows.Next() {
		a, err := scanSentAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ---- Ephemeral message ledger ----

func (s *sqliteStore) CreateVolatileMessage(ctx context.Context, m VolatileMessage) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO volatile_messages(id, guild_id, channel_id, message_id, expires_at)
		 VALUES(?,?,?,?,?)`,
		m.ID, m.GuildID, m.ChannelID, m.MessageID, m.ExpiresAt.UnixMilli(),
	)
	return err
}

func (s *sqliteStore) DueVolatileMessages(ctx context.Context, now time.Time) ([]VolatileMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, guild_id, channel_id, message_id, expires_at
		 FROM volatile_messages WHERE expires_at <= ? ORDER BY expires_at`, now.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []VolatileMessage
	for rows.Next() {
		var m VolatileMessage
		var ms int64
		if err := rows.Scan(&m.ID, &m.GuildID, &m.ChannelID, &m.MessageID, &ms); err != nil {
			return nil, err
		}
		m.ExpiresAt = time.UnixMilli(ms)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *sqliteStore) DeleteVolatileMessage(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM volatile_messages WHERE id = ?`, id)
	return err
}

// ---- helpers ----

// countByGuild and existsByCoords interpolate table names; all call sites use
// compile-time constants, never user input.

func (s *sqliteStore) countByGuild(ctx context.Context, table, guildID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE guild_id = ?`, table), guildID).Scan(&n)
	return n, err
}

func (s *sqliteStore) existsByCoords(ctx context.Context, table, latitude, longitude, channelID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT 1 FROM %s WHERE latitude = ? AND longitude = ? AND channel_id = ?`, table),
		latitude, longitude, channelID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSentAlert(row rowScanner) (SentAlert, error) {
	var a SentAlert
	var sentAt string
	err := row.Scan(&a.ID, &a.AlertID, &a.GuildID, &a.ChannelID, &a.MessageID, &a.Payload, &sentAt)
	if errors.Is(err, sql.ErrNoRows) {
		return SentAlert{}, ErrNotFound
	}
	if err != nil {
		return SentAlert{}, err
	}
	if t, perr := time.Parse(time.RFC3339Nano, sentAt); perr == nil {
		a.SentAt = t
	}
	return a, nil
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
