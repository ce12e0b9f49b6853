package weather

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Alert statuses and message types as reported by the NWS CAP feed.
const (
	StatusActual   = "Actual"
	StatusExercise = "Exercise"
	StatusSystem   = "System"
	StatusTest     = "Test"
	StatusDraft    = "Draft"

	MessageTypeAlert  = "Alert"
	MessageTypeUpdate = "Update"
	MessageTypeCancel = "Cancel"

	SeverityExtreme  = "Extreme"
	SeveritySevere   = "Severe"
	SeverityModerate = "Moderate"
	SeverityMinor    = "Minor"
	SeverityUnknown  = "Unknown"
)

const alertsSearchBaseURL = "https://alerts.weather.gov/search"

// AlertReference points at a prior alert this one updates or supersedes.
type AlertReference struct {
	AlertID    string
	SenderName string
	Sent       time.Time
}

type Alert struct {
	ID            string
	Event         string
	Headline      string
	Description   string
	Instruction   string
	AreaDesc      string
	AffectedZones []string
	SenderName    string
	Status        string
	MessageType   string
	Severity      string
	Certainty     string
	Urgency       string
	Sent          time.Time
	Effective     time.Time
	Expires       time.Time
	Ends          time.Time
	References    []AlertReference
	Parameters    map[string][]string
}

// IsNotTest reports whether the alert is actionable. Exercise/System/Test/
// Draft statuses exist for drills and must never be delivered.
func (a *Alert) IsNotTest() bool { return a.Status == StatusActual }

func (a *Alert) IsUpdate() bool { return a.MessageType == MessageTypeUpdate }

// IsSevere reports whether the alert qualifies for destination-level
// severe-weather mentions.
func (a *Alert) IsSevere() bool {
	return a.Severity == SeveritySevere || a.Severity == SeverityExtreme
}

// SupersededReferences returns the references made obsolete by this alert.
// An Update or Cancel replaces the alerts it references, so any messages
// previously sent for them should be cleaned up immediately.
func (a *Alert) SupersededReferences() []AlertReference {
	if a.MessageType != MessageTypeUpdate && a.MessageType != MessageTypeCancel {
		return nil
	}
	return a.References
}

// URL returns the public search page for the alert.
func (a *Alert) URL() string {
	return alertsSearchBaseURL + "?id=" + url.QueryEscape(a.ID)
}

type ForecastPeriod struct {
	Name             string
	StartTime        time.Time
	EndTime          time.Time
	DetailedForecast string
	ShortForecast    string
	Icon             string
	Temperature      int
	TemperatureUnit  string
	IsDaytime        bool
}

// LocationInfo is the resolved metadata for a coordinate pair. It changes so
// rarely that callers cache it aggressively.
type LocationInfo struct {
	Latitude      string
	Longitude     string
	Location      string // human-readable "City, ST"
	ZoneID        string
	CountyID      string
	ForecastURL   string
	RadarStation  string
	RadarImageURL string
}

// Provider is the weather-data surface consumed by the reporting jobs.
type Provider interface {
	// ActiveAlerts returns the currently active alerts for a forecast zone or
	// county (NWS zone ids like "TXZ211" or "TXC113").
	ActiveAlerts(ctx context.Context, zoneID string) ([]Alert, error)

	// Forecast returns the latest forecast period for the coordinates.
	Forecast(ctx context.Context, latitude, longitude string) (ForecastPeriod, error)

	// LocationInfo resolves coordinates to zone/county/radar metadata.
	LocationInfo(ctx context.Context, latitude, longitude string) (LocationInfo, error)
}

// ForecastURLFetcher is implemented by providers that can fetch a forecast
// straight from an already-resolved forecast URL, skipping coordinate
// resolution.
type ForecastURLFetcher interface {
	ForecastAtURL(ctx context.Context, forecastURL string) (ForecastPeriod, error)
}

// HTTPError is returned for non-2xx upstream responses so call sites can
// branch on the status code.
type HTTPError struct {
	Status int
	URL    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("weather: upstream returned %d for %s", e.Status, e.URL)
}

// IsStatus reports whether err is an HTTPError with the given status code.
func IsStatus(err error, status int) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.Status == status
}
