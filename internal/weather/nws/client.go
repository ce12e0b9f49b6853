// Package nws implements weather.Provider against the National Weather
// Service API (api.weather.gov).
package nws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/depthbomb/weathergoat-sub000/internal/weather"
)

const (
	defaultBaseURL = "https://api.weather.gov"
	// NWS asks for a contact in the User-Agent so they can reach abusive
	// clients. https://www.weather.gov/documentation/services-web-api
	defaultUserAgent = "weathergoat (github.com/depthbomb/weathergoat-sub000)"
)

type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
	circuit   *gobreaker.CircuitBreaker
}

var (
	_ weather.Provider           = (*Client)(nil)
	_ weather.ForecastURLFetcher = (*Client)(nil)
)

func New(cfg Config) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	// No retry loop here: reporting jobs skip a failed tick and the next
	// scheduled tick retries naturally. The breaker just keeps a flapping
	// upstream from eating every tick's budget.
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "nws",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &Client{
		baseURL:   base,
		userAgent: ua,
		http:      &http.Client{Timeout: timeout},
		circuit:   cb,
	}
}

// ---- wire models ----

type alertProperties struct {
	ID          string   `json:"id"`
	AreaDesc    string   `json:"areaDesc"`
	Affected    []string `json:"affectedZones"`
	References  []struct {
		Identifier string    `json:"identifier"`
		Sender     string    `json:"sender"`
		Sent       time.Time `json:"sent"`
	} `json:"references"`
	Sent        time.Time           `json:"sent"`
	Effective   time.Time           `json:"effective"`
	Expires     time.Time           `json:"expires"`
	Ends        *time.Time          `json:"ends"`
	Status      string              `json:"status"`
	MessageType string              `json:"messageType"`
	Severity    string              `json:"severity"`
	Certainty   string              `json:"certainty"`
	Urgency     string              `json:"urgency"`
	Event       string              `json:"event"`
	SenderName  string              `json:"senderName"`
	Headline    string              `json:"headline"`
	Description string              `json:"description"`
	Instruction string              `json:"instruction"`
	Parameters  map[string][]string `json:"parameters"`
}

type alertCollection struct {
	Features []struct {
		Properties alertProperties `json:"properties"`
	} `json:"features"`
}

type pointResponse struct {
	Properties struct {
		Forecast         string `json:"forecast"`
		ForecastZone     string `json:"forecastZone"`
		County           string `json:"county"`
		RadarStation     string `json:"radarStation"`
		RelativeLocation struct {
			Properties struct {
				City  string `json:"city"`
				State string `json:"state"`
			} `json:"properties"`
		} `json:"relativeLocation"`
	} `json:"properties"`
}

type forecastResponse struct {
	Properties struct {
		Periods []struct {
			Name             string    `json:"name"`
			StartTime        time.Time `json:"startTime"`
			EndTime          time.Time `json:"endTime"`
			IsDaytime        bool      `json:"isDaytime"`
			Temperature      int       `json:"temperature"`
			TemperatureUnit  string    `json:"temperatureUnit"`
			Icon             string    `json:"icon"`
			ShortForecast    string    `json:"shortForecast"`
			DetailedForecast string    `json:"detailedForecast"`
		} `json:"periods"`
	} `json:"properties"`
}

// ---- Provider implementation ----

func (c *Client) ActiveAlerts(ctx context.Context, zoneID string) ([]weather.Alert, error) {
	q := url.Values{}
	q.Set("zone[]", zoneID)

	var coll alertCollection
	if err := c.getJSON(ctx, c.baseURL+"/alerts/active?"+q.Encode(), &coll); err != nil {
		return nil, err
	}

	alerts := make([]weather.Alert, 0, len(coll.Features))
	for _, f := range coll.Features {
		alerts = append(alerts, toAlert(f.Properties))
	}
	return alerts, nil
}

func (c *Client) LocationInfo(ctx context.Context, latitude, longitude string) (weather.LocationInfo, error) {
	var pt pointResponse
	u := fmt.Sprintf("%s/points/%s,%s", c.baseURL, latitude, longitude)
	if err := c.getJSON(ctx, u, &pt); err != nil {
		return weather.LocationInfo{}, err
	}

	p := pt.Properties
	rel := p.RelativeLocation.Properties
	return weather.LocationInfo{
		Latitude:      latitude,
		Longitude:     longitude,
		Location:      rel.City + ", " + rel.State,
		ZoneID:        lastURLSegment(p.ForecastZone),
		CountyID:      lastURLSegment(p.County),
		ForecastURL:   p.Forecast,
		RadarStation:  p.RadarStation,
		RadarImageURL: fmt.Sprintf("https://radar.weather.gov/ridge/standard/%s_loop.gif", p.RadarStation),
	}, nil
}

func (c *Client) Forecast(ctx context.Context, latitude, longitude string) (weather.ForecastPeriod, error) {
	info, err := c.LocationInfo(ctx, latitude, longitude)
	if err != nil {
		return weather.ForecastPeriod{}, err
	}
	return c.ForecastAtURL(ctx, info.ForecastURL)
}

// ForecastAtURL fetches the latest forecast period from a gridpoint forecast
// URL previously resolved through LocationInfo.
func (c *Client) ForecastAtURL(ctx context.Context, forecastURL string) (weather.ForecastPeriod, error) {
	var fc forecastResponse
	if err := c.getJSON(ctx, forecastURL, &fc); err != nil {
		return weather.ForecastPeriod{}, err
	}
	if len(fc.Properties.Periods) == 0 {
		return weather.ForecastPeriod{}, fmt.Errorf("nws: forecast at %s has no periods", forecastURL)
	}

	p := fc.Properties.Periods[0]
	return weather.ForecastPeriod{
		Name:             p.Name,
		StartTime:        p.StartTime,
		EndTime:          p.EndTime,
		DetailedForecast: p.DetailedForecast,
		ShortForecast:    p.ShortForecast,
		Icon:             p.Icon,
		Temperature:      p.Temperature,
		TemperatureUnit:  p.TemperatureUnit,
		IsDaytime:        p.IsDaytime,
	}, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, dst any) error {
	body, err := c.circuit.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/geo+json")

		res, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer res.Body.Close()

		if res.StatusCode < 200 || res.StatusCode >= 300 {
			return nil, &weather.HTTPError{Status: res.StatusCode, URL: rawURL}
		}

		var decoded json.RawMessage
		if err := json.NewDecoder(res.Body).Decode(&decoded); err != nil {
			return nil, fmt.Errorf("nws: decoding %s: %w", rawURL, err)
		}
		return decoded, nil
	})
	if err != nil {
		return err
	}
	return json.Unmarshal(body.(json.RawMessage), dst)
}

func toAlert(p alertProperties) weather.Alert {
	a := weather.Alert{
		ID:            p.ID,
		Event:         p.Event,
		Headline:      p.Headline,
		Description:   p.Description,
		Instruction:   p.Instruction,
		AreaDesc:      p.AreaDesc,
		AffectedZones: p.Affected,
		SenderName:    p.SenderName,
		Status:        p.Status,
		MessageType:   p.MessageType,
		Severity:      p.Severity,
		Certainty:     p.Certainty,
		Urgency:       p.Urgency,
		Sent:          p.Sent,
		Effective:     p.Effective,
		Expires:       p.Expires,
		Parameters:    p.Parameters,
	}
	if p.Ends != nil {
		a.Ends = *p.Ends
	}
	for _, r := range p.References {
		a.References = append(a.References, weather.AlertReference{
			AlertID:    r.Identifier,
			SenderName: r.Sender,
			Sent:       r.Sent,
		})
	}
	return a
}

func lastURLSegment(u string) string {
	if u == "" {
		return ""
	}
	i := strings.LastIndex(u, "/")
	return u[i+1:]
}
