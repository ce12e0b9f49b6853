package nws

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depthbomb/weathergoat-sub000/internal/weather"
)

const activeAlertsBody = `{
  "features": [
    {
      "properties": {
        "id": "urn:oid:2.49.0.1.840.0.abc",
        "areaDesc": "Dallas, TX",
        "affectedZones": ["https://api.weather.gov/zones/forecast/TXZ211"],
        "references": [
          {
            "identifier": "urn:oid:2.49.0.1.840.0.old",
            "sender": "w-nws.webmaster@noaa.gov",
            "sent": "2026-08-28T10:00:00-05:00"
          }
        ],
        "sent": "2026-08-29T10:00:00-05:00",
        "effective": "2026-08-29T10:00:00-05:00",
        "expires": "2026-08-29T16:00:00-05:00",
        "ends": "2026-08-29T16:00:00-05:00",
        "status": "Actual",
        "messageType": "Update",
        "severity": "Severe",
        "certainty": "Likely",
        "urgency": "Expected",
        "event": "Severe Thunderstorm Warning",
        "senderName": "NWS Fort Worth TX",
        "headline": "Severe Thunderstorm Warning issued",
        "description": "At 10:00 AM, a severe thunderstorm was located near Dallas.",
        "instruction": "Move to an interior room.",
        "parameters": {"NWSheadline": ["SEVERE THUNDERSTORM WARNING"]}
      }
    }
  ]
}`

const pointBody = `{
  "properties": {
    "forecast": "%s/gridpoints/FWD/80,109/forecast",
    "forecastZone": "https://api.weather.gov/zones/forecast/TXZ211",
    "county": "https://api.weather.gov/zones/county/TXC113",
    "radarStation": "KFWS",
    "relativeLocation": {
      "properties": {"city": "Dallas", "state": "TX"}
    }
  }
}`

const forecastBody = `{
  "properties": {
    "periods": [
      {
        "name": "This Afternoon",
        "startTime": "2026-08-29T12:00:00-05:00",
        "endTime": "2026-08-29T18:00:00-05:00",
        "isDaytime": true,
        "temperature": 101,
        "temperatureUnit": "F",
        "icon": "https://api.weather.gov/icons/land/day/hot?size=medium",
        "shortForecast": "Sunny and hot",
        "detailedForecast": "Sunny, with a high near 101."
      },
      {
        "name": "Tonight",
        "isDaytime": false,
        "temperature": 78,
        "temperatureUnit": "F",
        "shortForecast": "Mostly clear",
        "detailedForecast": "Mostly clear, with a low around 78."
      }
    ]
  }
}`

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/alerts/active", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("zone[]"); got != "TXZ211" {
			http.Error(w, "unexpected zone "+got, http.StatusBadRequest)
			return
		}
		w.Write([]byte(activeAlertsBody))
	})
	mux.HandleFunc("/points/32.7767,-96.7970", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(fmt.Sprintf(pointBody, srv.URL)))
	})
	mux.HandleFunc("/gridpoints/FWD/80,109/forecast", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(forecastBody))
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestActiveAlerts(t *testing.T) {
	srv := newTestServer(t)
	c := New(Config{BaseURL: srv.URL})

	alerts, err := c.ActiveAlerts(context.Background(), "TXZ211")
	require.NoError(t, err)
	require.Len(t, alerts, 1)

	a := alerts[0]
	assert.Equal(t, "urn:oid:2.49.0.1.840.0.abc", a.ID)
	assert.Equal(t, "Severe Thunderstorm Warning", a.Event)
	assert.Equal(t, weather.StatusActual, a.Status)
	assert.Equal(t, weather.MessageTypeUpdate, a.MessageType)
	assert.True(t, a.IsSevere())
	assert.True(t, a.IsNotTest())
	require.Len(t, a.References, 1)
	assert.Equal(t, "urn:oid:2.49.0.1.840.0.old", a.References[0].AlertID)
	assert.Len(t, a.SupersededReferences(), 1)
	assert.False(t, a.Expires.IsZero())
}

func TestLocationInfo(t *testing.T) {
	srv := newTestServer(t)
	c := New(Config{BaseURL: srv.URL})

	info, err := c.LocationInfo(context.Background(), "32.7767", "-96.7970")
	require.NoError(t, err)
	assert.Equal(t, "Dallas, TX", info.Location)
	assert.Equal(t, "TXZ211", info.ZoneID)
	assert.Equal(t, "TXC113", info.CountyID)
	assert.Equal(t, "KFWS", info.RadarStation)
	assert.Equal(t, "https://radar.weather.gov/ridge/standard/KFWS_loop.gif", info.RadarImageURL)
	assert.Equal(t, srv.URL+"/gridpoints/FWD/80,109/forecast", info.ForecastURL)
}

func TestForecastReturnsFirstPeriod(t *testing.T) {
	srv := newTestServer(t)
	c := New(Config{BaseURL: srv.URL})

	p, err := c.Forecast(context.Background(), "32.7767", "-96.7970")
	require.NoError(t, err)
	assert.Equal(t, "This Afternoon", p.Name)
	assert.Equal(t, 101, p.Temperature)
	assert.True(t, p.IsDaytime)
	assert.Equal(t, "Sunny, with a high near 101.", p.DetailedForecast)
}

func TestForecastAtURLSkipsPointsLookup(t *testing.T) {
	var pointsHits int
	mux := http.NewServeMux()
	mux.HandleFunc("/points/", func(w http.ResponseWriter, r *http.Request) {
		pointsHits++
		http.Error(w, "should not be called", http.StatusInternalServerError)
	})
	mux.HandleFunc("/gridpoints/FWD/80,109/forecast", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(forecastBody))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	p, err := c.ForecastAtURL(context.Background(), srv.URL+"/gridpoints/FWD/80,109/forecast")
	require.NoError(t, err)
	assert.Equal(t, "This Afternoon", p.Name)
	assert.Zero(t, pointsHits)
}

func TestNonOKStatusReturnsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	_, err := c.ActiveAlerts(context.Background(), "TXZ211")
	require.Error(t, err)
	assert.True(t, weather.IsStatus(err, http.StatusServiceUnavailable))
}
