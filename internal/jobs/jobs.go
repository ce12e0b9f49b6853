// Package jobs holds the five periodic reporters driven by the scheduler:
// alerts, forecasts, radar refresh, message sweeping, and presence updates.
package jobs

import (
	"fmt"
	"strings"
	"time"
)

// Sender identity names, one per reporting concern, so messages in a channel
// are visually attributable to their job.
const (
	alertIdentityName    = "WeatherGoat Alerts"
	forecastIdentityName = "WeatherGoat Forecasts"

	identityReason = "Required for weather reporting"
)

// cacheBust appends a time-derived query token so the platform's media proxy
// refetches an image whose URL otherwise never changes.
func cacheBust(url string, now time.Time) string {
	if url == "" {
		return ""
	}
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%st=%d", url, sep, now.Unix())
}

// relativeTimestamp renders t as a Discord relative-time marker ("in 5
// minutes", "2 minutes ago").
func relativeTimestamp(t time.Time) string {
	return fmt.Sprintf("<t:%d:R>", t.Unix())
}

// longTimestamp renders t as a Discord absolute date-time marker.
func longTimestamp(t time.Time) string {
	return fmt.Sprintf("<t:%d:F>", t.Unix())
}
