package jobs

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/depthbomb/weathergoat-sub000/internal/observability"
	"github.com/depthbomb/weathergoat-sub000/internal/platform"
	"github.com/depthbomb/weathergoat-sub000/internal/scheduler"
	"github.com/depthbomb/weathergoat-sub000/internal/storage"
	"github.com/depthbomb/weathergoat-sub000/internal/sweeper"
	"github.com/depthbomb/weathergoat-sub000/internal/weather"
	"github.com/depthbomb/weathergoat-sub000/pkg/logx"
)

// Severity presentation colors.
var severityColors = map[string]int{
	weather.SeverityExtreme:  0x7f1d1d,
	weather.SeveritySevere:   0xdc2626,
	weather.SeverityModerate: 0xea580c,
	weather.SeverityMinor:    0xeab308,
	weather.SeverityUnknown:  0x9ca3af,
}

// Heat events never trigger @everyone even at Severe severity: they run for
// days and a mention per destination per event would be pure noise.
var mentionExcludedEvents = map[string]bool{
	"Excessive Heat Warning": true,
	"Heat Advisory":          true,
}

// AlertsJob delivers active alerts to every alert destination, at most once
// per (alert, destination).
type AlertsJob struct {
	store    storage.Store
	provider weather.Provider
	adapter  platform.Adapter
	sweeper  *sweeper.Service
	clock    clockwork.Clock
	log      logx.Logger
	metrics  *observability.Metrics
}

var _ scheduler.Job = (*AlertsJob)(nil)

func NewAlertsJob(store storage.Store, provider weather.Provider, adapter platform.Adapter, sw *sweeper.Service, clock clockwork.Clock, log logx.Logger, metrics *observability.Metrics) *AlertsJob {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &AlertsJob{
		store:    store,
		provider: provider,
		adapter:  adapter,
		sweeper:  sw,
		clock:    clock,
		log:      log.With(logx.String("job", "report-alerts")),
		metrics:  metrics,
	}
}

func (j *AlertsJob) Name() string         { return "report-alerts" }
func (j *AlertsJob) Pattern() string      { return "*/30 * * * * *" }
func (j *AlertsJob) RunImmediately() bool { return true }

func (j *AlertsJob) Execute(ctx context.Context) error {
	destinations, err := j.store.AlertDestinations(ctx)
	if err != nil {
		return err
	}

	for _, d := range destinations {
		// One broken destination must not starve the rest of the tick.
		if err := j.reportTo(ctx, d); err != nil {
			j.log.Error("failed to report alerts to destination",
				logx.String("destination_id", d.ID),
				logx.String("zone_id", d.ZoneID),
				logx.Err(err))
		}
	}
	return nil
}

func (j *AlertsJob) reportTo(ctx context.Context, d storage.AlertDestination) error {
	ch, err := j.adapter.ResolveChannel(ctx, d.ChannelID)
	if err != nil {
		if platform.IsNotFound(err) {
			j.log.Warn("alert destination channel is gone, skipping",
				logx.String("destination_id", d.ID),
				logx.String("channel_id", d.ChannelID))
			return nil
		}
		return err
	}
	if !ch.Text {
		return nil
	}

	alerts, err := j.activeAlerts(ctx, d)
	if err != nil {
		// The NWS alert endpoint sheds load with 503s fairly often; the next
		// tick retries naturally, so there is nothing worth logging loudly.
		if weather.IsStatus(err, http.StatusServiceUnavailable) {
			return nil
		}
		return err
	}

	for _, a := range alerts {
		if err := j.deliver(ctx, d, a); err != nil {
			j.log.Error("failed to deliver alert",
				logx.String("alert_id", a.ID),
				logx.String("destination_id", d.ID),
				logx.Err(err))
		}
	}
	return nil
}

// activeAlerts collects alerts for both the forecast zone and the county,
// deduplicating by alert id since NWS returns an alert under every zone it
// covers.
func (j *AlertsJob) activeAlerts(ctx context.Context, d storage.AlertDestination) ([]weather.Alert, error) {
	alerts, err := j.provider.ActiveAlerts(ctx, d.ZoneID)
	if err != nil {
		return nil, err
	}
	if d.CountyID != "" && d.CountyID != d.ZoneID {
		byCounty, err := j.provider.ActiveAlerts(ctx, d.CountyID)
		if err != nil {
			return nil, err
		}
		seen := make(map[string]bool, len(alerts))
		for _, a := range alerts {
			seen[a.ID] = true
		}
		for _, a := range byCounty {
			if !seen[a.ID] {
				alerts = append(alerts, a)
			}
		}
	}
	return alerts, nil
}

func (j *AlertsJob) deliver(ctx context.Context, d storage.AlertDestination, a weather.Alert) error {
	if !a.IsNotTest() {
		return nil
	}

	sent, err := j.store.HasSentAlert(ctx, a.ID, d.GuildID, d.ChannelID)
	if err != nil {
		return err
	}
	if sent {
		if j.metrics != nil {
			j.metrics.AlertsDeduped.Inc()
		}
		return nil
	}

	msg := platform.Message{
		Content: j.mention(d, a),
		Embed:   j.renderAlert(ctx, d, a),
	}

	identity, err := j.adapter.GetOrCreateSenderIdentity(ctx, d.ChannelID, alertIdentityName, identityReason)
	if err != nil {
		return err
	}
	ref, err := j.adapter.SendAs(ctx, identity, msg)
	if err != nil {
		return err
	}

	if d.AutoCleanup {
		if err := j.sweeper.Enqueue(ctx, ref, alertExpiry(a, j.clock.Now())); err != nil {
			j.log.Error("failed to schedule alert message cleanup",
				logx.String("alert_id", a.ID), logx.Err(err))
		}
	}

	payload, err := json.Marshal(a)
	if err != nil {
		return err
	}
	if err := j.store.RecordSentAlert(ctx, storage.SentAlert{
		ID:        uuid.Must(uuid.NewV7()).String(),
		AlertID:   a.ID,
		GuildID:   d.GuildID,
		ChannelID: d.ChannelID,
		MessageID: ref.ID,
		Payload:   string(payload),
		SentAt:    j.clock.Now(),
	}); err != nil {
		return err
	}
	if j.metrics != nil {
		j.metrics.AlertsReported.Inc()
	}

	j.sweepSuperseded(ctx, d, a)
	return nil
}

// sweepSuperseded schedules immediate deletion of messages sent for alerts
// this Update/Cancel replaces.
func (j *AlertsJob) sweepSuperseded(ctx context.Context, d storage.AlertDestination, a weather.Alert) {
	for _, ref := range a.SupersededReferences() {
		prior, err := j.store.FindSentAlert(ctx, ref.AlertID, d.GuildID, d.ChannelID)
		if err != nil {
			continue
		}
		mref := platform.MessageRef{ID: prior.MessageID, ChannelID: prior.ChannelID, GuildID: prior.GuildID}
		if err := j.sweeper.Enqueue(ctx, mref, j.clock.Now()); err != nil {
			j.log.Error("failed to schedule superseded alert cleanup",
				logx.String("alert_id", ref.AlertID), logx.Err(err))
		}
	}
}

func (j *AlertsJob) mention(d storage.AlertDestination, a weather.Alert) string {
	if d.PingOnSevere && a.IsSevere() && !mentionExcludedEvents[a.Event] {
		return "@everyone"
	}
	return ""
}

func (j *AlertsJob) renderAlert(ctx context.Context, d storage.AlertDestination, a weather.Alert) *platform.Embed {
	title := a.Headline
	if title == "" {
		title = a.Event
	}
	if a.IsUpdate() {
		title = "🔁 " + title
	}

	e := &platform.Embed{
		Title:       title,
		Description: a.Description,
		URL:         a.URL(),
		Color:       severityColor(a.Severity),
		AuthorName:  a.SenderName,
		FooterText:  a.Event,
		Timestamp:   a.Sent,
		Fields: []platform.EmbedField{
			{Name: "Certainty", Value: a.Certainty, Inline: true},
			{Name: "Effective", Value: relativeTimestamp(a.Effective), Inline: true},
			{Name: "Expires", Value: relativeTimestamp(a.Expires), Inline: true},
			{Name: "Affected Areas", Value: a.AreaDesc},
		},
	}
	if a.Instruction != "" {
		e.Fields = append(e.Fields, platform.EmbedField{Name: "Instructions", Value: a.Instruction})
	}
	if d.RadarImageURL != "" {
		e.ImageURL = cacheBust(d.RadarImageURL, j.clock.Now())
	}

	for _, ref := range a.References {
		prior, err := j.store.FindSentAlert(ctx, ref.AlertID, d.GuildID, d.ChannelID)
		if err != nil {
			continue
		}
		mref := platform.MessageRef{ID: prior.MessageID, ChannelID: prior.ChannelID, GuildID: prior.GuildID}
		e.Fields = append(e.Fields, platform.EmbedField{
			Name:  "Previous Alert",
			Value: mref.URL(),
		})
	}

	if len(e.Description) > platform.MaxEmbedDescription || e.Length() > platform.MaxEmbedTotal {
		e.Description = "This alert is too large to display. Read it in full at the link above."
	}
	return e
}

func severityColor(severity string) int {
	if c, ok := severityColors[severity]; ok {
		return c
	}
	return severityColors[weather.SeverityUnknown]
}

// expires timestamps from NWS are occasionally zero for long-fuse events;
// guard cleanup scheduling against them.
func alertExpiry(a weather.Alert, now time.Time) time.Time {
	if a.Expires.IsZero() {
		return now.Add(12 * time.Hour)
	}
	return a.Expires
}
