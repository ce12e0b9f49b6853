// Package app wires configuration, storage, the weather provider, the chat
// adapter, and the reporting jobs into one runnable unit.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/depthbomb/weathergoat-sub000/internal/cache"
	"github.com/depthbomb/weathergoat-sub000/internal/config"
	"github.com/depthbomb/weathergoat-sub000/internal/destinations"
	"github.com/depthbomb/weathergoat-sub000/internal/jobs"
	"github.com/depthbomb/weathergoat-sub000/internal/observability"
	"github.com/depthbomb/weathergoat-sub000/internal/platform"
	"github.com/depthbomb/weathergoat-sub000/internal/platform/discord"
	"github.com/depthbomb/weathergoat-sub000/internal/queue"
	"github.com/depthbomb/weathergoat-sub000/internal/scheduler"
	"github.com/depthbomb/weathergoat-sub000/internal/storage"
	"github.com/depthbomb/weathergoat-sub000/internal/sweeper"
	"github.com/depthbomb/weathergoat-sub000/internal/weather"
	"github.com/depthbomb/weathergoat-sub000/internal/weather/nws"
	"github.com/depthbomb/weathergoat-sub000/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger

	store      storage.Store
	adapter    platform.Adapter
	provider   weather.Provider
	caches     *cache.Manager
	radarQueue *queue.Queue
	sweeper    *sweeper.Service
	dests      *destinations.Service
	sched      *scheduler.Service
	metrics    *observability.Metrics

	metricsSrv *http.Server

	watchCancel context.CancelFunc
	cfgUpdates  chan *config.Config
}

func New(cfgPath string) (*App, error) {
	bootLog := logx.NewConsole("INFO")

	cfgm := config.NewManager(cfgPath, bootLog)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logCfg(cfg))
	log = log.With(logx.String("comp", "app"))

	adapter, err := discord.New(discord.Config{Token: cfg.Bot.Token},
		log.With(logx.String("comp", "discord")))
	if err != nil {
		return nil, err
	}

	// Error-level log events fan out to the configured channel, paced by the
	// log service's own limiter.
	if cfg.Bot.LogChannelID != "" {
		channelID := cfg.Bot.LogChannelID
		logSvc.SetChannelSink(func(ctx context.Context, text string) error {
			_, err := adapter.SendMessage(ctx, channelID, platform.Message{
				Content:               text,
				SuppressNotifications: true,
			})
			return err
		})
	}

	store, err := storage.Open(storage.Config{Path: cfg.Database.Path},
		log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	clock := clockwork.NewRealClock()
	metrics := observability.NewMetrics()

	caches := cache.NewManager(clock)
	caches.Instrument(metrics.CacheHits, metrics.CacheMisses)
	provider := weather.NewCachedProvider(
		nws.New(nws.Config{
			BaseURL:   cfg.Weather.BaseURL,
			UserAgent: cfg.Weather.UserAgent,
			Timeout:   cfg.Weather.Timeout.Std(),
		}),
		caches.Store("locations", weather.LocationInfoTTL),
	)

	sweeperSvc := sweeper.New(store, adapter, clock,
		log.With(logx.String("comp", "sweeper")), metrics)
	radarQueue := queue.New("radar", cfg.Reporting.RadarQueueDelay.Std(), clock,
		log.With(logx.String("comp", "queue")))
	radarQueue.InstrumentDepth(metrics.QueueDepth.WithLabelValues("radar"))

	dests := destinations.New(store, provider, adapter, destinations.Limits{
		AlertsPerGuild:    cfg.Limits.AlertsPerGuild,
		ForecastsPerGuild: cfg.Limits.ForecastsPerGuild,
		RadarsPerGuild:    cfg.Limits.RadarsPerGuild,
	}, log.With(logx.String("comp", "destinations")))

	sched := scheduler.New(log.With(logx.String("comp", "scheduler")), metrics)
	jobList := []scheduler.Job{
		jobs.NewAlertsJob(store, provider, adapter, sweeperSvc, clock, log, metrics),
		jobs.NewForecastJob(store, provider, adapter, sweeperSvc, clock, log, metrics,
			cfg.Reporting.ForecastCleanupAfter.Std()),
		jobs.NewRadarJob(store, adapter, radarQueue, clock, log, metrics),
		jobs.NewSweepJob(sweeperSvc, log),
		jobs.NewStatusJob(adapter, clock, log),
	}
	for _, j := range jobList {
		if err := sched.Register(j); err != nil {
			return nil, err
		}
	}

	a := &App{
		cfgm:       cfgm,
		logs:       logSvc,
		log:        log,
		store:      store,
		adapter:    adapter,
		provider:   provider,
		caches:     caches,
		radarQueue: radarQueue,
		sweeper:    sweeperSvc,
		dests:      dests,
		sched:      sched,
		metrics:    metrics,
	}
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		a.metricsSrv = &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: mux}
	}
	return a, nil
}

// Destinations exposes the destination lifecycle service to the command
// layer.
func (a *App) Destinations() *destinations.Service { return a.dests }

func (a *App) Start(ctx context.Context) error {
	// Config hot reload: only the logging section takes effect at runtime.
	wctx, cancel := context.WithCancel(ctx)
	a.watchCancel = cancel
	go func() {
		if err := a.cfgm.Watch(wctx); err != nil {
			a.log.Warn("config watcher stopped", logx.Err(err))
		}
	}()
	a.cfgUpdates = a.cfgm.Subscribe(1)
	go func() {
		for cfg := range a.cfgUpdates {
			a.logs.Apply(logCfg(cfg))
			a.log.Info("logging config applied", logx.String("level", cfg.Logging.Level))
		}
	}()

	if a.metricsSrv != nil {
		go func() {
			if err := a.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error("metrics listener failed", logx.Err(err))
			}
		}()
		a.log.Info("metrics listening", logx.String("addr", a.metricsSrv.Addr))
	}

	a.sched.Start()
	a.log.Info("reporting engine started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.watchCancel != nil {
		a.watchCancel()
	}
	if a.cfgUpdates != nil {
		a.cfgm.Unsubscribe(a.cfgUpdates)
		a.cfgUpdates = nil
	}

	sctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := a.sched.Shutdown(sctx); err != nil {
		a.log.Warn("scheduler shutdown incomplete", logx.Err(err))
	}
	a.radarQueue.Close()

	if a.metricsSrv != nil {
		_ = a.metricsSrv.Shutdown(sctx)
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("closing store", logx.Err(err))
	}
	a.log.Info("stopped")
	return a.logs.Close()
}

func logCfg(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Channel: logx.ChannelConfig{
			Enabled:    cfg.Logging.Channel.Enabled,
			MinLevel:   cfg.Logging.Channel.MinLevel,
			RatePerSec: cfg.Logging.Channel.RatePerSec,
		},
	}
}
