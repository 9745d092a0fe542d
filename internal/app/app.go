package app

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"notisum/internal/config"
	"notisum/internal/eventbus"
	"notisum/internal/ingest"
	"notisum/internal/paywall"
	"notisum/internal/remote"
	rtsup "notisum/internal/runtime/supervisor"
	"notisum/internal/store"
	"notisum/internal/summary"
	logx "notisum/pkg/logx"
)

// App assembles the daemon: config manager, store, remote client,
// ingestion pipeline, summary scheduler, paywall gate and the
// maintenance cron.
type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store *store.Store

	api  *remote.Client
	ent  *remote.Entitlements
	pipe *ingest.Pipeline
	gate *paywall.Gate
	schd *summary.Scheduler

	cron *cron.Cron
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	sc, err := mapStoreConfig(cfg)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(sc, log.With(logx.String("comp", "store")))
	if err != nil {
		return nil, err
	}
	log.Info("store opened", logx.String("path", sc.Path))

	rc, err := mapRemoteConfig(cfg)
	if err != nil {
		return nil, err
	}
	api := remote.New(rc, log.With(logx.String("comp", "remote")))

	ttl, err := config.ParseDurationOrDefault("summary.entitlement_ttl", cfg.Summary.EntitlementTTL, time.Minute)
	if err != nil {
		return nil, err
	}
	ent := remote.NewEntitlements(api, ttl)

	smc, err := mapSummaryConfig(cfg)
	if err != nil {
		return nil, err
	}
	schd := summary.New(smc, st, api, ent, bus, log.With(logx.String("comp", "summary")))

	pwc, err := mapPaywallConfig(cfg)
	if err != nil {
		return nil, err
	}
	gate := paywall.New(pwc, st, ent, bus, log.With(logx.String("comp", "paywall")))

	pipe := ingest.New(mapIngestConfig(cfg), st, bus, schd, gate,
		log.With(logx.String("comp", "ingest")))

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   st,
		api:     api,
		ent:     ent,
		pipe:    pipe,
		gate:    gate,
		schd:    schd,
	}, nil
}

// Bus exposes the event stream for UI transports.
func (a *App) Bus() eventbus.Bus { return a.bus }

// Pipeline exposes the ingestion entry point for notification listeners.
func (a *App) Pipeline() *ingest.Pipeline { return a.pipe }

// Done is closed when the app supervisor context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	// Transactional config reload: validate before commit/publish.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(c context.Context, cfg *config.Config) error {
		return config.Validate(cfg)
	})

	if err := a.pipe.Start(a.sup.Context()); err != nil {
		return err
	}
	a.schd.Start(a.sup.Context())

	if err := a.startMaintenance(); err != nil {
		return err
	}

	// Debug visibility into the event stream.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go("eventbus.log", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	// Hot reload fan-out.
	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return nil
			case newCfg, ok := <-sub:
				if !ok {
					return nil
				}
				a.applyReload(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

// applyReload pushes the hot-reloadable parts of a committed config into
// running components. Storage and API changes need a restart.
func (a *App) applyReload(ctx context.Context, prev, cfg *config.Config) {
	a.logs.Apply(mapLogConfig(cfg))
	a.pipe.Apply(mapIngestConfig(cfg))
	if err := a.pipe.RefreshMuted(ctx); err != nil {
		a.log.Warn("mute cache refresh failed", logx.Err(err))
	}
	if prev != nil && (prev.Storage != cfg.Storage || prev.API != cfg.API) {
		a.log.Warn("storage/api config changed; restart required for changes to take effect")
	}
	a.log.Info("config reloaded")
}

func (a *App) startMaintenance() error {
	spec := a.cfgm.Get().Maintenance.Schedule
	if spec == "" {
		spec = "@hourly"
	}
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(a.sup.Context(), 30*time.Second)
		defer cancel()
		a.maintain(ctx)
	})
	if err != nil {
		return err
	}
	c.Start()
	a.cron = c
	a.log.Info("maintenance scheduled", logx.String("spec", spec))
	return nil
}

// maintain runs the periodic sweep: expire paywall cooldown rows and
// refresh the cached entitlement.
func (a *App) maintain(ctx context.Context) {
	cutoff := time.Now().Add(-a.gate.Cooldown())
	n, err := a.store.PrunePaywallMarks(ctx, cutoff)
	if err != nil {
		a.log.Warn("paywall mark prune failed", logx.Err(err))
	} else if n > 0 {
		a.log.Debug("paywall marks pruned", logx.Int64("rows", n))
	}
	if err := a.ent.Refresh(ctx); err != nil {
		a.log.Debug("entitlement refresh failed", logx.Err(err))
	}
	st := a.pipe.Stats()
	a.log.Debug("ingest stats",
		logx.Any("submitted", st.Submitted),
		logx.Any("persisted", st.Persisted),
		logx.Any("dedup_hits", st.DedupHits),
		logx.Any("suppressed", st.Suppressed),
		logx.Any("queue_drops", st.QueueDrops))
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")
	a.sup.Cancel()

	if a.cron != nil {
		cronCtx := a.cron.Stop()
		select {
		case <-cronCtx.Done():
		case <-ctx.Done():
		}
	}
	a.pipe.Stop(ctx)
	a.schd.Stop(ctx)
	if err := a.sup.Stop(ctx); err != nil {
		a.log.Warn("supervisor stop", logx.Err(err))
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("store close", logx.Err(err))
	}
	a.log.Info("stopped")
	a.logs.Close()
	return nil
}
