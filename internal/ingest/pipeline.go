package ingest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"notisum/internal/eventbus"
	"notisum/internal/normalize"
	rtsup "notisum/internal/runtime/supervisor"
	"notisum/internal/store"
	logx "notisum/pkg/logx"
)

// Package ingest orchestrates the inbound path:
// normalize → mute filter → persist (dedup) → fan-out.
//
// Normalization and mute suppression run synchronously on the caller's
// goroutine, because their latency decides whether a physical alert is
// shown. Everything that touches the store or the network runs on the
// worker pool.

var (
	ErrStopped   = errors.New("ingest pipeline stopped")
	ErrQueueFull = errors.New("ingest queue full")
)

// RawEvent is one inbound notification as delivered by the OS stream.
type RawEvent struct {
	Source     string
	Title      string
	Body       string
	Subtitle   string
	ConvTitle  string
	Group      bool
	ReplyToken string
	// Timestamp is source-supplied; it becomes the message's created_at.
	Timestamp time.Time
}

type Config struct {
	Workers   int // default 2
	QueueSize int // default 256

	// Sources filters which source ids are ingested; empty means every
	// source the normalizer knows.
	Sources []string
	// SelfName feeds self-sender detection.
	SelfName string
}

// Trigger receives successful (non-duplicate) inserts.
type Trigger interface {
	OnMessageInserted(conv *store.Conversation)
}

// Gate receives the unread transition each insert produced.
type Gate interface {
	Observe(ctx context.Context, conv *store.Conversation, newUnread int64)
}

// Stats is a point-in-time snapshot of pipeline counters.
type Stats struct {
	Submitted  uint64
	ParseDrops uint64
	Suppressed uint64
	QueueDrops uint64
	Persisted  uint64
	DedupHits  uint64
	Rejected   uint64
}

type item struct {
	ev RawEvent
	c  normalize.Canonical
}

type Pipeline struct {
	mu      sync.Mutex
	cfg     Config
	enabled map[string]bool
	opts    normalize.Options

	store *store.Store
	bus   eventbus.Bus
	log   logx.Logger

	trigger Trigger
	gate    Gate

	queue     chan item
	sup       *rtsup.Supervisor
	accepting bool

	// mutedMu guards the synchronous suppression cache. It is consulted on
	// the Submit path, so it must never wait on store I/O.
	mutedMu sync.RWMutex
	muted   map[store.Key]struct{}

	submitted  atomic.Uint64
	parseDrops atomic.Uint64
	suppressed atomic.Uint64
	queueDrops atomic.Uint64
	persisted  atomic.Uint64
	dedupHits  atomic.Uint64
	rejected   atomic.Uint64
}

func New(cfg Config, st *store.Store, bus eventbus.Bus, trigger Trigger, gate Gate, log logx.Logger) *Pipeline {
	if log.IsZero() {
		log = logx.Nop()
	}
	p := &Pipeline{
		store:   st,
		bus:     bus,
		log:     log,
		trigger: trigger,
		gate:    gate,
		muted:   map[store.Key]struct{}{},
	}
	p.applyLocked(cfg)
	return p
}

// Apply updates the hot-reloadable knobs (enabled sources, self name).
// Worker/queue sizing only takes effect on the next Start.
func (p *Pipeline) Apply(cfg Config) {
	p.mu.Lock()
	p.applyLocked(cfg)
	p.mu.Unlock()
}

func (p *Pipeline) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	p.cfg = cfg
	if len(cfg.Sources) == 0 {
		p.enabled = nil // all known sources
	} else {
		p.enabled = make(map[string]bool, len(cfg.Sources))
		for _, s := range cfg.Sources {
			p.enabled[s] = true
		}
	}
	p.opts = normalize.Options{SelfName: cfg.SelfName}
}

// Start loads the mute cache and launches the worker pool. Idempotent.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.queue != nil {
		p.mu.Unlock()
		return nil
	}
	p.queue = make(chan item, p.cfg.QueueSize)
	p.accepting = true
	workers := p.cfg.Workers
	p.sup = rtsup.New(ctx, rtsup.WithLogger(p.log.With(logx.String("comp", "ingest"))))
	sup := p.sup
	queue := p.queue
	p.mu.Unlock()

	if err := p.RefreshMuted(ctx); err != nil {
		p.log.Warn("loading mute cache failed", logx.Err(err))
	}

	for i := 0; i < workers; i++ {
		sup.Go("worker", func(c context.Context) error {
			p.worker(c, queue)
			return nil
		})
	}
	p.log.Info("pipeline started", logx.Int("workers", workers), logx.Int("queue_size", cap(queue)))
	return nil
}

// Stop refuses new events, drains nothing, and waits for workers.
func (p *Pipeline) Stop(ctx context.Context) {
	p.mu.Lock()
	if p.queue == nil {
		p.mu.Unlock()
		return
	}
	p.accepting = false
	sup := p.sup
	p.sup = nil
	p.queue = nil
	p.mu.Unlock()

	_ = sup.Stop(ctx)
	p.log.Info("pipeline stopped")
}

// Submit ingests one raw event. It is non-blocking: normalization and
// mute suppression happen inline, persistence is queued.
//
// A nil return with no visible effect is normal: parse failures and
// muted conversations are suppressed silently.
func (p *Pipeline) Submit(ev RawEvent) error {
	p.mu.Lock()
	accepting := p.accepting
	queue := p.queue
	enabled := p.enabled
	opts := p.opts
	p.mu.Unlock()

	if !accepting || queue == nil {
		return ErrStopped
	}
	p.submitted.Add(1)

	if enabled != nil && !enabled[ev.Source] {
		p.parseDrops.Add(1)
		return nil
	}
	c, ok := normalize.Normalize(ev.Source, normalize.RawFields{
		Title:     ev.Title,
		Body:      ev.Body,
		Subtitle:  ev.Subtitle,
		ConvTitle: ev.ConvTitle,
		Group:     ev.Group,
	}, opts)
	if !ok {
		p.parseDrops.Add(1)
		return nil
	}

	// Muted conversations are suppressed here, before any persistence,
	// because this latency decides whether an alert is shown.
	if p.isMuted(store.Key{Name: c.ConversationName, SourceID: ev.Source}) {
		p.suppressed.Add(1)
		return nil
	}

	select {
	case queue <- item{ev: ev, c: c}:
		return nil
	default:
		p.queueDrops.Add(1)
		p.log.Warn("ingest queue full; dropping event", logx.String("source", ev.Source))
		return ErrQueueFull
	}
}

func (p *Pipeline) worker(ctx context.Context, queue chan item) {
	for {
		select {
		case <-ctx.Done():
			return
		case it := <-queue:
			p.process(ctx, it)
		}
	}
}

func (p *Pipeline) process(ctx context.Context, it item) {
	ts := it.ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	convID, unread, err := p.store.UpsertConversation(ctx, store.UpsertParams{
		Name:        it.c.ConversationName,
		SourceID:    it.ev.Source,
		LastMessage: it.c.Body,
		LastSender:  it.c.Sender,
		LastTime:    ts,
		ReplyToken:  it.ev.ReplyToken,
		IsDirect:    it.c.IsDirect,
	})
	if err != nil {
		p.log.Error("conversation upsert failed", logx.Err(err),
			logx.String("source", it.ev.Source))
		return
	}
	if convID == store.RejectedConversation {
		// Blocked: no message row, no events.
		p.rejected.Add(1)
		p.log.Debug("blocked conversation; event rejected",
			logx.String("conversation", it.c.ConversationName))
		return
	}

	msgID, existed, err := p.store.InsertMessage(ctx, store.InsertMessageParams{
		ConversationID:   convID,
		Sender:           it.c.Sender,
		Body:             it.c.Body,
		CreatedAt:        ts,
		ConversationName: it.c.ConversationName,
	})
	if err != nil {
		p.log.Error("message insert failed", logx.Err(err), logx.Int64("conversation", convID))
		return
	}
	if existed {
		// Duplicate: identity returned, nothing else happens.
		p.dedupHits.Add(1)
		p.log.Debug("duplicate message", logx.Int64("message", msgID))
		return
	}

	conv, err := p.store.GetConversation(ctx, convID)
	if err != nil || conv == nil {
		p.log.Error("conversation readback failed", logx.Err(err), logx.Int64("conversation", convID))
		return
	}

	p.bus.Publish(eventbus.Event{
		Type: eventbus.TypeNotificationReceived,
		Data: eventbus.NotificationReceived{
			Source:    it.ev.Source,
			Sender:    it.c.Sender,
			Body:      it.c.Body,
			Timestamp: ts,
			MediaTag:  it.c.MediaTag,
		},
	})
	p.bus.Publish(eventbus.Event{
		Type: eventbus.TypeConversationUpdated,
		Data: eventbus.ConversationUpdated{
			ConversationID: conv.ID,
			Name:           conv.Name,
			UnreadCount:    unread,
			LastMessage:    conv.LastMessage,
			LastSender:     conv.LastSender,
			LastTime:       conv.LastTime,
		},
	})

	if p.gate != nil {
		p.gate.Observe(ctx, conv, unread)
	}
	if p.trigger != nil {
		p.trigger.OnMessageInserted(conv)
	}
	// Counted last so the counter doubles as a fully-processed signal.
	p.persisted.Add(1)
}

// Stats returns a snapshot of lifetime counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Submitted:  p.submitted.Load(),
		ParseDrops: p.parseDrops.Load(),
		Suppressed: p.suppressed.Load(),
		QueueDrops: p.queueDrops.Load(),
		Persisted:  p.persisted.Load(),
		DedupHits:  p.dedupHits.Load(),
		Rejected:   p.rejected.Load(),
	}
}
