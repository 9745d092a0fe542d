package paywall

import (
	"context"
	"time"

	"notisum/internal/eventbus"
	"notisum/internal/store"
	logx "notisum/pkg/logx"
)

// Package paywall decides when to show the upgrade prompt. The gate is
// edge-triggered on the unread count and rate-limited by a per-conversation
// cooldown persisted in the store.

// Entitlement is the slice of the remote layer the gate needs.
type Entitlement interface {
	Entitled(ctx context.Context) (bool, error)
}

type Config struct {
	// Threshold: the prompt fires when unread transitions to Threshold+1.
	Threshold int64
	Cooldown  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = 50
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 24 * time.Hour
	}
	return c
}

type Gate struct {
	cfg   Config
	store *store.Store
	ent   Entitlement
	bus   eventbus.Bus
	log   logx.Logger
}

func New(cfg Config, st *store.Store, ent Entitlement, bus eventbus.Bus, log logx.Logger) *Gate {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Gate{cfg: cfg.withDefaults(), store: st, ent: ent, bus: bus, log: log}
}

// Cooldown reports the configured cooldown (the maintenance sweep prunes
// marks older than this).
func (g *Gate) Cooldown() time.Duration { return g.cfg.Cooldown }

// Observe evaluates the gate for one unread transition. newUnread is the
// count produced by the insert that triggered this call; edge-triggering
// means only the exact transition to Threshold+1 can fire, so staying
// above the threshold does not re-fire.
func (g *Gate) Observe(ctx context.Context, conv *store.Conversation, newUnread int64) {
	if conv == nil || newUnread != g.cfg.Threshold+1 {
		return
	}

	entitled, err := g.ent.Entitled(ctx)
	if err != nil {
		g.log.Warn("entitlement lookup failed; suppressing paywall", logx.Err(err))
		return
	}
	if entitled {
		return
	}

	last, ok, err := g.store.LastPaywallFired(ctx, conv.ID)
	if err != nil {
		g.log.Error("cooldown lookup failed", logx.Err(err))
		return
	}
	if ok && time.Since(last) < g.cfg.Cooldown {
		g.log.Debug("paywall in cooldown", logx.Int64("conversation", conv.ID))
		return
	}

	// Write the mark before dispatching: a slow or retried dispatch must
	// not be able to double-fire.
	if err := g.store.MarkPaywallFired(ctx, conv.ID, time.Now()); err != nil {
		g.log.Error("recording paywall mark failed", logx.Err(err))
		return
	}

	g.bus.Publish(eventbus.Event{
		Type: eventbus.TypePaywallPrompt,
		Data: eventbus.PaywallPrompt{
			ConversationID: conv.ID,
			Name:           conv.Name,
			UnreadCount:    newUnread,
		},
	})
	g.log.Info("paywall prompt fired",
		logx.Int64("conversation", conv.ID), logx.Int64("unread", newUnread))
}
