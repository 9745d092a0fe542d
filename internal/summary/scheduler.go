package summary

import (
	"context"
	"sync"
	"time"

	"notisum/internal/eventbus"
	"notisum/internal/remote"
	rtsup "notisum/internal/runtime/supervisor"
	"notisum/internal/store"
	logx "notisum/pkg/logx"
)

// Package summary decides when a conversation gets auto-summarized and
// runs the summarization call, with an at-most-one-in-flight guarantee
// per conversation and usage rollback on failure.

// Client is the slice of the remote API the scheduler needs.
type Client interface {
	Summarize(ctx context.Context, conversationName string, msgs []remote.SummaryMessage) (*remote.SummaryResult, error)
	RollbackUsage(ctx context.Context) error
}

type Config struct {
	// MinMessages is the minimum retrievable message count before a call
	// is made. Default 5.
	MinMessages int
	// RepublishDelay is the gap before the second conversation.updated
	// emission after a successful summary. Default 350ms.
	RepublishDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.MinMessages <= 0 {
		c.MinMessages = 5
	}
	if c.RepublishDelay <= 0 {
		c.RepublishDelay = 350 * time.Millisecond
	}
	return c
}

// Scheduler owns the per-conversation trigger state machine.
type Scheduler struct {
	cfg    Config
	store  *store.Store
	client Client
	ent    *remote.Entitlements
	bus    eventbus.Bus
	log    logx.Logger

	mu  sync.Mutex
	sup *rtsup.Supervisor

	// inFlight is the sole concurrency guard: at most one summarization
	// call per conversation. Check-and-insert is atomic under inMu.
	inMu     sync.Mutex
	inFlight map[int64]struct{}
}

func New(cfg Config, st *store.Store, client Client, ent *remote.Entitlements, bus eventbus.Bus, log logx.Logger) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scheduler{
		cfg:      cfg.withDefaults(),
		store:    st,
		client:   client,
		ent:      ent,
		bus:      bus,
		log:      log,
		inFlight: map[int64]struct{}{},
	}
}

// Start makes the scheduler accept triggers until Stop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return
	}
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log.With(logx.String("comp", "summary"))))
}

// Stop refuses new triggers and waits for in-flight calls to finish
// naturally (the HTTP client timeout bounds them).
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	sup := s.sup
	s.sup = nil
	s.mu.Unlock()
	if sup == nil {
		return
	}
	_ = sup.Stop(ctx)
}

// InFlight reports whether a conversation currently has a call running.
func (s *Scheduler) InFlight(conversationID int64) bool {
	s.inMu.Lock()
	defer s.inMu.Unlock()
	_, ok := s.inFlight[conversationID]
	return ok
}

func (s *Scheduler) tryAcquire(id int64) bool {
	s.inMu.Lock()
	defer s.inMu.Unlock()
	if _, busy := s.inFlight[id]; busy {
		return false
	}
	s.inFlight[id] = struct{}{}
	return true
}

func (s *Scheduler) release(id int64) {
	s.inMu.Lock()
	delete(s.inFlight, id)
	s.inMu.Unlock()
}

// OnMessageInserted evaluates the trigger condition after a successful
// (non-duplicate) insert. The cheap local conditions run on the caller's
// goroutine; remote checks and the call itself run on a supervised
// goroutine. A conversation already in flight is skipped, not queued.
func (s *Scheduler) OnMessageInserted(conv *store.Conversation) {
	if conv == nil {
		return
	}
	if !conv.SummaryEnabled || !conv.AutoSummaryEnabled {
		return
	}
	if conv.AutoSummaryCount <= 0 || conv.UnreadCount < conv.AutoSummaryCount {
		return
	}

	s.mu.Lock()
	sup := s.sup
	s.mu.Unlock()
	if sup == nil {
		return
	}

	if !s.tryAcquire(conv.ID) {
		s.log.Debug("summarization already in flight; skipping",
			logx.Int64("conversation", conv.ID))
		return
	}

	id := conv.ID
	name := conv.Name
	threshold := int(conv.AutoSummaryCount)
	sup.Go("summarize", func(ctx context.Context) error {
		defer s.release(id)
		// Shutdown refuses new triggers but must not abort a call already
		// on the wire; the client timeout bounds the detached context.
		s.run(context.WithoutCancel(ctx), id, name, threshold)
		return nil
	})
}

// run is the Checking→InFlight→Idle path. It never returns an error to
// the supervisor: every failure is handled here and the conversation
// always ends Idle.
func (s *Scheduler) run(ctx context.Context, convID int64, name string, threshold int) {
	log := s.log.With(logx.Int64("conversation", convID))

	entitled, err := s.ent.Entitled(ctx)
	if err != nil {
		log.Warn("entitlement lookup failed; not summarizing", logx.Err(err))
		return
	}
	if !entitled {
		log.Debug("plan does not permit auto-summary")
		return
	}

	msgs, err := s.store.RecentMessages(ctx, convID, threshold)
	if err != nil {
		log.Error("fetching messages failed", logx.Err(err))
		return
	}
	if len(msgs) < s.cfg.MinMessages {
		log.Debug("not enough messages to summarize", logx.Int("have", len(msgs)))
		return
	}

	wire := make([]remote.SummaryMessage, 0, len(msgs))
	for _, m := range msgs {
		wire = append(wire, remote.NewSummaryMessage(m.Sender, m.Body, m.CreatedAt))
	}

	res, err := s.client.Summarize(ctx, name, wire)
	if err != nil {
		log.Warn("summarization failed", logx.Err(err))
		s.rollback(ctx, log)
		return
	}

	sum := store.Summary{
		ConversationID: convID,
		Title:          res.Subject,
		Body:           res.Message,
		DetailBody:     res.DetailMessage,
		FromTime:       msgs[0].CreatedAt,
		ToTime:         msgs[len(msgs)-1].CreatedAt,
	}
	sumID, err := s.store.InsertSummary(ctx, sum)
	if err != nil {
		log.Error("persisting summary failed", logx.Err(err))
		s.rollback(ctx, log)
		return
	}
	if err := s.store.ResetUnread(ctx, convID); err != nil {
		log.Error("unread reset failed", logx.Err(err))
	}

	log.Info("conversation summarized",
		logx.Int64("summary", sumID), logx.Int("messages", len(msgs)))
	s.announce(ctx, convID, sumID)
}

// rollback undoes the server's optimistic usage increment. Best-effort:
// its own failure is logged, never retried.
func (s *Scheduler) rollback(ctx context.Context, log logx.Logger) {
	if err := s.client.RollbackUsage(ctx); err != nil {
		log.Warn("usage rollback failed", logx.Err(err))
	}
}

// announce publishes conversation.updated and summary.created, then
// republishes conversation.updated once after a short delay. The UI push
// channel is lossy, so delivery is at-least-once with an idempotent
// payload rather than exactly-once.
func (s *Scheduler) announce(ctx context.Context, convID, sumID int64) {
	conv, err := s.store.GetConversation(ctx, convID)
	if err != nil || conv == nil {
		return
	}
	data := eventbus.ConversationUpdated{
		ConversationID: conv.ID,
		Name:           conv.Name,
		UnreadCount:    conv.UnreadCount,
		LastMessage:    conv.LastMessage,
		LastSender:     conv.LastSender,
		LastTime:       conv.LastTime,
		IsAutoSummary:  true,
		SummaryID:      sumID,
	}
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeSummaryCreated, Data: data})
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeConversationUpdated, Data: data})

	select {
	case <-ctx.Done():
	case <-time.After(s.cfg.RepublishDelay):
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeConversationUpdated, Data: data})
	}
}
