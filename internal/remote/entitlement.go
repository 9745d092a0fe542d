package remote

import (
	"context"
	"strings"
	"sync"
	"time"
)

// PlanFree is the unentitled tier. Anything else counts as paid.
const PlanFree = "free"

// PlanSource is the part of Client the entitlement cache needs.
type PlanSource interface {
	PlanType(ctx context.Context) (string, error)
}

// Entitlements caches the remote plan lookup for a bounded TTL, so that
// trigger evaluation can consult it without a network round-trip on every
// message while never trusting an indefinitely stale answer.
type Entitlements struct {
	src PlanSource
	ttl time.Duration

	mu      sync.Mutex
	plan    string
	fetched time.Time
}

func NewEntitlements(src PlanSource, ttl time.Duration) *Entitlements {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Entitlements{src: src, ttl: ttl}
}

// Plan returns the current plan type, refreshing from the server when the
// cached value is older than the TTL.
func (e *Entitlements) Plan(ctx context.Context) (string, error) {
	e.mu.Lock()
	if e.plan != "" && time.Since(e.fetched) < e.ttl {
		p := e.plan
		e.mu.Unlock()
		return p, nil
	}
	e.mu.Unlock()

	plan, err := e.src.PlanType(ctx)
	if err != nil {
		return "", err
	}

	e.mu.Lock()
	e.plan = plan
	e.fetched = time.Now()
	e.mu.Unlock()
	return plan, nil
}

// Entitled reports whether the plan permits paid features (auto-summary;
// paywall prompts are skipped for entitled accounts).
func (e *Entitlements) Entitled(ctx context.Context) (bool, error) {
	plan, err := e.Plan(ctx)
	if err != nil {
		return false, err
	}
	return Entitled(plan), nil
}

// Refresh forces a fetch regardless of TTL (used by the maintenance sweep).
func (e *Entitlements) Refresh(ctx context.Context) error {
	plan, err := e.src.PlanType(ctx)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.plan = plan
	e.fetched = time.Now()
	e.mu.Unlock()
	return nil
}

// Entitled reports whether a plan string names a paid tier.
func Entitled(plan string) bool {
	p := strings.ToLower(strings.TrimSpace(plan))
	return p != "" && p != PlanFree
}
