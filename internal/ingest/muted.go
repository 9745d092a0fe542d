package ingest

import (
	"context"

	"notisum/internal/store"
)

// RefreshMuted replaces the suppression cache with the store's current
// muted set. Called at startup and after bulk changes.
func (p *Pipeline) RefreshMuted(ctx context.Context) error {
	keys, err := p.store.MutedKeys(ctx)
	if err != nil {
		return err
	}
	next := make(map[store.Key]struct{}, len(keys))
	for _, k := range keys {
		next[k] = struct{}{}
	}
	p.mutedMu.Lock()
	p.muted = next
	p.mutedMu.Unlock()
	return nil
}

// SetMutedKey updates the cache for one conversation. The store row is
// the caller's responsibility; this only adjusts suppression.
func (p *Pipeline) SetMutedKey(k store.Key, muted bool) {
	p.mutedMu.Lock()
	if muted {
		p.muted[k] = struct{}{}
	} else {
		delete(p.muted, k)
	}
	p.mutedMu.Unlock()
}

func (p *Pipeline) isMuted(k store.Key) bool {
	p.mutedMu.RLock()
	_, ok := p.muted[k]
	p.mutedMu.RUnlock()
	return ok
}
