package registry

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically evicts rooms that have sat empty past the idle
// threshold. Eviction is fire-and-forget; former participants are gone
// already, so nobody is notified.
type Sweeper struct {
	reg      *Registry
	interval time.Duration
	idleFor  time.Duration
}

// NewSweeper creates a Sweeper over the given registry.
func NewSweeper(reg *Registry, interval, idleFor time.Duration) *Sweeper {
	return &Sweeper{reg: reg, interval: interval, idleFor: idleFor}
}

// Run sweeps on a fixed interval until ctx is cancelled. Call in its own
// goroutine.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.reg.EvictIdleRooms(s.idleFor); n > 0 {
				slog.Info("sweep complete", slog.Int("evicted", n), slog.Int("rooms", s.reg.RoomCount()))
			}
		}
	}
}
