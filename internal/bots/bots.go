// Package bots drives the automated participants that keep the global room
// alive. Each profile runs on its own ticker, drifting its value toward a
// target with bounded random noise, then broadcasting the global room.
package bots

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/Jeff-Emmett/collective-boredom-dial/internal/broadcast"
	"github.com/Jeff-Emmett/collective-boredom-dial/internal/registry"
)

// Profile is the static configuration for one automated participant. The
// mutable value lives in the registry like any other participant's.
type Profile struct {
	ID         string
	Name       string
	Target     float64
	Volatility float64
	Interval   time.Duration
}

// DefaultProfiles returns the automated participants seeded into the
// global room at startup.
func DefaultProfiles() []Profile {
	return []Profile{
		{ID: "bot-clockwatcher", Name: "Clock Watcher", Target: 88, Volatility: 6, Interval: 2500 * time.Millisecond},
		{ID: "bot-doomscroller", Name: "Doomscroller", Target: 74, Volatility: 12, Interval: 2 * time.Second},
		{ID: "bot-daydreamer", Name: "Daydreamer", Target: 61, Volatility: 15, Interval: 3200 * time.Millisecond},
		{ID: "bot-overcaffeinated", Name: "Overcaffeinated Ed", Target: 17, Volatility: 10, Interval: 2800 * time.Millisecond},
	}
}

// Driver owns the per-profile tickers. Its mutations go through the same
// registry discipline as connection-driven ones, so it is safe to run
// alongside live traffic.
type Driver struct {
	reg        *registry.Registry
	dispatcher *broadcast.Dispatcher
	profiles   []Profile
}

// New seeds each profile into the global room (starting at its target
// value) and returns a Driver ready to start.
func New(reg *registry.Registry, dispatcher *broadcast.Dispatcher, profiles []Profile) *Driver {
	for _, p := range profiles {
		reg.SeedBot(reg.GlobalID(), p.ID, p.Name, p.Target)
	}
	return &Driver{reg: reg, dispatcher: dispatcher, profiles: profiles}
}

// Start launches one goroutine per profile. They run until ctx is
// cancelled; bot entries stay in the registry for the process lifetime.
func (d *Driver) Start(ctx context.Context) {
	for i, p := range d.profiles {
		rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(i)))
		go d.run(ctx, p, rng)
	}
	slog.Info("bot driver started", slog.Int("profiles", len(d.profiles)))
}

func (d *Driver) run(ctx context.Context, p Profile, rng *rand.Rand) {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			noise := (rng.Float64() - 0.5) * p.Volatility
			if !d.reg.NudgeToward(d.reg.GlobalID(), p.ID, p.Target, noise) {
				// Bot entries are seeded at startup and never removed,
				// so a miss means something is badly wrong upstream.
				slog.Warn("bot tick skipped, participant missing", slog.String("bot_id", p.ID))
				continue
			}
			d.dispatcher.Broadcast(d.reg.GlobalID())
		}
	}
}
