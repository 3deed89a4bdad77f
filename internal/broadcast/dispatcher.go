// Package broadcast pushes freshly computed room stats to every live
// connection in a room. Payloads are serialized once per broadcast and
// sends are best-effort; a slow or dead client never stalls the others.
package broadcast

import (
	"encoding/json"
	"log/slog"

	"github.com/Jeff-Emmett/collective-boredom-dial/internal/registry"
)

// Dispatcher fans room-state changes out to live connections.
type Dispatcher struct {
	reg *registry.Registry
}

// New creates a Dispatcher over the given registry.
func New(reg *registry.Registry) *Dispatcher {
	return &Dispatcher{reg: reg}
}

// Broadcast sends the room's current stats to every live connection in it.
// A missing room is a no-op (it may have been evicted mid-flight), and a
// failed send to one connection is logged and skipped, never propagated.
func (d *Dispatcher) Broadcast(roomID string) {
	msg, conns, ok := d.reg.BroadcastSnapshot(roomID)
	if !ok {
		return
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		slog.Error("failed to marshal stats payload", slog.String("room_id", roomID), slog.Any("error", err))
		return
	}

	for _, conn := range conns {
		if !conn.TrySend(payload) {
			slog.Debug("dropped stats payload for slow or closed connection", slog.String("room_id", roomID))
		}
	}
}
