// Package registry owns all room and participant state. Every mutation and
// every snapshot runs as one short critical section under the registry
// mutex; no lock is ever held across a network send.
package registry

import (
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/Jeff-Emmett/collective-boredom-dial/internal/ident"
	"github.com/Jeff-Emmett/collective-boredom-dial/internal/models"
)

// defaultBoredom is the value a participant starts with and the average
// reported for an empty room.
const defaultBoredom = 50

// maxNameLen is the display-name cap applied on join and rename.
const maxNameLen = 20

// Conn is a non-owning handle to a participant's live connection. TrySend
// must be non-blocking and best-effort; Close gives the client a clean
// closure signal on shutdown.
type Conn interface {
	TrySend(payload []byte) bool
	Close() error
}

// Participant is one contributor to a room's aggregate. Bots have no Conn;
// live participants lose their entry when the Conn goes away.
type Participant struct {
	ID    string
	Value float64
	Name  string
	Bot   bool
	Conn  Conn
}

// Room holds a participant table keyed by participant ID.
type Room struct {
	ID           string
	Name         string
	CreatedAt    time.Time
	Global       bool
	participants map[string]*Participant
}

// Registry maps room IDs to rooms. It is constructed with a permanent
// global room that is never evicted.
type Registry struct {
	mu       sync.Mutex
	rooms    map[string]*Room
	globalID string
}

// New creates a Registry seeded with the global room.
func New(globalID, globalName string) *Registry {
	r := &Registry{
		rooms:    make(map[string]*Room),
		globalID: globalID,
	}
	r.rooms[globalID] = &Room{
		ID:           globalID,
		Name:         globalName,
		CreatedAt:    time.Now(),
		Global:       true,
		participants: make(map[string]*Participant),
	}
	return r
}

// GlobalID returns the identifier of the permanent global room.
func (r *Registry) GlobalID() string {
	return r.globalID
}

// CreateRoom allocates a fresh room code and stores a new empty room.
// A blank name resolves to "Room <code>".
func (r *Registry) CreateRoom(name string) (roomID, roomName string) {
	roomID = ident.NewRoomCode()
	roomName = resolveRoomName(name, roomID)

	r.mu.Lock()
	r.rooms[roomID] = newRoom(roomID, roomName)
	r.mu.Unlock()

	slog.Info("room created", slog.String("room_id", roomID), slog.String("room_name", roomName))
	return roomID, roomName
}

// RoomCount returns the number of rooms currently in the registry,
// including the global room.
func (r *Registry) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// GlobalLiveCount returns the number of live (non-bot) participants in the
// global room.
func (r *Registry) GlobalLiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	global := r.rooms[r.globalID]
	count := 0
	for _, p := range global.participants {
		if !p.Bot {
			count++
		}
	}
	return count
}

// JoinResult carries everything the session needs to build its welcome
// message without touching the registry again.
type JoinResult struct {
	UserID   string
	RoomID   string
	RoomName string
	Boredom  int
	Stats    models.RoomStats
}

// Join resolves the requested room (creating it or falling back to the
// global room as needed), inserts a live participant with the default
// value, and returns a consistent snapshot for the welcome message.
func (r *Registry) Join(requestedID, name string, conn Conn) JoinResult {
	userID := ident.NewParticipantID()
	if len(name) > maxNameLen {
		name = name[:maxNameLen]
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	room := r.resolveForJoin(requestedID)
	room.participants[userID] = &Participant{
		ID:    userID,
		Value: defaultBoredom,
		Name:  name,
		Conn:  conn,
	}

	return JoinResult{
		UserID:   userID,
		RoomID:   room.ID,
		RoomName: room.Name,
		Boredom:  defaultBoredom,
		Stats:    computeStats(room),
	}
}

// resolveForJoin is the join-time room resolution policy. Three branches:
// the room exists (as addressed or uppercased), the identifier is a
// well-formed code for a room that does not exist yet (create it on the
// fly), or the identifier is malformed (fall back to the global room).
// It never fails: every connection resolves to some existing room.
// Callers must hold r.mu.
func (r *Registry) resolveForJoin(requestedID string) *Room {
	if room, ok := r.lookup(requestedID); ok {
		return room
	}

	code := ident.Normalize(requestedID)
	if ident.IsRoomCode(code) {
		room := newRoom(code, resolveRoomName("", code))
		r.rooms[code] = room
		slog.Info("room auto-created on join", slog.String("room_id", code))
		return room
	}

	return r.rooms[r.globalID]
}

// Leave removes a live participant from its room. Safe to call after the
// room has been evicted; reports whether an entry was actually removed.
func (r *Registry) Leave(roomID, userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	if _, ok := room.participants[userID]; !ok {
		return false
	}
	delete(room.participants, userID)
	return true
}

// UpdateValue stores a participant's self-reported value, clamped and
// rounded to an integer in [0,100].
func (r *Registry) UpdateValue(roomID, userID string, value float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participant(roomID, userID)
	if !ok {
		return false
	}
	p.Value = math.Round(clampValue(value))
	return true
}

// SetName stores a participant's display name, truncated to 20 characters.
func (r *Registry) SetName(roomID, userID, name string) bool {
	if name == "" {
		return false
	}
	if len(name) > maxNameLen {
		name = name[:maxNameLen]
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participant(roomID, userID)
	if !ok {
		return false
	}
	p.Name = name
	return true
}

// NudgeToward applies one simulation tick to a participant: pull 10% of the
// remaining distance to target, add the caller-supplied noise, clamp to
// [0,100]. The value is deliberately not rounded here; rounding happens at
// stats time. Reports false when the room or participant is gone.
func (r *Registry) NudgeToward(roomID, userID string, target, noise float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participant(roomID, userID)
	if !ok {
		return false
	}
	drift := (target - p.Value) * 0.1
	p.Value = clampValue(p.Value + drift + noise)
	return true
}

// SeedBot inserts an automated participant. Bot entries persist for the
// lifetime of the process.
func (r *Registry) SeedBot(roomID, botID, name string, value float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	room.participants[botID] = &Participant{
		ID:    botID,
		Value: value,
		Name:  name,
		Bot:   true,
	}
	return true
}

// Stats computes the aggregate for a room. Lookup accepts the same
// case-insensitive identifiers that joins do; roomID and roomName carry the
// room's canonical identity. ok is false when the room does not exist.
func (r *Registry) Stats(requestedID string) (stats models.RoomStats, roomID, roomName string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, found := r.lookup(requestedID)
	if !found {
		return models.RoomStats{}, "", "", false
	}
	return computeStats(room), room.ID, room.Name, true
}

// BroadcastSnapshot returns the serializable stats message for a room plus
// the live connection handles present at snapshot time. Sends happen
// outside the lock; the payload is immutable once built.
func (r *Registry) BroadcastSnapshot(roomID string) (msg models.StatsMessage, conns []Conn, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, found := r.rooms[roomID]
	if !found {
		return models.StatsMessage{}, nil, false
	}

	msg = models.StatsMessage{
		Type:      models.MessageTypeStats,
		RoomID:    room.ID,
		RoomName:  room.Name,
		RoomStats: computeStats(room),
	}
	for _, p := range room.participants {
		if p.Conn != nil {
			conns = append(conns, p.Conn)
		}
	}
	return msg, conns, true
}

// EvictIdleRooms removes every non-global room that has no live
// participants and is older than idleFor. Returns the number evicted.
func (r *Registry) EvictIdleRooms(idleFor time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, room := range r.rooms {
		if room.Global {
			continue
		}
		if len(room.participants) > 0 {
			continue
		}
		if time.Since(room.CreatedAt) <= idleFor {
			continue
		}
		delete(r.rooms, id)
		evicted++
		slog.Info("idle room evicted", slog.String("room_id", id), slog.String("room_name", room.Name))
	}
	return evicted
}

// CloseAll closes every live connection in every room. Used on orderly
// shutdown so clients get a clean closure signal.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	var conns []Conn
	for _, room := range r.rooms {
		for _, p := range room.participants {
			if p.Conn != nil {
				conns = append(conns, p.Conn)
			}
		}
	}
	r.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
}

// lookup resolves a room by exact identifier first, then by its uppercased
// form, so explicit identifiers like the global room's are never masked by
// code normalization. Callers must hold r.mu.
func (r *Registry) lookup(roomID string) (*Room, bool) {
	if room, ok := r.rooms[roomID]; ok {
		return room, true
	}
	room, ok := r.rooms[ident.Normalize(roomID)]
	return room, ok
}

// participant looks up an entry; callers must hold r.mu.
func (r *Registry) participant(roomID, userID string) (*Participant, bool) {
	room, ok := r.rooms[roomID]
	if !ok {
		return nil, false
	}
	p, ok := room.participants[userID]
	return p, ok
}

// computeStats is pure given the participant table contents: count of all
// entries, round-to-nearest mean (50 for an empty table), and the rounded
// per-participant breakdown. Callers must hold r.mu.
func computeStats(room *Room) models.RoomStats {
	entries := lo.Values(room.participants)

	average := defaultBoredom
	if len(entries) > 0 {
		sum := lo.SumBy(entries, func(p *Participant) float64 { return p.Value })
		average = int(math.Round(sum / float64(len(entries))))
	}

	individuals := lo.Map(entries, func(p *Participant, _ int) models.Individual {
		ind := models.Individual{
			UserID:  p.ID,
			Boredom: int(math.Round(p.Value)),
			IsBot:   p.Bot,
		}
		if p.Name != "" {
			name := p.Name
			ind.Name = &name
		}
		return ind
	})

	return models.RoomStats{
		Average:     average,
		Count:       len(entries),
		Individuals: individuals,
	}
}

func newRoom(id, name string) *Room {
	return &Room{
		ID:           id,
		Name:         name,
		CreatedAt:    time.Now(),
		participants: make(map[string]*Participant),
	}
}

func resolveRoomName(name, code string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "Room " + code
	}
	return name
}

func clampValue(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
