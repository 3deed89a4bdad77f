package registry

import (
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Jeff-Emmett/collective-boredom-dial/internal/ident"
)

// fakeConn is a recording stand-in for a live websocket session.
type fakeConn struct {
	sent   [][]byte
	closed bool
	full   bool
}

func (f *fakeConn) TrySend(payload []byte) bool {
	if f.full {
		return false
	}
	f.sent = append(f.sent, payload)
	return true
}

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

func newTestRegistry() *Registry {
	return New("global", "The Global Dial")
}

func TestNew_SeedsGlobalRoom(t *testing.T) {
	req := require.New(t)
	reg := newTestRegistry()

	req.Equal(1, reg.RoomCount())
	stats, _, name, ok := reg.Stats("global")
	req.True(ok)
	req.Equal("The Global Dial", name)
	req.Equal(0, stats.Count)
	req.Equal(50, stats.Average)
}

func TestCreateRoom_DefaultName(t *testing.T) {
	req := require.New(t)
	reg := newTestRegistry()

	roomID, roomName := reg.CreateRoom("")
	req.True(ident.IsRoomCode(roomID))
	req.Equal("Room "+roomID, roomName)

	_, blankName := reg.CreateRoom("   ")
	req.Contains(blankName, "Room ")
}

func TestCreateRoom_ExplicitName(t *testing.T) {
	req := require.New(t)
	reg := newTestRegistry()

	roomID, roomName := reg.CreateRoom("Team Sync")
	req.Len(roomID, 6)
	req.Equal("Team Sync", roomName)
	req.Equal(2, reg.RoomCount())
}

func TestJoin_ExistingRoom(t *testing.T) {
	req := require.New(t)
	reg := newTestRegistry()
	roomID, roomName := reg.CreateRoom("Team Sync")

	res := reg.Join(roomID, "", &fakeConn{})
	req.Equal(roomID, res.RoomID)
	req.Equal(roomName, res.RoomName)
	req.Equal(50, res.Boredom)
	req.Equal(1, res.Stats.Count)
	req.Equal(50, res.Stats.Average)
	req.Len(res.UserID, 16)
}

func TestJoin_WellFormedCodeCreatesRoom(t *testing.T) {
	req := require.New(t)
	reg := newTestRegistry()

	res := reg.Join("ZZ99AA", "", &fakeConn{})
	req.Equal("ZZ99AA", res.RoomID)
	req.Equal("Room ZZ99AA", res.RoomName)
	req.Equal(2, reg.RoomCount())
}

func TestJoin_LowercaseCodeResolvesUppercaseRoom(t *testing.T) {
	req := require.New(t)
	reg := newTestRegistry()
	roomID, _ := reg.CreateRoom("")

	res := reg.Join(strings.ToLower(roomID), "", &fakeConn{})
	req.Equal(roomID, res.RoomID)

	lower := reg.Join("zz99aa", "", &fakeConn{})
	req.Equal("ZZ99AA", lower.RoomID)
}

func TestJoin_InvalidCodeFallsBackToGlobal(t *testing.T) {
	req := require.New(t)
	reg := newTestRegistry()

	for _, id := range []string{"not-a-code", "", "x", "way-too-long-for-a-code"} {
		res := reg.Join(id, "", &fakeConn{})
		req.Equal("global", res.RoomID, "join with %q should land in the global room", id)
	}
	// The fallback never creates rooms.
	req.Equal(1, reg.RoomCount())
}

func TestJoin_TruncatesName(t *testing.T) {
	req := require.New(t)
	reg := newTestRegistry()
	roomID, _ := reg.CreateRoom("")

	res := reg.Join(roomID, "abcdefghijklmnopqrstuvwxyz", &fakeConn{})
	req.Equal(1, res.Stats.Count)
	req.NotNil(res.Stats.Individuals[0].Name)
	req.Equal("abcdefghijklmnopqrst", *res.Stats.Individuals[0].Name)
}

func TestUpdateValue_ClampInvariant(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want int
	}{
		{"negative", -50, 0},
		{"zero", 0, 0},
		{"rounds down", 49.4, 49},
		{"rounds up", 49.5, 50},
		{"in range", 80, 80},
		{"above range", 150, 100},
		{"just above", 100.2, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			reg := newTestRegistry()
			roomID, _ := reg.CreateRoom("")
			res := reg.Join(roomID, "", &fakeConn{})

			req.True(reg.UpdateValue(roomID, res.UserID, tt.in))

			stats, _, _, ok := reg.Stats(roomID)
			req.True(ok)
			req.Equal(tt.want, stats.Individuals[0].Boredom)
		})
	}
}

func TestUpdateValue_UnknownParticipant(t *testing.T) {
	reg := newTestRegistry()
	require.False(t, reg.UpdateValue("global", "nobody", 80))
	require.False(t, reg.UpdateValue("missing", "nobody", 80))
}

func TestSetName_TruncationInvariant(t *testing.T) {
	req := require.New(t)
	reg := newTestRegistry()
	roomID, _ := reg.CreateRoom("")
	res := reg.Join(roomID, "", &fakeConn{})

	req.False(reg.SetName(roomID, res.UserID, ""))
	req.True(reg.SetName(roomID, res.UserID, "abcdefghijklmnopqrstuvwxyz"))

	stats, _, _, _ := reg.Stats(roomID)
	req.NotNil(stats.Individuals[0].Name)
	req.Equal("abcdefghijklmnopqrst", *stats.Individuals[0].Name)
	req.LessOrEqual(len(*stats.Individuals[0].Name), 20)
}

func TestStats_EmptyRoomHasNeutralAverage(t *testing.T) {
	req := require.New(t)
	reg := newTestRegistry()
	roomID, _ := reg.CreateRoom("")

	stats, _, _, ok := reg.Stats(roomID)
	req.True(ok)
	req.Equal(0, stats.Count)
	req.Equal(50, stats.Average)
	req.Empty(stats.Individuals)
}

func TestStats_MeanRounding(t *testing.T) {
	req := require.New(t)
	reg := newTestRegistry()
	roomID, _ := reg.CreateRoom("")

	a := reg.Join(roomID, "", &fakeConn{})
	b := reg.Join(roomID, "", &fakeConn{})
	req.True(reg.UpdateValue(roomID, a.UserID, 80))
	req.True(reg.UpdateValue(roomID, b.UserID, 50))

	stats, _, _, _ := reg.Stats(roomID)
	req.Equal(2, stats.Count)
	req.Equal(65, stats.Average)

	// round((80+50+0)/3) = round(43.33) = 43
	c := reg.Join(roomID, "", &fakeConn{})
	req.True(reg.UpdateValue(roomID, c.UserID, 0))
	stats, _, _, _ = reg.Stats(roomID)
	req.Equal(43, stats.Average)
}

func TestStats_CaseInsensitiveLookup(t *testing.T) {
	req := require.New(t)
	reg := newTestRegistry()
	roomID, _ := reg.CreateRoom("Team Sync")

	stats, canonical, name, ok := reg.Stats(strings.ToLower(roomID))
	req.True(ok)
	req.Equal(roomID, canonical, "lookup reports the canonical identifier")
	req.Equal("Team Sync", name)
	req.Equal(0, stats.Count)

	// The global room's identifier matches exactly, before any uppercasing.
	_, canonical, _, ok = reg.Stats("global")
	req.True(ok)
	req.Equal("global", canonical)
}

func TestStats_MissingRoom(t *testing.T) {
	reg := newTestRegistry()
	_, _, _, ok := reg.Stats("ABSENT")
	require.False(t, ok)
}

func TestStats_NameIsNullWhenUnset(t *testing.T) {
	req := require.New(t)
	reg := newTestRegistry()
	roomID, _ := reg.CreateRoom("")
	reg.Join(roomID, "", &fakeConn{})

	stats, _, _, _ := reg.Stats(roomID)
	req.Nil(stats.Individuals[0].Name)
}

func TestNudgeToward_DriftStep(t *testing.T) {
	req := require.New(t)
	reg := newTestRegistry()
	req.True(reg.SeedBot("global", "bot-1", "Bot", 50))

	// drift = (100-50)*0.1 = 5, zero noise
	req.True(reg.NudgeToward("global", "bot-1", 100, 0))
	stats, _, _, _ := reg.Stats("global")
	req.Equal(55, stats.Individuals[0].Boredom)

	// Next step pulls 10% of the remaining 45: 55 + 4.5 = 59.5, reported
	// rounded to 60 while the stored value stays unrounded.
	req.True(reg.NudgeToward("global", "bot-1", 100, 0))
	stats, _, _, _ = reg.Stats("global")
	req.Equal(60, stats.Individuals[0].Boredom)
}

func TestNudgeToward_Clamps(t *testing.T) {
	req := require.New(t)
	reg := newTestRegistry()
	reg.SeedBot("global", "bot-1", "Bot", 99)

	req.True(reg.NudgeToward("global", "bot-1", 100, 50))
	stats, _, _, _ := reg.Stats("global")
	req.Equal(100, stats.Individuals[0].Boredom)

	req.True(reg.NudgeToward("global", "bot-1", 0, -500))
	stats, _, _, _ = reg.Stats("global")
	req.Equal(0, stats.Individuals[0].Boredom)
}

func TestNudgeToward_MissingEntriesAreNoops(t *testing.T) {
	reg := newTestRegistry()
	require.False(t, reg.NudgeToward("global", "bot-1", 100, 0))
	require.False(t, reg.NudgeToward("ABSENT", "bot-1", 100, 0))
}

func TestLeave_RemovesParticipant(t *testing.T) {
	req := require.New(t)
	reg := newTestRegistry()
	roomID, _ := reg.CreateRoom("")
	res := reg.Join(roomID, "", &fakeConn{})

	req.True(reg.Leave(roomID, res.UserID))
	stats, _, _, _ := reg.Stats(roomID)
	req.Equal(0, stats.Count)

	// Idempotent and safe after eviction.
	req.False(reg.Leave(roomID, res.UserID))
	req.False(reg.Leave("ABSENT", res.UserID))
}

func TestEvictIdleRooms(t *testing.T) {
	req := require.New(t)
	reg := newTestRegistry()

	oldEmpty, _ := reg.CreateRoom("old empty")
	oldBusy, _ := reg.CreateRoom("old busy")
	youngEmpty, _ := reg.CreateRoom("young empty")
	reg.Join(oldBusy, "", &fakeConn{})

	// Backdate creation times past the idle threshold.
	reg.mu.Lock()
	reg.rooms[oldEmpty].CreatedAt = time.Now().Add(-2 * time.Hour)
	reg.rooms[oldBusy].CreatedAt = time.Now().Add(-2 * time.Hour)
	reg.rooms["global"].CreatedAt = time.Now().Add(-100 * time.Hour)
	reg.mu.Unlock()

	evicted := reg.EvictIdleRooms(time.Hour)
	req.Equal(1, evicted)

	_, _, _, ok := reg.Stats(oldEmpty)
	req.False(ok, "old empty room should be evicted")
	_, _, _, ok = reg.Stats(oldBusy)
	req.True(ok, "room with a live participant stays")
	_, _, _, ok = reg.Stats(youngEmpty)
	req.True(ok, "young room stays")
	_, _, _, ok = reg.Stats("global")
	req.True(ok, "the global room is never evicted")
}

func TestEvictIdleRooms_NeverEvictsGlobalEvenWhenEmpty(t *testing.T) {
	reg := newTestRegistry()
	reg.mu.Lock()
	reg.rooms["global"].CreatedAt = time.Now().Add(-1000 * time.Hour)
	reg.mu.Unlock()

	require.Equal(t, 0, reg.EvictIdleRooms(time.Nanosecond))
	require.Equal(t, 1, reg.RoomCount())
}

func TestGlobalLiveCount_ExcludesBots(t *testing.T) {
	req := require.New(t)
	reg := newTestRegistry()
	reg.SeedBot("global", "bot-1", "Bot", 70)
	req.Equal(0, reg.GlobalLiveCount())

	reg.Join("global", "", &fakeConn{})
	req.Equal(1, reg.GlobalLiveCount())
}

func TestBroadcastSnapshot_LiveConnsOnly(t *testing.T) {
	req := require.New(t)
	reg := newTestRegistry()
	reg.SeedBot("global", "bot-1", "Bot", 70)
	conn := &fakeConn{}
	reg.Join("global", "", conn)

	msg, conns, ok := reg.BroadcastSnapshot("global")
	req.True(ok)
	req.Equal("stats", msg.Type)
	req.Equal("global", msg.RoomID)
	req.Equal("The Global Dial", msg.RoomName)
	req.Equal(2, msg.Count)
	req.Len(conns, 1, "bots have no connection handle")

	_, _, ok = reg.BroadcastSnapshot("ABSENT")
	req.False(ok)
}

// countingConn is safe for concurrent TrySend, unlike fakeConn.
type countingConn struct {
	sends atomic.Int64
}

func (c *countingConn) TrySend([]byte) bool {
	c.sends.Add(1)
	return true
}

func (c *countingConn) Close() error { return nil }

// Interleaves every mutation source the registry serves: joins, updates,
// leaves, broadcast snapshots, bot nudges, sweeps, and stats reads. Run
// with -race to catch locking regressions.
func TestRegistry_ConcurrentSources(t *testing.T) {
	req := require.New(t)
	reg := newTestRegistry()
	req.True(reg.SeedBot("global", "bot-1", "Bot", 70))
	roomID, _ := reg.CreateRoom("busy")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				res := reg.Join(roomID, "", &countingConn{})
				reg.UpdateValue(roomID, res.UserID, float64(j))
				if msg, conns, ok := reg.BroadcastSnapshot(roomID); ok {
					for _, c := range conns {
						c.TrySend([]byte(msg.RoomID))
					}
				}
				reg.Leave(roomID, res.UserID)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 100; j++ {
			reg.NudgeToward("global", "bot-1", 100, 0)
			reg.EvictIdleRooms(time.Hour)
			reg.Stats(roomID)
			reg.GlobalLiveCount()
		}
	}()

	wg.Wait()

	stats, _, _, ok := reg.Stats(roomID)
	req.True(ok, "a fresh room is never evicted mid-test")
	req.Equal(0, stats.Count, "every joiner left")
	req.Equal(2, reg.RoomCount())
}

func TestCloseAll_ClosesLiveConnections(t *testing.T) {
	req := require.New(t)
	reg := newTestRegistry()
	roomID, _ := reg.CreateRoom("")
	a := &fakeConn{}
	b := &fakeConn{}
	reg.Join(roomID, "", a)
	reg.Join("global", "", b)

	reg.CloseAll()
	req.True(a.closed)
	req.True(b.closed)
}
