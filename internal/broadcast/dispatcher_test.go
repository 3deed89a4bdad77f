package broadcast

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Jeff-Emmett/collective-boredom-dial/internal/models"
	"github.com/Jeff-Emmett/collective-boredom-dial/internal/registry"
)

type fakeConn struct {
	sent [][]byte
	full bool
}

func (f *fakeConn) TrySend(payload []byte) bool {
	if f.full {
		return false
	}
	f.sent = append(f.sent, payload)
	return true
}

func (f *fakeConn) Close() error { return nil }

func TestBroadcast_DeliversIdenticalPayloadToAllLiveConnections(t *testing.T) {
	req := require.New(t)
	reg := registry.New("global", "The Global Dial")
	reg.SeedBot("global", "bot-1", "Bot", 70)
	a := &fakeConn{}
	b := &fakeConn{}
	reg.Join("global", "", a)
	reg.Join("global", "", b)

	New(reg).Broadcast("global")

	req.Len(a.sent, 1)
	req.Len(b.sent, 1)
	req.Equal(a.sent[0], b.sent[0])

	var msg models.StatsMessage
	req.NoError(json.Unmarshal(a.sent[0], &msg))
	req.Equal(models.MessageTypeStats, msg.Type)
	req.Equal("global", msg.RoomID)
	req.Equal(3, msg.Count, "bot entries count toward the aggregate")
	req.Len(msg.Individuals, 3)
}

func TestBroadcast_MissingRoomIsNoop(t *testing.T) {
	reg := registry.New("global", "The Global Dial")
	// The room may have been evicted mid-flight; must not panic or error.
	New(reg).Broadcast("ABSENT")
}

func TestBroadcast_FailedSendDoesNotBlockOthers(t *testing.T) {
	req := require.New(t)
	reg := registry.New("global", "The Global Dial")
	roomID, _ := reg.CreateRoom("")
	stuck := &fakeConn{full: true}
	healthy := &fakeConn{}
	reg.Join(roomID, "", stuck)
	reg.Join(roomID, "", healthy)

	New(reg).Broadcast(roomID)

	req.Empty(stuck.sent)
	req.Len(healthy.sent, 1)
}

func TestBroadcast_EmptyRoomHasNoRecipients(t *testing.T) {
	reg := registry.New("global", "The Global Dial")
	roomID, _ := reg.CreateRoom("")
	// Nothing to assert beyond not panicking; no live connections exist.
	New(reg).Broadcast(roomID)
}

// discardConn is stateless and therefore safe to share across goroutines.
type discardConn struct{}

func (discardConn) TrySend([]byte) bool { return true }
func (discardConn) Close() error        { return nil }

// Broadcasts race joins and leaves on the same room. Run with -race.
func TestBroadcast_ConcurrentWithJoinsAndLeaves(t *testing.T) {
	reg := registry.New("global", "The Global Dial")
	roomID, _ := reg.CreateRoom("")
	dispatcher := New(reg)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				res := reg.Join(roomID, "", discardConn{})
				dispatcher.Broadcast(roomID)
				reg.Leave(roomID, res.UserID)
				dispatcher.Broadcast(roomID)
			}
		}()
	}
	wg.Wait()
}
