package hub

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/werewolf-backend/internal/engine"
	"github.com/DoyleJ11/werewolf-backend/internal/protocol"
	"github.com/DoyleJ11/werewolf-backend/internal/room"
)

// codes hands out a fixed sequence of room codes.
func codes(seq ...string) func(int) (string, error) {
	var mu sync.Mutex
	i := 0
	return func(int) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if i >= len(seq) {
			return "", errors.New("out of codes")
		}
		c := seq[i]
		i++
		return c, nil
	}
}

type stubTickers struct {
	ticks   chan time.Time
	stopped atomic.Int32
}

func (s *stubTickers) Create(time.Duration) (<-chan time.Time, func()) {
	return s.ticks, func() { s.stopped.Add(1) }
}

func newTestHub(t *testing.T, cfg Config) *Hub {
	t.Helper()
	h := NewHub(context.Background(), cfg)
	t.Cleanup(h.Shutdown)
	return h
}

func join(t *testing.T, h *Hub, connID, code string) (JoinResult, chan protocol.Message) {
	t.Helper()
	out := make(chan protocol.Message, 64)
	res, err := h.Join(context.Background(), JoinRequest{ConnID: connID, Username: "user-" + connID, Code: code, Outbox: out})
	require.NoError(t, err)
	return res, out
}

func TestHub_JoinWithoutCodeCreatesRoom(t *testing.T) {
	h := newTestHub(t, Config{GenerateCode: codes("AAAAA")})

	res, out := join(t, h, "c1", "")
	assert.Equal(t, "AAAAA", res.Code)
	assert.Equal(t, []protocol.PlayerView{{ID: "c1", Username: "user-c1"}}, res.Players)

	m := <-out
	assert.Equal(t, protocol.EvtJoined, m.Event)
	assert.Equal(t, protocol.Joined{Room: "AAAAA"}, m.Data)

	rm, ok := h.Lookup(context.Background(), "AAAAA")
	require.True(t, ok)
	assert.Equal(t, "AAAAA", rm.Code())
}

func TestHub_SecondJoinLandsInSameRoom(t *testing.T) {
	h := newTestHub(t, Config{GenerateCode: codes("AAAAA", "BBBBB")})

	first, _ := join(t, h, "c1", "")
	second, _ := join(t, h, "c2", first.Code)

	assert.Equal(t, first.Code, second.Code)
	assert.Len(t, second.Players, 2)
}

func TestHub_UnknownCodeGetsAFreshCode(t *testing.T) {
	h := newTestHub(t, Config{GenerateCode: codes("AAAAA")})

	res, _ := join(t, h, "c1", "ZZZZZ")
	assert.Equal(t, "AAAAA", res.Code)

	_, ok := h.Lookup(context.Background(), "ZZZZZ")
	assert.False(t, ok)
}

func TestHub_CodeCollisionRegenerates(t *testing.T) {
	h := newTestHub(t, Config{GenerateCode: codes("AAAAA", "AAAAA", "AAAAA", "CCCCC")})

	first, _ := join(t, h, "c1", "")
	second, _ := join(t, h, "c2", "")

	assert.Equal(t, "AAAAA", first.Code)
	assert.Equal(t, "CCCCC", second.Code)
}

func TestHub_CodeGeneratorFailure(t *testing.T) {
	h := newTestHub(t, Config{GenerateCode: codes()})

	_, err := h.Join(context.Background(), JoinRequest{ConnID: "c1", Outbox: make(chan protocol.Message, 4)})
	assert.Error(t, err)
}

func TestHub_ConnectionCannotJoinTwice(t *testing.T) {
	h := newTestHub(t, Config{GenerateCode: codes("AAAAA", "BBBBB")})
	join(t, h, "c1", "")

	_, err := h.Join(context.Background(), JoinRequest{ConnID: "c1", Outbox: make(chan protocol.Message, 4)})
	assert.ErrorIs(t, err, ErrAlreadyInRoom)
}

func TestHub_LastLeaveRemovesRoom(t *testing.T) {
	h := newTestHub(t, Config{GenerateCode: codes("AAAAA", "BBBBB")})
	ctx := context.Background()

	res, _ := join(t, h, "c1", "")
	join(t, h, "c2", res.Code)
	rm, ok := h.Lookup(ctx, res.Code)
	require.True(t, ok)

	require.NoError(t, h.Leave(ctx, "c1"))
	_, ok = h.Lookup(ctx, res.Code)
	assert.True(t, ok, "one member left")

	require.NoError(t, h.Leave(ctx, "c2"))
	_, ok = h.Lookup(ctx, res.Code)
	assert.False(t, ok)

	select {
	case <-rm.Done():
	default:
		t.Fatalf("room goroutine still running after removal")
	}

	// the old code is not reused by a rejoin that asks for it
	again, _ := join(t, h, "c3", res.Code)
	assert.Equal(t, "BBBBB", again.Code)
}

func TestHub_LeaveUnknownConnectionIsNoop(t *testing.T) {
	h := newTestHub(t, Config{})
	assert.NoError(t, h.Leave(context.Background(), "nobody"))
}

func TestHub_ConnectionCanJoinAgainAfterLeaving(t *testing.T) {
	h := newTestHub(t, Config{GenerateCode: codes("AAAAA", "BBBBB")})
	ctx := context.Background()

	res, _ := join(t, h, "c1", "")
	rm, _ := h.Lookup(ctx, res.Code)
	require.NoError(t, h.Leave(ctx, "c1"))
	<-rm.Done()

	again, _ := join(t, h, "c1", "")
	assert.Equal(t, "BBBBB", again.Code)
}

func TestHub_JoinStartedGameIsRejected(t *testing.T) {
	h := newTestHub(t, Config{
		GenerateCode: codes("AAAAA"),
		Room:         room.Config{Tickers: &stubTickers{ticks: make(chan time.Time)}},
	})
	ctx := context.Background()

	for _, id := range []string{"c1", "c2", "c3", "c4"} {
		join(t, h, id, "AAAAA")
	}
	rm, _ := h.Lookup(ctx, "AAAAA")
	require.True(t, rm.Send(room.StartGame{PlayerID: "c1"}))

	_, err := h.Join(ctx, JoinRequest{ConnID: "late", Code: "AAAAA", Outbox: make(chan protocol.Message, 4)})
	assert.ErrorIs(t, err, room.ErrGameInProgress)

	// a rejected connection is not tracked
	assert.NoError(t, h.Leave(ctx, "late"))
	v, err := rm.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, v.Members)
}

func TestHub_TeardownStopsPhaseTimer(t *testing.T) {
	tickers := &stubTickers{ticks: make(chan time.Time)}
	h := newTestHub(t, Config{
		GenerateCode: codes("AAAAA"),
		Room:         room.Config{Tickers: tickers},
	})
	ctx := context.Background()

	for _, id := range []string{"c1", "c2", "c3", "c4"} {
		join(t, h, id, "AAAAA")
	}
	rm, ok := h.Lookup(ctx, "AAAAA")
	require.True(t, ok)

	require.True(t, rm.Send(room.StartGame{PlayerID: "c1", Composition: engine.Composition{engine.RoleWerewolf: 1, engine.RoleVillager: 3}}))
	v, err := rm.State(ctx)
	require.NoError(t, err)
	require.Equal(t, engine.PhaseNight, v.Phase)
	require.True(t, v.TimerRunning)

	for _, id := range []string{"c1", "c2", "c3", "c4"} {
		require.NoError(t, h.Leave(ctx, id))
	}

	_, ok = h.Lookup(ctx, "AAAAA")
	assert.False(t, ok)
	assert.EqualValues(t, 1, tickers.stopped.Load())

	select {
	case tickers.ticks <- time.Now():
		t.Fatalf("phase timer still listening after teardown")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_ShutdownStopsRooms(t *testing.T) {
	h := NewHub(context.Background(), Config{GenerateCode: codes("AAAAA", "BBBBB")})
	ctx := context.Background()

	join(t, h, "c1", "")
	join(t, h, "c2", "")
	a, _ := h.Lookup(ctx, "AAAAA")
	b, _ := h.Lookup(ctx, "BBBBB")

	h.Shutdown()
	h.Shutdown()

	for _, rm := range []*room.Room{a, b} {
		select {
		case <-rm.Done():
		default:
			t.Fatalf("room %s survived hub shutdown", rm.Code())
		}
	}

	_, err := h.Join(ctx, JoinRequest{ConnID: "c3", Outbox: make(chan protocol.Message, 1)})
	assert.ErrorIs(t, err, ErrClosed)
	_, ok := h.Lookup(ctx, "AAAAA")
	assert.False(t, ok)
}

func TestGenerateCode(t *testing.T) {
	seen := map[string]bool{}
	for range 200 {
		c, err := GenerateCode(DefaultCodeLength)
		require.NoError(t, err)
		require.Len(t, c, DefaultCodeLength)
		for _, r := range c {
			assert.Contains(t, codeCharset, string(r))
		}
		seen[c] = true
	}
	assert.Greater(t, len(seen), 190)
}
