package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/roomchat/internal/store"
)

func TestHubJoinBroadcastAndLeave(t *testing.T) {
	hub := startHub(t, nil, Options{})

	alice := joinNamed(t, hub, "general", "a", "alice")
	bob := NewClient("b", 0)
	res, err := hub.Join(context.Background(), "general", bob)
	if err != nil {
		t.Fatalf("join bob: %v", err)
	}
	if res.Members != 2 {
		t.Fatalf("expected 2 members, got %d", res.Members)
	}

	// Alice sees bob arrive, still anonymous.
	joinEv := mustEvent(t, alice.Events, EventUserJoined)
	if joinEv.User != AnonymousName || joinEv.Room != "general" {
		t.Fatalf("unexpected join event: %+v", joinEv)
	}
	expectNoEvent(t, bob.Events, 50*time.Millisecond)

	if _, err := hub.SendMessage("general", alice.ID, "hi"); err != nil {
		t.Fatalf("send: %v", err)
	}

	msgEv := mustEvent(t, bob.Events, EventNewMessage)
	if msgEv.Message.Body != "hi" || msgEv.Message.Room != "general" || msgEv.Message.Username != "alice" || msgEv.Message.Seq != 1 {
		t.Fatalf("unexpected message event: %+v", msgEv)
	}
	// Sender receives its own echo.
	echo := mustEvent(t, alice.Events, EventNewMessage)
	if echo.Message.Seq != 1 {
		t.Fatalf("unexpected echo: %+v", echo)
	}

	hub.Leave("general", alice.ID)
	leftEv := mustEvent(t, bob.Events, EventUserLeft)
	if leftEv.User != "alice" || leftEv.Room != "general" {
		t.Fatalf("unexpected leave event: %+v", leftEv)
	}
}

func TestHubDoubleJoinProducesAlreadyMember(t *testing.T) {
	hub := startHub(t, nil, Options{})

	alice := joinNamed(t, hub, "general", "a", "alice")
	_, err := hub.Join(context.Background(), "tech", alice)
	if !errors.Is(err, ErrAlreadyMember) {
		t.Fatalf("expected already member error, got %v", err)
	}
	ce, ok := AsCoreError(err)
	if !ok || ce.Code != ErrCodeAlreadyMember {
		t.Fatalf("unexpected error: %+v", err)
	}

	room, _ := hub.Registry().Get("general")
	if room.MemberCount() != 1 {
		t.Fatalf("member set changed: %d", room.MemberCount())
	}
	if _, ok := hub.Registry().Get("tech"); ok {
		t.Fatalf("rejected join must not create a room")
	}
}

func TestHubSendWithoutJoinProducesNotMember(t *testing.T) {
	hub := startHub(t, nil, Options{})
	joinNamed(t, hub, "general", "a", "alice")

	_, err := hub.SendMessage("general", "ghost", "hi")
	if !errors.Is(err, ErrNotMember) {
		t.Fatalf("expected not member error, got %v", err)
	}
	_, err = hub.SendMessage("nowhere", "a", "hi")
	if !errors.Is(err, ErrNotMember) {
		t.Fatalf("expected not member error, got %v", err)
	}
}

func TestHubLeaveIsIdempotent(t *testing.T) {
	hub := startHub(t, nil, Options{})

	alice := joinNamed(t, hub, "general", "a", "alice")
	bob := joinNamed(t, hub, "general", "b", "bob")
	drainEvents(alice.Events)

	hub.Leave("general", bob.ID)
	hub.Leave("general", bob.ID)
	hub.Leave("ghost", bob.ID)

	mustEvent(t, alice.Events, EventUserLeft)
	expectNoEvent(t, alice.Events, 50*time.Millisecond)

	// The client may join again after leaving.
	if _, err := hub.Join(context.Background(), "tech", bob); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
}

func TestHubSetUsernameValidation(t *testing.T) {
	hub := startHub(t, nil, Options{MaxUsernameLength: 8})
	joinNamed(t, hub, "general", "a", "")

	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{name: "empty", input: "", wantErr: ErrValidation},
		{name: "blank", input: "   ", wantErr: ErrValidation},
		{name: "too long", input: strings.Repeat("x", 9), wantErr: ErrValidation},
		{name: "max length", input: strings.Repeat("x", 8)},
		{name: "multibyte within bound", input: "алиса"},
		{name: "repeat is idempotent", input: "алиса"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := hub.SetUsername("a", "general", tt.input)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}

	assert.ErrorIs(t, hub.SetUsername("ghost", "general", "bob"), ErrNotMember)
}

func TestHubUnidentifiedScenario(t *testing.T) {
	hub := startHub(t, nil, Options{})

	alice := joinNamed(t, hub, "tech", "a", "")
	techPeer := joinNamed(t, hub, "tech", "b", "bob")
	other := joinNamed(t, hub, "general", "c", "carol")
	drainEvents(alice.Events)

	_, err := hub.SendMessage("tech", alice.ID, "hello")
	require.ErrorIs(t, err, ErrUnidentifiedClient)
	ce, ok := AsCoreError(err)
	require.True(t, ok)
	assert.Equal(t, ErrCodeUnidentified, ce.Code)
	expectNoEvent(t, techPeer.Events, 50*time.Millisecond)

	require.NoError(t, hub.SetUsername(alice.ID, "tech", "alice"))

	msg, err := hub.SendMessage("tech", alice.ID, "hello")
	require.NoError(t, err)
	assert.Equal(t, int64(1), msg.Seq)

	ev := mustEvent(t, techPeer.Events, EventNewMessage)
	assert.Equal(t, "alice", ev.Message.Username)
	assert.Equal(t, "hello", ev.Message.Body)
	assert.Equal(t, int64(1), ev.Message.Seq)

	expectNoEvent(t, other.Events, 50*time.Millisecond)
}

func TestHubEmptyMessageRejected(t *testing.T) {
	hub := startHub(t, nil, Options{MaxMessageLength: 5})
	joinNamed(t, hub, "tech", "a", "alice")

	_, err := hub.SendMessage("tech", "a", "  ")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = hub.SendMessage("tech", "a", "toolong")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestHubJoinRejectsInvalidRoom(t *testing.T) {
	hub := startHub(t, nil, Options{})

	for _, name := range []string{"", "  ", "a/b", strings.Repeat("r", MaxRoomNameLength+1)} {
		_, err := hub.Join(context.Background(), name, NewClient("x", 0))
		assert.ErrorIs(t, err, ErrValidation, "room %q", name)
	}
	assert.Zero(t, hub.Registry().Len())
}

func TestHubFanOutExactlyOnceInOrder(t *testing.T) {
	hub := startHub(t, nil, Options{})

	const (
		senders = 4
		perSend = 50
	)
	clients := make([]*Client, 0, senders+2)
	for i := range senders + 2 {
		clients = append(clients, joinNamed(t, hub, "busy", fmt.Sprintf("c%d", i), fmt.Sprintf("user%d", i)))
	}
	for _, c := range clients {
		drainEvents(c.Events)
	}

	var wg sync.WaitGroup
	for i := range senders {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			for j := range perSend {
				_, err := hub.SendMessage("busy", c.ID, fmt.Sprintf("%s-%d", c.ID, j))
				assert.NoError(t, err)
			}
		}(clients[i])
	}
	wg.Wait()

	var reference []int64
	for i, c := range clients {
		var got []int64
		for _, ev := range drainEvents(c.Events) {
			require.Equal(t, EventNewMessage, ev.Kind)
			got = append(got, ev.Message.Seq)
		}
		require.Len(t, got, senders*perSend, "client %d", i)
		for k := range got {
			require.Equal(t, int64(k+1), got[k], "client %d sees gap or reorder", i)
		}
		if reference == nil {
			reference = got
		}
		assert.Equal(t, reference, got)
	}
}

func TestHubSlowConsumerDoesNotBlockRoom(t *testing.T) {
	hub := startHub(t, nil, Options{})

	sender := joinNamed(t, hub, "tech", "s", "sender")
	slow := NewClient("slow", 1)
	_, err := hub.Join(context.Background(), "tech", slow)
	require.NoError(t, err)
	drainEvents(sender.Events)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := range 20 {
			_, err := hub.SendMessage("tech", sender.ID, fmt.Sprint(i))
			assert.NoError(t, err)
			<-sender.Events
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("room stalled by a full delivery queue")
	}
	assert.Equal(t, uint64(19), slow.Dropped())
}

func TestHubCachedHistoryScenario(t *testing.T) {
	st := newCountingStore()
	hub := startHub(t, st, Options{})

	alice := joinNamed(t, hub, "gaming", "a", "alice")
	joinNamed(t, hub, "gaming", "b", "bob")
	queriesAfterJoin := st.queries.Load()

	for i := 1; i <= 51; i++ {
		_, err := hub.SendMessage("gaming", alice.ID, fmt.Sprintf("message %d", i))
		require.NoError(t, err)
	}

	history, err := hub.LoadHistory(context.Background(), "gaming", 0)
	require.NoError(t, err)
	require.Len(t, history, 50)
	assert.Equal(t, int64(2), history[0].Seq)
	assert.Equal(t, int64(51), history[49].Seq)
	assert.Equal(t, queriesAfterJoin, st.queries.Load(), "warm cache must answer without a store query")

	require.Eventually(t, func() bool {
		n, _ := st.CountMessages(context.Background(), "gaming")
		return n == 51
	}, 2*time.Second, 10*time.Millisecond)

	full, err := hub.LoadHistory(context.Background(), "gaming", MaxHistoryLimit)
	require.NoError(t, err)
	require.Len(t, full, 51)
	assert.Equal(t, int64(1), full[0].Seq)
	assert.Equal(t, "message 1", full[0].Body)
	assert.Equal(t, queriesAfterJoin+1, st.queries.Load())
}

func TestHubColdLoadHistoryFromStore(t *testing.T) {
	st := newCountingStore()
	ctx := context.Background()
	for i := 1; i <= 1200; i++ {
		require.NoError(t, st.MemoryStore.Insert(ctx, &store.Message{
			ID: fmt.Sprint(i), Room: "archive", Seq: int64(i), Username: "old", Body: fmt.Sprint(i),
		}))
	}
	hub := startHub(t, st, Options{})

	history, err := hub.LoadHistory(ctx, "archive", 5000)
	require.NoError(t, err)
	require.Len(t, history, MaxHistoryLimit)
	assert.Equal(t, int64(201), history[0].Seq)
	assert.Equal(t, int64(1200), history[len(history)-1].Seq)
	assert.Zero(t, hub.Registry().Len(), "history lookups never create rooms")
}

func TestHubSeedsRoomFromStore(t *testing.T) {
	st := newCountingStore()
	ctx := context.Background()
	for i := 1; i <= 60; i++ {
		require.NoError(t, st.MemoryStore.Insert(ctx, &store.Message{ID: fmt.Sprint(i), Room: "tech", Seq: int64(i)}))
	}
	hub := startHub(t, st, Options{})

	c := NewClient("a", 0)
	res, err := hub.Join(ctx, "tech", c)
	require.NoError(t, err)
	require.Len(t, res.History, DefaultCacheSize)
	assert.Equal(t, int64(11), res.History[0].Seq)

	require.NoError(t, hub.SetUsername("a", "tech", "alice"))
	msg, err := hub.SendMessage("tech", "a", "next")
	require.NoError(t, err)
	assert.Equal(t, int64(61), msg.Seq, "seq continues after persisted history")
}

func TestHubSeqContinuesAcrossRoomRecreation(t *testing.T) {
	st := newCountingStore()
	hub := startHub(t, st, Options{})

	a := joinNamed(t, hub, "tech", "a", "alice")
	for range 3 {
		_, err := hub.SendMessage("tech", a.ID, "x")
		require.NoError(t, err)
	}
	hub.Leave("tech", a.ID)

	b := joinNamed(t, hub, "tech", "b", "bob")
	msg, err := hub.SendMessage("tech", b.ID, "y")
	require.NoError(t, err)
	assert.Equal(t, int64(4), msg.Seq)

	require.Eventually(t, func() bool { return len(st.insertedSeqs()) == 4 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []int64{1, 2, 3, 4}, st.insertedSeqs())
}

func TestHubFailedSeedIsRetriedBeforeAssigningSeq(t *testing.T) {
	st := newCountingStore()
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		require.NoError(t, st.MemoryStore.Insert(ctx, &store.Message{
			ID: fmt.Sprint(i), Room: "tech", Seq: int64(i), Username: "old", Body: "old",
		}))
	}
	hub := startHub(t, st, Options{})

	st.failNextQuery.Store(true)
	alice := joinNamed(t, hub, "tech", "a", "alice")

	msg, err := hub.SendMessage("tech", alice.ID, "new")
	require.NoError(t, err)
	assert.Equal(t, int64(4), msg.Seq, "seq continues after the stored history")

	history, err := hub.LoadHistory(ctx, "tech", 100)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4}, seqs(history))
	assert.Equal(t, "old", history[0].Body)
	assert.Equal(t, "new", history[3].Body)
}

func TestHubRejectsSendWhileSeqBaseUnknown(t *testing.T) {
	st := newCountingStore()
	ctx := context.Background()
	for i := 1; i <= 2; i++ {
		require.NoError(t, st.MemoryStore.Insert(ctx, &store.Message{ID: fmt.Sprint(i), Room: "tech", Seq: int64(i)}))
	}
	hub := startHub(t, st, Options{})

	st.failQuery.Store(true)
	alice := joinNamed(t, hub, "tech", "a", "alice")

	_, err := hub.SendMessage("tech", alice.ID, "too early")
	assert.ErrorIs(t, err, ErrPersistence)

	st.failQuery.Store(false)
	msg, err := hub.SendMessage("tech", alice.ID, "now")
	require.NoError(t, err)
	assert.Equal(t, int64(3), msg.Seq)
}

func TestHubPersistenceFailureStillDelivers(t *testing.T) {
	st := newCountingStore()
	st.failInsert.Store(true)

	failures := make(chan ChatMessage, 4)
	hub := startHub(t, st, Options{
		PersistRetries: 1,
		OnPersistFailure: func(msg ChatMessage, err error) {
			if errors.Is(err, ErrPersistence) {
				failures <- msg
			}
		},
	})

	alice := joinNamed(t, hub, "tech", "a", "alice")
	bob := joinNamed(t, hub, "tech", "b", "bob")

	_, err := hub.SendMessage("tech", alice.ID, "still live")
	require.NoError(t, err)
	ev := mustEvent(t, bob.Events, EventNewMessage)
	assert.Equal(t, "still live", ev.Message.Body)

	select {
	case msg := <-failures:
		assert.Equal(t, int64(1), msg.Seq)
	case <-time.After(2 * time.Second):
		t.Fatal("persistence failure not reported")
	}
}

func TestHubLoadHistoryStoreErrorFallsBackToCache(t *testing.T) {
	st := newCountingStore()
	hub := startHub(t, st, Options{})

	alice := joinNamed(t, hub, "tech", "a", "alice")
	_, err := hub.SendMessage("tech", alice.ID, "cached")
	require.NoError(t, err)

	st.failQuery.Store(true)
	history, err := hub.LoadHistory(context.Background(), "tech", 500)
	require.NoError(t, err)
	require.Len(t, history, 1)

	_, err = hub.LoadHistory(context.Background(), "elsewhere", 10)
	assert.ErrorIs(t, err, ErrPersistence)
}

func TestMergeHistoryPrefersCache(t *testing.T) {
	stored := []ChatMessage{{Seq: 1, Body: "s1"}, {Seq: 2, Body: "s2"}, {Seq: 3, Body: "stale"}}
	cached := []ChatMessage{{Seq: 3, Body: "c3"}, {Seq: 4, Body: "c4"}}

	merged := mergeHistory(stored, cached)
	assert.Equal(t, []int64{1, 2, 3, 4}, seqs(merged))
	assert.Equal(t, "c3", merged[2].Body)
}

func TestClampHistoryLimit(t *testing.T) {
	assert.Equal(t, 50, ClampHistoryLimit(0, 50))
	assert.Equal(t, 50, ClampHistoryLimit(-3, 50))
	assert.Equal(t, 7, ClampHistoryLimit(7, 50))
	assert.Equal(t, MaxHistoryLimit, ClampHistoryLimit(99999, 50))
}
