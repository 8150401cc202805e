package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCache is an in-test CacheStore without expiry.
type fakeCache struct {
	mu      sync.Mutex
	entries map[string]*SessionMemory
	broken  bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]*SessionMemory)}
}

func (f *fakeCache) Get(_ context.Context, key string) (*SessionMemory, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.broken {
		return nil, false
	}
	mem, ok := f.entries[key]
	if !ok {
		return nil, false
	}
	return mem.Clone(), true
}

func (f *fakeCache) Set(_ context.Context, key string, mem *SessionMemory, _ time.Duration) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.broken {
		return false
	}
	f.entries[key] = mem.Clone()
	return true
}

func (f *fakeCache) Delete(_ context.Context, key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, key)
	return true
}

// fakeDurable is an in-test DurableStore that can be told to fail.
type fakeDurable struct {
	mu       sync.Mutex
	entries  map[string]*SessionMemory
	failGet  bool
	failPut  bool
	putCount int
}

func newFakeDurable() *fakeDurable {
	return &fakeDurable{entries: make(map[string]*SessionMemory)}
}

func (f *fakeDurable) key(userID, sessionID string) string { return userID + "/" + sessionID }

func (f *fakeDurable) Get(_ context.Context, userID, sessionID string) (*SessionMemory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGet {
		return nil, fmt.Errorf("%w: get refused", ErrDurableUnavailable)
	}
	mem, ok := f.entries[f.key(userID, sessionID)]
	if !ok {
		return nil, nil
	}
	return mem.Clone(), nil
}

func (f *fakeDurable) Put(_ context.Context, userID, sessionID string, mem *SessionMemory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putCount++
	if f.failPut {
		return fmt.Errorf("%w: put refused", ErrDurableUnavailable)
	}
	f.entries[f.key(userID, sessionID)] = mem.Clone()
	return nil
}

func (f *fakeDurable) puts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.putCount
}

func turn(n int) ConversationTurn {
	return ConversationTurn{
		MessageID:    fmt.Sprintf("m%d", n),
		InboundText:  fmt.Sprintf("question %d", n),
		OutboundText: fmt.Sprintf("answer %d", n),
		Channel:      "widget",
		Timestamp:    time.Now(),
	}
}

func TestManager_GetContextEmptyWhenUnknown(t *testing.T) {
	mgr := NewManager(newFakeCache(), nil)

	mem := mgr.GetContext(context.Background(), "u1", "widget:u1")
	require.NotNil(t, mem)
	assert.Equal(t, "u1", mem.UserID)
	assert.Equal(t, "widget:u1", mem.SessionID)
	assert.Empty(t, mem.History)
}

func TestManager_AppendTurnReadYourWrites(t *testing.T) {
	mgr := NewManager(newFakeCache(), nil)

	mgr.AppendTurn(context.Background(), "u1", "s1", turn(1))

	mem := mgr.GetContext(context.Background(), "u1", "s1")
	require.Len(t, mem.History, 1)
	assert.Equal(t, "question 1", mem.History[0].InboundText)
	assert.False(t, mem.LastInteraction.IsZero())
}

func TestManager_BoundedWindowEvictsOldest(t *testing.T) {
	mgr := NewManager(newFakeCache(), nil, WithWindow(10))

	for i := 1; i <= 11; i++ {
		mgr.AppendTurn(context.Background(), "u1", "s1", turn(i))
	}

	mem := mgr.GetContext(context.Background(), "u1", "s1")
	require.Len(t, mem.History, 10)
	// Turn #1 (oldest) was discarded; #2..#11 remain in order.
	assert.Equal(t, "m2", mem.History[0].MessageID)
	assert.Equal(t, "m11", mem.History[9].MessageID)
}

func TestManager_WindowHeldUnderConcurrentAppends(t *testing.T) {
	mgr := NewManager(newFakeCache(), nil, WithWindow(5))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			mgr.AppendTurn(context.Background(), "u1", "s1", turn(n))
		}(i)
	}
	wg.Wait()

	mem := mgr.GetContext(context.Background(), "u1", "s1")
	assert.LessOrEqual(t, len(mem.History), 5)
}

func TestManager_GetContextFallsThroughToDurable(t *testing.T) {
	durable := newFakeDurable()
	stored := NewSessionMemory("u1", "s1")
	stored.Append(turn(1), 10)
	require.NoError(t, durable.Put(context.Background(), "u1", "s1", stored))

	mgr := NewManager(newFakeCache(), durable)

	mem := mgr.GetContext(context.Background(), "u1", "s1")
	require.Len(t, mem.History, 1)
	assert.Equal(t, "m1", mem.History[0].MessageID)

	// Second read must come from the cache: break durable and read again.
	durable.failGet = true
	mem = mgr.GetContext(context.Background(), "u1", "s1")
	assert.Len(t, mem.History, 1)
}

func TestManager_GetContextNeverFailsOnDurableError(t *testing.T) {
	durable := newFakeDurable()
	durable.failGet = true
	mgr := NewManager(newFakeCache(), durable)

	var mem *SessionMemory
	assert.NotPanics(t, func() {
		mem = mgr.GetContext(context.Background(), "u1", "s1")
	})
	require.NotNil(t, mem)
	assert.Empty(t, mem.History)
}

func TestManager_AppendTurnSurvivesDurablePutFailure(t *testing.T) {
	durable := newFakeDurable()
	durable.failPut = true
	mgr := NewManager(newFakeCache(), durable)

	mgr.AppendTurn(context.Background(), "u1", "s1", turn(1))

	// Cache write happened synchronously regardless of the replica.
	mem := mgr.GetContext(context.Background(), "u1", "s1")
	assert.Len(t, mem.History, 1)

	// Single attempt, no retry loop.
	assert.Eventually(t, func() bool { return durable.puts() == 1 },
		time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, durable.puts())
}

func TestManager_AppendTurnReplicatesToDurable(t *testing.T) {
	durable := newFakeDurable()
	mgr := NewManager(newFakeCache(), durable)

	mgr.AppendTurn(context.Background(), "u1", "s1", turn(1))

	assert.Eventually(t, func() bool {
		mem, err := durable.Get(context.Background(), "u1", "s1")
		return err == nil && mem != nil && len(mem.History) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestManager_DurableRoundTripPreservesOrder(t *testing.T) {
	durable := newFakeDurable()
	mgr := NewManager(newFakeCache(), durable)

	for i := 1; i <= 3; i++ {
		mgr.AppendTurn(context.Background(), "u1", "s1", turn(i))
	}

	assert.Eventually(t, func() bool {
		mem, _ := durable.Get(context.Background(), "u1", "s1")
		return mem != nil && len(mem.History) == 3
	}, time.Second, 10*time.Millisecond)

	// Cold cache: the durable replica must reproduce the same history.
	mgr2 := NewManager(newFakeCache(), durable)
	mem := mgr2.GetContext(context.Background(), "u1", "s1")
	require.Len(t, mem.History, 3)
	assert.Equal(t, "m1", mem.History[0].MessageID)
	assert.Equal(t, "m3", mem.History[2].MessageID)
}

func TestManager_ForgetDropsCacheEntry(t *testing.T) {
	mgr := NewManager(newFakeCache(), nil)
	mgr.AppendTurn(context.Background(), "u1", "s1", turn(1))

	mgr.Forget(context.Background(), "u1", "s1")

	mem := mgr.GetContext(context.Background(), "u1", "s1")
	assert.Empty(t, mem.History)
}

func TestSessionMemory_AppendSetsInteractionTimes(t *testing.T) {
	mem := NewSessionMemory("u1", "s1")
	first := turn(1)
	mem.Append(first, 10)

	assert.Equal(t, first.Timestamp, mem.FirstInteraction)
	assert.Equal(t, first.Timestamp, mem.LastInteraction)

	second := turn(2)
	second.Timestamp = first.Timestamp.Add(time.Minute)
	mem.Append(second, 10)

	assert.Equal(t, first.Timestamp, mem.FirstInteraction)
	assert.Equal(t, second.Timestamp, mem.LastInteraction)
}

func TestSessionMemory_CloneIsDeep(t *testing.T) {
	mem := NewSessionMemory("u1", "s1")
	mem.Append(turn(1), 10)

	cp := mem.Clone()
	cp.History[0].InboundText = "mutated"

	assert.Equal(t, "question 1", mem.History[0].InboundText)
}

func TestErrDurableUnavailableWrapping(t *testing.T) {
	err := fmt.Errorf("%w: HTTP 503", ErrDurableUnavailable)
	assert.True(t, errors.Is(err, ErrDurableUnavailable))
}
