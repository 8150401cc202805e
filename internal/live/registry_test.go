package live

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects payloads sent to one connection.
type recorder struct {
	mu       sync.Mutex
	payloads []any
	fail     bool
}

func (r *recorder) send(payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return fmt.Errorf("transport gone")
	}
	r.payloads = append(r.payloads, payload)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payloads)
}

func TestRegistry_Lifecycle(t *testing.T) {
	reg := NewRegistry()
	rec := &recorder{}

	reg.Register("c1", "u1", "s1", rec.send, nil)
	assert.Equal(t, StateConnecting, reg.State("c1"))
	assert.Equal(t, 1, reg.Len())

	reg.MarkOpen("c1")
	assert.Equal(t, StateOpen, reg.State("c1"))

	reg.MarkClosed("c1")
	assert.Equal(t, StateClosed, reg.State("c1"))

	// CLOSED is terminal.
	reg.MarkOpen("c1")
	assert.Equal(t, StateClosed, reg.State("c1"))

	reg.Unregister("c1")
	assert.Equal(t, 0, reg.Len())
}

func TestRegistry_UnknownConnIsClosed(t *testing.T) {
	reg := NewRegistry()
	assert.Equal(t, StateClosed, reg.State("nope"))
}

func TestRegistry_SendToSessionNoConnections(t *testing.T) {
	reg := NewRegistry()
	assert.False(t, reg.SendToSession("u1", "s1", "hello"))
}

func TestRegistry_SendToSessionSkipsConnecting(t *testing.T) {
	reg := NewRegistry()
	rec := &recorder{}
	reg.Register("c1", "u1", "s1", rec.send, nil)

	// Not yet OPEN, so nothing is delivered.
	assert.False(t, reg.SendToSession("u1", "s1", "hello"))
	assert.Equal(t, 0, rec.count())
}

func TestRegistry_SendToSessionFanOut(t *testing.T) {
	reg := NewRegistry()
	rec1, rec2 := &recorder{}, &recorder{}

	reg.Register("c1", "u1", "s1", rec1.send, nil)
	reg.Register("c2", "u1", "s1", rec2.send, nil)
	reg.MarkOpen("c1")
	reg.MarkOpen("c2")

	assert.True(t, reg.SendToSession("u1", "s1", "hello"))
	assert.Equal(t, 1, rec1.count())
	assert.Equal(t, 1, rec2.count())
}

func TestRegistry_SendToSessionSkipsClosed(t *testing.T) {
	reg := NewRegistry()
	rec1, rec2 := &recorder{}, &recorder{}

	reg.Register("c1", "u1", "s1", rec1.send, nil)
	reg.Register("c2", "u1", "s1", rec2.send, nil)
	reg.MarkOpen("c1")
	reg.MarkOpen("c2")
	reg.MarkClosed("c1")

	assert.True(t, reg.SendToSession("u1", "s1", "hello"))
	assert.Equal(t, 0, rec1.count())
	assert.Equal(t, 1, rec2.count())
}

func TestRegistry_SendToSessionAllFailedIsUndelivered(t *testing.T) {
	reg := NewRegistry()
	rec := &recorder{fail: true}
	reg.Register("c1", "u1", "s1", rec.send, nil)
	reg.MarkOpen("c1")

	assert.False(t, reg.SendToSession("u1", "s1", "hello"))
}

func TestRegistry_SendToSessionIsolatesSessions(t *testing.T) {
	reg := NewRegistry()
	rec1, rec2 := &recorder{}, &recorder{}

	reg.Register("c1", "u1", "s1", rec1.send, nil)
	reg.Register("c2", "u1", "s2", rec2.send, nil)
	reg.MarkOpen("c1")
	reg.MarkOpen("c2")

	assert.True(t, reg.SendToSession("u1", "s1", "hello"))
	assert.Equal(t, 1, rec1.count())
	assert.Equal(t, 0, rec2.count())
}

func TestRegistry_SweepOnce(t *testing.T) {
	reg := NewRegistry()
	rec := &recorder{}

	deadTransport := false
	reg.Register("c1", "u1", "s1", rec.send, func() bool { return !deadTransport })
	reg.Register("c2", "u1", "s1", rec.send, nil)
	reg.Register("c3", "u2", "s9", rec.send, nil)
	reg.MarkOpen("c1")
	reg.MarkOpen("c2")
	reg.MarkOpen("c3")

	assert.Equal(t, 0, reg.SweepOnce())
	assert.Equal(t, 3, reg.Len())

	// c1's transport dies without a close frame; c3 closes cleanly.
	deadTransport = true
	reg.MarkClosed("c3")

	assert.Equal(t, 2, reg.SweepOnce())
	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, StateOpen, reg.State("c2"))
	assert.Equal(t, StateClosed, reg.State("c1"))
	assert.Equal(t, StateClosed, reg.State("c3"))

	// Swept connections no longer receive fan-out.
	require.True(t, reg.SendToSession("u1", "s1", "ping"))
	assert.Equal(t, 1, rec.count())
}

func TestRegistry_ConcurrentChurn(t *testing.T) {
	reg := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("c%d", n)
			rec := &recorder{}
			reg.Register(id, "u1", "s1", rec.send, nil)
			reg.MarkOpen(id)
			reg.SendToSession("u1", "s1", n)
			reg.MarkClosed(id)
			reg.Unregister(id)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, reg.Len())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "CONNECTING", StateConnecting.String())
	assert.Equal(t, "OPEN", StateOpen.String())
	assert.Equal(t, "CLOSED", StateClosed.String())
}
