package services

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu        sync.Mutex
	events    []interface{}
	failWrite bool
}

func (c *fakeConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWrite {
		return errors.New("write failed")
	}
	c.events = append(c.events, v)
	return nil
}

func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) received() []interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]interface{}, len(c.events))
	copy(out, c.events)
	return out
}

func TestPresenceDeliverToBoundConnection(t *testing.T) {
	p := NewPresenceRouter()
	conn := &fakeConn{}

	unbind := p.Bind("bob", conn)
	defer unbind()

	assert.True(t, p.Deliver("bob", "hello"))
	require.Len(t, conn.received(), 1)
	assert.Equal(t, "hello", conn.received()[0])
}

func TestPresenceDeliverOfflineReportsMiss(t *testing.T) {
	p := NewPresenceRouter()
	assert.False(t, p.Deliver("nobody", "hello"))
}

func TestPresenceMultiTabFanOut(t *testing.T) {
	p := NewPresenceRouter()
	tab1 := &fakeConn{}
	tab2 := &fakeConn{}

	unbind1 := p.Bind("bob", tab1)
	unbind2 := p.Bind("bob", tab2)
	defer unbind2()

	assert.True(t, p.Deliver("bob", "first"))
	assert.Len(t, tab1.received(), 1)
	assert.Len(t, tab2.received(), 1)

	// Closing one tab must not affect the other.
	unbind1()
	assert.True(t, p.Deliver("bob", "second"))
	assert.Len(t, tab1.received(), 1)
	require.Len(t, tab2.received(), 2)
	assert.Equal(t, []interface{}{"first", "second"}, tab2.received())
}

func TestPresenceDeliveryOrderPerConnection(t *testing.T) {
	p := NewPresenceRouter()
	conn := &fakeConn{}
	unbind := p.Bind("bob", conn)
	defer unbind()

	for i := 0; i < 10; i++ {
		assert.True(t, p.Deliver("bob", i))
	}

	got := conn.received()
	require.Len(t, got, 10)
	for i := 0; i < 10; i++ {
		assert.Equal(t, i, got[i])
	}
}

func TestPresenceUnbindIsIdempotent(t *testing.T) {
	p := NewPresenceRouter()
	conn := &fakeConn{}

	unbind := p.Bind("bob", conn)
	unbind()
	unbind() // second call is a no-op

	assert.False(t, p.Online("bob"))
	assert.False(t, p.Deliver("bob", "late"))
}

func TestPresenceFailedConnectionIsDropped(t *testing.T) {
	p := NewPresenceRouter()
	broken := &fakeConn{failWrite: true}
	healthy := &fakeConn{}

	unbindBroken := p.Bind("bob", broken)
	defer unbindBroken()
	unbindHealthy := p.Bind("bob", healthy)
	defer unbindHealthy()

	// Delivery still counts as online because one connection took it.
	assert.True(t, p.Deliver("bob", "hello"))
	assert.Empty(t, broken.received())
	assert.Len(t, healthy.received(), 1)
}

func TestPresenceConcurrentBindAndDeliver(t *testing.T) {
	p := NewPresenceRouter()

	var wg sync.WaitGroup
	conns := make([]*fakeConn, 20)
	for i := range conns {
		conns[i] = &fakeConn{}
		wg.Add(1)
		go func(c *fakeConn) {
			defer wg.Done()
			unbind := p.Bind("bob", c)
			_ = unbind
		}(conns[i])
	}
	wg.Wait()

	assert.True(t, p.Online("bob"))
	assert.True(t, p.Deliver("bob", "fanout"))
	for _, c := range conns {
		assert.Len(t, c.received(), 1)
	}
}
