package websocket

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"dm-chat-service/pkg/logger"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestRelayBreaker_OpensAfterThreshold(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	b := newRelayBreaker(3, time.Minute, logger.NewNop())
	b.now = clock.Now

	errBoom := errors.New("boom")
	for i := 0; i < 2; i++ {
		require.True(t, b.allow())
		b.failure(errBoom)
	}
	assert.False(t, b.isOpen())

	b.failure(errBoom)
	assert.True(t, b.isOpen())
	assert.False(t, b.allow())
	assert.Equal(t, 3, b.stats()["errorCount"])
}

func TestRelayBreaker_SuccessResetsCount(t *testing.T) {
	b := newRelayBreaker(2, time.Minute, logger.NewNop())

	b.failure(errors.New("boom"))
	b.success()
	b.failure(errors.New("boom"))

	assert.False(t, b.isOpen())
}

func TestRelayBreaker_HalfOpenProbe(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	b := newRelayBreaker(1, time.Minute, logger.NewNop())
	b.now = clock.Now

	b.failure(errors.New("boom"))
	require.True(t, b.isOpen())

	clock.Advance(time.Minute + time.Second)
	assert.True(t, b.allow(), "one probe after the timeout")
	assert.False(t, b.allow(), "no second probe in the same window")

	b.success()
	assert.False(t, b.isOpen())
	assert.True(t, b.allow())
}

type failingRelay struct {
	mu        sync.Mutex
	publishes int
}

func (r *failingRelay) PublishRoomMessage(context.Context, string, []byte) error {
	r.mu.Lock()
	r.publishes++
	r.mu.Unlock()
	return errors.New("relay down")
}

func (r *failingRelay) SubscribeRooms(context.Context) (*redis.PubSub, error) {
	return nil, errors.New("relay down")
}

func (r *failingRelay) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.publishes
}

func TestHub_RelayFailureFallsBackAndTripsBreaker(t *testing.T) {
	relay := &failingRelay{}
	hub := newTestHub(t, &memoryChat{}, Options{Relay: relay})
	hub.relayActive.Store(true)

	u1 := newTestClient(hub, "u1")
	u2 := newTestClient(hub, "u2")
	hub.Join(u1, roomU1U2)
	hub.Join(u2, roomU1U2)

	for i := 0; i < 5; i++ {
		hub.dispatch(u1, roomU1U2, "hello")
	}

	assert.Len(t, drain(t, u2), 5, "every message is delivered locally")
	assert.Equal(t, defaultBreakerThreshold, relay.count(), "publishing stops once the circuit opens")
	assert.True(t, hub.relayBreaker.isOpen())
}
