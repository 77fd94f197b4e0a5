package snapshot

import (
	"sync"
	"testing"
	"time"

	"github.com/itohio/insole/pkg/sensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_EmptyTimesOut(t *testing.T) {
	c := New()

	start := time.Now()
	_, ok := c.Wait(30 * time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	_, ok = c.Peek()
	assert.False(t, ok)
}

func TestCache_SingleDelivery(t *testing.T) {
	c := New()
	now := time.Now()
	c.Publish(Snapshot{Timestamp: now, Values: sensor.Reading{"fsr0": 1.5}})

	got, ok := c.Wait(time.Second)
	require.True(t, ok)
	assert.Equal(t, now, got.Timestamp)
	assert.Equal(t, sensor.Reading{"fsr0": 1.5}, got.Values)

	start := time.Now()
	_, ok = c.Wait(40 * time.Millisecond)
	assert.False(t, ok, "second wait without a publish must time out")
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)

	peek, ok := c.Peek()
	require.True(t, ok)
	assert.Equal(t, 1.5, peek.Values["fsr0"])
}

func TestCache_LatestWins(t *testing.T) {
	c := New()
	c.Publish(Snapshot{Values: sensor.Reading{"fsr0": 1}})
	c.Publish(Snapshot{Values: sensor.Reading{"fsr0": 2}})
	c.Publish(Snapshot{Values: sensor.Reading{"fsr0": 3}})

	got, ok := c.Wait(time.Second)
	require.True(t, ok)
	assert.Equal(t, 3.0, got.Values["fsr0"])

	_, ok = c.Wait(20 * time.Millisecond)
	assert.False(t, ok)
}

func TestCache_WaitWakesOnPublish(t *testing.T) {
	c := New()

	go func() {
		time.Sleep(20 * time.Millisecond)
		c.Publish(Snapshot{Values: sensor.Reading{"fsr1": 0.7}})
	}()

	got, ok := c.Wait(2 * time.Second)
	require.True(t, ok)
	assert.Equal(t, 0.7, got.Values["fsr1"])
}

func TestCache_ReturnsCopies(t *testing.T) {
	c := New()
	values := sensor.Reading{"fsr0": 1}
	c.Publish(Snapshot{Values: values})
	values["fsr0"] = 99

	got, ok := c.Wait(time.Second)
	require.True(t, ok)
	assert.Equal(t, 1.0, got.Values["fsr0"])

	got.Values["fsr0"] = 42
	peek, _ := c.Peek()
	assert.Equal(t, 1.0, peek.Values["fsr0"])
}

func TestCache_ConcurrentReaders(t *testing.T) {
	c := New()
	const readers = 8

	var wg sync.WaitGroup
	var mu sync.Mutex
	var delivered []float64

	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s, ok := c.Wait(time.Second); ok {
				mu.Lock()
				delivered = append(delivered, s.Values["fsr0"])
				mu.Unlock()
			}
		}()
	}

	// Give every reader time to block before the publish.
	time.Sleep(50 * time.Millisecond)
	c.Publish(Snapshot{Values: sensor.Reading{"fsr0": 1}})
	wg.Wait()

	require.Len(t, delivered, readers, "a publish wakes every blocked waiter")
	for _, v := range delivered {
		assert.Equal(t, 1.0, v)
	}

	// Readiness was cleared by the woken waiters.
	_, ok := c.Wait(20 * time.Millisecond)
	assert.False(t, ok)
}

func TestCache_ZeroTimeout(t *testing.T) {
	c := New()

	_, ok := c.Wait(0)
	assert.False(t, ok, "nothing published")

	c.Publish(Snapshot{Values: sensor.Reading{"fsr0": 2}})
	for i := 0; i < 100; i++ {
		got, ok := c.Wait(0)
		require.True(t, ok, "pending reading must be returned without waiting")
		assert.Equal(t, 2.0, got.Values["fsr0"])

		_, ok = c.Wait(0)
		require.False(t, ok)

		c.Publish(Snapshot{Values: sensor.Reading{"fsr0": 2}})
	}
}
