package clock

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManual_AdvanceAndStop(t *testing.T) {
	m := NewManual()
	var a, b int

	stopA := m.Every(time.Second, func() { a++ })
	m.Every(time.Second, func() { b++ })
	assert.Equal(t, 2, m.Active())

	m.Advance(3)
	assert.Equal(t, 3, a)
	assert.Equal(t, 3, b)

	stopA()
	stopA()
	assert.Equal(t, 1, m.Active())

	m.Advance(1)
	assert.Equal(t, 3, a)
	assert.Equal(t, 4, b)
}

func TestManual_StopInsideCallback(t *testing.T) {
	m := NewManual()
	count := 0
	var stop func()
	stop = m.Every(time.Second, func() {
		count++
		stop()
	})

	m.Advance(5)
	assert.Equal(t, 1, count)
	assert.Equal(t, 0, m.Active())
}

func TestTicker_Every(t *testing.T) {
	var fired atomic.Int32
	stop := New().Every(5*time.Millisecond, func() { fired.Add(1) })

	assert.Eventually(t, func() bool { return fired.Load() >= 2 }, time.Second, time.Millisecond)

	stop()
	// Allow an in-flight callback to finish before sampling.
	time.Sleep(20 * time.Millisecond)
	after := fired.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, fired.Load())
}
