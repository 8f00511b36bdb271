package real

import (
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
	"go.uber.org/goleak"
)

func nextFire(t *testing.T, tm *TimerManager) Fire {
	select {
	case f := <-tm.Fired():
		return f
	case <-time.After(5 * time.Second):
		t.Fatal("timer did not fire")
		return Fire{}
	}
}

func TestTimerFires(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	tm := NewTimerManager(8)
	defer tm.Close()

	tm.SetTimer("a", 10*time.Millisecond, true)
	assert.Equal(t, tm.Pending(), 1)
	f := nextFire(t, tm)
	assert.Equal(t, f.Name, "a")
	assert.Equal(t, tm.Claim(f), true)
	assert.Equal(t, tm.Pending(), 0)
	// a fire is delivered once
	assert.Equal(t, tm.Claim(f), false)
}

func TestTimerOnceKeepsExisting(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	tm := NewTimerManager(8)
	defer tm.Close()

	tm.SetTimer("a", 10*time.Millisecond, true)
	tm.SetTimer("a", time.Hour, false)
	f := nextFire(t, tm)
	assert.Equal(t, tm.Claim(f), true)
}

func TestTimerOverrideDropsStaleFire(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	tm := NewTimerManager(8)
	defer tm.Close()

	tm.SetTimer("a", time.Millisecond, true)
	stale := nextFire(t, tm)
	tm.SetTimer("a", 20*time.Millisecond, true)
	assert.Equal(t, tm.Claim(stale), false)
	f := nextFire(t, tm)
	assert.Equal(t, tm.Claim(f), true)
}

func TestTimerCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	tm := NewTimerManager(8)

	tm.SetTimer("a", time.Millisecond, true)
	f := nextFire(t, tm)
	tm.CancelTimer("a")
	assert.Equal(t, tm.Claim(f), false)

	tm.SetTimer("b", time.Hour, true)
	tm.SetTimer("c", time.Hour, true)
	assert.Equal(t, tm.Pending(), 2)
	tm.Close()
	assert.Equal(t, tm.Pending(), 0)
	tm.SetTimer("d", time.Millisecond, true)
	assert.Equal(t, tm.Pending(), 0)
}
