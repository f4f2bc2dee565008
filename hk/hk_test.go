package hk_test

import (
	"testing"
	"time"

	"github.com/NVIDIA/curlmulti/hk"
)

func TestRegFiresAndReschedules(t *testing.T) {
	hk.TestInit()

	fired := make(chan struct{}, 8)
	calls := 0
	hk.Reg("probe", func() time.Duration {
		calls++
		fired <- struct{}{}
		if calls >= 3 {
			return 0 // unregister
		}
		return time.Millisecond
	}, time.Millisecond)

	for i := 0; i < 3; i++ {
		select {
		case <-fired:
		case <-time.After(time.Second):
			t.Fatalf("job did not fire in time (call %d)", i)
		}
	}
}

func TestUnregStopsFutureFires(t *testing.T) {
	hk.TestInit()

	fired := make(chan struct{}, 8)
	hk.Reg("probe2", func() time.Duration {
		fired <- struct{}{}
		return time.Millisecond
	}, time.Millisecond)

	<-fired
	hk.Unreg("probe2")

	// Drain whatever was already in flight, then make sure nothing new
	// shows up.
	drain := time.After(20 * time.Millisecond)
loop:
	for {
		select {
		case <-fired:
		case <-drain:
			break loop
		}
	}
	select {
	case <-fired:
		t.Fatal("job fired after Unreg")
	case <-time.After(20 * time.Millisecond):
	}
}
