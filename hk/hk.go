// Package hk provides a single shared housekeeping goroutine that runs
// registered callbacks at their own intervals, so a process hosting many
// Agents doesn't pay for one ticker goroutine per Agent. Adapted from the
// housekeeping contract referenced throughout the teacher tree (compare
// transport/api.go's hk.Unreg(h.hkName + hk.NameSuffix)).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package hk

import (
	"container/heap"
	"sync"
	"time"

	"github.com/NVIDIA/curlmulti/nlog"
)

const NameSuffix = ".hk"

// F returns the delay until the next run; returning <= 0 unregisters it.
type F func() time.Duration

type job struct {
	name  string
	f     F
	due   time.Time
	index int
}

type jobHeap []*job

func (h jobHeap) Len() int            { return len(h) }
func (h jobHeap) Less(i, j int) bool  { return h[i].due.Before(h[j].due) }
func (h jobHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *jobHeap) Push(x any)         { j := x.(*job); j.index = len(*h); *h = append(*h, j) }
func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	j := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return j
}

type housekeeper struct {
	mu      sync.Mutex
	byName  map[string]*job
	heap    jobHeap
	wake    chan struct{}
	started bool
}

var dflt = &housekeeper{byName: make(map[string]*job)}

const tick = 20 * time.Millisecond

// Reg registers f to first run after initial, then again after whatever
// duration f itself returns.
func Reg(name string, f F, initial time.Duration) {
	dflt.mu.Lock()
	defer dflt.mu.Unlock()
	j := &job{name: name, f: f, due: time.Now().Add(initial)}
	dflt.byName[name] = j
	heap.Push(&dflt.heap, j)
	dflt.ensureRunningLocked()
	dflt.wakeLocked()
}

func Unreg(name string) {
	dflt.mu.Lock()
	defer dflt.mu.Unlock()
	j, ok := dflt.byName[name]
	if !ok {
		return
	}
	delete(dflt.byName, name)
	heap.Remove(&dflt.heap, j.index)
}

func (h *housekeeper) ensureRunningLocked() {
	if h.started {
		return
	}
	h.started = true
	h.wake = make(chan struct{}, 1)
	go h.run()
}

func (h *housekeeper) wakeLocked() {
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

func (h *housekeeper) run() {
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-t.C:
		case <-h.wake:
		}
		h.fire()
	}
}

func (h *housekeeper) fire() {
	now := time.Now()
	for {
		h.mu.Lock()
		if len(h.heap) == 0 || h.heap[0].due.After(now) {
			h.mu.Unlock()
			return
		}
		j := heap.Pop(&h.heap).(*job)
		delete(h.byName, j.name)
		h.mu.Unlock()

		next := j.f()
		if next > 0 {
			j.due = time.Now().Add(next)
			h.mu.Lock()
			h.byName[j.name] = j
			heap.Push(&h.heap, j)
			h.mu.Unlock()
		}
	}
}

// TestInit resets the shared housekeeper; intended for test isolation only.
func TestInit() {
	dflt.mu.Lock()
	defer dflt.mu.Unlock()
	if len(dflt.heap) > 0 {
		nlog.Warningf("hk: TestInit with %d jobs still registered", len(dflt.heap))
	}
	dflt.byName = make(map[string]*job)
	dflt.heap = nil
}
