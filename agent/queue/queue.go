// Package queue implements the Incoming Submission Queue of spec §3/§4.5:
// the thread-safe handoff from arbitrary caller goroutines into the single
// worker goroutine. Grounded on the teacher's SQ/SCQ split in
// transport/sendmsg.go (a mutex-guarded slice drained in bulk by the one
// consumer, paired with a signal to wake it), adapted here to carry typed
// submissions instead of PDU frames.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package queue

import (
	"sync"

	"github.com/NVIDIA/curlmulti/agent/reqctx"
	"github.com/NVIDIA/curlmulti/agent/wakeup"
)

// Kind tags the three submission shapes the worker understands (spec §4.5,
// §4.6).
type Kind int

const (
	KindNew Kind = iota
	KindCancel
	KindUnpause
)

// Submission is one entry in the Incoming Submission Queue. Ctx is set for
// KindNew; Token (the opaque handle returned from an earlier KindNew) is
// set for KindCancel and KindUnpause.
type Submission struct {
	Kind  Kind
	Ctx   *reqctx.Context
	Token uint64
}

// Queue is the FIFO itself: Push is safe from any goroutine, DrainAll is
// meant for the worker alone.
type Queue struct {
	wake *wakeup.Chan

	mu      sync.Mutex
	pending []Submission
	closed  bool
}

func New(wake *wakeup.Chan) *Queue {
	return &Queue{wake: wake}
}

// Push enqueues a submission and posts a wakeup so the worker's blocking
// Wait returns promptly (spec §4.5 Invariant "submission always wakes the
// worker"). Push on a closed queue is a silent no-op: the agent is
// disposing and no longer guarantees delivery (spec §4.7).
func (q *Queue) Push(s Submission) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.pending = append(q.pending, s)
	q.mu.Unlock()
	q.wake.Post()
}

// DrainAll removes and returns every pending submission in FIFO order.
// Called once per worker loop iteration (spec §4.6 step 1).
func (q *Queue) DrainAll() []Submission {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	out := q.pending
	q.pending = nil
	return out
}

// Close stops accepting new submissions; already-queued ones are still
// returned by a subsequent DrainAll.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

// Len reports how many submissions are currently pending, for the Agent's
// QueueDepth gauge.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
