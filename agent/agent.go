// Package agent is the Agent Facade of spec §3/§4.7: the public surface a
// caller uses to submit transfers and the owner of everything else in this
// tree (wakeup channel, submission queue, active operation table, worker
// goroutine). Grounded on the teacher's stream bundle (transport/api.go),
// which plays the same role for its own collector goroutine: one exported
// type wrapping a lazily-started background loop and a handful of
// channel-backed entry points.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package agent

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/NVIDIA/curlmulti/agent/optable"
	"github.com/NVIDIA/curlmulti/agent/queue"
	"github.com/NVIDIA/curlmulti/agent/reqctx"
	"github.com/NVIDIA/curlmulti/agent/wakeup"
	"github.com/NVIDIA/curlmulti/cos"
	"github.com/NVIDIA/curlmulti/hk"
	"github.com/NVIDIA/curlmulti/nlog"
	"github.com/NVIDIA/curlmulti/stats"
	"github.com/NVIDIA/curlmulti/transport"
)

// Agent is the multi-transfer agent: the concurrency boundary between a
// caller's async request/response calls and the single-threaded transport
// worker loop driving them all.
type Agent struct {
	cfg     Config
	multi   transport.Multi
	factory transport.EasyFactory
	table   *optable.Table
	stats   *stats.Tracker
	hkName  string

	nextToken atomic.Uint64

	// mu guards the worker's running/wake/queue triple. Invariant 1 (spec
	// §4.1): the wakeup channel and the submission queue exist iff a
	// worker goroutine is running, and that fact is decided atomically
	// under this lock — never inferred from a sync.Once that fires once
	// per Agent lifetime.
	mu      sync.Mutex
	running bool
	wake    *wakeup.Chan
	queue   *queue.Queue

	wg sync.WaitGroup

	disposeOnce sync.Once
	disposed    atomic.Bool
}

// New builds an Agent bound to a transport context and the factory it uses
// to mint new easy handles. The worker goroutine is not started until the
// first Submit (spec §3 Agent "lazily created on first submission").
func New(multi transport.Multi, factory transport.EasyFactory, opts ...Option) *Agent {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	a := &Agent{
		cfg:     cfg,
		multi:   multi,
		factory: factory,
		table:   optable.New(),
		stats:   stats.New(),
		hkName:  cos.GenTraceID() + hk.NameSuffix,
	}
	_ = a.multi.SetOption(transport.OptMultiplexing, cfg.Multiplexing)
	_ = a.multi.SetOption(transport.OptMaxHostConnections, cfg.MaxHostConnections)
	if cfg.StatsFlushInterval > 0 {
		hk.Reg(a.hkName, a.flushStats, cfg.StatsFlushInterval)
	}
	return a
}

func (a *Agent) flushStats() time.Duration {
	a.stats.LogSnapshot()
	if a.disposed.Load() {
		return 0
	}
	return a.cfg.StatsFlushInterval
}

// Submit begins a new transfer and returns the opaque token identifying it
// (the same token a later Cancel or RequestUnpause call needs) together
// with its Future. body may be nil for a request with no payload; onCreds
// may be nil if the caller doesn't participate in credential caching (spec
// §4.6 step 4). The token is minted here, synchronously, from a counter
// private to the Agent — it never touches the Active Operation Table,
// which stays the worker goroutine's exclusive domain (spec §5 "worker is
// the table's only mutator") until activate() populates it.
func (a *Agent) Submit(
	cancelCtx context.Context,
	uri string,
	easy transport.Easy,
	body reqctx.RequestBodyStream,
	sink reqctx.ResponseSink,
	onCreds func(uri string, authMask int),
) (uint64, *reqctx.Future) {
	h := &policyHandler{cfg: &a.cfg, onCreds: onCreds}
	ctx := reqctx.New(cancelCtx, body, sink, h)
	ctx.Easy = easy
	ctx.URI = uri
	ctx.SetAgent(a)

	token := a.nextToken.Inc()
	ctx.SetToken(token)

	if a.disposed.Load() {
		ctx.Fail(cos.ErrOperationCanceled)
		return token, ctx.Future()
	}

	a.push(queue.Submission{Kind: queue.KindNew, Ctx: ctx, Token: token})
	a.stats.IncSubmitted()
	return token, ctx.Future()
}

// NewEasy is a convenience that goes through the Agent's EasyFactory, for
// callers that don't want to construct transport.Easy handles themselves.
func (a *Agent) NewEasy() (transport.Easy, error) {
	return a.factory.NewEasy()
}

// Cancel implements reqctx.AgentRef: called either by a caller directly,
// token in hand, or by a Request Context's own cancellation watcher (spec
// §9).
func (a *Agent) Cancel(token uint64) {
	a.push(queue.Submission{Kind: queue.KindCancel, Token: token})
}

// RequestUnpause resumes a paused transfer — the caller's signal that it
// has freed space for more response data or produced more request body
// (spec §4.4 Pause disposition, §4.6 "Unpause" submission).
func (a *Agent) RequestUnpause(token uint64) {
	a.push(queue.Submission{Kind: queue.KindUnpause, Token: token})
}

// NoteCallbackAbort implements reqctx.AgentRef: a transport callback
// panicked on the worker goroutine and was converted into an abort
// instead of taking the process down.
func (a *Agent) NoteCallbackAbort() { a.stats.IncCallbackAbort() }

var _ reqctx.AgentRef = (*Agent)(nil)

// StatsHandler exposes the Agent's Prometheus registry, the collaborator
// cmd/curlmultid mounts under /metrics (spec §8.2).
func (a *Agent) StatsHandler() http.Handler { return a.stats.Handler() }

// push enqueues s, lazily starting (or restarting, after an idle exit) the
// worker goroutine under the same lock that decides whether one is
// running — the atomicity Invariant 1 requires: a submission can never
// race a worker's idle-exit decision and fall into a gap where nobody is
// listening.
func (a *Agent) push(s queue.Submission) {
	a.mu.Lock()
	if a.disposed.Load() {
		a.mu.Unlock()
		if s.Kind == queue.KindNew {
			s.Ctx.Fail(cos.ErrOperationCanceled)
		}
		return
	}
	a.ensureWorkerLocked()
	q := a.queue
	q.Push(s)
	a.mu.Unlock()
	a.stats.SetQueueDepth(q.Len())
}

// ensureWorkerLocked spawns a fresh worker generation if one isn't
// already running. Must be called with a.mu held.
func (a *Agent) ensureWorkerLocked() {
	if a.running {
		return
	}
	a.running = true
	a.wake = wakeup.New()
	a.queue = queue.New(a.wake)
	a.stats.IncWorkerRestart()
	w := a.wake
	q := a.queue
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.run(w, q)
	}()
}

// tryExitIdle is called by the worker when Wait times out with nothing to
// do. It re-drains the queue one last time under a.mu so that a
// submission racing the exit decision is never lost: either this drain
// picks it up and the worker keeps running, or the worker commits to
// exiting and the next push() (which necessarily happens after, since it
// also takes a.mu) starts the next generation itself (spec §4.6 step 6,
// the "Burst then idle" testable property).
func (a *Agent) tryExitIdle(q *queue.Queue) (exited bool, pending []queue.Submission) {
	a.mu.Lock()
	defer a.mu.Unlock()
	pending = q.DrainAll()
	if len(pending) > 0 || a.table.Len() > 0 {
		return false, pending
	}
	a.running = false
	a.wake = nil
	a.queue = nil
	return true, nil
}

// Dispose stops the worker and releases the transport context. Any
// transfers still active are failed with cos.ErrOperationCanceled (spec
// §4.7 "abrupt shutdown").
func (a *Agent) Dispose() {
	a.disposeOnce.Do(func() {
		a.disposed.Store(true)
		hk.Unreg(a.hkName)

		a.mu.Lock()
		q, w := a.queue, a.wake
		a.mu.Unlock()
		if q != nil {
			q.Close()
			w.Post()
		}

		a.wg.Wait()
		if err := a.multi.Close(); err != nil {
			nlog.Warningf("agent: closing transport context: %v", err)
		}
	})
}
