package agent

import (
	"context"
	"net/http"

	"github.com/NVIDIA/curlmulti/agent/curlcb"
	"github.com/NVIDIA/curlmulti/agent/optable"
	"github.com/NVIDIA/curlmulti/agent/queue"
	"github.com/NVIDIA/curlmulti/agent/reqctx"
	"github.com/NVIDIA/curlmulti/agent/wakeup"
	"github.com/NVIDIA/curlmulti/cos"
	"github.com/NVIDIA/curlmulti/nlog"
)

// run is one generation of the Worker Loop of spec §3/§4.6: the single
// goroutine that owns the transport context end to end for as long as
// there's work to do. Its shape — drain submissions, perform until
// quiescent, reap completions, wait — mirrors the teacher's
// transport/collect.go collector loop (drain ctrlCh, service the idle
// heap, block for the next tick or signal). Unlike that loop, this one
// actually exits when idle (spec §4.6 step 6): wake and q belong to this
// generation alone, and Agent.push starts a new generation the next time
// somebody has work for it.
func (a *Agent) run(wake *wakeup.Chan, q *queue.Queue) {
	ctx := context.Background()

	// failActive retires every in-flight transfer with a worker-level
	// (Perform or Wait) error.
	failActive := func(err error) {
		for _, c := range a.table.Snapshot() {
			a.table.Remove(optable.Token(c.Token()))
			_ = a.multi.RemoveHandle(c.Easy)
			c.Fail(err)
			c.Cleanup()
			a.stats.IncFailed()
		}
	}

	for {
		a.drainSubmissions(q.DrainAll())

		for {
			callAgain, err := a.multi.Perform(ctx)
			if err != nil {
				nlog.Errorf("agent: perform: %v", err)
				failActive(err)
				break
			}
			if !callAgain {
				break
			}
		}

		a.reapCompletions()
		a.stats.SetActiveTransfers(a.table.Len())

		if a.disposed.Load() {
			a.shutdownActive()
			return
		}

		activity, err := a.multi.Wait(ctx, wake.C(), a.cfg.IdleTimeout)
		if err != nil {
			nlog.Warningf("agent: wait: %v", err)
			failActive(err)
			continue
		}
		if activity {
			continue
		}
		if a.disposed.Load() {
			a.shutdownActive()
			return
		}

		// Wait timed out with nothing reported: this generation is idle.
		// Try to exit; if work raced the decision, finish it inline
		// instead of spawning yet another generation for it.
		exited, pending := a.tryExitIdle(q)
		if exited {
			return
		}
		a.drainSubmissions(pending)
	}
}

func (a *Agent) drainSubmissions(subs []queue.Submission) {
	a.stats.SetQueueDepth(0)
	for _, s := range subs {
		switch s.Kind {
		case queue.KindNew:
			a.activate(s.Ctx, s.Token)
		case queue.KindCancel:
			a.cancelActive(s.Token)
		case queue.KindUnpause:
			a.unpauseActive(s.Token)
		}
	}
}

// activate is spec §4.6 step 1 "New": if the caller's context was already
// canceled before the worker ever got to it, fail and clean up without
// ever installing callbacks, adding the handle, or touching the table
// (the testable property "a cancellation submitted before activation
// fails the request and adds no entry"). Otherwise install callbacks and
// the private token atomically, AddHandle, and only then record the
// Active Operation Table entry — the table's only mutator is this worker
// goroutine, and an entry exists only once the transport has accepted the
// handle (spec §3, §5).
func (a *Agent) activate(c *reqctx.Context, token uint64) {
	if c.CancelRequested() {
		c.Fail(cos.ErrOperationCanceled)
		c.Cleanup()
		a.stats.IncCanceled()
		return
	}

	curlcb.Install(c, token)
	if err := a.multi.AddHandle(c.Easy); err != nil {
		c.Fail(err)
		c.Cleanup()
		a.stats.IncFailed()
		return
	}
	a.table.Insert(optable.Token(token), c)
	c.WatchCancellation()
}

func (a *Agent) cancelActive(token uint64) {
	c, ok := a.table.Remove(optable.Token(token))
	if !ok {
		return // already reaped, racing with a caller-side Cancel
	}
	_ = a.multi.RemoveHandle(c.Easy)
	c.Fail(cos.ErrOperationCanceled)
	a.stats.AddBytesSent(c.BytesSent())
	a.stats.AddBytesReceived(c.BytesReceived())
	c.Cleanup()
	a.stats.IncCanceled()
}

func (a *Agent) unpauseActive(token uint64) {
	c, ok := a.table.Lookup(optable.Token(token))
	if !ok {
		return
	}
	if err := c.Easy.Unpause(); err != nil {
		nlog.Warningf("agent: unpause %s: %v", c.TraceID, err)
	}
}

// reapCompletions is spec §4.6 step 4: drain ReadInfo, resolve each token
// back to its Request Context, retire it, and, on a clean completion with
// pre-authentication on and a status other than 401, hand the
// authenticated auth-types back to the client's credential cache. A completion whose
// token no longer resolves is stale (already canceled) and is silently
// dropped.
func (a *Agent) reapCompletions() {
	for _, msg := range a.multi.ReadInfo() {
		c, ok := a.table.Remove(optable.Token(msg.Token))
		if !ok {
			continue
		}
		_ = a.multi.RemoveHandle(c.Easy)

		switch {
		case msg.UnsupportedProtocol && c.IsRedirect():
			// A redirect hop landed on an unsupported scheme; the
			// transport reports this as a transfer-wide error even
			// though the prior hop's headers already published. Treat
			// it as a clean completion rather than a failure.
			c.EnsureResponsePublished()
			c.Complete()
			a.stats.IncCompleted()
		case msg.Err != nil:
			c.Fail(msg.Err)
			a.stats.IncFailed()
		default:
			c.EnsureResponsePublished()
			if c.PreAuthenticate() && c.Status() != http.StatusUnauthorized {
				c.TransferCredentialsToCache(msg.AuthMask)
			}
			c.Complete()
			a.stats.IncCompleted()
		}
		a.stats.AddBytesSent(c.BytesSent())
		a.stats.AddBytesReceived(c.BytesReceived())
		c.Cleanup()
	}
}

// shutdownActive fails every still-active transfer when the agent is
// disposed (spec §4.7 abrupt shutdown — graceful drain is a Non-goal).
func (a *Agent) shutdownActive() {
	for _, c := range a.table.Snapshot() {
		a.table.Remove(optable.Token(c.Token()))
		_ = a.multi.RemoveHandle(c.Easy)
		c.Fail(cos.ErrOperationCanceled)
		a.stats.AddBytesSent(c.BytesSent())
		a.stats.AddBytesReceived(c.BytesReceived())
		c.Cleanup()
	}
	a.stats.SetActiveTransfers(0)
}
