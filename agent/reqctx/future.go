package reqctx

import (
	"net/http"
	"sync"
)

// Future is the caller-visible completion sink: a Request Context's
// attribute of the same name in spec §3. Headers become visible (the
// "headers-pending" -> "headers-available" transition of spec §4.2) on
// PublishHeaders, independently of — and always before — the terminal
// Fail/Complete.
type Future struct {
	publishOnce sync.Once
	published   chan struct{}
	resp        Response

	doneOnce sync.Once
	done     chan struct{}
	err      error
}

func NewFuture() *Future {
	return &Future{
		published: make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// PublishHeaders makes status/headers visible exactly once; subsequent
// calls are no-ops, matching "transitions ... exactly once" (spec §4.2).
func (f *Future) PublishHeaders(status int, headers http.Header) {
	f.publishOnce.Do(func() {
		f.resp = Response{Status: status, Headers: headers}
		close(f.published)
	})
}

func (f *Future) Published() <-chan struct{} { return f.published }

func (f *Future) IsPublished() bool {
	select {
	case <-f.published:
		return true
	default:
		return false
	}
}

// Fail completes the future with an error. The first of Fail/Complete
// wins; later calls are no-ops.
func (f *Future) Fail(err error) {
	if err == nil {
		return
	}
	f.doneOnce.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Complete marks the future as successfully finished.
func (f *Future) Complete() {
	f.doneOnce.Do(func() { close(f.done) })
}

func (f *Future) Done() <-chan struct{} { return f.done }

// Result blocks until Done is closed and returns the terminal outcome.
func (f *Future) Result() (Response, error) {
	<-f.done
	return f.resp, f.err
}
