package reqctx

import (
	"context"
	"net/http"
	"net/textproto"
	"sync"

	"github.com/pkg/errors"

	"github.com/NVIDIA/curlmulti/cos"
	"github.com/NVIDIA/curlmulti/debug"
	"github.com/NVIDIA/curlmulti/transport"
)

// redirectStatuses are the codes that arm auto-redirect handling on the
// status line (spec §4.2 "isRedirect").
var redirectStatuses = map[int]bool{301: true, 302: true, 303: true, 307: true}

// Context is the Request Context of spec §3/§4.2: everything the worker
// needs to drive one transfer from submission to completion. Once the
// worker activates it, only the worker goroutine touches its fields; the
// handful of methods other goroutines may call (Fail, via a cancellation
// watcher) are documented as such.
type Context struct {
	Easy    transport.Easy
	TraceID string
	URI     string

	body    RequestBodyStream
	sink    ResponseSink
	handler Handler
	agent   AgentRef

	cancelCtx  context.Context
	cancelStop chan struct{}
	watchOnce  sync.Once

	future *Future

	token uint64

	mu         sync.Mutex
	status     int
	headers    http.Header
	headerLen  int
	isRedirect bool

	send *SendState

	// bytesSent/bytesReceived are mutated only from the worker goroutine
	// (every write happens inside a transport callback), so no lock
	// guards them; the worker reads them back at retirement time to feed
	// the Agent's byte counters.
	bytesSent     int64
	bytesReceived int64

	cleanupOnce sync.Once
}

// New builds an inactive Request Context; the agent assigns Easy and Token
// before handing it to the worker (spec §4.6 step 1).
func New(cancelCtx context.Context, body RequestBodyStream, sink ResponseSink, h Handler) *Context {
	if cancelCtx == nil {
		cancelCtx = context.Background()
	}
	return &Context{
		TraceID:    cos.GenTraceID(),
		body:       body,
		sink:       sink,
		handler:    h,
		cancelCtx:  cancelCtx,
		cancelStop: make(chan struct{}),
		future:     NewFuture(),
	}
}

func (c *Context) Future() *Future { return c.future }

func (c *Context) SetToken(t uint64) { c.token = t }
func (c *Context) Token() uint64     { return c.token }

func (c *Context) SetAgent(a AgentRef) { c.agent = a }

// CancelRequested reports whether the caller's context was already
// canceled, checked once before activation (spec §4.6 step 1: "if
// cancellation already requested, fail and cleanup; otherwise ... add the
// handle").
func (c *Context) CancelRequested() bool { return c.cancelCtx.Err() != nil }

// NoteCallbackAbort tells the owning Agent a transport callback panicked
// and was converted into an abort, for the CallbackAbortsTotal counter.
func (c *Context) NoteCallbackAbort() {
	if c.agent != nil {
		c.agent.NoteCallbackAbort()
	}
}

// WatchCancellation starts (once) a goroutine that cancels the transfer
// when the caller's context is done, re-entering the agent exactly the
// way an external cancel request would (spec §9 back-reference).
func (c *Context) WatchCancellation() {
	c.watchOnce.Do(func() {
		go func() {
			select {
			case <-c.cancelCtx.Done():
				if c.agent != nil {
					c.agent.Cancel(c.token)
				}
			case <-c.cancelStop:
			}
		}()
	})
}

// HeaderByteCap, AutoRedirect proxy handler policy for curlcb.
func (c *Context) HeaderByteCap() int  { return c.handler.HeaderByteCap() }
func (c *Context) AutoRedirect() bool  { return c.handler.AutoRedirect() }
func (c *Context) PreAuthenticate() bool { return c.handler.PreAuthenticate() }

// OnStatusLine resets header accumulation for a new response (curl invokes
// the header callback once per status line, including once per redirect
// hop — spec §4.4).
func (c *Context) OnStatusLine(status int, rawLen int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = status
	c.headers = make(http.Header)
	c.headerLen = rawLen
	c.isRedirect = c.handler.AutoRedirect() && redirectStatuses[status]
}

// OnHeaderLine accumulates one header line, enforcing the byte cap (spec
// §4.4 edge case, Invariant "header accumulation never exceeds cap").
func (c *Context) OnHeaderLine(key, value string, rawLen int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headerLen += rawLen
	if c.headerLen > c.handler.HeaderByteCap() {
		return errors.Wrapf(cos.ErrHeadersExceeded, "trace %s: %d bytes over a %d cap", c.TraceID, c.headerLen, c.handler.HeaderByteCap())
	}
	if c.headers == nil {
		c.headers = make(http.Header)
	}
	c.headers.Add(key, value)
	return nil
}

func (c *Context) IsRedirect() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isRedirect
}

func (c *Context) Status() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// PublishResponse makes status/headers visible to the caller exactly once
// (spec §4.2 headers-pending -> headers-available). Safe to call more than
// once; safe to call from the first receive-body byte or from the worker's
// completion reap, whichever happens first.
func (c *Context) PublishResponse() {
	c.mu.Lock()
	status, headers := c.status, cloneHeader(c.headers)
	c.mu.Unlock()
	c.future.PublishHeaders(status, headers)
}

// EnsureResponsePublished is the name the worker calls at reap time, when
// a response with no body (or an immediately-failed transfer) might never
// have hit the receive-body callback.
func (c *Context) EnsureResponsePublished() { c.PublishResponse() }

// TransferBody publishes the response (idempotent) then forwards to the
// sink, matching the receive-body callback's "first byte publishes
// headers" rule (spec §4.4).
func (c *Context) TransferBody(data []byte) (transport.Disposition, error) {
	c.PublishResponse()
	c.bytesReceived += int64(len(data))
	return c.sink.TransferDataToStream(data)
}

// BytesSent and BytesReceived report the running totals this Request
// Context has moved, read by the worker at retirement time to feed the
// Agent's byte counters.
func (c *Context) BytesSent() int64     { return c.bytesSent }
func (c *Context) BytesReceived() int64 { return c.bytesReceived }

// sendState lazily creates the Send Transfer State on first use and primes
// the body stream with Run before its first read; requests with no body
// never allocate one.
func (c *Context) sendState() *SendState {
	if c.send == nil {
		debug.Assert(c.body != nil, "send callback invoked with no request body")
		c.send = newSendState(c.body)
		c.body.Run()
	}
	return c.send
}

// OnSend drives the send-body callback's state machine.
func (c *Context) OnSend(buf []byte) (n int, disp transport.Disposition, err error) {
	n, disp, err = c.sendState().OnSend(buf)
	if err == nil {
		c.bytesSent += int64(n)
	}
	return n, disp, err
}

// TrySeek implements the seek callback: only a rewind-to-start on a
// resettable body succeeds (spec §4.4).
func (c *Context) TrySeek(offset int64, whence transport.SeekWhence) transport.SeekResult {
	if offset != 0 || whence != transport.SeekStart || c.body == nil {
		return transport.SeekCantSeek
	}
	if !c.body.TryReset() {
		return transport.SeekCantSeek
	}
	if c.send != nil {
		c.send.Discard()
	}
	c.body.Run()
	return transport.SeekOK
}

// SetTransportOption proxies to the underlying easy handle, the one piece
// of transport-level configuration an in-flight Request Context may still
// adjust (spec §4.2 public contract).
func (c *Context) SetTransportOption(opt transport.Option, value any) error {
	return c.Easy.SetOption(opt, value)
}

// Fail terminates the Request Context with an error. Safe to call from the
// cancellation watcher goroutine as well as from the worker.
func (c *Context) Fail(err error) { c.future.Fail(err) }

// Complete terminates the Request Context successfully.
func (c *Context) Complete() { c.future.Complete() }

// Cleanup releases everything the Request Context owns: stops the
// cancellation watcher, drops the send buffer, and closes the body stream
// if it wants closing. Idempotent (spec §4.2 public contract).
func (c *Context) Cleanup() {
	c.cleanupOnce.Do(func() {
		close(c.cancelStop)
		c.send = nil
		if closer, ok := c.body.(interface{ Close() error }); ok && closer != nil {
			_ = closer.Close()
		}
	})
}

// TransferCredentialsToCache hands the auth-types the transport actually
// authenticated with back to the client's credential cache, keyed by this
// transfer's own URI (spec §4.6 step 4). A zero mask is still forwarded;
// the handler decides whether that's worth caching.
func (c *Context) TransferCredentialsToCache(authMask int) {
	c.handler.TransferCredentialsToCache(c.URI, authMask)
}

func cloneHeader(h http.Header) http.Header {
	if h == nil {
		return make(http.Header)
	}
	out := make(http.Header, len(h))
	for k, vs := range h {
		cp := make([]string, len(vs))
		copy(cp, vs)
		out[textproto.CanonicalMIMEHeaderKey(k)] = cp
	}
	return out
}
