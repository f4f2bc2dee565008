// Package reqctx implements the Request Context (spec §3, §4.2) and Send
// Transfer State (spec §3, §4.3): the per-transfer state the worker owns
// exclusively once activated.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package reqctx

import (
	"context"
	"net/http"

	"github.com/NVIDIA/curlmulti/transport"
)

// ReadResult is what a RequestBodyStream's asynchronous read resolves to.
type ReadResult struct {
	N   int
	Err error
}

// RequestBodyStream is the caller-supplied source for an upload's body,
// consumed exclusively by the send callback's Send Transfer State (spec
// §4.3, §6).
type RequestBodyStream interface {
	// ReadAsync starts (or continues) filling buf and returns a channel
	// that resolves exactly once with the outcome. It must not block the
	// calling goroutine — the worker calls this from inside a transport
	// callback and cannot afford to stall the event loop.
	ReadAsync(ctx context.Context, buf []byte) <-chan ReadResult
	// TryReset rewinds the stream to its start, returning false if the
	// stream isn't resettable (spec §4.4 seek callback).
	TryReset() bool
	// Run is invoked synchronously the first time the send callback primes
	// the stream, before its first read, and again after every successful
	// TryReset by the seek callback — the hook a body producer uses to
	// kick off whatever it needs before reading (e.g. opening a file).
	Run()
}

// ResponseSink is the caller-supplied destination for the response body
// (spec §4.4 receive-body callback, §6).
type ResponseSink interface {
	// TransferDataToStream forwards data downstream. A Pause disposition
	// signals backpressure; the caller later frees space and calls
	// Agent.RequestUnpause.
	TransferDataToStream(data []byte) (transport.Disposition, error)
}

// Handler supplies the handler-wide policy a Request Context consults:
// header size cap, auto-redirect behavior, pre-authentication, and the
// credential cache handback (spec §4.4, §4.6, §6).
type Handler interface {
	HeaderByteCap() int
	AutoRedirect() bool
	PreAuthenticate() bool
	TransferCredentialsToCache(uri string, authMask int)
}

// AgentRef is the narrow slice of agent.Agent a Request Context needs: just
// enough to re-enter the submission queue from a cancellation watcher
// (spec §9 "Back-reference from Request Context to Agent"). It takes the
// same opaque token the transport echoes back on completion, not a
// pointer, so the cancellation path and the public Agent.Cancel API are
// the same code.
type AgentRef interface {
	Cancel(token uint64)
	// NoteCallbackAbort records that a transport callback panicked and was
	// converted into an abort (stats.Tracker's CallbackAbortsTotal).
	NoteCallbackAbort()
}

// Response is the outcome a Future publishes and ultimately resolves
// with.
type Response struct {
	Status  int
	Headers http.Header
}
