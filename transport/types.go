// Package transport defines the downstream SPI curlmulti drives: a
// libcurl-multi-shaped interface over one shared context and many
// concurrent "easy" transfers. It is deliberately minimal — curlmulti
// treats the native transport as an external collaborator (spec §1) — and
// exists so that a production binary can back it with cgo bindings to a
// real multi-interface library, or (as transporttest does) with an
// in-process double for tests.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package transport

import (
	"context"
	"time"
)

// Option identifies a transport-level knob. curlmulti itself only ever
// sets the two named in spec §6; a real binding defines many more.
type Option int

const (
	OptMultiplexing Option = iota
	OptMaxHostConnections
)

// Disposition is the sentinel a data callback returns to signal
// backpressure or abort, matching libcurl's overloaded size_t return
// convention without the size_t games (spec §4.3, §4.4, §9 Open Question).
type Disposition int

const (
	Accepted Disposition = iota
	Pause
	Abort
)

// SeekWhence mirrors the three io.Seeker origins; curlmulti only ever
// honors SeekStart at offset 0 (spec §4.4), but the callback signature
// carries all three since that's what a real transport passes through.
type SeekWhence int

const (
	SeekStart SeekWhence = iota
	SeekCurrent
	SeekEnd
)

type SeekResult int

const (
	SeekOK SeekResult = iota
	SeekCantSeek
	SeekFail
)

// DebugKind tags a debug-callback invocation; curlmulti only logs these,
// it never inspects the payload structurally.
type DebugKind int

const (
	DebugText DebugKind = iota
	DebugHeaderIn
	DebugHeaderOut
	DebugDataIn
	DebugDataOut
)

// Callbacks bundles the five C-ABI-shaped functions a transport invokes
// synchronously during Perform. All five are registered atomically via
// Easy.SetCallbacks so a callback never observes a half-initialized
// Request Context (spec §4.4).
type Callbacks struct {
	Header      func(line []byte) (accepted int, abort bool)
	ReceiveBody func(data []byte) (accepted int, disp Disposition)
	SendBody    func(buf []byte) (n int, disp Disposition)
	Seek        func(offset int64, whence SeekWhence) SeekResult
	Debug       func(kind DebugKind, data []byte)
}

// Easy is a single transfer within a Multi context.
type Easy interface {
	// SetPrivate registers the opaque token the transport must echo back
	// via Message.Token on completion (spec §3 Token, Invariant 2).
	SetPrivate(token uint64)
	SetCallbacks(cb Callbacks)
	SetOption(opt Option, value any) error
	// Unpause resumes a paused easy handle (spec §4.6 "Unpause" submission).
	Unpause() error
}

// Message is one completion record yielded by Multi.ReadInfo.
type Message struct {
	Token  uint64
	Status int
	Err    error
	// UnsupportedProtocol is set when Err denotes the transport's generic
	// "unsupported protocol" failure, the one error spec §4.6 step 4
	// specifically swallows when the completing transfer was a redirect.
	UnsupportedProtocol bool
	// AuthMask carries the auth-types the transport actually authenticated
	// with, so the worker can hand it back to the client's credential
	// cache on completion (spec §4.6 step 4). Zero means "nothing to cache"
	// (no authentication occurred, or the transport doesn't track it).
	AuthMask int
}

// Multi is the shared context the worker loop drives. One exists per
// Agent: the caller creates it and passes it to agent.New, and the Agent's
// Dispose closes it only after the last worker goroutine has exited. It is
// not created lazily and carries no reference count of its own.
type Multi interface {
	AddHandle(e Easy) error
	RemoveHandle(e Easy) error
	// Perform advances every active transfer once; callAgain true means
	// the worker should call Perform again before moving on to Wait
	// (spec §4.6 step 3).
	Perform(ctx context.Context) (callAgain bool, err error)
	// Wait blocks until there is transport activity, a wakeup is posted
	// on wake, or timeout elapses, returning which. A timeout with no
	// active transfers is how the worker's keep-alive idle check (spec
	// §4.6 step 2) is realized.
	Wait(ctx context.Context, wake <-chan struct{}, timeout time.Duration) (activity bool, err error)
	ReadInfo() []Message
	SetOption(opt Option, value any) error
	Close() error
}

// NewEasy constructs a new Easy handle bound to this Multi's native
// context; separated from AddHandle because the worker must install
// callbacks and private data before the transfer is added (spec §4.6
// step 1, "New").
type EasyFactory interface {
	NewEasy() (Easy, error)
}
