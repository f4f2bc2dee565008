// Package transporttest is an in-process double for transport.Multi/Easy,
// good enough to drive agent's worker loop through every scenario in
// spec §8 without linking a real native transport. It mirrors the way the
// teacher tests its own streaming transport in-process (see
// transport/stream_bundle_test.go, which spins up an httptest.Server
// rather than hitting a real cluster).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package transporttest

import (
	"context"
	"sync"
	"time"

	"github.com/NVIDIA/curlmulti/transport"
)

// Script describes the scripted lifecycle of one fake transfer.
type Script struct {
	StatusLine string
	Headers    []string // rendered with a trailing CRLF by the fake, like real curl lines
	Body       []byte
	ChunkSize  int // 0 means deliver Body in one shot

	// Upload, if non-empty, is fed through the registered SendBody
	// callback after the headers and before any of Body is delivered
	// through ReceiveBody.
	Upload []byte

	// Err, if set, is surfaced as the completion Message's error instead
	// of a clean 0 status.
	Err                 error
	UnsupportedProtocol bool

	// AuthMask, if non-zero, is echoed back on the completion Message as
	// the auth-types this fake transport "authenticated" with.
	AuthMask int
}

type ScriptedEasy struct {
	token uint64
	cb    transport.Callbacks
	opts  map[transport.Option]any

	mu         sync.Mutex
	script     *Script
	headerDone bool
	headerIdx  int
	bodyOff    int
	uploadOff  int
	paused     bool
	complete   bool
	reaped     bool
}

func (h *ScriptedEasy) SetPrivate(token uint64)             { h.token = token }
func (h *ScriptedEasy) SetCallbacks(cb transport.Callbacks)  { h.cb = cb }
func (h *ScriptedEasy) SetOption(opt transport.Option, v any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.opts == nil {
		h.opts = make(map[transport.Option]any)
	}
	h.opts[opt] = v
	return nil
}

func (h *ScriptedEasy) Unpause() error {
	h.mu.Lock()
	h.paused = false
	h.mu.Unlock()
	return nil
}

// SetScript attaches the scenario this ScriptedEasy will play out; call before
// AddHandle.
func (h *ScriptedEasy) SetScript(s *Script) {
	h.mu.Lock()
	h.script = s
	h.mu.Unlock()
}

// NewEasy is exported so tests can build a ScriptedEasy, attach a Script, then
// hand it to agent.Agent.Submit via a Request Context.
func NewEasy() *ScriptedEasy { return &ScriptedEasy{} }

// Factory implements transport.EasyFactory over NewEasy, so an Agent built
// against this fake never needs a native-transport-specific constructor.
type Factory struct{}

func (Factory) NewEasy() (transport.Easy, error) { return NewEasy(), nil }

// Multi is the fake transport context.
type Multi struct {
	mu      sync.Mutex
	active  map[*ScriptedEasy]struct{}
	pending []transport.Message
	opts    map[transport.Option]any
	closed  bool
}

func NewMulti() *Multi {
	return &Multi{active: make(map[*ScriptedEasy]struct{})}
}

func (m *Multi) AddHandle(e transport.Easy) error {
	h := e.(*ScriptedEasy)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active[h] = struct{}{}
	return nil
}

func (m *Multi) RemoveHandle(e transport.Easy) error {
	h := e.(*ScriptedEasy)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, h)
	return nil
}

func (m *Multi) SetOption(opt transport.Option, v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.opts == nil {
		m.opts = make(map[transport.Option]any)
	}
	m.opts[opt] = v
	return nil
}

func (m *Multi) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Perform drives one round of every active, unpaused ScriptedEasy. It returns
// callAgain=true whenever some ScriptedEasy made forward progress this round
// and some ScriptedEasy (not necessarily the same one) isn't finished yet,
// matching the "call again" contract of a
// real multi-interface perform loop (spec §4.6 step 3).
func (m *Multi) Perform(context.Context) (bool, error) {
	m.mu.Lock()
	handles := make([]*ScriptedEasy, 0, len(m.active))
	for h := range m.active {
		handles = append(handles, h)
	}
	m.mu.Unlock()

	progressed := false
	pending := false
	for _, h := range handles {
		made, done := h.step()
		if made {
			progressed = true
		}
		if !done {
			pending = true
		}
		if done && !h.reapQueued() {
			m.queueCompletion(h)
		}
	}
	return progressed && pending, nil
}

func (m *Multi) queueCompletion(h *ScriptedEasy) {
	h.mu.Lock()
	h.reaped = true
	s := h.script
	msg := transport.Message{Token: h.token}
	if s != nil {
		msg.Err = s.Err
		msg.UnsupportedProtocol = s.UnsupportedProtocol
		msg.AuthMask = s.AuthMask
	}
	h.mu.Unlock()

	m.mu.Lock()
	m.pending = append(m.pending, msg)
	m.mu.Unlock()
}

func (h *ScriptedEasy) reapQueued() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reaped
}

// step advances this ScriptedEasy by one unit of work and reports whether it
// made progress and whether it has reached completion.
func (h *ScriptedEasy) step() (progressed, done bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.complete {
		return false, true
	}
	if h.paused {
		return false, false
	}
	s := h.script
	if s == nil {
		h.complete = true
		return true, true
	}

	if !h.headerDone {
		lines := append([]string{s.StatusLine}, s.Headers...)
		if h.headerIdx < len(lines) {
			line := []byte(lines[h.headerIdx] + "\r\n")
			accepted, abort := h.cb.Header(line)
			h.headerIdx++
			if abort || accepted != len(line) {
				h.complete = true
				return true, true
			}
			return true, false
		}
		h.headerDone = true
		return true, false
	}

	if len(s.Upload) > 0 && h.uploadOff < len(s.Upload) {
		buf := make([]byte, 4096)
		chunk := s.Upload[h.uploadOff:]
		if len(chunk) > len(buf) {
			chunk = chunk[:len(buf)]
		}
		copy(buf, chunk)
		n, disp := h.cb.SendBody(buf[:len(chunk)])
		switch disp {
		case transport.Pause:
			h.paused = true
			return true, false
		case transport.Abort:
			h.complete = true
			return true, true
		default:
			h.uploadOff += n
			if n == 0 {
				return true, false // treat as nothing-to-do this round
			}
			return true, false
		}
	}

	if len(s.Body) > 0 && h.bodyOff < len(s.Body) {
		chunk := s.ChunkSize
		if chunk <= 0 || chunk > len(s.Body)-h.bodyOff {
			chunk = len(s.Body) - h.bodyOff
		}
		data := s.Body[h.bodyOff : h.bodyOff+chunk]
		accepted, disp := h.cb.ReceiveBody(data)
		switch disp {
		case transport.Pause:
			h.paused = true
			return true, false
		case transport.Abort:
			h.complete = true
			return true, true
		default:
			h.bodyOff += accepted
			if accepted == 0 {
				h.complete = true
				return true, true
			}
			return true, h.bodyOff >= len(s.Body)
		}
	}

	h.complete = true
	return true, true
}

// Wait blocks until a wakeup arrives, activity becomes available, or the
// timeout elapses. Real multi-interface waits block in a syscall; this
// fake just polls briefly since fake Perform calls are synchronous and
// cheap.
func (m *Multi) Wait(ctx context.Context, wake <-chan struct{}, timeout time.Duration) (bool, error) {
	m.mu.Lock()
	hasWork := len(m.active) > 0
	m.mu.Unlock()
	if !hasWork {
		select {
		case <-wake:
			return true, nil
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(timeout):
			return false, nil
		}
	}
	select {
	case <-wake:
	case <-ctx.Done():
		return false, ctx.Err()
	case <-time.After(time.Millisecond):
	}
	return true, nil
}

func (m *Multi) ReadInfo() []transport.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.pending
	m.pending = nil
	return out
}
