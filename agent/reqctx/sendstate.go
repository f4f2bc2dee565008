package reqctx

import (
	"context"

	"github.com/NVIDIA/curlmulti/transport"
)

const dfltSendBufSize = 64 * 1024

// SendState is the Send Transfer State of spec §3/§4.3: asynchronous-read
// staging for a single request body, exclusively owned by its Request
// Context and touched only from the worker goroutine (read completions
// re-enter via the submission queue, never directly — spec §9).
type SendState struct {
	body    RequestBodyStream
	bufSize int
	buf     []byte
	task    <-chan ReadResult
	offset  int
	count   int
}

func newSendState(body RequestBodyStream) *SendState {
	return &SendState{body: body, bufSize: dfltSendBufSize}
}

// OnSend implements the send-body callback's state machine (spec §4.3).
// readErr, when non-nil, is the error the caller must route through
// ctx.Fail; disp is always Abort when readErr != nil.
func (s *SendState) OnSend(requested []byte) (n int, disp transport.Disposition, readErr error) {
	if s.count > s.offset {
		// Draining
		n = copy(requested, s.buf[s.offset:s.count])
		s.offset += n
		if s.offset >= s.count {
			s.reset()
		}
		return n, transport.Accepted, nil
	}

	if s.task == nil {
		// Idle -> Reading
		if s.buf == nil {
			s.buf = make([]byte, s.bufSize)
		}
		readLen := len(s.buf)
		if len(requested) < readLen {
			readLen = len(requested)
		}
		ch := s.body.ReadAsync(context.Background(), s.buf[:readLen])
		select {
		case res := <-ch:
			return s.onComplete(res, requested)
		default:
			s.task = ch
			return 0, transport.Pause, nil
		}
	}

	// Reading -> Reading or Reading -> Draining
	select {
	case res := <-s.task:
		return s.onComplete(res, requested)
	default:
		return 0, transport.Pause, nil
	}
}

func (s *SendState) onComplete(res ReadResult, requested []byte) (n int, disp transport.Disposition, readErr error) {
	if res.Err != nil {
		s.reset()
		return 0, transport.Abort, res.Err
	}
	if res.N == 0 {
		s.reset()
		return 0, transport.Accepted, nil // EOF
	}
	s.task = nil
	s.count = res.N
	s.offset = 0
	n = copy(requested, s.buf[:s.count])
	s.offset += n
	if s.offset >= s.count {
		s.reset()
	}
	return n, transport.Accepted, nil
}

func (s *SendState) reset() {
	s.task = nil
	s.offset = 0
	s.count = 0
}

// Discard drops in-flight read state without running it to completion,
// used when the seek callback rewinds the stream (spec §4.4).
func (s *SendState) Discard() {
	s.reset()
}
