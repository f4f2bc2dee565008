// Package curlcb builds the five transport.Callbacks for a Request
// Context (spec §3 Transport Callbacks, §4.4) and wraps each in a panic
// recovery boundary: a callback runs on the worker's only goroutine, so a
// panic that escaped it would take the whole agent down with it. Grounded
// on the teacher's nlog-and-continue recovery idiom used around
// user-supplied hooks in transport/api.go.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package curlcb

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/NVIDIA/curlmulti/agent/reqctx"
	"github.com/NVIDIA/curlmulti/nlog"
	"github.com/NVIDIA/curlmulti/transport"
)

// Install builds the callback bundle for ctx, registers it and ctx's
// token with the easy handle (spec §4.6 step 1 "New": callbacks and
// private data are set atomically, before AddHandle).
func Install(ctx *reqctx.Context, token uint64) {
	ctx.Easy.SetCallbacks(transport.Callbacks{
		Header:      headerCB(ctx),
		ReceiveBody: receiveBodyCB(ctx),
		SendBody:    sendBodyCB(ctx),
		Seek:        seekCB(ctx),
		Debug:       debugCB(ctx),
	})
	ctx.Easy.SetPrivate(token)
}

func headerCB(ctx *reqctx.Context) func([]byte) (int, bool) {
	return func(line []byte) (accepted int, abort bool) {
		defer func() {
			if r := recover(); r != nil {
				nlog.Errorf("[%s] header callback panic: %v", ctx.TraceID, r)
				ctx.NoteCallbackAbort()
				ctx.Fail(fmt.Errorf("header callback panic: %v", r))
				accepted, abort = 0, true
			}
		}()

		trimmed := bytes.TrimRight(line, "\r\n")
		if len(trimmed) == 0 {
			// Blank line: end of this header block.
			return len(line), false
		}
		if status, ok := parseStatusLine(trimmed); ok {
			ctx.OnStatusLine(status, len(line))
			return len(line), false
		}
		key, value, ok := parseHeaderLine(trimmed)
		if !ok {
			return len(line), false
		}
		if err := ctx.OnHeaderLine(key, value, len(line)); err != nil {
			ctx.Fail(err)
			return 0, true
		}
		return len(line), false
	}
}

func parseStatusLine(line []byte) (status int, ok bool) {
	if !bytes.HasPrefix(line, []byte("HTTP/")) {
		return 0, false
	}
	fields := strings.Fields(string(line))
	if len(fields) < 2 {
		return 0, false
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

func parseHeaderLine(line []byte) (key, value string, ok bool) {
	idx := bytes.IndexByte(line, ':')
	if idx < 0 {
		return "", "", false
	}
	key = strings.TrimSpace(string(line[:idx]))
	value = strings.TrimSpace(string(line[idx+1:]))
	if key == "" {
		return "", "", false
	}
	return key, value, true
}

func receiveBodyCB(ctx *reqctx.Context) func([]byte) (int, transport.Disposition) {
	return func(data []byte) (accepted int, disp transport.Disposition) {
		defer func() {
			if r := recover(); r != nil {
				nlog.Errorf("[%s] receive-body callback panic: %v", ctx.TraceID, r)
				ctx.NoteCallbackAbort()
				ctx.Fail(fmt.Errorf("receive-body callback panic: %v", r))
				accepted, disp = 0, transport.Abort
			}
		}()
		disp, err := ctx.TransferBody(data)
		if err != nil {
			ctx.Fail(err)
			return 0, transport.Abort
		}
		if disp == transport.Abort {
			return 0, transport.Abort
		}
		if disp == transport.Pause {
			return 0, transport.Pause
		}
		return len(data), transport.Accepted
	}
}

func sendBodyCB(ctx *reqctx.Context) func([]byte) (int, transport.Disposition) {
	return func(buf []byte) (n int, disp transport.Disposition) {
		defer func() {
			if r := recover(); r != nil {
				nlog.Errorf("[%s] send-body callback panic: %v", ctx.TraceID, r)
				ctx.NoteCallbackAbort()
				ctx.Fail(fmt.Errorf("send-body callback panic: %v", r))
				n, disp = 0, transport.Abort
			}
		}()
		n, disp, err := ctx.OnSend(buf)
		if err != nil {
			ctx.Fail(err)
			return 0, transport.Abort
		}
		return n, disp
	}
}

func seekCB(ctx *reqctx.Context) func(int64, transport.SeekWhence) transport.SeekResult {
	return func(offset int64, whence transport.SeekWhence) (res transport.SeekResult) {
		defer func() {
			if r := recover(); r != nil {
				nlog.Errorf("[%s] seek callback panic: %v", ctx.TraceID, r)
				ctx.NoteCallbackAbort()
				ctx.Fail(fmt.Errorf("seek callback panic: %v", r))
				res = transport.SeekFail
			}
		}()
		return ctx.TrySeek(offset, whence)
	}
}

func debugCB(ctx *reqctx.Context) func(transport.DebugKind, []byte) {
	return func(kind transport.DebugKind, data []byte) {
		defer func() {
			if r := recover(); r != nil {
				nlog.Errorf("[%s] debug callback panic: %v", ctx.TraceID, r)
				ctx.NoteCallbackAbort()
				ctx.Fail(fmt.Errorf("debug callback panic: %v", r))
			}
		}()
		if !nlog.DebugEnabled() {
			return
		}
		nlog.Infof("[%s] debug(%d): %s", ctx.TraceID, kind, bytes.TrimRight(data, "\r\n"))
	}
}
