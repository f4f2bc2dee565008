package transporttest_test

import (
	"context"
	"testing"
	"time"

	"github.com/NVIDIA/curlmulti/transport"
	"github.com/NVIDIA/curlmulti/transport/transporttest"
)

func noopCallbacks(headers *[]string, body *[]byte) transport.Callbacks {
	return transport.Callbacks{
		Header: func(line []byte) (int, bool) {
			*headers = append(*headers, string(line))
			return len(line), false
		},
		ReceiveBody: func(data []byte) (int, transport.Disposition) {
			*body = append(*body, data...)
			return len(data), transport.Accepted
		},
		SendBody: func(buf []byte) (int, transport.Disposition) { return 0, transport.Accepted },
		Seek:     func(int64, transport.SeekWhence) transport.SeekResult { return transport.SeekCantSeek },
		Debug:    func(transport.DebugKind, []byte) {},
	}
}

func drivePerformUntilDone(t *testing.T, m *transporttest.Multi, timeout time.Duration) []transport.Message {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var msgs []transport.Message
	for time.Now().Before(deadline) {
		if _, err := m.Perform(context.Background()); err != nil {
			t.Fatalf("Perform() error: %v", err)
		}
		msgs = append(msgs, m.ReadInfo()...)
		if len(msgs) > 0 {
			return msgs
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("transfer never completed within the deadline")
	return nil
}

func TestScriptedEasyDeliversHeadersAndBody(t *testing.T) {
	m := transporttest.NewMulti()
	easy := transporttest.NewEasy()
	easy.SetPrivate(99)

	var gotHeaders []string
	var gotBody []byte
	easy.SetCallbacks(noopCallbacks(&gotHeaders, &gotBody))
	easy.SetScript(&transporttest.Script{
		StatusLine: "HTTP/1.1 200 OK",
		Headers:    []string{"Content-Length: 5"},
		Body:       []byte("hello"),
	})

	if err := m.AddHandle(easy); err != nil {
		t.Fatalf("AddHandle() error: %v", err)
	}

	msgs := drivePerformUntilDone(t, m, time.Second)
	if len(msgs) != 1 {
		t.Fatalf("got %d completion messages, want 1", len(msgs))
	}
	if msgs[0].Token != 99 {
		t.Fatalf("Token = %d, want 99", msgs[0].Token)
	}
	if msgs[0].Err != nil {
		t.Fatalf("Err = %v, want nil", msgs[0].Err)
	}
	if string(gotBody) != "hello" {
		t.Fatalf("body = %q, want %q", gotBody, "hello")
	}
	if len(gotHeaders) != 2 {
		t.Fatalf("got %d header lines, want 2 (status + one header)", len(gotHeaders))
	}
}

func TestScriptedEasySurfacesCompletionError(t *testing.T) {
	m := transporttest.NewMulti()
	easy := transporttest.NewEasy()
	easy.SetPrivate(7)

	var headers []string
	var body []byte
	easy.SetCallbacks(noopCallbacks(&headers, &body))
	wantErr := context.DeadlineExceeded
	easy.SetScript(&transporttest.Script{
		StatusLine: "HTTP/1.1 200 OK",
		Err:        wantErr,
	})

	if err := m.AddHandle(easy); err != nil {
		t.Fatalf("AddHandle() error: %v", err)
	}

	msgs := drivePerformUntilDone(t, m, time.Second)
	if len(msgs) != 1 || msgs[0].Err != wantErr {
		t.Fatalf("msgs = %+v, want a single message with Err = %v", msgs, wantErr)
	}
}

func TestScriptedEasyPausesAndResumesOnUnpause(t *testing.T) {
	m := transporttest.NewMulti()
	easy := transporttest.NewEasy()
	easy.SetPrivate(1)

	var headers []string
	var body []byte
	paused := true
	cb := noopCallbacks(&headers, &body)
	cb.ReceiveBody = func(data []byte) (int, transport.Disposition) {
		if paused {
			return 0, transport.Pause
		}
		body = append(body, data...)
		return len(data), transport.Accepted
	}
	easy.SetCallbacks(cb)
	easy.SetScript(&transporttest.Script{
		StatusLine: "HTTP/1.1 200 OK",
		Body:       []byte("data"),
	})

	if err := m.AddHandle(easy); err != nil {
		t.Fatalf("AddHandle() error: %v", err)
	}

	// Drive a few rounds while paused: no completion should show up.
	for i := 0; i < 5; i++ {
		if _, err := m.Perform(context.Background()); err != nil {
			t.Fatalf("Perform() error: %v", err)
		}
		if msgs := m.ReadInfo(); len(msgs) != 0 {
			t.Fatalf("got a completion message while paused: %+v", msgs)
		}
	}

	paused = false
	if err := easy.Unpause(); err != nil {
		t.Fatalf("Unpause() error: %v", err)
	}

	msgs := drivePerformUntilDone(t, m, time.Second)
	if len(msgs) != 1 {
		t.Fatalf("got %d completion messages after unpause, want 1", len(msgs))
	}
	if string(body) != "data" {
		t.Fatalf("body = %q, want %q", body, "data")
	}
}

func TestMultiWaitReturnsOnWakeupWithNoActiveHandles(t *testing.T) {
	m := transporttest.NewMulti()
	wake := make(chan struct{}, 1)
	wake <- struct{}{}

	activity, err := m.Wait(context.Background(), wake, time.Second)
	if err != nil {
		t.Fatalf("Wait() error: %v", err)
	}
	if !activity {
		t.Fatal("Wait() activity = false, want true on a pending wakeup")
	}
}

func TestMultiWaitTimesOutWithNoActiveHandlesOrWakeup(t *testing.T) {
	m := transporttest.NewMulti()
	wake := make(chan struct{})

	start := time.Now()
	activity, err := m.Wait(context.Background(), wake, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Wait() error: %v", err)
	}
	if activity {
		t.Fatal("Wait() activity = true, want false on timeout")
	}
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Fatalf("Wait() returned after %v, want at least the 10ms timeout", elapsed)
	}
}

func TestFactoryNewEasyImplementsEasy(t *testing.T) {
	var f transport.EasyFactory = transporttest.Factory{}
	e, err := f.NewEasy()
	if err != nil {
		t.Fatalf("NewEasy() error: %v", err)
	}
	if _, ok := e.(*transporttest.ScriptedEasy); !ok {
		t.Fatalf("NewEasy() returned %T, want *transporttest.ScriptedEasy", e)
	}
}
