package agent_test

import (
	"context"
	"errors"
	"time"

	"github.com/NVIDIA/curlmulti/agent"
	"github.com/NVIDIA/curlmulti/transport"
	"github.com/NVIDIA/curlmulti/transport/transporttest"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

type memSink struct{ data []byte }

func (s *memSink) TransferDataToStream(data []byte) (transport.Disposition, error) {
	s.data = append(s.data, data...)
	return transport.Accepted, nil
}

// pauseOnceSink returns Pause the first time it's called, so a transfer
// stalls mid-body long enough for a concurrent cancellation to land.
type pauseOnceSink struct {
	data   []byte
	paused bool
}

func (s *pauseOnceSink) TransferDataToStream(data []byte) (transport.Disposition, error) {
	if !s.paused {
		s.paused = true
		return transport.Pause, nil
	}
	s.data = append(s.data, data...)
	return transport.Accepted, nil
}

func newScripted(a *agent.Agent, s *transporttest.Script) *transporttest.ScriptedEasy {
	easy, err := a.NewEasy()
	Expect(err).NotTo(HaveOccurred())
	se := easy.(*transporttest.ScriptedEasy)
	se.SetScript(s)
	return se
}

var _ = Describe("Agent", func() {
	var (
		multi *transporttest.Multi
		a     *agent.Agent
	)

	BeforeEach(func() {
		multi = transporttest.NewMulti()
		a = agent.New(multi, transporttest.Factory{}, agent.WithIdleTimeout(5*time.Millisecond))
	})

	AfterEach(func() {
		a.Dispose()
	})

	It("delivers a single response end to end", func() {
		sink := &memSink{}
		easy := newScripted(a, &transporttest.Script{
			StatusLine: "HTTP/1.1 200 OK",
			Headers:    []string{"Content-Type: text/plain"},
			Body:       []byte("hello"),
		})

		_, future := a.Submit(context.Background(), "https://example.com/x", easy, nil, sink, nil)

		Eventually(future.Done(), time.Second).Should(BeClosed())
		resp, err := future.Result()
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Status).To(Equal(200))
		Expect(resp.Headers.Get("Content-Type")).To(Equal("text/plain"))
		Expect(string(sink.data)).To(Equal("hello"))
	})

	It("fails the future on a transport error", func() {
		sink := &memSink{}
		easy := newScripted(a, &transporttest.Script{
			StatusLine: "HTTP/1.1 200 OK",
			Err:        errors.New("connection reset"),
		})

		_, future := a.Submit(context.Background(), "https://example.com/x", easy, nil, sink, nil)

		Eventually(future.Done(), time.Second).Should(BeClosed())
		_, err := future.Result()
		Expect(err).To(MatchError("connection reset"))
	})

	It("swallows unsupported-protocol errors on a redirect hop", func() {
		sink := &memSink{}
		easy := newScripted(a, &transporttest.Script{
			StatusLine:          "HTTP/1.1 302 Found",
			Headers:             []string{"Location: gopher://example.com"},
			Err:                 errors.New("unsupported protocol"),
			UnsupportedProtocol: true,
		})

		_, future := a.Submit(context.Background(), "https://example.com/x", easy, nil, sink, nil)

		Eventually(future.Done(), time.Second).Should(BeClosed())
		_, err := future.Result()
		Expect(err).NotTo(HaveOccurred())
	})

	It("cancels a stalled transfer via the caller's context", func() {
		sink := &pauseOnceSink{}
		easy := newScripted(a, &transporttest.Script{
			StatusLine: "HTTP/1.1 200 OK",
			Body:       []byte("stalled"),
		})

		cancelCtx, cancel := context.WithCancel(context.Background())
		_, future := a.Submit(cancelCtx, "https://example.com/x", easy, nil, sink, nil)

		// Give the transfer a moment to hit the pause, then cancel.
		time.Sleep(20 * time.Millisecond)
		cancel()

		Eventually(future.Done(), time.Second).Should(BeClosed())
		_, err := future.Result()
		Expect(err).To(HaveOccurred())
	})

	It("rejects submissions after Dispose", func() {
		a.Dispose()
		sink := &memSink{}
		easy := newScripted(a, &transporttest.Script{StatusLine: "HTTP/1.1 200 OK"})
		_, future := a.Submit(context.Background(), "https://example.com/x", easy, nil, sink, nil)

		Eventually(future.Done(), time.Second).Should(BeClosed())
		_, err := future.Result()
		Expect(err).To(HaveOccurred())
	})

	It("fails a submission whose context was already canceled before activation, without leaking a handle", func() {
		sink := &memSink{}
		easy := newScripted(a, &transporttest.Script{StatusLine: "HTTP/1.1 200 OK", Body: []byte("x")})

		cancelCtx, cancel := context.WithCancel(context.Background())
		cancel() // canceled before Submit even reaches the worker

		_, future := a.Submit(cancelCtx, "https://example.com/x", easy, nil, sink, nil)

		Eventually(future.Done(), time.Second).Should(BeClosed())
		_, err := future.Result()
		Expect(err).To(HaveOccurred())
	})

	It("respawns a worker after an idle exit when a burst of work follows", func() {
		// Run one transfer to completion, then let the worker sit idle
		// long enough (several multiples of IdleTimeout) that it tears
		// itself down per spec's idle-exit step, before submitting again.
		sink := &memSink{}
		easy := newScripted(a, &transporttest.Script{StatusLine: "HTTP/1.1 200 OK", Body: []byte("one")})
		_, future := a.Submit(context.Background(), "https://example.com/x", easy, nil, sink, nil)
		Eventually(future.Done(), time.Second).Should(BeClosed())
		_, err := future.Result()
		Expect(err).NotTo(HaveOccurred())

		time.Sleep(50 * time.Millisecond) // several IdleTimeouts: worker should have exited

		sink2 := &memSink{}
		easy2 := newScripted(a, &transporttest.Script{StatusLine: "HTTP/1.1 200 OK", Body: []byte("two")})
		_, future2 := a.Submit(context.Background(), "https://example.com/y", easy2, nil, sink2, nil)

		Eventually(future2.Done(), time.Second).Should(BeClosed())
		_, err = future2.Result()
		Expect(err).NotTo(HaveOccurred())
		Expect(string(sink2.data)).To(Equal("two"))
	})
})
