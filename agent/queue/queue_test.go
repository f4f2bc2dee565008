package queue_test

import (
	"testing"

	"github.com/NVIDIA/curlmulti/agent/queue"
	"github.com/NVIDIA/curlmulti/agent/wakeup"
)

func TestPushPostsWakeupAndDrainAllReturnsFIFO(t *testing.T) {
	wake := wakeup.New()
	q := queue.New(wake)

	q.Push(queue.Submission{Kind: queue.KindCancel, Token: 1})
	q.Push(queue.Submission{Kind: queue.KindUnpause, Token: 2})

	select {
	case <-wake.C():
	default:
		t.Fatal("expected a pending wakeup after Push")
	}

	got := q.DrainAll()
	if len(got) != 2 {
		t.Fatalf("DrainAll() returned %d submissions, want 2", len(got))
	}
	if got[0].Token != 1 || got[1].Token != 2 {
		t.Fatalf("DrainAll() order = %+v, want FIFO [1, 2]", got)
	}

	if rest := q.DrainAll(); rest != nil {
		t.Fatalf("DrainAll() after drain = %+v, want nil", rest)
	}
}

func TestPushCoalescesMultipleWakeups(t *testing.T) {
	wake := wakeup.New()
	q := queue.New(wake)

	q.Push(queue.Submission{Kind: queue.KindCancel, Token: 1})
	q.Push(queue.Submission{Kind: queue.KindCancel, Token: 2})
	q.Push(queue.Submission{Kind: queue.KindCancel, Token: 3})

	select {
	case <-wake.C():
	default:
		t.Fatal("expected a wakeup to be pending")
	}
	select {
	case <-wake.C():
		t.Fatal("expected only one coalesced wakeup, got a second")
	default:
	}

	if got := q.DrainAll(); len(got) != 3 {
		t.Fatalf("DrainAll() returned %d submissions, want 3", len(got))
	}
}

func TestPushOnClosedQueueIsNoop(t *testing.T) {
	wake := wakeup.New()
	q := queue.New(wake)
	q.Close()

	q.Push(queue.Submission{Kind: queue.KindCancel, Token: 1})

	select {
	case <-wake.C():
		t.Fatal("expected no wakeup after Push on a closed queue")
	default:
	}
	if got := q.DrainAll(); got != nil {
		t.Fatalf("DrainAll() after closed Push = %+v, want nil", got)
	}
}

func TestCloseStillDeliversAlreadyQueuedSubmissions(t *testing.T) {
	wake := wakeup.New()
	q := queue.New(wake)

	q.Push(queue.Submission{Kind: queue.KindCancel, Token: 7})
	q.Close()

	got := q.DrainAll()
	if len(got) != 1 || got[0].Token != 7 {
		t.Fatalf("DrainAll() after Close = %+v, want the pre-close submission", got)
	}
}
