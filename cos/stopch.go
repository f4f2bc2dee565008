package cos

import "sync"

// StopCh is a close-once broadcast channel, the idiom the worker loop and
// its collaborators use to signal shutdown to every select-ing goroutine
// without risking a double-close panic.
type StopCh struct {
	ch   chan struct{}
	once sync.Once
}

func NewStopCh() *StopCh {
	return &StopCh{ch: make(chan struct{})}
}

func (s *StopCh) Listen() <-chan struct{} { return s.ch }

func (s *StopCh) Close() { s.once.Do(func() { close(s.ch) }) }
