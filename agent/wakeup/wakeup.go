// Package wakeup implements the Wakeup Channel of spec §3/§4.1: the single
// coalescing signal that breaks the worker out of a blocking transport
// Wait. Grounded on the teacher's stream bundle "ctrlCh" used to interrupt
// transport/collect.go's collector loop — a buffered channel of capacity
// one, posted to with a non-blocking send so a burst of submissions costs
// one wakeup, not N.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package wakeup

// Chan is a coalescing wakeup signal: any number of concurrent Post calls
// between two receives on C deliver exactly one wakeup (spec §4.1
// Invariant "posting never blocks, coalesces to a single pending wakeup").
type Chan struct {
	c chan struct{}
}

func New() *Chan {
	return &Chan{c: make(chan struct{}, 1)}
}

// Post signals the worker without blocking, coalescing with any pending,
// unconsumed wakeup.
func (w *Chan) Post() {
	select {
	case w.c <- struct{}{}:
	default:
	}
}

// C is the channel the worker passes to Multi.Wait.
func (w *Chan) C() <-chan struct{} { return w.c }
