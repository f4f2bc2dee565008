// Package optable implements the Active Operation Table of spec §3/§9: the
// worker's map from a token the transport echoes back to the Request
// Context it belongs to. Grounded on the teacher's stream bundle registry
// pattern (transport/sendmsg.go's bundle-by-target map) — a single map
// guarded by one mutex, sized for the worker's own goroutine plus
// occasional external Cancel/Unpause calls.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package optable

import (
	"sync"

	"github.com/NVIDIA/curlmulti/agent/reqctx"
)

// Token is the opaque handle a caller holds for a submitted transfer. It is
// minted once per transfer by the Agent (a monotonic counter, never reused)
// before the transfer is ever inserted here — the table itself never
// generates a token, only binds one to a Request Context (spec §3 Token,
// §5 "worker is the table's only mutator": the table no longer needs to
// invent identity, only record it).
type Token uint64

// Table is the Active Operation Table: only the worker goroutine ever
// calls Insert/Remove (spec §5 Invariant "table mutated by the worker
// alone"); Lookup/Len/Snapshot are safe for any goroutine to call, though
// in practice only the worker does.
type Table struct {
	mu      sync.Mutex
	entries map[Token]*reqctx.Context
}

func New() *Table {
	return &Table{entries: make(map[Token]*reqctx.Context)}
}

// Insert binds tok (already assigned to ctx before this call, per spec
// §4.6 step 1) to ctx. Called by the worker only, after the transport has
// accepted the easy handle (spec §3 "entry exists iff transport has
// accepted the handle").
func (t *Table) Insert(tok Token, ctx *reqctx.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[tok] = ctx
}

// Lookup resolves a token the transport echoed back, or a token an
// external caller is asking about. ok is false once the entry has been
// removed (already reaped, already canceled, or never activated).
func (t *Table) Lookup(tok Token) (*reqctx.Context, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ctx, ok := t.entries[tok]
	return ctx, ok
}

// Remove deactivates tok, returning the Request Context it was bound to.
func (t *Table) Remove(tok Token) (*reqctx.Context, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ctx, ok := t.entries[tok]
	if !ok {
		return nil, false
	}
	delete(t.entries, tok)
	return ctx, true
}

func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Snapshot returns every active Request Context, used when the worker
// drains the table on fatal shutdown (spec §4.6, Non-goals "graceful
// drain" is out of scope but an abrupt one on Dispose is not).
func (t *Table) Snapshot() []*reqctx.Context {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*reqctx.Context, 0, len(t.entries))
	for _, ctx := range t.entries {
		out = append(out, ctx)
	}
	return out
}
