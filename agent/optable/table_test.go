package optable_test

import (
	"testing"

	"github.com/NVIDIA/curlmulti/agent/optable"
	"github.com/NVIDIA/curlmulti/agent/reqctx"
)

func TestInsertLookupRemove(t *testing.T) {
	tbl := optable.New()
	ctx := reqctx.New(nil, nil, nil, nil)

	tbl.Insert(optable.Token(1), ctx)
	got, ok := tbl.Lookup(optable.Token(1))
	if !ok || got != ctx {
		t.Fatalf("Lookup after Insert: got %v, %v", got, ok)
	}

	removed, ok := tbl.Remove(optable.Token(1))
	if !ok || removed != ctx {
		t.Fatalf("Remove: got %v, %v", removed, ok)
	}
	if _, ok := tbl.Lookup(optable.Token(1)); ok {
		t.Fatal("Lookup succeeded after Remove")
	}
}

// TestTokensNeverCollideAcrossReuse documents that, unlike the old
// index+generation scheme, a token is never recycled: once 1 is removed,
// a brand-new transfer is still minted token 2 by the Agent and the table
// holds no memory of 1 at all.
func TestTokensNeverCollideAcrossReuse(t *testing.T) {
	tbl := optable.New()
	first := reqctx.New(nil, nil, nil, nil)
	second := reqctx.New(nil, nil, nil, nil)

	tbl.Insert(optable.Token(1), first)
	tbl.Remove(optable.Token(1))
	tbl.Insert(optable.Token(2), second)

	if _, ok := tbl.Lookup(optable.Token(1)); ok {
		t.Fatal("removed token 1 resolved successfully")
	}
	got, ok := tbl.Lookup(optable.Token(2))
	if !ok || got != second {
		t.Fatalf("Lookup(2): got %v, %v", got, ok)
	}
}

func TestRemoveUnknownToken(t *testing.T) {
	tbl := optable.New()
	if _, ok := tbl.Remove(optable.Token(12345)); ok {
		t.Fatal("Remove on an empty table reported success")
	}
}

func TestSnapshotAndLen(t *testing.T) {
	tbl := optable.New()
	a := reqctx.New(nil, nil, nil, nil)
	b := reqctx.New(nil, nil, nil, nil)
	tbl.Insert(optable.Token(1), a)
	tbl.Insert(optable.Token(2), b)

	if n := tbl.Len(); n != 2 {
		t.Fatalf("Len() = %d, want 2", n)
	}
	snap := tbl.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("Snapshot() len = %d, want 2", len(snap))
	}
}
