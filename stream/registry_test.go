package stream

import (
	"sync"
	"testing"
)

func TestRegistryAdmitRemove(t *testing.T) {
	r := NewRegistry()
	c := newConn(nil, "u1")

	r.Admit(c, "b1")
	if got := r.ListByBoard("b1"); len(got) != 1 || got[0] != c {
		t.Fatalf("expected admitted connection, got %v", got)
	}

	// A connection is scoped to one board for its lifetime.
	r.Admit(c, "b2")
	if got := r.ListByBoard("b2"); len(got) != 0 {
		t.Fatalf("expected re-admission elsewhere to be ignored, got %v", got)
	}
	if got := r.ListByBoard("b1"); len(got) != 1 {
		t.Fatalf("expected original membership intact, got %v", got)
	}

	r.Remove(c)
	if got := r.ListByBoard("b1"); len(got) != 0 {
		t.Fatalf("expected empty board after remove, got %v", got)
	}

	// Removing again is a no-op.
	r.Remove(c)
}

func TestRegistryRemoveNeverAdmitted(t *testing.T) {
	r := NewRegistry()
	r.Remove(newConn(nil, "u1"))
	if got := r.ListByBoard(""); len(got) != 0 {
		t.Fatalf("expected no phantom membership, got %v", got)
	}
}

func TestRegistryConcurrentChurn(t *testing.T) {
	r := NewRegistry()
	boards := []string{"b1", "b2", "b3"}

	const perBoard = 50
	var wg sync.WaitGroup
	kept := make(chan *Conn, len(boards)*perBoard)
	for _, board := range boards {
		for i := 0; i < perBoard; i++ {
			wg.Add(1)
			go func(board string, i int) {
				defer wg.Done()
				c := newConn(nil, "u")
				r.Admit(c, board)
				if i%2 == 0 {
					r.Remove(c)
					return
				}
				kept <- c
			}(board, i)
		}
	}
	wg.Wait()
	close(kept)

	total := 0
	for _, board := range boards {
		total += len(r.ListByBoard(board))
	}
	if total != len(kept) {
		t.Fatalf("expected %d surviving connections, got %d", len(kept), total)
	}
	for _, board := range boards {
		if got := len(r.ListByBoard(board)); got != perBoard/2 {
			t.Fatalf("board %s: expected %d members, got %d", board, perBoard/2, got)
		}
	}
}

func TestRegistrySnapshotIsCopy(t *testing.T) {
	r := NewRegistry()
	c1 := newConn(nil, "u1")
	c2 := newConn(nil, "u2")
	r.Admit(c1, "b1")
	r.Admit(c2, "b1")

	snap := r.ListByBoard("b1")
	r.Remove(c1)
	r.Remove(c2)

	if len(snap) != 2 {
		t.Fatalf("expected snapshot to keep both entries, got %d", len(snap))
	}
	if len(r.ListByBoard("b1")) != 0 {
		t.Fatal("expected registry to be empty after removes")
	}
}
