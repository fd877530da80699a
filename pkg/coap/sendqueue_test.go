package coap

import "testing"

func TestSendQueueOrdersByTick(t *testing.T) {
	q := newSendQueue()
	q.Insert(&sendEntry{tid: 3, t: 30})
	q.Insert(&sendEntry{tid: 1, t: 10})
	q.Insert(&sendEntry{tid: 2, t: 20})

	got := q.Walk()
	want := []TransactionID{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(got))
	}
	for i, e := range got {
		if e.tid != want[i] {
			t.Errorf("position %d: expected tid %d, got %d", i, want[i], e.tid)
		}
	}
}

func TestSendQueueTiesBrokenByInsertionOrder(t *testing.T) {
	q := newSendQueue()
	q.Insert(&sendEntry{tid: 1, t: 10})
	q.Insert(&sendEntry{tid: 2, t: 10})
	q.Insert(&sendEntry{tid: 3, t: 10})

	got := q.Walk()
	want := []TransactionID{1, 2, 3}
	for i, e := range got {
		if e.tid != want[i] {
			t.Errorf("position %d: expected tid %d, got %d", i, want[i], e.tid)
		}
	}
}

func TestSendQueuePeekDueAndPopFront(t *testing.T) {
	q := newSendQueue()
	q.Insert(&sendEntry{tid: 1, t: 100})

	if q.PeekDue(50) != nil {
		t.Fatal("expected nothing due before its tick")
	}
	if e := q.PeekDue(100); e == nil || e.tid != 1 {
		t.Fatal("expected entry due at its own tick")
	}

	popped := q.PopFront()
	if popped == nil || popped.tid != 1 {
		t.Fatal("expected to pop the sole entry")
	}
	if !q.Empty() {
		t.Fatal("expected queue to be empty after popping its only entry")
	}
}

func TestSendQueueRemoveByTID(t *testing.T) {
	q := newSendQueue()
	q.Insert(&sendEntry{tid: 1, t: 10})
	q.Insert(&sendEntry{tid: 2, t: 20})
	q.Insert(&sendEntry{tid: 3, t: 30})

	removed := q.RemoveByTID(2)
	if removed == nil || removed.tid != 2 {
		t.Fatalf("expected to remove tid 2, got %+v", removed)
	}

	got := q.Walk()
	if len(got) != 2 || got[0].tid != 1 || got[1].tid != 3 {
		t.Fatalf("expected remaining [1 3], got %+v", got)
	}

	if q.RemoveByTID(99) != nil {
		t.Fatal("expected RemoveByTID to return nil for an unknown id")
	}
}
