package relay

import "testing"

func TestFrameQueueFIFO(t *testing.T) {
	q := newFrameQueue(3)

	for _, b := range [][]byte{{1}, {2}, {3}} {
		if _, ok := q.push(b); !ok {
			t.Fatalf("push(%v) failed", b)
		}
	}

	for _, want := range [][]byte{{1}, {2}, {3}} {
		got, ok := q.popWait()
		if !ok {
			t.Fatal("popWait() returned false on non-empty queue")
		}
		if got[0] != want[0] {
			t.Errorf("popWait() = %v, want %v", got, want)
		}
	}
}

func TestFrameQueueDropOldest(t *testing.T) {
	q := newFrameQueue(3)

	for i := byte(0); i < 5; i++ {
		q.push([]byte{i})
	}

	if got := q.len(); got != 3 {
		t.Fatalf("len() = %d, want 3", got)
	}

	// The two oldest (0, 1) should have been dropped; front is now 2.
	front, ok := q.popWait()
	if !ok || front[0] != 2 {
		t.Errorf("front = %v, want [2]", front)
	}
}

func TestFrameQueuePushReportsDroppedCount(t *testing.T) {
	q := newFrameQueue(2)
	q.push([]byte{1})
	q.push([]byte{2})

	dropped, ok := q.push([]byte{3})
	if !ok {
		t.Fatal("push() failed unexpectedly")
	}
	if dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
	if got := q.len(); got != 2 {
		t.Errorf("len() = %d, want 2", got)
	}
}

func TestFrameQueueNeverExceedsCapacityUnderSustainedOverflow(t *testing.T) {
	q := newFrameQueue(50)

	for i := 0; i < 200; i++ {
		q.push([]byte{byte(i)})
	}

	if got := q.len(); got != 50 {
		t.Fatalf("len() = %d, want 50 (capacity)", got)
	}
}

func TestFrameQueueCloseWakesWaiter(t *testing.T) {
	q := newFrameQueue(10)
	done := make(chan struct{})

	go func() {
		defer close(done)
		if _, ok := q.popWait(); ok {
			t.Error("popWait() returned ok=true after close with no frames pushed")
		}
	}()

	q.close()
	<-done
}

func TestFrameQueuePushAfterCloseFails(t *testing.T) {
	q := newFrameQueue(10)
	q.close()

	if _, ok := q.push([]byte{1}); ok {
		t.Error("push() succeeded on a closed queue")
	}
}

func TestFrameQueueCloseDrainsThenStopsPops(t *testing.T) {
	q := newFrameQueue(10)
	q.push([]byte{1})
	q.close()

	// close clears buffered frames (DRAINING semantics): nothing left to pop.
	if _, ok := q.popWait(); ok {
		t.Error("popWait() returned a frame after close, want drained queue")
	}
}
