package notify

import (
	"testing"
	"time"

	"eventbooking/internal/domain"
)

func recvOne(t *testing.T, ch <-chan domain.Occupancy) domain.Occupancy {
	t.Helper()
	select {
	case occ, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return occ
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for update")
		return domain.Occupancy{}
	}
}

func assertEmpty(t *testing.T, ch <-chan domain.Occupancy) {
	t.Helper()
	select {
	case occ := <-ch:
		t.Fatalf("expected no update, got %+v", occ)
	default:
	}
}

func TestHub_PublishFansOutToSubscribers(t *testing.T) {
	h := NewHub()
	defer h.Close()

	chA, cancelA := h.Register("conn-a")
	defer cancelA()
	chB, cancelB := h.Register("conn-b")
	defer cancelB()
	h.Join("conn-a", "e1")
	h.Join("conn-b", "e1")

	h.Publish("e1", domain.Occupancy{EventID: "e1", BookedCount: 1, Capacity: 1})

	for _, ch := range []<-chan domain.Occupancy{chA, chB} {
		occ := recvOne(t, ch)
		if occ.EventID != "e1" || occ.BookedCount != 1 || occ.Capacity != 1 {
			t.Fatalf("unexpected update: %+v", occ)
		}
		// Exactly one delivery per publish.
		assertEmpty(t, ch)
	}
}

func TestHub_LateJoinerGetsNoReplay(t *testing.T) {
	h := NewHub()
	defer h.Close()

	h.Publish("e1", domain.Occupancy{EventID: "e1", BookedCount: 1, Capacity: 1})

	ch, cancel := h.Register("conn-c")
	defer cancel()
	h.Join("conn-c", "e1")

	assertEmpty(t, ch)
}

func TestHub_PublishOnlyReachesTopicMembers(t *testing.T) {
	h := NewHub()
	defer h.Close()

	chA, cancelA := h.Register("conn-a")
	defer cancelA()
	chB, cancelB := h.Register("conn-b")
	defer cancelB()
	h.Join("conn-a", "e1")
	h.Join("conn-b", "e2")

	h.Publish("e1", domain.Occupancy{EventID: "e1", BookedCount: 3, Capacity: 5})

	if occ := recvOne(t, chA); occ.EventID != "e1" {
		t.Fatalf("unexpected update: %+v", occ)
	}
	assertEmpty(t, chB)
}

func TestHub_LeaveStopsDelivery(t *testing.T) {
	h := NewHub()
	defer h.Close()

	ch, cancel := h.Register("conn-a")
	defer cancel()
	h.Join("conn-a", "e1")
	h.Leave("conn-a", "e1")
	h.Leave("conn-a", "e1") // idempotent

	h.Publish("e1", domain.Occupancy{EventID: "e1", BookedCount: 1, Capacity: 2})

	assertEmpty(t, ch)
}

// A subscriber that stops draining must not block the publisher; overflow
// updates are dropped for that connection only.
func TestHub_SlowSubscriberDoesNotBlockPublish(t *testing.T) {
	h := NewHub()
	h.bufferSize = 1
	defer h.Close()

	slow, cancelSlow := h.Register("conn-slow")
	defer cancelSlow()
	h.Join("conn-slow", "e1")

	done := make(chan struct{})
	go func() {
		for i := 1; i <= 10; i++ {
			h.Publish("e1", domain.Occupancy{EventID: "e1", BookedCount: i, Capacity: 10})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	// The slow subscriber got the first update and lost the overflow.
	if occ := recvOne(t, slow); occ.BookedCount != 1 {
		t.Fatalf("expected first update, got %+v", occ)
	}
	assertEmpty(t, slow)
}

func TestHub_CancelClosesChannelAndIsIdempotent(t *testing.T) {
	h := NewHub()
	defer h.Close()

	ch, cancel := h.Register("conn-a")
	h.Join("conn-a", "e1")

	cancel()
	cancel()

	if _, open := <-ch; open {
		t.Fatal("expected channel closed after cancel")
	}

	// The departed connection is gone from the topic as well.
	h.Publish("e1", domain.Occupancy{EventID: "e1", BookedCount: 1, Capacity: 1})
}

func TestHub_ReRegisterReplacesConnection(t *testing.T) {
	h := NewHub()
	defer h.Close()

	old, _ := h.Register("conn-a")
	h.Join("conn-a", "e1")

	fresh, cancel := h.Register("conn-a")
	defer cancel()

	if _, open := <-old; open {
		t.Fatal("expected stale channel closed on re-register")
	}

	// Subscriptions do not carry over to the replacement.
	h.Publish("e1", domain.Occupancy{EventID: "e1", BookedCount: 1, Capacity: 1})
	assertEmpty(t, fresh)

	h.Join("conn-a", "e1")
	h.Publish("e1", domain.Occupancy{EventID: "e1", BookedCount: 2, Capacity: 2})
	if occ := recvOne(t, fresh); occ.BookedCount != 2 {
		t.Fatalf("unexpected update: %+v", occ)
	}
}

func TestHub_CloseClosesAllChannels(t *testing.T) {
	h := NewHub()

	chA, _ := h.Register("conn-a")
	chB, _ := h.Register("conn-b")

	if err := h.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, ch := range []<-chan domain.Occupancy{chA, chB} {
		if _, open := <-ch; open {
			t.Fatal("expected channel closed after hub close")
		}
	}
}
