package notify

import (
	"testing"
	"time"

	"github.com/snarg/podium/internal/database"
)

// ── Bus Publish/Subscribe ────────────────────────────────────────────

func TestBusPublishSubscribe(t *testing.T) {
	t.Run("subscriber_receives_room_caption", func(t *testing.T) {
		b := NewBus()
		ch, cancel := b.Subscribe("room-1")
		defer cancel()

		b.Publish(database.CaptionAPI{ID: "c1", RoomID: "room-1", Content: "hello"})

		select {
		case c := <-ch:
			if c.ID != "c1" {
				t.Errorf("ID = %q, want c1", c.ID)
			}
			if c.Content != "hello" {
				t.Errorf("Content = %q, want hello", c.Content)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for caption")
		}
	})

	t.Run("other_room_filtered_out", func(t *testing.T) {
		b := NewBus()
		ch, cancel := b.Subscribe("room-1")
		defer cancel()

		b.Publish(database.CaptionAPI{ID: "c1", RoomID: "room-2"})

		select {
		case c := <-ch:
			t.Fatalf("should not receive other room's caption, got %+v", c)
		case <-time.After(50 * time.Millisecond):
			// expected
		}
	})

	t.Run("empty_room_matches_all", func(t *testing.T) {
		b := NewBus()
		ch, cancel := b.Subscribe("")
		defer cancel()

		b.Publish(database.CaptionAPI{ID: "c1", RoomID: "room-2"})

		select {
		case c := <-ch:
			if c.ID != "c1" {
				t.Errorf("ID = %q, want c1", c.ID)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for caption")
		}
	})

	t.Run("cancel_stops_delivery", func(t *testing.T) {
		b := NewBus()
		ch, cancel := b.Subscribe("room-1")
		cancel()

		b.Publish(database.CaptionAPI{ID: "c1", RoomID: "room-1"})

		select {
		case c := <-ch:
			t.Fatalf("should not receive caption after cancel, got %+v", c)
		case <-time.After(50 * time.Millisecond):
			// expected — removed from map, channel left open
		}
		if n := b.SubscriberCount(); n != 0 {
			t.Errorf("SubscriberCount = %d after cancel, want 0", n)
		}
	})

	t.Run("multiple_subscribers_same_room", func(t *testing.T) {
		b := NewBus()
		ch1, cancel1 := b.Subscribe("room-1")
		defer cancel1()
		ch2, cancel2 := b.Subscribe("room-1")
		defer cancel2()

		b.Publish(database.CaptionAPI{ID: "c1", RoomID: "room-1"})

		for i, ch := range []<-chan database.CaptionAPI{ch1, ch2} {
			select {
			case c := <-ch:
				if c.ID != "c1" {
					t.Errorf("subscriber %d: ID = %q, want c1", i, c.ID)
				}
			case <-time.After(time.Second):
				t.Fatalf("subscriber %d: timed out", i)
			}
		}
	})

	t.Run("slow_subscriber_drops_not_blocks", func(t *testing.T) {
		b := NewBus()
		_, cancel := b.Subscribe("room-1")
		defer cancel()

		// Overfill the subscriber buffer; Publish must return promptly.
		done := make(chan struct{})
		go func() {
			for i := 0; i < 200; i++ {
				b.Publish(database.CaptionAPI{RoomID: "room-1"})
			}
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Publish blocked on a slow subscriber")
		}
	})
}
