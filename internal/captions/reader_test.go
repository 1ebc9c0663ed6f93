package captions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/podium/internal/database"
	"github.com/snarg/podium/internal/notify"
)

// fakeLister returns a canned backlog.
type fakeLister struct {
	backlog []database.CaptionAPI
	err     error
}

func (f *fakeLister) ListCaptions(context.Context, string) ([]database.CaptionAPI, error) {
	return f.backlog, f.err
}

func collect(t *testing.T, ch <-chan database.CaptionAPI, n int) []database.CaptionAPI {
	t.Helper()
	var got []database.CaptionAPI
	for len(got) < n {
		select {
		case c := <-ch:
			got = append(got, c)
		case <-time.After(time.Second):
			t.Fatalf("timed out after %d of %d captions", len(got), n)
		}
	}
	return got
}

// ── Reader.Stream ────────────────────────────────────────────────────

func TestReaderBacklogThenLive(t *testing.T) {
	bus := notify.NewBus()
	lister := &fakeLister{backlog: []database.CaptionAPI{
		{ID: "c1", RoomID: "room-1", Content: "first"},
		{ID: "c2", RoomID: "room-1", Content: "second"},
	}}
	r := NewReader(lister, bus, zerolog.Nop())

	ch, cancel, err := r.Stream(context.Background(), "room-1")
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer cancel()

	bus.Publish(database.CaptionAPI{ID: "c3", RoomID: "room-1", Content: "third"})

	got := collect(t, ch, 3)
	for i, want := range []string{"c1", "c2", "c3"} {
		if got[i].ID != want {
			t.Errorf("caption[%d].ID = %q, want %q (fetch-then-live order)", i, got[i].ID, want)
		}
	}
}

func TestReaderDeduplicatesBacklogOverlap(t *testing.T) {
	bus := notify.NewBus()
	lister := &fakeLister{backlog: []database.CaptionAPI{
		{ID: "c1", RoomID: "room-1"},
	}}
	r := NewReader(lister, bus, zerolog.Nop())

	ch, cancel, err := r.Stream(context.Background(), "room-1")
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer cancel()

	// The live feed replays the insert already covered by the fetch,
	// then delivers a genuinely new one.
	bus.Publish(database.CaptionAPI{ID: "c1", RoomID: "room-1"})
	bus.Publish(database.CaptionAPI{ID: "c2", RoomID: "room-1"})

	got := collect(t, ch, 2)
	if got[0].ID != "c1" || got[1].ID != "c2" {
		t.Errorf("got ids %q, %q; want c1, c2 with duplicate suppressed", got[0].ID, got[1].ID)
	}

	select {
	case c := <-ch:
		t.Fatalf("unexpected extra caption %q", c.ID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestReaderCancelReleasesSubscription(t *testing.T) {
	bus := notify.NewBus()
	r := NewReader(&fakeLister{}, bus, zerolog.Nop())

	_, cancel, err := r.Stream(context.Background(), "room-1")
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if n := bus.SubscriberCount(); n != 1 {
		t.Fatalf("SubscriberCount = %d, want 1", n)
	}

	cancel()
	if n := bus.SubscriberCount(); n != 0 {
		t.Errorf("SubscriberCount = %d after cancel, want 0", n)
	}
	// Idempotent.
	cancel()
}

func TestReaderContextCancelClosesChannel(t *testing.T) {
	bus := notify.NewBus()
	r := NewReader(&fakeLister{}, bus, zerolog.Nop())

	ctx, cancelCtx := context.WithCancel(context.Background())
	ch, cancel, err := r.Stream(ctx, "room-1")
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer cancel()

	cancelCtx()
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel after context cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after context cancel")
	}
}

func TestReaderFetchErrorReleasesSubscription(t *testing.T) {
	bus := notify.NewBus()
	r := NewReader(&fakeLister{err: errors.New("boom")}, bus, zerolog.Nop())

	_, _, err := r.Stream(context.Background(), "room-1")
	if err == nil {
		t.Fatal("expected error from failed bulk fetch")
	}
	if n := bus.SubscriberCount(); n != 0 {
		t.Errorf("SubscriberCount = %d after failed Stream, want 0", n)
	}
}
