package router

import (
	"sync"
	"testing"
	"time"
)

func TestMailbox_PostAndReceive(t *testing.T) {
	mb := NewMailbox[int](10)

	for i := 0; i < 5; i++ {
		if !mb.Post(i) {
			t.Fatalf("Post(%d) returned false", i)
		}
	}

	if got := mb.Stats().Count; got != 5 {
		t.Errorf("Count = %d, want 5", got)
	}

	items := mb.DrainTo(2)
	if len(items) != 2 || items[0] != 0 || items[1] != 1 {
		t.Fatalf("DrainTo(2) = %v, want [0 1]", items)
	}
	items = mb.DrainTo(0)
	if len(items) != 3 || items[0] != 2 || items[2] != 4 {
		t.Fatalf("DrainTo(0) = %v, want [2 3 4]", items)
	}

	if items := mb.DrainTo(0); items != nil {
		t.Errorf("DrainTo on empty mailbox = %v, want nil", items)
	}
	if got := mb.Stats().TotalTaken; got != 5 {
		t.Errorf("TotalTaken = %d, want 5", got)
	}
}

func TestMailbox_GrowAt70Percent(t *testing.T) {
	mb := NewMailbox[int](10)

	// 7 items is 70% of 10
	for i := 0; i < 7; i++ {
		mb.Post(i)
	}

	stats := mb.Stats()
	if stats.Capacity <= 10 {
		t.Errorf("Capacity = %d, expected growth after 70%% fill", stats.Capacity)
	}
	if stats.ResizeCount != 1 {
		t.Errorf("ResizeCount = %d, want 1", stats.ResizeCount)
	}

	items := mb.DrainTo(0)
	for i, val := range items {
		if val != i {
			t.Errorf("items[%d] = %d, want %d", i, val, i)
		}
	}
}

func TestMailbox_GrowWhileWrapped(t *testing.T) {
	mb := NewMailbox[int](8)

	// Move head forward so the ring wraps before growing
	for i := 0; i < 4; i++ {
		mb.Post(-1)
	}
	mb.DrainTo(4)

	for i := 0; i < 100; i++ {
		if !mb.Post(i) {
			t.Fatalf("Post(%d) returned false", i)
		}
	}

	items := mb.DrainTo(0)
	if len(items) != 100 {
		t.Fatalf("DrainTo(0) returned %d items, want 100", len(items))
	}
	for i, val := range items {
		if val != i {
			t.Fatalf("items[%d] = %d, want %d", i, val, i)
		}
	}
}

func TestMailbox_ReadySignals(t *testing.T) {
	mb := NewMailbox[int](4)

	select {
	case <-mb.Ready():
		t.Fatal("Ready fired on empty mailbox")
	default:
	}

	mb.Post(1)
	mb.Post(2)

	select {
	case <-mb.Ready():
	case <-time.After(time.Second):
		t.Fatal("Ready did not fire after Post")
	}

	// Partial drain re-arms the signal.
	if got := mb.DrainTo(1); len(got) != 1 || got[0] != 1 {
		t.Fatalf("DrainTo(1) = %v, want [1]", got)
	}
	select {
	case <-mb.Ready():
	default:
		t.Fatal("Ready not re-armed with items remaining")
	}
}

func TestMailbox_Close(t *testing.T) {
	mb := NewMailbox[int](10)

	mb.Post(1)
	mb.Post(2)
	mb.Close()

	if mb.Post(3) {
		t.Error("Post should return false after Close")
	}

	items := mb.DrainTo(0)
	if len(items) != 2 || items[0] != 1 || items[1] != 2 {
		t.Errorf("DrainTo(0) = %v, want [1 2]", items)
	}
}

func TestMailbox_ConcurrentPosters(t *testing.T) {
	mb := NewMailbox[int](4)

	const (
		posters = 8
		each    = 500
	)

	var wg sync.WaitGroup
	for p := 0; p < posters; p++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < each; i++ {
				mb.Post(base*each + i)
			}
		}(p)
	}

	received := 0
	lastSeen := make(map[int]int)
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	for received < posters*each {
		select {
		case <-mb.Ready():
			for _, v := range mb.DrainTo(64) {
				poster := v / each
				if last, ok := lastSeen[poster]; ok && v <= last {
					t.Fatalf("poster %d out of order: %d after %d", poster, v, last)
				}
				lastSeen[poster] = v
				received++
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("received %d of %d items", received, posters*each)
		}
	}

	<-done
	stats := mb.Stats()
	if stats.TotalPosted != posters*each {
		t.Errorf("TotalPosted = %d, want %d", stats.TotalPosted, posters*each)
	}
	if stats.TotalTaken != stats.TotalPosted {
		t.Errorf("TotalTaken = %d, want %d", stats.TotalTaken, stats.TotalPosted)
	}
}

func TestPendingQueue_Compaction(t *testing.T) {
	var q pendingQueue
	now := time.Now()

	for i := 0; i < 200; i++ {
		q.push(string(rune('a'+i%26)), now)
	}
	for i := 0; i < 150; i++ {
		want := string(rune('a' + i%26))
		got, ok := q.peek()
		if !ok || got != want {
			t.Fatalf("peek() = %q, %v; want %q", got, ok, want)
		}
		q.pop()
	}

	if q.len() != 50 {
		t.Errorf("len() = %d, want 50", q.len())
	}
	if q.head >= compactThreshold*2 {
		t.Errorf("head = %d, expected compaction", q.head)
	}

	snap := q.snapshot()
	for i, got := range snap {
		want := string(rune('a' + (150+i)%26))
		if got != want {
			t.Fatalf("snapshot[%d] = %q, want %q", i, got, want)
		}
	}
}
