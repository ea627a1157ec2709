package router

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeLookup resolves keys from a fixed table. If gate is non-nil every
// lookup blocks until it is closed.
type fakeLookup struct {
	names map[string]string
	err   error
	gate  chan struct{}
	calls atomic.Int32
}

func (f *fakeLookup) Lookup(ctx context.Context, key string) (string, bool, error) {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return "", false, ctx.Err()
		}
	}
	if f.err != nil {
		return "", false, f.err
	}
	name, ok := f.names[key]
	return name, ok, nil
}

func newLookup() *fakeLookup {
	return &fakeLookup{names: map[string]string{
		"K1":  "Alpha",
		"K2":  "Beta",
		"ABC": "Gamma",
	}}
}

func startRouter(t *testing.T, cfg Config, lookup CredentialLookup) Router {
	t.Helper()
	r := NewRouter(cfg, lookup, nil)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		r.Stop(ctx)
	})
	return r
}

func connect(t *testing.T, r Router) (ConnID, <-chan string) {
	t.Helper()
	id, out, err := r.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	return id, out
}

func recv(t *testing.T, out <-chan string) string {
	t.Helper()
	select {
	case msg, ok := <-out:
		if !ok {
			t.Fatal("outbound channel closed")
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for delivery")
	}
	return ""
}

func expectNothing(t *testing.T, out <-chan string, wait time.Duration) {
	t.Helper()
	select {
	case msg := <-out:
		t.Fatalf("unexpected delivery %q", msg)
	case <-time.After(wait):
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func TestRouter_ConnectDistinctIDs(t *testing.T) {
	r := startRouter(t, DefaultConfig(), newLookup())

	seen := make(map[ConnID]bool)
	for i := 0; i < 50; i++ {
		id, out := connect(t, r)
		if seen[id] {
			t.Fatalf("duplicate ConnID %s", id)
		}
		seen[id] = true
		if cap(out) != DefaultConfig().OutboundBufferSize {
			t.Errorf("cap(out) = %d, want %d", cap(out), DefaultConfig().OutboundBufferSize)
		}
	}

	stats, err := r.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Connections != 50 {
		t.Errorf("Connections = %d, want 50", stats.Connections)
	}
}

func TestRouter_Verify(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		wantName string
		wantErr  error
	}{
		{name: "known key", key: "K1", wantName: "Alpha"},
		{name: "unknown key", key: "nope", wantErr: ErrUnknownKey},
		{name: "empty key", key: "", wantErr: ErrUnknownKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := startRouter(t, DefaultConfig(), newLookup())
			id, _ := connect(t, r)

			name, err := r.Verify(context.Background(), tt.key, id)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Verify() error = %v, want %v", err, tt.wantErr)
			}
			if name != tt.wantName {
				t.Errorf("Verify() name = %q, want %q", name, tt.wantName)
			}

			online, err := r.Online(context.Background(), tt.key)
			if err != nil {
				t.Fatalf("Online() error = %v", err)
			}
			if online != (tt.wantErr == nil) {
				t.Errorf("Online() = %v, want %v", online, tt.wantErr == nil)
			}
		})
	}
}

func TestRouter_VerifyUnknownConnection(t *testing.T) {
	r := startRouter(t, DefaultConfig(), newLookup())

	id, _ := connect(t, r)
	r.Disconnect(id)

	if _, err := r.Verify(context.Background(), "K1", id); !errors.Is(err, ErrUnknownConnection) {
		t.Errorf("Verify() error = %v, want ErrUnknownConnection", err)
	}
}

func TestRouter_VerifyIdempotent(t *testing.T) {
	lookup := newLookup()
	r := startRouter(t, DefaultConfig(), lookup)
	id, _ := connect(t, r)

	for i := 0; i < 3; i++ {
		name, err := r.Verify(context.Background(), "K1", id)
		if err != nil {
			t.Fatalf("Verify() #%d error = %v", i, err)
		}
		if name != "Alpha" {
			t.Errorf("Verify() #%d name = %q, want Alpha", i, name)
		}
	}

	if got := lookup.calls.Load(); got != 1 {
		t.Errorf("lookup calls = %d, want 1", got)
	}
}

func TestRouter_VerifyAlreadyBound(t *testing.T) {
	r := startRouter(t, DefaultConfig(), newLookup())
	id, _ := connect(t, r)

	if _, err := r.Verify(context.Background(), "K1", id); err != nil {
		t.Fatalf("Verify(K1) error = %v", err)
	}
	if _, err := r.Verify(context.Background(), "K2", id); !errors.Is(err, ErrAlreadyBound) {
		t.Errorf("Verify(K2) error = %v, want ErrAlreadyBound", err)
	}

	online, _ := r.Online(context.Background(), "K2")
	if online {
		t.Error("K2 should not be bound")
	}
}

func TestRouter_VerifyDuplicateKey(t *testing.T) {
	r := startRouter(t, DefaultConfig(), newLookup())
	first, firstOut := connect(t, r)
	second, _ := connect(t, r)

	if _, err := r.Verify(context.Background(), "K1", first); err != nil {
		t.Fatalf("first Verify() error = %v", err)
	}
	if _, err := r.Verify(context.Background(), "K1", second); !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("second Verify() error = %v, want ErrDuplicateKey", err)
	}

	// The existing binding is untouched.
	r.Deliver("K1", "still-first")
	if got := recv(t, firstOut); got != "still-first" {
		t.Errorf("delivery = %q, want still-first", got)
	}
}

func TestRouter_ConcurrentVerifySingleWinner(t *testing.T) {
	lookup := newLookup()
	lookup.gate = make(chan struct{})
	r := startRouter(t, DefaultConfig(), lookup)

	const contenders = 16
	ids := make([]ConnID, contenders)
	for i := range ids {
		ids[i], _ = connect(t, r)
	}

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		dupes     atomic.Int32
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id ConnID) {
			defer wg.Done()
			_, err := r.Verify(context.Background(), "ABC", id)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, ErrDuplicateKey):
				dupes.Add(1)
			default:
				t.Errorf("Verify() unexpected error = %v", err)
			}
		}(id)
	}

	// Hold every lookup in flight before releasing them together.
	waitFor(t, "lookups in flight", func() bool { return lookup.calls.Load() == contenders })
	close(lookup.gate)
	wg.Wait()

	if successes.Load() != 1 {
		t.Errorf("successes = %d, want 1", successes.Load())
	}
	if dupes.Load() != contenders-1 {
		t.Errorf("duplicate rejections = %d, want %d", dupes.Load(), contenders-1)
	}

	stats, _ := r.Stats(context.Background())
	if stats.Bindings != 1 {
		t.Errorf("Bindings = %d, want 1", stats.Bindings)
	}
}

func TestRouter_DisconnectDuringLookup(t *testing.T) {
	lookup := newLookup()
	lookup.gate = make(chan struct{})
	r := startRouter(t, DefaultConfig(), lookup)
	id, out := connect(t, r)

	errCh := make(chan error, 1)
	go func() {
		_, err := r.Verify(context.Background(), "K1", id)
		errCh <- err
	}()

	waitFor(t, "lookup in flight", func() bool { return lookup.calls.Load() == 1 })
	r.Disconnect(id)
	close(lookup.gate)

	if err := <-errCh; !errors.Is(err, ErrUnknownConnection) {
		t.Errorf("Verify() error = %v, want ErrUnknownConnection", err)
	}
	if _, ok := <-out; ok {
		t.Error("outbound channel should be closed")
	}
	online, _ := r.Online(context.Background(), "K1")
	if online {
		t.Error("K1 should not be bound after disconnect")
	}
}

func TestRouter_LookupError(t *testing.T) {
	lookup := newLookup()
	lookup.err = errors.New("database unavailable")
	r := startRouter(t, DefaultConfig(), lookup)
	id, _ := connect(t, r)

	_, err := r.Verify(context.Background(), "K1", id)
	if err == nil {
		t.Fatal("Verify() expected error")
	}
	if !errors.Is(err, lookup.err) {
		t.Errorf("Verify() error = %v, want wrapped lookup error", err)
	}
	if errors.Is(err, ErrUnknownKey) {
		t.Error("lookup failure must not be reported as unknown key")
	}
}

func TestRouter_DeliverBound(t *testing.T) {
	r := startRouter(t, DefaultConfig(), newLookup())
	id, out := connect(t, r)
	if _, err := r.Verify(context.Background(), "K1", id); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	r.Deliver("K1", "alice")
	if got := recv(t, out); got != "alice" {
		t.Errorf("delivery = %q, want alice", got)
	}
}

func TestRouter_DeliverBeforeVerify(t *testing.T) {
	r := startRouter(t, DefaultConfig(), newLookup())

	r.Deliver("K2", "p1")
	r.Deliver("K2", "p2")

	pending, err := r.Pending(context.Background(), "K2")
	if err != nil {
		t.Fatalf("Pending() error = %v", err)
	}
	if len(pending) != 2 || pending[0] != "p1" || pending[1] != "p2" {
		t.Fatalf("Pending() = %v, want [p1 p2]", pending)
	}

	id, out := connect(t, r)
	if _, err := r.Verify(context.Background(), "K2", id); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	for _, want := range []string{"p1", "p2"} {
		if got := recv(t, out); got != want {
			t.Errorf("delivery = %q, want %q", got, want)
		}
	}

	pending, _ = r.Pending(context.Background(), "K2")
	if len(pending) != 0 {
		t.Errorf("Pending() after drain = %v, want empty", pending)
	}
}

func TestRouter_BackpressurePreservesOrder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OutboundBufferSize = 1
	cfg.SweepInterval = 20 * time.Millisecond
	r := startRouter(t, cfg, newLookup())

	id, out := connect(t, r)
	if _, err := r.Verify(context.Background(), "K1", id); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	want := []string{"m1", "m2", "m3", "m4", "m5"}
	for _, p := range want {
		r.Deliver("K1", p)
	}

	// One in the channel, the rest queued.
	pending, _ := r.Pending(context.Background(), "K1")
	if len(pending) != len(want)-1 {
		t.Fatalf("Pending() = %v, want %d items", pending, len(want)-1)
	}

	for _, w := range want {
		if got := recv(t, out); got != w {
			t.Fatalf("delivery = %q, want %q", got, w)
		}
	}
}

func TestRouter_DeliverAfterQueuedKeepsOrder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SweepInterval = time.Hour
	r := startRouter(t, cfg, newLookup())

	r.Deliver("K1", "early")

	id, out := connect(t, r)
	if _, err := r.Verify(context.Background(), "K1", id); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	r.Deliver("K1", "late")

	if got := recv(t, out); got != "early" {
		t.Errorf("first delivery = %q, want early", got)
	}
	if got := recv(t, out); got != "late" {
		t.Errorf("second delivery = %q, want late", got)
	}
}

func TestRouter_DisconnectCleansUp(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SweepInterval = time.Hour
	r := startRouter(t, cfg, newLookup())

	id, out := connect(t, r)
	if _, err := r.Verify(context.Background(), "K1", id); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	r.Disconnect(id)
	r.Disconnect(id)

	select {
	case _, ok := <-out:
		if ok {
			t.Error("expected closed outbound channel")
		}
	case <-time.After(time.Second):
		t.Fatal("outbound channel not closed")
	}

	online, _ := r.Online(context.Background(), "K1")
	if online {
		t.Error("K1 still bound after Disconnect")
	}

	// Deliveries now queue for the next session.
	r.Deliver("K1", "later")
	pending, _ := r.Pending(context.Background(), "K1")
	if len(pending) != 1 || pending[0] != "later" {
		t.Errorf("Pending() = %v, want [later]", pending)
	}

	stats, _ := r.Stats(context.Background())
	if stats.Connections != 0 || stats.Bindings != 0 {
		t.Errorf("stats = %+v, want no connections or bindings", stats)
	}

	// A new session can claim the key.
	id2, out2 := connect(t, r)
	if _, err := r.Verify(context.Background(), "K1", id2); err != nil {
		t.Fatalf("re-Verify() error = %v", err)
	}
	if got := recv(t, out2); got != "later" {
		t.Errorf("delivery = %q, want later", got)
	}
}

func TestRouter_DisconnectUnknownIsNoop(t *testing.T) {
	r := startRouter(t, DefaultConfig(), newLookup())
	id, out := connect(t, r)
	if _, err := r.Verify(context.Background(), "K1", id); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	var stranger ConnID
	r.Disconnect(stranger)

	r.Deliver("K1", "ok")
	if got := recv(t, out); got != "ok" {
		t.Errorf("delivery = %q, want ok", got)
	}
}

func TestRouter_PendingTTL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SweepInterval = 10 * time.Millisecond
	cfg.PendingTTL = 50 * time.Millisecond
	r := startRouter(t, cfg, newLookup())

	r.Deliver("K1", "stale")

	waitFor(t, "pending expiry", func() bool {
		pending, err := r.Pending(context.Background(), "K1")
		return err == nil && len(pending) == 0
	})

	stats, _ := r.Stats(context.Background())
	if stats.Expired != 1 {
		t.Errorf("Expired = %d, want 1", stats.Expired)
	}

	id, out := connect(t, r)
	if _, err := r.Verify(context.Background(), "K1", id); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	expectNothing(t, out, 50*time.Millisecond)
}

func TestRouter_NoTTLKeepsPending(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SweepInterval = 5 * time.Millisecond
	r := startRouter(t, cfg, newLookup())

	r.Deliver("K1", "kept")
	time.Sleep(50 * time.Millisecond)

	pending, _ := r.Pending(context.Background(), "K1")
	if len(pending) != 1 {
		t.Errorf("Pending() = %v, want [kept]", pending)
	}
}

func TestRouter_Stop(t *testing.T) {
	r := NewRouter(DefaultConfig(), newLookup(), nil)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	_, out := connect(t, r)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if _, ok := <-out; ok {
		t.Error("outbound channel should be closed after Stop")
	}
	if _, _, err := r.Connect(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("Connect() after Stop error = %v, want ErrStopped", err)
	}

	// Must not panic or block.
	r.Deliver("K1", "dropped")
	r.Disconnect(ConnID{})
}

func TestRouter_CallHonorsContext(t *testing.T) {
	lookup := newLookup()
	lookup.gate = make(chan struct{})
	defer close(lookup.gate)
	r := startRouter(t, DefaultConfig(), lookup)
	id, _ := connect(t, r)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if _, err := r.Verify(ctx, "K1", id); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Verify() error = %v, want DeadlineExceeded", err)
	}
}
