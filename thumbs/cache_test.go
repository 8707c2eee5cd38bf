package thumbs

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// --- test doubles ---

type fakeClock struct{ t int64 }

func (f *fakeClock) NowUnixNano() int64  { return atomic.LoadInt64(&f.t) }
func (f *fakeClock) add(d time.Duration) { atomic.AddInt64(&f.t, int64(d)) }

// testLoader counts load starts per key and, when gated, blocks each
// load until the test releases its key. The key seen here is the
// representative key the scheduler picked.
type testLoader struct {
	mu          sync.Mutex
	starts      map[string]int
	gates       map[string]chan struct{}
	errs        map[string]error
	gated       bool
	inFlight    int
	maxInFlight int
}

func newTestLoader(gated bool) *testLoader {
	return &testLoader{
		starts: make(map[string]int),
		gates:  make(map[string]chan struct{}),
		errs:   make(map[string]error),
		gated:  gated,
	}
}

func (l *testLoader) load(ctx context.Context, key string) ([]byte, error) {
	l.mu.Lock()
	l.starts[key]++
	l.inFlight++
	if l.inFlight > l.maxInFlight {
		l.maxInFlight = l.inFlight
	}
	var gate chan struct{}
	if l.gated {
		gate = l.gateLocked(key)
	}
	err := l.errs[key]
	l.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			if err == nil {
				err = ctx.Err()
			}
		}
	}

	l.mu.Lock()
	l.inFlight--
	l.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return []byte("raw:" + key), nil
}

func (l *testLoader) gateLocked(key string) chan struct{} {
	g, ok := l.gates[key]
	if !ok {
		g = make(chan struct{})
		l.gates[key] = g
	}
	return g
}

// release unblocks the (single) gated load for key.
func (l *testLoader) release(key string) {
	l.mu.Lock()
	g := l.gateLocked(key)
	l.mu.Unlock()
	close(g)
}

func (l *testLoader) failWith(key string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs[key] = err
}

func (l *testLoader) startsFor(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.starts[key]
}

func (l *testLoader) totalStarts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := 0
	for _, n := range l.starts {
		total += n
	}
	return total
}

// anyStartedKey returns one key a load actually started with (the
// representative key the scheduler picked), or "" if none started.
func (l *testLoader) anyStartedKey() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, n := range l.starts {
		if n > 0 {
			return k
		}
	}
	return ""
}

func (l *testLoader) max() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.maxInFlight
}

// --- harness ---

const placeholder = "placeholder"

type tcache = cache[string, string, string]

// newCache fills in the boring collaborator defaults: identity resolver,
// "thumb:"-prefixing scaler, and an OnReady that forwards batches to the
// returned channel.
func newCache(t *testing.T, opt Options[string, string, string]) (Cache[string, string], chan []string) {
	t.Helper()

	batches := make(chan []string, 16)
	if opt.Resolve == nil {
		opt.Resolve = func(k string) (string, bool) { return k, true }
	}
	if opt.Scale == nil {
		opt.Scale = func(raw []byte, _ Size) string { return "thumb:" + string(raw) }
	}
	if opt.Placeholder == "" {
		opt.Placeholder = placeholder
	}
	if opt.OnReady == nil {
		opt.OnReady = func(keys []string) { batches <- append([]string(nil), keys...) }
	}

	c := New(opt)
	t.Cleanup(func() { _ = c.Close() })
	return c, batches
}

// snap reads the coordinator state under the lock.
func snap(c Cache[string, string]) (queued, running, pending, batched int) {
	impl := c.(*tcache)
	impl.mu.Lock()
	defer impl.mu.Unlock()
	return len(impl.queue), impl.running, len(impl.pending), len(impl.batch)
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached within deadline")
}

// idle reports that no load is queued or running.
func idle(c Cache[string, string]) bool {
	queued, running, pending, _ := snap(c)
	return queued == 0 && running == 0 && pending == 0
}

func recvBatch(t *testing.T, ch <-chan []string) []string {
	t.Helper()
	select {
	case keys := <-ch:
		sort.Strings(keys)
		return keys
	case <-time.After(2 * time.Second):
		t.Fatal("no batch delivered within deadline")
		return nil
	}
}

func assertNoBatch(t *testing.T, ch <-chan []string) {
	t.Helper()
	select {
	case keys := <-ch:
		t.Fatalf("unexpected batch delivered: %v", keys)
	case <-time.After(50 * time.Millisecond):
	}
}

// --- tests ---

// An unresolvable key degrades to the placeholder and leaves no state.
func TestRequest_UnresolvableKey(t *testing.T) {
	t.Parallel()

	l := newTestLoader(false)
	c, _ := newCache(t, Options[string, string, string]{
		Resolve: func(string) (string, bool) { return "", false },
		Load:    l.load,
	})

	if got := c.Request("ghost.doc"); got != placeholder {
		t.Fatalf("want placeholder, got %q", got)
	}
	if queued, running, pending, batched := snap(c); queued+running+pending+batched != 0 {
		t.Fatalf("unresolvable key must not mutate state: %d %d %d %d", queued, running, pending, batched)
	}
	if l.totalStarts() != 0 {
		t.Fatal("no load may be dispatched for an unresolvable key")
	}
}

// Two keys aliasing the same document share one load, and the completion
// batch names both of them.
func TestRequest_CoalescesAliases(t *testing.T) {
	t.Parallel()

	l := newTestLoader(true)
	c, batches := newCache(t, Options[string, string, string]{
		Resolve: func(string) (string, bool) { return "doc-X", true },
		Load:    l.load,
	})

	if got := c.Request("left.doc"); got != placeholder {
		t.Fatalf("first request must return placeholder, got %q", got)
	}
	waitUntil(t, func() bool { return l.startsFor("left.doc") == 1 })

	if got := c.Request("right.doc"); got != placeholder {
		t.Fatalf("piggy-backed request must return placeholder, got %q", got)
	}
	if l.totalStarts() != 1 {
		t.Fatalf("aliases must share one load, got %d", l.totalStarts())
	}

	l.release("left.doc")
	keys := recvBatch(t, batches)
	if len(keys) != 2 || keys[0] != "left.doc" || keys[1] != "right.doc" {
		t.Fatalf("batch must fan out to all piggy-backed keys, got %v", keys)
	}

	// Both aliases resolve to the same entry now.
	want := "thumb:raw:left.doc"
	if got := c.Request("left.doc"); got != want {
		t.Fatalf("want %q, got %q", want, got)
	}
	if got := c.Request("right.doc"); got != want {
		t.Fatalf("want %q, got %q", want, got)
	}
	if l.totalStarts() != 1 {
		t.Fatalf("fresh hits must not reload, got %d loads", l.totalStarts())
	}
}

// With Workers=4 and ten distinct ids, exactly four loads dispatch up
// front; each completion admits exactly one more, and the in-flight
// count never exceeds the limit.
func TestScheduler_ConcurrencyBound(t *testing.T) {
	t.Parallel()

	l := newTestLoader(true)
	c, batches := newCache(t, Options[string, string, string]{
		Workers: 4,
		Load:    l.load,
	})

	keys := []string{"k0", "k1", "k2", "k3", "k4", "k5", "k6", "k7", "k8", "k9"}
	for _, k := range keys {
		c.Request(k)
	}

	waitUntil(t, func() bool { return l.totalStarts() == 4 })
	time.Sleep(20 * time.Millisecond) // give an over-eager scheduler a chance to misbehave
	if got := l.totalStarts(); got != 4 {
		t.Fatalf("exactly 4 loads may dispatch, got %d", got)
	}
	if queued, running, _, _ := snap(c); queued != 6 || running != 4 {
		t.Fatalf("want 6 queued / 4 running, got %d / %d", queued, running)
	}

	// Dispatch order is FIFO: k0..k3 are the running ones. Completing k0
	// must admit exactly k4.
	l.release("k0")
	waitUntil(t, func() bool { return l.startsFor("k4") == 1 })
	if got := l.totalStarts(); got != 5 {
		t.Fatalf("one completion admits one id, got %d starts", got)
	}

	for _, k := range keys[1:] {
		l.release(k)
	}
	waitUntil(t, func() bool { return idle(c) })

	if l.max() > 4 {
		t.Fatalf("in-flight loads exceeded the limit: %d", l.max())
	}

	// All ten keys arrive across however many flushes.
	got := map[string]bool{}
	for len(got) < len(keys) {
		for _, k := range recvBatch(t, batches) {
			got[k] = true
		}
	}
	for _, k := range keys {
		if !got[k] {
			t.Fatalf("key %s never announced ready", k)
		}
	}
}

// A fresh cached id is served without scheduling anything.
func TestRequest_FreshHitSkipsLoad(t *testing.T) {
	t.Parallel()

	l := newTestLoader(false)
	c, batches := newCache(t, Options[string, string, string]{Load: l.load})

	c.Request("a")
	recvBatch(t, batches)

	if got := c.Request("a"); got != "thumb:raw:a" {
		t.Fatalf("want cached thumb, got %q", got)
	}
	if l.totalStarts() != 1 {
		t.Fatalf("fresh hit dispatched a load: %d total", l.totalStarts())
	}
	if !idle(c) {
		t.Fatal("fresh hit must not enqueue")
	}
}

// MarkDirty keeps serving the stale image while exactly one reload runs.
func TestMarkDirty_ServesStaleAndReloads(t *testing.T) {
	t.Parallel()

	var gen atomic.Int64
	c, batches := newCache(t, Options[string, string, string]{
		Load: func(_ context.Context, key string) ([]byte, error) {
			return []byte("v" + strconv.FormatInt(gen.Add(1), 10)), nil
		},
	})

	c.Request("a")
	recvBatch(t, batches)
	if got := c.Request("a"); got != "thumb:v1" {
		t.Fatalf("want thumb:v1, got %q", got)
	}

	c.MarkDirty("a")
	if got := c.Request("a"); got != "thumb:v1" {
		t.Fatalf("dirty request must serve the stale image, got %q", got)
	}

	recvBatch(t, batches)
	if got := c.Request("a"); got != "thumb:v2" {
		t.Fatalf("want reloaded thumb:v2, got %q", got)
	}
	if gen.Load() != 2 {
		t.Fatalf("exactly one reload expected, got %d loads", gen.Load())
	}
}

// MarkAllDirty re-triggers one load per previously clean id.
func TestMarkAllDirty_RetriggersEveryID(t *testing.T) {
	t.Parallel()

	l := newTestLoader(false)
	c, batches := newCache(t, Options[string, string, string]{Load: l.load})

	c.Request("a")
	c.Request("b")
	got := map[string]bool{}
	for len(got) < 2 {
		for _, k := range recvBatch(t, batches) {
			got[k] = true
		}
	}

	c.MarkAllDirty()
	c.Request("a")
	c.Request("b")
	waitUntil(t, func() bool { return l.startsFor("a") == 2 && l.startsFor("b") == 2 })
}

// Cancelling a queued id removes it entirely; a later request for the
// same key starts over as if it had never been asked for.
func TestCancel_PreDispatch(t *testing.T) {
	t.Parallel()

	l := newTestLoader(true)
	c, batches := newCache(t, Options[string, string, string]{
		Workers: 1,
		Load:    l.load,
	})

	c.Request("a")
	waitUntil(t, func() bool { return l.startsFor("a") == 1 })
	c.Request("b") // queued behind a
	if queued, _, _, _ := snap(c); queued != 1 {
		t.Fatalf("b must be queued, queue=%d", queued)
	}

	c.Cancel("b")
	if queued, _, pending, _ := snap(c); queued != 0 || pending != 1 {
		t.Fatalf("cancel must drop b from queue and pending, got queue=%d pending=%d", queued, pending)
	}

	l.release("a")
	keys := recvBatch(t, batches)
	if len(keys) != 1 || keys[0] != "a" {
		t.Fatalf("only a may complete, got %v", keys)
	}
	if l.startsFor("b") != 0 {
		t.Fatal("cancelled id must never dispatch")
	}

	// A fresh request for b re-enqueues normally.
	c.Request("b")
	waitUntil(t, func() bool { return l.startsFor("b") == 1 })
	l.release("b")
	keys = recvBatch(t, batches)
	if len(keys) != 1 || keys[0] != "b" {
		t.Fatalf("want [b], got %v", keys)
	}
}

// Cancelling after dispatch changes nothing about the completion.
func TestCancel_PostDispatchNoOp(t *testing.T) {
	t.Parallel()

	l := newTestLoader(true)
	c, batches := newCache(t, Options[string, string, string]{Load: l.load})

	c.Request("a")
	waitUntil(t, func() bool { return l.startsFor("a") == 1 })

	c.Cancel("a")
	if _, running, pending, _ := snap(c); running != 1 || pending != 1 {
		t.Fatalf("post-dispatch cancel must be a no-op, got running=%d pending=%d", running, pending)
	}

	l.release("a")
	keys := recvBatch(t, batches)
	if len(keys) != 1 || keys[0] != "a" {
		t.Fatalf("completion must proceed normally, got %v", keys)
	}
}

// A failed load with nothing cached parks the placeholder, marks the id
// resolved, and announces nothing.
func TestLoadFailure_NoPriorImage(t *testing.T) {
	t.Parallel()

	l := newTestLoader(false)
	l.failWith("a", errors.New("boom"))
	c, batches := newCache(t, Options[string, string, string]{Load: l.load})

	if got := c.Request("a"); got != placeholder {
		t.Fatalf("want placeholder, got %q", got)
	}
	waitUntil(t, func() bool { return idle(c) })
	assertNoBatch(t, batches)

	// The failure is resolved: the placeholder is resident and fresh, so
	// no retry storm.
	if got := c.Request("a"); got != placeholder {
		t.Fatalf("want parked placeholder, got %q", got)
	}
	if l.totalStarts() != 1 {
		t.Fatalf("failed load must not retry, got %d loads", l.totalStarts())
	}
	if c.Len() != 1 {
		t.Fatalf("placeholder must be resident, len=%d", c.Len())
	}
}

// A failed reload keeps the prior image, marks the id fresh again, and
// announces nothing.
func TestLoadFailure_KeepsPriorImage(t *testing.T) {
	t.Parallel()

	l := newTestLoader(false)
	c, batches := newCache(t, Options[string, string, string]{Load: l.load})

	c.Request("a")
	recvBatch(t, batches)

	c.MarkDirty("a")
	l.failWith("a", errors.New("boom"))
	if got := c.Request("a"); got != "thumb:raw:a" {
		t.Fatalf("dirty request must serve the prior image, got %q", got)
	}

	waitUntil(t, func() bool { return idle(c) })
	assertNoBatch(t, batches)

	if got := c.Request("a"); got != "thumb:raw:a" {
		t.Fatalf("prior image must survive the failed reload, got %q", got)
	}
	if l.totalStarts() != 2 {
		t.Fatalf("the failure must count as resolved, got %d loads", l.totalStarts())
	}
}

// Remove while a load is in flight is benign: the completion simply
// repopulates the entry.
func TestRemove_InFlightLoadRepopulates(t *testing.T) {
	t.Parallel()

	l := newTestLoader(true)
	c, batches := newCache(t, Options[string, string, string]{Load: l.load})

	c.Request("a")
	waitUntil(t, func() bool { return l.startsFor("a") == 1 })

	c.Remove("a")
	if c.Len() != 0 {
		t.Fatalf("remove must drop the entry, len=%d", c.Len())
	}

	l.release("a")
	recvBatch(t, batches)
	if c.Len() != 1 {
		t.Fatalf("completion must repopulate, len=%d", c.Len())
	}
	if got := c.Request("a"); got != "thumb:raw:a" {
		t.Fatalf("want repopulated thumb, got %q", got)
	}
}

// With FreshFor set, an aged marker serves the cached image and quietly
// schedules a reload.
func TestFreshFor_ExpiryRetriggersLoad(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	l := newTestLoader(false)
	c, batches := newCache(t, Options[string, string, string]{
		Load:     l.load,
		FreshFor: time.Minute,
		Clock:    clk,
	})

	c.Request("a")
	recvBatch(t, batches)
	if got := c.Request("a"); got != "thumb:raw:a" || l.totalStarts() != 1 {
		t.Fatalf("within FreshFor the hit must not reload (got %q, %d loads)", got, l.totalStarts())
	}

	clk.add(2 * time.Minute)
	if got := c.Request("a"); got != "thumb:raw:a" {
		t.Fatalf("expired marker must still serve the cached image, got %q", got)
	}
	waitUntil(t, func() bool { return l.startsFor("a") == 2 })
}

// Close is idempotent and turns Request into a placeholder-only path.
func TestClose_Idempotent(t *testing.T) {
	t.Parallel()

	l := newTestLoader(false)
	c, batches := newCache(t, Options[string, string, string]{Load: l.load})

	c.Request("a")
	recvBatch(t, batches)

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if got := c.Request("b"); got != placeholder {
		t.Fatalf("Request after Close must return placeholder, got %q", got)
	}
	if l.startsFor("b") != 0 {
		t.Fatal("Request after Close must not dispatch")
	}
}
