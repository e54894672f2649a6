package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tutu-network/classifier/internal/domain"
)

// ─── Test Classifier ────────────────────────────────────────────────────────

type fakeModel struct {
	labels domain.LabelSet
	closed atomic.Bool
}

func (m *fakeModel) Labels() domain.LabelSet { return m.labels }
func (m *fakeModel) Close()                  { m.closed.Store(true) }

// fakeClassifier scores item "i-<n>" as a one-hot vector on label n%len.
// Scores can be pinned per item; failures are injected per item or per load.
type fakeClassifier struct {
	labels     domain.LabelSet
	scores     map[domain.Item]domain.ScoreVector
	failItems  map[domain.Item]bool
	panicItems map[domain.Item]bool
	oddItems   map[domain.Item]bool // return a non-scoped error
	delay      func(domain.Item) time.Duration

	loadErr       error
	failFirstLoad bool

	mu       sync.Mutex
	models   []*fakeModel
	loads    atomic.Int32
	classify atomic.Int32
}

func newFakeClassifier() *fakeClassifier {
	return &fakeClassifier{labels: domain.LabelSet{"X", "Y", "Z"}}
}

func (c *fakeClassifier) Load(ctx context.Context) (domain.Model, error) {
	n := c.loads.Add(1)
	if c.loadErr != nil {
		return nil, &domain.FatalLoadError{Stage: domain.StageModel, Err: c.loadErr}
	}
	if c.failFirstLoad && n == 1 {
		return nil, &domain.FatalLoadError{Stage: domain.StageLabels, Err: errors.New("labels unreachable")}
	}
	m := &fakeModel{labels: c.labels}
	c.mu.Lock()
	c.models = append(c.models, m)
	c.mu.Unlock()
	return m, nil
}

func (c *fakeClassifier) ClassifyOne(ctx context.Context, m domain.Model, item domain.Item) (domain.ScoreVector, error) {
	c.classify.Add(1)
	if c.delay != nil {
		time.Sleep(c.delay(item))
	}
	if c.panicItems[item] {
		panic("corrupt tensor")
	}
	if c.failItems[item] {
		return nil, &domain.ItemError{Kind: domain.ItemFetch, Item: item, Err: errors.New("404")}
	}
	if c.oddItems[item] {
		return nil, errors.New("index out of range")
	}
	if s, ok := c.scores[item]; ok {
		return s, nil
	}
	var n int
	fmt.Sscanf(string(item), "i-%d", &n)
	s := make(domain.ScoreVector, len(c.labels))
	s[n%len(s)] = 1
	return s, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDispatcher(c domain.Classifier, cfg Config) *Dispatcher {
	return New(c, cfg, WithLogger(quietLogger()))
}

func makeItems(n int) []domain.Item {
	items := make([]domain.Item, n)
	for i := range items {
		items[i] = domain.Item(fmt.Sprintf("i-%d", i))
	}
	return items
}

func assertOrdered(t *testing.T, items []domain.Item, got []domain.Response) {
	t.Helper()
	if len(got) != len(items) {
		t.Fatalf("len(responses) = %d, want %d", len(got), len(items))
	}
	for i, r := range got {
		if r.Index != i {
			t.Fatalf("responses[%d].Index = %d", i, r.Index)
		}
		if r.Item != items[i] {
			t.Fatalf("responses[%d].Item = %q, want %q", i, r.Item, items[i])
		}
	}
}

// ─── Scenarios ──────────────────────────────────────────────────────────────

func TestDispatch_TopTwoScenario(t *testing.T) {
	for _, threshold := range []int{10, 1} { // inline, then pooled
		t.Run(fmt.Sprintf("threshold=%d", threshold), func(t *testing.T) {
			c := newFakeClassifier()
			c.scores = map[domain.Item]domain.ScoreVector{
				"a": {0.9, 0.1, 0.0},
				"b": {0.2, 0.7, 0.1},
				"c": {0.05, 0.15, 0.8},
			}
			d := newTestDispatcher(c, Config{Threshold: threshold, TopN: 2, Parallelism: 3})

			items := []domain.Item{"a", "b", "c"}
			got := d.Dispatch(context.Background(), items)
			assertOrdered(t, items, got)

			want := [][]domain.RankedResult{
				{{Label: "X", Score: 0.9}, {Label: "Y", Score: 0.1}},
				{{Label: "Y", Score: 0.7}, {Label: "X", Score: 0.2}},
				{{Label: "Z", Score: 0.8}, {Label: "Y", Score: 0.15}},
			}
			for i, r := range got {
				if len(r.Results) != 2 {
					t.Fatalf("responses[%d] has %d results, want 2", i, len(r.Results))
				}
				for j := range want[i] {
					if r.Results[j] != want[i][j] {
						t.Errorf("responses[%d].Results[%d] = %v, want %v", i, j, r.Results[j], want[i][j])
					}
				}
			}
		})
	}
}

func TestDispatch_ThousandItemsWithInjectedFailures(t *testing.T) {
	c := newFakeClassifier()
	c.failItems = map[domain.Item]bool{"i-3": true, "i-500": true, "i-999": true}
	d := newTestDispatcher(c, Config{Threshold: 50, TopN: 1, Parallelism: 8})

	items := makeItems(1000)
	b := d.Run(context.Background(), items)
	if b.Mode != domain.ModePool {
		t.Fatalf("Mode = %s, want pool", b.Mode)
	}
	assertOrdered(t, items, b.Responses)

	for _, r := range b.Responses {
		wantFailed := r.Index == 3 || r.Index == 500 || r.Index == 999
		if r.OK() == wantFailed {
			t.Errorf("response %d OK = %v, want %v", r.Index, r.OK(), !wantFailed)
		}
	}
	if n := domain.CountFailed(b.Responses); n != 3 {
		t.Errorf("failed = %d, want 3", n)
	}
}

// ─── Properties ─────────────────────────────────────────────────────────────

func TestDispatch_ExactlyNOrderedResponses(t *testing.T) {
	for _, n := range []int{0, 1, 2, 7, 33} {
		for _, threshold := range []int{0, 1, 5, 100} {
			t.Run(fmt.Sprintf("n=%d/threshold=%d", n, threshold), func(t *testing.T) {
				d := newTestDispatcher(newFakeClassifier(), Config{Threshold: threshold, TopN: 3, Parallelism: 4})
				items := makeItems(n)
				got := d.Dispatch(context.Background(), items)
				assertOrdered(t, items, got)
				if got == nil {
					t.Error("Dispatch() returned nil slice")
				}
				for _, r := range got {
					if !r.OK() {
						t.Errorf("response %d unexpectedly failed", r.Index)
					}
				}
			})
		}
	}
}

func TestDispatch_EmptyBatchDoesNotLoad(t *testing.T) {
	c := newFakeClassifier()
	d := newTestDispatcher(c, Config{Threshold: 0, TopN: 1})
	if got := d.Dispatch(context.Background(), nil); len(got) != 0 {
		t.Fatalf("Dispatch(nil) = %v", got)
	}
	if c.loads.Load() != 0 {
		t.Errorf("loads = %d, want 0", c.loads.Load())
	}
}

func TestRun_EmptyBatchReportsInline(t *testing.T) {
	rec := &countingRecorder{itemFailures: map[string]int{}, loadFailures: map[string]int{}}
	d := New(newFakeClassifier(), Config{Threshold: 0, TopN: 1, Parallelism: 4},
		WithLogger(quietLogger()), WithRecorder(rec))

	b := d.Run(context.Background(), nil)
	if b.Mode != domain.ModeInline || b.Workers != 0 {
		t.Errorf("Run(nil) = %s/%d, want inline/0", b.Mode, b.Workers)
	}
	if rec.batches != 1 || rec.mode != domain.ModeInline {
		t.Errorf("recorded batches = %d mode = %s, want 1 inline", rec.batches, rec.mode)
	}
}

func TestDispatch_OrderIndependentOfCompletion(t *testing.T) {
	c := newFakeClassifier()
	// Earlier items take longest, so they finish last.
	c.delay = func(item domain.Item) time.Duration {
		var n int
		fmt.Sscanf(string(item), "i-%d", &n)
		return time.Duration(20-n) * time.Millisecond
	}
	d := newTestDispatcher(c, Config{Threshold: 1, TopN: 1, Parallelism: 20})

	items := makeItems(20)
	got := d.Dispatch(context.Background(), items)
	assertOrdered(t, items, got)
	for i, r := range got {
		if want := c.labels[i%3]; r.Results[0].Label != want {
			t.Errorf("responses[%d] label = %q, want %q", i, r.Results[0].Label, want)
		}
	}
}

// ─── Mode Selection ─────────────────────────────────────────────────────────

func TestSelectMode_Threshold(t *testing.T) {
	const threshold = 8
	d := newTestDispatcher(newFakeClassifier(), Config{Threshold: threshold, TopN: 1, Parallelism: 4})

	if mode, workers := d.SelectMode(threshold - 1); mode != domain.ModeInline || workers != 1 {
		t.Errorf("SelectMode(T-1) = %s/%d, want inline/1", mode, workers)
	}
	if mode, workers := d.SelectMode(threshold); mode != domain.ModePool || workers != 4 {
		t.Errorf("SelectMode(T) = %s/%d, want pool/4", mode, workers)
	}
	if mode, workers := d.SelectMode(0); mode != domain.ModeInline || workers != 0 {
		t.Errorf("SelectMode(0) = %s/%d, want inline/0", mode, workers)
	}
}

func TestRun_ModeObservedThroughLoads(t *testing.T) {
	const threshold = 6

	inline := newFakeClassifier()
	b := newTestDispatcher(inline, Config{Threshold: threshold, TopN: 1, Parallelism: 4}).
		Run(context.Background(), makeItems(threshold-1))
	if b.Mode != domain.ModeInline {
		t.Errorf("Mode = %s, want inline", b.Mode)
	}
	if inline.loads.Load() != 1 {
		t.Errorf("inline loads = %d, want 1", inline.loads.Load())
	}

	pooled := newFakeClassifier()
	b = newTestDispatcher(pooled, Config{Threshold: threshold, TopN: 1, Parallelism: 4}).
		Run(context.Background(), makeItems(threshold))
	if b.Mode != domain.ModePool || b.Workers != 4 {
		t.Errorf("Run() = %s/%d, want pool/4", b.Mode, b.Workers)
	}
	if pooled.loads.Load() != 4 {
		t.Errorf("pool loads = %d, want one per worker (4)", pooled.loads.Load())
	}
	if b.ID == "" {
		t.Error("batch ID should be set")
	}
}

func TestRunPool_WorkerCountBounded(t *testing.T) {
	tests := []struct {
		n, parallelism, want int
	}{
		{n: 2, parallelism: 8, want: 2},
		{n: 10, parallelism: 3, want: 3},
		{n: 5, parallelism: 5, want: 5},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("n=%d/p=%d", tt.n, tt.parallelism), func(t *testing.T) {
			c := newFakeClassifier()
			d := newTestDispatcher(c, Config{Threshold: 1, TopN: 1, Parallelism: tt.parallelism})
			b := d.Run(context.Background(), makeItems(tt.n))
			if b.Workers != tt.want {
				t.Errorf("Workers = %d, want %d", b.Workers, tt.want)
			}
			if got := int(c.loads.Load()); got != tt.want {
				t.Errorf("loads = %d, want %d", got, tt.want)
			}
		})
	}
}

// ─── Failure Scopes ─────────────────────────────────────────────────────────

func TestDispatch_LoadAlwaysFails(t *testing.T) {
	for _, threshold := range []int{100, 1} {
		t.Run(fmt.Sprintf("threshold=%d", threshold), func(t *testing.T) {
			c := newFakeClassifier()
			c.loadErr = errors.New("model url unreachable")
			d := newTestDispatcher(c, Config{Threshold: threshold, TopN: 2, Parallelism: 4})

			items := makeItems(12)
			got := d.Dispatch(context.Background(), items)
			assertOrdered(t, items, got)
			for _, r := range got {
				if r.OK() {
					t.Errorf("response %d should have absent results", r.Index)
				}
			}
			if c.classify.Load() != 0 {
				t.Errorf("ClassifyOne called %d times after fatal load", c.classify.Load())
			}
		})
	}
}

func TestRunPool_OneWorkerFailsToLoad(t *testing.T) {
	c := newFakeClassifier()
	c.failFirstLoad = true
	d := newTestDispatcher(c, Config{Threshold: 1, TopN: 1, Parallelism: 4})

	items := makeItems(40)
	got := d.Dispatch(context.Background(), items)
	assertOrdered(t, items, got)

	// The failed worker never claimed anything; the others drained the queue.
	if n := domain.CountFailed(got); n != 0 {
		t.Errorf("failed = %d, want 0", n)
	}
}

func TestRunPool_SingleWorkerFailsToLoad(t *testing.T) {
	c := newFakeClassifier()
	c.failFirstLoad = true
	d := newTestDispatcher(c, Config{Threshold: 1, TopN: 1, Parallelism: 1})

	items := makeItems(5)
	got := d.Dispatch(context.Background(), items)
	assertOrdered(t, items, got)
	if n := domain.CountFailed(got); n != 5 {
		t.Errorf("failed = %d, want all 5 unclaimed tasks failed", n)
	}
}

func TestDispatch_ItemFailuresStayLocal(t *testing.T) {
	for _, threshold := range []int{100, 1} {
		t.Run(fmt.Sprintf("threshold=%d", threshold), func(t *testing.T) {
			c := newFakeClassifier()
			c.failItems = map[domain.Item]bool{"i-1": true}
			c.panicItems = map[domain.Item]bool{"i-4": true}
			c.oddItems = map[domain.Item]bool{"i-6": true}
			d := newTestDispatcher(c, Config{Threshold: threshold, TopN: 1, Parallelism: 3})

			items := makeItems(8)
			got := d.Dispatch(context.Background(), items)
			assertOrdered(t, items, got)
			for _, r := range got {
				wantFailed := r.Index == 1 || r.Index == 4 || r.Index == 6
				if r.OK() == wantFailed {
					t.Errorf("response %d OK = %v", r.Index, r.OK())
				}
			}
		})
	}
}

func TestDispatch_CancelledContext(t *testing.T) {
	for _, threshold := range []int{100, 1} {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		c := newFakeClassifier()
		d := newTestDispatcher(c, Config{Threshold: threshold, TopN: 1, Parallelism: 2})
		items := makeItems(6)
		got := d.Dispatch(ctx, items)
		assertOrdered(t, items, got)
		if n := domain.CountFailed(got); n != 6 {
			t.Errorf("threshold=%d: failed = %d, want 6", threshold, n)
		}
	}
}

func TestDispatch_ModelsClosed(t *testing.T) {
	c := newFakeClassifier()
	d := newTestDispatcher(c, Config{Threshold: 1, TopN: 1, Parallelism: 3})
	d.Dispatch(context.Background(), makeItems(9))

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.models) != 3 {
		t.Fatalf("models loaded = %d, want 3", len(c.models))
	}
	for i, m := range c.models {
		if !m.closed.Load() {
			t.Errorf("model %d not closed", i)
		}
	}
}

// ─── Recorder ───────────────────────────────────────────────────────────────

type countingRecorder struct {
	mu           sync.Mutex
	batches      int
	ok, failed   int
	mode         domain.Mode
	itemFailures map[string]int
	loadFailures map[string]int
}

func (r *countingRecorder) ObserveBatch(mode domain.Mode, workers int, elapsed time.Duration, ok, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches++
	r.mode = mode
	r.ok += ok
	r.failed += failed
}

func (r *countingRecorder) ObserveItemFailure(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.itemFailures[kind]++
}

func (r *countingRecorder) ObserveLoadFailure(stage string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loadFailures[stage]++
}

func TestRun_RecorderObservesOutcomes(t *testing.T) {
	rec := &countingRecorder{itemFailures: map[string]int{}, loadFailures: map[string]int{}}
	c := newFakeClassifier()
	c.failItems = map[domain.Item]bool{"i-2": true}
	c.oddItems = map[domain.Item]bool{"i-3": true}
	c.failFirstLoad = true

	d := New(c, Config{Threshold: 1, TopN: 1, Parallelism: 2},
		WithLogger(quietLogger()), WithRecorder(rec), WithTiming(true))
	d.Dispatch(context.Background(), makeItems(10))

	if rec.batches != 1 || rec.mode != domain.ModePool {
		t.Errorf("batches = %d mode = %s", rec.batches, rec.mode)
	}
	if rec.ok != 8 || rec.failed != 2 {
		t.Errorf("ok/failed = %d/%d, want 8/2", rec.ok, rec.failed)
	}
	if rec.itemFailures["fetch"] != 1 || rec.itemFailures["unexpected"] != 1 {
		t.Errorf("itemFailures = %v", rec.itemFailures)
	}
	if rec.loadFailures["labels"] != 1 {
		t.Errorf("loadFailures = %v", rec.loadFailures)
	}
}

func TestBatch_Record(t *testing.T) {
	c := newFakeClassifier()
	c.failItems = map[domain.Item]bool{"i-0": true}
	b := newTestDispatcher(c, Config{Threshold: 10, TopN: 1}).Run(context.Background(), makeItems(3))

	rec := b.Record()
	if rec.ID != b.ID || rec.Items != 3 || rec.Failed != 1 || rec.Mode != domain.ModeInline {
		t.Errorf("Record() = %+v", rec.BatchSummary)
	}
	if len(rec.Responses) != 3 {
		t.Errorf("len(Responses) = %d", len(rec.Responses))
	}
}

func TestPackageDispatch(t *testing.T) {
	items := makeItems(4)
	got := Dispatch(context.Background(), newFakeClassifier(), items, 2, 1)
	assertOrdered(t, items, got)
}
