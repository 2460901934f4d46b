package embedfall

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/helmavik/embedfall/backend"
)

// fakeBackend is a scriptable chain entry for engine tests.
type fakeBackend struct {
	kind       backend.Kind
	dims       int
	fill       float32
	probeErr   error
	embedErr   error
	probeCalls int32
	embedCalls int32
	closeCalls int32
}

func (f *fakeBackend) Kind() backend.Kind { return f.kind }

func (f *fakeBackend) Probe(ctx context.Context) error {
	atomic.AddInt32(&f.probeCalls, 1)
	return f.probeErr
}

func (f *fakeBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	atomic.AddInt32(&f.embedCalls, 1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	vec := make([]float32, f.dims)
	for i := range vec {
		vec[i] = f.fill
	}
	return vec, nil
}

func (f *fakeBackend) Close() error {
	atomic.AddInt32(&f.closeCalls, 1)
	return nil
}

func testConfig(dims, cacheCap int) Config {
	cfg := DefaultConfig()
	cfg.Dimensions = dims
	cfg.CacheCapacity = cacheCap
	return cfg
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero dimensions", func(c *Config) { c.Dimensions = 0 }},
		{"tiny max length", func(c *Config) { c.MaxLength = 2 }},
		{"zero cache capacity", func(c *Config) { c.CacheCapacity = 0 }},
		{"negative remote rps", func(c *Config) { c.RemoteRPS = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			if _, err := New(cfg, zap.NewNop()); !errors.Is(err, ErrConfig) {
				t.Fatalf("expected ErrConfig, got %v", err)
			}
		})
	}
}

func TestInitializeIdempotent(t *testing.T) {
	fake := &fakeBackend{kind: backend.KindHash, dims: 8, fill: 0.5}
	engine, err := New(testConfig(8, 10), zap.NewNop(), WithChain(fake))
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close()

	engine.Initialize(context.Background())
	engine.Initialize(context.Background())

	if got := atomic.LoadInt32(&fake.probeCalls); got != 1 {
		t.Fatalf("expected 1 probe call, got %d", got)
	}
}

func TestInitializeConcurrentProbesOnce(t *testing.T) {
	fake := &fakeBackend{kind: backend.KindHash, dims: 8, fill: 0.5}
	engine, err := New(testConfig(8, 10), zap.NewNop(), WithChain(fake))
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			engine.Initialize(context.Background())
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&fake.probeCalls); got != 1 {
		t.Fatalf("expected 1 probe call across concurrent initializers, got %d", got)
	}
}

func TestEmbedServesCacheHits(t *testing.T) {
	fake := &fakeBackend{kind: backend.KindHash, dims: 4, fill: 0.25}
	engine, err := New(testConfig(4, 10), zap.NewNop(), WithChain(fake))
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close()

	first, err := engine.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatal(err)
	}
	second, err := engine.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatal(err)
	}

	if got := atomic.LoadInt32(&fake.embedCalls); got != 1 {
		t.Fatalf("expected a single inference, got %d", got)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatal("cache hit returned a different vector")
		}
	}
}

func TestCachedVectorsAreImmutable(t *testing.T) {
	fake := &fakeBackend{kind: backend.KindHash, dims: 3, fill: 1}
	engine, err := New(testConfig(3, 10), zap.NewNop(), WithChain(fake))
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close()

	vec, err := engine.Embed(context.Background(), "text")
	if err != nil {
		t.Fatal(err)
	}
	vec[0] = 99

	again, err := engine.Embed(context.Background(), "text")
	if err != nil {
		t.Fatal(err)
	}
	if again[0] != 1 {
		t.Fatalf("caller mutation leaked into the cache: got %v", again[0])
	}
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	fake := &fakeBackend{kind: backend.KindHash, dims: 2, fill: 1}
	engine, err := New(testConfig(2, 2), zap.NewNop(), WithChain(fake))
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close()

	ctx := context.Background()
	for _, text := range []string{"a", "b", "c"} {
		if _, err := engine.Embed(ctx, text); err != nil {
			t.Fatal(err)
		}
	}

	// "a" was evicted; "c" is still resident.
	if _, err := engine.Embed(ctx, "c"); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt32(&fake.embedCalls); got != 3 {
		t.Fatalf("expected cached hit for c, got %d inferences", got)
	}
	if _, err := engine.Embed(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt32(&fake.embedCalls); got != 4 {
		t.Fatalf("expected re-inference for evicted a, got %d inferences", got)
	}
}

func TestProbeFailureSelectsNextBackend(t *testing.T) {
	failing := &fakeBackend{
		kind: backend.KindONNXCPU, dims: 4,
		probeErr: &backend.ProbeError{
			Backend: backend.KindONNXCPU,
			Reason:  backend.ReasonLoadFailed,
			Err:     errors.New("model file missing"),
		},
	}
	healthy := &fakeBackend{kind: backend.KindHash, dims: 4, fill: 0.1}

	engine, err := New(testConfig(4, 10), zap.NewNop(), WithChain(failing, healthy))
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close()

	status := engine.Initialize(context.Background())

	if status.Active != backend.KindHash {
		t.Fatalf("expected hash active, got %s", status.Active)
	}
	if len(status.Errors) != 1 || status.Errors[0].Backend != backend.KindONNXCPU {
		t.Fatalf("expected one recorded probe error for onnx-cpu, got %+v", status.Errors)
	}
	if !status.Initialized {
		t.Fatal("status should report initialized")
	}
}

func TestAllSemanticProbesFailing(t *testing.T) {
	unreachable := &fakeBackend{
		kind: backend.KindRemote, dims: 4,
		probeErr: &backend.ProbeError{
			Backend: backend.KindRemote,
			Reason:  backend.ReasonUnreachable,
			Err:     errors.New("connection refused"),
		},
	}
	unloaded := &fakeBackend{
		kind: backend.KindONNXCPU, dims: 4,
		probeErr: &backend.ProbeError{
			Backend: backend.KindONNXCPU,
			Reason:  backend.ReasonLoadFailed,
			Err:     errors.New("model file missing"),
		},
	}

	engine, err := New(testConfig(4, 10), zap.NewNop(), WithChain(unloaded, unreachable))
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close()

	status := engine.Initialize(context.Background())

	if status.Active != backend.KindLexical {
		t.Fatalf("expected lexical terminal active, got %s", status.Active)
	}
	if engine.SemanticAvailable() {
		t.Fatal("no semantic backend should be available")
	}
	if len(status.Errors) != 2 {
		t.Fatalf("expected 2 probe errors, got %d", len(status.Errors))
	}

	vec, err := engine.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range vec {
		if v != 0 {
			t.Fatal("fully degraded engine must return the zero vector")
		}
	}
}

func TestRuntimeFailureAdvancesChain(t *testing.T) {
	flaky := &fakeBackend{kind: backend.KindONNXCPU, dims: 4, embedErr: errors.New("session crashed")}
	healthy := &fakeBackend{kind: backend.KindHash, dims: 4, fill: 0.3}

	var hookFrom, hookTo backend.Kind
	hook := func(from, to backend.Kind, cause error) {
		hookFrom, hookTo = from, to
	}

	engine, err := New(testConfig(4, 10), zap.NewNop(), WithChain(flaky, healthy), WithFallbackHook(hook))
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close()

	vec, err := engine.Embed(context.Background(), "query")
	if err != nil {
		t.Fatalf("fallback should absorb the failure, got %v", err)
	}
	if vec[0] != 0.3 {
		t.Fatalf("expected vector from the fallback backend, got %v", vec[0])
	}
	if engine.Status().Active != backend.KindHash {
		t.Fatalf("active should have advanced to hash, got %s", engine.Status().Active)
	}
	if hookFrom != backend.KindONNXCPU || hookTo != backend.KindHash {
		t.Fatalf("hook saw %s -> %s", hookFrom, hookTo)
	}
	if atomic.LoadInt32(&flaky.closeCalls) == 0 {
		t.Fatal("failed backend was not closed")
	}
}

func TestDimensionMismatchTreatedAsFailure(t *testing.T) {
	wrong := &fakeBackend{kind: backend.KindONNXCPU, dims: 7, fill: 1}
	right := &fakeBackend{kind: backend.KindHash, dims: 4, fill: 1}

	engine, err := New(testConfig(4, 10), zap.NewNop(), WithChain(wrong, right))
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close()

	vec, err := engine.Embed(context.Background(), "query")
	if err != nil {
		t.Fatal(err)
	}
	if len(vec) != 4 {
		t.Fatalf("expected 4 dimensions, got %d", len(vec))
	}
	if engine.Status().Active != backend.KindHash {
		t.Fatalf("expected advance past the mismatched backend, got %s", engine.Status().Active)
	}
}

func TestTerminalLexicalZeroVector(t *testing.T) {
	flaky := &fakeBackend{kind: backend.KindONNXCPU, dims: 4, embedErr: errors.New("boom")}

	// WithChain appends the lexical terminal automatically.
	engine, err := New(testConfig(4, 10), zap.NewNop(), WithChain(flaky))
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close()

	vec, err := engine.Embed(context.Background(), "anything")
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range vec {
		if v != 0 {
			t.Fatalf("expected zero vector, got %v at %d", v, i)
		}
	}
	if engine.SemanticAvailable() {
		t.Fatal("lexical terminal must not report semantic availability")
	}
}

func TestContextCancellationPropagates(t *testing.T) {
	fake := &fakeBackend{kind: backend.KindHash, dims: 4, fill: 1}
	engine, err := New(testConfig(4, 10), zap.NewNop(), WithChain(fake))
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close()

	engine.Initialize(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := engine.Embed(ctx, "query"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if engine.Status().Active != backend.KindHash {
		t.Fatal("cancellation must not advance the chain")
	}
}

func TestEmbedBatchPreservesOrder(t *testing.T) {
	fake := &fakeBackend{kind: backend.KindHash, dims: 2, fill: 1}
	engine, err := New(testConfig(2, 10), zap.NewNop(), WithChain(fake))
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close()

	vecs, err := engine.EmbedBatch(context.Background(), []string{"x", "y", "z"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vecs))
	}
	for i, vec := range vecs {
		if len(vec) != 2 {
			t.Fatalf("vector %d has %d dimensions", i, len(vec))
		}
	}
}

func TestStatusSnapshotIsolation(t *testing.T) {
	fake := &fakeBackend{kind: backend.KindHash, dims: 2, fill: 1}
	engine, err := New(testConfig(2, 10), zap.NewNop(), WithChain(fake))
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close()

	engine.Initialize(context.Background())

	snap := engine.Status()
	snap.Chain[0] = backend.KindRemote
	snap.Available = nil

	if engine.Status().Chain[0] != backend.KindHash {
		t.Fatal("mutating a snapshot leaked into engine state")
	}
}

func TestPerformanceTrackedPerBackend(t *testing.T) {
	fake := &fakeBackend{kind: backend.KindHash, dims: 2, fill: 1}
	engine, err := New(testConfig(2, 10), zap.NewNop(), WithChain(fake))
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close()

	if _, err := engine.Embed(context.Background(), "query"); err != nil {
		t.Fatal(err)
	}

	perf := engine.Status().Performance
	if len(perf) != 1 || perf[0].Backend != backend.KindHash {
		t.Fatalf("expected one hash performance record, got %+v", perf)
	}
	if perf[0].AvgLatency < 0 {
		t.Fatalf("negative latency: %v", perf[0].AvgLatency)
	}
}

func TestCloseBeforeInitialize(t *testing.T) {
	fake := &fakeBackend{kind: backend.KindHash, dims: 2, fill: 1}
	engine, err := New(testConfig(2, 10), zap.NewNop(), WithChain(fake))
	if err != nil {
		t.Fatal(err)
	}
	if err := engine.Close(); err != nil {
		t.Fatal(err)
	}
	if err := engine.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestCloseAllowsReinitialization(t *testing.T) {
	fake := &fakeBackend{kind: backend.KindHash, dims: 2, fill: 1}
	engine, err := New(testConfig(2, 10), zap.NewNop(), WithChain(fake))
	if err != nil {
		t.Fatal(err)
	}

	engine.Initialize(context.Background())
	if err := engine.Close(); err != nil {
		t.Fatal(err)
	}

	status := engine.Initialize(context.Background())
	if !status.Initialized || status.Active != backend.KindHash {
		t.Fatalf("reinitialization failed: %+v", status)
	}
	engine.Close()

	if got := atomic.LoadInt32(&fake.probeCalls); got != 2 {
		t.Fatalf("expected 2 probe walks across lifecycles, got %d", got)
	}
}
