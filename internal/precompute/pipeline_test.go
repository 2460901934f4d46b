package precompute

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/helmavik/embedfall"
	"github.com/helmavik/embedfall/backend"
)

// memoryWriter collects embedded records, deduplicating by doc id the way
// the Postgres store's ON CONFLICT clause does.
type memoryWriter struct {
	records []EmbeddedRecord
	seen    map[string]bool
}

func newMemoryWriter() *memoryWriter {
	return &memoryWriter{seen: make(map[string]bool)}
}

func (w *memoryWriter) WriteBatch(records []EmbeddedRecord) (int, error) {
	inserted := 0
	for _, rec := range records {
		if w.seen[rec.DocID] {
			continue
		}
		w.seen[rec.DocID] = true
		w.records = append(w.records, rec)
		inserted++
	}
	return inserted, nil
}

type fixedBackend struct{ dims int }

func (b *fixedBackend) Kind() backend.Kind          { return backend.KindHash }
func (b *fixedBackend) Probe(context.Context) error { return nil }
func (b *fixedBackend) Close() error                { return nil }

func (b *fixedBackend) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, b.dims)
	vec[0] = float32(len(text))
	return vec, nil
}

func newTestEngine(t *testing.T, dims int) *embedfall.Engine {
	t.Helper()
	cfg := embedfall.DefaultConfig()
	cfg.Dimensions = dims

	engine, err := embedfall.New(cfg, zap.NewNop(), embedfall.WithChain(&fixedBackend{dims: dims}))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { engine.Close() })
	return engine
}

func writeInput(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestPipelineCSV(t *testing.T) {
	writer := newMemoryWriter()
	pipeline := NewPipeline(newTestEngine(t, 4), writer, Options{BatchSize: 2}, zap.NewNop())

	path := writeInput(t, "corpus.csv", "doc_id,text\nd1,first document\nd2,second document\nd3,third document\n")

	result, err := pipeline.Run(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if result.TotalRecords != 3 || result.Embedded != 3 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(writer.records) != 3 {
		t.Fatalf("expected 3 written records, got %d", len(writer.records))
	}
	if writer.records[0].DocID != "d1" || len(writer.records[0].Embedding) != 4 {
		t.Fatalf("unexpected first record: %+v", writer.records[0])
	}
}

func TestPipelineJSONLines(t *testing.T) {
	writer := newMemoryWriter()
	pipeline := NewPipeline(newTestEngine(t, 4), writer, Options{BatchSize: 10}, zap.NewNop())

	path := writeInput(t, "corpus.jsonl",
		`{"doc_id":"a","text":"alpha"}
{"doc_id":"b","text":"beta"}
`)

	result, err := pipeline.Run(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if result.TotalRecords != 2 || result.Embedded != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestPipelineSkipsInvalidRecords(t *testing.T) {
	writer := newMemoryWriter()
	pipeline := NewPipeline(newTestEngine(t, 4), writer, Options{BatchSize: 10}, zap.NewNop())

	path := writeInput(t, "corpus.csv", "doc_id,text\nd1,valid\n,missing id\nd3,   \n")

	result, err := pipeline.Run(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if result.TotalRecords != 1 {
		t.Fatalf("expected exactly the valid record, got %+v", result)
	}
}

func TestPipelineDuplicatesSkipped(t *testing.T) {
	writer := newMemoryWriter()
	pipeline := NewPipeline(newTestEngine(t, 4), writer, Options{BatchSize: 10}, zap.NewNop())

	path := writeInput(t, "corpus.csv", "doc_id,text\nd1,one\nd1,one again\n")

	result, err := pipeline.Run(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if result.Embedded != 1 || result.Skipped != 1 {
		t.Fatalf("expected one insert and one skip, got %+v", result)
	}
}

func TestPipelineUnsupportedFormat(t *testing.T) {
	pipeline := NewPipeline(newTestEngine(t, 4), newMemoryWriter(), Options{}, zap.NewNop())
	if _, err := pipeline.Run(context.Background(), "corpus.xml"); err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}

func TestPipelineCancellation(t *testing.T) {
	pipeline := NewPipeline(newTestEngine(t, 4), newMemoryWriter(), Options{BatchSize: 1}, zap.NewNop())
	path := writeInput(t, "corpus.csv", "doc_id,text\nd1,one\nd2,two\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := pipeline.Run(ctx, path); err == nil {
		t.Fatal("expected context cancellation error")
	}
}

func TestFormatEmbedding(t *testing.T) {
	got := formatEmbedding([]float32{0.5, -1, 0})
	if got != "[0.5,-1,0]" {
		t.Fatalf("unexpected pgvector literal: %s", got)
	}
}
