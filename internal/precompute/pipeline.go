package precompute

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"

	"github.com/helmavik/embedfall"
)

// Pipeline reads a document corpus, embeds each record through the engine,
// and persists the vectors through a VectorWriter.
type Pipeline struct {
	engine *embedfall.Engine
	writer VectorWriter
	opts   Options
	logger *zap.Logger
}

func NewPipeline(engine *embedfall.Engine, writer VectorWriter, opts Options, logger *zap.Logger) *Pipeline {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 256
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = 10000
	}
	return &Pipeline{engine: engine, writer: writer, opts: opts, logger: logger}
}

// Run processes a single input file. The format is inferred from the
// extension: .parquet, .csv, or .json / .jsonl (one object per line).
func (p *Pipeline) Run(ctx context.Context, inputPath string) (*Result, error) {
	start := time.Now()
	result := &Result{}

	var err error
	switch strings.ToLower(filepath.Ext(inputPath)) {
	case ".parquet":
		err = p.processParquet(ctx, inputPath, result)
	case ".csv":
		err = p.processCSV(ctx, inputPath, result)
	case ".json", ".jsonl":
		err = p.processJSON(ctx, inputPath, result)
	default:
		return nil, fmt.Errorf("unsupported input format: %s", filepath.Ext(inputPath))
	}
	if err != nil {
		return nil, err
	}

	result.Duration = time.Since(start)
	p.logger.Info("precompute run finished",
		zap.Int("total", result.TotalRecords),
		zap.Int("embedded", result.Embedded),
		zap.Int("skipped", result.Skipped),
		zap.Duration("duration", result.Duration))
	return result, nil
}

func (p *Pipeline) processParquet(ctx context.Context, path string, result *Result) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening parquet file: %w", err)
	}
	defer file.Close()

	reader := parquet.NewReader(file)
	defer reader.Close()

	return p.processBatches(ctx, func() ([]Record, error) {
		var batch []Record
		for len(batch) < p.opts.BatchSize {
			var rec Record
			err := reader.Read(&rec)
			if err == io.EOF {
				break
			}
			if err != nil {
				p.logger.Warn("skipping unreadable parquet record", zap.Error(err))
				continue
			}
			if validRecord(rec) {
				batch = append(batch, rec)
			}
		}
		return batch, nil
	}, result)
}

// processCSV expects columns doc_id,text with an optional header row.
func (p *Pipeline) processCSV(ctx context.Context, path string, result *Result) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening csv file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = 2

	first := true
	return p.processBatches(ctx, func() ([]Record, error) {
		var batch []Record
		for len(batch) < p.opts.BatchSize {
			row, err := reader.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				p.logger.Warn("skipping malformed csv row", zap.Error(err))
				continue
			}
			if first {
				first = false
				if strings.EqualFold(row[0], "doc_id") {
					continue
				}
			}
			rec := Record{DocID: strings.TrimSpace(row[0]), Text: strings.TrimSpace(row[1])}
			if validRecord(rec) {
				batch = append(batch, rec)
			}
		}
		return batch, nil
	}, result)
}

func (p *Pipeline) processJSON(ctx context.Context, path string, result *Result) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening json file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)

	return p.processBatches(ctx, func() ([]Record, error) {
		var batch []Record
		for len(batch) < p.opts.BatchSize {
			var rec Record
			err := decoder.Decode(&rec)
			if err == io.EOF {
				break
			}
			if err != nil {
				return batch, fmt.Errorf("decoding json record: %w", err)
			}
			if validRecord(rec) {
				batch = append(batch, rec)
			}
		}
		return batch, nil
	}, result)
}

func (p *Pipeline) processBatches(ctx context.Context, readBatch func() ([]Record, error), result *Result) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		batch, err := readBatch()
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			break
		}

		if err := p.embedBatch(ctx, batch, result); err != nil {
			return err
		}
		result.TotalRecords += len(batch)

		if result.TotalRecords/p.opts.ProgressEvery > (result.TotalRecords-len(batch))/p.opts.ProgressEvery {
			p.logger.Info("precompute progress",
				zap.Int("records", result.TotalRecords),
				zap.Int("embedded", result.Embedded))
		}
	}
	return nil
}

func (p *Pipeline) embedBatch(ctx context.Context, batch []Record, result *Result) error {
	texts := make([]string, len(batch))
	for i, rec := range batch {
		texts[i] = rec.Text
	}

	vecs, err := p.engine.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding batch: %w", err)
	}

	embedded := make([]EmbeddedRecord, len(batch))
	for i, rec := range batch {
		embedded[i] = EmbeddedRecord{DocID: rec.DocID, Text: rec.Text, Embedding: vecs[i]}
	}

	inserted, err := p.writer.WriteBatch(embedded)
	if err != nil {
		return fmt.Errorf("writing batch: %w", err)
	}
	result.Embedded += inserted
	result.Skipped += len(embedded) - inserted
	return nil
}

func validRecord(rec Record) bool {
	return rec.DocID != "" && strings.TrimSpace(rec.Text) != ""
}
