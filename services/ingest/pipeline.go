package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/upb/rag-chat/internal/observability"
	"github.com/upb/rag-chat/internal/rag"
	"go.uber.org/zap"
)

// Report summarizes one ingestion run.
type Report struct {
	Documents int           `json:"documents"`
	Chunks    int           `json:"chunks"`
	Duration  time.Duration `json:"duration"`
}

// Pipeline reads documents, splits them, runs the optional transformers and
// hands the chunks to every writer.
type Pipeline struct {
	source       rag.DocumentSource
	splitter     *TextSplitter
	transformers []Transformer
	writers      []Writer
	metrics      observability.Metrics
	logger       *zap.Logger
}

// PipelineConfig holds the pipeline collaborators.
type PipelineConfig struct {
	Source       rag.DocumentSource
	Splitter     *TextSplitter
	Transformers []Transformer
	Writers      []Writer
	Metrics      observability.Metrics
	Logger       *zap.Logger
}

// NewPipeline wires a pipeline. Source may be nil when only RunDocuments is
// used.
func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	if cfg.Splitter == nil {
		return nil, fmt.Errorf("ingest pipeline: splitter is required")
	}
	if len(cfg.Writers) == 0 {
		return nil, fmt.Errorf("ingest pipeline: at least one writer is required")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NopMetrics{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Pipeline{
		source:       cfg.Source,
		splitter:     cfg.Splitter,
		transformers: cfg.Transformers,
		writers:      cfg.Writers,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
	}, nil
}

// Run loads every document from the source and ingests it.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	if p.source == nil {
		return Report{}, fmt.Errorf("ingest pipeline: no document source configured")
	}
	docs, err := p.source.Load(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("load documents: %w", err)
	}
	return p.RunDocuments(ctx, docs)
}

// RunDocuments ingests already loaded documents.
func (p *Pipeline) RunDocuments(ctx context.Context, docs []rag.Document) (Report, error) {
	start := time.Now()
	report := Report{Documents: len(docs)}

	chunks := p.splitter.SplitDocuments(docs)
	for _, t := range p.transformers {
		var err error
		chunks, err = t.Transform(ctx, chunks)
		if err != nil {
			return report, fmt.Errorf("transform documents: %w", err)
		}
	}
	report.Chunks = len(chunks)

	if len(chunks) > 0 {
		for _, w := range p.writers {
			if err := w.Write(ctx, chunks); err != nil {
				return report, fmt.Errorf("write documents: %w", err)
			}
		}
	}

	report.Duration = time.Since(start)
	p.metrics.RecordIngestion(ctx, report.Documents, report.Chunks)
	p.logger.Info("Ingestion completed",
		zap.Int("documents", report.Documents),
		zap.Int("chunks", report.Chunks),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}
