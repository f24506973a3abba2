package chat

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/upb/rag-chat/internal/rag"
)

// PostProcessor inspects or rewrites retrieved documents before they are
// spliced into the prompt. Implementations may reorder, filter or annotate
// documents but must not change the query.
type PostProcessor interface {
	Process(ctx context.Context, query string, docs []rag.Document) []rag.Document
}

// PostProcessorFunc adapts a function to PostProcessor.
type PostProcessorFunc func(ctx context.Context, query string, docs []rag.Document) []rag.Document

func (f PostProcessorFunc) Process(ctx context.Context, query string, docs []rag.Document) []rag.Document {
	return f(ctx, query, docs)
}

// Chain runs processors in order.
func Chain(processors ...PostProcessor) PostProcessor {
	return PostProcessorFunc(func(ctx context.Context, query string, docs []rag.Document) []rag.Document {
		for _, p := range processors {
			if p != nil {
				docs = p.Process(ctx, query, docs)
			}
		}
		return docs
	})
}

const separator = "==============================================="

// PrintingPostProcessor writes every retrieved document with its score to
// an io.Writer and passes the documents through untouched.
type PrintingPostProcessor struct {
	mu  sync.Mutex
	out io.Writer
}

// NewPrintingPostProcessor creates a printer writing to out.
func NewPrintingPostProcessor(out io.Writer) *PrintingPostProcessor {
	return &PrintingPostProcessor{out: out}
}

func (p *PrintingPostProcessor) Process(_ context.Context, _ string, docs []rag.Document) []rag.Document {
	var b strings.Builder
	b.WriteString("\n[ Search Results ]\n")
	b.WriteString(separator + "\n")

	if len(docs) == 0 {
		b.WriteString("  No search results found.\n")
		b.WriteString(separator + "\n")
	}
	for i, d := range docs {
		fmt.Fprintf(&b, "▶ %d Document, Score: %.2f\n", i+1, d.Score)
		b.WriteString("-----------------------------------------------\n")
		for _, line := range strings.Split(d.Content, "\n") {
			b.WriteString(line + "\n")
		}
		b.WriteString(separator + "\n")
	}
	if len(docs) > 0 {
		b.WriteString("\n[ Answer ]\n\n")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = io.WriteString(p.out, b.String())
	return docs
}
