package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/clearscope-labs/clearscope/internal/store"
)

var (
	resourcesIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clearscope_resources_ingested_total",
		Help: "Number of resources successfully ingested.",
	})
	chunksEmbedded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clearscope_chunks_embedded_total",
		Help: "Number of chunks embedded and stored.",
	})
	ingestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "clearscope_ingest_duration_seconds",
		Help:    "End-to-end latency of the ingestion pipeline.",
		Buckets: prometheus.DefBuckets,
	})
)

type resourceStore interface {
	CreateResourceWithChunks(ctx context.Context, res store.Resource, chunks []store.Chunk) (string, error)
}

type embedder interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// Pipeline runs the ingestion flow: extract, chunk, embed in one batched
// call, then persist the resource and its chunks in a single transaction.
// Any step failing aborts the flow with no partial resource.
type Pipeline struct {
	Store     resourceStore
	Embedder  embedder
	Chunker   Chunker
	Extractor Extractor
	MaxBytes  int64
	Logger    *log.Logger
}

// Input describes one resource to ingest. Either Data+MIMEType (an
// upload) or Text+Kind (pre-extracted content, e.g. a fetched page) must
// be set.
type Input struct {
	CompanyID   string
	Name        string
	Description string
	CategoryID  string
	FileURL     string

	Data     []byte
	MIMEType string

	Text string
	Kind string
}

// NewPipeline wires the ingestion pipeline.
func NewPipeline(st resourceStore, emb embedder, chunker Chunker, maxBytes int64, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.New(log.Writer(), "[INGEST] ", log.LstdFlags)
	}
	return &Pipeline{Store: st, Embedder: emb, Chunker: chunker, MaxBytes: maxBytes, Logger: logger}
}

// Ingest runs the full flow and returns the new resource id.
func (p *Pipeline) Ingest(ctx context.Context, in Input) (string, error) {
	start := time.Now()
	if strings.TrimSpace(in.CompanyID) == "" {
		return "", fmt.Errorf("company_id required")
	}
	if strings.TrimSpace(in.Name) == "" {
		return "", fmt.Errorf("name required")
	}

	text := in.Text
	kind := in.Kind
	if text == "" {
		if len(in.Data) == 0 {
			return "", fmt.Errorf("file required")
		}
		if p.MaxBytes > 0 && int64(len(in.Data)) > p.MaxBytes {
			return "", fmt.Errorf("file exceeds maximum size of %d bytes", p.MaxBytes)
		}
		extracted, err := p.Extractor.Extract(in.Data, in.MIMEType)
		if err != nil {
			return "", err
		}
		text = extracted
		if kind == "" {
			kind = KindForMIME(in.MIMEType)
		}
	}
	if kind == "" {
		kind = store.ResourceKindText
	}

	chunkTexts := p.Chunker.Chunk(text)

	var chunks []store.Chunk
	if len(chunkTexts) > 0 {
		vectors, err := p.Embedder.CreateEmbedding(ctx, chunkTexts)
		if err != nil {
			return "", fmt.Errorf("embed chunks: %w", err)
		}
		if len(vectors) != len(chunkTexts) {
			return "", fmt.Errorf("embed chunks: provider returned %d vectors for %d chunks", len(vectors), len(chunkTexts))
		}
		chunks = make([]store.Chunk, len(chunkTexts))
		for i := range chunkTexts {
			chunks[i] = store.Chunk{Content: chunkTexts[i], Vector: vectors[i]}
		}
	}

	res := store.Resource{
		CompanyID:   in.CompanyID,
		Name:        in.Name,
		Kind:        kind,
		Content:     nullString(text),
		Description: nullString(in.Description),
		FileURL:     nullString(in.FileURL),
		CategoryID:  nullString(in.CategoryID),
	}
	id, err := p.Store.CreateResourceWithChunks(ctx, res, chunks)
	if err != nil {
		return "", fmt.Errorf("persist resource: %w", err)
	}

	resourcesIngested.Inc()
	chunksEmbedded.Add(float64(len(chunks)))
	ingestDuration.Observe(time.Since(start).Seconds())
	p.Logger.Printf("ingested resource %s (%d chunks)", id, len(chunks))
	return id, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
