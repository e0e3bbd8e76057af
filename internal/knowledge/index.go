package knowledge

import (
	"context"
	"fmt"
	"os"

	"github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const globalCollection = "global_knowledge"

var indexTracer = otel.Tracer("github.com/fyrsmithlabs/proposald/internal/knowledge")

// IndexConfig configures the global similarity index.
type IndexConfig struct {
	// Path of the persistent chromem directory. Empty keeps the index in memory.
	Path     string
	Compress bool
}

// Hit is one similarity match from the global index.
type Hit struct {
	Key        string
	Content    string
	Similarity float32
}

// GlobalIndex ranks global-namespace records by embedding similarity.
type GlobalIndex struct {
	db         *chromem.DB
	collection *chromem.Collection
}

// NewGlobalIndex opens or creates the chromem collection for global records.
func NewGlobalIndex(cfg IndexConfig, embedder Embedder) (*GlobalIndex, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}

	var (
		db  *chromem.DB
		err error
	)
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", cfg.Path, err)
		}
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("creating chromem DB: %w", err)
		}
	}

	embed := func(ctx context.Context, text string) ([]float32, error) {
		return embedder.EmbedQuery(ctx, text)
	}
	collection, err := db.GetOrCreateCollection(globalCollection, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", globalCollection, err)
	}

	return &GlobalIndex{db: db, collection: collection}, nil
}

// Upsert indexes the current text of a global record. Re-indexing a key
// replaces its previous document.
func (g *GlobalIndex) Upsert(ctx context.Context, key, content string, version int) error {
	ctx, span := indexTracer.Start(ctx, "GlobalIndex.Upsert")
	defer span.End()
	span.SetAttributes(attribute.String("key", key))

	if content == "" {
		content = key
	}
	err := g.collection.AddDocument(ctx, chromem.Document{
		ID:       key,
		Content:  content,
		Metadata: map[string]string{"version": fmt.Sprint(version)},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("indexing %s: %w", key, err)
	}
	return nil
}

// Query returns up to k records most similar to text.
func (g *GlobalIndex) Query(ctx context.Context, text string, k int) ([]Hit, error) {
	ctx, span := indexTracer.Start(ctx, "GlobalIndex.Query")
	defer span.End()

	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	// chromem requires nResults <= document count
	count := g.collection.Count()
	if count == 0 || text == "" {
		return []Hit{}, nil
	}
	if k > count {
		k = count
	}

	results, err := g.collection.Query(ctx, text, k, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", globalCollection, err)
	}

	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = Hit{Key: r.ID, Content: r.Content, Similarity: r.Similarity}
	}
	span.SetAttributes(attribute.Int("results_count", len(hits)))
	return hits, nil
}

// Count returns the number of indexed records.
func (g *GlobalIndex) Count() int {
	return g.collection.Count()
}
