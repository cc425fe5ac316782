package indexer

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/pss-rag/docqa/internal/embedding"
	"github.com/pss-rag/docqa/internal/index"
	"github.com/pss-rag/docqa/internal/store"
)

// Reindexer rebuilds the vector index from the chunk store. Rebuilds are
// infrequent and serialized; in-flight searches keep using the previous
// index until the new one is swapped in.
type Reindexer struct {
	store   *store.Store
	encoder embedding.Encoder
	handle  *index.Handle
	path    string
	logger  *log.Logger

	mu sync.Mutex // one rebuild at a time
}

func New(st *store.Store, encoder embedding.Encoder, handle *index.Handle, path string) *Reindexer {
	return &Reindexer{
		store:   st,
		encoder: encoder,
		handle:  handle,
		path:    path,
		logger:  log.New(log.Writer(), "[INDEXER] ", log.LstdFlags),
	}
}

// Rebuild embeds every stored chunk, builds a fresh index, persists it and
// swaps it in. Returns the number of indexed chunks.
func (r *Reindexer) Rebuild(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	chunks, err := r.store.ListChunks(ctx)
	if err != nil {
		return 0, fmt.Errorf("load chunks: %w", err)
	}

	ixChunks := make([]index.Chunk, len(chunks))
	for i, c := range chunks {
		ixChunks[i] = index.Chunk{Text: c.Content, SourceFile: c.SourceFile, ChunkIndex: c.ChunkIndex}
	}

	ix, err := index.BuildFromChunks(ctx, ixChunks, r.encoder)
	if err != nil {
		return 0, fmt.Errorf("build index: %w", err)
	}
	if err := ix.Save(r.path); err != nil {
		return 0, fmt.Errorf("persist index: %w", err)
	}
	r.handle.Swap(ix)

	r.logger.Printf("reindexed %d chunks in %v", ix.Len(), time.Since(start))
	return ix.Len(), nil
}
