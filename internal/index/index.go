package index

import (
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"sort"

	"github.com/pss-rag/docqa/internal/embedding"
)

// Chunk is the unit of retrieval: a contiguous span of extracted document
// text plus its origin. Chunks are immutable once indexed.
type Chunk struct {
	Text       string
	SourceFile string
	ChunkIndex int
}

// Hit is a single retrieval result. Position is the chunk's position in
// the list the index was built from.
type Hit struct {
	Position int
	Score    float32
	Chunk    Chunk
}

// Index is a flat inner-product index over L2-normalized chunk vectors.
// Vectors and chunks stay in lock-step: vectors[i] embeds chunks[i].
// The index is read-only after Build; rebuilds produce a new Index that is
// swapped in through a Handle.
type Index struct {
	dim     int
	vectors [][]float32
	chunks  []Chunk
}

// Build constructs an index over the given chunks and their vectors.
func Build(chunks []Chunk, vectors [][]float32) (*Index, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("chunks and vectors length mismatch: %d vs %d", len(chunks), len(vectors))
	}
	dim := 0
	if len(vectors) > 0 {
		dim = len(vectors[0])
	}
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("vector %d dimension mismatch: %d vs %d", i, len(v), dim)
		}
	}
	return &Index{dim: dim, vectors: vectors, chunks: chunks}, nil
}

// BuildFromChunks embeds the chunk texts and builds the index. The batch
// size bounds a single embeddings request.
func BuildFromChunks(ctx context.Context, chunks []Chunk, enc embedding.Encoder) (*Index, error) {
	const batchSize = 64

	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}
		vecs, err := enc.EncodeBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embedding chunks %d..%d: %w", start, end, err)
		}
		vectors = append(vectors, vecs...)
	}
	return Build(chunks, vectors)
}

// Len returns the number of indexed chunks.
func (ix *Index) Len() int { return len(ix.chunks) }

// Search returns the min(k, N) chunks with the highest inner product
// against the query vector, sorted by non-increasing score. An empty index
// yields an empty result, not an error.
func (ix *Index) Search(query []float32, k int) []Hit {
	if k <= 0 || len(ix.vectors) == 0 {
		return nil
	}

	hits := make([]Hit, 0, len(ix.vectors))
	for i, v := range ix.vectors {
		hits = append(hits, Hit{Position: i, Score: dot(v, query), Chunk: ix.chunks[i]})
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].Score > hits[b].Score })

	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k]
}

func dot(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float32
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

type indexBlob struct {
	Dim     int
	Vectors [][]float32
	Chunks  []Chunk
}

// Save writes the index to path as an opaque blob.
func (ix *Index) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer f.Close()

	blob := indexBlob{Dim: ix.dim, Vectors: ix.vectors, Chunks: ix.chunks}
	if err := gob.NewEncoder(f).Encode(blob); err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	return nil
}

// Load reads an index previously written by Save.
func Load(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()

	var blob indexBlob
	if err := gob.NewDecoder(f).Decode(&blob); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}
	return &Index{dim: blob.Dim, vectors: blob.Vectors, chunks: blob.Chunks}, nil
}
