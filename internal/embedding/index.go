package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// ErrEmptyVocabulary is returned when an index is built over no entries.
var ErrEmptyVocabulary = errors.New("vocabulary is empty")

// IndexOptions tunes how an Index is built and queried.
type IndexOptions struct {
	BatchSize      int // entries per encoder request while building
	QueryCacheSize int // query vectors kept in the LRU, 0 disables it
}

// Index caches one unit-length embedding per vocabulary entry and scores
// arbitrary strings against all of them. Entries and vectors never change
// after NewIndex returns.
type Index struct {
	name       string
	vocabulary []string
	vectors    [][]float32
	dim        int
	encoder    Encoder
	queryCache *lru.Cache[string, []float32]
	logger     *zap.Logger
}

// NewIndex embeds every vocabulary entry through encoder.
func NewIndex(ctx context.Context, name string, vocabulary []string, encoder Encoder, opts IndexOptions, logger *zap.Logger) (*Index, error) {
	if len(vocabulary) == 0 {
		return nil, fmt.Errorf("index %s: %w", name, ErrEmptyVocabulary)
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = 64
	}

	start := time.Now()
	vectors := make([][]float32, 0, len(vocabulary))
	for lo := 0; lo < len(vocabulary); lo += batch {
		hi := lo + batch
		if hi > len(vocabulary) {
			hi = len(vocabulary)
		}
		out, err := encoder.Embed(ctx, vocabulary[lo:hi])
		if err != nil {
			return nil, fmt.Errorf("index %s: embed entries %d-%d: %w", name, lo, hi, err)
		}
		if len(out) != hi-lo {
			return nil, fmt.Errorf("index %s: encoder returned %d vectors for %d entries", name, len(out), hi-lo)
		}
		for _, v := range out {
			vectors = append(vectors, Normalize(v))
		}
	}

	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("index %s: entry %q has dimension %d, want %d", name, vocabulary[i], len(v), dim)
		}
	}

	idx := &Index{
		name:       name,
		vocabulary: append([]string(nil), vocabulary...),
		vectors:    vectors,
		dim:        dim,
		encoder:    encoder,
		logger:     logger,
	}
	if opts.QueryCacheSize > 0 {
		cache, err := lru.New[string, []float32](opts.QueryCacheSize)
		if err != nil {
			return nil, fmt.Errorf("index %s: query cache: %w", name, err)
		}
		idx.queryCache = cache
	}

	logger.Info("Embedding index built",
		zap.String("index", name),
		zap.Int("entries", len(vectors)),
		zap.Int("dim", dim),
		zap.Duration("took", time.Since(start)))
	return idx, nil
}

// Name identifies the index in logs.
func (idx *Index) Name() string { return idx.name }

// Len returns the number of entries.
func (idx *Index) Len() int { return len(idx.vocabulary) }

// Vocabulary returns the entries in index order.
func (idx *Index) Vocabulary() []string {
	return append([]string(nil), idx.vocabulary...)
}

// Similarities returns the cosine similarity of text against every entry,
// in index order.
func (idx *Index) Similarities(ctx context.Context, text string) ([]float64, error) {
	q, err := idx.queryVector(ctx, text)
	if err != nil {
		return nil, err
	}
	sims := make([]float64, len(idx.vectors))
	for i, v := range idx.vectors {
		sims[i] = Dot(q, v)
	}
	return sims, nil
}

// Nearest returns the index and similarity of the best entry. Equal
// maxima resolve to the lowest index.
func (idx *Index) Nearest(ctx context.Context, text string) (int, float64, error) {
	sims, err := idx.Similarities(ctx, text)
	if err != nil {
		return -1, 0, err
	}
	best := 0
	for i := 1; i < len(sims); i++ {
		if sims[i] > sims[best] {
			best = i
		}
	}
	return best, sims[best], nil
}

func (idx *Index) queryVector(ctx context.Context, text string) ([]float32, error) {
	if idx.queryCache != nil {
		if v, ok := idx.queryCache.Get(text); ok {
			return v, nil
		}
	}
	out, err := idx.encoder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("index %s: embed query: %w", idx.name, err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("index %s: encoder returned %d vectors for 1 query", idx.name, len(out))
	}
	if len(out[0]) != idx.dim {
		return nil, fmt.Errorf("index %s: query dimension %d, want %d", idx.name, len(out[0]), idx.dim)
	}
	v := Normalize(out[0])
	if idx.queryCache != nil {
		idx.queryCache.Add(text, v)
	}
	return v, nil
}

// Normalize returns a unit-length copy of v. A zero vector stays zero.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		return out
	}
	n := math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out
}

// Dot is the inner product; for unit vectors it is the cosine similarity.
func Dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}
