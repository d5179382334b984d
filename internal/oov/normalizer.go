package oov

import (
	"context"
	"fmt"
	"strings"

	"github.com/geo-recog/internal/embedding"
	"github.com/geo-recog/internal/normalizer"
	"go.uber.org/zap"
)

// Tier records which matching stage produced a result.
type Tier string

const (
	TierNone      Tier = "none"
	TierExact     Tier = "exact"
	TierEmbedding Tier = "embedding"
	TierLexical   Tier = "lexical"
)

// Result is the best canonical match for a free-text name.
// Match is empty when nothing could be scored.
type Result struct {
	Match      string  `json:"match,omitempty"`
	Similarity float64 `json:"similarity"`
	Tier       Tier    `json:"tier"`
}

// Accepted reports whether the match clears threshold (strictly greater).
func (r Result) Accepted(threshold float64) bool {
	return r.Match != "" && r.Similarity > threshold
}

// Options tunes a Normalizer.
type Options struct {
	// LexicalFallback scores by edit distance when the encoder fails
	// instead of returning the encoder error.
	LexicalFallback bool
}

// Normalizer maps free-text geographic names onto one fixed vocabulary.
// It is safe for concurrent use.
type Normalizer struct {
	name       string
	vocabulary []string
	index      *embedding.Index
	lexical    []string
	opts       Options
	logger     *zap.Logger
}

// New wraps an embedding index built over the vocabulary.
func New(index *embedding.Index, opts Options, logger *zap.Logger) (*Normalizer, error) {
	if index == nil || index.Len() == 0 {
		return nil, fmt.Errorf("oov: %w", embedding.ErrEmptyVocabulary)
	}
	vocabulary := index.Vocabulary()
	n := &Normalizer{
		name:       index.Name(),
		vocabulary: vocabulary,
		index:      index,
		opts:       opts,
		logger:     logger,
	}
	if opts.LexicalFallback {
		n.lexical = make([]string, len(vocabulary))
		for i, v := range vocabulary {
			n.lexical[i] = normalizer.Romanize(v)
		}
	}
	return n, nil
}

// Name returns the vocabulary name, e.g. "province".
func (n *Normalizer) Name() string { return n.name }

// Attach returns the vocabulary entry closest to text.
//
// A single containment hit (entry in text or text in entry) short-circuits
// with similarity 1.0. Zero or several hits fall through to the embedding
// tier, where the highest cosine similarity wins and ties go to the entry
// listed first in the vocabulary.
func (n *Normalizer) Attach(ctx context.Context, text string) (Result, error) {
	text = normalizer.Canonical(text)
	if text == "" {
		return Result{Tier: TierNone}, nil
	}

	if match, ok := n.containment(text); ok {
		return Result{Match: match, Similarity: 1.0, Tier: TierExact}, nil
	}

	best, sim, err := n.index.Nearest(ctx, text)
	if err == nil {
		return Result{Match: n.vocabulary[best], Similarity: sim, Tier: TierEmbedding}, nil
	}
	if !n.opts.LexicalFallback {
		return Result{Tier: TierNone}, fmt.Errorf("oov %s: %w", n.name, err)
	}

	n.logger.Warn("Encoder unavailable, using lexical similarity",
		zap.String("vocabulary", n.name),
		zap.String("text", text),
		zap.Error(err))
	best, sim = n.nearestLexical(text)
	return Result{Match: n.vocabulary[best], Similarity: sim, Tier: TierLexical}, nil
}

// containment returns the only entry that contains or is contained in text.
func (n *Normalizer) containment(text string) (string, bool) {
	match := ""
	hits := 0
	for _, v := range n.vocabulary {
		if strings.Contains(text, v) || strings.Contains(v, text) {
			hits++
			if hits > 1 {
				return "", false
			}
			match = v
		}
	}
	return match, hits == 1
}
