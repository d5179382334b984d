package oov

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/geo-recog/internal/embedding"
	"github.com/geo-recog/internal/embedding/embeddingtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var lowSim = float32(math.Sqrt(1 - 3*0.55*0.55))

func newEncoder() *embeddingtest.MapEncoder {
	return &embeddingtest.MapEncoder{Vectors: map[string][]float32{
		"北京": {1, 0, 0, 0},
		"江西": {0, 1, 0, 0},
		"山西": {0, 0, 1, 0},
		"西":  {0, 0.6, 0.7, 0},
		"京畿": {0.9, 0.1, 0, 0.1},
		"火星": {0.55, 0.55, 0.55, lowSim},
	}}
}

func newNormalizer(t *testing.T, enc embedding.Encoder, opts Options) *Normalizer {
	t.Helper()
	idx, err := embedding.NewIndex(context.Background(), "province", []string{"北京", "江西", "山西"}, enc, embedding.IndexOptions{}, zap.NewNop())
	require.NoError(t, err)
	n, err := New(idx, opts, zap.NewNop())
	require.NoError(t, err)
	return n
}

func TestAttach_SingleContainmentHit(t *testing.T) {
	enc := newEncoder()
	n := newNormalizer(t, enc, Options{})
	enc.Reset()

	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "entry inside input", input: "江西省", expected: "江西"},
		{name: "input equals entry", input: "北京", expected: "北京"},
		{name: "input inside entry", input: "京", expected: "北京"},
		{name: "whitespace folded", input: " 山 西 ", expected: "山西"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := n.Attach(context.Background(), tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, res.Match)
			assert.Equal(t, 1.0, res.Similarity)
			assert.Equal(t, TierExact, res.Tier)
		})
	}

	assert.Zero(t, enc.Calls(), "containment hits must not touch the encoder")
}

func TestAttach_AmbiguousContainmentUsesEmbedding(t *testing.T) {
	n := newNormalizer(t, newEncoder(), Options{})

	// "西" is contained in both 江西 and 山西.
	res, err := n.Attach(context.Background(), "西")
	require.NoError(t, err)
	assert.Equal(t, TierEmbedding, res.Tier)
	assert.Equal(t, "山西", res.Match)
	assert.InDelta(t, 0.7/math.Sqrt(0.85), res.Similarity, 1e-6)
	assert.False(t, res.Accepted(0.8))
}

func TestAttach_NoContainmentUsesEmbedding(t *testing.T) {
	n := newNormalizer(t, newEncoder(), Options{})

	res, err := n.Attach(context.Background(), "京畿")
	require.NoError(t, err)
	assert.Equal(t, TierEmbedding, res.Tier)
	assert.Equal(t, "北京", res.Match)
	assert.True(t, res.Accepted(0.8))
}

func TestAttach_LowSimilarityIsDeterministic(t *testing.T) {
	n := newNormalizer(t, newEncoder(), Options{})

	first, err := n.Attach(context.Background(), "火星")
	require.NoError(t, err)
	second, err := n.Attach(context.Background(), "火星")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.InDelta(t, 0.55, first.Similarity, 1e-5)
	// All three entries tie; the first one listed wins.
	assert.Equal(t, "北京", first.Match)
	assert.False(t, first.Accepted(0.8))
}

func TestAttach_EmptyInput(t *testing.T) {
	n := newNormalizer(t, newEncoder(), Options{})

	res, err := n.Attach(context.Background(), "   ")
	require.NoError(t, err)
	assert.Equal(t, TierNone, res.Tier)
	assert.Empty(t, res.Match)
	assert.False(t, res.Accepted(0.8))
}

func TestAttach_EncoderFailure(t *testing.T) {
	enc := newEncoder()
	n := newNormalizer(t, enc, Options{})
	enc.Err = errors.New("encoder down")

	_, err := n.Attach(context.Background(), "Jiangxi")
	require.Error(t, err)
	assert.ErrorIs(t, err, enc.Err)

	// Containment still works without the encoder.
	res, err := n.Attach(context.Background(), "江西省")
	require.NoError(t, err)
	assert.Equal(t, "江西", res.Match)
}

func TestAttach_LexicalFallback(t *testing.T) {
	enc := newEncoder()
	n := newNormalizer(t, enc, Options{LexicalFallback: true})
	enc.Err = errors.New("encoder down")

	res, err := n.Attach(context.Background(), "Jiangxi")
	require.NoError(t, err)
	assert.Equal(t, TierLexical, res.Tier)
	assert.Equal(t, "江西", res.Match)
	assert.Equal(t, 1.0, res.Similarity)

	res, err = n.Attach(context.Background(), "Shanxii")
	require.NoError(t, err)
	assert.Equal(t, "山西", res.Match)
	assert.Greater(t, res.Similarity, 0.8)
}

func TestLexicalScore(t *testing.T) {
	assert.Equal(t, 1.0, lexicalScore("beijing", "beijing"))
	assert.Equal(t, 0.0, lexicalScore("", "beijing"))
	assert.Less(t, lexicalScore("xizang", "beijing"), 0.8)
}

func TestNew_RequiresIndex(t *testing.T) {
	_, err := New(nil, Options{}, zap.NewNop())
	assert.ErrorIs(t, err, embedding.ErrEmptyVocabulary)
}
