// Package embeddingtest provides an in-memory Encoder for tests.
package embeddingtest

import (
	"context"
	"errors"
	"sync"
)

// ErrUnknownText is returned for texts with no registered vector and no fallback.
var ErrUnknownText = errors.New("embeddingtest: unknown text")

// MapEncoder returns fixed vectors per text. Texts without a vector get
// Fallback when it is set.
type MapEncoder struct {
	Vectors  map[string][]float32
	Fallback []float32
	Err      error

	mu    sync.Mutex
	calls int
	texts []string
}

// Embed implements embedding.Encoder.
func (m *MapEncoder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.calls++
	m.texts = append(m.texts, texts...)
	m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := m.Vectors[t]
		if !ok {
			if m.Fallback == nil {
				return nil, ErrUnknownText
			}
			v = m.Fallback
		}
		out[i] = append([]float32(nil), v...)
	}
	return out, nil
}

// Calls returns how many Embed requests were made.
func (m *MapEncoder) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Texts returns every text passed to Embed, in order.
func (m *MapEncoder) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...)
}

// Reset clears the call counters.
func (m *MapEncoder) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = 0
	m.texts = nil
}
