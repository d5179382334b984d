package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/geo-recog/internal/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeChat struct {
	mu     sync.Mutex
	answer string
	err    error
	delay  time.Duration
	calls  int
	last   []Message
}

func (f *fakeChat) Complete(ctx context.Context, messages []Message) (string, error) {
	f.mu.Lock()
	f.calls++
	f.last = messages
	answer, err, delay := f.answer, f.err, f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return answer, err
}

func newExtractor(t *testing.T, chat *fakeChat, size int, timeout time.Duration) (*Extractor, *pool.Pool) {
	t.Helper()
	eps := make([]pool.Endpoint, size)
	for i := range eps {
		eps[i] = pool.Endpoint{Index: i, BaseURL: "http://fake"}
	}
	p, err := pool.New(eps, zap.NewNop())
	require.NoError(t, err)
	prompt, err := LoadPrompt()
	require.NoError(t, err)

	ex, err := NewExtractor(p, func(pool.Endpoint) ChatClient { return chat }, prompt, timeout, zap.NewNop())
	require.NoError(t, err)
	return ex, p
}

func TestExtract_Success(t *testing.T) {
	chat := &fakeChat{answer: `{"entities": ["太原"], "analysis": "太原是山西省的省会", "province": "山西", "city": "太原"}`}
	ex, p := newExtractor(t, chat, 2, time.Second)

	got, err := ex.Extract(context.Background(), "太原市今日降雨")
	require.NoError(t, err)
	assert.Equal(t, "山西", got.Province)
	assert.Equal(t, "太原", got.City)
	assert.Equal(t, []string{"太原"}, got.Entities)
	assert.Equal(t, 0, p.Stats().InFlight)

	require.NotEmpty(t, chat.last)
	assert.Equal(t, RoleSystem, chat.last[0].Role)
	assert.Equal(t, "太原市今日降雨", chat.last[len(chat.last)-1].Content)
}

func TestExtract_ErrorKinds(t *testing.T) {
	testCases := []struct {
		name     string
		chat     *fakeChat
		expected error
		kind     string
	}{
		{
			name:     "transport failure",
			chat:     &fakeChat{err: errors.New("connection refused")},
			expected: ErrInferenceFailed,
			kind:     "inference_failed",
		},
		{
			name:     "timeout",
			chat:     &fakeChat{delay: time.Second},
			expected: ErrInferenceTimeout,
			kind:     "inference_timeout",
		},
		{
			name:     "not json",
			chat:     &fakeChat{answer: "这条新闻发生在北京"},
			expected: ErrMalformedExtraction,
			kind:     "malformed_extraction",
		},
		{
			name:     "missing city",
			chat:     &fakeChat{answer: `{"province": "江西"}`},
			expected: ErrMalformedExtraction,
			kind:     "missing_field",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ex, p := newExtractor(t, tc.chat, 1, 20*time.Millisecond)
			_, err := ex.Extract(context.Background(), "text")
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.expected)
			assert.Equal(t, tc.kind, Kind(err))
			assert.Equal(t, 0, p.Stats().InFlight, "lease must be released on failure")
			assert.Equal(t, 1, tc.chat.calls, "exactly one attempt")
		})
	}
}

func TestExtract_MissingFieldKeepsPartial(t *testing.T) {
	chat := &fakeChat{answer: `{"province": "江西", "city": ""}`}
	ex, _ := newExtractor(t, chat, 1, time.Second)

	got, err := ex.Extract(context.Background(), "text")
	var missing *MissingFieldError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"city"}, missing.Fields)
	assert.Equal(t, "江西", got.Province)
	assert.Equal(t, "missing city field in LLM response", err.Error())
}

func TestExtract_EndpointUnavailable(t *testing.T) {
	chat := &fakeChat{answer: `{"province": "北京", "city": "北京"}`}
	ex, p := newExtractor(t, chat, 1, time.Second)

	held, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer held.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = ex.Extract(ctx, "text")
	assert.ErrorIs(t, err, ErrEndpointUnavailable)
	assert.Equal(t, "endpoint_unavailable", Kind(err))
	assert.Zero(t, chat.calls)
}

func TestParseAnswer(t *testing.T) {
	testCases := []struct {
		name     string
		answer   string
		province string
		city     string
		err      error
	}{
		{name: "plain object", answer: `{"province": "北京", "city": "北京"}`, province: "北京", city: "北京"},
		{name: "fenced", answer: "```json\n{\"province\": \"江西\", \"city\": \"南昌\"}\n```", province: "江西", city: "南昌"},
		{name: "list", answer: `[{"province": "山西", "city": "太原"}]`, province: "山西", city: "太原"},
		{name: "fullwidth spaces folded", answer: `{"province": "山　西", "city": "太原"}`, province: "山西", city: "太原"},
		{name: "null city", answer: `{"province": "山西", "city": null}`, province: "山西", err: ErrMalformedExtraction},
		{name: "empty list", answer: `[]`, err: ErrMalformedExtraction},
		{name: "garbage", answer: `{province:`, err: ErrMalformedExtraction},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseAnswer(tc.answer)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tc.province, got.Province)
			assert.Equal(t, tc.city, got.City)
		})
	}
}

func TestKind(t *testing.T) {
	assert.Equal(t, "none", Kind(nil))
	assert.Equal(t, "unknown", Kind(errors.New("boom")))
	assert.Equal(t, "missing_field", Kind(&MissingFieldError{Fields: []string{"province", "city"}}))
}
