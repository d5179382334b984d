package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/geo-recog/app/models"
	"github.com/geo-recog/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type scriptedResolver struct {
	delay    time.Duration
	active   atomic.Int32
	maxSeen  atomic.Int32
	failWith map[string]error
}

func (s *scriptedResolver) Resolve(ctx context.Context, text string, opts ResolveOptions) (*models.GeoResolution, bool, error) {
	n := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		m := s.maxSeen.Load()
		if n <= m || s.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(s.delay)
	if err, ok := s.failWith[text]; ok {
		return nil, false, err
	}
	return &models.GeoResolution{Province: ptr(text)}, false, nil
}

func TestResolveBatch_KeepsOrderAndLimitsWorkers(t *testing.T) {
	r := &scriptedResolver{
		delay:    5 * time.Millisecond,
		failWith: map[string]error{"c": llm.ErrInferenceTimeout},
	}
	bs := NewBatchService(r, 2, time.Minute, zap.NewNop())

	var progress atomic.Int32
	items := bs.ResolveBatch(context.Background(), []string{"a", "b", "c", "d", "e"}, ResolveOptions{Strict: true}, func(int) {
		progress.Add(1)
	})

	require.Len(t, items, 5)
	for i, want := range []string{"a", "b", "c", "d", "e"} {
		assert.Equal(t, i, items[i].Index)
		assert.Equal(t, want, items[i].Content)
	}
	assert.Equal(t, "b", *items[1].Result.Province)
	assert.Nil(t, items[2].Result)
	assert.Equal(t, "inference_timeout", items[2].Kind)
	assert.LessOrEqual(t, r.maxSeen.Load(), int32(2))
	assert.EqualValues(t, 5, progress.Load())
}

func TestResolveBatch_CanceledContext(t *testing.T) {
	bs := NewBatchService(&scriptedResolver{}, 1, time.Minute, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	items := bs.ResolveBatch(ctx, []string{"a", "b"}, ResolveOptions{}, nil)
	for _, item := range items {
		assert.Equal(t, "canceled", item.Kind)
		assert.Nil(t, item.Result)
	}
}

func TestSubmitJob(t *testing.T) {
	bs := NewBatchService(&scriptedResolver{delay: time.Millisecond}, 3, time.Minute, zap.NewNop())
	defer bs.Close()

	id := bs.SubmitJob([]string{"a", "b", "c"}, ResolveOptions{})
	require.NotEmpty(t, id)

	require.Eventually(t, func() bool {
		st, err := bs.JobStatus(id)
		return err == nil && st.Status == JobDone
	}, 2*time.Second, 5*time.Millisecond)

	st, err := bs.JobStatus(id)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Processed)
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, 1.0, st.Progress)

	items, err := bs.JobResults(id)
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestJobLookupErrors(t *testing.T) {
	bs := NewBatchService(&scriptedResolver{delay: 200 * time.Millisecond}, 1, time.Minute, zap.NewNop())
	defer bs.Close()

	_, err := bs.JobStatus("missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
	_, err = bs.JobResults("missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	id := bs.SubmitJob([]string{"a", "b"}, ResolveOptions{})
	_, err = bs.JobResults(id)
	assert.ErrorIs(t, err, ErrJobRunning)
}
