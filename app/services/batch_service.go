package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/geo-recog/app/models"
	"github.com/geo-recog/helpers/utils"
	"github.com/geo-recog/internal/llm"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrJobNotFound = errors.New("batch job not found")
	ErrJobRunning  = errors.New("batch job still running")
)

// Job states.
const (
	JobRunning  = "running"
	JobDone     = "done"
	JobCanceled = "canceled"
)

// Resolver is the single-text operation a batch fans out over.
type Resolver interface {
	Resolve(ctx context.Context, text string, opts ResolveOptions) (*models.GeoResolution, bool, error)
}

// BatchItem is the outcome for one input, in input order.
type BatchItem struct {
	Index   int                   `json:"index"`
	Content string                `json:"content"`
	Result  *models.GeoResolution `json:"result"`
	Error   string                `json:"error,omitempty"`
	Kind    string                `json:"kind,omitempty"`
}

// JobStatus is the progress of a background batch.
type JobStatus struct {
	JobID     string    `json:"job_id"`
	Status    string    `json:"status"`
	Progress  float64   `json:"progress"`
	Processed int       `json:"processed"`
	Total     int       `json:"total"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type batchJob struct {
	status  JobStatus
	results []BatchItem
	cancel  context.CancelFunc
}

// BatchService resolves many texts concurrently, either inline or as an
// in-memory background job.
type BatchService struct {
	resolver Resolver
	workers  int
	jobTTL   time.Duration
	logger   *zap.Logger

	mu   sync.RWMutex
	jobs map[string]*batchJob
	wg   sync.WaitGroup
}

// NewBatchService runs at most workers resolutions at once. Finished jobs
// are forgotten after jobTTL.
func NewBatchService(resolver Resolver, workers int, jobTTL time.Duration, logger *zap.Logger) *BatchService {
	if workers < 1 {
		workers = 1
	}
	if jobTTL <= 0 {
		jobTTL = time.Hour
	}
	return &BatchService{
		resolver: resolver,
		workers:  workers,
		jobTTL:   jobTTL,
		logger:   logger,
		jobs:     make(map[string]*batchJob),
	}
}

// ResolveBatch resolves texts and returns one item per input. progress, if
// set, is called after each item completes. Items not started before ctx
// is done carry the context error.
func (bs *BatchService) ResolveBatch(ctx context.Context, texts []string, opts ResolveOptions, progress func(done int)) []BatchItem {
	items := make([]BatchItem, len(texts))
	var (
		mu   sync.Mutex
		done int
	)

	g := new(errgroup.Group)
	g.SetLimit(bs.workers)
	for i, text := range texts {
		i, text := i, text
		g.Go(func() error {
			item := BatchItem{Index: i, Content: text}
			if err := ctx.Err(); err != nil {
				item.Error, item.Kind = err.Error(), "canceled"
			} else if res, _, err := bs.resolver.Resolve(ctx, text, opts); err != nil {
				item.Error, item.Kind = err.Error(), llm.Kind(err)
			} else {
				item.Result = res
			}
			items[i] = item

			if progress != nil {
				mu.Lock()
				done++
				n := done
				mu.Unlock()
				progress(n)
			}
			return nil
		})
	}
	_ = g.Wait()
	return items
}

// SubmitJob starts a background batch and returns its id.
func (bs *BatchService) SubmitJob(texts []string, opts ResolveOptions) string {
	bs.sweep()

	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	id := utils.GenerateUUID()
	job := &batchJob{
		status: JobStatus{
			JobID:     id,
			Status:    JobRunning,
			Total:     len(texts),
			CreatedAt: now,
			UpdatedAt: now,
		},
		cancel: cancel,
	}

	bs.mu.Lock()
	bs.jobs[id] = job
	bs.mu.Unlock()

	bs.wg.Add(1)
	go func() {
		defer bs.wg.Done()
		defer cancel()

		results := bs.ResolveBatch(ctx, texts, opts, func(n int) {
			bs.mu.Lock()
			job.status.Processed = n
			job.status.Progress = float64(n) / float64(len(texts))
			job.status.UpdatedAt = time.Now()
			bs.mu.Unlock()
		})

		bs.mu.Lock()
		job.results = results
		job.status.Status = JobDone
		if ctx.Err() != nil {
			job.status.Status = JobCanceled
		}
		if len(texts) == 0 {
			job.status.Progress = 1
		}
		job.status.UpdatedAt = time.Now()
		bs.mu.Unlock()

		bs.logger.Info("Batch job completed",
			zap.String("job_id", id),
			zap.Int("total", len(texts)),
			zap.String("status", job.status.Status))
	}()
	return id
}

// JobStatus returns a snapshot of the job's progress.
func (bs *BatchService) JobStatus(id string) (JobStatus, error) {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	job, ok := bs.jobs[id]
	if !ok {
		return JobStatus{}, ErrJobNotFound
	}
	return job.status, nil
}

// JobResults returns the items of a finished job.
func (bs *BatchService) JobResults(id string) ([]BatchItem, error) {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	job, ok := bs.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	if job.status.Status == JobRunning {
		return nil, ErrJobRunning
	}
	return job.results, nil
}

// Close cancels running jobs and waits for them to stop.
func (bs *BatchService) Close() {
	bs.mu.Lock()
	for _, job := range bs.jobs {
		job.cancel()
	}
	bs.mu.Unlock()
	bs.wg.Wait()
}

func (bs *BatchService) sweep() {
	cutoff := time.Now().Add(-bs.jobTTL)
	bs.mu.Lock()
	defer bs.mu.Unlock()
	for id, job := range bs.jobs {
		if job.status.Status != JobRunning && job.status.UpdatedAt.Before(cutoff) {
			delete(bs.jobs, id)
		}
	}
}
