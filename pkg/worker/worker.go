package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	idleDelay  = 2 * time.Second
	errorDelay = 5 * time.Second
)

type Options struct {
	Workers    int
	JobTimeout time.Duration
	JobTTL     time.Duration
}

// Worker takes pending replay jobs from storage, retraces them and stores the outcome.
type Worker struct {
	retracer retracer
	storage  storage
	options  Options
}

func New(retracer retracer, storage storage, options Options) *Worker {
	if options.Workers < 1 {
		options.Workers = 1
	}
	if options.JobTimeout == 0 {
		options.JobTimeout = 2 * time.Minute
	}
	return &Worker{
		retracer: retracer,
		storage:  storage,
		options:  options,
	}
}

func (w *Worker) Run(ctx context.Context, wg *sync.WaitGroup) error {
	ctx1, cancel := context.WithTimeout(ctx, 10*time.Second)
	reset, err := w.storage.ResetProcessingJobs(ctx1)
	cancel()
	if err != nil {
		return fmt.Errorf("reset processing jobs: %w", err)
	}
	if reset > 0 {
		slog.Info("interrupted jobs returned to queue", "count", reset)
	}
	for i := 0; i < w.options.Workers; i++ {
		wg.Add(1)
		go w.runProcessor(ctx, wg, i)
	}
	if w.options.JobTTL > 0 {
		wg.Add(1)
		go w.runExpirationProcessor(ctx, wg)
	}
	return nil
}

func (w *Worker) runProcessor(ctx context.Context, wg *sync.WaitGroup, n int) {
	slog.Info("job processor started", "worker", n)
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			slog.Info("job processor stopped", "worker", n)
			return
		default:
		}
		processed, err := w.processNext(ctx)
		if err != nil {
			slog.Error("process job", "error", err.Error())
			sleep(ctx, errorDelay)
			continue
		}
		if !processed {
			sleep(ctx, idleDelay)
		}
	}
}

// processNext runs one pending job. It reports false when the queue is empty.
func (w *Worker) processNext(ctx context.Context) (bool, error) {
	ctx1, cancel := context.WithTimeout(ctx, 10*time.Second)
	job, err := w.storage.TakePendingJob(ctx1)
	cancel()
	if err != nil {
		return false, fmt.Errorf("take pending job: %w", err)
	}
	if job == nil {
		return false, nil
	}
	log := slog.With("job", job.ID.String(), "account", job.Location.Account.ToRaw(), "lt", job.Location.Lt)
	log.Info("retracing transaction")

	jobCtx, cancel := context.WithTimeout(ctx, w.options.JobTimeout)
	report, retraceErr := w.retracer.Retrace(jobCtx, job.Location)
	cancel()

	ctx2, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if retraceErr != nil {
		log.Warn("retrace failed", "error", retraceErr.Error())
		if err := w.storage.FailJob(ctx2, job.ID, retraceErr); err != nil {
			return true, fmt.Errorf("save job failure: %w", err)
		}
		return true, nil
	}
	if err := w.storage.SaveReport(ctx2, job.ID, report); err != nil {
		return true, fmt.Errorf("save report: %w", err)
	}
	log.Info("transaction retraced", "steps", len(report.Steps), "actions", len(report.Actions))
	return true, nil
}

func (w *Worker) runExpirationProcessor(ctx context.Context, wg *sync.WaitGroup) {
	slog.Info("job expiration processor started")
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			slog.Info("job expiration processor stopped")
			return
		case <-time.After(time.Minute):
			ctx1, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := w.storage.DeleteOldJobs(ctx1, w.options.JobTTL)
			cancel()
			if err != nil {
				slog.Error("failed to delete old jobs", "error", err)
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
