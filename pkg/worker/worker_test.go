package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tonkeeper/tongo/ton"

	"github.com/txsociety/tx-retracer/pkg/core"
	"github.com/txsociety/tx-retracer/pkg/replay"
	"github.com/txsociety/tx-retracer/pkg/vmlog"
)

type fakeStorage struct {
	mu       sync.Mutex
	pending  []core.Job
	reports  map[core.JobID]any
	failures map[core.JobID]string
	takeErr  error
	reset    int
	expired  []time.Duration
}

func newFakeStorage(jobs ...core.Job) *fakeStorage {
	return &fakeStorage{
		pending:  jobs,
		reports:  map[core.JobID]any{},
		failures: map[core.JobID]string{},
	}
}

func (s *fakeStorage) TakePendingJob(ctx context.Context) (*core.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.takeErr != nil {
		return nil, s.takeErr
	}
	if len(s.pending) == 0 {
		return nil, nil
	}
	job := s.pending[0]
	s.pending = s.pending[1:]
	job.Status = core.ProcessingJobStatus
	return &job, nil
}

func (s *fakeStorage) SaveReport(ctx context.Context, id core.JobID, report any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[id] = report
	return nil
}

func (s *fakeStorage) FailJob(ctx context.Context, id core.JobID, jobErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[id] = jobErr.Error()
	return nil
}

func (s *fakeStorage) ResetProcessingJobs(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset++
	return 0, nil
}

func (s *fakeStorage) DeleteOldJobs(ctx context.Context, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expired = append(s.expired, ttl)
	return nil
}

func (s *fakeStorage) done() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reports) + len(s.failures)
}

type fakeRetracer struct {
	fail map[uint64]error
}

func (r fakeRetracer) Retrace(ctx context.Context, location core.TxLocation) (replay.Report, error) {
	if _, ok := ctx.Deadline(); !ok {
		return replay.Report{}, errors.New("retrace must run with a deadline")
	}
	if err, ok := r.fail[location.Lt]; ok {
		return replay.Report{}, err
	}
	return replay.Report{
		Lt:    location.Lt,
		Hash:  location.Hash,
		Steps: []vmlog.Step{{Instruction: "ACCEPT"}},
	}, nil
}

func testJob(lt uint64) core.Job {
	return core.NewJob(core.TxLocation{
		Account: ton.MustParseAccountID("0:" + strings.Repeat("ab", 32)),
		Lt:      lt,
		Hash:    ton.Bits256{byte(lt)},
	})
}

func TestProcessNext(t *testing.T) {
	ok, failed := testJob(10), testJob(20)
	storage := newFakeStorage(ok, failed)
	w := New(fakeRetracer{fail: map[uint64]error{20: core.ErrNoInMessage}}, storage, Options{})

	for i := 0; i < 2; i++ {
		processed, err := w.processNext(context.Background())
		if err != nil || !processed {
			t.Fatalf("expected processed job, got %v %v", processed, err)
		}
	}
	processed, err := w.processNext(context.Background())
	if err != nil || processed {
		t.Fatalf("expected empty queue, got %v %v", processed, err)
	}

	report, found := storage.reports[ok.ID].(replay.Report)
	if !found {
		t.Fatalf("report for %v not saved", ok.ID)
	}
	if report.Lt != 10 || len(report.Steps) != 1 {
		t.Errorf("unexpected report %+v", report)
	}
	if storage.failures[failed.ID] != core.ErrNoInMessage.Error() {
		t.Errorf("unexpected failure %q", storage.failures[failed.ID])
	}
}

func TestProcessNext_StorageError(t *testing.T) {
	storage := newFakeStorage()
	storage.takeErr = errors.New("db is down")
	w := New(fakeRetracer{}, storage, Options{})
	if _, err := w.processNext(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRun(t *testing.T) {
	storage := newFakeStorage(testJob(1), testJob(2), testJob(3))
	w := New(fakeRetracer{}, storage, Options{Workers: 2, JobTimeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	if err := w.Run(ctx, &wg); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for storage.done() < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	wg.Wait()

	if storage.done() != 3 {
		t.Fatalf("expected 3 processed jobs, got %v", storage.done())
	}
	if storage.reset != 1 {
		t.Errorf("processing jobs must be reset once on start, got %v", storage.reset)
	}
}
