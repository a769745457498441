package worker

import (
	"context"
	"github.com/txsociety/tx-retracer/pkg/core"
	"github.com/txsociety/tx-retracer/pkg/replay"
	"time"
)

type retracer interface {
	Retrace(ctx context.Context, location core.TxLocation) (replay.Report, error)
}

type storage interface {
	TakePendingJob(ctx context.Context) (*core.Job, error)
	SaveReport(ctx context.Context, id core.JobID, report any) error
	FailJob(ctx context.Context, id core.JobID, jobErr error) error
	ResetProcessingJobs(ctx context.Context) (int64, error)
	DeleteOldJobs(ctx context.Context, ttl time.Duration) error
}
