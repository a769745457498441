package api

import (
	"context"
	"github.com/txsociety/tx-retracer/pkg/core"
)

type storage interface {
	CreateJob(ctx context.Context, job core.Job) error
	GetJob(ctx context.Context, id core.JobID) (core.Job, error)
	GetJobs(ctx context.Context, after core.JobID, limit int64) ([]core.Job, error)
}
