package notifier

import (
	"context"
	"github.com/txsociety/tx-retracer/pkg/core"
)

type sender interface {
	Send(ctx context.Context, job core.JobPrintable) error
}

type storage interface {
	GetJobNotifications(ctx context.Context, limit int) ([]core.Job, error)
	DeleteJobNotification(ctx context.Context, id core.JobID) error
	DeleteOldNotifications(ctx context.Context) error
}
