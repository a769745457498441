package notifier

import (
	"context"
	"fmt"
	"github.com/txsociety/tx-retracer/pkg/core"
	"log/slog"
	"sync"
	"time"
)

const notificationsBatch = 10

type Notifier struct {
	sender  sender
	storage storage
}

func New(sender sender, storage storage) *Notifier {
	return &Notifier{
		sender:  sender,
		storage: storage,
	}
}

func (n *Notifier) Run(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go n.runNotifyExpirationProcessor(ctx, wg)
	if n.sender != nil {
		wg.Add(1)
		go n.runNotifier(ctx, wg)
	}
}

func (n *Notifier) runNotifier(ctx context.Context, wg *sync.WaitGroup) {
	slog.Info("notifier started")
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			slog.Info("notifier stopped")
			return
		default:
			jobs, err := n.storage.GetJobNotifications(ctx, notificationsBatch)
			if err != nil {
				slog.Error("get notifications", "error", err.Error())
				time.Sleep(3 * time.Second)
				continue
			}
			err = n.notify(ctx, jobs)
			if err != nil {
				slog.Error("notify failed", "error", err.Error())
				time.Sleep(3 * time.Second)
				continue
			}
			if len(jobs) < notificationsBatch {
				time.Sleep(2 * time.Second)
			}
		}
	}
}

func (n *Notifier) notify(ctx context.Context, jobs []core.Job) error {
	for _, job := range jobs {
		err := n.sender.Send(ctx, core.ConvertJobToPrintable(job))
		if err != nil {
			return fmt.Errorf("send job to sender err: %w", err)
		}
		err = n.storage.DeleteJobNotification(ctx, job.ID)
		if err != nil {
			return fmt.Errorf("delete notification err: %w", err)
		}
	}
	return nil
}

func (n *Notifier) runNotifyExpirationProcessor(ctx context.Context, wg *sync.WaitGroup) {
	slog.Info("notify expiration processor started")
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			slog.Info("notify expiration processor stopped")
			return
		case <-time.After(30 * time.Second):
			err := n.storage.DeleteOldNotifications(ctx)
			if err != nil {
				slog.Error("delete old notifications", "error", err.Error())
			}
		}
	}
}
