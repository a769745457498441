package db

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"github.com/jackc/pgx/v5"
	"github.com/tonkeeper/tongo/ton"
	"github.com/txsociety/tx-retracer/pkg/core"
	"log/slog"
	"time"
)

const jobColumns = `id, status, account, lt, hash, error, report, created_at, updated_at`

// jobHistoryColumns matches jobColumns with the report left out.
const jobHistoryColumns = `id, status, account, lt, hash, error, NULL::jsonb, created_at, updated_at`

func (c *Connection) CreateJob(ctx context.Context, job core.Job) error {
	_, err := c.postgres.Exec(ctx, `
		INSERT INTO retracer.jobs
		(id, status, account, lt, hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		job.ID,
		job.Status,
		job.Location.Account.ToRaw(),
		int64(job.Location.Lt),
		job.Location.Hash.Hex(),
		job.CreatedAt,
		job.UpdatedAt,
	)
	return err
}

func scanJob(row pgx.Row) (core.Job, error) {
	var (
		j             core.Job
		account, hash string
		lt            int64
		report        []byte
	)
	err := row.Scan(
		&j.ID,
		&j.Status,
		&account,
		&lt,
		&hash,
		&j.Error,
		&report,
		&j.CreatedAt,
		&j.UpdatedAt,
	)
	if err != nil {
		return core.Job{}, err
	}
	j.Location.Account, err = ton.ParseAccountID(account)
	if err != nil {
		return core.Job{}, err
	}
	j.Location.Hash, err = core.ParseHash(hash)
	if err != nil {
		return core.Job{}, err
	}
	j.Location.Lt = uint64(lt)
	if len(report) > 0 {
		j.Report = report
	}
	return j, nil
}

func (c *Connection) GetJob(ctx context.Context, id core.JobID) (core.Job, error) {
	job, err := scanJob(c.postgres.QueryRow(ctx, `
		SELECT `+jobColumns+`
		FROM retracer.jobs WHERE id = $1`, id))
	if err != nil && errors.Is(err, pgx.ErrNoRows) {
		return core.Job{}, core.ErrNotFound
	} else if err != nil {
		return core.Job{}, err
	}
	return job, nil
}

// TakePendingJob marks the oldest pending job as processing and returns it.
// It returns nil if there is nothing to process.
func (c *Connection) TakePendingJob(ctx context.Context) (*core.Job, error) {
	job, err := scanJob(c.postgres.QueryRow(ctx, `
		UPDATE retracer.jobs
		SET status = $1, updated_at = $2
		WHERE id = (
			SELECT id FROM retracer.jobs
			WHERE status = $3
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED)
		RETURNING `+jobColumns,
		core.ProcessingJobStatus, time.Now(), core.PendingJobStatus))
	if err != nil && errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return &job, nil
}

// ResetProcessingJobs returns jobs interrupted by a restart to the queue.
func (c *Connection) ResetProcessingJobs(ctx context.Context) (int64, error) {
	res, err := c.postgres.Exec(ctx, `
		UPDATE retracer.jobs
		SET status = $1, updated_at = $2
		WHERE status = $3`,
		core.PendingJobStatus, time.Now(), core.ProcessingJobStatus)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}

func (c *Connection) SaveReport(ctx context.Context, id core.JobID, report any) error {
	reportBytes, err := marshalJsonForDb(report)
	if err != nil {
		return err
	}
	return c.finishJob(ctx, id, core.DoneJobStatus, "", reportBytes)
}

func (c *Connection) FailJob(ctx context.Context, id core.JobID, jobErr error) error {
	return c.finishJob(ctx, id, core.FailedJobStatus, jobErr.Error(), nil)
}

func (c *Connection) finishJob(ctx context.Context, id core.JobID, status core.JobStatus, errText string, report []byte) error {
	tx, err := c.postgres.Begin(ctx)
	if err != nil {
		return err
	}
	defer rollbackDbTx(ctx, tx)
	now := time.Now()
	res, err := tx.Exec(ctx, `
		UPDATE retracer.jobs
		SET status = $1, error = $2, report = $3, updated_at = $4
		WHERE id = $5`,
		status, errText, report, now, id)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO retracer.job_notifications (id, created_at)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET created_at = $2`, id, now)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (c *Connection) GetJobNotifications(ctx context.Context, limit int) ([]core.Job, error) {
	rows, err := c.postgres.Query(ctx, `
		SELECT j.id, j.status, j.account, j.lt, j.hash, j.error, j.report, j.created_at, j.updated_at
		FROM retracer.job_notifications n
		JOIN retracer.jobs j ON j.id = n.id
		ORDER BY n.created_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []core.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}

func (c *Connection) DeleteJobNotification(ctx context.Context, id core.JobID) error {
	_, err := c.postgres.Exec(ctx, `
		DELETE FROM retracer.job_notifications
		WHERE id = $1`, id)
	return err
}

func (c *Connection) DeleteOldNotifications(ctx context.Context) error {
	_, err := c.postgres.Exec(ctx, `
		DELETE FROM retracer.job_notifications
		WHERE created_at < $1`, time.Now().Add(-time.Hour*24*5))
	return err
}

// DeleteOldJobs removes finished jobs not updated for longer than ttl.
func (c *Connection) DeleteOldJobs(ctx context.Context, ttl time.Duration) error {
	_, err := c.postgres.Exec(ctx, `
		DELETE FROM retracer.jobs
		WHERE updated_at < $1 AND status IN ($2, $3)`,
		time.Now().Add(-ttl), core.DoneJobStatus, core.FailedJobStatus)
	return err
}

func rollbackDbTx(ctx context.Context, tx pgx.Tx) {
	err := tx.Rollback(ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		slog.Error("rolling back db transaction", "error", err.Error())
	}
}

func marshalJsonForDb(x any) ([]byte, error) {
	b, err := json.Marshal(x)
	if err != nil {
		return nil, err
	}
	b = bytes.ReplaceAll(b, []byte(`\u0000`), nil) // postgres doesn't support \u0000 in jsonb
	return b, nil
}

// GetJobs returns jobs created after the given one, oldest first, without reports.
// Job ids are time ordered.
func (c *Connection) GetJobs(ctx context.Context, after core.JobID, limit int64) ([]core.Job, error) {
	rows, err := c.postgres.Query(ctx, `
		SELECT `+jobHistoryColumns+`
		FROM retracer.jobs
		WHERE id > $1
		ORDER BY id
		LIMIT $2`, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []core.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}
