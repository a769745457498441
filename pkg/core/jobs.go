package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"strconv"
	"time"
)

type JobStatus string

const (
	PendingJobStatus    JobStatus = "pending"
	ProcessingJobStatus JobStatus = "processing"
	DoneJobStatus       JobStatus = "done"
	FailedJobStatus     JobStatus = "failed"
)

// Job is a replay request and, once processed, its report or error.
type Job struct {
	ID        JobID
	Location  TxLocation
	Status    JobStatus
	Error     string
	Report    json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

type JobPrintable struct {
	ID        string          `json:"id"`
	Status    string          `json:"status"`
	Account   string          `json:"account"`
	Lt        string          `json:"lt"`
	Hash      string          `json:"hash"`
	Error     string          `json:"error,omitempty"`
	Report    json.RawMessage `json:"report,omitempty"`
	CreatedAt int64           `json:"created_at"`
	UpdatedAt int64           `json:"updated_at"`
}

func ConvertJobToPrintable(job Job) JobPrintable {
	res := JobPrintable{
		ID:        job.ID.String(),
		Status:    string(job.Status),
		Account:   job.Location.Account.ToRaw(),
		Lt:        strconv.FormatUint(job.Location.Lt, 10),
		Hash:      job.Location.Hash.Hex(),
		Error:     job.Error,
		CreatedAt: job.CreatedAt.Unix(),
		UpdatedAt: job.UpdatedAt.Unix(),
	}
	if len(job.Report) > 0 {
		res.Report = job.Report
	}
	return res
}

type JobID = uuid.UUID

func ParseJobID(id string) (JobID, error) {
	if len(id) == 0 {
		return JobID{}, errors.New("invalid id length")
	}
	res, err := uuid.Parse(id)
	if err != nil {
		return JobID{}, err
	}
	if res.Version() != 7 {
		return JobID{}, fmt.Errorf("invalid job id")
	}
	return res, nil
}

func NewJobID() JobID {
	id, err := uuid.NewV7()
	if err != nil {
		panic(err)
	}
	return id
}

func NewJob(location TxLocation) Job {
	now := time.Now()
	return Job{
		ID:        NewJobID(),
		Location:  location,
		Status:    PendingJobStatus,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
