package model

import (
	"context"
	"errors"
	"time"
)

var ErrorNotFound = errors.New("not found")

type RunId int64

// RunRecord is one invocation of the scheduled send.
type RunRecord struct {
	Id         RunId     `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Success    bool      `json:"success"`
	Message    string    `json:"message"`
}

type HistoryStorage interface {
	RecordRun(ctx context.Context, run RunRecord) (RunId, error)
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
	LastRun(ctx context.Context) (RunRecord, error)
	Close() error
}
