package model

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"homework-agent/internal/model/sqlquery"
	_ "modernc.org/sqlite"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type sqlHistoryStorage struct {
	database *sql.DB
	rwLock   *sync.RWMutex
}

// NewSQLHistoryStorage opens (creating if needed) the sqlite run history at path.
func NewSQLHistoryStorage(ctx context.Context, path string) (*sqlHistoryStorage, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed creating history directory: %w", err)
	}
	database, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed opening database: %w", err)
	}
	database.SetMaxOpenConns(1)

	if err = database.PingContext(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed checking database availibility: %w", err)
	}

	storage := sqlHistoryStorage{database, &sync.RWMutex{}}
	if err = storage.init(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed initializing storage: %w", err)
	}
	return &storage, nil
}

func (st *sqlHistoryStorage) RecordRun(ctx context.Context, run RunRecord) (RunId, error) {
	var id RunId
	transactionFunc := func(ctx context.Context, tx *sql.Tx) error {
		err := tx.QueryRowContext(
			ctx,
			sqlquery.NewRun,
			run.StartedAt.UnixMilli(),
			run.FinishedAt.UnixMilli(),
			run.Success,
			run.Message,
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("failed scanning run id: %w", err)
		}
		if _, err = tx.ExecContext(ctx, sqlquery.PruneRuns, sqlquery.MaxKeptRuns); err != nil {
			return fmt.Errorf("failed pruning old runs: %w", err)
		}
		return nil
	}

	if err := st.transact(ctx, transactionFunc); err != nil {
		return 0, fmt.Errorf("failed recording run: %w", err)
	}
	return id, nil
}

func (st *sqlHistoryStorage) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	st.rwLock.RLock()
	defer st.rwLock.RUnlock()

	rows, err := st.database.QueryContext(ctx, sqlquery.ListRuns, limit)
	if err != nil {
		return nil, fmt.Errorf("failed listing runs: %w", err)
	}
	defer rows.Close()

	runs := make([]RunRecord, 0)
	for rows.Next() {
		run := RunRecord{}
		if err := scanRun(rows, &run); err != nil {
			return nil, fmt.Errorf("failed scanning run: %w", err)
		}
		runs = append(runs, run)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating runs: %w", err)
	}
	return runs, nil
}

func (st *sqlHistoryStorage) LastRun(ctx context.Context) (RunRecord, error) {
	st.rwLock.RLock()
	defer st.rwLock.RUnlock()

	run := RunRecord{}
	err := scanRun(st.database.QueryRowContext(ctx, sqlquery.LastRun), &run)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RunRecord{}, ErrorNotFound
		}
		return RunRecord{}, fmt.Errorf("failed getting last run: %w", err)
	}
	return run, nil
}

func (st *sqlHistoryStorage) Close() error {
	return st.database.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner, run *RunRecord) error {
	var startedAt, finishedAt int64
	err := sc.Scan(
		&run.Id,
		&startedAt,
		&finishedAt,
		&run.Success,
		&run.Message,
	)
	if err != nil {
		return err
	}
	run.StartedAt = time.UnixMilli(startedAt)
	run.FinishedAt = time.UnixMilli(finishedAt)
	return nil
}

func (st *sqlHistoryStorage) transact(ctx context.Context, transactionFunc func(context.Context, *sql.Tx) error) error {
	st.rwLock.Lock()
	defer st.rwLock.Unlock()

	tx, err := st.database.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	err = transactionFunc(ctx, tx)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (st *sqlHistoryStorage) init(ctx context.Context) error {
	transactionFunc := func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, sqlquery.CreateRunsTable); err != nil {
			return fmt.Errorf("error creating runs table: %w", err)
		}
		return nil
	}
	return st.transact(ctx, transactionFunc)
}
