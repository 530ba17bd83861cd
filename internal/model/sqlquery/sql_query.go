package sqlquery

import "time"

const (
	CreateRunsTable = `CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		startedAt INTEGER NOT NULL,
		finishedAt INTEGER NOT NULL,
		success INTEGER NOT NULL,
		message TEXT NOT NULL DEFAULT ''
	)`
	NewRun                   = "INSERT INTO runs (startedAt, finishedAt, success, message) values (?, ?, ?, ?) RETURNING id"
	ListRuns                 = "SELECT id, startedAt, finishedAt, success, message FROM runs ORDER BY id DESC LIMIT ?"
	LastRun                  = "SELECT id, startedAt, finishedAt, success, message FROM runs ORDER BY id DESC LIMIT 1"
	PruneRuns                = "DELETE FROM runs WHERE id NOT IN (SELECT id FROM runs ORDER BY id DESC LIMIT ?)"
	DatabaseOperationTimeout = time.Second * 5
	MaxKeptRuns              = 500
)
