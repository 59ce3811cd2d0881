package so

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/lpharvest/db"
	"github.com/teranos/lpharvest/errors"
)

const (
	insertRunSQL = `INSERT INTO harvest_runs (run_id, query, status, fields, record_count, started_at, finished_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	insertRowSQL = `INSERT INTO harvest_rows (run_id, position, data) VALUES (?, ?, ?)`
)

func writeSQLite(ctx context.Context, path string, header []string, rows []Row, run RunInfo, log *zap.SugaredLogger) error {
	conn, err := db.OpenWithMigrations(path, log)
	if err != nil {
		return err
	}
	defer conn.Close()

	return insertRun(ctx, conn, header, rows, run)
}

// insertRun stores one run and its rows in a single transaction
func insertRun(ctx context.Context, conn *sql.DB, header []string, rows []Row, run RunInfo) error {
	if run.ID == "" {
		return errors.NewInvalidRequestError("sqlite output needs a run id")
	}
	fields, err := json.Marshal(header)
	if err != nil {
		return errors.Wrap(err, "encode fields")
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return wrapDB(err, "begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, insertRunSQL,
		run.ID, run.Query, run.Status, string(fields), len(rows),
		nullTime(run.Started), nullTime(run.Finished),
	); err != nil {
		return wrapDB(err, "insert run")
	}

	stmt, err := tx.PrepareContext(ctx, insertRowSQL)
	if err != nil {
		return wrapDB(err, "prepare row insert")
	}
	defer stmt.Close()

	for i, row := range rows {
		data, err := json.Marshal(object{header: header, row: row})
		if err != nil {
			return errors.Wrapf(err, "encode row %d", i)
		}
		if _, err := stmt.ExecContext(ctx, run.ID, i, string(data)); err != nil {
			return wrapDB(err, "insert row")
		}
	}

	return wrapDB(tx.Commit(), "commit")
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t.UTC(), Valid: !t.IsZero()}
}

func wrapDB(err error, what string) error {
	return db.Classify(err, what)
}
