package store

import (
	"context"
	"database/sql"
	"time"
)

// IsFileImported reports whether a file with the given SHA-256 was already imported.
func (c conn) IsFileImported(ctx context.Context, sha string) (bool, error) {
	var one int
	err := c.queryRow(ctx, `SELECT 1 FROM imported_files WHERE sha256 = ?`, sha).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, persistErr("check imported file", err)
	}
	return true, nil
}

// RecordImport remembers that a file produced the given exam.
func (c conn) RecordImport(ctx context.Context, sha, filename string, examID int64, at time.Time) error {
	_, err := c.exec(ctx,
		`INSERT INTO imported_files (sha256, filename, exam_id, imported_at) VALUES (?, ?, ?, ?)`,
		sha, filename, examID, at,
	)
	if err != nil {
		return persistErr("record import", err)
	}
	return nil
}
