package store

import (
	"context"
	"time"

	"github.com/pavelanni/assessor/internal/model"
)

const attemptColumns = `id, user_id, exam_id, started_at, completed_at, total_score`

func scanAttempt(r rowScanner) (model.Attempt, error) {
	var a model.Attempt
	err := r.Scan(&a.ID, &a.StudentID, &a.ExamID, &a.StartedAt, &a.CompletedAt, &a.TotalScore)
	return a, err
}

// CreateAttempt starts a new attempt.
func (c conn) CreateAttempt(ctx context.Context, studentID, examID int64, startedAt time.Time) (model.Attempt, error) {
	var id int64
	err := c.queryRow(ctx,
		`INSERT INTO exam_attempts (user_id, exam_id, started_at) VALUES (?, ?, ?) RETURNING id`,
		studentID, examID, startedAt,
	).Scan(&id)
	if err != nil {
		return model.Attempt{}, persistErr("insert attempt", err)
	}
	return c.GetAttempt(ctx, id)
}

// GetAttempt returns an attempt by id.
func (c conn) GetAttempt(ctx context.Context, id int64) (model.Attempt, error) {
	a, err := scanAttempt(c.queryRow(ctx, `SELECT `+attemptColumns+` FROM exam_attempts WHERE id = ?`, id))
	if err != nil {
		return a, persistErr("get attempt", err)
	}
	return a, nil
}

// LockAttempt reads an attempt and, on Postgres, holds its row lock until the
// transaction ends. Only meaningful on a Tx.
func (t *Tx) LockAttempt(ctx context.Context, id int64) (model.Attempt, error) {
	a, err := scanAttempt(t.queryRow(ctx,
		`SELECT `+attemptColumns+` FROM exam_attempts WHERE id = ?`+t.forUpdate(), id))
	if err != nil {
		return a, persistErr("lock attempt", err)
	}
	return a, nil
}

// CompleteAttempt marks an in-progress attempt completed with its total score.
// It reports false when the attempt was already completed.
func (c conn) CompleteAttempt(ctx context.Context, id int64, completedAt time.Time, totalScore float64) (bool, error) {
	res, err := c.exec(ctx,
		`UPDATE exam_attempts SET completed_at = ?, total_score = ?
		 WHERE id = ? AND completed_at IS NULL`,
		completedAt, totalScore, id,
	)
	if err != nil {
		return false, persistErr("complete attempt", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, persistErr("complete attempt", err)
	}
	return n == 1, nil
}

const attemptSummarySelect = `SELECT a.id, a.user_id, a.exam_id, e.title, e.duration_minutes, a.started_at, a.completed_at, a.total_score
	FROM exam_attempts a
	JOIN exams e ON e.id = a.exam_id`

func scanAttemptSummary(r rowScanner) (model.AttemptSummary, error) {
	var s model.AttemptSummary
	err := r.Scan(&s.ID, &s.StudentID, &s.ExamID, &s.ExamTitle, &s.DurationMinutes,
		&s.StartedAt, &s.CompletedAt, &s.TotalScore)
	return s, err
}

// GetAttemptSummary returns an attempt joined with its exam title and duration.
func (c conn) GetAttemptSummary(ctx context.Context, id int64) (model.AttemptSummary, error) {
	s, err := scanAttemptSummary(c.queryRow(ctx, attemptSummarySelect+` WHERE a.id = ?`, id))
	if err != nil {
		return s, persistErr("get attempt summary", err)
	}
	return s, nil
}

// ListStudentAttempts returns a student's attempts newest first, optionally for one exam.
func (c conn) ListStudentAttempts(ctx context.Context, studentID int64, examID *int64) ([]model.AttemptSummary, error) {
	query := attemptSummarySelect + ` WHERE a.user_id = ?`
	args := []any{studentID}
	if examID != nil {
		query += ` AND a.exam_id = ?`
		args = append(args, *examID)
	}
	query += ` ORDER BY a.started_at DESC, a.id DESC`
	return c.listAttemptSummaries(ctx, query, args...)
}

// ListExamAttempts returns every attempt of an exam, completed ones first by
// completion time, then in-progress ones newest first.
func (c conn) ListExamAttempts(ctx context.Context, examID int64) ([]model.AttemptSummary, error) {
	return c.listAttemptSummaries(ctx,
		attemptSummarySelect+` WHERE a.exam_id = ?
		ORDER BY a.completed_at DESC NULLS LAST, a.started_at DESC, a.id DESC`, examID)
}

func (c conn) listAttemptSummaries(ctx context.Context, query string, args ...any) ([]model.AttemptSummary, error) {
	rows, err := c.query(ctx, query, args...)
	if err != nil {
		return nil, persistErr("list attempts", err)
	}
	defer rows.Close()
	var out []model.AttemptSummary
	for rows.Next() {
		s, err := scanAttemptSummary(rows)
		if err != nil {
			return nil, persistErr("scan attempt", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("list attempts", err)
	}
	return out, nil
}
