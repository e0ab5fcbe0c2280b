package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/pavelanni/assessor/internal/model"
)

const answerColumns = `id, attempt_id, question_id, selected_option_id, text_answer, is_correct, score_obtained, ai_feedback`

func scanAnswer(r rowScanner) (model.Answer, error) {
	var a model.Answer
	var fb sql.NullString
	if err := r.Scan(&a.ID, &a.AttemptID, &a.QuestionID, &a.SelectedOptionID, &a.TextAnswer,
		&a.IsCorrect, &a.ScoreObtained, &fb); err != nil {
		return a, err
	}
	var err error
	a.AIFeedback, err = decodeFeedback(fb)
	return a, err
}

func encodeFeedback(fb *model.AIFeedback) (*string, error) {
	if fb == nil {
		return nil, nil
	}
	b, err := json.Marshal(fb)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}

func decodeFeedback(s sql.NullString) (*model.AIFeedback, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var fb model.AIFeedback
	if err := json.Unmarshal([]byte(s.String), &fb); err != nil {
		return nil, err
	}
	return &fb, nil
}

// UpsertAnswer records a student's answer for one question of an attempt.
// A second save for the same question overwrites both the option and the text.
func (c conn) UpsertAnswer(ctx context.Context, attemptID int64, in model.AnswerInput) (model.Answer, error) {
	a, err := scanAnswer(c.queryRow(ctx,
		`INSERT INTO attempt_answers (attempt_id, question_id, selected_option_id, text_answer)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (attempt_id, question_id) DO UPDATE SET
			selected_option_id = excluded.selected_option_id,
			text_answer = excluded.text_answer
		 RETURNING `+answerColumns,
		attemptID, in.QuestionID, in.SelectedOptionID, in.TextAnswer,
	))
	if err != nil {
		return a, persistErr("upsert answer", err)
	}
	return a, nil
}

// ListAnswers returns the attempt's stored answers keyed by question id.
func (c conn) ListAnswers(ctx context.Context, attemptID int64) (map[int64]model.Answer, error) {
	rows, err := c.query(ctx, `SELECT `+answerColumns+` FROM attempt_answers WHERE attempt_id = ?`, attemptID)
	if err != nil {
		return nil, persistErr("list answers", err)
	}
	defer rows.Close()
	answers := make(map[int64]model.Answer)
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, persistErr("scan answer", err)
		}
		answers[a.QuestionID] = a
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("list answers", err)
	}
	return answers, nil
}

// CountAnswers returns how many answer rows the attempt has.
func (c conn) CountAnswers(ctx context.Context, attemptID int64) (int, error) {
	var n int
	err := c.queryRow(ctx, `SELECT COUNT(*) FROM attempt_answers WHERE attempt_id = ?`, attemptID).Scan(&n)
	if err != nil {
		return 0, persistErr("count answers", err)
	}
	return n, nil
}

// GradeAnswer stores the grading outcome of an existing answer.
func (c conn) GradeAnswer(ctx context.Context, answerID int64, isCorrect bool, score float64, fb *model.AIFeedback) error {
	enc, err := encodeFeedback(fb)
	if err != nil {
		return &model.PersistenceError{Op: "encode feedback", Err: err}
	}
	_, err = c.exec(ctx,
		`UPDATE attempt_answers SET is_correct = ?, score_obtained = ?, ai_feedback = ? WHERE id = ?`,
		isCorrect, score, enc, answerID,
	)
	if err != nil {
		return persistErr("grade answer", err)
	}
	return nil
}

// InsertUnanswered stores a zero-score placeholder for a question the student skipped.
func (c conn) InsertUnanswered(ctx context.Context, attemptID, questionID int64) error {
	_, err := c.exec(ctx,
		`INSERT INTO attempt_answers (attempt_id, question_id, is_correct, score_obtained)
		 VALUES (?, ?, ?, ?)`,
		attemptID, questionID, false, 0.0,
	)
	if err != nil {
		return persistErr("insert unanswered", err)
	}
	return nil
}

// ListAnswerDetails returns every answer of the attempt joined with its question,
// in section order then question order. Objective questions carry their full option list.
func (c conn) ListAnswerDetails(ctx context.Context, attemptID int64) ([]model.AnswerDetail, error) {
	rows, err := c.query(ctx,
		`SELECT aa.id, aa.question_id, aa.selected_option_id, o.option_text, aa.text_answer,
			aa.is_correct, aa.score_obtained, aa.ai_feedback,
			q.question_text, q.question_type, q.points, q.image_url, q.explanation
		 FROM attempt_answers aa
		 JOIN exam_questions q ON q.id = aa.question_id
		 JOIN exam_sections s ON s.id = q.section_id
		 LEFT JOIN question_options o ON o.id = aa.selected_option_id AND o.question_id = aa.question_id
		 WHERE aa.attempt_id = ?
		 ORDER BY s.order_index, q.order_index, q.id`, attemptID)
	if err != nil {
		return nil, persistErr("list answer details", err)
	}
	defer rows.Close()

	var (
		details []model.AnswerDetail
		examID  int64
	)
	for rows.Next() {
		var d model.AnswerDetail
		var qtype string
		var fb sql.NullString
		if err := rows.Scan(&d.AnswerID, &d.QuestionID, &d.SelectedOptionID, &d.SelectedOptionText,
			&d.TextAnswer, &d.IsCorrect, &d.ScoreObtained, &fb,
			&d.QuestionText, &qtype, &d.Points, &d.ImageURL, &d.Explanation); err != nil {
			return nil, persistErr("scan answer detail", err)
		}
		d.QuestionType = model.QuestionType(qtype)
		if d.AIFeedback, err = decodeFeedback(fb); err != nil {
			return nil, persistErr("decode feedback", err)
		}
		details = append(details, d)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("list answer details", err)
	}
	rows.Close()
	if len(details) == 0 {
		return details, nil
	}

	err = c.queryRow(ctx, `SELECT exam_id FROM exam_attempts WHERE id = ?`, attemptID).Scan(&examID)
	if err != nil {
		return nil, persistErr("get attempt exam", err)
	}
	options, err := c.listOptions(ctx, examID)
	if err != nil {
		return nil, err
	}
	for i := range details {
		if details[i].QuestionType.Objective() {
			details[i].Options = options[details[i].QuestionID]
		}
	}
	return details, nil
}
