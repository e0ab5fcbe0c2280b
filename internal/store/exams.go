package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/pavelanni/assessor/internal/model"
)

const examColumns = `id, teacher_id, title, subject, description, duration_minutes, is_active, course_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExamSummary(r rowScanner) (model.ExamSummary, error) {
	var e model.ExamSummary
	err := r.Scan(&e.ID, &e.TeacherID, &e.Title, &e.Subject, &e.Description,
		&e.DurationMinutes, &e.IsActive, &e.CourseID, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

// InsertExam stores the exam row of a draft and returns its summary.
func (c conn) InsertExam(ctx context.Context, teacherID int64, d model.ExamDraft, now time.Time) (model.ExamSummary, error) {
	active := true
	if d.IsActive != nil {
		active = *d.IsActive
	}
	var id int64
	err := c.queryRow(ctx,
		`INSERT INTO exams (teacher_id, title, subject, description, duration_minutes, is_active, course_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		teacherID, d.Title, d.Subject, d.Description, d.DurationMinutes, active, d.CourseID, now, now,
	).Scan(&id)
	if err != nil {
		return model.ExamSummary{}, persistErr("insert exam", err)
	}
	return c.GetExamSummary(ctx, id)
}

// InsertSection stores one section.
func (c conn) InsertSection(ctx context.Context, s model.Section) (int64, error) {
	var id int64
	err := c.queryRow(ctx,
		`INSERT INTO exam_sections (exam_id, title, description, order_index)
		 VALUES (?, ?, ?, ?) RETURNING id`,
		s.ExamID, s.Title, s.Description, s.OrderIndex,
	).Scan(&id)
	if err != nil {
		return 0, persistErr("insert section", err)
	}
	return id, nil
}

// InsertQuestion stores one question.
func (c conn) InsertQuestion(ctx context.Context, q model.Question) (int64, error) {
	var id int64
	err := c.queryRow(ctx,
		`INSERT INTO exam_questions (section_id, question_text, question_type, image_url, points, explanation, correct_text_answer, order_index)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		q.SectionID, q.Text, string(q.Type), q.ImageURL, q.Points, q.Explanation, q.CorrectTextAnswer, q.OrderIndex,
	).Scan(&id)
	if err != nil {
		return 0, persistErr("insert question", err)
	}
	return id, nil
}

// InsertOption stores one option.
func (c conn) InsertOption(ctx context.Context, o model.Option) (int64, error) {
	var id int64
	err := c.queryRow(ctx,
		`INSERT INTO question_options (question_id, option_text, is_correct, order_index)
		 VALUES (?, ?, ?, ?) RETURNING id`,
		o.QuestionID, o.Text, o.IsCorrect, o.OrderIndex,
	).Scan(&id)
	if err != nil {
		return 0, persistErr("insert option", err)
	}
	return id, nil
}

// GetExamSummary returns an exam without its structure.
func (c conn) GetExamSummary(ctx context.Context, id int64) (model.ExamSummary, error) {
	e, err := scanExamSummary(c.queryRow(ctx, `SELECT `+examColumns+` FROM exams WHERE id = ?`, id))
	if err != nil {
		return e, persistErr("get exam", err)
	}
	return e, nil
}

// ListExams returns exam summaries newest first, optionally filtered by course.
func (c conn) ListExams(ctx context.Context, courseID *int64) ([]model.ExamSummary, error) {
	query := `SELECT ` + examColumns + ` FROM exams WHERE 1=1`
	var args []any
	if courseID != nil {
		query += ` AND course_id = ?`
		args = append(args, *courseID)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := c.query(ctx, query, args...)
	if err != nil {
		return nil, persistErr("list exams", err)
	}
	defer rows.Close()
	var exams []model.ExamSummary
	for rows.Next() {
		e, err := scanExamSummary(rows)
		if err != nil {
			return nil, persistErr("scan exam", err)
		}
		exams = append(exams, e)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("list exams", err)
	}
	return exams, nil
}

// GetExam returns an exam with its sections, questions and options, all in order.
func (c conn) GetExam(ctx context.Context, id int64) (*model.Exam, error) {
	summary, err := c.GetExamSummary(ctx, id)
	if err != nil {
		return nil, err
	}
	exam := &model.Exam{
		ID:              summary.ID,
		TeacherID:       summary.TeacherID,
		Title:           summary.Title,
		Subject:         summary.Subject,
		Description:     summary.Description,
		DurationMinutes: summary.DurationMinutes,
		IsActive:        summary.IsActive,
		CourseID:        summary.CourseID,
		CreatedAt:       summary.CreatedAt,
		UpdatedAt:       summary.UpdatedAt,
	}

	sections, err := c.listSections(ctx, id)
	if err != nil {
		return nil, err
	}
	questions, err := c.listQuestions(ctx, id)
	if err != nil {
		return nil, err
	}
	options, err := c.listOptions(ctx, id)
	if err != nil {
		return nil, err
	}

	for i := range questions {
		questions[i].Options = options[questions[i].ID]
		if questions[i].Options == nil {
			questions[i].Options = []model.Option{}
		}
	}
	bySection := make(map[int64][]model.Question)
	for _, q := range questions {
		bySection[q.SectionID] = append(bySection[q.SectionID], q)
	}
	for i := range sections {
		sections[i].Questions = bySection[sections[i].ID]
		if sections[i].Questions == nil {
			sections[i].Questions = []model.Question{}
		}
	}
	exam.Sections = sections
	return exam, nil
}

func (c conn) listSections(ctx context.Context, examID int64) ([]model.Section, error) {
	rows, err := c.query(ctx,
		`SELECT id, exam_id, title, description, order_index
		 FROM exam_sections WHERE exam_id = ? ORDER BY order_index, id`, examID)
	if err != nil {
		return nil, persistErr("list sections", err)
	}
	defer rows.Close()
	var sections []model.Section
	for rows.Next() {
		var s model.Section
		if err := rows.Scan(&s.ID, &s.ExamID, &s.Title, &s.Description, &s.OrderIndex); err != nil {
			return nil, persistErr("scan section", err)
		}
		sections = append(sections, s)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("list sections", err)
	}
	return sections, nil
}

const questionColumns = `q.id, q.section_id, q.question_text, q.question_type, q.image_url, q.points, q.explanation, q.correct_text_answer, q.order_index`

func scanQuestion(r rowScanner) (model.Question, error) {
	var q model.Question
	var qtype string
	err := r.Scan(&q.ID, &q.SectionID, &q.Text, &qtype, &q.ImageURL, &q.Points,
		&q.Explanation, &q.CorrectTextAnswer, &q.OrderIndex)
	q.Type = model.QuestionType(qtype)
	return q, err
}

// listQuestions returns the exam's questions in section order, then question order.
func (c conn) listQuestions(ctx context.Context, examID int64) ([]model.Question, error) {
	rows, err := c.query(ctx,
		`SELECT `+questionColumns+`
		 FROM exam_questions q
		 JOIN exam_sections s ON s.id = q.section_id
		 WHERE s.exam_id = ?
		 ORDER BY s.order_index, q.order_index, q.id`, examID)
	if err != nil {
		return nil, persistErr("list questions", err)
	}
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, persistErr("scan question", err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("list questions", err)
	}
	return questions, nil
}

// listOptions returns the exam's options grouped by question id, in order.
func (c conn) listOptions(ctx context.Context, examID int64) (map[int64][]model.Option, error) {
	rows, err := c.query(ctx,
		`SELECT o.id, o.question_id, o.option_text, o.is_correct, o.order_index
		 FROM question_options o
		 JOIN exam_questions q ON q.id = o.question_id
		 JOIN exam_sections s ON s.id = q.section_id
		 WHERE s.exam_id = ?
		 ORDER BY o.question_id, o.order_index, o.id`, examID)
	if err != nil {
		return nil, persistErr("list options", err)
	}
	defer rows.Close()
	options := make(map[int64][]model.Option)
	for rows.Next() {
		var o model.Option
		if err := rows.Scan(&o.ID, &o.QuestionID, &o.Text, &o.IsCorrect, &o.OrderIndex); err != nil {
			return nil, persistErr("scan option", err)
		}
		options[o.QuestionID] = append(options[o.QuestionID], o)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("list options", err)
	}
	return options, nil
}

// QuestionInExam reports whether the question belongs to the exam.
func (c conn) QuestionInExam(ctx context.Context, examID, questionID int64) (bool, error) {
	var one int
	err := c.queryRow(ctx,
		`SELECT 1 FROM exam_questions q
		 JOIN exam_sections s ON s.id = q.section_id
		 WHERE s.exam_id = ? AND q.id = ?`, examID, questionID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, persistErr("check question", err)
	}
	return true, nil
}
