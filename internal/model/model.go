package model

import (
	"context"
	"time"
)

// UserRole represents a principal's access level.
type UserRole string

const (
	// UserRoleStudent is a student user role.
	UserRoleStudent UserRole = "student"
	// UserRoleTeacher is a teacher user role.
	UserRoleTeacher UserRole = "teacher"
	// UserRoleAdmin is an admin user role.
	UserRoleAdmin UserRole = "admin"
)

// Principal is the authenticated caller handed to the core by the auth layer.
type Principal struct {
	UserID int64
	Role   UserRole
}

type principalCtxKey struct{}

// ContextWithPrincipal stores the authenticated principal in the request context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey{}, p)
}

// PrincipalFromContext retrieves the authenticated principal from context, or nil.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalCtxKey{}).(*Principal)
	return p
}

// QuestionType is the kind of a question.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "MULTIPLE_CHOICE"
	QuestionTrueFalse      QuestionType = "TRUE_FALSE"
	QuestionShortAnswer    QuestionType = "SHORT_ANSWER"
)

// Valid reports whether t is one of the known question types.
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionMultipleChoice, QuestionTrueFalse, QuestionShortAnswer:
		return true
	}
	return false
}

// Objective reports whether t is graded by option matching.
func (t QuestionType) Objective() bool {
	return t == QuestionMultipleChoice || t == QuestionTrueFalse
}

// Exam is an authored exam with its nested structure.
type Exam struct {
	ID              int64     `json:"id"`
	TeacherID       int64     `json:"teacher_id"`
	Title           string    `json:"title"`
	Subject         *string   `json:"subject,omitempty"`
	Description     *string   `json:"description,omitempty"`
	DurationMinutes *int      `json:"duration_minutes,omitempty"`
	IsActive        bool      `json:"is_active"`
	CourseID        *int64    `json:"course_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	Sections        []Section `json:"sections,omitempty"`
}

// Questions returns every question of the exam in section order, then question order.
func (e *Exam) Questions() []Question {
	var qs []Question
	for _, s := range e.Sections {
		qs = append(qs, s.Questions...)
	}
	return qs
}

// Section is an ordered group of questions within an exam.
type Section struct {
	ID          int64      `json:"id"`
	ExamID      int64      `json:"exam_id"`
	Title       string     `json:"title"`
	Description *string    `json:"description,omitempty"`
	OrderIndex  int        `json:"order_index"`
	Questions   []Question `json:"questions"`
}

// Question is a single exam question.
type Question struct {
	ID                int64        `json:"id"`
	SectionID         int64        `json:"section_id"`
	Text              string       `json:"question_text"`
	Type              QuestionType `json:"question_type"`
	ImageURL          *string      `json:"image_url,omitempty"`
	Points            float64      `json:"points"`
	Explanation       *string      `json:"explanation,omitempty"`
	CorrectTextAnswer *string      `json:"correct_text_answer,omitempty"`
	OrderIndex        int          `json:"order_index"`
	Options           []Option     `json:"options"`
}

// Option returns the option with the given ID, or nil.
func (q *Question) Option(id int64) *Option {
	for i := range q.Options {
		if q.Options[i].ID == id {
			return &q.Options[i]
		}
	}
	return nil
}

// Option is one answer choice of an objective question.
type Option struct {
	ID         int64  `json:"id"`
	QuestionID int64  `json:"question_id"`
	Text       string `json:"option_text"`
	IsCorrect  bool   `json:"is_correct"`
	OrderIndex int    `json:"order_index"`
}

// ExamSummary is an exam without its nested structure.
type ExamSummary struct {
	ID              int64     `json:"id"`
	TeacherID       int64     `json:"teacher_id"`
	Title           string    `json:"title"`
	Subject         *string   `json:"subject,omitempty"`
	Description     *string   `json:"description,omitempty"`
	DurationMinutes *int      `json:"duration_minutes,omitempty"`
	IsActive        bool      `json:"is_active"`
	CourseID        *int64    `json:"course_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Attempt is one student's instance of taking one exam.
type Attempt struct {
	ID          int64      `json:"id"`
	StudentID   int64      `json:"user_id"`
	ExamID      int64      `json:"exam_id"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
	TotalScore  *float64   `json:"total_score"`
}

// Completed reports whether the attempt reached its terminal state.
func (a *Attempt) Completed() bool {
	return a.CompletedAt != nil
}

// AIFeedback is the structured verdict stored for AI-graded answers.
type AIFeedback struct {
	Accuracy float64 `json:"accuracy"`
	Feedback string  `json:"feedback"`
}

// Answer is a student's recorded response to one question within one attempt.
type Answer struct {
	ID               int64       `json:"id"`
	AttemptID        int64       `json:"attempt_id"`
	QuestionID       int64       `json:"question_id"`
	SelectedOptionID *int64      `json:"selected_option_id"`
	TextAnswer       *string     `json:"text_answer"`
	IsCorrect        *bool       `json:"is_correct,omitempty"`
	ScoreObtained    *float64    `json:"score_obtained,omitempty"`
	AIFeedback       *AIFeedback `json:"ai_feedback_detail,omitempty"`
}

// AnswerInput is one entry of a saveAnswers batch.
type AnswerInput struct {
	QuestionID       int64   `json:"question_id"`
	SelectedOptionID *int64  `json:"selected_option_id,omitempty"`
	TextAnswer       *string `json:"text_answer,omitempty"`
}

// AttemptStart is returned when an attempt begins.
type AttemptStart struct {
	Attempt Attempt     `json:"attempt"`
	Exam    ExamSummary `json:"exam"`
}

// SubmissionResult is the outcome of grading a submitted attempt.
type SubmissionResult struct {
	Attempt         Attempt `json:"attempt"`
	TotalScore      float64 `json:"total_score"`
	TotalQuestions  int     `json:"total_questions"`
	CorrectCount    int     `json:"correct_answers"`
	WrongCount      int     `json:"wrong_answers"`
	UnansweredCount int     `json:"unanswered"`
}

// AttemptSummary is an attempt joined with its exam title, without answers.
type AttemptSummary struct {
	ID              int64      `json:"id"`
	StudentID       int64      `json:"user_id"`
	ExamID          int64      `json:"exam_id"`
	ExamTitle       string     `json:"exam_title"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at"`
	TotalScore      *float64   `json:"total_score"`
}

// AnswerDetail is an answer enriched with its question for result display.
type AnswerDetail struct {
	AnswerID           int64        `json:"answer_id"`
	QuestionID         int64        `json:"question_id"`
	SelectedOptionID   *int64       `json:"selected_option_id"`
	SelectedOptionText *string      `json:"selected_option_text,omitempty"`
	TextAnswer         *string      `json:"text_answer"`
	IsCorrect          *bool        `json:"is_correct"`
	ScoreObtained      *float64     `json:"score_obtained"`
	AIFeedback         *AIFeedback  `json:"ai_feedback_detail,omitempty"`
	QuestionText       string       `json:"question_text"`
	QuestionType       QuestionType `json:"question_type"`
	Points             float64      `json:"points"`
	ImageURL           *string      `json:"image_url,omitempty"`
	Explanation        *string      `json:"explanation,omitempty"`
	Options            []Option     `json:"all_options,omitempty"`
}

// AttemptResult is the detailed per-question view of one attempt.
type AttemptResult struct {
	Attempt AttemptSummary `json:"attempt"`
	Answers []AnswerDetail `json:"answers"`
}

// ExamAttempts is the teacher view of all attempts of one exam.
type ExamAttempts struct {
	Exam               ExamSummary      `json:"exam"`
	Attempts           []AttemptSummary `json:"attempts"`
	TotalAttempts      int              `json:"total_attempts"`
	CompletedAttempts  int              `json:"completed_attempts"`
	InProgressAttempts int              `json:"in_progress_attempts"`
}

// GenerateRequest describes an AI-generated exam draft.
type GenerateRequest struct {
	Title        string `json:"title"`
	Subject      string `json:"subject"`
	Topic        string `json:"topic"`
	Difficulty   string `json:"difficulty"`
	NumQuestions int    `json:"num_questions"`
}
