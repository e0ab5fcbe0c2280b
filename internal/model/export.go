package model

import "time"

// ExamExport is the top-level JSON structure for exam result export.
type ExamExport struct {
	ExamID       int64           `json:"exam_id"`
	Title        string          `json:"title"`
	Subject      string          `json:"subject"`
	ExportedAt   time.Time       `json:"exported_at"`
	NumQuestions int             `json:"num_questions"`
	MaxScore     float64         `json:"max_score"`
	Results      []StudentResult `json:"results"`
}

// StudentResult holds one attempt's data for export.
type StudentResult struct {
	AttemptID     int64            `json:"attempt_id"`
	StudentID     int64            `json:"student_id"`
	AttemptNumber int              `json:"attempt_number"`
	StartedAt     time.Time        `json:"started_at"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`
	TotalScore    *float64         `json:"total_score,omitempty"`
	Questions     []QuestionResult `json:"questions"`
}

// QuestionResult holds per-question data for export.
type QuestionResult struct {
	Text          string       `json:"text"`
	Type          QuestionType `json:"type"`
	Points        float64      `json:"points"`
	Answer        string       `json:"answer"`
	IsCorrect     *bool        `json:"is_correct,omitempty"`
	ScoreObtained *float64     `json:"score_obtained,omitempty"`
	AIFeedback    string       `json:"ai_feedback,omitempty"`
}
