package model

import (
	"fmt"
	"strings"
)

// DefaultPoints is used when a draft question omits points.
const DefaultPoints = 1.0

// ExamDraft is the nested document submitted to create an exam.
// It is read from JSON request bodies and from YAML import files.
type ExamDraft struct {
	Title           string         `json:"title" yaml:"title"`
	Subject         *string        `json:"subject,omitempty" yaml:"subject,omitempty"`
	Description     *string        `json:"description,omitempty" yaml:"description,omitempty"`
	DurationMinutes *int           `json:"duration_minutes,omitempty" yaml:"duration_minutes,omitempty"`
	IsActive        *bool          `json:"is_active,omitempty" yaml:"is_active,omitempty"`
	CourseID        *int64         `json:"course_id,omitempty" yaml:"course_id,omitempty"`
	Sections        []SectionDraft `json:"sections" yaml:"sections"`
}

// SectionDraft is one section of an ExamDraft. A nil OrderIndex means "use the position".
type SectionDraft struct {
	Title       string          `json:"title" yaml:"title"`
	Description *string         `json:"description,omitempty" yaml:"description,omitempty"`
	OrderIndex  *int            `json:"order_index,omitempty" yaml:"order_index,omitempty"`
	Questions   []QuestionDraft `json:"questions" yaml:"questions"`
}

// QuestionDraft is one question of a SectionDraft.
type QuestionDraft struct {
	Text              string        `json:"question_text" yaml:"question_text"`
	Type              QuestionType  `json:"question_type" yaml:"question_type"`
	ImageURL          *string       `json:"image_url,omitempty" yaml:"image_url,omitempty"`
	Points            *float64      `json:"points,omitempty" yaml:"points,omitempty"`
	Explanation       *string       `json:"explanation,omitempty" yaml:"explanation,omitempty"`
	CorrectTextAnswer *string       `json:"correct_text_answer,omitempty" yaml:"correct_text_answer,omitempty"`
	OrderIndex        *int          `json:"order_index,omitempty" yaml:"order_index,omitempty"`
	Options           []OptionDraft `json:"options,omitempty" yaml:"options,omitempty"`
}

// OptionDraft is one answer choice of a QuestionDraft.
type OptionDraft struct {
	Text       string `json:"option_text" yaml:"option_text"`
	IsCorrect  bool   `json:"is_correct" yaml:"is_correct"`
	OrderIndex *int   `json:"order_index,omitempty" yaml:"order_index,omitempty"`
}

// PointsOrDefault returns the question's points, or DefaultPoints when omitted.
func (q QuestionDraft) PointsOrDefault() float64 {
	if q.Points == nil {
		return DefaultPoints
	}
	return *q.Points
}

// Validate checks the whole draft before anything is written.
// The first failure is returned as a *ValidationError.
func (d ExamDraft) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return &ValidationError{Field: "title", Reason: "title is required"}
	}
	if d.DurationMinutes != nil && *d.DurationMinutes <= 0 {
		return &ValidationError{Field: "duration_minutes", Reason: "must be positive"}
	}
	if len(d.Sections) == 0 {
		return &ValidationError{Field: "sections", Reason: "exam must have at least one section"}
	}

	seen := make(map[int]bool, len(d.Sections))
	for i, s := range d.Sections {
		idx := i
		if s.OrderIndex != nil {
			idx = *s.OrderIndex
		}
		if seen[idx] {
			return &ValidationError{
				Field:  fmt.Sprintf("sections[%d].order_index", i),
				Reason: fmt.Sprintf("duplicate section order index %d", idx),
			}
		}
		seen[idx] = true

		for _, q := range s.Questions {
			if err := q.validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (q QuestionDraft) validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return &ValidationError{Field: "question_text", Reason: "question text is required"}
	}
	fail := func(reason string) error {
		return &ValidationError{Question: q.Text, Reason: reason}
	}
	if !q.Type.Valid() {
		return fail(fmt.Sprintf("unknown question type %q", q.Type))
	}
	if q.Points != nil && *q.Points <= 0 {
		return fail("points must be positive")
	}

	correct := 0
	for _, o := range q.Options {
		if o.IsCorrect {
			correct++
		}
	}

	switch q.Type {
	case QuestionMultipleChoice:
		if len(q.Options) == 0 {
			return fail("multiple choice question must have options")
		}
		if correct == 0 {
			return fail("multiple choice question must have at least one correct option")
		}
	case QuestionTrueFalse:
		if len(q.Options) == 0 {
			return fail("true/false question must have options")
		}
		if len(q.Options) != 2 || correct != 1 {
			return fail("true/false question must have exactly two options with one correct")
		}
	case QuestionShortAnswer:
		if len(q.Options) > 0 {
			return fail("short answer question must not have options")
		}
	}
	return nil
}
