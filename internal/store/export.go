package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/pavelanni/assessor/internal/model"
)

// ExportExam builds export-ready results for every attempt of an exam.
func (s *Store) ExportExam(ctx context.Context, examID int64) (*model.ExamExport, error) {
	exam, err := s.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	attempts, err := s.ListExamAttempts(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}

	questions := exam.Questions()
	out := &model.ExamExport{
		ExamID:       exam.ID,
		Title:        exam.Title,
		ExportedAt:   time.Now().UTC(),
		NumQuestions: len(questions),
	}
	if exam.Subject != nil {
		out.Subject = *exam.Subject
	}
	for _, q := range questions {
		out.MaxScore += q.Points
	}

	// Attempts come newest first; number them per student in start order.
	attemptNumber := make(map[int64]int)
	perStudent := make(map[int64][]model.AttemptSummary)
	for _, a := range attempts {
		perStudent[a.StudentID] = append(perStudent[a.StudentID], a)
	}
	for _, list := range perStudent {
		slices.SortFunc(list, func(a, b model.AttemptSummary) int {
			if c := a.StartedAt.Compare(b.StartedAt); c != 0 {
				return c
			}
			return cmp.Compare(a.ID, b.ID)
		})
		for i, a := range list {
			attemptNumber[a.ID] = i + 1
		}
	}

	for _, a := range attempts {
		answers, err := s.ListAnswers(ctx, a.ID)
		if err != nil {
			return nil, fmt.Errorf("list answers for attempt %d: %w", a.ID, err)
		}

		var qrs []model.QuestionResult
		for _, q := range questions {
			qr := model.QuestionResult{Text: q.Text, Type: q.Type, Points: q.Points}
			if ans, ok := answers[q.ID]; ok {
				qr.IsCorrect = ans.IsCorrect
				qr.ScoreObtained = ans.ScoreObtained
				qr.Answer = answerText(q, ans)
				if ans.AIFeedback != nil {
					qr.AIFeedback = ans.AIFeedback.Feedback
				}
			}
			qrs = append(qrs, qr)
		}

		out.Results = append(out.Results, model.StudentResult{
			AttemptID:     a.ID,
			StudentID:     a.StudentID,
			AttemptNumber: attemptNumber[a.ID],
			StartedAt:     a.StartedAt,
			CompletedAt:   a.CompletedAt,
			TotalScore:    a.TotalScore,
			Questions:     qrs,
		})
	}
	return out, nil
}

func answerText(q model.Question, a model.Answer) string {
	if a.SelectedOptionID != nil {
		if o := q.Option(*a.SelectedOptionID); o != nil {
			return o.Text
		}
	}
	if a.TextAnswer != nil {
		return *a.TextAnswer
	}
	return ""
}
