package exam

import (
	"context"
	"fmt"

	"github.com/jinzhu/copier"

	"github.com/pavelanni/assessor/internal/model"
)

// GetAttemptResult returns the per-question view of an attempt owned by callerID.
// Until the attempt is submitted the answer key is left out.
func (s *Service) GetAttemptResult(ctx context.Context, attemptID, callerID int64) (*model.AttemptResult, error) {
	summary, err := s.store.GetAttemptSummary(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if summary.StudentID != callerID {
		return nil, model.Forbidden("attempt does not belong to you")
	}
	details, err := s.store.ListAnswerDetails(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if details == nil {
		details = []model.AnswerDetail{}
	}
	if summary.CompletedAt == nil {
		hideAnswerKey(details)
	}
	return &model.AttemptResult{Attempt: summary, Answers: details}, nil
}

// hideAnswerKey clears option correctness and explanations of an attempt still in progress.
func hideAnswerKey(details []model.AnswerDetail) {
	for i := range details {
		details[i].Explanation = nil
		for j := range details[i].Options {
			details[i].Options[j].IsCorrect = false
		}
	}
}

// GetUserAttempts lists a student's attempts newest first, optionally for one exam.
func (s *Service) GetUserAttempts(ctx context.Context, studentID int64, examID *int64) ([]model.AttemptSummary, error) {
	list, err := s.store.ListStudentAttempts(ctx, studentID, examID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []model.AttemptSummary{}
	}
	return list, nil
}

// ExamAttempts returns every attempt of an exam for the teacher who owns it.
func (s *Service) ExamAttempts(ctx context.Context, examID, teacherID int64) (*model.ExamAttempts, error) {
	exam, err := s.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if exam.TeacherID != teacherID {
		return nil, model.Forbidden("exam belongs to another teacher")
	}
	attempts, err := s.store.ListExamAttempts(ctx, examID)
	if err != nil {
		return nil, err
	}

	out := &model.ExamAttempts{Attempts: attempts, TotalAttempts: len(attempts)}
	if out.Attempts == nil {
		out.Attempts = []model.AttemptSummary{}
	}
	if err := copier.Copy(&out.Exam, exam); err != nil {
		return nil, fmt.Errorf("copy exam summary: %w", err)
	}
	for _, a := range attempts {
		if a.CompletedAt != nil {
			out.CompletedAttempts++
		} else {
			out.InProgressAttempts++
		}
	}
	return out, nil
}
