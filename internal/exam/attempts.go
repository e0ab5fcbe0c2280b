package exam

import (
	"context"
	"fmt"

	"github.com/jinzhu/copier"

	"github.com/pavelanni/assessor/internal/model"
	"github.com/pavelanni/assessor/internal/store"
)

// StartAttempt opens a new attempt of an exam for a student. Several attempts of
// the same exam by the same student may be open at once.
func (s *Service) StartAttempt(ctx context.Context, studentID, examID int64) (*model.AttemptStart, error) {
	exam, err := s.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	attempt, err := s.store.CreateAttempt(ctx, studentID, examID, s.now())
	if err != nil {
		return nil, err
	}

	out := &model.AttemptStart{Attempt: attempt}
	if err := copier.Copy(&out.Exam, exam); err != nil {
		return nil, fmt.Errorf("copy exam summary: %w", err)
	}
	s.logger.Info("attempt started", "attempt_id", attempt.ID, "exam_id", examID, "student_id", studentID)
	return out, nil
}

// lockOwnedAttempt loads and locks an attempt that must belong to studentID and
// still be in progress.
func lockOwnedAttempt(ctx context.Context, tx *store.Tx, attemptID, studentID int64, completedMsg string) (model.Attempt, error) {
	a, err := tx.LockAttempt(ctx, attemptID)
	if err != nil {
		return a, err
	}
	if a.StudentID != studentID {
		return a, model.Forbidden("attempt does not belong to you")
	}
	if a.Completed() {
		return a, model.InvalidState(completedMsg)
	}
	return a, nil
}

// SaveAnswers upserts a batch of answers for an in-progress attempt.
// Saving the same question again overwrites the previous answer.
func (s *Service) SaveAnswers(ctx context.Context, attemptID, studentID int64, in []model.AnswerInput) ([]model.Answer, error) {
	if len(in) == 0 {
		return nil, &model.ValidationError{Field: "answers", Reason: "at least one answer is required"}
	}
	for i, a := range in {
		if a.QuestionID <= 0 {
			return nil, &model.ValidationError{Field: fmt.Sprintf("answers[%d].question_id", i), Reason: "question id is required"}
		}
	}

	var saved []model.Answer
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		attempt, err := lockOwnedAttempt(ctx, tx, attemptID, studentID, "cannot modify a completed attempt")
		if err != nil {
			return err
		}
		for _, a := range in {
			ok, err := tx.QuestionInExam(ctx, attempt.ExamID, a.QuestionID)
			if err != nil {
				return err
			}
			if !ok {
				return model.NotFound("question", a.QuestionID)
			}
			if a.TextAnswer != nil && *a.TextAnswer == "" {
				a.TextAnswer = nil
			}
			if a.SelectedOptionID != nil && *a.SelectedOptionID == 0 {
				a.SelectedOptionID = nil
			}
			ans, err := tx.UpsertAnswer(ctx, attemptID, a)
			if err != nil {
				return err
			}
			saved = append(saved, ans)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// SubmitAttempt grades every question of the attempt and completes it.
// Grading and completion happen in one transaction; only one submit can succeed.
func (s *Service) SubmitAttempt(ctx context.Context, attemptID, studentID int64) (*model.SubmissionResult, error) {
	var result *model.SubmissionResult
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		attempt, err := lockOwnedAttempt(ctx, tx, attemptID, studentID, "attempt already submitted")
		if err != nil {
			return err
		}
		exam, err := s.examIn(ctx, tx, attempt.ExamID)
		if err != nil {
			return err
		}
		answers, err := tx.ListAnswers(ctx, attemptID)
		if err != nil {
			return err
		}

		questions := exam.Questions()
		sum := s.grader.Grade(ctx, attemptID, questions, answers)

		for _, o := range sum.Outcomes {
			if o.Answered() {
				err = tx.GradeAnswer(ctx, o.AnswerID, o.IsCorrect, o.Score, o.Feedback)
			} else {
				err = tx.InsertUnanswered(ctx, attemptID, o.QuestionID)
			}
			if err != nil {
				return err
			}
		}

		ok, err := tx.CompleteAttempt(ctx, attemptID, s.now(), sum.TotalScore)
		if err != nil {
			return err
		}
		if !ok {
			return model.InvalidState("attempt already submitted")
		}
		done, err := tx.GetAttempt(ctx, attemptID)
		if err != nil {
			return err
		}

		result = &model.SubmissionResult{
			Attempt:         done,
			TotalScore:      sum.TotalScore,
			TotalQuestions:  len(questions),
			CorrectCount:    sum.Correct,
			WrongCount:      sum.Wrong,
			UnansweredCount: sum.Unanswered,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("attempt submitted", "attempt_id", attemptID, "student_id", studentID,
		"total_score", result.TotalScore, "correct", result.CorrectCount)
	return result, nil
}
