package exam

import (
	"context"
	"fmt"

	"github.com/pavelanni/assessor/internal/model"
	"github.com/pavelanni/assessor/internal/store"
)

// CreateExam validates a draft and stores the whole exam in one transaction.
// Sections, questions and options without an explicit order index take their position.
func (s *Service) CreateExam(ctx context.Context, ownerID int64, draft model.ExamDraft) (*model.Exam, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	var exam *model.Exam
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		exam, err = s.insertExam(ctx, tx, ownerID, draft)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.cacheExam(ctx, exam)
	s.logger.Info("exam created", "exam_id", exam.ID, "teacher_id", ownerID, "questions", len(exam.Questions()))
	return exam, nil
}

// ImportExam creates an exam from a file unless a file with the same digest was
// imported before. It reports skipped=true for duplicates.
func (s *Service) ImportExam(ctx context.Context, ownerID int64, sha, filename string, draft model.ExamDraft) (examID int64, skipped bool, err error) {
	if err := draft.Validate(); err != nil {
		return 0, false, fmt.Errorf("%s: %w", filename, err)
	}
	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		done, err := tx.IsFileImported(ctx, sha)
		if err != nil {
			return err
		}
		if done {
			skipped = true
			return nil
		}
		exam, err := s.insertExam(ctx, tx, ownerID, draft)
		if err != nil {
			return err
		}
		examID = exam.ID
		return tx.RecordImport(ctx, sha, filename, exam.ID, s.now())
	})
	return examID, skipped, err
}

func (s *Service) insertExam(ctx context.Context, tx *store.Tx, ownerID int64, draft model.ExamDraft) (*model.Exam, error) {
	summary, err := tx.InsertExam(ctx, ownerID, draft, s.now())
	if err != nil {
		return nil, err
	}
	for i, sd := range draft.Sections {
		sectionID, err := tx.InsertSection(ctx, model.Section{
			ExamID:      summary.ID,
			Title:       sd.Title,
			Description: sd.Description,
			OrderIndex:  orderOr(sd.OrderIndex, i),
		})
		if err != nil {
			return nil, err
		}
		for j, qd := range sd.Questions {
			questionID, err := tx.InsertQuestion(ctx, model.Question{
				SectionID:         sectionID,
				Text:              qd.Text,
				Type:              qd.Type,
				ImageURL:          qd.ImageURL,
				Points:            qd.PointsOrDefault(),
				Explanation:       qd.Explanation,
				CorrectTextAnswer: qd.CorrectTextAnswer,
				OrderIndex:        orderOr(qd.OrderIndex, j),
			})
			if err != nil {
				return nil, err
			}
			for k, od := range qd.Options {
				if _, err := tx.InsertOption(ctx, model.Option{
					QuestionID: questionID,
					Text:       od.Text,
					IsCorrect:  od.IsCorrect,
					OrderIndex: orderOr(od.OrderIndex, k),
				}); err != nil {
					return nil, err
				}
			}
		}
	}
	return tx.GetExam(ctx, summary.ID)
}

func orderOr(explicit *int, position int) int {
	if explicit != nil {
		return *explicit
	}
	return position
}

// GetExam returns the hydrated exam, consulting the cache first.
func (s *Service) GetExam(ctx context.Context, examID int64) (*model.Exam, error) {
	if exam := s.cachedExam(ctx, examID); exam != nil {
		return exam, nil
	}
	exam, err := s.store.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	s.cacheExam(ctx, exam)
	return exam, nil
}

// examIn loads an exam inside a transaction, consulting the cache first.
func (s *Service) examIn(ctx context.Context, tx *store.Tx, examID int64) (*model.Exam, error) {
	if exam := s.cachedExam(ctx, examID); exam != nil {
		return exam, nil
	}
	return tx.GetExam(ctx, examID)
}

func (s *Service) cachedExam(ctx context.Context, examID int64) *model.Exam {
	exam, err := s.cache.Get(ctx, examID)
	if err != nil {
		s.logger.Warn("exam cache read failed", "exam_id", examID, "error", err)
		return nil
	}
	return exam
}

func (s *Service) cacheExam(ctx context.Context, exam *model.Exam) {
	if err := s.cache.Set(ctx, exam); err != nil {
		s.logger.Warn("exam cache write failed", "exam_id", exam.ID, "error", err)
	}
}

// ListExams returns exam summaries newest first, optionally for one course.
func (s *Service) ListExams(ctx context.Context, courseID *int64) ([]model.ExamSummary, error) {
	exams, err := s.store.ListExams(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if exams == nil {
		exams = []model.ExamSummary{}
	}
	return exams, nil
}

// GenerateDraft asks the AI provider for an unsaved exam draft.
func (s *Service) GenerateDraft(ctx context.Context, req model.GenerateRequest) (*model.ExamDraft, error) {
	if req.Title == "" {
		return nil, &model.ValidationError{Field: "title", Reason: "title is required"}
	}
	if req.NumQuestions <= 0 || req.NumQuestions > 50 {
		return nil, &model.ValidationError{Field: "num_questions", Reason: "must be between 1 and 50"}
	}
	if s.generator == nil {
		return nil, fmt.Errorf("%w: AI provider is not configured", model.ErrExternalService)
	}
	return s.generator.GenerateExamDraft(ctx, req)
}
