package exam

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/pavelanni/assessor/internal/grading"
	"github.com/pavelanni/assessor/internal/model"
	"github.com/pavelanni/assessor/internal/store"
)

type downEvaluator struct{}

func (downEvaluator) EvaluateShortAnswer(context.Context, string, string, string) (grading.Verdict, error) {
	return grading.Verdict{}, errors.New("dial tcp: connection refused")
}

type fixedEvaluator struct{ v grading.Verdict }

func (f fixedEvaluator) EvaluateShortAnswer(context.Context, string, string, string) (grading.Verdict, error) {
	return f.v, nil
}

type fakeGenerator struct{ draft *model.ExamDraft }

func (f fakeGenerator) GenerateExamDraft(context.Context, model.GenerateRequest) (*model.ExamDraft, error) {
	return f.draft, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, ev grading.Evaluator, opts ...Option) (*Service, *store.Store) {
	t.Helper()
	st, err := store.New(store.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	engine := grading.NewEngine(ev, 50*time.Millisecond, quietLogger())
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	return New(st, engine, opts...), st
}

func ptr[T any](v T) *T { return &v }

// scoringDraft is a 2-question exam: multiple choice worth 1 point with option B
// correct, and a short answer worth 1.5 points with reference "Paris".
func scoringDraft() model.ExamDraft {
	return model.ExamDraft{
		Title:           "Geography",
		DurationMinutes: ptr(30),
		Sections: []model.SectionDraft{{
			Title: "Europe",
			Questions: []model.QuestionDraft{
				{
					Text: "Which river flows through Vienna?",
					Type: model.QuestionMultipleChoice,
					Options: []model.OptionDraft{
						{Text: "A: Rhine"},
						{Text: "B: Danube", IsCorrect: true},
						{Text: "C: Elbe"},
					},
				},
				{
					Text:              "What is the capital of France?",
					Type:              model.QuestionShortAnswer,
					Points:            ptr(1.5),
					CorrectTextAnswer: ptr("Paris"),
				},
			},
		}},
	}
}

func createExam(t *testing.T, svc *Service, draft model.ExamDraft) *model.Exam {
	t.Helper()
	exam, err := svc.CreateExam(context.Background(), 1, draft)
	if err != nil {
		t.Fatalf("CreateExam: %v", err)
	}
	return exam
}

func startAttempt(t *testing.T, svc *Service, studentID, examID int64) model.Attempt {
	t.Helper()
	start, err := svc.StartAttempt(context.Background(), studentID, examID)
	if err != nil {
		t.Fatalf("StartAttempt: %v", err)
	}
	return start.Attempt
}

func TestCreateExamInvalidDraftPersistsNothing(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	d := scoringDraft()
	d.Sections[0].Questions[0].Options[1].IsCorrect = false
	_, err := svc.CreateExam(ctx, 1, d)
	if !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	// The first exam id in a fresh database would have been 1.
	if _, err := svc.GetExam(ctx, 1); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	exams, err := svc.ListExams(ctx, nil)
	if err != nil {
		t.Fatalf("ListExams: %v", err)
	}
	if len(exams) != 0 {
		t.Errorf("expected no exams, got %d", len(exams))
	}
}

func TestCreateExamCountsAndOrder(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	d := scoringDraft()
	d.Sections = append(d.Sections, model.SectionDraft{
		Title: "Logic",
		Questions: []model.QuestionDraft{{
			Text:    "All squares are rectangles.",
			Type:    model.QuestionTrueFalse,
			Options: []model.OptionDraft{{Text: "True", IsCorrect: true}, {Text: "False"}},
		}},
	})
	created := createExam(t, svc, d)

	// Read back through the store, bypassing the cache.
	exam, err := svc.store.GetExam(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetExam: %v", err)
	}
	if len(exam.Sections) != len(d.Sections) {
		t.Fatalf("sections = %d, want %d", len(exam.Sections), len(d.Sections))
	}
	for i, sec := range exam.Sections {
		if sec.OrderIndex != i {
			t.Errorf("section %d order = %d", i, sec.OrderIndex)
		}
		if len(sec.Questions) != len(d.Sections[i].Questions) {
			t.Fatalf("section %d questions = %d, want %d", i, len(sec.Questions), len(d.Sections[i].Questions))
		}
		for j, q := range sec.Questions {
			if q.OrderIndex != j {
				t.Errorf("question %d/%d order = %d", i, j, q.OrderIndex)
			}
			if len(q.Options) != len(d.Sections[i].Questions[j].Options) {
				t.Errorf("question %q options = %d, want %d", q.Text, len(q.Options), len(d.Sections[i].Questions[j].Options))
			}
			for k, o := range q.Options {
				if o.OrderIndex != k {
					t.Errorf("option %d order = %d", k, o.OrderIndex)
				}
			}
		}
	}
	if got := exam.Sections[0].Questions[0].Points; got != model.DefaultPoints {
		t.Errorf("omitted points = %v, want %v", got, model.DefaultPoints)
	}
	if got := exam.Sections[0].Questions[1].Points; got != 1.5 {
		t.Errorf("explicit points = %v, want 1.5", got)
	}
	if !exam.IsActive {
		t.Error("exam should default to active")
	}
}

func TestCreateExamExplicitSectionOrder(t *testing.T) {
	svc, _ := newTestService(t, nil)
	d := scoringDraft()
	d.Sections[0].OrderIndex = ptr(5)
	d.Sections = append(d.Sections, model.SectionDraft{Title: "Intro", OrderIndex: ptr(1)})
	exam := createExam(t, svc, d)
	if exam.Sections[0].Title != "Intro" || exam.Sections[0].OrderIndex != 1 || exam.Sections[1].OrderIndex != 5 {
		t.Errorf("unexpected section order: %+v", exam.Sections)
	}
}

func TestScoringCorrectness(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	exam := createExam(t, svc, scoringDraft())
	mc, short := exam.Sections[0].Questions[0], exam.Sections[0].Questions[1]
	optionB := mc.Options[1].ID

	a := startAttempt(t, svc, 10, exam.ID)
	_, err := svc.SaveAnswers(ctx, a.ID, 10, []model.AnswerInput{
		{QuestionID: mc.ID, SelectedOptionID: &optionB},
		{QuestionID: short.ID, TextAnswer: ptr("paris")},
	})
	if err != nil {
		t.Fatalf("SaveAnswers: %v", err)
	}

	res, err := svc.SubmitAttempt(ctx, a.ID, 10)
	if err != nil {
		t.Fatalf("SubmitAttempt: %v", err)
	}
	if res.TotalScore != 2.5 || res.CorrectCount != 2 || res.WrongCount != 0 || res.UnansweredCount != 0 {
		t.Errorf("unexpected result %+v", res)
	}
	if res.TotalQuestions != 2 {
		t.Errorf("TotalQuestions = %d, want 2", res.TotalQuestions)
	}
	if !res.Attempt.Completed() || res.Attempt.TotalScore == nil || *res.Attempt.TotalScore != 2.5 {
		t.Errorf("attempt not completed with score: %+v", res.Attempt)
	}
}

func TestFallbackWhenEvaluatorDown(t *testing.T) {
	tests := []struct {
		answer      string
		wantCorrect bool
	}{
		{"  PARIS ", true},
		{"Lyon", false},
	}
	for _, tt := range tests {
		t.Run(tt.answer, func(t *testing.T) {
			svc, _ := newTestService(t, downEvaluator{})
			ctx := context.Background()
			exam := createExam(t, svc, scoringDraft())
			short := exam.Sections[0].Questions[1]

			a := startAttempt(t, svc, 10, exam.ID)
			if _, err := svc.SaveAnswers(ctx, a.ID, 10, []model.AnswerInput{{QuestionID: short.ID, TextAnswer: &tt.answer}}); err != nil {
				t.Fatalf("SaveAnswers: %v", err)
			}
			res, err := svc.SubmitAttempt(ctx, a.ID, 10)
			if err != nil {
				t.Fatalf("SubmitAttempt must not fail when the evaluator is down: %v", err)
			}
			if got := res.CorrectCount == 1; got != tt.wantCorrect {
				t.Errorf("correct = %v, want %v (result %+v)", got, tt.wantCorrect, res)
			}

			detail, err := svc.GetAttemptResult(ctx, a.ID, 10)
			if err != nil {
				t.Fatalf("GetAttemptResult: %v", err)
			}
			for _, d := range detail.Answers {
				if d.QuestionID == short.ID && d.AIFeedback != nil {
					t.Errorf("fallback grading must not store AI feedback: %+v", d.AIFeedback)
				}
			}
		})
	}
}

func TestRemoteVerdictStoredWithFeedback(t *testing.T) {
	svc, _ := newTestService(t, fixedEvaluator{v: grading.Verdict{IsCorrect: true, Accuracy: 90, Feedback: "Capital named correctly."}})
	ctx := context.Background()
	exam := createExam(t, svc, scoringDraft())
	short := exam.Sections[0].Questions[1]

	a := startAttempt(t, svc, 10, exam.ID)
	if _, err := svc.SaveAnswers(ctx, a.ID, 10, []model.AnswerInput{{QuestionID: short.ID, TextAnswer: ptr("It's Paris")}}); err != nil {
		t.Fatalf("SaveAnswers: %v", err)
	}
	res, err := svc.SubmitAttempt(ctx, a.ID, 10)
	if err != nil {
		t.Fatalf("SubmitAttempt: %v", err)
	}
	if res.TotalScore != 1.5 || res.UnansweredCount != 1 {
		t.Errorf("unexpected result %+v", res)
	}

	detail, err := svc.GetAttemptResult(ctx, a.ID, 10)
	if err != nil {
		t.Fatalf("GetAttemptResult: %v", err)
	}
	var found bool
	for _, d := range detail.Answers {
		if d.QuestionID == short.ID {
			found = true
			if d.AIFeedback == nil || d.AIFeedback.Feedback != "Capital named correctly." {
				t.Errorf("expected stored feedback, got %+v", d.AIFeedback)
			}
		}
	}
	if !found {
		t.Error("short answer missing from result")
	}
}

func TestUnansweredHandling(t *testing.T) {
	svc, st := newTestService(t, nil)
	ctx := context.Background()
	d := scoringDraft()
	d.Sections[0].Questions = append(d.Sections[0].Questions, model.QuestionDraft{
		Text:    "The Alps are in Europe.",
		Type:    model.QuestionTrueFalse,
		Options: []model.OptionDraft{{Text: "True", IsCorrect: true}, {Text: "False"}},
	})
	exam := createExam(t, svc, d)

	a := startAttempt(t, svc, 10, exam.ID)
	res, err := svc.SubmitAttempt(ctx, a.ID, 10)
	if err != nil {
		t.Fatalf("SubmitAttempt: %v", err)
	}
	if res.TotalScore != 0 || res.UnansweredCount != 3 || res.CorrectCount != 0 || res.WrongCount != 0 {
		t.Errorf("unexpected result %+v", res)
	}
	n, err := st.CountAnswers(ctx, a.ID)
	if err != nil {
		t.Fatalf("CountAnswers: %v", err)
	}
	if n != 3 {
		t.Errorf("answer rows = %d, want 3", n)
	}
}

func TestCompletenessAfterPartialAnswers(t *testing.T) {
	svc, st := newTestService(t, nil)
	ctx := context.Background()
	exam := createExam(t, svc, scoringDraft())
	mc := exam.Sections[0].Questions[0]

	a := startAttempt(t, svc, 10, exam.ID)
	wrong := mc.Options[0].ID
	if _, err := svc.SaveAnswers(ctx, a.ID, 10, []model.AnswerInput{{QuestionID: mc.ID, SelectedOptionID: &wrong}}); err != nil {
		t.Fatalf("SaveAnswers: %v", err)
	}
	res, err := svc.SubmitAttempt(ctx, a.ID, 10)
	if err != nil {
		t.Fatalf("SubmitAttempt: %v", err)
	}
	if res.WrongCount != 1 || res.UnansweredCount != 1 {
		t.Errorf("unexpected result %+v", res)
	}
	n, _ := st.CountAnswers(ctx, a.ID)
	if n != len(exam.Questions()) {
		t.Errorf("answer rows = %d, want %d", n, len(exam.Questions()))
	}
}

func TestSaveAnswersIdempotent(t *testing.T) {
	svc, st := newTestService(t, nil)
	ctx := context.Background()
	exam := createExam(t, svc, scoringDraft())
	short := exam.Sections[0].Questions[1]
	a := startAttempt(t, svc, 10, exam.ID)

	if _, err := svc.SaveAnswers(ctx, a.ID, 10, []model.AnswerInput{{QuestionID: short.ID, TextAnswer: ptr("Lyon")}}); err != nil {
		t.Fatalf("first SaveAnswers: %v", err)
	}
	saved, err := svc.SaveAnswers(ctx, a.ID, 10, []model.AnswerInput{{QuestionID: short.ID, TextAnswer: ptr("Paris")}})
	if err != nil {
		t.Fatalf("second SaveAnswers: %v", err)
	}
	if len(saved) != 1 || saved[0].TextAnswer == nil || *saved[0].TextAnswer != "Paris" {
		t.Errorf("unexpected saved answers %+v", saved)
	}
	n, _ := st.CountAnswers(ctx, a.ID)
	if n != 1 {
		t.Errorf("answer rows = %d, want 1", n)
	}
}

func TestSaveAnswersBatchIsAllOrNothing(t *testing.T) {
	svc, st := newTestService(t, nil)
	ctx := context.Background()
	exam := createExam(t, svc, scoringDraft())
	short := exam.Sections[0].Questions[1]
	a := startAttempt(t, svc, 10, exam.ID)

	_, err := svc.SaveAnswers(ctx, a.ID, 10, []model.AnswerInput{
		{QuestionID: short.ID, TextAnswer: ptr("Paris")},
		{QuestionID: 999, TextAnswer: ptr("x")},
	})
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	n, err := st.CountAnswers(ctx, a.ID)
	if err != nil {
		t.Fatalf("CountAnswers: %v", err)
	}
	if n != 0 {
		t.Errorf("answer rows = %d, want 0 after a failed batch", n)
	}
}

func TestSaveAnswersNormalizesEmptyValues(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	exam := createExam(t, svc, scoringDraft())
	mc := exam.Sections[0].Questions[0]
	short := exam.Sections[0].Questions[1]
	a := startAttempt(t, svc, 10, exam.ID)

	saved, err := svc.SaveAnswers(ctx, a.ID, 10, []model.AnswerInput{
		{QuestionID: mc.ID, SelectedOptionID: ptr(int64(0))},
		{QuestionID: short.ID, TextAnswer: ptr("")},
	})
	if err != nil {
		t.Fatalf("SaveAnswers: %v", err)
	}
	if len(saved) != 2 {
		t.Fatalf("saved = %d, want 2", len(saved))
	}
	if saved[0].SelectedOptionID != nil {
		t.Errorf("zero option id stored as %d, want null", *saved[0].SelectedOptionID)
	}
	if saved[1].TextAnswer != nil {
		t.Errorf("empty text stored as %q, want null", *saved[1].TextAnswer)
	}
}

func TestTerminalState(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	exam := createExam(t, svc, scoringDraft())
	short := exam.Sections[0].Questions[1]
	a := startAttempt(t, svc, 10, exam.ID)

	if _, err := svc.SubmitAttempt(ctx, a.ID, 10); err != nil {
		t.Fatalf("SubmitAttempt: %v", err)
	}
	_, err := svc.SaveAnswers(ctx, a.ID, 10, []model.AnswerInput{{QuestionID: short.ID, TextAnswer: ptr("Paris")}})
	if !errors.Is(err, model.ErrInvalidState) {
		t.Errorf("SaveAnswers after submit: expected ErrInvalidState, got %v", err)
	}
	_, err = svc.SubmitAttempt(ctx, a.ID, 10)
	if !errors.Is(err, model.ErrInvalidState) {
		t.Errorf("second SubmitAttempt: expected ErrInvalidState, got %v", err)
	}
}

func TestConcurrentSubmitOnlyOneSucceeds(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	exam := createExam(t, svc, scoringDraft())
	a := startAttempt(t, svc, 10, exam.ID)

	const n = 5
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.SubmitAttempt(ctx, a.ID, 10)
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case !errors.Is(err, model.ErrInvalidState):
			t.Errorf("unexpected error %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("successful submits = %d, want 1", succeeded)
	}
}

func TestAttemptOwnershipAndLookup(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	exam := createExam(t, svc, scoringDraft())
	short := exam.Sections[0].Questions[1]
	a := startAttempt(t, svc, 10, exam.ID)
	in := []model.AnswerInput{{QuestionID: short.ID, TextAnswer: ptr("Paris")}}

	tests := []struct {
		name string
		call func() error
		want error
	}{
		{"start on missing exam", func() error {
			_, err := svc.StartAttempt(ctx, 10, 999)
			return err
		}, model.ErrNotFound},
		{"save on missing attempt", func() error {
			_, err := svc.SaveAnswers(ctx, 999, 10, in)
			return err
		}, model.ErrNotFound},
		{"save by another student", func() error {
			_, err := svc.SaveAnswers(ctx, a.ID, 11, in)
			return err
		}, model.ErrForbidden},
		{"save empty batch", func() error {
			_, err := svc.SaveAnswers(ctx, a.ID, 10, nil)
			return err
		}, model.ErrValidation},
		{"save question from another exam", func() error {
			_, err := svc.SaveAnswers(ctx, a.ID, 10, []model.AnswerInput{{QuestionID: 999, TextAnswer: ptr("x")}})
			return err
		}, model.ErrNotFound},
		{"submit missing attempt", func() error {
			_, err := svc.SubmitAttempt(ctx, 999, 10)
			return err
		}, model.ErrNotFound},
		{"submit by another student", func() error {
			_, err := svc.SubmitAttempt(ctx, a.ID, 11)
			return err
		}, model.ErrForbidden},
		{"result by another student", func() error {
			_, err := svc.GetAttemptResult(ctx, a.ID, 11)
			return err
		}, model.ErrForbidden},
		{"result of missing attempt", func() error {
			_, err := svc.GetAttemptResult(ctx, 999, 10)
			return err
		}, model.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestStartAttemptAllowsConcurrentAttempts(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	exam := createExam(t, svc, scoringDraft())

	first, err := svc.StartAttempt(ctx, 10, exam.ID)
	if err != nil {
		t.Fatalf("StartAttempt: %v", err)
	}
	second, err := svc.StartAttempt(ctx, 10, exam.ID)
	if err != nil {
		t.Fatalf("StartAttempt: %v", err)
	}
	if first.Attempt.ID == second.Attempt.ID {
		t.Error("each start should create a new attempt")
	}
	if first.Exam.Title != "Geography" || first.Exam.DurationMinutes == nil || *first.Exam.DurationMinutes != 30 {
		t.Errorf("unexpected exam summary %+v", first.Exam)
	}
	if first.Attempt.Completed() {
		t.Error("new attempt should be in progress")
	}
}

func TestGetAttemptResultDetails(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	exam := createExam(t, svc, scoringDraft())
	mc := exam.Sections[0].Questions[0]
	optionB := mc.Options[1].ID

	a := startAttempt(t, svc, 10, exam.ID)
	if _, err := svc.SaveAnswers(ctx, a.ID, 10, []model.AnswerInput{{QuestionID: mc.ID, SelectedOptionID: &optionB}}); err != nil {
		t.Fatalf("SaveAnswers: %v", err)
	}
	if _, err := svc.SubmitAttempt(ctx, a.ID, 10); err != nil {
		t.Fatalf("SubmitAttempt: %v", err)
	}

	res, err := svc.GetAttemptResult(ctx, a.ID, 10)
	if err != nil {
		t.Fatalf("GetAttemptResult: %v", err)
	}
	if res.Attempt.ExamTitle != "Geography" || res.Attempt.DurationMinutes == nil {
		t.Errorf("unexpected attempt summary %+v", res.Attempt)
	}
	if len(res.Answers) != 2 {
		t.Fatalf("answers = %d, want 2", len(res.Answers))
	}
	first := res.Answers[0]
	if first.QuestionID != mc.ID || first.SelectedOptionText == nil || *first.SelectedOptionText != "B: Danube" {
		t.Errorf("unexpected first answer %+v", first)
	}
	if len(first.Options) != 3 || first.Options[0].Text != "A: Rhine" {
		t.Errorf("expected ordered options, got %+v", first.Options)
	}
	if !first.Options[1].IsCorrect {
		t.Error("submitted attempt should show the correct option")
	}
	if first.IsCorrect == nil || !*first.IsCorrect || first.ScoreObtained == nil || *first.ScoreObtained != 1 {
		t.Errorf("unexpected grade %+v", first)
	}
	second := res.Answers[1]
	if second.QuestionType != model.QuestionShortAnswer || second.Points != 1.5 || len(second.Options) != 0 {
		t.Errorf("unexpected second answer %+v", second)
	}
}

func TestGetAttemptResultHidesAnswerKeyInProgress(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	d := scoringDraft()
	d.Sections[0].Questions[0].Explanation = ptr("Vienna lies on the Danube.")
	exam := createExam(t, svc, d)
	mc := exam.Sections[0].Questions[0]
	optionA := mc.Options[0].ID

	a := startAttempt(t, svc, 10, exam.ID)
	if _, err := svc.SaveAnswers(ctx, a.ID, 10, []model.AnswerInput{{QuestionID: mc.ID, SelectedOptionID: &optionA}}); err != nil {
		t.Fatalf("SaveAnswers: %v", err)
	}

	res, err := svc.GetAttemptResult(ctx, a.ID, 10)
	if err != nil {
		t.Fatalf("GetAttemptResult: %v", err)
	}
	if len(res.Answers) != 1 || len(res.Answers[0].Options) != 3 {
		t.Fatalf("unexpected answers %+v", res.Answers)
	}
	for _, o := range res.Answers[0].Options {
		if o.IsCorrect {
			t.Errorf("option %q exposes correctness before submit", o.Text)
		}
	}
	if res.Answers[0].Explanation != nil {
		t.Error("explanation exposed before submit")
	}
}

func TestGetUserAttempts(t *testing.T) {
	clock := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, nil, WithClock(func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}))
	ctx := context.Background()
	e1 := createExam(t, svc, scoringDraft())
	e2 := createExam(t, svc, scoringDraft())

	a1 := startAttempt(t, svc, 10, e1.ID)
	a2 := startAttempt(t, svc, 10, e2.ID)
	startAttempt(t, svc, 11, e1.ID)

	all, err := svc.GetUserAttempts(ctx, 10, nil)
	if err != nil {
		t.Fatalf("GetUserAttempts: %v", err)
	}
	if len(all) != 2 || all[0].ID != a2.ID || all[1].ID != a1.ID {
		t.Errorf("expected newest first, got %+v", all)
	}

	filtered, err := svc.GetUserAttempts(ctx, 10, &e1.ID)
	if err != nil {
		t.Fatalf("GetUserAttempts: %v", err)
	}
	if len(filtered) != 1 || filtered[0].ID != a1.ID {
		t.Errorf("unexpected filtered list %+v", filtered)
	}

	none, err := svc.GetUserAttempts(ctx, 99, nil)
	if err != nil || none == nil || len(none) != 0 {
		t.Errorf("expected empty non-nil list, got %v, %v", none, err)
	}
}

func TestExamAttempts(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	exam := createExam(t, svc, scoringDraft())

	done := startAttempt(t, svc, 10, exam.ID)
	startAttempt(t, svc, 11, exam.ID)
	if _, err := svc.SubmitAttempt(ctx, done.ID, 10); err != nil {
		t.Fatalf("SubmitAttempt: %v", err)
	}

	view, err := svc.ExamAttempts(ctx, exam.ID, 1)
	if err != nil {
		t.Fatalf("ExamAttempts: %v", err)
	}
	if view.TotalAttempts != 2 || view.CompletedAttempts != 1 || view.InProgressAttempts != 1 {
		t.Errorf("unexpected counts %+v", view)
	}
	if view.Attempts[0].ID != done.ID {
		t.Error("completed attempts should come first")
	}
	if view.Exam.ID != exam.ID || view.Exam.Title != "Geography" {
		t.Errorf("unexpected exam summary %+v", view.Exam)
	}

	if _, err := svc.ExamAttempts(ctx, exam.ID, 2); !errors.Is(err, model.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
	if _, err := svc.ExamAttempts(ctx, 999, 1); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestImportExamSkipsDuplicates(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	id, skipped, err := svc.ImportExam(ctx, 1, "sha-1", "geo.yaml", scoringDraft())
	if err != nil || skipped || id == 0 {
		t.Fatalf("first import = %d, %v, %v", id, skipped, err)
	}
	id2, skipped, err := svc.ImportExam(ctx, 1, "sha-1", "geo-copy.yaml", scoringDraft())
	if err != nil || !skipped || id2 != 0 {
		t.Fatalf("second import = %d, %v, %v; want skipped", id2, skipped, err)
	}
	exams, _ := svc.ListExams(ctx, nil)
	if len(exams) != 1 {
		t.Errorf("exams = %d, want 1", len(exams))
	}
}

func TestGenerateDraft(t *testing.T) {
	ctx := context.Background()
	req := model.GenerateRequest{Title: "Geo", NumQuestions: 3}

	svc, _ := newTestService(t, nil)
	if _, err := svc.GenerateDraft(ctx, req); !errors.Is(err, model.ErrExternalService) {
		t.Errorf("expected ErrExternalService without a generator, got %v", err)
	}
	if _, err := svc.GenerateDraft(ctx, model.GenerateRequest{Title: "Geo"}); !errors.Is(err, model.ErrValidation) {
		t.Errorf("expected ErrValidation for zero questions, got %v", err)
	}

	d := scoringDraft()
	svc, _ = newTestService(t, nil, WithGenerator(fakeGenerator{draft: &d}))
	got, err := svc.GenerateDraft(ctx, req)
	if err != nil {
		t.Fatalf("GenerateDraft: %v", err)
	}
	if got.Title != "Geography" {
		t.Errorf("unexpected draft %+v", got)
	}
}

type mapCache struct {
	mu    sync.Mutex
	exams map[int64]*model.Exam
	hits  int
}

func (c *mapCache) Get(_ context.Context, id int64) (*model.Exam, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.exams[id]
	if e != nil {
		c.hits++
	}
	return e, nil
}

func (c *mapCache) Set(_ context.Context, e *model.Exam) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exams[e.ID] = e
	return nil
}

func TestGetExamUsesCache(t *testing.T) {
	mc := &mapCache{exams: map[int64]*model.Exam{}}
	svc, _ := newTestService(t, nil, WithCache(mc))
	ctx := context.Background()
	exam := createExam(t, svc, scoringDraft())

	got, err := svc.GetExam(ctx, exam.ID)
	if err != nil {
		t.Fatalf("GetExam: %v", err)
	}
	if got.Title != "Geography" || mc.hits != 1 {
		t.Errorf("expected cache hit, hits = %d", mc.hits)
	}
}

func TestListExams(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	empty, err := svc.ListExams(ctx, nil)
	if err != nil {
		t.Fatalf("ListExams: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil list, got %v", empty)
	}

	first := createExam(t, svc, scoringDraft())
	d := scoringDraft()
	d.Title = "Algebra"
	d.CourseID = ptr(int64(5))
	second := createExam(t, svc, d)

	all, err := svc.ListExams(ctx, nil)
	if err != nil {
		t.Fatalf("ListExams: %v", err)
	}
	if len(all) != 2 || all[0].ID != second.ID || all[1].ID != first.ID {
		t.Errorf("expected newest first [%d %d], got %+v", second.ID, first.ID, all)
	}

	byCourse, err := svc.ListExams(ctx, ptr(int64(5)))
	if err != nil {
		t.Fatalf("ListExams(course): %v", err)
	}
	if len(byCourse) != 1 || byCourse[0].Title != "Algebra" {
		t.Errorf("course filter returned %+v", byCourse)
	}
}
