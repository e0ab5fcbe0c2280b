// Package grading scores the questions of a submitted attempt.
package grading

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pavelanni/assessor/internal/model"
)

// DefaultTimeout bounds a single remote evaluation.
const DefaultTimeout = 10 * time.Second

// Verdict is a strategy's judgement of one free-text answer.
type Verdict struct {
	IsCorrect bool    `json:"isCorrect"`
	Accuracy  float64 `json:"accuracy"`
	Feedback  string  `json:"feedback"`
}

// Usable reports whether the verdict is within range.
func (v Verdict) Usable() bool {
	return v.Accuracy >= 0 && v.Accuracy <= 100
}

// Evaluator scores a free-text answer against a reference answer.
// Implementations are remote and may fail or be slow.
type Evaluator interface {
	EvaluateShortAnswer(ctx context.Context, question, reference, answer string) (Verdict, error)
}

// Strategy decides whether a short answer is correct.
type Strategy interface {
	Name() string
	Evaluate(ctx context.Context, question, reference, answer string) (Verdict, error)
}

// RemoteStrategy delegates to an Evaluator.
type RemoteStrategy struct {
	Evaluator Evaluator
}

func (RemoteStrategy) Name() string { return "remote" }

func (s RemoteStrategy) Evaluate(ctx context.Context, question, reference, answer string) (Verdict, error) {
	v, err := s.Evaluator.EvaluateShortAnswer(ctx, question, reference, answer)
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", model.ErrExternalService, err)
	}
	if !v.Usable() {
		return Verdict{}, fmt.Errorf("%w: accuracy %v out of range", model.ErrExternalService, v.Accuracy)
	}
	return v, nil
}

// ExactMatchStrategy accepts an answer equal to the reference after trimming,
// ignoring case.
type ExactMatchStrategy struct{}

func (ExactMatchStrategy) Name() string { return "exact" }

func (ExactMatchStrategy) Evaluate(_ context.Context, _, reference, answer string) (Verdict, error) {
	if strings.EqualFold(strings.TrimSpace(answer), strings.TrimSpace(reference)) {
		return Verdict{IsCorrect: true, Accuracy: 100}, nil
	}
	return Verdict{}, nil
}

// Outcome is the grade of one question.
type Outcome struct {
	QuestionID int64
	// AnswerID is zero when the student never answered the question.
	AnswerID  int64
	IsCorrect bool
	Score     float64
	// Feedback is set only when the remote strategy produced the verdict.
	Feedback *model.AIFeedback
}

// Answered reports whether an answer row existed for the question.
func (o Outcome) Answered() bool { return o.AnswerID != 0 }

// Summary aggregates the outcomes of an attempt.
type Summary struct {
	Outcomes   []Outcome
	TotalScore float64
	Correct    int
	Wrong      int
	Unanswered int
}

// Engine grades attempts. The remote strategy is optional; the fallback always runs
// when it is missing or fails.
type Engine struct {
	remote   Strategy
	fallback Strategy
	timeout  time.Duration
	logger   *slog.Logger
}

// NewEngine creates an engine. A nil evaluator grades short answers by exact match only.
func NewEngine(ev Evaluator, timeout time.Duration, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{fallback: ExactMatchStrategy{}, timeout: timeout, logger: logger}
	if ev != nil {
		e.remote = RemoteStrategy{Evaluator: ev}
	}
	return e
}

// Grade scores every question in the given order against the stored answers,
// keyed by question id. It never fails: evaluator problems fall back to exact match.
func (e *Engine) Grade(ctx context.Context, attemptID int64, questions []model.Question, answers map[int64]model.Answer) Summary {
	var sum Summary
	for _, q := range questions {
		ans, ok := answers[q.ID]
		if !ok {
			sum.Outcomes = append(sum.Outcomes, Outcome{QuestionID: q.ID})
			sum.Unanswered++
			continue
		}

		o := Outcome{QuestionID: q.ID, AnswerID: ans.ID}
		switch {
		case q.Type.Objective():
			if ans.SelectedOptionID != nil {
				if opt := q.Option(*ans.SelectedOptionID); opt != nil {
					o.IsCorrect = opt.IsCorrect
				}
			}
		case q.Type == model.QuestionShortAnswer:
			o.IsCorrect, o.Feedback = e.gradeShort(ctx, attemptID, q, ans)
		}
		if o.IsCorrect {
			o.Score = q.Points
			sum.Correct++
		} else {
			sum.Wrong++
		}
		sum.TotalScore += o.Score
		sum.Outcomes = append(sum.Outcomes, o)
	}
	return sum
}

func (e *Engine) gradeShort(ctx context.Context, attemptID int64, q model.Question, ans model.Answer) (bool, *model.AIFeedback) {
	if ans.TextAnswer == nil || strings.TrimSpace(*ans.TextAnswer) == "" ||
		q.CorrectTextAnswer == nil || strings.TrimSpace(*q.CorrectTextAnswer) == "" {
		return false, nil
	}
	text, ref := *ans.TextAnswer, *q.CorrectTextAnswer

	if e.remote != nil {
		rctx := ctx
		if e.timeout > 0 {
			var cancel context.CancelFunc
			rctx, cancel = context.WithTimeout(ctx, e.timeout)
			defer cancel()
		}
		v, err := e.remote.Evaluate(rctx, q.Text, ref, text)
		if err == nil {
			return v.IsCorrect, &model.AIFeedback{Accuracy: v.Accuracy, Feedback: v.Feedback}
		}
		e.logger.Warn("short answer evaluation failed, using exact match",
			"attempt_id", attemptID, "question_id", q.ID, "strategy", e.remote.Name(), "error", err)
	}

	v, _ := e.fallback.Evaluate(ctx, q.Text, ref, text)
	return v.IsCorrect, nil
}
