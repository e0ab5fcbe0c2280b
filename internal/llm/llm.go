package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/assessor/internal/grading"
	"github.com/pavelanni/assessor/internal/llm/prompts"
	"github.com/pavelanni/assessor/internal/model"
)

// Provider names accepted by the ai-provider setting.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderNone   = "none"
)

const evalSystemPrompt = "You are an exam grader. Respond only with JSON."

// provider sends one prompt to a model and returns its raw text reply.
type provider interface {
	name() string
	complete(ctx context.Context, system, prompt string, temperature float32) (string, error)
	close() error
}

// Client evaluates short answers and drafts exams through an AI provider.
type Client struct {
	p       provider
	prompts *prompts.Set
	variant prompts.PromptVariant
}

// Config selects and configures the provider.
type Config struct {
	Provider      string
	BaseURL       string
	APIKey        string
	Model         string
	GeminiKey     string
	GeminiModel   string
	PromptVariant string
}

// New creates a client for the configured provider.
func New(ctx context.Context, cfg Config) (*Client, error) {
	variant := prompts.PromptVariant(cfg.PromptVariant)
	if variant == "" {
		variant = prompts.PromptStandard
	}
	if !prompts.IsValidVariant(string(variant)) {
		return nil, fmt.Errorf("invalid prompt variant %q", cfg.PromptVariant)
	}

	var (
		p   provider
		err error
	)
	switch cfg.Provider {
	case ProviderOpenAI:
		p = newOpenAIProvider(cfg.BaseURL, cfg.APIKey, cfg.Model)
	case ProviderGemini:
		p, err = newGeminiProvider(ctx, cfg.GeminiKey, cfg.GeminiModel)
	default:
		return nil, fmt.Errorf("unsupported AI provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return newClient(p, variant)
}

func newClient(p provider, variant prompts.PromptVariant) (*Client, error) {
	set, err := prompts.Default()
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	return &Client{p: p, prompts: set, variant: variant}, nil
}

// Provider returns the name of the backing provider.
func (c *Client) Provider() string { return c.p.name() }

// Close releases provider resources.
func (c *Client) Close() error { return c.p.close() }

// EvaluateShortAnswer asks the model whether answer matches reference.
func (c *Client) EvaluateShortAnswer(ctx context.Context, question, reference, answer string) (grading.Verdict, error) {
	prompt, err := c.prompts.BuildEvalPrompt(c.variant, question, reference, answer)
	if err != nil {
		return grading.Verdict{}, fmt.Errorf("build prompt: %w", err)
	}

	raw, err := c.p.complete(ctx, evalSystemPrompt, prompt, 0.1)
	if err != nil {
		return grading.Verdict{}, fmt.Errorf("%s API call: %w", c.p.name(), err)
	}
	slog.Debug("LLM evaluation response", "provider", c.p.name(), "raw", raw)

	var reply evalReply
	if err := json.Unmarshal([]byte(stripCodeFences(raw)), &reply); err != nil {
		return grading.Verdict{}, fmt.Errorf("%w: parse evaluation response: %v (raw: %s)", model.ErrExternalService, err, raw)
	}
	return reply.verdict(prompts.Threshold(c.variant))
}

// evalReply is the model's evaluation JSON. Pointer fields tell a missing value from a zero.
type evalReply struct {
	IsCorrect *bool    `json:"isCorrect"`
	Accuracy  *float64 `json:"accuracy"`
	Feedback  string   `json:"feedback"`
}

// verdict checks the reply is complete and agrees with the variant's threshold.
func (r evalReply) verdict(threshold int) (grading.Verdict, error) {
	if r.IsCorrect == nil || r.Accuracy == nil {
		return grading.Verdict{}, fmt.Errorf("%w: evaluation response lacks isCorrect or accuracy", model.ErrExternalService)
	}
	v := grading.Verdict{IsCorrect: *r.IsCorrect, Accuracy: *r.Accuracy, Feedback: r.Feedback}
	if !v.Usable() {
		return grading.Verdict{}, fmt.Errorf("%w: accuracy %v out of range", model.ErrExternalService, v.Accuracy)
	}
	if v.IsCorrect != (v.Accuracy >= float64(threshold)) {
		return grading.Verdict{}, fmt.Errorf("%w: isCorrect=%t contradicts accuracy %v (threshold %d)",
			model.ErrExternalService, v.IsCorrect, v.Accuracy, threshold)
	}
	return v, nil
}

// GenerateExamDraft asks the model for an exam draft and validates it.
// The draft is not persisted.
func (c *Client) GenerateExamDraft(ctx context.Context, req model.GenerateRequest) (*model.ExamDraft, error) {
	prompt, err := c.prompts.BuildGeneratePrompt(req)
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}

	raw, err := c.p.complete(ctx, "You write exams. Respond only with JSON.", prompt, 0.7)
	if err != nil {
		return nil, fmt.Errorf("%w: %s API call: %v", model.ErrExternalService, c.p.name(), err)
	}

	var draft model.ExamDraft
	if err := json.Unmarshal([]byte(stripCodeFences(raw)), &draft); err != nil {
		return nil, fmt.Errorf("%w: parse generated exam: %v", model.ErrExternalService, err)
	}
	if draft.Title == "" {
		draft.Title = req.Title
	}
	if draft.Subject == nil && req.Subject != "" {
		subject := req.Subject
		draft.Subject = &subject
	}
	if err := draft.Validate(); err != nil {
		return nil, fmt.Errorf("%w: generated exam is invalid: %v", model.ErrExternalService, err)
	}
	return &draft, nil
}

// stripCodeFences removes a surrounding ```json ... ``` block if the model added one.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
