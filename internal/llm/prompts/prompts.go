package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/assessor/internal/model"
)

//go:embed templates/*.txt
var templateFS embed.FS

var (
	studentAnswerRegex      = regexp.MustCompile(`(?i)</?\s*student-answer\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

// PromptVariant represents a grading prompt variant.
type PromptVariant string

const (
	// PromptStrict demands every key element of the reference answer.
	PromptStrict PromptVariant = "strict"
	// PromptStandard is the default grading variant.
	PromptStandard PromptVariant = "standard"
	// PromptLenient accepts answers that capture the main idea.
	PromptLenient PromptVariant = "lenient"
)

// Accuracy at or above which each variant counts an answer as correct.
var thresholds = map[PromptVariant]int{
	PromptStrict:   80,
	PromptStandard: 70,
	PromptLenient:  60,
}

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	_, ok := thresholds[PromptVariant(v)]
	return ok
}

// Threshold returns the accuracy cut-off of a variant.
func Threshold(v PromptVariant) int {
	return thresholds[v]
}

// EvalData holds template data for short answer evaluation prompts.
type EvalData struct {
	QuestionText    string
	ReferenceAnswer string
	Answer          string
	Threshold       int
}

// Set is a parsed collection of prompt templates.
type Set struct {
	eval     map[PromptVariant]*template.Template
	generate *template.Template
}

// Default loads the templates embedded in the binary.
func Default() (*Set, error) {
	return Load(templateFS)
}

// Load parses prompt templates from fsys. It expects templates/eval_<variant>.txt
// for every variant and templates/generate.txt.
func Load(fsys fs.FS) (*Set, error) {
	s := &Set{eval: make(map[PromptVariant]*template.Template)}
	for v := range thresholds {
		tmpl, err := parseFile(fsys, "templates/eval_"+string(v)+".txt")
		if err != nil {
			return nil, err
		}
		s.eval[v] = tmpl
	}
	tmpl, err := parseFile(fsys, "templates/generate.txt")
	if err != nil {
		return nil, err
	}
	s.generate = tmpl
	return s, nil
}

func parseFile(fsys fs.FS, name string) (*template.Template, error) {
	content, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("read prompt file %s: %w", name, err)
	}
	tmpl, err := template.New(name).Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("parse prompt template %s: %w", name, err)
	}
	return tmpl, nil
}

// BuildEvalPrompt builds a short answer evaluation prompt using the specified variant.
func (s *Set) BuildEvalPrompt(variant PromptVariant, question, reference, answer string) (string, error) {
	tmpl, ok := s.eval[variant]
	if !ok {
		return "", fmt.Errorf("invalid prompt variant: %s", variant)
	}
	data := EvalData{
		QuestionText:    question,
		ReferenceAnswer: reference,
		Answer:          sanitizeAnswer(answer),
		Threshold:       thresholds[variant],
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// BuildGeneratePrompt builds an exam generation prompt.
func (s *Set) BuildGeneratePrompt(req model.GenerateRequest) (string, error) {
	var buf bytes.Buffer
	if err := s.generate.Execute(&buf, req); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func sanitizeAnswer(answer string) string {
	answer = studentAnswerRegex.ReplaceAllString(answer, "")
	answer = systemInstructionsRegex.ReplaceAllString(answer, "")
	answer = strings.TrimSpace(answer)

	if answer == "" {
		return "[No answer provided]"
	}

	if utf8.RuneCountInString(answer) > 10000 {
		runes := []rune(answer)
		runes = runes[:10000]
		answer = string(runes) + "\n\n[Answer truncated due to length]"
	}

	return answer
}
