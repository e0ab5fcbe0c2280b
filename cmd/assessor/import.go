package main

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pavelanni/assessor/internal/exam"
	"github.com/pavelanni/assessor/internal/grading"
	"github.com/pavelanni/assessor/internal/model"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Import exam drafts from JSON or YAML files",
		Long: "Import exam drafts from JSON or YAML files. A file whose contents were " +
			"imported before is skipped, so the command is safe to re-run.",
		Args: cobra.MinimumNArgs(1),
		RunE: runImport,
	}
	f := cmd.Flags()
	addStoreFlags(f)
	f.Int64("teacher-id", 0, "Owner of the imported exams (required)")
	addLogFlags(f)

	_ = cmd.MarkFlagRequired("teacher-id")

	return cmd
}

func runImport(cmd *cobra.Command, paths []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	svc := exam.New(db, grading.NewEngine(nil, 0, slog.Default()), exam.WithLogger(slog.Default()))
	ownerID := v.GetInt64("teacher-id")

	var imported, skipped int
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		draft, err := decodeDraft(path, data)
		if err != nil {
			return err
		}

		examID, dup, err := svc.ImportExam(cmd.Context(), ownerID, sha256sum(data), filepath.Base(path), draft)
		if err != nil {
			return fmt.Errorf("import %s: %w", path, err)
		}
		if dup {
			slog.Info("exam file already imported, skipping", "path", path)
			skipped++
			continue
		}
		slog.Info("imported exam", "path", path, "exam_id", examID, "title", draft.Title)
		imported++
	}

	slog.Info("import finished", "imported", imported, "skipped", skipped)
	return nil
}

// decodeDraft parses a draft as YAML for .yaml/.yml files and as JSON otherwise.
// Unknown fields are rejected.
func decodeDraft(path string, data []byte) (model.ExamDraft, error) {
	var draft model.ExamDraft
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&draft); err != nil {
			return draft, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&draft); err != nil {
			return draft, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return draft, nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
