package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pavelanni/assessor/internal/cache"
	"github.com/pavelanni/assessor/internal/exam"
	"github.com/pavelanni/assessor/internal/grading"
	"github.com/pavelanni/assessor/internal/handler"
	appI18n "github.com/pavelanni/assessor/internal/i18n"
	"github.com/pavelanni/assessor/internal/llm"
	"github.com/pavelanni/assessor/internal/llm/prompts"
	"github.com/pavelanni/assessor/internal/model"
	"github.com/pavelanni/assessor/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "assessor",
		Short: "Exam authoring, attempts and AI-assisted grading",
	}

	serve := serveCmd()
	root.AddCommand(serve, importCmd(), exportCmd(), tokenCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `assessor --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addStoreFlags(f *pflag.FlagSet) {
	f.String("db-driver", store.DriverSQLite, "Database driver (sqlite, pgx)")
	f.String("db", "assessor.db", "SQLite database path or PostgreSQL DSN")
}

func addLogFlags(f *pflag.FlagSet) {
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	addStoreFlags(f)
	f.String("redis-url", "", "Redis URL for the exam cache (empty disables caching)")
	f.Duration("cache-ttl", cache.DefaultTTL, "Exam cache entry lifetime")
	f.String("ai-provider", llm.ProviderNone, "AI provider for grading and drafts (openai, gemini, none)")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for the OpenAI-compatible endpoint")
	f.String("llm-model", "llama3.2", "OpenAI-compatible model name")
	f.String("gemini-key", "", "Gemini API key")
	f.String("gemini-model", "gemini-1.5-flash", "Gemini model name")
	f.Duration("ai-timeout", grading.DefaultTimeout, "Timeout for one short-answer evaluation")
	f.String("prompt-variant", string(prompts.PromptStandard), "Grading prompt variant (strict, standard, lenient)")
	f.String("jwt-secret", "", "HS256 secret used to verify bearer tokens (or set ASSESSOR_JWT_SECRET)")
	f.StringP("lang", "l", "en", "Default language for API messages (en, ru, vi)")
	addLogFlags(f)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all attempts of one exam as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	addStoreFlags(f)
	f.Int64("exam-id", 0, "Exam to export (required)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(f)

	_ = cmd.MarkFlagRequired("exam-id")

	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for development",
		RunE:  runToken,
	}
	f := cmd.Flags()
	f.Int64("user-id", 0, "User ID placed in the token subject (required)")
	f.String("role", string(model.UserRoleStudent), "Role claim (student, teacher, admin)")
	f.Duration("ttl", 24*time.Hour, "Token lifetime (0 = no expiry)")
	f.String("jwt-secret", "", "HS256 signing secret (or set ASSESSOR_JWT_SECRET)")
	addLogFlags(f)

	_ = cmd.MarkFlagRequired("user-id")

	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("ASSESSOR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("assessor")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/assessor")
	v.AddConfigPath("/etc/assessor")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func openStore(v *viper.Viper) (*store.Store, error) {
	db, err := store.New(v.GetString("db-driver"), v.GetString("db"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	secret := v.GetString("jwt-secret")
	if secret == "" {
		return errors.New("jwt secret is required: set --jwt-secret flag or ASSESSOR_JWT_SECRET env var")
	}

	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	opts := []exam.Option{exam.WithLogger(slog.Default())}

	if url := v.GetString("redis-url"); url != "" {
		rdb, err := cache.Connect(ctx, url)
		if err != nil {
			return fmt.Errorf("connect exam cache: %w", err)
		}
		defer rdb.Close()
		opts = append(opts, exam.WithCache(cache.NewRedisExamCache(rdb, v.GetDuration("cache-ttl"))))
		slog.Info("exam cache enabled", "ttl", v.GetDuration("cache-ttl"))
	}

	// A nil evaluator makes the engine grade short answers by exact match.
	var evaluator grading.Evaluator
	provider := strings.ToLower(strings.TrimSpace(v.GetString("ai-provider")))
	if provider != "" && provider != llm.ProviderNone {
		client, err := llm.New(ctx, llm.Config{
			Provider:      provider,
			BaseURL:       v.GetString("llm-url"),
			APIKey:        v.GetString("llm-key"),
			Model:         v.GetString("llm-model"),
			GeminiKey:     v.GetString("gemini-key"),
			GeminiModel:   v.GetString("gemini-model"),
			PromptVariant: strings.ToLower(strings.TrimSpace(v.GetString("prompt-variant"))),
		})
		if err != nil {
			return fmt.Errorf("create AI client: %w", err)
		}
		defer client.Close()
		evaluator = client
		opts = append(opts, exam.WithGenerator(client))
		slog.Info("AI provider enabled", "provider", client.Provider(), "prompt_variant", v.GetString("prompt-variant"))
	}

	engine := grading.NewEngine(evaluator, v.GetDuration("ai-timeout"), slog.Default())
	svc := exam.New(db, engine, opts...)

	h, err := handler.New(svc, db, []byte(secret), slog.Default())
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware)
	h.Routes(r)

	addr := v.GetString("addr")
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	slog.Info("starting server",
		"addr", addr,
		"db_driver", v.GetString("db-driver"),
		"ai_provider", provider,
		"ai_timeout", v.GetDuration("ai-timeout"),
		"lang", lang,
	)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	export, err := db.ExportExam(cmd.Context(), v.GetInt64("exam-id"))
	if err != nil {
		return fmt.Errorf("export exam: %w", err)
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	_, _ = fmt.Fprintln(w)

	slog.Info("exported exam", "exam_id", export.ExamID, "attempts", len(export.Results))
	return nil
}

func runToken(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	secret := v.GetString("jwt-secret")
	if secret == "" {
		return errors.New("jwt secret is required: set --jwt-secret flag or ASSESSOR_JWT_SECRET env var")
	}
	tok, err := handler.IssueToken([]byte(secret), v.GetInt64("user-id"),
		model.UserRole(v.GetString("role")), v.GetDuration("ttl"))
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
	return err
}
