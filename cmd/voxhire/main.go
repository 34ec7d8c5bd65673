package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/voxhire/voxhire/internal/handler"
	appI18n "github.com/voxhire/voxhire/internal/i18n"
	"github.com/voxhire/voxhire/internal/model"
	"github.com/voxhire/voxhire/internal/question"
	"github.com/voxhire/voxhire/internal/report"
	"github.com/voxhire/voxhire/internal/scorer"
	"github.com/voxhire/voxhire/internal/session"
	"github.com/voxhire/voxhire/internal/speech"
	"github.com/voxhire/voxhire/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "voxhire",
		Short: "Voice interview simulator",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd(), simulateCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `voxhire --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP interview server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "voxhire.db", "SQLite database path")
	f.StringSliceP("questions", "q", nil, "Extra question bank JSON files (repeatable)")
	f.String("scorer", "template", "Scoring engine (template, llm)")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.StringP("lang", "l", "en", "Advisory language (en, ru)")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	f.String("admin-password", "", "Initial admin password (or set VOXHIRE_ADMIN_PASSWORD)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export interview results as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "voxhire.db", "SQLite database path")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func simulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a scripted interview locally and print its report",
		RunE:  runSimulate,
	}
	f := cmd.Flags()
	f.String("candidate", "Test Candidate", "Candidate name")
	f.StringSliceP("categories", "c", []string{"behavioral", "technical"}, "Question categories")
	f.IntP("count", "n", 5, "Number of questions")
	f.StringP("difficulty", "d", "", "Difficulty hint (easy, medium, hard)")
	f.Bool("adaptive", false, "Adapt difficulty to the running score")
	f.Uint64("seed", 0, "Random seed (0 = time-based)")
	f.String("answers", "", "JSON file with scripted answers (array of strings)")
	f.StringSliceP("questions", "q", nil, "Extra question bank JSON files (repeatable)")
	f.String("scorer", "template", "Scoring engine (template, llm)")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.String("db", "", "Persist the simulated interview to this SQLite database")
	f.StringP("output", "o", "-", "Report output path (- for stdout)")
	f.String("log-level", "warn", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
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

	v.SetEnvPrefix("VOXHIRE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("voxhire")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/voxhire")
	v.AddConfigPath("/etc/voxhire")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func buildProvider(v *viper.Viper) (*question.Provider, error) {
	p, err := question.NewProvider()
	if err != nil {
		return nil, fmt.Errorf("load embedded question bank: %w", err)
	}
	if extra := v.GetStringSlice("questions"); len(extra) > 0 {
		if err := p.LoadFiles(extra); err != nil {
			return nil, fmt.Errorf("load question files: %w", err)
		}
	}
	return p, nil
}

func buildScorer(v *viper.Viper) (scorer.Scorer, error) {
	switch strings.ToLower(v.GetString("scorer")) {
	case "template", "":
		return scorer.NewTemplateScorer(uint64(time.Now().UnixNano())), nil
	case "llm":
		llm := scorer.NewLLMScorer(
			v.GetString("llm-url"),
			v.GetString("llm-key"),
			v.GetString("llm-model"),
		)
		if err := llm.Ping(context.Background()); err != nil {
			return nil, fmt.Errorf("LLM health check: %w", err)
		}
		slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))
		return llm, nil
	default:
		return nil, fmt.Errorf("unknown scorer %q (want template or llm)", v.GetString("scorer"))
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := seedAdmin(db, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	provider, err := buildProvider(v)
	if err != nil {
		return err
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	sc, err := buildScorer(v)
	if err != nil {
		return err
	}

	h, err := handler.New(handler.Config{
		Store:         db,
		Provider:      provider,
		Scorer:        sc,
		SecureCookies: v.GetBool("secure-cookies"),
	})
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"scorer", v.GetString("scorer"),
		"lang", lang,
	)
	return http.ListenAndServe(addr, r)
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	export, err := db.ExportAll()
	if err != nil {
		return fmt.Errorf("export interviews: %w", err)
	}

	return writeOutput(v.GetString("output"), export)
}

// defaultAnswers are cycled through when no --answers file is given.
var defaultAnswers = []string{
	"In my previous role I worked on a project where we had to deliver under a tight deadline. I coordinated with two other teams, broke the work into weekly milestones, and we shipped on time with all the critical features in place.",
	"I would start by understanding the root cause before proposing a solution. In one case I spent a day profiling the system, found that a single query was responsible for most of the latency, and fixed it with an index and a small cache.",
	"Communication is something I take seriously. When I explain technical topics to non-technical stakeholders I use analogies and concrete outcomes rather than implementation detail, and I always check that the message landed.",
	"That is a good question. I believe the most important thing is to stay curious and keep learning. Last year I picked up a new framework on my own time because I saw our team would need it, and then ran a workshop for my colleagues.",
	"I once disagreed with my manager about a technical direction. I prepared a short document comparing both options with data, we discussed it openly, and we ended up with a hybrid approach that worked well for everyone.",
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	provider, err := buildProvider(v)
	if err != nil {
		return err
	}
	sc, err := buildScorer(v)
	if err != nil {
		return err
	}

	answers := defaultAnswers
	if path := v.GetString("answers"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read answers file: %w", err)
		}
		if err := json.Unmarshal(data, &answers); err != nil {
			return fmt.Errorf("parse answers file: %w", err)
		}
		if len(answers) == 0 {
			return fmt.Errorf("answers file %s is empty", path)
		}
	}

	count := v.GetInt("count")
	script := make([]string, 0, count)
	for i := 0; i < count; i++ {
		script = append(script, answers[i%len(answers)])
	}

	seed := v.GetUint64("seed")
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	flow, err := session.New(session.Config{
		Provider:   provider,
		Scorer:     sc,
		Speaker:    &speech.ScriptedSpeaker{PerWord: time.Millisecond},
		Recorder:   &speech.ScriptedRecorder{Script: script, Delay: time.Millisecond},
		Rand:       rand.New(rand.NewPCG(seed, seed)),
		PromptRate: time.Millisecond,
	})
	if err != nil {
		return err
	}

	var categories []model.Category
	for _, c := range v.GetStringSlice("categories") {
		cat := model.Category(c)
		if !cat.Valid() {
			return fmt.Errorf("unknown category %q", c)
		}
		categories = append(categories, cat)
	}

	if err := flow.Start(v.GetString("candidate"), model.SessionConfig{
		Categories:    categories,
		QuestionCount: count,
		Difficulty:    model.Difficulty(v.GetString("difficulty")),
		Adaptive:      v.GetBool("adaptive"),
	}); err != nil {
		return fmt.Errorf("start interview: %w", err)
	}

	if err := driveFlow(flow); err != nil {
		return err
	}

	iv := flow.Interview()
	if dbPath := v.GetString("db"); dbPath != "" {
		db, err := store.New(dbPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		if err := db.SaveInterview(iv); err != nil {
			return fmt.Errorf("persist interview: %w", err)
		}
		slog.Info("interview persisted", "id", iv.ID, "db", dbPath)
	}

	return writeOutput(v.GetString("output"), report.Build(iv))
}

// driveFlow answers every question of a scripted interview.
func driveFlow(flow *session.Flow) error {
	for {
		switch flow.State() {
		case session.StateCompleted:
			return nil
		case session.StateAwaitingRecording:
			if err := flow.StartRecording(); err != nil {
				return fmt.Errorf("start recording: %w", err)
			}
			if err := waitTranscript(flow); err != nil {
				return err
			}
			if _, err := flow.StopRecording(context.Background()); err != nil {
				return fmt.Errorf("stop recording: %w", err)
			}
		default:
			time.Sleep(2 * time.Millisecond)
		}
	}
}

func waitTranscript(flow *session.Flow) error {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if flow.Transcript() != "" {
			return nil
		}
		time.Sleep(time.Millisecond)
	}
	return fmt.Errorf("no transcript fragments arrived")
}

func writeOutput(outPath string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

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
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)
	return nil
}

func seedAdmin(db *store.Store, password string) error {
	count, err := db.UserCount()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return fmt.Errorf("admin password is required: set --admin-password flag or VOXHIRE_ADMIN_PASSWORD env var")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	_, err = db.CreateUser(model.User{
		Username:     "admin",
		DisplayName:  "Administrator",
		PasswordHash: string(hash),
		Role:         model.UserRoleAdmin,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	slog.Info("seeded default admin user", "username", "admin")
	return nil
}
