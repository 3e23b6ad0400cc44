package main

import (
	"context"
	"log/slog"
	"net/http"

	evaluatoradapter "github.com/ericfisherdev/mergemint/internal/adapter/driven/evaluator"
	githubadapter "github.com/ericfisherdev/mergemint/internal/adapter/driven/github"
	"github.com/ericfisherdev/mergemint/internal/adapter/driven/llm"
	sqliteadapter "github.com/ericfisherdev/mergemint/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/mergemint/internal/application"
	"github.com/ericfisherdev/mergemint/internal/config"
	"github.com/ericfisherdev/mergemint/internal/domain/model"
	"github.com/ericfisherdev/mergemint/internal/domain/port/driven"
	"github.com/ericfisherdev/mergemint/internal/metrics"
	"github.com/ericfisherdev/mergemint/internal/rules"
)

// app holds the wired adapters and services shared by the subcommands.
type app struct {
	cfg     *config.Config
	db      *sqliteadapter.DB
	metrics *metrics.Metrics

	prStore         *sqliteadapter.PRRepo
	repoStore       *sqliteadapter.RepoRepo
	evaluationStore *sqliteadapter.EvaluationRepo
	attemptStore    *sqliteadapter.AttemptRepo

	github     *githubadapter.Client // nil without a token
	evaluation *application.EvaluationService
	drain      *application.DrainService
}

// appOptions tweaks the wiring per subcommand.
type appOptions struct {
	// localEvaluation makes the dispatcher call the evaluation service
	// in-process instead of POSTing to the site URL.
	localEvaluation bool
}

// newApp opens the database, applies migrations and wires every service.
func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	slog.Info("database opened", "path", cfg.DBPath)

	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.Info("migrations complete")

	scoringRules, err := rules.Load(cfg.RulesPath)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	a := &app{
		cfg:             cfg,
		db:              db,
		metrics:         metrics.New(),
		prStore:         sqliteadapter.NewPRRepo(db),
		repoStore:       sqliteadapter.NewRepoRepo(db),
		evaluationStore: sqliteadapter.NewEvaluationRepo(db),
		attemptStore:    sqliteadapter.NewAttemptRepo(db),
	}

	var commenter driven.GitHubClient
	if cfg.HasGitHubToken() {
		a.github = githubadapter.NewClient(cfg.GitHubToken)
		commenter = a.github
		slog.Info("github client created")
	} else {
		slog.Warn("MERGEMINT_GITHUB_TOKEN not set, ingest and evaluation comments are disabled")
	}

	if cfg.LLMAPIKey == "" {
		slog.Warn("MERGEMINT_LLM_API_KEY not set, evaluations will fail until it is configured")
	}
	scorer := llm.NewClient(llm.Config{
		Endpoint: cfg.LLMEndpoint,
		APIKey:   cfg.LLMAPIKey,
		Model:    cfg.LLMModel,
	})

	a.evaluation = application.NewEvaluationService(
		a.prStore, a.evaluationStore, scorer, commenter, scoringRules, slog.Default(),
	)

	var evaluator driven.Evaluator
	if opts.localEvaluation {
		evaluator = localEvaluator{svc: a.evaluation}
	} else {
		// The dispatcher owns the deadline, so the HTTP client carries none.
		evaluator = evaluatoradapter.NewClient(cfg.SiteURL, cfg.CronSecret, &http.Client{})
	}

	a.drain = application.NewDrainService(
		a.prStore,
		a.evaluationStore,
		a.attemptStore,
		application.NewDispatcher(evaluator, cfg.DispatchTimeout),
		a.metrics,
		application.DrainConfig{
			PageSize:     cfg.BacklogPageSize,
			Window:       driven.BacklogWindow(cfg.BacklogWindow),
			FetchTimeout: cfg.FetchTimeout,
			MaxAttempts:  cfg.MaxDispatchAttempts,
		},
		slog.Default(),
	)

	return a, nil
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

// localEvaluator adapts the in-process evaluation service to the evaluator
// port used by the dispatcher.
type localEvaluator struct {
	svc *application.EvaluationService
}

func (e localEvaluator) Evaluate(ctx context.Context, req model.EvaluationRequest) (model.EvaluationResult, error) {
	evaluation, err := e.svc.Evaluate(ctx, req)
	if err != nil {
		return model.EvaluationResult{}, err
	}
	return model.EvaluationResult{
		FinalScore: evaluation.FinalScore,
		Eligible:   evaluation.Eligible,
	}, nil
}
