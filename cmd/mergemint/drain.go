package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/mergemint/internal/application"
	"github.com/ericfisherdev/mergemint/internal/domain/model"
)

// errDrainUnsuccessful makes the process exit non-zero after the report was printed.
var errDrainUnsuccessful = errors.New("drain did not process a PR successfully")

// drainOutput is the JSON report printed by the drain command.
type drainOutput struct {
	RunID             string   `json:"run_id"`
	Outcome           string   `json:"outcome"`
	PR                *drainPR `json:"pr,omitempty"`
	Score             int      `json:"score,omitempty"`
	Error             string   `json:"error,omitempty"`
	RemainingEstimate int      `json:"remaining_estimate,omitempty"`
	DurationMS        int64    `json:"duration_ms"`
}

type drainPR struct {
	ID     int64  `json:"id"`
	Number int    `json:"number"`
	Repo   string `json:"repo"`
}

func newDrainCmd() *cobra.Command {
	var (
		postComment bool
		local       bool
	)

	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Run one drain invocation and print its report as JSON",
		Long: `drain resolves the backlog, dispatches at most one merged PR for evaluation
and prints the outcome. It exits 1 when the dispatch failed or timed out, or
when the backlog could not be read.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cfg, appOptions{localEvaluation: local})
			if err != nil {
				return err
			}
			defer a.close()

			report, err := a.drain.Drain(cmd.Context(), application.DrainOptions{PostComment: postComment})
			if err != nil {
				return err
			}

			if err := printReport(cmd, report); err != nil {
				return err
			}

			switch report.Outcome {
			case model.OutcomeDispatchFailed, model.OutcomeDispatchTimeout:
				return errDrainUnsuccessful
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&postComment, "post-comment", false, "post the evaluation as a comment on the PR")
	cmd.Flags().BoolVar(&local, "local", false, "evaluate in-process instead of calling MERGEMINT_SITE_URL")
	return cmd
}

func printReport(cmd *cobra.Command, report model.DrainReport) error {
	out := drainOutput{
		RunID:             report.RunID,
		Outcome:           string(report.Outcome),
		Score:             report.Score,
		Error:             report.Error,
		RemainingEstimate: report.RemainingEstimate,
		DurationMS:        report.Duration.Milliseconds(),
	}
	if report.PR != nil {
		out.PR = &drainPR{ID: report.PR.ID, Number: report.PR.Number, Repo: report.PR.Repo}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode drain report: %w", err)
	}
	return nil
}
