package driven

import (
	"context"
	"fmt"

	"github.com/ericfisherdev/mergemint/internal/domain/model"
)

// EvaluationError is returned by Evaluator implementations when the evaluation
// endpoint answered with a non-success status.
type EvaluationError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluation failed with status %d: %s", e.StatusCode, e.Body)
}

// Evaluator scores one merged PR through the external evaluation endpoint.
// Implementations must honor ctx cancellation and must not retry.
type Evaluator interface {
	Evaluate(ctx context.Context, req model.EvaluationRequest) (model.EvaluationResult, error)
}

// PRScorer classifies a PR's severity and component, typically via an LLM.
// The answer must use names from guide.
type PRScorer interface {
	Classify(ctx context.Context, req model.EvaluationRequest, guide ScoringGuide) (model.Classification, error)
}

// ScoringGuide is the rule vocabulary handed to a PRScorer.
type ScoringGuide struct {
	Severities []GuideEntry
	Components []GuideEntry
}

// GuideEntry names one severity or component with its description.
type GuideEntry struct {
	Name        string
	Description string
}
