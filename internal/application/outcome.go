package application

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/ericfisherdev/mergemint/internal/domain/model"
)

// MaxDiagnosticLength caps the error text carried in drain reports.
const MaxDiagnosticLength = 200

// TimeoutMessage is the diagnostic reported for a dispatch that hit its deadline.
func TimeoutMessage(timeout time.Duration) string {
	return fmt.Sprintf("Request timed out after %ds", int(timeout/time.Second))
}

// Classify maps a backlog resolution and, if a dispatch happened, its result
// onto exactly one drain outcome.
func Classify(resolution BacklogResolution, dispatch *DispatchResult, timeout time.Duration) model.DrainReport {
	switch resolution.State {
	case BacklogEmpty:
		return model.DrainReport{Outcome: model.OutcomeNoBacklog}
	case BacklogDrained:
		return model.DrainReport{Outcome: model.OutcomeQueueDrained}
	}

	item := resolution.Item
	report := model.DrainReport{
		PR: &model.PRRef{ID: item.ID, Number: item.Number, Repo: item.RepoFullName},
	}

	if dispatch == nil {
		report.Outcome = model.OutcomeDispatchFailed
		report.Error = "no dispatch was attempted"
		return report
	}

	switch dispatch.Kind {
	case DispatchSucceeded:
		report.Outcome = model.OutcomeProcessed
		report.Score = dispatch.Score
		report.RemainingEstimate = resolution.Remaining
	case DispatchTimedOut:
		report.Outcome = model.OutcomeDispatchTimeout
		report.Error = TimeoutMessage(timeout)
	default:
		report.Outcome = model.OutcomeDispatchFailed
		report.Error = Truncate(errorText(dispatch.Err), MaxDiagnosticLength)
	}

	return report
}

// Truncate shortens s to at most n characters without splitting a rune.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}

	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

func errorText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
