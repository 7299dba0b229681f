package review

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xiaojiou176/quotio-sub003/internal/cliexec"
)

// Sentinel errors for the review package. Using sentinels instead of ad-hoc
// fmt.Errorf allows callers to match with errors.Is for reliable error handling.
var (
	// ErrInvalidWorkspace is returned when the workspace is empty or not a directory.
	ErrInvalidWorkspace = errors.New("workspace does not exist or is not a directory")

	// ErrCLINotInstalled is returned when the review CLI cannot be found.
	ErrCLINotInstalled = errors.New("review CLI is not installed")

	// ErrNoPrompts is returned when every review prompt is blank.
	ErrNoPrompts = errors.New("at least one non-empty review prompt is required")

	// ErrFixRequiresAggregate is returned when a fix is requested without
	// aggregate output to work from.
	ErrFixRequiresAggregate = errors.New("fix stage requires the aggregate stage")

	// ErrEmptyAggregatePrompt is returned when aggregation is requested with a blank prompt.
	ErrEmptyAggregatePrompt = errors.New("aggregate prompt must not be empty")

	// ErrEmptyFixPrompt is returned when a fix is requested with a blank prompt.
	ErrEmptyFixPrompt = errors.New("fix prompt must not be empty")

	// ErrCancelled is returned when the run's context is cancelled.
	ErrCancelled = errors.New("review queue cancelled")

	// ErrAllWorkersFailed is returned when no review worker succeeded.
	ErrAllWorkersFailed = errors.New("all review workers failed")

	// ErrEmptyOutput is returned when a stage succeeded but left nothing to
	// record, not even raw output.
	ErrEmptyOutput = errors.New("stage produced no output")

	// ErrTimeoutOrder is returned when stage timeouts do not increase from
	// worker to aggregate to fix.
	ErrTimeoutOrder = errors.New("stage timeouts must increase: worker < aggregate < fix")
)

// Stage names a single CLI invocation kind in the pipeline.
type Stage string

const (
	StageAggregate Stage = "aggregate"
	StageFix       Stage = "fix"
)

// ExecutionError reports a failed aggregate or fix invocation. Its message
// carries the combined stdout and stderr of the CLI.
type ExecutionError struct {
	Stage  Stage
	Result cliexec.ExecutionResult
}

func (e *ExecutionError) Error() string {
	msg := fmt.Sprintf("%s stage failed: %s", e.Stage, describeOutcome(e.Result))
	if out := e.Result.CombinedOutput(); out != "" {
		msg += "\n" + out
	}
	return msg
}

func describeOutcome(res cliexec.ExecutionResult) string {
	switch res.Outcome {
	case cliexec.OutcomeTimedOut:
		return "timed out"
	case cliexec.OutcomeCancelled:
		return "cancelled"
	case cliexec.OutcomeLaunchFailed:
		return "could not launch CLI"
	}
	return fmt.Sprintf("exit code %d", res.ExitCode)
}

// allWorkersFailed builds an ErrAllWorkersFailed error listing each reason.
func allWorkersFailed(workers []WorkerResult) error {
	var b strings.Builder
	for _, w := range workers {
		reason := w.Error
		if reason == "" {
			reason = string(w.Status)
		}
		fmt.Fprintf(&b, "\n- worker %d: %s", w.ID, reason)
	}
	return fmt.Errorf("%w:%s", ErrAllWorkersFailed, b.String())
}
