package cliexec

import "strings"

// Exit codes reported for outcomes where the child did not exit on its own.
// They follow the shell conventions used by timeout(1) and SIGINT.
const (
	ExitCodeTimeout      = 124
	ExitCodeLaunchFailed = 127
	ExitCodeCancelled    = 130
)

// Outcome classifies how an execution ended. Timeout, cancellation and a
// plain non-zero exit are never conflated.
type Outcome string

const (
	OutcomeExited       Outcome = "exited"
	OutcomeTimedOut     Outcome = "timed_out"
	OutcomeCancelled    Outcome = "cancelled"
	OutcomeLaunchFailed Outcome = "launch_failed"
)

// ExecutionResult is the structured result of running an external binary.
type ExecutionResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Success  bool
	Outcome  Outcome
}

// TimedOut reports whether the process was killed because it exceeded its timeout.
func (r ExecutionResult) TimedOut() bool { return r.Outcome == OutcomeTimedOut }

// Cancelled reports whether the process was stopped by cooperative cancellation.
func (r ExecutionResult) Cancelled() bool { return r.Outcome == OutcomeCancelled }

// CombinedOutput joins stdout and stderr for diagnostics, skipping empty streams.
func (r ExecutionResult) CombinedOutput() string {
	var parts []string
	if s := strings.TrimSpace(r.Stdout); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(r.Stderr); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, "\n")
}

func launchFailure(msg string) ExecutionResult {
	return ExecutionResult{
		Stderr:   msg,
		ExitCode: ExitCodeLaunchFailed,
		Outcome:  OutcomeLaunchFailed,
	}
}
