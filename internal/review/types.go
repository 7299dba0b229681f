package review

import "time"

// Phase is the job's position in the review pipeline.
type Phase string

const (
	PhasePreparing   Phase = "preparing"
	PhaseReviewing   Phase = "reviewing"
	PhaseAggregating Phase = "aggregating"
	PhaseFixing      Phase = "fixing"
	PhaseCompleted   Phase = "completed"
	PhaseFailed      Phase = "failed"
	PhaseCancelled   Phase = "cancelled"
)

// Terminal reports whether no further transition can follow p.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseCompleted, PhaseFailed, PhaseCancelled:
		return true
	}
	return false
}

// Config is the input of one queue run. It is persisted verbatim as
// config.json in the job directory.
type Config struct {
	Workspace        string   `json:"workspace" yaml:"workspace"`
	Prompts          []string `json:"prompts" yaml:"prompts"`
	AggregatePrompt  string   `json:"aggregate_prompt,omitempty" yaml:"aggregate_prompt,omitempty"`
	FixPrompt        string   `json:"fix_prompt,omitempty" yaml:"fix_prompt,omitempty"`
	RunAggregate     bool     `json:"run_aggregate" yaml:"run_aggregate"`
	RunFix           bool     `json:"run_fix" yaml:"run_fix"`
	Model            string   `json:"model,omitempty" yaml:"model,omitempty"`
	FullAuto         bool     `json:"full_auto" yaml:"full_auto"`
	SkipGitRepoCheck bool     `json:"skip_git_repo_check" yaml:"skip_git_repo_check"`
	Ephemeral        bool     `json:"ephemeral" yaml:"ephemeral"`
}

// WorkerStatus tracks one review worker.
type WorkerStatus string

const (
	WorkerPending   WorkerStatus = "pending"
	WorkerRunning   WorkerStatus = "running"
	WorkerCompleted WorkerStatus = "completed"
	WorkerFailed    WorkerStatus = "failed"
	// WorkerSkipped marks a prompt that was never started because the job
	// was cancelled while it waited for a pool slot.
	WorkerSkipped WorkerStatus = "skipped"
	// WorkerCancelled marks a worker stopped by cancellation while running.
	// It is not counted as a failure.
	WorkerCancelled WorkerStatus = "cancelled"
)

// WorkerResult describes one review worker. ID is 1-based and matches the
// prompt's position.
type WorkerResult struct {
	ID         int          `json:"id" yaml:"id"`
	Prompt     string       `json:"prompt" yaml:"prompt"`
	Status     WorkerStatus `json:"status" yaml:"status"`
	OutputPath string       `json:"output_path" yaml:"output_path"`
	StdoutPath string       `json:"stdout_path" yaml:"stdout_path"`
	StderrPath string       `json:"stderr_path" yaml:"stderr_path"`
	Error      string       `json:"error,omitempty" yaml:"error,omitempty"`
}

// Job is the in-memory state of one run. Only the goroutine driving the run
// mutates it.
type Job struct {
	ID            string
	Workspace     string
	Dir           string
	Config        Config
	CreatedAt     time.Time
	Phase         Phase
	Workers       []WorkerResult
	AggregatePath string
	FixPath       string
}

// Counts returns the number of completed and failed workers.
func (j *Job) Counts() (completed, failed int) {
	for _, w := range j.Workers {
		switch w.Status {
		case WorkerCompleted:
			completed++
		case WorkerFailed:
			failed++
		}
	}
	return completed, failed
}

// Result is returned by Queue.Run.
type Result struct {
	JobID          string         `json:"job_id"`
	JobPath        string         `json:"job_path"`
	Phase          Phase          `json:"phase"`
	Workers        []WorkerResult `json:"workers"`
	AggregatePath  string         `json:"aggregate_path,omitempty"`
	FixPath        string         `json:"fix_path,omitempty"`
	CompletedCount int            `json:"completed_count"`
	FailedCount    int            `json:"failed_count"`
}

// SummaryVersion is the schema version written to summary.json.
const SummaryVersion = 1

// Summary is the persisted, recoverable record of a job (summary.json).
type Summary struct {
	Version              int            `json:"version" yaml:"version"`
	JobID                string         `json:"job_id" yaml:"job_id"`
	JobPath              string         `json:"job_path" yaml:"job_path"`
	Phase                Phase          `json:"phase" yaml:"phase"`
	CreatedAt            time.Time      `json:"created_at" yaml:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at" yaml:"updated_at"`
	WorkerCount          int            `json:"worker_count" yaml:"worker_count"`
	CompletedWorkerCount int            `json:"completed_worker_count" yaml:"completed_worker_count"`
	FailedWorkerCount    int            `json:"failed_worker_count" yaml:"failed_worker_count"`
	Workers              []WorkerResult `json:"workers" yaml:"workers"`
	AggregatePath        string         `json:"aggregate_path,omitempty" yaml:"aggregate_path,omitempty"`
	FixPath              string         `json:"fix_path,omitempty" yaml:"fix_path,omitempty"`
	RunAggregate         bool           `json:"run_aggregate" yaml:"run_aggregate"`
	RunFix               bool           `json:"run_fix" yaml:"run_fix"`
	Model                string         `json:"model,omitempty" yaml:"model,omitempty"`
	Error                string         `json:"error,omitempty" yaml:"error,omitempty"`
}

// Summary snapshots the job for persistence.
func (j *Job) Summary(updatedAt time.Time, runErr error) Summary {
	completed, failed := j.Counts()
	workers := make([]WorkerResult, len(j.Workers))
	copy(workers, j.Workers)
	s := Summary{
		Version:              SummaryVersion,
		JobID:                j.ID,
		JobPath:              j.Dir,
		Phase:                j.Phase,
		CreatedAt:            j.CreatedAt,
		UpdatedAt:            updatedAt,
		WorkerCount:          len(j.Workers),
		CompletedWorkerCount: completed,
		FailedWorkerCount:    failed,
		Workers:              workers,
		AggregatePath:        j.AggregatePath,
		FixPath:              j.FixPath,
		RunAggregate:         j.Config.RunAggregate,
		RunFix:               j.Config.RunFix,
		Model:                j.Config.Model,
	}
	if runErr != nil {
		s.Error = runErr.Error()
	}
	return s
}

func (j *Job) result() *Result {
	completed, failed := j.Counts()
	workers := make([]WorkerResult, len(j.Workers))
	copy(workers, j.Workers)
	return &Result{
		JobID:          j.ID,
		JobPath:        j.Dir,
		Phase:          j.Phase,
		Workers:        workers,
		AggregatePath:  j.AggregatePath,
		FixPath:        j.FixPath,
		CompletedCount: completed,
		FailedCount:    failed,
	}
}
