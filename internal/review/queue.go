// Package review runs the review queue: N review sessions of an external AI
// CLI under a bounded pool, an optional aggregate session merging their
// findings, and an optional fix session applying them. Every job lives in
// its own directory under <workspace>/.quotio/review-queue and always ends
// with a summary.json.
package review

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xiaojiou176/quotio-sub003/internal/cliexec"
	"github.com/xiaojiou176/quotio-sub003/internal/lastmsg"
	"github.com/xiaojiou176/quotio-sub003/internal/worker"
)

// Defaults for Options.
const (
	DefaultCLICommand       = "codex"
	DefaultMaxWorkers       = 8
	DefaultWorkerTimeout    = 30 * time.Minute
	DefaultAggregateTimeout = 45 * time.Minute
	DefaultFixTimeout       = 60 * time.Minute
)

// maxWorkerErrorLen bounds the CLI output kept in a worker's error text.
const maxWorkerErrorLen = 4000

// Executor runs the review CLI. *cliexec.Runner satisfies it.
type Executor interface {
	FindBinary(name string) (string, bool)
	ExecuteWithInput(ctx context.Context, name string, args []string, input, dir string, timeout time.Duration) cliexec.ExecutionResult
}

// Options tune a Queue. Zero values select the defaults.
type Options struct {
	CLICommand       string
	MaxWorkers       int
	WorkerTimeout    time.Duration
	AggregateTimeout time.Duration
	FixTimeout       time.Duration
	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
	// Logf receives warnings such as failed artifact writes. Nil discards them.
	Logf func(format string, args ...any)
}

func (o Options) withDefaults() Options {
	if strings.TrimSpace(o.CLICommand) == "" {
		o.CLICommand = DefaultCLICommand
	}
	if o.MaxWorkers <= 0 {
		o.MaxWorkers = DefaultMaxWorkers
	}
	if o.WorkerTimeout <= 0 {
		o.WorkerTimeout = DefaultWorkerTimeout
	}
	if o.AggregateTimeout <= 0 {
		o.AggregateTimeout = DefaultAggregateTimeout
	}
	if o.FixTimeout <= 0 {
		o.FixTimeout = DefaultFixTimeout
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logf == nil {
		o.Logf = func(string, ...any) {}
	}
	return o
}

// Queue orchestrates review jobs. A Queue holds no per-job state and may run
// several jobs concurrently.
type Queue struct {
	exec Executor
	opts Options
}

// New returns a Queue that runs the CLI through exec.
func New(exec Executor, opts Options) *Queue {
	return &Queue{exec: exec, opts: opts.withDefaults()}
}

// Options returns the effective options, defaults applied.
func (q *Queue) Options() Options { return q.opts }

// Validate checks cfg without side effects. It returns the first violated
// precondition as one of the package's sentinel errors.
func (q *Queue) Validate(cfg Config) error {
	ws := strings.TrimSpace(cfg.Workspace)
	if ws == "" {
		return ErrInvalidWorkspace
	}
	if info, err := os.Stat(ws); err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrInvalidWorkspace, ws)
	}
	if _, ok := q.exec.FindBinary(q.opts.CLICommand); !ok {
		return fmt.Errorf("%w: %s", ErrCLINotInstalled, q.opts.CLICommand)
	}
	if len(normalizePrompts(cfg.Prompts)) == 0 {
		return ErrNoPrompts
	}
	if cfg.RunFix && !cfg.RunAggregate {
		return ErrFixRequiresAggregate
	}
	if cfg.RunAggregate && strings.TrimSpace(cfg.AggregatePrompt) == "" {
		return ErrEmptyAggregatePrompt
	}
	if cfg.RunFix && strings.TrimSpace(cfg.FixPrompt) == "" {
		return ErrEmptyFixPrompt
	}
	return CheckTimeoutOrder(q.opts.WorkerTimeout, q.opts.AggregateTimeout, q.opts.FixTimeout)
}

// CheckTimeoutOrder returns ErrTimeoutOrder unless worker < aggregate < fix.
func CheckTimeoutOrder(worker, aggregate, fix time.Duration) error {
	if worker < aggregate && aggregate < fix {
		return nil
	}
	return fmt.Errorf("%w (worker %s, aggregate %s, fix %s)", ErrTimeoutOrder, worker, aggregate, fix)
}

// Run executes one job. Precondition failures return before anything is
// written. Once the job directory exists, the returned Result describes the
// job even when err is non-nil, and summary.json has been written.
//
// Cancelling ctx stops admitting workers, signals running CLI processes and
// ends the job with ErrCancelled.
func (q *Queue) Run(ctx context.Context, cfg Config, sink EventSink) (*Result, error) {
	if err := q.Validate(cfg); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = discardSink{}
	}
	cfg.Workspace = filepath.Clean(cfg.Workspace)
	cfg.Prompts = normalizePrompts(cfg.Prompts)

	job, err := q.prepare(cfg)
	if err != nil {
		return nil, err
	}
	r := &run{q: q, job: job, sink: sink}
	r.setPhase(PhasePreparing, fmt.Sprintf("job created with %d prompt(s), aggregate=%t fix=%t", len(cfg.Prompts), cfg.RunAggregate, cfg.RunFix))

	err = r.execute(ctx)
	return job.result(), err
}

// prepare creates the job directory exclusively and persists config.json.
func (q *Queue) prepare(cfg Config) (*Job, error) {
	root := JobsDir(cfg.Workspace)
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create job cache: %w", err)
	}

	now := q.opts.Now()
	var id, dir string
	for attempt := 0; ; attempt++ {
		id = NewJobID(now)
		dir = filepath.Join(root, id)
		err := os.Mkdir(dir, 0755)
		if err == nil {
			break
		}
		if !errors.Is(err, os.ErrExist) || attempt >= 2 {
			return nil, fmt.Errorf("create job directory: %w", err)
		}
	}

	if err := writeJSONAtomic(filepath.Join(dir, ConfigFile), cfg); err != nil {
		q.opts.Logf("Warning: could not write %s: %v", ConfigFile, err)
	}

	workers := make([]WorkerResult, len(cfg.Prompts))
	for i, p := range cfg.Prompts {
		n := i + 1
		workers[i] = WorkerResult{
			ID:         n,
			Prompt:     p,
			Status:     WorkerPending,
			OutputPath: filepath.Join(dir, WorkerOutputFile(n)),
			StdoutPath: filepath.Join(dir, WorkerStdoutFile(n)),
			StderrPath: filepath.Join(dir, WorkerStderrFile(n)),
		}
	}
	return &Job{
		ID:        id,
		Workspace: cfg.Workspace,
		Dir:       dir,
		Config:    cfg,
		CreatedAt: now.UTC(),
		Phase:     PhasePreparing,
		Workers:   workers,
	}, nil
}

// run carries one job through the pipeline. All of its methods execute on
// the goroutine that called Queue.Run.
type run struct {
	q    *Queue
	job  *Job
	sink EventSink
}

func (r *run) execute(ctx context.Context) error {
	if err := r.review(ctx); err != nil {
		return r.finish(err)
	}
	if r.job.Config.RunAggregate {
		if err := r.aggregate(ctx); err != nil {
			return r.finish(err)
		}
	}
	if r.job.Config.RunFix {
		if err := r.fix(ctx); err != nil {
			return r.finish(err)
		}
	}
	return r.finish(nil)
}

// finish moves the job to its terminal phase and writes summary.json last.
func (r *run) finish(err error) error {
	switch {
	case err == nil:
		r.setPhase(PhaseCompleted, "job completed")
	case errors.Is(err, ErrCancelled):
		for i := range r.job.Workers {
			if r.job.Workers[i].Status == WorkerPending {
				r.job.Workers[i].Status = WorkerSkipped
			}
		}
		r.setPhase(PhaseCancelled, "job cancelled")
	default:
		r.setPhase(PhaseFailed, firstLine(err.Error()))
		r.emit(Event{Kind: EventFailed, Message: err.Error()})
	}

	summary := r.job.Summary(r.q.opts.Now().UTC(), err)
	if werr := writeJSONAtomic(filepath.Join(r.job.Dir, SummaryFile), summary); werr != nil {
		r.q.opts.Logf("Warning: could not write %s for job %s: %v", SummaryFile, r.job.ID, werr)
	}
	return err
}

func (r *run) review(ctx context.Context) error {
	if ctx.Err() != nil {
		return ErrCancelled
	}
	r.setPhase(PhaseReviewing, fmt.Sprintf("%d worker(s), at most %d at once", len(r.job.Workers), worker.MaxConcurrent(len(r.job.Workers), r.q.opts.MaxWorkers)))
	for i := range r.job.Workers {
		r.emitWorker(i)
	}

	// Workers get their own copies; only the pool observer below touches r.job.
	tasks := make([]WorkerResult, len(r.job.Workers))
	copy(tasks, r.job.Workers)

	pool := worker.NewPool[workerOutcome](r.q.opts.MaxWorkers)
	results := pool.Run(ctx, len(tasks), func(ctx context.Context, i int) workerOutcome {
		return r.runWorker(ctx, tasks[i])
	}, func(u worker.Update[workerOutcome]) {
		w := &r.job.Workers[u.Index]
		switch u.Kind {
		case worker.Started:
			w.Status = WorkerRunning
		case worker.Finished:
			w.Status = u.Value.status
			w.Error = u.Value.err
			r.log(PhaseReviewing, fmt.Sprintf("worker %d %s", w.ID, w.Status))
		}
		r.emitWorker(u.Index)
	})

	for _, res := range results {
		if res.Admitted {
			continue
		}
		w := &r.job.Workers[res.Index]
		w.Status = WorkerSkipped
		w.Error = "not started: job cancelled"
		r.emitWorker(res.Index)
	}

	if ctx.Err() != nil {
		return ErrCancelled
	}
	if completed, _ := r.job.Counts(); completed == 0 {
		return allWorkersFailed(r.job.Workers)
	}
	return nil
}

type workerOutcome struct {
	status WorkerStatus
	err    string
}

func (r *run) runWorker(ctx context.Context, w WorkerResult) workerOutcome {
	res := r.q.exec.ExecuteWithInput(ctx, r.q.opts.CLICommand, codexArgs(r.job.Config, w.OutputPath), w.Prompt, r.job.Workspace, r.q.opts.WorkerTimeout)
	r.writeArtifact(w.StdoutPath, res.Stdout)
	r.writeArtifact(w.StderrPath, res.Stderr)

	if res.Cancelled() || (!res.Success && ctx.Err() != nil) {
		return workerOutcome{status: WorkerCancelled, err: "stopped: job cancelled"}
	}
	if !res.Success {
		return workerOutcome{status: WorkerFailed, err: workerError(res)}
	}
	if err := r.ensureOutput(w.OutputPath, res); err != nil {
		return workerOutcome{status: WorkerFailed, err: err.Error()}
	}
	return workerOutcome{status: WorkerCompleted}
}

func (r *run) aggregate(ctx context.Context) error {
	if ctx.Err() != nil {
		return ErrCancelled
	}
	r.setPhase(PhaseAggregating, "merging reviewer findings")

	findings := make([]reviewerFinding, 0, len(r.job.Workers))
	for _, w := range r.job.Workers {
		f := reviewerFinding{ID: w.ID, Prompt: w.Prompt}
		if w.Status == WorkerCompleted {
			data, err := os.ReadFile(w.OutputPath)
			if err != nil {
				f.Failed, f.Output = true, fmt.Sprintf("output unreadable: %v", err)
			} else {
				f.Output = string(data)
			}
		} else {
			f.Failed, f.Output = true, w.Error
		}
		findings = append(findings, f)
	}

	path := filepath.Join(r.job.Dir, AggregateOutputFile)
	prompt := buildAggregatePrompt(r.job.Config.AggregatePrompt, findings)
	if err := r.runStage(ctx, StageAggregate, prompt, path, r.q.opts.AggregateTimeout); err != nil {
		return err
	}
	r.job.AggregatePath = path
	r.log(PhaseAggregating, "aggregate output written to "+AggregateOutputFile)
	r.emit(Event{Kind: EventAggregateReady, Path: path})
	return nil
}

func (r *run) fix(ctx context.Context) error {
	if ctx.Err() != nil {
		return ErrCancelled
	}
	// Intake validation already enforces this; the fix stage must still
	// never run on anything but aggregate output produced by this job.
	if !r.job.Config.RunAggregate || r.job.AggregatePath == "" {
		return ErrFixRequiresAggregate
	}
	aggregate, err := os.ReadFile(r.job.AggregatePath)
	if err != nil || strings.TrimSpace(string(aggregate)) == "" {
		return fmt.Errorf("%w: no aggregate output at %s", ErrFixRequiresAggregate, r.job.AggregatePath)
	}

	r.setPhase(PhaseFixing, "applying aggregated findings")
	path := filepath.Join(r.job.Dir, FixOutputFile)
	prompt := buildFixPrompt(r.job.Config.FixPrompt, string(aggregate))
	if err := r.runStage(ctx, StageFix, prompt, path, r.q.opts.FixTimeout); err != nil {
		return err
	}
	r.job.FixPath = path
	r.log(PhaseFixing, "fix output written to "+FixOutputFile)
	r.emit(Event{Kind: EventFixReady, Path: path})
	return nil
}

// runStage invokes the CLI once for the aggregate or fix stage.
func (r *run) runStage(ctx context.Context, stage Stage, prompt, outputPath string, timeout time.Duration) error {
	res := r.q.exec.ExecuteWithInput(ctx, r.q.opts.CLICommand, codexArgs(r.job.Config, outputPath), prompt, r.job.Workspace, timeout)
	r.writeArtifact(filepath.Join(r.job.Dir, stageStdoutFile(stage)), res.Stdout)
	r.writeArtifact(filepath.Join(r.job.Dir, stageStderrFile(stage)), res.Stderr)

	if res.Cancelled() || (!res.Success && ctx.Err() != nil) {
		return ErrCancelled
	}
	if !res.Success {
		return &ExecutionError{Stage: stage, Result: res}
	}
	if err := r.ensureOutput(outputPath, res); err != nil {
		return fmt.Errorf("%s stage: %w", stage, err)
	}
	return nil
}

// ensureOutput makes sure path holds the invocation's final message. When
// the CLI did not write it, the last agent message on stdout is used, then
// the raw combined output.
func (r *run) ensureOutput(path string, res cliexec.ExecutionResult) error {
	if data, err := os.ReadFile(path); err == nil && strings.TrimSpace(string(data)) != "" {
		return nil
	}
	text, ok := lastmsg.LastAgentMessage(res.Stdout)
	if !ok || strings.TrimSpace(text) == "" {
		text = res.CombinedOutput()
	}
	if strings.TrimSpace(text) == "" {
		return ErrEmptyOutput
	}
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func (r *run) setPhase(p Phase, details string) {
	r.job.Phase = p
	r.log(p, details)
	r.emit(Event{Kind: EventPhaseChanged, Phase: p, Message: details})
}

func (r *run) emitWorker(i int) {
	w := r.job.Workers[i]
	r.emit(Event{Kind: EventWorkerUpdated, Worker: &w})
}

func (r *run) emit(e Event) {
	e.JobID = r.job.ID
	e.Time = r.q.opts.Now().UTC()
	if e.Phase == "" {
		e.Phase = r.job.Phase
	}
	r.sink.Emit(e)
}

func (r *run) log(p Phase, details string) {
	path := filepath.Join(r.job.Dir, OrchestrationLogFile)
	if err := appendOrchestrationLog(path, r.job.ID, p, details, r.q.opts.Now()); err != nil {
		r.q.opts.Logf("Warning: could not write orchestration log: %v", err)
	}
}

func (r *run) writeArtifact(path, content string) {
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		r.q.opts.Logf("Warning: could not write %s: %v", filepath.Base(path), err)
	}
}

// workerError describes a failed worker invocation, keeping the tail of its
// output.
func workerError(res cliexec.ExecutionResult) string {
	msg := describeOutcome(res)
	out := res.CombinedOutput()
	if out == "" {
		return msg
	}
	if len(out) > maxWorkerErrorLen {
		cut := len(out) - maxWorkerErrorLen
		for cut < len(out) && !utf8.RuneStart(out[cut]) {
			cut++
		}
		out = "..." + out[cut:]
	}
	return msg + ": " + out
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
