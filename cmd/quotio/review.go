package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xiaojiou176/quotio-sub003/internal/cliexec"
	"github.com/xiaojiou176/quotio-sub003/internal/config"
	"github.com/xiaojiou176/quotio-sub003/internal/review"
)

const defaultAggregatePrompt = `You are merging several independent code reviews of the same workspace.
Deduplicate the findings below, drop anything unsupported by the code,
and produce one prioritized list (critical, major, minor) with file and
line references and a concrete suggested fix for each item.`

const defaultFixPrompt = `Apply the fixes from the aggregated review below to this workspace.
Work through the items in priority order, keep changes minimal, and skip
any item you judge to be incorrect. Finish with a short summary of what
you changed.`

var (
	reviewWorkspace       string
	reviewPrompts         []string
	reviewPromptFiles     []string
	reviewAggregate       bool
	reviewAggregatePrompt string
	reviewFix             bool
	reviewFixPrompt       string
	reviewModel           string
	reviewFullAuto        bool
	reviewSkipGitCheck    bool
	reviewEphemeral       bool
	reviewMaxWorkers      int
	reviewCLI             string
	reviewDryRun          bool
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Run and inspect review jobs",
}

var reviewRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a review job",
	Long: `Run one review job in a workspace.

Every --prompt (or --prompt-file) starts its own review session of the CLI.
At most review.max_workers sessions run at once. With --aggregate a final
session merges the findings into aggregate.md; with --fix another session
applies them.

Artifacts are written to <workspace>/.quotio/review-queue/<job-id>/.
Ctrl-C cancels the job; running sessions are stopped and the job is
recorded as cancelled.

Examples:
  quotio review run -p "Review error handling" -p "Review tests"
  quotio review run --prompt-file security.md --aggregate
  quotio review run -p "Find races" --aggregate --fix --full-auto`,
	Args: cobra.NoArgs,
	RunE: runReview,
}

func init() {
	rootCmd.AddCommand(reviewCmd)
	reviewCmd.AddCommand(reviewRunCmd)

	f := reviewRunCmd.Flags()
	f.StringVarP(&reviewWorkspace, "workspace", "w", "", "Workspace to review (default: current directory)")
	f.StringArrayVarP(&reviewPrompts, "prompt", "p", nil, "Review prompt (repeatable, one worker each)")
	f.StringArrayVar(&reviewPromptFiles, "prompt-file", nil, "File holding one review prompt (repeatable)")
	f.BoolVar(&reviewAggregate, "aggregate", false, "Merge worker findings in an aggregate session")
	f.StringVar(&reviewAggregatePrompt, "aggregate-prompt", "", "Instructions for the aggregate session")
	f.BoolVar(&reviewFix, "fix", false, "Apply the aggregated findings in a fix session (requires --aggregate)")
	f.StringVar(&reviewFixPrompt, "fix-prompt", "", "Instructions for the fix session")
	f.StringVarP(&reviewModel, "model", "m", "", "Model passed to the CLI")
	f.BoolVar(&reviewFullAuto, "full-auto", false, "Pass --full-auto to the CLI")
	f.BoolVar(&reviewSkipGitCheck, "skip-git-repo-check", false, "Pass --skip-git-repo-check to the CLI")
	f.BoolVar(&reviewEphemeral, "ephemeral", false, "Pass --ephemeral to the CLI")
	f.IntVar(&reviewMaxWorkers, "max-workers", 0, "Maximum concurrent review workers (default from config: 8)")
	f.StringVar(&reviewCLI, "cli", "", "Review CLI binary (default from config: codex)")
	f.BoolVar(&reviewDryRun, "dry-run", false, "Validate the job without running it")
}

func runReview(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(reviewOverrides(cmd))
	if err != nil {
		return err
	}
	jobCfg, err := buildJobConfig(cmd, cfg)
	if err != nil {
		return err
	}
	queue, err := newQueue(cfg)
	if err != nil {
		return err
	}

	if err := queue.Validate(jobCfg); err != nil {
		return err
	}
	if reviewDryRun {
		fmt.Fprintf(progressWriter(cfg.Output), "Dry run: %d prompt(s) in %s, aggregate=%t fix=%t, cli=%s\n",
			len(jobCfg.Prompts), jobCfg.Workspace, jobCfg.RunAggregate, jobCfg.RunFix, queue.Options().CLICommand)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, runErr := queue.Run(ctx, jobCfg, newProgressPrinter(progressWriter(cfg.Output)))
	if result == nil {
		return runErr
	}
	if err := printResult(cfg.Output, result); err != nil {
		return err
	}
	if errors.Is(runErr, review.ErrCancelled) {
		return fmt.Errorf("job %s cancelled", result.JobID)
	}
	return runErr
}

// reviewOverrides maps explicitly set flags onto the config flag layer.
func reviewOverrides(cmd *cobra.Command) *config.Config {
	o := &config.Config{}
	o.Review.CLICommand = reviewCLI
	o.Review.MaxWorkers = reviewMaxWorkers
	o.Review.Model = reviewModel
	flags := cmd.Flags()
	if flags.Changed("full-auto") {
		o.Review.FullAuto = config.Bool(reviewFullAuto)
	}
	if flags.Changed("skip-git-repo-check") {
		o.Review.SkipGitRepoCheck = config.Bool(reviewSkipGitCheck)
	}
	if flags.Changed("ephemeral") {
		o.Review.Ephemeral = config.Bool(reviewEphemeral)
	}
	return o
}

// buildJobConfig assembles the job input from flags and resolved config.
func buildJobConfig(cmd *cobra.Command, cfg *config.Config) (review.Config, error) {
	ws := reviewWorkspace
	if ws == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return review.Config{}, fmt.Errorf("get working directory: %w", err)
		}
		ws = cwd
	}

	prompts := append([]string(nil), reviewPrompts...)
	for _, path := range reviewPromptFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			return review.Config{}, fmt.Errorf("read prompt file: %w", err)
		}
		prompts = append(prompts, string(data))
	}

	jobCfg := review.Config{
		Workspace:        ws,
		Prompts:          prompts,
		RunAggregate:     reviewAggregate,
		RunFix:           reviewFix,
		Model:            cfg.Review.Model,
		FullAuto:         config.BoolValue(cfg.Review.FullAuto),
		SkipGitRepoCheck: config.BoolValue(cfg.Review.SkipGitRepoCheck),
		Ephemeral:        config.BoolValue(cfg.Review.Ephemeral),
	}
	if jobCfg.RunAggregate {
		jobCfg.AggregatePrompt = defaultAggregatePrompt
		if cmd.Flags().Changed("aggregate-prompt") {
			jobCfg.AggregatePrompt = reviewAggregatePrompt
		}
	}
	if jobCfg.RunFix {
		jobCfg.FixPrompt = defaultFixPrompt
		if cmd.Flags().Changed("fix-prompt") {
			jobCfg.FixPrompt = reviewFixPrompt
		}
	}
	return jobCfg, nil
}

// newQueue wires the process runner and queue from resolved config.
func newQueue(cfg *config.Config) (*review.Queue, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	workerTimeout, aggregateTimeout, fixTimeout, grace := cfg.Review.Timeouts()

	runner := cliexec.NewRunner(nil)
	runner.GracePeriod = grace
	runner.Logf = verboseLogf

	return review.New(runner, review.Options{
		CLICommand:       cfg.Review.CLICommand,
		MaxWorkers:       cfg.Review.MaxWorkers,
		WorkerTimeout:    workerTimeout,
		AggregateTimeout: aggregateTimeout,
		FixTimeout:       fixTimeout,
		Logf:             verboseLogf,
	}), nil
}

func printResult(format string, r *review.Result) error {
	if structured(format) {
		return writeStructured(os.Stdout, format, r)
	}
	fmt.Println()
	fmt.Printf("Job:     %s\n", r.JobID)
	fmt.Printf("Phase:   %s\n", r.Phase)
	fmt.Printf("Workers: %d completed, %d failed of %d\n", r.CompletedCount, r.FailedCount, len(r.Workers))
	for _, w := range r.Workers {
		line := fmt.Sprintf("  %02d %-9s %s", w.ID, w.Status, w.OutputPath)
		if w.Error != "" {
			line += "  (" + firstLine(w.Error) + ")"
		}
		fmt.Println(strings.TrimRight(line, " "))
	}
	if r.AggregatePath != "" {
		fmt.Printf("Aggregate: %s\n", r.AggregatePath)
	}
	if r.FixPath != "" {
		fmt.Printf("Fix:       %s\n", r.FixPath)
	}
	fmt.Printf("Path:    %s\n", r.JobPath)
	return nil
}
