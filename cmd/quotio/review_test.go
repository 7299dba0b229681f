package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/xiaojiou176/quotio-sub003/internal/config"
	"github.com/xiaojiou176/quotio-sub003/internal/review"
)

func newFlagCmd() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Flags().String("aggregate-prompt", "", "")
	cmd.Flags().String("fix-prompt", "", "")
	cmd.Flags().Bool("full-auto", false, "")
	cmd.Flags().Bool("skip-git-repo-check", false, "")
	cmd.Flags().Bool("ephemeral", false, "")
	return cmd
}

func resetReviewFlags(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		reviewWorkspace, reviewPrompts, reviewPromptFiles = "", nil, nil
		reviewAggregate, reviewAggregatePrompt = false, ""
		reviewFix, reviewFixPrompt = false, ""
		reviewModel, reviewCLI, reviewMaxWorkers = "", "", 0
		reviewFullAuto, reviewSkipGitCheck, reviewEphemeral, reviewDryRun = false, false, false, false
	})
}

func TestBuildJobConfig(t *testing.T) {
	resetReviewFlags(t)
	dir := t.TempDir()
	promptFile := filepath.Join(dir, "security.md")
	if err := os.WriteFile(promptFile, []byte("Check auth\n"), 0644); err != nil {
		t.Fatal(err)
	}

	reviewWorkspace = dir
	reviewPrompts = []string{"Review errors", "Review tests"}
	reviewPromptFiles = []string{promptFile}
	reviewAggregate = true
	reviewFix = true

	cmd := newFlagCmd()
	if err := cmd.Flags().Set("fix-prompt", "only fix criticals"); err != nil {
		t.Fatal(err)
	}
	reviewFixPrompt = "only fix criticals"

	cfg := config.Default()
	cfg.Review.Model = "o3"
	cfg.Review.FullAuto = config.Bool(true)

	got, err := buildJobConfig(cmd, cfg)
	if err != nil {
		t.Fatalf("buildJobConfig: %v", err)
	}
	if got.Workspace != dir {
		t.Errorf("Workspace = %q, want %q", got.Workspace, dir)
	}
	if len(got.Prompts) != 3 || got.Prompts[2] != "Check auth\n" {
		t.Errorf("Prompts = %q", got.Prompts)
	}
	if got.AggregatePrompt != defaultAggregatePrompt {
		t.Errorf("AggregatePrompt = %q, want default", got.AggregatePrompt)
	}
	if got.FixPrompt != "only fix criticals" {
		t.Errorf("FixPrompt = %q", got.FixPrompt)
	}
	if got.Model != "o3" || !got.FullAuto || got.Ephemeral {
		t.Errorf("cli options = %+v", got)
	}
}

func TestBuildJobConfig_NoDownstreamPrompts(t *testing.T) {
	resetReviewFlags(t)
	reviewWorkspace = t.TempDir()
	reviewPrompts = []string{"x"}

	got, err := buildJobConfig(newFlagCmd(), config.Default())
	if err != nil {
		t.Fatal(err)
	}
	if got.AggregatePrompt != "" || got.FixPrompt != "" {
		t.Errorf("downstream prompts set without --aggregate/--fix: %+v", got)
	}
}

func TestBuildJobConfig_MissingPromptFile(t *testing.T) {
	resetReviewFlags(t)
	reviewWorkspace = t.TempDir()
	reviewPromptFiles = []string{filepath.Join(reviewWorkspace, "missing.md")}

	if _, err := buildJobConfig(newFlagCmd(), config.Default()); err == nil {
		t.Fatal("expected error for missing prompt file")
	}
}

func TestReviewOverrides_OnlyChangedBools(t *testing.T) {
	resetReviewFlags(t)
	reviewCLI = "claude"
	reviewMaxWorkers = 3

	cmd := newFlagCmd()
	if err := cmd.Flags().Set("ephemeral", "false"); err != nil {
		t.Fatal(err)
	}
	o := reviewOverrides(cmd)
	if o.Review.CLICommand != "claude" || o.Review.MaxWorkers != 3 {
		t.Errorf("overrides = %+v", o.Review)
	}
	if o.Review.FullAuto != nil || o.Review.SkipGitRepoCheck != nil {
		t.Error("unchanged bool flags must stay unset")
	}
	if o.Review.Ephemeral == nil || *o.Review.Ephemeral {
		t.Error("explicit --ephemeral=false must be carried as false")
	}
}

func TestWriteStructured(t *testing.T) {
	r := &review.Result{JobID: "j1", Phase: review.PhaseCompleted, CompletedCount: 2}

	var buf bytes.Buffer
	if err := writeStructured(&buf, "json", r); err != nil {
		t.Fatalf("json: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid json %q: %v", buf.String(), err)
	}
	if decoded["job_id"] != "j1" || decoded["phase"] != "completed" {
		t.Errorf("json = %v", decoded)
	}

	buf.Reset()
	s := review.Summary{Version: 1, JobID: "j2", Phase: review.PhaseFailed}
	if err := writeStructured(&buf, "yaml", s); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	var back review.Summary
	if err := yaml.Unmarshal(buf.Bytes(), &back); err != nil {
		t.Fatalf("invalid yaml %q: %v", buf.String(), err)
	}
	if back.JobID != "j2" || back.Phase != review.PhaseFailed {
		t.Errorf("yaml round trip = %+v", back)
	}

	if err := writeStructured(&buf, "xml", s); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestPrintResult_Table(t *testing.T) {
	r := &review.Result{
		JobID:   "20260101-000000-abcd1234",
		JobPath: "/ws/.quotio/review-queue/20260101-000000-abcd1234",
		Phase:   review.PhaseCompleted,
		Workers: []review.WorkerResult{
			{ID: 1, Status: review.WorkerCompleted, OutputPath: "/ws/worker-01.md"},
			{ID: 2, Status: review.WorkerFailed, Error: "exit code 2\ntrace"},
		},
		CompletedCount: 1,
		FailedCount:    1,
		AggregatePath:  "/ws/aggregate.md",
	}
	out, err := captureStdout(t, func() error { return printResult("table", r) })
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"20260101-000000-abcd1234", "1 completed, 1 failed of 2", "(exit code 2)", "Aggregate: /ws/aggregate.md"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "trace") {
		t.Errorf("worker error should be cut to its first line:\n%s", out)
	}
}
