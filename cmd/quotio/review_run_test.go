//go:build !windows

package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xiaojiou176/quotio-sub003/internal/history"
	"github.com/xiaojiou176/quotio-sub003/internal/review"
)

// fakeCodex writes its stdin prompt's first line to the -o file.
const fakeCodex = `#!/bin/sh
out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "-o" ]; then out="$2"; shift; fi
  shift
done
first=$(head -n 1)
echo "finding for: $first" > "$out"
`

func installFakeCLI(t *testing.T, name, script string) {
	t.Helper()
	binDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(binDir, name), []byte(script), 0755); err != nil {
		t.Fatalf("write fake %s: %v", name, err)
	}
	t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func TestRunReview_EndToEnd(t *testing.T) {
	isolateConfig(t)
	resetReviewFlags(t)
	installFakeCLI(t, "fakecodex", fakeCodex)

	ws := t.TempDir()
	reviewWorkspace = ws
	reviewPrompts = []string{"review errors", "review tests"}
	reviewAggregate = true
	reviewCLI = "fakecodex"

	out, err := captureStdout(t, func() error { return runReview(reviewRunCmd, nil) })
	if err != nil {
		t.Fatalf("runReview: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Phase:   completed") {
		t.Errorf("output missing completed phase:\n%s", out)
	}

	jobs, err := history.List(ws)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 {
		t.Fatalf("history has %d jobs, want 1", len(jobs))
	}
	s := jobs[0]
	if s.Phase != review.PhaseCompleted || s.CompletedWorkerCount != 2 || s.AggregatePath == "" {
		t.Fatalf("summary = %+v", s)
	}
	data, err := os.ReadFile(s.Workers[1].OutputPath)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(string(data)); got != "finding for: review tests" {
		t.Errorf("worker 2 output = %q", got)
	}
}

func TestRunReview_DryRunSpawnsNothing(t *testing.T) {
	isolateConfig(t)
	resetReviewFlags(t)
	installFakeCLI(t, "fakecodex", "#!/bin/sh\ntouch \"$HOME/spawned\"\n")

	ws := t.TempDir()
	reviewWorkspace = ws
	reviewPrompts = []string{"x"}
	reviewCLI = "fakecodex"
	reviewDryRun = true

	out, err := captureStdout(t, func() error { return runReview(reviewRunCmd, nil) })
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if !strings.Contains(out, "Dry run: 1 prompt(s)") {
		t.Errorf("output = %q", out)
	}
	if _, err := os.Stat(filepath.Join(ws, review.CacheDirName)); !os.IsNotExist(err) {
		t.Error("dry run must not create the job directory")
	}
}

func TestRunReview_MissingCLI(t *testing.T) {
	isolateConfig(t)
	resetReviewFlags(t)
	t.Setenv("PATH", t.TempDir())

	reviewWorkspace = t.TempDir()
	reviewPrompts = []string{"x"}
	reviewCLI = "definitely-not-installed-cli"

	_, err := captureStdout(t, func() error { return runReview(reviewRunCmd, nil) })
	if err == nil || !strings.Contains(err.Error(), "definitely-not-installed-cli") {
		t.Fatalf("err = %v, want CLI not installed", err)
	}
}
