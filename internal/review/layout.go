package review

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Job directory layout, relative to the workspace and the job directory.
const (
	CacheDirName         = ".quotio"
	QueueDirName         = "review-queue"
	ConfigFile           = "config.json"
	SummaryFile          = "summary.json"
	OrchestrationLogFile = "orchestration.log"
	AggregateOutputFile  = "aggregate.md"
	FixOutputFile        = "fix.md"
)

// jobIDTimeLayout is the sortable UTC timestamp prefix of every job ID.
const jobIDTimeLayout = "20060102-150405"

var workerOutputPattern = regexp.MustCompile(`^worker-(\d+)\.md$`)

// JobsDir returns the directory holding every job of a workspace.
func JobsDir(workspace string) string {
	return filepath.Join(workspace, CacheDirName, QueueDirName)
}

// JobDir returns the directory of job id in workspace.
func JobDir(workspace, id string) string {
	return filepath.Join(JobsDir(workspace), id)
}

// NewJobID returns "<UTC yyyymmdd-hhmmss>-<8 hex chars>".
func NewJobID(now time.Time) string {
	return fmt.Sprintf("%s-%s", now.UTC().Format(jobIDTimeLayout), uuid.New().String()[:8])
}

// ParseJobTime extracts the creation time embedded in a job ID.
func ParseJobTime(id string) (time.Time, bool) {
	if len(id) < len(jobIDTimeLayout) {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(jobIDTimeLayout, id[:len(jobIDTimeLayout)], time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// WorkerOutputFile is the final-message file of worker id (worker-NN.md).
func WorkerOutputFile(id int) string { return fmt.Sprintf("worker-%02d.md", id) }

// WorkerStdoutFile is the captured stdout of worker id.
func WorkerStdoutFile(id int) string { return fmt.Sprintf("worker-%02d.stdout.log", id) }

// WorkerStderrFile is the captured stderr of worker id.
func WorkerStderrFile(id int) string { return fmt.Sprintf("worker-%02d.stderr.log", id) }

// ParseWorkerOutputFile returns the worker id encoded in a worker-NN.md name.
func ParseWorkerOutputFile(name string) (int, bool) {
	m := workerOutputPattern.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	id, err := strconv.Atoi(m[1])
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}

func stageStdoutFile(stage Stage) string { return string(stage) + ".stdout.log" }

func stageStderrFile(stage Stage) string { return string(stage) + ".stderr.log" }
