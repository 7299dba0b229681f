// Package history lists past review jobs of a workspace from their job
// directories. It only reads; job directories are never modified.
package history

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/xiaojiou176/quotio-sub003/internal/review"
)

// ErrJobNotFound is returned by Find when the job directory does not exist.
var ErrJobNotFound = errors.New("review job not found")

// List returns every job of workspace, newest first. A workspace that never
// ran the queue yields an empty list.
func List(workspace string) ([]review.Summary, error) {
	root := review.JobsDir(workspace)
	entries, err := os.ReadDir(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read job cache %s: %w", root, err)
	}

	var jobs []job
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		jobs = append(jobs, job{id: e.Name(), summary: Load(filepath.Join(root, e.Name()))})
	}
	sortNewestFirst(jobs)

	out := make([]review.Summary, len(jobs))
	for i, j := range jobs {
		out[i] = j.summary
	}
	return out, nil
}

// Find returns the job with the given id.
func Find(workspace, id string) (*review.Summary, error) {
	if id == "" || id != filepath.Base(id) || strings.HasPrefix(id, ".") {
		return nil, fmt.Errorf("%w: %q", ErrJobNotFound, id)
	}
	dir := review.JobDir(workspace, id)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	s := Load(dir)
	return &s, nil
}

// Load reads one job directory. A parseable summary.json is returned as is;
// otherwise the state is inferred from the files present.
func Load(dir string) review.Summary {
	if s, err := review.ReadSummary(dir); err == nil {
		return *s
	}
	return infer(dir)
}

// infer rebuilds a summary for a job that ended before writing summary.json.
// The result has Version 0.
func infer(dir string) review.Summary {
	id := filepath.Base(dir)
	s := review.Summary{JobID: id, JobPath: dir, Phase: review.PhaseReviewing}
	if t, ok := review.ParseJobTime(id); ok {
		s.CreatedAt = t
	}

	entries, _ := os.ReadDir(dir)
	var workerIDs []int
	var hasAggregate, hasFix bool
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if info, err := e.Info(); err == nil && info.ModTime().After(s.UpdatedAt) {
			s.UpdatedAt = info.ModTime().UTC()
		}
		switch name := e.Name(); name {
		case review.AggregateOutputFile:
			hasAggregate = true
		case review.FixOutputFile:
			hasFix = true
		default:
			if n, ok := review.ParseWorkerOutputFile(name); ok {
				workerIDs = append(workerIDs, n)
			}
		}
	}
	sort.Ints(workerIDs)

	cfg, _ := review.ReadConfig(dir)
	if cfg != nil {
		s.Model = cfg.Model
		s.RunAggregate = cfg.RunAggregate
		s.RunFix = cfg.RunFix
	}

	for _, n := range workerIDs {
		w := review.WorkerResult{
			ID:         n,
			Status:     review.WorkerCompleted,
			OutputPath: filepath.Join(dir, review.WorkerOutputFile(n)),
			StdoutPath: filepath.Join(dir, review.WorkerStdoutFile(n)),
			StderrPath: filepath.Join(dir, review.WorkerStderrFile(n)),
		}
		if cfg != nil && n <= len(cfg.Prompts) {
			w.Prompt = cfg.Prompts[n-1]
		}
		if info, err := os.Stat(w.StderrPath); err == nil && info.Size() > 0 {
			w.Status = review.WorkerFailed
			s.FailedWorkerCount++
		} else {
			s.CompletedWorkerCount++
		}
		s.Workers = append(s.Workers, w)
	}
	s.WorkerCount = len(s.Workers)

	if hasAggregate {
		s.AggregatePath = filepath.Join(dir, review.AggregateOutputFile)
	}
	if hasFix {
		s.FixPath = filepath.Join(dir, review.FixOutputFile)
	}

	switch {
	case hasFix:
		s.Phase = review.PhaseCompleted
	case s.WorkerCount > 0 && s.FailedWorkerCount == s.WorkerCount:
		s.Phase = review.PhaseFailed
	case hasAggregate && cfg != nil && !cfg.RunFix:
		s.Phase = review.PhaseCompleted
	case hasAggregate:
		s.Phase = review.PhaseAggregating
	}
	return s
}

type job struct {
	id      string
	summary review.Summary
}

// sortNewestFirst orders by the timestamp embedded in the directory name,
// newest first. Names without a timestamp go last; ties and untimed names
// fall back to descending name order.
func sortNewestFirst(jobs []job) {
	times := make(map[string]time.Time, len(jobs))
	for _, j := range jobs {
		if t, ok := review.ParseJobTime(j.id); ok {
			times[j.id] = t
		}
	}
	sort.SliceStable(jobs, func(a, b int) bool {
		ta, okA := times[jobs[a].id]
		tb, okB := times[jobs[b].id]
		switch {
		case okA && okB && !ta.Equal(tb):
			return ta.After(tb)
		case okA != okB:
			return okA
		}
		return jobs[a].id > jobs[b].id
	})
}
