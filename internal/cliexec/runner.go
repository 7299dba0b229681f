// Package cliexec locates and runs external CLI binaries with streamed output
// capture, a per-call timeout and cooperative cancellation.
//
// A Runner never returns an error for a slow or failing child; every call
// yields an ExecutionResult whose Outcome tells a timeout, a cancellation, a
// launch failure and a plain exit apart.
package cliexec

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultGracePeriod is the delay between SIGTERM and SIGKILL on cancellation.
	DefaultGracePeriod = 3 * time.Second
	// DefaultDrainTimeout bounds how long output readers are awaited after the
	// child exits, in case an orphaned grandchild keeps the pipes open.
	DefaultDrainTimeout = 2 * time.Second
)

// Request describes a single execution of an already-resolved binary.
type Request struct {
	// Path is the executable to run.
	Path string
	// Args are passed verbatim (no shell).
	Args []string
	// Env holds extra KEY=VALUE entries appended to the base environment.
	Env []string
	// Dir is the working directory. Empty means the current directory.
	Dir string
	// Timeout bounds the run; zero disables it.
	Timeout time.Duration
}

// Runner executes binaries. It is safe for concurrent use; the review queue
// shares one Runner across all of its workers.
type Runner struct {
	// Finder resolves binary names. Defaults to NewFinder().
	Finder *Finder
	// GracePeriod overrides DefaultGracePeriod when positive.
	GracePeriod time.Duration
	// DrainTimeout overrides DefaultDrainTimeout when positive.
	DrainTimeout time.Duration
	// Environ returns the base child environment. Defaults to os.Environ.
	Environ func() []string
	// Logf receives diagnostics. Nil discards them.
	Logf func(format string, args ...any)
}

// NewRunner returns a Runner using finder for binary resolution.
func NewRunner(finder *Finder) *Runner {
	if finder == nil {
		finder = NewFinder()
	}
	return &Runner{Finder: finder}
}

// FindBinary resolves name using the Runner's Finder.
func (r *Runner) FindBinary(name string) (string, bool) {
	f := r.Finder
	if f == nil {
		f = NewFinder()
	}
	return f.Find(name)
}

// Execute runs req without stdin and returns the captured result.
func (r *Runner) Execute(ctx context.Context, req Request) ExecutionResult {
	if strings.TrimSpace(req.Path) == "" {
		return launchFailure("no executable path given")
	}
	return r.run(ctx, req, "", false)
}

// ExecuteWithInput resolves name, feeds input on stdin and returns the
// captured result. Output is drained continuously while the child runs, so a
// chatty child never blocks on a full pipe.
func (r *Runner) ExecuteWithInput(ctx context.Context, name string, args []string, input, dir string, timeout time.Duration) ExecutionResult {
	path, ok := r.FindBinary(name)
	if !ok {
		return launchFailure(fmt.Sprintf("%s: executable not found", name))
	}
	return r.run(ctx, Request{Path: path, Args: args, Dir: dir, Timeout: timeout}, input, true)
}

func (r *Runner) run(ctx context.Context, req Request, input string, withInput bool) ExecutionResult {
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Err() != nil {
		return ExecutionResult{ExitCode: ExitCodeCancelled, Outcome: OutcomeCancelled}
	}

	cmd := exec.Command(req.Path, req.Args...)
	cmd.Dir = req.Dir
	cmd.Env = r.environ(req)
	configureCommandProcess(cmd)

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return launchFailure(fmt.Sprintf("stdout pipe: %v", err))
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		closeAll(stdoutR, stdoutW)
		return launchFailure(fmt.Sprintf("stderr pipe: %v", err))
	}
	defer closeAll(stdoutR, stderrR)
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	var stdin io.WriteCloser
	if withInput {
		stdin, err = cmd.StdinPipe()
		if err != nil {
			closeAll(stdoutW, stderrW)
			return launchFailure(fmt.Sprintf("stdin pipe: %v", err))
		}
	}

	if err := cmd.Start(); err != nil {
		closeAll(stdoutW, stderrW)
		return launchFailure(fmt.Sprintf("start %s: %v", req.Path, err))
	}
	// The child holds its own copies of the write ends; ours must go so the
	// readers see EOF once every writer is gone.
	closeAll(stdoutW, stderrW)

	var stdout, stderr outputBuffer
	var readers sync.WaitGroup
	readers.Add(2)
	go drain(&readers, &stdout, stdoutR)
	go drain(&readers, &stderr, stderrR)
	drained := make(chan struct{})
	go func() {
		readers.Wait()
		close(drained)
	}()

	proc := watchProcess(cmd)

	if withInput {
		go func() {
			if _, err := io.WriteString(stdin, input); err != nil {
				r.logf("write stdin for %s: %v", filepath.Base(req.Path), err)
			}
			_ = stdin.Close()
		}()
	}

	var timeout <-chan time.Time
	if req.Timeout > 0 {
		timer := time.NewTimer(req.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	outcome := OutcomeExited
	select {
	case <-proc.done:
	case <-timeout:
		outcome = OutcomeTimedOut
		r.logf("%s timed out after %s; killing", filepath.Base(req.Path), req.Timeout)
		proc.kill()
	case <-ctx.Done():
		outcome = OutcomeCancelled
		r.logf("%s cancelled; terminating", filepath.Base(req.Path))
		proc.terminate(r.gracePeriod())
	}

	r.awaitDrain(drained, stdoutR, stderrR)

	result := ExecutionResult{
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
		Outcome: outcome,
	}
	switch outcome {
	case OutcomeTimedOut:
		result.ExitCode = ExitCodeTimeout
	case OutcomeCancelled:
		result.ExitCode = ExitCodeCancelled
	default:
		result.ExitCode = proc.exitCode()
		result.Success = proc.err == nil && result.ExitCode == 0
	}
	return result
}

// awaitDrain joins the readers, force-closing the read ends if they are
// still blocked after the drain timeout.
func (r *Runner) awaitDrain(drained <-chan struct{}, pipes ...*os.File) {
	wait := r.DrainTimeout
	if wait <= 0 {
		wait = DefaultDrainTimeout
	}
	select {
	case <-drained:
		return
	case <-time.After(wait):
	}
	r.logf("output pipes still open %s after exit; closing", wait)
	closeAll(pipes...)
	<-drained
}

func (r *Runner) gracePeriod() time.Duration {
	if r.GracePeriod > 0 {
		return r.GracePeriod
	}
	return DefaultGracePeriod
}

func (r *Runner) environ(req Request) []string {
	base := os.Environ
	if r.Environ != nil {
		base = r.Environ
	}
	env := withPathPrefix(base(), filepath.Dir(req.Path))
	return append(env, req.Env...)
}

func (r *Runner) logf(format string, args ...any) {
	if r.Logf != nil {
		r.Logf(format, args...)
	}
}

func drain(wg *sync.WaitGroup, dst io.Writer, src io.Reader) {
	defer wg.Done()
	_, _ = io.Copy(dst, src)
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		if f != nil {
			_ = f.Close()
		}
	}
}

// withPathPrefix puts dir at the front of PATH so interpreters installed
// next to the binary (node for npm shims) resolve for the child.
func withPathPrefix(env []string, dir string) []string {
	out := make([]string, 0, len(env)+1)
	found := false
	for _, kv := range env {
		if !strings.HasPrefix(kv, "PATH=") {
			out = append(out, kv)
			continue
		}
		found = true
		current := strings.TrimPrefix(kv, "PATH=")
		if dir == "" || dir == "." || containsPathEntry(current, dir) {
			out = append(out, kv)
			continue
		}
		if current == "" {
			out = append(out, "PATH="+dir)
		} else {
			out = append(out, "PATH="+dir+string(os.PathListSeparator)+current)
		}
	}
	if !found && dir != "" && dir != "." {
		out = append(out, "PATH="+dir)
	}
	return out
}

func containsPathEntry(pathList, dir string) bool {
	for _, entry := range filepath.SplitList(pathList) {
		if filepath.Clean(entry) == filepath.Clean(dir) {
			return true
		}
	}
	return false
}
