package cliexec

import (
	"os/exec"
	"time"
)

// process tracks a started command. done is closed once Wait returns, which
// is the exit notification the runner selects on.
type process struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

func watchProcess(cmd *exec.Cmd) *process {
	p := &process{cmd: cmd, done: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()
	return p
}

func (p *process) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// terminate asks the process group to stop, waits up to grace, then kills
// it. Calling it on an exited process is a no-op.
func (p *process) terminate(grace time.Duration) {
	if p.exited() {
		return
	}
	interruptProcess(p.cmd)
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-p.done:
		return
	case <-timer.C:
	}
	p.kill()
}

// kill force-stops the process group and waits for the exit notification.
func (p *process) kill() {
	if p.exited() {
		return
	}
	killProcess(p.cmd)
	<-p.done
}

// exitCode is only meaningful after done is closed. Signalled processes report -1.
func (p *process) exitCode() int {
	if p.cmd.ProcessState == nil {
		return -1
	}
	return p.cmd.ProcessState.ExitCode()
}
