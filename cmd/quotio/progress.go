package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/term"

	"github.com/xiaojiou176/quotio-sub003/internal/review"
)

const (
	ansiReset = "\033[0m"
	ansiRed   = "\033[31m"
	ansiGreen = "\033[32m"
	ansiDim   = "\033[2m"
)

// progressPrinter renders queue events as one line each.
type progressPrinter struct {
	w     io.Writer
	color bool
	start time.Time
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	p := &progressPrinter{w: w, start: time.Now()}
	if f, ok := w.(*os.File); ok {
		p.color = term.IsTerminal(int(f.Fd()))
	}
	return p
}

// Emit implements review.EventSink.
func (p *progressPrinter) Emit(e review.Event) {
	elapsed := e.Time.Sub(p.start).Round(time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	prefix := p.paint(ansiDim, fmt.Sprintf("[%6s]", elapsed))

	switch e.Kind {
	case review.EventPhaseChanged:
		line := fmt.Sprintf("phase: %s", e.Phase)
		if e.Phase == review.PhasePreparing {
			line = fmt.Sprintf("job %s: %s", e.JobID, e.Message)
		}
		fmt.Fprintf(p.w, "%s %s\n", prefix, line)
	case review.EventWorkerUpdated:
		if e.Worker == nil || e.Worker.Status == review.WorkerPending {
			return
		}
		fmt.Fprintf(p.w, "%s worker %02d %s\n", prefix, e.Worker.ID, p.status(e.Worker))
	case review.EventAggregateReady:
		fmt.Fprintf(p.w, "%s aggregate ready: %s\n", prefix, e.Path)
	case review.EventFixReady:
		fmt.Fprintf(p.w, "%s fix ready: %s\n", prefix, e.Path)
	case review.EventFailed:
		fmt.Fprintf(p.w, "%s %s %s\n", prefix, p.paint(ansiRed, "failed:"), firstLine(e.Message))
	}
}

func (p *progressPrinter) status(w *review.WorkerResult) string {
	switch w.Status {
	case review.WorkerCompleted:
		return p.paint(ansiGreen, string(w.Status))
	case review.WorkerFailed:
		return p.paint(ansiRed, string(w.Status)) + ": " + firstLine(w.Error)
	}
	return string(w.Status)
}

func (p *progressPrinter) paint(code, s string) string {
	if !p.color {
		return s
	}
	return code + s + ansiReset
}

func firstLine(s string) string {
	for i, c := range s {
		if c == '\n' {
			return s[:i]
		}
	}
	return s
}
