package cliexec

import (
	"bytes"
	"sync"
)

// outputBuffer accumulates process output. Writes from the stdout and stderr
// readers may race with snapshot reads taken on cancellation.
type outputBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *outputBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *outputBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
