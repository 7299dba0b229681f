package main

import (
	"testing"
)

func TestVerbosePrintf_WritesToStderr(t *testing.T) {
	old := verbose
	t.Cleanup(func() { verbose = old })

	verbose = true
	var stderr string
	stdout, _ := captureStdout(t, func() error {
		stderr = captureStderr(t, func() { verboseLogf("Warning: could not write %s", "summary.json") })
		return nil
	})
	if stdout != "" {
		t.Errorf("stdout = %q, want nothing so JSON output stays clean", stdout)
	}
	if stderr != "Warning: could not write summary.json\n" {
		t.Errorf("stderr = %q", stderr)
	}

	verbose = false
	stderr = captureStderr(t, func() { VerbosePrintf("hidden\n") })
	if stderr != "" {
		t.Errorf("stderr = %q, want nothing when not verbose", stderr)
	}
}
