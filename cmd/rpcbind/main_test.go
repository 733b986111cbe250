package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/fatih/color"
)

func TestPrintFatalKeepsPercent(t *testing.T) {
	origStderr, origExit, origNoColor := stderr, exit, color.NoColor
	t.Cleanup(func() {
		stderr, exit, color.NoColor = origStderr, origExit, origNoColor
	})

	var out bytes.Buffer
	code := -1
	stderr, exit = &out, func(c int) { code = c }
	color.NoColor = true

	printFatal("%v", errors.New("pool 100% busy"))
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if got := strings.TrimSpace(out.String()); got != "pool 100% busy" {
		t.Errorf("output = %q", got)
	}
}
