package cgroup

import (
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ErrBadProcessorCount reports that the processor-count utility ran but
// produced output that is not an integer. Callers treat it like any other
// unparseable source: warn and skip the candidate.
var ErrBadProcessorCount = errors.New("processor count output is not an integer")

// ProcessorCountSource supplies the number of processing units visible to
// the current process, ignoring cgroup limits.
//
// The interface exists so the detector can be tested without spawning real
// processes. Error contract: a missing utility binary must satisfy
// errors.Is(err, exec.ErrNotFound); unparseable output must satisfy
// errors.Is(err, ErrBadProcessorCount); anything else is treated as an
// unexpected execution failure and aborts detection.
type ProcessorCountSource interface {
	ProcessorCount() (int64, error)
}

// NprocSource reports the processor count by running the nproc utility
// (or a configured equivalent) and parsing its single-integer output.
//
// The subprocess is run synchronously with no timeout: nproc is a bounded,
// short-lived call, and a hang there would stall container startup visibly
// enough that masking it with a timeout helps nobody.
type NprocSource struct {
	// Command is the utility to invoke, looked up on PATH. Empty means
	// "nproc". The utility is invoked with no arguments.
	Command string
}

// ProcessorCount runs the utility and parses its standard output.
//
// exec wraps a PATH miss (and a missing absolute path) in exec.ErrNotFound,
// which flows through the %w chain here — so "binary absent" is
// distinguishable from "binary exploded" without any platform-specific
// errno handling.
func (s NprocSource) ProcessorCount() (int64, error) {
	command := s.Command
	if command == "" {
		command = "nproc"
	}

	out, err := exec.Command(command).Output()
	if err != nil {
		return 0, fmt.Errorf("running %s: %w", command, err)
	}

	n, err := strconv.ParseInt(strings.TrimSpace(string(out)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s printed %q", ErrBadProcessorCount, command, strings.TrimSpace(string(out)))
	}
	return n, nil
}
