package jobsub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/atcsutton/ANNIEGrid/internal/utils"
)

// Info describes the submission tool found on this host.
type Info struct {
	Binary    string // Resolved path to jobsub_submit
	Version   string // Reported version (if available)
	InJob     bool   // Whether we're running inside a grid job
	Available bool   // Whether submissions are possible
}

// Jobsub runs commands through the jobsub_submit client.
type Jobsub struct {
	submitBin string

	Stdout io.Writer
	Stderr io.Writer
}

// NewJobsubWithBinary creates a runner using an explicit submission tool.
// A bare name is resolved through PATH; an empty one means jobsub_submit.
func NewJobsubWithBinary(submitBin string) (*Jobsub, error) {
	binPath := submitBin
	if binPath == "" {
		binPath = "jobsub_submit"
	}

	if !strings.ContainsRune(binPath, filepath.Separator) {
		resolved, err := exec.LookPath(binPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSubmitterNotFound, err)
		}
		binPath = resolved
	} else {
		binPath = utils.ExpandPath(binPath)
		if absPath, err := filepath.Abs(binPath); err == nil {
			binPath = absPath
		}
		info, err := os.Stat(binPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSubmitterNotFound, err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%w: %s is a directory", ErrSubmitterNotFound, binPath)
		}
	}

	return &Jobsub{
		submitBin: binPath,
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
	}, nil
}

// Binary returns the resolved submission tool path.
func (j *Jobsub) Binary() string {
	return j.submitBin
}

// IsInsideJob reports whether the process runs inside an HTCondor grid job.
func IsInsideJob() bool {
	_, inJob := os.LookupEnv("_CONDOR_JOB_AD")
	return inJob
}

// IsAvailable checks if jobsub is usable and we're not inside a grid job
func (j *Jobsub) IsAvailable() bool {
	return j.submitBin != "" && !IsInsideJob()
}

// GetInfo returns information about the submission tool
func (j *Jobsub) GetInfo(ctx context.Context) *Info {
	info := &Info{
		Binary:    j.submitBin,
		InJob:     IsInsideJob(),
		Available: j.IsAvailable(),
	}
	if version, err := j.version(ctx); err == nil {
		info.Version = version
	}
	return info
}

// version parses output like "jobsub_submit version 1.3.5" or "1.3.5".
func (j *Jobsub) version(ctx context.Context) (string, error) {
	output, err := exec.CommandContext(ctx, j.submitBin, "--version").CombinedOutput()
	if err != nil {
		return "", err
	}

	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	for _, line := range lines {
		for _, field := range strings.Fields(line) {
			candidate := strings.TrimPrefix(field, "v")
			if candidate != "" && candidate[0] >= '0' && candidate[0] <= '9' && strings.Contains(candidate, ".") {
				return candidate, nil
			}
		}
	}
	if len(lines) > 0 && lines[0] != "" {
		return strings.TrimSpace(lines[0]), nil
	}
	return "", fmt.Errorf("no version in output of %s --version", j.submitBin)
}

// Submit runs the command. The first word of the command line is replaced
// by the resolved binary; the rest is split with shell quoting rules.
// Output streams straight to Stdout and Stderr.
func (j *Jobsub) Submit(ctx context.Context, c *Command) error {
	line := c.String()
	if IsInsideJob() {
		return NewSubmissionError(line, -1, ErrAlreadyInJob)
	}

	argv, err := c.Argv()
	if err != nil {
		return NewSubmissionError(line, -1, fmt.Errorf("failed to split command line: %w", err))
	}

	utils.PrintDebug("Executing: %s", utils.StyleCommand(line))

	cmd := exec.CommandContext(ctx, j.submitBin, argv[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = j.Stdout
	cmd.Stderr = j.Stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return NewSubmissionError(line, exitErr.ExitCode(), err)
		}
		return NewSubmissionError(line, -1, err)
	}
	return nil
}

// CleanupTarballs removes the *.tbz2 archives jobsub_submit leaves in dir.
// It returns the files it removed.
func CleanupTarballs(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.tbz2"))
	if err != nil {
		return nil, err
	}
	var removed []string
	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", m, err)
		}
		removed = append(removed, m)
	}
	return removed, nil
}
