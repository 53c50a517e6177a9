package jobsub

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/atcsutton/ANNIEGrid/internal/utils"
	"github.com/hashicorp/go-multierror"
)

// symbolicLifetimes are accepted by jobsub in place of a number of seconds.
var symbolicLifetimes = []string{"short", "medium", "long"}

// ParseLifetime returns the --expected-lifetime value for raw: "<n>s" for a
// positive number of seconds, or raw itself for short, medium and long.
// Surrounding space is ignored and the seconds are written in canonical
// form, so " +0600" becomes "600s".
func ParseLifetime(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.Atoi(raw); err == nil {
		if n <= 0 {
			return "", fmt.Errorf("%w: seconds must be positive", ErrInvalidLifetime)
		}
		return fmt.Sprintf("%ds", n), nil
	}
	for _, name := range symbolicLifetimes {
		if raw == name {
			return raw, nil
		}
	}
	return "", fmt.Errorf("%w: use a number of seconds or one of short, medium, long", ErrInvalidLifetime)
}

// Validate applies every static rule to req and reports all failures at once.
// It does not touch the data catalog; job-count caps that depend on the
// dataset size are enforced by Planner.Plan.
func Validate(req Request, policy Policy) error {
	var result *multierror.Error
	add := func(err error) {
		if err != nil {
			result = multierror.Append(result, err)
		}
	}

	required := []struct{ flag, value string }{
		{"--jobname", req.JobName},
		{"--dest", req.Dest},
		{"--config", req.Config},
		{"--input_file_config", req.InputFileConfig},
		{"--defname", req.DefName},
		{"--tarball", req.Tarball},
	}
	for _, r := range required {
		if r.value == "" {
			add(NewValidationError(r.flag, "", ErrRequired))
		}
	}

	if req.OnsiteOnly && req.OffsiteOnly {
		add(ErrConflictingPlacement)
	}

	counts := []struct {
		flag  string
		value int
	}{
		{"--njobs", req.NJobs},
		{"--files_per_job", req.FilesPerJob},
		{"--disk", req.Disk},
		{"--memory", req.Memory},
		{"--cpu", req.CPU},
		{"--maxConcurrent", req.MaxConcurrent},
		{"--kill_after", req.KillAfter},
	}
	for _, c := range counts {
		if c.value < 0 {
			add(NewValidationError(c.flag, strconv.Itoa(c.value), ErrNegativeValue))
		}
	}

	if req.MaxConcurrent > policy.MaxConcurrent {
		add(&LimitError{
			Field:     "--maxConcurrent",
			Requested: req.MaxConcurrent,
			Limit:     policy.MaxConcurrent,
			Hint:      fmt.Sprintf("cannot submit more than %d jobs to the grid, so maxConcurrent shouldn't be higher than that", policy.MaxConcurrent),
		})
	}

	if _, err := ParseLifetime(req.ExpectedLifetime); err != nil {
		add(NewValidationError("--expected_lifetime", req.ExpectedLifetime, err))
	}
	add(checkNonNegativeInt("--grace_memory", req.GraceMemory))
	add(checkNonNegativeInt("--grace_lifetime", req.GraceLifetime))

	if req.Dest != "" && !utils.HasPathPrefix(req.Dest, policy.SharedStoragePrefix) {
		add(NewValidationError("--dest", req.Dest, outsidePrefix(policy.SharedStoragePrefix)))
	}
	if req.Tarball != "" && !utils.FileExists(utils.ExpandPath(req.Tarball)) {
		add(NewValidationError("--tarball", req.Tarball, ErrFileNotFound))
	}

	for _, f := range req.InputFiles {
		add(checkStaged("--input_file", f, policy.SharedStoragePrefix))
	}
	if req.CopyOutScript != "" {
		add(checkStaged("--copy_out_script", req.CopyOutScript, policy.SharedStoragePrefix))
	}
	for _, script := range req.ScriptOptions() {
		add(checkStaged(script.Flag(), script.Path(), policy.SharedStoragePrefix))
	}

	if result == nil {
		return nil
	}
	result.ErrorFormat = listErrors
	return result
}

// checkStaged verifies a file that will be shipped to the worker node: it
// must exist locally and live under the shared-storage prefix.
func checkStaged(flag, path, prefix string) error {
	expanded := utils.ExpandPath(path)
	if !utils.FileExists(expanded) {
		return NewValidationError(flag, path, ErrFileNotFound)
	}
	if !utils.HasPathPrefix(expanded, prefix) {
		return NewValidationError(flag, path, outsidePrefix(prefix))
	}
	return nil
}

func checkNonNegativeInt(flag, raw string) error {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return NewValidationError(flag, raw, ErrNotInteger)
	}
	if n < 0 {
		return NewValidationError(flag, raw, ErrNegativeValue)
	}
	return nil
}

func outsidePrefix(prefix string) error {
	return fmt.Errorf("%w: must be under %s", ErrOutsideSharedStorage, prefix)
}
