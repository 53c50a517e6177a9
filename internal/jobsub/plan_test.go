package jobsub

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCounter struct {
	count int
	err   error
	calls []string
}

func (f *fakeCounter) CountFiles(_ context.Context, defname string) (int, error) {
	f.calls = append(f.calls, defname)
	return f.count, f.err
}

// fixture lays out a fake shared-storage area and returns a policy rooted
// there together with a request that passes validation.
func fixture(t *testing.T) (Policy, Request) {
	t.Helper()
	root := t.TempDir()
	prefix := filepath.Join(root, "pnfs") + string(filepath.Separator)
	require.NoError(t, os.MkdirAll(filepath.Join(prefix, "annie", "scratch", "x"), 0o755))

	tarball := filepath.Join(root, "toolanalysis.tar.gz")
	require.NoError(t, os.WriteFile(tarball, []byte("tar"), 0o644))

	policy := Policy{
		SubmitBin:           "jobsub_submit",
		WrapperScript:       "/opt/grid/annie_sam_wrap.sh",
		Group:               "annie",
		SharedStoragePrefix: prefix,
		SL7Image:            "/cvmfs/sl7:latest",
		BaseExports:         []string{"GRID_USER", "EXPERIMENT"},
		RecommendedSites:    []string{"BNL", "FNAL", "Omaha"},
		ExcludedSites:       []string{"Omaha", "Swan"},
		MaxJobs:             5000,
		MaxConcurrent:       25000,
	}

	req := DefaultRequest()
	req.JobName = "beam"
	req.Dest = filepath.Join(prefix, "annie", "scratch", "x")
	req.Config = "ToolChainConfig"
	req.InputFileConfig = "my_files.txt"
	req.DefName = "annie_beam_r4000"
	req.Tarball = tarball
	return policy, req
}

func stageFile(t *testing.T, policy Policy, name string) string {
	t.Helper()
	path := filepath.Join(policy.SharedStoragePrefix, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/bash\n"), 0o755))
	return path
}

func newTestPlanner(policy Policy, counter FileCounter) (*Planner, *[]time.Duration) {
	var slept []time.Duration
	p := NewPlanner(policy, counter)
	p.Sleep = func(d time.Duration) { slept = append(slept, d) }
	return p, &slept
}

func TestPlanSingleTestJob(t *testing.T) {
	policy, req := fixture(t)
	req.NJobs = 1
	req.FilesPerJob = 1
	req.NEvents = 3

	counter := &fakeCounter{count: 100}
	p, _ := newTestPlanner(policy, counter)

	cmd, err := p.Plan(context.Background(), req)
	require.NoError(t, err)

	assert.Empty(t, counter.calls, "dataset must not be counted when njobs is given")
	assert.Equal(t, 1, cmd.JobCount)
	assert.Equal(t, "-N 1", cmd.Scheduler[0])
	assert.Equal(t, "--limit 1", cmd.Wrapper[0])
	assert.Contains(t, cmd.Wrapper, `--nevents "3"`)
	assert.True(t, strings.HasPrefix(cmd.String(), "jobsub_submit -N 1 "))
}

func TestPlanJobCountFromDataset(t *testing.T) {
	cases := []struct {
		files, perJob, want int
	}{
		{files: 10, perJob: 3, want: 4},
		{files: 9, perJob: 3, want: 4},
		{files: 0, perJob: 5, want: 1},
		{files: 4999, perJob: 1, want: 5000},
	}
	for _, tc := range cases {
		policy, req := fixture(t)
		req.FilesPerJob = tc.perJob
		counter := &fakeCounter{count: tc.files}
		p, _ := newTestPlanner(policy, counter)

		cmd, err := p.Plan(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, tc.want, cmd.JobCount, "files=%d per_job=%d", tc.files, tc.perJob)
		assert.Equal(t, []string{req.DefName}, counter.calls)
		assert.Contains(t, cmd.Wrapper, "--limit "+strconv.Itoa(tc.perJob))
	}
}

func TestPlanJobCapWithoutConcurrencyLimit(t *testing.T) {
	policy, req := fixture(t)
	req.FilesPerJob = 1
	p, _ := newTestPlanner(policy, &fakeCounter{count: 5000})

	cmd, err := p.Plan(context.Background(), req)
	require.Error(t, err)
	assert.Nil(t, cmd)

	var limitErr *LimitError
	require.True(t, errors.As(err, &limitErr))
	assert.Equal(t, 5001, limitErr.Requested)
	assert.Equal(t, 5000, limitErr.Limit)
	assert.Contains(t, err.Error(), "--continue_project")
}

func TestPlanJobCapLiftedByConcurrencyLimit(t *testing.T) {
	policy, req := fixture(t)
	req.NJobs = 8000
	req.MaxConcurrent = 500
	p, _ := newTestPlanner(policy, nil)

	cmd, err := p.Plan(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []string{"-N 8000", "--maxConcurrent=500"}, cmd.Scheduler[:2])
}

func TestPlanConcurrencyCap(t *testing.T) {
	policy, req := fixture(t)
	req.NJobs = 10
	req.MaxConcurrent = 25001
	p, _ := newTestPlanner(policy, nil)

	_, err := p.Plan(context.Background(), req)
	require.Error(t, err)
	assert.True(t, IsLimitError(err))
}

func TestPlanRejectsDestOutsidePrefix(t *testing.T) {
	policy, req := fixture(t)
	req.NJobs = 1
	req.Dest = "/home/annie/output"
	counter := &fakeCounter{}
	p, _ := newTestPlanner(policy, counter)

	_, err := p.Plan(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOutsideSharedStorage))
	assert.Empty(t, counter.calls)
}

func TestPlanRejectsConflictingPlacement(t *testing.T) {
	policy, req := fixture(t)
	req.NJobs = 1
	req.OnsiteOnly = true
	req.OffsiteOnly = true
	p, _ := newTestPlanner(policy, nil)

	_, err := p.Plan(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConflictingPlacement))
}

func TestPlanRejectsMissingScript(t *testing.T) {
	policy, req := fixture(t)
	req.NJobs = 1
	req.Scripts = map[ScriptKind][]string{
		EarlySource: {filepath.Join(policy.SharedStoragePrefix, "setup.sh") + ":arg1"},
	}
	p, _ := newTestPlanner(policy, nil)

	_, err := p.Plan(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFileNotFound))
	assert.True(t, IsValidationError(err))
	assert.Contains(t, err.Error(), "setup.sh")
	assert.Contains(t, err.Error(), "--earlysource")
}

func TestPlanReportsAllProblemsAtOnce(t *testing.T) {
	policy, req := fixture(t)
	req.JobName = ""
	req.Dest = "/tmp/out"
	req.ExpectedLifetime = "forever"
	p, _ := newTestPlanner(policy, nil)

	_, err := p.Plan(context.Background(), req)
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "3 problems")
	assert.Contains(t, msg, "--jobname")
	assert.Contains(t, msg, "--dest")
	assert.Contains(t, msg, "--expected_lifetime")
}

func TestPlanStagesScriptsAndForwardsArguments(t *testing.T) {
	policy, req := fixture(t)
	req.NJobs = 2
	setup := stageFile(t, policy, "setup.sh")
	post := stageFile(t, policy, "post.sh")
	extra := stageFile(t, policy, "extra.root")
	req.InputFiles = []string{extra}
	req.Scripts = map[ScriptKind][]string{
		PostScript:  {post},
		EarlySource: {setup + ":arg1:arg2"},
	}
	p, _ := newTestPlanner(policy, nil)

	cmd, err := p.Plan(context.Background(), req)
	require.NoError(t, err)

	line := cmd.String()
	assert.Less(t, strings.Index(line, "dropbox://"+extra), strings.Index(line, "dropbox://"+setup))
	assert.Less(t, strings.Index(line, "dropbox://"+setup), strings.Index(line, "dropbox://"+post))
	assert.Contains(t, cmd.Wrapper, "--earlysource "+setup+":arg1:arg2")
	assert.Contains(t, cmd.Wrapper, "--postscript "+post)
	assert.Less(t, indexOf(cmd.Wrapper, "--postscript "+post), indexOf(cmd.Wrapper, "--tarball toolanalysis.tar.gz"))
}

func TestPlanPlacement(t *testing.T) {
	t.Run("recommended sites by default", func(t *testing.T) {
		policy, req := fixture(t)
		req.NJobs = 1
		p, _ := newTestPlanner(policy, nil)
		cmd, err := p.Plan(context.Background(), req)
		require.NoError(t, err)
		assert.Contains(t, cmd.Scheduler, "--resource-provides=usage_model=DEDICATED,OPPORTUNISTIC,OFFSITE")
		assert.Contains(t, cmd.Scheduler, "--site=BNL,FNAL,Omaha")
		assert.Equal(t, 1, countOf(cmd.Scheduler, "-e IS_OFFSITE=1"))
	})

	t.Run("onsite only", func(t *testing.T) {
		policy, req := fixture(t)
		req.NJobs = 1
		req.OnsiteOnly = true
		p, _ := newTestPlanner(policy, nil)
		cmd, err := p.Plan(context.Background(), req)
		require.NoError(t, err)
		assert.Contains(t, cmd.Scheduler, "--resource-provides=usage_model=DEDICATED,OPPORTUNISTIC")
		assert.NotContains(t, cmd.Scheduler, "-e IS_OFFSITE=1")
		for _, opt := range cmd.Scheduler {
			assert.False(t, strings.HasPrefix(opt, "--site="), opt)
		}
	})

	t.Run("offsite only", func(t *testing.T) {
		policy, req := fixture(t)
		req.NJobs = 1
		req.OffsiteOnly = true
		p, _ := newTestPlanner(policy, nil)
		cmd, err := p.Plan(context.Background(), req)
		require.NoError(t, err)
		assert.Contains(t, cmd.Scheduler, "--resource-provides=usage_model=OFFSITE")
	})

	t.Run("explicit unknown site warns", func(t *testing.T) {
		policy, req := fixture(t)
		req.NJobs = 1
		req.Sites = []string{"Nowhere"}
		policy.WarnDelay = 5 * time.Second
		p, slept := newTestPlanner(policy, nil)
		cmd, err := p.Plan(context.Background(), req)
		require.NoError(t, err)
		assert.Contains(t, cmd.Scheduler, "--site=Nowhere")
		assert.Equal(t, []time.Duration{5 * time.Second}, *slept)
	})

	t.Run("all sites", func(t *testing.T) {
		policy, req := fixture(t)
		req.NJobs = 1
		req.AllSites = true
		p, _ := newTestPlanner(policy, nil)
		cmd, err := p.Plan(context.Background(), req)
		require.NoError(t, err)
		for _, opt := range cmd.Scheduler {
			assert.False(t, strings.HasPrefix(opt, "--site="), opt)
		}
	})

	t.Run("exclusions are deduplicated", func(t *testing.T) {
		policy, req := fixture(t)
		req.NJobs = 1
		req.ExcludeSites = []string{"Swan", "UCSD"}
		p, _ := newTestPlanner(policy, nil)
		cmd, err := p.Plan(context.Background(), req)
		require.NoError(t, err)
		var excluded []string
		for _, opt := range cmd.Scheduler {
			if strings.HasPrefix(opt, "--append_condor_requirements=") {
				excluded = append(excluded, opt)
			}
		}
		require.Len(t, excluded, 3)
		assert.Equal(t, `--append_condor_requirements='(TARGET.GLIDEIN_Site\ isnt\ \"Omaha\")'`, excluded[0])
		assert.Contains(t, excluded[2], `\"UCSD\"`)
	})
}

func TestPlanWarnsWithoutJobCount(t *testing.T) {
	policy, req := fixture(t)
	policy.WarnDelay = 2 * time.Second
	p, slept := newTestPlanner(policy, nil)

	cmd, err := p.Plan(context.Background(), req)
	require.NoError(t, err)
	assert.Zero(t, cmd.JobCount)
	assert.Equal(t, []time.Duration{2 * time.Second}, *slept)
	for _, opt := range cmd.Scheduler {
		assert.False(t, strings.HasPrefix(opt, "-N "), opt)
	}
}

func TestPlanCommandLayout(t *testing.T) {
	policy, req := fixture(t)
	req.NJobs = 3
	req.GridSL7 = true
	req.Test = true
	req.NoRename = true
	req.QuickCopy = true
	req.KillAfter = 3600
	req.Exports = []string{"MYVAR=1"}
	req.ExpectedLifetime = "medium"
	p, _ := newTestPlanner(policy, nil)

	cmd, err := p.Plan(context.Background(), req)
	require.NoError(t, err)

	s := cmd.Scheduler
	n := len(s)
	assert.Equal(t, "file://"+policy.WrapperScript, s[n-1])
	assert.Equal(t, "-f dropbox://"+req.Tarball, s[n-2])
	assert.Equal(t, "-e DEST="+req.Dest, s[n-3])
	assert.Equal(t, "-e MYVAR=1", s[n-4])
	assert.Equal(t, "-e GRID_USER", s[n-7])

	assert.Less(t, indexOf(s, "--singularity-image /cvmfs/sl7:latest"), indexOf(s, "--expected-lifetime=medium"))
	assert.Less(t, indexOf(s, "--expected-lifetime=medium"), indexOf(s, "-G annie"))
	assert.Less(t, indexOf(s, "-G annie"), indexOf(s, "--no-submit"))
	assert.Contains(t, s, "--lines '+FERMIHTC_GraceMemory=1024'")
	assert.Contains(t, s, "--disk=10000MB")
	assert.Contains(t, s, "--memory=1900MB")
	assert.Contains(t, s, "--cpu=1")

	assert.Equal(t, []string{
		"--tarball toolanalysis.tar.gz",
		"--config ToolChainConfig",
		"--input_file_config my_files.txt",
		`--nevents "-1"`,
		"--job_dirs",
		"--quick_copy",
		"--self_destruct_timer 3600",
	}, cmd.Wrapper)
}

func TestPlanIsDeterministic(t *testing.T) {
	policy, req := fixture(t)
	req.FilesPerJob = 2
	p, _ := newTestPlanner(policy, &fakeCounter{count: 7})

	first, err := p.Plan(context.Background(), req)
	require.NoError(t, err)
	second, err := p.Plan(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.String(), second.String())
}

func TestPlanCountFailure(t *testing.T) {
	policy, req := fixture(t)
	req.FilesPerJob = 2
	p, _ := newTestPlanner(policy, &fakeCounter{err: errors.New("catalog down")})

	_, err := p.Plan(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog down")

	p.Counter = nil
	_, err = p.Plan(context.Background(), req)
	assert.ErrorIs(t, err, ErrNoFileCounter)
}

func TestParseLifetime(t *testing.T) {
	cases := map[string]string{
		"10800":    "10800s",
		"1":        "1s",
		"+3600":    "3600s",
		" 3600 ":   "3600s",
		"010":      "10s",
		"short":    "short",
		" medium ": "medium",
		"long":     "long",
	}
	for in, want := range cases {
		got, err := ParseLifetime(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	for _, bad := range []string{"0", "-5", "3h", "", "Short"} {
		_, err := ParseLifetime(bad)
		assert.ErrorIs(t, err, ErrInvalidLifetime, bad)
	}
}

func TestPlanNormalisesLifetimeAndGraceValues(t *testing.T) {
	policy, req := fixture(t)
	req.NJobs = 1
	req.ExpectedLifetime = "+7200"
	req.GraceMemory = " 2048"
	p, _ := newTestPlanner(policy, nil)

	cmd, err := p.Plan(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, cmd.Scheduler, "--expected-lifetime=7200s")
	assert.Contains(t, cmd.Scheduler, "--lines '+FERMIHTC_GraceMemory=2048'")

	req.GraceLifetime = " -1"
	_, err = p.Plan(context.Background(), req)
	assert.ErrorIs(t, err, ErrNegativeValue)
}

func TestJobCount(t *testing.T) {
	assert.Equal(t, 4, JobCount(10, 3))
	assert.Equal(t, 2, JobCount(1, 1))
	assert.Equal(t, 1, JobCount(0, 1))
}

func indexOf(list []string, want string) int {
	for i, s := range list {
		if s == want {
			return i
		}
	}
	return -1
}

func countOf(list []string, want string) int {
	n := 0
	for _, s := range list {
		if s == want {
			n++
		}
	}
	return n
}
