package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"time"

	"github.com/atcsutton/ANNIEGrid/internal/config"
	"github.com/atcsutton/ANNIEGrid/internal/jobsub"
	"github.com/atcsutton/ANNIEGrid/internal/samweb"
	"github.com/atcsutton/ANNIEGrid/internal/utils"
	"github.com/spf13/cobra"
)

// catalog is the part of the SAM web API used by a submission.
type catalog interface {
	jobsub.FileCounter
	StartProject(ctx context.Context, req samweb.ProjectRequest) (*samweb.Project, error)
	Close() error
}

// submitter runs an assembled command.
type submitter interface {
	Submit(ctx context.Context, c *jobsub.Command) error
}

var (
	newCatalog = func(cfg config.SamWebConfig) (catalog, error) {
		return samweb.NewClient(cfg)
	}

	newSubmitter = func(bin string, stdout, stderr io.Writer) (submitter, error) {
		js, err := jobsub.NewJobsubWithBinary(bin)
		if err != nil {
			return nil, err
		}
		js.Stdout = stdout
		js.Stderr = stderr
		return js, nil
	}

	sleep = time.Sleep
	now   = time.Now
)

const timestampLayout = "20060102_150405"

func runSubmit(cmd *cobra.Command, flags SubmitFlags) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	timestamp := now().Format(timestampLayout)
	userName := currentUser()

	if flags.TestSubmission {
		if err := applyTestSubmission(&flags, userName, timestamp); err != nil {
			return err
		}
	}
	req := flags.Request()
	policy := jobsub.PolicyFromConfig(config.Global)

	// Report flag problems before any credentials are loaded.
	if err := jobsub.Validate(req, policy); err != nil {
		return err
	}

	// The catalog is only contacted to size the job or to start a project.
	needCount := req.FilesPerJob > 0 && req.NJobs == 0
	startProject := flags.ContinueProject == "" && !flags.Test && !flags.PrintJobsub

	var sam catalog
	if needCount || startProject {
		c, err := newCatalog(config.Global.SamWeb)
		if err != nil {
			return err
		}
		defer c.Close()
		sam = c
	}

	planner := jobsub.NewPlanner(policy, nil)
	if sam != nil {
		planner.Counter = sam
	}
	planner.Sleep = sleep

	command, err := planner.Plan(ctx, req)
	if err != nil {
		return err
	}

	if flags.PrintJobsub {
		fmt.Fprintln(out, command.String())
		return nil
	}

	projectName := flags.ContinueProject
	if projectName == "" {
		projectName = fmt.Sprintf("%s_%s_%s", userName, req.JobName, timestamp)
		if flags.TestSubmission {
			projectName += "_testjobs"
		}
	}

	if flags.Test {
		fmt.Fprintln(out, command.String())
	} else if startProject {
		utils.PrintMessage("Starting SAM project %s", utils.StyleName(projectName))
		project, err := sam.StartProject(ctx, samweb.ProjectRequest{
			Name:    projectName,
			Station: samStation(),
			Group:   config.Global.Group,
			DefName: req.DefName,
		})
		if err != nil {
			return fmt.Errorf("failed to start SAM project %s: %w", projectName, err)
		}
		utils.PrintDebug("Project URL: %s", project.URL)
	} else {
		utils.PrintMessage("Continuing SAM project %s", utils.StyleName(projectName))
	}

	// jobsub_submit forwards SAM_PROJECT_NAME to the job from our environment.
	if err := os.Setenv("SAM_PROJECT_NAME", projectName); err != nil {
		return err
	}

	runner, err := newSubmitter(config.Global.SubmitBin, out, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	submitErr := runner.Submit(ctx, command)

	removed, err := jobsub.CleanupTarballs(".")
	for _, f := range removed {
		utils.PrintDebug("Removed %s", f)
	}
	if err != nil {
		utils.PrintWarning("%v", err)
	}

	if submitErr != nil {
		return submitErr
	}
	if !flags.Test {
		utils.PrintSuccess("Submitted %s", utils.StyleName(projectName))
	}
	return nil
}

// applyTestSubmission replaces the job size, output location and lifetime
// with those of a single short test job.
func applyTestSubmission(flags *SubmitFlags, userName, timestamp string) error {
	dest := filepath.Join(config.Global.TestDestRoot, userName, "test_jobs", timestamp)
	if err := utils.EnsureGroupDir(dest); err != nil {
		return err
	}

	utils.PrintNote("Running a test submission. Overwriting:")
	override := func(name, from, to string) {
		utils.PrintMessage("  %s %s --> %s", name, from, utils.StyleInfo(to))
	}

	override("njobs", strconv.Itoa(flags.NJobs), "1")
	flags.NJobs = 1
	override("nevts", strconv.Itoa(flags.NEvents), "3")
	flags.NEvents = 3
	override("dest", flags.Dest, dest)
	flags.Dest = dest
	override("expected_lifetime", flags.ExpectedLifetime, "short")
	flags.ExpectedLifetime = "short"
	override("files_per_job", strconv.Itoa(flags.FilesPerJob), "1")
	flags.FilesPerJob = 1
	return nil
}

func currentUser() string {
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return "unknown"
}

func samStation() string {
	if station := os.Getenv("SAM_STATION"); station != "" {
		return station
	}
	return config.Global.Experiment
}
