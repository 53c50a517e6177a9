package cmd

import (
	"github.com/atcsutton/ANNIEGrid/internal/jobsub"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// SubmitFlags holds every value the submission flags bind to.
type SubmitFlags struct {
	JobName         string
	Dest            string
	Config          string
	InputFileConfig string
	DefName         string
	Tarball         string

	InputConfigVar string
	CopyOutScript  string
	InputFiles     []string
	Exports        []string
	EarlySources   []string
	EarlyScripts   []string
	Sources        []string
	PreScripts     []string
	PostScripts    []string
	NoRename       bool
	NoJobDirs      bool
	QuickCopy      bool

	NJobs            int
	MaxConcurrent    int
	FilesPerJob      int
	NEvents          int
	Disk             int
	Memory           int
	CPU              int
	ExpectedLifetime string
	GraceMemory      string
	GraceLifetime    string
	ContinueProject  string
	Sites            []string
	ExcludeSites     []string
	AllSites         bool
	OnsiteOnly       bool
	OffsiteOnly      bool
	GridSL7          bool

	PrintJobsub    bool
	Test           bool
	TestSubmission bool
	KillAfter      int

	// Files is only registered for help output; references are expanded
	// before the flags are parsed.
	Files []string
}

// registerSubmitFlags binds every submission flag in fl to a field of f.
func registerSubmitFlags(fl *pflag.FlagSet, f *SubmitFlags) {
	d := jobsub.DefaultRequest()

	// Required
	fl.StringVar(&f.JobName, "jobname", "", "Job name")
	fl.StringVar(&f.Dest, "dest", "", "Final destination for output files (must be under the shared-storage prefix)")
	fl.StringVarP(&f.Config, "config", "c", "", "ToolChain config directory to run")
	fl.StringVar(&f.InputFileConfig, "input_file_config", "", "Config file listing the input files for the ToolChain")
	fl.StringVar(&f.DefName, "defname", "", "SAM dataset definition to run over")
	fl.StringVar(&f.Tarball, "tarball", "", "Tarball of the ToolAnalysis build to ship to the worker node (need not be on pnfs)")
	for _, name := range []string{"jobname", "dest", "config", "input_file_config", "defname", "tarball"} {
		_ = cobra.MarkFlagRequired(fl, name)
	}

	// Optional
	fl.StringVar(&f.InputConfigVar, "input_config_var", "", "Variable in the input_file_config that names the input (e.g. InputFile for LoadWCSim)")
	fl.BoolVar(&f.NoJobDirs, "no_job_dirs", false, "Do not create one directory in DEST per job number")
	fl.BoolVar(&f.NoRename, "no_rename", false, "Do not prepend the input file name to output files")
	fl.BoolVar(&f.QuickCopy, "quick_copy", false, "Copy each output file out as soon as it is created")
	fl.StringVar(&f.CopyOutScript, "copy_out_script", "", "Script (on pnfs) used to copy outputs to DEST")
	fl.StringArrayVar(&f.InputFiles, "input_file", nil, "Copy an extra file to the worker node (repeatable)")
	fl.StringArrayVar(&f.Exports, "export", nil, "Export an environment variable to the job; it must be set here (repeatable)")
	fl.StringArrayVar(&f.EarlySources, "earlysource", nil, "Source this script before anything else in the job (repeatable, script:arg:arg...)")
	fl.StringArrayVar(&f.EarlyScripts, "earlyscript", nil, "Execute this script after any earlysource (repeatable, script:arg:arg...)")
	fl.StringArrayVar(&f.Sources, "source", nil, "Source this script after the early scripts (repeatable, script:arg:arg...)")
	fl.StringArrayVar(&f.PreScripts, "prescript", nil, "Execute this script before running the ToolChain (repeatable, script:arg:arg...)")
	fl.StringArrayVar(&f.PostScripts, "postscript", nil, "Execute this script after the ToolChain, before copy out (repeatable, script:arg:arg...)")

	// Job control
	fl.IntVar(&f.NJobs, "njobs", 0, "Number of jobs to submit")
	fl.IntVar(&f.MaxConcurrent, "maxConcurrent", 0, "Run at most N jobs simultaneously")
	fl.IntVar(&f.FilesPerJob, "files_per_job", 0, "Number of files per job; with no --njobs the job count is derived from the dataset")
	fl.IntVar(&f.NEvents, "nevents", d.NEvents, "Number of events per file to process")
	fl.IntVar(&f.Disk, "disk", d.Disk, "Local disk requirement on the worker node in MB")
	fl.IntVar(&f.Memory, "memory", d.Memory, "Memory requirement on the worker node in MB")
	fl.IntVar(&f.CPU, "cpu", d.CPU, "Request worker nodes with at least this many CPUs")
	fl.StringVar(&f.ExpectedLifetime, "expected_lifetime", d.ExpectedLifetime, "Expected job lifetime: seconds, or short (6h), medium (12h), long (24h)")
	fl.StringVar(&f.GraceMemory, "grace_memory", d.GraceMemory, "Extra memory in MB for jobs auto-released after a memory hold")
	fl.StringVar(&f.GraceLifetime, "grace_lifetime", d.GraceLifetime, "Extra lifetime in seconds for jobs auto-released after a lifetime hold")
	fl.StringVar(&f.ContinueProject, "continue_project", "", "Continue the named SAM project instead of starting a new one")
	fl.StringArrayVar(&f.Sites, "site", nil, "Allowed offsite location (repeatable)")
	fl.StringArrayVar(&f.ExcludeSites, "exclude_site", nil, "Offsite location to exclude (repeatable)")
	fl.BoolVar(&f.AllSites, "all_sites", false, "Remove all specific site requirements")
	fl.BoolVar(&f.OnsiteOnly, "onsite_only", false, "Run solely on onsite resources")
	fl.BoolVar(&f.OffsiteOnly, "offsite_only", false, "Run solely on offsite resources")
	fl.BoolVar(&f.GridSL7, "grid_sl7", false, "Run in the SL7 container instead of the local AL9 environment")

	// Debugging
	fl.BoolVar(&f.PrintJobsub, "print_jobsub", false, "Print the jobsub command and exit")
	fl.BoolVar(&f.Test, "test", false, "Print the jobsub command and run it with --no-submit --debug")
	fl.BoolVar(&f.TestSubmission, "test_submission", false, "Override other arguments to submit one 3-event test job")
	fl.IntVar(&f.KillAfter, "kill_after", 0, "Kill jobs still running after SEC seconds so that a log is returned")

	fl.StringArrayVarP(&f.Files, "file", "f", nil, "Text file of additional arguments; # starts a comment (repeatable)")
}

// Request converts the parsed flags into a submission request.
func (f *SubmitFlags) Request() jobsub.Request {
	return jobsub.Request{
		JobName:         f.JobName,
		Dest:            f.Dest,
		Config:          f.Config,
		InputFileConfig: f.InputFileConfig,
		DefName:         f.DefName,
		Tarball:         f.Tarball,

		InputConfigVar: f.InputConfigVar,
		CopyOutScript:  f.CopyOutScript,
		InputFiles:     f.InputFiles,
		Exports:        f.Exports,
		Scripts: map[jobsub.ScriptKind][]string{
			jobsub.EarlySource: f.EarlySources,
			jobsub.EarlyScript: f.EarlyScripts,
			jobsub.Source:      f.Sources,
			jobsub.PreScript:   f.PreScripts,
			jobsub.PostScript:  f.PostScripts,
		},
		NoRename:  f.NoRename,
		NoJobDirs: f.NoJobDirs,
		QuickCopy: f.QuickCopy,

		NJobs:            f.NJobs,
		FilesPerJob:      f.FilesPerJob,
		NEvents:          f.NEvents,
		Disk:             f.Disk,
		Memory:           f.Memory,
		CPU:              f.CPU,
		MaxConcurrent:    f.MaxConcurrent,
		ExpectedLifetime: f.ExpectedLifetime,
		GraceMemory:      f.GraceMemory,
		GraceLifetime:    f.GraceLifetime,
		KillAfter:        f.KillAfter,

		Sites:        f.Sites,
		ExcludeSites: f.ExcludeSites,
		AllSites:     f.AllSites,
		OnsiteOnly:   f.OnsiteOnly,
		OffsiteOnly:  f.OffsiteOnly,
		GridSL7:      f.GridSL7,

		Test: f.Test,
	}
}
