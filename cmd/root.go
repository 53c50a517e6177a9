package cmd

import (
	"errors"
	"os"

	"github.com/atcsutton/ANNIEGrid/internal/config"
	"github.com/atcsutton/ANNIEGrid/internal/jobsub"
	"github.com/atcsutton/ANNIEGrid/internal/utils"
	"github.com/spf13/cobra"
)

var debugMode bool

var rootCmd = newRootCmd()

// newRootCmd builds the submission command with its own flag values.
func newRootCmd() *cobra.Command {
	flags := &SubmitFlags{}
	cmd := &cobra.Command{
		Use:   "submit_annie_jobs",
		Short: "Submit ANNIE ToolAnalysis jobs to the grid with jobsub",
		Long: `Build a jobsub_submit command that runs a ToolAnalysis ToolChain over a SAM
dataset definition on the grid, start the SAM project and submit it.

Arguments may also be read from text files with -f FILE. Tokens in the file are
inserted where the -f appeared; anything after # on a line is ignored.`,
		Example: `  submit_annie_jobs --jobname beam --defname annie_beam_r4000 \
      --config configfiles/BeamClusterAnalysis --input_file_config my_files.txt \
      --tarball ToolAnalysis.tar.gz --dest /pnfs/annie/scratch/users/$USER/beam \
      --files_per_job 5
  submit_annie_jobs -f common.args --njobs 10 --print_jobsub
  submit_annie_jobs -f common.args --test_submission`,
		Version:           config.VERSION,
		Args:              cobra.NoArgs,
		SilenceErrors:     true,
		PersistentPreRunE: initConfig,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return runSubmit(cmd, *flags)
		},
	}
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug mode with verbose output")
	cmd.PersistentFlags().BoolVarP(&utils.QuietMode, "quiet", "q", false, "Only print errors, warnings and the jobsub command")
	registerSubmitFlags(cmd.Flags(), flags)
	return cmd
}

// initConfig loads defaults, then the config file and environment, then
// command-line overrides.
func initConfig(cmd *cobra.Command, args []string) error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}

	config.LoadDefaults(exe)

	if err := config.InitViper(); err != nil {
		utils.PrintDebug("Error reading config file: %v", err)
	}

	config.LoadFromViper()

	if debugMode {
		utils.DebugMode = true
		config.Global.Debug = true
		utils.PrintDebug("Debug mode enabled")
		utils.PrintDebug("ANNIEGrid Version: %s", utils.StyleInfo(config.VERSION))
		utils.PrintDebug("Executable: %s", exe)
		utils.PrintDebug("Submit Binary: %s", config.Global.SubmitBin)
		utils.PrintDebug("Wrapper Script: %s", config.Global.WrapperScript)
		utils.PrintDebug("SAM Web: %s", config.Global.SamWeb.BaseURL)
	}
	return nil
}

// Execute expands argument files, runs the command line and exits with
// the resulting status.
func Execute() {
	os.Exit(run(rootCmd, os.Args[1:]))
}

func run(root *cobra.Command, args []string) int {
	if expandsArgFiles(root, args) {
		expanded, err := utils.ExpandArgFiles(args)
		if err != nil {
			utils.PrintError("%v", err)
			return 1
		}
		args = expanded
	}
	root.SetArgs(args)

	if err := root.Execute(); err != nil {
		// The submission tool reports its own failures; only pass its status on.
		var se *jobsub.SubmissionError
		if errors.As(err, &se) && se.ExitCode > 0 {
			return se.ExitCode
		}
		utils.PrintError("%v", err)
		if jobsub.IsValidationError(err) {
			utils.PrintHint("See '%s --help' for the accepted values.", root.Name())
		}
		return 1
	}
	return 0
}

// expandsArgFiles reports whether args are a submission. Subcommands and
// shell completion requests take their arguments as typed.
func expandsArgFiles(root *cobra.Command, args []string) bool {
	if len(args) == 0 {
		return true
	}
	switch args[0] {
	case cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd, "help":
		return false
	}
	for _, sub := range root.Commands() {
		if sub.Name() == args[0] || sub.HasAlias(args[0]) {
			return false
		}
	}
	return true
}
