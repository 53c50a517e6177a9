package cmd

import (
	"fmt"

	"github.com/atcsutton/ANNIEGrid/internal/config"
	"github.com/atcsutton/ANNIEGrid/internal/jobsub"
	"github.com/atcsutton/ANNIEGrid/internal/utils"
	"github.com/spf13/cobra"
)

var schedulerCmd = &cobra.Command{
	Use:     "scheduler",
	Aliases: []string{"sched"},
	Short:   "Display jobsub information",
	Long: `Display information about the jobsub_submit client used for submissions.

Shows the binary path, its version, and whether submissions are possible from here.`,
	Example: `  submit_annie_jobs scheduler       # Show jobsub information
  submit_annie_jobs sched           # Short alias`,
	Args: cobra.NoArgs,
	Run:  runScheduler,
}

func init() {
	rootCmd.AddCommand(schedulerCmd)
}

func runScheduler(cmd *cobra.Command, args []string) {
	js, err := jobsub.NewJobsubWithBinary(config.Global.SubmitBin)
	if err != nil {
		if jobsub.IsInsideJob() {
			utils.PrintMessage("Scheduler Status: %s", utils.StyleWarning("Unavailable (inside job)"))
			utils.PrintMessage("")
			utils.PrintMessage("You are currently inside a grid job; job submission is disabled to prevent nested submissions.")
			return
		}

		utils.PrintMessage("Scheduler Status: %s", utils.StyleError("Not Found"))
		utils.PrintMessage("")
		utils.PrintMessage("jobsub_submit was not found (%s).", utils.StylePath(config.Global.SubmitBin))
		utils.PrintHint("Set up the jobsub client, or point submit_bin at it with 'submit_annie_jobs config set submit_bin PATH'.")
		return
	}

	info := js.GetInfo(cmd.Context())
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Scheduler Information:")
	fmt.Fprintf(out, "  Type:      %s\n", utils.StyleInfo("jobsub (HTCondor)"))
	fmt.Fprintf(out, "  Binary:    %s\n", utils.StylePath(info.Binary))
	if info.Version != "" {
		fmt.Fprintf(out, "  Version:   %s\n", utils.StyleNumber(info.Version))
	}
	fmt.Fprintf(out, "  Group:     %s\n", utils.StyleName(config.Global.Group))
	fmt.Fprintf(out, "  Wrapper:   %s\n", utils.StylePath(config.Global.WrapperScript))

	if info.InJob {
		fmt.Fprintf(out, "  Status:    %s (inside job)\n", utils.StyleError("Unavailable"))
		fmt.Fprintln(out)
		fmt.Fprintln(out, "You are currently inside a grid job (detected via environment).")
		fmt.Fprintln(out, "Job submission is disabled to prevent nested job submissions.")
		return
	} else if info.Available {
		fmt.Fprintf(out, "  Status:    %s\n", utils.StyleSuccess("Available"))
	} else {
		fmt.Fprintf(out, "  Status:    %s\n", utils.StyleError("Unavailable"))
	}

	if info.Version != "" && !jobsub.VersionAtLeast(info.Version, config.Global.MinJobsubVersion) {
		utils.PrintWarning("jobsub %s is older than the minimum supported version %s",
			info.Version, config.Global.MinJobsubVersion)
	}
	if !utils.FileExists(config.Global.WrapperScript) {
		utils.PrintWarning("Wrapper script %s does not exist. Set ANNIEGRIDUTILSDIR or wrapper_script.",
			utils.StylePath(config.Global.WrapperScript))
	}
}
