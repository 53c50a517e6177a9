package jobsub

import (
	"strings"

	"github.com/kballard/go-shellquote"
)

// Command is a fully assembled jobsub_submit invocation.
type Command struct {
	Binary    string   // Submission tool
	JobCount  int      // Value passed with -N (0 when unset)
	Scheduler []string // jobsub_submit options, ending with the wrapper executable
	Wrapper   []string // Options passed on to the wrapper script
}

// String formats the command line exactly as it is printed and run.
func (c *Command) String() string {
	parts := make([]string, 0, 1+len(c.Scheduler)+len(c.Wrapper))
	parts = append(parts, c.Binary)
	parts = append(parts, c.Scheduler...)
	parts = append(parts, c.Wrapper...)
	return strings.Join(parts, " ")
}

// Argv splits the command line into arguments using shell quoting rules,
// yielding what a POSIX shell would pass to the submission tool.
func (c *Command) Argv() ([]string, error) {
	return shellquote.Split(c.String())
}
