// Package jobsub turns an ANNIE job description into a jobsub_submit command
// line and runs it.
package jobsub

import (
	"strings"
)

// ScriptKind names a worker-node script hook; the value doubles as the flag
// name on both the submission tool and the wrapper script.
type ScriptKind string

const (
	EarlySource ScriptKind = "earlysource"
	EarlyScript ScriptKind = "earlyscript"
	Source      ScriptKind = "source"
	PreScript   ScriptKind = "prescript"
	PostScript  ScriptKind = "postscript"
)

// ScriptKinds lists the hooks in the order the wrapper runs them.
var ScriptKinds = []ScriptKind{EarlySource, EarlyScript, Source, PreScript, PostScript}

// ScriptOption is one path[:arg:arg...] hook value.
type ScriptOption struct {
	Kind  ScriptKind
	Value string
}

// Path returns the script path, without the colon-separated arguments.
func (s ScriptOption) Path() string {
	if idx := strings.IndexByte(s.Value, ':'); idx >= 0 {
		return s.Value[:idx]
	}
	return s.Value
}

// Flag returns the long flag used for this hook ("--earlysource").
func (s ScriptOption) Flag() string {
	return "--" + string(s.Kind)
}

// Request is the declarative description of one submission.
type Request struct {
	// Required
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
	Scripts        map[ScriptKind][]string

	NoRename  bool
	NoJobDirs bool
	QuickCopy bool

	// Job control
	NJobs            int
	FilesPerJob      int
	NEvents          int
	Disk             int // MB
	Memory           int // MB
	CPU              int
	MaxConcurrent    int
	ExpectedLifetime string
	GraceMemory      string
	GraceLifetime    string
	KillAfter        int // seconds, 0 = unset

	// Placement
	Sites        []string
	ExcludeSites []string
	AllSites     bool
	OnsiteOnly   bool
	OffsiteOnly  bool
	GridSL7      bool

	// Test adds --no-submit --debug to the submission.
	Test bool
}

// DefaultRequest returns a Request carrying the documented flag defaults.
func DefaultRequest() Request {
	return Request{
		NEvents:          -1,
		Disk:             10000,
		Memory:           1900,
		CPU:              1,
		ExpectedLifetime: "10800",
		GraceMemory:      "1024",
		GraceLifetime:    "10800",
	}
}

// ScriptOptions returns every hook value grouped by kind in wrapper order,
// preserving the order given within each kind.
func (r Request) ScriptOptions() []ScriptOption {
	var out []ScriptOption
	for _, kind := range ScriptKinds {
		for _, value := range r.Scripts[kind] {
			out = append(out, ScriptOption{Kind: kind, Value: value})
		}
	}
	return out
}
