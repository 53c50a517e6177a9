package jobsub

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/atcsutton/ANNIEGrid/internal/utils"
)

// FileCounter counts the files behind a dataset definition.
type FileCounter interface {
	CountFiles(ctx context.Context, defname string) (int, error)
}

// Planner validates a Request and assembles its Command.
type Planner struct {
	Policy  Policy
	Counter FileCounter

	// Sleep is called with Policy.WarnDelay after every warning.
	Sleep func(time.Duration)
}

// NewPlanner creates a Planner that pauses with time.Sleep after warnings.
func NewPlanner(policy Policy, counter FileCounter) *Planner {
	return &Planner{
		Policy:  policy,
		Counter: counter,
		Sleep:   time.Sleep,
	}
}

// step derives the next options record from the previous one.
type step func(Options, Request) Options

// Plan validates req and builds the submission command. No command is
// returned unless every rule passes.
func (p *Planner) Plan(ctx context.Context, req Request) (*Command, error) {
	if err := Validate(req, p.Policy); err != nil {
		return nil, err
	}

	lifetime, err := ParseLifetime(req.ExpectedLifetime)
	if err != nil {
		return nil, NewValidationError("--expected_lifetime", req.ExpectedLifetime, err)
	}

	opts := Options{}.WithExports(p.Policy.BaseExports...)

	opts, njobs, err := p.withJobCount(ctx, opts, req)
	if err != nil {
		return nil, err
	}
	if njobs > p.Policy.MaxJobs && req.MaxConcurrent == 0 {
		return nil, &LimitError{
			Field:     "number of jobs",
			Requested: njobs,
			Limit:     p.Policy.MaxJobs,
			Hint: fmt.Sprintf("Please break your submission into multiple batches of %d (or less) jobs,\n"+
				"and after submitting the first batch, use --continue_project with the project\n"+
				"that results from the first submission for the remaining batches.\n"+
				"Please separate submissions by 5 minutes.", p.Policy.MaxJobs),
		}
	}

	steps := []step{
		withConcurrency,
		p.withPlacement,
		withResources,
		withAutoRelease,
		p.withImage,
		func(o Options, _ Request) Options { return o.WithScheduler("--expected-lifetime=" + lifetime) },
		p.withGroup,
		withTestMode,
		withStaging,
		withUserExports,
		p.withExecutable,
		withWrapperSettings,
	}
	for _, s := range steps {
		opts = s(opts, req)
	}

	return &Command{
		Binary:    p.Policy.SubmitBin,
		JobCount:  njobs,
		Scheduler: opts.Scheduler(),
		Wrapper:   opts.Wrapper(),
	}, nil
}

// warn prints a non-fatal warning and gives the user time to abort.
func (p *Planner) warn(format string, a ...interface{}) {
	utils.PrintWarning(format, a...)
	if p.Policy.WarnDelay > 0 && p.Sleep != nil {
		p.Sleep(p.Policy.WarnDelay)
	}
}

func (p *Planner) withJobCount(ctx context.Context, opts Options, req Request) (Options, int, error) {
	switch {
	case req.FilesPerJob > 0 && req.NJobs > 0:
		return opts.WithScheduler(fmt.Sprintf("-N %d", req.NJobs)).
			WithWrapper(fmt.Sprintf("--limit %d", req.FilesPerJob)), req.NJobs, nil

	case req.FilesPerJob > 0:
		if p.Counter == nil {
			return opts, 0, ErrNoFileCounter
		}
		numFiles, err := p.Counter.CountFiles(ctx, req.DefName)
		if err != nil {
			return opts, 0, fmt.Errorf("failed to count files in %s: %w", req.DefName, err)
		}
		njobs := JobCount(numFiles, req.FilesPerJob)
		utils.PrintDebug("Dataset %s has %d files; %d per job gives %d jobs",
			req.DefName, numFiles, req.FilesPerJob, njobs)
		return opts.WithScheduler(fmt.Sprintf("-N %d", njobs)).
			WithWrapper(fmt.Sprintf("--limit %d", req.FilesPerJob)), njobs, nil

	case req.NJobs > 0:
		return opts.WithScheduler(fmt.Sprintf("-N %d", req.NJobs)), req.NJobs, nil

	default:
		p.warn("Neither --njobs or --files_per_job were specified. Are you sure you want that? "+
			"Sleeping for %s while you think about it", p.Policy.WarnDelay)
		return opts, 0, nil
	}
}

func withConcurrency(o Options, req Request) Options {
	if req.MaxConcurrent > 0 {
		return o.WithScheduler(fmt.Sprintf("--maxConcurrent=%d", req.MaxConcurrent))
	}
	return o
}

// withPlacement adds usage models, the allowed-site clause and one
// requirement per excluded site.
func (p *Planner) withPlacement(o Options, req Request) Options {
	o = o.WithScheduler("--resource-provides=usage_model=" + strings.Join(UsageModels(req.OnsiteOnly, req.OffsiteOnly), ","))
	if !req.OnsiteOnly {
		o = o.WithExports("IS_OFFSITE=1")
	}

	useRecommended := !req.OnsiteOnly && len(req.Sites) == 0 && !req.AllSites
	if useRecommended || (len(req.Sites) > 0 && !req.AllSites) {
		var sites []string
		if useRecommended {
			sites = append(sites, p.Policy.RecommendedSites...)
		}
		for _, site := range req.Sites {
			if !p.Policy.IsRecommendedSite(site) {
				p.warn("Site %s is not known to work. Your jobs may fail at that site. Sleeping for %s",
					utils.StyleName(site), p.Policy.WarnDelay)
			}
			sites = append(sites, site)
		}
		if len(sites) > 0 {
			o = o.WithScheduler("--site=" + strings.Join(sites, ","))
		}
	}

	for _, site := range dedupe(append(append([]string(nil), p.Policy.ExcludedSites...), req.ExcludeSites...)) {
		o = o.WithScheduler(fmt.Sprintf(`--append_condor_requirements='(TARGET.GLIDEIN_Site\ isnt\ \"%s\")'`, site))
	}
	return o
}

func withResources(o Options, req Request) Options {
	if req.Disk > 0 {
		o = o.WithScheduler(fmt.Sprintf("--disk=%dMB", req.Disk))
	}
	if req.Memory > 0 {
		o = o.WithScheduler(fmt.Sprintf("--memory=%dMB", req.Memory))
	}
	if req.CPU > 0 {
		o = o.WithScheduler(fmt.Sprintf("--cpu=%d", req.CPU))
	}
	return o
}

// withAutoRelease lets held jobs be released and resubmitted with more
// memory or lifetime.
func withAutoRelease(o Options, req Request) Options {
	return o.WithScheduler(
		"--lines '+FERMIHTC_AutoRelease=True'",
		"--lines '+FERMIHTC_GraceMemory="+strings.TrimSpace(req.GraceMemory)+"'",
		"--lines '+FERMIHTC_GraceLifetime="+strings.TrimSpace(req.GraceLifetime)+"'",
	)
}

func (p *Planner) withImage(o Options, req Request) Options {
	if req.GridSL7 {
		return o.WithScheduler("--singularity-image " + p.Policy.SL7Image)
	}
	return o
}

func (p *Planner) withGroup(o Options, _ Request) Options {
	return o.WithScheduler("-G " + p.Policy.Group)
}

func withTestMode(o Options, req Request) Options {
	if req.Test {
		return o.WithScheduler("--no-submit", "--debug")
	}
	return o
}

// withStaging ships input files, the copy-out script and every hook script
// to the worker node. Hook values, arguments included, go to the wrapper.
func withStaging(o Options, req Request) Options {
	for _, f := range req.InputFiles {
		o = o.WithScheduler(dropbox(f))
	}
	if req.CopyOutScript != "" {
		o = o.WithScheduler(dropbox(req.CopyOutScript))
	}
	for _, script := range req.ScriptOptions() {
		path := script.Path()
		forwarded := utils.ExpandPath(path) + strings.TrimPrefix(script.Value, path)
		o = o.WithScheduler(dropbox(path)).WithWrapper(script.Flag() + " " + forwarded)
	}
	return o
}

func withUserExports(o Options, req Request) Options {
	return o.WithExports(req.Exports...).WithExports("DEST=" + utils.ExpandPath(req.Dest))
}

// withExecutable adds the exported variables, the tarball and the wrapper
// script itself. It must run after every step that adds exports.
func (p *Planner) withExecutable(o Options, req Request) Options {
	for _, v := range o.Exports() {
		o = o.WithScheduler("-e " + v)
	}
	return o.WithScheduler(dropbox(req.Tarball), "file://"+p.Policy.WrapperScript)
}

func withWrapperSettings(o Options, req Request) Options {
	o = o.WithWrapper(
		"--tarball "+filepath.Base(req.Tarball),
		"--config "+req.Config,
		"--input_file_config "+req.InputFileConfig,
		fmt.Sprintf(`--nevents "%d"`, req.NEvents),
	)
	if req.InputConfigVar != "" {
		o = o.WithWrapper("--input_config_var " + req.InputConfigVar)
	}
	if req.CopyOutScript != "" {
		o = o.WithWrapper("--copy_out_script " + filepath.Base(req.CopyOutScript))
	}
	if !req.NoRename {
		o = o.WithWrapper("--rename_outputs")
	}
	if !req.NoJobDirs {
		o = o.WithWrapper("--job_dirs")
	}
	if req.QuickCopy {
		o = o.WithWrapper("--quick_copy")
	}
	if req.KillAfter > 0 {
		o = o.WithWrapper(fmt.Sprintf("--self_destruct_timer %d", req.KillAfter))
	}
	return o
}

func dropbox(path string) string {
	return "-f dropbox://" + utils.ExpandPath(path)
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
