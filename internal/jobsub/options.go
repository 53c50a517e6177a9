package jobsub

// Options is an immutable record of the two option lists being assembled:
// jobsub_submit options and wrapper-script options, plus the variables
// exported to the job. Every With* method returns a new record and leaves
// the receiver untouched.
type Options struct {
	scheduler []string
	wrapper   []string
	exports   []string
}

// Scheduler returns a copy of the jobsub_submit options.
func (o Options) Scheduler() []string { return cloneStrings(o.scheduler) }

// Wrapper returns a copy of the wrapper-script options.
func (o Options) Wrapper() []string { return cloneStrings(o.wrapper) }

// Exports returns a copy of the exported variable list.
func (o Options) Exports() []string { return cloneStrings(o.exports) }

// WithScheduler returns o with opts appended to the jobsub_submit options.
func (o Options) WithScheduler(opts ...string) Options {
	o.scheduler = appendCopy(o.scheduler, opts...)
	return o
}

// WithWrapper returns o with opts appended to the wrapper options.
func (o Options) WithWrapper(opts ...string) Options {
	o.wrapper = appendCopy(o.wrapper, opts...)
	return o
}

// WithExports returns o with vars appended to the export list, skipping
// entries already present.
func (o Options) WithExports(vars ...string) Options {
	seen := make(map[string]bool, len(o.exports))
	for _, v := range o.exports {
		seen[v] = true
	}
	var fresh []string
	for _, v := range vars {
		if !seen[v] {
			seen[v] = true
			fresh = append(fresh, v)
		}
	}
	o.exports = appendCopy(o.exports, fresh...)
	return o
}

func appendCopy(base []string, extra ...string) []string {
	out := make([]string, 0, len(base)+len(extra))
	out = append(out, base...)
	return append(out, extra...)
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}
