package jobsub

import (
	"time"

	"github.com/atcsutton/ANNIEGrid/internal/config"
)

// Policy holds the site and resource rules that are not user-controlled.
type Policy struct {
	SubmitBin           string
	WrapperScript       string
	Group               string
	SharedStoragePrefix string
	SL7Image            string
	BaseExports         []string
	RecommendedSites    []string
	ExcludedSites       []string
	MaxJobs             int
	MaxConcurrent       int
	WarnDelay           time.Duration
}

// PolicyFromConfig builds a Policy from loaded configuration.
func PolicyFromConfig(cfg config.Config) Policy {
	return Policy{
		SubmitBin:           cfg.SubmitBin,
		WrapperScript:       cfg.WrapperScript,
		Group:               cfg.Group,
		SharedStoragePrefix: cfg.SharedStoragePrefix,
		SL7Image:            cfg.SL7Image,
		BaseExports:         append([]string(nil), cfg.Exports...),
		RecommendedSites:    append([]string(nil), cfg.RecommendedSites...),
		ExcludedSites:       append([]string(nil), cfg.ExcludedSites...),
		MaxJobs:             cfg.MaxJobs,
		MaxConcurrent:       cfg.MaxConcurrent,
		WarnDelay:           cfg.WarnDelay,
	}
}

// IsRecommendedSite reports whether site is on the known-working list.
func (p Policy) IsRecommendedSite(site string) bool {
	for _, s := range p.RecommendedSites {
		if s == site {
			return true
		}
	}
	return false
}

// UsageModels returns the resource-provides usage models for a placement choice.
func UsageModels(onsiteOnly, offsiteOnly bool) []string {
	if offsiteOnly {
		return []string{"OFFSITE"}
	}
	models := []string{"DEDICATED", "OPPORTUNISTIC"}
	if !onsiteOnly {
		models = append(models, "OFFSITE")
	}
	return models
}

// JobCount derives the number of jobs needed to cover numFiles at
// filesPerJob files each. One job is always added on top of the quotient.
func JobCount(numFiles, filesPerJob int) int {
	return numFiles/filesPerJob + 1
}
