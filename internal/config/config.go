package config

import (
	"os"
	"path/filepath"
	"time"
)

const VERSION = "2.0.0"

// WrapperScriptName is the worker-node entry point shipped with the grid utilities.
const WrapperScriptName = "annie_sam_wrap.sh"

// Config holds global application settings
type Config struct {
	Debug   bool
	Version string

	SubmitBin        string
	WrapperScript    string
	MinJobsubVersion string

	Experiment          string
	Group               string
	SharedStoragePrefix string
	TestDestRoot        string
	SL7Image            string
	Exports             []string

	RecommendedSites []string
	ExcludedSites    []string

	MaxJobs       int
	MaxConcurrent int
	WarnDelay     time.Duration

	SamWeb SamWebConfig
}

// SamWebConfig holds the SAM data catalog connection settings
type SamWebConfig struct {
	BaseURL string
	Cert    string
	Key     string
	CADir   string
	Timeout time.Duration
}

// DefaultCADir is the grid CA directory used when X509_CERT_DIR is unset.
const DefaultCADir = "/etc/grid-security/certificates"

// Global holds the singleton configuration instance
var Global Config

// "Working" sites for all experiments, from the FIFE OSG site list.
var defaultRecommendedSites = []string{
	"BNL", "Caltech", "Clemson-Palmetto", "Colorado",
	"Cornell", "FermiGrid", "FNAL", "Michigan",
	"NotreDame", "Omaha", "SLATE_US_NMSU_DISCOVERY", "SU-ITS",
	"UChicago", "UConn-HPC", "UCSD", "Wisconsin",
}

// Sites found broken for ANNIE jobs through testing.
var defaultExcludedSites = []string{"Omaha", "Swan", "Wisconsin"}

var defaultExports = []string{
	"GRID_USER", "EXPERIMENT", "SAM_EXPERIMENT", "SAM_STATION", "SAM_PROJECT_NAME", "IFDH_BASE_URI",
}

// LoadDefaults resets Global to built-in defaults. The wrapper script is
// looked up next to the executable when ANNIEGRIDUTILSDIR is unset.
func LoadDefaults(executablePath string) {
	Global = Config{
		Debug:            false,
		Version:          VERSION,
		SubmitBin:        "jobsub_submit",
		WrapperScript:    defaultWrapperScript(executablePath),
		MinJobsubVersion: "1.0.0",

		Experiment:          "annie",
		Group:               "annie",
		SharedStoragePrefix: "/pnfs/",
		TestDestRoot:        "/pnfs/annie/scratch/users",
		SL7Image:            "/cvmfs/singularity.opensciencegrid.org/fermilab/fnal-wn-sl7:latest",
		Exports:             append([]string(nil), defaultExports...),

		RecommendedSites: append([]string(nil), defaultRecommendedSites...),
		ExcludedSites:    append([]string(nil), defaultExcludedSites...),

		MaxJobs:       5000,
		MaxConcurrent: 25000,
		WarnDelay:     5 * time.Second,

		SamWeb: SamWebConfig{
			BaseURL: "https://samweb.fnal.gov:8483/sam/annie/api",
			CADir:   defaultCADir(),
			Timeout: 60 * time.Second,
		},
	}
}

func defaultCADir() string {
	if dir := os.Getenv("X509_CERT_DIR"); dir != "" {
		return dir
	}
	return DefaultCADir
}

func defaultWrapperScript(executablePath string) string {
	if dir := os.Getenv("ANNIEGRIDUTILSDIR"); dir != "" {
		return filepath.Join(dir, WrapperScriptName)
	}
	if executablePath == "" {
		return WrapperScriptName
	}
	return filepath.Join(filepath.Dir(executablePath), WrapperScriptName)
}
