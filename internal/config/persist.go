package config

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// ConfigFilename is the name of the config file
const ConfigFilename = "config"

// ConfigType is the type of config file (yaml, json, toml)
const ConfigType = "yaml"

// EnvPrefix is the prefix for environment overrides (ANNIEGRID_SUBMIT_BIN, ...)
const EnvPrefix = "ANNIEGRID"

// envKeyReplacer maps nested keys onto environment names:
// samweb.base_url -> ANNIEGRID_SAMWEB_BASE_URL
var envKeyReplacer = strings.NewReplacer(".", "_")

// EnvVarForKey returns the environment variable that overrides key.
func EnvVarForKey(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(envKeyReplacer.Replace(key))
}

// Keys lists every configuration key understood by the tool.
var Keys = []string{
	"submit_bin",
	"wrapper_script",
	"min_jobsub_version",
	"experiment",
	"group",
	"shared_storage_prefix",
	"test_dest_root",
	"sl7_image",
	"exports",
	"sites.recommended",
	"sites.excluded",
	"max_jobs",
	"max_concurrent",
	"warn_delay",
	"samweb.base_url",
	"samweb.cert",
	"samweb.key",
	"samweb.ca_dir",
	"samweb.timeout",
}

// InitViper initializes Viper with proper search paths and defaults.
// LoadDefaults must run first; its values become the Viper defaults.
// Priority (highest to lowest):
// 1. Command-line flags (handled by cobra)
// 2. Environment variables (ANNIEGRID_*)
// 3. User config file (~/.config/anniegrid/config.yaml)
// 4. System config file (/etc/anniegrid/config.yaml)
// 5. Defaults
func InitViper() error {
	viper.SetConfigName(ConfigFilename)
	viper.SetConfigType(ConfigType)

	if userConfigDir, err := os.UserConfigDir(); err == nil {
		viper.AddConfigPath(filepath.Join(userConfigDir, "anniegrid"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(filepath.Join(home, ".anniegrid"))
	}
	viper.AddConfigPath("/etc/anniegrid")
	viper.AddConfigPath(".")

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

// setDefaults mirrors Global into Viper's default layer
func setDefaults() {
	viper.SetDefault("submit_bin", Global.SubmitBin)
	viper.SetDefault("wrapper_script", Global.WrapperScript)
	viper.SetDefault("min_jobsub_version", Global.MinJobsubVersion)

	viper.SetDefault("experiment", Global.Experiment)
	viper.SetDefault("group", Global.Group)
	viper.SetDefault("shared_storage_prefix", Global.SharedStoragePrefix)
	viper.SetDefault("test_dest_root", Global.TestDestRoot)
	viper.SetDefault("sl7_image", Global.SL7Image)
	viper.SetDefault("exports", Global.Exports)

	viper.SetDefault("sites.recommended", Global.RecommendedSites)
	viper.SetDefault("sites.excluded", Global.ExcludedSites)

	viper.SetDefault("max_jobs", Global.MaxJobs)
	viper.SetDefault("max_concurrent", Global.MaxConcurrent)
	viper.SetDefault("warn_delay", Global.WarnDelay.String())

	viper.SetDefault("samweb.base_url", Global.SamWeb.BaseURL)
	viper.SetDefault("samweb.cert", Global.SamWeb.Cert)
	viper.SetDefault("samweb.key", Global.SamWeb.Key)
	viper.SetDefault("samweb.ca_dir", Global.SamWeb.CADir)
	viper.SetDefault("samweb.timeout", Global.SamWeb.Timeout.String())
}

// GetUserConfigPath returns the path to the user config file
func GetUserConfigPath() (string, error) {
	userConfigDir, err := os.UserConfigDir()
	if err != nil {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".anniegrid", ConfigFilename+"."+ConfigType), nil
	}

	return filepath.Join(userConfigDir, "anniegrid", ConfigFilename+"."+ConfigType), nil
}

// SaveConfig saves current Viper config to user config file
func SaveConfig() error {
	configPath, err := GetUserConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := viper.WriteConfigAs(configPath); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ValidateBinary checks if a binary exists and is executable
func ValidateBinary(binPath string) bool {
	if binPath == "" {
		return false
	}

	if filepath.IsAbs(binPath) {
		info, err := os.Stat(binPath)
		if err != nil {
			return false
		}
		return info.Mode()&0111 != 0
	}

	_, err := exec.LookPath(binPath)
	return err == nil
}

// DetectSubmitBin returns the full path of jobsub_submit from PATH, or "".
func DetectSubmitBin() string {
	if path, err := exec.LookPath("jobsub_submit"); err == nil {
		return path
	}
	return ""
}

// LoadFromViper loads config from Viper into Global struct
func LoadFromViper() {
	if bin := viper.GetString("submit_bin"); bin != "" {
		if ValidateBinary(expandHome(bin)) {
			Global.SubmitBin = expandHome(bin)
		} else if detected := DetectSubmitBin(); detected != "" {
			Global.SubmitBin = detected
		} else {
			Global.SubmitBin = bin
		}
	}

	if wrapper := viper.GetString("wrapper_script"); wrapper != "" {
		Global.WrapperScript = expandHome(wrapper)
	}
	if v := viper.GetString("min_jobsub_version"); v != "" {
		Global.MinJobsubVersion = v
	}

	if v := viper.GetString("experiment"); v != "" {
		Global.Experiment = v
	}
	if v := viper.GetString("group"); v != "" {
		Global.Group = v
	}
	if v := viper.GetString("shared_storage_prefix"); v != "" {
		Global.SharedStoragePrefix = v
	}
	if v := viper.GetString("test_dest_root"); v != "" {
		Global.TestDestRoot = expandHome(v)
	}
	if v := viper.GetString("sl7_image"); v != "" {
		Global.SL7Image = v
	}
	if viper.IsSet("exports") {
		Global.Exports = viper.GetStringSlice("exports")
	}

	if viper.IsSet("sites.recommended") {
		Global.RecommendedSites = viper.GetStringSlice("sites.recommended")
	}
	if viper.IsSet("sites.excluded") {
		Global.ExcludedSites = viper.GetStringSlice("sites.excluded")
	}

	if v := viper.GetInt("max_jobs"); v > 0 {
		Global.MaxJobs = v
	}
	if v := viper.GetInt("max_concurrent"); v > 0 {
		Global.MaxConcurrent = v
	}
	if viper.IsSet("warn_delay") {
		if d := viper.GetDuration("warn_delay"); d >= 0 {
			Global.WarnDelay = d
		}
	}

	if v := viper.GetString("samweb.base_url"); v != "" {
		Global.SamWeb.BaseURL = v
	}
	Global.SamWeb.Cert = expandHome(viper.GetString("samweb.cert"))
	Global.SamWeb.Key = expandHome(viper.GetString("samweb.key"))
	if Global.SamWeb.Cert == "" {
		// A grid proxy holds both the certificate and the key.
		if proxy := os.Getenv("X509_USER_PROXY"); proxy != "" {
			Global.SamWeb.Cert = proxy
			Global.SamWeb.Key = proxy
		}
	}
	if v := viper.GetString("samweb.ca_dir"); v != "" {
		Global.SamWeb.CADir = expandHome(v)
	}
	if d := viper.GetDuration("samweb.timeout"); d > 0 {
		Global.SamWeb.Timeout = d
	}
}

func expandHome(path string) string {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return path
	}
	return expanded
}
