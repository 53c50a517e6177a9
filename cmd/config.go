package cmd

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/atcsutton/ANNIEGrid/internal/config"
	"github.com/atcsutton/ANNIEGrid/internal/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var initForce bool

// listKeys hold lists and are edited in the config file, not with 'config set'.
var listKeys = map[string]bool{
	"exports":           true,
	"sites.recommended": true,
	"sites.excluded":    true,
}

// configKeysCompletion returns config keys for shell completion
func configKeysCompletion(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.Keys, cobra.ShellCompDirectiveNoFileComp
	}
	if len(args) == 1 {
		return configValueCompletion(args[0]), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

// configValueCompletion returns suggested values for a config key
func configValueCompletion(key string) []string {
	switch key {
	case "warn_delay":
		return []string{"0s", "5s", "10s"}
	case "samweb.timeout":
		return []string{"30s", "60s", "2m"}
	case "max_jobs":
		return []string{"5000"}
	case "max_concurrent":
		return []string{"25000"}
	default:
		return nil
	}
}

// getConfigEnvVars returns the environment variable for every config key, sorted.
func getConfigEnvVars() []string {
	vars := make([]string, 0, len(config.Keys))
	for _, key := range config.Keys {
		vars = append(vars, config.EnvVarForKey(key))
	}
	sort.Strings(vars)
	return vars
}

// validateConfigValue checks that value parses as the type stored under key.
func validateConfigValue(key, value string) error {
	switch key {
	case "warn_delay", "samweb.timeout":
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration %q for %s (use e.g. 5s, 1m)", value, key)
		}
	case "max_jobs", "max_concurrent":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return fmt.Errorf("%s must be a positive integer, got %q", key, value)
		}
	}
	return nil
}

func isKnownKey(key string) bool {
	for _, k := range config.Keys {
		if k == key {
			return true
		}
	}
	return false
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage submit_annie_jobs configuration",
	Long: `Manage submit_annie_jobs configuration settings.

Configuration priority (highest to lowest):
  1. Command-line flags
  2. Environment variables (ANNIEGRID_*)
  3. User config file (~/.config/anniegrid/config.yaml)
  4. System config file (/etc/anniegrid/config.yaml)
  5. Defaults`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()

		fmt.Fprintln(out, utils.StyleTitle("Config File:"))
		if used := viper.ConfigFileUsed(); used != "" {
			fmt.Fprintf(out, "  %s %s\n", utils.StylePath(used), utils.StyleSuccess("← in use"))
		} else {
			fmt.Fprintf(out, "  %s (use 'submit_annie_jobs config init' to create)\n", utils.StyleWarning("No config file found"))
		}
		fmt.Fprintln(out)

		fmt.Fprintln(out, utils.StyleTitle("Settings:"))
		for _, key := range config.Keys {
			fmt.Fprintf(out, "  %-22s %v\n", key+":", viper.Get(key))
		}
		fmt.Fprintln(out)

		fmt.Fprintln(out, utils.StyleTitle("Effective:"))
		fmt.Fprintf(out, "  submit binary:   %s\n", utils.StylePath(config.Global.SubmitBin))
		fmt.Fprintf(out, "  wrapper script:  %s\n", utils.StylePath(config.Global.WrapperScript))
		if config.Global.SamWeb.Cert != "" {
			fmt.Fprintf(out, "  samweb cert:     %s\n", utils.StylePath(config.Global.SamWeb.Cert))
		}
		fmt.Fprintln(out)

		fmt.Fprintln(out, utils.StyleTitle("Environment Overrides:"))
		hasEnvOverrides := false
		for _, envVar := range getConfigEnvVars() {
			if val := os.Getenv(envVar); val != "" {
				fmt.Fprintf(out, "  %s=%s\n", envVar, val)
				hasEnvOverrides = true
			}
		}
		if !hasEnvOverrides {
			fmt.Fprintf(out, "  %s\n", utils.StyleInfo("none"))
		}
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	Long: `Print the config file in use, or the user config file that
'config init' and 'config set' write to when none exists yet.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if used := viper.ConfigFileUsed(); used != "" {
			fmt.Fprintln(cmd.OutOrStdout(), used)
			return nil
		}
		configPath, err := config.GetUserConfigPath()
		if err != nil {
			return fmt.Errorf("failed to get config path: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), configPath)
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:               "get <key>",
	Short:             "Get a configuration value",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: configKeysCompletion,
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		if !isKnownKey(key) {
			return fmt.Errorf("unknown config key: %s", key)
		}
		value := viper.Get(key)
		if list, ok := value.([]string); ok {
			value = strings.Join(list, ",")
		}
		fmt.Fprintln(cmd.OutOrStdout(), value)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value and save it to the user config file.

Examples:
  submit_annie_jobs config set submit_bin /opt/jobsub/bin/jobsub_submit
  submit_annie_jobs config set warn_delay 0s
  submit_annie_jobs config set samweb.cert ~/.globus/usercert.pem`,
	Args:              cobra.ExactArgs(2),
	ValidArgsFunction: configKeysCompletion,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if listKeys[key] {
			utils.PrintHint("Config file (YAML list):\n  %s:\n    - value1\n    - value2", key)
			return fmt.Errorf("'%s' is a list setting; edit the config file instead", key)
		}
		if !isKnownKey(key) {
			utils.PrintWarning("'%s' is not a standard config key", key)
		}
		if err := validateConfigValue(key, value); err != nil {
			return err
		}

		viper.Set(key, value)
		if err := config.SaveConfig(); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		configPath, _ := config.GetUserConfigPath()
		utils.PrintSuccess("Set %s = %s", utils.StyleInfo(key), utils.StyleInfo(value))
		utils.PrintNote("Config saved to: %s", configPath)
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a config file with defaults",
	Long: `Write the current settings (defaults plus any overrides) to the user
config file. An existing file is kept unless --force is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, err := config.GetUserConfigPath()
		if err != nil {
			return fmt.Errorf("failed to get config path: %w", err)
		}
		if utils.FileExists(configPath) && !initForce {
			utils.PrintHint("Use --force to overwrite it.")
			return fmt.Errorf("config file already exists: %s", configPath)
		}

		if detected := config.DetectSubmitBin(); detected != "" {
			viper.Set("submit_bin", detected)
		}
		if err := config.SaveConfig(); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		utils.PrintSuccess("Config file created: %s", utils.StylePath(configPath))
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)

	rootCmd.AddCommand(configCmd)
}
