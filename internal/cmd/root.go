package cmd

import (
	"strings"

	"github.com/Iron-Ham/usbipd-manager/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "usbipd-manager",
	Short: "Share and attach USB devices with usbipd",
	Long: `usbipd-manager drives the usbipd command-line tool to share USB devices
with a WSL guest. Without a subcommand it opens an interactive device list
where devices can be bound, attached, detached and kept attached
automatically.`,
	SilenceUsage: true,
	RunE:         runUI,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.Version = Version

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/usbipd-manager/config.yaml)")
	rootCmd.PersistentFlags().String("wsl", "", "WSL distribution to attach to (default: the default distribution)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("backend.wsl_target", rootCmd.PersistentFlags().Lookup("wsl"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix(config.EnvPrefix)
	// Replace dots with underscores for nested keys in env vars
	// e.g., USBIPD_MANAGER_REFRESH_SETTLE_DELAY for refresh.settle_delay
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
