package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// AppName is used for the config directory and the environment prefix.
const AppName = "usbipd-manager"

// EnvPrefix is prepended to environment overrides, e.g.
// USBIPD_MANAGER_BACKEND_WSL_TARGET.
const EnvPrefix = "USBIPD_MANAGER"

// Config represents the complete usbipd-manager configuration
type Config struct {
	Backend    BackendConfig    `mapstructure:"backend" yaml:"backend"`
	AutoAttach AutoAttachConfig `mapstructure:"auto_attach" yaml:"auto_attach"`
	Refresh    RefreshConfig    `mapstructure:"refresh" yaml:"refresh"`
	TUI        TUIConfig        `mapstructure:"tui" yaml:"tui"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
}

// BackendConfig controls how the usbipd executable is invoked
type BackendConfig struct {
	// Path is the usbipd executable, looked up in PATH when not absolute
	Path string `mapstructure:"path" yaml:"path"`
	// WSLTarget is the distribution passed to --wsl (empty: the default distribution)
	WSLTarget string `mapstructure:"wsl_target" yaml:"wsl_target"`
	// CommandTimeout bounds attach and detach (default: 20s)
	CommandTimeout time.Duration `mapstructure:"command_timeout" yaml:"command_timeout"`
	// ListTimeout bounds each device poll (default: 10s)
	ListTimeout time.Duration `mapstructure:"list_timeout" yaml:"list_timeout"`
	// ElevateCommand wraps bind/unbind on Linux and macOS (default: pkexec).
	// Windows always uses the UAC prompt.
	ElevateCommand string `mapstructure:"elevate_command" yaml:"elevate_command"`
}

// AutoAttachConfig controls the auto-attach supervisor
type AutoAttachConfig struct {
	// StateFile holds the desired set; relative paths are under the config directory
	StateFile string `mapstructure:"state_file" yaml:"state_file"`
	// StopTimeout is how long a loop gets to exit before it is killed (default: 5s)
	StopTimeout time.Duration `mapstructure:"stop_timeout" yaml:"stop_timeout"`
	// SweepOrphans terminates loops left running by a previous crash at startup
	SweepOrphans bool `mapstructure:"sweep_orphans" yaml:"sweep_orphans"`
}

// RefreshConfig controls polling
type RefreshConfig struct {
	// SettleDelay is the pause between a mutating command and the re-poll (default: 1s)
	SettleDelay time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	// Interval enables periodic refresh in the UI (0 = disabled)
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

// TUIConfig controls the terminal UI behavior
type TUIConfig struct {
	// DescriptionWidth truncates device descriptions in the list (default: 48, min: 16, max: 200)
	DescriptionWidth int `mapstructure:"description_width" yaml:"description_width"`
	// AltScreen runs the UI in the alternate screen buffer
	AltScreen bool `mapstructure:"alt_screen" yaml:"alt_screen"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether logging is enabled (default: true)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Level is the minimum log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level" yaml:"level"`
	// Dir is the log directory (empty: <config dir>/logs)
	Dir string `mapstructure:"dir" yaml:"dir"`
	// MaxSizeMB is the maximum size in megabytes before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	// MaxBackups is the number of rotated files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			Path:           "usbipd",
			WSLTarget:      "",
			CommandTimeout: 20 * time.Second,
			ListTimeout:    10 * time.Second,
			ElevateCommand: "pkexec",
		},
		AutoAttach: AutoAttachConfig{
			StateFile:    "auto_attach.json",
			StopTimeout:  5 * time.Second,
			SweepOrphans: true,
		},
		Refresh: RefreshConfig{
			SettleDelay: time.Second,
			Interval:    0,
		},
		TUI: TUIConfig{
			DescriptionWidth: 48,
			AltScreen:        true,
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			Dir:        "",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// SetDefaults registers default values with the global viper instance
func SetDefaults() {
	setDefaults(viper.GetViper())
}

func setDefaults(v *viper.Viper) {
	defaults := Default()

	// Backend defaults
	v.SetDefault("backend.path", defaults.Backend.Path)
	v.SetDefault("backend.wsl_target", defaults.Backend.WSLTarget)
	v.SetDefault("backend.command_timeout", defaults.Backend.CommandTimeout)
	v.SetDefault("backend.list_timeout", defaults.Backend.ListTimeout)
	v.SetDefault("backend.elevate_command", defaults.Backend.ElevateCommand)

	// Auto-attach defaults
	v.SetDefault("auto_attach.state_file", defaults.AutoAttach.StateFile)
	v.SetDefault("auto_attach.stop_timeout", defaults.AutoAttach.StopTimeout)
	v.SetDefault("auto_attach.sweep_orphans", defaults.AutoAttach.SweepOrphans)

	// Refresh defaults
	v.SetDefault("refresh.settle_delay", defaults.Refresh.SettleDelay)
	v.SetDefault("refresh.interval", defaults.Refresh.Interval)

	// TUI defaults
	v.SetDefault("tui.description_width", defaults.TUI.DescriptionWidth)
	v.SetDefault("tui.alt_screen", defaults.TUI.AltScreen)

	// Logging defaults
	v.SetDefault("logging.enabled", defaults.Logging.Enabled)
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.dir", defaults.Logging.Dir)
	v.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
}

// Load reads the configuration from the global viper instance and validates it
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads the configuration from v and validates it
func LoadFrom(v *viper.Viper) (*Config, error) {
	var cfg Config
	err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// StateFilePath returns the absolute location of the auto-attach state file
func (c *AutoAttachConfig) StateFilePath() string {
	return resolve(c.StateFile, ConfigDir())
}

// LogDir returns the directory log files are written to
func (c *LoggingConfig) LogDir() string {
	if c.Dir == "" {
		return filepath.Join(ConfigDir(), "logs")
	}
	return resolve(c.Dir, ConfigDir())
}

// resolve expands ~ and makes path absolute relative to baseDir
func resolve(path, baseDir string) string {
	if len(path) >= 2 && path[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	return path
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	// Fall back to ~/.config/usbipd-manager
	home, err := os.UserHomeDir()
	if err != nil {
		return "." + AppName
	}
	return filepath.Join(home, ".config", AppName)
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
