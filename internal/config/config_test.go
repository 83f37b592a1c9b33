package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Backend.Path != "usbipd" {
		t.Errorf("Backend.Path = %q, want %q", cfg.Backend.Path, "usbipd")
	}
	if cfg.Backend.CommandTimeout != 20*time.Second {
		t.Errorf("Backend.CommandTimeout = %v, want 20s", cfg.Backend.CommandTimeout)
	}
	if cfg.Backend.ListTimeout != 10*time.Second {
		t.Errorf("Backend.ListTimeout = %v, want 10s", cfg.Backend.ListTimeout)
	}
	if cfg.AutoAttach.StateFile != "auto_attach.json" {
		t.Errorf("AutoAttach.StateFile = %q", cfg.AutoAttach.StateFile)
	}
	if !cfg.AutoAttach.SweepOrphans {
		t.Error("AutoAttach.SweepOrphans should default to true")
	}
	if cfg.Refresh.SettleDelay != time.Second {
		t.Errorf("Refresh.SettleDelay = %v, want 1s", cfg.Refresh.SettleDelay)
	}
	if cfg.Refresh.Interval != 0 {
		t.Errorf("Refresh.Interval = %v, want 0", cfg.Refresh.Interval)
	}
	if cfg.TUI.DescriptionWidth != 48 {
		t.Errorf("TUI.DescriptionWidth = %d, want 48", cfg.TUI.DescriptionWidth)
	}
	if !cfg.Logging.Enabled || cfg.Logging.Level != "info" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestLoadFrom_DefaultsAndOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg, err := LoadFrom(v)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Backend.CommandTimeout != 20*time.Second {
		t.Errorf("CommandTimeout = %v, want 20s", cfg.Backend.CommandTimeout)
	}

	v.SetConfigType("yaml")
	yamlConfig := `
backend:
  wsl_target: Ubuntu
  command_timeout: 45s
refresh:
  settle_delay: 1500ms
  interval: 30s
`
	if err := v.ReadConfig(strings.NewReader(yamlConfig)); err != nil {
		t.Fatalf("ReadConfig() error = %v", err)
	}

	cfg, err = LoadFrom(v)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Backend.WSLTarget != "Ubuntu" {
		t.Errorf("WSLTarget = %q, want Ubuntu", cfg.Backend.WSLTarget)
	}
	if cfg.Backend.CommandTimeout != 45*time.Second {
		t.Errorf("CommandTimeout = %v, want 45s", cfg.Backend.CommandTimeout)
	}
	if cfg.Refresh.SettleDelay != 1500*time.Millisecond {
		t.Errorf("SettleDelay = %v, want 1.5s", cfg.Refresh.SettleDelay)
	}
	if cfg.Refresh.Interval != 30*time.Second {
		t.Errorf("Interval = %v, want 30s", cfg.Refresh.Interval)
	}
	// Untouched keys keep defaults
	if cfg.Backend.ListTimeout != 10*time.Second {
		t.Errorf("ListTimeout = %v, want 10s", cfg.Backend.ListTimeout)
	}
}

func TestLoadFrom_EnvOverride(t *testing.T) {
	t.Setenv("USBIPD_MANAGER_BACKEND_PATH", "/opt/usbipd/usbipd")

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg, err := LoadFrom(v)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Backend.Path != "/opt/usbipd/usbipd" {
		t.Errorf("Backend.Path = %q", cfg.Backend.Path)
	}
}

func TestLoadFrom_InvalidValues(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("backend.command_timeout", "-1s")
	v.Set("tui.description_width", 2)

	_, err := LoadFrom(v)
	if err == nil {
		t.Fatal("LoadFrom() should fail validation")
	}
	verrs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("error type = %T, want ValidationErrors", err)
	}
	if len(verrs) != 2 {
		t.Errorf("got %d validation errors, want 2: %v", len(verrs), verrs)
	}
}

func TestConfigDir(t *testing.T) {
	t.Run("with XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")
		expected := filepath.Join("/custom/config", "usbipd-manager")
		if result := ConfigDir(); result != expected {
			t.Errorf("ConfigDir() = %q, want %q", result, expected)
		}
	})

	t.Run("without XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		home, _ := os.UserHomeDir()
		expected := filepath.Join(home, ".config", "usbipd-manager")
		if result := ConfigDir(); result != expected {
			t.Errorf("ConfigDir() = %q, want %q", result, expected)
		}
	})
}

func TestConfigFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	expected := filepath.Join("/custom/config", "usbipd-manager", "config.yaml")
	if result := ConfigFile(); result != expected {
		t.Errorf("ConfigFile() = %q, want %q", result, expected)
	}
}

func TestPathResolution(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	base := filepath.Join(dir, "usbipd-manager")
	abs := filepath.Join(dir, "elsewhere", "state.json")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"relative state file", (&AutoAttachConfig{StateFile: "auto_attach.json"}).StateFilePath(), filepath.Join(base, "auto_attach.json")},
		{"absolute state file", (&AutoAttachConfig{StateFile: abs}).StateFilePath(), abs},
		{"default log dir", (&LoggingConfig{}).LogDir(), filepath.Join(base, "logs")},
		{"relative log dir", (&LoggingConfig{Dir: "debug"}).LogDir(), filepath.Join(base, "debug")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestGet(t *testing.T) {
	// Set defaults in viper first (normally done by cmd init)
	SetDefaults()

	cfg := Get()
	if cfg == nil {
		t.Fatal("Get() returned nil")
	}
	if cfg.Backend.Path != "usbipd" {
		t.Errorf("Get().Backend.Path = %q, want %q", cfg.Backend.Path, "usbipd")
	}
}
