package cmd

import (
	"context"

	"github.com/Iron-Ham/usbipd-manager/internal/config"
	"github.com/Iron-Ham/usbipd-manager/internal/tui"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Open the interactive device list (default)",
	Long: `Open the interactive device list.

Auto-attach loops started from the UI run only while it is open; they are
stopped when the UI exits. Edits to the config file are picked up while
running for the refresh and display settings.`,
	Args: cobra.NoArgs,
	RunE: runUI,
}

func init() {
	rootCmd.AddCommand(uiCmd)
}

func runUI(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()

	ui := tui.NewApp(ctx, a.manager, tui.Options{
		Settings:  tuiSettings(a.cfg),
		AltScreen: a.cfg.TUI.AltScreen,
	})
	watchConfig(a, ui)

	a.logger.Info("ui started", "version", Version)
	runErr := ui.Run()

	// Abort whatever the UI left in flight before stopping the loops.
	cancel()
	if err := a.manager.Shutdown(); err != nil {
		a.logger.Warn("auto-attach shutdown incomplete", "error", err)
	}
	a.logger.Info("ui stopped")
	return runErr
}

func tuiSettings(cfg *config.Config) tui.Settings {
	return tui.Settings{
		RefreshInterval:  cfg.Refresh.Interval,
		DescriptionWidth: cfg.TUI.DescriptionWidth,
	}
}

// watchConfig re-applies timing and display settings when the config file
// changes. Backend and auto-attach settings take effect on the next start.
func watchConfig(a *app, ui *tui.App) {
	if viper.ConfigFileUsed() == "" {
		return
	}

	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := config.Load()
		if err != nil {
			a.logger.Warn("ignoring invalid config change", "file", e.Name, "error", err)
			return
		}
		a.manager.ApplySettings(managerOptions(cfg))
		ui.ApplySettings(tuiSettings(cfg))
		a.logger.Info("config reloaded", "file", e.Name)
	})
	viper.WatchConfig()
}
