package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Iron-Ham/usbipd-manager/internal/errors"
	"github.com/spf13/cobra"
)

var autoAttachCmd = &cobra.Command{
	Use:   "auto-attach <busid>...",
	Short: "Keep devices attached until interrupted",
	Long: `Start an auto-attach loop for each device and keep running in the
foreground. Each loop re-attaches its device whenever it is plugged back in.

All loops are stopped on Ctrl+C or SIGTERM. Devices must be shared first.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAutoAttach,
}

func init() {
	rootCmd.AddCommand(autoAttachCmd)
}

func runAutoAttach(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()
	defer func() {
		if err := a.manager.Shutdown(); err != nil {
			a.logger.Warn("auto-attach shutdown incomplete", "error", err)
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", errors.UserMessage(err))
		}
	}()

	out := cmd.OutOrStdout()
	started := 0
	for _, busID := range args {
		snap, err := a.manager.StartAutoAttach(ctx, busID)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", busID, errors.UserMessage(err))
			continue
		}
		started++
		for _, w := range snap.Warnings {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
		}
		fmt.Fprintf(out, "auto-attach started for %s\n", busID)
	}

	if started == 0 {
		return errors.New("no auto-attach loop could be started")
	}

	fmt.Fprintln(out, "Press Ctrl+C to stop.")
	<-ctx.Done()
	fmt.Fprintln(out, "Stopping auto-attach...")
	return nil
}
