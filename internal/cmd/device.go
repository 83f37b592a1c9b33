package cmd

import (
	"context"
	"fmt"

	"github.com/Iron-Ham/usbipd-manager/internal/errors"
	"github.com/Iron-Ham/usbipd-manager/internal/manager"
	"github.com/spf13/cobra"
)

var bindCmd = &cobra.Command{
	Use:   "bind <busid>",
	Short: "Share a device so it can be attached",
	Long: `Share a device so it can be attached.

Sharing requires administrative privileges: on Windows a UAC prompt is shown,
elsewhere the configured backend.elevate_command (pkexec by default) is used.
Only devices that are not shared yet can be bound.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDeviceOp(cmd, "bind", args[0], func(m *manager.Manager, ctx context.Context, id string) (*manager.Snapshot, error) {
			return m.Bind(ctx, id, bindForce)
		})
	},
}

var unbindCmd = &cobra.Command{
	Use:   "unbind <busid>",
	Short: "Stop sharing a device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDeviceOp(cmd, "unbind", args[0], (*manager.Manager).Unbind)
	},
}

var attachCmd = &cobra.Command{
	Use:   "attach <busid>",
	Short: "Attach a shared device to WSL once",
	Long: `Attach a shared device to WSL once.

The attachment ends when the device is unplugged. Use auto-attach to
re-attach it automatically.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDeviceOp(cmd, "attach", args[0], (*manager.Manager).Attach)
	},
}

var detachCmd = &cobra.Command{
	Use:   "detach <busid>",
	Short: "Detach a device from WSL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDeviceOp(cmd, "detach", args[0], (*manager.Manager).Detach)
	},
}

var bindForce bool

func init() {
	rootCmd.AddCommand(bindCmd)
	rootCmd.AddCommand(unbindCmd)
	rootCmd.AddCommand(attachCmd)
	rootCmd.AddCommand(detachCmd)

	bindCmd.Flags().BoolVarP(&bindForce, "force", "f", false, "Force binding even if a host driver claims the device")
}

// deviceOp has the shape of a Manager method expression.
type deviceOp func(m *manager.Manager, ctx context.Context, busID string) (*manager.Snapshot, error)

// runDeviceOp runs one Manager operation without an auto-attach supervisor
// and prints the device's state afterwards.
func runDeviceOp(cmd *cobra.Command, verb, busID string, op deviceOp) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()

	logger := a.logger.WithDevice(busID)
	snap, err := op(a.manager, ctx, busID)
	if err != nil {
		logger.Error(verb+" failed", "error", err)
		return errors.New(errors.UserMessage(err))
	}
	logger.Info(verb + " complete")

	out := cmd.OutOrStdout()
	if row, ok := snap.Find(busID); ok {
		fmt.Fprintf(out, "%s %s: %s\n", verb, busID, row.State)
	} else {
		fmt.Fprintf(out, "%s %s: done (device no longer listed)\n", verb, busID)
	}
	for _, w := range snap.Warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
	}
	return nil
}
