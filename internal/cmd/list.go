package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/Iron-Ham/usbipd-manager/internal/errors"
	"github.com/Iron-Ham/usbipd-manager/internal/manager"
	"github.com/Iron-Ham/usbipd-manager/internal/tui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List USB devices and their sharing state",
	Args:    cobra.NoArgs,
	RunE:    runList,
}

var listPlain bool

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().BoolVar(&listPlain, "plain", false, "Disable colors even when writing to a terminal")
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.close()

	snap, err := a.manager.Refresh(cmd.Context())
	if err != nil {
		a.logger.Error("list failed", "error", err)
		return errors.New(errors.UserMessage(err))
	}

	out := cmd.OutOrStdout()
	printDevices(out, snap, a.cfg.TUI.DescriptionWidth, !listPlain && isTerminal(out))
	return nil
}

func printDevices(out io.Writer, snap *manager.Snapshot, width int, styled bool) {
	if len(snap.Rows) == 0 {
		fmt.Fprintln(out, "No USB devices found.")
		return
	}
	fmt.Fprint(out, tui.RenderTable(snap.Rows, tui.TableOptions{
		Cursor:           -1,
		DescriptionWidth: width,
		Styled:           styled,
	}))
	for _, w := range snap.Warnings {
		fmt.Fprintf(out, "warning: %s\n", w)
	}
}

// isTerminal reports whether w is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
