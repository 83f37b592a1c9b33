package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/Iron-Ham/usbipd-manager/internal/config"
	"github.com/Iron-Ham/usbipd-manager/internal/logging"
	"github.com/Iron-Ham/usbipd-manager/internal/tui/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View usbipd-manager logs",
	Long: `View and filter the usbipd-manager log, including rotated backups.

Examples:
  # Show the last 50 entries
  usbipd-manager logs

  # Everything logged for one device
  usbipd-manager logs --device 1-6 -n 0

  # Follow supervisor activity
  usbipd-manager logs -f --component supervisor

  # Warnings and errors from the last hour
  usbipd-manager logs --level warn --since 1h`,
	Args: cobra.NoArgs,
	RunE: runLogs,
}

var (
	logsTail      int
	logsFollow    bool
	logsLevel     string
	logsSince     string
	logsGrep      string
	logsDevice    string
	logsComponent string
)

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "Number of entries to show (0 for all)")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output (like tail -f)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "Filter by minimum level (debug/info/warn/error)")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Show entries since duration ago (e.g., 1h, 30m)")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "Filter entries matching pattern (regex)")
	logsCmd.Flags().StringVar(&logsDevice, "device", "", "Filter by device bus id")
	logsCmd.Flags().StringVar(&logsComponent, "component", "", "Filter by component (runner, parser, supervisor, manager, ...)")
}

var (
	logTimeStyle  = styles.Muted
	logAttrStyle  = lipgloss.NewStyle().Foreground(styles.BlueColor)
	logLevelStyle = map[string]lipgloss.Style{
		logging.LevelDebug: styles.Muted,
		logging.LevelInfo:  lipgloss.NewStyle().Foreground(styles.BlueColor),
		logging.LevelWarn:  styles.Warning,
		logging.LevelError: styles.Error,
	}
)

// formatLogEntry formats an entry for terminal output. Attributes are printed
// in key order so the output is stable.
func formatLogEntry(e logging.Entry, styled bool) string {
	paint := func(s lipgloss.Style, text string) string {
		if !styled {
			return text
		}
		return s.Render(text)
	}

	var sb strings.Builder
	sb.WriteString(paint(logTimeStyle, "["+e.Time.Local().Format("15:04:05.000")+"]"))
	sb.WriteString(" ")
	sb.WriteString(paint(logLevelStyle[e.Level], "["+e.Level+"]"))
	sb.WriteString(" ")
	sb.WriteString(e.Message)

	if e.Component != "" {
		sb.WriteString(" " + paint(logAttrStyle, "component=") + e.Component)
	}
	if e.BusID != "" {
		sb.WriteString(" " + paint(logAttrStyle, "bus_id=") + e.BusID)
	}

	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString(" " + paint(logAttrStyle, k+"=") + fmt.Sprint(e.Attrs[k]))
	}
	return sb.String()
}

func buildLogFilter() (logging.Filter, error) {
	f := logging.Filter{
		BusID:     logsDevice,
		Component: logsComponent,
	}
	if logsLevel != "" {
		f.Level = logging.ParseLevel(logsLevel)
	}
	if logsSince != "" {
		d, err := time.ParseDuration(logsSince)
		if err != nil {
			return f, fmt.Errorf("invalid duration format: %w", err)
		}
		f.Since = time.Now().Add(-d)
	}
	if logsGrep != "" {
		re, err := regexp.Compile(logsGrep)
		if err != nil {
			return f, fmt.Errorf("invalid grep pattern: %w", err)
		}
		f.Pattern = re
	}
	return f, nil
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	dir := cfg.Logging.LogDir()

	filter, err := buildLogFilter()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	styled := isTerminal(out)

	if logsFollow {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return followLogs(ctx, out, dir, filter, styled)
	}
	return displayLogs(out, dir, logsTail, filter, styled)
}

// displayLogs prints the filtered entries of the log and its backups
func displayLogs(out io.Writer, dir string, tail int, f logging.Filter, styled bool) error {
	if len(logging.LogFiles(dir)) == 0 {
		fmt.Fprintf(out, "No logs found in %s\n", dir)
		return nil
	}

	entries, err := logging.ReadEntries(dir, f)
	if err != nil {
		return err
	}

	// Apply tail limit
	if tail > 0 && len(entries) > tail {
		entries = entries[len(entries)-tail:]
	}

	if len(entries) == 0 {
		fmt.Fprintln(out, "No matching log entries found.")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintln(out, formatLogEntry(e, styled))
	}
	return nil
}

// followLogs prints entries appended to the active log file until ctx is
// done. The directory is watched so a rotation reopens the new file.
func followLogs(ctx context.Context, out io.Writer, dir string, f logging.Filter, styled bool) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to watch log directory: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch log directory: %w", err)
	}

	path := filepath.Join(dir, logging.LogFileName)
	t := &tailer{path: path}
	defer t.close()
	// Start at the end; only new entries are shown.
	if err := t.open(io.SeekEnd); err != nil && !os.IsNotExist(err) {
		return err
	}

	fmt.Fprintf(out, "Following %s... (Ctrl+C to stop)\n\n", path)

	emit := func(line string) {
		entry, err := logging.ParseEntry(line)
		if err != nil {
			fmt.Fprintln(out, line)
			return
		}
		if f.Match(entry) {
			fmt.Fprintln(out, formatLogEntry(entry, styled))
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("log watch failed: %w", err)
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(path) {
				continue
			}
			switch {
			case ev.Has(fsnotify.Create):
				// Rotated: drain the old handle, then read the new file from the start.
				t.drain(emit)
				t.close()
				if err := t.open(io.SeekStart); err != nil && !os.IsNotExist(err) {
					return err
				}
				t.drain(emit)
			case ev.Has(fsnotify.Write):
				if t.file == nil {
					if err := t.open(io.SeekStart); err != nil && !os.IsNotExist(err) {
						return err
					}
				}
				t.drain(emit)
			}
		}
	}
}

// tailer reads complete lines appended to a file.
type tailer struct {
	path    string
	file    *os.File
	reader  *bufio.Reader
	partial string
}

func (t *tailer) open(whence int) error {
	file, err := os.Open(t.path)
	if err != nil {
		return err
	}
	if _, err := file.Seek(0, whence); err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to seek log file: %w", err)
	}
	t.file = file
	t.reader = bufio.NewReader(file)
	t.partial = ""
	return nil
}

// drain emits every complete line available and keeps an unterminated tail
// for the next call.
func (t *tailer) drain(emit func(string)) {
	if t.reader == nil {
		return
	}
	for {
		chunk, err := t.reader.ReadString('\n')
		t.partial += chunk
		if err != nil {
			return
		}
		line := strings.TrimSpace(t.partial)
		t.partial = ""
		if line != "" {
			emit(line)
		}
	}
}

func (t *tailer) close() {
	if t.file != nil {
		_ = t.file.Close()
	}
	t.file = nil
	t.reader = nil
}
