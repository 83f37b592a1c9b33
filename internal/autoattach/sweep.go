package autoattach

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/Iron-Ham/usbipd-manager/internal/logging"
)

// Sweeper terminates auto-attach loops left behind by an earlier run.
type Sweeper interface {
	Sweep(ctx context.Context, busIDs []string) (int, error)
}

// procInfo is the part of a process listing the sweep looks at.
type procInfo struct {
	PID     int32
	Cmdline []string
}

// ProcessSweeper finds orphans by command line.
type ProcessSweeper struct {
	backend string
	logger  *logging.Logger

	// Injected for tests; default to gopsutil.
	listProcesses func(ctx context.Context) ([]procInfo, error)
	killProcess   func(ctx context.Context, pid int32) error
}

// NewProcessSweeper creates a sweeper that matches processes whose executable
// base name equals that of backendPath.
func NewProcessSweeper(backendPath string, logger *logging.Logger) *ProcessSweeper {
	return &ProcessSweeper{
		backend:       executableName(backendPath),
		logger:        logging.OrNop(logger).WithComponent("orphan-sweep"),
		listProcesses: listSystemProcesses,
		killProcess:   killSystemProcess,
	}
}

// Sweep terminates every process that looks like an auto-attach loop for one
// of busIDs and returns how many were signalled.
func (s *ProcessSweeper) Sweep(ctx context.Context, busIDs []string) (int, error) {
	if len(busIDs) == 0 {
		return 0, nil
	}
	want := make(map[string]bool, len(busIDs))
	for _, id := range busIDs {
		want[id] = true
	}

	procs, err := s.listProcesses(ctx)
	if err != nil {
		return 0, err
	}

	self := int32(os.Getpid())
	killed := 0
	for _, p := range procs {
		if p.PID == self {
			continue
		}
		busID, ok := s.autoAttachBusID(p.Cmdline)
		if !ok || !want[busID] {
			continue
		}
		if err := s.killProcess(ctx, p.PID); err != nil {
			s.logger.Warn("failed to terminate orphaned auto-attach", "pid", p.PID, "bus_id", busID, "error", err)
			continue
		}
		s.logger.Info("terminated orphaned auto-attach", "pid", p.PID, "bus_id", busID)
		killed++
	}
	return killed, nil
}

// autoAttachBusID reports the bus id of an `attach --auto-attach` command line
// run by the backend executable.
func (s *ProcessSweeper) autoAttachBusID(cmdline []string) (string, bool) {
	if len(cmdline) < 2 || executableName(cmdline[0]) != s.backend {
		return "", false
	}

	// Flags only count once the attach verb has been seen, so a short flag of
	// some other subcommand cannot pass for --auto-attach.
	args := cmdline[1:]
	verb := slices.Index(args, "attach")
	if verb < 0 {
		return "", false
	}

	var auto bool
	busID := ""
	for i := verb + 1; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--auto-attach" || arg == "-a":
			auto = true
		case arg == "--busid" || arg == "-b":
			if i+1 < len(args) {
				busID = args[i+1]
				i++
			}
		case strings.HasPrefix(arg, "--busid="):
			busID = strings.TrimPrefix(arg, "--busid=")
		}
	}
	return busID, auto && busID != ""
}

func executableName(path string) string {
	base := filepath.Base(strings.ReplaceAll(path, `\`, "/"))
	return strings.TrimSuffix(strings.ToLower(base), ".exe")
}

func listSystemProcesses(ctx context.Context) ([]procInfo, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]procInfo, 0, len(procs))
	for _, p := range procs {
		cmdline, err := p.CmdlineSliceWithContext(ctx)
		if err != nil || len(cmdline) == 0 {
			// Exited or not ours to inspect.
			continue
		}
		out = append(out, procInfo{PID: p.Pid, Cmdline: cmdline})
	}
	return out, nil
}

func killSystemProcess(ctx context.Context, pid int32) error {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return err
	}
	if err := p.TerminateWithContext(ctx); err != nil {
		return p.KillWithContext(ctx)
	}
	return nil
}
