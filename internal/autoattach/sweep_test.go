package autoattach

import (
	"context"
	"slices"
	"testing"

	"github.com/Iron-Ham/usbipd-manager/internal/errors"
)

func TestProcessSweeper_Sweep(t *testing.T) {
	procs := []procInfo{
		{PID: 10, Cmdline: []string{"/usr/bin/usbipd", "attach", "--wsl", "--busid", "1-6", "--auto-attach"}},
		{PID: 11, Cmdline: []string{`C:\Program Files\usbipd-win\usbipd.exe`, "attach", "--wsl", "Ubuntu", "--busid=2-1", "--auto-attach"}},
		{PID: 12, Cmdline: []string{"usbipd", "attach", "--wsl", "--busid", "3-3", "--auto-attach"}},
		{PID: 13, Cmdline: []string{"usbipd", "attach", "--wsl", "--busid", "1-6"}},
		{PID: 14, Cmdline: []string{"vim", "attach", "--busid", "1-6", "--auto-attach"}},
		{PID: 15, Cmdline: []string{"usbipd", "attach", "--auto-attach", "--busid"}},
	}

	var killedPIDs []int32
	s := NewProcessSweeper("usbipd", nil)
	s.listProcesses = func(ctx context.Context) ([]procInfo, error) { return procs, nil }
	s.killProcess = func(ctx context.Context, pid int32) error {
		if pid == 11 {
			return errors.New("access denied")
		}
		killedPIDs = append(killedPIDs, pid)
		return nil
	}

	n, err := s.Sweep(context.Background(), []string{"1-6", "2-1"})
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Sweep() = %d, want 1", n)
	}
	if !slices.Equal(killedPIDs, []int32{10}) {
		t.Errorf("killed %v, want [10]", killedPIDs)
	}
}

func TestProcessSweeper_NothingToSweep(t *testing.T) {
	s := NewProcessSweeper("usbipd", nil)
	s.listProcesses = func(ctx context.Context) ([]procInfo, error) {
		t.Fatal("process list should not be read")
		return nil, nil
	}
	if n, err := s.Sweep(context.Background(), nil); n != 0 || err != nil {
		t.Errorf("Sweep(nil) = %d, %v", n, err)
	}
}

func TestProcessSweeper_ListError(t *testing.T) {
	s := NewProcessSweeper("usbipd", nil)
	s.listProcesses = func(ctx context.Context) ([]procInfo, error) {
		return nil, errors.New("no /proc")
	}
	if _, err := s.Sweep(context.Background(), []string{"1-6"}); err == nil {
		t.Error("Sweep() should return the listing error")
	}
}

func TestExecutableName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"usbipd", "usbipd"},
		{"/usr/local/bin/usbipd", "usbipd"},
		{`C:\Tools\USBIPD.EXE`, "usbipd"},
		{`C:\Program Files\x\usbipd.exe`, "usbipd"},
		{"usbipd-manager", "usbipd-manager"},
	}
	for _, tt := range tests {
		if got := executableName(tt.in); got != tt.want {
			t.Errorf("executableName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestProcessSweeper_AutoAttachBusID(t *testing.T) {
	tests := []struct {
		name    string
		cmdline []string
		want    string
		wantOK  bool
	}{
		{"long flags", []string{"usbipd", "attach", "--wsl", "--busid", "1-6", "--auto-attach"}, "1-6", true},
		{"short flags", []string{"usbipd", "attach", "-w", "-a", "-b", "1-6"}, "1-6", true},
		{"busid with equals", []string{"usbipd", "attach", "--busid=2-1", "-a"}, "2-1", true},
		{"short auto flag before verb", []string{"usbipd", "-a", "attach", "--busid", "1-6"}, "", false},
		{"other subcommand with -a", []string{"usbipd", "list", "-a", "-b", "1-6"}, "", false},
		{"busid before verb", []string{"usbipd", "-b", "1-6", "attach", "-a"}, "", false},
		{"no auto flag", []string{"usbipd", "attach", "--busid", "1-6"}, "", false},
		{"missing busid value", []string{"usbipd", "attach", "-a", "-b"}, "", false},
		{"other executable", []string{"vim", "attach", "-a", "-b", "1-6"}, "", false},
		{"executable only", []string{"usbipd"}, "", false},
	}

	s := NewProcessSweeper("usbipd", nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := s.autoAttachBusID(tt.cmdline)
			if ok != tt.wantOK || (ok && got != tt.want) {
				t.Errorf("autoAttachBusID(%q) = %q, %v, want %q, %v", tt.cmdline, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
