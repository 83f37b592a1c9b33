package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

// -----------------------------------------------------------------------------
// Severity Tests
// -----------------------------------------------------------------------------

func TestSeverity_String(t *testing.T) {
	tests := []struct {
		severity Severity
		want     string
	}{
		{SeverityDebug, "debug"},
		{SeverityInfo, "info"},
		{SeverityWarning, "warning"},
		{SeverityError, "error"},
		{SeverityCritical, "critical"},
		{Severity(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.severity.String(); got != tt.want {
				t.Errorf("Severity.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

// -----------------------------------------------------------------------------
// Backend Error Tests
// -----------------------------------------------------------------------------

func TestParseError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *ParseError
		want string
	}{
		{
			name: "whole stream",
			err:  NewParseError("cannot read list output", ErrUndecodable),
			want: "parse error: cannot read list output: backend output is not valid UTF-8 text",
		},
		{
			name: "single line",
			err:  NewParseError("too few fields", nil).WithLine(4, "1-6 abc"),
			want: "parse error [line=4]: too few fields",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseError_UnwrapsCause(t *testing.T) {
	err := fmt.Errorf("poll: %w", NewParseError("bad", ErrNoOutput))
	if !Is(err, ErrNoOutput) {
		t.Error("errors.Is(err, ErrNoOutput) = false, want true")
	}
	var pe *ParseError
	if !As(err, &pe) {
		t.Fatal("errors.As(err, *ParseError) = false, want true")
	}
}

func TestLaunchError(t *testing.T) {
	args := []string{"usbipd", "bind", "--busid", "1-6"}

	plain := NewLaunchError(args, errors.New("exec: not found"))
	if Is(plain, ErrElevationRejected) {
		t.Error("plain launch error should not match ErrElevationRejected")
	}
	if !strings.Contains(plain.Error(), "cmd=usbipd bind --busid 1-6") {
		t.Errorf("Error() = %q, want it to include the command line", plain.Error())
	}

	elevated := NewLaunchError(args, nil).WithElevated(5)
	if !Is(elevated, ErrElevationRejected) {
		t.Error("elevated launch error should match ErrElevationRejected")
	}
	if !strings.Contains(elevated.Error(), "code=5") {
		t.Errorf("Error() = %q, want it to include the launch code", elevated.Error())
	}
	if elevated.IsRetryable() {
		t.Error("IsRetryable() = true, want false")
	}
}

func TestTimeoutError(t *testing.T) {
	err := NewTimeoutError("usbipd detach --busid 1-6", 20*time.Second)

	want := "timeout error: usbipd detach --busid 1-6 (timeout: 20s)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !Is(err, ErrTimeout) {
		t.Error("TimeoutError should match ErrTimeout")
	}
	if !IsRetryable(err) {
		t.Error("IsRetryable() = false, want true")
	}

	var cmdErr *CommandError
	if As(err, &cmdErr) {
		t.Error("TimeoutError must not be classified as a CommandError")
	}
}

func TestCommandError_Error(t *testing.T) {
	args := []string{"usbipd", "attach", "--wsl", "--busid", "1-6"}

	withStderr := NewCommandError(args, 1, "usbipd: error: Device is not shared.\n")
	want := "command error [cmd=usbipd attach --wsl --busid 1-6, exit=1]: usbipd: error: Device is not shared."
	if withStderr.Error() != want {
		t.Errorf("Error() = %q, want %q", withStderr.Error(), want)
	}
	if withStderr.Stderr != "usbipd: error: Device is not shared.\n" {
		t.Errorf("Stderr = %q, want verbatim text", withStderr.Stderr)
	}

	empty := NewCommandError(args, 2, "")
	if !strings.HasSuffix(empty.Error(), ": command failed") {
		t.Errorf("Error() = %q, want generic suffix", empty.Error())
	}
}

func TestPersistenceError(t *testing.T) {
	err := NewPersistenceError("/tmp/auto_attach.json", errors.New("read-only file system"))

	if err.Severity() != SeverityWarning {
		t.Errorf("Severity() = %v, want %v", err.Severity(), SeverityWarning)
	}
	want := "persistence error [path=/tmp/auto_attach.json]: failed to save auto-attach state: read-only file system"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

// -----------------------------------------------------------------------------
// Local Rejection Tests
// -----------------------------------------------------------------------------

func TestPolicyError(t *testing.T) {
	err := NewPolicyError("bind", "1-6", "Shared")

	if err.Error() != "cannot bind device 1-6: device is Shared" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !Is(err, ErrPolicyRejected) {
		t.Error("PolicyError should match ErrPolicyRejected")
	}
	if GetSeverity(err) != SeverityInfo {
		t.Errorf("GetSeverity() = %v, want %v", GetSeverity(err), SeverityInfo)
	}
}

func TestNotFoundError(t *testing.T) {
	device := NewNotFoundError("device", "9-9")
	if device.Error() != "device '9-9' not found" {
		t.Errorf("Error() = %q", device.Error())
	}
	if !Is(device, ErrDeviceNotFound) {
		t.Error("device NotFoundError should match ErrDeviceNotFound")
	}

	other := NewNotFoundError("entry", "9-9")
	if Is(other, ErrDeviceNotFound) {
		t.Error("non-device NotFoundError should not match ErrDeviceNotFound")
	}
}

// -----------------------------------------------------------------------------
// Classification Tests
// -----------------------------------------------------------------------------

func TestClassificationHelpers_Nil(t *testing.T) {
	if IsRetryable(nil) {
		t.Error("IsRetryable(nil) = true")
	}
	if IsUserFacing(nil) {
		t.Error("IsUserFacing(nil) = true")
	}
	if GetSeverity(nil) != SeverityDebug {
		t.Errorf("GetSeverity(nil) = %v, want debug", GetSeverity(nil))
	}
	if UserMessage(nil) != "" {
		t.Errorf("UserMessage(nil) = %q, want empty", UserMessage(nil))
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "timeout suggests retry",
			err:  NewTimeoutError("detach 1-6", 20*time.Second),
			want: "detach 1-6 did not finish within 20s; try again",
		},
		{
			name: "command failure shows stderr",
			err:  Wrap(NewCommandError([]string{"usbipd"}, 1, "  access denied \n"), "detach"),
			want: "access denied",
		},
		{
			name: "command failure without stderr",
			err:  NewCommandError([]string{"usbipd"}, 3, ""),
			want: "command exited with status 3",
		},
		{
			name: "policy rejection",
			err:  NewPolicyError("attach", "1-6", "Not shared"),
			want: "cannot attach device 1-6: device is Not shared",
		},
		{
			name: "invalid input",
			err:  Wrap(ErrInvalidInput, "no device selected"),
			want: "no device selected: invalid input",
		},
		{
			name: "internal error",
			err:  errors.New("boom"),
			want: "an internal error occurred; see the log for details",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UserMessage(tt.err); got != tt.want {
				t.Errorf("UserMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "ctx") != nil {
		t.Error("Wrap(nil) should be nil")
	}
	if Wrapf(nil, "ctx %d", 1) != nil {
		t.Error("Wrapf(nil) should be nil")
	}

	err := Wrapf(ErrTimeout, "detach %s", "1-6")
	if err.Error() != "detach 1-6: operation timed out" {
		t.Errorf("Wrapf() = %q", err.Error())
	}
	if !Is(err, ErrTimeout) {
		t.Error("wrapped error should still match ErrTimeout")
	}
}
