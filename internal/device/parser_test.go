package device

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/Iron-Ham/usbipd-manager/internal/errors"
	"github.com/Iron-Ham/usbipd-manager/internal/logging"
)

const sampleList = `Connected:
BUSID  VID:PID    DEVICE                                                        STATE
1-6    046d:c52b  Logitech USB Input Device, USB Input Device                  Not shared
2-3    0bda:5411  Generic USB Hub                                               Shared
2-4    1050:0407  YubiKey OTP+FIDO+CCID                                         Shared (forced)
3-1    8087:0026  Intel(R) Wireless Bluetooth(R)                                Attached

Persisted:
GUID                                  DEVICE
8a7a0d8f-1e6b-4d6c-9c2c-1f2c7c0d9e11  USB Mass Storage Device
`

func TestParse_SampleOutput(t *testing.T) {
	records, err := NewParser(nil).Parse([]byte(sampleList))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	want := []Record{
		{BusID: "1-6", VIDPID: "046d:c52b", Description: "Logitech USB Input Device, USB Input Device", State: StateNotShared, RawState: "Not shared"},
		{BusID: "2-3", VIDPID: "0bda:5411", Description: "Generic USB Hub", State: StateShared, RawState: "Shared"},
		{BusID: "2-4", VIDPID: "1050:0407", Description: "YubiKey OTP+FIDO+CCID", State: StateShared, RawState: "Shared (forced)"},
		{BusID: "3-1", VIDPID: "8087:0026", Description: "Intel(R) Wireless Bluetooth(R)", State: StateAttached, RawState: "Attached"},
	}
	if len(records) != len(want) {
		t.Fatalf("got %d records, want %d: %+v", len(records), len(want), records)
	}
	for i := range want {
		if records[i] != want[i] {
			t.Errorf("record[%d] = %+v, want %+v", i, records[i], want[i])
		}
	}
}

func TestParse_PreservesOrderAndCount(t *testing.T) {
	for _, n := range []int{0, 1, 5, 40} {
		t.Run(fmt.Sprintf("%d rows", n), func(t *testing.T) {
			var sb strings.Builder
			sb.WriteString("Connected:\nBUSID  VID:PID    DEVICE    STATE\n")
			for i := 0; i < n; i++ {
				fmt.Fprintf(&sb, "%d-%d  abcd:%04d  Device number %d  Not shared\n", i/10+1, i%10+1, i, i)
			}
			sb.WriteString("\n")

			records, err := NewParser(nil).Parse([]byte(sb.String()))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if len(records) != n {
				t.Fatalf("got %d records, want %d", len(records), n)
			}
			for i, r := range records {
				wantID := fmt.Sprintf("%d-%d", i/10+1, i%10+1)
				if r.BusID != wantID {
					t.Errorf("record[%d].BusID = %q, want %q", i, r.BusID, wantID)
				}
			}
		})
	}
}

func TestParse_MalformedRowSkipped(t *testing.T) {
	var logBuf bytes.Buffer
	logger := logging.New(&logBuf, "DEBUG", nil)

	input := "Connected:\nBUSID VID:PID DEVICE STATE\n" +
		"1-1 aaaa:0001 Keyboard Not shared\n" +
		"1-2 bbbb\n" +
		"1-3 cccc:0003 Mouse Shared\n\n"

	records, err := NewParser(logger).Parse([]byte(input))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].BusID != "1-1" || records[1].BusID != "1-3" {
		t.Errorf("unexpected bus ids: %q, %q", records[0].BusID, records[1].BusID)
	}
	if !strings.Contains(logBuf.String(), "skipping malformed list row") {
		t.Errorf("malformed row was not logged: %s", logBuf.String())
	}
}

func TestParse_StopsAtBlankOrPersisted(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
	}{
		{
			name:  "blank line ends section",
			input: "h1\nh2\n1-1 a:b Dev Shared\n\n1-2 a:b Dev Shared\n",
			want:  1,
		},
		{
			name:  "whitespace-only line ends section",
			input: "h1\nh2\n1-1 a:b Dev Shared\n   \n1-2 a:b Dev Shared\n",
			want:  1,
		},
		{
			name:  "persisted marker ends section",
			input: "h1\nh2\n1-1 a:b Dev Shared\nPersisted:\n1-2 a:b Dev Shared\n",
			want:  1,
		},
		{
			name:  "CRLF line endings",
			input: "h1\r\nh2\r\n1-1 a:b Dev Shared\r\n1-2 a:b Dev Attached\r\n\r\n",
			want:  2,
		},
		{
			name:  "header only",
			input: "Connected:\nBUSID VID:PID DEVICE STATE\n",
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := NewParser(nil).Parse([]byte(tt.input))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if len(records) != tt.want {
				t.Errorf("got %d records, want %d", len(records), tt.want)
			}
		})
	}
}

func TestParse_StateClassification(t *testing.T) {
	tests := []struct {
		row      string
		want     State
		wantDesc string
	}{
		{"1-1 a:b USB Serial Device Not shared", StateNotShared, "USB Serial Device"},
		{"1-1 a:b USB Serial Device Shared", StateShared, "USB Serial Device"},
		{"1-1 a:b USB Serial Device Shared (forced)", StateShared, "USB Serial Device"},
		{"1-1 a:b USB Serial Device Attached", StateAttached, "USB Serial Device"},
		{"1-1 a:b USB Serial Device Attached - Ubuntu", StateAttached, "USB Serial Device"},
		{"1-1 a:b USB Serial Device Busy", StateUnknown, "USB Serial Device Busy"},
		{"1-1 a:b Notebook Camera Offline", StateUnknown, ""},
	}

	for _, tt := range tests {
		t.Run(tt.row, func(t *testing.T) {
			records, err := NewParser(nil).Parse([]byte("h1\nh2\n" + tt.row + "\n"))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if len(records) != 1 {
				t.Fatalf("got %d records, want 1", len(records))
			}
			if records[0].State != tt.want {
				t.Errorf("State = %v, want %v", records[0].State, tt.want)
			}
			if records[0].Description != tt.wantDesc {
				t.Errorf("Description = %q, want %q", records[0].Description, tt.wantDesc)
			}
		})
	}
}

// A description word starting with a state prefix ends the description: the
// split is at the first prefixed token, never a later one.
func TestParse_FirstStatePrefixSplits(t *testing.T) {
	tests := []struct {
		row      string
		wantDesc string
		wantRaw  string
		want     State
	}{
		{"1-6 046d:c52b Notebook Camera Not shared", "", "Notebook Camera Not shared", StateUnknown},
		{"2-1 aaaa:bbbb Shared Memory Bridge Shared", "", "Shared Memory Bridge Shared", StateUnknown},
		{"3-2 aaaa:bbbb Webcam Attached to Host Shared", "Webcam", "Attached to Host Shared", StateUnknown},
		{"4-1 aaaa:bbbb Serial Adapter Not shared", "Serial Adapter", "Not shared", StateNotShared},
	}

	for _, tt := range tests {
		t.Run(tt.row, func(t *testing.T) {
			records, err := NewParser(nil).Parse([]byte("h1\nh2\n" + tt.row + "\n"))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if len(records) != 1 {
				t.Fatalf("got %d records, want 1", len(records))
			}
			got := records[0]
			if got.Description != tt.wantDesc || got.RawState != tt.wantRaw || got.State != tt.want {
				t.Errorf("got desc=%q raw=%q state=%v, want desc=%q raw=%q state=%v",
					got.Description, got.RawState, got.State, tt.wantDesc, tt.wantRaw, tt.want)
			}
		})
	}
}

func TestParse_WholeStreamErrors(t *testing.T) {
	tests := []struct {
		name   string
		input  []byte
		target error
	}{
		{"empty", nil, errors.ErrNoOutput},
		{"whitespace", []byte(" \n\t\n"), errors.ErrNoOutput},
		{"invalid utf8", []byte("Connected:\n\xff\xfe\n1-1"), errors.ErrUndecodable},
		{"no header", []byte("usbipd: command not found"), errors.ErrMissingHeader},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := NewParser(nil).Parse(tt.input)
			if err == nil {
				t.Fatalf("Parse() = %v, want error", records)
			}
			var pe *errors.ParseError
			if !errors.As(err, &pe) {
				t.Errorf("error %v is not a *ParseError", err)
			}
			if !errors.Is(err, tt.target) {
				t.Errorf("error %v does not match %v", err, tt.target)
			}
		})
	}
}

func TestParseState(t *testing.T) {
	tests := map[string]State{
		"Not shared":      StateNotShared,
		"not  SHARED":     StateNotShared,
		"Shared":          StateShared,
		"Shared (forced)": StateShared,
		"Attached":        StateAttached,
		"Attached - Arch": StateAttached,
		"":                StateUnknown,
		"Not":             StateUnknown,
		"Sharing":         StateUnknown,
	}
	for raw, want := range tests {
		if got := ParseState(raw); got != want {
			t.Errorf("ParseState(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StateNotShared: "Not shared",
		StateShared:    "Shared",
		StateAttached:  "Attached",
		StateUnknown:   "Unknown",
		State(42):      "Unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}

type fakeSource struct {
	out []byte
	err error
}

func (f fakeSource) ListOutput(ctx context.Context) ([]byte, error) {
	return f.out, f.err
}

func TestLister_List(t *testing.T) {
	records, err := NewLister(fakeSource{out: []byte(sampleList)}, nil).List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 4 {
		t.Errorf("got %d records, want 4", len(records))
	}

	rec, ok := Find(records, "2-4")
	if !ok || rec.State != StateShared {
		t.Errorf("Find(2-4) = %+v, %v", rec, ok)
	}
	if _, ok := Find(records, "9-9"); ok {
		t.Error("Find(9-9) should report not found")
	}

	_, err = NewLister(fakeSource{err: errors.ErrBackendNotFound}, nil).List(context.Background())
	if !errors.Is(err, errors.ErrBackendNotFound) {
		t.Errorf("List() error = %v, want ErrBackendNotFound", err)
	}
}
