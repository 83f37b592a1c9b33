package autoattach

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"testing"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/usbipd-manager/internal/errors"
)

const testStatePath = "/state/auto_attach.json"

func TestStore_LoadMissingOrCorrupt(t *testing.T) {
	tests := []struct {
		name    string
		content *string
	}{
		{name: "missing file"},
		{name: "corrupt JSON", content: ptr("{not json")},
		{name: "wrong shape", content: ptr(`{"auto_attach_devices": "1-6"}`)},
		{name: "empty object", content: ptr(`{}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			if tt.content != nil {
				if err := afero.WriteFile(fs, testStatePath, []byte(*tt.content), 0o644); err != nil {
					t.Fatal(err)
				}
			}
			if got := NewStore(fs, testStatePath, nil).Load(); len(got) != 0 {
				t.Errorf("Load() = %v, want empty", got)
			}
		})
	}
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewStore(fs, testStatePath, nil)

	if err := store.Save([]string{"2-1", "1-6", "2-1", ""}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	want := []string{"1-6", "2-1"}
	if got := store.Load(); !reflect.DeepEqual(got, want) {
		t.Errorf("Load() = %v, want %v", got, want)
	}

	data, err := afero.ReadFile(fs, testStatePath)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	var doc map[string][]string
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("state file is not JSON: %v", err)
	}
	if !reflect.DeepEqual(doc["auto_attach_devices"], want) {
		t.Errorf("auto_attach_devices = %v, want %v", doc["auto_attach_devices"], want)
	}

	entries, _ := afero.ReadDir(fs, filepath.Dir(testStatePath))
	if len(entries) != 1 {
		t.Errorf("expected only the state file in the directory, found %d entries", len(entries))
	}
}

func TestStore_SaveEmptyClearsFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewStore(fs, testStatePath, nil)

	if err := store.Save([]string{"1-6"}); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(nil); err != nil {
		t.Fatal(err)
	}
	if got := store.Load(); len(got) != 0 {
		t.Errorf("Load() = %v, want empty", got)
	}
}

func TestStore_SaveFailure(t *testing.T) {
	fs := afero.NewReadOnlyFs(afero.NewMemMapFs())
	store := NewStore(fs, testStatePath, nil)

	err := store.Save([]string{"1-6"})
	var pe *errors.PersistenceError
	if !errors.As(err, &pe) {
		t.Fatalf("Save() error = %v, want *PersistenceError", err)
	}
	if pe.Path != testStatePath {
		t.Errorf("Path = %q, want %q", pe.Path, testStatePath)
	}
	if errors.GetSeverity(err) != errors.SeverityWarning {
		t.Errorf("severity = %v, want warning", errors.GetSeverity(err))
	}
}

func TestStore_OsFs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", DefaultStateFile)
	store := NewStore(nil, path, nil)

	if err := store.Save([]string{"3-1"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm() != 0o644 {
		t.Errorf("mode = %v, want 0644", info.Mode().Perm())
	}
	if got := store.Load(); !reflect.DeepEqual(got, []string{"3-1"}) {
		t.Errorf("Load() = %v", got)
	}
	if store.Path() != path {
		t.Errorf("Path() = %q, want %q", store.Path(), path)
	}
}

func ptr(s string) *string { return &s }
