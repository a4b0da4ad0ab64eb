package stores

import (
	"path/filepath"
	"testing"

	"overlay-builder/core"
)

func TestGetStore_Default(t *testing.T) {
	t.Setenv("STORAGE_TYPE", "")
	store := GetStore()
	if store == nil {
		t.Fatal("GetStore() returned nil")
	}
	if _, ok := store.(core.VersionStore); !ok {
		t.Error("in-memory store does not keep versions")
	}
	if _, ok := store.(core.RoomRegistry); !ok {
		t.Error("in-memory store is not a room registry")
	}
}

func TestGetStore_Filesystem(t *testing.T) {
	t.Setenv("STORAGE_TYPE", "filesystem")
	t.Setenv("LOCAL_STORAGE_PATH", t.TempDir())
	store := GetStore()
	if _, ok := store.(core.VersionStore); !ok {
		t.Error("filesystem store does not keep versions")
	}
}

func TestGetStore_SQLite(t *testing.T) {
	t.Setenv("STORAGE_TYPE", "sqlite")
	t.Setenv("DATA_SOURCE_NAME", filepath.Join(t.TempDir(), "test.db"))
	store := GetStore()
	if _, ok := store.(core.RoomRegistry); !ok {
		t.Error("sqlite store is not a room registry")
	}
}

func TestMaxVersions(t *testing.T) {
	tests := []struct {
		env  string
		want int
	}{
		{"", 10},
		{"25", 25},
		{"0", 10},
		{"-3", 10},
		{"lots", 10},
	}
	for _, tt := range tests {
		t.Setenv("MAX_VERSIONS", tt.env)
		if got := MaxVersions(); got != tt.want {
			t.Errorf("MaxVersions() with %q = %d, want %d", tt.env, got, tt.want)
		}
	}
}
