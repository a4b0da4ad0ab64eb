package filesystem

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"overlay-builder/core"
	"overlay-builder/scene"
)

func testScene() *scene.Snapshot {
	s := scene.Snapshot{
		Shapes: []*scene.Shape{scene.NewShape("text-1", scene.ShapeText, 5, 5)},
		Layers: []*scene.Layer{scene.NewLayer("text-1", "Text 1", scene.LayerText)},
	}
	return &s
}

func TestNewStore_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	if store := NewStore(dir, 10); store == nil {
		t.Fatal("NewStore() returned nil")
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		t.Error("NewStore() did not create base directory")
	}
}

func TestSaveGetList(t *testing.T) {
	store := NewStore(t.TempDir(), 10)
	ctx := context.Background()

	p := &core.Project{ID: "p1", UserID: "u1", Name: "Overlay", Scene: testScene()}
	if err := store.Save(ctx, p); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	got, err := store.Get(ctx, "u1", "p1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.UserID != "u1" || got.Name != "Overlay" {
		t.Errorf("Get() = %+v", got)
	}
	if got.Scene == nil || got.Scene.Shapes[0].Text != "Your Text" {
		t.Fatal("Get() lost the scene")
	}

	list, err := store.List(ctx, "u1")
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(list) != 1 || list[0].Scene != nil {
		t.Errorf("List() = %+v", list)
	}

	empty, err := store.List(ctx, "u2")
	if err != nil || len(empty) != 0 {
		t.Errorf("List() for unknown user = %v, %v", empty, err)
	}
}

func TestSavePreservesCreatedAt(t *testing.T) {
	store := NewStore(t.TempDir(), 10)
	ctx := context.Background()

	first := &core.Project{ID: "p1", UserID: "u1"}
	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	second := &core.Project{ID: "p1", UserID: "u1", Name: "renamed"}
	if err := store.Save(ctx, second); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt changed: %v -> %v", first.CreatedAt, second.CreatedAt)
	}
}

func TestPathTraversalRejected(t *testing.T) {
	store := NewStore(t.TempDir(), 10)
	ctx := context.Background()

	for _, id := range []string{"../escape", "..", "a/b", ""} {
		if _, err := store.Get(ctx, "u1", id); err == nil || errors.Is(err, core.ErrNotFound) {
			t.Errorf("Get(%q) error = %v, want invalid id", id, err)
		}
	}
	if err := store.Save(ctx, &core.Project{ID: "ok", UserID: "../u"}); err == nil {
		t.Error("Save() accepted traversing user id")
	}
}

func TestDelete(t *testing.T) {
	store := NewStore(t.TempDir(), 10)
	ctx := context.Background()

	if err := store.Save(ctx, &core.Project{ID: "p1", UserID: "u1"}); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if _, err := store.CreateVersion(ctx, "p1", "v1", "u1", *testScene()); err != nil {
		t.Fatalf("CreateVersion() failed: %v", err)
	}
	if err := store.Delete(ctx, "u1", "p1"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err := store.Get(ctx, "u1", "p1"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Get() after Delete() error = %v", err)
	}
	versions, _ := store.ListVersions(ctx, "p1")
	if len(versions) != 0 {
		t.Errorf("versions survived Delete(): %d", len(versions))
	}
	if err := store.Delete(ctx, "u1", "p1"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestVersions(t *testing.T) {
	store := NewStore(t.TempDir(), 2)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 4; i++ {
		id, err := store.CreateVersion(ctx, "p1", fmt.Sprintf("v%d", i), "u1", *testScene())
		if err != nil {
			t.Fatalf("CreateVersion() failed: %v", err)
		}
		ids = append(ids, id)
	}

	versions, err := store.ListVersions(ctx, "p1")
	if err != nil {
		t.Fatalf("ListVersions() failed: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("ListVersions() returned %d, want 2", len(versions))
	}
	if versions[0].ID != ids[3] || versions[1].ID != ids[2] {
		t.Errorf("ListVersions() order = %s, %s", versions[0].ID, versions[1].ID)
	}

	v, err := store.GetVersion(ctx, ids[3])
	if err != nil {
		t.Fatalf("GetVersion() failed: %v", err)
	}
	if v.ProjectID != "p1" || v.Scene == nil {
		t.Errorf("GetVersion() = %+v", v)
	}
	if _, err := store.GetVersion(ctx, ids[0]); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("dropped version still readable: %v", err)
	}

	if err := store.DeleteVersion(ctx, ids[3]); err != nil {
		t.Fatalf("DeleteVersion() failed: %v", err)
	}
	if err := store.DeleteVersion(ctx, ids[3]); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("second DeleteVersion() error = %v", err)
	}
}
