package aws

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"overlay-builder/core"
	"overlay-builder/scene"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// fakeS3 keeps objects in a map keyed by object key.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &s3.ListObjectsV2Output{}
	for key := range f.objects {
		if strings.HasPrefix(key, aws.ToString(in.Prefix)) {
			out.Contents = append(out.Contents, s3types.Object{Key: aws.String(key)})
		}
	}
	return out, nil
}

func newTestStore() (*s3Store, *fakeS3) {
	fake := newFakeS3()
	return &s3Store{s3Client: fake, bucket: "overlays"}, fake
}

func TestSaveGet(t *testing.T) {
	store, fake := newTestStore()
	ctx := context.Background()

	sc := scene.Snapshot{
		Shapes: []*scene.Shape{scene.NewShape("image-1", scene.ShapeImage, 0, 0)},
		Layers: []*scene.Layer{scene.NewLayer("image-1", "Image 1", scene.LayerShape)},
	}
	p := &core.Project{ID: "p1", UserID: "u1", Name: "Webcam Frame", Scene: &sc}
	if err := store.Save(ctx, p); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if _, ok := fake.objects["u1/p1"]; !ok {
		t.Fatalf("object not written under user prefix: %v", fake.objects)
	}

	got, err := store.Get(ctx, "u1", "p1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.UserID != "u1" || got.Name != "Webcam Frame" || got.Scene == nil {
		t.Errorf("Get() = %+v", got)
	}
	if got.Scene.Shapes[0].Width != 320 {
		t.Errorf("shape width = %v, want 320", got.Scene.Shapes[0].Width)
	}
}

func TestGet_NotFound(t *testing.T) {
	store, _ := newTestStore()
	if _, err := store.Get(context.Background(), "u1", "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestProjectKeyRejectsPaths(t *testing.T) {
	store, _ := newTestStore()
	for _, id := range []string{"", ".", "..", "a/b", "../x"} {
		if _, err := store.projectKey("u1", id); err == nil {
			t.Errorf("projectKey(%q) accepted", id)
		}
	}
	if key, err := store.projectKey("u1", "p1"); err != nil || key != "u1/p1" {
		t.Errorf("projectKey() = %q, %v", key, err)
	}
}

func TestListAndDelete(t *testing.T) {
	store, fake := newTestStore()
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if err := store.Save(ctx, &core.Project{ID: id, UserID: "u1"}); err != nil {
			t.Fatalf("Save() failed: %v", err)
		}
	}
	if err := store.Save(ctx, &core.Project{ID: "c", UserID: "u2"}); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	fake.objects["u1/broken"] = []byte("{not json")

	list, err := store.List(ctx, "u1")
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("List() returned %d, want 2", len(list))
	}

	if err := store.Delete(ctx, "u1", "a"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err := store.Get(ctx, "u1", "a"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Get() after Delete() error = %v", err)
	}
}

func TestSave_PutError(t *testing.T) {
	store, fake := newTestStore()
	fake.putErr = errors.New("boom")
	if err := store.Save(context.Background(), &core.Project{ID: "p1", UserID: "u1"}); err == nil {
		t.Error("Save() succeeded despite put error")
	}
}
