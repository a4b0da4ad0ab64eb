package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"overlay-builder/core"
	"overlay-builder/scene"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mu       sync.Mutex
	projects map[string]*core.Project
	saves    int
	saveErr  error
	versions []string
	// gate, when set, holds Save until it is closed.
	gate    chan struct{}
	entered chan struct{}
}

func newMockStore(projects ...*core.Project) *mockStore {
	m := &mockStore{projects: make(map[string]*core.Project)}
	for _, p := range projects {
		m.projects[p.ID] = p
	}
	return m
}

func (m *mockStore) List(ctx context.Context, userID string) ([]*core.Project, error) {
	return nil, nil
}

func (m *mockStore) Get(ctx context.Context, userID, id string) (*core.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok || p.UserID != userID {
		return nil, fmt.Errorf("project with id %s not found: %w", id, core.ErrNotFound)
	}
	c := *p
	return &c, nil
}

func (m *mockStore) Save(ctx context.Context, p *core.Project) error {
	if m.gate != nil {
		m.entered <- struct{}{}
		<-m.gate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	p.UpdatedAt = time.Now()
	c := *p
	m.projects[p.ID] = &c
	return nil
}

func (m *mockStore) Delete(ctx context.Context, userID, id string) error {
	return nil
}

func (m *mockStore) CreateVersion(ctx context.Context, projectID, name, createdBy string, s scene.Snapshot) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.versions = append(m.versions, name)
	return fmt.Sprintf("v%d", len(m.versions)), nil
}

func (m *mockStore) ListVersions(ctx context.Context, projectID string) ([]core.Version, error) {
	return nil, nil
}

func (m *mockStore) GetVersion(ctx context.Context, id string) (*core.Version, error) {
	return nil, core.ErrNotFound
}

func (m *mockStore) DeleteVersion(ctx context.Context, id string) error {
	return nil
}

func (m *mockStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func (m *mockStore) setSaveErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveErr = err
}

type recordingNotifier struct {
	mu      sync.Mutex
	changes map[string][]scene.Change
}

func (n *recordingNotifier) SceneChanged(projectID string, changes []scene.Change) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.changes == nil {
		n.changes = make(map[string][]scene.Change)
	}
	n.changes[projectID] = append(n.changes[projectID], changes...)
}

func testProject() *core.Project {
	return &core.Project{ID: "p1", UserID: "u1", Name: "Overlay"}
}

func openTestSession(t *testing.T, store *mockStore, cfg Config, n Notifier) *Session {
	t.Helper()
	m := NewManager(store, cfg, n)
	s, err := m.Open(context.Background(), "u1", "p1")
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func addRect(ed *scene.Editor) {
	ed.Add("rect", scene.DefaultPlacement)
}

func TestAutosaveDebounce(t *testing.T) {
	store := newMockStore(testProject())
	s := openTestSession(t, store, Config{Debounce: 50 * time.Millisecond}, nil)

	for i := 0; i < 3; i++ {
		s.Apply(addRect)
	}
	assert.Equal(t, StatePending, s.Status().State)
	assert.True(t, s.Dirty())

	require.Eventually(t, func() bool { return store.saveCount() == 1 }, time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return s.Status().State == StateSaved }, time.Second, 10*time.Millisecond)
	assert.False(t, s.Dirty())

	saved, err := store.Get(context.Background(), "u1", "p1")
	require.NoError(t, err)
	require.NotNil(t, saved.Scene)
	assert.Len(t, saved.Scene.Shapes, 3)
	assert.Len(t, saved.Scene.Layers, 3)
}

func TestApplyWithoutChanges(t *testing.T) {
	store := newMockStore(testProject())
	s := openTestSession(t, store, Config{Debounce: 10 * time.Millisecond}, nil)

	changes := s.Apply(func(ed *scene.Editor) {
		ed.Delete("missing")
	})
	assert.Empty(t, changes)
	assert.False(t, s.Dirty())
	assert.Equal(t, StateSaved, s.Status().State)

	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, store.saveCount())
}

func TestFlush(t *testing.T) {
	store := newMockStore(testProject())
	s := openTestSession(t, store, Config{Debounce: time.Hour}, nil)

	require.NoError(t, s.Flush(context.Background()))
	assert.Zero(t, store.saveCount())

	s.Apply(addRect)
	require.NoError(t, s.Flush(context.Background()))
	assert.Equal(t, 1, store.saveCount())
	st := s.Status()
	assert.Equal(t, StateSaved, st.State)
	assert.Equal(t, 1, st.Saves)
	assert.False(t, st.LastSaved.IsZero())

	require.NoError(t, s.Flush(context.Background()))
	assert.Equal(t, 1, store.saveCount())
}

func TestSaveFailureKeepsSceneEditable(t *testing.T) {
	store := newMockStore(testProject())
	s := openTestSession(t, store, Config{Debounce: time.Hour}, nil)

	store.setSaveErr(errors.New("disk full"))
	s.Apply(addRect)
	err := s.Flush(context.Background())
	require.Error(t, err)

	st := s.Status()
	assert.Equal(t, StateError, st.State)
	assert.Equal(t, "disk full", st.LastError)
	assert.True(t, s.Dirty())

	changes := s.Apply(addRect)
	assert.Len(t, changes, 1)
	assert.Equal(t, StateError, s.Status().State)

	store.setSaveErr(nil)
	require.NoError(t, s.Flush(context.Background()))
	st = s.Status()
	assert.Equal(t, StateSaved, st.State)
	assert.Empty(t, st.LastError)

	saved, _ := store.Get(context.Background(), "u1", "p1")
	assert.Len(t, saved.Scene.Shapes, 2)
}

func TestVersionInterval(t *testing.T) {
	store := newMockStore(testProject())
	s := openTestSession(t, store, Config{Debounce: time.Hour, VersionInterval: 2}, nil)

	for i := 0; i < 5; i++ {
		s.Apply(addRect)
		require.NoError(t, s.Flush(context.Background()))
	}
	assert.Equal(t, []string{"Autosave 2", "Autosave 4"}, store.versions)

	id, err := s.CreateVersion(context.Background(), "Before stream", "u1")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, "Before stream", store.versions[2])
}

func TestNotifier(t *testing.T) {
	store := newMockStore(testProject())
	n := &recordingNotifier{}
	s := openTestSession(t, store, Config{Debounce: time.Hour}, n)

	var id string
	s.Apply(func(ed *scene.Editor) { id = ed.Add("circle", scene.DefaultPlacement) })
	s.Apply(func(ed *scene.Editor) { ed.Duplicate(id) })
	s.Apply(func(ed *scene.Editor) { ed.Select(id, false) })

	require.Len(t, n.changes["p1"], 2)
	assert.Equal(t, scene.OpAdd, n.changes["p1"][0].Op)
	assert.Equal(t, []string{id}, n.changes["p1"][0].IDs)
	assert.Equal(t, scene.OpDuplicate, n.changes["p1"][1].Op)
}

func TestReplaceAndRename(t *testing.T) {
	store := newMockStore(testProject())
	s := openTestSession(t, store, Config{Debounce: time.Hour}, nil)
	s.Apply(addRect)

	snap := scene.Snapshot{
		Shapes: []*scene.Shape{scene.NewShape("text-a", scene.ShapeText, 0, 0)},
		Layers: []*scene.Layer{scene.NewLayer("text-a", "Title", scene.LayerText)},
	}
	s.Replace(snap)
	assert.Equal(t, "text-a", s.Snapshot().Layers[0].ID)

	s.Rename("Intermission")
	require.NoError(t, s.Flush(context.Background()))
	saved, _ := store.Get(context.Background(), "u1", "p1")
	assert.Equal(t, "Intermission", saved.Name)
	assert.Equal(t, "Intermission", s.Project().Name)
	assert.Len(t, saved.Scene.Shapes, 1)
}

func TestConcurrentApply(t *testing.T) {
	store := newMockStore(testProject())
	s := openTestSession(t, store, Config{Debounce: 5 * time.Millisecond}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Apply(addRect)
		}()
	}
	wg.Wait()

	require.NoError(t, s.Flush(context.Background()))
	var n int
	s.View(func(ed *scene.Editor) {
		n = len(ed.Layers())
		assert.NoError(t, ed.Validate())
	})
	assert.Equal(t, 20, n)
}

func TestCloseStopsAutosave(t *testing.T) {
	store := newMockStore(testProject())
	s := openTestSession(t, store, Config{Debounce: 20 * time.Millisecond}, nil)

	s.Apply(addRect)
	s.Close()
	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, store.saveCount())
	assert.True(t, s.Dirty())
}

func TestCloseWaitsForSave(t *testing.T) {
	store := newMockStore(testProject())
	store.gate = make(chan struct{})
	store.entered = make(chan struct{}, 1)
	s := openTestSession(t, store, Config{Debounce: time.Hour}, nil)

	s.Apply(addRect)
	go func() { _ = s.Flush(context.Background()) }()
	<-store.entered

	closed := make(chan struct{})
	go func() {
		s.Close()
		close(closed)
	}()
	assert.Never(t, func() bool {
		select {
		case <-closed:
			return true
		default:
			return false
		}
	}, 50*time.Millisecond, 10*time.Millisecond)

	close(store.gate)
	require.Eventually(t, func() bool {
		select {
		case <-closed:
			return true
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, store.saveCount())

	s.Apply(addRect)
	require.NoError(t, s.Flush(context.Background()))
	assert.Equal(t, 1, store.saveCount())
}
