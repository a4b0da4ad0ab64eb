package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"overlay-builder/core"
	"overlay-builder/scene"

	"github.com/sirupsen/logrus"
)

// Save states reported by SaveStatus.
const (
	StateSaved   = "saved"
	StatePending = "pending"
	StateSaving  = "saving"
	StateError   = "error"
)

// ErrVersionsUnsupported is returned when the store keeps no history.
var ErrVersionsUnsupported = errors.New("store does not support versions")

// SaveStatus reports the outcome of autosave. A failed save leaves the
// scene editable and is retried on the next edit or flush.
type SaveStatus struct {
	State     string    `json:"state"`
	LastError string    `json:"lastError,omitempty"`
	LastSaved time.Time `json:"lastSaved"`
	Saves     int       `json:"saves"`
}

// Notifier receives the effective changes of every edit.
type Notifier interface {
	SceneChanged(projectID string, changes []scene.Change)
}

// Session is one open project: an editor whose edits are serialized and
// persisted after a quiet period.
type Session struct {
	id string

	mu      sync.Mutex
	project core.Project // Scene is always nil; the editor owns the scene.
	editor  *scene.Editor
	pending []scene.Change
	rev     int
	saved   int
	timer   *time.Timer
	status  SaveStatus
	closed  bool

	// saveMu serializes writes to the store.
	saveMu sync.Mutex

	store    core.ProjectStore
	versions core.VersionStore
	cfg      Config
	notifier Notifier
}

func newSession(p *core.Project, store core.ProjectStore, cfg Config, notifier Notifier) *Session {
	s := &Session{
		id:       p.ID,
		project:  *p,
		store:    store,
		cfg:      cfg,
		notifier: notifier,
		status:   SaveStatus{State: StateSaved, LastSaved: p.UpdatedAt},
	}
	s.project.Scene = nil
	s.versions, _ = store.(core.VersionStore)
	s.editor = scene.NewEditor(scene.WithChangeHook(s.record))
	if p.Scene != nil {
		s.editor.Load(*p.Scene)
	}
	return s
}

func (s *Session) record(c scene.Change) {
	s.pending = append(s.pending, c)
}

// ProjectID returns the id of the open project.
func (s *Session) ProjectID() string {
	return s.id
}

// Project returns the project metadata without its scene.
func (s *Session) Project() core.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.project
}

// Apply runs fn against the editor. Edits on one session never interleave.
// When fn made effective changes the autosave timer restarts and the
// notifier is told. It returns the changes fn made.
func (s *Session) Apply(fn func(ed *scene.Editor)) []scene.Change {
	s.mu.Lock()
	s.pending = nil
	fn(s.editor)
	changes := s.pending
	s.pending = nil
	if len(changes) > 0 {
		s.markDirtyLocked()
	}
	s.mu.Unlock()

	if len(changes) > 0 && s.notifier != nil {
		s.notifier.SceneChanged(s.id, changes)
	}
	return changes
}

// View runs fn with the session locked. fn must not mutate the scene.
func (s *Session) View(fn func(ed *scene.Editor)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.editor)
}

// Snapshot returns a copy of the current scene.
func (s *Session) Snapshot() scene.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editor.Snapshot()
}

// Replace loads snap as the whole scene, as when restoring a version.
func (s *Session) Replace(snap scene.Snapshot) {
	s.Apply(func(ed *scene.Editor) {
		ed.Load(snap)
		s.record(scene.Change{Op: scene.OpLoad})
	})
}

// Rename changes the project name and schedules a save.
func (s *Session) Rename(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.project.Name == name {
		return
	}
	s.project.Name = name
	s.markDirtyLocked()
}

func (s *Session) markDirtyLocked() {
	s.rev++
	if s.closed {
		return
	}
	if s.status.State != StateError {
		s.status.State = StatePending
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.cfg.Debounce, s.autosave)
}

func (s *Session) autosave() {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	// Flush logs and records failures itself.
	_ = s.Flush(context.Background())
}

// Status reports the latest save outcome.
func (s *Session) Status() SaveStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Dirty reports whether there are edits not yet persisted.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rev != s.saved
}

// Flush saves pending edits now. Every VersionInterval successful saves it
// also writes a version when the store keeps history.
func (s *Session) Flush(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	if s.closed || s.rev == s.saved {
		s.mu.Unlock()
		return nil
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	rev := s.rev
	snap := s.editor.Snapshot()
	project := s.project
	project.Scene = &snap
	s.status.State = StateSaving
	s.mu.Unlock()

	log := logrus.WithFields(logrus.Fields{"user_id": project.UserID, "project_id": project.ID})
	err := s.store.Save(ctx, &project)

	s.mu.Lock()
	if err != nil {
		s.status.State = StateError
		s.status.LastError = err.Error()
		s.mu.Unlock()
		log.WithError(err).Error("Failed to save project")
		return err
	}
	s.saved = rev
	s.project.CreatedAt = project.CreatedAt
	s.project.UpdatedAt = project.UpdatedAt
	s.status.LastError = ""
	s.status.LastSaved = project.UpdatedAt
	s.status.Saves++
	s.status.State = StateSaved
	if s.rev != s.saved {
		s.status.State = StatePending
	}
	saves := s.status.Saves
	s.mu.Unlock()

	log.WithField("saves", saves).Info("Project autosaved")

	if s.versions != nil && s.cfg.VersionInterval > 0 && saves%s.cfg.VersionInterval == 0 {
		name := fmt.Sprintf("Autosave %d", saves)
		if _, err := s.versions.CreateVersion(ctx, project.ID, name, project.UserID, snap); err != nil {
			log.WithError(err).Error("Failed to create autosave version")
		}
	}
	return nil
}

// CreateVersion records the current scene as a named version.
func (s *Session) CreateVersion(ctx context.Context, name, createdBy string) (string, error) {
	if s.versions == nil {
		return "", ErrVersionsUnsupported
	}
	snap := s.Snapshot()
	return s.versions.CreateVersion(ctx, s.id, name, createdBy, snap)
}

// Close stops the autosave timer and waits for a save in progress. Pending
// edits are not saved and later Flush calls are no-ops; call Flush first to
// keep them.
func (s *Session) Close() {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
