package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"overlay-builder/core"
	"overlay-builder/scene"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// memStore implements ProjectStore, VersionStore and RoomRegistry in memory.
type memStore struct {
	mu sync.RWMutex
	// projects is keyed by userID, then by projectID.
	projects    map[string]map[string]*core.Project
	versions    map[string]*core.Version
	rooms       map[string]int64
	maxVersions int
}

// NewStore creates a new in-memory store keeping at most maxVersions
// versions per project.
func NewStore(maxVersions int) *memStore {
	if maxVersions < 1 {
		maxVersions = 10
	}
	return &memStore{
		projects:    make(map[string]map[string]*core.Project),
		versions:    make(map[string]*core.Version),
		rooms:       make(map[string]int64),
		maxVersions: maxVersions,
	}
}

func copyProject(p *core.Project, withScene bool) *core.Project {
	c := *p
	c.Scene = nil
	if withScene && p.Scene != nil {
		s := p.Scene.Clone()
		c.Scene = &s
	}
	return &c
}

// List returns metadata for all projects owned by a user.
func (s *memStore) List(ctx context.Context, userID string) ([]*core.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userProjects, ok := s.projects[userID]
	if !ok {
		return []*core.Project{}, nil
	}

	projects := make([]*core.Project, 0, len(userProjects))
	for _, p := range userProjects {
		projects = append(projects, copyProject(p, false))
	}
	sort.Slice(projects, func(i, j int) bool {
		return projects[i].UpdatedAt.After(projects[j].UpdatedAt)
	})

	logrus.WithField("user_id", userID).Infof("Listed %d projects", len(projects))
	return projects, nil
}

// Get returns a single project, ensuring it belongs to the user.
func (s *memStore) Get(ctx context.Context, userID, id string) (*core.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := logrus.WithFields(logrus.Fields{"user_id": userID, "project_id": id})

	p, ok := s.projects[userID][id]
	if !ok {
		log.Warn("Project not found for user")
		return nil, fmt.Errorf("project with id %s not found: %w", id, core.ErrNotFound)
	}

	log.Info("Project retrieved successfully")
	return copyProject(p, true), nil
}

// Save creates or updates a project for a user.
func (s *memStore) Save(ctx context.Context, project *core.Project) error {
	if project.UserID == "" {
		return fmt.Errorf("UserID cannot be empty")
	}
	if project.ID == "" {
		return fmt.Errorf("Project ID cannot be empty for save operation")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	userProjects, ok := s.projects[project.UserID]
	if !ok {
		userProjects = make(map[string]*core.Project)
		s.projects[project.UserID] = userProjects
	}

	now := time.Now()
	if existing, exists := userProjects[project.ID]; exists {
		project.CreatedAt = existing.CreatedAt
	} else {
		project.CreatedAt = now
	}
	project.UpdatedAt = now

	userProjects[project.ID] = copyProject(project, true)
	logrus.WithFields(logrus.Fields{"user_id": project.UserID, "project_id": project.ID}).Info("Project saved successfully")
	return nil
}

// Delete removes a project and its versions.
func (s *memStore) Delete(ctx context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := logrus.WithFields(logrus.Fields{"user_id": userID, "project_id": id})

	if _, ok := s.projects[userID][id]; !ok {
		log.Warn("Project not found for deletion")
		return fmt.Errorf("project with id %s not found: %w", id, core.ErrNotFound)
	}

	delete(s.projects[userID], id)
	for vid, v := range s.versions {
		if v.ProjectID == id {
			delete(s.versions, vid)
		}
	}
	log.Info("Project deleted successfully")
	return nil
}

// projectVersions returns the project's versions, newest first. Callers hold mu.
func (s *memStore) projectVersions(projectID string) []*core.Version {
	var list []*core.Version
	for _, v := range s.versions {
		if v.ProjectID == projectID {
			list = append(list, v)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt != list[j].CreatedAt {
			return list[i].CreatedAt > list[j].CreatedAt
		}
		return list[i].ID > list[j].ID
	})
	return list
}

// CreateVersion stores a copy of sc, dropping the oldest versions past the
// retention limit.
func (s *memStore) CreateVersion(ctx context.Context, projectID, name, createdBy string, sc scene.Snapshot) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := ulid.Make().String()
	snap := sc.Clone()
	s.versions[id] = &core.Version{
		ID:        id,
		ProjectID: projectID,
		Name:      name,
		CreatedBy: createdBy,
		CreatedAt: int64(ulid.Now()),
		Scene:     &snap,
	}

	list := s.projectVersions(projectID)
	for _, old := range list[min(len(list), s.maxVersions):] {
		delete(s.versions, old.ID)
	}

	logrus.WithFields(logrus.Fields{"version_id": id, "project_id": projectID}).Info("Version created successfully")
	return id, nil
}

// ListVersions lists a project's versions newest first, without scenes.
func (s *memStore) ListVersions(ctx context.Context, projectID string) ([]core.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.projectVersions(projectID)
	versions := make([]core.Version, 0, len(list))
	for _, v := range list {
		c := *v
		c.Scene = nil
		versions = append(versions, c)
	}
	return versions, nil
}

func (s *memStore) GetVersion(ctx context.Context, id string) (*core.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.versions[id]
	if !ok {
		logrus.WithField("version_id", id).Warn("Version with specified ID not found")
		return nil, fmt.Errorf("version with id %s not found: %w", id, core.ErrNotFound)
	}
	c := *v
	snap := v.Scene.Clone()
	c.Scene = &snap
	return &c, nil
}

func (s *memStore) DeleteVersion(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.versions[id]; !ok {
		return fmt.Errorf("version with id %s not found: %w", id, core.ErrNotFound)
	}
	delete(s.versions, id)
	logrus.WithField("version_id", id).Info("Version deleted successfully")
	return nil
}

// ListRooms returns every room touched so far.
func (s *memStore) ListRooms(ctx context.Context) ([]core.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rooms := make([]core.Room, 0, len(s.rooms))
	for id, last := range s.rooms {
		rooms = append(rooms, core.Room{ID: id, LastActive: last})
	}
	return rooms, nil
}

// TouchRoom records activity in a room.
func (s *memStore) TouchRoom(ctx context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rooms[roomID] = time.Now().UnixMilli()
	return nil
}
