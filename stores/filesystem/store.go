package filesystem

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"overlay-builder/core"
	"overlay-builder/scene"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

type fsStore struct {
	basePath    string
	maxVersions int
}

// NewStore creates a new filesystem-based store. Projects live under
// <basePath>/projects/<userID>/<projectID>, versions under
// <basePath>/versions/<projectID>/<versionID>.
func NewStore(basePath string, maxVersions int) *fsStore {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		log.Fatalf("failed to create base directory: %v", err)
	}
	if maxVersions < 1 {
		maxVersions = 10
	}
	return &fsStore{basePath: basePath, maxVersions: maxVersions}
}

// checkName rejects ids that would escape their directory.
func checkName(kind, id string) error {
	if id == "" || id == "." || id == ".." || filepath.Base(id) != id {
		return fmt.Errorf("invalid %s id %q", kind, id)
	}
	return nil
}

func (s *fsStore) userPath(userID string) string {
	return filepath.Join(s.basePath, "projects", userID)
}

func (s *fsStore) projectPath(userID, id string) (string, error) {
	if err := checkName("user", userID); err != nil {
		return "", err
	}
	if err := checkName("project", id); err != nil {
		return "", err
	}
	return filepath.Join(s.userPath(userID), id), nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// projectFile is the on-disk form; Project hides UserID from JSON.
type projectFile struct {
	core.Project
	UserID string `json:"userId"`
}

func (s *fsStore) List(ctx context.Context, userID string) ([]*core.Project, error) {
	if err := checkName("user", userID); err != nil {
		return nil, err
	}
	userPath := s.userPath(userID)
	log := logrus.WithField("user_id", userID).WithField("path", userPath)

	files, err := os.ReadDir(userPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info("User directory does not exist, returning empty list.")
			return []*core.Project{}, nil
		}
		log.WithError(err).Error("Failed to read user directory")
		return nil, err
	}

	projects := make([]*core.Project, 0, len(files))
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		var pf projectFile
		if err := readJSON(filepath.Join(userPath, file.Name()), &pf); err != nil {
			log.WithError(err).Warnf("Failed to read project file %s, skipping", file.Name())
			continue
		}
		p := pf.Project
		p.UserID = userID
		p.Scene = nil
		projects = append(projects, &p)
	}
	sort.Slice(projects, func(i, j int) bool {
		return projects[i].UpdatedAt.After(projects[j].UpdatedAt)
	})

	log.Infof("Listed %d projects", len(projects))
	return projects, nil
}

func (s *fsStore) Get(ctx context.Context, userID, id string) (*core.Project, error) {
	filePath, err := s.projectPath(userID, id)
	if err != nil {
		return nil, err
	}
	log := logrus.WithFields(logrus.Fields{"user_id": userID, "project_id": id, "path": filePath})

	var pf projectFile
	if err := readJSON(filePath, &pf); err != nil {
		if os.IsNotExist(err) {
			log.Warn("Project file not found")
			return nil, fmt.Errorf("project with id %s not found: %w", id, core.ErrNotFound)
		}
		log.WithError(err).Error("Failed to read project file")
		return nil, err
	}

	p := pf.Project
	p.UserID = userID
	log.Info("Project retrieved successfully")
	return &p, nil
}

func (s *fsStore) Save(ctx context.Context, project *core.Project) error {
	filePath, err := s.projectPath(project.UserID, project.ID)
	if err != nil {
		return err
	}
	log := logrus.WithFields(logrus.Fields{"user_id": project.UserID, "project_id": project.ID, "path": filePath})

	now := time.Now()
	var existing projectFile
	if err := readJSON(filePath, &existing); err == nil {
		project.CreatedAt = existing.CreatedAt
	} else {
		project.CreatedAt = now
	}
	project.UpdatedAt = now

	if err := writeJSON(filePath, projectFile{Project: *project, UserID: project.UserID}); err != nil {
		log.WithError(err).Error("Failed to write project file")
		return err
	}

	log.Info("Project saved successfully")
	return nil
}

func (s *fsStore) Delete(ctx context.Context, userID, id string) error {
	filePath, err := s.projectPath(userID, id)
	if err != nil {
		return err
	}
	log := logrus.WithFields(logrus.Fields{"user_id": userID, "project_id": id, "path": filePath})

	if err := os.Remove(filePath); err != nil {
		if os.IsNotExist(err) {
			log.Warn("Project file not found for deletion")
			return fmt.Errorf("project with id %s not found: %w", id, core.ErrNotFound)
		}
		log.WithError(err).Error("Failed to delete project file")
		return err
	}
	if err := os.RemoveAll(filepath.Join(s.basePath, "versions", id)); err != nil {
		log.WithError(err).Warn("Failed to remove project versions")
	}

	log.Info("Project deleted successfully")
	return nil
}

func (s *fsStore) versionDir(projectID string) string {
	return filepath.Join(s.basePath, "versions", projectID)
}

// findVersion locates a version file by id across projects.
func (s *fsStore) findVersion(id string) (string, error) {
	if err := checkName("version", id); err != nil {
		return "", err
	}
	matches, err := filepath.Glob(filepath.Join(s.basePath, "versions", "*", id))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("version with id %s not found: %w", id, core.ErrNotFound)
	}
	return matches[0], nil
}

func (s *fsStore) readVersions(projectID string) ([]core.Version, error) {
	entries, err := os.ReadDir(s.versionDir(projectID))
	if err != nil {
		if os.IsNotExist(err) {
			return []core.Version{}, nil
		}
		return nil, err
	}
	versions := make([]core.Version, 0, len(entries))
	for _, e := range entries {
		var v core.Version
		if err := readJSON(filepath.Join(s.versionDir(projectID), e.Name()), &v); err != nil {
			logrus.WithError(err).WithField("file", e.Name()).Warn("Failed to read version file, skipping")
			continue
		}
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool {
		if versions[i].CreatedAt != versions[j].CreatedAt {
			return versions[i].CreatedAt > versions[j].CreatedAt
		}
		return versions[i].ID > versions[j].ID
	})
	return versions, nil
}

func (s *fsStore) CreateVersion(ctx context.Context, projectID, name, createdBy string, sc scene.Snapshot) (string, error) {
	if err := checkName("project", projectID); err != nil {
		return "", err
	}
	id := ulid.Make().String()
	log := logrus.WithFields(logrus.Fields{"version_id": id, "project_id": projectID})

	snap := sc.Clone()
	v := core.Version{
		ID:        id,
		ProjectID: projectID,
		Name:      name,
		CreatedBy: createdBy,
		CreatedAt: int64(ulid.Now()),
		Scene:     &snap,
	}
	if err := writeJSON(filepath.Join(s.versionDir(projectID), id), v); err != nil {
		log.WithError(err).Error("Failed to write version file")
		return "", err
	}

	versions, err := s.readVersions(projectID)
	if err != nil {
		log.WithError(err).Warn("Failed to apply version retention")
		return id, nil
	}
	for _, old := range versions[min(len(versions), s.maxVersions):] {
		if err := os.Remove(filepath.Join(s.versionDir(projectID), old.ID)); err != nil {
			log.WithError(err).WithField("old_version_id", old.ID).Error("Failed to delete oldest version")
		}
	}

	log.Info("Version created successfully")
	return id, nil
}

func (s *fsStore) ListVersions(ctx context.Context, projectID string) ([]core.Version, error) {
	if err := checkName("project", projectID); err != nil {
		return nil, err
	}
	versions, err := s.readVersions(projectID)
	if err != nil {
		logrus.WithError(err).WithField("project_id", projectID).Error("Failed to list versions")
		return nil, err
	}
	for i := range versions {
		versions[i].Scene = nil
	}
	return versions, nil
}

func (s *fsStore) GetVersion(ctx context.Context, id string) (*core.Version, error) {
	path, err := s.findVersion(id)
	if err != nil {
		logrus.WithField("version_id", id).Warn("Version with specified ID not found")
		return nil, err
	}
	var v core.Version
	if err := readJSON(path, &v); err != nil {
		logrus.WithError(err).WithField("version_id", id).Error("Failed to read version")
		return nil, err
	}
	return &v, nil
}

func (s *fsStore) DeleteVersion(ctx context.Context, id string) error {
	path, err := s.findVersion(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		logrus.WithError(err).WithField("version_id", id).Error("Failed to delete version")
		return err
	}
	logrus.WithField("version_id", id).Info("Version deleted successfully")
	return nil
}
