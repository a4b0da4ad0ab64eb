package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"overlay-builder/core"
	"overlay-builder/scene"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

type sqliteStore struct {
	db          *sql.DB
	maxVersions int
}

// NewStore creates a new SQLite-based store keeping at most maxVersions
// versions per project.
func NewStore(dataSourceName string, maxVersions int) *sqliteStore {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		log.Fatalf("failed to open sqlite database: %v", err)
	}
	if maxVersions < 1 {
		maxVersions = 10
	}

	projectTableStmt := `
	CREATE TABLE IF NOT EXISTS projects (
		id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		name TEXT,
		thumbnail TEXT,
		scene BLOB,
		created_at DATETIME,
		updated_at DATETIME,
		PRIMARY KEY (user_id, id)
	);`
	if _, err = db.Exec(projectTableStmt); err != nil {
		log.Fatalf("failed to create projects table: %v", err)
	}

	versionTableStmt := `
	CREATE TABLE IF NOT EXISTS versions (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		name TEXT,
		created_by TEXT,
		created_at INTEGER NOT NULL,
		scene BLOB NOT NULL
	);`
	if _, err = db.Exec(versionTableStmt); err != nil {
		log.Fatalf("failed to create versions table: %v", err)
	}

	roomTableStmt := `CREATE TABLE IF NOT EXISTS rooms (id TEXT PRIMARY KEY, last_active INTEGER NOT NULL);`
	if _, err = db.Exec(roomTableStmt); err != nil {
		log.Fatalf("failed to create rooms table: %v", err)
	}

	return &sqliteStore{db: db, maxVersions: maxVersions}
}

func encodeScene(s *scene.Snapshot) ([]byte, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

func decodeScene(data []byte) (*scene.Snapshot, error) {
	if len(data) == 0 {
		return nil, nil
	}
	s, err := scene.ParseSnapshot(data)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ProjectStore implementation
func (s *sqliteStore) List(ctx context.Context, userID string) ([]*core.Project, error) {
	log := logrus.WithField("user_id", userID)
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, thumbnail, created_at, updated_at FROM projects WHERE user_id = ? ORDER BY updated_at DESC", userID)
	if err != nil {
		log.WithError(err).Error("Failed to list projects")
		return nil, err
	}
	defer rows.Close()

	projects := []*core.Project{}
	for rows.Next() {
		project := core.Project{UserID: userID}
		var name, thumbnail sql.NullString
		if err := rows.Scan(&project.ID, &name, &thumbnail, &project.CreatedAt, &project.UpdatedAt); err != nil {
			log.WithError(err).Error("Failed to scan project")
			return nil, err
		}
		project.Name = name.String
		project.Thumbnail = thumbnail.String
		projects = append(projects, &project)
	}

	log.Infof("Listed %d projects", len(projects))
	return projects, rows.Err()
}

func (s *sqliteStore) Get(ctx context.Context, userID, id string) (*core.Project, error) {
	log := logrus.WithFields(logrus.Fields{"user_id": userID, "project_id": id})

	project := core.Project{ID: id, UserID: userID}
	var name, thumbnail sql.NullString
	var data []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT name, thumbnail, scene, created_at, updated_at FROM projects WHERE user_id = ? AND id = ?", userID, id).
		Scan(&name, &thumbnail, &data, &project.CreatedAt, &project.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			log.Warn("Project with specified ID not found")
			return nil, fmt.Errorf("project with id %s not found: %w", id, core.ErrNotFound)
		}
		log.WithError(err).Error("Failed to retrieve project")
		return nil, err
	}
	project.Name = name.String
	project.Thumbnail = thumbnail.String
	if project.Scene, err = decodeScene(data); err != nil {
		log.WithError(err).Error("Failed to decode project scene")
		return nil, err
	}

	log.Info("Project retrieved successfully")
	return &project, nil
}

func (s *sqliteStore) Save(ctx context.Context, project *core.Project) error {
	log := logrus.WithFields(logrus.Fields{"user_id": project.UserID, "project_id": project.ID})

	data, err := encodeScene(project.Scene)
	if err != nil {
		log.WithError(err).Error("Failed to encode project scene")
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var createdAt time.Time
	err = tx.QueryRowContext(ctx, "SELECT created_at FROM projects WHERE user_id = ? AND id = ?", project.UserID, project.ID).Scan(&createdAt)
	if err != nil && err != sql.ErrNoRows {
		return err
	}
	exists := err == nil

	now := time.Now()
	if exists {
		_, err = tx.ExecContext(ctx,
			"UPDATE projects SET name = ?, thumbnail = ?, scene = ?, updated_at = ? WHERE user_id = ? AND id = ?",
			project.Name, project.Thumbnail, data, now, project.UserID, project.ID)
		project.CreatedAt = createdAt
	} else {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO projects (id, user_id, name, thumbnail, scene, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
			project.ID, project.UserID, project.Name, project.Thumbnail, data, now, now)
		project.CreatedAt = now
	}
	if err != nil {
		log.WithError(err).Error("Failed to save project")
		return err
	}
	project.UpdatedAt = now

	if err := tx.Commit(); err != nil {
		return err
	}
	log.Info("Project saved successfully")
	return nil
}

func (s *sqliteStore) Delete(ctx context.Context, userID, id string) error {
	log := logrus.WithFields(logrus.Fields{"user_id": userID, "project_id": id})

	result, err := s.db.ExecContext(ctx, "DELETE FROM projects WHERE user_id = ? AND id = ?", userID, id)
	if err != nil {
		log.WithError(err).Error("Failed to delete project")
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		log.Warn("Project not found for deletion")
		return fmt.Errorf("project with id %s not found: %w", id, core.ErrNotFound)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM versions WHERE project_id = ?", id); err != nil {
		log.WithError(err).Warn("Failed to delete project versions")
	}

	log.Info("Project deleted successfully")
	return nil
}

// CreateVersion stores a version, deleting the oldest ones once the project
// is at its retention limit.
func (s *sqliteStore) CreateVersion(ctx context.Context, projectID, name, createdBy string, sc scene.Snapshot) (string, error) {
	id := ulid.Make().String()
	createdAt := ulid.Now()

	data, err := json.Marshal(sc)
	if err != nil {
		return "", err
	}
	log := logrus.WithFields(logrus.Fields{
		"version_id":  id,
		"project_id":  projectID,
		"data_length": len(data),
	})

	var count int
	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM versions WHERE project_id = ?", projectID).Scan(&count)
	if err != nil {
		log.WithError(err).Error("Failed to count versions")
		return "", err
	}

	if excess := count - s.maxVersions + 1; excess > 0 {
		_, err = s.db.ExecContext(ctx,
			"DELETE FROM versions WHERE id IN (SELECT id FROM versions WHERE project_id = ? ORDER BY created_at ASC, id ASC LIMIT ?)",
			projectID, excess)
		if err != nil {
			log.WithError(err).Error("Failed to delete oldest version")
		}
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO versions (id, project_id, name, created_by, created_at, scene) VALUES (?, ?, ?, ?, ?, ?)",
		id, projectID, name, createdBy, createdAt, data)
	if err != nil {
		log.WithError(err).Error("Failed to create version")
		return "", err
	}

	log.Info("Version created successfully")
	return id, nil
}

// ListVersions lists a project's versions newest first, without scenes.
func (s *sqliteStore) ListVersions(ctx context.Context, projectID string) ([]core.Version, error) {
	log := logrus.WithField("project_id", projectID)
	log.Debug("Listing versions for project")

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, project_id, name, created_by, created_at FROM versions WHERE project_id = ? ORDER BY created_at DESC, id DESC",
		projectID)
	if err != nil {
		log.WithError(err).Error("Failed to list versions")
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			log.WithError(cerr).Warn("Failed to close version rows")
		}
	}()

	versions := []core.Version{}
	for rows.Next() {
		var v core.Version
		var name, createdBy sql.NullString
		if err := rows.Scan(&v.ID, &v.ProjectID, &name, &createdBy, &v.CreatedAt); err != nil {
			log.WithError(err).Error("Failed to scan version")
			continue
		}
		v.Name = name.String
		v.CreatedBy = createdBy.String
		versions = append(versions, v)
	}
	return versions, nil
}

func (s *sqliteStore) GetVersion(ctx context.Context, id string) (*core.Version, error) {
	log := logrus.WithField("version_id", id)

	var v core.Version
	var name, createdBy sql.NullString
	var data []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT id, project_id, name, created_by, created_at, scene FROM versions WHERE id = ?", id).
		Scan(&v.ID, &v.ProjectID, &name, &createdBy, &v.CreatedAt, &data)
	if err != nil {
		if err == sql.ErrNoRows {
			log.Warn("Version with specified ID not found")
			return nil, fmt.Errorf("version with id %s not found: %w", id, core.ErrNotFound)
		}
		log.WithError(err).Error("Failed to retrieve version")
		return nil, err
	}
	v.Name = name.String
	v.CreatedBy = createdBy.String
	if v.Scene, err = decodeScene(data); err != nil {
		log.WithError(err).Error("Failed to decode version scene")
		return nil, err
	}
	return &v, nil
}

func (s *sqliteStore) DeleteVersion(ctx context.Context, id string) error {
	log := logrus.WithField("version_id", id)

	result, err := s.db.ExecContext(ctx, "DELETE FROM versions WHERE id = ?", id)
	if err != nil {
		log.WithError(err).Error("Failed to delete version")
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("version with id %s not found: %w", id, core.ErrNotFound)
	}

	log.Info("Version deleted successfully")
	return nil
}

// RoomRegistry implementation
func (s *sqliteStore) ListRooms(ctx context.Context) ([]core.Room, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, last_active FROM rooms ORDER BY last_active DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rooms := []core.Room{}
	for rows.Next() {
		var room core.Room
		if err := rows.Scan(&room.ID, &room.LastActive); err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

func (s *sqliteStore) TouchRoom(ctx context.Context, roomID string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO rooms (id, last_active) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET last_active = excluded.last_active",
		roomID, time.Now().UnixMilli())
	if err != nil {
		logrus.WithError(err).WithField("room_id", roomID).Error("Failed to touch room")
	}
	return err
}

// Close releases the database handle.
func (s *sqliteStore) Close() error {
	return s.db.Close()
}
