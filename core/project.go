package core

import (
	"context"
	"errors"
	"time"

	"overlay-builder/scene"
)

// ErrNotFound is wrapped by stores when a project or version does not exist.
var ErrNotFound = errors.New("not found")

type (
	// Project is a user-owned overlay and its persisted scene.
	Project struct {
		ID        string          `json:"id"`
		UserID    string          `json:"-"` // Not exposed in JSON responses, used internally.
		Name      string          `json:"name"`
		Thumbnail string          `json:"thumbnail,omitempty"`
		Scene     *scene.Snapshot `json:"scene,omitempty"` // Not included in list views.
		CreatedAt time.Time       `json:"createdAt"`
		UpdatedAt time.Time       `json:"updatedAt"`
	}

	// ProjectStore defines the persistence layer for user-owned projects.
	// All operations are scoped to a specific user.
	ProjectStore interface {
		// List returns metadata for all projects owned by a user.
		// The returned projects carry no Scene.
		List(ctx context.Context, userID string) ([]*Project, error)

		// Get returns a single project by its ID, ensuring it belongs to the user.
		Get(ctx context.Context, userID, id string) (*Project, error)

		// Save creates or updates a project for a user.
		Save(ctx context.Context, project *Project) error

		// Delete removes a project, ensuring it belongs to the user.
		Delete(ctx context.Context, userID, id string) error
	}

	// Version is a point-in-time copy of a project's scene.
	Version struct {
		ID        string          `json:"id"`
		ProjectID string          `json:"project_id"`
		Name      string          `json:"name"`
		CreatedBy string          `json:"created_by"`
		CreatedAt int64           `json:"created_at"`
		Scene     *scene.Snapshot `json:"scene,omitempty"`
	}

	// VersionStore is implemented by stores that keep project history.
	// Older versions beyond the store's retention limit are dropped on create.
	VersionStore interface {
		CreateVersion(ctx context.Context, projectID, name, createdBy string, s scene.Snapshot) (string, error)
		ListVersions(ctx context.Context, projectID string) ([]Version, error)
		GetVersion(ctx context.Context, id string) (*Version, error)
		DeleteVersion(ctx context.Context, id string) error
	}

	Room struct {
		ID         string
		LastActive int64
	}

	RoomRegistry interface {
		ListRooms(ctx context.Context) ([]Room, error)
		TouchRoom(ctx context.Context, roomID string) error
	}
)
