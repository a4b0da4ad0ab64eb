package versions

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"overlay-builder/core"
	"overlay-builder/middleware"
	"overlay-builder/session"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

type (
	Sessions interface {
		Open(ctx context.Context, userID, projectID string) (*session.Session, error)
	}

	CreateVersionRequest struct {
		Name string `json:"name"`
	}

	CreateVersionResponse struct {
		ID string `json:"id"`
	}
)

func fail(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"error": msg})
}

func currentUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	claims, ok := middleware.Claims(r)
	if !ok {
		fail(w, r, http.StatusUnauthorized, "User claims not found")
		return "", false
	}
	return claims.Subject, true
}

// ownedVersion loads {versionId} and checks that its project belongs to the
// caller. Versions of other users' projects are reported as missing.
func ownedVersion(w http.ResponseWriter, r *http.Request, projects core.ProjectStore, versions core.VersionStore) (*core.Version, string, bool) {
	userID, ok := currentUser(w, r)
	if !ok {
		return nil, "", false
	}
	versionID := chi.URLParam(r, "versionId")
	log := logrus.WithFields(logrus.Fields{"user_id": userID, "version_id": versionID})

	v, err := versions.GetVersion(r.Context(), versionID)
	if err == nil {
		_, err = projects.Get(r.Context(), userID, v.ProjectID)
	}
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			log.Warn("Version not found")
			fail(w, r, http.StatusNotFound, "Version not found")
			return nil, "", false
		}
		log.WithField("error", err).Error("Failed to get version")
		fail(w, r, http.StatusInternalServerError, "Failed to get version")
		return nil, "", false
	}
	return v, userID, true
}

func HandleList(projects core.ProjectStore, versions core.VersionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := currentUser(w, r)
		if !ok {
			return
		}
		projectID := chi.URLParam(r, "id")
		log := logrus.WithFields(logrus.Fields{"user_id": userID, "project_id": projectID})

		if _, err := projects.Get(r.Context(), userID, projectID); err != nil {
			if errors.Is(err, core.ErrNotFound) {
				log.Warn("Project not found")
				fail(w, r, http.StatusNotFound, "Project not found")
				return
			}
			log.WithField("error", err).Error("Failed to get project")
			fail(w, r, http.StatusInternalServerError, "Failed to get project")
			return
		}

		list, err := versions.ListVersions(r.Context(), projectID)
		if err != nil {
			log.WithField("error", err).Error("Failed to list versions")
			fail(w, r, http.StatusInternalServerError, "Failed to list versions")
			return
		}
		if list == nil {
			list = []core.Version{}
		}
		render.JSON(w, r, list)
	}
}

// HandleCreate saves the live scene as a named version.
func HandleCreate(sessions Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := currentUser(w, r)
		if !ok {
			return
		}
		var req CreateVersionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		name := strings.TrimSpace(req.Name)
		if name == "" {
			fail(w, r, http.StatusBadRequest, "Name is required")
			return
		}

		projectID := chi.URLParam(r, "id")
		log := logrus.WithFields(logrus.Fields{"user_id": userID, "project_id": projectID})
		s, err := sessions.Open(r.Context(), userID, projectID)
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				log.Warn("Project not found")
				fail(w, r, http.StatusNotFound, "Project not found")
				return
			}
			log.WithField("error", err).Error("Failed to open project")
			fail(w, r, http.StatusInternalServerError, "Failed to open project")
			return
		}

		id, err := s.CreateVersion(r.Context(), name, userID)
		if err != nil {
			log.WithField("error", err).Error("Failed to create version")
			fail(w, r, http.StatusInternalServerError, "Failed to create version")
			return
		}
		log.WithField("version_id", id).Info("Version created")
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, CreateVersionResponse{ID: id})
	}
}

func HandleGet(projects core.ProjectStore, versions core.VersionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, _, ok := ownedVersion(w, r, projects, versions)
		if !ok {
			return
		}
		render.JSON(w, r, v)
	}
}

func HandleDelete(projects core.ProjectStore, versions core.VersionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, userID, ok := ownedVersion(w, r, projects, versions)
		if !ok {
			return
		}
		if err := versions.DeleteVersion(r.Context(), v.ID); err != nil && !errors.Is(err, core.ErrNotFound) {
			logrus.WithFields(logrus.Fields{"error": err, "user_id": userID, "version_id": v.ID}).Error("Failed to delete version")
			fail(w, r, http.StatusInternalServerError, "Failed to delete version")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleRestore replaces the project's scene with the version's and saves.
func HandleRestore(projects core.ProjectStore, versions core.VersionStore, sessions Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, userID, ok := ownedVersion(w, r, projects, versions)
		if !ok {
			return
		}
		log := logrus.WithFields(logrus.Fields{"user_id": userID, "project_id": v.ProjectID, "version_id": v.ID})
		if v.Scene == nil {
			log.Error("Version has no scene")
			fail(w, r, http.StatusInternalServerError, "Version has no scene")
			return
		}

		s, err := sessions.Open(r.Context(), userID, v.ProjectID)
		if err != nil {
			log.WithField("error", err).Error("Failed to open project")
			fail(w, r, http.StatusInternalServerError, "Failed to open project")
			return
		}
		s.Replace(v.Scene.Clone())
		if err := s.Flush(r.Context()); err != nil {
			log.WithField("error", err).Error("Failed to save restored scene")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, s.Status())
			return
		}
		log.Info("Version restored")
		render.JSON(w, r, s.Status())
	}
}
