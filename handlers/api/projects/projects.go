package projects

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"overlay-builder/core"
	"overlay-builder/middleware"
	"overlay-builder/scene"
	"overlay-builder/session"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

type (
	// TemplateSource resolves template ids for new projects.
	TemplateSource interface {
		Get(id string) (scene.Bundle, bool)
	}

	// Sessions opens and discards live editing sessions.
	Sessions interface {
		Open(ctx context.Context, userID, projectID string) (*session.Session, error)
		Discard(userID, projectID string)
	}

	CreateProjectRequest struct {
		Name       string          `json:"name"`
		TemplateID string          `json:"templateId"`
		Scene      *scene.Snapshot `json:"scene"`
	}

	RenameProjectRequest struct {
		Name string `json:"name"`
	}

	ProjectResponse struct {
		core.Project
		Status session.SaveStatus `json:"status"`
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

// openSession resolves {id} to the caller's live session, replying on failure.
func openSession(w http.ResponseWriter, r *http.Request, sessions Sessions) (*session.Session, bool) {
	userID, ok := currentUser(w, r)
	if !ok {
		return nil, false
	}
	projectID := chi.URLParam(r, "id")
	s, err := sessions.Open(r.Context(), userID, projectID)
	if err != nil {
		log := logrus.WithFields(logrus.Fields{"error": err, "user_id": userID, "project_id": projectID})
		if errors.Is(err, core.ErrNotFound) {
			log.Warn("Project not found")
			fail(w, r, http.StatusNotFound, "Project not found")
			return nil, false
		}
		log.Error("Failed to open project")
		fail(w, r, http.StatusInternalServerError, "Failed to open project")
		return nil, false
	}
	return s, true
}

func HandleList(store core.ProjectStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := currentUser(w, r)
		if !ok {
			return
		}

		projects, err := store.List(r.Context(), userID)
		if err != nil {
			logrus.WithFields(logrus.Fields{"error": err, "user_id": userID}).Error("Failed to list projects")
			fail(w, r, http.StatusInternalServerError, "Failed to list projects")
			return
		}
		if projects == nil {
			projects = []*core.Project{}
		}
		render.JSON(w, r, projects)
	}
}

// HandleCreate creates a project, optionally seeded from a template or an
// imported scene.
func HandleCreate(store core.ProjectStore, templates TemplateSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := currentUser(w, r)
		if !ok {
			return
		}

		var req CreateProjectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logrus.WithField("error", err).Error("Failed to decode request")
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		ed := scene.NewEditor()
		switch {
		case req.TemplateID != "":
			b, found := templates.Get(req.TemplateID)
			if !found {
				fail(w, r, http.StatusNotFound, "Template not found")
				return
			}
			ed.LoadBundle(b)
			if req.Name == "" {
				req.Name = b.Name
			}
		case req.Scene != nil:
			if err := scene.ValidateSnapshot(*req.Scene); err != nil {
				fail(w, r, http.StatusBadRequest, err.Error())
				return
			}
			ed.Load(*req.Scene)
		}

		name := strings.TrimSpace(req.Name)
		if name == "" {
			name = "Untitled Overlay"
		}
		snap := ed.Snapshot()
		project := &core.Project{
			ID:     ulid.Make().String(),
			UserID: userID,
			Name:   name,
			Scene:  &snap,
		}
		if err := store.Save(r.Context(), project); err != nil {
			logrus.WithFields(logrus.Fields{"error": err, "user_id": userID}).Error("Failed to create project")
			fail(w, r, http.StatusInternalServerError, "Failed to create project")
			return
		}

		logrus.WithFields(logrus.Fields{"user_id": userID, "project_id": project.ID}).Info("Project created")
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, project)
	}
}

// HandleGet returns the project with its live scene and save status.
func HandleGet(sessions Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := openSession(w, r, sessions)
		if !ok {
			return
		}
		project := s.Project()
		snap := s.Snapshot()
		project.Scene = &snap
		render.JSON(w, r, ProjectResponse{Project: project, Status: s.Status()})
	}
}

func HandleDelete(store core.ProjectStore, sessions Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := currentUser(w, r)
		if !ok {
			return
		}
		projectID := chi.URLParam(r, "id")

		sessions.Discard(userID, projectID)
		if err := store.Delete(r.Context(), userID, projectID); err != nil {
			log := logrus.WithFields(logrus.Fields{"error": err, "user_id": userID, "project_id": projectID})
			if errors.Is(err, core.ErrNotFound) {
				log.Warn("Project not found for deletion")
				fail(w, r, http.StatusNotFound, "Project not found")
				return
			}
			log.Error("Failed to delete project")
			fail(w, r, http.StatusInternalServerError, "Failed to delete project")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func HandleRename(sessions Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RenameProjectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		name := strings.TrimSpace(req.Name)
		if name == "" {
			fail(w, r, http.StatusBadRequest, "Name is required")
			return
		}

		s, ok := openSession(w, r, sessions)
		if !ok {
			return
		}
		s.Rename(name)
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleSave persists pending edits immediately.
func HandleSave(sessions Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := openSession(w, r, sessions)
		if !ok {
			return
		}
		if err := s.Flush(r.Context()); err != nil {
			render.Status(r, http.StatusInternalServerError)
		}
		render.JSON(w, r, s.Status())
	}
}

func HandleStatus(sessions Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := openSession(w, r, sessions)
		if !ok {
			return
		}
		render.JSON(w, r, s.Status())
	}
}

// HandleExport downloads the scene as a snapshot document.
func HandleExport(sessions Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := openSession(w, r, sessions)
		if !ok {
			return
		}
		data, err := json.MarshalIndent(s.Snapshot(), "", "  ")
		if err != nil {
			logrus.WithField("error", err).Error("Failed to encode scene")
			fail(w, r, http.StatusInternalServerError, "Failed to export scene")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", s.ProjectID()+".json"))
		w.Write(data)
	}
}
