package templates

import (
	"net/http"

	"overlay-builder/scene"
	"overlay-builder/templates"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

// Catalog lists and resolves overlay templates.
type Catalog interface {
	List() []templates.Summary
	Get(id string) (scene.Bundle, bool)
}

func HandleList(catalog Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list := catalog.List()
		if list == nil {
			list = []templates.Summary{}
		}
		render.JSON(w, r, list)
	}
}

func HandleGet(catalog Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		b, ok := catalog.Get(id)
		if !ok {
			logrus.WithField("template_id", id).Warn("Template not found")
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, map[string]string{"error": "Template not found"})
			return
		}
		render.JSON(w, r, b)
	}
}
