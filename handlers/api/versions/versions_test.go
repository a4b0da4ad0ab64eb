package versions

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"overlay-builder/core"
	"overlay-builder/handlers/auth"
	"overlay-builder/middleware"
	"overlay-builder/scene"
	"overlay-builder/session"
	"overlay-builder/stores/memory"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
)

func newRequest(method, body, userID string, params map[string]string) *http.Request {
	req := httptest.NewRequest(method, "/api/versions", strings.NewReader(body))
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	claims := &auth.AppClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: userID}}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	ctx = context.WithValue(ctx, middleware.ClaimsContextKey, claims)
	return req.WithContext(ctx)
}

func setup(t *testing.T) (core.ProjectStore, core.VersionStore, *session.Manager) {
	t.Helper()
	store := memory.NewStore(10)
	snap := scene.Snapshot{
		Shapes: []*scene.Shape{scene.NewShape("rect-1", scene.ShapeRect, 0, 0)},
		Layers: []*scene.Layer{scene.NewLayer("rect-1", "Rect", scene.LayerShape)},
	}
	if err := store.Save(context.Background(), &core.Project{ID: "p1", UserID: "user-1", Name: "Overlay", Scene: &snap}); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	return store, store, session.NewManager(store, session.Config{Debounce: time.Hour}, nil)
}

func createVersion(t *testing.T, sessions Sessions, name string) string {
	t.Helper()
	rec := httptest.NewRecorder()
	HandleCreate(sessions)(rec, newRequest(http.MethodPost, `{"name":"`+name+`"}`, "user-1", map[string]string{"id": "p1"}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("Status code mismatch: got %d, want %d", rec.Code, http.StatusCreated)
	}
	var resp CreateVersionResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return resp.ID
}

func TestHandleCreateAndList(t *testing.T) {
	projects, versions, sessions := setup(t)
	createVersion(t, sessions, "Before show")

	rec := httptest.NewRecorder()
	HandleList(projects, versions)(rec, newRequest(http.MethodGet, "", "user-1", map[string]string{"id": "p1"}))
	if rec.Code != http.StatusOK {
		t.Fatalf("Status code mismatch: got %d, want %d", rec.Code, http.StatusOK)
	}
	var list []core.Version
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(list) != 1 || list[0].Name != "Before show" || list[0].CreatedBy != "user-1" {
		t.Errorf("Unexpected versions: %+v", list)
	}
}

func TestHandleCreate_EmptyName(t *testing.T) {
	_, _, sessions := setup(t)

	rec := httptest.NewRecorder()
	HandleCreate(sessions)(rec, newRequest(http.MethodPost, `{"name":""}`, "user-1", map[string]string{"id": "p1"}))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Status code mismatch: got %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandleList_OtherUser(t *testing.T) {
	projects, versions, _ := setup(t)

	rec := httptest.NewRecorder()
	HandleList(projects, versions)(rec, newRequest(http.MethodGet, "", "user-2", map[string]string{"id": "p1"}))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Status code mismatch: got %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestHandleGetAndDelete(t *testing.T) {
	projects, versions, sessions := setup(t)
	id := createVersion(t, sessions, "v1")
	params := map[string]string{"versionId": id}

	rec := httptest.NewRecorder()
	HandleGet(projects, versions)(rec, newRequest(http.MethodGet, "", "user-2", params))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Foreign version status mismatch: got %d, want %d", rec.Code, http.StatusNotFound)
	}

	rec = httptest.NewRecorder()
	HandleGet(projects, versions)(rec, newRequest(http.MethodGet, "", "user-1", params))
	if rec.Code != http.StatusOK {
		t.Fatalf("Status code mismatch: got %d, want %d", rec.Code, http.StatusOK)
	}
	var v core.Version
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if v.Scene == nil || len(v.Scene.Shapes) != 1 {
		t.Errorf("Expected version scene, got %+v", v.Scene)
	}

	rec = httptest.NewRecorder()
	HandleDelete(projects, versions)(rec, newRequest(http.MethodDelete, "", "user-1", params))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Status code mismatch: got %d, want %d", rec.Code, http.StatusNoContent)
	}

	rec = httptest.NewRecorder()
	HandleGet(projects, versions)(rec, newRequest(http.MethodGet, "", "user-1", params))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Status code mismatch: got %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestHandleRestore(t *testing.T) {
	projects, versions, sessions := setup(t)
	id := createVersion(t, sessions, "original")

	s, err := sessions.Open(context.Background(), "user-1", "p1")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	s.Apply(func(ed *scene.Editor) {
		ed.Add("circle", scene.DefaultPlacement)
	})
	if got := len(s.Snapshot().Shapes); got != 2 {
		t.Fatalf("Expected 2 shapes before restore, got %d", got)
	}

	rec := httptest.NewRecorder()
	HandleRestore(projects, versions, sessions)(rec, newRequest(http.MethodPost, "", "user-1", map[string]string{"versionId": id}))
	if rec.Code != http.StatusOK {
		t.Fatalf("Status code mismatch: got %d, want %d", rec.Code, http.StatusOK)
	}
	if got := len(s.Snapshot().Shapes); got != 1 {
		t.Errorf("Expected restored scene with 1 shape, got %d", got)
	}
	if s.Dirty() {
		t.Error("Restore should persist immediately")
	}

	stored, err := projects.Get(context.Background(), "user-1", "p1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if len(stored.Scene.Shapes) != 1 {
		t.Errorf("Stored scene mismatch: got %d shapes", len(stored.Scene.Shapes))
	}
}
