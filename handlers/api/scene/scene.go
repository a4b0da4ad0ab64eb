package scene

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"overlay-builder/core"
	"overlay-builder/middleware"
	"overlay-builder/scene"
	"overlay-builder/session"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

type (
	// Sessions opens the caller's live editing session for a project.
	Sessions interface {
		Open(ctx context.Context, userID, projectID string) (*session.Session, error)
	}

	SceneView struct {
		Scene      scene.Snapshot  `json:"scene"`
		Selection  scene.Selection `json:"selection"`
		Isolated   string          `json:"isolated,omitempty"`
		Mode       string          `json:"mode"`
		Breadcrumb []scene.Crumb   `json:"breadcrumb"`
	}

	LayerDetail struct {
		Layer     *scene.Layer       `json:"layer"`
		Shape     *scene.Shape       `json:"shape,omitempty"`
		Path      []scene.Crumb      `json:"path"`
		Stacking  scene.StackingInfo `json:"stacking"`
		Transform scene.Transform    `json:"transform"`
		Bounds    *scene.Rect        `json:"bounds,omitempty"`
	}

	AddLayerRequest struct {
		Kind string `json:"kind"`
		scene.Placement
	}

	MoveLayerRequest struct {
		ParentID string `json:"parentId"`
		Position int    `json:"position"`
	}

	GroupRequest struct {
		IDs []string `json:"ids"`
	}

	SelectRequest struct {
		ID    string `json:"id"`
		Multi bool   `json:"multi"`
	}

	// ModifierState is the held-modifier set as sent by browsers.
	ModifierState struct {
		Shift bool `json:"shift"`
		Ctrl  bool `json:"ctrl"`
		Alt   bool `json:"alt"`
		Meta  bool `json:"meta"`
	}

	ClickRequest struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
		ModifierState
	}

	KeyRequest struct {
		Key              string `json:"key"`
		Platform         string `json:"platform"`
		TextInputFocused bool   `json:"textInputFocused"`
		ModifierState
	}

	EditResponse struct {
		ID        string          `json:"id,omitempty"`
		Action    scene.Action    `json:"action,omitempty"`
		Changes   []scene.Change  `json:"changes"`
		Selection scene.Selection `json:"selection"`
	}
)

func (m ModifierState) Modifiers() scene.Modifiers {
	var mods scene.Modifiers
	if m.Shift {
		mods |= scene.ModShift
	}
	if m.Ctrl {
		mods |= scene.ModCtrl
	}
	if m.Alt {
		mods |= scene.ModAlt
	}
	if m.Meta {
		mods |= scene.ModMeta
	}
	return mods
}

func (k KeyRequest) Event() scene.KeyEvent {
	return scene.KeyEvent{
		Key:              k.Key,
		Modifiers:        k.Modifiers(),
		Platform:         k.Platform,
		TextInputFocused: k.TextInputFocused,
	}
}

func fail(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"error": msg})
}

func openSession(w http.ResponseWriter, r *http.Request, sessions Sessions) (*session.Session, bool) {
	claims, ok := middleware.Claims(r)
	if !ok {
		fail(w, r, http.StatusUnauthorized, "User claims not found")
		return nil, false
	}
	projectID := chi.URLParam(r, "id")
	s, err := sessions.Open(r.Context(), claims.Subject, projectID)
	if err != nil {
		log := logrus.WithFields(logrus.Fields{"error": err, "user_id": claims.Subject, "project_id": projectID})
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

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		logrus.WithField("error", err).Error("Failed to decode request")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// edit applies fn and replies with the resulting changes. fn reports whether
// the target existed and the id to echo back; a known target that produced
// no change is a conflict.
func edit(w http.ResponseWriter, r *http.Request, s *session.Session, fn func(ed *scene.Editor) (id string, found bool)) {
	var (
		id    string
		found bool
		sel   scene.Selection
	)
	changes := s.Apply(func(ed *scene.Editor) {
		id, found = fn(ed)
		sel = ed.Selection()
	})
	if !found {
		fail(w, r, http.StatusNotFound, "Layer not found")
		return
	}
	if len(changes) == 0 {
		fail(w, r, http.StatusConflict, "Nothing changed")
		return
	}
	render.JSON(w, r, EditResponse{ID: id, Changes: changes, Selection: sel})
}

// layerEdit adapts a single-layer editor operation to edit.
func layerEdit(sessions Sessions, op func(ed *scene.Editor, id string) bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := openSession(w, r, sessions)
		if !ok {
			return
		}
		layerID := chi.URLParam(r, "layerId")
		edit(w, r, s, func(ed *scene.Editor) (string, bool) {
			if ed.Layer(layerID) == nil {
				return layerID, false
			}
			op(ed, layerID)
			return layerID, true
		})
	}
}

func HandleGet(sessions Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := openSession(w, r, sessions)
		if !ok {
			return
		}
		var view SceneView
		s.View(func(ed *scene.Editor) {
			view = SceneView{
				Scene:      ed.Snapshot(),
				Selection:  ed.Selection(),
				Isolated:   ed.Isolated(),
				Mode:       ed.Mode().String(),
				Breadcrumb: ed.Breadcrumb(),
			}
		})
		if view.Breadcrumb == nil {
			view.Breadcrumb = []scene.Crumb{}
		}
		render.JSON(w, r, view)
	}
}

// HandleRender returns the paint list, bottom first.
func HandleRender(sessions Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := openSession(w, r, sessions)
		if !ok {
			return
		}
		var items []scene.RenderItem
		s.View(func(ed *scene.Editor) {
			items = ed.Render()
		})
		render.JSON(w, r, items)
	}
}

func HandleGetLayer(sessions Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := openSession(w, r, sessions)
		if !ok {
			return
		}
		layerID := chi.URLParam(r, "layerId")

		var detail *LayerDetail
		s.View(func(ed *scene.Editor) {
			l := ed.Layer(layerID)
			if l == nil {
				return
			}
			detail = &LayerDetail{Layer: l, Shape: ed.Shape(layerID), Path: ed.Path(layerID)}
			detail.Stacking, _ = ed.Stacking(layerID)
			detail.Transform, _ = ed.AbsoluteTransform(layerID)
			if b, ok := ed.Bounds(layerID); ok {
				detail.Bounds = &b
			}
		})
		if detail == nil {
			logrus.WithFields(logrus.Fields{"project_id": s.ProjectID(), "layer_id": layerID}).Warn("Layer not found")
			fail(w, r, http.StatusNotFound, "Layer not found")
			return
		}
		render.JSON(w, r, detail)
	}
}

// HandleAddLayer creates a shape-backed or structural layer and selects it.
func HandleAddLayer(sessions Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := AddLayerRequest{Placement: scene.DefaultPlacement}
		if !decode(w, r, &req) {
			return
		}
		s, ok := openSession(w, r, sessions)
		if !ok {
			return
		}

		var (
			id  string
			sel scene.Selection
		)
		changes := s.Apply(func(ed *scene.Editor) {
			id = ed.Add(req.Kind, req.Placement)
			sel = ed.Selection()
		})
		if id == "" {
			fail(w, r, http.StatusBadRequest, "Unknown layer kind")
			return
		}
		logrus.WithFields(logrus.Fields{"project_id": s.ProjectID(), "layer_id": id, "kind": req.Kind}).Info("Layer added")
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, EditResponse{ID: id, Changes: changes, Selection: sel})
	}
}

func HandleUpdateLayer(sessions Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch scene.LayerPatch
		if !decode(w, r, &patch) {
			return
		}
		layerEdit(sessions, func(ed *scene.Editor, id string) bool {
			return ed.UpdateLayer(id, patch)
		})(w, r)
	}
}

func HandleUpdateShape(sessions Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch scene.ShapePatch
		if !decode(w, r, &patch) {
			return
		}
		s, ok := openSession(w, r, sessions)
		if !ok {
			return
		}
		shapeID := chi.URLParam(r, "shapeId")
		edit(w, r, s, func(ed *scene.Editor) (string, bool) {
			if ed.Shape(shapeID) == nil {
				return shapeID, false
			}
			ed.UpdateShape(shapeID, patch)
			return shapeID, true
		})
	}
}

// HandleDeleteLayer removes a layer and its subtree. Locked layers are kept.
func HandleDeleteLayer(sessions Sessions) http.HandlerFunc {
	return layerEdit(sessions, (*scene.Editor).Delete)
}

func HandleDuplicateLayer(sessions Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := openSession(w, r, sessions)
		if !ok {
			return
		}
		layerID := chi.URLParam(r, "layerId")
		edit(w, r, s, func(ed *scene.Editor) (string, bool) {
			if ed.Layer(layerID) == nil {
				return "", false
			}
			return ed.Duplicate(layerID), true
		})
	}
}

func HandleMoveLayer(sessions Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := MoveLayerRequest{Position: -1}
		if !decode(w, r, &req) {
			return
		}
		layerEdit(sessions, func(ed *scene.Editor, id string) bool {
			return ed.Move(id, req.ParentID, req.Position)
		})(w, r)
	}
}

func HandleBringToFront(sessions Sessions) http.HandlerFunc {
	return layerEdit(sessions, (*scene.Editor).BringToFront)
}

func HandleSendToBack(sessions Sessions) http.HandlerFunc {
	return layerEdit(sessions, (*scene.Editor).SendToBack)
}

func HandleApplyMask(sessions Sessions) http.HandlerFunc {
	return layerEdit(sessions, (*scene.Editor).ApplyMask)
}

func HandleRemoveMask(sessions Sessions) http.HandlerFunc {
	return layerEdit(sessions, (*scene.Editor).RemoveMask)
}

func HandleUngroup(sessions Sessions) http.HandlerFunc {
	return layerEdit(sessions, (*scene.Editor).Ungroup)
}

// HandleGroup groups the given ids, or the selection when none are given.
func HandleGroup(sessions Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req GroupRequest
		if !decode(w, r, &req) {
			return
		}
		s, ok := openSession(w, r, sessions)
		if !ok {
			return
		}

		var (
			id  string
			sel scene.Selection
		)
		changes := s.Apply(func(ed *scene.Editor) {
			if len(req.IDs) == 0 {
				id = ed.GroupSelection()
			} else {
				id = ed.Group(req.IDs)
			}
			sel = ed.Selection()
		})
		if id == "" {
			fail(w, r, http.StatusBadRequest, "Grouping needs at least two sibling layers")
			return
		}
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, EditResponse{ID: id, Changes: changes, Selection: sel})
	}
}

// HandleEnterIsolation restricts pointer selection to the group's subtree.
func HandleEnterIsolation(sessions Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := openSession(w, r, sessions)
		if !ok {
			return
		}
		layerID := chi.URLParam(r, "layerId")
		var entered bool
		s.View(func(ed *scene.Editor) {
			entered = ed.EnterIsolation(layerID)
		})
		if !entered {
			fail(w, r, http.StatusBadRequest, "Only groups can be isolated")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func HandleExitIsolation(sessions Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := openSession(w, r, sessions)
		if !ok {
			return
		}
		s.View(func(ed *scene.Editor) {
			ed.ExitIsolation()
		})
		w.WriteHeader(http.StatusNoContent)
	}
}

// selectionOnly runs a selection-only operation and replies with the new
// selection.
func selectionOnly(w http.ResponseWriter, r *http.Request, s *session.Session, fn func(ed *scene.Editor) string) {
	var (
		id  string
		sel scene.Selection
	)
	s.View(func(ed *scene.Editor) {
		id = fn(ed)
		sel = ed.Selection()
	})
	render.JSON(w, r, EditResponse{ID: id, Changes: []scene.Change{}, Selection: sel})
}

func HandleSelect(sessions Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SelectRequest
		if !decode(w, r, &req) {
			return
		}
		s, ok := openSession(w, r, sessions)
		if !ok {
			return
		}
		if req.ID == "" {
			selectionOnly(w, r, s, func(ed *scene.Editor) string {
				ed.ClearSelection()
				return ""
			})
			return
		}
		var found bool
		s.View(func(ed *scene.Editor) {
			found = ed.Select(req.ID, req.Multi)
		})
		if !found {
			fail(w, r, http.StatusNotFound, "Layer not found")
			return
		}
		selectionOnly(w, r, s, func(ed *scene.Editor) string { return ed.Selection().Primary })
	}
}

// HandleClick resolves a canvas click to a selection.
func HandleClick(sessions Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ClickRequest
		if !decode(w, r, &req) {
			return
		}
		s, ok := openSession(w, r, sessions)
		if !ok {
			return
		}
		selectionOnly(w, r, s, func(ed *scene.Editor) string {
			return ed.Click(scene.Point{X: req.X, Y: req.Y}, req.Modifiers())
		})
	}
}

// keyPhase selects which half of a key stroke a request carries.
type keyPhase int

const (
	keyDown keyPhase = 1 << iota
	keyUp
	keyPress = keyDown | keyUp
)

func handleKey(sessions Sessions, phase keyPhase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req KeyRequest
		if !decode(w, r, &req) {
			return
		}
		s, ok := openSession(w, r, sessions)
		if !ok {
			return
		}

		var (
			action scene.Action
			sel    scene.Selection
		)
		changes := s.Apply(func(ed *scene.Editor) {
			if phase&keyDown != 0 {
				action, _ = ed.KeyDown(req.Event())
			}
			if phase&keyUp != 0 {
				ed.KeyUp(req.Event())
			}
			sel = ed.Selection()
		})
		if changes == nil {
			changes = []scene.Change{}
		}
		render.JSON(w, r, EditResponse{Action: action, Changes: changes, Selection: sel})
	}
}

// HandleKeyDown feeds a key press to the editor, running any shortcut it
// maps to. Held modifiers stay in effect until the matching key up.
func HandleKeyDown(sessions Sessions) http.HandlerFunc {
	return handleKey(sessions, keyDown)
}

func HandleKeyUp(sessions Sessions) http.HandlerFunc {
	return handleKey(sessions, keyUp)
}

// HandleKeyPress is a key down immediately followed by its key up.
func HandleKeyPress(sessions Sessions) http.HandlerFunc {
	return handleKey(sessions, keyPress)
}

// HandleClipboard runs copy, cut or paste against the selection.
func HandleClipboard(sessions Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		action := scene.Action(chi.URLParam(r, "action"))
		switch action {
		case scene.ActionCopy, scene.ActionCut, scene.ActionPaste:
		default:
			fail(w, r, http.StatusNotFound, "Unknown clipboard action")
			return
		}
		s, ok := openSession(w, r, sessions)
		if !ok {
			return
		}

		var (
			done bool
			id   string
			sel  scene.Selection
		)
		changes := s.Apply(func(ed *scene.Editor) {
			switch action {
			case scene.ActionCopy:
				done = ed.Copy()
			case scene.ActionCut:
				done = ed.Cut()
			case scene.ActionPaste:
				id = ed.Paste()
				done = id != ""
			}
			sel = ed.Selection()
		})
		if !done {
			fail(w, r, http.StatusConflict, "Nothing to "+string(action))
			return
		}
		if changes == nil {
			changes = []scene.Change{}
		}
		render.JSON(w, r, EditResponse{ID: id, Action: action, Changes: changes, Selection: sel})
	}
}

// HandleReconcile rebuilds the layer tree against the shape list.
func HandleReconcile(sessions Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := openSession(w, r, sessions)
		if !ok {
			return
		}
		var sel scene.Selection
		changes := s.Apply(func(ed *scene.Editor) {
			ed.Reconcile()
			sel = ed.Selection()
		})
		if changes == nil {
			changes = []scene.Change{}
		}
		render.JSON(w, r, EditResponse{Changes: changes, Selection: sel})
	}
}

// HandleValidate reports tree invariant violations, if any.
func HandleValidate(sessions Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := openSession(w, r, sessions)
		if !ok {
			return
		}
		var err error
		s.View(func(ed *scene.Editor) {
			err = ed.Validate()
		})
		if err != nil {
			render.JSON(w, r, map[string]any{"valid": false, "error": err.Error()})
			return
		}
		render.JSON(w, r, map[string]any{"valid": true})
	}
}

// HandleHits lists the layers under a canvas point, deepest first.
func HandleHits(sessions Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p scene.Point
		if !decode(w, r, &p) {
			return
		}
		s, ok := openSession(w, r, sessions)
		if !ok {
			return
		}
		var hits []scene.Hit
		s.View(func(ed *scene.Editor) {
			hits = ed.LayersAt(p)
		})
		if hits == nil {
			hits = []scene.Hit{}
		}
		render.JSON(w, r, hits)
	}
}
