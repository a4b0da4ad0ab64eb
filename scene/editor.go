package scene

import (
	"strconv"
	"time"
)

// Operation names reported in a Change.
const (
	OpAdd       = "add"
	OpDelete    = "delete"
	OpDuplicate = "duplicate"
	OpUpdate    = "update"
	OpMove      = "move"
	OpReorder   = "reorder"
	OpGroup     = "group"
	OpUngroup   = "ungroup"
	OpMask      = "mask"
	OpUnmask    = "unmask"
	OpPaste     = "paste"
	OpLoad      = "load"
	OpReconcile = "reconcile"
)

// Change describes one effective edit.
type Change struct {
	Op  string   `json:"op"`
	IDs []string `json:"ids"`
}

// Editor is the single operation surface over a scene. It keeps the shape
// list and the layer forest paired and owns selection, isolation and the
// clipboard. An Editor is not safe for concurrent use.
type Editor struct {
	tree     Tree
	shapes   ShapeList
	sel      Selection
	selector *Selector
	clip     Clipboard
	isolated string

	newID func(prefix string) string
	now   func() time.Time
	hook  func(Change)
}

// Option configures an Editor.
type Option func(*Editor)

// WithChangeHook registers fn to run after every effective change.
func WithChangeHook(fn func(Change)) Option {
	return func(e *Editor) { e.hook = fn }
}

// WithIDGenerator replaces NewID.
func WithIDGenerator(fn func(prefix string) string) Option {
	return func(e *Editor) { e.newID = fn }
}

// WithClock replaces time.Now for click timing.
func WithClock(fn func() time.Time) Option {
	return func(e *Editor) { e.now = fn }
}

// WithDoubleClickWindow overrides DefaultDoubleClickWindow.
func WithDoubleClickWindow(d time.Duration) Option {
	return func(e *Editor) { e.selector = NewSelector(d) }
}

// NewEditor returns an editor over an empty scene.
func NewEditor(opts ...Option) *Editor {
	e := &Editor{
		selector: NewSelector(DefaultDoubleClickWindow),
		newID:    NewID,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetChangeHook replaces the change hook.
func (e *Editor) SetChangeHook(fn func(Change)) {
	e.hook = fn
}

func (e *Editor) changed(op string, ids ...string) {
	if e.hook != nil {
		e.hook(Change{Op: op, IDs: ids})
	}
}

// Load replaces the scene with a deep copy of s as-is and resets selection,
// isolation and the clipboard. The change hook is not called.
func (e *Editor) Load(s Snapshot) {
	s = s.normalize().Clone()
	e.tree = Tree{Roots: s.Layers}
	e.shapes = ShapeList{items: s.Shapes}
	e.sel.clear()
	e.clip.clear()
	e.isolated = ""
	e.tree.ValidateMasks()
}

// LoadBundle replaces the scene with a template's content, reconciled so
// that every shape has a layer.
func (e *Editor) LoadBundle(b Bundle) {
	s := b.Snapshot()
	s.Layers = SyncLayersWithShapes(s.Layers, s.Shapes)
	e.Load(s)
	e.changed(OpLoad)
}

// Snapshot returns a deep copy of the scene.
func (e *Editor) Snapshot() Snapshot {
	return Snapshot{Shapes: e.shapes.All(), Layers: e.tree.Roots}.Clone()
}

// Reconcile runs SyncLayersWithShapes over the current scene.
func (e *Editor) Reconcile() bool {
	synced := SyncLayersWithShapes(e.tree.Roots, e.shapes.All())
	before := e.tree.Roots
	e.tree.Roots = synced
	e.tree.ValidateMasks()
	e.sel.drop(func(id string) bool { return e.tree.Find(id) == nil })
	if e.isolated != "" && e.tree.Find(e.isolated) == nil {
		e.isolated = ""
	}
	if sameForest(before, synced) {
		return false
	}
	e.changed(OpReconcile)
	return true
}

func sameForest(a, b []*Layer) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || (a[i].Children == nil) != (b[i].Children == nil) {
			return false
		}
		if !sameForest(a[i].Children, b[i].Children) {
			return false
		}
	}
	return true
}

// Layers returns the live root list. Callers must not modify it.
func (e *Editor) Layers() []*Layer {
	return e.tree.Roots
}

// Shapes returns the live shape list. Callers must not modify it.
func (e *Editor) Shapes() []*Shape {
	return e.shapes.All()
}

// Layer returns a copy of the layer with id.
func (e *Editor) Layer(id string) *Layer {
	return e.tree.Find(id).Clone()
}

// Shape returns a copy of the shape with id.
func (e *Editor) Shape(id string) *Shape {
	return e.shapes.Get(id).Clone()
}

// Path returns the root-to-layer path of id.
func (e *Editor) Path(id string) []Crumb {
	return e.tree.Breadcrumb(id)
}

// Stacking returns where id sits in the paint order.
func (e *Editor) Stacking(id string) (StackingInfo, bool) {
	return e.tree.Stacking(id)
}

// Placement positions a newly added layer. ParentID, when it names a group
// or adjustment layer, receives the new layer; otherwise it goes to the
// isolated group or the roots.
type Placement struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	ParentID string  `json:"parentId,omitempty"`
	// Src is the asset reference for image and video shapes.
	Src string `json:"src,omitempty"`
	// Text overrides the default text content.
	Text string `json:"text,omitempty"`
}

// DefaultPlacement is where the toolbar drops new shapes.
var DefaultPlacement = Placement{X: 100, Y: 100}

// Add creates a layer of the given kind and selects it. kind is a shape type
// ("shape" means rect) or one of the structural layer types. Shape kinds get
// a paired Shape. It returns the new id, or "" for an unknown kind.
func (e *Editor) Add(kind string, p Placement) string {
	parentID := e.targetParent(p.ParentID)

	switch LayerType(kind) {
	case LayerGroup, LayerAdjustment, LayerMask:
		prefix := "layer"
		if kind == string(LayerGroup) {
			prefix = "group"
		}
		l := NewLayer(e.newID(prefix), titleCase(kind)+" Layer", LayerType(kind))
		if !e.tree.Insert(l, parentID, -1) {
			return ""
		}
		e.sel.set(l.ID)
		e.changed(OpAdd, l.ID)
		return l.ID
	}

	typ := ShapeType(kind)
	if kind == string(LayerShape) {
		typ = ShapeRect
	}
	if !typ.Valid() {
		return ""
	}
	id := e.newID(string(typ))
	sh := NewShape(id, typ, p.X, p.Y)
	if p.Src != "" {
		sh.Src = p.Src
	}
	if p.Text != "" && typ == ShapeText {
		sh.Text = p.Text
	}
	name := titleCase(string(typ)) + " " + strconv.Itoa(e.shapes.Len()+1)
	l := NewLayer(id, name, LayerTypeFor(typ))
	if !e.tree.Insert(l, parentID, -1) {
		return ""
	}
	e.shapes.Add(sh)
	e.sel.set(id)
	e.changed(OpAdd, id)
	return id
}

func (e *Editor) targetParent(requested string) string {
	if requested != "" {
		if l := e.tree.Find(requested); l != nil && canHoldChildren(l) {
			return requested
		}
	}
	if e.isolated != "" {
		if l := e.tree.Find(e.isolated); l != nil && canHoldChildren(l) {
			return e.isolated
		}
	}
	return ""
}

// Delete removes the layer wherever it is nested, its subtree, and every
// paired shape. Locked layers are kept. Deleted ids leave the selection.
func (e *Editor) Delete(id string) bool {
	l := e.tree.Find(id)
	if l == nil || l.Locked {
		return false
	}
	removed := e.removeSubtree(id)
	e.changed(OpDelete, removed...)
	return true
}

// DeleteSelection deletes every selected layer that is not locked.
func (e *Editor) DeleteSelection() bool {
	var removed []string
	for _, id := range e.sel.IDs {
		l := e.tree.Find(id)
		if l == nil || l.Locked {
			continue
		}
		removed = append(removed, e.removeSubtree(id)...)
	}
	if len(removed) == 0 {
		return false
	}
	e.changed(OpDelete, removed...)
	return true
}

func (e *Editor) removeSubtree(id string) []string {
	l := e.tree.Remove(id)
	if l == nil {
		return nil
	}
	gone := map[string]bool{}
	var ids []string
	walk([]*Layer{l}, nil, 0, func(n, _ *Layer, _ int) bool {
		gone[n.ID] = true
		ids = append(ids, n.ID)
		e.shapes.Remove(n.ID)
		return true
	})
	e.sel.drop(func(s string) bool { return gone[s] })
	if gone[e.isolated] {
		e.isolated = ""
	}
	return ids
}

// Duplicate clones the layer subtree, and the shapes of every shape-backed
// node in it, under fresh ids. The copy is named "<name> Copy", shifted by
// PasteOffset, inserted right after the source and selected.
func (e *Editor) Duplicate(id string) string {
	src := e.tree.Find(id)
	if src == nil {
		return ""
	}
	loc, _ := e.tree.locate(id)

	idMap := map[string]string{}
	var newShapes []*Shape
	dup := src.Clone()
	walk([]*Layer{dup}, nil, 0, func(n, _ *Layer, _ int) bool {
		prefix := "layer"
		sh := e.shapes.Get(n.ID)
		switch {
		case sh != nil:
			prefix = string(sh.Type)
		case n.Type == LayerGroup:
			prefix = "group"
		}
		newID := e.newID(prefix)
		idMap[n.ID] = newID
		if sh != nil {
			c := sh.Clone()
			c.ID = newID
			newShapes = append(newShapes, c)
		}
		n.ID = newID
		return true
	})
	walk([]*Layer{dup}, nil, 0, func(n, _ *Layer, _ int) bool {
		if n.IsMask {
			n.MaskTargetID = idMap[n.MaskTargetID]
		}
		return true
	})
	// a mask link from outside the subtree is not copied
	dup.HasMask, dup.IsMask, dup.MaskTargetID = false, false, ""

	dup.Name += " Copy"
	if len(newShapes) > 0 && newShapes[0].ID == dup.ID {
		newShapes[0].X += PasteOffset
		newShapes[0].Y += PasteOffset
		offsetLayer(dup)
	} else {
		dup.X = Float(valueOr(dup.X, 0) + PasteOffset)
		dup.Y = Float(valueOr(dup.Y, 0) + PasteOffset)
	}

	parent := e.tree.listOf(loc.parent)
	e.tree.setList(loc.parent, insertAt(parent, loc.index+1, dup))
	for _, sh := range newShapes {
		e.shapes.Add(sh)
	}
	e.tree.ValidateMasks()
	e.sel.set(dup.ID)
	e.changed(OpDuplicate, dup.ID)
	return dup.ID
}

// UpdateLayer merges patch into the layer. Position changes on a
// shape-backed layer move its shape too.
func (e *Editor) UpdateLayer(id string, patch LayerPatch) bool {
	if !e.tree.Update(id, patch) {
		return false
	}
	if sh := e.shapes.Get(id); sh != nil {
		e.shapes.Update(id, ShapePatch{X: patch.X, Y: patch.Y})
	}
	e.changed(OpUpdate, id)
	return true
}

// UpdateShape merges patch into the shape. Position changes are mirrored on
// the layer when it carries its own position.
func (e *Editor) UpdateShape(id string, patch ShapePatch) bool {
	if !e.shapes.Update(id, patch) {
		return false
	}
	if l := e.tree.Find(id); l != nil {
		if patch.X != nil && l.X != nil {
			l.X = Float(*patch.X)
		}
		if patch.Y != nil && l.Y != nil {
			l.Y = Float(*patch.Y)
		}
	}
	e.changed(OpUpdate, id)
	return true
}

// Move reparents id into targetParentID ("" for the roots) at position.
func (e *Editor) Move(id, targetParentID string, position int) bool {
	if !e.tree.Move(id, targetParentID, position) {
		return false
	}
	e.changed(OpMove, id)
	return true
}

// BringToFront raises id to the top of its sibling list.
func (e *Editor) BringToFront(id string) bool {
	if !e.tree.BringToFront(id) {
		return false
	}
	e.changed(OpReorder, id)
	return true
}

// SendToBack lowers id to the bottom of its sibling list.
func (e *Editor) SendToBack(id string) bool {
	if !e.tree.SendToBack(id) {
		return false
	}
	e.changed(OpReorder, id)
	return true
}

// Group wraps ids in a new group named "Group N" and selects it. It returns
// the group id or "" when fewer than two of ids share a sibling list.
func (e *Editor) Group(ids []string) string {
	count := 0
	e.tree.Walk(func(l, _ *Layer, _ int) bool {
		if l.Type == LayerGroup {
			count++
		}
		return true
	})
	if e.isolated != "" {
		ids = e.isolatedChildren(ids)
	}
	g := NewLayer(e.newID("group"), "Group "+strconv.Itoa(count+1), LayerGroup)
	if e.tree.Group(ids, g) == nil {
		return ""
	}
	e.sel.set(g.ID)
	e.changed(OpGroup, g.ID)
	return g.ID
}

// isolatedChildren keeps the ids that are direct children of the isolated
// group.
func (e *Editor) isolatedChildren(ids []string) []string {
	g := e.tree.Find(e.isolated)
	if g == nil {
		return ids
	}
	inside := make(map[string]bool, len(g.Children))
	for _, c := range g.Children {
		inside[c.ID] = true
	}
	var out []string
	for _, id := range ids {
		if inside[id] {
			out = append(out, id)
		}
	}
	return out
}

// GroupSelection groups the selected layers.
func (e *Editor) GroupSelection() string {
	if len(e.sel.IDs) < 2 {
		return ""
	}
	return e.Group(e.sel.IDs)
}

// Ungroup dissolves a group into its parent list and selects the former
// children.
func (e *Editor) Ungroup(id string) bool {
	g := e.tree.Find(id)
	if g == nil || g.Type != LayerGroup {
		return false
	}
	children := g.Children
	if !e.tree.Ungroup(id) {
		return false
	}
	e.sel.clear()
	for _, c := range children {
		e.sel.toggle(c.ID)
	}
	if e.isolated == id {
		e.isolated = ""
	}
	e.changed(OpUngroup, id)
	return true
}

// ApplyMask makes id the mask of its preceding sibling.
func (e *Editor) ApplyMask(id string) bool {
	if !e.tree.ApplyMask(id) {
		return false
	}
	e.changed(OpMask, id)
	return true
}

// RemoveMask clears the mask relationship id takes part in.
func (e *Editor) RemoveMask(id string) bool {
	if !e.tree.RemoveMask(id) {
		return false
	}
	e.changed(OpUnmask, id)
	return true
}

// Selection returns the current selection.
func (e *Editor) Selection() Selection {
	s := e.sel.clone()
	if s.IDs == nil {
		s.IDs = []string{}
	}
	return s
}

// Select picks id from the layers panel. With multi it toggles id in the
// set; otherwise id becomes the only selection.
func (e *Editor) Select(id string, multi bool) bool {
	if e.tree.Find(id) == nil {
		return false
	}
	if multi {
		e.sel.toggle(id)
	} else {
		e.sel.set(id)
	}
	return true
}

// ClearSelection deselects everything.
func (e *Editor) ClearSelection() {
	e.sel.clear()
}

// SelectAll selects every candidate top-level layer: the roots, or the
// isolated group's children.
func (e *Editor) SelectAll() bool {
	candidates := e.candidates()
	if len(candidates) == 0 {
		return false
	}
	e.sel.clear()
	for _, l := range candidates {
		e.sel.IDs = append(e.sel.IDs, l.ID)
	}
	e.sel.Primary = candidates[0].ID
	return true
}

// Breadcrumb returns the root-to-layer path of the primary selection.
func (e *Editor) Breadcrumb() []Crumb {
	if e.sel.Primary == "" {
		return []Crumb{}
	}
	return e.tree.Breadcrumb(e.sel.Primary)
}

// Mode returns the pointer selection mode.
func (e *Editor) Mode() Mode {
	return e.selector.Mode()
}

// EnterIsolation scopes picking and adding to a non-empty group or
// adjustment layer.
func (e *Editor) EnterIsolation(id string) bool {
	l := e.tree.Find(id)
	if l == nil || !canHoldChildren(l) || len(l.Children) == 0 || e.isolated == id {
		return false
	}
	e.isolated = id
	e.sel.clear()
	return true
}

// ExitIsolation returns to the full forest.
func (e *Editor) ExitIsolation() bool {
	if e.isolated == "" {
		return false
	}
	e.isolated = ""
	return true
}

// Isolated returns the id of the isolated group, or "".
func (e *Editor) Isolated() string {
	return e.isolated
}

func (e *Editor) candidates() []*Layer {
	if e.isolated != "" {
		if l := e.tree.Find(e.isolated); l != nil {
			return l.Children
		}
	}
	return e.tree.Roots
}

// AbsoluteTransform returns the layer's composed transform. Shape-backed
// layers without their own position take it from their shape.
func (e *Editor) AbsoluteTransform(id string) (Transform, bool) {
	chain := e.tree.Chain(id)
	if len(chain) == 0 {
		return Identity, false
	}
	abs := Identity
	for _, l := range chain {
		abs = Compose(abs, e.local(l))
	}
	return abs, true
}

func (e *Editor) local(l *Layer) Transform {
	t := LocalTransform(l)
	if sh := e.shapes.Get(l.ID); sh != nil {
		if l.X == nil {
			t.X = sh.X
		}
		if l.Y == nil {
			t.Y = sh.Y
		}
	}
	return t
}

// LayersAt returns the visible layers whose bounds contain p, shallow to
// deep, topmost first within a depth. In isolation only the isolated
// group's subtree is considered and depths are relative to it.
func (e *Editor) LayersAt(p Point) []Hit {
	parent := Identity
	var prefix []string
	if e.isolated != "" {
		if abs, ok := e.AbsoluteTransform(e.isolated); ok {
			parent = abs
			prefix = []string{e.isolated}
		}
	}
	roots := e.candidates()
	bounds := map[string]Rect{}
	e.collectBounds(roots, parent, bounds)

	var hits []Hit
	order := 0
	var visit func(list []*Layer, ancestors []string)
	visit = func(list []*Layer, ancestors []string) {
		for _, l := range list {
			order++
			if !l.Visible {
				continue
			}
			b, ok := bounds[l.ID]
			if !ok || !b.Contains(p) {
				continue
			}
			hits = append(hits, Hit{
				ID:        l.ID,
				Depth:     len(ancestors),
				Ancestors: append(append([]string(nil), prefix...), ancestors...),
				order:     order,
			})
			if l.Children != nil {
				visit(l.Children, append(append([]string(nil), ancestors...), l.ID))
			}
		}
	}
	visit(roots, nil)
	SortHits(hits)
	return hits
}

// collectBounds fills out with the bounds of every visible layer in list.
// Containers cover their visible children.
func (e *Editor) collectBounds(list []*Layer, parent Transform, out map[string]Rect) (Rect, bool) {
	var (
		all   Rect
		found bool
	)
	for _, l := range list {
		if !l.Visible {
			continue
		}
		abs := Compose(parent, e.local(l))
		var (
			b  Rect
			ok bool
		)
		if sh := e.shapes.Get(l.ID); sh != nil {
			b, ok = ShapeBounds(sh, abs), true
		}
		if l.Children != nil {
			if cb, cok := e.collectBounds(l.Children, abs, out); cok {
				if ok {
					b = b.Union(cb)
				} else {
					b, ok = cb, true
				}
			}
		}
		if !ok {
			continue
		}
		out[l.ID] = b
		if found {
			all = all.Union(b)
		} else {
			all, found = b, true
		}
	}
	return all, found
}

// Bounds returns the canvas box of a visible layer.
func (e *Editor) Bounds(id string) (Rect, bool) {
	bounds := map[string]Rect{}
	e.collectBounds(e.tree.Roots, Identity, bounds)
	b, ok := bounds[id]
	return b, ok
}

// Click handles a canvas click at p. A plain click selects the top-level
// layer under p; a held drill modifier or a double-click steps one level
// deeper each time; Shift toggles the picked layer in the selection set.
// It returns the picked id, or "" when nothing is under p.
func (e *Editor) Click(p Point, mods Modifiers) string {
	count := e.selector.Click(e.now())
	hits := e.LayersAt(p)

	picked := TopLevel(hits)
	if e.selector.Drilling(mods, count) {
		picked = DrillDown(hits, e.sel.Primary)
	}
	switch {
	case picked == "" && mods.Multi():
	case picked == "":
		e.sel.clear()
	case mods.Multi():
		e.sel.toggle(picked)
	default:
		e.sel.set(picked)
	}
	return picked
}
