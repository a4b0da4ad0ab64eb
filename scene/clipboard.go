package scene

// PasteOffset is how far a pasted or duplicated copy is shifted on both axes.
const PasteOffset = 20

// Clipboard holds at most one shape/layer pair.
type Clipboard struct {
	shape *Shape
	layer *Layer
	// parentID is where the source lived when copied; "" for the roots.
	parentID string
}

// Empty reports whether nothing has been copied.
func (c *Clipboard) Empty() bool {
	return c.shape == nil || c.layer == nil
}

func (c *Clipboard) store(sh *Shape, l *Layer, parentID string) {
	c.shape = sh.Clone()
	c.layer = l.Clone()
	c.layer.Children = nil
	c.parentID = parentID
}

func (c *Clipboard) clear() {
	*c = Clipboard{}
}

// Copy stores the primary selection. Only shape-backed layers can be copied.
func (e *Editor) Copy() bool {
	sh, l := e.selectedPair()
	if sh == nil {
		return false
	}
	parentID := ""
	if p := e.tree.Parent(l.ID); p != nil {
		parentID = p.ID
	}
	e.clip.store(sh, l, parentID)
	return true
}

// Cut copies the primary selection and deletes it. Locked layers cannot be
// cut.
func (e *Editor) Cut() bool {
	sh, l := e.selectedPair()
	if sh == nil || l.Locked {
		return false
	}
	if !e.Copy() {
		return false
	}
	return e.Delete(l.ID)
}

// Paste inserts a fresh copy of the clipboard pair at the end of the list the
// source was copied from (or the roots if that list is gone), offset by
// PasteOffset, and selects it. It returns the new id or "".
func (e *Editor) Paste() string {
	if e.clip.Empty() {
		return ""
	}
	id := e.newID(string(e.clip.shape.Type))
	sh := e.clip.shape.Clone()
	sh.ID = id
	sh.X += PasteOffset
	sh.Y += PasteOffset

	l := e.clip.layer.Clone()
	l.ID = id
	l.Name += " Copy"
	offsetLayer(l)
	l.HasMask, l.IsMask, l.MaskTargetID = false, false, ""

	parentID := e.clip.parentID
	if parent := e.tree.Find(parentID); parent == nil || !canHoldChildren(parent) {
		parentID = ""
	}
	if !e.tree.Insert(l, parentID, -1) {
		return ""
	}
	e.shapes.Add(sh)
	e.sel.set(id)
	e.changed(OpPaste, id)
	return id
}

func (e *Editor) selectedPair() (*Shape, *Layer) {
	if e.sel.Primary == "" {
		return nil, nil
	}
	l := e.tree.Find(e.sel.Primary)
	sh := e.shapes.Get(e.sel.Primary)
	if l == nil || sh == nil || !l.Type.ShapeBacked() {
		return nil, nil
	}
	return sh, l
}

func offsetLayer(l *Layer) {
	if l.X != nil {
		l.X = Float(*l.X + PasteOffset)
	}
	if l.Y != nil {
		l.Y = Float(*l.Y + PasteOffset)
	}
}
