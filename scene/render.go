package scene

// RenderItem is the derived state a renderer needs to draw one shape.
type RenderItem struct {
	ID    string    `json:"id"`
	Type  ShapeType `json:"type"`
	Shape *Shape    `json:"shape"`

	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	ScaleX   float64 `json:"scaleX"`
	ScaleY   float64 `json:"scaleY"`
	Rotation float64 `json:"rotation"`
	// Opacity is the product of the ancestor chain, 0..1.
	Opacity            float64 `json:"opacity"`
	CompositeOperation string  `json:"compositeOperation"`

	// Visible is false when the layer or any ancestor is hidden.
	Visible bool `json:"visible"`
	// Draggable is false when the layer or any ancestor is locked, and for
	// layers outside the isolated group while isolation is active.
	Draggable bool `json:"draggable"`

	Depth        int    `json:"depth"`
	HasMask      bool   `json:"hasMask,omitempty"`
	IsMask       bool   `json:"isMask,omitempty"`
	MaskTargetID string `json:"maskTargetId,omitempty"`
}

// Render returns one item per shape-backed layer in paint order, bottom
// first.
func (e *Editor) Render() []RenderItem {
	items := []RenderItem{}
	var visit func(list []*Layer, parent Transform, visible, unlocked, inside bool, depth int)
	visit = func(list []*Layer, parent Transform, visible, unlocked, inside bool, depth int) {
		for _, l := range list {
			abs := Compose(parent, e.local(l))
			v, u := visible && l.Visible, unlocked && !l.Locked
			if sh := e.shapes.Get(l.ID); sh != nil && l.Type.ShapeBacked() {
				items = append(items, RenderItem{
					ID:                 l.ID,
					Type:               sh.Type,
					Shape:              sh.Clone(),
					X:                  abs.X,
					Y:                  abs.Y,
					ScaleX:             abs.ScaleX,
					ScaleY:             abs.ScaleY,
					Rotation:           abs.Rotation,
					Opacity:            abs.Opacity / 100,
					CompositeOperation: l.BlendMode.CompositeOperation(),
					Visible:            v,
					Draggable:          u && inside,
					Depth:              depth,
					HasMask:            l.HasMask,
					IsMask:             l.IsMask,
					MaskTargetID:       l.MaskTargetID,
				})
			}
			if l.Children != nil {
				visit(l.Children, abs, v, u, inside || l.ID == e.isolated, depth+1)
			}
		}
	}
	visit(e.tree.Roots, Identity, true, true, e.isolated == "", 0)
	return items
}
