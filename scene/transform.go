package scene

// Transform is a position, scale, rotation and opacity (0..100) triple.
//
// Composition is translation-only: a parent's scale and rotation accumulate
// into the child's own absolute scale and rotation but are not applied to the
// child's offset.
type Transform struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	ScaleX   float64 `json:"scaleX"`
	ScaleY   float64 `json:"scaleY"`
	Rotation float64 `json:"rotation"`
	Opacity  float64 `json:"opacity"`
}

// Identity is the transform of the canvas itself.
var Identity = Transform{ScaleX: 1, ScaleY: 1, Opacity: 100}

// LocalTransform reads the layer's own transform fields. Unset position and
// rotation are 0, unset scale is 1.
func LocalTransform(l *Layer) Transform {
	return Transform{
		X:        valueOr(l.X, 0),
		Y:        valueOr(l.Y, 0),
		ScaleX:   valueOr(l.ScaleX, 1),
		ScaleY:   valueOr(l.ScaleY, 1),
		Rotation: valueOr(l.Rotation, 0),
		Opacity:  float64(l.Opacity),
	}
}

// Compose applies local on top of parent.
func Compose(parent, local Transform) Transform {
	return Transform{
		X:        parent.X + local.X,
		Y:        parent.Y + local.Y,
		ScaleX:   parent.ScaleX * local.ScaleX,
		ScaleY:   parent.ScaleY * local.ScaleY,
		Rotation: parent.Rotation + local.Rotation,
		Opacity:  parent.Opacity / 100 * local.Opacity,
	}
}

// AbsoluteTransform composes every ancestor's local transform with the
// layer's own. An id that is not in the forest yields the identity.
func AbsoluteTransform(roots []*Layer, id string) Transform {
	t := &Tree{Roots: roots}
	abs := Identity
	for _, l := range t.Chain(id) {
		abs = Compose(abs, LocalTransform(l))
	}
	return abs
}

// CreatesStackingContext reports whether the layer scopes its descendants'
// z-order.
func CreatesStackingContext(l *Layer) bool {
	return l.Type == LayerGroup || l.Type == LayerAdjustment
}

// LocalZIndex is the layer's index within siblings, or -1.
func LocalZIndex(l *Layer, siblings []*Layer) int {
	for i, s := range siblings {
		if s.ID == l.ID {
			return i
		}
	}
	return -1
}

// CompareStackingOrder returns -1 if a paints below b, 1 if above and 0 when
// the order is undefined (same layer, or both ids missing). A layer nested
// inside another counts as below its ancestor, and layers in different
// subtrees compare by the sibling order where their paths diverge. An id
// missing from the forest is treated as a root appended after the last one.
func CompareStackingOrder(a, b string, roots []*Layer) int {
	t := &Tree{Roots: roots}
	pa, pb := t.Chain(a), t.Chain(b)
	switch {
	case a == b, len(pa) == 0 && len(pb) == 0:
		return 0
	case len(pa) == 0:
		return 1
	case len(pb) == 0:
		return -1
	}
	common := 0
	for common < len(pa) && common < len(pb) && pa[common].ID == pb[common].ID {
		common++
	}
	switch {
	case common == len(pb):
		return -1
	case common == len(pa):
		return 1
	}
	siblings := roots
	if common > 0 {
		siblings = pa[common-1].Children
	}
	if LocalZIndex(pa[common], siblings) < LocalZIndex(pb[common], siblings) {
		return -1
	}
	return 1
}

// StackingInfo describes where a layer sits in the paint order.
type StackingInfo struct {
	ID                     string `json:"id"`
	Depth                  int    `json:"depth"`
	LocalZIndex            int    `json:"localZIndex"`
	CreatesStackingContext bool   `json:"createsStackingContext"`
	// Context is the id of the nearest enclosing group or adjustment layer.
	Context string `json:"context,omitempty"`
}

// Stacking returns the stacking info for id.
func (t *Tree) Stacking(id string) (StackingInfo, bool) {
	chain := t.Chain(id)
	if len(chain) == 0 {
		return StackingInfo{}, false
	}
	l := chain[len(chain)-1]
	info := StackingInfo{
		ID:                     id,
		Depth:                  len(chain) - 1,
		LocalZIndex:            LocalZIndex(l, t.Siblings(id)),
		CreatesStackingContext: CreatesStackingContext(l),
	}
	for i := len(chain) - 2; i >= 0; i-- {
		if CreatesStackingContext(chain[i]) {
			info.Context = chain[i].ID
			break
		}
	}
	return info, true
}
