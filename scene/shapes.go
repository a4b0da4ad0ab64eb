package scene

import "slices"

// ShapeList is the flat shape collection. Order carries no meaning beyond
// keeping snapshots stable.
type ShapeList struct {
	items []*Shape
}

// NewShapeList wraps shapes without copying them.
func NewShapeList(shapes []*Shape) *ShapeList {
	return &ShapeList{items: shapes}
}

func (s *ShapeList) index(id string) int {
	return slices.IndexFunc(s.items, func(sh *Shape) bool { return sh.ID == id })
}

// Get returns the shape with id, or nil.
func (s *ShapeList) Get(id string) *Shape {
	if i := s.index(id); i >= 0 {
		return s.items[i]
	}
	return nil
}

// Has reports whether a shape with id exists.
func (s *ShapeList) Has(id string) bool {
	return s.index(id) >= 0
}

// Add appends sh unless its id is already taken.
func (s *ShapeList) Add(sh *Shape) bool {
	if sh == nil || sh.ID == "" || s.Has(sh.ID) {
		return false
	}
	s.items = append(s.items, sh)
	return true
}

// Remove deletes the shape with id and returns it.
func (s *ShapeList) Remove(id string) *Shape {
	i := s.index(id)
	if i < 0 {
		return nil
	}
	sh := s.items[i]
	s.items = slices.Delete(s.items, i, i+1)
	return sh
}

// Update merges patch into the shape with id.
func (s *ShapeList) Update(id string, patch ShapePatch) bool {
	sh := s.Get(id)
	if sh == nil {
		return false
	}
	return patch.apply(sh)
}

// All returns the live shapes.
func (s *ShapeList) All() []*Shape {
	return s.items
}

// Len is the number of shapes.
func (s *ShapeList) Len() int {
	return len(s.items)
}

// ShapePatch carries the geometry and style fields an update may change.
type ShapePatch struct {
	X      *float64  `json:"x,omitempty"`
	Y      *float64  `json:"y,omitempty"`
	Width  *float64  `json:"width,omitempty"`
	Height *float64  `json:"height,omitempty"`
	Radius *float64  `json:"radius,omitempty"`
	Points []float64 `json:"points,omitempty"`
	Text   *string   `json:"text,omitempty"`
	Fill   *string   `json:"fill,omitempty"`
	Src    *string   `json:"src,omitempty"`
}

func (p ShapePatch) apply(sh *Shape) bool {
	changed := false
	for _, f := range []struct {
		src *float64
		dst *float64
	}{
		{p.X, &sh.X}, {p.Y, &sh.Y}, {p.Width, &sh.Width}, {p.Height, &sh.Height}, {p.Radius, &sh.Radius},
	} {
		if f.src != nil && *f.src != *f.dst {
			*f.dst, changed = *f.src, true
		}
	}
	if p.Points != nil && !slices.Equal(p.Points, sh.Points) {
		sh.Points, changed = append([]float64(nil), p.Points...), true
	}
	for _, f := range []struct {
		src *string
		dst *string
	}{
		{p.Text, &sh.Text}, {p.Fill, &sh.Fill}, {p.Src, &sh.Src},
	} {
		if f.src != nil && *f.src != *f.dst {
			*f.dst, changed = *f.src, true
		}
	}
	return changed
}

// pentagon is the default polygon outline, relative to the shape origin.
var pentagon = []float64{0, -50, 47.5, -15.5, 29.4, 40.5, -29.4, 40.5, -47.5, -15.5}

// DefaultTextHeight is the line height assumed for text bounds.
const DefaultTextHeight = 24

// NewShape builds a shape of the given type at (x, y) with the product's
// default geometry and fill.
func NewShape(id string, typ ShapeType, x, y float64) *Shape {
	sh := &Shape{ID: id, Type: typ, X: x, Y: y}
	switch typ {
	case ShapeRect:
		sh.Width, sh.Height, sh.Fill = 150, 100, "#9146ff"
	case ShapeCircle:
		sh.Radius, sh.Fill = 50, "#00f593"
	case ShapeDiamond:
		sh.Width, sh.Height, sh.Fill = 100, 100, "#ff6b6b"
	case ShapePolygon:
		sh.Width, sh.Height, sh.Fill = 100, 100, "#4ecdc4"
		sh.Points = slices.Clone(pentagon)
	case ShapeText:
		sh.Text, sh.Width, sh.Fill = "Your Text", 200, "#ffffff"
	case ShapeImage, ShapeVideo:
		sh.Width, sh.Height = 320, 180
	default:
		sh.Fill = "#ffffff"
	}
	return sh
}

// LayerTypeFor is the layer type paired with a shape type.
func LayerTypeFor(t ShapeType) LayerType {
	if t == ShapeText {
		return LayerText
	}
	return LayerShape
}

// NewLayer returns a layer with default visual properties.
func NewLayer(id, name string, typ LayerType) *Layer {
	l := &Layer{
		ID:        id,
		Name:      name,
		Type:      typ,
		Visible:   true,
		Opacity:   100,
		BlendMode: BlendNormal,
	}
	if typ == LayerGroup || typ == LayerAdjustment {
		l.Children = []*Layer{}
	}
	return l
}

// LayerForShape synthesizes the default layer for a shape that has none.
func LayerForShape(sh *Shape) *Layer {
	suffix := sh.ID
	if len(suffix) > 4 {
		suffix = suffix[len(suffix)-4:]
	}
	l := NewLayer(sh.ID, titleCase(string(sh.Type))+" "+suffix, LayerTypeFor(sh.Type))
	l.X, l.Y = Float(sh.X), Float(sh.Y)
	return l
}

// SyncLayersWithShapes restores the pairing between a forest and a shape
// list: shape-backed layers without a shape are dropped wherever they are
// nested, and shapes without a layer get a default one appended to the
// roots. Structural layers are kept. The input forest is not modified.
func SyncLayersWithShapes(roots []*Layer, shapes []*Shape) []*Layer {
	have := make(map[string]bool, len(shapes))
	for _, sh := range shapes {
		have[sh.ID] = true
	}
	seen := map[string]bool{}
	var prune func(list []*Layer) []*Layer
	prune = func(list []*Layer) []*Layer {
		out := make([]*Layer, 0, len(list))
		for _, l := range list {
			if l.Type.ShapeBacked() && (!have[l.ID] || seen[l.ID]) {
				continue
			}
			seen[l.ID] = true
			c := *l
			if l.Children != nil {
				c.Children = prune(l.Children)
			}
			out = append(out, &c)
		}
		return out
	}
	synced := prune(roots)
	for _, sh := range shapes {
		if !seen[sh.ID] {
			synced = append(synced, LayerForShape(sh))
			seen[sh.ID] = true
		}
	}
	return synced
}
