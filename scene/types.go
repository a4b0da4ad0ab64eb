package scene

import (
	"encoding/json"
	"strings"
)

// ShapeType is the closed set of drawable primitives.
type ShapeType string

const (
	ShapeRect    ShapeType = "rect"
	ShapeCircle  ShapeType = "circle"
	ShapeDiamond ShapeType = "diamond"
	ShapePolygon ShapeType = "polygon"
	ShapeText    ShapeType = "text"
	ShapeImage   ShapeType = "image"
	ShapeVideo   ShapeType = "video"
)

// Valid reports whether t is a known shape type.
func (t ShapeType) Valid() bool {
	switch t {
	case ShapeRect, ShapeCircle, ShapeDiamond, ShapePolygon, ShapeText, ShapeImage, ShapeVideo:
		return true
	}
	return false
}

// LayerType distinguishes shape-backed layers from structural ones.
type LayerType string

const (
	LayerShape      LayerType = "shape"
	LayerText       LayerType = "text"
	LayerGroup      LayerType = "group"
	LayerAdjustment LayerType = "adjustment"
	LayerMask       LayerType = "mask"
)

// Valid reports whether t is a known layer type.
func (t LayerType) Valid() bool {
	switch t {
	case LayerShape, LayerText, LayerGroup, LayerAdjustment, LayerMask:
		return true
	}
	return false
}

// ShapeBacked reports whether layers of this type are paired with a Shape.
func (t LayerType) ShapeBacked() bool {
	return t == LayerShape || t == LayerText
}

// BlendMode selects a compositing operation for a layer.
type BlendMode string

const (
	BlendNormal     BlendMode = "normal"
	BlendMultiply   BlendMode = "multiply"
	BlendScreen     BlendMode = "screen"
	BlendOverlay    BlendMode = "overlay"
	BlendDarken     BlendMode = "darken"
	BlendLighten    BlendMode = "lighten"
	BlendColorDodge BlendMode = "color-dodge"
	BlendColorBurn  BlendMode = "color-burn"
	BlendHardLight  BlendMode = "hard-light"
	BlendSoftLight  BlendMode = "soft-light"
	BlendDifference BlendMode = "difference"
	BlendExclusion  BlendMode = "exclusion"
)

// CompositeOperation returns the canvas compositing token for this blend
// mode. Unknown values fall back to source-over.
func (b BlendMode) CompositeOperation() string {
	switch b {
	case BlendMultiply, BlendScreen, BlendOverlay, BlendDarken, BlendLighten,
		BlendColorDodge, BlendColorBurn, BlendHardLight, BlendSoftLight,
		BlendDifference, BlendExclusion:
		return string(b)
	default:
		return "source-over"
	}
}

// Shape is a flat drawable primitive. Which geometric fields matter depends
// on Type; X and Y are always meaningful.
type Shape struct {
	ID     string    `json:"id"`
	Type   ShapeType `json:"type"`
	X      float64   `json:"x"`
	Y      float64   `json:"y"`
	Width  float64   `json:"width,omitempty"`
	Height float64   `json:"height,omitempty"`
	Radius float64   `json:"radius,omitempty"`
	// Points are flat x,y pairs relative to (X, Y).
	Points []float64 `json:"points,omitempty"`
	Text   string    `json:"text,omitempty"`
	Fill   string    `json:"fill,omitempty"`
	// Src references an externally stored asset (image and video shapes).
	Src string `json:"src,omitempty"`
}

// Clone returns a deep copy of s.
func (s *Shape) Clone() *Shape {
	if s == nil {
		return nil
	}
	c := *s
	if s.Points != nil {
		c.Points = append([]float64(nil), s.Points...)
	}
	return &c
}

// Layer is a node of the display tree.
//
// A non-nil Children slice, even an empty one, marks the node as a container.
type Layer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      LayerType `json:"type"`
	Visible   bool      `json:"visible"`
	Locked    bool      `json:"locked"`
	Opacity   int       `json:"opacity"`
	BlendMode BlendMode `json:"blendMode"`

	X        *float64 `json:"x,omitempty"`
	Y        *float64 `json:"y,omitempty"`
	ScaleX   *float64 `json:"scaleX,omitempty"`
	ScaleY   *float64 `json:"scaleY,omitempty"`
	Rotation *float64 `json:"rotation,omitempty"`

	Children []*Layer `json:"children"`

	HasMask      bool   `json:"hasMask,omitempty"`
	IsMask       bool   `json:"isMask,omitempty"`
	MaskTargetID string `json:"maskTargetId,omitempty"`

	Thumbnail string `json:"thumbnail,omitempty"`
}

type layerJSON Layer

// MarshalJSON omits "children" for leaves so that only containers carry the
// field, empty or not.
func (l Layer) MarshalJSON() ([]byte, error) {
	if l.Children != nil {
		return json.Marshal(layerJSON(l))
	}
	return json.Marshal(struct {
		layerJSON
		Children []*Layer `json:"children,omitempty"`
	}{layerJSON: layerJSON(l)})
}

// IsContainer reports whether the layer can hold children.
func (l *Layer) IsContainer() bool {
	return l.Children != nil
}

// Clone returns a deep copy of the layer and its subtree.
func (l *Layer) Clone() *Layer {
	if l == nil {
		return nil
	}
	c := *l
	c.X = clonePtr(l.X)
	c.Y = clonePtr(l.Y)
	c.ScaleX = clonePtr(l.ScaleX)
	c.ScaleY = clonePtr(l.ScaleY)
	c.Rotation = clonePtr(l.Rotation)
	if l.Children != nil {
		c.Children = cloneLayers(l.Children)
	}
	return &c
}

func cloneLayers(layers []*Layer) []*Layer {
	out := make([]*Layer, len(layers))
	for i, l := range layers {
		out[i] = l.Clone()
	}
	return out
}

func cloneShapes(shapes []*Shape) []*Shape {
	out := make([]*Shape, len(shapes))
	for i, s := range shapes {
		out[i] = s.Clone()
	}
	return out
}

func clonePtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Float returns a pointer to v, for populating optional layer fields.
func Float(v float64) *float64 {
	return &v
}

func valueOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

// Point is a canvas coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Crumb is one step of a root-to-layer path.
type Crumb struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
