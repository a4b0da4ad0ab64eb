package scene

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Snapshot is the persisted form of a scene: the flat shape list and the
// layer forest with children inline.
type Snapshot struct {
	Shapes []*Shape `json:"shapes"`
	Layers []*Layer `json:"layers"`
}

// Clone returns a deep copy with nil collections replaced by empty ones.
func (s Snapshot) Clone() Snapshot {
	return Snapshot{
		Shapes: cloneShapes(s.Shapes),
		Layers: cloneLayers(s.Layers),
	}
}

// ParseSnapshot decodes a JSON snapshot. Missing collections decode as
// empty.
func ParseSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("decode scene snapshot: %w", err)
	}
	return s.normalize(), nil
}

func (s Snapshot) normalize() Snapshot {
	if s.Shapes == nil {
		s.Shapes = []*Shape{}
	}
	if s.Layers == nil {
		s.Layers = []*Layer{}
	}
	s.Shapes = compactShapes(s.Shapes)
	s.Layers = compactLayers(s.Layers)
	return s
}

// compactShapes drops null entries a hand-edited file may carry.
func compactShapes(shapes []*Shape) []*Shape {
	out := shapes[:0:0]
	for _, sh := range shapes {
		if sh != nil {
			out = append(out, sh)
		}
	}
	return out
}

// compactLayers returns fresh nodes; the input forest is never written.
func compactLayers(layers []*Layer) []*Layer {
	out := make([]*Layer, 0, len(layers))
	for _, l := range layers {
		if l == nil {
			continue
		}
		c := *l
		if l.Children != nil {
			c.Children = compactLayers(l.Children)
		}
		out = append(out, &c)
	}
	return out
}

// Bundle is an importable scene with catalog metadata.
type Bundle struct {
	ID          string   `json:"id,omitempty"`
	Name        string   `json:"name,omitempty"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Usage       string   `json:"usage,omitempty"`
	Shapes      []*Shape `json:"shapes"`
	Layers      []*Layer `json:"layers"`
}

// Snapshot returns the bundle's scene content.
func (b Bundle) Snapshot() Snapshot {
	return Snapshot{Shapes: b.Shapes, Layers: b.Layers}.normalize()
}

// ParseBundle decodes a bundle from JSON, or from YAML when yamlInput is
// set. YAML documents use the same field names as JSON.
func ParseBundle(data []byte, yamlInput bool) (Bundle, error) {
	if yamlInput {
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return Bundle{}, fmt.Errorf("decode template yaml: %w", err)
		}
		if doc == nil {
			return Bundle{Shapes: []*Shape{}, Layers: []*Layer{}}, nil
		}
		var err error
		if data, err = json.Marshal(doc); err != nil {
			return Bundle{}, fmt.Errorf("convert template yaml: %w", err)
		}
	}
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return Bundle{}, fmt.Errorf("decode template: %w", err)
	}
	s := b.Snapshot()
	b.Shapes, b.Layers = s.Shapes, s.Layers
	return b, nil
}
