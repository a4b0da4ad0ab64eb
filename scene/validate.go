package scene

import (
	"errors"
	"fmt"
)

// Validate checks the scene's invariants and returns every violation joined
// into one error, or nil.
func (e *Editor) Validate() error {
	return ValidateSnapshot(Snapshot{Shapes: e.shapes.All(), Layers: e.tree.Roots})
}

// ValidateSnapshot checks a snapshot without loading it.
func ValidateSnapshot(s Snapshot) error {
	var errs []error

	shapes := map[string]*Shape{}
	for _, sh := range s.Shapes {
		if sh == nil {
			continue
		}
		if _, dup := shapes[sh.ID]; dup {
			errs = append(errs, fmt.Errorf("shape %s: duplicate id", sh.ID))
		}
		if !sh.Type.Valid() {
			errs = append(errs, fmt.Errorf("shape %s: unknown type %q", sh.ID, sh.Type))
		}
		shapes[sh.ID] = sh
	}

	layers := map[string]*Layer{}
	onPath := map[*Layer]bool{}
	var check func(list []*Layer)
	check = func(list []*Layer) {
		siblings := map[string]bool{}
		for _, l := range list {
			if l != nil {
				siblings[l.ID] = true
			}
		}
		for _, l := range list {
			if l == nil {
				continue
			}
			if onPath[l] {
				errs = append(errs, fmt.Errorf("layer %s: contains itself", l.ID))
				continue
			}
			if _, dup := layers[l.ID]; dup {
				errs = append(errs, fmt.Errorf("layer %s: duplicate id", l.ID))
			}
			layers[l.ID] = l
			if !l.Type.Valid() {
				errs = append(errs, fmt.Errorf("layer %s: unknown type %q", l.ID, l.Type))
			}
			if l.Opacity < 0 || l.Opacity > 100 {
				errs = append(errs, fmt.Errorf("layer %s: opacity %d out of range", l.ID, l.Opacity))
			}
			_, paired := shapes[l.ID]
			switch {
			case l.Type.ShapeBacked() && !paired:
				errs = append(errs, fmt.Errorf("layer %s: no shape with the same id", l.ID))
			case !l.Type.ShapeBacked() && paired:
				errs = append(errs, fmt.Errorf("layer %s: %s layer paired with a shape", l.ID, l.Type))
			}
			if l.IsMask && !siblings[l.MaskTargetID] {
				errs = append(errs, fmt.Errorf("layer %s: mask target %q is not a sibling", l.ID, l.MaskTargetID))
			}
			if l.Children != nil {
				onPath[l] = true
				check(l.Children)
				delete(onPath, l)
			}
		}
	}
	check(s.Layers)

	for id := range shapes {
		if _, ok := layers[id]; !ok {
			errs = append(errs, fmt.Errorf("shape %s: no layer with the same id", id))
		}
	}

	targets := map[string]int{}
	for _, l := range layers {
		if l.IsMask {
			targets[l.MaskTargetID]++
		}
	}
	for id, n := range targets {
		if n > 1 {
			errs = append(errs, fmt.Errorf("layer %s: targeted by %d masks", id, n))
		}
		if l, ok := layers[id]; ok && !l.HasMask {
			errs = append(errs, fmt.Errorf("layer %s: masked but hasMask is false", id))
		}
	}
	for id, l := range layers {
		if l.HasMask && targets[id] == 0 {
			errs = append(errs, fmt.Errorf("layer %s: hasMask without a mask", id))
		}
	}
	return errors.Join(errs...)
}
