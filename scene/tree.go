package scene

// Tree owns the ordered forest of layers. Roots[0] paints first.
type Tree struct {
	Roots []*Layer
}

// location is where a layer currently sits: the slice that holds it, its
// index there, and the owning parent (nil for roots).
type location struct {
	parent *Layer
	index  int
}

// Find returns the layer with the given id at any depth, or nil.
func (t *Tree) Find(id string) *Layer {
	return findLayer(t.Roots, id)
}

func findLayer(layers []*Layer, id string) *Layer {
	for _, l := range layers {
		if l.ID == id {
			return l
		}
		if l.Children != nil {
			if found := findLayer(l.Children, id); found != nil {
				return found
			}
		}
	}
	return nil
}

// Walk visits every layer depth-first in paint order. Returning false from
// fn skips the layer's subtree.
func (t *Tree) Walk(fn func(l *Layer, parent *Layer, depth int) bool) {
	walk(t.Roots, nil, 0, fn)
}

func walk(layers []*Layer, parent *Layer, depth int, fn func(*Layer, *Layer, int) bool) {
	for _, l := range layers {
		if fn(l, parent, depth) && l.Children != nil {
			walk(l.Children, l, depth+1, fn)
		}
	}
}

// Chain returns the path from a root down to the layer, inclusive. It is
// nil when the id is not in the forest.
func (t *Tree) Chain(id string) []*Layer {
	var chain []*Layer
	var search func(layers []*Layer) bool
	search = func(layers []*Layer) bool {
		for _, l := range layers {
			chain = append(chain, l)
			if l.ID == id {
				return true
			}
			if l.Children != nil && search(l.Children) {
				return true
			}
			chain = chain[:len(chain)-1]
		}
		return false
	}
	if !search(t.Roots) {
		return nil
	}
	return chain
}

// Ancestors returns the layers above id, root first.
func (t *Tree) Ancestors(id string) []*Layer {
	chain := t.Chain(id)
	if len(chain) == 0 {
		return nil
	}
	return chain[:len(chain)-1]
}

// Parent returns the layer that directly holds id, or nil for roots and
// unknown ids.
func (t *Tree) Parent(id string) *Layer {
	anc := t.Ancestors(id)
	if len(anc) == 0 {
		return nil
	}
	return anc[len(anc)-1]
}

// Depth is the nesting level of id (roots are 0), or -1 if absent.
func (t *Tree) Depth(id string) int {
	return len(t.Chain(id)) - 1
}

// Breadcrumb returns the root-to-layer path of id as display crumbs.
func (t *Tree) Breadcrumb(id string) []Crumb {
	chain := t.Chain(id)
	crumbs := make([]Crumb, 0, len(chain))
	for _, l := range chain {
		crumbs = append(crumbs, Crumb{ID: l.ID, Name: l.Name})
	}
	return crumbs
}

// IsDescendant reports whether id sits somewhere below ancestorID.
func (t *Tree) IsDescendant(ancestorID, id string) bool {
	for _, a := range t.Ancestors(id) {
		if a.ID == ancestorID {
			return true
		}
	}
	return false
}

// Siblings returns the list that holds id (the roots or a children slice).
func (t *Tree) Siblings(id string) []*Layer {
	loc, ok := t.locate(id)
	if !ok {
		return nil
	}
	return t.listOf(loc.parent)
}

func (t *Tree) locate(id string) (location, bool) {
	for i, l := range t.Roots {
		if l.ID == id {
			return location{parent: nil, index: i}, true
		}
	}
	parent := t.Parent(id)
	if parent == nil {
		return location{}, false
	}
	for i, l := range parent.Children {
		if l.ID == id {
			return location{parent: parent, index: i}, true
		}
	}
	return location{}, false
}

func (t *Tree) listOf(parent *Layer) []*Layer {
	if parent == nil {
		return t.Roots
	}
	return parent.Children
}

func (t *Tree) setList(parent *Layer, list []*Layer) {
	if parent == nil {
		t.Roots = list
		return
	}
	parent.Children = list
}

func insertAt(list []*Layer, index int, items ...*Layer) []*Layer {
	if index < 0 || index > len(list) {
		index = len(list)
	}
	out := make([]*Layer, 0, len(list)+len(items))
	out = append(out, list[:index]...)
	out = append(out, items...)
	return append(out, list[index:]...)
}

func removeAt(list []*Layer, index int) []*Layer {
	out := make([]*Layer, 0, len(list)-1)
	out = append(out, list[:index]...)
	return append(out, list[index+1:]...)
}

// Insert places l into parentID's children (empty parentID means the roots)
// at index; an out-of-range index appends. Inserting into a non-container or
// an unknown parent, or reusing an existing id, is rejected.
func (t *Tree) Insert(l *Layer, parentID string, index int) bool {
	if l == nil || l.ID == "" || t.Find(l.ID) != nil {
		return false
	}
	var parent *Layer
	if parentID != "" {
		parent = t.Find(parentID)
		if parent == nil || !canHoldChildren(parent) {
			return false
		}
		if parent.Children == nil {
			parent.Children = []*Layer{}
		}
	}
	t.setList(parent, insertAt(t.listOf(parent), index, l))
	return true
}

// Remove detaches the layer (and its subtree) wherever it is nested and
// returns it. Mask links pointing at removed layers are cleared.
func (t *Tree) Remove(id string) *Layer {
	loc, ok := t.locate(id)
	if !ok {
		return nil
	}
	list := t.listOf(loc.parent)
	removed := list[loc.index]
	t.setList(loc.parent, removeAt(list, loc.index))
	t.ValidateMasks()
	return removed
}

// Update merges patch into the layer, leaving other fields and children
// untouched.
func (t *Tree) Update(id string, patch LayerPatch) bool {
	l := t.Find(id)
	if l == nil {
		return false
	}
	return patch.apply(l)
}

// Move relocates id with its subtree into targetParentID's children (empty
// means the roots) at position, where position indexes the target list after
// the layer has been taken out. Moving a layer into itself or one of its
// descendants, or into a layer that cannot hold children, is rejected.
func (t *Tree) Move(id, targetParentID string, position int) bool {
	loc, ok := t.locate(id)
	if !ok {
		return false
	}
	var target *Layer
	if targetParentID != "" {
		if targetParentID == id || t.IsDescendant(id, targetParentID) {
			return false
		}
		target = t.Find(targetParentID)
		if target == nil || !canHoldChildren(target) {
			return false
		}
	}
	list := t.listOf(loc.parent)
	l := list[loc.index]
	t.setList(loc.parent, removeAt(list, loc.index))
	if target != nil && target.Children == nil {
		target.Children = []*Layer{}
	}
	t.setList(target, insertAt(t.listOf(target), position, l))
	t.ValidateMasks()
	return true
}

// BringToFront moves id to the top of its own sibling list.
func (t *Tree) BringToFront(id string) bool {
	loc, ok := t.locate(id)
	if !ok {
		return false
	}
	list := t.listOf(loc.parent)
	if loc.index == len(list)-1 {
		return false
	}
	l := list[loc.index]
	t.setList(loc.parent, append(removeAt(list, loc.index), l))
	t.ValidateMasks()
	return true
}

// SendToBack moves id to the bottom of its own sibling list.
func (t *Tree) SendToBack(id string) bool {
	loc, ok := t.locate(id)
	if !ok || loc.index == 0 {
		return false
	}
	list := t.listOf(loc.parent)
	l := list[loc.index]
	t.setList(loc.parent, insertAt(removeAt(list, loc.index), 0, l))
	t.ValidateMasks()
	return true
}

// Group wraps the layers named by ids that share the shallowest sibling
// list holding at least two of them, roots first. The group takes the
// position of the earliest member and keeps the members' relative order.
// Fewer than two members in any one list is a no-op and returns nil.
func (t *Tree) Group(ids []string, group *Layer) *Layer {
	if group == nil || t.Find(group.ID) != nil {
		return nil
	}
	parent, found := t.groupParent(ids)
	if !found {
		return nil
	}
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	list := t.listOf(parent)
	var (
		members []*Layer
		rest    []*Layer
		first   = -1
	)
	for i, l := range list {
		if wanted[l.ID] {
			if first < 0 {
				first = i
			}
			members = append(members, l)
			continue
		}
		rest = append(rest, l)
	}
	if len(members) < 2 {
		return nil
	}
	group.Type = LayerGroup
	group.Children = members
	t.setList(parent, insertAt(rest, first, group))
	t.ValidateMasks()
	return group
}

// groupParent returns the parent of the shallowest sibling list that holds
// two or more of ids. Ties at one depth go to the list seen first.
func (t *Tree) groupParent(ids []string) (*Layer, bool) {
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	type candidate struct {
		parent *Layer
		depth  int
		count  int
	}
	var order []*candidate
	byParent := make(map[*Layer]*candidate)
	t.Walk(func(l, parent *Layer, depth int) bool {
		if !wanted[l.ID] {
			return true
		}
		c, ok := byParent[parent]
		if !ok {
			c = &candidate{parent: parent, depth: depth}
			byParent[parent] = c
			order = append(order, c)
		}
		c.count++
		return true
	})
	var best *candidate
	for _, c := range order {
		if c.count < 2 {
			continue
		}
		if best == nil || c.depth < best.depth {
			best = c
		}
	}
	if best == nil {
		return nil, false
	}
	return best.parent, true
}

// Ungroup splices a group's children back into its parent list at the
// group's former position and drops the group node.
func (t *Tree) Ungroup(id string) bool {
	loc, ok := t.locate(id)
	if !ok {
		return false
	}
	list := t.listOf(loc.parent)
	g := list[loc.index]
	if g.Type != LayerGroup || g.Children == nil {
		return false
	}
	t.setList(loc.parent, insertAt(removeAt(list, loc.index), loc.index, g.Children...))
	t.ValidateMasks()
	return true
}

// ApplyMask makes id the mask of its immediately preceding sibling. A
// previous mask on that target, or a previous target of id, is released.
func (t *Tree) ApplyMask(id string) bool {
	loc, ok := t.locate(id)
	if !ok || loc.index == 0 {
		return false
	}
	list := t.listOf(loc.parent)
	mask, target := list[loc.index], list[loc.index-1]
	if mask.IsMask && mask.MaskTargetID == target.ID {
		return false
	}
	if mask.IsMask {
		t.releaseMask(mask)
	}
	t.Walk(func(l, _ *Layer, _ int) bool {
		if l != mask && l.IsMask && l.MaskTargetID == target.ID {
			l.IsMask = false
			l.MaskTargetID = ""
		}
		return true
	})
	mask.IsMask = true
	mask.MaskTargetID = target.ID
	mask.Visible = true
	target.HasMask = true
	return true
}

// RemoveMask clears whichever side of a mask relationship id is on.
func (t *Tree) RemoveMask(id string) bool {
	l := t.Find(id)
	if l == nil {
		return false
	}
	changed := false
	if l.IsMask {
		t.releaseMask(l)
		changed = true
	}
	if l.HasMask {
		l.HasMask = false
		t.Walk(func(m, _ *Layer, _ int) bool {
			if m.IsMask && m.MaskTargetID == id {
				m.IsMask = false
				m.MaskTargetID = ""
			}
			return true
		})
		changed = true
	}
	return changed
}

func (t *Tree) releaseMask(mask *Layer) {
	if target := t.Find(mask.MaskTargetID); target != nil {
		target.HasMask = false
	}
	mask.IsMask = false
	mask.MaskTargetID = ""
}

// ValidateMasks clears mask links that no longer hold: a mask whose target
// is gone or is no longer its sibling, a second mask on the same target, and
// hasMask flags nothing points at.
func (t *Tree) ValidateMasks() {
	masked := map[string]bool{}
	var check func(list []*Layer)
	check = func(list []*Layer) {
		ids := make(map[string]bool, len(list))
		for _, l := range list {
			ids[l.ID] = true
		}
		for _, l := range list {
			if l.IsMask {
				if l.MaskTargetID == "" || l.MaskTargetID == l.ID || !ids[l.MaskTargetID] || masked[l.MaskTargetID] {
					l.IsMask = false
					l.MaskTargetID = ""
				} else {
					masked[l.MaskTargetID] = true
				}
			}
			if l.Children != nil {
				check(l.Children)
			}
		}
	}
	check(t.Roots)
	t.Walk(func(l, _ *Layer, _ int) bool {
		if l.HasMask && !masked[l.ID] {
			l.HasMask = false
		}
		return true
	})
}

func canHoldChildren(l *Layer) bool {
	return l.Type == LayerGroup || l.Type == LayerAdjustment
}

// LayerPatch carries the fields an update may change. Nil fields are left
// alone.
type LayerPatch struct {
	Name      *string    `json:"name,omitempty"`
	Visible   *bool      `json:"visible,omitempty"`
	Locked    *bool      `json:"locked,omitempty"`
	Opacity   *int       `json:"opacity,omitempty"`
	BlendMode *BlendMode `json:"blendMode,omitempty"`
	X         *float64   `json:"x,omitempty"`
	Y         *float64   `json:"y,omitempty"`
	ScaleX    *float64   `json:"scaleX,omitempty"`
	ScaleY    *float64   `json:"scaleY,omitempty"`
	Rotation  *float64   `json:"rotation,omitempty"`
	Thumbnail *string    `json:"thumbnail,omitempty"`
}

func (p LayerPatch) apply(l *Layer) bool {
	changed := false
	if p.Name != nil && *p.Name != l.Name {
		l.Name, changed = *p.Name, true
	}
	if p.Visible != nil && *p.Visible != l.Visible {
		l.Visible, changed = *p.Visible, true
	}
	if p.Locked != nil && *p.Locked != l.Locked {
		l.Locked, changed = *p.Locked, true
	}
	if p.Opacity != nil {
		o := clampOpacity(*p.Opacity)
		if o != l.Opacity {
			l.Opacity, changed = o, true
		}
	}
	if p.BlendMode != nil && *p.BlendMode != l.BlendMode {
		l.BlendMode, changed = *p.BlendMode, true
	}
	for _, f := range []struct {
		src *float64
		dst **float64
	}{
		{p.X, &l.X}, {p.Y, &l.Y}, {p.ScaleX, &l.ScaleX}, {p.ScaleY, &l.ScaleY}, {p.Rotation, &l.Rotation},
	} {
		if f.src != nil && (*f.dst == nil || **f.dst != *f.src) {
			*f.dst, changed = clonePtr(f.src), true
		}
	}
	if p.Thumbnail != nil && *p.Thumbnail != l.Thumbnail {
		l.Thumbnail, changed = *p.Thumbnail, true
	}
	return changed
}

func clampOpacity(o int) int {
	if o < 0 {
		return 0
	}
	if o > 100 {
		return 100
	}
	return o
}
