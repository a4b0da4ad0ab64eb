package scene

import (
	"slices"
	"sort"
	"time"
)

// Modifiers is a bitmask of keyboard modifiers held during an input event.
type Modifiers uint8

const (
	ModShift Modifiers = 1 << iota
	ModCtrl
	ModAlt
	ModMeta
)

// Drill reports whether a drill-down modifier (Ctrl or Cmd) is held.
func (m Modifiers) Drill() bool {
	return m&(ModCtrl|ModMeta) != 0
}

// Multi reports whether the multi-select modifier is held.
func (m Modifiers) Multi() bool {
	return m&ModShift != 0
}

// Rect is an axis-aligned bounding box in canvas coordinates.
type Rect struct {
	MinX float64 `json:"minX"`
	MinY float64 `json:"minY"`
	MaxX float64 `json:"maxX"`
	MaxY float64 `json:"maxY"`
}

// Contains reports whether p lies inside r, edges included.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.MinX && p.X <= r.MaxX && p.Y >= r.MinY && p.Y <= r.MaxY
}

// Union returns the smallest rect covering both.
func (r Rect) Union(o Rect) Rect {
	return Rect{
		MinX: min(r.MinX, o.MinX),
		MinY: min(r.MinY, o.MinY),
		MaxX: max(r.MaxX, o.MaxX),
		MaxY: max(r.MaxY, o.MaxY),
	}
}

// ShapeBounds returns the box of sh placed at abs. Only abs's scale is
// applied to the geometry; its position replaces the shape's own.
// Rotation is ignored.
func ShapeBounds(sh *Shape, abs Transform) Rect {
	var local Rect
	switch sh.Type {
	case ShapeCircle:
		local = Rect{MinX: -sh.Radius, MinY: -sh.Radius, MaxX: sh.Radius, MaxY: sh.Radius}
	case ShapeDiamond:
		local = Rect{MinX: -sh.Width / 2, MinY: -sh.Height / 2, MaxX: sh.Width / 2, MaxY: sh.Height / 2}
	case ShapePolygon:
		if len(sh.Points) >= 2 {
			local = Rect{MinX: sh.Points[0], MinY: sh.Points[1], MaxX: sh.Points[0], MaxY: sh.Points[1]}
			for i := 2; i+1 < len(sh.Points); i += 2 {
				local = local.Union(Rect{MinX: sh.Points[i], MinY: sh.Points[i+1], MaxX: sh.Points[i], MaxY: sh.Points[i+1]})
			}
		} else {
			local = Rect{MinX: -sh.Width / 2, MinY: -sh.Height / 2, MaxX: sh.Width / 2, MaxY: sh.Height / 2}
		}
	case ShapeText:
		h := sh.Height
		if h == 0 {
			h = DefaultTextHeight
		}
		local = Rect{MaxX: sh.Width, MaxY: h}
	default:
		local = Rect{MaxX: sh.Width, MaxY: sh.Height}
	}
	a := Rect{
		MinX: abs.X + local.MinX*abs.ScaleX,
		MinY: abs.Y + local.MinY*abs.ScaleY,
		MaxX: abs.X + local.MaxX*abs.ScaleX,
		MaxY: abs.Y + local.MaxY*abs.ScaleY,
	}
	// negative scale flips the box
	if a.MinX > a.MaxX {
		a.MinX, a.MaxX = a.MaxX, a.MinX
	}
	if a.MinY > a.MaxY {
		a.MinY, a.MaxY = a.MaxY, a.MinY
	}
	return a
}

// Hit is a layer found under a point.
type Hit struct {
	ID    string `json:"id"`
	Depth int    `json:"depth"`
	// Ancestors are the ids above the layer within the hit context.
	Ancestors []string `json:"ancestors"`

	order int
}

// SortHits orders hits shallow to deep, and topmost first within a depth.
func SortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Depth != hits[j].Depth {
			return hits[i].Depth < hits[j].Depth
		}
		return hits[i].order > hits[j].order
	})
}

// TopLevel picks the shallowest hit, or "" when there is none.
func TopLevel(hits []Hit) string {
	if len(hits) == 0 {
		return ""
	}
	return hits[0].ID
}

// DrillDown returns the hit after current in shallow-to-deep order,
// wrapping around. It falls back to the top-level pick when current is not
// among the hits.
func DrillDown(hits []Hit, current string) string {
	switch len(hits) {
	case 0:
		return ""
	case 1:
		return hits[0].ID
	}
	i := slices.IndexFunc(hits, func(h Hit) bool { return h.ID == current })
	if current == "" || i < 0 {
		return TopLevel(hits)
	}
	return hits[(i+1)%len(hits)].ID
}

// Mode is the pointer selection mode.
type Mode int

const (
	ModeDefault Mode = iota
	ModeModifierHeld
)

func (m Mode) String() string {
	if m == ModeModifierHeld {
		return "modifier-held"
	}
	return "default"
}

// DefaultDoubleClickWindow is the gap under which two clicks count as one
// double-click.
const DefaultDoubleClickWindow = 300 * time.Millisecond

// Selector tracks the modifier mode and click timing. Time is passed in by
// the caller.
type Selector struct {
	Window time.Duration

	mode       Mode
	held       Modifiers
	lastClick  time.Time
	clickCount int
}

// NewSelector returns a selector in default mode.
func NewSelector(window time.Duration) *Selector {
	if window <= 0 {
		window = DefaultDoubleClickWindow
	}
	return &Selector{Window: window}
}

// Mode returns the current selection mode.
func (s *Selector) Mode() Mode {
	return s.mode
}

// SetModifiers records the modifiers held after a key event. Any drill
// modifier switches to ModeModifierHeld; releasing all of them returns to
// ModeDefault.
func (s *Selector) SetModifiers(m Modifiers) {
	s.held = m
	if m.Drill() {
		s.mode = ModeModifierHeld
	} else {
		s.mode = ModeDefault
	}
}

// Held returns the modifiers currently held.
func (s *Selector) Held() Modifiers {
	return s.held
}

// Click registers a click at the given time and returns the running click
// count (2 or more means a double-click).
func (s *Selector) Click(at time.Time) int {
	if s.clickCount > 0 && at.Sub(s.lastClick) < s.Window && !at.Before(s.lastClick) {
		s.clickCount++
	} else {
		s.clickCount = 1
	}
	s.lastClick = at
	return s.clickCount
}

// Drilling reports whether a click with mods, as the count-th click in a
// row, should drill down.
func (s *Selector) Drilling(mods Modifiers, count int) bool {
	return s.mode == ModeModifierHeld || mods.Drill() || count >= 2
}

// Selection is the current primary layer plus the selection set. Primary is
// always a member of IDs when set.
type Selection struct {
	Primary string   `json:"primary,omitempty"`
	IDs     []string `json:"ids"`
}

// Contains reports whether id is selected.
func (s Selection) Contains(id string) bool {
	return slices.Contains(s.IDs, id)
}

// Empty reports whether nothing is selected.
func (s Selection) Empty() bool {
	return len(s.IDs) == 0
}

func (s *Selection) set(id string) {
	if id == "" {
		s.clear()
		return
	}
	s.Primary = id
	s.IDs = []string{id}
}

func (s *Selection) clear() {
	s.Primary = ""
	s.IDs = nil
}

// toggle adds id to the set and makes it primary, or removes it and
// promotes the last remaining member.
func (s *Selection) toggle(id string) {
	if i := slices.Index(s.IDs, id); i >= 0 {
		s.IDs = slices.Delete(slices.Clone(s.IDs), i, i+1)
		s.Primary = ""
		if n := len(s.IDs); n > 0 {
			s.Primary = s.IDs[n-1]
		}
		return
	}
	s.IDs = append(slices.Clone(s.IDs), id)
	s.Primary = id
}

// drop removes every id for which gone reports true.
func (s *Selection) drop(gone func(string) bool) bool {
	kept := s.IDs[:0:0]
	for _, id := range s.IDs {
		if !gone(id) {
			kept = append(kept, id)
		}
	}
	if len(kept) == len(s.IDs) {
		return false
	}
	s.IDs = kept
	if gone(s.Primary) {
		s.Primary = ""
		if n := len(kept); n > 0 {
			s.Primary = kept[n-1]
		}
	}
	return true
}

func (s Selection) clone() Selection {
	return Selection{Primary: s.Primary, IDs: slices.Clone(s.IDs)}
}
