// Package scene is the layer/shape scene graph behind the overlay builder.
//
// A scene is two collections kept in lockstep: a flat list of [Shape]
// records (geometry and fill) and an ordered forest of [Layer] nodes
// (visibility, lock, opacity, blend mode, local transform, children). Every
// shape has exactly one layer with the same id; structural layers (group,
// adjustment, mask) have no shape.
//
// The forest is a pure ownership tree. Children never point back at their
// parent, so every parent lookup is a top-down search from the roots. Order
// inside a children list is the only z-order at that level.
//
// All edits go through an [Editor], which updates both collections in one
// call and reports each effective change to an optional hook:
//
//	ed := scene.NewEditor(scene.WithChangeHook(func(c scene.Change) {
//		autosave.Schedule()
//	}))
//	id := ed.Add("circle", scene.Placement{X: 200, Y: 120})
//	ed.Duplicate(id)
//
// Nothing in this package blocks, logs or performs I/O. Anticipated bad input
// (unknown ids, invalid grouping, reparenting into a descendant) is a no-op.
package scene
