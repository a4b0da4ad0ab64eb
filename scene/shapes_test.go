package scene

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShapeList(t *testing.T) {
	list := NewShapeList(nil)
	require.True(t, list.Add(NewShape("a", ShapeRect, 0, 0)))
	assert.False(t, list.Add(NewShape("a", ShapeCircle, 0, 0)))
	assert.False(t, list.Add(nil))
	require.True(t, list.Add(NewShape("b", ShapeCircle, 5, 5)))

	assert.True(t, list.Update("b", ShapePatch{Radius: ptr(80.0)}))
	assert.Equal(t, 80.0, list.Get("b").Radius)
	assert.False(t, list.Update("missing", ShapePatch{Radius: ptr(1.0)}))

	removed := list.Remove("a")
	require.NotNil(t, removed)
	assert.Equal(t, "a", removed.ID)
	assert.Nil(t, list.Remove("a"))
	assert.Equal(t, 1, list.Len())
}

func TestNewShapeDefaults(t *testing.T) {
	diamond := NewShape("d", ShapeDiamond, 1, 2)
	assert.Equal(t, "#ff6b6b", diamond.Fill)
	assert.Equal(t, 100.0, diamond.Width)

	poly := NewShape("p", ShapePolygon, 0, 0)
	assert.Len(t, poly.Points, 10)
	poly.Points[0] = 42
	assert.Equal(t, 0.0, NewShape("q", ShapePolygon, 0, 0).Points[0])

	circle := NewShape("c", ShapeCircle, 0, 0)
	assert.Equal(t, 50.0, circle.Radius)
	assert.Equal(t, "#00f593", circle.Fill)
}

func TestSyncLayersWithShapes(t *testing.T) {
	roots := []*Layer{
		NewLayer("keep", "Keep", LayerShape),
		NewLayer("stale", "Stale", LayerText),
		NewLayer("adj", "Adjust", LayerAdjustment),
	}
	roots[2].Children = []*Layer{NewLayer("nested-stale", "Nested", LayerShape)}
	shapes := []*Shape{
		NewShape("keep", ShapeRect, 0, 0),
		NewShape("video-77zz", ShapeVideo, 3, 4),
	}

	synced := SyncLayersWithShapes(roots, shapes)
	require.Len(t, synced, 3)
	assert.Equal(t, "keep", synced[0].ID)
	assert.Equal(t, "adj", synced[1].ID)
	assert.Empty(t, synced[1].Children)
	assert.Equal(t, "Video 77zz", synced[2].Name)
	assert.Equal(t, LayerShape, synced[2].Type)

	assert.Len(t, roots[2].Children, 1)
	assert.Len(t, roots, 3)
}

func TestSyncDropsDuplicateLayers(t *testing.T) {
	roots := []*Layer{NewLayer("a", "A", LayerShape), NewLayer("a", "A again", LayerShape)}
	synced := SyncLayersWithShapes(roots, []*Shape{NewShape("a", ShapeRect, 0, 0)})
	require.Len(t, synced, 1)
	assert.Equal(t, "A", synced[0].Name)
}
