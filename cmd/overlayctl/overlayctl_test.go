package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"overlay-builder/handlers/auth"
	"overlay-builder/scene"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const staleScene = `{
  "shapes": [
    {"id": "rect-1", "type": "rect", "x": 0, "y": 0, "width": 200, "height": 100, "fill": "#111111"},
    {"id": "circle-2", "type": "circle", "x": 50, "y": 50, "radius": 20, "fill": "#00f593"}
  ],
  "layers": [
    {"id": "rect-1", "name": "Backdrop", "type": "shape", "visible": true, "locked": false, "opacity": 100, "blendMode": "normal"},
    {"id": "ghost", "name": "Ghost", "type": "shape", "visible": true, "locked": false, "opacity": 100, "blendMode": "normal"}
  ]
}`

const bundleYAML = `name: Lower Third
tags: [news]
shapes:
  - id: rect-1
    type: rect
    x: 0
    y: 900
    width: 1920
    height: 180
    fill: "#202020"
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidate(t *testing.T) {
	good := writeFile(t, "good.json", `{"shapes":[],"layers":[]}`)
	out, err := run(t, "validate", good)
	require.NoError(t, err)
	assert.Contains(t, out, "ok (0 shapes, 0 root layers)")

	stale := writeFile(t, "stale.json", staleScene)
	_, err = run(t, "validate", stale)
	assert.Error(t, err)

	_, err = run(t, "validate", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestReconcile(t *testing.T) {
	in := writeFile(t, "stale.json", staleScene)
	outPath := filepath.Join(t.TempDir(), "fixed.json")

	_, err := run(t, "reconcile", in, "-o", outPath)
	require.NoError(t, err)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	s, err := scene.ParseSnapshot(data)
	require.NoError(t, err)
	require.NoError(t, scene.ValidateSnapshot(s))

	var ids []string
	for _, l := range s.Layers {
		ids = append(ids, l.ID)
	}
	assert.Equal(t, []string{"rect-1", "circle-2"}, ids)
	assert.Equal(t, "Backdrop", s.Layers[0].Name)
}

func TestRender(t *testing.T) {
	in := writeFile(t, "scene.json", `{"shapes":[{"id":"rect-1","type":"rect","x":5,"y":6,"width":10,"height":10,"fill":"#fff"}],
"layers":[{"id":"rect-1","name":"R","type":"shape","visible":true,"locked":false,"opacity":50,"blendMode":"screen"}]}`)

	out, err := run(t, "render", in)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "rect-1")
	assert.Contains(t, lines[1], "screen")
	assert.Contains(t, lines[1], "0.50")

	out, err = run(t, "render", in, "--json")
	require.NoError(t, err)
	var items []scene.RenderItem
	require.NoError(t, json.Unmarshal([]byte(out), &items))
	require.Len(t, items, 1)
	assert.Equal(t, 5.0, items[0].X)
}

func TestTemplate(t *testing.T) {
	in := writeFile(t, "lower-third.yaml", bundleYAML)

	out, err := run(t, "template", in)
	require.NoError(t, err)
	assert.Contains(t, out, "name: Lower Third")
	assert.Contains(t, out, "blendMode: normal")

	b, err := scene.ParseBundle([]byte(out), true)
	require.NoError(t, err)
	require.Len(t, b.Layers, 1)
	assert.Equal(t, "rect-1", b.Layers[0].ID)
	assert.Equal(t, "#202020", b.Shapes[0].Fill)

	out, err = run(t, "template", in, "--format", "json")
	require.NoError(t, err)
	b, err = scene.ParseBundle([]byte(out), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"news"}, b.Tags)

	_, err = run(t, "template", in, "--format", "toml")
	assert.Error(t, err)
}

func TestToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	out, err := run(t, "token", "user-42", "--name", "Streamer")
	require.NoError(t, err)

	claims, err := auth.ParseJWT(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "user-42", claims.Subject)
	assert.Equal(t, "user-42", claims.Login)
	assert.Equal(t, "Streamer", claims.Name)
}

func TestTokenWithoutSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := run(t, "token", "user-42")
	assert.Error(t, err)
}
