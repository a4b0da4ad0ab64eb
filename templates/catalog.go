// Package templates serves the scene bundles found in a directory and
// reloads them when the directory changes.
package templates

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"overlay-builder/scene"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// reloadDelay coalesces bursts of filesystem events into one reload.
const reloadDelay = 50 * time.Millisecond

// Summary is a template without its scene content.
type Summary struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Usage       string   `json:"usage,omitempty"`
	Shapes      int      `json:"shapes"`
}

// Catalog holds the bundles parsed from one directory.
type Catalog struct {
	dir string

	mu      sync.RWMutex
	bundles map[string]scene.Bundle
}

// NewCatalog returns an empty catalog over dir. Call Load to read it.
func NewCatalog(dir string) *Catalog {
	return &Catalog{dir: dir, bundles: make(map[string]scene.Bundle)}
}

func isTemplateFile(name string) (ok, yamlInput bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return true, true
	case ".json":
		return true, false
	}
	return false, false
}

// Load replaces the catalog with the bundles currently on disk. Files that
// fail to parse are skipped and logged. A missing directory yields an
// empty catalog.
func (c *Catalog) Load() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			logrus.WithField("templates_dir", c.dir).Warn("Templates directory does not exist")
			c.swap(map[string]scene.Bundle{})
			return nil
		}
		return fmt.Errorf("read templates dir: %w", err)
	}

	bundles := make(map[string]scene.Bundle)
	for _, e := range entries {
		ok, yamlInput := isTemplateFile(e.Name())
		if e.IsDir() || !ok {
			continue
		}
		log := logrus.WithField("file", e.Name())
		data, err := os.ReadFile(filepath.Join(c.dir, e.Name()))
		if err != nil {
			log.WithError(err).Warn("Failed to read template, skipping")
			continue
		}
		b, err := scene.ParseBundle(data, yamlInput)
		if err != nil {
			log.WithError(err).Warn("Failed to parse template, skipping")
			continue
		}
		if b.ID == "" {
			b.ID = strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		}
		if b.Name == "" {
			b.Name = b.ID
		}
		if _, dup := bundles[b.ID]; dup {
			log.WithField("template_id", b.ID).Warn("Duplicate template id, skipping")
			continue
		}
		bundles[b.ID] = b
	}

	c.swap(bundles)
	logrus.WithField("templates_dir", c.dir).Infof("Loaded %d templates", len(bundles))
	return nil
}

func (c *Catalog) swap(bundles map[string]scene.Bundle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bundles = bundles
}

// List returns every template sorted by name.
func (c *Catalog) List() []Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	list := make([]Summary, 0, len(c.bundles))
	for _, b := range c.bundles {
		list = append(list, Summary{
			ID:          b.ID,
			Name:        b.Name,
			Description: b.Description,
			Tags:        b.Tags,
			Usage:       b.Usage,
			Shapes:      len(b.Shapes),
		})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Name != list[j].Name {
			return list[i].Name < list[j].Name
		}
		return list[i].ID < list[j].ID
	})
	return list
}

// Get returns a copy of the template with the given id.
func (c *Catalog) Get(id string) (scene.Bundle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	b, ok := c.bundles[id]
	if !ok {
		return scene.Bundle{}, false
	}
	s := b.Snapshot().Clone()
	b.Shapes, b.Layers = s.Shapes, s.Layers
	return b, true
}

// Watch reloads the catalog whenever a template file changes, until ctx is
// done.
func (c *Catalog) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(c.dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", c.dir, err)
	}

	go func() {
		defer watcher.Close()
		var timer *time.Timer
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if isTpl, _ := isTemplateFile(event.Name); !isTpl {
					continue
				}
				logrus.WithFields(logrus.Fields{"file": event.Name, "op": event.Op.String()}).Debug("Template changed")
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(reloadDelay, func() {
					if err := c.Load(); err != nil {
						logrus.WithError(err).Error("Failed to reload templates")
					}
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logrus.WithError(err).Error("Template watcher error")
			}
		}
	}()
	return nil
}
