// Package inventory tracks the switches an operator can target, loaded from a
// YAML device file that can be edited while the service runs.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/dagolovach/ise-session-manager/internal/model"
)

// reloadDebounce coalesces bursts of file events from editors that write a
// device file in several steps.
const reloadDebounce = 500 * time.Millisecond

// deviceFile is the on-disk shape of the device inventory.
type deviceFile struct {
	Devices []model.Target `yaml:"devices"`
}

// Inventory holds the current device list and keeps it fresh while the file
// changes on disk.
type Inventory struct {
	path   string
	logger *slog.Logger

	mu      sync.RWMutex
	targets []model.Target
}

// New creates an inventory backed by the device file at path.
func New(path string, logger *slog.Logger) *Inventory {
	return &Inventory{
		path:   path,
		logger: logger,
	}
}

// Load reads the device file. A missing file yields an empty inventory, not
// an error; operators can still run against ad-hoc targets without one.
func (i *Inventory) Load() error {
	data, err := os.ReadFile(i.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			i.logger.Warn("Device file not found, starting with empty inventory", "path", i.path)
			i.setTargets(nil)
			return nil
		}
		return fmt.Errorf("failed to read device file: %w", err)
	}

	var parsed deviceFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse device file: %w", err)
	}

	targets := make([]model.Target, 0, len(parsed.Devices))
	for _, d := range parsed.Devices {
		if d.Host == "" {
			i.logger.Warn("Skipping device without host", "name", d.Name)
			continue
		}
		if d.Name == "" {
			d.Name = d.Host
		}
		targets = append(targets, d)
	}

	i.setTargets(targets)
	i.logger.Info("Device inventory loaded", "path", i.path, "devices", len(targets))
	return nil
}

// Targets returns a copy of the current device list in file order.
func (i *Inventory) Targets() []model.Target {
	i.mu.RLock()
	defer i.mu.RUnlock()

	out := make([]model.Target, len(i.targets))
	copy(out, i.targets)
	return out
}

// Resolve maps a device name to its inventory entry. It also accepts the host
// itself so operator input works with or without an inventory entry.
func (i *Inventory) Resolve(name string) (model.Target, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	for _, t := range i.targets {
		if t.Name == name || t.Host == name {
			return t, true
		}
	}
	return model.Target{}, false
}

func (i *Inventory) setTargets(targets []model.Target) {
	i.mu.Lock()
	i.targets = targets
	i.mu.Unlock()
}

// Watch reloads the inventory whenever the device file changes, until ctx is
// canceled. The watch is held on the parent directory because editors often
// replace the file by rename, which silently drops a watch on the file
// itself.
func (i *Inventory) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	dir := filepath.Dir(i.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	i.logger.Info("Watching device file for changes", "path", i.path)

	go i.watchLoop(ctx, watcher)
	return nil
}

// watchLoop turns raw file events into debounced reloads.
func (i *Inventory) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	var reload *time.Timer
	for {
		select {
		case <-ctx.Done():
			if reload != nil {
				reload.Stop()
			}
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(i.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			if reload != nil {
				reload.Stop()
			}
			reload = time.AfterFunc(reloadDebounce, func() {
				if err := i.Load(); err != nil {
					i.logger.Error("Failed to reload device file", "error", err)
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			i.logger.Error("Device file watcher error", "error", err)
		}
	}
}
