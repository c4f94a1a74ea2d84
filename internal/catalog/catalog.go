// Package catalog maps host lifecycle triggers to the analytics calls they emit.
//
// A built-in set of bindings covers the standard host events. Extra bindings are loaded at startup
// from *.yaml files in a directory, one binding per file; a file binding replaces the built-in one
// with the same trigger. No hot reload.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	v1 "github.com/aevon-lab/segment-relay/internal/api/v1"
)

// ErrUnknownTrigger is returned by Lookup for a trigger without a binding.
var ErrUnknownTrigger = errors.New("unknown trigger")

// Emit is a single analytics call produced by a trigger.
type Emit struct {
	Operation v1.Operation `yaml:"operation"`
	Event     string       `yaml:"event"` // track only
	Name      string       `yaml:"name"`  // page only; optional
}

// Binding describes what a trigger emits.
type Binding struct {
	Trigger string `yaml:"trigger"`
	Emits   []Emit `yaml:"emit"`
	// Properties, when set, is an allow-list applied to the trigger's properties.
	Properties []string `yaml:"properties"`
}

// Filter returns the subset of props allowed by the binding. A nil allow-list keeps everything.
func (b Binding) Filter(props map[string]interface{}) map[string]interface{} {
	if len(props) == 0 {
		return nil
	}
	if len(b.Properties) == 0 {
		out := make(map[string]interface{}, len(props))
		for k, v := range props {
			out[k] = v
		}
		return out
	}

	out := make(map[string]interface{}, len(b.Properties))
	for _, key := range b.Properties {
		if v, ok := props[key]; ok {
			out[key] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (b Binding) validate() error {
	if strings.TrimSpace(b.Trigger) == "" {
		return fmt.Errorf("trigger must not be empty")
	}
	if len(b.Emits) == 0 {
		return fmt.Errorf("binding %q: emit must list at least one operation", b.Trigger)
	}
	for i, e := range b.Emits {
		if !e.Operation.Valid() {
			return fmt.Errorf("binding %q: emit[%d]: unsupported operation %q", b.Trigger, i, e.Operation)
		}
		if e.Operation == v1.OperationTrack && strings.TrimSpace(e.Event) == "" {
			return fmt.Errorf("binding %q: emit[%d]: track requires event", b.Trigger, i)
		}
	}
	return nil
}

// Catalog is an immutable set of bindings keyed by trigger.
type Catalog struct {
	bindings map[string]Binding
}

// New builds a Catalog from bindings. Duplicate or invalid bindings are an error.
func New(bindings ...Binding) (*Catalog, error) {
	c := &Catalog{bindings: make(map[string]Binding, len(bindings))}
	for _, b := range bindings {
		if err := b.validate(); err != nil {
			return nil, err
		}
		if _, exists := c.bindings[b.Trigger]; exists {
			return nil, fmt.Errorf("binding %q: duplicate trigger", b.Trigger)
		}
		c.bindings[b.Trigger] = b
	}
	return c, nil
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := New(Defaults()...)
	if err != nil {
		panic(fmt.Sprintf("catalog: invalid built-in bindings: %v", err))
	}
	return c
}

// Load returns the built-in catalog overlaid with the bindings found in dir.
// A missing dir is not an error.
func Load(dir string) (*Catalog, error) {
	c := Default()
	if strings.TrimSpace(dir) == "" {
		return c, nil
	}

	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("catalog path %q is not a directory", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading catalog dir: %w", err)
	}

	seen := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() || (!strings.HasSuffix(e.Name(), ".yaml") && !strings.HasSuffix(e.Name(), ".yml")) {
			continue
		}

		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading catalog file %s: %w", path, err)
		}

		var b Binding
		if err := yaml.Unmarshal(data, &b); err != nil {
			return nil, fmt.Errorf("parsing catalog file %s: %w", path, err)
		}
		if b.Trigger == "" && len(b.Emits) == 0 {
			continue // empty / comment-only file
		}
		if err := b.validate(); err != nil {
			return nil, fmt.Errorf("catalog file %s: %w", path, err)
		}
		if prev, exists := seen[b.Trigger]; exists {
			return nil, fmt.Errorf("binding %q: defined in both %s and %s", b.Trigger, prev, path)
		}
		seen[b.Trigger] = path
		c.bindings[b.Trigger] = b
	}
	return c, nil
}

// Lookup returns the binding for trigger.
func (c *Catalog) Lookup(trigger string) (Binding, error) {
	b, ok := c.bindings[trigger]
	if !ok {
		return Binding{}, fmt.Errorf("%w: %q", ErrUnknownTrigger, trigger)
	}
	return b, nil
}

// Triggers returns every bound trigger in sorted order.
func (c *Catalog) Triggers() []string {
	out := make([]string, 0, len(c.bindings))
	for t := range c.bindings {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
