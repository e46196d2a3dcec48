// ABOUTME: Project manifest loading: a YAML file names documents, dependencies, and graph files.
// ABOUTME: Graph definitions are loaded and validated up front so a bad graph fails before any run.
package project

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/tommoseley/TheCombine-sub006/engine"
)

// Manifest is the on-disk project definition. Graph paths are resolved
// relative to the manifest file's directory.
type Manifest struct {
	Name      string                `yaml:"name"`
	Graphs    map[string]string     `yaml:"graphs"`
	Documents []engine.DocumentSpec `yaml:"documents"`

	dir string
}

// LoadManifest reads and decodes a project manifest from path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, err
	}
	m.dir = filepath.Dir(path)
	return m, nil
}

// ParseManifest decodes a manifest from raw YAML.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// validate checks internal consistency before any file is touched.
func (m *Manifest) validate() error {
	if m.Name == "" {
		return fmt.Errorf("manifest missing name")
	}
	if len(m.Documents) == 0 {
		return fmt.Errorf("manifest %q declares no documents", m.Name)
	}
	names := make(map[string]bool, len(m.Documents))
	for _, doc := range m.Documents {
		if doc.Name == "" {
			return fmt.Errorf("manifest %q has a document without a name", m.Name)
		}
		if names[doc.Name] {
			return fmt.Errorf("duplicate document %q", doc.Name)
		}
		names[doc.Name] = true
		if _, ok := m.Graphs[doc.GraphRef]; !ok {
			return fmt.Errorf("document %q references unknown graph %q", doc.Name, doc.GraphRef)
		}
	}
	for _, doc := range m.Documents {
		for _, dep := range doc.DependsOn {
			if !names[dep] {
				return fmt.Errorf("document %q depends on unknown document %q", doc.Name, dep)
			}
		}
	}
	if err := m.checkDependencyCycles(); err != nil {
		return err
	}
	return nil
}

// checkDependencyCycles rejects circular depends_on chains.
func (m *Manifest) checkDependencyCycles() error {
	deps := make(map[string][]string, len(m.Documents))
	for _, doc := range m.Documents {
		deps[doc.Name] = doc.DependsOn
	}
	const (
		visiting = 1
		done     = 2
	)
	colors := make(map[string]int, len(deps))
	var visit func(name string) error
	visit = func(name string) error {
		switch colors[name] {
		case visiting:
			return fmt.Errorf("dependency cycle through document %q", name)
		case done:
			return nil
		}
		colors[name] = visiting
		for _, dep := range deps[name] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		colors[name] = done
		return nil
	}
	for name := range deps {
		if err := visit(name); err != nil {
			return err
		}
	}
	return nil
}

// Plan returns the engine-facing project plan.
func (m *Manifest) Plan() engine.ProjectPlan {
	return engine.ProjectPlan{Name: m.Name, Documents: m.Documents}
}

// LoadGraphs loads and validates every graph file the manifest names,
// registered under the manifest's refs.
func (m *Manifest) LoadGraphs() (*engine.GraphSet, error) {
	gs := engine.NewGraphSet()
	for ref, path := range m.Graphs {
		if !filepath.IsAbs(path) {
			path = filepath.Join(m.dir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read graph %q: %w", ref, err)
		}
		g, err := engine.LoadGraph(data)
		if err != nil {
			return nil, fmt.Errorf("graph %q: %w", ref, err)
		}
		gs.Register(ref, g)
	}
	return gs, nil
}
