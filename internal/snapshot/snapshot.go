package snapshot

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/syncbridge/internal/diff"
)

type file struct {
	Alias   string      `yaml:"alias"`
	Node    string      `yaml:"node"`
	Tracked []string    `yaml:"tracked"`
	Objects []yaml.Node `yaml:"objects"`
}

// Loader reads snapshot files, resolving object kinds through Registry.
type Loader struct {
	Registry *Registry
}

// Load reads and decodes one snapshot file with DefaultRegistry.
func Load(path string) (*diff.SyncState, error) {
	return Loader{Registry: DefaultRegistry}.Load(path)
}

func (l Loader) Load(path string) (*diff.SyncState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return l.Parse(path, data)
}

// Parse validates data against the snapshot schema, then decodes every
// object through the registry. name is used in error messages.
func (l Loader) Parse(name string, data []byte) (*diff.SyncState, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", name, err)
	}
	if err := validate(name, raw); err != nil {
		return nil, err
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", name, err)
	}

	reg := l.Registry
	if reg == nil {
		reg = DefaultRegistry
	}
	state := &diff.SyncState{
		Alias:    f.Alias,
		NodeName: f.Node,
		Tracked:  f.Tracked,
	}
	for i := range f.Objects {
		node := &f.Objects[i]
		var head struct {
			Kind string `yaml:"kind"`
		}
		if err := node.Decode(&head); err != nil {
			return nil, fmt.Errorf("snapshot %s: object %d: %w", name, i, err)
		}
		dec, ok := reg.Lookup(head.Kind)
		if !ok {
			return nil, fmt.Errorf("snapshot %s: object %d: unknown kind %q (known: %v)", name, i, head.Kind, reg.Kinds())
		}
		obj, err := dec(node)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: object %d (%s): %w", name, i, head.Kind, err)
		}
		state.Objects = append(state.Objects, obj)
	}
	return state, nil
}
