package snapshot

import (
	"fmt"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/roach88/syncbridge/internal/ir"
)

// Decoder builds an object from its YAML mapping node.
type Decoder func(node *yaml.Node) (ir.Object, error)

// Registry maps object kinds to decoders.
//
// A registry is filled once at startup and only read afterwards. Register
// refuses to replace an existing kind. DefaultRegistry holds the built-in
// kinds and is populated during package init.
type Registry struct {
	mu       sync.RWMutex
	decoders map[string]Decoder
}

func NewRegistry() *Registry {
	return &Registry{decoders: make(map[string]Decoder)}
}

// Register adds a decoder for kind.
func (r *Registry) Register(kind string, dec Decoder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.decoders[kind]; ok {
		return fmt.Errorf("snapshot kind %q already registered", kind)
	}
	r.decoders[kind] = dec
	return nil
}

func (r *Registry) Lookup(kind string) (Decoder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dec, ok := r.decoders[kind]
	return dec, ok
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.decoders))
	for k := range r.decoders {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

var DefaultRegistry = NewRegistry()

func init() {
	RegisterBuiltins(DefaultRegistry)
}

// RegisterBuiltins adds the five built-in object kinds to r.
func RegisterBuiltins(r *Registry) {
	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}
	must(r.Register(ir.TypeUserCode, decodeInto[ir.UserCode]))
	must(r.Register(ir.TypeJob, decodeInto[ir.Job]))
	must(r.Register(ir.TypeRequest, decodeInto[ir.Request]))
	must(r.Register(ir.TypeLog, decodeInto[ir.Log]))
	must(r.Register(ir.TypeResult, decodeResult))
}

// objectPtr constrains T so that *T is an ir.Object.
type objectPtr[T any] interface {
	*T
	ir.Object
}

func decodeInto[T any, P objectPtr[T]](node *yaml.Node) (ir.Object, error) {
	var v T
	if err := node.Decode(&v); err != nil {
		return nil, err
	}
	return P(&v), nil
}

func decodeResult(node *yaml.Node) (ir.Object, error) {
	var aux struct {
		ir.Result `yaml:",inline"`
		Public    map[string]any `yaml:"public"`
		Private   map[string]any `yaml:"private"`
	}
	if err := node.Decode(&aux); err != nil {
		return nil, err
	}
	res := aux.Result
	var err error
	if res.Public, err = toMap(aux.Public); err != nil {
		return nil, fmt.Errorf("public: %w", err)
	}
	if res.Private, err = toMap(aux.Private); err != nil {
		return nil, fmt.Errorf("private: %w", err)
	}
	return &res, nil
}

func toMap(m map[string]any) (ir.Map, error) {
	if m == nil {
		return nil, nil
	}
	v, err := ir.FromGo(m)
	if err != nil {
		return nil, err
	}
	return v.(ir.Map), nil
}
