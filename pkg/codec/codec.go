// Package codec encodes plain Go values (maps, slices, scalars) in the
// formats offered by the specifier tree dump.
package codec

import (
    "fmt"
    "sort"
)

// Codec marshals generic values. Implementations are deterministic.
type Codec interface {
    Name() string
    ContentType() string
    Marshal(v any) ([]byte, error)
    Unmarshal(data []byte, v any) error
}

// Registry maps format names to codecs.
type Registry struct{ byName map[string]Codec }

// NewRegistry returns a registry holding JSON, CBOR and protobuf Struct.
func NewRegistry() (*Registry, error) {
    r := &Registry{byName: make(map[string]Codec)}
    r.Register(JSON())
    r.Register(Proto())
    c, err := CBOR()
    if err != nil { return nil, err }
    r.Register(c)
    return r, nil
}

func (r *Registry) Register(c Codec) { r.byName[c.Name()] = c }

// Get returns the codec for name.
func (r *Registry) Get(name string) (Codec, error) {
    c, ok := r.byName[name]
    if !ok { return nil, fmt.Errorf("unknown format %q (have %v)", name, r.Names()) }
    return c, nil
}

func (r *Registry) Names() []string {
    names := make([]string, 0, len(r.byName))
    for n := range r.byName { names = append(names, n) }
    sort.Strings(names)
    return names
}
