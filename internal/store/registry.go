package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Resource is one logical, persisted JSON document.
type Resource struct {
	Name    string `json:"name"`
	File    string `json:"file"`
	Default []byte `json:"-"`
}

var (
	emptyObject = []byte("{}")
	emptyList   = []byte("[]")
)

// Logical resource names served by the control panel.
const (
	RLT1DS      = "RLT1DS"
	RLT2DS      = "RLT2DS"
	VALT1DS     = "VALT1DS"
	VALT2DS     = "VALT2DS"
	FinalOutput = "FinalOutput"
	Sponsors    = "sponsors"
	RLOverlay   = "rloverlay"
)

// Registry is the closed set of resources a Store accepts. It is immutable
// after construction.
type Registry struct {
	resources []Resource
	byKey     map[string]int
}

// NewRegistry validates that names and files are unique and that every file
// is a plain base name.
func NewRegistry(resources ...Resource) (*Registry, error) {
	if len(resources) == 0 {
		return nil, errors.New("registry requires at least one resource")
	}
	r := &Registry{byKey: make(map[string]int, 2*len(resources))}
	for _, res := range resources {
		if res.Name == "" {
			return nil, errors.New("resource name required")
		}
		if !isPlainFileName(res.File) {
			return nil, fmt.Errorf("resource %s: invalid file name %q", res.Name, res.File)
		}
		if _, dup := r.byKey[res.Name]; dup {
			return nil, fmt.Errorf("duplicate resource key %q", res.Name)
		}
		if _, dup := r.byKey[res.File]; dup {
			return nil, fmt.Errorf("duplicate resource key %q", res.File)
		}
		if len(res.Default) == 0 {
			res.Default = emptyObject
		}
		res = res.clone()
		idx := len(r.resources)
		r.resources = append(r.resources, res)
		r.byKey[res.Name] = idx
		r.byKey[res.File] = idx
	}
	return r, nil
}

// DefaultRegistry returns the control panel resources. The sponsor list
// defaults to an empty array, everything else to an empty object.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(
		Resource{Name: RLT1DS, File: "RLT1DS.json", Default: emptyObject},
		Resource{Name: RLT2DS, File: "RLT2DS.json", Default: emptyObject},
		Resource{Name: VALT1DS, File: "VALT1DS.json", Default: emptyObject},
		Resource{Name: VALT2DS, File: "VALT2DS.json", Default: emptyObject},
		Resource{Name: FinalOutput, File: "FinalOutput.json", Default: emptyObject},
		Resource{Name: Sponsors, File: "sponsors.json", Default: emptyList},
		Resource{Name: RLOverlay, File: "rloverlay.json", Default: emptyObject},
	)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup resolves a logical name or a file name.
func (r *Registry) Lookup(key string) (Resource, bool) {
	idx, ok := r.byKey[key]
	if !ok {
		return Resource{}, false
	}
	return r.resources[idx].clone(), true
}

// Resources returns the registered resources in declaration order.
func (r *Registry) Resources() []Resource {
	out := make([]Resource, len(r.resources))
	for i, res := range r.resources {
		out[i] = res.clone()
	}
	return out
}

func (r Resource) clone() Resource {
	r.Default = append([]byte(nil), r.Default...)
	return r
}

func isPlainFileName(s string) bool {
	if s == "" || s == "." || s == ".." || strings.ContainsAny(s, `/\`) {
		return false
	}
	return filepath.Base(s) == s
}
