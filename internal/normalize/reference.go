package normalize

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed reference.yaml
var defaultReferenceYAML []byte

// LatLng is a WGS84 point.
type LatLng struct {
	Lat float64 `yaml:"lat" json:"lat"`
	Lng float64 `yaml:"lng" json:"lng"`
}

// Reference holds the correction dictionaries and district centroids. A
// Reference is never mutated after construction; Overlay returns a copy.
type Reference struct {
	States    map[string]string `yaml:"states"`
	Districts map[string]string `yaml:"districts"`
	Centroids map[string]LatLng `yaml:"centroids"`
}

// DefaultReference parses the built-in tables. The embedded file is part of
// the binary, so a parse failure is a programming error.
func DefaultReference() *Reference {
	ref, err := ParseReference(defaultReferenceYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded reference data: %v", err))
	}
	return ref
}

// ParseReference decodes a reference YAML document.
func ParseReference(b []byte) (*Reference, error) {
	var ref Reference
	if err := yaml.Unmarshal(b, &ref); err != nil {
		return nil, fmt.Errorf("parse reference yaml: %w", err)
	}
	if ref.States == nil {
		ref.States = map[string]string{}
	}
	if ref.Districts == nil {
		ref.Districts = map[string]string{}
	}
	if ref.Centroids == nil {
		ref.Centroids = map[string]LatLng{}
	}
	return &ref, nil
}

// LoadReference returns the built-in tables, extended by the YAML file at
// path when path is non-empty. Entries in the file win over built-ins.
func LoadReference(path string) (*Reference, error) {
	base := DefaultReference()
	if path == "" {
		return base, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read aliases file: %w", err)
	}
	extra, err := ParseReference(b)
	if err != nil {
		return nil, err
	}
	return base.Overlay(extra), nil
}

// Overlay returns a new Reference with other's entries layered over r.
func (r *Reference) Overlay(other *Reference) *Reference {
	out := &Reference{
		States:    make(map[string]string, len(r.States)),
		Districts: make(map[string]string, len(r.Districts)),
		Centroids: make(map[string]LatLng, len(r.Centroids)),
	}
	for _, src := range []*Reference{r, other} {
		if src == nil {
			continue
		}
		for k, v := range src.States {
			out.States[k] = v
		}
		for k, v := range src.Districts {
			out.Districts[k] = v
		}
		for k, v := range src.Centroids {
			out.Centroids[k] = v
		}
	}
	return out
}

// Centroid returns the known centroid for a canonical district name.
func (r *Reference) Centroid(district string) (LatLng, bool) {
	p, ok := r.Centroids[district]
	return p, ok
}
