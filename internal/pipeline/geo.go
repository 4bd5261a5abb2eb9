package pipeline

import (
	"hash/fnv"

	"github.com/KaramelBytes/satark-cli/internal/normalize"
)

// Map centre used to spread districts without a known centroid.
const (
	baseLat = 20.5937
	baseLng = 78.9629
)

// Locator resolves display coordinates for districts.
type Locator struct {
	ref *normalize.Reference
}

// NewLocator uses ref's centroid table, or the embedded one when ref is nil.
func NewLocator(ref *normalize.Reference) *Locator {
	if ref == nil {
		ref = normalize.DefaultReference()
	}
	return &Locator{ref: ref}
}

// Locate returns the centroid for district, or a deterministic point within
// five degrees of the map centre derived from the name's FNV-1a hash. The
// boolean reports whether the centroid was known.
func (l *Locator) Locate(district string) (normalize.LatLng, bool) {
	if p, ok := l.ref.Centroid(district); ok && (p.Lat != 0 || p.Lng != 0) {
		return p, true
	}
	return Jitter(district), false
}

// Jitter is stable across processes and platforms.
func Jitter(district string) normalize.LatLng {
	h := fnv.New32a()
	_, _ = h.Write([]byte(district))
	n := h.Sum32() % 1000
	return normalize.LatLng{
		Lat: baseLat + float64(n)/100 - 5,
		Lng: baseLng + float64((n*7)%1000)/100 - 5,
	}
}
