// Package feature converts artifacts (URLs, email bodies, email headers)
// into fixed-shape numeric vectors. Extraction is pure and deterministic:
// the same artifact always yields the same vector, and nothing here touches
// shared state or the network.
//
// Values follow a tristate convention inherited from the phishing-website
// dataset the baseline corpus was built on: 1 = legitimate signal,
// 0 = suspicious, -1 = phishing signal.
package feature

import "errors"

// ErrMalformed reports an artifact that could not be parsed well enough to
// extract features from. Callers must surface it as an Unknown verdict,
// never coerce it to Safe.
var ErrMalformed = errors.New("feature: malformed artifact")

// Tristate feature values.
const (
	Legit   = 1.0
	Suspect = 0.0
	Phish   = -1.0
)

// Vector is a fixed-length ordered sequence of feature values. Immutable
// once produced; the order is defined by the Schema it was extracted under.
type Vector []float64

// Schema names the features of a Vector, in order. Each trained model head
// carries the schema version it was trained against.
type Schema struct {
	Name    string
	Version int
	Fields  []string
}

// Len returns the number of features in the schema.
func (s Schema) Len() int { return len(s.Fields) }

// Index returns the position of a named field, or -1.
func (s Schema) Index(name string) int {
	for i, f := range s.Fields {
		if f == name {
			return i
		}
	}
	return -1
}
