// Package recognition maps camera frames to configured identities by comparing
// face embeddings against a reference set built from enrollment images.
package recognition

import (
	"image"
	"slices"
)

// Embedding is a fixed-length face feature vector.
type Embedding []float32

// Detection is one face found in an image together with its embedding.
type Detection struct {
	Box       image.Rectangle
	Embedding Embedding
}

// ReferenceSet maps identities to their enrolled embeddings. It is immutable
// once built; rebuilding requires a restart.
type ReferenceSet struct {
	entries    map[string][]Embedding
	identities []string // sorted, only identities with at least one embedding
}

// NewReferenceSet copies the given embeddings into an immutable set. Empty
// vectors are dropped, and identities left with no embeddings are excluded so
// they can never be matched.
func NewReferenceSet(embeddings map[string][]Embedding) *ReferenceSet {
	rs := &ReferenceSet{entries: make(map[string][]Embedding, len(embeddings))}
	for id, list := range embeddings {
		var kept []Embedding
		for _, e := range list {
			if len(e) == 0 {
				continue
			}
			kept = append(kept, slices.Clone(e))
		}
		if len(kept) == 0 {
			continue
		}
		rs.entries[id] = kept
		rs.identities = append(rs.identities, id)
	}
	slices.Sort(rs.identities)
	return rs
}

// Identities returns the matchable identities in sorted order.
func (rs *ReferenceSet) Identities() []string {
	return slices.Clone(rs.identities)
}

// Count returns the number of embeddings enrolled for an identity.
func (rs *ReferenceSet) Count(identity string) int {
	return len(rs.entries[identity])
}

// Len returns the number of matchable identities.
func (rs *ReferenceSet) Len() int {
	return len(rs.identities)
}

// Result describes the outcome of matching one frame.
type Result struct {
	Identity string  // empty when nothing cleared the tolerance
	Distance float64 // distance of the match, or the closest miss
	Faces    int     // number of faces detected in the frame
}

// Matched reports whether the frame produced an identity.
func (r Result) Matched() bool {
	return r.Identity != ""
}
