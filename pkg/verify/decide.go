package verify

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"certcheck/pkg/certid"
)

// DefaultThreshold is the similarity a registry identifier must strictly
// exceed to be accepted.
const DefaultThreshold = 0.7

// Similarity returns the Ratcliff/Obershelp ratio 2*M/T of a and b, where M
// counts characters in matching blocks and T is the combined length. Two
// empty strings are identical.
func Similarity(a, b string) float64 {
	return difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, "")).Ratio()
}

// Decide compares candidate against registry in the given order. The first
// record whose normalized identifier is more similar than threshold is
// accepted and scanning stops, even if a later record would score higher.
// An empty candidate, or one with nothing left after normalization, is
// StatusNotDetected.
func Decide(candidate string, registry []Record, threshold float64) Result {
	norm := certid.Normalize(candidate)
	if norm == "" {
		return Result{Status: StatusNotDetected}
	}
	res := Result{CandidateID: candidate, NormalizedID: norm, Status: StatusFake}
	for i := range registry {
		sim := Similarity(norm, certid.Normalize(registry[i].Identifier))
		if sim > threshold {
			rec := registry[i]
			res.Status = StatusValid
			res.Record = &rec
			res.Similarity = sim
			return res
		}
	}
	return res
}
