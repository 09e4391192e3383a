// Package progress derives the completion score of an intake draft.
package progress

import (
	"math"

	"kycflow/internal/intake/models"
	"kycflow/internal/intake/sections"
)

// Percent converts a completed/total count to an integer in [0,100], rounded
// to the nearest integer. Zero sections is vacuously complete. Only a fully
// complete draft reports 100, so large registries cap at 99.
func Percent(completed, total int) int {
	if total <= 0 {
		return 100
	}
	if completed <= 0 {
		return 0
	}
	if completed >= total {
		return 100
	}
	return min(99, int(math.Round(float64(completed)*100/float64(total))))
}

// Compute evaluates every section predicate of reg against root.
func Compute(reg *sections.Registry, root models.Group) int {
	return Percent(reg.CompletedCount(root), reg.Len())
}
