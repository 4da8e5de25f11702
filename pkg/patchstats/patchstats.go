// Package patchstats computes per-patch line and indentation statistics.
package patchstats

import (
	"math"

	"github.com/Sumatoshi-tech/githarvest/pkg/gitlib"
)

// DefaultTabSize is the number of spaces counted as one indentation level.
const DefaultTabSize = 4

// Stats holds the sums and population standard deviations, across hunks,
// of deleted/added lines and deleted/added complexity.
type Stats struct {
	LocD     int64
	LocI     int64
	CompD    int64
	CompI    int64
	LocDStd  float64
	LocIStd  float64
	CompDStd float64
	CompIStd float64
}

// Complexity returns the indentation depth of line: literal leading tabs plus
// leading spaces in units of tabSize, rounded up. Counting stops at the first
// character that is neither a space nor a tab.
func Complexity(line string, tabSize int) int64 {
	if tabSize <= 0 {
		tabSize = DefaultTabSize
	}

	var tabs, spaces int64

loop:
	for i := range len(line) {
		switch line[i] {
		case '\t':
			tabs++
		case ' ':
			spaces++
		default:
			break loop
		}
	}

	return tabs + (spaces+int64(tabSize)-1)/int64(tabSize)
}

// Finite returns v, or zero when v is NaN or infinite.
func Finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}

	return v
}

// series accumulates a sum and sum of squares for population deviation.
type series struct {
	sum   int64
	sumSq float64
}

func (s *series) add(v int64) {
	s.sum += v
	s.sumSq += float64(v) * float64(v)
}

func (s *series) stddev(n int) float64 {
	if n == 0 {
		return 0
	}

	mean := float64(s.sum) / float64(n)
	variance := s.sumSq/float64(n) - mean*mean

	// Rounding can push an all-equal series slightly negative.
	if variance < 0 {
		variance = 0
	}

	return Finite(math.Sqrt(variance))
}

// Accumulator folds hunks one at a time without keeping them.
type Accumulator struct {
	tabSize int
	hunks   int

	locD, locI, compD, compI series
}

// NewAccumulator creates an accumulator using tabSize (<= 0 means DefaultTabSize).
func NewAccumulator(tabSize int) *Accumulator {
	if tabSize <= 0 {
		tabSize = DefaultTabSize
	}

	return &Accumulator{tabSize: tabSize}
}

// AddHunk folds one hunk into the running totals.
func (a *Accumulator) AddHunk(hunk gitlib.Hunk) {
	var locD, locI, compD, compI int64

	for _, line := range hunk.Lines {
		switch line.Origin {
		case gitlib.LineDeleted:
			locD++
			compD += Complexity(line.Content, a.tabSize)
		case gitlib.LineAdded:
			locI++
			compI += Complexity(line.Content, a.tabSize)
		case gitlib.LineContext:
		}
	}

	a.hunks++
	a.locD.add(locD)
	a.locI.add(locI)
	a.compD.add(compD)
	a.compI.add(compI)
}

// Hunks returns the number of hunks folded so far.
func (a *Accumulator) Hunks() int {
	return a.hunks
}

// Stats returns the current totals.
func (a *Accumulator) Stats() Stats {
	return Stats{
		LocD:     a.locD.sum,
		LocI:     a.locI.sum,
		CompD:    a.compD.sum,
		CompI:    a.compI.sum,
		LocDStd:  a.locD.stddev(a.hunks),
		LocIStd:  a.locI.stddev(a.hunks),
		CompDStd: a.compD.stddev(a.hunks),
		CompIStd: a.compI.stddev(a.hunks),
	}
}

// Compute folds all hunks of a patch.
func Compute(hunks []gitlib.Hunk, tabSize int) Stats {
	acc := NewAccumulator(tabSize)
	for _, hunk := range hunks {
		acc.AddHunk(hunk)
	}

	return acc.Stats()
}
