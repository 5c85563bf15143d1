package comm

import (
	"fmt"
	"sort"
)

// ComputeDims distributes size processes over the axes of a cartesian grid.
//
// constraints[i] > 0 pins axis i to exactly that many processes;
// constraints[i] == 0 leaves the axis free. The free axes receive a
// balanced factorization of the remaining process count with dimensions in
// non-increasing order across the free axes, matching the semantics of
// MPI_Dims_create. ComputeDims fails when the pinned axes do not divide
// the process count.
func ComputeDims(size int, constraints []int) ([]int, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: process count %d < 1", ErrTopology, size)
	}
	dims := make([]int, len(constraints))
	fixed := 1
	var free []int
	for i, c := range constraints {
		switch {
		case c < 0:
			return nil, fmt.Errorf("%w: negative constraint %d on axis %d", ErrTopology, c, i)
		case c == 0:
			free = append(free, i)
			dims[i] = 1
		default:
			dims[i] = c
			fixed *= c
		}
	}
	if size%fixed != 0 {
		return nil, fmt.Errorf("%w: pinned axes hold %d processes, not a divisor of %d",
			ErrTopology, fixed, size)
	}
	rem := size / fixed
	if len(free) == 0 {
		if rem != 1 {
			return nil, fmt.Errorf("%w: %d processes left over with no free axis", ErrTopology, rem)
		}
		return dims, nil
	}

	// Greedy balanced factorization: feed prime factors, largest first,
	// into the currently smallest free dimension.
	counts := make([]int, len(free))
	for i := range counts {
		counts[i] = 1
	}
	for _, f := range primeFactorsDesc(rem) {
		smallest := 0
		for i, c := range counts {
			if c < counts[smallest] {
				smallest = i
			}
		}
		counts[smallest] *= f
	}
	// Non-increasing along axis order, as MPI_Dims_create reports them.
	sort.Sort(sort.Reverse(sort.IntSlice(counts)))
	for i, ax := range free {
		dims[ax] = counts[i]
	}
	return dims, nil
}

// primeFactorsDesc returns the prime factorization of n in descending order.
func primeFactorsDesc(n int) []int {
	var factors []int
	for f := 2; f*f <= n; f++ {
		for n%f == 0 {
			factors = append(factors, f)
			n /= f
		}
	}
	if n > 1 {
		factors = append(factors, n)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(factors)))
	return factors
}

// CartTopology maps ranks onto a periodic cartesian process grid.
//
// The mapping is pure geometry: every rank can compute every other rank's
// coordinates without communication, which is what lets subdomain and
// overlap planning run identically on all ranks. Rank 0 sits at the
// all-zero coordinate and ranks are row-major (last axis fastest), the
// MPI cartesian default. The topology is periodic on every axis; physical
// non-periodicity is layered on top by boundary-condition overwrites.
type CartTopology struct {
	dims []int
	size int
}

// NewCartTopology builds the topology for a process grid with the given
// per-axis process counts.
func NewCartTopology(dims []int) (*CartTopology, error) {
	if len(dims) == 0 {
		return nil, fmt.Errorf("%w: empty dimension list", ErrTopology)
	}
	size := 1
	for i, d := range dims {
		if d < 1 {
			return nil, fmt.Errorf("%w: %d processes on axis %d", ErrTopology, d, i)
		}
		size *= d
	}
	return &CartTopology{dims: append([]int(nil), dims...), size: size}, nil
}

// NDims returns the number of grid axes.
func (t *CartTopology) NDims() int { return len(t.dims) }

// Dims returns the per-axis process counts. The caller must not modify it.
func (t *CartTopology) Dims() []int { return t.dims }

// Size returns the total number of ranks in the grid.
func (t *CartTopology) Size() int { return t.size }

// Coords returns the grid coordinates of a rank.
func (t *CartTopology) Coords(rank int) []int {
	if rank < 0 || rank >= t.size {
		panic(fmt.Sprintf("comm: rank %d out of range [0,%d)", rank, t.size))
	}
	coords := make([]int, len(t.dims))
	for i := len(t.dims) - 1; i >= 0; i-- {
		coords[i] = rank % t.dims[i]
		rank /= t.dims[i]
	}
	return coords
}

// Rank returns the rank at the given coordinates. Coordinates wrap
// periodically, so neighbors of edge processes resolve to the far side.
func (t *CartTopology) Rank(coords []int) int {
	if len(coords) != len(t.dims) {
		panic(fmt.Sprintf("comm: coordinate rank %d does not match topology rank %d",
			len(coords), len(t.dims)))
	}
	rank := 0
	for i, c := range coords {
		c %= t.dims[i]
		if c < 0 {
			c += t.dims[i]
		}
		rank = rank*t.dims[i] + c
	}
	return rank
}

// Shift returns the previous and next neighbor ranks of rank along an
// axis under periodic wraparound.
func (t *CartTopology) Shift(rank, axis int) (prev, next int) {
	coords := t.Coords(rank)
	c := coords[axis]
	coords[axis] = c - 1
	prev = t.Rank(coords)
	coords[axis] = c + 1
	next = t.Rank(coords)
	return prev, next
}
