// Package decomp decomposes a global structured grid across the ranks of a
// cartesian process grid and keeps the decomposed fields consistent.
//
// A DomainDecomposition owns the process grid and one Subdomain per rank;
// it synchronizes halo (ghost) cells between neighbors and applies physical
// boundary conditions on the true global edges. A Transformer redistributes
// field data between two decompositions of the same global grid, which is
// the building block of the distributed spectral transforms in package
// pfft. All planning is deterministic and local: any rank can compute the
// full geometry of any decomposition from the process count alone.
package decomp

import (
	"errors"
	"fmt"

	"github.com/notargets/gopencil/comm"
	"github.com/notargets/gopencil/narray"
)

// ErrConfig indicates an invalid decomposition or call configuration.
// Configuration errors are raised eagerly at construction or call time,
// never deferred to first use.
var ErrConfig = errors.New("decomp: invalid configuration")

// Subdomain describes one rank's slice of the global index space: its
// position in the process grid, the owned region of the global grid, and
// the local buffer layout including halo cells.
//
// Subdomains are pure values computed without communication, so every rank
// holds the subdomains of all ranks, and subdomains from different
// decompositions over the same global grid are directly comparable through
// their global slices.
type Subdomain struct {
	// Rank is the owning rank in the decomposition's process grid.
	Rank int
	// Coord is the rank's position in the process grid.
	Coord []int
	// NGlobal is the global number of grid points per axis.
	NGlobal []int
	// Halo is the number of ghost cells on each side of every axis.
	Halo int

	// IsLeftEdge and IsRightEdge report whether the rank sits at the
	// global edge of each axis.
	IsLeftEdge  []bool
	IsRightEdge []bool

	// InnerShape is the number of owned grid points per axis. Every rank
	// along an axis owns the base count n_global/n_procs; the last rank
	// additionally absorbs the remainder.
	InnerShape []int
	// Shape is InnerShape plus 2*Halo ghost cells per axis.
	Shape []int
	// Position is the global start offset of the owned region per axis.
	Position []int

	// GlobalSlice is the owned region in global coordinates.
	GlobalSlice []narray.Slice
	// InnerSlice is the owned region in local coordinates (halo excluded).
	InnerSlice []narray.Slice
}

// NewSubdomain computes the subdomain of a rank in the given process grid.
// It is a pure function of its inputs; an out-of-range rank is a caller
// error and panics.
func NewSubdomain(rank int, topo *comm.CartTopology, nGlobal []int, halo int) *Subdomain {
	nDims := len(nGlobal)
	coord := topo.Coords(rank)
	nProcs := topo.Dims()

	s := &Subdomain{
		Rank:        rank,
		Coord:       coord,
		NGlobal:     append([]int(nil), nGlobal...),
		Halo:        halo,
		IsLeftEdge:  make([]bool, nDims),
		IsRightEdge: make([]bool, nDims),
		InnerShape:  make([]int, nDims),
		Shape:       make([]int, nDims),
		Position:    make([]int, nDims),
		GlobalSlice: make([]narray.Slice, nDims),
		InnerSlice:  make([]narray.Slice, nDims),
	}
	for i := 0; i < nDims; i++ {
		s.IsLeftEdge[i] = coord[i] == 0
		s.IsRightEdge[i] = coord[i] == nProcs[i]-1

		base := nGlobal[i] / nProcs[i]
		inner := base
		if s.IsRightEdge[i] {
			inner += nGlobal[i] % nProcs[i]
		}
		s.InnerShape[i] = inner
		s.Shape[i] = inner + 2*halo
		s.Position[i] = coord[i] * base
		s.GlobalSlice[i] = narray.Slice{Start: s.Position[i], Stop: s.Position[i] + inner}
		s.InnerSlice[i] = narray.Slice{Start: halo, Stop: halo + inner}
	}
	return s
}

// HasOverlap reports whether the owned regions of two subdomains intersect.
// Subdomains of one decomposition never overlap; subdomains from different
// decompositions over the same global grid may.
func (s *Subdomain) HasOverlap(other *Subdomain) bool {
	for i, me := range s.GlobalSlice {
		you := other.GlobalSlice[i]
		if me.Start >= you.Stop || you.Start >= me.Stop {
			return false
		}
	}
	return true
}

// OverlapSlice returns the intersection of the two owned regions in this
// subdomain's local coordinates. Without an overlap the result is
// degenerate (Start >= Stop on some axis) rather than an error; callers
// gate on HasOverlap.
func (s *Subdomain) OverlapSlice(other *Subdomain) []narray.Slice {
	global := make([]narray.Slice, len(s.GlobalSlice))
	for i, me := range s.GlobalSlice {
		you := other.GlobalSlice[i]
		global[i] = narray.Slice{Start: max(me.Start, you.Start), Stop: min(me.Stop, you.Stop)}
	}
	return s.GlobalToLocal(global)
}

// GlobalToLocal converts a region from global to local coordinates.
func (s *Subdomain) GlobalToLocal(global []narray.Slice) []narray.Slice {
	local := make([]narray.Slice, len(global))
	for i, g := range global {
		off := s.Position[i] - s.Halo
		local[i] = narray.Slice{Start: g.Start - off, Stop: g.Stop - off}
	}
	return local
}

// LocalToGlobal converts a region from local to global coordinates.
func (s *Subdomain) LocalToGlobal(local []narray.Slice) []narray.Slice {
	global := make([]narray.Slice, len(local))
	for i, l := range local {
		off := s.Position[i] - s.Halo
		global[i] = narray.Slice{Start: l.Start + off, Stop: l.Stop + off}
	}
	return global
}

func validateConfig(cfg Config) error {
	if len(cfg.NGlobal) == 0 {
		return fmt.Errorf("%w: empty global shape", ErrConfig)
	}
	for i, n := range cfg.NGlobal {
		if n < 1 {
			return fmt.Errorf("%w: global extent %d on axis %d", ErrConfig, n, i)
		}
	}
	if cfg.Halo < 0 {
		return fmt.Errorf("%w: negative halo %d", ErrConfig, cfg.Halo)
	}
	for _, ax := range cfg.SharedAxes {
		if ax < 0 || ax >= len(cfg.NGlobal) {
			return fmt.Errorf("%w: shared axis %d out of range [0,%d)", ErrConfig, ax, len(cfg.NGlobal))
		}
	}
	return nil
}
