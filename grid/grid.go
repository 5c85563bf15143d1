// Package grid binds physical grid metadata to a domain decomposition and
// a distributed spectral transform.
//
// A Grid is a regular cartesian grid with constant spacing per axis,
// periodic or non-periodic per axis. Construction is process-free; Setup
// distributes the grid over a process group, after which fields live in
// the decomposition's local shape and move to spectral space with mixed
// FFT/DCT transforms.
package grid

import (
	"errors"
	"fmt"

	"github.com/ctessum/sparse"
	"github.com/notargets/gopencil/backend"
	"github.com/notargets/gopencil/comm"
	"github.com/notargets/gopencil/decomp"
	"github.com/notargets/gopencil/narray"
	"github.com/notargets/gopencil/pfft"
)

// ErrConfig indicates an invalid grid configuration.
var ErrConfig = errors.New("grid: invalid configuration")

// ErrNotSetup is returned by operations that need a decomposition before
// Setup has run, and by spectral operations on grids set up without
// shared axes.
var ErrNotSetup = errors.New("grid: not set up")

// Config describes the global grid.
type Config struct {
	// N is the number of grid points per axis.
	N []int
	// L is the domain extent per axis.
	L []float64
	// Periodic marks the periodic axes; non-periodic axes use cosine
	// transforms with cell-centered values. Nil means periodic everywhere.
	Periodic []bool
}

// SetupConfig describes how a grid is distributed over a process group.
type SetupConfig struct {
	// Halo is the ghost-cell width of the physical decomposition.
	Halo int
	// SharedAxes lists the axes kept local on every rank. Without shared
	// axes no spectral transform path is built.
	SharedAxes []int
	// Backend computes the transform kernels; nil selects the host
	// backend.
	Backend backend.Backend
}

// Grid is an n-dimensional cartesian grid. Zero or one Setup call; all
// other methods are safe for concurrent readers afterwards.
type Grid struct {
	n        []int
	l        []float64
	dx       []float64
	periodic []bool

	dd     *decomp.DomainDecomposition
	pf     *pfft.ParallelFFT
	engine *transformEngine

	// Physical coordinate meshes on the local buffer (halo included and
	// synchronized), owned coordinate vectors, and global vectors.
	x       []*narray.Array[float64]
	xLocal  [][]float64
	xGlobal [][]float64
	// Spectral coordinate vectors, global and restricted to the owned
	// spectral region. Nil without a spectral path.
	kLocal  [][]float64
	kGlobal [][]float64
}

// New validates the grid metadata. The grid has no process knowledge until
// Setup.
func New(cfg Config) (*Grid, error) {
	nDims := len(cfg.N)
	if nDims == 0 {
		return nil, fmt.Errorf("%w: empty grid", ErrConfig)
	}
	if len(cfg.L) != nDims {
		return nil, fmt.Errorf("%w: N has %d axes, L has %d", ErrConfig, nDims, len(cfg.L))
	}
	periodic := cfg.Periodic
	if periodic == nil {
		periodic = make([]bool, nDims)
		for i := range periodic {
			periodic[i] = true
		}
	}
	if len(periodic) != nDims {
		return nil, fmt.Errorf("%w: N has %d axes, Periodic has %d", ErrConfig, nDims, len(periodic))
	}
	g := &Grid{
		n:        append([]int(nil), cfg.N...),
		l:        append([]float64(nil), cfg.L...),
		dx:       make([]float64, nDims),
		periodic: append([]bool(nil), periodic...),
	}
	for i := range cfg.N {
		if cfg.N[i] < 1 {
			return nil, fmt.Errorf("%w: %d grid points on axis %d", ErrConfig, cfg.N[i], i)
		}
		if cfg.L[i] <= 0 {
			return nil, fmt.Errorf("%w: extent %g on axis %d", ErrConfig, cfg.L[i], i)
		}
		g.dx[i] = cfg.L[i] / float64(cfg.N[i])
	}
	return g, nil
}

// Setup distributes the grid over the process group of c and builds the
// coordinate meshes and, when shared axes exist, the spectral transform
// chain.
func (g *Grid) Setup(c comm.Comm, cfg SetupConfig) error {
	b := cfg.Backend
	if b == nil {
		b = backend.NewHost()
	}
	dd, err := decomp.New(c, decomp.Config{
		NGlobal:    g.n,
		Halo:       cfg.Halo,
		SharedAxes: cfg.SharedAxes,
		Device:     b,
	})
	if err != nil {
		return err
	}
	g.dd = dd
	g.engine = &transformEngine{b: b, periodic: g.periodic}

	if cfg.SharedAxes != nil {
		if g.pf, err = pfft.New(dd, pfft.Config{Backend: b}); err != nil {
			return err
		}
	}

	// Cell-centered physical coordinates: the owned vectors per axis, and
	// full local meshes with the halo filled by periodic exchange.
	nDims := len(g.n)
	g.xGlobal = make([][]float64, nDims)
	g.xLocal = make([][]float64, nDims)
	g.x = make([]*narray.Array[float64], nDims)
	sub := dd.MySubdomain
	for i := 0; i < nDims; i++ {
		xg := make([]float64, g.n[i])
		for j := range xg {
			xg[j] = (float64(j) + 0.5) * g.dx[i]
		}
		g.xGlobal[i] = xg
		g.xLocal[i] = xg[sub.GlobalSlice[i].Start:sub.GlobalSlice[i].Stop]

		mesh := narray.New[float64](sub.Shape)
		for j, xv := range g.xLocal[i] {
			band := append([]narray.Slice(nil), sub.InnerSlice...)
			band[i] = narray.Slice{Start: sub.InnerSlice[i].Start + j, Stop: sub.InnerSlice[i].Start + j + 1}
			mesh.FillRegion(band, xv)
		}
		g.x[i] = mesh
	}
	if err := decomp.Sync(dd, g.x...); err != nil {
		return err
	}

	if g.pf != nil {
		g.kGlobal = make([][]float64, nDims)
		g.kLocal = make([][]float64, nDims)
		spec := g.pf.DomainOut().MySubdomain
		for i := 0; i < nDims; i++ {
			g.kGlobal[i] = freqVector(g.n[i], g.dx[i], g.periodic[i])
			g.kLocal[i] = g.kGlobal[i][spec.GlobalSlice[i].Start:spec.GlobalSlice[i].Stop]
		}
	}
	return nil
}

// N returns the global grid points per axis.
func (g *Grid) N() []int { return g.n }

// L returns the domain extent per axis.
func (g *Grid) L() []float64 { return g.l }

// Dx returns the grid spacing per axis.
func (g *Grid) Dx() []float64 { return g.dx }

// DV returns the volume element.
func (g *Grid) DV() float64 {
	dv := 1.0
	for _, d := range g.dx {
		dv *= d
	}
	return dv
}

// Periodic returns the per-axis periodicity.
func (g *Grid) Periodic() []bool { return g.periodic }

// Decomposition returns the physical decomposition, or the spectral one
// when spectral is true.
func (g *Grid) Decomposition(spectral bool) (*decomp.DomainDecomposition, error) {
	if g.dd == nil {
		return nil, ErrNotSetup
	}
	if !spectral {
		return g.dd, nil
	}
	if g.pf == nil {
		return nil, fmt.Errorf("%w: no shared axes, spectral domain unavailable", ErrNotSetup)
	}
	return g.pf.DomainOut(), nil
}

// Subdomain returns the local subdomain in the physical or spectral
// decomposition.
func (g *Grid) Subdomain(spectral bool) (*decomp.Subdomain, error) {
	dd, err := g.Decomposition(spectral)
	if err != nil {
		return nil, err
	}
	return dd.MySubdomain, nil
}

// X returns the physical coordinate meshes on the local buffer, halo
// included.
func (g *Grid) X() []*narray.Array[float64] { return g.x }

// XLocal returns the owned physical coordinate vectors per axis.
func (g *Grid) XLocal() [][]float64 { return g.xLocal }

// XGlobal returns the global physical coordinate vectors per axis.
func (g *Grid) XGlobal() [][]float64 { return g.xGlobal }

// KLocal returns the spectral coordinate vectors of the owned spectral
// region.
func (g *Grid) KLocal() [][]float64 { return g.kLocal }

// KGlobal returns the global spectral coordinate vectors.
func (g *Grid) KGlobal() [][]float64 { return g.kGlobal }

// FFT transforms a physical field to spectral space, Fourier on periodic
// axes and cosine on the rest.
func (g *Grid) FFT(arr *narray.Array[float64]) (*narray.Array[complex128], error) {
	if g.pf == nil {
		return nil, fmt.Errorf("%w: spectral transform unavailable", ErrNotSetup)
	}
	return g.pf.ForwardApply(arr, g.engine.forward)
}

// IFFT transforms a spectral field back to physical space. Physical fields
// recover their values in the real part.
func (g *Grid) IFFT(arr *narray.Array[complex128]) (*narray.Array[complex128], error) {
	if g.pf == nil {
		return nil, fmt.Errorf("%w: spectral transform unavailable", ErrNotSetup)
	}
	return g.pf.BackwardApply(arr, g.engine.backward)
}

// Sync exchanges the halos of the given physical fields.
func (g *Grid) Sync(arrs ...*narray.Array[float64]) error {
	if g.dd == nil {
		return ErrNotSetup
	}
	return decomp.Sync(g.dd, arrs...)
}

// SyncComplex exchanges the halos of the given complex fields.
func (g *Grid) SyncComplex(arrs ...*narray.Array[complex128]) error {
	if g.dd == nil {
		return ErrNotSetup
	}
	return decomp.Sync(g.dd, arrs...)
}

// ApplyBoundaryCondition overwrites one halo edge of arr with a boundary
// value; only ranks at the true global edge write.
func (g *Grid) ApplyBoundaryCondition(arr *narray.Array[float64], value float64, axis int, side decomp.Side) error {
	if g.dd == nil {
		return ErrNotSetup
	}
	return decomp.ApplyBoundaryCondition(g.dd, arr, value, axis, side)
}

// Snapshot returns an immutable host-resident copy of the owned region of
// a physical field.
func (g *Grid) Snapshot(arr *narray.Array[float64]) (*sparse.DenseArray, error) {
	if g.dd == nil {
		return nil, ErrNotSetup
	}
	inner, err := decomp.Snapshot(g.dd, arr)
	if err != nil {
		return nil, err
	}
	out := sparse.ZerosDense(inner.Shape()...)
	copy(out.Elements, inner.Data())
	return out, nil
}
