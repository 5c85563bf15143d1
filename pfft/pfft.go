// Package pfft performs spectral transforms on domain-decomposed fields.
//
// A distributed n-D transform cannot run in one shot because no rank holds
// a full line along a split axis. ParallelFFT therefore builds a chain of
// pencil decompositions: at every link the field is fully local along a
// fresh group of axes, those axes are transformed, and a Transformer
// redistributes the field to the next link. The chain is planned once at
// construction and both directions reuse it.
package pfft

import (
	"errors"
	"fmt"
	"sort"

	"github.com/notargets/gopencil/backend"
	"github.com/notargets/gopencil/decomp"
	"github.com/notargets/gopencil/narray"
)

// ErrConfig indicates an invalid transform configuration.
var ErrConfig = errors.New("pfft: invalid configuration")

// Apply is a per-step transform: it modifies arr in place along the given
// axes. The axes are fully local to the rank when Apply is called.
type Apply func(arr *narray.Array[complex128], axes []int)

// Config describes the spectral side of a ParallelFFT.
type Config struct {
	// SharedAxesOut lists the axes requested shared in the output domain.
	// Missing entries are filled from the axes left over after the input
	// domain's shared axes are excluded.
	SharedAxesOut []int
	// HaloOut is the halo width of the output domain.
	HaloOut int
	// Backend computes the 1-D transform kernels; nil selects the host
	// backend. The backend also serves as the device fence of the domains
	// the chain constructs.
	Backend backend.Backend
}

// ParallelFFT transforms fields between a physical decomposition and a
// spectral one.
type ParallelFFT struct {
	domainIn  *decomp.DomainDecomposition
	domainOut *decomp.DomainDecomposition
	backend   backend.Backend

	// forward[i] moves link i to link i+1 of the forward chain; backward
	// is the mirrored chain in application order. fftAxes[i] is the axis
	// group transformed before forward link i, with one trailing group
	// applied in the output domain. Every axis appears in exactly one
	// group.
	forward  []*decomp.Transformer
	backward []*decomp.Transformer
	fftAxes  [][]int
}

// New plans the transform chain for fields decomposed by domainIn.
//
// The input domain must share at least one axis; each intermediate link
// shares as many axes as the input domain does, so the chain is as short
// as the input decomposition allows.
func New(domainIn *decomp.DomainDecomposition, cfg Config) (*ParallelFFT, error) {
	nDims := domainIn.NDims
	sharedIn := domainIn.SharedAxes
	nShared := len(sharedIn)
	if nShared == 0 {
		return nil, fmt.Errorf("%w: input domain shares no axis", ErrConfig)
	}
	if len(cfg.SharedAxesOut) > nShared {
		return nil, fmt.Errorf("%w: %d output shared axes requested, input domain shares only %d",
			ErrConfig, len(cfg.SharedAxesOut), nShared)
	}
	for _, ax := range cfg.SharedAxesOut {
		if ax < 0 || ax >= nDims {
			return nil, fmt.Errorf("%w: output shared axis %d out of range [0,%d)", ErrConfig, ax, nDims)
		}
	}
	b := cfg.Backend
	if b == nil {
		b = backend.NewHost()
	}

	// Fill the output shared set up to the input's count, preferring the
	// axes that are in neither set, then the input's own shared axes.
	sharedOut := append([]int(nil), cfg.SharedAxesOut...)
	pool := append(append([]int(nil), sharedIn...), axesOutside(nDims, sharedIn, sharedOut)...)
	for len(sharedOut) < nShared {
		pool2 := pool[:0]
		for _, ax := range pool {
			if !contains(sharedOut, ax) {
				pool2 = append(pool2, ax)
			}
		}
		pool = pool2
		sharedOut = append(sharedOut, pool[len(pool)-1])
		pool = pool[:len(pool)-1]
	}

	newDomain := func(halo int, shared []int) (*decomp.DomainDecomposition, error) {
		return decomp.New(domainIn.Comm, decomp.Config{
			NGlobal:    domainIn.NGlobal,
			Halo:       halo,
			SharedAxes: shared,
			Device:     b,
		})
	}
	domainOut, err := newDomain(cfg.HaloOut, sharedOut)
	if err != nil {
		return nil, err
	}

	// Group the axes shared by neither end into intermediate links. Each
	// link carries up to nShared fresh axes; the last one is padded with
	// output shared axes so that its decomposition stays feasible.
	missing := axesOutside(nDims, sharedIn, sharedOut)
	var mids [][]int
	for i := 0; i < len(missing); i += nShared {
		end := min(i+nShared, len(missing))
		mids = append(mids, append([]int(nil), missing[i:end]...))
	}
	if len(mids) > 0 {
		last := append(mids[len(mids)-1], sharedOut...)
		if len(last) > nShared {
			last = last[:nShared]
		}
		mids[len(mids)-1] = last
	}

	// Halo-free twins of every link, the ends included, keep ghost cells
	// out of the transforms. The chain ends swap in the real input and
	// output domains so that their halos are serviced.
	allShared := append(append([][]int{sharedIn}, mids...), sharedOut)
	links := make([]*decomp.DomainDecomposition, len(allShared))
	for i, shared := range allShared {
		if links[i], err = newDomain(0, shared); err != nil {
			return nil, err
		}
	}
	nTr := len(mids) + 1

	p := &ParallelFFT{
		domainIn:  domainIn,
		domainOut: domainOut,
		backend:   b,
		forward:   make([]*decomp.Transformer, nTr),
		backward:  make([]*decomp.Transformer, nTr),
	}
	fwd := append(append([]*decomp.DomainDecomposition(nil), links[:len(links)-1]...), domainOut)
	bwd := append([]*decomp.DomainDecomposition{domainIn}, links[1:]...)
	for i := 0; i < nTr; i++ {
		if p.forward[i], err = decomp.NewTransformer(fwd[i], fwd[i+1]); err != nil {
			return nil, err
		}
		if p.backward[nTr-1-i], err = decomp.NewTransformer(bwd[i], bwd[i+1]); err != nil {
			return nil, err
		}
	}

	// Assign every axis to the first link whose decomposition holds it
	// fully local, so no axis is transformed twice.
	remaining := axesOutside(nDims, nil, nil)
	takeGroup := func(shared []int) []int {
		var group []int
		rest := remaining[:0]
		for _, ax := range remaining {
			if contains(shared, ax) {
				group = append(group, ax)
			} else {
				rest = append(rest, ax)
			}
		}
		remaining = rest
		return group
	}
	p.fftAxes = append(p.fftAxes, takeGroup(sharedIn))
	for _, mid := range mids {
		p.fftAxes = append(p.fftAxes, takeGroup(mid))
	}
	p.fftAxes = append(p.fftAxes, takeGroup(sharedOut))
	return p, nil
}

// axesOutside returns the axes of [0,nDims) that appear in neither a nor
// b, in ascending order.
func axesOutside(nDims int, a, b []int) []int {
	var axes []int
	for ax := 0; ax < nDims; ax++ {
		if !contains(a, ax) && !contains(b, ax) {
			axes = append(axes, ax)
		}
	}
	sort.Ints(axes)
	return axes
}

func contains(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// DomainIn returns the physical-side decomposition.
func (p *ParallelFFT) DomainIn() *decomp.DomainDecomposition { return p.domainIn }

// DomainOut returns the spectral-side decomposition.
func (p *ParallelFFT) DomainOut() *decomp.DomainDecomposition { return p.domainOut }

// Backend returns the transform backend the chain was planned with.
func (p *ParallelFFT) Backend() backend.Backend { return p.backend }

// Forward transforms a real field from the input domain to the spectral
// output domain.
func (p *ParallelFFT) Forward(arr *narray.Array[float64]) (*narray.Array[complex128], error) {
	return p.ForwardApply(arr, func(a *narray.Array[complex128], axes []int) {
		FFTN(p.backend, a, axes)
	})
}

// ForwardComplex is Forward for a field that is already complex.
func (p *ParallelFFT) ForwardComplex(arr *narray.Array[complex128]) (*narray.Array[complex128], error) {
	if !arr.ShapeEqual(p.domainIn.MySubdomain.Shape) {
		return nil, fmt.Errorf("%w: input shape %v, domain needs %v",
			ErrConfig, arr.Shape(), p.domainIn.MySubdomain.Shape)
	}
	return p.forwardFrom(stripHalo(p.domainIn, arr), func(a *narray.Array[complex128], axes []int) {
		FFTN(p.backend, a, axes)
	})
}

// Backward transforms a spectral field back to the input domain. The
// result is complex; physical fields recover their values in the real
// part.
func (p *ParallelFFT) Backward(arr *narray.Array[complex128]) (*narray.Array[complex128], error) {
	return p.BackwardApply(arr, func(a *narray.Array[complex128], axes []int) {
		IFFTN(p.backend, a, axes)
	})
}

// ForwardApply runs the forward chain with a custom per-step transform,
// for example a cosine transform on non-periodic axes and an FFT on the
// rest. arr is a real field in the input domain's local shape; the halo is
// stripped before the first step.
func (p *ParallelFFT) ForwardApply(arr *narray.Array[float64], apply Apply) (*narray.Array[complex128], error) {
	if !arr.ShapeEqual(p.domainIn.MySubdomain.Shape) {
		return nil, fmt.Errorf("%w: input shape %v, domain needs %v",
			ErrConfig, arr.Shape(), p.domainIn.MySubdomain.Shape)
	}
	return p.forwardFrom(narray.ToComplex(arr.Extract(p.domainIn.MySubdomain.InnerSlice)), apply)
}

func (p *ParallelFFT) forwardFrom(out *narray.Array[complex128], apply Apply) (*narray.Array[complex128], error) {
	var err error
	for i, tr := range p.forward {
		apply(out, p.fftAxes[i])
		if out, err = decomp.Forward(tr, out, nil); err != nil {
			return nil, err
		}
	}
	return p.finish(p.domainOut, out, p.fftAxes[len(p.fftAxes)-1], apply)
}

// BackwardApply runs the backward chain with a custom per-step transform.
// arr is a spectral field in the output domain's local shape.
func (p *ParallelFFT) BackwardApply(arr *narray.Array[complex128], apply Apply) (*narray.Array[complex128], error) {
	if !arr.ShapeEqual(p.domainOut.MySubdomain.Shape) {
		return nil, fmt.Errorf("%w: input shape %v, domain needs %v",
			ErrConfig, arr.Shape(), p.domainOut.MySubdomain.Shape)
	}
	out := stripHalo(p.domainOut, arr)
	nTr := len(p.backward)
	var err error
	for i, tr := range p.backward {
		apply(out, p.fftAxes[nTr-i])
		if out, err = decomp.Backward(tr, out, nil); err != nil {
			return nil, err
		}
	}
	return p.finish(p.domainIn, out, p.fftAxes[0], apply)
}

// finish applies the last axis group inside the owned region of the
// arrival domain and refreshes its halo.
func (p *ParallelFFT) finish(d *decomp.DomainDecomposition, out *narray.Array[complex128],
	axes []int, apply Apply) (*narray.Array[complex128], error) {

	if len(axes) == 0 {
		return out, nil
	}
	if d.Halo == 0 {
		apply(out, axes)
		return out, nil
	}
	inner := out.Extract(d.MySubdomain.InnerSlice)
	apply(inner, axes)
	out.Insert(d.MySubdomain.InnerSlice, inner)
	if err := decomp.Sync(d, out); err != nil {
		return nil, err
	}
	return out, nil
}

func stripHalo(d *decomp.DomainDecomposition, arr *narray.Array[complex128]) *narray.Array[complex128] {
	if d.Halo == 0 {
		return arr.Clone()
	}
	return arr.Extract(d.MySubdomain.InnerSlice)
}
