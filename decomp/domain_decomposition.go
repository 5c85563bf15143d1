package decomp

import (
	"fmt"

	"github.com/notargets/gopencil/comm"
	"github.com/notargets/gopencil/narray"
)

// Side selects one edge of an axis for boundary-condition application.
type Side string

const (
	Left  Side = "left"
	Right Side = "right"
)

// DeviceSyncer fences outstanding device work. When field buffers live in
// accelerator memory, the fence must complete before a buffer crossing the
// process boundary is read and after one is written; host-resident arrays
// need no fence and leave Device nil.
type DeviceSyncer interface {
	Synchronize() error
}

// Config describes a domain decomposition.
type Config struct {
	// NGlobal is the global number of grid points per axis.
	NGlobal []int
	// Halo is the ghost-cell width on both sides of every axis.
	Halo int
	// SharedAxes lists axes forced to a single process, keeping them fully
	// local for transforms or reductions. The decomposition may end up
	// sharing more axes than requested, never fewer.
	SharedAxes []int
	// Reorder permits rank reordering for locality when the transport
	// supports it. The in-process transport keeps the identity order.
	Reorder bool
	// Device is the optional device fence for accelerator-resident arrays.
	Device DeviceSyncer
}

// DomainDecomposition partitions the global grid over a periodic cartesian
// process grid and services halo exchange and boundary conditions for the
// local field buffers.
//
// The decomposition is immutable after construction. Several
// decompositions with different shared axes may coexist over the same
// global grid; Transformer moves data between them.
type DomainDecomposition struct {
	// NDims is the number of grid axes.
	NDims int
	// NGlobal is the global number of grid points per axis.
	NGlobal []int
	// Halo is the ghost-cell width.
	Halo int
	// NProcs is the number of processes along each axis.
	NProcs []int
	// SharedAxes lists the axes with exactly one process, recomputed from
	// the final process grid.
	SharedAxes []int

	// Comm is the rank's transport handle; Topo the process-grid geometry.
	Comm comm.Comm
	Topo *comm.CartTopology

	// Size and Rank mirror the transport for convenience.
	Size, Rank int

	// AllSubdomains holds every rank's subdomain, indexed by rank.
	AllSubdomains []*Subdomain
	// MySubdomain is AllSubdomains[Rank].
	MySubdomain *Subdomain

	device DeviceSyncer

	// Halo-exchange geometry, per axis. The four regions are halo-wide
	// bands at the edges of the local buffer:
	//
	//        sendToPrev              sendToNext
	//   |        v                        v        |
	//   |----|--------+--------------+--------|----|
	//   | ^                                      ^ |
	// recvFromPrev                         recvFromNext
	prevRank, nextRank                                 []int
	sendToNext, sendToPrev, recvFromNext, recvFromPrev [][]narray.Slice
}

// New builds a domain decomposition over the process group of c.
//
// Axes in cfg.SharedAxes and axes with a single global grid point are
// pinned to one process; the remaining axes receive a balanced
// factorization of the group size. Construction fails with ErrConfig when
// a split axis would own fewer grid points than the halo width, and with
// comm.ErrTopology when the process grid cannot be built.
func New(c comm.Comm, cfg Config) (*DomainDecomposition, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	nDims := len(cfg.NGlobal)

	constraints := make([]int, nDims)
	for _, ax := range cfg.SharedAxes {
		constraints[ax] = 1
	}
	for i, n := range cfg.NGlobal {
		if n == 1 {
			constraints[i] = 1
		}
	}
	dims, err := comm.ComputeDims(c.Size(), constraints)
	if err != nil {
		return nil, err
	}
	topo, err := comm.NewCartTopology(dims)
	if err != nil {
		return nil, err
	}

	var shared []int
	for i, d := range dims {
		if d == 1 {
			shared = append(shared, i)
		}
	}

	d := &DomainDecomposition{
		NDims:      nDims,
		NGlobal:    append([]int(nil), cfg.NGlobal...),
		Halo:       cfg.Halo,
		NProcs:     dims,
		SharedAxes: shared,
		Comm:       c,
		Topo:       topo,
		Size:       c.Size(),
		Rank:       c.Rank(),
		device:     cfg.Device,
	}

	d.AllSubdomains = make([]*Subdomain, d.Size)
	for r := 0; r < d.Size; r++ {
		d.AllSubdomains[r] = NewSubdomain(r, topo, d.NGlobal, d.Halo)
	}
	d.MySubdomain = d.AllSubdomains[d.Rank]

	// A split axis must own at least halo points on every rank, or the
	// exchange bands would reach past the neighbor.
	for i := 0; i < nDims; i++ {
		if dims[i] > 1 && d.NGlobal[i]/dims[i] < d.Halo {
			return nil, fmt.Errorf("%w: axis %d owns %d points per process, halo needs %d; "+
				"use fewer processes or a smaller halo", ErrConfig, i, d.NGlobal[i]/dims[i], d.Halo)
		}
	}

	d.prevRank = make([]int, nDims)
	d.nextRank = make([]int, nDims)
	d.sendToNext = make([][]narray.Slice, nDims)
	d.sendToPrev = make([][]narray.Slice, nDims)
	d.recvFromNext = make([][]narray.Slice, nDims)
	d.recvFromPrev = make([][]narray.Slice, nDims)
	h := d.Halo
	for i := 0; i < nDims; i++ {
		d.prevRank[i], d.nextRank[i] = topo.Shift(d.Rank, i)
		n := d.MySubdomain.Shape[i]
		d.sendToNext[i] = d.axisBand(i, narray.Slice{Start: n - 2*h, Stop: n - h})
		d.sendToPrev[i] = d.axisBand(i, narray.Slice{Start: h, Stop: 2 * h})
		d.recvFromNext[i] = d.axisBand(i, narray.Slice{Start: n - h, Stop: n})
		d.recvFromPrev[i] = d.axisBand(i, narray.Slice{Start: 0, Stop: h})
	}
	return d, nil
}

// axisBand returns the full local region restricted to band s on one axis.
func (d *DomainDecomposition) axisBand(axis int, s narray.Slice) []narray.Slice {
	r := narray.FullRegion(d.MySubdomain.Shape)
	r[axis] = s
	return r
}

func (d *DomainDecomposition) syncDevice() error {
	if d.device == nil {
		return nil
	}
	return d.device.Synchronize()
}

// Sync exchanges the halo regions of the given arrays with the neighboring
// ranks along every axis. See SyncAxes.
func Sync[T narray.Elem](d *DomainDecomposition, arrs ...*narray.Array[T]) error {
	return SyncAxes(d, nil, arrs...)
}

// SyncAxes exchanges the halo regions of the given arrays along every axis
// not listed in skipAxes. The exchange is periodic in all directions;
// physical boundary conditions overwrite the received halo afterwards via
// ApplyBoundaryCondition.
//
// Axes are synchronized strictly one after another so that corner cells
// pick up diagonal contributions. Within one axis, both directions of all
// arrays are exchanged as one batch of non-blocking messages and the call
// blocks until every message has completed; the arrays are never observed
// in a partially synchronized state. Axes with a single process wrap
// locally without messaging.
func SyncAxes[T narray.Elem](d *DomainDecomposition, skipAxes []int, arrs ...*narray.Array[T]) error {
	if d.Halo == 0 || len(arrs) == 0 {
		return nil
	}
	for k, arr := range arrs {
		if !arr.ShapeEqual(d.MySubdomain.Shape) {
			return fmt.Errorf("%w: array %d has shape %v, subdomain needs %v",
				ErrConfig, k, arr.Shape(), d.MySubdomain.Shape)
		}
	}
	skip := make(map[int]bool, len(skipAxes))
	for _, ax := range skipAxes {
		skip[ax] = true
	}
	if err := d.syncDevice(); err != nil {
		return err
	}
	for axis := 0; axis < d.NDims; axis++ {
		if skip[axis] {
			continue
		}
		if d.NProcs[axis] == 1 {
			for _, arr := range arrs {
				wrapAxis(d, axis, arr)
			}
			continue
		}
		if err := exchangeAxis(d, axis, arrs); err != nil {
			return err
		}
	}
	return d.syncDevice()
}

// exchangeAxis runs the four-way neighbor exchange of one axis for a batch
// of arrays: send-to-next, send-to-prev, recv-from-next, recv-from-prev per
// array, issued together and resolved together.
func exchangeAxis[T narray.Elem](d *DomainDecomposition, axis int, arrs []*narray.Array[T]) error {
	nArr := len(arrs)
	reqs := make([]comm.Request, 0, 4*nArr)
	recvNext := make([][]T, nArr)
	recvPrev := make([][]T, nArr)
	for j, arr := range arrs {
		// Tags encode (axis, array, direction) so that exchanges from a
		// neighbor that has already advanced to a later axis cannot match
		// this axis's receives.
		tagNext := syncTag(axis, nArr, j, 0)
		tagPrev := syncTag(axis, nArr, j, 1)

		reqs = append(reqs,
			d.Comm.Isend(d.nextRank[axis], tagNext, narray.Bytes(arr.Gather(d.sendToNext[axis], nil))),
			d.Comm.Isend(d.prevRank[axis], tagPrev, narray.Bytes(arr.Gather(d.sendToPrev[axis], nil))))

		recvNext[j] = make([]T, narray.RegionSize(d.recvFromNext[axis]))
		recvPrev[j] = make([]T, narray.RegionSize(d.recvFromPrev[axis]))
		reqs = append(reqs,
			d.Comm.Irecv(d.nextRank[axis], tagPrev, narray.Bytes(recvNext[j])),
			d.Comm.Irecv(d.prevRank[axis], tagNext, narray.Bytes(recvPrev[j])))
	}
	if err := comm.WaitAll(reqs...); err != nil {
		return err
	}
	for j, arr := range arrs {
		arr.Scatter(d.recvFromNext[axis], recvNext[j])
		arr.Scatter(d.recvFromPrev[axis], recvPrev[j])
	}
	return nil
}

func syncTag(axis, nArr, arr, dir int) int {
	return ((axis*nArr + arr) << 1) | dir
}

// wrapAxis fills the halo of a single-process axis by periodic wraparound
// without messaging. When the axis owns at least halo points the two halo
// bands are direct copies of the opposite inner edges; shorter axes fall
// back to a plane-by-plane wrap fill, since a single band would reach past
// the owned extent.
func wrapAxis[T narray.Elem](d *DomainDecomposition, axis int, arr *narray.Array[T]) {
	h := d.Halo
	inner := d.MySubdomain.InnerShape[axis]
	if inner >= h {
		narray.CopyRegion(arr, d.recvFromNext[axis], arr, d.sendToPrev[axis])
		narray.CopyRegion(arr, d.recvFromPrev[axis], arr, d.sendToNext[axis])
		return
	}
	n := d.MySubdomain.Shape[axis]
	for t := 0; t < n; t++ {
		if t >= h && t < h+inner {
			continue
		}
		src := h + mod(t-h, inner)
		narray.CopyRegion(arr,
			d.axisBand(axis, narray.Slice{Start: t, Stop: t + 1}),
			arr,
			d.axisBand(axis, narray.Slice{Start: src, Stop: src + 1}))
	}
}

func mod(a, n int) int {
	m := a % n
	if m < 0 {
		m += n
	}
	return m
}

// ApplyBoundaryCondition overwrites one halo band of arr with a constant
// boundary value. Only the ranks at the true global edge of the axis
// write; all other ranks are no-ops, so the call is collective-safe.
func ApplyBoundaryCondition[T narray.Elem](d *DomainDecomposition, arr *narray.Array[T], value T, axis int, side Side) error {
	if axis < 0 || axis >= d.NDims {
		return fmt.Errorf("%w: axis %d out of range [0,%d)", ErrConfig, axis, d.NDims)
	}
	if !arr.ShapeEqual(d.MySubdomain.Shape) {
		return fmt.Errorf("%w: array shape %v, subdomain needs %v",
			ErrConfig, arr.Shape(), d.MySubdomain.Shape)
	}
	var region []narray.Slice
	switch side {
	case Left:
		if !d.MySubdomain.IsLeftEdge[axis] {
			return nil
		}
		region = d.recvFromPrev[axis]
	case Right:
		if !d.MySubdomain.IsRightEdge[axis] {
			return nil
		}
		region = d.recvFromNext[axis]
	default:
		return fmt.Errorf("%w: side %q is neither %q nor %q", ErrConfig, side, Left, Right)
	}
	if d.Halo == 0 {
		return nil
	}
	arr.FillRegion(region, value)
	return nil
}

// Snapshot returns an immutable host-resident copy of the owned region of
// arr (halo stripped), fencing device work first.
func Snapshot[T narray.Elem](d *DomainDecomposition, arr *narray.Array[T]) (*narray.Array[T], error) {
	if !arr.ShapeEqual(d.MySubdomain.Shape) {
		return nil, fmt.Errorf("%w: array shape %v, subdomain needs %v",
			ErrConfig, arr.Shape(), d.MySubdomain.Shape)
	}
	if err := d.syncDevice(); err != nil {
		return nil, err
	}
	return arr.Extract(d.MySubdomain.InnerSlice), nil
}
