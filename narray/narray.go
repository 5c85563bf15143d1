// Package narray provides dense n-dimensional arrays with hyperrectangle
// slicing and contiguous gather/scatter staging copies.
//
// The package exists to serve the domain-decomposition core: local field
// buffers (owned region plus halo) are n-dimensional, message payloads must
// be contiguous, and redistribution between decompositions moves arbitrary
// hyperrectangles between arrays of different shapes. Arrays are row-major
// (last axis fastest) and are either float64 or complex128.
package narray

import (
	"fmt"
	"unsafe"
)

// Elem is the set of element types a field array can hold.
type Elem interface {
	~float64 | ~complex128
}

// Slice is a half-open index interval [Start, Stop) along one axis.
// A Slice with Start >= Stop selects no elements.
type Slice struct {
	Start, Stop int
}

// Len returns the number of indices the slice selects.
func (s Slice) Len() int {
	if s.Stop <= s.Start {
		return 0
	}
	return s.Stop - s.Start
}

// FullRegion returns the region selecting every element of an array with
// the given shape.
func FullRegion(shape []int) []Slice {
	r := make([]Slice, len(shape))
	for i, n := range shape {
		r[i] = Slice{0, n}
	}
	return r
}

// RegionShape returns the per-axis extents of a region.
func RegionShape(r []Slice) []int {
	shape := make([]int, len(r))
	for i, s := range r {
		shape[i] = s.Len()
	}
	return shape
}

// RegionSize returns the total number of elements a region selects.
func RegionSize(r []Slice) int {
	size := 1
	for _, s := range r {
		size *= s.Len()
	}
	return size
}

// Array is a dense row-major n-dimensional array.
type Array[T Elem] struct {
	shape   []int
	strides []int
	data    []T
}

// New allocates a zero-filled array with the given shape.
func New[T Elem](shape []int) *Array[T] {
	size := 1
	for i, n := range shape {
		if n < 0 {
			panic(fmt.Sprintf("narray: negative extent %d on axis %d", n, i))
		}
		size *= n
	}
	return FromData(shape, make([]T, size))
}

// FromData wraps an existing backing slice. The slice length must match the
// product of the shape extents.
func FromData[T Elem](shape []int, data []T) *Array[T] {
	size := 1
	for _, n := range shape {
		size *= n
	}
	if len(data) != size {
		panic(fmt.Sprintf("narray: data length %d does not match shape %v", len(data), shape))
	}
	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	a := &Array[T]{
		shape:   append([]int(nil), shape...),
		strides: strides,
		data:    data,
	}
	return a
}

// Shape returns the per-axis extents. The caller must not modify it.
func (a *Array[T]) Shape() []int { return a.shape }

// Strides returns the per-axis element strides. The caller must not modify it.
func (a *Array[T]) Strides() []int { return a.strides }

// NDims returns the number of axes.
func (a *Array[T]) NDims() int { return len(a.shape) }

// Size returns the total number of elements.
func (a *Array[T]) Size() int { return len(a.data) }

// Data returns the backing slice in row-major order.
func (a *Array[T]) Data() []T { return a.data }

// At returns the element at the given index.
func (a *Array[T]) At(idx ...int) T {
	return a.data[a.offset(idx)]
}

// Set stores v at the given index.
func (a *Array[T]) Set(v T, idx ...int) {
	a.data[a.offset(idx)] = v
}

func (a *Array[T]) offset(idx []int) int {
	if len(idx) != len(a.shape) {
		panic(fmt.Sprintf("narray: index rank %d does not match array rank %d", len(idx), len(a.shape)))
	}
	off := 0
	for i, j := range idx {
		if j < 0 || j >= a.shape[i] {
			panic(fmt.Sprintf("narray: index %d out of range [0,%d) on axis %d", j, a.shape[i], i))
		}
		off += j * a.strides[i]
	}
	return off
}

// Clone returns a deep copy.
func (a *Array[T]) Clone() *Array[T] {
	return FromData(a.shape, append([]T(nil), a.data...))
}

// Fill sets every element to v.
func (a *Array[T]) Fill(v T) {
	for i := range a.data {
		a.data[i] = v
	}
}

func (a *Array[T]) checkRegion(r []Slice) {
	if len(r) != len(a.shape) {
		panic(fmt.Sprintf("narray: region rank %d does not match array rank %d", len(r), len(a.shape)))
	}
	for i, s := range r {
		if s.Len() == 0 {
			continue
		}
		if s.Start < 0 || s.Stop > a.shape[i] {
			panic(fmt.Sprintf("narray: region [%d,%d) out of range [0,%d) on axis %d",
				s.Start, s.Stop, a.shape[i], i))
		}
	}
}

// forEachRun visits the region as contiguous memory runs: fn is called with
// the offset of each run in the backing slice and the run length. Runs are
// visited in row-major order.
func (a *Array[T]) forEachRun(r []Slice, fn func(off, n int)) {
	a.checkRegion(r)
	nd := len(r)
	if nd == 0 {
		fn(0, 1)
		return
	}
	for _, s := range r {
		if s.Len() == 0 {
			return
		}
	}
	run := r[nd-1].Len()
	base := 0
	for i, s := range r {
		base += s.Start * a.strides[i]
	}
	if nd == 1 {
		fn(base, run)
		return
	}
	// Odometer over all axes except the innermost.
	idx := make([]int, nd-1)
	for {
		off := base
		for i, j := range idx {
			off += j * a.strides[i]
		}
		fn(off, run)
		axis := nd - 2
		for axis >= 0 {
			idx[axis]++
			if idx[axis] < r[axis].Len() {
				break
			}
			idx[axis] = 0
			axis--
		}
		if axis < 0 {
			return
		}
	}
}

// Gather copies the region into a contiguous buffer in row-major order.
// If dst is nil a buffer of the right size is allocated. The buffer is
// returned.
func (a *Array[T]) Gather(r []Slice, dst []T) []T {
	size := RegionSize(r)
	if dst == nil {
		dst = make([]T, size)
	}
	if len(dst) != size {
		panic(fmt.Sprintf("narray: gather buffer length %d does not match region size %d", len(dst), size))
	}
	pos := 0
	a.forEachRun(r, func(off, n int) {
		copy(dst[pos:pos+n], a.data[off:off+n])
		pos += n
	})
	return dst
}

// Scatter copies a contiguous row-major buffer into the region.
func (a *Array[T]) Scatter(r []Slice, src []T) {
	size := RegionSize(r)
	if len(src) != size {
		panic(fmt.Sprintf("narray: scatter buffer length %d does not match region size %d", len(src), size))
	}
	pos := 0
	a.forEachRun(r, func(off, n int) {
		copy(a.data[off:off+n], src[pos:pos+n])
		pos += n
	})
}

// FillRegion sets every element of the region to v.
func (a *Array[T]) FillRegion(r []Slice, v T) {
	a.forEachRun(r, func(off, n int) {
		for i := off; i < off+n; i++ {
			a.data[i] = v
		}
	})
}

// Extract returns a new contiguous array holding a copy of the region.
func (a *Array[T]) Extract(r []Slice) *Array[T] {
	out := New[T](RegionShape(r))
	a.Gather(r, out.data)
	return out
}

// Insert copies src into the region. The region shape must match src's shape.
func (a *Array[T]) Insert(r []Slice, src *Array[T]) {
	shape := RegionShape(r)
	for i, n := range shape {
		if src.shape[i] != n {
			panic(fmt.Sprintf("narray: insert shape %v does not match region shape %v", src.shape, shape))
		}
	}
	a.Scatter(r, src.data)
}

// CopyRegion copies the source region of src into the destination region of
// dst. The two regions must have identical shapes. dst and src may be the
// same array as long as the regions do not overlap.
func CopyRegion[T Elem](dst *Array[T], dr []Slice, src *Array[T], sr []Slice) {
	dshape, sshape := RegionShape(dr), RegionShape(sr)
	for i := range dshape {
		if dshape[i] != sshape[i] {
			panic(fmt.Sprintf("narray: region shapes %v and %v differ", dshape, sshape))
		}
	}
	dst.Scatter(dr, src.Gather(sr, nil))
}

// ShapeEqual reports whether the array's shape equals the given extents.
func (a *Array[T]) ShapeEqual(shape []int) bool {
	if len(a.shape) != len(shape) {
		return false
	}
	for i, n := range shape {
		if a.shape[i] != n {
			return false
		}
	}
	return true
}

// ToComplex returns a complex copy of a real array.
func ToComplex(a *Array[float64]) *Array[complex128] {
	out := New[complex128](a.shape)
	for i, v := range a.data {
		out.data[i] = complex(v, 0)
	}
	return out
}

// Real returns the real parts of a complex array.
func Real(a *Array[complex128]) *Array[float64] {
	out := New[float64](a.shape)
	for i, v := range a.data {
		out.data[i] = real(v)
	}
	return out
}

// Bytes reinterprets an element slice as its raw bytes. The returned slice
// aliases s; it is used to stage typed buffers through the byte-oriented
// transport without copying.
func Bytes[T Elem](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*int(unsafe.Sizeof(s[0])))
}
