package pfft

import (
	"github.com/notargets/gopencil/backend"
	"github.com/notargets/gopencil/narray"
)

// applyAlongAxis runs op over every line of arr along one axis, in place.
// Lines are staged through a contiguous buffer since the backend kernels
// work on unit-stride data.
func applyAlongAxis(arr *narray.Array[complex128], axis int, op func([]complex128)) {
	if arr.Size() == 0 {
		return
	}
	shape := arr.Shape()
	strides := arr.Strides()
	data := arr.Data()
	n := shape[axis]
	stride := strides[axis]
	line := make([]complex128, n)

	nd := len(shape)
	idx := make([]int, nd)
	for {
		off := 0
		for i, j := range idx {
			off += j * strides[i]
		}
		for k := 0; k < n; k++ {
			line[k] = data[off+k*stride]
		}
		op(line)
		for k := 0; k < n; k++ {
			data[off+k*stride] = line[k]
		}

		// Odometer over the remaining axes, last axis fastest.
		i := nd - 1
		for i >= 0 {
			if i == axis {
				i--
				continue
			}
			idx[i]++
			if idx[i] < shape[i] {
				break
			}
			idx[i] = 0
			i--
		}
		if i < 0 {
			return
		}
	}
}

func applyAlongAxes(b backend.Backend, arr *narray.Array[complex128], axes []int, op func(backend.Backend, []complex128)) {
	for _, axis := range axes {
		applyAlongAxis(arr, axis, func(line []complex128) { op(b, line) })
	}
}

// FFTN applies the forward Fourier transform along the given axes of arr,
// in place.
func FFTN(b backend.Backend, arr *narray.Array[complex128], axes []int) {
	applyAlongAxes(b, arr, axes, backend.Backend.FFT)
}

// IFFTN applies the inverse Fourier transform along the given axes of arr,
// in place.
func IFFTN(b backend.Backend, arr *narray.Array[complex128], axes []int) {
	applyAlongAxes(b, arr, axes, backend.Backend.IFFT)
}

// DCT2N applies the type-II cosine transform along the given axes of arr,
// in place.
func DCT2N(b backend.Backend, arr *narray.Array[complex128], axes []int) {
	applyAlongAxes(b, arr, axes, backend.Backend.DCT2)
}

// DCT3N applies the type-III cosine transform along the given axes of arr,
// in place.
func DCT3N(b backend.Backend, arr *narray.Array[complex128], axes []int) {
	applyAlongAxes(b, arr, axes, backend.Backend.DCT3)
}
