package grid

import (
	"math"

	"github.com/notargets/gopencil/backend"
	"github.com/notargets/gopencil/narray"
	"github.com/notargets/gopencil/pfft"
)

// transformEngine applies the per-axis spectral transform of a grid:
// Fourier on periodic axes, type-II/III cosine on non-periodic ones. The
// cosine pair places the variable at the cell centers.
type transformEngine struct {
	b        backend.Backend
	periodic []bool
}

func (e *transformEngine) split(axes []int) (fftAxes, dctAxes []int) {
	for _, ax := range axes {
		if e.periodic[ax] {
			fftAxes = append(fftAxes, ax)
		} else {
			dctAxes = append(dctAxes, ax)
		}
	}
	return fftAxes, dctAxes
}

func (e *transformEngine) forward(arr *narray.Array[complex128], axes []int) {
	fftAxes, dctAxes := e.split(axes)
	pfft.DCT2N(e.b, arr, dctAxes)
	pfft.FFTN(e.b, arr, fftAxes)
}

func (e *transformEngine) backward(arr *narray.Array[complex128], axes []int) {
	fftAxes, dctAxes := e.split(axes)
	pfft.IFFTN(e.b, arr, fftAxes)
	pfft.DCT3N(e.b, arr, dctAxes)
}

// fftFreq returns the discrete Fourier sample frequencies for n points
// with spacing d, in the standard order: non-negative frequencies first,
// then the negative ones.
func fftFreq(n int, d float64) []float64 {
	f := make([]float64, n)
	for i := range f {
		k := i
		if i >= (n+1)/2 {
			k = i - n
		}
		f[i] = float64(k) / (float64(n) * d)
	}
	return f
}

// freqVector returns the spectral coordinates of one axis: angular
// wavenumbers on periodic axes, cosine-mode wavenumbers on non-periodic
// ones.
func freqVector(n int, dx float64, periodic bool) []float64 {
	if periodic {
		return fftFreq(n, dx/(2*math.Pi))
	}
	k := make([]float64, n)
	for i := range k {
		k[i] = float64(i) * math.Pi / (dx * float64(n))
	}
	return k
}
