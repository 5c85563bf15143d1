// Package backend supplies the 1-D transform kernels and device fencing
// behind the distributed spectral transforms in package pfft.
//
// A Backend works on single lines: the caller owns the decomposition logic
// and hands the backend one contiguous line along a transform axis at a
// time. Host computes on the CPU with gonum's FFT plans; OCCA fences an
// accelerator device and delegates the line math to a host engine.
package backend

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Backend computes in-place 1-D transforms on complex lines and fences
// outstanding device work.
type Backend interface {
	// FFT computes the unnormalized forward Fourier transform of line.
	FFT(line []complex128)
	// IFFT computes the inverse Fourier transform of line, normalized so
	// that IFFT(FFT(x)) == x.
	IFFT(line []complex128)
	// DCT2 computes the unnormalized type-II discrete cosine transform,
	// the transform for cell-centered non-periodic axes.
	DCT2(line []complex128)
	// DCT3 computes the type-III discrete cosine transform normalized as
	// the inverse of DCT2.
	DCT3(line []complex128)
	// Synchronize blocks until pending device work has completed.
	Synchronize() error
	// Free releases plans and device resources.
	Free() error
}

// Host is the CPU backend. FFT plans and cosine weight tables are built on
// first use per line length and cached. A Host is safe for concurrent use.
type Host struct {
	mu    sync.Mutex
	plans map[int]*fourier.CmplxFFT
	dct2W map[int][]float64
	dct3W map[int][]float64
}

// NewHost returns an empty CPU backend.
func NewHost() *Host {
	return &Host{
		plans: make(map[int]*fourier.CmplxFFT),
		dct2W: make(map[int][]float64),
		dct3W: make(map[int][]float64),
	}
}

func (h *Host) plan(n int) *fourier.CmplxFFT {
	p, ok := h.plans[n]
	if !ok {
		p = fourier.NewCmplxFFT(n)
		h.plans[n] = p
	}
	return p
}

// FFT computes the unnormalized forward transform of line in place.
func (h *Host) FFT(line []complex128) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p := h.plan(len(line))
	copy(line, p.Coefficients(nil, line))
}

// IFFT computes the normalized inverse transform of line in place.
func (h *Host) IFFT(line []complex128) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p := h.plan(len(line))
	out := p.Sequence(nil, line)
	inv := complex(1/float64(len(line)), 0)
	for i, v := range out {
		line[i] = v * inv
	}
}

// dct2Weights returns the n x n table w[k][j] = 2 cos(pi k (j+1/2) / n),
// flattened row-major.
func (h *Host) dct2Weights(n int) []float64 {
	w, ok := h.dct2W[n]
	if !ok {
		w = make([]float64, n*n)
		for k := 0; k < n; k++ {
			for j := 0; j < n; j++ {
				w[k*n+j] = 2 * math.Cos(math.Pi/float64(n)*float64(k)*(float64(j)+0.5))
			}
		}
		h.dct2W[n] = w
	}
	return w
}

// dct3Weights returns the n x n table w[k][j] = 2 cos(pi j (k+1/2) / n)
// with the j == 0 column weight 1, flattened row-major. Combined with the
// 1/(2n) factor in DCT3 this makes DCT3 the exact inverse of DCT2.
func (h *Host) dct3Weights(n int) []float64 {
	w, ok := h.dct3W[n]
	if !ok {
		w = make([]float64, n*n)
		for k := 0; k < n; k++ {
			w[k*n] = 1
			for j := 1; j < n; j++ {
				w[k*n+j] = 2 * math.Cos(math.Pi/float64(n)*float64(j)*(float64(k)+0.5))
			}
		}
		h.dct3W[n] = w
	}
	return w
}

// DCT2 computes the unnormalized type-II cosine transform of line in place.
func (h *Host) DCT2(line []complex128) {
	n := len(line)
	h.mu.Lock()
	w := h.dct2Weights(n)
	h.mu.Unlock()
	applyWeights(line, w, 1)
}

// DCT3 computes the type-III cosine transform of line in place, normalized
// as the inverse of DCT2.
func (h *Host) DCT3(line []complex128) {
	n := len(line)
	h.mu.Lock()
	w := h.dct3Weights(n)
	h.mu.Unlock()
	applyWeights(line, w, 1/float64(2*n))
}

func applyWeights(line []complex128, w []float64, scale float64) {
	n := len(line)
	out := make([]complex128, n)
	for k := 0; k < n; k++ {
		var sum complex128
		row := w[k*n : (k+1)*n]
		for j, x := range line {
			sum += x * complex(row[j], 0)
		}
		out[k] = sum * complex(scale, 0)
	}
	copy(line, out)
}

// Synchronize is a no-op: host arrays are always consistent.
func (h *Host) Synchronize() error { return nil }

// Free drops the cached plans and tables.
func (h *Host) Free() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.plans = make(map[int]*fourier.CmplxFFT)
	h.dct2W = make(map[int][]float64)
	h.dct3W = make(map[int][]float64)
	return nil
}
