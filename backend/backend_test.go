package backend

import (
	"math"
	"math/cmplx"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/floats/scalar"
)

const tol = 1e-12

// naiveDFT is the textbook O(n^2) forward transform.
func naiveDFT(x []complex128) []complex128 {
	n := len(x)
	out := make([]complex128, n)
	for k := 0; k < n; k++ {
		for j, v := range x {
			out[k] += v * cmplx.Exp(complex(0, -2*math.Pi*float64(k)*float64(j)/float64(n)))
		}
	}
	return out
}

func randomLine(n int, seed int64) []complex128 {
	rng := rand.New(rand.NewSource(seed))
	line := make([]complex128, n)
	for i := range line {
		line[i] = complex(rng.Float64()-0.5, rng.Float64()-0.5)
	}
	return line
}

func closeLines(t *testing.T, got, want []complex128, context string) {
	t.Helper()
	for i := range want {
		if !scalar.EqualWithinAbs(real(got[i]), real(want[i]), tol) ||
			!scalar.EqualWithinAbs(imag(got[i]), imag(want[i]), tol) {
			t.Fatalf("%s: element %d = %v, want %v", context, i, got[i], want[i])
		}
	}
}

func TestHost_FFTMatchesDFT(t *testing.T) {
	h := NewHost()
	for _, n := range []int{1, 2, 7, 8, 16, 63} {
		line := randomLine(n, int64(n))
		want := naiveDFT(line)
		h.FFT(line)
		closeLines(t, line, want, "FFT")
	}
}

func TestHost_FFTRoundTrip(t *testing.T) {
	h := NewHost()
	for _, n := range []int{1, 4, 9, 32, 65} {
		line := randomLine(n, int64(n))
		want := append([]complex128(nil), line...)
		h.FFT(line)
		h.IFFT(line)
		closeLines(t, line, want, "FFT/IFFT round trip")
	}
}

func TestHost_DCT2KnownValues(t *testing.T) {
	h := NewHost()
	// Constant input: only the zero mode survives, with weight 2n.
	n := 8
	line := make([]complex128, n)
	for i := range line {
		line[i] = 1
	}
	h.DCT2(line)
	if !scalar.EqualWithinAbs(real(line[0]), float64(2*n), tol) {
		t.Errorf("DCT2 zero mode = %v, want %d", line[0], 2*n)
	}
	for k := 1; k < n; k++ {
		if cmplx.Abs(line[k]) > tol {
			t.Errorf("DCT2 mode %d = %v, want 0", k, line[k])
		}
	}
}

func TestHost_DCTRoundTrip(t *testing.T) {
	h := NewHost()
	for _, n := range []int{1, 2, 5, 8, 33} {
		line := randomLine(n, int64(100+n))
		want := append([]complex128(nil), line...)
		h.DCT2(line)
		h.DCT3(line)
		closeLines(t, line, want, "DCT2/DCT3 round trip")
	}
}

func TestHost_PlanReuse(t *testing.T) {
	h := NewHost()
	a := randomLine(16, 1)
	b := append([]complex128(nil), a...)
	h.FFT(a)
	// Second transform of the same length reuses the cached plan.
	h.FFT(b)
	closeLines(t, b, a, "cached plan")
	if err := h.Free(); err != nil {
		t.Fatalf("Free failed: %v", err)
	}
	c := append([]complex128(nil), a...)
	h.IFFT(c)
	h.FFT(c)
	closeLines(t, c, a, "plans rebuilt after Free")
}

func TestHost_Synchronize(t *testing.T) {
	if err := NewHost().Synchronize(); err != nil {
		t.Fatalf("Synchronize failed: %v", err)
	}
}
