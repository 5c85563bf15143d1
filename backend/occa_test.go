//go:build cgo

package backend

import (
	"testing"
)

func TestOCCA_Serial(t *testing.T) {
	o, err := NewOCCA(`{"mode": "Serial"}`)
	if err != nil {
		t.Skipf("OCCA unavailable: %v", err)
	}
	defer o.Free()

	if o.Mode() == "" {
		t.Error("device mode is empty")
	}
	line := randomLine(16, 3)
	want := append([]complex128(nil), line...)
	o.FFT(line)
	o.IFFT(line)
	closeLines(t, line, want, "device FFT round trip")
	if err := o.Synchronize(); err != nil {
		t.Errorf("Synchronize failed: %v", err)
	}
}
