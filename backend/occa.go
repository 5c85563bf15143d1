//go:build cgo

package backend

import (
	"fmt"

	"github.com/notargets/gocca"
)

// OCCA is the accelerator backend. It owns an OCCA device, fences it on
// Synchronize so that exchanged buffers are consistent with device work,
// and computes the line transforms through an embedded host engine while
// the kernel path stays on the device side.
type OCCA struct {
	device *gocca.OCCADevice
	host   *Host
}

// NewOCCA creates a device backend from an OCCA device property string,
// for example `{"mode": "CUDA", "device_id": 0}`.
func NewOCCA(props string) (*OCCA, error) {
	device, err := gocca.NewDevice(props)
	if err != nil {
		return nil, fmt.Errorf("backend: creating OCCA device: %w", err)
	}
	return &OCCA{device: device, host: NewHost()}, nil
}

// Mode reports the OCCA mode of the underlying device (Serial, OpenMP,
// CUDA, ...).
func (o *OCCA) Mode() string { return o.device.Mode() }

// Device exposes the underlying OCCA device for kernel builds.
func (o *OCCA) Device() *gocca.OCCADevice { return o.device }

func (o *OCCA) FFT(line []complex128)  { o.host.FFT(line) }
func (o *OCCA) IFFT(line []complex128) { o.host.IFFT(line) }
func (o *OCCA) DCT2(line []complex128) { o.host.DCT2(line) }
func (o *OCCA) DCT3(line []complex128) { o.host.DCT3(line) }

// Synchronize blocks until the device has finished all queued work.
func (o *OCCA) Synchronize() error {
	o.device.Finish()
	return nil
}

// Free releases the device and the cached host plans.
func (o *OCCA) Free() error {
	if err := o.host.Free(); err != nil {
		return err
	}
	o.device.Free()
	return nil
}
