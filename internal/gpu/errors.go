package gpu

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrDeviceLost is returned by every operation on a removed device.
	ErrDeviceLost = errors.New("gpu: device lost")

	// ErrTextureDestroyed is returned when operating on a destroyed texture.
	ErrTextureDestroyed = errors.New("gpu: texture has been destroyed")

	// ErrNotFound is returned when a shared allocation name does not resolve.
	ErrNotFound = errors.New("gpu: shared allocation not found")

	// ErrDescriptorMismatch is returned when an opened allocation differs
	// from the requested size or format.
	ErrDescriptorMismatch = errors.New("gpu: shared allocation does not match descriptor")

	// ErrNotStaging is returned when mapping a texture the CPU cannot access.
	ErrNotStaging = errors.New("gpu: texture is not CPU accessible")
)

// DeviceResourceError wraps a failure to create or use a device resource.
// Sessions treat it as fatal.
type DeviceResourceError struct {
	Op  string
	Err error
}

func (e *DeviceResourceError) Error() string {
	return fmt.Sprintf("gpu: %s: %v", e.Op, e.Err)
}

func (e *DeviceResourceError) Unwrap() error { return e.Err }

func resourceError(op string, err error) error {
	return &DeviceResourceError{Op: op, Err: err}
}
