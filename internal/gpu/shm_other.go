//go:build !unix

package gpu

import "github.com/pkg/errors"

// ShmNamespace is unavailable on this platform.
type ShmNamespace struct{}

func NewShmNamespace(dir string) (*ShmNamespace, error) {
	return nil, errors.New("shared memory surfaces are not supported on this platform")
}

func (n *ShmNamespace) Create(name string, info AllocationInfo) (Allocation, error) {
	return nil, errors.New("shared memory surfaces are not supported on this platform")
}

func (n *ShmNamespace) Open(name string) (Allocation, error) {
	return nil, ErrNotFound
}
