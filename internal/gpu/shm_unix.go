//go:build unix

package gpu

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const (
	shmMagic      = "HOLOSURF"
	shmHeaderSize = 64
	shmVersion    = 1

	offVersion  = 8
	offWidth    = 12
	offHeight   = 16
	offFormat   = 20
	offRowPitch = 24
	offReleased = 28
)

var shmNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ShmNamespace publishes allocations as memory-mapped files in a directory,
// usually under /dev/shm, so a producer and a consumer in different
// processes share pixels without copies.
type ShmNamespace struct {
	dir string
}

func NewShmNamespace(dir string) (*ShmNamespace, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrapf(err, "failed to create shared memory directory %s", dir)
	}
	return &ShmNamespace{dir: dir}, nil
}

func (n *ShmNamespace) path(name string) (string, error) {
	if !shmNamePattern.MatchString(name) {
		return "", errors.Errorf("invalid shared allocation name %q", name)
	}
	return filepath.Join(n.dir, name+".surf"), nil
}

func (n *ShmNamespace) Create(name string, info AllocationInfo) (Allocation, error) {
	path, err := n.path(name)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err == nil {
		return nil, errors.Errorf("allocation %q already exists", name)
	}

	tmp, err := os.CreateTemp(n.dir, name+".*.tmp")
	if err != nil {
		return nil, errors.Wrap(err, "failed to create shared memory file")
	}
	defer os.Remove(tmp.Name())

	size := shmHeaderSize + info.Size()
	if err := tmp.Truncate(int64(size)); err != nil {
		tmp.Close()
		return nil, errors.Wrap(err, "failed to size shared memory file")
	}
	mem, err := unix.Mmap(int(tmp.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		tmp.Close()
		return nil, errors.Wrap(err, "failed to map shared memory file")
	}

	copy(mem, shmMagic)
	binary.LittleEndian.PutUint32(mem[offVersion:], shmVersion)
	binary.LittleEndian.PutUint32(mem[offWidth:], uint32(info.Width))
	binary.LittleEndian.PutUint32(mem[offHeight:], uint32(info.Height))
	binary.LittleEndian.PutUint32(mem[offFormat:], uint32(info.Format))
	binary.LittleEndian.PutUint32(mem[offRowPitch:], uint32(info.RowPitch))

	st, err := tmp.Stat()
	if err == nil {
		err = os.Rename(tmp.Name(), path)
	}
	tmp.Close()
	if err != nil {
		unix.Munmap(mem)
		return nil, errors.Wrapf(err, "failed to publish allocation %q", name)
	}

	return &shmAllocation{path: path, mem: mem, info: info, stat: st, owner: true}, nil
}

func (n *ShmNamespace) Open(name string) (Allocation, error) {
	path, err := n.path(name)
	if err != nil {
		return nil, errors.Wrap(ErrNotFound, err.Error())
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrNotFound, "open %q", name)
		}
		return nil, errors.Wrapf(err, "failed to open allocation %q", name)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "failed to stat allocation")
	}
	if st.Size() < shmHeaderSize {
		return nil, errors.Wrapf(ErrNotFound, "allocation %q is truncated", name)
	}
	mem, err := unix.Mmap(int(f.Fd()), 0, int(st.Size()), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Wrap(err, "failed to map allocation")
	}

	if string(mem[:len(shmMagic)]) != shmMagic || binary.LittleEndian.Uint32(mem[offVersion:]) != shmVersion {
		unix.Munmap(mem)
		return nil, errors.Wrapf(ErrNotFound, "allocation %q has an unknown header", name)
	}
	info := AllocationInfo{
		Width:    int(binary.LittleEndian.Uint32(mem[offWidth:])),
		Height:   int(binary.LittleEndian.Uint32(mem[offHeight:])),
		Format:   gputypes.TextureFormat(binary.LittleEndian.Uint32(mem[offFormat:])),
		RowPitch: int(binary.LittleEndian.Uint32(mem[offRowPitch:])),
	}
	if shmHeaderSize+info.Size() > len(mem) {
		unix.Munmap(mem)
		return nil, errors.Wrapf(ErrNotFound, "allocation %q is truncated", name)
	}

	a := &shmAllocation{path: path, mem: mem, info: info, stat: st}
	if a.Stale() {
		a.Release()
		return nil, errors.Wrapf(ErrNotFound, "allocation %q was released", name)
	}
	return a, nil
}

type shmAllocation struct {
	mu    sync.Mutex
	path  string
	mem   []byte
	info  AllocationInfo
	stat  os.FileInfo
	owner bool
}

func (a *shmAllocation) Info() AllocationInfo { return a.info }

func (a *shmAllocation) Bytes() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mem == nil {
		return nil
	}
	return a.mem[shmHeaderSize : shmHeaderSize+a.info.Size()]
}

func (a *shmAllocation) Stale() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mem == nil || a.mem[offReleased] != 0 {
		return true
	}
	st, err := os.Stat(a.path)
	return err != nil || !os.SameFile(st, a.stat)
}

func (a *shmAllocation) Release() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mem == nil {
		return nil
	}
	var err error
	if a.owner {
		a.mem[offReleased] = 1
		if rmErr := os.Remove(a.path); rmErr != nil && !os.IsNotExist(rmErr) {
			err = errors.Wrap(rmErr, "failed to remove allocation")
		}
	}
	if mErr := unix.Munmap(a.mem); mErr != nil && err == nil {
		err = errors.Wrap(mErr, "failed to unmap allocation")
	}
	a.mem = nil
	return err
}
