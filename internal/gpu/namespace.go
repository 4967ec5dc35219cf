package gpu

import (
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/pkg/errors"
)

// AllocationInfo describes the memory layout behind a shared texture.
type AllocationInfo struct {
	Width    int
	Height   int
	Format   gputypes.TextureFormat
	RowPitch int
}

// Size returns the number of bytes backing the allocation.
func (i AllocationInfo) Size() int {
	return i.RowPitch * i.Height
}

// Allocation is memory that one device publishes under a name and another
// device maps.
type Allocation interface {
	Info() AllocationInfo
	Bytes() []byte
	// Stale reports whether the publisher released or replaced the
	// allocation after this view was obtained.
	Stale() bool
	Release() error
}

// SharedNamespace resolves allocation names across devices.
type SharedNamespace interface {
	Create(name string, info AllocationInfo) (Allocation, error)
	Open(name string) (Allocation, error)
}

// MemoryNamespace shares allocations between devices of one process.
type MemoryNamespace struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

type memoryEntry struct {
	info     AllocationInfo
	buf      []byte
	released bool
}

func NewMemoryNamespace() *MemoryNamespace {
	return &MemoryNamespace{entries: map[string]*memoryEntry{}}
}

func (n *MemoryNamespace) Create(name string, info AllocationInfo) (Allocation, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if old, ok := n.entries[name]; ok && !old.released {
		return nil, errors.Errorf("allocation %q already exists", name)
	}
	e := &memoryEntry{info: info, buf: make([]byte, info.Size())}
	n.entries[name] = e
	return &memoryAllocation{ns: n, name: name, entry: e, owner: true}, nil
}

func (n *MemoryNamespace) Open(name string) (Allocation, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	e, ok := n.entries[name]
	if !ok || e.released {
		return nil, errors.Wrapf(ErrNotFound, "open %q", name)
	}
	return &memoryAllocation{ns: n, name: name, entry: e}, nil
}

// Len reports how many live allocations the namespace holds.
func (n *MemoryNamespace) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.entries)
}

type memoryAllocation struct {
	ns    *MemoryNamespace
	name  string
	entry *memoryEntry
	owner bool
}

func (a *memoryAllocation) Info() AllocationInfo { return a.entry.info }

func (a *memoryAllocation) Bytes() []byte { return a.entry.buf }

func (a *memoryAllocation) Stale() bool {
	a.ns.mu.Lock()
	defer a.ns.mu.Unlock()
	return a.entry.released || a.ns.entries[a.name] != a.entry
}

func (a *memoryAllocation) Release() error {
	if !a.owner {
		return nil
	}
	a.ns.mu.Lock()
	defer a.ns.mu.Unlock()
	a.entry.released = true
	if a.ns.entries[a.name] == a.entry {
		delete(a.ns.entries, a.name)
	}
	return nil
}
