package session

import (
	"sort"
	"sync"

	"github.com/dchest/uniuri"
	"github.com/vishalkuo/bimap"
	"k8s.io/utils/keymutex"
)

// Keeper tracks live producer sessions by id and by surface handle.
// Entries carry a token so a session that was replaced cannot remove its
// successor on the way out.
type Keeper struct {
	mu       sync.RWMutex
	handles  *bimap.BiMap[string, string]
	sessions map[string]*ProducerSession

	idLock keymutex.KeyMutex
}

func NewKeeper() *Keeper {
	return &Keeper{
		handles:  bimap.NewBiMap[string, string](),
		sessions: map[string]*ProducerSession{},
		idLock:   keymutex.NewHashed(10000),
	}
}

// LockID serializes negotiation and teardown of one session id.
func (k *Keeper) LockID(id string) { k.idLock.LockKey(id) }

func (k *Keeper) UnlockID(id string) { _ = k.idLock.UnlockKey(id) }

func (k *Keeper) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()

	return len(k.sessions)
}

func (k *Keeper) Get(id string) (*ProducerSession, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	s, ok := k.sessions[id]
	return s, ok
}

// HandleOwner returns the id of the session using handle.
func (k *Keeper) HandleOwner(handle string) (string, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	return k.handles.GetInverse(handle)
}

// IDs lists the live session ids in order.
func (k *Keeper) IDs() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()

	ids := make([]string, 0, len(k.sessions))
	for id := range k.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// add stores s under its id with a fresh token, returning the session it
// replaced.
func (k *Keeper) add(s *ProducerSession) *ProducerSession {
	k.mu.Lock()
	defer k.mu.Unlock()

	id := s.params.ID
	prev := k.sessions[id]
	if prev != nil {
		k.handles.Delete(id)
	}
	s.token = uniuri.NewLen(32)
	k.sessions[id] = s
	k.handles.Insert(id, s.params.SharedTexture)
	return prev
}

// remove deletes s only if it is still the entry for its id.
func (k *Keeper) remove(s *ProducerSession) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	id := s.params.ID
	if cur, ok := k.sessions[id]; ok && cur.token == s.token {
		delete(k.sessions, id)
		k.handles.Delete(id)
		return true
	}
	return false
}
