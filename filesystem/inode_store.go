package filesystem

import (
	"fmt"
	"sort"
)

// ConsistencyError is the panic value raised when an insert would break the
// one-to-one mapping between ids and paths. It signals a caller bug; the index
// cannot be trusted afterwards.
type ConsistencyError struct {
	ID       uint64
	Path     string
	Conflict string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("inode store consistency fault: id %d path %q: %s", e.ID, e.Path, e.Conflict)
}

// InodeStore owns every known inode. Inodes live in a table indexed by id and
// a path trie maps path segments back to ids. Ids are never reused.
//
// InodeStore is not safe for concurrent use; the driver serializes access.
type InodeStore struct {
	table  []*Inode // index is the inode id; nil slots are unknown ids
	trie   *pathTrie
	lastID uint64
	count  int
}

// NewInodeStore returns an empty store. Use Insert to add the root.
func NewInodeStore() *InodeStore {
	return &InodeStore{trie: newPathTrie()}
}

// NextID returns a fresh id larger than every id handed out or inserted so far
func (s *InodeStore) NextID() uint64 {
	s.lastID++
	return s.lastID
}

// Insert stores n, replacing the attributes of an existing inode with the same
// id and path. It panics with a *ConsistencyError if n.Path is bound to a
// different id or n.ID is bound to a different path.
func (s *InodeStore) Insert(n Inode) {
	if n.ID == 0 {
		panic(&ConsistencyError{ID: n.ID, Path: n.Path, Conflict: "id 0 is reserved"})
	}
	if cur := s.lookup(n.ID); cur != nil && cur.Path != n.Path {
		panic(&ConsistencyError{ID: n.ID, Path: n.Path, Conflict: fmt.Sprintf("id already bound to %q", cur.Path)})
	}
	segs := splitPath(n.Path)
	if id, ok := s.trie.get(segs); ok && id != n.ID {
		panic(&ConsistencyError{ID: n.ID, Path: n.Path, Conflict: fmt.Sprintf("path already bound to id %d", id)})
	}

	s.trie.insert(segs, n.ID)
	if n.ID >= uint64(len(s.table)) {
		grown := make([]*Inode, n.ID+1, max(n.ID+1, uint64(2*len(s.table))))
		copy(grown, s.table)
		s.table = grown
	}
	if s.table[n.ID] == nil {
		s.count++
	}
	s.table[n.ID] = &n
	if n.ID > s.lastID {
		s.lastID = n.ID
	}
}

func (s *InodeStore) lookup(id uint64) *Inode {
	if id >= uint64(len(s.table)) {
		return nil
	}
	return s.table[id]
}

// Get returns a copy of the inode with the given id
func (s *InodeStore) Get(id uint64) (Inode, bool) {
	if n := s.lookup(id); n != nil {
		return *n, true
	}
	return Inode{}, false
}

// GetByPath returns a copy of the inode bound to path
func (s *InodeStore) GetByPath(path string) (Inode, bool) {
	id, ok := s.trie.get(splitPath(path))
	if !ok {
		return Inode{}, false
	}
	return s.Get(id)
}

// Child resolves name inside the directory id
func (s *InodeStore) Child(id uint64, name string) (Inode, bool) {
	parent := s.lookup(id)
	if parent == nil {
		return Inode{}, false
	}
	return s.GetByPath(joinPath(parent.Path, name))
}

// Children returns the direct children of id sorted by name
func (s *InodeStore) Children(id uint64) ([]Inode, bool) {
	parent := s.lookup(id)
	if parent == nil {
		return nil, false
	}
	ids := s.trie.children(splitPath(parent.Path))
	names := make([]string, 0, len(ids))
	for name := range ids {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Inode, 0, len(names))
	for _, name := range names {
		if n := s.lookup(ids[name]); n != nil {
			out = append(out, *n)
		}
	}
	return out, true
}

// Parent returns the inode one segment up from id. The root is its own parent.
func (s *InodeStore) Parent(id uint64) (Inode, bool) {
	n := s.lookup(id)
	if n == nil {
		return Inode{}, false
	}
	segs := splitPath(n.Path)
	if len(segs) == 0 {
		return *n, true
	}
	pid, ok := s.trie.get(segs[:len(segs)-1])
	if !ok {
		return Inode{}, false
	}
	return s.Get(pid)
}

// Ancestor returns the deepest known inode on the way to path, path included
func (s *InodeStore) Ancestor(path string) (Inode, bool) {
	id, _, ok := s.trie.longestAncestor(splitPath(path))
	if !ok {
		return Inode{}, false
	}
	return s.Get(id)
}

// Update applies fn to the stored inode id. The id and path must not be changed.
func (s *InodeStore) Update(id uint64, fn func(n *Inode)) (Inode, bool) {
	n := s.lookup(id)
	if n == nil {
		return Inode{}, false
	}
	updated := *n
	fn(&updated)
	if updated.ID != n.ID || updated.Path != n.Path {
		panic(&ConsistencyError{ID: n.ID, Path: n.Path, Conflict: "update changed id or path"})
	}
	*n = updated
	return updated, true
}

func (s *InodeStore) UpdateByPath(path string, fn func(n *Inode)) (Inode, bool) {
	id, ok := s.trie.get(splitPath(path))
	if !ok {
		return Inode{}, false
	}
	return s.Update(id, fn)
}

func (s *InodeStore) SetSize(id, size uint64) bool {
	_, ok := s.Update(id, func(n *Inode) { n.Size = size })
	return ok
}

func (s *InodeStore) SetVisited(id uint64, visited bool) bool {
	_, ok := s.Update(id, func(n *Inode) { n.Visited = visited })
	return ok
}

func (s *InodeStore) SetOwner(id uint64, uid, gid uint32) bool {
	_, ok := s.Update(id, func(n *Inode) { n.UID, n.GID = uid, gid })
	return ok
}

// Len is the number of stored inodes
func (s *InodeStore) Len() int {
	return s.count
}
