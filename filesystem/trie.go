package filesystem

// pathTrie maps path segments to inode ids. Nodes only carry ids; inode
// attributes live in the store's table.
type pathTrie struct {
	root trieNode
}

type trieNode struct {
	id       uint64
	bound    bool // id is meaningful; intermediate nodes may exist unbound
	children map[string]*trieNode
}

func newPathTrie() *pathTrie {
	return &pathTrie{root: trieNode{children: make(map[string]*trieNode)}}
}

// node walks segs and returns the node at its end, or nil
func (t *pathTrie) node(segs []string) *trieNode {
	cur := &t.root
	for _, s := range segs {
		next, ok := cur.children[s]
		if !ok {
			return nil
		}
		cur = next
	}
	return cur
}

// insert binds segs to id, creating intermediate nodes as needed. It returns
// the id previously bound at segs, if any.
func (t *pathTrie) insert(segs []string, id uint64) (prev uint64, existed bool) {
	cur := &t.root
	for _, s := range segs {
		next, ok := cur.children[s]
		if !ok {
			next = &trieNode{children: make(map[string]*trieNode)}
			cur.children[s] = next
		}
		cur = next
	}
	prev, existed = cur.id, cur.bound
	cur.id, cur.bound = id, true
	return prev, existed
}

func (t *pathTrie) get(segs []string) (uint64, bool) {
	n := t.node(segs)
	if n == nil || !n.bound {
		return 0, false
	}
	return n.id, true
}

// children returns the bound ids directly below segs keyed by segment name
func (t *pathTrie) children(segs []string) map[string]uint64 {
	n := t.node(segs)
	if n == nil {
		return nil
	}
	out := make(map[string]uint64, len(n.children))
	for name, c := range n.children {
		if c.bound {
			out[name] = c.id
		}
	}
	return out
}

// longestAncestor returns the id of the deepest bound node on the way to segs
// (segs itself included) and how many segments deep it is.
func (t *pathTrie) longestAncestor(segs []string) (id uint64, depth int, ok bool) {
	cur := &t.root
	if cur.bound {
		id, ok = cur.id, true
	}
	for i, s := range segs {
		next, found := cur.children[s]
		if !found {
			break
		}
		cur = next
		if cur.bound {
			id, depth, ok = cur.id, i+1, true
		}
	}
	return id, depth, ok
}
