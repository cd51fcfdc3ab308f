package firez

// Burn finishes the arena and returns the traversable tree.
// Burn consumes the Fire: afterwards every Append, Update, Snapshot and Burn
// returns ErrArenaFinalized. References obtained from the Fire remain valid
// against the returned Ashes.
//
// Burn is a single O(n) pass. It is deliberately the slow half of the
// design; use it once, when the tree is actually needed.
func (f *Fire) Burn() (*Ashes, error) {
	if f.burned {
		return nil, ErrArenaFinalized
	}
	f.ensure()

	ashes := burn(f.id, f.nodes)
	f.nodes = nil
	f.burned = true
	return ashes, nil
}

// Snapshot builds Ashes from a copy of the current nodes and leaves the
// arena open for further appends. Payloads are cloned, so the snapshot and
// the arena never share Fields storage.
func (f *Fire) Snapshot() (*Ashes, error) {
	if f.burned {
		return nil, ErrArenaFinalized
	}
	f.ensure()

	nodes := make([]node, len(f.nodes))
	for i := range f.nodes {
		nodes[i] = node{parent: f.nodes[i].parent, payload: f.nodes[i].payload.Clone()}
	}
	return burn(f.id, nodes), nil
}

// burn groups nodes under their parents with a stable counting pass.
// Bucket 0 is Root; node i owns bucket i+1. No comparisons are performed,
// and children land in their bucket in append order.
func burn(arena uint64, nodes []node) *Ashes {
	n := len(nodes)

	// offsets[b]..offsets[b+1] is the slice of order belonging to bucket b.
	offsets := make([]int, n+2)
	for i := range nodes {
		offsets[nodes[i].parent+2]++
	}
	for b := 1; b < len(offsets); b++ {
		offsets[b] += offsets[b-1]
	}

	order := make([]int, n)
	next := make([]int, n+1)
	copy(next, offsets[:n+1])
	for i := range nodes {
		b := nodes[i].parent + 1
		order[next[b]] = i
		next[b]++
	}

	return &Ashes{
		arena:   arena,
		nodes:   nodes,
		order:   order,
		offsets: offsets,
	}
}
