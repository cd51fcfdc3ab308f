package firez

import (
	"fmt"
	"strconv"
	"sync/atomic"
)

// arenaSeq hands out process-unique arena ids. Zero is reserved for Root.
var arenaSeq atomic.Uint64

// NodeRef is a stable reference to a node.
// References are never reused or invalidated, and a reference obtained from a
// Fire keeps resolving to the same node in the Ashes it burns into.
// The zero value is Root.
type NodeRef struct {
	arena uint64
	index int
}

// Root is the synthetic top-level attachment point. It carries no payload.
var Root = NodeRef{}

// IsRoot reports whether r is the synthetic root.
func (r NodeRef) IsRoot() bool {
	return r.arena == 0
}

// Index returns the node's position in append order, or -1 for Root.
func (r NodeRef) Index() int {
	if r.IsRoot() {
		return -1
	}
	return r.index
}

// String formats the reference for diagnostics.
func (r NodeRef) String() string {
	if r.IsRoot() {
		return "<root>"
	}
	return "#" + strconv.Itoa(r.index)
}

// node is a single arena entry. parent is -1 for top-level nodes.
type node struct {
	payload Payload
	parent  int
}

// Fire is the mutable, append-only phase of a tree.
// Appending is as cheap as pushing onto a slice; the per-parent structure is
// only materialized when the Fire is burned into Ashes.
// Fire performs no synchronization: callers sharing one Fire across
// goroutines must serialize calls (Recorder does this).
type Fire struct {
	nodes  []node
	id     uint64
	burned bool
}

// NewFire creates an empty arena.
func NewFire() *Fire {
	f := &Fire{}
	f.ensure()
	return f
}

// ensure lazily assigns the arena id so the zero Fire is usable.
func (f *Fire) ensure() {
	if f.id == 0 {
		f.id = arenaSeq.Add(1)
	}
}

// Append creates a new node holding p as the last child of parent.
// Pass Root to create a top-level node.
func (f *Fire) Append(parent NodeRef, p Payload) (NodeRef, error) {
	if f.burned {
		return NodeRef{}, ErrArenaFinalized
	}
	f.ensure()

	pidx, err := f.resolve(parent)
	if err != nil {
		return NodeRef{}, err
	}

	f.grow()
	idx := len(f.nodes)
	f.nodes = append(f.nodes, node{parent: pidx, payload: p})
	return NodeRef{arena: f.id, index: idx}, nil
}

// Update mutates the payload of an existing node in place.
// This is not traversal: only the referenced node is touched.
func (f *Fire) Update(ref NodeRef, fn func(*Payload)) error {
	if f.burned {
		return ErrArenaFinalized
	}
	f.ensure()
	if ref.IsRoot() {
		return fmt.Errorf("%w: root carries no payload", ErrInvalidReference)
	}
	idx, err := f.resolve(ref)
	if err != nil {
		return err
	}
	fn(&f.nodes[idx].payload)
	return nil
}

// Len returns the number of appended nodes, excluding Root.
func (f *Fire) Len() int {
	return len(f.nodes)
}

// NextRef returns the reference the next Append will return.
func (f *Fire) NextRef() NodeRef {
	f.ensure()
	return NodeRef{arena: f.id, index: len(f.nodes)}
}

// Finalized reports whether the arena has been burned.
func (f *Fire) Finalized() bool {
	return f.burned
}

// Owns reports whether ref was handed out by this arena. Root is owned by every arena.
func (f *Fire) Owns(ref NodeRef) bool {
	f.ensure()
	return ref.IsRoot() || ref.arena == f.id
}

// resolve maps a reference to a slice index, -1 for Root.
func (f *Fire) resolve(ref NodeRef) (int, error) {
	if ref.IsRoot() {
		return -1, nil
	}
	if ref.arena != f.id || ref.index < 0 || ref.index >= len(f.nodes) {
		return 0, fmt.Errorf("%w: %s", ErrInvalidReference, ref)
	}
	return ref.index, nil
}

// grow makes room for one more node.
func (f *Fire) grow() {
	if len(f.nodes) < cap(f.nodes) {
		return
	}
	currentCap := cap(f.nodes)
	var newCap int
	if currentCap < 1024 {
		// Double capacity for small arenas.
		newCap = currentCap * 2
	} else {
		// Grow by 50% for large arenas.
		newCap = currentCap + currentCap/2
	}
	if newCap < 32 {
		newCap = 32
	}
	nodes := make([]node, len(f.nodes), newCap)
	copy(nodes, f.nodes)
	f.nodes = nodes
}
