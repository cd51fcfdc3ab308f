package firez

import (
	"errors"
	"fmt"
)

// SkipBranch may be returned from a Walk callback to skip the current
// node's children.
var SkipBranch = errors.New("skip this branch") //nolint:revive,staticcheck

// Ashes is the immutable phase of a tree, produced by burning a Fire.
// The parent/child shape never changes; payloads stay mutable through
// Branch.Payload. Ashes is not safe for concurrent payload mutation.
//
// Nodes keep the index they had in the Fire, so every NodeRef handed out
// before the burn resolves to the same node. Each parent's children occupy a
// contiguous range of order, in append order.
type Ashes struct {
	nodes   []node
	order   []int
	offsets []int
	arena   uint64
}

// Len returns the number of nodes, excluding Root.
func (a *Ashes) Len() int {
	return len(a.nodes)
}

// Root returns the synthetic root branch.
func (a *Ashes) Root() Branch {
	return Branch{tree: a, idx: -1}
}

// Exists reports whether ref resolves to a node of this tree.
func (a *Ashes) Exists(ref NodeRef) bool {
	if ref.IsRoot() {
		return true
	}
	return ref.arena == a.arena && ref.index >= 0 && ref.index < len(a.nodes)
}

// Branch returns the branch referenced by ref.
func (a *Ashes) Branch(ref NodeRef) (Branch, error) {
	if !a.Exists(ref) {
		return Branch{}, fmt.Errorf("%w: %s", ErrInvalidReference, ref)
	}
	return Branch{tree: a, idx: ref.Index()}, nil
}

// Walk visits every branch depth-first in pre-order, starting at Root
// (depth 0). Children are visited in append order. Returning SkipBranch
// skips the current branch's children; any other error stops the walk.
func (a *Ashes) Walk(fn func(b Branch, depth int) error) error {
	type item struct {
		idx   int
		depth int
	}
	stack := []item{{idx: -1}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		err := fn(Branch{tree: a, idx: top.idx}, top.depth)
		if errors.Is(err, SkipBranch) {
			continue
		}
		if err != nil {
			return err
		}

		children := a.children(top.idx)
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, item{idx: children[i], depth: top.depth + 1})
		}
	}
	return nil
}

// children returns the ordered child indices of idx (-1 for Root).
func (a *Ashes) children(idx int) []int {
	b := idx + 1
	if b+1 >= len(a.offsets) {
		return nil
	}
	return a.order[a.offsets[b]:a.offsets[b+1]]
}

func (a *Ashes) ref(idx int) NodeRef {
	if idx < 0 {
		return Root
	}
	return NodeRef{arena: a.arena, index: idx}
}

// Branch is a view of one node of an Ashes tree. The zero Branch is invalid.
type Branch struct {
	tree *Ashes
	idx  int
}

// IsRoot reports whether this is the synthetic root.
func (b Branch) IsRoot() bool {
	return b.idx < 0
}

// Ref returns the node's reference.
func (b Branch) Ref() NodeRef {
	return b.tree.ref(b.idx)
}

// Parent returns the parent reference. ok is false only for Root itself;
// top-level nodes report Root as their parent.
func (b Branch) Parent() (NodeRef, bool) {
	if b.IsRoot() {
		return NodeRef{}, false
	}
	return b.tree.ref(b.tree.nodes[b.idx].parent), true
}

// Payload returns the node's payload for reading or in-place mutation.
// Root has no payload and returns nil.
func (b Branch) Payload() *Payload {
	if b.IsRoot() {
		return nil
	}
	return &b.tree.nodes[b.idx].payload
}

// NumChildren returns the number of direct children.
func (b Branch) NumChildren() int {
	return len(b.tree.children(b.idx))
}

// Child returns the n-th child (0-based, append order).
// It panics if n is out of range, like a slice index.
func (b Branch) Child(n int) Branch {
	children := b.tree.children(b.idx)
	if n < 0 || n >= len(children) {
		panic(fmt.Sprintf("firez: %s has %d children, child #%d requested", b.Ref(), len(children), n))
	}
	return Branch{tree: b.tree, idx: children[n]}
}

// Children returns references to the direct children in append order.
func (b Branch) Children() []NodeRef {
	children := b.tree.children(b.idx)
	refs := make([]NodeRef, len(children))
	for i, c := range children {
		refs[i] = b.tree.ref(c)
	}
	return refs
}

// Depth returns the number of edges between Root and this branch.
func (b Branch) Depth() int {
	depth := 0
	for idx := b.idx; idx >= 0; idx = b.tree.nodes[idx].parent {
		depth++
	}
	return depth
}
