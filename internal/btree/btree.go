package btree

import (
	"sort"
)

// DefaultDegree is the minimum degree used when none is given.
const DefaultDegree = 16

// Tree is a B-tree mapping string keys to values of type V. Every node
// except the root holds between degree-1 and 2*degree-1 keys.
//
// Tree is not safe for concurrent use.
type Tree[V any] struct {
	root   *node[V]
	degree int
	n      int
}

type node[V any] struct {
	keys     []string
	vals     []V
	children []*node[V] // nil for leaves
}

// New returns an empty tree. Degrees below 2 use DefaultDegree.
func New[V any](degree int) *Tree[V] {
	if degree < 2 {
		degree = DefaultDegree
	}
	return &Tree[V]{root: &node[V]{}, degree: degree}
}

// Len returns the number of keys.
func (t *Tree[V]) Len() int { return t.n }

// Degree returns the minimum degree.
func (t *Tree[V]) Degree() int { return t.degree }

func (n *node[V]) leaf() bool { return n.children == nil }

func (n *node[V]) search(key string) (int, bool) {
	i := sort.SearchStrings(n.keys, key)
	return i, i < len(n.keys) && n.keys[i] == key
}

// Get returns the value stored under key.
func (t *Tree[V]) Get(key string) (V, bool) {
	n := t.root
	for {
		i, found := n.search(key)
		if found {
			return n.vals[i], true
		}
		if n.leaf() {
			var zero V
			return zero, false
		}
		n = n.children[i]
	}
}

// Set stores val under key and reports whether the key is new.
func (t *Tree[V]) Set(key string, val V) bool {
	if len(t.root.keys) == 2*t.degree-1 {
		old := t.root
		t.root = &node[V]{children: []*node[V]{old}}
		t.root.splitChild(0, t.degree)
	}
	if t.root.insertNonFull(key, val, t.degree) {
		t.n++
		return true
	}
	return false
}

// splitChild splits the full child i around its median key.
func (n *node[V]) splitChild(i, degree int) {
	child := n.children[i]
	mid := degree - 1
	right := &node[V]{
		keys: append([]string(nil), child.keys[degree:]...),
		vals: append([]V(nil), child.vals[degree:]...),
	}
	if !child.leaf() {
		right.children = append([]*node[V](nil), child.children[degree:]...)
		child.children = child.children[:degree]
	}
	medKey, medVal := child.keys[mid], child.vals[mid]
	child.keys = child.keys[:mid]
	child.vals = child.vals[:mid]

	n.keys = insertAt(n.keys, i, medKey)
	n.vals = insertAt(n.vals, i, medVal)
	n.children = insertAt(n.children, i+1, right)
}

func (n *node[V]) insertNonFull(key string, val V, degree int) bool {
	for {
		i, found := n.search(key)
		if found {
			n.vals[i] = val
			return false
		}
		if n.leaf() {
			n.keys = insertAt(n.keys, i, key)
			n.vals = insertAt(n.vals, i, val)
			return true
		}
		if len(n.children[i].keys) == 2*degree-1 {
			n.splitChild(i, degree)
			switch {
			case key == n.keys[i]:
				n.vals[i] = val
				return false
			case key > n.keys[i]:
				i++
			}
		}
		n = n.children[i]
	}
}

// Delete removes key and returns its value.
func (t *Tree[V]) Delete(key string) (V, bool) {
	v, ok := t.root.remove(key, t.degree)
	if ok {
		t.n--
	}
	if len(t.root.keys) == 0 && !t.root.leaf() {
		t.root = t.root.children[0]
	}
	return v, ok
}

func (n *node[V]) remove(key string, degree int) (V, bool) {
	i, found := n.search(key)
	if n.leaf() {
		if !found {
			var zero V
			return zero, false
		}
		v := n.vals[i]
		n.keys = removeAt(n.keys, i)
		n.vals = removeAt(n.vals, i)
		return v, true
	}
	if found {
		v := n.vals[i]
		left, right := n.children[i], n.children[i+1]
		switch {
		case len(left.keys) >= degree:
			pk, pv := left.max()
			n.keys[i], n.vals[i] = pk, pv
			left.remove(pk, degree)
		case len(right.keys) >= degree:
			sk, sv := right.min()
			n.keys[i], n.vals[i] = sk, sv
			right.remove(sk, degree)
		default:
			n.merge(i)
			n.children[i].remove(key, degree)
		}
		return v, true
	}
	if len(n.children[i].keys) < degree {
		i = n.fill(i, degree)
	}
	return n.children[i].remove(key, degree)
}

func (n *node[V]) max() (string, V) {
	for !n.leaf() {
		n = n.children[len(n.children)-1]
	}
	last := len(n.keys) - 1
	return n.keys[last], n.vals[last]
}

func (n *node[V]) min() (string, V) {
	for !n.leaf() {
		n = n.children[0]
	}
	return n.keys[0], n.vals[0]
}

// fill makes child i hold at least degree keys and returns the index of the
// child that now covers the same key range.
func (n *node[V]) fill(i, degree int) int {
	switch {
	case i > 0 && len(n.children[i-1].keys) >= degree:
		n.borrowFromPrev(i)
	case i < len(n.children)-1 && len(n.children[i+1].keys) >= degree:
		n.borrowFromNext(i)
	case i < len(n.children)-1:
		n.merge(i)
	default:
		n.merge(i - 1)
		i--
	}
	return i
}

func (n *node[V]) borrowFromPrev(i int) {
	child, sib := n.children[i], n.children[i-1]
	last := len(sib.keys) - 1

	child.keys = insertAt(child.keys, 0, n.keys[i-1])
	child.vals = insertAt(child.vals, 0, n.vals[i-1])
	if !sib.leaf() {
		child.children = insertAt(child.children, 0, sib.children[len(sib.children)-1])
		sib.children = sib.children[:len(sib.children)-1]
	}
	n.keys[i-1], n.vals[i-1] = sib.keys[last], sib.vals[last]
	sib.keys = sib.keys[:last]
	sib.vals = sib.vals[:last]
}

func (n *node[V]) borrowFromNext(i int) {
	child, sib := n.children[i], n.children[i+1]

	child.keys = append(child.keys, n.keys[i])
	child.vals = append(child.vals, n.vals[i])
	if !sib.leaf() {
		child.children = append(child.children, sib.children[0])
		sib.children = removeAt(sib.children, 0)
	}
	n.keys[i], n.vals[i] = sib.keys[0], sib.vals[0]
	sib.keys = removeAt(sib.keys, 0)
	sib.vals = removeAt(sib.vals, 0)
}

// merge folds key i and child i+1 into child i.
func (n *node[V]) merge(i int) {
	child, sib := n.children[i], n.children[i+1]
	child.keys = append(append(child.keys, n.keys[i]), sib.keys...)
	child.vals = append(append(child.vals, n.vals[i]), sib.vals...)
	if !child.leaf() {
		child.children = append(child.children, sib.children...)
	}
	n.keys = removeAt(n.keys, i)
	n.vals = removeAt(n.vals, i)
	n.children = removeAt(n.children, i+1)
}

// Ascend calls fn for each key >= from in ascending order until fn returns
// false.
func (t *Tree[V]) Ascend(from string, fn func(key string, val V) bool) {
	t.root.ascend(from, fn)
}

func (n *node[V]) ascend(from string, fn func(string, V) bool) bool {
	i := sort.SearchStrings(n.keys, from)
	for ; i < len(n.keys); i++ {
		if !n.leaf() && !n.children[i].ascend(from, fn) {
			return false
		}
		if !fn(n.keys[i], n.vals[i]) {
			return false
		}
	}
	if !n.leaf() {
		return n.children[len(n.keys)].ascend(from, fn)
	}
	return true
}

// Descend calls fn for every key in descending order until fn returns
// false.
func (t *Tree[V]) Descend(fn func(key string, val V) bool) {
	t.root.descend(fn)
}

func (n *node[V]) descend(fn func(string, V) bool) bool {
	for i := len(n.keys) - 1; i >= 0; i-- {
		if !n.leaf() && !n.children[i+1].descend(fn) {
			return false
		}
		if !fn(n.keys[i], n.vals[i]) {
			return false
		}
	}
	if !n.leaf() {
		return n.children[0].descend(fn)
	}
	return true
}

// Height returns the number of levels, 1 for a tree that is a single leaf.
func (t *Tree[V]) Height() int {
	h := 1
	for n := t.root; !n.leaf(); n = n.children[0] {
		h++
	}
	return h
}

func insertAt[T any](s []T, i int, v T) []T {
	var zero T
	s = append(s, zero)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

func removeAt[T any](s []T, i int) []T {
	copy(s[i:], s[i+1:])
	var zero T
	s[len(s)-1] = zero
	return s[:len(s)-1]
}
