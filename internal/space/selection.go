package space

import (
	"math/bits"
	"sort"

	"github.com/robert-malhotra/go-hstore/internal/errs"
)

// Op combines a new selection with the existing one.
type Op uint8

const (
	// OpSet replaces the existing selection.
	OpSet Op = iota
	// OpOr selects elements in either.
	OpOr
	// OpAnd selects elements in both.
	OpAnd
	// OpXor selects elements in exactly one.
	OpXor
	// OpNotB selects existing elements not in the new selection.
	OpNotB
	// OpNotA selects new elements not in the existing selection.
	OpNotA
)

var opNames = [...]string{"SET", "OR", "AND", "XOR", "NOTB", "NOTA"}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return "UNKNOWN"
}

type mode uint8

const (
	modeNone mode = iota
	modeAll
	modeBoxes
	modePoints
)

// box is the half-open hyperrectangle [lo, hi).
type box struct {
	lo, hi []uint64
}

type selection struct {
	mode   mode
	boxes  []box      // disjoint
	points [][]uint64 // transfer order
}

func (b box) clone() box {
	return box{lo: clone(b.lo), hi: clone(b.hi)}
}

func (b box) size() uint64 {
	n := uint64(1)
	for i := range b.lo {
		n *= b.hi[i] - b.lo[i]
	}
	return n
}

func intersect(a, b box) (box, bool) {
	out := box{lo: make([]uint64, len(a.lo)), hi: make([]uint64, len(a.lo))}
	for i := range a.lo {
		out.lo[i] = max(a.lo[i], b.lo[i])
		out.hi[i] = min(a.hi[i], b.hi[i])
		if out.lo[i] >= out.hi[i] {
			return box{}, false
		}
	}
	return out, true
}

// subtract returns disjoint boxes covering a minus b.
func subtract(a, b box) []box {
	in, ok := intersect(a, b)
	if !ok {
		return []box{a}
	}
	var out []box
	cur := a.clone()
	for d := range cur.lo {
		if cur.lo[d] < in.lo[d] {
			piece := cur.clone()
			piece.hi[d] = in.lo[d]
			out = append(out, piece)
			cur.lo[d] = in.lo[d]
		}
		if in.hi[d] < cur.hi[d] {
			piece := cur.clone()
			piece.lo[d] = in.hi[d]
			out = append(out, piece)
			cur.hi[d] = in.hi[d]
		}
	}
	return out
}

func difference(a, b []box) []box {
	res := a
	for _, sb := range b {
		var next []box
		for _, r := range res {
			next = append(next, subtract(r, sb)...)
		}
		res = next
		if len(res) == 0 {
			break
		}
	}
	return res
}

func intersection(a, b []box) []box {
	var out []box
	for _, x := range a {
		for _, y := range b {
			if in, ok := intersect(x, y); ok {
				out = append(out, in)
			}
		}
	}
	return out
}

func combine(op Op, cur, add []box) []box {
	var out []box
	switch op {
	case OpSet:
		out = add
	case OpOr:
		out = append(append([]box(nil), cur...), difference(add, cur)...)
	case OpAnd:
		out = intersection(cur, add)
	case OpXor:
		out = append(difference(cur, add), difference(add, cur)...)
	case OpNotB:
		out = difference(cur, add)
	case OpNotA:
		out = difference(add, cur)
	}
	return coalesce(out)
}

const coalesceLimit = 4096

// coalesce merges boxes that differ only in one adjacent dimension.
func coalesce(bs []box) []box {
	if len(bs) > coalesceLimit {
		return bs
	}
	for merged := true; merged; {
		merged = false
		for i := 0; i < len(bs) && !merged; i++ {
			for j := i + 1; j < len(bs); j++ {
				if m, ok := mergeBoxes(bs[i], bs[j]); ok {
					bs[i] = m
					bs = append(bs[:j], bs[j+1:]...)
					merged = true
					break
				}
			}
		}
	}
	return bs
}

func mergeBoxes(a, b box) (box, bool) {
	axis := -1
	for d := range a.lo {
		if a.lo[d] == b.lo[d] && a.hi[d] == b.hi[d] {
			continue
		}
		if axis >= 0 {
			return box{}, false
		}
		if a.hi[d] != b.lo[d] && b.hi[d] != a.lo[d] {
			return box{}, false
		}
		axis = d
	}
	if axis < 0 {
		return a, true
	}
	m := a.clone()
	m.lo[axis] = min(a.lo[axis], b.lo[axis])
	m.hi[axis] = max(a.hi[axis], b.hi[axis])
	return m, true
}

func (sel selection) copy() selection {
	c := selection{mode: sel.mode}
	for _, b := range sel.boxes {
		c.boxes = append(c.boxes, b.clone())
	}
	for _, p := range sel.points {
		c.points = append(c.points, clone(p))
	}
	return c
}

// asBoxes returns the selection as disjoint boxes.
func (s *Space) asBoxes() []box {
	switch s.sel.mode {
	case modeAll:
		if s.NumElements() == 0 {
			return nil
		}
		return []box{{lo: make([]uint64, len(s.dims)), hi: clone(s.dims)}}
	case modeBoxes:
		return s.sel.boxes
	case modePoints:
		var out []box
		seen := make(map[string]bool, len(s.sel.points))
		for _, p := range s.sel.points {
			k := pointKey(p)
			if seen[k] {
				continue
			}
			seen[k] = true
			hi := make([]uint64, len(p))
			for i := range p {
				hi[i] = p[i] + 1
			}
			out = append(out, box{lo: clone(p), hi: hi})
		}
		return out
	}
	return nil
}

func pointKey(p []uint64) string {
	b := make([]byte, 0, 8*len(p))
	for _, v := range p {
		b = append(b, byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32), byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	}
	return string(b)
}

func (s *Space) setBoxes(bs []box) {
	if len(bs) == 0 {
		s.sel = selection{mode: modeNone}
		return
	}
	s.sel = selection{mode: modeBoxes, boxes: bs}
}

// SelectAll selects every element.
func (s *Space) SelectAll() { s.sel = selection{mode: modeAll} }

// SelectNone clears the selection.
func (s *Space) SelectNone() { s.sel = selection{mode: modeNone} }

// SelectHyperslab combines the hyperslab described by start, stride, count
// and block with the current selection. A nil stride or block means all
// ones. Every selected coordinate must lie inside the current extents.
func (s *Space) SelectHyperslab(op Op, start, stride, count, block []uint64) error {
	if op > OpNotA {
		return errs.New(errs.ErrTypeMismatch, "unknown selection op %d", op)
	}
	rank := len(s.dims)
	if stride == nil {
		stride = ones(rank)
	}
	if block == nil {
		block = ones(rank)
	}
	if len(start) != rank || len(stride) != rank || len(count) != rank || len(block) != rank {
		return errs.New(errs.ErrDimensionMismatch, "hyperslab arguments must have length %d", rank)
	}

	axes := make([][][2]uint64, rank)
	for d := 0; d < rank; d++ {
		if stride[d] == 0 {
			return errs.New(errs.ErrSelectionBounds, "dimension %d: stride must be at least 1", d)
		}
		if count[d] == 0 || block[d] == 0 {
			axes = nil
			break
		}
		last, ok := lastCoord(start[d], stride[d], count[d], block[d])
		if !ok || last >= s.dims[d] {
			corner := make([]uint64, rank)
			for i := range corner {
				corner[i], _ = lastCoord(start[i], stride[i], max(count[i], 1), max(block[i], 1))
			}
			return errs.At(errs.ErrSelectionBounds, corner, "dimension %d: hyperslab reaches %d, extent is %d", d, last, s.dims[d])
		}
		axes[d] = intervals(start[d], stride[d], count[d], block[d])
	}

	var add []box
	if axes != nil {
		add = product1D(axes)
	}
	s.apply(op, add)
	return nil
}

// lastCoord returns the highest coordinate a hyperslab reaches along one
// dimension, reporting false on overflow.
func lastCoord(start, stride, count, block uint64) (uint64, bool) {
	hi, lo := bits.Mul64(count-1, stride)
	if hi != 0 {
		return Unlimited, false
	}
	v, c1 := bits.Add64(start, lo, 0)
	v, c2 := bits.Add64(v, block-1, 0)
	if c1 != 0 || c2 != 0 {
		return Unlimited, false
	}
	return v, true
}

func ones(n int) []uint64 {
	v := make([]uint64, n)
	for i := range v {
		v[i] = 1
	}
	return v
}

// intervals returns the merged half-open intervals one dimension of a
// hyperslab covers.
func intervals(start, stride, count, block uint64) [][2]uint64 {
	var iv [][2]uint64
	for i := uint64(0); i < count; i++ {
		lo := start + i*stride
		hi := lo + block
		if n := len(iv); n > 0 && lo <= iv[n-1][1] {
			iv[n-1][1] = max(iv[n-1][1], hi)
			continue
		}
		iv = append(iv, [2]uint64{lo, hi})
	}
	return iv
}

// product1D builds the boxes of the cartesian product of per-axis intervals.
func product1D(axes [][][2]uint64) []box {
	out := []box{{lo: []uint64{}, hi: []uint64{}}}
	for _, iv := range axes {
		next := make([]box, 0, len(out)*len(iv))
		for _, b := range out {
			for _, r := range iv {
				nb := box{lo: append(clone(b.lo), r[0]), hi: append(clone(b.hi), r[1])}
				next = append(next, nb)
			}
		}
		out = next
	}
	return out
}

func (s *Space) apply(op Op, add []box) {
	if op == OpSet {
		s.setBoxes(coalesce(add))
		return
	}
	s.setBoxes(combine(op, s.asBoxes(), add))
}

// SelectElements combines a list of point coordinates with the current
// selection. SET and OR on a point selection keep the listed order for
// transfers; other combinations fall back to row-major order.
func (s *Space) SelectElements(op Op, coords [][]uint64) error {
	if op > OpNotA {
		return errs.New(errs.ErrTypeMismatch, "unknown selection op %d", op)
	}
	rank := len(s.dims)
	for i, c := range coords {
		if len(c) != rank {
			return errs.New(errs.ErrDimensionMismatch, "point %d has rank %d, space has rank %d", i, len(c), rank)
		}
		for d := range c {
			if c[d] >= s.dims[d] {
				return errs.At(errs.ErrSelectionBounds, clone(c), "point %d outside extent %v", i, s.dims)
			}
		}
	}

	switch {
	case op == OpSet:
		if len(coords) == 0 {
			s.SelectNone()
			return nil
		}
		s.sel = selection{mode: modePoints}
		s.appendPoints(coords)
		return nil
	case op == OpOr && (s.sel.mode == modePoints || s.sel.mode == modeNone):
		if s.sel.mode == modeNone {
			s.sel = selection{mode: modePoints}
		}
		s.appendPoints(coords)
		if len(s.sel.points) == 0 {
			s.SelectNone()
		}
		return nil
	}

	add := make([]box, 0, len(coords))
	for _, c := range coords {
		hi := make([]uint64, len(c))
		for i := range c {
			hi[i] = c[i] + 1
		}
		add = append(add, box{lo: clone(c), hi: hi})
	}
	// Duplicate points would break the disjointness of the box list.
	add = combine(OpOr, nil, dedupeBoxes(add))
	s.setBoxes(combine(op, s.asBoxes(), add))
	return nil
}

func dedupeBoxes(bs []box) []box {
	seen := make(map[string]bool, len(bs))
	out := bs[:0]
	for _, b := range bs {
		k := pointKey(b.lo)
		if !seen[k] {
			seen[k] = true
			out = append(out, b)
		}
	}
	return out
}

func (s *Space) appendPoints(coords [][]uint64) {
	seen := make(map[string]bool, len(s.sel.points)+len(coords))
	for _, p := range s.sel.points {
		seen[pointKey(p)] = true
	}
	for _, c := range coords {
		k := pointKey(c)
		if seen[k] {
			continue
		}
		seen[k] = true
		s.sel.points = append(s.sel.points, clone(c))
	}
}

// SelectedCount returns the number of selected elements.
func (s *Space) SelectedCount() uint64 {
	switch s.sel.mode {
	case modeAll:
		return s.NumElements()
	case modePoints:
		return uint64(len(s.sel.points))
	case modeBoxes:
		var n uint64
		for _, b := range s.sel.boxes {
			n += b.size()
		}
		return n
	}
	return 0
}

// IsAll reports whether the selection covers the whole grid.
func (s *Space) IsAll() bool { return s.sel.mode == modeAll }

// IsPoints reports whether the selection is an ordered point list.
func (s *Space) IsPoints() bool { return s.sel.mode == modePoints }

// Validate checks that every selected coordinate lies inside dims, which
// may differ from the extents the selection was made against.
func (s *Space) Validate(dims []uint64) error {
	if len(dims) != len(s.dims) {
		return errs.New(errs.ErrDimensionMismatch, "selection rank %d, dataset rank %d", len(s.dims), len(dims))
	}
	switch s.sel.mode {
	case modeAll:
		for i := range dims {
			if s.dims[i] > dims[i] {
				return errs.New(errs.ErrSelectionBounds, "selection extent %v exceeds dataset extent %v", s.dims, dims)
			}
		}
	case modeBoxes:
		for _, b := range s.sel.boxes {
			for i := range dims {
				if b.hi[i] > dims[i] {
					corner := make([]uint64, len(b.hi))
					for j := range corner {
						corner[j] = b.hi[j] - 1
					}
					return errs.At(errs.ErrSelectionBounds, corner, "selection outside dataset extent %v", dims)
				}
			}
		}
	case modePoints:
		for _, p := range s.sel.points {
			for i := range dims {
				if p[i] >= dims[i] {
					return errs.At(errs.ErrSelectionBounds, clone(p), "point outside dataset extent %v", dims)
				}
			}
		}
	}
	return nil
}

// Run is a stretch of consecutive elements along the last dimension,
// starting at Coord.
type Run struct {
	Coord []uint64
	Len   uint64
}

// Runs returns the selection as runs in transfer order: listed order for
// point selections, row-major order otherwise.
func (s *Space) Runs() []Run {
	if s.sel.mode == modePoints {
		out := make([]Run, len(s.sel.points))
		for i, p := range s.sel.points {
			out[i] = Run{Coord: clone(p), Len: 1}
		}
		return out
	}
	bs := s.asBoxes()
	if s.IsScalar() {
		if len(bs) == 0 && s.sel.mode != modeAll {
			return nil
		}
		return []Run{{Len: 1}}
	}
	var out []Run
	for _, b := range bs {
		out = appendBoxRuns(out, b)
	}
	if len(bs) > 1 {
		sort.Slice(out, func(i, j int) bool { return lessCoord(out[i].Coord, out[j].Coord) })
		out = mergeRuns(out)
	}
	return out
}

// mergeRuns joins sorted runs that continue each other along the last
// dimension.
func mergeRuns(runs []Run) []Run {
	if len(runs) == 0 {
		return runs
	}
	last := len(runs[0].Coord) - 1
	out := runs[:1]
	for _, r := range runs[1:] {
		p := &out[len(out)-1]
		if samePrefix(p.Coord, r.Coord, last) && p.Coord[last]+p.Len == r.Coord[last] {
			p.Len += r.Len
			continue
		}
		out = append(out, r)
	}
	return out
}

func samePrefix(a, b []uint64, n int) bool {
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func appendBoxRuns(out []Run, b box) []Run {
	rank := len(b.lo)
	last := rank - 1
	if b.size() == 0 {
		return out
	}
	cur := clone(b.lo)
	for {
		out = append(out, Run{Coord: clone(cur), Len: b.hi[last] - b.lo[last]})
		d := last - 1
		for ; d >= 0; d-- {
			cur[d]++
			if cur[d] < b.hi[d] {
				break
			}
			cur[d] = b.lo[d]
		}
		if d < 0 {
			return out
		}
	}
}

func lessCoord(a, b []uint64) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// Bounds returns the smallest box [lo, hi) containing the selection, and
// false when nothing is selected.
func (s *Space) Bounds() (lo, hi []uint64, ok bool) {
	bs := s.asBoxes()
	if len(bs) == 0 {
		return nil, nil, false
	}
	lo, hi = clone(bs[0].lo), clone(bs[0].hi)
	for _, b := range bs[1:] {
		for i := range lo {
			lo[i] = min(lo[i], b.lo[i])
			hi[i] = max(hi[i], b.hi[i])
		}
	}
	return lo, hi, true
}

// Contains reports whether coord is selected.
func (s *Space) Contains(coord []uint64) bool {
	if len(coord) != len(s.dims) {
		return false
	}
	switch s.sel.mode {
	case modeAll:
		for i := range coord {
			if coord[i] >= s.dims[i] {
				return false
			}
		}
		return true
	case modePoints:
		k := pointKey(coord)
		for _, p := range s.sel.points {
			if pointKey(p) == k {
				return true
			}
		}
	case modeBoxes:
		for _, b := range s.sel.boxes {
			inside := true
			for i := range coord {
				if coord[i] < b.lo[i] || coord[i] >= b.hi[i] {
					inside = false
					break
				}
			}
			if inside {
				return true
			}
		}
	}
	return false
}
