package revset

import (
	"slices"

	"github.com/bits-and-blooms/bitset"
	"github.com/emirpasic/gods/trees/binaryheap"

	"github.com/systemshift/weft/internal/index"
)

// posIter yields index positions in canonical order: generation
// descending, then id descending. Each iterator is single-use.
type posIter interface {
	next() (index.Pos, bool, error)
}

// set is a compiled revset. iter starts a fresh evaluation each time, so a
// set can be walked any number of times.
type set interface {
	iter() posIter
}

// peeker buffers one element of an iterator.
type peeker struct {
	it     posIter
	p      index.Pos
	ok     bool
	err    error
	filled bool
}

func newPeeker(it posIter) *peeker { return &peeker{it: it} }

func (pk *peeker) peek() (index.Pos, bool, error) {
	if !pk.filled {
		pk.p, pk.ok, pk.err = pk.it.next()
		pk.filled = true
	}
	return pk.p, pk.ok, pk.err
}

func (pk *peeker) advance() { pk.filled = false }

type sliceIter struct {
	ps []index.Pos
	i  int
}

func (it *sliceIter) next() (index.Pos, bool, error) {
	if it.i >= len(it.ps) {
		return 0, false, nil
	}
	p := it.ps[it.i]
	it.i++
	return p, true, nil
}

// explicitSet is a materialized set, sorted and deduplicated.
type explicitSet struct{ ps []index.Pos }

func newExplicitSet(snap *index.Snapshot, ps []index.Pos) *explicitSet {
	ps = slices.Clone(ps)
	snap.SortPos(ps)
	return &explicitSet{ps: slices.Compact(ps)}
}

func (s *explicitSet) iter() posIter { return &sliceIter{ps: s.ps} }

// deferredSet materializes its members on each walk. It backs operators
// that need their whole operand before producing anything, such as heads()
// and descendants().
type deferredSet struct {
	snap *index.Snapshot
	fn   func() ([]index.Pos, error)
}

func (s *deferredSet) iter() posIter { return &deferredIter{s: s} }

type deferredIter struct {
	s     *deferredSet
	inner *sliceIter
}

func (it *deferredIter) next() (index.Pos, bool, error) {
	if it.inner == nil {
		ps, err := it.s.fn()
		if err != nil {
			return 0, false, err
		}
		it.inner = &sliceIter{ps: newExplicitSet(it.s.snap, ps).ps}
	}
	return it.inner.next()
}

func collect(it posIter) ([]index.Pos, error) {
	var out []index.Pos
	for {
		p, ok, err := it.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, p)
	}
}

type unionSet struct {
	snap *index.Snapshot
	a, b set
}

func (s *unionSet) iter() posIter {
	return &unionIter{snap: s.snap, a: newPeeker(s.a.iter()), b: newPeeker(s.b.iter())}
}

type unionIter struct {
	snap *index.Snapshot
	a, b *peeker
}

func (it *unionIter) next() (index.Pos, bool, error) {
	pa, oka, err := it.a.peek()
	if err != nil {
		return 0, false, err
	}
	pb, okb, err := it.b.peek()
	if err != nil {
		return 0, false, err
	}
	switch {
	case !oka && !okb:
		return 0, false, nil
	case !okb || (oka && it.snap.Compare(pa, pb) < 0):
		it.a.advance()
		return pa, true, nil
	case !oka || it.snap.Compare(pb, pa) < 0:
		it.b.advance()
		return pb, true, nil
	}
	it.a.advance()
	it.b.advance()
	return pa, true, nil
}

type intersectionSet struct {
	snap *index.Snapshot
	a, b set
}

func (s *intersectionSet) iter() posIter {
	return &intersectionIter{snap: s.snap, a: newPeeker(s.a.iter()), b: newPeeker(s.b.iter())}
}

type intersectionIter struct {
	snap *index.Snapshot
	a, b *peeker
}

func (it *intersectionIter) next() (index.Pos, bool, error) {
	for {
		pa, oka, err := it.a.peek()
		if err != nil || !oka {
			return 0, false, err
		}
		pb, okb, err := it.b.peek()
		if err != nil || !okb {
			return 0, false, err
		}
		switch c := it.snap.Compare(pa, pb); {
		case c < 0:
			it.a.advance()
		case c > 0:
			it.b.advance()
		default:
			it.a.advance()
			it.b.advance()
			return pa, true, nil
		}
	}
}

type differenceSet struct {
	snap *index.Snapshot
	a, b set
}

func (s *differenceSet) iter() posIter {
	return &differenceIter{snap: s.snap, a: newPeeker(s.a.iter()), b: newPeeker(s.b.iter())}
}

type differenceIter struct {
	snap *index.Snapshot
	a, b *peeker
}

func (it *differenceIter) next() (index.Pos, bool, error) {
	for {
		pa, oka, err := it.a.peek()
		if err != nil || !oka {
			return 0, false, err
		}
		pb, okb, err := it.b.peek()
		if err != nil {
			return 0, false, err
		}
		if okb {
			c := it.snap.Compare(pb, pa)
			if c < 0 {
				it.b.advance()
				continue
			}
			if c == 0 {
				it.a.advance()
				it.b.advance()
				continue
			}
		}
		it.a.advance()
		return pa, true, nil
	}
}

type filterSet struct {
	of   set
	pred func(index.Pos) (bool, error)
}

func (s *filterSet) iter() posIter { return &filterIter{it: s.of.iter(), pred: s.pred} }

type filterIter struct {
	it   posIter
	pred func(index.Pos) (bool, error)
}

func (it *filterIter) next() (index.Pos, bool, error) {
	for {
		p, ok, err := it.it.next()
		if err != nil || !ok {
			return 0, false, err
		}
		match, err := it.pred(p)
		if err != nil {
			return 0, false, err
		}
		if match {
			return p, true, nil
		}
	}
}

// ancestorsSet walks from heads towards the roots with a heap ordered by
// rank. Heads are pulled from their iterator only when they would come
// next, so "first n ancestors" never touches the rest of the graph.
type ancestorsSet struct {
	snap  *index.Snapshot
	heads set
	depth int
}

func (s *ancestorsSet) iter() posIter {
	it := &ancestorsIter{
		snap:  s.snap,
		heads: newPeeker(s.heads.iter()),
		depth: s.depth,
		heap:  s.snap.NewHeap(),
	}
	if s.depth > 0 {
		it.dist = make(map[index.Pos]int)
	} else {
		it.seen = s.snap.NewBitset()
	}
	return it
}

type ancestorsIter struct {
	snap  *index.Snapshot
	heads *peeker
	depth int
	heap  *binaryheap.Heap
	seen  *bitset.BitSet
	dist  map[index.Pos]int
}

func (it *ancestorsIter) push(p index.Pos, d int) {
	if it.dist != nil {
		if old, ok := it.dist[p]; ok {
			if d < old {
				it.dist[p] = d
			}
			return
		}
		it.dist[p] = d
		it.heap.Push(p)
		return
	}
	if it.seen.Test(uint(p)) {
		return
	}
	it.seen.Set(uint(p))
	it.heap.Push(p)
}

func (it *ancestorsIter) next() (index.Pos, bool, error) {
	for {
		hp, ok, err := it.heads.peek()
		if err != nil {
			return 0, false, err
		}
		if ok {
			top, has := it.heap.Peek()
			if !has || it.snap.Compare(hp, top.(index.Pos)) <= 0 {
				it.heads.advance()
				it.push(hp, 0)
				continue
			}
		}
		v, ok := it.heap.Pop()
		if !ok {
			return 0, false, nil
		}
		p := v.(index.Pos)
		d := it.dist[p]
		if it.depth == 0 || d+1 < it.depth {
			for _, q := range it.snap.Parents(p) {
				it.push(q, d+1)
			}
		}
		return p, true, nil
	}
}

// parentsSet yields the parents of its operand, lazily in rank order.
type parentsSet struct {
	snap *index.Snapshot
	of   set
}

func (s *parentsSet) iter() posIter {
	return &parentsIter{
		snap: s.snap,
		of:   newPeeker(s.of.iter()),
		heap: s.snap.NewHeap(),
		seen: s.snap.NewBitset(),
	}
}

type parentsIter struct {
	snap *index.Snapshot
	of   *peeker
	heap *binaryheap.Heap
	seen *bitset.BitSet
}

func (it *parentsIter) next() (index.Pos, bool, error) {
	for {
		cp, ok, err := it.of.peek()
		if err != nil {
			return 0, false, err
		}
		if ok {
			top, has := it.heap.Peek()
			if !has || it.snap.Compare(cp, top.(index.Pos)) <= 0 {
				it.of.advance()
				for _, q := range it.snap.Parents(cp) {
					if !it.seen.Test(uint(q)) {
						it.seen.Set(uint(q))
						it.heap.Push(q)
					}
				}
				continue
			}
		}
		v, ok := it.heap.Pop()
		if !ok {
			return 0, false, nil
		}
		return v.(index.Pos), true, nil
	}
}
