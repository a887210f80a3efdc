package index

import (
	"fmt"
	"slices"
	"strings"

	"github.com/bits-and-blooms/bitset"
	"github.com/emirpasic/gods/trees/binaryheap"

	"github.com/systemshift/weft/internal/dag"
)

// Snapshot is an immutable prefix of the index. Positions at or beyond Len
// are not part of it even if the index has grown since.
//
// The canonical order used for all output is generation descending, then
// commit hex descending. Rank 0 is the first commit in that order.
type Snapshot struct {
	idx     *Index
	entries []entry
	order   []Pos
	rank    []int32
}

func compareEntries(a, b *entry) int {
	switch {
	case a.gen < b.gen:
		return -1
	case a.gen > b.gen:
		return 1
	}
	return strings.Compare(a.hex, b.hex)
}

// extend returns a new snapshot with fresh appended. s is not modified.
func (s *Snapshot) extend(fresh []entry) *Snapshot {
	entries := append(s.entries[:len(s.entries):len(s.entries)], fresh...)
	n := len(entries)

	added := make([]Pos, len(fresh))
	for i := range fresh {
		added[i] = Pos(len(s.entries) + i)
	}
	desc := func(a, b Pos) int { return compareEntries(&entries[b], &entries[a]) }
	slices.SortFunc(added, desc)

	order := make([]Pos, 0, n)
	i, j := 0, 0
	for i < len(s.order) && j < len(added) {
		if desc(s.order[i], added[j]) <= 0 {
			order = append(order, s.order[i])
			i++
		} else {
			order = append(order, added[j])
			j++
		}
	}
	order = append(order, s.order[i:]...)
	order = append(order, added[j:]...)

	rank := make([]int32, n)
	for r, p := range order {
		rank[p] = int32(r)
	}
	return &Snapshot{idx: s.idx, entries: entries, order: order, rank: rank}
}

// Len returns the number of commits in the snapshot.
func (s *Snapshot) Len() int { return len(s.entries) }

// Lookup returns the position of id.
func (s *Snapshot) Lookup(id dag.ID) (Pos, bool) {
	s.idx.mu.RLock()
	p, ok := s.idx.byID[id]
	s.idx.mu.RUnlock()
	if !ok || int(p) >= len(s.entries) {
		return 0, false
	}
	return p, true
}

// Has reports whether id is indexed.
func (s *Snapshot) Has(id dag.ID) bool {
	_, ok := s.Lookup(id)
	return ok
}

func (s *Snapshot) containsAll(ids []dag.ID) bool {
	for _, id := range ids {
		if !s.Has(id) {
			return false
		}
	}
	return true
}

// MustLookup returns the position of id or an error wrapping dag.ErrNotFound.
func (s *Snapshot) MustLookup(id dag.ID) (Pos, error) {
	p, ok := s.Lookup(id)
	if !ok {
		return 0, fmt.Errorf("commit %s not indexed: %w", id.Short(), dag.ErrNotFound)
	}
	return p, nil
}

func (s *Snapshot) lookupAll(ids []dag.ID) ([]Pos, error) {
	out := make([]Pos, len(ids))
	for i, id := range ids {
		p, err := s.MustLookup(id)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

// ID returns the commit id at p.
func (s *Snapshot) ID(p Pos) dag.ID { return s.entries[p].id }

// Hex returns the hex id at p.
func (s *Snapshot) Hex(p Pos) string { return s.entries[p].hex }

// ChangeID returns the change id at p.
func (s *Snapshot) ChangeID(p Pos) string { return s.entries[p].changeID }

// Gen returns the generation number at p.
func (s *Snapshot) Gen(p Pos) uint32 { return s.entries[p].gen }

// Parents returns the parent positions of p. The slice must not be modified.
func (s *Snapshot) Parents(p Pos) []Pos { return s.entries[p].parents }

// Rank returns the canonical rank of p.
func (s *Snapshot) Rank(p Pos) int { return int(s.rank[p]) }

// AtRank returns the position with canonical rank r.
func (s *Snapshot) AtRank(r int) Pos { return s.order[r] }

// Compare orders positions canonically: negative when a comes first.
func (s *Snapshot) Compare(a, b Pos) int { return int(s.rank[a]) - int(s.rank[b]) }

// Generation returns the generation number of id.
func (s *Snapshot) Generation(id dag.ID) (uint32, error) {
	p, err := s.MustLookup(id)
	if err != nil {
		return 0, err
	}
	return s.Gen(p), nil
}

// NewHeap returns a heap of positions that pops in canonical order.
func (s *Snapshot) NewHeap() *binaryheap.Heap {
	return binaryheap.NewWith(func(a, b interface{}) int {
		return s.Compare(a.(Pos), b.(Pos))
	})
}

// NewBitset returns a bitset sized for this snapshot.
func (s *Snapshot) NewBitset() *bitset.BitSet {
	return bitset.New(uint(len(s.entries)))
}

// IsAncestorPos reports whether a is an ancestor of b. A commit is its own
// ancestor.
func (s *Snapshot) IsAncestorPos(a, b Pos) bool {
	if a == b {
		return true
	}
	ga := s.Gen(a)
	if ga >= s.Gen(b) {
		return false
	}
	seen := s.NewBitset()
	stack := []Pos{b}
	seen.Set(uint(b))
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, q := range s.Parents(p) {
			if q == a {
				return true
			}
			if seen.Test(uint(q)) || s.Gen(q) <= ga {
				continue
			}
			seen.Set(uint(q))
			stack = append(stack, q)
		}
	}
	return false
}

// IsAncestor reports whether a is an ancestor of b.
func (s *Snapshot) IsAncestor(a, b dag.ID) (bool, error) {
	pa, err := s.MustLookup(a)
	if err != nil {
		return false, err
	}
	pb, err := s.MustLookup(b)
	if err != nil {
		return false, err
	}
	return s.IsAncestorPos(pa, pb), nil
}

const (
	flagA uint8 = 1 << iota
	flagB
	flagStale
	flagResult
)

// CommonAncestorsPos returns the heads of the set of commits that are
// ancestors of both as and bs, in canonical order.
func (s *Snapshot) CommonAncestorsPos(as, bs []Pos) []Pos {
	flags := make(map[Pos]uint8)
	h := s.NewHeap()
	for _, p := range as {
		flags[p] |= flagA
		h.Push(p)
	}
	for _, p := range bs {
		flags[p] |= flagB
		h.Push(p)
	}

	var found []Pos
	for s.hasNonStale(h, flags) {
		v, _ := h.Pop()
		p := v.(Pos)
		f := flags[p] & (flagA | flagB | flagStale)
		if f == flagA|flagB {
			if flags[p]&flagResult == 0 {
				flags[p] |= flagResult
				found = append(found, p)
			}
			f |= flagStale
		}
		for _, q := range s.Parents(p) {
			if flags[q]&f == f {
				continue
			}
			flags[q] |= f
			h.Push(q)
		}
	}
	return s.HeadsPos(found)
}

func (s *Snapshot) hasNonStale(h *binaryheap.Heap, flags map[Pos]uint8) bool {
	for _, v := range h.Values() {
		if flags[v.(Pos)]&flagStale == 0 {
			return true
		}
	}
	return false
}

// CommonAncestors returns the merge bases of as and bs: the heads of their
// common ancestors. There may be several after criss-cross merges.
func (s *Snapshot) CommonAncestors(as, bs []dag.ID) ([]dag.ID, error) {
	pa, err := s.lookupAll(as)
	if err != nil {
		return nil, err
	}
	pb, err := s.lookupAll(bs)
	if err != nil {
		return nil, err
	}
	return s.ids(s.CommonAncestorsPos(pa, pb)), nil
}

// HeadsPos returns the members of ps that are not ancestors of another
// member, deduplicated and in canonical order.
func (s *Snapshot) HeadsPos(ps []Pos) []Pos {
	if len(ps) == 0 {
		return nil
	}
	candidates := s.NewBitset()
	minGen := s.Gen(ps[0])
	for _, p := range ps {
		candidates.Set(uint(p))
		if g := s.Gen(p); g < minGen {
			minGen = g
		}
	}
	notHead := s.NewBitset()
	seen := s.NewBitset()
	h := s.NewHeap()
	for _, p := range ps {
		for _, q := range s.Parents(p) {
			h.Push(q)
		}
	}
	for !h.Empty() {
		v, _ := h.Pop()
		p := v.(Pos)
		if seen.Test(uint(p)) {
			continue
		}
		seen.Set(uint(p))
		if candidates.Test(uint(p)) {
			notHead.Set(uint(p))
		}
		for _, q := range s.Parents(p) {
			if s.Gen(q) >= minGen && !seen.Test(uint(q)) {
				h.Push(q)
			}
		}
	}
	out := make([]Pos, 0, len(ps))
	for i, ok := candidates.NextSet(0); ok; i, ok = candidates.NextSet(i + 1) {
		if !notHead.Test(i) {
			out = append(out, Pos(i))
		}
	}
	s.SortPos(out)
	return out
}

// Heads returns the members of ids that have no descendant in ids.
func (s *Snapshot) Heads(ids []dag.ID) ([]dag.ID, error) {
	ps, err := s.lookupAll(ids)
	if err != nil {
		return nil, err
	}
	return s.ids(s.HeadsPos(ps)), nil
}

// SortPos sorts positions canonically in place.
func (s *Snapshot) SortPos(ps []Pos) {
	slices.SortFunc(ps, s.Compare)
}

// TopoOrder returns ids deduplicated in canonical order: generation
// descending, then id descending. Children always precede their parents.
func (s *Snapshot) TopoOrder(ids []dag.ID) ([]dag.ID, error) {
	ps, err := s.lookupAll(ids)
	if err != nil {
		return nil, err
	}
	s.SortPos(ps)
	return s.ids(slices.Compact(ps)), nil
}

// DescendantsMask returns the set of indexed commits that descend from any
// of roots, roots included.
func (s *Snapshot) DescendantsMask(roots []Pos) *bitset.BitSet {
	mask := s.NewBitset()
	if len(roots) == 0 {
		return mask
	}
	lowest := roots[0]
	for _, p := range roots {
		mask.Set(uint(p))
		if p < lowest {
			lowest = p
		}
	}
	for p := lowest + 1; int(p) < len(s.entries); p++ {
		if mask.Test(uint(p)) {
			continue
		}
		for _, q := range s.Parents(p) {
			if mask.Test(uint(q)) {
				mask.Set(uint(p))
				break
			}
		}
	}
	return mask
}

func (s *Snapshot) ids(ps []Pos) []dag.ID {
	out := make([]dag.ID, len(ps))
	for i, p := range ps {
		out[i] = s.ID(p)
	}
	return out
}

// IDs converts positions to ids.
func (s *Snapshot) IDs(ps []Pos) []dag.ID { return s.ids(ps) }

// ResolvePrefix resolves a hex prefix to a unique commit id.
func (s *Snapshot) ResolvePrefix(prefix string) (dag.ID, error) {
	prefix = strings.ToLower(prefix)
	var match dag.ID
	n := 0
	for i := range s.entries {
		if strings.HasPrefix(s.entries[i].hex, prefix) {
			match = s.entries[i].id
			n++
			if n > 1 {
				return dag.ID{}, &AmbiguousPrefixError{Prefix: prefix}
			}
		}
	}
	if n == 0 {
		return dag.ID{}, fmt.Errorf("commit id prefix %q: %w", prefix, dag.ErrNotFound)
	}
	return match, nil
}

// ResolveChangePrefix returns every commit whose change id starts with
// prefix, in canonical order. It fails if the prefix matches more than one
// change id.
func (s *Snapshot) ResolveChangePrefix(prefix string) ([]Pos, error) {
	prefix = strings.ToLower(prefix)
	var out []Pos
	change := ""
	for i := range s.entries {
		e := &s.entries[i]
		if !strings.HasPrefix(e.changeID, prefix) {
			continue
		}
		if change != "" && e.changeID != change {
			return nil, &AmbiguousPrefixError{Prefix: prefix}
		}
		change = e.changeID
		out = append(out, Pos(i))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("change id prefix %q: %w", prefix, dag.ErrNotFound)
	}
	s.SortPos(out)
	return out, nil
}
