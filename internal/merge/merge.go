// Package merge implements conflicts as data: a Merge is an alternating
// list of added and removed values that can be simplified, nested, and
// resolved, plus the tree and file level merges built on top of it.
package merge

import (
	"fmt"
	"slices"
)

// Merge holds terms [add0, remove0, add1, remove1, ..., addN]. A Merge with
// a single term is resolved.
type Merge[T comparable] struct {
	terms []T
}

// Resolved returns a Merge holding the single value v.
func Resolved[T comparable](v T) Merge[T] {
	return Merge[T]{terms: []T{v}}
}

// New builds a Merge from its adds and removes. It panics unless there is
// exactly one more add than removes.
func New[T comparable](adds, removes []T) Merge[T] {
	if len(adds) != len(removes)+1 {
		panic(fmt.Sprintf("merge: %d adds and %d removes", len(adds), len(removes)))
	}
	terms := make([]T, 0, len(adds)+len(removes))
	for i, r := range removes {
		terms = append(terms, adds[i], r)
	}
	return Merge[T]{terms: append(terms, adds[len(adds)-1])}
}

// FromTerms builds a Merge from an interleaved term list.
func FromTerms[T comparable](terms []T) (Merge[T], error) {
	if len(terms)%2 == 0 {
		return Merge[T]{}, fmt.Errorf("merge: %d terms, want an odd number", len(terms))
	}
	return Merge[T]{terms: slices.Clone(terms)}, nil
}

// ThreeWay returns the Merge of side1 and side2 relative to base.
func ThreeWay[T comparable](base, side1, side2 T) Merge[T] {
	return Merge[T]{terms: []T{side1, base, side2}}
}

// Terms returns a copy of the interleaved term list.
func (m Merge[T]) Terms() []T { return slices.Clone(m.terms) }

// Len returns the number of terms.
func (m Merge[T]) Len() int { return len(m.terms) }

// Adds returns the added terms.
func (m Merge[T]) Adds() []T {
	out := make([]T, 0, len(m.terms)/2+1)
	for i := 0; i < len(m.terms); i += 2 {
		out = append(out, m.terms[i])
	}
	return out
}

// Removes returns the removed terms.
func (m Merge[T]) Removes() []T {
	out := make([]T, 0, len(m.terms)/2)
	for i := 1; i < len(m.terms); i += 2 {
		out = append(out, m.terms[i])
	}
	return out
}

// IsResolved reports whether m has a single term.
func (m Merge[T]) IsResolved() bool { return len(m.terms) == 1 }

// AsResolved returns the single term of a resolved Merge.
func (m Merge[T]) AsResolved() (T, bool) {
	if len(m.terms) == 1 {
		return m.terms[0], true
	}
	var zero T
	return zero, false
}

// Equal reports whether m and other have identical term lists.
func (m Merge[T]) Equal(other Merge[T]) bool { return slices.Equal(m.terms, other.terms) }

// Simplify cancels every remove against an equal add. The relative order of
// the remaining terms is kept, so simplifying a 3-way merge whose sides
// agree with the base collapses it to one term.
func (m Merge[T]) Simplify() Merge[T] {
	terms := slices.Clone(m.terms)
	addIndex := 0
	for addIndex < len(terms) {
		add := terms[addIndex]
		k := -1
		for i := 1; i < len(terms); i += 2 {
			if terms[i] == add {
				k = i / 2
				break
			}
		}
		if k < 0 {
			addIndex += 2
			continue
		}
		// Move the add into slot 2k, then drop the pair (add, remove k).
		terms[2*k], terms[addIndex] = terms[addIndex], terms[2*k]
		terms = slices.Delete(terms, 2*k, 2*k+2)
	}
	return Merge[T]{terms: terms}
}

// Resolve applies the trivial merge rule. Adds count +1 and removes -1 per
// distinct value; values whose count reaches zero cancel. If one value is
// left it is the result. If two are left their counts sum to one and the
// positive one wins, because every side made the same change. Anything else
// is a real conflict.
func (m Merge[T]) Resolve() (T, bool) {
	var zero T
	if len(m.terms) == 1 {
		return m.terms[0], true
	}
	if len(m.terms) == 3 {
		a0, r0, a1 := m.terms[0], m.terms[1], m.terms[2]
		switch {
		case a0 == a1:
			return a0, true
		case a0 == r0:
			return a1, true
		case a1 == r0:
			return a0, true
		}
		return zero, false
	}

	var order []T
	counts := make(map[T]int)
	for i, v := range m.terms {
		if _, ok := counts[v]; !ok {
			order = append(order, v)
		}
		if i%2 == 0 {
			counts[v]++
		} else {
			counts[v]--
		}
	}
	var left []T
	for _, v := range order {
		if counts[v] != 0 {
			left = append(left, v)
		}
	}
	switch len(left) {
	case 1:
		if counts[left[0]] == 1 {
			return left[0], true
		}
	case 2:
		if counts[left[0]] > 0 {
			return left[0], true
		}
		return left[1], true
	}
	return zero, false
}

// Map applies f to every term.
func Map[T, U comparable](m Merge[T], f func(T) U) Merge[U] {
	out := make([]U, len(m.terms))
	for i, v := range m.terms {
		out[i] = f(v)
	}
	return Merge[U]{terms: out}
}

// MapErr applies f to every term and stops at the first error.
func MapErr[T, U comparable](m Merge[T], f func(T) (U, error)) (Merge[U], error) {
	out := make([]U, len(m.terms))
	for i, v := range m.terms {
		u, err := f(v)
		if err != nil {
			return Merge[U]{}, err
		}
		out[i] = u
	}
	return Merge[U]{terms: out}, nil
}

// Flatten turns a merge of merges into a single merge. Removed inner merges
// are negated: their adds become removes and their removes become adds.
func Flatten[T comparable](outer []Merge[T]) Merge[T] {
	if len(outer)%2 == 0 {
		panic(fmt.Sprintf("merge: flatten of %d terms", len(outer)))
	}
	result := slices.Clone(outer[0].terms)
	for i := 1; i < len(outer); i += 2 {
		removed := slices.Clone(outer[i].terms)
		// [a0 r0 a1 ... an] becomes [a1 r0 a2 r1 ... a0]: every add lands in
		// a remove slot and every remove in an add slot.
		removed = append(removed[1:], removed[0])
		for j := 0; j+1 < len(removed); j += 2 {
			removed[j], removed[j+1] = removed[j+1], removed[j]
		}
		result = append(result, removed...)
		result = append(result, outer[i+1].terms...)
	}
	return Merge[T]{terms: result}
}

// Merge3 merges two merges against a base merge and simplifies the result.
// Merges of conflicts chained more than one deep are applied pairwise: the
// output of one call is the input of the next.
func Merge3[T comparable](base, side1, side2 Merge[T]) Merge[T] {
	return Flatten([]Merge[T]{side1, base, side2}).Simplify()
}
