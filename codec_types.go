package jsandy

import (
	"math/big"
	"time"

	om "github.com/wk8/go-ordered-map/v2"
)

// tag identifies how a value was encoded so the decoder can reconstruct the
// original Go shape from plain JSON.
type tag string

const (
	tagDate      tag = "date"
	tagBigInt    tag = "bigint"
	tagUndefined tag = "undefined"
	tagSet       tag = "set"
	tagMap       tag = "map"
)

// Undefined is jsandy's tagged stand-in for a field that was explicitly set
// to "undefined" rather than omitted entirely. Plain JSON cannot distinguish
// the two; the codec tags Undefined explicitly so decoders can tell missing
// keys from keys present with no value.
type Undefined struct{}

// OrderedSet is a tagged, order-preserving set of comparable elements. It is
// backed by go-ordered-map/v2 so that insertion order survives encode/decode,
// matching spec.md §8's round-trip invariant ("iteration order preserved").
type OrderedSet[T comparable] struct {
	m *om.OrderedMap[T, struct{}]
}

// NewOrderedSet builds an OrderedSet from the given elements, preserving the
// order they're passed in.
func NewOrderedSet[T comparable](elems ...T) *OrderedSet[T] {
	s := &OrderedSet[T]{m: om.New[T, struct{}]()}
	for _, e := range elems {
		s.m.Set(e, struct{}{})
	}
	return s
}

// Add inserts an element if absent; re-adding an existing element does not
// move it.
func (s *OrderedSet[T]) Add(v T) {
	if s.m == nil {
		s.m = om.New[T, struct{}]()
	}
	if _, ok := s.m.Get(v); !ok {
		s.m.Set(v, struct{}{})
	}
}

// Has reports whether v is a member of the set.
func (s *OrderedSet[T]) Has(v T) bool {
	if s.m == nil {
		return false
	}
	_, ok := s.m.Get(v)
	return ok
}

// Values returns the set's elements in insertion order.
func (s *OrderedSet[T]) Values() []T {
	if s.m == nil {
		return nil
	}
	out := make([]T, 0, s.m.Len())
	for pair := s.m.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Key)
	}
	return out
}

// Len returns the number of elements in the set.
func (s *OrderedSet[T]) Len() int {
	if s.m == nil {
		return 0
	}
	return s.m.Len()
}

// OrderedMap is a tagged, order-preserving string-keyed mapping, used for
// values that need object semantics but must not be silently reordered by a
// Go map on encode/decode.
type OrderedMap struct {
	m *om.OrderedMap[string, any]
}

// NewOrderedMap creates an empty OrderedMap.
func NewOrderedMap() *OrderedMap {
	return &OrderedMap{m: om.New[string, any]()}
}

// Set inserts or updates key, preserving first-insertion order.
func (o *OrderedMap) Set(key string, value any) {
	if o.m == nil {
		o.m = om.New[string, any]()
	}
	o.m.Set(key, value)
}

// Get retrieves the value stored at key.
func (o *OrderedMap) Get(key string) (any, bool) {
	if o.m == nil {
		return nil, false
	}
	return o.m.Get(key)
}

// Keys returns the map's keys in insertion order.
func (o *OrderedMap) Keys() []string {
	if o.m == nil {
		return nil
	}
	out := make([]string, 0, o.m.Len())
	for pair := o.m.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Key)
	}
	return out
}

// Len returns the number of entries in the map.
func (o *OrderedMap) Len() int {
	if o.m == nil {
		return 0
	}
	return o.m.Len()
}

// these re-exports keep call sites from needing to import time/big/om
// directly when only talking to the codec.
type (
	// Date is a tagged wire value backed by time.Time.
	Date = time.Time
	// BigInt is a tagged wire value backed by math/big.Int, used for
	// integers that exceed the safe range of a float64-based JSON number.
	BigInt = big.Int
)
