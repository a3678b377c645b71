// Package pool implements the tiered arena pools of spec §4.K: reusable
// backing slices for node-vectors, attribute-vectors, and string-vectors.
// It is grounded on a node-pool idiom, but pools *capacity tiers* of slices
// rather than typed nodes since axis results have no fixed struct shape to
// recycle. No other package in this module acquires from these pools: the
// axis evaluator and the function library allocate their slices directly.
package pool

import "sync"

// tiers are the five capacity classes spec §4.K specifies. A request for N
// items is served from the smallest tier able to hold N without growth.
var tiers = [5]int{16, 64, 256, 1024, 4096}

func tierFor(capacityHint int) int {
	for _, t := range tiers {
		if capacityHint <= t {
			return t
		}
	}
	return capacityHint
}

// VectorPool pools slices of a uniform element size class, keyed by tier.
// The three spec-named pools (node-vector, attribute-vector, string-vector)
// are separate instances so their retained memory never cross-contaminates
// unrelated call sites.
type VectorPool struct {
	name  string
	pools [5]sync.Pool
}

func newVectorPool(name string) *VectorPool {
	vp := &VectorPool{name: name}
	for i, tier := range tiers {
		capacity := tier
		vp.pools[i] = sync.Pool{New: func() interface{} {
			return make([]interface{}, 0, capacity)
		}}
	}
	return vp
}

func tierIndex(capacityHint int) int {
	for i, t := range tiers {
		if capacityHint <= t {
			return i
		}
	}
	return len(tiers) - 1
}

// Acquire returns a zero-length slice with capacity for at least
// capacityHint items, reused from the appropriate tier when available.
func (vp *VectorPool) Acquire(capacityHint int) []interface{} {
	if capacityHint > tiers[len(tiers)-1] {
		return make([]interface{}, 0, capacityHint)
	}
	idx := tierIndex(capacityHint)
	s := vp.pools[idx].Get().([]interface{})
	return s[:0]
}

// Release returns s to its tier pool after clearing its contents so pooled
// slices never pin referenced values alive past their use (spec §4.K
// "clear before return to avoid retaining references").
func (vp *VectorPool) Release(s []interface{}) {
	idx := -1
	for j, t := range tiers {
		if cap(s) >= t {
			idx = j
		}
	}
	if idx < 0 {
		return
	}
	for i := range s {
		s[i] = nil
	}
	vp.pools[idx].Put(s[:0])
}

var (
	nodeVectors      = newVectorPool("node-vector")
	attributeVectors = newVectorPool("attribute-vector")
	stringVectors    = newVectorPool("string-vector")
)

// AcquireNodeVector/ReleaseNodeVector are the node-vector pool's entry
// points.
func AcquireNodeVector(capacityHint int) []interface{} { return nodeVectors.Acquire(capacityHint) }
func ReleaseNodeVector(s []interface{})                { nodeVectors.Release(s) }

// AcquireAttributeVector/ReleaseAttributeVector are the attribute-vector
// pool's entry points.
func AcquireAttributeVector(capacityHint int) []interface{} {
	return attributeVectors.Acquire(capacityHint)
}
func ReleaseAttributeVector(s []interface{}) { attributeVectors.Release(s) }

// AcquireStringVector/ReleaseStringVector are the string-vector pool's
// entry points.
func AcquireStringVector(capacityHint int) []interface{} {
	return stringVectors.Acquire(capacityHint)
}
func ReleaseStringVector(s []interface{}) { stringVectors.Release(s) }
