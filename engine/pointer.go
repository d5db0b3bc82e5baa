package engine

import "sync/atomic"

// indexBits is the width, in bits, of the record-index field packed into
// a versioned state pointer. spec.md §9: "If 24 bits are insufficient for
// a chosen pool size, widen via double-wide CAS or shrink seq." 24 bits
// addresses up to 16M records, far beyond any realistic LocalPoolSize*N+1.
const indexBits = 24
const indexMask = uint64(1)<<indexBits - 1
const seqBits = 64 - indexBits

// pointerT is PWFComb's versioned state pointer S: a 64-bit word packing
// a 40-bit sequence number and a 24-bit record index, CAS'd as one unit
// so a publication can never be observed half-written.
type pointerT uint64

func packPointer(seq uint64, index int) pointerT {
	return pointerT((seq<<indexBits)&^indexMask | (uint64(index) & indexMask))
}

func (p pointerT) seq() uint64 { return uint64(p) >> indexBits }
func (p pointerT) index() int  { return int(uint64(p) & indexMask) }

// atomicPointer is a thin wrapper around atomic.Uint64 typed for pointerT,
// matching the reference's pointer_t union of {seq,index} and a raw
// 64-bit word used interchangeably by the CAS.
type atomicPointer struct {
	v atomic.Uint64
}

func (a *atomicPointer) load() pointerT {
	return pointerT(a.v.Load())
}

func (a *atomicPointer) store(p pointerT) {
	a.v.Store(uint64(p))
}

func (a *atomicPointer) compareAndSwap(old, new pointerT) bool {
	return a.v.CompareAndSwap(uint64(old), uint64(new))
}
