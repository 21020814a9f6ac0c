// Package heap implements the indexed min-heap spec.md §4.1 describes: a
// binary min-heap over customer slot indices, keyed by the owner-supplied
// share, with an O(1) back-pointer from each slot to its current heap
// position so that Delete is O(log n) instead of a linear scan.
package heap

import (
	"errors"

	"github.com/KereMath/toolshare/lib/util/decorator"
)

// ErrAlreadyPresent is returned by Insert when the slot already has a
// heap index, and by nothing else — it's a precondition violation, not a
// runtime error, so callers should log it and move on (spec.md §7).
var ErrAlreadyPresent = errors.New("heap: slot already present")

// ErrNotPresent is returned by Delete when the slot has no heap index.
var ErrNotPresent = errors.New("heap: slot not present")

// ErrFull is returned by Insert when the heap is already at capacity.
var ErrFull = errors.New("heap: at capacity")

// Backing is implemented by the owner of the keys this heap orders on.
// The heap never stores shares itself — it asks the backing store for a
// slot's current share, and tells the backing store where a slot landed.
type Backing interface {
	// Share returns the current fairness key for slot.
	Share(slot int) float64
	// HeapIndex returns slot's current position in the heap, or -1 if
	// slot isn't in the heap.
	HeapIndex(slot int) int
	// SetHeapIndex records slot's new position, or -1 when removed.
	SetHeapIndex(slot int, idx int)
}

// Heap is an indexed binary min-heap over customer slot indices.
type Heap struct {
	_    decorator.NoCopy
	back Backing
	cap  int
	arr  []int
}

// New builds a Heap backed by back, bounded at capacity entries.
func New(back Backing, capacity int) *Heap {
	return &Heap{
		back: back,
		cap:  capacity,
		arr:  make([]int, 0, capacity),
	}
}

// Len returns the number of entries currently queued.
func (h *Heap) Len() int {
	return len(h.arr)
}

// PeekMin returns the slot with the smallest share without mutating the
// heap. O(1).
func (h *Heap) PeekMin() (slot int, ok bool) {
	if len(h.arr) == 0 {
		return 0, false
	}
	return h.arr[0], true
}

// Insert adds slot to the heap, keyed by its current share. Fails if slot
// is already present or the heap is full; in either case the heap is left
// unchanged and no panic occurs (spec.md §4.1's fault model).
func (h *Heap) Insert(slot int) error {
	if h.back.HeapIndex(slot) != -1 {
		return ErrAlreadyPresent
	}
	if len(h.arr) >= h.cap {
		return ErrFull
	}
	h.arr = append(h.arr, slot)
	idx := len(h.arr) - 1
	h.back.SetHeapIndex(slot, idx)
	h.siftUp(idx)
	return nil
}

// PopMin removes and returns the slot with the smallest share.
func (h *Heap) PopMin() (slot int, ok bool) {
	if len(h.arr) == 0 {
		return 0, false
	}
	top := h.arr[0]
	last := len(h.arr) - 1
	h.swap(0, last)
	h.arr = h.arr[:last]
	h.back.SetHeapIndex(top, -1)
	if len(h.arr) > 0 {
		h.siftDown(0)
	}
	return top, true
}

// Delete removes slot from the heap wherever it currently sits. Fails if
// slot has no heap index; heap is left unchanged in that case.
//
// After swapping the removed slot with the last array entry, the element
// that landed in the vacated position may violate the heap property in
// either direction — the last element can be smaller than the parent of
// the removed position, so a single sift direction is not sufficient.
// Both are attempted; at most one actually moves anything.
func (h *Heap) Delete(slot int) error {
	idx := h.back.HeapIndex(slot)
	if idx < 0 || idx >= len(h.arr) || h.arr[idx] != slot {
		return ErrNotPresent
	}
	last := len(h.arr) - 1
	h.swap(idx, last)
	h.arr = h.arr[:last]
	h.back.SetHeapIndex(slot, -1)
	if idx < len(h.arr) {
		h.siftUp(idx)
		h.siftDown(idx)
	}
	return nil
}

func (h *Heap) less(i, j int) bool {
	return h.back.Share(h.arr[i]) < h.back.Share(h.arr[j])
}

func (h *Heap) swap(i, j int) {
	h.arr[i], h.arr[j] = h.arr[j], h.arr[i]
	h.back.SetHeapIndex(h.arr[i], i)
	h.back.SetHeapIndex(h.arr[j], j)
}

func (h *Heap) siftUp(idx int) {
	for idx > 0 {
		parent := (idx - 1) / 2
		if !h.less(idx, parent) {
			return
		}
		h.swap(idx, parent)
		idx = parent
	}
}

func (h *Heap) siftDown(idx int) {
	n := len(h.arr)
	for {
		left := idx*2 + 1
		right := idx*2 + 2
		smallest := idx
		if left < n && h.less(left, smallest) {
			smallest = left
		}
		if right < n && h.less(right, smallest) {
			smallest = right
		}
		if smallest == idx {
			return
		}
		h.swap(idx, smallest)
		idx = smallest
	}
}
