// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package weatherd

// freeList is a fixed-capacity stack of free slot indices. The lowest
// indices are handed out first, on a fresh list.
type freeList struct {
	stack []int
	inUse []bool
}

func newFreeList(n int) freeList {
	f := freeList{
		stack: make([]int, n),
		inUse: make([]bool, n),
	}
	for i := range f.stack {
		f.stack[i] = n - 1 - i
	}
	return f
}

// alloc returns -1 if the list is empty.
func (f *freeList) alloc() int {
	n := len(f.stack)
	if n == 0 {
		return -1
	}
	i := f.stack[n-1]
	f.stack = f.stack[:n-1]
	f.inUse[i] = true
	return i
}

// release reports false if i was not allocated.
func (f *freeList) release(i int) bool {
	if i < 0 || i >= len(f.inUse) || !f.inUse[i] {
		return false
	}
	f.inUse[i] = false
	f.stack = append(f.stack, i)
	return true
}

func (f *freeList) free() int { return len(f.stack) }

func (f *freeList) used() int { return len(f.inUse) - len(f.stack) }
