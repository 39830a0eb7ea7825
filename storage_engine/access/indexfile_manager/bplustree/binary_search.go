package bplus

import (
	"QuadDB/storage_engine/record"
)

// childIndex picks the child of n whose range holds key: the number of
// separators <= key, so ties go to the right child.
func childIndex(keys []record.Record, key []byte) int {
	lo, hi := 0, len(keys)
	for lo < hi {
		mid := lo + (hi-lo)/2
		if record.CompareKey(keys[mid], key) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// searchRecords finds key in sorted recs: index and true on a match, else the
// insertion point and false.
func searchRecords(recs []record.Record, key []byte) (int, bool) {
	lo, hi := 0, len(recs)
	for lo < hi {
		mid := lo + (hi-lo)/2
		if record.CompareKey(recs[mid], key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo, lo < len(recs) && record.CompareKey(recs[lo], key) == 0
}

// insert inserts elem at index i in slice.
func insert[T any](slice []T, i int, elem T) []T {
	slice = append(slice, elem) // grow by 1
	copy(slice[i+1:], slice[i:])
	slice[i] = elem
	return slice
}

// remove removes element at index i from slice.
func remove[T any](slice []T, i int) []T {
	return append(slice[:i], slice[i+1:]...)
}
