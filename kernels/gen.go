package kernels

import "fmt"

// Children inverts a globalized parent index: for every item it collects the
// indices of the items naming it as parent. offsets addresses the records of
// the collection, parents is the flat globalized parent index (negative
// entries mean no parent).
//
// The result is jagged per item (not per record): Offsets has
// len(parents)+1 entries.
func Children(offsets []int64, parents []int64) (Jagged, error) {
	if len(offsets) == 0 || offsets[len(offsets)-1] != int64(len(parents)) {
		return Jagged{}, fmt.Errorf("%w: offsets address %d items but parents has %d",
			ErrDataShape, offsetsTotal(offsets), len(parents))
	}

	childOffsets := make([]int64, len(parents)+1)
	content := make([]int64, 0, len(parents))
	next := 1
	for rec := 0; rec < len(offsets)-1; rec++ {
		start, stop := offsets[rec], offsets[rec+1]
		for idx := start; idx < stop; idx++ {
			// children only appear after their parent within the record
			for cand := idx; cand < stop; cand++ {
				if parents[cand] == idx {
					content = append(content, cand)
				}
			}
			childOffsets[next] = int64(len(content))
			next++
		}
	}
	return Jagged{Offsets: childOffsets, Content: content}, nil
}

// DistinctParent walks each item's parent chain until it reaches an ancestor
// whose id differs from the item's own, producing a flat global index.
// Items without a parent map to -1. parents and ids must be flat globalized
// arrays of equal length.
func DistinctParent(parents []int64, ids []int64) ([]int64, error) {
	if len(parents) != len(ids) {
		return nil, fmt.Errorf("%w: parents has %d entries, ids %d",
			ErrShapeMismatch, len(parents), len(ids))
	}
	out := make([]int64, len(ids))
	for i := range ids {
		parent := parents[i]
		if parent < 0 {
			out[i] = -1
			continue
		}
		thisID := ids[i]
		for parent >= 0 {
			if parent >= int64(len(ids)) {
				return nil, fmt.Errorf("%w: parent index %d beyond array length %d",
					ErrIndexRange, parent, len(ids))
			}
			if ids[parent] != thisID {
				break
			}
			parent = parents[parent]
		}
		out[i] = parent
	}
	return out, nil
}

// DistinctChildrenDeep collects, per item, all children reached by skipping
// over chain links that carry the item's own id. Only items that start a
// chain (their parent has a different id) get a non-empty list, so child
// indices are never repeated along the chain.
//
// offsets addresses the records, parents and ids are flat globalized arrays.
func DistinctChildrenDeep(offsets []int64, parents []int64, ids []int64) (Jagged, error) {
	if len(parents) != len(ids) {
		return Jagged{}, fmt.Errorf("%w: parents has %d entries, ids %d",
			ErrShapeMismatch, len(parents), len(ids))
	}
	if len(offsets) == 0 || offsets[len(offsets)-1] != int64(len(parents)) {
		return Jagged{}, fmt.Errorf("%w: offsets address %d items but parents has %d",
			ErrDataShape, offsetsTotal(offsets), len(parents))
	}

	outOffsets := make([]int64, len(parents)+1)
	content := make([]int64, 0, len(parents))
	next := 1
	for rec := 0; rec < len(offsets)-1; rec++ {
		start, stop := offsets[rec], offsets[rec+1]
		for idx := start; idx < stop; idx++ {
			thisID := ids[idx]
			if parents[idx] >= 0 && ids[parents[idx]] != thisID {
				content = appendDeepChildren(content, parents, ids, idx, stop, thisID)
			}
			outOffsets[next] = int64(len(content))
			next++
		}
	}
	return Jagged{Offsets: outOffsets, Content: content}, nil
}

// appendDeepChildren scans the record tail for children of idx or of any
// same-id descendant of idx, appending the different-id ones to content.
func appendDeepChildren(content []int64, parents, ids []int64, idx, stop, thisID int64) []int64 {
	// same-id chain members seen so far, starting with idx itself
	chain := make([]int64, 1, stop-idx)
	chain[0] = idx
	// chain members known to have at least one child
	withChildren := make([]int64, 0, stop-idx)

	for cand := idx; cand < stop; cand++ {
		parent := parents[cand]
		for _, link := range chain {
			if link != parent {
				continue
			}
			withChildren = append(withChildren, parent)
			if ids[cand] == thisID {
				chain = append(chain, cand)
			} else {
				content = append(content, cand)
			}
			break
		}
	}

	// childless same-id chain members count as leaves of the chain
	for _, link := range chain[1:] {
		leaf := true
		for _, p := range withChildren {
			if p == link {
				leaf = false
				break
			}
		}
		if leaf {
			content = append(content, link)
		}
	}
	return content
}

func offsetsTotal(offsets []int64) int64 {
	if len(offsets) == 0 {
		return 0
	}
	return offsets[len(offsets)-1]
}
