package kernels

import (
	"errors"
	"reflect"
	"testing"
)

func TestChildren(t *testing.T) {
	// one record, four particles; 0 is the root, 1 and 2 are its children,
	// 3 is a child of 1
	offsets := []int64{0, 4}
	parents := []int64{-1, 0, 0, 1}

	children, err := Children(offsets, parents)
	if err != nil {
		t.Fatalf("Children failed: %v", err)
	}

	expected := [][]int64{{1, 2}, {3}, {}, {}}
	if !reflect.DeepEqual(records(children), expected) {
		t.Errorf("Expected %v, got %v", expected, records(children))
	}
}

func TestChildrenMultipleRecords(t *testing.T) {
	offsets := []int64{0, 2, 4}
	parents := []int64{-1, 0, -1, 2}

	children, err := Children(offsets, parents)
	if err != nil {
		t.Fatalf("Children failed: %v", err)
	}

	expected := [][]int64{{1}, {}, {3}, {}}
	if !reflect.DeepEqual(records(children), expected) {
		t.Errorf("Expected %v, got %v", expected, records(children))
	}
}

func TestChildrenBadOffsets(t *testing.T) {
	if _, err := Children([]int64{0, 3}, []int64{-1, 0}); !errors.Is(err, ErrDataShape) {
		t.Errorf("Expected ErrDataShape, got %v", err)
	}
}

func TestDistinctParent(t *testing.T) {
	// particle 2 repeats its parent's id, so its distinct parent is the
	// chain's origin
	parents := []int64{-1, 0, 1, 1}
	ids := []int64{25, 22, 22, 111}

	out, err := DistinctParent(parents, ids)
	if err != nil {
		t.Fatalf("DistinctParent failed: %v", err)
	}

	expected := []int64{-1, 0, 0, 1}
	if !reflect.DeepEqual(out, expected) {
		t.Errorf("Expected %v, got %v", expected, out)
	}
}

func TestDistinctParentLengthMismatch(t *testing.T) {
	if _, err := DistinctParent([]int64{-1}, []int64{1, 2}); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch, got %v", err)
	}
}

func TestDistinctParentOutOfRange(t *testing.T) {
	// parent chain walks to index 5 which does not exist
	parents := []int64{5, 0}
	ids := []int64{7, 7}

	if _, err := DistinctParent(parents, ids); !errors.Is(err, ErrIndexRange) {
		t.Errorf("Expected ErrIndexRange, got %v", err)
	}
}

func TestDistinctChildrenDeep(t *testing.T) {
	// 0 (id 25) -> 1 (id 22) -> 2 (id 22) -> {3 (id 11), 4 (id -11)}
	// particle 1 starts the id-22 chain, so it owns the deep children 3 and 4;
	// particle 2 is an intermediate link and owns nothing
	offsets := []int64{0, 5}
	parents := []int64{-1, 0, 1, 2, 2}
	ids := []int64{25, 22, 22, 11, -11}

	deep, err := DistinctChildrenDeep(offsets, parents, ids)
	if err != nil {
		t.Fatalf("DistinctChildrenDeep failed: %v", err)
	}

	expected := [][]int64{{}, {3, 4}, {}, {}, {}}
	if !reflect.DeepEqual(records(deep), expected) {
		t.Errorf("Expected %v, got %v", expected, records(deep))
	}
}

func TestDistinctChildrenDeepChildlessChainLeaf(t *testing.T) {
	// 0 (id 25) -> 1 (id 22) -> 2 (id 22), and 2 has no children of its own:
	// the chain leaf itself is reported as the deep child
	offsets := []int64{0, 3}
	parents := []int64{-1, 0, 1}
	ids := []int64{25, 22, 22}

	deep, err := DistinctChildrenDeep(offsets, parents, ids)
	if err != nil {
		t.Fatalf("DistinctChildrenDeep failed: %v", err)
	}

	expected := [][]int64{{}, {2}, {}}
	if !reflect.DeepEqual(records(deep), expected) {
		t.Errorf("Expected %v, got %v", expected, records(deep))
	}
}
