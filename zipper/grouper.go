package zipper

import (
	"sort"
	"strings"
)

// counterPrefix marks per-record count columns: nJet counts the Jet
// collection.
const counterPrefix = "n"

// Shape classifies a column group.
type Shape int

// The four group shapes.
const (
	FlatArray Shape = iota
	JaggedArray
	FlatRecord
	JaggedRecord
)

// String returns the shape name.
func (s Shape) String() string {
	switch s {
	case FlatArray:
		return "FlatArray"
	case JaggedArray:
		return "JaggedArray"
	case FlatRecord:
		return "FlatRecord"
	case JaggedRecord:
		return "JaggedRecord"
	default:
		return "Unknown"
	}
}

// Group is a set of columns forming one named collection.
type Group struct {
	Name      string
	Shape     Shape
	Members   []string // member field suffixes, sorted; empty for array shapes
	CountName string   // the consumed count column, "" if none
}

// GroupColumns classifies column names into collection groups:
//
//   - a name with no member columns is a flat array, or a jagged array when
//     its count column exists too;
//   - a prefix with member columns (prefix_*) is a flat record, or a jagged
//     record when the count column exists (count presence is decisive).
//
// A member column belongs to the longest candidate prefix that gathers a
// non-empty member set. Names consumed neither as group, member nor count are
// returned as the unclassified diagnostic list, as is a count column whose
// collection does not exist.
func GroupColumns(names []string) (map[string]*Group, []string) {
	nameSet := make(map[string]bool, len(names))
	for _, n := range names {
		nameSet[n] = true
	}

	var plain []string
	counters := make(map[string]string) // collection name -> count column
	for _, n := range names {
		if len(n) > 1 && strings.HasPrefix(n, counterPrefix) {
			counters[n[len(counterPrefix):]] = n
			continue
		}
		plain = append(plain, n)
	}

	// Candidate group names: every first "_" segment, every counter's
	// collection, and every full name extended by some other name.
	cands := make(map[string]bool)
	for _, n := range plain {
		if i := strings.Index(n, "_"); i > 0 {
			cands[n[:i]] = true
		} else {
			cands[n] = true
		}
	}
	for base := range counters {
		cands[base] = true
	}
	for _, n := range plain {
		for _, m := range plain {
			if m != n && strings.HasPrefix(m, n+"_") {
				cands[n] = true
			}
		}
	}

	ordered := make([]string, 0, len(cands))
	for c := range cands {
		ordered = append(ordered, c)
	}
	// longest-prefix tie-break: try longer candidates first
	sort.Slice(ordered, func(i, j int) bool {
		if len(ordered[i]) != len(ordered[j]) {
			return len(ordered[i]) > len(ordered[j])
		}
		return ordered[i] < ordered[j]
	})

	members := make(map[string][]string)
	own := make(map[string]bool)
	var unclassified []string
	for _, n := range plain {
		best := ""
		for _, c := range ordered {
			if n == c || strings.HasPrefix(n, c+"_") {
				best = c
				break
			}
		}
		switch {
		case best == "":
			unclassified = append(unclassified, n)
		case n == best:
			own[best] = true
		default:
			members[best] = append(members[best], n[len(best)+1:])
		}
	}

	groups := make(map[string]*Group)
	for _, c := range ordered {
		countName, hasCount := counters[c]
		mem := members[c]
		sort.Strings(mem)

		switch {
		case len(mem) > 0 && hasCount:
			groups[c] = &Group{Name: c, Shape: JaggedRecord, Members: mem, CountName: countName}
		case len(mem) > 0:
			groups[c] = &Group{Name: c, Shape: FlatRecord, Members: mem}
		case own[c] && hasCount:
			groups[c] = &Group{Name: c, Shape: JaggedArray, CountName: countName}
		case own[c]:
			groups[c] = &Group{Name: c, Shape: FlatArray}
		case hasCount:
			// count column whose collection never materialized
			unclassified = append(unclassified, countName)
		}

		// a bare column shadowed by a record of the same name is excluded
		if len(mem) > 0 && own[c] {
			unclassified = append(unclassified, c)
		}
	}

	sort.Strings(unclassified)
	return groups, unclassified
}
