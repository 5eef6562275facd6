package config

import (
	"encoding/json"
	"fmt"
	"sort"
)

// StageID identifies one stage of the contest. Valid IDs are dense and
// 1-based: [1, Contest.Total].
type StageID int

// String renders the stage for logs and CLI output.
func (s StageID) String() string {
	return fmt.Sprintf("stage %d", int(s))
}

// StageSet is an immutable, sorted, de-duplicated set of stages.
//
// The zero value is the empty set. All mutating operations return a new set,
// so a StageSet handed out as a snapshot can never change under the holder.
// The JSON form is a sorted integer list, e.g. [1,2,4].
type StageSet struct {
	ids []StageID
}

// NewStageSet builds a set from arbitrary (unsorted, duplicated) IDs.
func NewStageSet(ids ...StageID) StageSet {
	if len(ids) == 0 {
		return StageSet{}
	}
	cp := make([]StageID, len(ids))
	copy(cp, ids)
	sort.Slice(cp, func(i, j int) bool { return cp[i] < cp[j] })

	out := cp[:0]
	for i, id := range cp {
		if i > 0 && id == cp[i-1] {
			continue
		}
		out = append(out, id)
	}
	return StageSet{ids: out}
}

// StageSetFromInts converts a persisted integer list into a set.
func StageSetFromInts(ints []int) StageSet {
	ids := make([]StageID, len(ints))
	for i, n := range ints {
		ids[i] = StageID(n)
	}
	return NewStageSet(ids...)
}

// Contains reports whether id is in the set.
func (s StageSet) Contains(id StageID) bool {
	i := sort.Search(len(s.ids), func(i int) bool { return s.ids[i] >= id })
	return i < len(s.ids) && s.ids[i] == id
}

// Len returns the number of stages in the set.
func (s StageSet) Len() int {
	return len(s.ids)
}

// IsEmpty reports whether the set has no stages.
func (s StageSet) IsEmpty() bool {
	return len(s.ids) == 0
}

// Add returns a new set containing id in addition to the receiver.
func (s StageSet) Add(id StageID) StageSet {
	if s.Contains(id) {
		return s
	}
	return NewStageSet(append(s.Sorted(), id)...)
}

// Union returns the set union. It is commutative and idempotent.
func (s StageSet) Union(other StageSet) StageSet {
	if other.IsEmpty() {
		return s
	}
	if s.IsEmpty() {
		return other
	}
	merged := make([]StageID, 0, len(s.ids)+len(other.ids))
	merged = append(merged, s.ids...)
	merged = append(merged, other.ids...)
	return NewStageSet(merged...)
}

// Within drops every stage outside [1, total].
func (s StageSet) Within(total int) StageSet {
	out := make([]StageID, 0, len(s.ids))
	for _, id := range s.ids {
		if id >= 1 && int(id) <= total {
			out = append(out, id)
		}
	}
	return StageSet{ids: out}
}

// Equal reports whether both sets hold the same stages.
func (s StageSet) Equal(other StageSet) bool {
	if len(s.ids) != len(other.ids) {
		return false
	}
	for i := range s.ids {
		if s.ids[i] != other.ids[i] {
			return false
		}
	}
	return true
}

// Sorted returns a copy of the sorted stage IDs.
func (s StageSet) Sorted() []StageID {
	out := make([]StageID, len(s.ids))
	copy(out, s.ids)
	return out
}

// Ints returns the sorted stage IDs as plain integers (persistence form).
func (s StageSet) Ints() []int {
	out := make([]int, len(s.ids))
	for i, id := range s.ids {
		out[i] = int(id)
	}
	return out
}

// MarshalJSON encodes the set as a sorted integer list. The empty set
// encodes as [] rather than null.
func (s StageSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Ints())
}

// UnmarshalJSON decodes an integer list, sorting and de-duplicating it.
func (s *StageSet) UnmarshalJSON(data []byte) error {
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return fmt.Errorf("decode stage set: %w", err)
	}
	*s = StageSetFromInts(ints)
	return nil
}
