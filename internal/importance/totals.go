package importance

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Totals accumulates rank positions per hyperparameter. Names keep the order
// they were seeded in.
type Totals struct {
	names  []string
	values map[string]float64
}

// NewTotals seeds every name at zero. Repeated names are ignored.
func NewTotals(names []string) *Totals {
	t := &Totals{values: make(map[string]float64, len(names))}
	for _, name := range names {
		if _, ok := t.values[name]; ok {
			continue
		}
		t.names = append(t.names, name)
		t.values[name] = 0
	}
	return t
}

// Names returns the seeded names in order.
func (t *Totals) Names() []string {
	return append([]string(nil), t.names...)
}

// Len returns the number of names.
func (t *Totals) Len() int { return len(t.names) }

// Value returns the running value of name.
func (t *Totals) Value(name string) (float64, bool) {
	v, ok := t.values[name]
	return v, ok
}

// Map copies the totals into a plain map.
func (t *Totals) Map() map[string]float64 {
	out := make(map[string]float64, len(t.values))
	for k, v := range t.values {
		out[k] = v
	}
	return out
}

// Add sums ranks into t elementwise. Without allowSubsets both key sets must
// be equal. With allowSubsets ranks may omit names, which then add nothing,
// but a name t does not hold is still rejected. On error t is unchanged.
func (t *Totals) Add(ranks Ranks, allowSubsets bool) error {
	var unknown []string
	for name := range ranks {
		if _, ok := t.values[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("%w: not in totals: %s", ErrIncompatibleKeySets, strings.Join(unknown, ", "))
	}
	if !allowSubsets && len(ranks) != len(t.values) {
		var missing []string
		for _, name := range t.names {
			if _, ok := ranks[name]; !ok {
				missing = append(missing, name)
			}
		}
		return fmt.Errorf("%w: missing from ranks: %s", ErrIncompatibleKeySets, strings.Join(missing, ", "))
	}

	for name, rank := range ranks {
		t.values[name] += float64(rank)
	}
	return nil
}

// Divide returns a copy of t with every value divided by n.
func (t *Totals) Divide(n int) (*Totals, error) {
	if n == 0 {
		return nil, ErrDivisionUndefined
	}
	out := NewTotals(t.names)
	for name, v := range t.values {
		out.values[name] = v / float64(n)
	}
	return out, nil
}

// Sorted returns the names ordered by ascending value, ties in seed order.
func (t *Totals) Sorted() []string {
	names := t.Names()
	sort.SliceStable(names, func(i, j int) bool {
		return t.values[names[i]] < t.values[names[j]]
	})
	return names
}

// String renders t in seed order.
func (t *Totals) String() string {
	parts := make([]string, len(t.names))
	for i, name := range t.names {
		parts[i] = name + ": " + strconv.FormatFloat(t.values[name], 'g', -1, 64)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// MarshalJSON encodes t as an object in seed order.
func (t *Totals) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range t.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteString(strconv.FormatFloat(t.values[name], 'g', -1, 64))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// AllRanks holds each task's flat score table in task insertion order.
type AllRanks struct {
	tasks  []int
	byTask map[int]Scores
}

// NewAllRanks returns an empty table.
func NewAllRanks() *AllRanks {
	return &AllRanks{byTask: make(map[int]Scores)}
}

// Set records scores for taskID, replacing any earlier entry.
func (a *AllRanks) Set(taskID int, scores Scores) {
	if _, ok := a.byTask[taskID]; !ok {
		a.tasks = append(a.tasks, taskID)
	}
	a.byTask[taskID] = scores
}

// Tasks lists task ids in insertion order.
func (a *AllRanks) Tasks() []int {
	return append([]int(nil), a.tasks...)
}

// Scores returns the score table of taskID.
func (a *AllRanks) Scores(taskID int) (Scores, bool) {
	s, ok := a.byTask[taskID]
	return s, ok
}

// Len returns the number of tasks.
func (a *AllRanks) Len() int { return len(a.tasks) }
