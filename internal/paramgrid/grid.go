package paramgrid

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrDuplicateParameter is returned when a grid declares the same key twice.
var ErrDuplicateParameter = errors.New("duplicate parameter")

// Entry is one parameter of a Grid together with its candidate values.
type Entry struct {
	Name   string
	Values []Value
}

// Grid is an ordered mapping from parameter name to candidate values. A Grid is
// never modified after construction; Without and Reversed return new grids.
type Grid struct {
	entries []Entry
	index   map[string]int
}

// NewGrid builds a grid from entries in declaration order.
func NewGrid(entries ...Entry) (Grid, error) {
	g := Grid{
		entries: make([]Entry, 0, len(entries)),
		index:   make(map[string]int, len(entries)),
	}
	for _, e := range entries {
		if _, dup := g.index[e.Name]; dup {
			return Grid{}, fmt.Errorf("%w: %q", ErrDuplicateParameter, e.Name)
		}
		vals := make([]Value, len(e.Values))
		copy(vals, e.Values)
		g.index[e.Name] = len(g.entries)
		g.entries = append(g.entries, Entry{Name: e.Name, Values: vals})
	}
	return g, nil
}

// MustGrid is NewGrid for static tables; it panics on duplicate keys.
func MustGrid(entries ...Entry) Grid {
	g, err := NewGrid(entries...)
	if err != nil {
		panic(err)
	}
	return g
}

// Len returns the number of parameters.
func (g Grid) Len() int { return len(g.entries) }

// Keys returns the parameter names in iteration order.
func (g Grid) Keys() []string {
	keys := make([]string, len(g.entries))
	for i, e := range g.entries {
		keys[i] = e.Name
	}
	return keys
}

// KeySet returns the parameter names as a set.
func (g Grid) KeySet() map[string]struct{} {
	set := make(map[string]struct{}, len(g.entries))
	for _, e := range g.entries {
		set[e.Name] = struct{}{}
	}
	return set
}

// Has reports whether name is a key of g.
func (g Grid) Has(name string) bool {
	_, ok := g.index[name]
	return ok
}

// Values returns a copy of the candidate values of name.
func (g Grid) Values(name string) ([]Value, bool) {
	i, ok := g.index[name]
	if !ok {
		return nil, false
	}
	out := make([]Value, len(g.entries[i].Values))
	copy(out, g.entries[i].Values)
	return out, true
}

// Entries returns a copy of the grid contents in iteration order.
func (g Grid) Entries() []Entry {
	out := make([]Entry, len(g.entries))
	for i, e := range g.entries {
		vals := make([]Value, len(e.Values))
		copy(vals, e.Values)
		out[i] = Entry{Name: e.Name, Values: vals}
	}
	return out
}

// Without returns a copy of g minus the named parameters. Names that are not
// keys of g are ignored here; GridFor validates them.
func (g Grid) Without(names ...string) Grid {
	drop := make(map[string]struct{}, len(names))
	for _, n := range names {
		drop[n] = struct{}{}
	}
	kept := make([]Entry, 0, len(g.entries))
	for _, e := range g.entries {
		if _, ok := drop[e.Name]; !ok {
			kept = append(kept, e)
		}
	}
	return MustGrid(kept...)
}

// Reversed returns a copy of g iterating in reverse declaration order.
func (g Grid) Reversed() Grid {
	rev := make([]Entry, len(g.entries))
	for i, e := range g.entries {
		rev[len(g.entries)-1-i] = e
	}
	return MustGrid(rev...)
}

// Equal reports whether g and other hold the same keys with element-wise equal
// value sequences. Key order is not significant.
func (g Grid) Equal(other Grid) bool {
	if len(g.entries) != len(other.entries) {
		return false
	}
	for _, e := range g.entries {
		j, ok := other.index[e.Name]
		if !ok {
			return false
		}
		ov := other.entries[j].Values
		if len(ov) != len(e.Values) {
			return false
		}
		for k := range ov {
			if ov[k] != e.Values[k] {
				return false
			}
		}
	}
	return true
}

// MarshalJSON encodes g as a JSON object in iteration order.
func (g Grid) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range g.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		vals := e.Values
		if vals == nil {
			vals = []Value{}
		}
		enc, err := json.Marshal(vals)
		if err != nil {
			return nil, err
		}
		buf.Write(enc)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object of value lists, keeping key order.
func (g *Grid) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("paramgrid: decode grid: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("paramgrid: grid must be a JSON object")
	}
	var entries []Entry
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("paramgrid: decode grid key: %w", err)
		}
		name, _ := tok.(string)
		var vals []Value
		if err := dec.Decode(&vals); err != nil {
			return fmt.Errorf("paramgrid: decode values of %q: %w", name, err)
		}
		entries = append(entries, Entry{Name: name, Values: vals})
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("paramgrid: decode grid: %w", err)
	}
	parsed, err := NewGrid(entries...)
	if err != nil {
		return err
	}
	*g = parsed
	return nil
}

// ParseGrid decodes a JSON-encoded grid such as a param_distributions value.
func ParseGrid(raw string) (Grid, error) {
	var g Grid
	if err := g.UnmarshalJSON([]byte(raw)); err != nil {
		return Grid{}, err
	}
	return g, nil
}

// ShortName strips the pipeline-step namespace from a parameter name, e.g.
// "classifier__min_samples_leaf" becomes "min_samples_leaf".
func ShortName(name string) string {
	if i := strings.LastIndex(name, "__"); i >= 0 {
		return name[i+2:]
	}
	return name
}
