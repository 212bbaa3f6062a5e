// Package importance turns per-task hyperparameter importance results into
// ranks and averages them across tasks.
package importance

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/banshee-data/openml-pimp/internal/paramgrid"
)

var (
	// ErrIncompatibleKeySets means a task's ranks do not cover the same
	// hyperparameters as the running totals. Aggregation must stop.
	ErrIncompatibleKeySets = errors.New("incompatible key sets")
	// ErrDivisionUndefined is returned when averaging over zero tasks.
	ErrDivisionUndefined = errors.New("division undefined: zero tasks")
)

// Backend result keys.
const (
	ablationKey = "ablation"
	fanovaKey   = "fanova"
	sourceKey   = "-source-"
	targetKey   = "-target-"
)

// Score is the importance of one hyperparameter on one task.
type Score struct {
	Name       string  `json:"name"`
	Importance float64 `json:"importance"`
}

// Scores keeps the order the backend reported.
type Scores []Score

// Names returns the hyperparameter names in order.
func (s Scores) Names() []string {
	names := make([]string, len(s))
	for i, sc := range s {
		names[i] = sc.Name
	}
	return names
}

// Get returns the importance of name.
func (s Scores) Get(name string) (float64, bool) {
	for _, sc := range s {
		if sc.Name == name {
			return sc.Importance, true
		}
	}
	return 0, false
}

// MarshalJSON encodes s as an object in order.
func (s Scores) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, sc := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(sc.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteString(strconv.FormatFloat(sc.Importance, 'g', -1, 64))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// IgnoreParameters derives the parameters that are never analysed from the
// fixed-parameter constraints.
func IgnoreParameters(fixed map[string]paramgrid.Value) map[string]struct{} {
	ignore := map[string]struct{}{
		"random_state": {},
		"sparse":       {},
		"verbose":      {},
	}
	kernel, ok := fixed["kernel"]
	if !ok {
		return ignore
	}
	switch kernel.String() {
	case "rbf":
		ignore["coef0"] = struct{}{}
		ignore["degree"] = struct{}{}
	case "sigmoid":
		ignore["degree"] = struct{}{}
	}
	return ignore
}

// ParseResult reads a backend result file. An "ablation" wrapper is unwrapped,
// its -source- and -target- entries dropped and every seeded name it lacks
// appended with importance 0. A "fanova" wrapper is only unwrapped. Anything
// else is taken as the flat mapping itself.
func ParseResult(data []byte, seeded []string) (Scores, error) {
	keys, fields, err := decodeObject(data)
	if err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}

	if raw, ok := fields[ablationKey]; ok {
		scores, err := decodeScores(raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", ablationKey, err)
		}
		kept := scores[:0]
		for _, sc := range scores {
			if sc.Name == sourceKey || sc.Name == targetKey {
				continue
			}
			kept = append(kept, sc)
		}
		for _, name := range seeded {
			if _, ok := kept.Get(name); !ok {
				kept = append(kept, Score{Name: name})
			}
		}
		return kept, nil
	}

	if raw, ok := fields[fanovaKey]; ok {
		scores, err := decodeScores(raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", fanovaKey, err)
		}
		return scores, nil
	}

	scores := make(Scores, 0, len(keys))
	for _, k := range keys {
		v, err := decodeImportance(fields[k])
		if err != nil {
			return nil, fmt.Errorf("%q: %w", k, err)
		}
		scores = append(scores, Score{Name: k, Importance: v})
	}
	return scores, nil
}

func decodeScores(raw json.RawMessage) (Scores, error) {
	keys, fields, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}
	scores := make(Scores, 0, len(keys))
	for _, k := range keys {
		v, err := decodeImportance(fields[k])
		if err != nil {
			return nil, fmt.Errorf("%q: %w", k, err)
		}
		scores = append(scores, Score{Name: k, Importance: v})
	}
	return scores, nil
}

func decodeImportance(raw json.RawMessage) (float64, error) {
	var v float64
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return 0, fmt.Errorf("importance is null")
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, fmt.Errorf("importance is not a number: %s", raw)
	}
	return v, nil
}

// decodeObject reads one JSON object and returns its keys in document order.
// A repeated key keeps its first position and its last value.
func decodeObject(data []byte) ([]string, map[string]json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, fmt.Errorf("expected object, got %v", tok)
	}

	var keys []string
	fields := make(map[string]json.RawMessage)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, nil, err
		}
		if _, seen := fields[key]; !seen {
			keys = append(keys, key)
		}
		fields[key] = raw
	}
	if _, err := dec.Token(); err != nil {
		return nil, nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, nil, fmt.Errorf("trailing data after object")
	}
	return keys, fields, nil
}

// Ranks maps a hyperparameter to its 1-based rank position.
type Ranks map[string]int

// Rank orders scores by descending importance. Equal scores keep their
// relative input order.
func Rank(scores Scores) Ranks {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]].Importance > scores[order[b]].Importance
	})
	ranks := make(Ranks, len(scores))
	for pos, idx := range order {
		ranks[scores[idx].Name] = pos + 1
	}
	return ranks
}

// String renders ranks best first.
func (r Ranks) String() string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if r[names[i]] != r[names[j]] {
			return r[names[i]] < r[names[j]]
		}
		return names[i] < names[j]
	})
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s: %d", name, r[name])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
