// Package configspace reads and writes configuration spaces in the SMAC
// "pcs new" text format.
//
//	min_samples_leaf integer [1, 20] [1]
//	max_features real [0.1, 0.9] [0.5] log
//	criterion categorical {gini, entropy} [gini]
//	degree | kernel in {poly}
//	{criterion=gini, bootstrap=false}
//
// Conditions and forbidden clauses are kept verbatim but not interpreted.
package configspace

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrDuplicateHyperparameter is returned when a name is declared twice.
var ErrDuplicateHyperparameter = errors.New("duplicate hyperparameter")

// Kind is the hyperparameter domain type.
type Kind int

const (
	Categorical Kind = iota + 1
	Ordinal
	Real
	Integer
)

func (k Kind) String() string {
	switch k {
	case Categorical:
		return "categorical"
	case Ordinal:
		return "ordinal"
	case Real:
		return "real"
	case Integer:
		return "integer"
	}
	return "unknown"
}

func parseKind(s string) (Kind, bool) {
	for _, k := range []Kind{Categorical, Ordinal, Real, Integer} {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

// Hyperparameter is one dimension of the space. Choices is set for
// categorical and ordinal kinds, Lower and Upper for numeric kinds.
type Hyperparameter struct {
	Name    string
	Kind    Kind
	Choices []string
	Lower   float64
	Upper   float64
	Default string
	Log     bool
}

// Space is an ordered set of hyperparameters.
type Space struct {
	params     []Hyperparameter
	index      map[string]int
	Conditions []string
	Forbidden  []string
}

// NewSpace returns an empty space.
func NewSpace() *Space {
	return &Space{index: make(map[string]int)}
}

// Add appends h.
func (s *Space) Add(h Hyperparameter) error {
	if _, ok := s.index[h.Name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateHyperparameter, h.Name)
	}
	s.index[h.Name] = len(s.params)
	s.params = append(s.params, h)
	return nil
}

// Hyperparameters returns the hyperparameters in declaration order.
func (s *Space) Hyperparameters() []Hyperparameter {
	return append([]Hyperparameter(nil), s.params...)
}

// Names returns hyperparameter names in declaration order.
func (s *Space) Names() []string {
	names := make([]string, len(s.params))
	for i, h := range s.params {
		names[i] = h.Name
	}
	return names
}

// Get looks up a hyperparameter by name.
func (s *Space) Get(name string) (Hyperparameter, bool) {
	i, ok := s.index[name]
	if !ok {
		return Hyperparameter{}, false
	}
	return s.params[i], true
}

// Len returns the number of hyperparameters.
func (s *Space) Len() int { return len(s.params) }

// Reversed returns a copy with the declaration order reversed.
func (s *Space) Reversed() *Space {
	out := NewSpace()
	for i := len(s.params) - 1; i >= 0; i-- {
		out.Add(s.params[i])
	}
	out.Conditions = append(out.Conditions, s.Conditions...)
	out.Forbidden = append(out.Forbidden, s.Forbidden...)
	return out
}

// Read parses a pcs document.
func Read(r io.Reader) (*Space, error) {
	s := NewSpace()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "" || strings.HasPrefix(line, "#"):
			continue
		case strings.HasPrefix(line, "{"):
			s.Forbidden = append(s.Forbidden, line)
			continue
		case strings.Contains(line, "|"):
			s.Conditions = append(s.Conditions, line)
			continue
		}

		h, err := parseHyperparameter(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if err := s.Add(h); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return s, nil
}

func parseHyperparameter(line string) (Hyperparameter, error) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return Hyperparameter{}, fmt.Errorf("malformed declaration %q", line)
	}
	h := Hyperparameter{Name: fields[0]}
	kind, ok := parseKind(fields[1])
	if !ok {
		return Hyperparameter{}, fmt.Errorf("unknown type %q for %s", fields[1], h.Name)
	}
	h.Kind = kind

	rest := strings.TrimSpace(strings.TrimPrefix(line, fields[0]))
	rest = strings.TrimSpace(strings.TrimPrefix(rest, fields[1]))
	switch kind {
	case Categorical, Ordinal:
		inner, tail, err := enclosed(rest, '{', '}')
		if err != nil {
			return Hyperparameter{}, fmt.Errorf("%s choices: %w", h.Name, err)
		}
		for _, c := range strings.Split(inner, ",") {
			c = strings.TrimSpace(c)
			if c == "" {
				return Hyperparameter{}, fmt.Errorf("%s: empty choice", h.Name)
			}
			h.Choices = append(h.Choices, c)
		}
		rest = tail
	case Real, Integer:
		inner, tail, err := enclosed(rest, '[', ']')
		if err != nil {
			return Hyperparameter{}, fmt.Errorf("%s range: %w", h.Name, err)
		}
		bounds := strings.Split(inner, ",")
		if len(bounds) != 2 {
			return Hyperparameter{}, fmt.Errorf("%s: range needs two bounds, got %q", h.Name, inner)
		}
		if h.Lower, err = strconv.ParseFloat(strings.TrimSpace(bounds[0]), 64); err != nil {
			return Hyperparameter{}, fmt.Errorf("%s lower bound: %w", h.Name, err)
		}
		if h.Upper, err = strconv.ParseFloat(strings.TrimSpace(bounds[1]), 64); err != nil {
			return Hyperparameter{}, fmt.Errorf("%s upper bound: %w", h.Name, err)
		}
		if h.Lower > h.Upper {
			return Hyperparameter{}, fmt.Errorf("%s: lower bound %g above upper bound %g", h.Name, h.Lower, h.Upper)
		}
		rest = tail
	}

	def, tail, err := enclosed(rest, '[', ']')
	if err != nil {
		return Hyperparameter{}, fmt.Errorf("%s default: %w", h.Name, err)
	}
	h.Default = strings.TrimSpace(def)

	switch tail {
	case "":
	case "log":
		if kind != Real && kind != Integer {
			return Hyperparameter{}, fmt.Errorf("%s: log scale on %s", h.Name, kind)
		}
		h.Log = true
	default:
		return Hyperparameter{}, fmt.Errorf("%s: unexpected %q", h.Name, tail)
	}
	return h, nil
}

// enclosed returns the text between a leading open and the next close, plus
// whatever follows, trimmed.
func enclosed(s string, open, close byte) (string, string, error) {
	s = strings.TrimSpace(s)
	if len(s) == 0 || s[0] != open {
		return "", "", fmt.Errorf("expected %q", open)
	}
	end := strings.IndexByte(s, close)
	if end < 0 {
		return "", "", fmt.Errorf("missing %q", close)
	}
	return s[1:end], strings.TrimSpace(s[end+1:]), nil
}

// Write renders s in pcs form.
func Write(w io.Writer, s *Space) error {
	bw := bufio.NewWriter(w)
	for _, h := range s.params {
		if _, err := fmt.Fprintln(bw, formatHyperparameter(h)); err != nil {
			return err
		}
	}
	for _, c := range s.Conditions {
		if _, err := fmt.Fprintln(bw, c); err != nil {
			return err
		}
	}
	for _, f := range s.Forbidden {
		if _, err := fmt.Fprintln(bw, f); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func formatHyperparameter(h Hyperparameter) string {
	var b strings.Builder
	b.WriteString(h.Name)
	b.WriteByte(' ')
	b.WriteString(h.Kind.String())
	b.WriteByte(' ')
	switch h.Kind {
	case Categorical, Ordinal:
		b.WriteString("{" + strings.Join(h.Choices, ", ") + "}")
	default:
		fmt.Fprintf(&b, "[%s, %s]", formatBound(h.Lower, h.Kind), formatBound(h.Upper, h.Kind))
	}
	b.WriteString(" [" + h.Default + "]")
	if h.Log {
		b.WriteString(" log")
	}
	return b.String()
}

func formatBound(v float64, k Kind) string {
	if k == Integer {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
