package paramgrid

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindNumber Kind = iota + 1
	KindBool
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindText:
		return "text"
	}
	return "invalid"
}

// Value is a single candidate value of a hyperparameter as it travels over the
// wire: a JSON number, boolean or string. Values are comparable and can be used
// as map keys.
type Value struct {
	kind Kind
	num  float64
	b    bool
	text string
}

// Number returns a numeric Value.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Text returns a categorical Value.
func Text(s string) Value { return Value{kind: KindText, text: s} }

// Kind reports the variant held by v. The zero Value has no kind.
func (v Value) Kind() Kind { return v.kind }

// IsZero reports whether v was never assigned.
func (v Value) IsZero() bool { return v.kind == 0 }

// Float returns the numeric payload and whether v is a Number.
func (v Value) Float() (float64, bool) { return v.num, v.kind == KindNumber }

// BoolValue returns the boolean payload and whether v is a Bool.
func (v Value) BoolValue() (bool, bool) { return v.b, v.kind == KindBool }

// TextValue returns the string payload and whether v is Text.
func (v Value) TextValue() (string, bool) { return v.text, v.kind == KindText }

// IsInteger reports whether v is a Number without a fractional part.
func (v Value) IsInteger() bool {
	return v.kind == KindNumber && v.num == float64(int64(v.num))
}

// String renders v the way it appears in CSV output and log lines.
func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindText:
		return v.text
	}
	return ""
}

// MarshalJSON encodes v in its wire form.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		return []byte(strconv.FormatFloat(v.num, 'g', -1, 64)), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindText:
		return json.Marshal(v.text)
	}
	return nil, fmt.Errorf("paramgrid: cannot marshal value without kind")
}

// UnmarshalJSON decodes a JSON scalar into v. null, arrays and objects are
// rejected.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("paramgrid: empty value")
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("paramgrid: decode text: %w", err)
		}
		*v = Text(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return fmt.Errorf("paramgrid: decode bool: %w", err)
		}
		*v = Bool(b)
	case 'n', '[', '{':
		return fmt.Errorf("paramgrid: unsupported value %s", truncate(data))
	default:
		if !json.Valid(data) {
			return fmt.Errorf("paramgrid: invalid number %s", truncate(data))
		}
		f, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return fmt.Errorf("paramgrid: decode number %s: %w", truncate(data), err)
		}
		*v = Number(f)
	}
	return nil
}

// ParseValue decodes a JSON-encoded scalar such as a setup parameter value.
func ParseValue(raw string) (Value, error) {
	var v Value
	if err := v.UnmarshalJSON([]byte(raw)); err != nil {
		return Value{}, err
	}
	return v, nil
}

func truncate(b []byte) string {
	const max = 40
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
