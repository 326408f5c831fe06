package rules

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies which variant a Scalar holds
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Scalar is a cell value or rule operand: null, string, number or bool.
// The zero value is null.
type Scalar struct {
	kind Kind
	str  string
	num  float64
	b    bool
}

// NullValue returns the null scalar (a missing cell value)
func NullValue() Scalar { return Scalar{} }

// StringValue wraps a string
func StringValue(s string) Scalar { return Scalar{kind: KindString, str: s} }

// NumberValue wraps a number
func NumberValue(n float64) Scalar { return Scalar{kind: KindNumber, num: n} }

// BoolValue wraps a boolean
func BoolValue(b bool) Scalar { return Scalar{kind: KindBool, b: b} }

// ParseOperand converts free text typed into the authoring panel into an
// operand. Text that parses cleanly as a number becomes a NumberValue,
// anything else stays a StringValue.
func ParseOperand(text string) Scalar {
	if n, ok := parseNumber(text); ok {
		return NumberValue(n)
	}
	return StringValue(text)
}

// FromAny converts a native Go value (as produced by database/sql or
// encoding/json) into a Scalar.
func FromAny(v any) Scalar {
	switch x := v.(type) {
	case nil:
		return NullValue()
	case Scalar:
		return x
	case string:
		return StringValue(x)
	case []byte:
		return StringValue(string(x))
	case bool:
		return BoolValue(x)
	case float64:
		return NumberValue(x)
	case float32:
		return NumberValue(float64(x))
	case int:
		return NumberValue(float64(x))
	case int8:
		return NumberValue(float64(x))
	case int16:
		return NumberValue(float64(x))
	case int32:
		return NumberValue(float64(x))
	case int64:
		return NumberValue(float64(x))
	case uint:
		return NumberValue(float64(x))
	case uint8:
		return NumberValue(float64(x))
	case uint16:
		return NumberValue(float64(x))
	case uint32:
		return NumberValue(float64(x))
	case uint64:
		return NumberValue(float64(x))
	case json.Number:
		if n, err := x.Float64(); err == nil {
			return NumberValue(n)
		}
		return StringValue(x.String())
	case fmt.Stringer:
		return StringValue(x.String())
	default:
		return StringValue(fmt.Sprint(x))
	}
}

// Kind reports the variant held by s
func (s Scalar) Kind() Kind { return s.kind }

// IsNull reports whether s is the null scalar
func (s Scalar) IsNull() bool { return s.kind == KindNull }

// AsString returns the string payload when s is a StringValue
func (s Scalar) AsString() (string, bool) { return s.str, s.kind == KindString }

// AsNumber returns the number payload when s is a NumberValue
func (s Scalar) AsNumber() (float64, bool) { return s.num, s.kind == KindNumber }

// AsBool returns the bool payload when s is a BoolValue
func (s Scalar) AsBool() (bool, bool) { return s.b, s.kind == KindBool }

// Native returns s as a plain Go value (nil, string, float64 or bool)
func (s Scalar) Native() any {
	switch s.kind {
	case KindString:
		return s.str
	case KindNumber:
		return s.num
	case KindBool:
		return s.b
	default:
		return nil
	}
}

// String renders s the way a cell displays it. Null renders as "".
func (s Scalar) String() string {
	switch s.kind {
	case KindString:
		return s.str
	case KindNumber:
		return formatNumber(s.num)
	case KindBool:
		return strconv.FormatBool(s.b)
	default:
		return ""
	}
}

// Number coerces s to a number. Strings are trimmed and parsed, booleans
// map to 1 and 0; null, NaN and unparseable strings report false.
func (s Scalar) Number() (float64, bool) {
	switch s.kind {
	case KindNumber:
		return s.num, !math.IsNaN(s.num)
	case KindString:
		return parseNumber(s.str)
	case KindBool:
		if s.b {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// Equal is strict equality: same kind and same payload. NaN is never equal
// to anything, itself included.
func (s Scalar) Equal(o Scalar) bool {
	if s.kind != o.kind {
		return false
	}
	switch s.kind {
	case KindString:
		return s.str == o.str
	case KindNumber:
		return s.num == o.num
	case KindBool:
		return s.b == o.b
	default:
		return true
	}
}

// MarshalJSON encodes s as the matching JSON primitive
func (s Scalar) MarshalJSON() ([]byte, error) {
	if s.kind == KindNumber && (math.IsNaN(s.num) || math.IsInf(s.num, 0)) {
		return json.Marshal(formatNumber(s.num))
	}
	return json.Marshal(s.Native())
}

// UnmarshalJSON decodes any JSON primitive into s. Arrays and objects are
// rejected.
func (s *Scalar) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch v.(type) {
	case nil, string, float64, bool:
		*s = FromAny(v)
		return nil
	default:
		return fmt.Errorf("scalar must be a string, number, boolean or null, got %s", string(data))
	}
}

// parseNumber accepts decimal text with optional surrounding whitespace and
// the literals Infinity/-Infinity. Empty text is not a number.
func parseNumber(text string) (float64, bool) {
	t := strings.TrimSpace(text)
	switch t {
	case "":
		return 0, false
	case "Infinity", "+Infinity":
		return math.Inf(1), true
	case "-Infinity":
		return math.Inf(-1), true
	}

	n, err := strconv.ParseFloat(t, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		// rejects "NaN", "inf" and out-of-range literals
		return 0, false
	}
	return n, true
}

func formatNumber(n float64) string {
	switch {
	case math.IsNaN(n):
		return "NaN"
	case math.IsInf(n, 1):
		return "Infinity"
	case math.IsInf(n, -1):
		return "-Infinity"
	}
	abs := math.Abs(n)
	if abs >= 1e21 || (abs != 0 && abs < 1e-6) {
		return strconv.FormatFloat(n, 'e', -1, 64)
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}
