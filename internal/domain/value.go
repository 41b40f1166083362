package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ValueType distinguishes the three answer shapes.
type ValueType int

const (
	ValueNone ValueType = iota
	ValueText
	ValueNumber
	ValueList
)

// Value is a single answer: free text, a number or a list of strings.
// It encodes as a plain JSON string, number or array.
type Value struct {
	typ    ValueType
	text   string
	number float64
	list   []string
}

func TextValue(s string) Value {
	return Value{typ: ValueText, text: s}
}

func NumberValue(n float64) Value {
	return Value{typ: ValueNumber, number: n}
}

func ListValue(items ...string) Value {
	cp := make([]string, len(items))
	copy(cp, items)
	return Value{typ: ValueList, list: cp}
}

func (v Value) Type() ValueType { return v.typ }

// Text returns the text and whether the value holds text.
func (v Value) Text() (string, bool) { return v.text, v.typ == ValueText }

// Number returns the number and whether the value holds a number.
func (v Value) Number() (float64, bool) { return v.number, v.typ == ValueNumber }

// List returns a copy of the list and whether the value holds a list.
func (v Value) List() ([]string, bool) {
	if v.typ != ValueList {
		return nil, false
	}
	cp := make([]string, len(v.list))
	copy(cp, v.list)
	return cp, true
}

// IsEmpty treats whitespace-only text and lists without a non-blank entry as unanswered.
func (v Value) IsEmpty() bool {
	switch v.typ {
	case ValueText:
		return strings.TrimSpace(v.text) == ""
	case ValueNumber:
		return false
	case ValueList:
		for _, item := range v.list {
			if strings.TrimSpace(item) != "" {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// TrimmedLength is the rune count of trimmed text; zero for non-text values.
func (v Value) TrimmedLength() int {
	if v.typ != ValueText {
		return 0
	}
	return utf8.RuneCountInString(strings.TrimSpace(v.text))
}

// Interface converts the value into the plain Go shape document stores expect.
func (v Value) Interface() any {
	switch v.typ {
	case ValueText:
		return v.text
	case ValueNumber:
		return v.number
	case ValueList:
		out := make([]any, len(v.list))
		for i, s := range v.list {
			out[i] = s
		}
		return out
	default:
		return nil
	}
}

// ValueFromInterface is the inverse of Interface.
func ValueFromInterface(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Value{}, nil
	case string:
		return TextValue(x), nil
	case float64:
		return NumberValue(x), nil
	case int64:
		return NumberValue(float64(x)), nil
	case int:
		return NumberValue(float64(x)), nil
	case []string:
		return ListValue(x...), nil
	case []any:
		items := make([]string, 0, len(x))
		for _, item := range x {
			s, ok := item.(string)
			if !ok {
				return Value{}, fmt.Errorf("list entry %v is not a string", item)
			}
			items = append(items, s)
		}
		return ListValue(items...), nil
	default:
		return Value{}, fmt.Errorf("unsupported answer type %T", raw)
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := ValueFromInterface(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// AnswerMap holds every answer of a session keyed by field id.
type AnswerMap map[FieldID]Value

// Clone returns a shallow copy; values are immutable so that is enough.
func (m AnswerMap) Clone() AnswerMap {
	out := make(AnswerMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ErrorMap maps field ids to a user-facing message.
type ErrorMap map[FieldID]string

func (m ErrorMap) Clone() ErrorMap {
	out := make(ErrorMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
