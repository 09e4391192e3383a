package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Kind tags the shape of a field value.
type Kind uint8

const (
	KindNull Kind = iota
	KindText
	KindBool
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindBool:
		return "yes/no"
	case KindList:
		return "list"
	}
	return "null"
}

// Value is a single answer. Text, booleans, "unanswered" (null) and string
// lists are the only shapes a questionnaire produces.
//
// Values are immutable; list contents are copied in and out.
type Value struct {
	kind Kind
	text string
	flag bool
	list []string
}

func Text(s string) Value { return Value{kind: KindText, text: s} }

func Bool(b bool) Value { return Value{kind: KindBool, flag: b} }

func Null() Value { return Value{} }

func List(items ...string) Value {
	return Value{kind: KindList, list: slices.Clone(items)}
}

func (v Value) Kind() Kind { return v.kind }

// Text returns the text content; non-text values return "".
func (v Value) Text() string { return v.text }

// Bool returns the flag and whether the value is a boolean at all.
func (v Value) Bool() (bool, bool) {
	return v.flag, v.kind == KindBool
}

// List returns a copy of the list items.
func (v Value) List() []string { return slices.Clone(v.list) }

// IsNull reports an unanswered value.
func (v Value) IsNull() bool { return v.kind == KindNull }

// HasContent reports whether the value carries a non-blank answer. Booleans
// are handled by section predicates, which know whether false is an answer.
func (v Value) HasContent() bool {
	switch v.kind {
	case KindText:
		return strings.TrimSpace(v.text) != ""
	case KindList:
		for _, item := range v.list {
			if strings.TrimSpace(item) != "" {
				return true
			}
		}
	}
	return false
}

// Append returns a list value with item added. Text values are promoted to a
// one-element list first.
func (v Value) Append(item string) Value {
	switch v.kind {
	case KindList:
		return List(append(slices.Clone(v.list), item)...)
	case KindText:
		if v.text != "" {
			return List(v.text, item)
		}
	}
	return List(item)
}

func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindText:
		return v.text == o.text
	case KindBool:
		return v.flag == o.flag
	case KindList:
		return slices.Equal(v.list, o.list)
	}
	return true
}

func (v Value) String() string {
	switch v.kind {
	case KindText:
		return v.text
	case KindBool:
		return fmt.Sprintf("%t", v.flag)
	case KindList:
		return strings.Join(v.list, ",")
	}
	return "null"
}

func (Value) node() {}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindText:
		return json.Marshal(v.text)
	case KindBool:
		return json.Marshal(v.flag)
	case KindList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	}
	return []byte("null"), nil
}

func (v *Value) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return fmt.Errorf("empty field value")
	}
	switch b[0] {
	case 'n':
		*v = Null()
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = Text(s)
		return nil
	case 't', 'f':
		var f bool
		if err := json.Unmarshal(b, &f); err != nil {
			return err
		}
		*v = Bool(f)
		return nil
	case '[':
		var items []string
		if err := json.Unmarshal(b, &items); err != nil {
			return fmt.Errorf("field list must contain strings: %w", err)
		}
		if items == nil {
			items = []string{}
		}
		*v = Value{kind: KindList, list: items}
		return nil
	}
	return fmt.Errorf("unsupported field value %q", string(b))
}
