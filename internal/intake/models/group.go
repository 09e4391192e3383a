package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
)

// Node is either a Value (leaf) or a nested Group.
type Node interface {
	node()
}

// Group maps keys to nodes. The root group of a draft maps section keys to
// section groups.
//
// Groups are treated as immutable once shared: With returns a new root that
// copies only the groups along the written path, so holders of the previous
// root (snapshots, in-flight payloads) never observe later edits.
type Group map[string]Node

func (Group) node() {}

// Lookup walks path and returns the node found there.
func (g Group) Lookup(path Path) (Node, bool) {
	if len(path) == 0 {
		return nil, false
	}
	var cur Node = g
	for _, seg := range path {
		grp, ok := cur.(Group)
		if !ok {
			return nil, false
		}
		cur, ok = grp[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Value returns the leaf value at path. Groups and missing paths report false.
func (g Group) Value(path Path) (Value, bool) {
	n, ok := g.Lookup(path)
	if !ok {
		return Value{}, false
	}
	v, ok := n.(Value)
	return v, ok
}

// Section returns the group stored under a section key.
func (g Group) Section(key string) (Group, bool) {
	sec, ok := g[key].(Group)
	return sec, ok
}

// With returns a copy of g with v written at path. Only the groups on the
// path are copied; siblings are shared. A leaf sitting where a group is
// needed is replaced by a group.
func (g Group) With(path Path, v Value) Group {
	if !path.Valid() {
		return g
	}
	out := make(Group, len(g)+1)
	maps.Copy(out, g)
	if len(path) == 1 {
		out[path[0]] = v
		return out
	}
	child, _ := g[path[0]].(Group)
	out[path[0]] = child.With(path[1:], v)
	return out
}

// Clone deep-copies the group tree.
func (g Group) Clone() Group {
	if g == nil {
		return nil
	}
	out := make(Group, len(g))
	for k, n := range g {
		switch t := n.(type) {
		case Group:
			out[k] = t.Clone()
		case Value:
			if t.kind == KindList {
				out[k] = List(t.list...)
			} else {
				out[k] = t
			}
		}
	}
	return out
}

// Equal compares two trees structurally.
func (g Group) Equal(o Group) bool {
	if len(g) != len(o) {
		return false
	}
	for k, n := range g {
		m, ok := o[k]
		if !ok {
			return false
		}
		switch a := n.(type) {
		case Group:
			b, ok := m.(Group)
			if !ok || !a.Equal(b) {
				return false
			}
		case Value:
			b, ok := m.(Value)
			if !ok || !a.Equal(b) {
				return false
			}
		}
	}
	return true
}

// FillMissing returns g with every key from other that g lacks. Keys present
// in both keep g's node, except that two groups are filled recursively.
// Sections only present in other are adopted wholesale.
func (g Group) FillMissing(other Group) Group {
	if len(other) == 0 {
		return g
	}
	out := make(Group, len(g)+len(other))
	maps.Copy(out, g)
	for k, theirs := range other {
		mine, ok := g[k]
		if !ok {
			out[k] = theirs
			continue
		}
		a, aok := mine.(Group)
		b, bok := theirs.(Group)
		if aok && bok {
			out[k] = a.FillMissing(b)
		}
	}
	return out
}

// Leaves calls fn for every leaf value with its full path.
func (g Group) Leaves(fn func(Path, Value)) {
	g.walk(nil, fn)
}

func (g Group) walk(prefix Path, fn func(Path, Value)) {
	for k, n := range g {
		p := append(append(Path{}, prefix...), k)
		switch t := n.(type) {
		case Group:
			t.walk(p, fn)
		case Value:
			fn(p, t)
		}
	}
}

func (g *Group) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*g = nil
		return nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("decode group: %w", err)
	}
	out := make(Group, len(raw))
	for k, msg := range raw {
		trimmed := bytes.TrimSpace(msg)
		if len(trimmed) > 0 && trimmed[0] == '{' {
			var child Group
			if err := json.Unmarshal(trimmed, &child); err != nil {
				return fmt.Errorf("decode group %q: %w", k, err)
			}
			out[k] = child
			continue
		}
		var v Value
		if err := json.Unmarshal(trimmed, &v); err != nil {
			return fmt.Errorf("decode field %q: %w", k, err)
		}
		out[k] = v
	}
	*g = out
	return nil
}
