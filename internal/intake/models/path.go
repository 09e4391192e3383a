package models

import "strings"

// Path addresses a field inside a draft: the first segment is the section
// key, the remaining segments walk nested groups down to a leaf.
type Path []string

// ParsePath splits a dotted path such as "medical.blood_group".
func ParsePath(s string) Path {
	if s == "" {
		return nil
	}
	return Path(strings.Split(s, "."))
}

func (p Path) String() string {
	return strings.Join(p, ".")
}

// Valid reports whether the path has at least one segment and no empty ones.
func (p Path) Valid() bool {
	if len(p) == 0 {
		return false
	}
	for _, seg := range p {
		if seg == "" {
			return false
		}
	}
	return true
}

// Section returns the section key the path belongs to.
func (p Path) Section() string {
	if len(p) == 0 {
		return ""
	}
	return p[0]
}
