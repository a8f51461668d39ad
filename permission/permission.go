package permission

import (
	"errors"
	"sort"
	"strings"
)

// Wildcard matches any resource or action.
const Wildcard = "*"

// ErrMalformed is returned by Parse for strings that are not resource:action.
var ErrMalformed = errors.New("permission: malformed")

// Permission is a (resource, action) pair.
type Permission struct {
	Resource string
	Action   string
}

// Parse reads "resource:action". "*" alone is the full wildcard.
func Parse(s string) (Permission, error) {
	s = strings.TrimSpace(s)
	if s == Wildcard {
		return Permission{Resource: Wildcard, Action: Wildcard}, nil
	}
	res, act, ok := strings.Cut(s, ":")
	if !ok || res == "" || act == "" || strings.Contains(act, ":") {
		return Permission{}, ErrMalformed
	}
	return Permission{Resource: res, Action: act}, nil
}

// MustParse is Parse for literals; it panics on malformed input.
func MustParse(s string) Permission {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

// String renders the canonical resource:action form.
func (p Permission) String() string {
	return p.Resource + ":" + p.Action
}

// Matches reports whether p, as a granted permission, satisfies required.
// The relation is symmetric.
func (p Permission) Matches(required Permission) bool {
	return component(p.Resource, required.Resource) && component(p.Action, required.Action)
}

func component(granted, required string) bool {
	return granted == Wildcard || required == Wildcard || granted == required
}

// Set is a deduplicated collection of granted permissions.
type Set map[Permission]struct{}

// NewSet builds a set, skipping duplicates.
func NewSet(perms ...Permission) Set {
	s := make(Set, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

// ParseSet parses every string; the first malformed entry aborts.
func ParseSet(raw []string) (Set, error) {
	s := make(Set, len(raw))
	for _, r := range raw {
		p, err := Parse(r)
		if err != nil {
			return nil, err
		}
		s[p] = struct{}{}
	}
	return s, nil
}

// Add inserts p.
func (s Set) Add(p Permission) { s[p] = struct{}{} }

// Union adds every member of other.
func (s Set) Union(other Set) {
	for p := range other {
		s[p] = struct{}{}
	}
}

// Allows reports whether any member matches required.
func (s Set) Allows(required Permission) bool {
	if _, ok := s[required]; ok {
		return true
	}
	for g := range s {
		if g.Matches(required) {
			return true
		}
	}
	return false
}

// Strings returns the sorted canonical forms.
func (s Set) Strings() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p.String())
	}
	sort.Strings(out)
	return out
}

// Normalize parses, deduplicates and sorts raw permission strings.
func Normalize(raw []string) ([]string, error) {
	s, err := ParseSet(raw)
	if err != nil {
		return nil, err
	}
	return s.Strings(), nil
}
