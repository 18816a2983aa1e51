package code

import "sort"

// Scope is an ordered name table with an optional parent. Lookups walk the
// parent chain; writes always land in the receiver.
type Scope struct {
	parent *Scope
	names  []string
	values map[string]any
	live   []Bindings
}

// Bindings is a view of names owned by code that is still running, such as
// the globals of a program being executed in the scope.
type Bindings interface {
	Names() []string
	Lookup(name string) (any, bool)
}

func NewScope(parent *Scope) *Scope {
	return &Scope{parent: parent, values: make(map[string]any)}
}

// ScopeOf returns a child of parent holding a copy of values. Names are
// inserted in sorted order.
func ScopeOf(parent *Scope, values map[string]any) *Scope {
	s := NewScope(parent)
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s.Set(k, values[k])
	}
	return s
}

func (s *Scope) Parent() *Scope { return s.parent }

// Get looks name up in s and then its parents. At each level, attached
// bindings take precedence over stored values, the latest attached first.
func (s *Scope) Get(name string) (any, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		for i := len(cur.live) - 1; i >= 0; i-- {
			if v, ok := cur.live[i].Lookup(name); ok {
				return v, true
			}
		}
		if v, ok := cur.values[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Attach layers b over the names of s until release is called.
func (s *Scope) Attach(b Bindings) (release func()) {
	s.live = append(s.live, b)
	n := len(s.live)
	return func() {
		if len(s.live) >= n {
			s.live = s.live[:n-1]
		}
	}
}

func (s *Scope) Set(name string, v any) {
	if _, ok := s.values[name]; !ok {
		s.names = append(s.names, name)
	}
	s.values[name] = v
}

// Names returns the names bound directly in s, in insertion order.
func (s *Scope) Names() []string {
	return append([]string(nil), s.names...)
}

func (s *Scope) Len() int { return len(s.names) }

// Flatten returns every visible name, outermost first, with inner bindings
// shadowing outer ones.
func (s *Scope) Flatten() ([]string, map[string]any) {
	var chain []*Scope
	for cur := s; cur != nil; cur = cur.parent {
		chain = append(chain, cur)
	}
	var names []string
	values := make(map[string]any)
	bind := func(n string, v any) {
		if _, seen := values[n]; !seen {
			names = append(names, n)
		}
		values[n] = v
	}
	for i := len(chain) - 1; i >= 0; i-- {
		for _, n := range chain[i].names {
			bind(n, chain[i].values[n])
		}
		for _, b := range chain[i].live {
			for _, n := range b.Names() {
				if v, ok := b.Lookup(n); ok {
					bind(n, v)
				}
			}
		}
	}
	return names, values
}
