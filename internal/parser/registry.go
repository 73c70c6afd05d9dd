package parser

import (
	"context"
	"strings"
)

// Registry holds structured parsers in preference order.
type Registry struct {
	parsers []Parser
	byName  map[string]Parser
}

func NewRegistry(parsers ...Parser) *Registry {
	r := &Registry{byName: make(map[string]Parser)}
	for _, p := range parsers {
		r.Register(p)
	}
	return r
}

// Register appends p to the preference order. A parser registered under an
// existing name replaces it in place.
func (r *Registry) Register(p Parser) {
	name := strings.ToLower(p.Name())
	if _, ok := r.byName[name]; ok {
		for i, existing := range r.parsers {
			if strings.EqualFold(existing.Name(), name) {
				r.parsers[i] = p
			}
		}
	} else {
		r.parsers = append(r.parsers, p)
	}
	r.byName[name] = p
}

// Get returns the parser registered under name, or nil.
func (r *Registry) Get(name string) Parser {
	return r.byName[strings.ToLower(name)]
}

// Names returns the registered parser names in preference order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.parsers))
	for _, p := range r.parsers {
		names = append(names, p.Name())
	}
	return names
}

// Only returns a registry holding just the named parser, or nil if unknown.
func (r *Registry) Only(name string) *Registry {
	p := r.Get(name)
	if p == nil {
		return nil
	}
	return NewRegistry(p)
}

// Available reports whether any registered parser can run.
func (r *Registry) Available() bool {
	for _, p := range r.parsers {
		if p.Available() {
			return true
		}
	}
	return false
}

// Parse runs the available parsers in order and returns the first tree
// without error nodes together with the name of the parser that produced
// it. When every tree carries errors the first one produced is returned. A
// nil program means every parser declined.
func (r *Registry) Parse(ctx context.Context, src string) (*Program, string) {
	var (
		first     *Program
		firstName string
	)
	for _, p := range r.parsers {
		if ctx.Err() != nil {
			return nil, ""
		}
		if !p.Available() {
			continue
		}
		prog := p.Parse(ctx, src)
		if prog == nil {
			continue
		}
		if !HasErrors(prog) {
			return prog, p.Name()
		}
		if first == nil {
			first, firstName = prog, p.Name()
		}
	}
	if ctx.Err() != nil {
		return nil, ""
	}
	return first, firstName
}
