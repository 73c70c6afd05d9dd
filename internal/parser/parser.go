// Package parser defines the typed SQL syntax tree consumed by the scope
// builder and the Parser contract implemented by the structured backends.
package parser

import "context"

// Parser turns SQL text into a typed syntax tree.
type Parser interface {
	// Available reports whether the backend can parse at all. The answer is
	// computed once per instance.
	Available() bool

	// Parse returns nil when the backend fails for any reason. A nil tree
	// means "use the fallback", never an error for the user.
	Parse(ctx context.Context, src string) *Program

	// Name identifies the backend in logs.
	Name() string
}

// Disabled is a Parser that is never available. It forces the regex fallback.
type Disabled struct{}

func (Disabled) Available() bool                        { return false }
func (Disabled) Parse(context.Context, string) *Program { return nil }
func (Disabled) Name() string                           { return "disabled" }
