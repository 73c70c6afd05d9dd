package analysis

import (
	"fmt"
	"strings"

	"github.com/maraichr/sqlscope/internal/scope"
	"github.com/maraichr/sqlscope/pkg/models"
)

// Offset turns a cursor into a byte offset of tree's source. An explicit
// offset must lie within the text; a line must exist, and a column past
// the end of its line clamps to the line end. No cursor at all means the
// end of the buffer.
func Offset(tree *scope.Tree, c models.Cursor) (int, error) {
	src := tree.Source
	switch {
	case c.Offset != nil:
		if *c.Offset < 0 || *c.Offset > len(src) {
			return 0, fmt.Errorf("%w: offset %d not in [0, %d]", ErrInvalidCursor, *c.Offset, len(src))
		}
		return *c.Offset, nil
	case c.Line != 0 || c.Column != 0:
		lines := strings.Count(src, "\n") + 1
		if c.Line < 1 || c.Line > lines {
			return 0, fmt.Errorf("%w: line %d not in [1, %d]", ErrInvalidCursor, c.Line, lines)
		}
		if c.Column < 0 {
			return 0, fmt.Errorf("%w: column %d", ErrInvalidCursor, c.Column)
		}
		return tree.Offset(c.Line, c.Column), nil
	}
	return len(src), nil
}
