package mcp

import (
	"fmt"
	"sort"
	"strings"

	"github.com/maraichr/sqlscope/internal/mcp/session"
	"github.com/maraichr/sqlscope/pkg/models"
)

const defaultMaxTokens = 4000

// Verbosity controls how much detail is included in table cards.
type Verbosity string

const (
	VerbositySummary  Verbosity = "summary"
	VerbosityStandard Verbosity = "standard"
	VerbosityFull     Verbosity = "full"
)

// ParseVerbosity returns a Verbosity from a string, defaulting to standard.
func ParseVerbosity(s string) Verbosity {
	switch strings.ToLower(s) {
	case "summary":
		return VerbositySummary
	case "full":
		return VerbosityFull
	default:
		return VerbosityStandard
	}
}

// ResponseBuilder constructs token-budgeted Markdown responses for MCP tools.
type ResponseBuilder struct {
	buf           strings.Builder
	tokenEstimate int
	maxTokens     int
	truncated     bool
	itemCount     int
}

// NewResponseBuilder creates a builder with the given token budget.
// If maxTokens <= 0, defaultMaxTokens is used.
func NewResponseBuilder(maxTokens int) *ResponseBuilder {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &ResponseBuilder{maxTokens: maxTokens}
}

// AddHeader writes a header line to the response.
func (rb *ResponseBuilder) AddHeader(text string) {
	line := text + "\n\n"
	rb.buf.WriteString(line)
	rb.tokenEstimate += len(line) / 4
}

// AddLine writes a single line to the response, returning false if budget exceeded.
func (rb *ResponseBuilder) AddLine(text string) bool {
	return rb.add(text+"\n", false)
}

// AddSection writes a section with a heading.
func (rb *ResponseBuilder) AddSection(heading string, content string) bool {
	return rb.add(fmt.Sprintf("### %s\n%s\n\n", heading, content), false)
}

// AddTableCard renders a resolved relation at the requested verbosity.
// Returns false if the card would exceed the token budget.
func (rb *ResponseBuilder) AddTableCard(obj models.Object, verbosity Verbosity, sess *session.Session) bool {
	return rb.add(formatTableCard(obj, verbosity, sess), true)
}

// AddTableStub renders a one-line stub for a table already described.
func (rb *ResponseBuilder) AddTableStub(obj models.Object) bool {
	return rb.add(fmt.Sprintf("- ~%s~ (%s) already described, %d columns\n",
		obj.QualifiedName, obj.Kind, len(obj.Columns)), true)
}

func (rb *ResponseBuilder) add(text string, item bool) bool {
	cost := len(text) / 4
	if rb.tokenEstimate+cost > rb.maxTokens {
		rb.truncated = true
		return false
	}
	rb.buf.WriteString(text)
	rb.tokenEstimate += cost
	if item {
		rb.itemCount++
	}
	return true
}

// Finalize appends truncation notice and returns the final response text.
func (rb *ResponseBuilder) Finalize(totalCount, returnedCount int) string {
	if rb.truncated || returnedCount < totalCount {
		rb.buf.WriteString(fmt.Sprintf(
			"\n---\n*Showing %d of %d results (truncated to ~%d tokens). Increase `max_response_tokens` or use `verbosity: summary`.*\n",
			returnedCount, totalCount, rb.maxTokens))
	}
	return rb.buf.String()
}

// TokenEstimate returns the current estimated token count.
func (rb *ResponseBuilder) TokenEstimate() int {
	return rb.tokenEstimate
}

// IsTruncated returns whether the response was truncated.
func (rb *ResponseBuilder) IsTruncated() bool {
	return rb.truncated
}

// ItemCount returns the number of items added.
func (rb *ResponseBuilder) ItemCount() int {
	return rb.itemCount
}

// FormatAnalysis renders an analysis: the cursor scope, the visible
// relations and a card per resolved object. Objects the session has seen
// before are stubbed.
func FormatAnalysis(a *models.Analysis, verbosity Verbosity, sess *session.Session, maxTokens int) string {
	rb := NewResponseBuilder(maxTokens)
	rb.AddHeader(fmt.Sprintf("**Scope** `%s` (depth %d, lines %d-%d) | parser: %s",
		a.Scope.Kind, a.Scope.Depth, a.Scope.Start.Line, a.Scope.End.Line, a.Parser))
	if a.Degraded {
		rb.AddLine("*Structured parsing unavailable; aliases come from pattern matching.*")
	}

	if len(a.Tables) > 0 {
		var lines []string
		for _, t := range a.Tables {
			lines = append(lines, formatTableRef(t))
		}
		rb.AddSection(fmt.Sprintf("Visible relations (%d)", len(a.Tables)), strings.Join(lines, "\n"))
	} else {
		rb.AddLine("No relations are visible at the cursor.")
	}
	if len(a.CTEs) > 0 {
		rb.AddLine("CTEs: " + strings.Join(a.CTEs, ", "))
	}

	shown := 0
	for _, obj := range a.Objects {
		var ok bool
		if sess != nil && sess.IsSeen(obj.QualifiedName) {
			ok = rb.AddTableStub(obj)
		} else {
			ok = rb.AddTableCard(obj, verbosity, sess)
		}
		if !ok {
			break
		}
		shown++
	}
	return rb.Finalize(len(a.Objects), shown)
}

// FormatColumns renders the columns of one table.
func FormatColumns(resp *models.ColumnsResponse, maxTokens int) string {
	if resp.Object == nil {
		return fmt.Sprintf("Table `%s` could not be resolved.", resp.Table)
	}
	rb := NewResponseBuilder(maxTokens)
	rb.AddHeader(fmt.Sprintf("**%s** (%s) | %d columns", resp.Object.QualifiedName, resp.Object.Kind, len(resp.Columns)))
	shown := 0
	for _, c := range resp.Columns {
		if !rb.AddLine("- " + formatColumn(c)) {
			break
		}
		shown++
	}
	return rb.Finalize(len(resp.Columns), shown)
}

// FormatScopeTree renders a scope tree as an indented outline.
func FormatScopeTree(tree models.ScopeTree, maxTokens int) string {
	rb := NewResponseBuilder(maxTokens)
	rb.AddHeader(fmt.Sprintf("**Scope tree** | parser: %s", tree.Parser))
	if len(tree.TempTables) > 0 {
		rb.AddLine("Temp tables: " + strings.Join(tree.TempTables, ", "))
	}
	count, shown := 0, 0
	var walk func(n models.ScopeNode, depth int) bool
	walk = func(n models.ScopeNode, depth int) bool {
		count++
		if !rb.AddLine(strings.Repeat("  ", depth) + formatScopeNode(n)) {
			return false
		}
		shown++
		for _, c := range n.Children {
			if !walk(c, depth+1) {
				return false
			}
		}
		return true
	}
	walk(tree.Root, 0)
	return rb.Finalize(count, shown)
}

func formatScopeNode(n models.ScopeNode) string {
	var b strings.Builder
	fmt.Fprintf(&b, "- `%s` L%d:%d-L%d:%d", n.Kind, n.Start.Line, n.Start.Column, n.End.Line, n.End.Column)
	if len(n.Aliases) > 0 {
		keys := make([]string, 0, len(n.Aliases))
		for k := range n.Aliases {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, len(keys))
		for i, k := range keys {
			pairs[i] = k + "=" + n.Aliases[k]
		}
		fmt.Fprintf(&b, " aliases: %s", strings.Join(pairs, ", "))
	}
	if len(n.CTEs) > 0 {
		fmt.Fprintf(&b, " ctes: %s", strings.Join(n.CTEs, ", "))
	}
	if len(n.Derived) > 0 {
		fmt.Fprintf(&b, " derived: %s", strings.Join(n.Derived, ", "))
	}
	return b.String()
}

func formatTableRef(t models.TableRef) string {
	name := t.Name
	if t.Alias != "" && !strings.EqualFold(t.Alias, t.Name) {
		name = fmt.Sprintf("%s AS %s", t.Name, t.Alias)
	}
	if !t.Resolved {
		return fmt.Sprintf("- %s (%s) unresolved", name, t.Kind)
	}
	return fmt.Sprintf("- %s (%s) -> `%s`", name, t.Kind, t.Object)
}

func formatColumn(c models.Column) string {
	var b strings.Builder
	fmt.Fprintf(&b, "`%s` %s", c.Name, c.DataType)
	if !c.Nullable {
		b.WriteString(" NOT NULL")
	}
	if c.IsPrimaryKey {
		b.WriteString(" PK")
	}
	if c.IsForeignKey {
		b.WriteString(" FK")
	}
	return b.String()
}

// formatTableCard renders a relation as a Markdown card at the given verbosity.
func formatTableCard(obj models.Object, verbosity Verbosity, sess *session.Session) string {
	var b strings.Builder

	seen := ""
	if sess != nil && sess.IsSeen(obj.QualifiedName) {
		seen = " *(seen)*"
	}
	b.WriteString(fmt.Sprintf("**%s** (%s)%s\n", obj.Name, obj.Kind, seen))
	b.WriteString(fmt.Sprintf("  FQN: `%s`\n", obj.QualifiedName))

	switch verbosity {
	case VerbositySummary:
		b.WriteString(fmt.Sprintf("  Columns: %d\n\n", len(obj.Columns)))

	case VerbosityFull:
		b.WriteString(fmt.Sprintf("  Columns (%d):\n", len(obj.Columns)))
		for _, c := range obj.Columns {
			b.WriteString("  - " + formatColumn(c) + "\n")
		}
		b.WriteString("\n")

	default: // standard
		names := make([]string, len(obj.Columns))
		for i, c := range obj.Columns {
			names[i] = c.Name + " " + c.DataType
		}
		if len(names) == 0 {
			b.WriteString("  Columns: unknown\n\n")
		} else {
			b.WriteString(fmt.Sprintf("  Columns: %s\n\n", strings.Join(names, ", ")))
		}
	}

	return b.String()
}
