package models

// ScopeNode is the wire form of one node of a scope tree.
type ScopeNode struct {
	Kind      string            `json:"kind"`
	StartByte int               `json:"start_byte"`
	EndByte   int               `json:"end_byte"`
	Start     Position          `json:"start"`
	End       Position          `json:"end"`
	Aliases   map[string]string `json:"aliases,omitempty"`
	CTEs      []string          `json:"ctes,omitempty"`
	Derived   []string          `json:"derived,omitempty"`
	Children  []ScopeNode       `json:"children,omitempty"`
}

type ScopeTree struct {
	Vendor      string    `json:"vendor,omitempty"`
	Parser      string    `json:"parser"`
	Degraded    bool      `json:"degraded"`
	ParseErrors bool      `json:"parse_errors"`
	TempTables  []string  `json:"temp_tables,omitempty"`
	Root        ScopeNode `json:"root"`
}
