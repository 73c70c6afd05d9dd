package tsql

import "testing"

func TestTokenizeOffsets(t *testing.T) {
	tokens := NewLexer("SELECT [Order Id] FROM #t").Tokenize()
	want := []struct {
		typ    TokenType
		value  string
		raw    string
		offset int
	}{
		{TokenKeyword, "SELECT", "SELECT", 0},
		{TokenIdent, "Order Id", "[Order Id]", 7},
		{TokenKeyword, "FROM", "FROM", 18},
		{TokenIdent, "#t", "#t", 23},
		{TokenEOF, "", "", 25},
	}
	if len(tokens) != len(want) {
		t.Fatalf("expected %d tokens, got %d: %+v", len(want), len(tokens), tokens)
	}
	for i, w := range want {
		got := tokens[i]
		if got.Type != w.typ || got.Value != w.value || got.Raw != w.raw || got.Offset != w.offset {
			t.Errorf("token %d = %+v, want %+v", i, got, w)
		}
	}
}

func TestTokenizeLinesAndComments(t *testing.T) {
	tokens := NewLexer("-- note\nSELECT 'it''s'\n/* a\nb */ x").Tokenize()
	var sawString, sawX bool
	for _, tok := range tokens {
		if tok.Type == TokenString {
			sawString = true
			if tok.Raw != "'it''s'" || tok.Line != 2 {
				t.Errorf("unexpected string token %+v", tok)
			}
		}
		if tok.Type == TokenIdent && tok.Value == "x" {
			sawX = true
			if tok.Line != 4 || tok.Col != 6 {
				t.Errorf("x at %d:%d, want 4:6", tok.Line, tok.Col)
			}
		}
	}
	if !sawString || !sawX {
		t.Error("missing tokens")
	}
}

func TestDetectGO(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"SELECT 1\nGO\nSELECT 2", 1},
		{"SELECT 1\nGO 3\nSELECT 2", 1},
		{"SELECT 1\n  go -- done\n", 1},
		{"SELECT go FROM t", 0},
		{"GO", 1},
	}
	for _, tt := range tests {
		count := 0
		for _, tok := range NewLexer(tt.input).Tokenize() {
			if tok.Type == TokenGO {
				count++
			}
		}
		if count != tt.want {
			t.Errorf("%q: %d GO tokens, want %d", tt.input, count, tt.want)
		}
	}
}

func TestMaskBatchSeparators(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"SELECT 1\nGO\nSELECT 2", "SELECT 1\n  \nSELECT 2"},
		{"SELECT 1\nGO 2\nSELECT 2", "SELECT 1\n    \nSELECT 2"},
		{"SELECT 1", "SELECT 1"},
	}
	for _, tt := range tests {
		got := MaskBatchSeparators(tt.input)
		if got != tt.want {
			t.Errorf("MaskBatchSeparators(%q) = %q, want %q", tt.input, got, tt.want)
		}
		if len(got) != len(tt.input) {
			t.Errorf("length changed for %q", tt.input)
		}
	}
}

func TestBatchRanges(t *testing.T) {
	got := BatchRanges("SELECT 1\nGO\nSELECT 2")
	if len(got) != 2 {
		t.Fatalf("expected 2 batches, got %v", got)
	}
	if got[0] != [2]int{0, 8} || got[1] != [2]int{12, 20} {
		t.Errorf("unexpected ranges %v", got)
	}
}
