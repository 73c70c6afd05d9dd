package tsql

// MaskBatchSeparators blanks every GO batch separator (and its optional repeat
// count) with spaces of the same byte length, so byte offsets and line/column
// positions of everything else stay aligned with the original text.
func MaskBatchSeparators(src string) string {
	tokens := NewLexer(src).Tokenize()
	var buf []byte
	for i, tok := range tokens {
		if tok.Type != TokenGO {
			continue
		}
		if buf == nil {
			buf = []byte(src)
		}
		end := tok.End
		if i+1 < len(tokens) && tokens[i+1].Type == TokenNumber {
			end = tokens[i+1].End
		}
		for j := tok.Offset; j < end; j++ {
			buf[j] = ' '
		}
	}
	if buf == nil {
		return src
	}
	return string(buf)
}

// BatchRanges returns the [start, end) byte ranges of the batches between GO
// separators. Empty batches are skipped.
func BatchRanges(src string) [][2]int {
	tokens := NewLexer(src).Tokenize()
	var out [][2]int
	start := -1
	end := 0
	for _, tok := range tokens {
		switch tok.Type {
		case TokenGO:
			if start >= 0 {
				out = append(out, [2]int{start, end})
			}
			start = -1
		case TokenNewline, TokenComment, TokenEOF:
		default:
			if start < 0 {
				start = tok.Offset
			}
			end = tok.End
		}
	}
	if start >= 0 {
		out = append(out, [2]int{start, end})
	}
	return out
}
