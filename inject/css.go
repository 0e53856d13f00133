package inject

import (
	"fmt"
	"strings"

	"github.com/aymerick/douceur/parser"
)

// ValidateCSS checks css as a stylesheet and returns ErrInvalidCSS when it
// is broken. The check runs before any tab is touched so that a typo fails
// fast instead of leaving a half-applied document.
//
// The douceur parser follows the CSS error-recovery rules and auto-closes
// open constructs at EOF, so truncated input parses clean. Structural
// failures (unclosed blocks, stray braces, unterminated strings and
// comments) are caught by a scan of the raw text first; the parser then
// rejects whatever malformed rules remain.
func ValidateCSS(css string) error {
	if strings.TrimSpace(css) == "" {
		return nil
	}
	if err := checkStructure(css); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCSS, err)
	}
	if _, err := parser.Parse(css); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCSS, err)
	}
	return nil
}

// checkStructure verifies that every brace closes and every string and
// comment terminates. Braces inside comments and quoted strings do not
// count toward nesting.
func checkStructure(css string) error {
	depth := 0
	for i := 0; i < len(css); i++ {
		switch c := css[i]; c {
		case '/':
			if i+1 < len(css) && css[i+1] == '*' {
				end := strings.Index(css[i+2:], "*/")
				if end < 0 {
					return fmt.Errorf("unterminated comment")
				}
				i += 2 + end + 1
			}
		case '\'', '"':
			j := i + 1
			for j < len(css) && css[j] != c {
				if css[j] == '\\' {
					j++
				}
				j++
			}
			if j >= len(css) {
				return fmt.Errorf("unterminated string")
			}
			i = j
		case '{':
			depth++
		case '}':
			depth--
			if depth < 0 {
				return fmt.Errorf("unmatched closing brace")
			}
		}
	}
	if depth > 0 {
		return fmt.Errorf("unclosed block")
	}
	return nil
}
