package query

import "strings"

// validateBalance checks parenthesis balance and quote closure over the
// whole expression before any parsing happens. It reports byte positions
// so malformed input fails fast with a usable message.
func validateBalance(s string) *QueryError {
	var openPositions []int
	inQuotes := false
	quoteStart := -1

	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch == '\'' {
			// Doubled quotes inside a string literal are an escaped
			// quote, not a close-then-open.
			if inQuotes && i+1 < len(s) && s[i+1] == '\'' {
				i++
				continue
			}
			if inQuotes {
				inQuotes = false
			} else {
				inQuotes = true
				quoteStart = i
			}
			continue
		}
		if inQuotes {
			continue
		}
		switch ch {
		case '(':
			openPositions = append(openPositions, i)
		case ')':
			if len(openPositions) == 0 {
				return invalidFilter("unbalanced closing parenthesis at position %d", i)
			}
			openPositions = openPositions[:len(openPositions)-1]
		}
	}

	if inQuotes {
		return invalidFilter("unterminated string literal starting at position %d", quoteStart)
	}
	if len(openPositions) > 0 {
		return invalidFilter("unclosed parenthesis at position %d", openPositions[0])
	}
	return nil
}

// splitTopLevel splits s on sep, recognizing the separator only at
// parenthesis depth 0 and outside quoted strings. A separator embedded in
// a string literal ("name eq 'a and b'") is never split on.
func splitTopLevel(s, sep string) []string {
	var parts []string
	depth := 0
	inQuotes := false
	start := 0

	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch == '\'' {
			if inQuotes && i+1 < len(s) && s[i+1] == '\'' {
				i++
				continue
			}
			inQuotes = !inQuotes
			continue
		}
		if inQuotes {
			continue
		}
		switch ch {
		case '(':
			depth++
		case ')':
			depth--
		default:
			if depth == 0 && strings.HasPrefix(s[i:], sep) {
				parts = append(parts, s[start:i])
				i += len(sep) - 1
				start = i + 1
			}
		}
	}

	parts = append(parts, s[start:])
	return parts
}

// splitTopLevelRune splits s on a single separator rune at parenthesis
// depth 0 and outside quotes. Used for comma-separated expand entries and
// semicolon-separated expand sub-options.
func splitTopLevelRune(s string, sep byte) []string {
	var parts []string
	depth := 0
	inQuotes := false
	start := 0

	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch == '\'' {
			if inQuotes && i+1 < len(s) && s[i+1] == '\'' {
				i++
				continue
			}
			inQuotes = !inQuotes
			continue
		}
		if inQuotes {
			continue
		}
		switch ch {
		case '(':
			depth++
		case ')':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}

	parts = append(parts, s[start:])
	return parts
}

// isFullyParenthesized reports whether s is one parenthesized group, i.e.
// the opening paren at position 0 closes at the final character.
func isFullyParenthesized(s string) bool {
	if len(s) < 2 || s[0] != '(' || s[len(s)-1] != ')' {
		return false
	}

	depth := 0
	inQuotes := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch == '\'' {
			if inQuotes && i+1 < len(s) && s[i+1] == '\'' {
				i++
				continue
			}
			inQuotes = !inQuotes
			continue
		}
		if inQuotes {
			continue
		}
		switch ch {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 && i != len(s)-1 {
				return false
			}
		}
	}
	return depth == 0
}
