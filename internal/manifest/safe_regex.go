package manifest

import (
	"fmt"
	"regexp"
	"strings"
)

// Manifest validation patterns are author-supplied and therefore untrusted.
// Although this process evaluates them with RE2 (linear time), the same
// patterns are shipped to tenant frontends and plugin containers whose regex
// engines backtrack, so shapes with catastrophic-backtracking risk are
// rejected centrally before a manifest is accepted.
const (
	maxPatternLength = 256

	// MaxValidatedLength bounds the number of bytes of any value tested
	// against a manifest pattern.
	MaxValidatedLength = 1024
)

// ScreenPattern rejects patterns that are too long, contain nested
// quantifiers (e.g. `(a+)+`), quantify an alternation with overlapping
// branches (e.g. `(a|ab)*`), or fail to compile.
func ScreenPattern(pattern string) error {
	if len(pattern) > maxPatternLength {
		return fmt.Errorf("validation pattern exceeds %d characters", maxPatternLength)
	}
	if err := screenStructure(pattern); err != nil {
		return err
	}
	if _, err := regexp.Compile(pattern); err != nil {
		return fmt.Errorf("validation pattern does not compile: %w", err)
	}
	return nil
}

// CompilePattern screens and compiles in one step.
func CompilePattern(pattern string) (*regexp.Regexp, error) {
	if err := ScreenPattern(pattern); err != nil {
		return nil, err
	}
	return regexp.Compile(pattern)
}

// MatchBounded tests value against re, truncating the value to
// MaxValidatedLength bytes first.
func MatchBounded(re *regexp.Regexp, value string) bool {
	if len(value) > MaxValidatedLength {
		value = value[:MaxValidatedLength]
	}
	return re.MatchString(value)
}

type group struct {
	start         int
	content       strings.Builder
	hasQuantifier bool
}

// screenStructure walks the pattern once, tracking parenthesized groups. A
// group that contains a quantifier and is itself quantified is a nested
// quantifier. A quantified group whose top-level alternation branches
// overlap (one branch is a prefix of another) is ambiguous under
// backtracking.
func screenStructure(pattern string) error {
	var stack []*group
	escaped := false
	inClass := false

	for i := 0; i < len(pattern); i++ {
		ch := pattern[i]

		if escaped {
			escaped = false
			appendToGroups(stack, ch)
			continue
		}

		switch ch {
		case '\\':
			escaped = true
			appendToGroups(stack, ch)
			continue
		case '[':
			inClass = true
		case ']':
			inClass = false
		}
		if inClass {
			appendToGroups(stack, ch)
			continue
		}

		switch ch {
		case '(':
			stack = append(stack, &group{start: i})
		case ')':
			if len(stack) == 0 {
				return fmt.Errorf("validation pattern has unbalanced parentheses")
			}
			closed := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			quantified := i+1 < len(pattern) && isQuantifierStart(pattern[i+1])
			if quantified {
				if closed.hasQuantifier {
					return fmt.Errorf("validation pattern has nested quantifiers (catastrophic backtracking risk)")
				}
				if err := checkAlternation(closed.content.String()); err != nil {
					return err
				}
			}
			if closed.hasQuantifier || quantified {
				markQuantifier(stack)
			}
			appendToGroups(stack, ch)
		case '*', '+':
			markQuantifier(stack)
			appendToGroups(stack, ch)
		case '{':
			if isCountedRepetition(pattern[i:]) {
				markQuantifier(stack)
			}
			appendToGroups(stack, ch)
		default:
			appendToGroups(stack, ch)
		}
	}

	if len(stack) != 0 {
		return fmt.Errorf("validation pattern has unbalanced parentheses")
	}
	return nil
}

func appendToGroups(stack []*group, ch byte) {
	for _, g := range stack {
		g.content.WriteByte(ch)
	}
}

func markQuantifier(stack []*group) {
	for _, g := range stack {
		g.hasQuantifier = true
	}
}

func isQuantifierStart(ch byte) bool {
	return ch == '*' || ch == '+' || ch == '{'
}

// isCountedRepetition reports whether s starts a `{n}` / `{n,}` / `{n,m}`
// repetition rather than a literal brace.
func isCountedRepetition(s string) bool {
	end := strings.IndexByte(s, '}')
	if end <= 1 {
		return false
	}
	body := s[1:end]
	sawDigit := false
	sawComma := false
	for i := 0; i < len(body); i++ {
		switch {
		case body[i] >= '0' && body[i] <= '9':
			sawDigit = true
		case body[i] == ',' && !sawComma:
			sawComma = true
		default:
			return false
		}
	}
	return sawDigit
}

// checkAlternation splits the group body on top-level '|' and rejects when
// one branch is a prefix of another.
func checkAlternation(body string) error {
	depth := 0
	escaped := false
	inClass := false
	branches := []string{}
	var current strings.Builder

	for i := 0; i < len(body); i++ {
		ch := body[i]
		if escaped {
			escaped = false
			current.WriteByte(ch)
			continue
		}
		switch ch {
		case '\\':
			escaped = true
		case '[':
			inClass = true
		case ']':
			inClass = false
		case '(':
			if !inClass {
				depth++
			}
		case ')':
			if !inClass {
				depth--
			}
		case '|':
			if !inClass && depth == 0 {
				branches = append(branches, current.String())
				current.Reset()
				continue
			}
		}
		current.WriteByte(ch)
	}
	branches = append(branches, current.String())
	if len(branches) < 2 {
		return nil
	}

	for i := 0; i < len(branches); i++ {
		for j := 0; j < len(branches); j++ {
			if i == j || branches[i] == "" {
				continue
			}
			if strings.HasPrefix(branches[j], branches[i]) {
				return fmt.Errorf("validation pattern has overlapping alternation branches under a quantifier (catastrophic backtracking risk)")
			}
		}
	}
	return nil
}
