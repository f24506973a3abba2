package rag

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	celast "github.com/google/cel-go/common/ast"
)

// ErrInvalidFilter is returned when a filter expression cannot be parsed.
var ErrInvalidFilter = errors.New("invalid filter expression")

var (
	envOnce sync.Once
	env     *cel.Env
	envErr  error

	ninPattern     = regexp.MustCompile(`(?i)([A-Za-z_][\w.]*)\s+nin\s+(\[[^\]]*\])`)
	keywordPattern = regexp.MustCompile(`(?i)\b(and|or|not|in)\b`)
	literalPattern = regexp.MustCompile(`\x00[0-9]+\x00`)
)

func filterEnv() (*cel.Env, error) {
	envOnce.Do(func() {
		env, envErr = cel.NewEnv(cel.CrossTypeNumericComparisons(true))
	})
	return env, envErr
}

// Filter is a boolean predicate over document metadata. Metadata keys are
// referenced as top-level identifiers, e.g. `genre == 'drama' && year >= 2020`.
// A nil *Filter matches every document.
type Filter struct {
	expression string
	ast        *cel.Ast
	program    cel.Program
}

// ParseFilter compiles expression. A blank expression yields a nil filter.
func ParseFilter(expression string) (*Filter, error) {
	if strings.TrimSpace(expression) == "" {
		return nil, nil
	}
	e, err := filterEnv()
	if err != nil {
		return nil, fmt.Errorf("filter environment: %w", err)
	}
	normalized := normalizeFilter(expression)
	ast, iss := e.Parse(normalized)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidFilter, iss.Err())
	}
	program, err := e.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	return &Filter{expression: expression, ast: ast, program: program}, nil
}

// String returns the expression as written by the caller.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.expression
}

// Matches reports whether metadata satisfies the filter. Missing keys and
// type mismatches never match.
func (f *Filter) Matches(metadata map[string]interface{}) bool {
	if f == nil {
		return true
	}
	vars := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		vars[k] = v
	}
	out, _, err := f.program.Eval(vars)
	if err != nil {
		return false
	}
	matched, ok := out.Value().(bool)
	return ok && matched
}

// Expr exposes the parsed expression tree for stores that push filtering
// down into their query language.
func (f *Filter) Expr() celast.Expr {
	if f == nil {
		return nil
	}
	return f.ast.NativeRep().Expr()
}

// normalizeFilter rewrites the keyword operators of the portable filter
// language (AND, OR, NOT, IN, NIN) into CEL syntax. Quoted literals are
// masked first and restored last, so nothing inside them is rewritten.
func normalizeFilter(expression string) string {
	masked, literals := maskLiterals(expression)

	masked = ninPattern.ReplaceAllString(masked, "!($1 in $2)")
	masked = keywordPattern.ReplaceAllStringFunc(masked, func(word string) string {
		switch strings.ToLower(word) {
		case "and":
			return "&&"
		case "or":
			return "||"
		case "not":
			return "!"
		default:
			return "in"
		}
	})

	restored := literalPattern.ReplaceAllStringFunc(masked, func(ph string) string {
		i, _ := strconv.Atoi(ph[1 : len(ph)-1])
		return literals[i]
	})
	return strings.TrimSpace(restored)
}

// maskLiterals replaces every quoted literal with a NUL-delimited index. An
// unterminated quote runs to the end of the expression.
func maskLiterals(expression string) (string, []string) {
	var (
		b        strings.Builder
		literal  strings.Builder
		literals []string
		quote    rune
		escaped  bool
	)
	closeLiteral := func() {
		fmt.Fprintf(&b, "\x00%d\x00", len(literals))
		literals = append(literals, literal.String())
		literal.Reset()
	}
	for _, r := range expression {
		switch {
		case quote != 0:
			literal.WriteRune(r)
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == quote:
				quote = 0
				closeLiteral()
			}
		case r == '\'' || r == '"':
			quote = r
			literal.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	if quote != 0 {
		closeLiteral()
	}
	return b.String(), literals
}
