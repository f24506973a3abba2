package rag

import (
	"fmt"
	"strings"

	celast "github.com/google/cel-go/common/ast"
	"github.com/google/cel-go/common/operators"
	"github.com/google/cel-go/common/types"
)

var sqlComparisons = map[string]string{
	operators.Equals:        "=",
	operators.NotEquals:     "<>",
	operators.Less:          "<",
	operators.LessEquals:    "<=",
	operators.Greater:       ">",
	operators.GreaterEquals: ">=",
}

// mirrored operators for `literal OP key`
var sqlFlipped = map[string]string{
	"=": "=", "<>": "<>", "<": ">", "<=": ">=", ">": "<", ">=": "<=",
}

// SQL compiles the filter into a parameterised PostgreSQL predicate over a
// JSONB column. Placeholders start at $argOffset+1. A key that is missing or
// holds a value of another type makes its comparison NULL, so the row is
// excluded just like a failed evaluation in Matches. Only comparisons, in,
// &&, || and ! over metadata keys and literals are supported.
func (f *Filter) SQL(column string, argOffset int) (string, []interface{}, error) {
	if f == nil {
		return "TRUE", nil, nil
	}
	c := &sqlCompiler{column: column, offset: argOffset}
	clause, err := c.compile(f.Expr())
	if err != nil {
		return "", nil, fmt.Errorf("%w: %s: %v", ErrInvalidFilter, f.expression, err)
	}
	return clause, c.args, nil
}

type sqlCompiler struct {
	column string
	offset int
	args   []interface{}
}

func (c *sqlCompiler) bind(v interface{}) string {
	c.args = append(c.args, v)
	return fmt.Sprintf("$%d", c.offset+len(c.args))
}

func (c *sqlCompiler) compile(e celast.Expr) (string, error) {
	switch e.Kind() {
	case celast.CallKind:
		return c.compileCall(e.AsCall())
	case celast.LiteralKind:
		if b, ok := e.AsLiteral().Value().(bool); ok {
			if b {
				return "TRUE", nil
			}
			return "FALSE", nil
		}
		return "", fmt.Errorf("literal %v is not a boolean", e.AsLiteral().Value())
	case celast.IdentKind:
		// bare key: true when the metadata value is the boolean true
		return c.comparison(e.AsIdent(), "=", true)
	default:
		return "", fmt.Errorf("unsupported expression")
	}
}

func (c *sqlCompiler) compileCall(call celast.CallExpr) (string, error) {
	args := call.Args()
	switch fn := call.FunctionName(); fn {
	case operators.LogicalAnd, operators.LogicalOr:
		left, err := c.compile(args[0])
		if err != nil {
			return "", err
		}
		right, err := c.compile(args[1])
		if err != nil {
			return "", err
		}
		op := "AND"
		if fn == operators.LogicalOr {
			op = "OR"
		}
		return "(" + left + " " + op + " " + right + ")", nil

	case operators.LogicalNot:
		inner, err := c.compile(args[0])
		if err != nil {
			return "", err
		}
		return "(NOT " + inner + ")", nil

	case operators.In:
		key, ok := identName(args[0])
		if !ok || args[1].Kind() != celast.ListKind {
			return "", fmt.Errorf("in expects a key and a list literal")
		}
		elems := args[1].AsList().Elements()
		if len(elems) == 0 {
			return "FALSE", nil
		}
		parts := make([]string, 0, len(elems))
		for _, el := range elems {
			v, ok := literalValue(el)
			if !ok {
				return "", fmt.Errorf("in list must hold literals")
			}
			part, err := c.comparison(key, "=", v)
			if err != nil {
				return "", err
			}
			parts = append(parts, part)
		}
		return "(" + strings.Join(parts, " OR ") + ")", nil

	default:
		op, ok := sqlComparisons[fn]
		if !ok {
			return "", fmt.Errorf("unsupported function %s", fn)
		}
		if key, ok := identName(args[0]); ok {
			v, ok := literalValue(args[1])
			if !ok {
				return "", fmt.Errorf("%s must be compared with a literal", key)
			}
			return c.comparison(key, op, v)
		}
		if key, ok := identName(args[1]); ok {
			v, ok := literalValue(args[0])
			if !ok {
				return "", fmt.Errorf("%s must be compared with a literal", key)
			}
			return c.comparison(key, sqlFlipped[op], v)
		}
		return "", fmt.Errorf("comparison needs a metadata key")
	}
}

// comparison emits a type guarded comparison of one metadata key.
func (c *sqlCompiler) comparison(key, op string, value interface{}) (string, error) {
	field := c.column + "->" + c.bind(key) + "::text"
	text := c.column + "->>" + c.lastPlaceholder() + "::text"

	var jsonType, lhs, rhs string
	switch v := value.(type) {
	case nil:
		if op != "=" && op != "<>" {
			return "", fmt.Errorf("null only supports == and !=")
		}
		return "(jsonb_typeof(" + field + ") " + op + " 'null')", nil
	case string:
		jsonType, lhs, rhs = "string", text, c.bind(v)
	case bool:
		jsonType, lhs, rhs = "boolean", "("+text+")::boolean", c.bind(v)+"::boolean"
	case int64, uint64, float64:
		jsonType, lhs, rhs = "number", "("+text+")::numeric", c.bind(v)+"::numeric"
	default:
		return "", fmt.Errorf("unsupported literal %T", value)
	}
	return "(CASE WHEN jsonb_typeof(" + field + ") = '" + jsonType + "' THEN " + lhs + " " + op + " " + rhs + " END)", nil
}

// lastPlaceholder returns the placeholder of the most recently bound argument.
func (c *sqlCompiler) lastPlaceholder() string {
	return fmt.Sprintf("$%d", c.offset+len(c.args))
}

func identName(e celast.Expr) (string, bool) {
	if e.Kind() != celast.IdentKind {
		return "", false
	}
	return e.AsIdent(), true
}

func literalValue(e celast.Expr) (interface{}, bool) {
	if e.Kind() != celast.LiteralKind {
		return nil, false
	}
	lit := e.AsLiteral()
	if lit == types.NullValue {
		return nil, true
	}
	switch v := lit.Value().(type) {
	case string, bool, int64, uint64, float64:
		return v, true
	}
	return nil, false
}
