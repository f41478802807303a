package experiment

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
)

// ParseOverride splits a "key=value" token. The value is read as an expr
// literal (numbers, quoted strings, true/false, nil, arrays and maps of
// literals); anything else is kept as the raw string, so `name=hello` yields
// "hello".
func ParseOverride(raw string) (string, any, error) {
	key, text, ok := strings.Cut(raw, "=")
	if !ok {
		return "", nil, fmt.Errorf("experiment: override %q is not key=value", raw)
	}
	key = strings.TrimSpace(key)
	if err := validateKey(key); err != nil {
		return "", nil, err
	}
	return key, parseLiteral(strings.TrimSpace(text)), nil
}

// ParseOverrides parses every token into one override map. A later token wins
// over an earlier one for the same key.
func ParseOverrides(tokens []string) (map[string]any, error) {
	out := make(map[string]any, len(tokens))
	for _, token := range tokens {
		key, value, err := ParseOverride(token)
		if err != nil {
			return nil, err
		}
		out[key] = value
	}
	return out, nil
}

func parseLiteral(text string) any {
	if text == "" {
		return ""
	}
	tree, err := parser.Parse(text)
	if err != nil || tree == nil {
		return text
	}
	value, ok := literalValue(tree.Node)
	if !ok {
		return text
	}
	return value
}

func literalValue(node ast.Node) (any, bool) {
	switch n := node.(type) {
	case *ast.IntegerNode:
		return n.Value, true
	case *ast.FloatNode:
		return n.Value, true
	case *ast.StringNode:
		return n.Value, true
	case *ast.BoolNode:
		return n.Value, true
	case *ast.NilNode:
		return nil, true
	case *ast.UnaryNode:
		value, ok := literalValue(n.Node)
		if !ok {
			return nil, false
		}
		return unaryLiteral(n.Operator, value)
	case *ast.ArrayNode:
		out := make([]any, 0, len(n.Nodes))
		for _, item := range n.Nodes {
			value, ok := literalValue(item)
			if !ok {
				return nil, false
			}
			out = append(out, value)
		}
		return out, true
	case *ast.MapNode:
		out := make(map[string]any, len(n.Pairs))
		for _, item := range n.Pairs {
			pair, ok := item.(*ast.PairNode)
			if !ok {
				return nil, false
			}
			key, ok := pair.Key.(*ast.StringNode)
			if !ok {
				return nil, false
			}
			value, ok := literalValue(pair.Value)
			if !ok {
				return nil, false
			}
			out[key.Value] = value
		}
		return out, true
	default:
		return nil, false
	}
}

func unaryLiteral(operator string, value any) (any, bool) {
	switch operator {
	case "-":
		switch v := value.(type) {
		case int:
			return -v, true
		case float64:
			return -v, true
		}
	case "+":
		switch value.(type) {
		case int, float64:
			return value, true
		}
	case "!", "not":
		if v, ok := value.(bool); ok {
			return !v, true
		}
	}
	return nil, false
}
