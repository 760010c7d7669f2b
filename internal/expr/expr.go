// Package expr implements the node context-projection grammar documented in
// SPEC_FULL.md: a dot-path field access over the run's bag, piped through a
// small set of named transforms. It replaces the arbitrary-host-code eval
// the original prototype used (see DESIGN.md) with a closed, pure grammar.
package expr

import (
	"fmt"
	"strconv"
	"strings"
)

// Expr is a compiled projection expression.
type Expr struct {
	path       []segment
	transforms []transform
	raw        string
}

type segment struct {
	field string
	index int // -1 when this segment has no index
}

type transform struct {
	name    string
	literal any // only set for default(...)
}

// Parse compiles expr text of the form "bag.a.b[0] | upper | default(x)".
func Parse(text string) (*Expr, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return &Expr{path: []segment{{field: "bag", index: -1}}, raw: text}, nil
	}

	parts := strings.Split(text, "|")

	pathText := strings.TrimSpace(parts[0])

	segs, err := parsePath(pathText)
	if err != nil {
		return nil, fmt.Errorf("expr: invalid path %q: %w", pathText, err)
	}

	transforms := make([]transform, 0, len(parts)-1)

	for _, raw := range parts[1:] {
		t, err := parseTransform(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("expr: invalid transform: %w", err)
		}

		transforms = append(transforms, t)
	}

	return &Expr{path: segs, transforms: transforms, raw: text}, nil
}

// MustParse panics on parse error; intended for compile-time constants.
func MustParse(text string) *Expr {
	e, err := Parse(text)
	if err != nil {
		panic(err)
	}

	return e
}

// String returns the original expression text.
func (e *Expr) String() string { return e.raw }

func parsePath(text string) ([]segment, error) {
	if text == "" {
		text = "bag"
	}

	rawSegs := strings.Split(text, ".")

	if rawSegs[0] != "bag" {
		return nil, fmt.Errorf("path must start with \"bag\", got %q", rawSegs[0])
	}

	segs := make([]segment, 0, len(rawSegs))
	segs = append(segs, segment{field: "bag", index: -1})

	for _, raw := range rawSegs[1:] {
		field := raw
		index := -1

		if open := strings.IndexByte(raw, '['); open >= 0 {
			if !strings.HasSuffix(raw, "]") {
				return nil, fmt.Errorf("unterminated index in %q", raw)
			}

			field = raw[:open]

			idxText := raw[open+1 : len(raw)-1]

			n, err := strconv.Atoi(idxText)
			if err != nil {
				return nil, fmt.Errorf("invalid index %q: %w", idxText, err)
			}

			index = n
		}

		if field == "" {
			return nil, fmt.Errorf("empty path segment in %q", text)
		}

		segs = append(segs, segment{field: field, index: index})
	}

	return segs, nil
}

func parseTransform(text string) (transform, error) {
	switch {
	case text == "upper", text == "lower", text == "string", text == "len":
		return transform{name: text}, nil
	case strings.HasPrefix(text, "default(") && strings.HasSuffix(text, ")"):
		inner := strings.TrimSpace(text[len("default(") : len(text)-1])

		return transform{name: "default", literal: parseLiteral(inner)}, nil
	default:
		return transform{}, fmt.Errorf("unknown transform %q", text)
	}
}

func parseLiteral(text string) any {
	if len(text) >= 2 && text[0] == '"' && text[len(text)-1] == '"' {
		return text[1 : len(text)-1]
	}

	if n, err := strconv.ParseFloat(text, 64); err == nil {
		return n
	}

	if text == "true" {
		return true
	}

	if text == "false" {
		return false
	}

	return text
}

// Eval projects the expression over the given bag.
func (e *Expr) Eval(bag map[string]any) (any, error) {
	var cur any = bag

	for _, s := range e.path[1:] {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expr %q: cannot index field %q into non-object value", e.raw, s.field)
		}

		next, exists := m[s.field]
		if !exists {
			cur = nil
			break
		}

		if s.index >= 0 {
			list, ok := next.([]any)
			if !ok || s.index >= len(list) {
				cur = nil
				break
			}

			cur = list[s.index]

			continue
		}

		cur = next
	}

	for _, t := range e.transforms {
		var err error

		cur, err = applyTransform(t, cur)
		if err != nil {
			return nil, fmt.Errorf("expr %q: %w", e.raw, err)
		}
	}

	return cur, nil
}

func applyTransform(t transform, v any) (any, error) {
	switch t.name {
	case "upper":
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("upper: value is not a string")
		}

		return strings.ToUpper(s), nil
	case "lower":
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("lower: value is not a string")
		}

		return strings.ToLower(s), nil
	case "string":
		return fmt.Sprintf("%v", v), nil
	case "len":
		switch x := v.(type) {
		case string:
			return len(x), nil
		case []any:
			return len(x), nil
		case map[string]any:
			return len(x), nil
		default:
			return 0, nil
		}
	case "default":
		if v == nil {
			return t.literal, nil
		}

		return v, nil
	default:
		return nil, fmt.Errorf("unknown transform %q", t.name)
	}
}
