package script

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

var templateExprPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Template is a string containing zero or more ${...} expressions. Each
// expression is compiled once; Eval substitutes the evaluated results into
// the surrounding text.
type Template struct {
	raw   string
	parts []string
	slots []int
	codes []Script
}

// NewTemplate compiles all ${...} expressions in the given string.
func NewTemplate(engine Compiler, raw string) (*Template, error) {
	openCount := strings.Count(raw, "${")
	closeCount := strings.Count(raw, "}")
	if openCount > closeCount {
		return nil, fmt.Errorf("unclosed template expression in string: %q", raw)
	}
	if openCount == 0 {
		return &Template{raw: raw}, nil
	}

	matches := templateExprPattern.FindAllStringSubmatchIndex(raw, -1)
	if len(matches) == 0 {
		return &Template{raw: raw}, nil
	}

	var lastEnd int
	var parts []string
	var slots []int
	var codes []Script
	for _, match := range matches {
		if match[0] > lastEnd {
			parts = append(parts, raw[lastEnd:match[0]])
		}
		expr := raw[match[2]:match[3]]
		script, err := engine.Compile(context.Background(), expr)
		if err != nil {
			return nil, fmt.Errorf("failed to compile template expression %q: %w", expr, err)
		}
		codes = append(codes, script)
		slots = append(slots, len(parts))
		parts = append(parts, "") // filled with the evaluated result
		lastEnd = match[1]
	}
	if lastEnd < len(raw) {
		parts = append(parts, raw[lastEnd:])
	}

	return &Template{raw: raw, parts: parts, slots: slots, codes: codes}, nil
}

// Eval substitutes the evaluated expression results into the template.
func (t *Template) Eval(ctx context.Context, globals map[string]any) (string, error) {
	if len(t.codes) == 0 {
		return t.raw, nil
	}
	parts := make([]string, len(t.parts))
	copy(parts, t.parts)

	for i, code := range t.codes {
		result, err := code.Evaluate(ctx, globals)
		if err != nil {
			return "", fmt.Errorf("failed to evaluate template expression: %w", err)
		}
		parts[t.slots[i]] = result.String()
	}
	return strings.Join(parts, ""), nil
}
