// Package linktpl expands user-defined link templates such as
// "https://example.com/chapter-{{value}}/" against an item's current value.
// Expressions inside {{ }} are restricted arithmetic: numeric literals, the
// value variable, + - * /, and parentheses. There is deliberately no general
// expression evaluator here.
package linktpl

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	ErrEmptyExpression = errors.New("empty expression inside {{ }}")
	ErrNotNumeric      = errors.New("expression did not evaluate to a finite number")
)

// Expand substitutes every {{expr}} in the template with the evaluated
// expression. Decimal points in the result are rendered as dashes so the
// output stays URL-friendly ("3.5" becomes "3-5").
func Expand(template string, value float64) (string, error) {
	var out strings.Builder
	rest := template

	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			out.WriteString(rest)
			return out.String(), nil
		}
		end := strings.Index(rest[start:], "}}")
		if end < 0 {
			out.WriteString(rest)
			return out.String(), nil
		}
		end += start

		out.WriteString(rest[:start])
		expr := strings.TrimSpace(rest[start+2 : end])
		if expr == "" {
			return "", ErrEmptyExpression
		}

		result, err := eval(expr, value)
		if err != nil {
			return "", fmt.Errorf("evaluate %q: %w", expr, err)
		}
		if math.IsNaN(result) || math.IsInf(result, 0) {
			return "", fmt.Errorf("%w: %q", ErrNotNumeric, expr)
		}

		formatted := strconv.FormatFloat(result, 'f', -1, 64)
		out.WriteString(strings.ReplaceAll(formatted, ".", "-"))

		rest = rest[end+2:]
	}
}

// eval parses and evaluates one expression. Commas are tolerated as decimal
// separators, so "3,5" reads as 3.5.
func eval(expr string, value float64) (float64, error) {
	p := &parser{input: strings.ReplaceAll(expr, ",", "."), value: value}
	result, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	p.skipSpaces()
	if p.pos != len(p.input) {
		return 0, fmt.Errorf("unexpected %q at offset %d", p.input[p.pos], p.pos)
	}
	return result, nil
}

type parser struct {
	input string
	pos   int
	value float64
}

func (p *parser) skipSpaces() {
	for p.pos < len(p.input) && p.input[p.pos] == ' ' {
		p.pos++
	}
}

func (p *parser) peek() (byte, bool) {
	p.skipSpaces()
	if p.pos >= len(p.input) {
		return 0, false
	}
	return p.input[p.pos], true
}

// parseExpr handles + and -.
func (p *parser) parseExpr() (float64, error) {
	left, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for {
		op, ok := p.peek()
		if !ok || (op != '+' && op != '-') {
			return left, nil
		}
		p.pos++
		right, err := p.parseTerm()
		if err != nil {
			return 0, err
		}
		if op == '+' {
			left += right
		} else {
			left -= right
		}
	}
}

// parseTerm handles * and /.
func (p *parser) parseTerm() (float64, error) {
	left, err := p.parseFactor()
	if err != nil {
		return 0, err
	}
	for {
		op, ok := p.peek()
		if !ok || (op != '*' && op != '/') {
			return left, nil
		}
		p.pos++
		right, err := p.parseFactor()
		if err != nil {
			return 0, err
		}
		if op == '*' {
			left *= right
		} else {
			left /= right
		}
	}
}

// parseFactor handles literals, the value variable, unary minus, and
// parenthesized sub-expressions.
func (p *parser) parseFactor() (float64, error) {
	c, ok := p.peek()
	if !ok {
		return 0, errors.New("unexpected end of expression")
	}

	switch {
	case c == '-':
		p.pos++
		v, err := p.parseFactor()
		return -v, err
	case c == '(':
		p.pos++
		v, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		if next, ok := p.peek(); !ok || next != ')' {
			return 0, errors.New("missing closing parenthesis")
		}
		p.pos++
		return v, nil
	case c >= '0' && c <= '9' || c == '.':
		return p.parseNumber()
	default:
		return p.parseVariable()
	}
}

func (p *parser) parseNumber() (float64, error) {
	start := p.pos
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if (c >= '0' && c <= '9') || c == '.' {
			p.pos++
			continue
		}
		break
	}
	v, err := strconv.ParseFloat(p.input[start:p.pos], 64)
	if err != nil {
		return 0, fmt.Errorf("bad number %q", p.input[start:p.pos])
	}
	return v, nil
}

func (p *parser) parseVariable() (float64, error) {
	start := p.pos
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			p.pos++
			continue
		}
		break
	}
	name := p.input[start:p.pos]
	if name != "value" {
		return 0, fmt.Errorf("unknown identifier %q", name)
	}
	return p.value, nil
}
