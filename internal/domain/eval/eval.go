// Package eval evaluates the arithmetic shorthand users type into amount
// fields ("500 200*2" means 500+200*2). The character whitelist is
// security-load-bearing: anything outside digits, + - * / . ( ) is stripped
// before the parser ever sees the input, and the parser itself understands
// nothing but that grammar.
package eval

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	stripRe      = regexp.MustCompile(`[^0-9+\-*/.()]`)
	validRe      = regexp.MustCompile(`^[0-9+\-*/.()]+$`)
)

// Evaluate resolves input as an arithmetic expression and returns the result
// as a decimal string. Whitespace runs are treated as '+' so a typed list of
// numbers sums itself. On any failure the original input is returned
// verbatim; Evaluate never reports an error, so callers must still validate
// numeric-ness before persisting an amount.
func Evaluate(input string) string {
	cleaned := whitespaceRe.ReplaceAllString(strings.TrimSpace(input), "+")
	cleaned = stripRe.ReplaceAllString(cleaned, "")
	if cleaned == "" {
		return input
	}
	if !validRe.MatchString(cleaned) {
		return input
	}

	result, err := evaluate(cleaned)
	if err != nil {
		return input
	}
	return result.String()
}

func evaluate(expr string) (decimal.Decimal, error) {
	p := &parser{input: expr}
	result, err := p.parseExpr()
	if err != nil {
		return decimal.Zero, err
	}
	if p.pos != len(p.input) {
		return decimal.Zero, fmt.Errorf("unexpected character at position %d", p.pos)
	}
	return result, nil
}

// parser is a recursive-descent evaluator over the restricted grammar
//
//	expr   := term  (('+'|'-') term)*
//	term   := factor (('*'|'/') factor)*
//	factor := ('+'|'-')* primary
//	primary:= number | '(' expr ')'
type parser struct {
	input string
	pos   int
}

func (p *parser) peek() (byte, bool) {
	if p.pos >= len(p.input) {
		return 0, false
	}
	return p.input[p.pos], true
}

func (p *parser) parseExpr() (decimal.Decimal, error) {
	result, err := p.parseTerm()
	if err != nil {
		return decimal.Zero, err
	}
	for {
		c, ok := p.peek()
		if !ok || (c != '+' && c != '-') {
			return result, nil
		}
		p.pos++
		rhs, err := p.parseTerm()
		if err != nil {
			return decimal.Zero, err
		}
		if c == '+' {
			result = result.Add(rhs)
		} else {
			result = result.Sub(rhs)
		}
	}
}

func (p *parser) parseTerm() (decimal.Decimal, error) {
	result, err := p.parseFactor()
	if err != nil {
		return decimal.Zero, err
	}
	for {
		c, ok := p.peek()
		if !ok || (c != '*' && c != '/') {
			return result, nil
		}
		p.pos++
		rhs, err := p.parseFactor()
		if err != nil {
			return decimal.Zero, err
		}
		if c == '*' {
			result = result.Mul(rhs)
		} else {
			if rhs.IsZero() {
				return decimal.Zero, fmt.Errorf("division by zero")
			}
			result = result.Div(rhs)
		}
	}
}

func (p *parser) parseFactor() (decimal.Decimal, error) {
	negative := false
	for {
		c, ok := p.peek()
		if ok && c == '-' {
			negative = !negative
			p.pos++
			continue
		}
		if ok && c == '+' {
			p.pos++
			continue
		}
		break
	}

	result, err := p.parsePrimary()
	if err != nil {
		return decimal.Zero, err
	}
	if negative {
		result = result.Neg()
	}
	return result, nil
}

func (p *parser) parsePrimary() (decimal.Decimal, error) {
	c, ok := p.peek()
	if !ok {
		return decimal.Zero, fmt.Errorf("unexpected end of expression")
	}

	if c == '(' {
		p.pos++
		result, err := p.parseExpr()
		if err != nil {
			return decimal.Zero, err
		}
		c, ok := p.peek()
		if !ok || c != ')' {
			return decimal.Zero, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return result, nil
	}

	start := p.pos
	for {
		c, ok := p.peek()
		if !ok || (c != '.' && (c < '0' || c > '9')) {
			break
		}
		p.pos++
	}
	if p.pos == start {
		return decimal.Zero, fmt.Errorf("expected number at position %d", start)
	}

	value, err := decimal.NewFromString(p.input[start:p.pos])
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid number %q: %w", p.input[start:p.pos], err)
	}
	return value, nil
}
