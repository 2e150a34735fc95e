package domain

import (
	"strings"
	"unicode"

	"go.trai.ch/zerr"
)

// MarkerEnv maps PEP 508 environment variable names to their values for one target interpreter.
type MarkerEnv map[string]string

// Marker is a parsed PEP 508 environment marker. The zero value always evaluates to true.
type Marker struct {
	expr markerExpr
}

type markerExpr interface {
	eval(env MarkerEnv) bool
	render(nested bool) string
	partial(extras map[string]bool) markerExpr
}

type markerConst bool

type markerCompare struct {
	left, op, right string
	leftVar         bool
	rightVar        bool
}

type markerAnd []markerExpr

type markerOr []markerExpr

var markerVars = map[string]bool{
	"python_version":                 true,
	"python_full_version":            true,
	"os_name":                        true,
	"sys_platform":                   true,
	"platform_release":               true,
	"platform_system":                true,
	"platform_version":               true,
	"platform_machine":               true,
	"platform_python_implementation": true,
	"implementation_name":            true,
	"implementation_version":         true,
	"extra":                          true,
}

var versionMarkerVars = map[string]bool{
	"python_version":         true,
	"python_full_version":    true,
	"implementation_version": true,
	"platform_release":       true,
}

// ParseMarker parses a PEP 508 marker expression. An empty string yields the always-true marker.
func ParseMarker(s string) (Marker, error) {
	if strings.TrimSpace(s) == "" {
		return Marker{}, nil
	}
	toks, err := tokenizeMarker(s)
	if err != nil {
		return Marker{}, zerr.With(err, "marker", s)
	}
	p := &markerParser{toks: toks}
	expr, err := p.parseOr()
	if err != nil {
		return Marker{}, zerr.With(err, "marker", s)
	}
	if p.pos != len(p.toks) {
		return Marker{}, zerr.With(zerr.With(ErrInvalidMarker, "token", p.toks[p.pos].text), "marker", s)
	}
	return Marker{expr: expr}, nil
}

// MustParseMarker parses a marker and panics on failure.
func MustParseMarker(s string) Marker {
	m, err := ParseMarker(s)
	if err != nil {
		panic(err)
	}
	return m
}

// IsAny reports whether the marker holds for every environment.
func (m Marker) IsAny() bool {
	if m.expr == nil {
		return true
	}
	c, ok := m.expr.(markerConst)
	return ok && bool(c)
}

// IsNever reports whether the marker holds for no environment.
func (m Marker) IsNever() bool {
	c, ok := m.expr.(markerConst)
	return ok && !bool(c)
}

// Evaluate reports whether the marker holds in env.
func (m Marker) Evaluate(env MarkerEnv) bool {
	if m.expr == nil {
		return true
	}
	return m.expr.eval(env)
}

// String renders the marker in canonical form with double-quoted literals.
func (m Marker) String() string {
	if m.IsAny() {
		return ""
	}
	return m.expr.render(false)
}

// ResolveExtras replaces every comparison on the extra variable with its truth value
// for the given set of active extras and simplifies the result.
func (m Marker) ResolveExtras(active []string) Marker {
	if m.expr == nil {
		return m
	}
	set := make(map[string]bool, len(active))
	for _, e := range active {
		set[NormalizeName(e)] = true
	}
	return Marker{expr: m.expr.partial(set)}
}

// AllOf returns the conjunction of the given markers.
func AllOf(ms ...Marker) Marker {
	var terms markerAnd
	seen := make(map[string]bool)
	for _, m := range ms {
		if m.IsAny() {
			continue
		}
		if m.IsNever() {
			return Marker{expr: markerConst(false)}
		}
		parts := []markerExpr{m.expr}
		if and, ok := m.expr.(markerAnd); ok {
			parts = and
		}
		for _, p := range parts {
			key := p.render(true)
			if seen[key] {
				continue
			}
			seen[key] = true
			terms = append(terms, p)
		}
	}
	switch len(terms) {
	case 0:
		return Marker{}
	case 1:
		return Marker{expr: terms[0]}
	}
	return Marker{expr: terms}
}

// AnyOf returns the disjunction of the given markers. Any always-true operand makes the result always true.
func AnyOf(ms ...Marker) Marker {
	var terms markerOr
	seen := make(map[string]bool)
	for _, m := range ms {
		if m.IsAny() {
			return Marker{}
		}
		if m.IsNever() {
			continue
		}
		parts := []markerExpr{m.expr}
		if or, ok := m.expr.(markerOr); ok {
			parts = or
		}
		for _, p := range parts {
			key := p.render(false)
			if seen[key] {
				continue
			}
			seen[key] = true
			terms = append(terms, p)
		}
	}
	switch len(terms) {
	case 0:
		return Marker{expr: markerConst(false)}
	case 1:
		return Marker{expr: terms[0]}
	}
	return Marker{expr: terms}
}

func (c markerConst) eval(MarkerEnv) bool { return bool(c) }

func (c markerConst) render(bool) string {
	if c {
		return ""
	}
	// Unsatisfiable, but still parseable.
	return `python_version < "0"`
}

func (c markerConst) partial(map[string]bool) markerExpr { return c }

func (a markerAnd) eval(env MarkerEnv) bool {
	for _, e := range a {
		if !e.eval(env) {
			return false
		}
	}
	return true
}

func (a markerAnd) render(bool) string {
	parts := make([]string, len(a))
	for i, e := range a {
		parts[i] = e.render(true)
	}
	return strings.Join(parts, " and ")
}

func (a markerAnd) partial(extras map[string]bool) markerExpr {
	ms := make([]Marker, 0, len(a))
	for _, e := range a {
		ms = append(ms, exprMarker(e.partial(extras)))
	}
	return exprOf(AllOf(ms...))
}

func (o markerOr) eval(env MarkerEnv) bool {
	for _, e := range o {
		if e.eval(env) {
			return true
		}
	}
	return false
}

func (o markerOr) render(nested bool) string {
	parts := make([]string, len(o))
	for i, e := range o {
		parts[i] = e.render(false)
	}
	s := strings.Join(parts, " or ")
	if nested {
		return "(" + s + ")"
	}
	return s
}

func (o markerOr) partial(extras map[string]bool) markerExpr {
	ms := make([]Marker, 0, len(o))
	for _, e := range o {
		ms = append(ms, exprMarker(e.partial(extras)))
	}
	return exprOf(AnyOf(ms...))
}

func exprMarker(e markerExpr) Marker {
	if c, ok := e.(markerConst); ok && bool(c) {
		return Marker{}
	}
	return Marker{expr: e}
}

func exprOf(m Marker) markerExpr {
	if m.expr == nil {
		return markerConst(true)
	}
	return m.expr
}

func (c markerCompare) value(env MarkerEnv) (string, string) {
	l, r := c.left, c.right
	if c.leftVar {
		l = env[c.left]
	}
	if c.rightVar {
		r = env[c.right]
	}
	if c.left == "extra" && c.leftVar {
		r = NormalizeName(r)
		l = NormalizeName(l)
	}
	return l, r
}

func (c markerCompare) eval(env MarkerEnv) bool {
	l, r := c.value(env)

	switch c.op {
	case "in":
		return strings.Contains(r, l)
	case "not in":
		return !strings.Contains(r, l)
	}

	if (c.leftVar && versionMarkerVars[c.left]) || (c.rightVar && versionMarkerVars[c.right]) {
		if cons, err := ParseConstraint(c.op + r); err == nil && c.op != "===" {
			if v, err := ParseVersion(l); err == nil {
				return cons.Contains(v)
			}
		}
	}

	switch c.op {
	case "==", "===":
		return l == r
	case "!=":
		return l != r
	case "<":
		return l < r
	case "<=":
		return l <= r
	case ">":
		return l > r
	case ">=":
		return l >= r
	case "~=":
		return false
	}
	return false
}

func (c markerCompare) render(bool) string {
	side := func(s string, isVar bool) string {
		if isVar {
			return s
		}
		return `"` + s + `"`
	}
	return side(c.left, c.leftVar) + " " + c.op + " " + side(c.right, c.rightVar)
}

func (c markerCompare) partial(extras map[string]bool) markerExpr {
	var lit string
	switch {
	case c.leftVar && c.left == "extra" && !c.rightVar:
		lit = c.right
	case c.rightVar && c.right == "extra" && !c.leftVar:
		lit = c.left
	default:
		return c
	}
	active := extras[NormalizeName(lit)]
	switch c.op {
	case "==", "===":
		return markerConst(active)
	case "!=":
		return markerConst(!active)
	}
	return markerConst(false)
}

type markerToken struct {
	kind string // "var", "str", "op", "(", ")", "and", "or"
	text string
}

var markerOps = []string{"===", "==", "!=", "<=", ">=", "~=", "<", ">"}

func tokenizeMarker(s string) ([]markerToken, error) {
	var toks []markerToken
	i := 0
	for i < len(s) {
		ch := s[i]
		switch {
		case ch == ' ' || ch == '\t':
			i++
		case ch == '(' || ch == ')':
			toks = append(toks, markerToken{kind: string(ch), text: string(ch)})
			i++
		case ch == '\'' || ch == '"':
			end := strings.IndexByte(s[i+1:], ch)
			if end < 0 {
				return nil, zerr.With(ErrInvalidMarker, "reason", "unterminated string")
			}
			toks = append(toks, markerToken{kind: "str", text: s[i+1 : i+1+end]})
			i += end + 2
		case strings.ContainsRune("=!<>~", rune(ch)):
			matched := false
			for _, op := range markerOps {
				if strings.HasPrefix(s[i:], op) {
					toks = append(toks, markerToken{kind: "op", text: op})
					i += len(op)
					matched = true
					break
				}
			}
			if !matched {
				return nil, zerr.With(ErrInvalidMarker, "token", string(ch))
			}
		case isMarkerIdent(rune(ch)):
			j := i
			for j < len(s) && isMarkerIdent(rune(s[j])) {
				j++
			}
			word := s[i:j]
			i = j
			switch word {
			case "and", "or":
				toks = append(toks, markerToken{kind: word, text: word})
			case "in":
				toks = append(toks, markerToken{kind: "op", text: "in"})
			case "not":
				rest := strings.TrimLeft(s[i:], " \t")
				if !strings.HasPrefix(rest, "in") {
					return nil, zerr.With(ErrInvalidMarker, "token", word)
				}
				i = len(s) - len(rest) + 2
				toks = append(toks, markerToken{kind: "op", text: "not in"})
			default:
				name := strings.ReplaceAll(word, ".", "_")
				if markerVars[name] {
					toks = append(toks, markerToken{kind: "var", text: name})
					continue
				}
				return nil, zerr.With(ErrInvalidMarker, "variable", word)
			}
		default:
			return nil, zerr.With(ErrInvalidMarker, "token", string(ch))
		}
	}
	return toks, nil
}

func isMarkerIdent(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.'
}

type markerParser struct {
	toks []markerToken
	pos  int
}

func (p *markerParser) peek() (markerToken, bool) {
	if p.pos >= len(p.toks) {
		return markerToken{}, false
	}
	return p.toks[p.pos], true
}

func (p *markerParser) parseOr() (markerExpr, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	terms := markerOr{first}
	for {
		tok, ok := p.peek()
		if !ok || tok.kind != "or" {
			break
		}
		p.pos++
		next, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		terms = append(terms, next)
	}
	if len(terms) == 1 {
		return first, nil
	}
	return flattenOr(terms), nil
}

func (p *markerParser) parseAnd() (markerExpr, error) {
	first, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	terms := markerAnd{first}
	for {
		tok, ok := p.peek()
		if !ok || tok.kind != "and" {
			break
		}
		p.pos++
		next, err := p.parseAtom()
		if err != nil {
			return nil, err
		}
		terms = append(terms, next)
	}
	if len(terms) == 1 {
		return first, nil
	}
	return flattenAnd(terms), nil
}

func (p *markerParser) parseAtom() (markerExpr, error) {
	tok, ok := p.peek()
	if !ok {
		return nil, zerr.With(ErrInvalidMarker, "reason", "unexpected end of marker")
	}
	if tok.kind == "(" {
		p.pos++
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		closing, ok := p.peek()
		if !ok || closing.kind != ")" {
			return nil, zerr.With(ErrInvalidMarker, "reason", "missing closing parenthesis")
		}
		p.pos++
		return inner, nil
	}

	left, err := p.value()
	if err != nil {
		return nil, err
	}
	op, ok := p.peek()
	if !ok || op.kind != "op" {
		return nil, zerr.With(ErrInvalidMarker, "reason", "expected comparison operator")
	}
	p.pos++
	right, err := p.value()
	if err != nil {
		return nil, err
	}
	if left.kind == "str" && right.kind == "str" {
		return nil, zerr.With(ErrInvalidMarker, "reason", "comparison without a variable")
	}
	return markerCompare{
		left:     left.text,
		op:       op.text,
		right:    right.text,
		leftVar:  left.kind == "var",
		rightVar: right.kind == "var",
	}, nil
}

func (p *markerParser) value() (markerToken, error) {
	tok, ok := p.peek()
	if !ok || (tok.kind != "var" && tok.kind != "str") {
		return markerToken{}, zerr.With(ErrInvalidMarker, "reason", "expected variable or string")
	}
	p.pos++
	return tok, nil
}

func flattenAnd(terms markerAnd) markerAnd {
	var out markerAnd
	for _, t := range terms {
		if inner, ok := t.(markerAnd); ok {
			out = append(out, inner...)
			continue
		}
		out = append(out, t)
	}
	return out
}

func flattenOr(terms markerOr) markerOr {
	var out markerOr
	for _, t := range terms {
		if inner, ok := t.(markerOr); ok {
			out = append(out, inner...)
			continue
		}
		out = append(out, t)
	}
	return out
}
