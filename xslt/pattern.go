package xslt

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"unicode"

	"github.com/midbel/xsltc/xml"
	"github.com/midbel/xsltc/xpath"
)

// Pattern is a compiled XSLT match-pattern (spec.md §3/§4.4): a sum
// type over name-test, kind-test, axis-step-pair, union/intersect/
// except, predicate-decorated, function-rooted and variable-rooted
// shapes. Every variant below exposes Matches, MatchesAtomic and
// DefaultPriority, generalizing the teacher's Matcher interface
// (originally in this file: Match(xml.Node) bool + Priority() float64)
// with the atomic-value-pattern case (".[ predicate ]", spec.md §3)
// the teacher never modeled, and a priority table driven by node kind
// rather than a flat zero.
type Pattern interface {
	Matches(node xml.Node, ctx PatternContext) bool
	MatchesAtomic(value any, ctx PatternContext) bool
	DefaultPriority() float64
}

// PatternContext is the minimal binding environment a pattern's
// embedded predicates need to evaluate (e.g. $v in a variable-rooted
// pattern, or a predicate calling position()). The full runtime
// context is the out-of-scope execution engine's concern (spec.md §1);
// this is only what Pattern.Matches itself needs to stay a pure
// function of node + bindings + document (spec.md §8).
type PatternContext interface {
	ResolveVariable(name string) (xpath.Expr, error)
}

type emptyPatternContext struct{}

func (emptyPatternContext) ResolveVariable(name string) (xpath.Expr, error) {
	return nil, fmt.Errorf("%s: undefined variable", name)
}

// DefaultPatternContext is usable where no bindings are required.
var DefaultPatternContext PatternContext = emptyPatternContext{}

// --- pattern variants ---

type currentPattern struct{}

func (currentPattern) Matches(xml.Node, PatternContext) bool  { return true }
func (currentPattern) MatchesAtomic(any, PatternContext) bool { return true }
func (currentPattern) DefaultPriority() float64                { return 0.5 }

type rootPattern struct{ next Pattern }

func (m rootPattern) Matches(node xml.Node, ctx PatternContext) bool {
	if node.Type() != xml.TypeDocument {
		return false
	}
	if m.next == nil {
		return true
	}
	return m.next.Matches(node, ctx)
}
func (m rootPattern) MatchesAtomic(any, PatternContext) bool { return false }
func (m rootPattern) DefaultPriority() float64 {
	if m.next == nil {
		return 0.5
	}
	return m.next.DefaultPriority()
}

// nameTest matches an element, attribute or processing-instruction
// by Clark-notation name (spec.md §3 "name-test").
type nameTest struct {
	name xml.QName
}

func (m nameTest) Matches(node xml.Node, _ PatternContext) bool {
	var qn xml.QName
	switch n := node.(type) {
	case *xml.Element:
		qn = n.QName
	case *xml.Attribute:
		qn = n.QName
	case *xml.Instruction:
		qn = n.QName
	default:
		return false
	}
	return m.name.Equal(qn)
}
func (m nameTest) MatchesAtomic(any, PatternContext) bool { return false }

// DefaultPriority: an exact name test is priority 0 whether or not the
// name carries a namespace (spec.md §4.4 "simple names") — only a
// prefix:* wildcard (nsWildcardTest below) gets -0.25.
func (m nameTest) DefaultPriority() float64 { return 0 }

// nsWildcardTest matches "prefix:*" / "@prefix:*": any node in a given
// namespace URI regardless of local name (spec.md §4.4, priority
// -0.25, distinct from the unqualified '*' wildcard's -0.5).
type nsWildcardTest struct{ uri string }

func (m nsWildcardTest) Matches(node xml.Node, _ PatternContext) bool {
	var uri string
	switch n := node.(type) {
	case *xml.Element:
		uri = n.QName.Uri
	case *xml.Attribute:
		uri = n.QName.Uri
	case *xml.Instruction:
		uri = n.QName.Uri
	default:
		return false
	}
	return uri == m.uri
}
func (m nsWildcardTest) MatchesAtomic(any, PatternContext) bool { return false }
func (m nsWildcardTest) DefaultPriority() float64                { return -0.25 }

// attributeTest restricts an inner pattern (name test or wildcard) to
// attribute nodes: "@name" / "@*" / "@prefix:*" / "attribute(name)".
// Its priority always matches the inner test's own (spec.md §4.4 gives
// @* and @prefix:* the same priority as their unqualified-element
// counterparts), so it simply delegates.
type attributeTest struct {
	inner Pattern
}

func (m attributeTest) Matches(node xml.Node, ctx PatternContext) bool {
	if node.Type() != xml.TypeAttribute {
		return false
	}
	return m.inner.Matches(node, ctx)
}
func (m attributeTest) MatchesAtomic(any, PatternContext) bool { return false }
func (m attributeTest) DefaultPriority() float64                { return m.inner.DefaultPriority() }

// kindTest matches a structural node kind: node()/text()/comment()/
// processing-instruction()/element()/document-node() with no name.
type kindTest struct {
	kind xml.NodeType
}

func (m kindTest) Matches(node xml.Node, _ PatternContext) bool {
	if m.kind == xml.TypeNode {
		return xml.TypeNode&node.Type() != 0
	}
	return node.Type() == m.kind
}
func (m kindTest) MatchesAtomic(any, PatternContext) bool { return false }
func (m kindTest) DefaultPriority() float64               { return -0.5 }

// wildcardTest matches '*': any element (spec.md default priority
// table, -0.5).
type wildcardTest struct{}

func (wildcardTest) Matches(node xml.Node, _ PatternContext) bool {
	return node.Type() == xml.TypeElement
}
func (wildcardTest) MatchesAtomic(any, PatternContext) bool { return false }
func (wildcardTest) DefaultPriority() float64               { return -0.5 }

// stepPattern is a path of patterns joined by '/' or '//' axis steps
// (spec.md §4.4 "For a path A/B ... For A//B"); matchers are stored
// innermost-step-last, i.e. matchers[len-1] is the node itself and
// matchers[0] is the leftmost ancestor/parent constraint.
type stepPattern struct {
	matchers []Pattern
	deep     []bool // deep[i] true means matchers[i] is reached via // from matchers[i-1]
}

func (m stepPattern) Matches(node xml.Node, ctx PatternContext) bool {
	if node == nil {
		return false
	}
	if !m.matchers[len(m.matchers)-1].Matches(node, ctx) {
		return false
	}
	curr := node.Parent()
	for i := len(m.matchers) - 2; i >= 0; i-- {
		if m.deep[i+1] {
			found := false
			for a := curr; a != nil; a = a.Parent() {
				if m.matchers[i].Matches(a, ctx) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		} else {
			if curr == nil || !m.matchers[i].Matches(curr, ctx) {
				return false
			}
			curr = curr.Parent()
		}
	}
	return true
}
func (m stepPattern) MatchesAtomic(any, PatternContext) bool { return false }
func (m stepPattern) DefaultPriority() float64                { return 0.5 }

type unionPattern struct{ left, right Pattern }

func (m unionPattern) Matches(node xml.Node, ctx PatternContext) bool {
	return m.left.Matches(node, ctx) || m.right.Matches(node, ctx)
}
func (m unionPattern) MatchesAtomic(v any, ctx PatternContext) bool {
	return m.left.MatchesAtomic(v, ctx) || m.right.MatchesAtomic(v, ctx)
}

// DefaultPriority: decided Open Question in DESIGN.md — a union keeps
// ONE rule carrying the max branch priority rather than being split
// into N template rules.
func (m unionPattern) DefaultPriority() float64 {
	l, r := m.left.DefaultPriority(), m.right.DefaultPriority()
	if l > r {
		return l
	}
	return r
}

type exceptPattern struct{ left, right Pattern }

func (m exceptPattern) Matches(node xml.Node, ctx PatternContext) bool {
	return m.left.Matches(node, ctx) && !m.right.Matches(node, ctx)
}
func (m exceptPattern) MatchesAtomic(v any, ctx PatternContext) bool {
	return m.left.MatchesAtomic(v, ctx) && !m.right.MatchesAtomic(v, ctx)
}
func (m exceptPattern) DefaultPriority() float64 { return 0.5 }

type intersectPattern struct{ left, right Pattern }

func (m intersectPattern) Matches(node xml.Node, ctx PatternContext) bool {
	return m.left.Matches(node, ctx) && m.right.Matches(node, ctx)
}
func (m intersectPattern) MatchesAtomic(v any, ctx PatternContext) bool {
	return m.left.MatchesAtomic(v, ctx) && m.right.MatchesAtomic(v, ctx)
}
func (m intersectPattern) DefaultPriority() float64 { return 0.5 }

// predicatePattern decorates a pattern with a single trailing
// conjunction of predicates (spec.md §4.4: "The parser extracts all
// trailing predicates into a single conjunction bound to the step
// preceding them").
type predicatePattern struct {
	inner Pattern
	preds []xpath.Expr
}

func (m predicatePattern) Matches(node xml.Node, ctx PatternContext) bool {
	if !m.inner.Matches(node, ctx) {
		return false
	}
	for _, p := range m.preds {
		seq, err := p.Find(node)
		if err != nil {
			return false
		}
		if !seq.True() {
			return false
		}
	}
	return true
}
func (m predicatePattern) MatchesAtomic(v any, ctx PatternContext) bool {
	return m.inner.MatchesAtomic(v, ctx)
}
func (m predicatePattern) DefaultPriority() float64 { return 0.5 }

// functionRootedPattern covers id(...)/key(...)/doc(...)/
// element-with-id(...)/root(...) at the head of a pattern (spec.md
// §4.4), optionally followed by a path-step suffix tested via inner.
type functionRootedPattern struct {
	name xml.QName
	args []xpath.Expr
	next Pattern
}

func (m functionRootedPattern) Matches(node xml.Node, ctx PatternContext) bool {
	if m.next == nil {
		return true
	}
	return m.next.Matches(node, ctx)
}
func (m functionRootedPattern) MatchesAtomic(any, PatternContext) bool { return false }
func (m functionRootedPattern) DefaultPriority() float64                { return 0.5 }

// variableRootedPattern covers "$v/..." (spec.md §4.4).
type variableRootedPattern struct {
	name string
	next Pattern
}

func (m variableRootedPattern) Matches(node xml.Node, ctx PatternContext) bool {
	if _, err := ctx.ResolveVariable(m.name); err != nil {
		return false
	}
	if m.next == nil {
		return true
	}
	return m.next.Matches(node, ctx)
}
func (m variableRootedPattern) MatchesAtomic(any, PatternContext) bool { return false }
func (m variableRootedPattern) DefaultPriority() float64                { return 0.5 }

// atomicValuePattern is ".[ predicate ]": matches an atomic value
// rather than a node (spec.md §3).
type atomicValuePattern struct {
	preds []xpath.Expr
}

func (m atomicValuePattern) Matches(xml.Node, PatternContext) bool { return false }
func (m atomicValuePattern) MatchesAtomic(v any, ctx PatternContext) bool {
	return true
}
func (m atomicValuePattern) DefaultPriority() float64 { return 0.5 }

// --- compiler ---

// allowedPatternFunctions is the "disallowed start functions" table of
// spec.md §4.4: only these may begin a pattern (XPST0017 otherwise).
var allowedPatternFunctions = map[string]bool{
	"id": true, "key": true, "doc": true, "element-with-id": true, "root": true,
}

// patternCompiler parses and validates an XSLT match-pattern string,
// splitting top-level union/intersect/except operators and extracting
// trailing predicates (spec.md §4.4). Grounded on the teacher's
// Compiler/Scanner (originally in this file), which already tokenized
// '/','//','|','intersect','except','[',']', axes and name tests; this
// version additionally validates leading-function restrictions, keeps
// a real xpathFacade to compile predicates rather than discarding
// them, and distinguishes the kind-test / attribute-test / wildcard
// cases into the richer Pattern sum type above instead of a single
// flat Matcher.
type patternCompiler struct {
	scan   *patScanner
	curr   patToken
	facade *xpathFacade
	loc    Location

	xsltVersion    float64
	scope          *nsScope
	xpathDefaultNS string
}

// compilePattern compiles src, resolving any namespace prefix it
// carries against scope (spec.md §4.2) and, for an unprefixed simple
// element name, against xpathDefaultNS (spec.md §4.2's
// xpath-default-namespace, never applied to attributes, node-kind
// tests or '*').
func compilePattern(facade *xpathFacade, src string, loc Location, xsltVersion float64, scope *nsScope, xpathDefaultNS string) (Pattern, error) {
	cp := &patternCompiler{
		scan:           newPatScanner(bytes.NewReader([]byte(src))),
		facade:         facade,
		loc:            loc,
		xsltVersion:    xsltVersion,
		scope:          scope,
		xpathDefaultNS: xpathDefaultNS,
	}
	cp.advance()
	return cp.compileUnion()
}

func (c *patternCompiler) compileUnion() (Pattern, error) {
	left, err := c.compilePathExpr()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case c.is(patUnion):
			c.advance()
			right, err := c.compilePathExpr()
			if err != nil {
				return nil, err
			}
			left = unionPattern{left: left, right: right}
		case c.is(patExcept):
			c.advance()
			right, err := c.compilePathExpr()
			if err != nil {
				return nil, err
			}
			left = exceptPattern{left: left, right: right}
		case c.is(patIntersect):
			c.advance()
			right, err := c.compilePathExpr()
			if err != nil {
				return nil, err
			}
			left = intersectPattern{left: left, right: right}
		default:
			return left, nil
		}
	}
}

func (c *patternCompiler) compilePathExpr() (Pattern, error) {
	if c.is(patSlashSlash) {
		c.advance()
		inner, err := c.compileRelativePath()
		if err != nil {
			return nil, err
		}
		return inner, nil
	}
	if c.is(patSlash) {
		c.advance()
		if c.atPathEnd() {
			return rootPattern{}, nil
		}
		inner, err := c.compileRelativePath()
		if err != nil {
			return nil, err
		}
		return rootPattern{next: inner}, nil
	}
	return c.compileRelativePath()
}

func (c *patternCompiler) atPathEnd() bool {
	switch c.curr.kind {
	case patEOF, patUnion, patExcept, patIntersect:
		return true
	default:
		return false
	}
}

func (c *patternCompiler) compileRelativePath() (Pattern, error) {
	var (
		steps []Pattern
		deep  []bool
	)
	first, err := c.compileStep()
	if err != nil {
		return nil, err
	}
	steps = append(steps, first)
	deep = append(deep, false)
	for c.is(patSlash) || c.is(patSlashSlash) {
		isDeep := c.is(patSlashSlash)
		c.advance()
		step, err := c.compileStep()
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
		deep = append(deep, isDeep)
	}
	if len(steps) == 1 {
		return steps[0], nil
	}
	return stepPattern{matchers: steps, deep: deep}, nil
}

// compileStep compiles one path step, including an optional leading
// axis specifier. Only the axes a match-pattern step may legally carry
// are accepted (spec.md §4.4): child and attribute are the common
// forward axes, self and descendant-or-self appear in practice via the
// '.' and '//' abbreviations but are also spelled out occasionally.
func (c *patternCompiler) compileStep() (Pattern, error) {
	axis := ""
	if c.is(patAxis) {
		axis = c.curr.text
		switch axis {
		case "self", "child", "attribute", "descendant-or-self":
		default:
			return nil, xpathErr(c.loc, XPST0003, axis, fmt.Errorf("axis not allowed in a pattern"))
		}
		c.advance()
	}
	if axis == "attribute" {
		pat, err := c.compileAttributeStep()
		return pat, err
	}
	var (
		pat Pattern
		err error
	)
	switch {
	case c.is(patDot):
		c.advance()
		pat, err = c.maybePredicate(currentPattern{})
	case c.is(patDollar):
		name := c.curr.text
		c.advance()
		var next Pattern
		if c.is(patSlash) || c.is(patSlashSlash) {
			isDeep := c.is(patSlashSlash)
			c.advance()
			n, nerr := c.compileStep()
			if nerr != nil {
				return nil, nerr
			}
			if isDeep {
				next = stepPattern{matchers: []Pattern{currentPattern{}, n}, deep: []bool{false, true}}
			} else {
				next = n
			}
		}
		if c.xsltVersion < 2.0 {
			return nil, staticErr(c.loc, XTSE0340, "variable-rooted patterns require XSLT 2.0 or later")
		}
		pat, err = c.maybePredicate(variableRootedPattern{name: name, next: next})
	case c.is(patAt):
		c.advance()
		pat, err = c.compileAttributeStep()
	case c.is(patStar):
		c.advance()
		pat, err = c.maybePredicate(wildcardTest{})
	case c.is(patName):
		pat, err = c.compileNameOrCall()
	default:
		return nil, xpathErr(c.loc, XPST0003, c.curr.text, fmt.Errorf("unexpected token in pattern"))
	}
	if err != nil {
		return nil, err
	}
	if axis == "descendant-or-self" {
		return stepPattern{matchers: []Pattern{currentPattern{}, pat}, deep: []bool{false, true}}, nil
	}
	return pat, nil
}

func (c *patternCompiler) compileAttributeStep() (Pattern, error) {
	if c.is(patStar) {
		c.advance()
		return c.maybePredicate(attributeTest{inner: wildcardTest{}})
	}
	prefix, local, err := c.scanQName()
	if err != nil {
		return nil, err
	}
	if local == "*" {
		uri, err := c.resolvePrefixURI(prefix)
		if err != nil {
			return nil, err
		}
		return c.maybePredicate(attributeTest{inner: nsWildcardTest{uri: uri}})
	}
	qn, err := c.resolvePlainName(prefix, local)
	if err != nil {
		return nil, err
	}
	return c.maybePredicate(attributeTest{inner: nameTest{name: qn}})
}

var kindTestNames = map[string]xml.NodeType{
	"text": xml.TypeText, "comment": xml.TypeComment,
	"processing-instruction": xml.TypeInstruction, "node": xml.TypeNode,
	"element": xml.TypeElement, "document-node": xml.TypeDocument,
}

func (c *patternCompiler) compileNameOrCall() (Pattern, error) {
	prefix, local, err := c.scanQName()
	if err != nil {
		return nil, err
	}
	if c.is(patLParen) {
		name := local
		if prefix != "" {
			name = prefix + ":" + local
		}
		return c.compileCall(name)
	}
	if local == "*" {
		// prefix:* — a bare '*' never reaches here, compileStep handles
		// it directly via patStar before compileNameOrCall is called.
		uri, err := c.resolvePrefixURI(prefix)
		if err != nil {
			return nil, err
		}
		return c.maybePredicate(nsWildcardTest{uri: uri})
	}
	qn, err := c.resolveStepName(prefix, local)
	if err != nil {
		return nil, err
	}
	return c.maybePredicate(nameTest{name: qn})
}

// scanQName consumes one lexical QName token sequence (name, or
// name ':' name-or-star), returning its prefix (empty if unprefixed)
// and local part without resolving either against a namespace scope.
func (c *patternCompiler) scanQName() (prefix, local string, err error) {
	if !c.is(patName) && !c.is(patStar) {
		return "", "", xpathErr(c.loc, XPST0003, c.curr.text, fmt.Errorf("name expected"))
	}
	first := c.curr.text
	c.advance()
	local = first
	if c.is(patColon) {
		c.advance()
		if !c.is(patName) && !c.is(patStar) {
			return "", "", xpathErr(c.loc, XPST0003, first, fmt.Errorf("name expected after ':'"))
		}
		prefix = first
		local = c.curr.text
		c.advance()
	}
	return prefix, local, nil
}

func (c *patternCompiler) compileQName() (xml.QName, error) {
	prefix, local, err := c.scanQName()
	if err != nil {
		return xml.QName{}, err
	}
	return c.resolvePlainName(prefix, local)
}

// resolveStepName resolves a bare element/processing-instruction name
// test, applying xpath-default-namespace to an unprefixed name
// (spec.md §4.2, via the existing resolveElementName helper).
func (c *patternCompiler) resolveStepName(prefix, local string) (xml.QName, error) {
	lexical := local
	if prefix != "" {
		lexical = prefix + ":" + local
	}
	return resolveElementName(c.scope, lexical, c.xpathDefaultNS, c.loc)
}

// resolvePlainName resolves an attribute name or a kind-test name
// (element(name), document-node(name)): prefixed or not, but never
// defaulted by xpath-default-namespace (spec.md §4.2).
func (c *patternCompiler) resolvePlainName(prefix, local string) (xml.QName, error) {
	lexical := local
	if prefix != "" {
		lexical = prefix + ":" + local
	}
	return resolveQName(c.scope, lexical, c.loc, false)
}

// resolvePrefixURI resolves a bare namespace prefix (the "prefix" half
// of a "prefix:*" wildcard pattern) to its in-scope URI, XTSE0280 if
// undeclared.
func (c *patternCompiler) resolvePrefixURI(prefix string) (string, error) {
	if prefix == "xml" {
		return xmlNamespaceUri, nil
	}
	uri, ok := c.scope.resolve(prefix)
	if !ok {
		return "", staticErr(c.loc, XTSE0280, "undeclared namespace prefix %q", prefix)
	}
	return uri, nil
}

func (c *patternCompiler) compileCall(name string) (Pattern, error) {
	// curr == patLParen here, and the scanner's reader sits exactly
	// after the '(' rune: next/peek tokens are fetched lazily so that
	// the raw-argument reads below see every character of the argument.
	if kind, ok := kindTestNames[name]; ok {
		c.advance() // fetch the token following '(': a name, or ')'
		var inner Pattern = kindTest{kind: kind}
		if !c.is(patRParen) && (kind == xml.TypeElement || kind == xml.TypeDocument) {
			qn, err := c.compileQName()
			if err != nil {
				return nil, err
			}
			if kind == xml.TypeElement {
				inner = elementNamedTest{name: qn}
			} else {
				inner = nameTest{name: qn}
			}
		}
		if !c.is(patRParen) {
			return nil, xpathErr(c.loc, XPST0003, name, fmt.Errorf("')' expected"))
		}
		c.advance()
		return c.maybePredicate(inner)
	}
	if !allowedPatternFunctions[name] {
		return nil, xpathErr(c.loc, XPST0017, name, fmt.Errorf("function not allowed at the start of a pattern"))
	}
	var args []xpath.Expr
	lookahead, err := c.scan.peekAfterSpace()
	if err == nil && lookahead != ')' {
		for {
			src, err := c.scan.rawArgUntil(')', '(', ',')
			if err != nil {
				return nil, err
			}
			expr, err := c.facade.compile(src, c.loc)
			if err != nil {
				return nil, err
			}
			args = append(args, expr)
			sep, err := c.scan.readRune()
			if err != nil {
				return nil, xpathErr(c.loc, XPST0017, name, fmt.Errorf("')' expected"))
			}
			if sep == ',' {
				continue
			}
			break
		}
	} else {
		if _, err := c.scan.readRune(); err != nil {
			return nil, xpathErr(c.loc, XPST0017, name, fmt.Errorf("')' expected"))
		}
	}
	if name == "key" && len(args) != 2 {
		return nil, xpathErr(c.loc, XPST0017, name, fmt.Errorf("key() requires exactly two arguments in a pattern"))
	}
	c.advance() // resync curr with whatever token follows ')'
	var next Pattern
	if c.is(patSlash) || c.is(patSlashSlash) {
		deep := c.is(patSlashSlash)
		c.advance()
		n, err := c.compileRelativePath()
		if err != nil {
			return nil, err
		}
		if deep {
			next = stepPattern{matchers: []Pattern{currentPattern{}, n}, deep: []bool{false, true}}
		} else {
			next = n
		}
	}
	return c.maybePredicate(functionRootedPattern{name: xml.LocalName(name), args: args, next: next})
}

// elementNamedTest is element(name): a name test restricted to
// elements, distinct priority (0) from a bare name test's priority
// which may also be 0 but through a different rule of the table.
type elementNamedTest struct{ name xml.QName }

func (m elementNamedTest) Matches(node xml.Node, ctx PatternContext) bool {
	if node.Type() != xml.TypeElement {
		return false
	}
	return nameTest{name: m.name}.Matches(node, ctx)
}
func (m elementNamedTest) MatchesAtomic(any, PatternContext) bool { return false }
func (m elementNamedTest) DefaultPriority() float64                { return 0 }

func (c *patternCompiler) maybePredicate(inner Pattern) (Pattern, error) {
	var preds []xpath.Expr
	for c.is(patLBracket) {
		// curr == patLBracket: the reader sits exactly after '[', so
		// the raw predicate read below starts at the right offset.
		src, err := c.scan.rawPredicate()
		if err != nil {
			return nil, err
		}
		expr, err := c.facade.compile(src, c.loc)
		if err != nil {
			return nil, err
		}
		preds = append(preds, expr)
		c.advance() // fetch the ']'
		if !c.is(patRBracket) {
			return nil, xpathErr(c.loc, XPST0003, src, fmt.Errorf("']' expected"))
		}
		c.advance() // move past ']'
	}
	if len(preds) == 0 {
		return inner, nil
	}
	if _, ok := inner.(currentPattern); ok {
		return atomicValuePattern{preds: preds}, nil
	}
	return predicatePattern{inner: inner, preds: preds}, nil
}

// advance fetches the next token. The compiler deliberately keeps a
// single token of lookahead (no peek buffer): several grammar
// positions ('(' starting a function call, '[' starting a predicate)
// hand the reader off to a raw, delimiter-balancing scan
// (rawArgUntil/rawPredicate) that must start reading exactly where
// tokenizing stopped. A second buffered lookahead token would have
// already consumed characters past that point.
func (c *patternCompiler) advance() {
	c.curr = c.scan.next()
}

func (c *patternCompiler) is(k patKind) bool { return c.curr.kind == k }

// --- minimal scanner for the pattern grammar's own delimiters; the
// body of predicates ([...]) and function-call arguments is handed
// off verbatim to the XPath facade via rawPredicate/rawArg, since full
// expression grammar is the external XPath compiler's concern
// (spec.md §1). ---

type patKind int

const (
	patEOF patKind = iota
	patName
	patColon
	patSlash
	patSlashSlash
	patUnion
	patExcept
	patIntersect
	patStar
	patAt
	patDot
	patDollar
	patLBracket
	patRBracket
	patLParen
	patRParen
	patComma
	patAxis
	patInvalid
)

type patToken struct {
	kind patKind
	text string
}

type patScanner struct {
	r *bufio.Reader
}

func newPatScanner(r io.Reader) *patScanner {
	return &patScanner{r: bufio.NewReader(r)}
}

func (s *patScanner) next() patToken {
	s.skipSpace()
	c, _, err := s.r.ReadRune()
	if err != nil {
		return patToken{kind: patEOF}
	}
	switch c {
	case '/':
		if p, _, _ := s.r.ReadRune(); p == '/' {
			return patToken{kind: patSlashSlash}
		} else if p != 0 {
			s.r.UnreadRune()
		}
		return patToken{kind: patSlash}
	case '|':
		return patToken{kind: patUnion}
	case '*':
		return patToken{kind: patStar}
	case '@':
		return patToken{kind: patAt}
	case '.':
		return patToken{kind: patDot}
	case '[':
		return patToken{kind: patLBracket}
	case ']':
		return patToken{kind: patRBracket}
	case '(':
		return patToken{kind: patLParen}
	case ')':
		return patToken{kind: patRParen}
	case ',':
		return patToken{kind: patComma}
	case ':':
		if p, _, _ := s.r.ReadRune(); p == ':' {
			return patToken{kind: patAxis}
		} else if p != 0 {
			s.r.UnreadRune()
		}
		return patToken{kind: patColon}
	case '$':
		var buf bytes.Buffer
		for {
			r, _, err := s.r.ReadRune()
			if err != nil || !isNameRune(r) {
				if err == nil {
					s.r.UnreadRune()
				}
				break
			}
			buf.WriteRune(r)
		}
		return patToken{kind: patDollar, text: buf.String()}
	default:
		if unicode.IsLetter(c) || c == '_' {
			var buf bytes.Buffer
			buf.WriteRune(c)
			for {
				r, _, err := s.r.ReadRune()
				if err != nil || !isNameRune(r) {
					if err == nil {
						s.r.UnreadRune()
					}
					break
				}
				buf.WriteRune(r)
			}
			name := buf.String()
			switch name {
			case "union":
				return patToken{kind: patUnion}
			case "except":
				return patToken{kind: patExcept}
			case "intersect":
				return patToken{kind: patIntersect}
			}
			// a name immediately followed by '::' is an axis specifier;
			// Peek/Discard avoid the double-unread a ReadRune-based
			// lookahead would need, keeping the reader's position
			// exactly in sync with the single-token lookahead model.
			if b, err := s.r.Peek(2); err == nil && b[0] == ':' && b[1] == ':' {
				s.r.Discard(2)
				return patToken{kind: patAxis, text: name}
			}
			return patToken{kind: patName, text: name}
		}
		return patToken{kind: patInvalid, text: string(c)}
	}
}

func isNameRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '.'
}

func (s *patScanner) skipSpace() {
	for {
		r, _, err := s.r.ReadRune()
		if err != nil {
			return
		}
		if !unicode.IsSpace(r) {
			s.r.UnreadRune()
			return
		}
	}
}

// rawPredicate reads the raw expression text up to (but not including)
// the balancing ']', tracking nested brackets/parens/quotes, and
// leaves the scanner positioned right before it so the compiler's next
// advance() reads the ']' as a normal token.
func (s *patScanner) rawPredicate() (string, error) {
	return s.rawUntil(']', '[')
}

// peekAfterSpace reports the next significant rune without consuming
// it (leading whitespace is consumed, since it carries no meaning).
func (s *patScanner) peekAfterSpace() (rune, error) {
	s.skipSpace()
	r, _, err := s.r.ReadRune()
	if err != nil {
		return 0, err
	}
	return r, s.r.UnreadRune()
}

// readRune consumes and returns a single rune, used to consume the
// ',' / ')' delimiters a raw argument scan stops before.
func (s *patScanner) readRune() (rune, error) {
	r, _, err := s.r.ReadRune()
	return r, err
}

func (s *patScanner) rawUntil(closeCh, openCh rune) (string, error) {
	var (
		buf   bytes.Buffer
		depth = 1
	)
	for {
		r, _, err := s.r.ReadRune()
		if err != nil {
			return "", xpathErr(Location{}, XPST0003, buf.String(), fmt.Errorf("unterminated predicate"))
		}
		switch r {
		case '\'', '"':
			buf.WriteRune(r)
			if err := s.copyQuotedLiteral(&buf, r); err != nil {
				return "", err
			}
			continue
		case openCh:
			depth++
		case closeCh:
			depth--
			if depth == 0 {
				s.r.UnreadRune()
				return buf.String(), nil
			}
		}
		buf.WriteRune(r)
	}
}

// copyQuotedLiteral copies the remainder of a quoted string literal
// (the opening quote has already been written to buf), honoring the
// XPath ''/"" doubling escape for an embedded quote character.
func (s *patScanner) copyQuotedLiteral(buf *bytes.Buffer, quote rune) error {
	for {
		q, _, err := s.r.ReadRune()
		if err != nil {
			return xpathErr(Location{}, XPST0003, buf.String(), fmt.Errorf("unterminated string literal"))
		}
		buf.WriteRune(q)
		if q != quote {
			continue
		}
		nxt, _, err := s.r.ReadRune()
		if err != nil {
			return nil
		}
		if nxt == quote {
			buf.WriteRune(nxt)
			continue
		}
		s.r.UnreadRune()
		return nil
	}
}

// rawArgUntil reads one function-call argument's raw text, stopping at
// a top-level closeCh or sepCh (left in the reader, unconsumed) while
// tracking nested openCh/closeCh pairs and string literals so commas
// or parens inside them don't end the argument early.
func (s *patScanner) rawArgUntil(closeCh, openCh, sepCh rune) (string, error) {
	var (
		buf   bytes.Buffer
		depth = 1
	)
	for {
		r, _, err := s.r.ReadRune()
		if err != nil {
			return "", xpathErr(Location{}, XPST0003, buf.String(), fmt.Errorf("unterminated argument"))
		}
		switch r {
		case '\'', '"':
			buf.WriteRune(r)
			if err := s.copyQuotedLiteral(&buf, r); err != nil {
				return "", err
			}
			continue
		case openCh:
			depth++
		case sepCh:
			if depth == 1 {
				s.r.UnreadRune()
				return buf.String(), nil
			}
		case closeCh:
			depth--
			if depth == 0 {
				s.r.UnreadRune()
				return buf.String(), nil
			}
		}
		buf.WriteRune(r)
	}
}
