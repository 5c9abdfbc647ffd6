package xslt

import (
	"github.com/midbel/xsltc/xpath"
)

// knownInstructions lists the local names of XSLT instructions this
// compiler recognizes as sequence-constructor content, the table
// element-available() consults (spec.md §4.6). Kept deliberately small
// and separate from any future attribute-property table: this file only
// needs "is this name one we compile", not the full per-element
// attribute grammar.
var knownInstructions = map[string]bool{
	"apply-templates": true, "apply-imports": true, "call-template": true,
	"for-each": true, "for-each-group": true, "if": true, "choose": true,
	"when": true, "otherwise": true, "value-of": true, "text": true,
	"copy": true, "copy-of": true, "element": true, "attribute": true,
	"comment": true, "processing-instruction": true, "namespace": true,
	"variable": true, "param": true, "with-param": true, "sequence": true,
	"sort": true, "message": true, "fallback": true, "iterate": true,
	"next-iteration": true, "break": true, "try": true, "catch": true,
	"analyze-string": true, "matching-substring": true, "non-matching-substring": true,
	"result-document": true, "source-document": true, "accumulator-rule": true,
	"number": true, "perform-sort": true, "merge": true, "fork": true,
	"on-completion": true, "where-populated": true, "document": true,
}

// knownSystemProperties is the set of system-property() names this
// compiler answers for the xsl: namespace, grounded on the teacher's
// getSystemProperty (xslt/stylesheet.go) switch over the same names;
// values come from this module's own build-time identity rather than
// the teacher's XslVersion/XslVendor constants.
var knownSystemProperties = map[string]string{
	"version":         "3.0",
	"vendor":          "xsltc",
	"vendor-url":      "https://github.com/midbel/xsltc",
	"product-name":    "xsltc",
	"product-version": "0.1",
}

// knownTypes is the fixed subset of xs: atomic types type-available()
// can answer for, independent of any imported schema (spec.md §4.6 does
// not require schema awareness, only the built-in type hierarchy).
var knownTypes = map[string]bool{
	"string": true, "boolean": true, "decimal": true, "float": true,
	"double": true, "integer": true, "date": true, "time": true,
	"dateTime": true, "duration": true, "QName": true, "anyURI": true,
	"untypedAtomic": true, "anyAtomicType": true,
}

// staticContext is the lightweight immutable value spec.md §9 names as
// preferable to threading the whole compiler through use-when
// evaluation: the static variables and base URI visible at one element,
// plus a facade forked so the fixed static function subset
// (system-property, function-available, type-available,
// element-available) is only ever visible to static evaluation, never
// leaking into ordinary XPath/pattern compilation.
type staticContext struct {
	facade  *xpathFacade
	scope   *nsScope
	baseURI string
	version float64
}

// newStaticContext derives a static-evaluation context from the facade
// and namespace scope in effect at one element. Grounded on the
// teacher's Stylesheet.defineBuiltins, generalized from its single
// "system-property" registration to the full fixed subset spec.md §4.6
// names, and from a single shared *xpath.Evaluator to a forked one so
// every element's static functions see that element's own base URI.
func newStaticContext(parent *xpathFacade, scope *nsScope, baseURI string, version float64) *staticContext {
	sc := &staticContext{
		facade:  parent.fork(),
		scope:   scope,
		baseURI: baseURI,
		version: version,
	}
	sc.facade.registerFunc("system-property", sc.systemProperty)
	sc.facade.registerFunc("function-available", sc.functionAvailable)
	sc.facade.registerFunc("type-available", sc.typeAvailable)
	sc.facade.registerFunc("element-available", sc.elementAvailable)
	sc.facade.registerFunc("static-base-uri", sc.staticBaseURI)
	return sc
}

// defineStaticVariable records the compile-time value of an
// xsl:variable/xsl:param declared static="yes" (spec.md §4.5), making it
// resolvable by name in subsequent use-when expressions and by nested
// static contexts forked from this one.
func (sc *staticContext) defineStaticVariable(name string, expr xpath.Expr) {
	sc.facade.defineStaticVariable(name, expr)
}

func (sc *staticContext) argString(ctx xpath.Context, args []xpath.Expr, i int) (string, error) {
	if i >= len(args) {
		return "", xpath.ErrArgument
	}
	seq, err := args[i].Find(ctx)
	if err != nil {
		return "", err
	}
	vals, err := seq.Atomize()
	if err != nil {
		return "", err
	}
	if len(vals) == 0 {
		return "", xpath.ErrEmpty
	}
	return vals[0], nil
}

// systemProperty implements system-property(name), resolving name (a
// lexical QName) against this element's in-scope namespaces the way any
// other QName-valued argument would be (spec.md §4.2), then answering
// from knownSystemProperties for the xsl: namespace. Unknown properties
// (including any requested in a different namespace) yield the empty
// string per the fn:system-property fallback rule, matching the
// teacher's getSystemProperty except for that one relaxation: the
// teacher raised an error for an unrecognized property, which would
// make every use-when testing an unsupported xsl: property fatal.
func (sc *staticContext) systemProperty(ctx xpath.Context, args []xpath.Expr) (xpath.Sequence, error) {
	if len(args) != 1 {
		return nil, xpath.ErrArgument
	}
	lexical, err := sc.argString(ctx, args, 0)
	if err != nil {
		return nil, err
	}
	qn, err := resolveQName(sc.scope, lexical, Location{}, false)
	if err != nil {
		return xpath.Singleton(""), nil
	}
	if qn.Uri != xsltNamespaceUri {
		return xpath.Singleton(""), nil
	}
	val, ok := knownSystemProperties[qn.Name]
	if !ok {
		return xpath.Singleton(""), nil
	}
	return xpath.Singleton(val), nil
}

// functionAvailable implements function-available(name[, arity]),
// answering from the xpath facade's own builtin registry (spec.md §4.6)
// rather than a hardcoded list, so it stays correct as the facade gains
// or loses functions.
func (sc *staticContext) functionAvailable(ctx xpath.Context, args []xpath.Expr) (xpath.Sequence, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, xpath.ErrArgument
	}
	lexical, err := sc.argString(ctx, args, 0)
	if err != nil {
		return nil, err
	}
	qn, err := resolveQName(sc.scope, lexical, Location{}, false)
	if err != nil {
		return xpath.Singleton(false), nil
	}
	ident := qn.Name
	if qn.Uri != "" {
		ident = qn.ExpandedName()
	}
	_, resolveErr := sc.facade.eval.ResolveFunc(ident)
	return xpath.Singleton(resolveErr == nil), nil
}

// typeAvailable implements type-available(name) against the fixed
// built-in atomic type hierarchy (spec.md §4.6); schema-defined types
// are never available since schema import is a non-goal of this core.
func (sc *staticContext) typeAvailable(ctx xpath.Context, args []xpath.Expr) (xpath.Sequence, error) {
	if len(args) != 1 {
		return nil, xpath.ErrArgument
	}
	lexical, err := sc.argString(ctx, args, 0)
	if err != nil {
		return nil, err
	}
	qn, err := resolveQName(sc.scope, lexical, Location{}, false)
	if err != nil {
		return xpath.Singleton(false), nil
	}
	if qn.Uri != xsdNamespaceUri {
		return xpath.Singleton(false), nil
	}
	return xpath.Singleton(knownTypes[qn.Name]), nil
}

// elementAvailable implements element-available(name) against
// knownInstructions (spec.md §4.6); only names in the XSLT namespace can
// ever be available since this core compiles no extension elements.
func (sc *staticContext) elementAvailable(ctx xpath.Context, args []xpath.Expr) (xpath.Sequence, error) {
	if len(args) != 1 {
		return nil, xpath.ErrArgument
	}
	lexical, err := sc.argString(ctx, args, 0)
	if err != nil {
		return nil, err
	}
	qn, err := resolveQName(sc.scope, lexical, Location{}, false)
	if err != nil {
		return xpath.Singleton(false), nil
	}
	if qn.Uri != xsltNamespaceUri {
		return xpath.Singleton(false), nil
	}
	return xpath.Singleton(knownInstructions[qn.Name]), nil
}

// staticBaseURI implements static-base-uri(), answering from the
// element's effective base URI (spec.md §4.6) rather than the document
// URI a runtime fn:static-base-uri would use — there is no source
// document at compile time.
func (sc *staticContext) staticBaseURI(ctx xpath.Context, args []xpath.Expr) (xpath.Sequence, error) {
	if len(args) != 0 {
		return nil, xpath.ErrArgument
	}
	if sc.baseURI == "" {
		return xpath.NewSequence(), nil
	}
	return xpath.Singleton(sc.baseURI), nil
}

// evaluateUseWhen compiles and evaluates a use-when attribute value
// (spec.md §4.1/§4.5/§4.6). A failure that failIsExclusion accepts is
// treated as if the expression had evaluated to false; every other
// compile or evaluation failure is reported as XTSE0020. Since the
// facade codes its compile failures XPST0003 and evaluation failures
// arrive as the xpath package's own errors, an undefined function or
// variable reference is in practice also reported as XTSE0020.
func (sc *staticContext) evaluateUseWhen(raw string, loc Location) (bool, error) {
	expr, err := sc.facade.compile(raw, loc)
	if err != nil {
		if failIsExclusion(err) {
			return false, nil
		}
		return false, staticErr(loc, XTSE0020, "use-when: %v", err)
	}
	seq, err := expr.Find(nil)
	if err != nil {
		if failIsExclusion(err) {
			return false, nil
		}
		return false, staticErr(loc, XTSE0020, "use-when: %v", err)
	}
	return seq.True(), nil
}

// failIsExclusion reports whether err is an *XPathError coded XPST0017;
// any other error, including a wrapped one, is not an exclusion.
func failIsExclusion(err error) bool {
	switch e := err.(type) {
	case *XPathError:
		return e.Code == XPST0017
	default:
		return false
	}
}
