package xslt

import (
	"github.com/midbel/xsltc/xpath"
)

// xpathFacade is the adapter onto the external XPath compiler named in
// spec.md §4.2: it owns no expression semantics itself, only the
// current namespace/default-element-namespace resolver that each
// xpath.Evaluator.Create call needs, generalizing the teacher's
// Context.Compile/Context.Execute (xslt/context.go), which threaded a
// single shared *xpath.Evaluator through every call site, into a value
// that can be forked per element context the way in-scope namespaces
// themselves fork.
type xpathFacade struct {
	eval *xpath.Evaluator
}

func newXPathFacade() *xpathFacade {
	return &xpathFacade{eval: xpath.NewEvaluator()}
}

// fork derives a child facade carrying the same builtins/variables
// scope but able to register additional namespace bindings without
// mutating the parent (mirrors nsScope.pushFrame/popFrame lifetimes).
func (f *xpathFacade) fork() *xpathFacade {
	return &xpathFacade{eval: f.eval.Sub()}
}

func (f *xpathFacade) registerNS(prefix, uri string) {
	f.eval.RegisterNS(prefix, uri)
}

func (f *xpathFacade) setDefaultElementNS(uri string) {
	f.eval.SetElemNS(uri)
}

// compile parses an XPath string into an evaluable expression, the
// sole capability spec.md §1 assumes of the external XPath collaborator.
// Errors are reported as XPST0003 with the expression's source Location
// attached.
func (f *xpathFacade) compile(src string, loc Location) (xpath.Expr, error) {
	expr, err := f.eval.Create(src)
	if err != nil {
		return nil, xpathErr(loc, XPST0003, src, err)
	}
	return expr, nil
}

// registerFunc installs a builtin function on this facade's evaluator,
// visible to every expression compiled through it afterwards. Grounded
// on the teacher's Stylesheet.defineBuiltins (xslt/stylesheet.go),
// which did exactly this once for a single "system-property" builtin;
// the use-when evaluator (xslt/usewhen.go) forks a facade so these
// stay confined to static-context compilation.
func (f *xpathFacade) registerFunc(ident string, fn xpath.BuiltinFunc) {
	f.eval.RegisterFunc(ident, fn)
}

func (f *xpathFacade) defineStaticVariable(name string, expr xpath.Expr) {
	f.eval.Set(name, expr)
}

func (f *xpathFacade) resolveVariable(name string) (xpath.Expr, error) {
	return f.eval.Resolve(name)
}
