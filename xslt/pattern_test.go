package xslt

import (
	"testing"

	"github.com/midbel/xsltc/xml"
)

func mustPattern(t *testing.T, src string) Pattern {
	t.Helper()
	return mustPatternNS(t, src, nil)
}

// mustPatternNS compiles src with bindings pushed onto a fresh nsScope,
// for exercising namespace-prefixed patterns.
func mustPatternNS(t *testing.T, src string, bindings map[string]string) Pattern {
	t.Helper()
	facade := newXPathFacade()
	scope := newNSScope()
	if bindings != nil {
		scope.pushFrame(bindings)
	}
	pat, err := compilePattern(facade, src, Location{}, 3.0, scope, "")
	if err != nil {
		t.Fatalf("compilePattern(%q): %v", src, err)
	}
	return pat
}

func mustParse(t *testing.T, src string) *xml.Document {
	t.Helper()
	doc, err := xml.ParseString(src)
	if err != nil {
		t.Fatalf("ParseString: %v", err)
	}
	return doc
}

func findByName(t *testing.T, root xml.Node, local string) xml.Node {
	t.Helper()
	el, ok := root.(*xml.Element)
	if !ok {
		t.Fatalf("root is not an element: %T", root)
	}
	if el.Name == local {
		return el
	}
	for _, n := range el.Nodes {
		if c, ok := n.(*xml.Element); ok {
			if c.Name == local {
				return c
			}
			if found := findChild(c, local); found != nil {
				return found
			}
		}
	}
	t.Fatalf("no element named %q found", local)
	return nil
}

func findChild(el *xml.Element, local string) xml.Node {
	for _, n := range el.Nodes {
		if c, ok := n.(*xml.Element); ok {
			if c.Name == local {
				return c
			}
			if found := findChild(c, local); found != nil {
				return found
			}
		}
	}
	return nil
}

func TestPatternNameTest(t *testing.T) {
	doc := mustParse(t, `<?xml version="1.0"?><root><a/><b/></root>`)
	a := findByName(t, doc.Root(), "a")
	b := findByName(t, doc.Root(), "b")

	pat := mustPattern(t, "a")
	if !pat.Matches(a, DefaultPatternContext) {
		t.Errorf("expected pattern 'a' to match <a>")
	}
	if pat.Matches(b, DefaultPatternContext) {
		t.Errorf("expected pattern 'a' not to match <b>")
	}
}

func TestPatternWildcard(t *testing.T) {
	doc := mustParse(t, `<?xml version="1.0"?><root><a/></root>`)
	a := findByName(t, doc.Root(), "a")

	pat := mustPattern(t, "*")
	if !pat.Matches(a, DefaultPatternContext) {
		t.Errorf("expected '*' to match any element")
	}
	if pat.DefaultPriority() != -0.5 {
		t.Errorf("wildcard default priority = %v, want -0.5", pat.DefaultPriority())
	}
}

func TestPatternChildStep(t *testing.T) {
	doc := mustParse(t, `<?xml version="1.0"?><root><a><b/></a><b/></root>`)
	root := doc.Root()

	rootEl := root.(*xml.Element)
	var direct, nested *xml.Element
	for _, n := range rootEl.Nodes {
		if el, ok := n.(*xml.Element); ok && el.Name == "b" {
			direct = el
		}
		if el, ok := n.(*xml.Element); ok && el.Name == "a" {
			for _, gn := range el.Nodes {
				if gel, ok := gn.(*xml.Element); ok && gel.Name == "b" {
					nested = gel
				}
			}
		}
	}
	if direct == nil || nested == nil {
		t.Fatal("fixture did not parse as expected")
	}

	pat := mustPattern(t, "a/b")
	if !pat.Matches(nested, DefaultPatternContext) {
		t.Errorf("expected 'a/b' to match the <b> nested under <a>")
	}
	if pat.Matches(direct, DefaultPatternContext) {
		t.Errorf("expected 'a/b' not to match the <b> that is root's direct child")
	}
}

func TestPatternDescendantStep(t *testing.T) {
	doc := mustParse(t, `<?xml version="1.0"?><root><x><y><target/></y></x></root>`)
	target := findByName(t, doc.Root(), "target")

	pat := mustPattern(t, "root//target")
	if !pat.Matches(target, DefaultPatternContext) {
		t.Errorf("expected 'root//target' to match a deeply nested <target>")
	}

	miss := mustPattern(t, "other//target")
	if miss.Matches(target, DefaultPatternContext) {
		t.Errorf("expected 'other//target' not to match")
	}
}

func TestPatternAttribute(t *testing.T) {
	doc := mustParse(t, `<?xml version="1.0"?><root id="42"/>`)
	rootEl := doc.Root().(*xml.Element)
	if len(rootEl.Attrs) == 0 {
		t.Fatal("fixture has no attributes")
	}
	attr := rootEl.Attrs[0]

	pat := mustPattern(t, "@id")
	if !pat.Matches(&attr, DefaultPatternContext) {
		t.Errorf("expected '@id' to match the id attribute")
	}

	other := mustPattern(t, "@name")
	if other.Matches(&attr, DefaultPatternContext) {
		t.Errorf("expected '@name' not to match the id attribute")
	}
}

func TestPatternRoot(t *testing.T) {
	doc := mustParse(t, `<?xml version="1.0"?><root/>`)
	pat := mustPattern(t, "/")
	if !pat.Matches(doc, DefaultPatternContext) {
		t.Errorf("expected '/' to match the document node")
	}
	if pat.Matches(doc.Root(), DefaultPatternContext) {
		t.Errorf("expected '/' not to match the root element itself")
	}
}

func TestPatternUnionTakesMaxPriority(t *testing.T) {
	doc := mustParse(t, `<?xml version="1.0"?><root><a/></root>`)
	a := findByName(t, doc.Root(), "a")

	pat := mustPattern(t, "a | b/c")
	if !pat.Matches(a, DefaultPatternContext) {
		t.Errorf("expected 'a | b/c' to match <a>")
	}
	// "a" has default priority 0, "b/c" (a stepPattern) has 0.5.
	if got := pat.DefaultPriority(); got != 0.5 {
		t.Errorf("union default priority = %v, want 0.5 (the max of its branches)", got)
	}
}

func TestPatternNamespacedNameTest(t *testing.T) {
	doc := mustParse(t, `<?xml version="1.0"?><root xmlns:ns="urn:example:ns"><ns:a/><a/></root>`)
	rootEl := doc.Root().(*xml.Element)
	var nsA, plainA *xml.Element
	for _, n := range rootEl.Nodes {
		el, ok := n.(*xml.Element)
		if !ok || el.Name != "a" {
			continue
		}
		if el.Uri == "urn:example:ns" {
			nsA = el
		} else {
			plainA = el
		}
	}
	if nsA == nil || plainA == nil {
		t.Fatal("fixture did not parse as expected")
	}

	pat := mustPatternNS(t, "ns:a", map[string]string{"ns": "urn:example:ns"})
	if !pat.Matches(nsA, DefaultPatternContext) {
		t.Errorf("expected 'ns:a' to match the namespaced <a>")
	}
	if pat.Matches(plainA, DefaultPatternContext) {
		t.Errorf("expected 'ns:a' not to match the no-namespace <a>")
	}
	// spec.md §4.4: a simple name, namespaced or not, has priority 0 —
	// not -0.25, which is reserved for a 'prefix:*' wildcard.
	if got := pat.DefaultPriority(); got != 0 {
		t.Errorf("'ns:a' default priority = %v, want 0", got)
	}
}

func TestPatternNamespaceWildcard(t *testing.T) {
	doc := mustParse(t, `<?xml version="1.0"?><root xmlns:ns="urn:example:ns"><ns:a/><a/></root>`)
	rootEl := doc.Root().(*xml.Element)
	var nsA, plainA *xml.Element
	for _, n := range rootEl.Nodes {
		el, ok := n.(*xml.Element)
		if !ok || el.Name != "a" {
			continue
		}
		if el.Uri == "urn:example:ns" {
			nsA = el
		} else {
			plainA = el
		}
	}
	if nsA == nil || plainA == nil {
		t.Fatal("fixture did not parse as expected")
	}

	pat := mustPatternNS(t, "ns:*", map[string]string{"ns": "urn:example:ns"})
	if !pat.Matches(nsA, DefaultPatternContext) {
		t.Errorf("expected 'ns:*' to match any element in urn:example:ns")
	}
	if pat.Matches(plainA, DefaultPatternContext) {
		t.Errorf("expected 'ns:*' not to match a no-namespace element")
	}
	if got := pat.DefaultPriority(); got != -0.25 {
		t.Errorf("'ns:*' default priority = %v, want -0.25", got)
	}
}

func TestPatternNamespacedAttributeWildcard(t *testing.T) {
	doc := mustParse(t, `<?xml version="1.0"?><root xmlns:ns="urn:example:ns" ns:id="1" name="2"/>`)
	rootEl := doc.Root().(*xml.Element)
	var nsAttr, plainAttr *xml.Attribute
	for i := range rootEl.Attrs {
		a := &rootEl.Attrs[i]
		if a.Uri == "urn:example:ns" {
			nsAttr = a
		} else {
			plainAttr = a
		}
	}
	if nsAttr == nil || plainAttr == nil {
		t.Fatal("fixture did not parse as expected")
	}

	pat := mustPatternNS(t, "@ns:*", map[string]string{"ns": "urn:example:ns"})
	if !pat.Matches(nsAttr, DefaultPatternContext) {
		t.Errorf("expected '@ns:*' to match the namespaced attribute")
	}
	if pat.Matches(plainAttr, DefaultPatternContext) {
		t.Errorf("expected '@ns:*' not to match the no-namespace attribute")
	}
	if got := pat.DefaultPriority(); got != -0.25 {
		t.Errorf("'@ns:*' default priority = %v, want -0.25", got)
	}
}

func TestPatternUndeclaredPrefixIsStaticError(t *testing.T) {
	facade := newXPathFacade()
	scope := newNSScope()
	_, err := compilePattern(facade, "ns:a", Location{}, 3.0, scope, "")
	wantStaticCode(t, err, XTSE0280)
}

func TestPatternKindTestNode(t *testing.T) {
	doc := mustParse(t, `<?xml version="1.0"?><root><a/></root>`)
	a := findByName(t, doc.Root(), "a")

	pat := mustPattern(t, "node()")
	if !pat.Matches(a, DefaultPatternContext) {
		t.Errorf("expected 'node()' to match any node")
	}
	if pat.DefaultPriority() != -0.5 {
		t.Errorf("node() default priority = %v, want -0.5", pat.DefaultPriority())
	}
}
