package xslt

import (
	"strings"

	"github.com/midbel/xsltc/xml"
)

// ElementContext is the compile-time stack frame captured at
// start-element and torn down at end-element (spec.md §3 "Element
// context"). Grounded on the teacher's runtime `Context`, which is also
// a stack of per-element frames linked by `Sub`/`Nest`/`WithXsl`
// cloning — but the teacher's frame carries a *ContextNode* (a node of
// the document being transformed) because it runs the stylesheet; this
// one carries no document at all, only the lexical state spec.md §3
// names: namespace bindings, attributes, base-URI/expand-text/version/
// xpath-default-namespace inheritance, and the accumulated AST children
// that become this element's compiled node at pop time.
type ElementContext struct {
	Namespace string
	Local     string
	Prefix    string
	Loc       Location

	// Bindings is the full in-scope prefix->uri table, a snapshot
	// usable without walking the parent chain; Explicit is only the
	// subset declared by this element (spec.md §3).
	Bindings map[string]string
	Explicit map[string]string

	// Attrs holds the element's static attribute values keyed by Clark
	// name; Shadow holds the compiled AVT of any attribute whose local
	// name was prefixed '_' (spec.md §4.1), which displaces Attrs'
	// entry of the same unprefixed name for compilation purposes.
	Attrs  map[xml.QName]string
	Shadow map[xml.QName]AVT

	// Excluded is the set of namespace URIs this element (via
	// exclude-result-prefixes or extension-element-prefixes) removes
	// from literal-result-element output, scoped to this element and
	// its descendants (spec.md §4.1 step 4, §4.5).
	Excluded map[string]bool

	BaseURI        string
	ExpandText     bool
	Version        float64
	XPathDefaultNS string

	// Children accumulates the compiled AST nodes produced by this
	// element's content as its child events are processed; it becomes
	// the node's body at end-element.
	Children Body

	// Sorts, WithParams, MergeSources and CharMappings accumulate the
	// non-ASTNode auxiliary children a handful of instructions carry
	// (xsl:sort, xsl:with-param, xsl:merge-source, xsl:output-character):
	// these four shapes are shared data, not independently-compiled AST
	// nodes (spec.md §3), so the event-driven builder (xslt/builder.go)
	// special-cases their end-element event to append onto the parent
	// frame's matching slice here instead of the generic Children path.
	Sorts        []SortSpec
	WithParams   []WithParam
	MergeSources []MergeSource
	CharMappings map[rune]string

	// Whens/HasOtherwise/OtherwiseBody, Catches, HasOnCompletion/
	// OnCompletionBody and Matching/NonMatchingBody are the same kind of
	// non-ASTNode auxiliary accumulation as above, one per instruction
	// that has exactly one special child shape (xsl:choose's xsl:when/
	// xsl:otherwise, xsl:try's xsl:catch, xsl:iterate's
	// xsl:on-completion, xsl:analyze-string's xsl:matching-substring/
	// xsl:non-matching-substring).
	Whens         []WhenClause
	HasOtherwise  bool
	OtherwiseBody Body
	Catches       []CatchClause
	HasOnCompletion  bool
	OnCompletionBody Body
	MatchingBody     Body
	NonMatchingBody  Body

	// Accepts and the four Override slices are xsl:use-package's own
	// auxiliary accumulation (spec.md §4.5/§4.7): Accepts holds its
	// xsl:accept children, and each Override slice holds one component
	// kind declared inside its xsl:override child, hoisted up from that
	// child's own ElementContext at its end-element event the same way
	// xsl:choose hoists xsl:when/xsl:otherwise.
	Accepts               []PackageAccept
	OverrideTemplates     []*TemplateRule
	OverrideFunctions     []*FunctionDecl
	OverrideVariables     []*VariableDecl
	OverrideAttributeSets []*AttributeSetDecl

	text strings.Builder

	scope  *nsScope
	static *staticContext
	facade *xpathFacade
}

// newRootContext builds the single frame beneath the outermost element,
// carrying the compiler's session-wide facade and namespace scope
// before any element has been seen.
func newRootContext(facade *xpathFacade, scope *nsScope) *ElementContext {
	return &ElementContext{
		Bindings:       map[string]string{"xml": xmlNamespaceUri},
		Explicit:       map[string]string{},
		Attrs:          map[xml.QName]string{},
		Shadow:         map[xml.QName]AVT{},
		Excluded:       map[string]bool{},
		ExpandText:     false,
		Version:        1.0,
		XPathDefaultNS: "",
		scope:          scope,
		facade:         facade,
		static:         newStaticContext(facade, scope, "", 1.0),
	}
}

// push derives a new frame for a just-opened element, inheriting the
// ambient properties spec.md §3/§4.1 says are inherited (base URI,
// expand-text, version, xpath-default-namespace, namespace bindings)
// from parent. Callers (the event-driven builder) are responsible for
// merging buffered prefix mappings into Explicit/Bindings and for
// overriding BaseURI from an xml:base attribute before attribute
// processing completes.
func (parent *ElementContext) push(uri, local, prefix string, loc Location) *ElementContext {
	bindings := make(map[string]string, len(parent.Bindings))
	for k, v := range parent.Bindings {
		bindings[k] = v
	}
	return &ElementContext{
		Namespace:      uri,
		Local:          local,
		Prefix:         prefix,
		Loc:            loc,
		Bindings:       bindings,
		Explicit:       map[string]string{},
		Attrs:          map[xml.QName]string{},
		Shadow:         map[xml.QName]AVT{},
		Excluded:       map[string]bool{},
		BaseURI:        parent.BaseURI,
		ExpandText:     parent.ExpandText,
		Version:        parent.Version,
		XPathDefaultNS: parent.XPathDefaultNS,
		scope:          parent.scope,
		facade:         parent.facade,
		static:         parent.static,
	}
}

// defineNamespace records a prefix->uri mapping on this frame, both in
// Explicit (for exclusion bookkeeping at pop time) and in Bindings (for
// QName resolution of this element and its descendants).
func (c *ElementContext) defineNamespace(prefix, uri string) {
	c.Explicit[prefix] = uri
	c.Bindings[prefix] = uri
}

// resolvePrefix looks up a namespace prefix against this frame's
// in-scope bindings, the form QName resolution needs (spec.md §4.2).
func (c *ElementContext) resolvePrefix(prefix string) (string, bool) {
	if prefix == "xml" {
		return xmlNamespaceUri, true
	}
	uri, ok := c.Bindings[prefix]
	return uri, ok
}

// withStatic derives a fresh static-evaluation context once this
// element's base URI and version are final, so use-when/static
// variables it hosts see the right values (spec.md §4.6/§9).
func (c *ElementContext) withStatic() {
	c.static = newStaticContext(c.facade, c.scope, c.BaseURI, c.Version)
}

// appendText buffers character data until the next event forces a
// flush (spec.md §4.1, "On characters, append to the top context's
// text buffer").
func (c *ElementContext) appendText(s string) {
	c.text.WriteString(s)
}

// takeText returns and clears the buffered character data, the flush
// point named in spec.md §4.1.
func (c *ElementContext) takeText() string {
	s := c.text.String()
	c.text.Reset()
	return s
}

// hasPendingText reports whether any character data is buffered,
// without consuming it — used to decide whether a flush is needed
// before processing a non-characters event.
func (c *ElementContext) hasPendingText() bool {
	return c.text.Len() > 0
}

// contextStack is the compiler's element-context stack (spec.md §3
// "Lifecycle": pushed at start-element, popped and turned into an AST
// node at end-element).
type contextStack struct {
	frames []*ElementContext
}

func newContextStack(root *ElementContext) *contextStack {
	return &contextStack{frames: []*ElementContext{root}}
}

func (s *contextStack) top() *ElementContext {
	return s.frames[len(s.frames)-1]
}

func (s *contextStack) push(c *ElementContext) {
	s.frames = append(s.frames, c)
}

// pop removes and returns the top frame; callers must only invoke this
// from an end-element handler matched to a prior push — popping the
// root frame is a compiler bug, not a user-facing error.
func (s *contextStack) pop() *ElementContext {
	n := len(s.frames) - 1
	top := s.frames[n]
	s.frames = s.frames[:n]
	return top
}

func (s *contextStack) depth() int {
	return len(s.frames)
}
