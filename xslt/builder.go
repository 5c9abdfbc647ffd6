package xslt

import (
	"strings"

	"github.com/midbel/xsltc/alhpa"
	"github.com/midbel/xsltc/relax"
	"github.com/midbel/xsltc/xml"
)

// compileState tracks the event-driven builder's suppression state
// across ElementStart/ElementEnd pairs (spec.md §4.1's NORMAL/SKIP/
// IMPORT_SCHEMA/INLINE_SCHEMA state diagram).
type compileState int8

const (
	stateNormal compileState = iota
	stateSkip
	stateImportSchema
	stateInlineSchema
)

// Linker resolves an xsl:include/xsl:import href to the stylesheet
// module it names, returning its already-compiled declarations for the
// event-driven builder to fold in at an adjusted precedence (spec.md §6
// "StylesheetResolver"). xslt/linker.go supplies the production
// implementation; a nil Linker makes xsl:include/xsl:import a static
// error rather than silently dropping the reference.
type Linker interface {
	Resolve(href, baseURI string, loc Location) (*CompiledStylesheet, error)

	// ResolveSchema fetches an xsl:import-schema's schema-location
	// resource, returning a relax.Pattern the way xslt/schema.go's
	// FileLinker.ResolveSchema does (spec.md §4.5). Full schema-aware
	// validation is a documented Non-goal; this exists so a missing or
	// unreachable resource is still caught as a static error.
	ResolveSchema(href, baseURI string, loc Location) (relax.Pattern, error)
}

// EventDrivenBuilder implements xml.SAXHandler, turning a stream of
// parse events into a sealed CompiledStylesheet (spec.md §4.1
// "Event-driven builder"). Grounded on the teacher's Stylesheet.init,
// which walked a pre-parsed xml.Node tree and switched on each child's
// QName (xslt/stylesheet.go, now replaced); this version receives
// elements pushed from outside instead of walking a tree it already
// holds, so the same compiler works whether fed by a real streaming
// parser or xml.Emit replaying an in-memory fixture.
type EventDrivenBuilder struct {
	loc Location

	facade   *xpathFacade
	scope    *nsScope
	stack    *contextStack
	sheet    *StylesheetBuilder
	diags    Diagnostics
	linker   Linker
	packages PackageResolver

	state       compileState
	skipDepth   int
	schemaDepth int
	userDataDepth int

	rootSeen   bool
	simplified bool
	simpleRootName xml.QName

	pendingNS map[string]string

	// templateLabels synthesizes a short, stable debug id for every
	// xsl:template declared with a match pattern but no name attribute,
	// so diagnostics and tooling have something shorter than the match
	// pattern to refer to a rule by. Grounded on alhpa/alpha.go's Namer,
	// which the teacher used to mint template ids at execution time;
	// here the same generator runs once per compile, at declaration
	// time, instead.
	templateLabels alpha.Namer

	// modulePrecedence is this module's own import precedence, claimed
	// once from the shared counter on its first top-level declaration
	// and reused by every later one: declarations within a single
	// module are peers (spec.md §4.5's XTSE0550 "duplicate at the same
	// precedence" only makes sense if they tie), and only a nested
	// xsl:include/xsl:import should ever advance the counter again (via
	// mergeExternal). 0 means "not yet claimed" (nextPrecedence never
	// returns 0).
	modulePrecedence int

	// pendingImports buffers xsl:import hrefs seen so far in this
	// module that have not yet been resolved; declarations.go's
	// flushPendingImports drains it by resolving every buffered href
	// concurrently the moment a non-import top-level declaration is
	// encountered (or Seal runs, for a module that ends in imports).
	pendingImports []pendingImport

	err error
}

// ownPrecedence returns this module's precedence, claiming it from the
// builder's shared counter on first use.
func (b *EventDrivenBuilder) ownPrecedence() int {
	if b.modulePrecedence == 0 {
		b.modulePrecedence = b.sheet.nextPrecedence()
	}
	return b.modulePrecedence
}

// NewEventDrivenBuilder constructs a builder rooted at systemID, the
// base URI of the stylesheet resource being compiled (spec.md §4.1).
func NewEventDrivenBuilder(systemID string, diags Diagnostics, linker Linker) *EventDrivenBuilder {
	facade := newXPathFacade()
	scope := newNSScope()
	root := newRootContext(facade, scope)
	root.BaseURI = systemID
	root.withStatic()
	if diags == nil {
		diags = NoopDiagnostics()
	}
	return &EventDrivenBuilder{
		loc:            Location{SystemID: systemID, Line: 1, Column: 1},
		facade:         facade,
		scope:          scope,
		stack:          newContextStack(root),
		sheet:          NewStylesheetBuilder(),
		diags:          diags,
		linker:         linker,
		templateLabels: alpha.NewLowerString(3),
	}
}

// WithPackages attaches the collaborator xsl:use-package resolves
// named packages through (spec.md §6 "PackageResolver"). Optional: a
// builder with no resolver attached fails any xsl:use-package it meets
// with XTSE0010, the same code declIncludeImport raises when no Linker
// is configured.
func (b *EventDrivenBuilder) WithPackages(pr PackageResolver) *EventDrivenBuilder {
	b.packages = pr
	return b
}

// nextTemplateLabel mints the next synthetic id ("aaa", "aab", ...) for
// an unnamed xsl:template. Reset never needs calling: one builder
// compiles exactly one stylesheet module.
func (b *EventDrivenBuilder) nextTemplateLabel() string {
	label, err := b.templateLabels.Next()
	if err != nil {
		return ""
	}
	return label
}

// Seal finishes the build after the document has been fully consumed,
// returning the compiler's sole output (spec.md §3 "Compiled
// stylesheet").
func (b *EventDrivenBuilder) Seal() (*CompiledStylesheet, error) {
	if b.err != nil {
		return nil, b.err
	}
	if err := b.flushPendingImports(); err != nil {
		b.diags.Error(b.loc, err)
		return nil, err
	}
	sheet, err := b.sheet.Seal()
	if err != nil {
		b.diags.Error(b.loc, err)
		return nil, err
	}
	return sheet, nil
}

// --- xml.SAXHandler ---

func (b *EventDrivenBuilder) LocatorSet(line, column int, systemID string) {
	b.loc = Location{SystemID: systemID, Line: line, Column: column}
}

func (b *EventDrivenBuilder) DocumentStart() {
	b.diags.Start()
}

func (b *EventDrivenBuilder) DocumentEnd() {
	b.flushText()
	if b.simplified && b.err == nil {
		b.finishSimplifiedStylesheet()
	}
	b.diags.Done()
}

func (b *EventDrivenBuilder) PrefixMappingStart(prefix, uri string) {
	b.scope.bufferMapping(prefix, uri)
	if b.pendingNS == nil {
		b.pendingNS = map[string]string{}
	}
	b.pendingNS[prefix] = uri
}

func (b *EventDrivenBuilder) PrefixMappingEnd(prefix string) {}

func (b *EventDrivenBuilder) ElementStart(uri, local, qname string, attrs []xml.RawAttribute) error {
	if b.err != nil {
		return b.err
	}
	b.flushText()

	if b.schemaDepth > 0 || b.state == stateImportSchema || b.state == stateInlineSchema {
		if b.state == stateImportSchema {
			b.state = stateInlineSchema
		}
		b.schemaDepth++
		b.pushPlaceholder(uri, local, qname)
		return nil
	}
	if b.state == stateSkip {
		b.skipDepth++
		b.pushPlaceholder(uri, local, qname)
		return nil
	}

	prefix, _, _ := strings.Cut(qname, ":")
	if !strings.Contains(qname, ":") {
		prefix = ""
	}
	loc := b.loc

	if !b.rootSeen {
		if err := b.resolveRoot(uri, local, attrs, loc); err != nil {
			b.err = err
			return err
		}
		b.rootSeen = true
	}

	parent := b.stack.top()
	b.scope.pushFrame(nil)
	ctx := parent.push(uri, local, prefix, loc)
	for p, u := range b.pendingNS {
		ctx.defineNamespace(p, u)
	}
	b.pendingNS = nil

	if err := b.applyStandardAttributes(ctx, parent, uri, local, attrs, loc); err != nil {
		b.err = err
		return err
	}

	use, err := b.evaluateUseWhenAttr(ctx, attrs, loc)
	if err != nil {
		b.err = err
		return err
	}
	if !use {
		b.state = stateSkip
		b.skipDepth = 1
		b.pushPlaceholder(uri, local, qname)
		return nil
	}

	// Top-level non-XSLT content is only legal directly under a real
	// xsl:stylesheet/xsl:transform element, and only when namespaced
	// (spec.md §4.1 step 1: "XTSE0130 if no namespace"); it is otherwise
	// opaque user data the compiler neither validates nor compiles. A
	// simplified stylesheet has no such top-level-declaration slot: its
	// root IS the literal result element, so depth 2 here is ordinary
	// content, not a top-level child, and this rule does not apply.
	if !b.simplified && b.stack.depth() == 2 && uri != xsltNamespaceUri {
		if uri == "" {
			err := staticErr(loc, XTSE0130, "%s: top-level element with no namespace", local)
			b.err = err
			return err
		}
		b.userDataDepth = 1
		b.state = stateSkip
		b.skipDepth = 1
		ctx.Attrs = rawAttrsToClark(attrs)
		b.stack.push(ctx)
		return nil
	}

	ctx.Attrs = rawAttrsToClark(attrs)
	b.stack.push(ctx)
	b.diags.Enter(loc, qname)
	if uri == xsltNamespaceUri && local == "import-schema" {
		// Its optional inline xs:schema child is opaque content this
		// compiler never structurally parses (spec.md §4.5); divert it
		// through the schema-skip path the same way stateSkip diverts
		// use-when=false content, so it never reaches compileLiteralResultElement.
		b.state = stateImportSchema
	}
	return nil
}

func (b *EventDrivenBuilder) ElementEnd(uri, local, qname string) error {
	if b.err != nil {
		return b.err
	}
	b.flushText()

	if b.schemaDepth > 0 {
		b.schemaDepth--
		b.stack.pop()
		b.scope.popFrame()
		if b.schemaDepth == 0 {
			b.state = stateNormal
		}
		return nil
	}
	if b.state == stateSkip {
		b.skipDepth--
		b.stack.pop()
		b.scope.popFrame()
		if b.skipDepth <= 0 {
			b.state = stateNormal
			b.userDataDepth = 0
		}
		return nil
	}

	ctx := b.stack.pop()
	b.scope.popFrame()
	parent := b.stack.top()

	if uri == xsltNamespaceUri && local == "import-schema" && b.state == stateImportSchema {
		// No inline xs:schema child arrived (schema-location-only form),
		// so schemaDepth's own reset in the branch above never ran.
		b.state = stateNormal
	}

	if uri == xsltNamespaceUri {
		switch local {
		case "sort":
			spec, err := compileSortSpec(ctx)
			if err != nil {
				b.err = err
				return err
			}
			parent.Sorts = append(parent.Sorts, spec)
			return nil
		case "with-param":
			wp, err := compileWithParam(ctx)
			if err != nil {
				b.err = err
				return err
			}
			for _, other := range parent.WithParams {
				if other.Name.Equal(wp.Name) {
					err := staticErr(ctx.Loc, XTSE0670, "%s: duplicate xsl:with-param name", wp.Name.Name)
					b.err = err
					return err
				}
			}
			parent.WithParams = append(parent.WithParams, wp)
			return nil
		case "merge-source":
			ms, err := compileMergeSource(ctx)
			if err != nil {
				b.err = err
				return err
			}
			parent.MergeSources = append(parent.MergeSources, ms)
			return nil
		case "output-character":
			if err := b.compileOutputCharacter(ctx, parent); err != nil {
				b.err = err
				return err
			}
			return nil
		case "when":
			wc, err := compileWhenClause(ctx)
			if err != nil {
				b.err = err
				return err
			}
			parent.Whens = append(parent.Whens, wc)
			return nil
		case "otherwise":
			parent.HasOtherwise = true
			parent.OtherwiseBody = ctx.Children
			return nil
		case "catch":
			cc, err := compileCatchClause(ctx)
			if err != nil {
				b.err = err
				return err
			}
			parent.Catches = append(parent.Catches, cc)
			return nil
		case "on-completion":
			parent.HasOnCompletion = true
			parent.OnCompletionBody = ctx.Children
			return nil
		case "matching-substring":
			parent.MatchingBody = ctx.Children
			return nil
		case "non-matching-substring":
			parent.NonMatchingBody = ctx.Children
			return nil
		case "accept":
			pa, err := compilePackageAccept(ctx)
			if err != nil {
				b.err = err
				return err
			}
			parent.Accepts = append(parent.Accepts, pa)
			return nil
		case "override":
			parent.OverrideTemplates = append(parent.OverrideTemplates, ctx.OverrideTemplates...)
			parent.OverrideFunctions = append(parent.OverrideFunctions, ctx.OverrideFunctions...)
			parent.OverrideVariables = append(parent.OverrideVariables, ctx.OverrideVariables...)
			parent.OverrideAttributeSets = append(parent.OverrideAttributeSets, ctx.OverrideAttributeSets...)
			return nil
		case "template", "function", "variable", "param", "attribute-set":
			// Only special-cased when nested directly inside xsl:override
			// (spec.md §4.7): an ordinary top-level declaration of the
			// same local name falls through to the depth==2 dispatch
			// below instead. Precedence/DeclIndex are placeholders here;
			// mergeUsePackage assigns their real values once the owning
			// xsl:use-package is merged.
			if parent.Local == "override" {
				if err := b.compileOverrideChild(ctx, parent, local); err != nil {
					b.err = err
					return err
				}
				return nil
			}
		}
	}

	var (
		node ASTNode
		err  error
	)
	if !b.simplified && b.stack.depth() == 2 {
		// ctx's parent is the xsl:stylesheet/xsl:transform element
		// itself: a top-level declaration, registered on the builder
		// rather than compiled into a body (spec.md §4.1 step 2). A
		// simplified stylesheet's root is the literal result element
		// itself, so its children are ordinary content, never
		// top-level declarations.
		err = b.compileDeclaration(ctx)
	} else if uri == xsltNamespaceUri {
		node, err = b.compileInstruction(ctx)
	} else {
		node, err = b.compileLiteralResultElement(ctx)
	}
	if err != nil {
		b.diags.Error(ctx.Loc, err)
		b.err = err
		return err
	}
	if node != nil {
		parent.Children = append(parent.Children, node)
	}
	b.diags.Leave(ctx.Loc, qname)
	return nil
}

func (b *EventDrivenBuilder) Characters(text string) error {
	if b.err != nil {
		return b.err
	}
	if b.state == stateSkip || b.schemaDepth > 0 {
		return nil
	}
	b.stack.top().appendText(text)
	return nil
}

// pushPlaceholder keeps the context stack balanced while content is
// being skipped (use-when=false, suppressed user data, schema content),
// without doing any of the normal element-context construction work.
func (b *EventDrivenBuilder) pushPlaceholder(uri, local, qname string) {
	top := b.stack.top()
	b.stack.push(&ElementContext{Namespace: uri, Local: local, Loc: b.loc, scope: top.scope, facade: top.facade, static: top.static})
}

func rawAttrsToClark(attrs []xml.RawAttribute) map[xml.QName]string {
	out := make(map[xml.QName]string, len(attrs))
	for _, a := range attrs {
		out[xml.ExpandedName(a.Local, "", a.Uri)] = a.Value
	}
	return out
}

// resolveRoot validates the outermost element against spec.md §4.1's
// root-detection rule: a normal xsl:stylesheet/xsl:transform, or a
// simplified stylesheet (any element carrying an xsl:version attribute,
// treated as the sole literal result element of an implicit template
// matching "/"). Anything else is XTSE0150.
func (b *EventDrivenBuilder) resolveRoot(uri, local string, attrs []xml.RawAttribute, loc Location) error {
	if uri == xsltNamespaceUri && (local == "stylesheet" || local == "transform") {
		return nil
	}
	for _, a := range attrs {
		if a.Uri == xsltNamespaceUri && a.Local == "version" {
			b.simplified = true
			return nil
		}
	}
	return staticErr(loc, XTSE0150, "%s: root element is neither xsl:stylesheet nor a simplified stylesheet", local)
}

// finishSimplifiedStylesheet wraps the single literal-result-element
// tree compiled as this document's root into a synthetic template
// matching "/", the transformation spec.md §4.1/§4.5 "Simplified
// stylesheets" describes.
func (b *EventDrivenBuilder) finishSimplifiedStylesheet() {
	root := b.stack.top()
	if len(root.Children) == 0 {
		return
	}
	pat, _ := compilePattern(b.facade, "/", root.Loc, b.sheet.sheet.Version, b.scope, "")
	rule := &TemplateRule{
		Match:      pat,
		MatchSrc:   "/",
		Precedence: b.ownPrecedence(),
		DeclIndex:  b.sheet.nextDeclIndex(),
		Body:       root.Children,
		Loc:        root.Loc,
	}
	if err := b.sheet.AddTemplate(rule); err != nil {
		b.err = err
	}
}

// evaluateUseWhenAttr runs use-when, if present, against ctx's static
// context (spec.md §4.1 step "use-when=false ... skip-depth"). A
// compile or evaluation failure of the expression aborts compilation
// with XTSE0020, as evaluateUseWhen documents.
func (b *EventDrivenBuilder) evaluateUseWhenAttr(ctx *ElementContext, attrs []xml.RawAttribute, loc Location) (bool, error) {
	for _, a := range attrs {
		if a.Uri == xsltNamespaceUri && a.Local == "use-when" {
			return ctx.static.evaluateUseWhen(a.Value, loc)
		}
	}
	return true, nil
}

// flushText converts the current frame's buffered character data into
// an AST node and appends it to the frame's own Children, the flush
// point spec.md §4.1 names as occurring "when another event arrives".
// Whitespace-only text at the wrong position is an error (XTSE0010/
// XTSE0120); otherwise the choice between a literal-text node and a
// text-value-template node follows whether expand-text is in effect.
func (b *EventDrivenBuilder) flushText() {
	if b.state == stateSkip || b.schemaDepth > 0 {
		return
	}
	ctx := b.stack.top()
	if !ctx.hasPendingText() {
		return
	}
	text := ctx.takeText()
	if !b.simplified && b.stack.depth() == 2 {
		if strings.TrimSpace(text) == "" {
			return
		}
		b.err = staticErr(ctx.Loc, XTSE0120, "non-whitespace text as a direct child of xsl:stylesheet")
		return
	}
	preserve := ctx.Attrs[xml.ExpandedName("space", "", xmlNamespaceUri)] == "preserve"
	if strings.TrimSpace(text) == "" && !preserve && ctx.Local != "text" {
		return
	}
	if ctx.ExpandText && ctx.Namespace != xsltNamespaceUri {
		avt, err := compileTVT(ctx.facade, text, ctx.Loc)
		if err != nil {
			b.err = err
			return
		}
		ctx.Children = append(ctx.Children, &TextValueTemplateNode{base: base{Loc: ctx.Loc}, Template: avt})
		return
	}
	ctx.Children = append(ctx.Children, &LiteralTextNode{base: base{Loc: ctx.Loc}, Text: text, Preserve: preserve})
}
