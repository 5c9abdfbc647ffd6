package xslt

import (
	"context"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
)

// splitParamsAndBody separates a compiled body's leading xsl:param
// children (always ASTNodes, unlike sort/with-param/...) from the rest
// of the sequence-constructor content, the shape xsl:template,
// xsl:function and xsl:iterate all share (spec.md §4.5).
func splitParamsAndBody(children Body) ([]ParamNode, Body) {
	var (
		params []ParamNode
		body   Body
	)
	for _, child := range children {
		if p, ok := child.(*ParamNode); ok {
			params = append(params, *p)
			continue
		}
		body = append(body, child)
	}
	return params, body
}

// compileDeclaration dispatches a top-level xsl:* element — one whose
// parent is the stylesheet root itself — into the StylesheetBuilder
// (spec.md §4.5 "Top-level declarations"). Unlike compileInstruction,
// this never returns an ASTNode: declarations are registered on b.sheet
// directly, never appended to a parent's Children.
func (b *EventDrivenBuilder) compileDeclaration(ctx *ElementContext) error {
	if ctx.Namespace != xsltNamespaceUri {
		// Non-XSLT top-level content was already diverted to stateSkip
		// by ElementStart (spec.md §4.1 step 1); reaching here means a
		// namespaced top-level element this compiler does not recognize
		// as a declaration, which is simply ignored (forward-compatible
		// extension data, spec.md §4.6).
		return nil
	}

	if ctx.Local != "import" {
		if err := b.flushPendingImports(); err != nil {
			return err
		}
	}

	precedence := b.ownPrecedence()
	declIndex := b.sheet.nextDeclIndex()

	switch ctx.Local {
	case "template":
		return b.declTemplate(ctx, precedence, declIndex)
	case "variable", "param":
		return b.declGlobalVariable(ctx, precedence, declIndex)
	case "function":
		return b.declFunction(ctx, precedence, declIndex)
	case "key":
		return b.declKey(ctx, precedence)
	case "attribute-set":
		return b.declAttributeSet(ctx, precedence)
	case "character-map":
		return b.declCharacterMap(ctx)
	case "accumulator":
		return b.declAccumulator(ctx)
	case "decimal-format":
		return b.declDecimalFormat(ctx)
	case "output":
		return b.declOutput(ctx)
	case "namespace-alias":
		return b.declNamespaceAlias(ctx)
	case "import-schema":
		return b.declSchemaImport(ctx)
	case "strip-space":
		return b.declSpaceRule(ctx, false)
	case "preserve-space":
		return b.declSpaceRule(ctx, true)
	case "mode":
		return b.declMode(ctx)
	case "include", "import":
		return b.declIncludeImport(ctx, declIndex)
	case "use-package":
		return b.declUsePackage(ctx, precedence)
	case "default-collation", "default-validation", "expose":
		// default-collation/default-validation are carried as attributes
		// on xsl:stylesheet itself, read directly off the root context
		// elsewhere, never as their own declaration. xsl:expose (spec.md
		// §4.7, the fine-grained component-visibility override distinct
		// from xsl:override) is not implemented: no per-component
		// exposure table is modeled, so XTSE3085 (visibility conflict
		// through xsl:expose) is never raised. xsl:use-package/
		// xsl:accept/xsl:override ARE implemented — see declUsePackage
		// and mergeUsePackage in xslt/packages.go.
		return nil
	default:
		return nil
	}
}

// declTemplate compiles one xsl:template (spec.md §4.5). Exactly one of
// match/name must be given (XTSE0500); its xsl:param children are split
// out of Body the same way xsl:iterate's are.
func (b *EventDrivenBuilder) declTemplate(ctx *ElementContext, precedence, declIndex int) error {
	rule, err := b.buildTemplate(ctx, precedence, declIndex)
	if err != nil {
		return err
	}
	return b.sheet.AddTemplate(rule)
}

// buildTemplate compiles an xsl:template into its struct without
// registering it on b.sheet, so the same compilation logic serves both
// an ordinary top-level xsl:template (declTemplate, registered
// immediately) and one nested inside xsl:override (held in
// ElementContext.OverrideTemplates until mergeUsePackage assigns it its
// real precedence, spec.md §4.7).
func (b *EventDrivenBuilder) buildTemplate(ctx *ElementContext, precedence, declIndex int) (*TemplateRule, error) {
	matchSrc, hasMatch := ctx.plain("match")
	nameSrc, hasName := ctx.plain("name")
	if !hasMatch && !hasName {
		return nil, staticErr(ctx.Loc, XTSE0500, "template: requires a 'match' or 'name' attribute")
	}
	params, body := splitParamsAndBody(ctx.Children)
	rule := &TemplateRule{
		Params: params, Body: body, Precedence: precedence, DeclIndex: declIndex, Loc: ctx.Loc,
	}
	if hasMatch {
		pat, err := compilePattern(ctx.facade, matchSrc, ctx.Loc, ctx.Version, ctx.scope, ctx.XPathDefaultNS)
		if err != nil {
			return nil, err
		}
		rule.Match = pat
		rule.MatchSrc = matchSrc
	}
	if hasName {
		qn, err := resolveQName(ctx.scope, nameSrc, ctx.Loc, true)
		if err != nil {
			return nil, err
		}
		rule.Name = qn
		rule.HasName = true
	} else {
		rule.Label = b.nextTemplateLabel()
	}
	if raw, ok := ctx.plain("mode"); ok {
		rule.Modes = strings.Fields(raw)
	}
	if raw, ok := ctx.plain("priority"); ok {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, staticErr(ctx.Loc, XTSE0020, "template: invalid priority %q", raw)
		}
		rule.Priority = v
		rule.HasPriority = true
	}
	if raw, ok := ctx.plain("visibility"); ok {
		rule.Visibility = raw
	}
	return rule, nil
}

// declGlobalVariable compiles a top-level xsl:variable/xsl:param
// (spec.md §4.5 "Global variable"). static="yes" registers the compiled
// value on ctx.facade (the plain, never-forked facade threaded through
// every ElementContext) rather than on ctx.static, whose staticContext
// is freshly re-derived via withStatic() on every single element and so
// would discard the definition before the next top-level declaration
// could ever see it.
func (b *EventDrivenBuilder) declGlobalVariable(ctx *ElementContext, precedence, declIndex int) error {
	decl, err := b.buildGlobalVariable(ctx, precedence, declIndex)
	if err != nil {
		return err
	}
	return b.sheet.AddVariable(decl)
}

// buildGlobalVariable compiles a top-level xsl:variable/xsl:param
// without registering it, the same split buildTemplate uses so
// xsl:override's nested xsl:variable/xsl:param children (spec.md §4.7)
// can share this logic.
func (b *EventDrivenBuilder) buildGlobalVariable(ctx *ElementContext, precedence, declIndex int) (*VariableDecl, error) {
	nameSrc, err := ctx.requiredPlain("name")
	if err != nil {
		return nil, err
	}
	qn, err := resolveQName(ctx.scope, nameSrc, ctx.Loc, true)
	if err != nil {
		return nil, err
	}
	decl := &VariableDecl{
		Name: qn, Body: ctx.Children, IsParam: ctx.Local == "param",
		Precedence: precedence, DeclIndex: declIndex, Loc: ctx.Loc,
	}
	if selectSrc, ok := ctx.plain("select"); ok {
		decl.SelectSrc = selectSrc
		expr, err := ctx.facade.compile(selectSrc, ctx.Loc)
		if err != nil {
			return nil, err
		}
		decl.Select = expr
	}
	if raw, ok := ctx.plain("required"); ok {
		v, err := parseYesNo(raw, ctx.Loc, "required")
		if err != nil {
			return nil, err
		}
		decl.Required = v
	}
	if raw, ok := ctx.plain("static"); ok {
		isStatic, err := parseYesNo(raw, ctx.Loc, "static")
		if err != nil {
			return nil, err
		}
		if isStatic && decl.Select != nil {
			decl.Static = decl.Select
			b.facade.defineStaticVariable(qn.Name, decl.Select)
		}
	}
	if raw, ok := ctx.plain("visibility"); ok {
		decl.Visibility = raw
	}
	return decl, nil
}

// declFunction compiles xsl:function (spec.md §4.5), keyed by
// (name, arity) the way a call to it must be resolved.
func (b *EventDrivenBuilder) declFunction(ctx *ElementContext, precedence, declIndex int) error {
	decl, err := b.buildFunction(ctx, precedence, declIndex)
	if err != nil {
		return err
	}
	return b.sheet.AddFunction(decl)
}

// buildFunction compiles an xsl:function without registering it,
// shared with xsl:override's nested xsl:function children (spec.md
// §4.7).
func (b *EventDrivenBuilder) buildFunction(ctx *ElementContext, precedence, declIndex int) (*FunctionDecl, error) {
	nameSrc, err := ctx.requiredPlain("name")
	if err != nil {
		return nil, err
	}
	qn, err := resolveQName(ctx.scope, nameSrc, ctx.Loc, true)
	if err != nil {
		return nil, err
	}
	params, body := splitParamsAndBody(ctx.Children)
	decl := &FunctionDecl{
		Name: qn, Params: params, Body: body, Precedence: precedence, DeclIndex: declIndex, Loc: ctx.Loc,
	}
	if asType, ok := ctx.plain("as"); ok {
		decl.AsType = asType
	}
	if raw, ok := ctx.plain("override"); ok {
		v, err := parseYesNo(raw, ctx.Loc, "override")
		if err != nil {
			return nil, err
		}
		decl.Override = v
	}
	if raw, ok := ctx.plain("visibility"); ok {
		decl.Visibility = raw
	}
	return decl, nil
}

// declKey compiles one xsl:key match/use pair (spec.md §4.5). This core
// only supports the attribute form (match + use as an XPath string),
// never the content-sequence-constructor alternative XSLT 3.0 also
// permits in place of 'use' — documented in DESIGN.md as a deliberate
// simplification.
func (b *EventDrivenBuilder) declKey(ctx *ElementContext, precedence int) error {
	nameSrc, err := ctx.requiredPlain("name")
	if err != nil {
		return err
	}
	qn, err := resolveQName(ctx.scope, nameSrc, ctx.Loc, true)
	if err != nil {
		return err
	}
	matchSrc, err := ctx.requiredPlain("match")
	if err != nil {
		return err
	}
	pat, err := compilePattern(ctx.facade, matchSrc, ctx.Loc, ctx.Version, ctx.scope, ctx.XPathDefaultNS)
	if err != nil {
		return err
	}
	useSrc, err := ctx.requiredPlain("use")
	if err != nil {
		return err
	}
	expr, err := ctx.facade.compile(useSrc, ctx.Loc)
	if err != nil {
		return err
	}
	decl := &KeyDecl{Name: qn, Match: pat, MatchSrc: matchSrc, Use: expr, Precedence: precedence, Loc: ctx.Loc}
	if coll, ok := ctx.plain("collation"); ok {
		decl.Collation = coll
	}
	return b.sheet.AddKey(decl)
}

// declAttributeSet compiles xsl:attribute-set (spec.md §4.5); its own
// xsl:attribute children flow through the generic Children mechanism
// and are filtered here since AttributeNode is an ASTNode.
func (b *EventDrivenBuilder) declAttributeSet(ctx *ElementContext, precedence int) error {
	decl, err := b.buildAttributeSet(ctx, precedence)
	if err != nil {
		return err
	}
	return b.sheet.AddAttributeSet(decl)
}

// buildAttributeSet compiles an xsl:attribute-set without registering
// it, shared with xsl:override's nested xsl:attribute-set children
// (spec.md §4.7).
func (b *EventDrivenBuilder) buildAttributeSet(ctx *ElementContext, precedence int) (*AttributeSetDecl, error) {
	nameSrc, err := ctx.requiredPlain("name")
	if err != nil {
		return nil, err
	}
	qn, err := resolveQName(ctx.scope, nameSrc, ctx.Loc, true)
	if err != nil {
		return nil, err
	}
	var attrs []AttributeNode
	for _, child := range ctx.Children {
		if a, ok := child.(*AttributeNode); ok {
			attrs = append(attrs, *a)
		}
	}
	decl := &AttributeSetDecl{Name: qn, Attributes: attrs, Precedence: precedence, Loc: ctx.Loc}
	if raw, ok := ctx.stdPlain("use-attribute-sets"); ok {
		refs, err := resolveQNameList(ctx.scope, raw, ctx.Loc)
		if err != nil {
			return nil, err
		}
		decl.UseAttributeSets = refs
		for _, ref := range refs {
			b.sheet.ReferenceAttributeSet(ref, ctx.Loc)
		}
	}
	if raw, ok := ctx.plain("visibility"); ok {
		decl.Visibility = raw
	}
	return decl, nil
}

// declCharacterMap compiles xsl:character-map; its rune table was
// accumulated onto ctx.CharMappings by the xsl:output-character
// special-case in ElementEnd (spec.md §4.5).
func (b *EventDrivenBuilder) declCharacterMap(ctx *ElementContext) error {
	nameSrc, err := ctx.requiredPlain("name")
	if err != nil {
		return err
	}
	qn, err := resolveQName(ctx.scope, nameSrc, ctx.Loc, true)
	if err != nil {
		return err
	}
	decl := &CharacterMapDecl{Name: qn, Mappings: ctx.CharMappings, Loc: ctx.Loc}
	if raw, ok := ctx.plain("use-character-maps"); ok {
		refs, err := resolveQNameList(ctx.scope, raw, ctx.Loc)
		if err != nil {
			return err
		}
		decl.UseCharacterMaps = refs
	}
	return b.sheet.AddCharacterMap(decl)
}

// declAccumulator compiles xsl:accumulator (XSLT 3.0, spec.md §4.5);
// its xsl:accumulator-rule children are AST nodes filtered out of
// Children.
func (b *EventDrivenBuilder) declAccumulator(ctx *ElementContext) error {
	nameSrc, err := ctx.requiredPlain("name")
	if err != nil {
		return err
	}
	qn, err := resolveQName(ctx.scope, nameSrc, ctx.Loc, true)
	if err != nil {
		return err
	}
	decl := &AccumulatorDecl{Name: qn, Loc: ctx.Loc}
	if raw, ok := ctx.plain("streamable"); ok {
		v, err := parseYesNo(raw, ctx.Loc, "streamable")
		if err != nil {
			return err
		}
		decl.Streamable = v
	}
	if raw, ok := ctx.plain("initial-value"); ok {
		expr, err := ctx.facade.compile(raw, ctx.Loc)
		if err != nil {
			return err
		}
		decl.InitialValue = expr
	}
	for _, child := range ctx.Children {
		if r, ok := child.(*AccumulatorRuleNode); ok {
			decl.Rules = append(decl.Rules, *r)
		}
	}
	return b.sheet.AddAccumulator(decl)
}

// declDecimalFormat compiles xsl:decimal-format (spec.md §4.5),
// starting from the built-in defaults and overriding only the
// attributes actually present.
func (b *EventDrivenBuilder) declDecimalFormat(ctx *ElementContext) error {
	decl := defaultDecimalFormatDecl()
	decl.Loc = ctx.Loc
	if nameSrc, ok := ctx.plain("name"); ok {
		qn, err := resolveQName(ctx.scope, nameSrc, ctx.Loc, true)
		if err != nil {
			return err
		}
		decl.Name = qn
	}
	runeAttrs := map[string]*rune{
		"decimal-separator": &decl.DecimalSeparator, "grouping-separator": &decl.GroupingSeparator,
		"minus-sign": &decl.MinusSign, "percent": &decl.Percent, "per-mille": &decl.PerMille,
		"zero-digit": &decl.ZeroDigit, "digit": &decl.Digit, "pattern-separator": &decl.PatternSeparator,
		"exponent-separator": &decl.Exponent,
	}
	for name, dst := range runeAttrs {
		if raw, ok := ctx.plain(name); ok {
			runes := []rune(raw)
			if len(runes) != 1 {
				return staticErr(ctx.Loc, XTSE1300, "%s: must be exactly one character", name)
			}
			*dst = runes[0]
		}
	}
	if raw, ok := ctx.plain("infinity"); ok {
		decl.Infinity = raw
	}
	if raw, ok := ctx.plain("NaN"); ok {
		decl.NaN = raw
	}
	return b.sheet.AddDecimalFormat(decl)
}

// declOutput compiles xsl:output (spec.md §4.5), starting from the
// default serialization parameters and overriding only what was given;
// cdata-section-elements/use-character-maps are both QName lists.
func (b *EventDrivenBuilder) declOutput(ctx *ElementContext) error {
	decl := defaultOutputDecl()
	decl.Loc = ctx.Loc
	if nameSrc, ok := ctx.plain("name"); ok {
		qn, err := resolveQName(ctx.scope, nameSrc, ctx.Loc, true)
		if err != nil {
			return err
		}
		decl.Name = qn
	}
	if raw, ok := ctx.plain("method"); ok {
		decl.Method = raw
	}
	if raw, ok := ctx.plain("encoding"); ok {
		decl.Encoding = raw
	}
	if raw, ok := ctx.plain("version"); ok {
		decl.Version = raw
	}
	if raw, ok := ctx.plain("standalone"); ok {
		decl.Standalone = raw
	}
	if raw, ok := ctx.plain("media-type"); ok {
		decl.MediaType = raw
	}
	if raw, ok := ctx.plain("indent"); ok {
		v, err := parseYesNo(raw, ctx.Loc, "indent")
		if err != nil {
			return err
		}
		decl.Indent = v
	}
	if raw, ok := ctx.plain("omit-xml-declaration"); ok {
		v, err := parseYesNo(raw, ctx.Loc, "omit-xml-declaration")
		if err != nil {
			return err
		}
		decl.OmitProlog = v
	}
	if raw, ok := ctx.plain("cdata-section-elements"); ok {
		names, err := resolveQNameList(ctx.scope, raw, ctx.Loc)
		if err != nil {
			return err
		}
		decl.CDataElements = names
	}
	if raw, ok := ctx.plain("use-character-maps"); ok {
		names, err := resolveQNameList(ctx.scope, raw, ctx.Loc)
		if err != nil {
			return err
		}
		decl.UseCharacterMaps = names
	}
	return b.sheet.AddOutput(decl)
}

func (b *EventDrivenBuilder) declNamespaceAlias(ctx *ElementContext) error {
	stylesheetPfx, err := ctx.requiredPlain("stylesheet-prefix")
	if err != nil {
		return err
	}
	resultPfx, err := ctx.requiredPlain("result-prefix")
	if err != nil {
		return err
	}
	stylesheetURI, err := aliasPrefixURI(ctx, stylesheetPfx)
	if err != nil {
		return err
	}
	resultURI, err := aliasPrefixURI(ctx, resultPfx)
	if err != nil {
		return err
	}
	b.sheet.AddNamespaceAlias(stylesheetURI, resultURI)
	return nil
}

func aliasPrefixURI(ctx *ElementContext, prefix string) (string, error) {
	if prefix == "#default" {
		prefix = ""
	}
	uri, ok := ctx.resolvePrefix(prefix)
	if !ok {
		return "", staticErr(ctx.Loc, XTSE0280, "%s: undeclared namespace prefix", prefix)
	}
	return uri, nil
}

// declSchemaImport records xsl:import-schema (spec.md §4.5). When a
// schema-location is given and a Linker is configured, the resource is
// fetched through Linker.ResolveSchema (xslt/schema.go) so an
// unreachable schema still surfaces as a static error; without a
// Linker it is recorded unresolved, matching xsl:include/xsl:import's
// own "no linker configured" tolerance for compile sessions that never
// exercise cross-resource resolution. xsl:import-schema's own inline
// xs:schema child (state=stateInlineSchema) is consumed by
// ElementStart/ElementEnd's schema-depth bookkeeping and never reaches
// Children.
func (b *EventDrivenBuilder) declSchemaImport(ctx *ElementContext) error {
	imp := &SchemaImport{Loc: ctx.Loc}
	if raw, ok := ctx.plain("namespace"); ok {
		imp.Namespace = raw
	}
	if raw, ok := ctx.plain("schema-location"); ok {
		imp.SchemaLocation = raw
		if b.linker != nil {
			grammar, err := b.linker.ResolveSchema(raw, ctx.BaseURI, ctx.Loc)
			if err != nil {
				return err
			}
			imp.Grammar = grammar
		}
	}
	b.sheet.AddSchemaImport(imp)
	return nil
}

// declSpaceRule compiles one xsl:strip-space/xsl:preserve-space
// declaration. Its 'elements' attribute is a whitespace-separated list
// of element-name patterns (spec.md §4.5); this core compiles each
// token independently as its own match pattern rather than the fuller
// quoted-NameTest micro-syntax the spec describes, documented in
// DESIGN.md.
func (b *EventDrivenBuilder) declSpaceRule(ctx *ElementContext, preserve bool) error {
	name := "xsl:strip-space"
	if preserve {
		name = "xsl:preserve-space"
	}
	if len(ctx.Children) != 0 {
		return staticErr(ctx.Loc, XTSE0260, "%s: must be empty", name)
	}
	raw, err := ctx.requiredPlain("elements")
	if err != nil {
		return err
	}
	for _, tok := range strings.Fields(raw) {
		pat, err := compilePattern(ctx.facade, tok, ctx.Loc, ctx.Version, ctx.scope, ctx.XPathDefaultNS)
		if err != nil {
			return err
		}
		rule := StripSpaceRule{Match: pat, MatchSrc: tok, Loc: ctx.Loc}
		if preserve {
			b.sheet.AddPreserveSpace(rule)
		} else {
			b.sheet.AddStripSpace(rule)
		}
	}
	return nil
}

// declMode compiles xsl:mode (XSLT 3.0, spec.md §4.5).
func (b *EventDrivenBuilder) declMode(ctx *ElementContext) error {
	name := ""
	if raw, ok := ctx.plain("name"); ok && raw != "#default" {
		qn, err := resolveQName(ctx.scope, raw, ctx.Loc, true)
		if err != nil {
			return err
		}
		name = clark(qn)
	}
	return b.sheet.AddMode(name, ctx.Loc, func(m *ModeDecl) {
		if raw, ok := ctx.plain("streamable"); ok {
			if v, err := parseYesNo(raw, ctx.Loc, "streamable"); err == nil {
				m.Streamable = v
			}
		}
		if raw, ok := ctx.plain("on-no-match"); ok {
			m.OnNoMatch = parseNoMatchBehavior(raw)
		}
		if raw, ok := ctx.plain("on-multiple-match"); ok {
			m.OnMultipleMatch = parseMultiMatchBehavior(raw)
		}
		if raw, ok := ctx.plain("warning-on-no-match"); ok {
			if v, err := parseYesNo(raw, ctx.Loc, "warning-on-no-match"); err == nil {
				m.WarnOnNoMatch = v
			}
		}
		if raw, ok := ctx.plain("warning-on-multiple-match"); ok {
			if v, err := parseYesNo(raw, ctx.Loc, "warning-on-multiple-match"); err == nil {
				m.WarnOnMultipleMatch = v
			}
		}
	})
}

func parseNoMatchBehavior(raw string) NoMatchBehavior {
	switch raw {
	case "deep-copy":
		return NoMatchDeepCopy
	case "shallow-copy":
		return NoMatchShallowCopy
	case "deep-skip":
		return NoMatchDeepSkip
	case "shallow-skip":
		return NoMatchShallowSkip
	case "text-only-copy":
		return NoMatchTextOnlyCopy
	case "fail":
		return NoMatchFail
	default:
		return NoMatchDeepCopy
	}
}

func parseMultiMatchBehavior(raw string) MultiMatchBehavior {
	if raw == "fail" {
		return MultiMatchFail
	}
	return MultiMatchUseLast
}

// declIncludeImport resolves one xsl:include/xsl:import via b.linker
// (spec.md §6) and folds its declarations into this build at an
// adjusted precedence: xsl:include's contributed module keeps the
// including module's own precedence value (as if textually inlined),
// while xsl:import's contributed module gets a strictly lower one, so
// higher-precedence declarations already registered continue to win
// ties in StylesheetBuilder's own per-declaration merge logic. This is
// a deliberate simplification of the full multi-level import-precedence
// algebra (spec.md §4.8 names a total order across an entire import
// tree; here importing module B of an already-imported module A always
// sits one level below A, rather than preserving B's own internal tree
// shape) — documented in DESIGN.md.
func (b *EventDrivenBuilder) declIncludeImport(ctx *ElementContext, declIndex int) error {
	if b.linker == nil {
		return staticErr(ctx.Loc, XTSE0010, "%s: no linker configured to resolve included/imported stylesheets", ctx.Local)
	}
	href, err := ctx.requiredPlain("href")
	if err != nil {
		return err
	}
	if ctx.Local == "import" {
		// Buffered rather than resolved here: sibling xsl:import hrefs
		// are independent fetches, resolved together by
		// flushPendingImports the moment this module moves on to its
		// first non-import top-level declaration (or reaches the end of
		// the module, via Seal's own flush).
		b.pendingImports = append(b.pendingImports, pendingImport{href: href, baseURI: ctx.BaseURI, loc: ctx.Loc})
		return nil
	}
	imported, err := b.linker.Resolve(href, ctx.BaseURI, ctx.Loc)
	if err != nil {
		return err
	}
	b.mergeExternal(imported, false)
	return nil
}

// pendingImport is one buffered, not-yet-resolved xsl:import href.
type pendingImport struct {
	href    string
	baseURI string
	loc     Location
}

// flushPendingImports resolves every buffered xsl:import concurrently
// via errgroup -- sibling imports name independent resources with no
// data dependency between them -- then merges their declarations back
// into this build in document order, so the actual precedence
// assignment and StylesheetBuilder mutation (mergeExternal) stays
// single-threaded and deterministic no matter which fetch finishes
// first.
func (b *EventDrivenBuilder) flushPendingImports() error {
	pending := b.pendingImports
	b.pendingImports = nil
	if len(pending) == 0 {
		return nil
	}
	resolved := make([]*CompiledStylesheet, len(pending))
	grp, _ := errgroup.WithContext(context.Background())
	for i, imp := range pending {
		i, imp := i, imp
		grp.Go(func() error {
			sheet, err := b.linker.Resolve(imp.href, imp.baseURI, imp.loc)
			if err != nil {
				return err
			}
			resolved[i] = sheet
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return err
	}
	for _, sheet := range resolved {
		b.mergeExternal(sheet, true)
	}
	return nil
}

// mergeExternal folds an already-compiled external module's
// declarations into this build's StylesheetBuilder, adjusting
// precedence per declIncludeImport's contract above.
func (b *EventDrivenBuilder) mergeExternal(sheet *CompiledStylesheet, isImport bool) {
	precedence := b.ownPrecedence()
	if isImport {
		precedence--
	}

	for _, m := range sheet.Modes {
		for _, rule := range m.Rules {
			clone := *rule
			clone.Precedence = precedence
			clone.DeclIndex = b.sheet.nextDeclIndex()
			b.sheet.AddTemplate(&clone)
		}
	}
	for _, t := range sheet.NamedTemplates {
		if t.Match != nil {
			continue
		}
		clone := *t
		clone.Precedence = precedence
		clone.DeclIndex = b.sheet.nextDeclIndex()
		b.sheet.AddTemplate(&clone)
	}
	for _, v := range sheet.GlobalVariables {
		clone := *v
		clone.Precedence = precedence
		clone.DeclIndex = b.sheet.nextDeclIndex()
		b.sheet.AddVariable(&clone)
	}
	for _, fn := range sheet.Functions {
		clone := *fn
		clone.Precedence = precedence
		clone.DeclIndex = b.sheet.nextDeclIndex()
		b.sheet.AddFunction(&clone)
	}
	for _, ks := range sheet.Keys {
		for _, k := range ks {
			clone := *k
			clone.Precedence = precedence
			b.sheet.AddKey(&clone)
		}
	}
	for _, as := range sheet.AttributeSets {
		clone := *as
		clone.Precedence = precedence
		b.sheet.AddAttributeSet(&clone)
	}
	for _, cm := range sheet.CharacterMaps {
		b.sheet.AddCharacterMap(cm)
	}
	for _, acc := range sheet.Accumulators {
		b.sheet.AddAccumulator(acc)
	}
	for _, df := range sheet.DecimalFormats {
		if df.Name.Name == "" && df.Name.Uri == "" {
			continue
		}
		b.sheet.AddDecimalFormat(df)
	}
	for uri, alias := range sheet.NamespaceAliases {
		b.sheet.AddNamespaceAlias(uri, alias)
	}
	for _, si := range sheet.SchemaImports {
		b.sheet.AddSchemaImport(si)
	}
	for _, rule := range sheet.StripSpace {
		b.sheet.AddStripSpace(rule)
	}
	for _, rule := range sheet.PreserveSpace {
		b.sheet.AddPreserveSpace(rule)
	}
	for key, out := range sheet.Outputs {
		if key == "" {
			continue
		}
		b.sheet.AddOutput(out)
	}
}
