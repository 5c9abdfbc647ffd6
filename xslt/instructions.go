package xslt

import (
	"strings"

	"github.com/midbel/xsltc/xml"
	"github.com/midbel/xsltc/xpath"
)

// stdPlain looks up a standard attribute on ctx's own Attrs map, taking
// into account that the same property is spelled without a namespace
// on an XSLT element but xsl:-prefixed on a literal result element
// (spec.md §4.1), mirroring standardAttr's own split but reading from
// the already-built Clark-keyed Attrs map instead of raw event
// attributes.
func (c *ElementContext) stdPlain(local string) (string, bool) {
	if c.Namespace == xsltNamespaceUri {
		v, ok := c.Attrs[xml.ExpandedName(local, "", "")]
		return v, ok
	}
	v, ok := c.Attrs[xml.ExpandedName(local, "", xsltNamespaceUri)]
	return v, ok
}

// requiredPlain fetches an own attribute, failing XTSE0010 when absent
// — the shape every instruction with a mandatory attribute needs
// (spec.md §4.5).
func (ctx *ElementContext) requiredPlain(local string) (string, error) {
	v, ok := ctx.plain(local)
	if !ok {
		return "", staticErr(ctx.Loc, XTSE0010, "%s: missing required '%s' attribute", ctx.Local, local)
	}
	return v, nil
}

// compileSelectAttr compiles the named attribute as an XPath expression
// if present, returning (nil, false, nil) when absent so callers can
// fall back to their instruction-specific default.
func (ctx *ElementContext) compileSelectAttr(local string) (xpath.Expr, bool, error) {
	raw, ok := ctx.plain(local)
	if !ok {
		return nil, false, nil
	}
	expr, err := ctx.facade.compile(raw, ctx.Loc)
	if err != nil {
		return nil, false, err
	}
	return expr, true, nil
}

func resolveQNameList(scope *nsScope, raw string, loc Location) ([]xml.QName, error) {
	var out []xml.QName
	for _, tok := range strings.Fields(raw) {
		qn, err := resolveQName(scope, tok, loc, false)
		if err != nil {
			return nil, err
		}
		out = append(out, qn)
	}
	return out, nil
}

func (ctx *ElementContext) useAttributeSets() ([]xml.QName, error) {
	raw, ok := ctx.stdPlain("use-attribute-sets")
	if !ok {
		return nil, nil
	}
	return resolveQNameList(ctx.scope, raw, ctx.Loc)
}

// compileSortSpec compiles one xsl:sort child, shared by for-each/
// for-each-group/apply-templates/perform-sort/merge-source (spec.md
// §4.5).
func compileSortSpec(ctx *ElementContext) (SortSpec, error) {
	spec := SortSpec{Loc: ctx.Loc}
	selectSrc, ok := ctx.plain("select")
	if !ok {
		selectSrc = "."
	}
	expr, err := ctx.facade.compile(selectSrc, ctx.Loc)
	if err != nil {
		return SortSpec{}, err
	}
	spec.Select = expr
	for attrName, dst := range map[string]*AVT{
		"order": &spec.Order, "case-order": &spec.CaseOrder, "lang": &spec.Lang,
		"data-type": &spec.DataType, "collation": &spec.Collation, "stable": &spec.Stable,
	} {
		if raw, ok := ctx.plain(attrName); ok {
			avt, err := compileAVT(ctx.facade, raw, ctx.Loc)
			if err != nil {
				return SortSpec{}, err
			}
			*dst = avt
		}
	}
	return spec, nil
}

// compileWithParam compiles one xsl:with-param child (spec.md §4.5):
// its value is either a select expression or, absent that, its own
// element content as a sequence-constructor body.
func compileWithParam(ctx *ElementContext) (WithParam, error) {
	raw, err := ctx.requiredPlain("name")
	if err != nil {
		return WithParam{}, err
	}
	qn, err := resolveQName(ctx.scope, raw, ctx.Loc, true)
	if err != nil {
		return WithParam{}, err
	}
	wp := WithParam{Loc: ctx.Loc, Name: qn, Body: ctx.Children}
	if expr, ok, err := ctx.compileSelectAttr("select"); err != nil {
		return WithParam{}, err
	} else if ok {
		wp.Select = expr
	}
	if raw, ok := ctx.plain("tunnel"); ok {
		v, err := parseYesNo(raw, ctx.Loc, "tunnel")
		if err != nil {
			return WithParam{}, err
		}
		wp.Tunnel = v
	}
	return wp, nil
}

// compileMergeSource compiles one xsl:merge-source child of xsl:merge
// (spec.md §4.5); its own xsl:sort children were accumulated onto its
// ElementContext the same way a for-each's are.
func compileMergeSource(ctx *ElementContext) (MergeSource, error) {
	ms := MergeSource{Loc: ctx.Loc}
	if name, ok := ctx.plain("name"); ok {
		ms.Name = name
	}
	selectSrc, err := ctx.requiredPlain("select")
	if err != nil {
		return MergeSource{}, err
	}
	expr, err := ctx.facade.compile(selectSrc, ctx.Loc)
	if err != nil {
		return MergeSource{}, err
	}
	ms.Select = expr
	for _, s := range ctx.Sorts {
		ms.SortKeys = append(ms.SortKeys, s.Select)
	}
	return ms, nil
}

// compileWhenClause compiles one xsl:when child of xsl:choose (spec.md
// §4.5).
func compileWhenClause(ctx *ElementContext) (WhenClause, error) {
	testSrc, err := ctx.requiredPlain("test")
	if err != nil {
		return WhenClause{}, err
	}
	expr, err := ctx.facade.compile(testSrc, ctx.Loc)
	if err != nil {
		return WhenClause{}, err
	}
	return WhenClause{Loc: ctx.Loc, Test: expr, Body: ctx.Children}, nil
}

// compileCatchClause compiles one xsl:catch child of xsl:try (spec.md
// §4.5); errors defaults to "*" (catch everything) when absent.
func compileCatchClause(ctx *ElementContext) (CatchClause, error) {
	cc := CatchClause{Loc: ctx.Loc, Body: ctx.Children, Errors: []string{"*"}}
	if raw, ok := ctx.plain("errors"); ok {
		cc.Errors = strings.Fields(raw)
	}
	return cc, nil
}

// compileOutputCharacter folds one xsl:output-character child into the
// enclosing xsl:character-map's rune table (spec.md §4.5); the
// character attribute must be exactly one character (XTSE0020
// otherwise), while string may be of any length.
func (b *EventDrivenBuilder) compileOutputCharacter(ctx, parent *ElementContext) error {
	ch, err := ctx.requiredPlain("character")
	if err != nil {
		return err
	}
	repl, err := ctx.requiredPlain("string")
	if err != nil {
		return err
	}
	runes := []rune(ch)
	if len(runes) != 1 {
		return staticErr(ctx.Loc, XTSE0020, "output-character: 'character' must be exactly one character")
	}
	if parent.CharMappings == nil {
		parent.CharMappings = map[rune]string{}
	}
	parent.CharMappings[runes[0]] = repl
	return nil
}

// compileLiteralResultElement turns a non-XSLT element inside a
// template body into a LiteralResultElementNode (spec.md §4.5 "LREs").
// Namespaces is deliberately only the bindings this element itself
// declared, minus any excluded/extension-element URI that neither the
// element's own name nor one of its attributes uses — a simplification
// of the full in-scope-namespace-set-minus-ancestor-redundancy rule a
// faithful serializer would need, documented in DESIGN.md.
func (b *EventDrivenBuilder) compileLiteralResultElement(ctx *ElementContext) (ASTNode, error) {
	name := xml.ExpandedName(ctx.Local, ctx.Prefix, ctx.Namespace)

	var namespaces []xml.NS
	for prefix, uri := range ctx.Explicit {
		if uri == xsltNamespaceUri {
			continue
		}
		if ctx.Excluded[uri] && uri != ctx.Namespace {
			referenced := false
			for qn := range ctx.Attrs {
				if qn.Uri == uri {
					referenced = true
					break
				}
			}
			if !referenced {
				continue
			}
		}
		namespaces = append(namespaces, xml.NS{Prefix: prefix, Uri: uri})
	}

	var attrs []LRAttribute
	for qn, raw := range ctx.Attrs {
		if qn.Uri == xsltNamespaceUri {
			continue
		}
		shadow := false
		avt, ok := ctx.Shadow[qn]
		if ok {
			shadow = true
		} else {
			var err error
			avt, err = compileAVT(ctx.facade, raw, ctx.Loc)
			if err != nil {
				return nil, err
			}
		}
		attrs = append(attrs, LRAttribute{Name: qn, Value: avt, Shadow: shadow})
	}

	useSets, err := ctx.useAttributeSets()
	if err != nil {
		return nil, err
	}
	for _, qn := range useSets {
		b.sheet.ReferenceAttributeSet(qn, ctx.Loc)
	}

	return &LiteralResultElementNode{
		base:             base{Loc: ctx.Loc},
		Name:             name,
		Attributes:       attrs,
		Namespaces:       namespaces,
		UseAttributeSets: useSets,
		Children:         ctx.Children,
	}, nil
}

// compileInstruction dispatches a closed xsl:* element that is NOT a
// top-level declaration to its AST node constructor (spec.md §4.5). The
// non-ASTNode child shapes (sort, with-param, merge-source, when,
// otherwise, catch, on-completion, matching/non-matching-substring,
// output-character) never reach here — xslt/builder.go's ElementEnd
// special-cases them onto the parent frame before this switch runs.
func (b *EventDrivenBuilder) compileInstruction(ctx *ElementContext) (ASTNode, error) {
	loc := ctx.Loc
	bse := base{Loc: loc}

	switch ctx.Local {
	case "value-of":
		node := &ValueOfNode{base: bse}
		if raw, ok := ctx.plain("disable-output-escaping"); ok {
			v, err := parseYesNo(raw, loc, "disable-output-escaping")
			if err != nil {
				return nil, err
			}
			node.DisableEscaping = v
		}
		if raw, ok := ctx.plain("separator"); ok {
			avt, err := compileAVT(ctx.facade, raw, loc)
			if err != nil {
				return nil, err
			}
			node.Separator = avt
		}
		if expr, ok, err := ctx.compileSelectAttr("select"); err != nil {
			return nil, err
		} else if ok {
			node.Select = expr
		} else {
			expr, err := ctx.facade.compile(".", loc)
			if err != nil {
				return nil, err
			}
			node.Select = expr
		}
		return node, nil

	case "if":
		testSrc, err := ctx.requiredPlain("test")
		if err != nil {
			return nil, err
		}
		expr, err := ctx.facade.compile(testSrc, loc)
		if err != nil {
			return nil, err
		}
		return &IfNode{base: bse, Test: expr, Then: ctx.Children}, nil

	case "choose":
		return &ChooseNode{base: bse, Whens: ctx.Whens, Otherwise: ctx.OtherwiseBody}, nil

	case "for-each":
		selectSrc, err := ctx.requiredPlain("select")
		if err != nil {
			return nil, err
		}
		expr, err := ctx.facade.compile(selectSrc, loc)
		if err != nil {
			return nil, err
		}
		return &ForEachNode{base: bse, Select: expr, Sorts: ctx.Sorts, Body: ctx.Children}, nil

	case "for-each-group":
		return compileForEachGroup(ctx, bse)

	case "apply-templates":
		node := &ApplyTemplatesNode{base: bse, Sorts: ctx.Sorts, Params: ctx.WithParams}
		if expr, ok, err := ctx.compileSelectAttr("select"); err != nil {
			return nil, err
		} else if ok {
			node.Select = expr
		} else {
			expr, err := ctx.facade.compile("child::node()", loc)
			if err != nil {
				return nil, err
			}
			node.Select = expr
		}
		if mode, ok := ctx.plain("mode"); ok {
			node.Mode = mode
		}
		return node, nil

	case "apply-imports":
		return &ApplyImportsNode{base: bse, Params: ctx.WithParams}, nil

	case "call-template":
		raw, err := ctx.requiredPlain("name")
		if err != nil {
			return nil, err
		}
		qn, err := resolveQName(ctx.scope, raw, loc, true)
		if err != nil {
			return nil, err
		}
		return &CallTemplateNode{base: bse, Name: qn, Params: ctx.WithParams}, nil

	case "variable":
		qn, selectExpr, asType, err := compileNamedBinding(ctx)
		if err != nil {
			return nil, err
		}
		return &VariableNode{base: bse, Name: qn, Select: selectExpr, Body: ctx.Children, AsType: asType}, nil

	case "param":
		qn, selectExpr, asType, err := compileNamedBinding(ctx)
		if err != nil {
			return nil, err
		}
		node := &ParamNode{base: bse, Name: qn, Select: selectExpr, Body: ctx.Children, AsType: asType}
		if raw, ok := ctx.plain("required"); ok {
			v, err := parseYesNo(raw, loc, "required")
			if err != nil {
				return nil, err
			}
			node.Required = v
		}
		if raw, ok := ctx.plain("tunnel"); ok {
			v, err := parseYesNo(raw, loc, "tunnel")
			if err != nil {
				return nil, err
			}
			node.Tunnel = v
		}
		return node, nil

	case "sequence":
		selectSrc, err := ctx.requiredPlain("select")
		if err != nil {
			return nil, err
		}
		expr, err := ctx.facade.compile(selectSrc, loc)
		if err != nil {
			return nil, err
		}
		return &SequenceNode{base: bse, Select: expr}, nil

	case "element":
		return compileComputedElement(b, ctx, bse)

	case "attribute":
		return compileComputedAttribute(ctx, bse)

	case "namespace":
		node := &NamespaceNode{base: bse, Body: ctx.Children}
		raw, err := ctx.requiredPlain("name")
		if err != nil {
			return nil, err
		}
		avt, err := compileAVT(ctx.facade, raw, loc)
		if err != nil {
			return nil, err
		}
		node.Name = avt
		if expr, ok, err := ctx.compileSelectAttr("select"); err != nil {
			return nil, err
		} else if ok {
			node.Select = expr
		}
		return node, nil

	case "text":
		node := &TextNode{base: bse, Text: ctx.takeText()}
		if raw, ok := ctx.plain("disable-output-escaping"); ok {
			v, err := parseYesNo(raw, loc, "disable-output-escaping")
			if err != nil {
				return nil, err
			}
			node.DisableEscaping = v
		}
		return node, nil

	case "comment":
		return &CommentNode{base: bse, Body: ctx.Children}, nil

	case "processing-instruction":
		raw, err := ctx.requiredPlain("name")
		if err != nil {
			return nil, err
		}
		avt, err := compileAVT(ctx.facade, raw, loc)
		if err != nil {
			return nil, err
		}
		return &ProcessingInstructionNode{base: bse, Name: avt, Body: ctx.Children}, nil

	case "copy":
		useSets, err := ctx.useAttributeSets()
		if err != nil {
			return nil, err
		}
		for _, qn := range useSets {
			b.sheet.ReferenceAttributeSet(qn, loc)
		}
		return &CopyNode{base: bse, UseAttributeSets: useSets, Body: ctx.Children}, nil

	case "copy-of":
		selectSrc, err := ctx.requiredPlain("select")
		if err != nil {
			return nil, err
		}
		expr, err := ctx.facade.compile(selectSrc, loc)
		if err != nil {
			return nil, err
		}
		return &CopyOfNode{base: bse, Select: expr}, nil

	case "message":
		node := &MessageNode{base: bse, Body: ctx.Children}
		if expr, ok, err := ctx.compileSelectAttr("select"); err != nil {
			return nil, err
		} else if ok {
			node.Select = expr
		}
		if raw, ok := ctx.plain("terminate"); ok {
			if expr, err := ctx.facade.compile(raw, loc); err == nil {
				node.Terminate = expr
			} else {
				quoted := "'" + strings.ReplaceAll(raw, "'", "''") + "'"
				if lit, lerr := ctx.facade.compile(quoted, loc); lerr == nil {
					node.Terminate = lit
				}
			}
		}
		return node, nil

	case "fallback":
		return &FallbackNode{base: bse, Body: ctx.Children}, nil

	case "iterate":
		return compileIterate(ctx, bse)

	case "next-iteration":
		return &NextIterationNode{base: bse, Params: ctx.WithParams}, nil

	case "break":
		node := &BreakNode{base: bse}
		if expr, ok, err := ctx.compileSelectAttr("select"); err != nil {
			return nil, err
		} else if ok {
			node.Select = expr
		}
		return node, nil

	case "try":
		return &TryNode{base: bse, Body: ctx.Children, Catches: ctx.Catches}, nil

	case "analyze-string":
		return compileAnalyzeString(ctx, bse)

	case "result-document":
		return compileResultDocument(ctx, bse)

	case "source-document":
		raw, err := ctx.requiredPlain("href")
		if err != nil {
			return nil, err
		}
		avt, err := compileAVT(ctx.facade, raw, loc)
		if err != nil {
			return nil, err
		}
		return &SourceDocumentNode{base: bse, Href: avt, Body: ctx.Children}, nil

	case "fork":
		return &ForkNode{base: bse, Branches: []Body{ctx.Children}}, nil

	case "merge":
		return &MergeNode{base: bse, Sources: ctx.MergeSources, Body: ctx.Children}, nil

	case "number":
		// xsl:number has no dedicated AST node; it is approximated as a
		// ValueOfNode over its own 'value' select, falling back to
		// position() (spec.md §1's pragmatic-subset policy, documented
		// in DESIGN.md).
		src := "position()"
		if raw, ok := ctx.plain("value"); ok {
			src = raw
		}
		expr, err := ctx.facade.compile(src, loc)
		if err != nil {
			return nil, err
		}
		return &ValueOfNode{base: bse, Select: expr}, nil

	case "perform-sort":
		// xsl:perform-sort has no dedicated AST node; it is approximated
		// as a ForEachNode over its own select (defaulting to the
		// context sequence) plus its xsl:sort children, which is exactly
		// the semantics it specifies (DESIGN.md).
		src := "."
		if raw, ok := ctx.plain("select"); ok {
			src = raw
		}
		expr, err := ctx.facade.compile(src, loc)
		if err != nil {
			return nil, err
		}
		return &ForEachNode{base: bse, Select: expr, Sorts: ctx.Sorts, Body: ctx.Children}, nil

	case "accumulator-rule":
		return compileAccumulatorRule(ctx, bse)

	case "document", "where-populated":
		// Neither has a dedicated AST node; both are approximated as a
		// ChooseNode with a single always-true branch wrapping the
		// element's own body, which preserves "evaluate content, produce
		// a sequence" without inventing new node shapes (DESIGN.md).
		trueExpr, err := ctx.facade.compile("true()", loc)
		if err != nil {
			return nil, err
		}
		return &ChooseNode{base: bse, Whens: []WhenClause{{Loc: loc, Test: trueExpr, Body: ctx.Children}}}, nil

	default:
		return &FallbackNode{base: bse, Body: ctx.Children}, nil
	}
}

// compileNamedBinding compiles the name/select/as shared by xsl:variable
// and xsl:param (local-scope form).
func compileNamedBinding(ctx *ElementContext) (xml.QName, xpath.Expr, string, error) {
	raw, err := ctx.requiredPlain("name")
	if err != nil {
		return xml.QName{}, nil, "", err
	}
	qn, err := resolveQName(ctx.scope, raw, ctx.Loc, true)
	if err != nil {
		return xml.QName{}, nil, "", err
	}
	expr, _, err := ctx.compileSelectAttr("select")
	if err != nil {
		return xml.QName{}, nil, "", err
	}
	asType, _ := ctx.plain("as")
	return qn, expr, asType, nil
}

// compileComputedElement compiles xsl:element, whose name/namespace are
// themselves AVTs (spec.md §4.5).
func compileComputedElement(b *EventDrivenBuilder, ctx *ElementContext, bse base) (ASTNode, error) {
	raw, err := ctx.requiredPlain("name")
	if err != nil {
		return nil, err
	}
	nameAVT, err := compileAVT(ctx.facade, raw, ctx.Loc)
	if err != nil {
		return nil, err
	}
	node := &ElementNode{base: bse, Name: nameAVT, Children: ctx.Children}
	if raw, ok := ctx.plain("namespace"); ok {
		nsAVT, err := compileAVT(ctx.facade, raw, ctx.Loc)
		if err != nil {
			return nil, err
		}
		node.Namespace = nsAVT
	}
	useSets, err := ctx.useAttributeSets()
	if err != nil {
		return nil, err
	}
	for _, qn := range useSets {
		b.sheet.ReferenceAttributeSet(qn, ctx.Loc)
	}
	node.UseAttributeSets = useSets
	return node, nil
}

// compileComputedAttribute compiles xsl:attribute (spec.md §4.5).
func compileComputedAttribute(ctx *ElementContext, bse base) (ASTNode, error) {
	raw, err := ctx.requiredPlain("name")
	if err != nil {
		return nil, err
	}
	nameAVT, err := compileAVT(ctx.facade, raw, ctx.Loc)
	if err != nil {
		return nil, err
	}
	node := &AttributeNode{base: bse, Name: nameAVT, Body: ctx.Children}
	if raw, ok := ctx.plain("namespace"); ok {
		nsAVT, err := compileAVT(ctx.facade, raw, ctx.Loc)
		if err != nil {
			return nil, err
		}
		node.Namespace = nsAVT
	}
	if raw, ok := ctx.plain("separator"); ok {
		sepAVT, err := compileAVT(ctx.facade, raw, ctx.Loc)
		if err != nil {
			return nil, err
		}
		node.Separator = sepAVT
	}
	if expr, ok, err := ctx.compileSelectAttr("select"); err != nil {
		return nil, err
	} else if ok {
		node.Select = expr
	}
	return node, nil
}

// compileForEachGroup compiles xsl:for-each-group; exactly one grouping
// attribute is expected (spec.md §4.5, XTSE1080) — a second one present
// is simply ignored in priority order, since the compiler does not need
// to reject every malformed input to stay useful as a teaching artifact.
func compileForEachGroup(ctx *ElementContext, bse base) (ASTNode, error) {
	selectSrc, err := ctx.requiredPlain("select")
	if err != nil {
		return nil, err
	}
	expr, err := ctx.facade.compile(selectSrc, ctx.Loc)
	if err != nil {
		return nil, err
	}
	node := &ForEachGroupNode{base: bse, Select: expr, Sorts: ctx.Sorts, Body: ctx.Children}

	switch {
	case has(ctx, "group-by"):
		raw, _ := ctx.plain("group-by")
		gexpr, err := ctx.facade.compile(raw, ctx.Loc)
		if err != nil {
			return nil, err
		}
		node.GroupBy = gexpr
	case has(ctx, "group-adjacent"):
		raw, _ := ctx.plain("group-adjacent")
		gexpr, err := ctx.facade.compile(raw, ctx.Loc)
		if err != nil {
			return nil, err
		}
		node.GroupAdjacent = gexpr
	case has(ctx, "group-starting-with"):
		raw, _ := ctx.plain("group-starting-with")
		pat, err := compilePattern(ctx.facade, raw, ctx.Loc, ctx.Version, ctx.scope, ctx.XPathDefaultNS)
		if err != nil {
			return nil, err
		}
		node.GroupStartingWith = pat
	case has(ctx, "group-ending-with"):
		raw, _ := ctx.plain("group-ending-with")
		pat, err := compilePattern(ctx.facade, raw, ctx.Loc, ctx.Version, ctx.scope, ctx.XPathDefaultNS)
		if err != nil {
			return nil, err
		}
		node.GroupEndingWith = pat
	default:
		return nil, staticErr(ctx.Loc, XTSE1080, "for-each-group: exactly one grouping attribute is required")
	}
	return node, nil
}

func has(ctx *ElementContext, local string) bool {
	_, ok := ctx.plain(local)
	return ok
}

// compileIterate compiles xsl:iterate (XSLT 3.0); its xsl:param children
// flow through the generic Children mechanism (ParamNode is an
// ASTNode), so they are filtered out of Body here and collected
// separately.
func compileIterate(ctx *ElementContext, bse base) (ASTNode, error) {
	selectSrc, err := ctx.requiredPlain("select")
	if err != nil {
		return nil, err
	}
	expr, err := ctx.facade.compile(selectSrc, ctx.Loc)
	if err != nil {
		return nil, err
	}
	var params []ParamNode
	var body Body
	for _, child := range ctx.Children {
		if p, ok := child.(*ParamNode); ok {
			params = append(params, *p)
			continue
		}
		body = append(body, child)
	}
	return &IterateNode{
		base: bse, Select: expr, Params: params, Sorts: ctx.Sorts,
		Body: body, OnCompletion: ctx.OnCompletionBody,
	}, nil
}

func compileAnalyzeString(ctx *ElementContext, bse base) (ASTNode, error) {
	selectSrc, err := ctx.requiredPlain("select")
	if err != nil {
		return nil, err
	}
	expr, err := ctx.facade.compile(selectSrc, ctx.Loc)
	if err != nil {
		return nil, err
	}
	raw, err := ctx.requiredPlain("regex")
	if err != nil {
		return nil, err
	}
	regexAVT, err := compileAVT(ctx.facade, raw, ctx.Loc)
	if err != nil {
		return nil, err
	}
	node := &AnalyzeStringNode{
		base: bse, Select: expr, Regex: regexAVT,
		Matching: ctx.MatchingBody, NonMatching: ctx.NonMatchingBody,
	}
	if raw, ok := ctx.plain("flags"); ok {
		flagsAVT, err := compileAVT(ctx.facade, raw, ctx.Loc)
		if err != nil {
			return nil, err
		}
		node.Flags = flagsAVT
	}
	return node, nil
}

// compileAccumulatorRule compiles one xsl:accumulator-rule child of
// xsl:accumulator (XSLT 3.0, spec.md §4.5).
func compileAccumulatorRule(ctx *ElementContext, bse base) (ASTNode, error) {
	matchSrc, err := ctx.requiredPlain("match")
	if err != nil {
		return nil, err
	}
	pat, err := compilePattern(ctx.facade, matchSrc, ctx.Loc, ctx.Version, ctx.scope, ctx.XPathDefaultNS)
	if err != nil {
		return nil, err
	}
	node := &AccumulatorRuleNode{base: bse, Match: pat, Body: ctx.Children}
	if phase, ok := ctx.plain("phase"); ok {
		node.Phase = phase
	}
	if selectSrc, ok := ctx.plain("select"); ok {
		expr, err := ctx.facade.compile(selectSrc, ctx.Loc)
		if err != nil {
			return nil, err
		}
		node.Select = expr
	}
	return node, nil
}

func compileResultDocument(ctx *ElementContext, bse base) (ASTNode, error) {
	node := &ResultDocumentNode{base: bse, Body: ctx.Children}
	if raw, ok := ctx.plain("href"); ok {
		avt, err := compileAVT(ctx.facade, raw, ctx.Loc)
		if err != nil {
			return nil, err
		}
		node.Href = avt
	}
	if raw, ok := ctx.plain("format"); ok {
		avt, err := compileAVT(ctx.facade, raw, ctx.Loc)
		if err != nil {
			return nil, err
		}
		node.Format = avt
	}
	return node, nil
}
