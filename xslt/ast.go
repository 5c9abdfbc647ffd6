package xslt

import (
	"github.com/midbel/xsltc/xml"
	"github.com/midbel/xsltc/xpath"
)

// ASTNode is the sum type over every compiled instruction (spec.md §3):
// a closed set of variants, each a small struct carrying its own
// compiled sub-expressions and children, never a partially-resolved
// intermediate form. Grounded on the teacher's own decomposition of
// "one Go type per XSLT element kind" — the teacher expresses that as
// one ExecuteFunc per xml.QName in its executers dispatch table
// (xslt/execute.go); here the same one-per-element-kind axis produces
// a *value* (an AST node) instead of an executed side effect, in the
// same way xslt/pattern.go turned the teacher's Matcher zoo into a
// Pattern zoo for a different concern.
type ASTNode interface {
	astNode()
	Location() Location
}

// base is embedded by every ASTNode variant to carry the one piece of
// state they all need: the source position used in any downstream
// dynamic-error report (spec.md §7).
type base struct {
	Loc Location
}

func (b base) astNode() {}

func (b base) Location() Location { return b.Loc }

// Body is a sequence constructor: an ordered list of instructions whose
// results concatenate (spec.md §3, "sequence of AST nodes").
type Body []ASTNode

// LiteralTextNode is character data emitted verbatim (spec.md §4.1,
// "literal-text"); Preserve records whether xml:space="preserve" (or an
// enclosing xsl:text) requires it survive whitespace stripping.
type LiteralTextNode struct {
	base
	Text     string
	Preserve bool
}

// TextValueTemplateNode is character data scanned as a TVT because an
// ancestor literal result element has expand-text in effect (spec.md
// §4.1/§4.3).
type TextValueTemplateNode struct {
	base
	Template AVT
}

// LiteralResultElementNode is a non-XSLT element inside a template body
// (spec.md §4.5 "LREs"). Namespaces is the output namespace set already
// filtered per spec.md §4.5 (minus xsl:, minus excluded URIs, minus
// extension-element URIs, but never a URI the element or its own
// attributes actually reference).
type LiteralResultElementNode struct {
	base
	Name             xml.QName
	Attributes       []LRAttribute
	Namespaces       []xml.NS
	UseAttributeSets []xml.QName
	Children         Body
}

// LRAttribute is one attribute carried by a literal result element,
// compiled as an AVT (spec.md §4.3/§4.5); shadow attributes (spec.md
// §4.1, local name prefixed '_') displace the static counterpart and
// are recorded with Shadow=true for diagnostic purposes only — the
// compiled Value already reflects the shadow's AVT, not the static one.
type LRAttribute struct {
	Name   xml.QName
	Value  AVT
	Shadow bool
}

// ValueOfNode is xsl:value-of.
type ValueOfNode struct {
	base
	Select           xpath.Expr
	Separator        AVT
	DisableEscaping  bool
}

// IfNode is xsl:if.
type IfNode struct {
	base
	Test xpath.Expr
	Then Body
}

// WhenClause is one xsl:when inside a ChooseNode.
type WhenClause struct {
	Loc  Location
	Test xpath.Expr
	Body Body
}

// ChooseNode is xsl:choose. Otherwise is nil when no xsl:otherwise was
// present (empty sequence per spec.md §4.5 "at most one xsl:otherwise").
type ChooseNode struct {
	base
	Whens     []WhenClause
	Otherwise Body
}

// ForEachNode is xsl:for-each; Sorts must compile from the leading
// xsl:sort children only (spec.md §4.5 ordering contract).
type ForEachNode struct {
	base
	Select xpath.Expr
	Sorts  []SortSpec
	Body   Body
}

// SortSpec is one xsl:sort clause, shared by for-each/for-each-group/
// perform-sort/apply-templates.
type SortSpec struct {
	Loc        Location
	Select     xpath.Expr
	Order      AVT
	CaseOrder  AVT
	Lang       AVT
	DataType   AVT
	Collation  AVT
	Stable     AVT
}

// WithParam is one xsl:with-param argument to apply-templates/
// call-template/iterate/next-iteration (spec.md §4.5).
type WithParam struct {
	Loc      Location
	Name     xml.QName
	Select   xpath.Expr
	Body     Body
	Tunnel   bool
}

// ApplyTemplatesNode is xsl:apply-templates.
type ApplyTemplatesNode struct {
	base
	Select xpath.Expr
	Mode   string
	Sorts  []SortSpec
	Params []WithParam
}

// ApplyImportsNode is xsl:apply-imports; carries the with-param set
// XSLT 2.0+ permits as children.
type ApplyImportsNode struct {
	base
	Params []WithParam
}

// CallTemplateNode is xsl:call-template.
type CallTemplateNode struct {
	base
	Name   xml.QName
	Params []WithParam
}

// VariableNode and ParamNode are xsl:variable/xsl:param. Static holds
// the compile-time value for static="yes" declarations (spec.md §4.5);
// nil when the binding is ordinary (computed at transform time).
type VariableNode struct {
	base
	Name     xml.QName
	Select   xpath.Expr
	Body     Body
	Static   xpath.Expr
	AsType   string
}

type ParamNode struct {
	base
	Name     xml.QName
	Select   xpath.Expr
	Body     Body
	Required bool
	Tunnel   bool
	AsType   string
}

// SequenceNode is xsl:sequence.
type SequenceNode struct {
	base
	Select xpath.Expr
}

// ElementNode is xsl:element — a computed-name element constructor.
type ElementNode struct {
	base
	Name             AVT
	Namespace        AVT
	UseAttributeSets []xml.QName
	Children         Body
}

// AttributeNode is xsl:attribute — a computed-name attribute
// constructor.
type AttributeNode struct {
	base
	Name      AVT
	Namespace AVT
	Separator AVT
	Select    xpath.Expr
	Body      Body
}

// NamespaceNode is xsl:namespace (XSLT 2.0+).
type NamespaceNode struct {
	base
	Name   AVT
	Select xpath.Expr
	Body   Body
}

// TextNode is xsl:text.
type TextNode struct {
	base
	Text            string
	DisableEscaping bool
}

// CommentNode is xsl:comment.
type CommentNode struct {
	base
	Body Body
}

// ProcessingInstructionNode is xsl:processing-instruction.
type ProcessingInstructionNode struct {
	base
	Name AVT
	Body Body
}

// CopyNode is xsl:copy. Its copy-namespaces and inherit-namespaces
// attributes are not recorded.
type CopyNode struct {
	base
	UseAttributeSets []xml.QName
	Body             Body
}

// CopyOfNode is xsl:copy-of.
type CopyOfNode struct {
	base
	Select xpath.Expr
}

// MessageNode is xsl:message.
type MessageNode struct {
	base
	Select     xpath.Expr
	Body       Body
	Terminate  xpath.Expr
}

// FallbackNode is xsl:fallback — only reachable as a child of an
// unsupported instruction processed in forward-compatible mode
// (spec.md §4.5).
type FallbackNode struct {
	base
	Body Body
}

// IterateNode is xsl:iterate (XSLT 3.0); NextIteration/Break are
// compiled from its body like any other instruction node, distinguished
// only by their own node types below.
type IterateNode struct {
	base
	Select xpath.Expr
	Params []ParamNode
	Sorts  []SortSpec
	Body   Body
	OnCompletion Body
}

// NextIterationNode is xsl:next-iteration.
type NextIterationNode struct {
	base
	Params []WithParam
}

// BreakNode is xsl:break.
type BreakNode struct {
	base
	Select xpath.Expr
}

// TryNode/CatchNode are xsl:try/xsl:catch (XSLT 3.0).
type TryNode struct {
	base
	Body    Body
	Catches []CatchClause
}

type CatchClause struct {
	Loc    Location
	Errors []string
	Body   Body
}

// ForEachGroupNode is xsl:for-each-group; exactly one of the four
// grouping selects is non-nil (spec.md §4.5, XTSE1080).
type ForEachGroupNode struct {
	base
	Select       xpath.Expr
	GroupBy      xpath.Expr
	GroupAdjacent xpath.Expr
	GroupStartingWith Pattern
	GroupEndingWith   Pattern
	Sorts        []SortSpec
	Body         Body
}

// ResultDocumentNode is xsl:result-document.
type ResultDocumentNode struct {
	base
	Href       AVT
	Format     AVT
	Body       Body
}

// SourceDocumentNode is xsl:source-document (XSLT 3.0 streaming
// profile — compiled as an ordinary non-streaming fetch in this core).
type SourceDocumentNode struct {
	base
	Href AVT
	Body Body
}

// AnalyzeStringNode and its two branch bodies implement xsl:
// analyze-string/matching-substring/non-matching-substring.
type AnalyzeStringNode struct {
	base
	Select  xpath.Expr
	Regex   AVT
	Flags   AVT
	Matching    Body
	NonMatching Body
}

// AccumulatorRuleNode is one xsl:accumulator-rule inside an
// xsl:accumulator declaration (XSLT 3.0).
type AccumulatorRuleNode struct {
	base
	Match  Pattern
	Phase  string
	Select xpath.Expr
	Body   Body
}

// ForkNode/MergeNode implement xsl:fork/xsl:merge (XSLT 3.0 streaming
// constructs, accepted here as ordinary non-streaming sequence
// combinators per spec.md §1's "pragmatic subset" policy).
type ForkNode struct {
	base
	Branches []Body
}

type MergeSource struct {
	Loc      Location
	Name     string
	Select   xpath.Expr
	SortKeys []xpath.Expr
}

type MergeNode struct {
	base
	Sources []MergeSource
	Body    Body
}
