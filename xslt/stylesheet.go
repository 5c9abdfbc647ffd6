package xslt

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/midbel/xsltc/relax"
	"github.com/midbel/xsltc/xml"
	"github.com/midbel/xsltc/xpath"
)

// OutputDecl is one xsl:output declaration (spec.md §3 "Output
// definition"). Grounded on the teacher's Output/defaultOutput
// (originally in this file), generalized from a handful of yes/no
// fields to the fuller set of serialization properties xsl:output
// exposes — the compiler only needs to capture them verbatim for
// whatever serializer a host attaches downstream (spec.md §1 places
// serialization out of scope).
type OutputDecl struct {
	Name             xml.QName
	Method           string
	Encoding         string
	Version          string
	Indent           bool
	OmitProlog       bool
	Standalone       string
	MediaType        string
	CDataElements    []xml.QName
	UseCharacterMaps []xml.QName
	Loc              Location
}

func defaultOutputDecl() *OutputDecl {
	return &OutputDecl{Method: "xml", Version: xml.SupportedVersion, Encoding: xml.SupportedEncoding}
}

// NoMatchBehavior and MultiMatchBehavior carry over the teacher's
// Mode.NoMatch/MultiMatch enum shape (originally NoMatchMode/
// MultiMatchMode in this file) unchanged in spirit: the compiler
// records which strategy a mode's on-no-match/on-multiple-match
// attribute selected, for a downstream runtime to apply — it never
// applies one itself.
type NoMatchBehavior int8

const (
	NoMatchDeepCopy NoMatchBehavior = iota
	NoMatchShallowCopy
	NoMatchDeepSkip
	NoMatchShallowSkip
	NoMatchTextOnlyCopy
	NoMatchFail
)

type MultiMatchBehavior int8

const (
	MultiMatchUseLast MultiMatchBehavior = iota
	MultiMatchFail
)

// TemplateRule is one compiled xsl:template (spec.md §3 "Template
// rule"). Grounded on the teacher's Template (originally in this
// file) plus Mode.matchTemplate's tie-break logic: the teacher computed
// effective priority and declaration position at every match call, ad
// hoc; here both are frozen once at seal time so a downstream matcher
// only has to walk an already-sorted slice.
type TemplateRule struct {
	Name        xml.QName
	HasName     bool
	Match       Pattern
	MatchSrc    string
	Modes       []string
	Priority    float64
	HasPriority bool
	Precedence  int
	DeclIndex   int
	Params      []ParamNode
	Body        Body
	Loc         Location

	// Label is a synthetic debug id ("aaa", "aab", ...) assigned when
	// the rule has no name attribute, so a match-only template still
	// has a short, stable handle for diagnostics and tooling instead of
	// its full match pattern. Empty when HasName is true.
	Label string

	// Visibility is this component's package visibility (spec.md §4.7:
	// public/private/final/abstract/hidden), read from an explicit
	// visibility attribute; empty outside of a package context, where
	// it is meaningless. Only consulted when this stylesheet is used as
	// a package via another stylesheet's xsl:use-package.
	Visibility string
}

// DisplayName returns the rule's name if it has one, else its
// synthesized Label, falling back to MatchSrc if somehow neither was
// ever assigned.
func (t *TemplateRule) DisplayName() string {
	if t.HasName {
		return clark(t.Name)
	}
	if t.Label != "" {
		return t.Label
	}
	return t.MatchSrc
}

// EffectivePriority returns the explicit priority attribute if given,
// else the pattern's own default-priority table value (spec.md §4.8).
func (t *TemplateRule) EffectivePriority() float64 {
	if t.HasPriority {
		return t.Priority
	}
	if t.Match != nil {
		return t.Match.DefaultPriority()
	}
	return 0.5
}

// ModeDecl is one mode's rule table (spec.md §3 "Mode"; the unnamed
// mode uses Name == ""). Grounded on the teacher's Mode, keeping its
// NoMatch/MultiMatch fields but dropping every Execute-facing method
// (callTemplate/matchTemplate/noMatch all assumed a document to run
// against) in favor of the sorted, validated Rules slice Seal
// produces.
type ModeDecl struct {
	Name                string
	Declared            bool
	Default             bool
	Streamable          bool
	OnNoMatch           NoMatchBehavior
	OnMultipleMatch     MultiMatchBehavior
	WarnOnNoMatch       bool
	WarnOnMultipleMatch bool
	Rules               []*TemplateRule
}

// FunctionDecl is one xsl:function declaration (XSLT 2.0+), keyed by
// (namespace, local-name, arity) the way user-defined functions must be
// looked up (spec.md §4.5).
type FunctionDecl struct {
	Name       xml.QName
	Params     []ParamNode
	Body       Body
	AsType     string
	Override   bool
	Precedence int
	DeclIndex  int
	Loc        Location

	// Visibility: see TemplateRule.Visibility.
	Visibility string
}

// KeyDecl is one xsl:key definition; several may share a Name (their
// match/use pairs all contribute to the same key space at transform
// time, spec.md §4.5).
type KeyDecl struct {
	Name       xml.QName
	Match      Pattern
	MatchSrc   string
	Use        xpath.Expr
	Collation  string
	Precedence int
	Loc        Location
}

// AttributeSetDecl is one xsl:attribute-set; UseAttributeSets records
// its own references to other sets so Seal can validate the whole
// reference graph in one pass (spec.md §4.5, XTSE0710).
type AttributeSetDecl struct {
	Name             xml.QName
	UseAttributeSets []xml.QName
	Attributes       []AttributeNode
	Precedence       int
	Loc              Location

	// Visibility: see TemplateRule.Visibility.
	Visibility string
}

// CharacterMapDecl is one xsl:character-map; UseCharacterMaps records
// referenced maps whose mappings are overlaid beneath this one's own
// (spec.md §4.5, last-declared-wins on overlapping characters).
type CharacterMapDecl struct {
	Name             xml.QName
	Mappings         map[rune]string
	UseCharacterMaps []xml.QName
	Loc              Location
}

// AccumulatorDecl is one xsl:accumulator (XSLT 3.0, spec.md §4.5).
type AccumulatorDecl struct {
	Name         xml.QName
	Streamable   bool
	InitialValue xpath.Expr
	Rules        []AccumulatorRuleNode
	Loc          Location
}

// DecimalFormatDecl is one xsl:decimal-format; the single-character
// picture properties are validated distinct by Seal (spec.md §4.5,
// XTSE1300).
type DecimalFormatDecl struct {
	Name              xml.QName
	DecimalSeparator  rune
	GroupingSeparator rune
	Infinity          string
	MinusSign         rune
	NaN               string
	Percent           rune
	PerMille          rune
	ZeroDigit         rune
	Digit             rune
	PatternSeparator  rune
	Exponent          rune
	Loc               Location
}

func defaultDecimalFormatDecl() *DecimalFormatDecl {
	return &DecimalFormatDecl{
		DecimalSeparator:  '.',
		GroupingSeparator: ',',
		Infinity:          "Infinity",
		MinusSign:         '-',
		NaN:               "NaN",
		Percent:           '%',
		PerMille:          '‰',
		ZeroDigit:         '0',
		Digit:             '#',
		PatternSeparator:  ';',
		Exponent:          'e',
	}
}

// VariableDecl is one top-level xsl:variable/xsl:param (spec.md §3
// "Global variable"). SelectSrc carries the raw, uncompiled select
// source alongside the compiled Select so Seal's cycle check (XTDE0640)
// can scan for "$name" references without the xpath package needing to
// expose a free-variable-walk API over a compiled Expr.
type VariableDecl struct {
	Name       xml.QName
	Select     xpath.Expr
	SelectSrc  string
	Body       Body
	Static     xpath.Expr
	IsParam    bool
	Required   bool
	Precedence int
	DeclIndex  int
	Loc        Location

	// Visibility: see TemplateRule.Visibility.
	Visibility string
}

// StripSpaceRule is one xsl:strip-space/xsl:preserve-space pattern
// (spec.md §4.5); kept separate from key/template patterns because
// whitespace stripping is resolved against the most specific match
// among all declared rules, not a priority-sorted table.
type StripSpaceRule struct {
	Match    Pattern
	MatchSrc string
	Loc      Location
}

// SchemaImport records one xsl:import-schema (spec.md §4.5). Grammar is
// populated only when the import carries a schema-location and a Linker
// is configured; ResolveSchema (xslt/schema.go) then fetches the
// resource and returns relax.Valid(), not a grammar built from its
// content. An inline xs:schema child is skipped and never populates
// Grammar.
type SchemaImport struct {
	Namespace      string
	SchemaLocation string
	Grammar        relax.Pattern
	Loc            Location
}

// CompiledStylesheet is the compiler's sole output (spec.md §3
// "Compiled stylesheet"): an immutable, fully-resolved snapshot of
// every declaration a stylesheet module tree contributed, already
// merged across xsl:include/xsl:import precedence. Grounded on the
// teacher's Stylesheet struct (originally in this file), which mixed
// this same data together with the live Env/Tracer/Others runtime
// plumbing needed to execute it; this type keeps only the declarative
// half and drops everything execution-shaped.
type CompiledStylesheet struct {
	Version           float64
	BaseURI           string
	DefaultCollation  string
	DefaultMode       string
	DefaultValidation string
	XPathDefaultNS    string

	Namespaces map[string]string

	Outputs map[string]*OutputDecl

	Modes          map[string]*ModeDecl
	NamedTemplates map[string]*TemplateRule

	Functions map[string]*FunctionDecl

	GlobalVariables []*VariableDecl

	Keys map[string][]*KeyDecl

	AttributeSets map[string]*AttributeSetDecl

	CharacterMaps map[string]*CharacterMapDecl

	Accumulators map[string]*AccumulatorDecl

	DecimalFormats map[string]*DecimalFormatDecl

	NamespaceAliases map[string]string

	StripSpace    []StripSpaceRule
	PreserveSpace []StripSpaceRule

	SchemaImports []*SchemaImport
}

// attrSetRef is one use-attribute-sets attribute value recorded during
// the build, replayed by Seal against the final AttributeSets map
// (spec.md §4.5, XTSE0710).
type attrSetRef struct {
	Name xml.QName
	Loc  Location
}

// StylesheetBuilder accumulates declarations as the event-driven
// builder (xslt/builder.go) walks the merged module tree, assigning
// the import-precedence and declaration-index counters spec.md §4.8
// names as the tie-break axes for same-name conflicts, then performs
// every seal-time validation in one Seal call. Grounded on the
// teacher's Stylesheet.init/loadTemplate/loadVariable/... family
// (originally in this file), which validated and installed each
// declaration eagerly as it was parsed; this builder defers the
// cross-declaration checks (duplicate globals, dangling
// use-attribute-sets, variable cycles) until every declaration has been
// seen, since xsl:include/xsl:import can contribute declarations in any
// order.
type StylesheetBuilder struct {
	sheet      *CompiledStylesheet
	precedence int
	declIndex  int

	attrSetRefs []attrSetRef
	errs        []error
}

func NewStylesheetBuilder() *StylesheetBuilder {
	return &StylesheetBuilder{
		sheet: &CompiledStylesheet{
			Version:          1.0,
			DefaultMode:      "",
			Namespaces:       map[string]string{},
			Outputs:          map[string]*OutputDecl{},
			Modes:            map[string]*ModeDecl{"": {Name: ""}},
			NamedTemplates:   map[string]*TemplateRule{},
			Functions:        map[string]*FunctionDecl{},
			Keys:             map[string][]*KeyDecl{},
			AttributeSets:    map[string]*AttributeSetDecl{},
			CharacterMaps:    map[string]*CharacterMapDecl{},
			Accumulators:     map[string]*AccumulatorDecl{},
			DecimalFormats:   map[string]*DecimalFormatDecl{},
			NamespaceAliases: map[string]string{},
		},
	}
}

// nextPrecedence returns a fresh, strictly-increasing import-precedence
// value. Callers (the linker merging xsl:include/xsl:import trees) call
// this once per merged module, highest value winning ties (spec.md
// §4.8).
func (b *StylesheetBuilder) nextPrecedence() int {
	b.precedence++
	return b.precedence
}

// nextDeclIndex returns a fresh, strictly-increasing declaration index,
// the stable tie-break spec.md §4.8 requires among same-precedence,
// same-priority template rules.
func (b *StylesheetBuilder) nextDeclIndex() int {
	b.declIndex++
	return b.declIndex
}

func (b *StylesheetBuilder) fail(err error) {
	b.errs = append(b.errs, err)
}

func (b *StylesheetBuilder) mode(name string) *ModeDecl {
	m, ok := b.sheet.Modes[name]
	if !ok {
		m = &ModeDecl{Name: name}
		b.sheet.Modes[name] = m
	}
	return m
}

// AddMode records an xsl:mode declaration's behavior flags (spec.md
// §4.5). A second declaration of the same name is only tolerated when
// the first was implicit (the unnamed mode coming into existence
// because a template used it), mirroring the teacher's loadMode check.
func (b *StylesheetBuilder) AddMode(name string, loc Location, fn func(*ModeDecl)) error {
	m := b.mode(name)
	if m.Declared {
		return staticErr(loc, XTSE0550, "%s: mode already declared", name)
	}
	fn(m)
	m.Declared = true
	if name == "" || m.Default {
		b.sheet.DefaultMode = name
	}
	return nil
}

// AddTemplate installs a compiled template rule into every mode it
// names (or the unnamed mode, when none was given) and, for a named
// template, into the named-template table — a same-precedence
// duplicate there is XTSE0550 regardless of mode, matching the
// teacher's Mode.Append duplicate-by-identity check generalized to
// cover names too. A strictly higher-precedence existing declaration
// silently keeps its place (an xsl:import losing to the importer's own
// same-named template is not an error); a strictly lower-precedence
// existing one is silently replaced.
func (b *StylesheetBuilder) AddTemplate(t *TemplateRule) error {
	if t.HasName {
		key := clark(t.Name)
		existing, ok := b.sheet.NamedTemplates[key]
		switch {
		case ok && existing.Precedence == t.Precedence:
			return staticErr(t.Loc, XTSE0550, "%s: duplicate named template", t.Name.Name)
		case ok && existing.Precedence > t.Precedence:
			// Lower-precedence losing declaration: its named-template
			// slot stays with the existing one, but it may still have
			// a match pattern that belongs in a mode's rule table below.
		default:
			b.sheet.NamedTemplates[key] = t
		}
	}
	if t.Match == nil {
		return nil
	}
	modes := t.Modes
	if len(modes) == 0 {
		modes = []string{""}
	}
	for _, name := range modes {
		m := b.mode(name)
		m.Rules = append(m.Rules, t)
	}
	return nil
}

// AddVariable installs a global xsl:variable/xsl:param. Two
// declarations of the same name at the SAME precedence is XTSE0630
// (spec.md §4.5); at different precedence both are kept in
// GlobalVariables, and only Seal's cycle check (checkVariableCycles)
// narrows them to the higher-precedence declaration of each name.
func (b *StylesheetBuilder) AddVariable(v *VariableDecl) error {
	for _, other := range b.sheet.GlobalVariables {
		if other.Name != v.Name {
			continue
		}
		if other.Precedence == v.Precedence {
			return staticErr(v.Loc, XTSE0630, "%s: duplicate global variable at the same import precedence", v.Name.Name)
		}
	}
	b.sheet.GlobalVariables = append(b.sheet.GlobalVariables, v)
	return nil
}

func (b *StylesheetBuilder) AddKey(k *KeyDecl) error {
	key := clark(k.Name)
	b.sheet.Keys[key] = append(b.sheet.Keys[key], k)
	return nil
}

func (b *StylesheetBuilder) AddAttributeSet(as *AttributeSetDecl) error {
	key := clark(as.Name)
	if existing, ok := b.sheet.AttributeSets[key]; ok {
		if existing.Precedence > as.Precedence {
			return nil
		}
		if existing.Precedence == as.Precedence {
			existing.Attributes = append(existing.Attributes, as.Attributes...)
			existing.UseAttributeSets = append(existing.UseAttributeSets, as.UseAttributeSets...)
			return nil
		}
	}
	b.sheet.AttributeSets[key] = as
	return nil
}

// ReferenceAttributeSet records a use-attribute-sets reference found
// anywhere in the stylesheet body (an LRE, xsl:element, xsl:copy, or
// another attribute-set's own use-attribute-sets), so Seal can validate
// every reference in one pass once the full AttributeSets map exists
// (spec.md §4.5, XTSE0710).
func (b *StylesheetBuilder) ReferenceAttributeSet(name xml.QName, loc Location) {
	b.attrSetRefs = append(b.attrSetRefs, attrSetRef{Name: name, Loc: loc})
}

func (b *StylesheetBuilder) AddCharacterMap(cm *CharacterMapDecl) error {
	key := clark(cm.Name)
	if _, ok := b.sheet.CharacterMaps[key]; ok {
		return staticErr(cm.Loc, XTSE1580, "%s: duplicate character map", cm.Name.Name)
	}
	b.sheet.CharacterMaps[key] = cm
	return nil
}

func (b *StylesheetBuilder) AddAccumulator(acc *AccumulatorDecl) error {
	key := clark(acc.Name)
	if _, ok := b.sheet.Accumulators[key]; ok {
		return staticErr(acc.Loc, XTSE0550, "%s: duplicate accumulator", acc.Name.Name)
	}
	b.sheet.Accumulators[key] = acc
	return nil
}

func (b *StylesheetBuilder) AddDecimalFormat(df *DecimalFormatDecl) error {
	key := clark(df.Name)
	if _, ok := b.sheet.DecimalFormats[key]; ok {
		return staticErr(df.Loc, XTSE1505, "%s: duplicate decimal format", df.Name.Name)
	}
	if err := validateDecimalFormat(df); err != nil {
		return err
	}
	b.sheet.DecimalFormats[key] = df
	return nil
}

// validateDecimalFormat enforces XTSE1300: the single-character picture
// properties of one decimal-format must all be pairwise distinct.
func validateDecimalFormat(df *DecimalFormatDecl) error {
	runes := []rune{
		df.DecimalSeparator, df.GroupingSeparator, df.Percent,
		df.PerMille, df.ZeroDigit, df.Digit, df.PatternSeparator, df.Exponent,
	}
	seen := map[rune]bool{}
	for _, r := range runes {
		if seen[r] {
			return staticErr(df.Loc, XTSE1300, "%s: decimal-format picture characters are not distinct", df.Name.Name)
		}
		seen[r] = true
	}
	return nil
}

// AddFunction installs an xsl:function, keyed by name and arity so
// overloads coexist. Same-precedence duplicates are XTSE0550 unless the
// incoming one declares override="yes"; an existing strictly-higher-
// precedence function silently keeps its slot (mirroring AddTemplate),
// otherwise the incoming one replaces it.
func (b *StylesheetBuilder) AddFunction(f *FunctionDecl) error {
	key := fmt.Sprintf("%s/%d", clark(f.Name), len(f.Params))
	if existing, ok := b.sheet.Functions[key]; ok {
		switch {
		case existing.Precedence == f.Precedence && !f.Override:
			return staticErr(f.Loc, XTSE0550, "%s: duplicate function", f.Name.Name)
		case existing.Precedence > f.Precedence && !f.Override:
			return nil
		}
	}
	b.sheet.Functions[key] = f
	return nil
}

func (b *StylesheetBuilder) AddOutput(o *OutputDecl) error {
	b.sheet.Outputs[clark(o.Name)] = o
	return nil
}

func (b *StylesheetBuilder) AddNamespaceAlias(stylesheetURI, resultURI string) {
	b.sheet.NamespaceAliases[stylesheetURI] = resultURI
}

func (b *StylesheetBuilder) AddSchemaImport(s *SchemaImport) {
	b.sheet.SchemaImports = append(b.sheet.SchemaImports, s)
}

func (b *StylesheetBuilder) AddStripSpace(rule StripSpaceRule) {
	b.sheet.StripSpace = append(b.sheet.StripSpace, rule)
}

func (b *StylesheetBuilder) AddPreserveSpace(rule StripSpaceRule) {
	b.sheet.PreserveSpace = append(b.sheet.PreserveSpace, rule)
}

// Seal performs the cross-declaration validations that can only run
// once every module has contributed its declarations, then freezes and
// returns the CompiledStylesheet (spec.md §4.8).
func (b *StylesheetBuilder) Seal() (*CompiledStylesheet, error) {
	b.sortModeRules()
	if err := b.checkAttributeSetReferences(); err != nil {
		b.fail(err)
	}
	if err := b.checkVariableCycles(); err != nil {
		b.fail(err)
	}
	if _, ok := b.sheet.Outputs[""]; !ok {
		b.sheet.Outputs[""] = defaultOutputDecl()
	}
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}
	return b.sheet, nil
}

// sortModeRules orders each mode's rule table by descending effective
// priority, then descending precedence, then ascending declaration
// index as the final stable tie-break — the same two-key sort the
// teacher's Mode.matchTemplate performed per match call (Priority desc,
// Position asc), computed here once so a downstream matcher need only
// take the first rule whose pattern matches (spec.md §8 "priority-table
// invariant").
func (b *StylesheetBuilder) sortModeRules() {
	for _, m := range b.sheet.Modes {
		rules := m.Rules
		sort.SliceStable(rules, func(i, j int) bool {
			pi, pj := rules[i].EffectivePriority(), rules[j].EffectivePriority()
			if pi != pj {
				return pi > pj
			}
			if rules[i].Precedence != rules[j].Precedence {
				return rules[i].Precedence > rules[j].Precedence
			}
			return rules[i].DeclIndex < rules[j].DeclIndex
		})
	}
}

// checkAttributeSetReferences resolves every recorded use-attribute-
// sets reference, including each attribute-set's own references to
// other sets, reporting the first dangling name found (spec.md §4.5,
// XTSE0710).
func (b *StylesheetBuilder) checkAttributeSetReferences() error {
	for _, ref := range b.attrSetRefs {
		if _, ok := b.sheet.AttributeSets[clark(ref.Name)]; !ok {
			return staticErr(ref.Loc, XTSE0710, "%s: use-attribute-sets references an undefined attribute set", ref.Name.Name)
		}
	}
	for _, as := range b.sheet.AttributeSets {
		for _, dep := range as.UseAttributeSets {
			if _, ok := b.sheet.AttributeSets[clark(dep)]; !ok {
				return staticErr(as.Loc, XTSE0710, "%s: use-attribute-sets references an undefined attribute set", dep.Name)
			}
		}
	}
	return nil
}

var globalVarRefPattern = regexp.MustCompile(`\$([A-Za-z_][\w.\-]*(?::[A-Za-z_][\w.\-]*)?)`)

// extractVariableRefs finds every "$name" token in a raw XPath source
// string, the textual substitute this compiler uses in place of a
// free-variable-walk over a compiled xpath.Expr (no such API is exposed
// by the xpath package) to build the dependency graph checkVariableCycles
// needs.
func extractVariableRefs(src string) []string {
	matches := globalVarRefPattern.FindAllStringSubmatch(src, -1)
	refs := make([]string, 0, len(matches))
	for _, m := range matches {
		refs = append(refs, m[1])
	}
	return refs
}

// checkVariableCycles builds a dependency graph over global variables
// from their raw select-source text and runs a DFS cycle check,
// reporting XTDE0640 at the first cycle found (spec.md §4.8). Only the
// highest-precedence declaration of each name participates, since a
// shadowed lower-precedence declaration is never the one actually
// referenced.
func (b *StylesheetBuilder) checkVariableCycles() error {
	effective := map[string]*VariableDecl{}
	for _, v := range b.sheet.GlobalVariables {
		local := v.Name.Name
		if cur, ok := effective[local]; !ok || v.Precedence > cur.Precedence {
			effective[local] = v
		}
	}
	const (
		white = iota
		gray
		black
	)
	color := map[string]int{}
	var visit func(name string) error
	visit = func(name string) error {
		switch color[name] {
		case black:
			return nil
		case gray:
			return staticErr(effective[name].Loc, XTDE0640, "circular reference among global variables: %s", name)
		}
		color[name] = gray
		if v, ok := effective[name]; ok {
			for _, ref := range extractVariableRefs(v.SelectSrc) {
				if _, declared := effective[ref]; !declared {
					continue
				}
				if err := visit(ref); err != nil {
					return err
				}
			}
		}
		color[name] = black
		return nil
	}
	for name := range effective {
		if err := visit(name); err != nil {
			return err
		}
	}
	return nil
}
