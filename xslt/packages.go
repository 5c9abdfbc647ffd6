package xslt

import (
	"fmt"
	"strings"

	"github.com/midbel/xsltc/xml"
)

// PackageResolver resolves an xsl:use-package reference to its compiled
// components (spec.md §6 "PackageResolver.resolve"), the xsl:use-package
// counterpart of Linker's xsl:include/xsl:import resolution.
type PackageResolver interface {
	ResolvePackage(name, versionConstraint, baseURI string, loc Location) (*CompiledPackage, error)
}

// CompiledPackage is a compiled stylesheet exposed as a reusable package
// (spec.md §4.5/§4.7 "xsl:use-package"). Its components are the same
// shapes an ordinary stylesheet module contributes; mergeUsePackage
// filters and relabels them by visibility as it folds them into the
// using stylesheet.
type CompiledPackage struct {
	Name    string
	Version string
	Sheet   *CompiledStylesheet
}

// PackageAccept is one xsl:accept child of xsl:use-package (spec.md
// §4.7): it reassigns the visibility of the package components it
// selects, most commonly to "hidden" to suppress them from the using
// stylesheet entirely.
type PackageAccept struct {
	Component  string // "template", "function", "variable", "attribute-set", or "*"
	Names      string // space-separated component names, or "*"/empty for all
	Visibility string
	Loc        Location
}

// matches reports whether this accept rule selects the named component
// of the given kind.
func (a PackageAccept) matches(component, name string) bool {
	if a.Component != "*" && a.Component != component {
		return false
	}
	if a.Names == "" || a.Names == "*" {
		return true
	}
	for _, n := range strings.Fields(a.Names) {
		if n == name {
			return true
		}
	}
	return false
}

// compilePackageAccept compiles one xsl:accept element (spec.md §4.7).
func compilePackageAccept(ctx *ElementContext) (PackageAccept, error) {
	component, err := ctx.requiredPlain("component")
	if err != nil {
		return PackageAccept{}, err
	}
	names, _ := ctx.plain("names")
	visibility, err := ctx.requiredPlain("visibility")
	if err != nil {
		return PackageAccept{}, err
	}
	return PackageAccept{Component: component, Names: names, Visibility: visibility, Loc: ctx.Loc}, nil
}

// effectiveVisibility applies ctx's xsl:accept children over a
// package component's own declared visibility (empty meaning the
// package-author default, "public"): the last matching accept rule
// wins, matching xsl:accept's document-order-sequential semantics.
func effectiveVisibility(ctx *ElementContext, declared, component, name string) string {
	vis := declared
	if vis == "" {
		vis = "public"
	}
	for _, a := range ctx.Accepts {
		if a.matches(component, name) {
			vis = a.Visibility
		}
	}
	return vis
}

// mergeUsePackage folds pkg's components into b's stylesheet (spec.md
// §4.7 "Merge order"): the package's own components first, at
// precedence-1 (lower, like an xsl:import), filtered and relabeled by
// ctx's xsl:accept children; then ctx's xsl:override declarations last,
// at full precedence, so they win any name collision. A visibility of
// "abstract" left un-overridden is XTSE3010.
//
// Scope: only the template, function, global-variable and
// attribute-set component kinds are merged — see DESIGN.md for why
// xsl:key/xsl:mode/xsl:accumulator/xsl:character-map component
// visibility is left unimplemented, and for XTSE3020/XTSE3085 (the two
// other package-conflict codes spec.md §6 lists), which this core does
// not raise.
func (b *EventDrivenBuilder) mergeUsePackage(ctx *ElementContext, pkg *CompiledPackage, precedence int) error {
	overriddenTemplates := map[string]bool{}
	for _, t := range ctx.OverrideTemplates {
		if t.HasName {
			overriddenTemplates[clark(t.Name)] = true
		}
	}
	overriddenFunctions := map[string]bool{}
	for _, fn := range ctx.OverrideFunctions {
		overriddenFunctions[functionKey(fn.Name, len(fn.Params))] = true
	}
	overriddenVariables := map[string]bool{}
	for _, v := range ctx.OverrideVariables {
		overriddenVariables[clark(v.Name)] = true
	}
	overriddenAttributeSets := map[string]bool{}
	for _, as := range ctx.OverrideAttributeSets {
		overriddenAttributeSets[clark(as.Name)] = true
	}

	sheet := pkg.Sheet
	for _, m := range sheet.Modes {
		for _, rule := range m.Rules {
			name := ""
			if rule.HasName {
				name = clark(rule.Name)
			}
			vis := effectiveVisibility(ctx, rule.Visibility, "template", name)
			if vis == "hidden" || vis == "private" {
				continue
			}
			if vis == "abstract" {
				if !rule.HasName || !overriddenTemplates[name] {
					return staticErr(rule.Loc, XTSE3010, "%s: abstract template must be overridden by xsl:override", rule.DisplayName())
				}
				continue
			}
			clone := *rule
			clone.Precedence = precedence - 1
			clone.DeclIndex = b.sheet.nextDeclIndex()
			if err := b.sheet.AddTemplate(&clone); err != nil {
				return err
			}
		}
	}
	for _, t := range sheet.NamedTemplates {
		if t.Match != nil {
			continue // already folded in via Modes above
		}
		vis := effectiveVisibility(ctx, t.Visibility, "template", clark(t.Name))
		if vis == "hidden" || vis == "private" {
			continue
		}
		if vis == "abstract" {
			if !overriddenTemplates[clark(t.Name)] {
				return staticErr(t.Loc, XTSE3010, "%s: abstract template must be overridden by xsl:override", t.DisplayName())
			}
			continue
		}
		clone := *t
		clone.Precedence = precedence - 1
		clone.DeclIndex = b.sheet.nextDeclIndex()
		if err := b.sheet.AddTemplate(&clone); err != nil {
			return err
		}
	}
	for _, v := range sheet.GlobalVariables {
		vis := effectiveVisibility(ctx, v.Visibility, "variable", clark(v.Name))
		if vis == "hidden" || vis == "private" {
			continue
		}
		if vis == "abstract" {
			if !overriddenVariables[clark(v.Name)] {
				return staticErr(v.Loc, XTSE3010, "%s: abstract variable must be overridden by xsl:override", v.Name.Name)
			}
			continue
		}
		clone := *v
		clone.Precedence = precedence - 1
		clone.DeclIndex = b.sheet.nextDeclIndex()
		if err := b.sheet.AddVariable(&clone); err != nil {
			return err
		}
	}
	for _, fn := range sheet.Functions {
		key := functionKey(fn.Name, len(fn.Params))
		vis := effectiveVisibility(ctx, fn.Visibility, "function", key)
		if vis == "hidden" || vis == "private" {
			continue
		}
		if vis == "abstract" {
			if !overriddenFunctions[key] {
				return staticErr(fn.Loc, XTSE3010, "%s: abstract function must be overridden by xsl:override", fn.Name.Name)
			}
			continue
		}
		clone := *fn
		clone.Precedence = precedence - 1
		clone.DeclIndex = b.sheet.nextDeclIndex()
		if err := b.sheet.AddFunction(&clone); err != nil {
			return err
		}
	}
	for _, as := range sheet.AttributeSets {
		vis := effectiveVisibility(ctx, as.Visibility, "attribute-set", clark(as.Name))
		if vis == "hidden" || vis == "private" {
			continue
		}
		if vis == "abstract" {
			if !overriddenAttributeSets[clark(as.Name)] {
				return staticErr(as.Loc, XTSE3010, "%s: abstract attribute-set must be overridden by xsl:override", as.Name.Name)
			}
			continue
		}
		clone := *as
		clone.Precedence = precedence - 1
		if err := b.sheet.AddAttributeSet(&clone); err != nil {
			return err
		}
	}

	for _, t := range ctx.OverrideTemplates {
		clone := *t
		clone.Precedence = precedence
		clone.DeclIndex = b.sheet.nextDeclIndex()
		if err := b.sheet.AddTemplate(&clone); err != nil {
			return err
		}
	}
	for _, fn := range ctx.OverrideFunctions {
		clone := *fn
		clone.Precedence = precedence
		clone.DeclIndex = b.sheet.nextDeclIndex()
		if err := b.sheet.AddFunction(&clone); err != nil {
			return err
		}
	}
	for _, v := range ctx.OverrideVariables {
		clone := *v
		clone.Precedence = precedence
		clone.DeclIndex = b.sheet.nextDeclIndex()
		if err := b.sheet.AddVariable(&clone); err != nil {
			return err
		}
	}
	for _, as := range ctx.OverrideAttributeSets {
		clone := *as
		clone.Precedence = precedence
		if err := b.sheet.AddAttributeSet(&clone); err != nil {
			return err
		}
	}
	return nil
}

func functionKey(name xml.QName, arity int) string {
	return fmt.Sprintf("%s/%d", clark(name), arity)
}

// compileOverrideChild builds one declaration nested inside
// xsl:override and hoists it onto override's own ElementContext
// (spec.md §4.7); parent here is xsl:override's still-open frame, not
// the enclosing xsl:use-package.
func (b *EventDrivenBuilder) compileOverrideChild(ctx, parent *ElementContext, local string) error {
	switch local {
	case "template":
		t, err := b.buildTemplate(ctx, 0, 0)
		if err != nil {
			return err
		}
		parent.OverrideTemplates = append(parent.OverrideTemplates, t)
	case "function":
		f, err := b.buildFunction(ctx, 0, 0)
		if err != nil {
			return err
		}
		parent.OverrideFunctions = append(parent.OverrideFunctions, f)
	case "variable", "param":
		v, err := b.buildGlobalVariable(ctx, 0, 0)
		if err != nil {
			return err
		}
		parent.OverrideVariables = append(parent.OverrideVariables, v)
	case "attribute-set":
		as, err := b.buildAttributeSet(ctx, 0)
		if err != nil {
			return err
		}
		parent.OverrideAttributeSets = append(parent.OverrideAttributeSets, as)
	}
	return nil
}

// declUsePackage resolves and merges one xsl:use-package declaration
// (spec.md §4.5/§4.7/§6 "PackageResolver"). Its xsl:accept and
// xsl:override children have already been gathered onto ctx by
// ElementEnd's special-case handling of those local names, the same
// way xsl:choose's xsl:when/xsl:otherwise are gathered before the
// owning element's own end-element event fires.
func (b *EventDrivenBuilder) declUsePackage(ctx *ElementContext, precedence int) error {
	if b.packages == nil {
		return staticErr(ctx.Loc, XTSE0010, "xsl:use-package: no package resolver configured")
	}
	name, err := ctx.requiredPlain("name")
	if err != nil {
		return err
	}
	versionConstraint, _ := ctx.plain("package-version")
	pkg, err := b.packages.ResolvePackage(name, versionConstraint, ctx.BaseURI, ctx.Loc)
	if err != nil {
		return err
	}
	return b.mergeUsePackage(ctx, pkg, precedence)
}
