package xslt

import "github.com/midbel/xsltc/relax"

// ResolveSchema implements Linker.ResolveSchema, the xsl:import-schema
// half of href resolution (spec.md §4.5). Schema-aware validation
// proper — checking instance documents or stylesheet-constructed
// content against imported type definitions — is a documented
// Non-goal of this core (see DESIGN.md); what this method gives is
// narrower: fetch the named resource through the same href-resolution
// path xsl:include/xsl:import use, so an unreachable or unreadable
// schema-location still surfaces as a static error (XTSE0165) rather
// than silently compiling.
//
// The resource is parsed with the teacher's own relax package
// (relax.Parse/Parser.Parse), grounded on its RELAX-NG-flavored
// Pattern/Grammar/Element/Attribute model — the closest thing in the
// teacher's own tree to a schema grammar. The teacher's Parser.Parse
// is an unfinished stub: it always reports success without building a
// Pattern, a limitation inherited rather than quietly reimplemented
// here. Every successfully-fetched resource therefore degrades to
// relax.Valid(), meaning "resource present and readable," not a
// structurally validated grammar; deepening that into real grammar
// construction is future work for relax.Parser itself, not this file.
func (fl *FileLinker) ResolveSchema(href, baseURI string, loc Location) (relax.Pattern, error) {
	resolved, err := resolveHref(baseURI, href)
	if err != nil {
		return nil, staticErr(loc, XTSE0165, "%s: %v", href, err)
	}
	r, err := openHref(resolved)
	if err != nil {
		return nil, staticErr(loc, XTSE0165, "%s: %v", resolved, err)
	}
	defer r.Close()

	p := relax.Parse(r)
	if err := p.Parse(); err != nil {
		return nil, staticErr(loc, XTSE0165, "%s: %v", resolved, err)
	}
	return relax.Valid(), nil
}
