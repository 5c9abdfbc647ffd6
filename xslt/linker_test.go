package xslt

import (
	"testing"

	"github.com/midbel/xsltc/relax"
	"github.com/midbel/xsltc/xml"
)

// fakeLinker resolves hrefs against an in-memory table of already-
// compiled modules, so xsl:include/xsl:import can be exercised without
// touching the filesystem the way FileLinker requires. sheets is only
// ever read after construction (flushPendingImports may call Resolve
// from several goroutines for sibling xsl:import hrefs), so no locking
// is needed here the way FileLinker's own cache/loading maps require.
type fakeLinker struct {
	sheets map[string]*CompiledStylesheet
}

func (f *fakeLinker) Resolve(href, baseURI string, loc Location) (*CompiledStylesheet, error) {
	sheet, ok := f.sheets[href]
	if !ok {
		return nil, staticErr(loc, XTSE0165, "%s: not found", href)
	}
	return sheet, nil
}

func (f *fakeLinker) ResolveSchema(href, baseURI string, loc Location) (relax.Pattern, error) {
	return nil, staticErr(loc, XTSE0165, "%s: fakeLinker does not resolve schemas", href)
}

func compileModule(t *testing.T, systemID, src string, linker Linker) *CompiledStylesheet {
	t.Helper()
	doc, err := xml.ParseString(src)
	if err != nil {
		t.Fatalf("ParseString(%s): %v", systemID, err)
	}
	builder := NewEventDrivenBuilder(systemID, NoopDiagnostics(), linker)
	if err := xml.Emit(builder, doc); err != nil {
		t.Fatalf("Emit(%s): %v", systemID, err)
	}
	sheet, err := builder.Seal()
	if err != nil {
		t.Fatalf("Seal(%s): %v", systemID, err)
	}
	return sheet
}

func TestLinkerImportLosesToImportersOwnDeclaration(t *testing.T) {
	imported := compileModule(t, "imported.xsl", prolog+`
<xsl:stylesheet version="3.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform">
  <xsl:template name="greet"><xsl:text>external</xsl:text></xsl:template>
</xsl:stylesheet>`, nil)

	linker := &fakeLinker{sheets: map[string]*CompiledStylesheet{"lib.xsl": imported}}

	sheet := compileModule(t, "test.xsl", prolog+`
<xsl:stylesheet version="3.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform">
  <xsl:import href="lib.xsl"/>
  <xsl:template name="greet"><xsl:text>local</xsl:text></xsl:template>
</xsl:stylesheet>`, linker)

	rule, ok := sheet.NamedTemplates["greet"]
	if !ok {
		t.Fatalf("expected a named template %q", "greet")
	}
	if rule.Loc.SystemID != "test.xsl" {
		t.Errorf("NamedTemplates[greet].Loc.SystemID = %q, want %q (the importer's own declaration should win)", rule.Loc.SystemID, "test.xsl")
	}
}

func TestLinkerImportContributesTemplatesNotShadowed(t *testing.T) {
	imported := compileModule(t, "imported.xsl", prolog+`
<xsl:stylesheet version="3.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform">
  <xsl:template match="a"><xsl:text>from-import</xsl:text></xsl:template>
</xsl:stylesheet>`, nil)

	linker := &fakeLinker{sheets: map[string]*CompiledStylesheet{"lib.xsl": imported}}

	sheet := compileModule(t, "test.xsl", prolog+`
<xsl:stylesheet version="3.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform">
  <xsl:import href="lib.xsl"/>
  <xsl:template match="b"><xsl:text>local</xsl:text></xsl:template>
</xsl:stylesheet>`, linker)

	mode := sheet.Modes[""]
	if mode == nil || len(mode.Rules) != 2 {
		t.Fatalf("expected 2 rules merged into the default mode, got %+v", mode)
	}
}

func TestLinkerImportedFunctionLosesToImportersOwnFunction(t *testing.T) {
	imported := compileModule(t, "imported.xsl", prolog+`
<xsl:stylesheet version="3.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform" xmlns:f="urn:example:f">
  <xsl:function name="f:double"><xsl:param name="x"/><xsl:sequence select="$x"/></xsl:function>
</xsl:stylesheet>`, nil)

	linker := &fakeLinker{sheets: map[string]*CompiledStylesheet{"lib.xsl": imported}}

	sheet := compileModule(t, "test.xsl", prolog+`
<xsl:stylesheet version="3.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform" xmlns:f="urn:example:f">
  <xsl:import href="lib.xsl"/>
  <xsl:function name="f:double"><xsl:param name="x"/><xsl:sequence select="$x"/></xsl:function>
</xsl:stylesheet>`, linker)

	fn, ok := sheet.Functions["{urn:example:f}double/1"]
	if !ok {
		t.Fatalf("expected function f:double/1 to be registered")
	}
	if fn.Loc.SystemID != "test.xsl" {
		t.Errorf("Functions[f:double/1].Loc.SystemID = %q, want %q (the importer's own function should win)", fn.Loc.SystemID, "test.xsl")
	}
}

func TestLinkerMultipleSiblingImportsAllMerge(t *testing.T) {
	libA := compileModule(t, "a.xsl", prolog+`
<xsl:stylesheet version="3.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform">
  <xsl:template match="a"><xsl:text>from-a</xsl:text></xsl:template>
</xsl:stylesheet>`, nil)
	libB := compileModule(t, "b.xsl", prolog+`
<xsl:stylesheet version="3.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform">
  <xsl:template match="b"><xsl:text>from-b</xsl:text></xsl:template>
</xsl:stylesheet>`, nil)

	linker := &fakeLinker{sheets: map[string]*CompiledStylesheet{"a.xsl": libA, "b.xsl": libB}}

	sheet := compileModule(t, "test.xsl", prolog+`
<xsl:stylesheet version="3.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform">
  <xsl:import href="a.xsl"/>
  <xsl:import href="b.xsl"/>
  <xsl:template match="c"><xsl:text>local</xsl:text></xsl:template>
</xsl:stylesheet>`, linker)

	mode := sheet.Modes[""]
	if mode == nil || len(mode.Rules) != 3 {
		t.Fatalf("expected 3 rules merged from both sibling imports plus the local template, got %+v", mode)
	}
}

func TestLinkerMissingHrefIsStaticError(t *testing.T) {
	linker := &fakeLinker{sheets: map[string]*CompiledStylesheet{}}
	doc, err := xml.ParseString(prolog + `
<xsl:stylesheet version="3.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform">
  <xsl:import href="missing.xsl"/>
  <xsl:template match="/"/>
</xsl:stylesheet>`)
	if err != nil {
		t.Fatalf("ParseString: %v", err)
	}
	builder := NewEventDrivenBuilder("test.xsl", NoopDiagnostics(), linker)
	if err := xml.Emit(builder, doc); err == nil {
		t.Fatalf("expected an error resolving a missing xsl:import href")
	}
}

func TestLinkerNilLinkerRejectsInclude(t *testing.T) {
	doc, err := xml.ParseString(prolog + `
<xsl:stylesheet version="3.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform">
  <xsl:include href="lib.xsl"/>
  <xsl:template match="/"/>
</xsl:stylesheet>`)
	if err != nil {
		t.Fatalf("ParseString: %v", err)
	}
	builder := NewEventDrivenBuilder("test.xsl", NoopDiagnostics(), nil)
	err = xml.Emit(builder, doc)
	wantStaticCode(t, err, XTSE0010)
}
