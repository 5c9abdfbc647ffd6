package xslt

import (
	"testing"

	"github.com/midbel/xsltc/xml"
)

func compileSheet(t *testing.T, src string) *CompiledStylesheet {
	t.Helper()
	doc, err := xml.ParseString(src)
	if err != nil {
		t.Fatalf("ParseString: %v", err)
	}
	builder := NewEventDrivenBuilder("test.xsl", NoopDiagnostics(), nil)
	if err := xml.Emit(builder, doc); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	sheet, err := builder.Seal()
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	return sheet
}

const prolog = `<?xml version="1.0"?>`

func TestBuilderCompilesNamedAndMatchTemplates(t *testing.T) {
	sheet := compileSheet(t, prolog+`
<xsl:stylesheet version="3.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform">
  <xsl:template name="greet">
    <xsl:text>hi</xsl:text>
  </xsl:template>
  <xsl:template match="a" priority="2">
    <xsl:text>a</xsl:text>
  </xsl:template>
  <xsl:template match="b">
    <xsl:text>b</xsl:text>
  </xsl:template>
</xsl:stylesheet>`)

	if sheet.Version != 3.0 {
		t.Errorf("Version = %v, want 3.0", sheet.Version)
	}
	if _, ok := sheet.NamedTemplates["greet"]; !ok {
		t.Errorf("expected a named template %q", "greet")
	}
	mode := sheet.Modes[""]
	if mode == nil || len(mode.Rules) != 2 {
		t.Fatalf("expected 2 rules in the default mode, got %+v", mode)
	}
	// rule "a" has explicit priority 2, so it must sort first despite
	// being declared before "b".
	if mode.Rules[0].MatchSrc != "a" {
		t.Errorf("rule[0].MatchSrc = %q, want %q (higher explicit priority)", mode.Rules[0].MatchSrc, "a")
	}
	if mode.Rules[1].MatchSrc != "b" {
		t.Errorf("rule[1].MatchSrc = %q, want %q", mode.Rules[1].MatchSrc, "b")
	}
}

func TestBuilderSynthesizesLabelForUnnamedTemplate(t *testing.T) {
	sheet := compileSheet(t, prolog+`
<xsl:stylesheet version="3.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform">
  <xsl:template match="a"/>
  <xsl:template name="named"/>
</xsl:stylesheet>`)

	mode := sheet.Modes[""]
	if len(mode.Rules) != 1 {
		t.Fatalf("expected 1 rule in the default mode, got %d", len(mode.Rules))
	}
	rule := mode.Rules[0]
	if rule.HasName {
		t.Fatalf("match-only rule unexpectedly has a name")
	}
	if rule.Label == "" {
		t.Errorf("expected a synthesized Label for the unnamed match-only template")
	}
	if got := rule.DisplayName(); got != rule.Label {
		t.Errorf("DisplayName() = %q, want the synthesized label %q", got, rule.Label)
	}

	named, ok := sheet.NamedTemplates["named"]
	if !ok {
		t.Fatalf("expected a named template %q", "named")
	}
	if named.Label != "" {
		t.Errorf("named template unexpectedly has a Label: %q", named.Label)
	}
	if got := named.DisplayName(); got != "named" {
		t.Errorf("DisplayName() = %q, want %q", got, "named")
	}
}

func TestBuilderSimplifiedStylesheet(t *testing.T) {
	sheet := compileSheet(t, prolog+`<out xsl:version="3.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform"><child/></out>`)

	mode := sheet.Modes[""]
	if mode == nil || len(mode.Rules) != 1 {
		t.Fatalf("expected the simplified stylesheet to synthesize exactly one rule, got %+v", mode)
	}
	if mode.Rules[0].MatchSrc != "/" {
		t.Errorf("MatchSrc = %q, want %q", mode.Rules[0].MatchSrc, "/")
	}
}

func TestBuilderRejectsMissingMatchOrName(t *testing.T) {
	doc, err := xml.ParseString(prolog + `
<xsl:stylesheet version="3.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform">
  <xsl:template/>
</xsl:stylesheet>`)
	if err != nil {
		t.Fatalf("ParseString: %v", err)
	}
	builder := NewEventDrivenBuilder("test.xsl", NoopDiagnostics(), nil)
	err = xml.Emit(builder, doc)
	if err == nil {
		t.Fatalf("expected a static error for an xsl:template with neither match nor name")
	}
	serr, ok := err.(*StaticError)
	if !ok {
		t.Fatalf("expected a *StaticError, got %T: %v", err, err)
	}
	if serr.Code != XTSE0500 {
		t.Errorf("error code = %s, want %s", serr.Code, XTSE0500)
	}
}

func TestBuilderRejectsNonEmptyStripSpace(t *testing.T) {
	err := compileSheetErr(t, prolog+`
<xsl:stylesheet version="3.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform">
  <xsl:strip-space elements="*"><xsl:text>oops</xsl:text></xsl:strip-space>
</xsl:stylesheet>`)
	wantStaticCode(t, err, XTSE0260)
}

func TestBuilderAcceptsEmptyStripSpace(t *testing.T) {
	sheet := compileSheet(t, prolog+`
<xsl:stylesheet version="3.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform">
  <xsl:strip-space elements="*"/>
</xsl:stylesheet>`)
	if sheet == nil {
		t.Fatalf("expected a sealed stylesheet")
	}
}

func TestBuilderRejectsDuplicateWithParamName(t *testing.T) {
	err := compileSheetErr(t, prolog+`
<xsl:stylesheet version="3.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform">
  <xsl:template name="greet">
    <xsl:param name="x"/>
  </xsl:template>
  <xsl:template match="/">
    <xsl:call-template name="greet">
      <xsl:with-param name="x" select="1"/>
      <xsl:with-param name="x" select="2"/>
    </xsl:call-template>
  </xsl:template>
</xsl:stylesheet>`)
	wantStaticCode(t, err, XTSE0670)
}

func TestBuilderRejectsForeignRootElement(t *testing.T) {
	doc, err := xml.ParseString(prolog + `<plain/>`)
	if err != nil {
		t.Fatalf("ParseString: %v", err)
	}
	builder := NewEventDrivenBuilder("test.xsl", NoopDiagnostics(), nil)
	err = xml.Emit(builder, doc)
	if err == nil {
		t.Fatalf("expected a static error for a root element that is neither xsl:stylesheet nor simplified")
	}
	serr, ok := err.(*StaticError)
	if !ok {
		t.Fatalf("expected a *StaticError, got %T: %v", err, err)
	}
	if serr.Code != XTSE0150 {
		t.Errorf("error code = %s, want %s", serr.Code, XTSE0150)
	}
}
