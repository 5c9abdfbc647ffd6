package xslt

import (
	"testing"

	"github.com/midbel/xsltc/xml"
)

func compileSheetErr(t *testing.T, src string) error {
	t.Helper()
	_, err := compileSheetOrErr(t, src)
	return err
}

func compileSheetOrErr(t *testing.T, src string) (*CompiledStylesheet, error) {
	t.Helper()
	doc, err := xml.ParseString(src)
	if err != nil {
		t.Fatalf("ParseString: %v", err)
	}
	builder := NewEventDrivenBuilder("test.xsl", NoopDiagnostics(), nil)
	if err := xml.Emit(builder, doc); err != nil {
		return nil, err
	}
	return builder.Seal()
}

func wantStaticCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected an error with code %s, got nil", code)
	}
	serr, ok := err.(*StaticError)
	if !ok {
		t.Fatalf("expected a *StaticError, got %T: %v", err, err)
	}
	if serr.Code != code {
		t.Errorf("error code = %s, want %s", serr.Code, code)
	}
}

func TestStylesheetDuplicateNamedTemplateSamePrecedence(t *testing.T) {
	err := compileSheetErr(t, prolog+`
<xsl:stylesheet version="3.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform">
  <xsl:template name="greet"><xsl:text>a</xsl:text></xsl:template>
  <xsl:template name="greet"><xsl:text>b</xsl:text></xsl:template>
</xsl:stylesheet>`)
	wantStaticCode(t, err, XTSE0550)
}

func TestStylesheetDuplicateGlobalVariableSamePrecedence(t *testing.T) {
	err := compileSheetErr(t, prolog+`
<xsl:stylesheet version="3.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform">
  <xsl:variable name="x" select="1"/>
  <xsl:variable name="x" select="2"/>
</xsl:stylesheet>`)
	wantStaticCode(t, err, XTSE0630)
}

func TestStylesheetCircularGlobalVariable(t *testing.T) {
	err := compileSheetErr(t, prolog+`
<xsl:stylesheet version="3.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform">
  <xsl:variable name="a" select="$b"/>
  <xsl:variable name="b" select="$a"/>
</xsl:stylesheet>`)
	wantStaticCode(t, err, XTDE0640)
}

func TestStylesheetDanglingAttributeSetReference(t *testing.T) {
	err := compileSheetErr(t, prolog+`
<xsl:stylesheet version="3.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform">
  <xsl:attribute-set name="missing-parent" use-attribute-sets="nowhere"/>
  <xsl:template match="/"/>
</xsl:stylesheet>`)
	wantStaticCode(t, err, XTSE0710)
}

func TestStylesheetAttributeSetMergesAtSamePrecedence(t *testing.T) {
	sheet, err := compileSheetOrErr(t, prolog+`
<xsl:stylesheet version="3.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform">
  <xsl:attribute-set name="styled">
    <xsl:attribute name="class">one</xsl:attribute>
  </xsl:attribute-set>
  <xsl:attribute-set name="styled">
    <xsl:attribute name="id">two</xsl:attribute>
  </xsl:attribute-set>
  <xsl:template match="/"/>
</xsl:stylesheet>`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	as, ok := sheet.AttributeSets["styled"]
	if !ok {
		t.Fatalf("expected an attribute-set named %q", "styled")
	}
	if len(as.Attributes) != 2 {
		t.Fatalf("expected the two same-precedence declarations to merge into 2 attributes, got %d", len(as.Attributes))
	}
}

func TestStylesheetDuplicateCharacterMap(t *testing.T) {
	err := compileSheetErr(t, prolog+`
<xsl:stylesheet version="3.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform">
  <xsl:character-map name="cm"/>
  <xsl:character-map name="cm"/>
</xsl:stylesheet>`)
	wantStaticCode(t, err, XTSE1580)
}

func TestStylesheetDuplicateFunctionSameArityAndPrecedence(t *testing.T) {
	err := compileSheetErr(t, prolog+`
<xsl:stylesheet version="3.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform" xmlns:f="urn:example:f">
  <xsl:function name="f:double"><xsl:param name="x"/><xsl:sequence select="$x"/></xsl:function>
  <xsl:function name="f:double"><xsl:param name="x"/><xsl:sequence select="$x"/></xsl:function>
</xsl:stylesheet>`)
	wantStaticCode(t, err, XTSE0550)
}

func TestStylesheetOverrideFunctionReplacesAtSamePrecedence(t *testing.T) {
	sheet, err := compileSheetOrErr(t, prolog+`
<xsl:stylesheet version="3.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform" xmlns:f="urn:example:f">
  <xsl:function name="f:double"><xsl:param name="x"/><xsl:sequence select="$x"/></xsl:function>
  <xsl:function name="f:double" override="yes"><xsl:param name="x"/><xsl:sequence select="$x"/></xsl:function>
  <xsl:template match="/"/>
</xsl:stylesheet>`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fn, ok := sheet.Functions["{urn:example:f}double/1"]
	if !ok {
		t.Fatalf("expected function f:double/1 to be registered, got %+v", sheet.Functions)
	}
	if !fn.Override {
		t.Errorf("expected the override=\"yes\" declaration to win the name")
	}
}

func TestStylesheetKeyRegistration(t *testing.T) {
	sheet, err := compileSheetOrErr(t, prolog+`
<xsl:stylesheet version="3.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform">
  <xsl:key name="by-id" match="item" use="@id"/>
  <xsl:template match="/"/>
</xsl:stylesheet>`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	keys, ok := sheet.Keys["by-id"]
	if !ok || len(keys) != 1 {
		t.Fatalf("expected one key declaration named %q, got %+v", "by-id", keys)
	}
}

func TestStylesheetDuplicateModeDeclaration(t *testing.T) {
	err := compileSheetErr(t, prolog+`
<xsl:stylesheet version="3.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform">
  <xsl:mode name="m" on-no-match="shallow-copy"/>
  <xsl:mode name="m" on-no-match="deep-skip"/>
</xsl:stylesheet>`)
	wantStaticCode(t, err, XTSE0550)
}

func TestStylesheetTemplateModesAssignRulesToNamedModes(t *testing.T) {
	sheet, err := compileSheetOrErr(t, prolog+`
<xsl:stylesheet version="3.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform">
  <xsl:template match="a" mode="m1 m2"/>
  <xsl:template match="b"/>
</xsl:stylesheet>`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, name := range []string{"m1", "m2"} {
		mode, ok := sheet.Modes[name]
		if !ok || len(mode.Rules) != 1 {
			t.Errorf("expected mode %q to have exactly 1 rule, got %+v", name, mode)
		}
	}
	def, ok := sheet.Modes[""]
	if !ok || len(def.Rules) != 1 {
		t.Fatalf("expected the default mode to have exactly 1 rule, got %+v", def)
	}
	if def.Rules[0].MatchSrc != "b" {
		t.Errorf("default mode rule = %q, want %q", def.Rules[0].MatchSrc, "b")
	}
}

func TestStylesheetDefaultOutputWhenNoneDeclared(t *testing.T) {
	sheet, err := compileSheetOrErr(t, prolog+`
<xsl:stylesheet version="3.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform">
  <xsl:template match="/"/>
</xsl:stylesheet>`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, ok := sheet.Outputs[""]
	if !ok {
		t.Fatalf("expected Seal to fill in a default unnamed xsl:output")
	}
	if out.Method != "xml" {
		t.Errorf("default output Method = %q, want %q", out.Method, "xml")
	}
}
