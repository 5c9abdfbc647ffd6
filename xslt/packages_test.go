package xslt

import (
	"testing"

	"github.com/midbel/xsltc/xml"
)

// fakePackageResolver resolves exactly one package by name, for
// exercising xsl:use-package without any real package storage.
type fakePackageResolver struct {
	pkgs map[string]*CompiledPackage
}

func (f *fakePackageResolver) ResolvePackage(name, versionConstraint, baseURI string, loc Location) (*CompiledPackage, error) {
	pkg, ok := f.pkgs[name]
	if !ok {
		return nil, staticErr(loc, XTSE0165, "%s: unknown package", name)
	}
	return pkg, nil
}

func compilePackage(t *testing.T, name, src string) *CompiledPackage {
	t.Helper()
	sheet := compileSheet(t, src)
	return &CompiledPackage{Name: name, Sheet: sheet}
}

// compileWithPackages compiles src through a builder wired to resolver,
// the xsl:use-package counterpart of compileSheetOrErr.
func compileWithPackages(t *testing.T, src string, resolver PackageResolver) (*CompiledStylesheet, error) {
	t.Helper()
	doc, err := xml.ParseString(src)
	if err != nil {
		t.Fatalf("ParseString: %v", err)
	}
	builder := NewEventDrivenBuilder("test.xsl", NoopDiagnostics(), nil).WithPackages(resolver)
	if err := xml.Emit(builder, doc); err != nil {
		return nil, err
	}
	return builder.Seal()
}

func TestBuilderUsePackageMergesTemplates(t *testing.T) {
	pkg := compilePackage(t, "urn:example:pkg", prolog+`
<xsl:stylesheet version="3.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform">
  <xsl:template name="greet" visibility="public"><xsl:text>hi</xsl:text></xsl:template>
</xsl:stylesheet>`)
	resolver := &fakePackageResolver{pkgs: map[string]*CompiledPackage{"urn:example:pkg": pkg}}

	sheet, err := compileWithPackages(t, prolog+`
<xsl:stylesheet version="3.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform">
  <xsl:use-package name="urn:example:pkg"/>
</xsl:stylesheet>`, resolver)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if _, ok := sheet.NamedTemplates["greet"]; !ok {
		t.Errorf("expected the package's named template %q to be merged in", "greet")
	}
}

func TestBuilderUsePackageAcceptHidesComponent(t *testing.T) {
	pkg := compilePackage(t, "urn:example:pkg", prolog+`
<xsl:stylesheet version="3.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform">
  <xsl:template name="greet" visibility="public"><xsl:text>hi</xsl:text></xsl:template>
</xsl:stylesheet>`)
	resolver := &fakePackageResolver{pkgs: map[string]*CompiledPackage{"urn:example:pkg": pkg}}

	sheet, err := compileWithPackages(t, prolog+`
<xsl:stylesheet version="3.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform">
  <xsl:use-package name="urn:example:pkg">
    <xsl:accept component="template" names="greet" visibility="hidden"/>
  </xsl:use-package>
</xsl:stylesheet>`, resolver)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if _, ok := sheet.NamedTemplates["greet"]; ok {
		t.Errorf("expected xsl:accept visibility=hidden to suppress the package template %q", "greet")
	}
}

func TestBuilderUsePackageAbstractRequiresOverride(t *testing.T) {
	pkg := compilePackage(t, "urn:example:pkg", prolog+`
<xsl:stylesheet version="3.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform">
  <xsl:template name="greet" visibility="abstract"><xsl:text>hi</xsl:text></xsl:template>
</xsl:stylesheet>`)
	resolver := &fakePackageResolver{pkgs: map[string]*CompiledPackage{"urn:example:pkg": pkg}}

	_, err := compileWithPackages(t, prolog+`
<xsl:stylesheet version="3.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform">
  <xsl:use-package name="urn:example:pkg"/>
</xsl:stylesheet>`, resolver)
	wantStaticCode(t, err, XTSE3010)
}

func TestBuilderUsePackageOverrideSatisfiesAbstract(t *testing.T) {
	pkg := compilePackage(t, "urn:example:pkg", prolog+`
<xsl:stylesheet version="3.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform">
  <xsl:template name="greet" visibility="abstract"><xsl:text>hi</xsl:text></xsl:template>
</xsl:stylesheet>`)
	resolver := &fakePackageResolver{pkgs: map[string]*CompiledPackage{"urn:example:pkg": pkg}}

	sheet, err := compileWithPackages(t, prolog+`
<xsl:stylesheet version="3.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform">
  <xsl:use-package name="urn:example:pkg">
    <xsl:override>
      <xsl:template name="greet"><xsl:text>bye</xsl:text></xsl:template>
    </xsl:override>
  </xsl:use-package>
</xsl:stylesheet>`, resolver)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	rule, ok := sheet.NamedTemplates["greet"]
	if !ok {
		t.Fatalf("expected the overriding named template %q", "greet")
	}
	if len(rule.Body) == 0 {
		t.Errorf("expected the override's own body to win, got an empty body")
	}
}

func TestBuilderUsePackageWithNoResolverConfigured(t *testing.T) {
	err := compileSheetErr(t, prolog+`
<xsl:stylesheet version="3.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform">
  <xsl:use-package name="urn:example:pkg"/>
</xsl:stylesheet>`)
	wantStaticCode(t, err, XTSE0010)
}
