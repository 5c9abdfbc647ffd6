package xslt

import (
	"strconv"
	"strings"

	"github.com/midbel/xsltc/xml"
)

// attr looks up an element's own (never namespace-qualified) attribute
// by local name — the form every XSLT-element attribute (match, select,
// name, ...) always takes, regardless of whether the element itself
// sits in the XSLT namespace or is a literal result element (spec.md
// §4.1/§4.5).
func attr(attrs []xml.RawAttribute, local string) (string, bool) {
	for _, a := range attrs {
		if a.Local == local && a.Uri == "" {
			return a.Value, true
		}
	}
	return "", false
}

// standardAttr looks up a "standard attribute" (expand-text, version,
// use-attribute-sets, exclude-result-prefixes, ...): unprefixed on an
// XSLT element, but xsl:-prefixed when it decorates a literal result
// element, since an unprefixed attribute there is always literal output
// (spec.md §4.1).
func standardAttr(onXSLTElement bool, attrs []xml.RawAttribute, local string) (string, bool) {
	for _, a := range attrs {
		if a.Local != local {
			continue
		}
		if onXSLTElement {
			if a.Uri == "" {
				return a.Value, true
			}
		} else if a.Uri == xsltNamespaceUri {
			return a.Value, true
		}
	}
	return "", false
}

// plain looks up one of this element's own attributes by local name
// (always unprefixed, per XSLT's own-attribute convention).
func (c *ElementContext) plain(local string) (string, bool) {
	v, ok := c.Attrs[xml.ExpandedName(local, "", "")]
	return v, ok
}

func parseYesNo(raw string, loc Location, name string) (bool, error) {
	switch raw {
	case "yes", "true", "1":
		return true, nil
	case "no", "false", "0":
		return false, nil
	default:
		return false, staticErr(loc, XTSE0020, "%s: invalid boolean value %q", name, raw)
	}
}

// requireNotAVT rejects a '{'/'}' inside a standard attribute's raw
// value: these are fixed properties of the compiler itself (version,
// expand-text, xpath-default-namespace, ...), never computed per
// instance (spec.md §4.1 step "validate ... are not AVTs").
func requireNotAVT(raw string, loc Location, name string) error {
	if strings.ContainsRune(raw, '{') || strings.ContainsRune(raw, '}') {
		return staticErr(loc, XTSE0020, "%s: attribute value templates are not allowed here", name)
	}
	return nil
}

// applyStandardAttributes performs the element-context construction
// spec.md §4.1 step 3 describes: shadow-attribute detection, standard
// attribute validation, and the inherited ambient properties (base URI,
// expand-text, version, xpath-default-namespace, exclude-result-
// prefixes/extension-element-prefixes). onXSLT is whether this element
// itself sits in the XSLT namespace.
func (b *EventDrivenBuilder) applyStandardAttributes(ctx *ElementContext, parent *ElementContext, uri, local string, attrs []xml.RawAttribute, loc Location) error {
	onXSLT := uri == xsltNamespaceUri

	if raw, ok := attr(attrs, "xml:base"); ok {
		ctx.BaseURI = raw
	}
	for _, a := range attrs {
		if a.Uri == xmlNamespaceUri && a.Local == "base" {
			ctx.BaseURI = a.Value
		}
	}

	if raw, ok := standardAttr(onXSLT, attrs, "version"); ok {
		if err := requireNotAVT(raw, loc, "version"); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return staticErr(loc, XTSE0020, "version: invalid number %q", raw)
		}
		ctx.Version = v
		if b.stack.depth() == 1 {
			b.sheet.sheet.Version = v
		}
	}

	if raw, ok := standardAttr(onXSLT, attrs, "expand-text"); ok {
		if err := requireNotAVT(raw, loc, "expand-text"); err != nil {
			return err
		}
		v, err := parseYesNo(raw, loc, "expand-text")
		if err != nil {
			return err
		}
		ctx.ExpandText = v
	}

	if raw, ok := standardAttr(onXSLT, attrs, "xpath-default-namespace"); ok {
		if err := requireNotAVT(raw, loc, "xpath-default-namespace"); err != nil {
			return err
		}
		ctx.XPathDefaultNS = raw
	}

	excluded := map[string]bool{}
	for k, v := range parent.Excluded {
		excluded[k] = v
	}
	if raw, ok := standardAttr(onXSLT, attrs, "exclude-result-prefixes"); ok {
		if err := requireNotAVT(raw, loc, "exclude-result-prefixes"); err != nil {
			return err
		}
		for _, tok := range strings.Fields(raw) {
			switch tok {
			case "#all":
				for _, u := range ctx.Bindings {
					excluded[u] = true
				}
			case "#default":
				if u, ok := ctx.resolvePrefix(""); ok {
					excluded[u] = true
				}
			default:
				u, ok := ctx.resolvePrefix(tok)
				if !ok {
					return staticErr(loc, XTSE0808, "%s: undeclared prefix in exclude-result-prefixes", tok)
				}
				excluded[u] = true
			}
		}
	}
	if raw, ok := standardAttr(onXSLT, attrs, "extension-element-prefixes"); ok {
		if err := requireNotAVT(raw, loc, "extension-element-prefixes"); err != nil {
			return err
		}
		for _, tok := range strings.Fields(raw) {
			if tok == "#default" {
				if u, ok := ctx.resolvePrefix(""); ok {
					excluded[u] = true
				}
				continue
			}
			if u, ok := ctx.resolvePrefix(tok); ok {
				excluded[u] = true
			}
		}
	}
	ctx.Excluded = excluded

	ctx.withStatic()

	// Shadow attributes (local name prefixed '_', spec.md §4.1) are
	// compiled as AVTs now and displace their unprefixed counterpart for
	// every downstream reader of ctx.Attrs/ctx.Shadow.
	for _, a := range attrs {
		if a.Uri != "" || !strings.HasPrefix(a.Local, "_") {
			continue
		}
		real := a.Local[1:]
		avt, err := compileAVT(ctx.facade, a.Value, loc)
		if err != nil {
			return err
		}
		ctx.Shadow[xml.ExpandedName(real, "", "")] = avt
	}

	return nil
}
