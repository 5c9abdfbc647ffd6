package xslt

import (
	"strings"

	"github.com/midbel/xsltc/xml"
)

const (
	xmlNamespaceUri    = "http://www.w3.org/XML/1998/namespace"
	xsltNamespaceUri   = "http://www.w3.org/1999/XSL/Transform"
	xsdNamespaceUri    = "http://www.w3.org/2001/XMLSchema"
	xsiNamespaceUri    = "http://www.w3.org/2001/XMLSchema-instance"
	xsltNamespacePfx   = "xsl"
	initialTemplateTag = "initial-template"
)

func isReservedNamespace(uri string) bool {
	switch uri {
	case xmlNamespaceUri, xsltNamespaceUri, xsdNamespaceUri, xsiNamespaceUri:
		return true
	default:
		return false
	}
}

// nsScope is a stack of prefix->uri bindings, one frame per open
// element, per spec.md §4.2/§9 "Namespace-binding scopes": pending
// mappings are buffered until the element they belong to is pushed,
// then merged into that element's frame; popping an element discards
// its frame and restores whichever binding it shadowed.
type nsScope struct {
	frames  []map[string]string
	pending map[string]string
}

func newNSScope() *nsScope {
	s := &nsScope{}
	s.pushFrame(map[string]string{"xml": xmlNamespaceUri})
	return s
}

func (s *nsScope) pushFrame(initial map[string]string) {
	frame := make(map[string]string, len(initial)+len(s.pending))
	for k, v := range initial {
		frame[k] = v
	}
	for k, v := range s.pending {
		frame[k] = v
	}
	s.pending = nil
	s.frames = append(s.frames, frame)
}

func (s *nsScope) bufferMapping(prefix, uri string) {
	if s.pending == nil {
		s.pending = make(map[string]string)
	}
	s.pending[prefix] = uri
}

func (s *nsScope) popFrame() {
	if len(s.frames) > 0 {
		s.frames = s.frames[:len(s.frames)-1]
	}
}

func (s *nsScope) resolve(prefix string) (string, bool) {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if uri, ok := s.frames[i][prefix]; ok {
			return uri, true
		}
	}
	return "", false
}

// resolveQName expands a lexical QName ("prefix:local" or "local") to
// Clark notation using the scope's current bindings. component controls
// whether resolution to a reserved namespace raises XTSE0080 (true for
// template/function/variable/mode names etc; false for e.g. LRE names
// which may legitimately sit in the XSLT namespace's sibling spaces).
func resolveQName(scope *nsScope, lexical string, loc Location, component bool) (xml.QName, error) {
	prefix, local, hasPrefix := strings.Cut(lexical, ":")
	if !hasPrefix {
		local, prefix = prefix, ""
	}
	if prefix == "xml" {
		if component {
			return xml.QName{}, staticErr(loc, XTSE0080, "%s: component name in a reserved namespace", lexical)
		}
		return xml.ExpandedName(local, prefix, xmlNamespaceUri), nil
	}
	if prefix == "" {
		return xml.ExpandedName(local, "", ""), nil
	}
	uri, ok := scope.resolve(prefix)
	if !ok {
		return xml.QName{}, staticErr(loc, XTSE0280, "undeclared namespace prefix %q", prefix)
	}
	qn := xml.ExpandedName(local, prefix, uri)
	if component && isReservedNamespace(uri) && !(uri == xsltNamespaceUri && local == initialTemplateTag) {
		return xml.QName{}, staticErr(loc, XTSE0080, "%s: component name in a reserved namespace", lexical)
	}
	return qn, nil
}

// clark renders a QName in Clark notation, {uri}local, the canonical
// internal form (spec.md §4.2). The empty uri is preserved as the
// distinct "no-namespace" form, matching xml.QName.ExpandedName.
func clark(qn xml.QName) string {
	return qn.ExpandedName()
}

// expandClark re-parses a Clark-notation string back into a QName.
// Round-trip law (spec.md §8): expand(expand(q)) == expand(q).
func expandClark(s string) xml.QName {
	if len(s) > 0 && s[0] == '{' {
		if end := strings.IndexByte(s, '}'); end > 0 {
			return xml.ExpandedName(s[end+1:], "", s[1:end])
		}
	}
	return xml.ExpandedName(s, "", "")
}

// resolveElementName applies xpath-default-namespace to an unprefixed
// element name test in a pattern/node-test position (spec.md §4.2):
// never applied to attributes, node-kind tests, or '*'.
func resolveElementName(scope *nsScope, lexical, xpathDefaultNS string, loc Location) (xml.QName, error) {
	prefix, _, hasPrefix := strings.Cut(lexical, ":")
	if !hasPrefix && xpathDefaultNS != "" {
		return xml.ExpandedName(lexical, "", xpathDefaultNS), nil
	}
	_ = prefix
	return resolveQName(scope, lexical, loc, false)
}
