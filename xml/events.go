package xml

// RawAttribute is an attribute as it arrives from the event source,
// before the compiler resolves its prefix against in-scope namespace
// bindings. Uri is populated by the source when it already knows it
// (e.g. a namespace-aware SAX producer); otherwise it is resolved by
// the consumer from QName against the active bindings.
type RawAttribute struct {
	Uri   string
	Local string
	QName string
	Value string
}

// SAXHandler is the push contract a streamed XML event source drives.
// It generalizes the teacher's pull-style Reader/OnElementFunc registry
// (xml/reader.go, xml/sax.go) into the explicit method-per-event shape
// used by real SAX content handlers, so a compiler can be wired
// directly onto any producer (a real parser, a test fixture, a
// replayed event log) without adapting callback signatures each time.
type SAXHandler interface {
	LocatorSet(line, column int, systemID string)

	DocumentStart()
	DocumentEnd()

	PrefixMappingStart(prefix, uri string)
	PrefixMappingEnd(prefix string)

	ElementStart(uri, local, qname string, attrs []RawAttribute) error
	ElementEnd(uri, local, qname string) error

	Characters(text string) error
}

// Emit drives a SAXHandler from an in-memory document tree, letting
// callers feed a *Document parsed by the xml package's own Parser
// through the same push contract a streaming producer would use.
func Emit(h SAXHandler, doc *Document) error {
	h.DocumentStart()
	defer h.DocumentEnd()
	for _, n := range doc.Nodes {
		if err := emitNode(h, n); err != nil {
			return err
		}
	}
	return nil
}

func emitNode(h SAXHandler, node Node) error {
	switch n := node.(type) {
	case *Element:
		return emitElement(h, n)
	case *Text:
		return h.Characters(n.Content)
	default:
		return nil
	}
}

func emitElement(h SAXHandler, elem *Element) error {
	explicit := elem.Namespaces()
	for _, ns := range explicit {
		h.PrefixMappingStart(ns.Prefix, ns.Uri)
	}
	attrs := make([]RawAttribute, 0, len(elem.Attrs))
	for _, a := range elem.Attributes() {
		attrs = append(attrs, RawAttribute{
			Uri:   a.Uri,
			Local: a.LocalName(),
			QName: a.QualifiedName(),
			Value: a.Value(),
		})
	}
	if err := h.ElementStart(elem.Uri, elem.LocalName(), elem.QualifiedName(), attrs); err != nil {
		return err
	}
	for _, n := range elem.Nodes {
		if err := emitNode(h, n); err != nil {
			return err
		}
	}
	if err := h.ElementEnd(elem.Uri, elem.LocalName(), elem.QualifiedName()); err != nil {
		return err
	}
	for _, ns := range explicit {
		h.PrefixMappingEnd(ns.Prefix)
	}
	return nil
}
