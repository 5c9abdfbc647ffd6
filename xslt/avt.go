package xslt

import (
	"errors"
	"strings"

	"github.com/midbel/xsltc/xpath"
)

// AVTFragment is one piece of a compiled attribute value template:
// either a literal string or a compiled XPath expression. Evaluation
// (a runtime concern, out of scope here) concatenates the stringified
// results of each fragment in order.
type AVTFragment struct {
	Literal string
	Expr    xpath.Expr
	IsExpr  bool
}

// AVT is a parsed attribute value template: literal{expr}literal
// (spec.md §4.3), represented as an ordered fragment sequence. This
// generalizes the teacher's iterAVT scanner (originally in this file),
// which stopped at "find matching brace" and evaluated immediately;
// here the scan result is compiled once and stored, never evaluated,
// since evaluation is the out-of-scope runtime's job.
type AVT struct {
	Fragments []AVTFragment
}

// IsConstant reports whether the AVT has no embedded expressions, a
// common fast path callers of the compiled stylesheet may want.
func (a AVT) IsConstant() bool {
	for _, f := range a.Fragments {
		if f.IsExpr {
			return false
		}
	}
	return true
}

// compileAVT scans and compiles a raw attribute string into an AVT,
// using facade to compile each embedded expression against the
// current namespace/default-namespace resolver (spec.md §4.2/§4.3).
func compileAVT(facade *xpathFacade, raw string, loc Location) (AVT, error) {
	var (
		avt     AVT
		literal strings.Builder
	)
	i := 0
	for i < len(raw) {
		c := raw[i]
		switch {
		case c == '{' && i+1 < len(raw) && raw[i+1] == '{':
			literal.WriteByte('{')
			i += 2
		case c == '}' && i+1 < len(raw) && raw[i+1] == '}':
			literal.WriteByte('}')
			i += 2
		case c == '}':
			return AVT{}, staticErr(loc, XTSE0350, "unbalanced '}' in attribute value template")
		case c == '{':
			end, err := scanAVTExpr(raw, i+1)
			if err != nil {
				return AVT{}, staticErr(loc, XTSE0350, "%v", err)
			}
			if literal.Len() > 0 {
				avt.Fragments = append(avt.Fragments, AVTFragment{Literal: literal.String()})
				literal.Reset()
			}
			exprSrc := raw[i+1 : end]
			expr, err := facade.compile(exprSrc, loc)
			if err != nil {
				return AVT{}, err
			}
			avt.Fragments = append(avt.Fragments, AVTFragment{Expr: expr, IsExpr: true})
			i = end + 1
		default:
			literal.WriteByte(c)
			i++
		}
	}
	if literal.Len() > 0 || len(avt.Fragments) == 0 {
		avt.Fragments = append(avt.Fragments, AVTFragment{Literal: literal.String()})
	}
	return avt, nil
}

// scanAVTExpr finds the index of the '}' balancing the '{' that opened
// at start-1, respecting string literals and XPath comments so that
// braces inside them are not counted (spec.md §4.3).
func scanAVTExpr(raw string, start int) (int, error) {
	depth := 1
	i := start
	for i < len(raw) {
		switch raw[i] {
		case '\'', '"':
			quote := raw[i]
			i++
			for i < len(raw) {
				if raw[i] == quote {
					if i+1 < len(raw) && raw[i+1] == quote {
						i += 2
						continue
					}
					break
				}
				i++
			}
			if i >= len(raw) {
				return 0, errUnbalancedAVT
			}
			i++
		case '(':
			if i+1 < len(raw) && raw[i+1] == ':' {
				end := strings.Index(raw[i+2:], ":)")
				if end < 0 {
					return 0, errUnbalancedAVT
				}
				i += 2 + end + 2
				continue
			}
			i++
		case '{':
			depth++
			i++
		case '}':
			depth--
			if depth == 0 {
				return i, nil
			}
			i++
		default:
			i++
		}
	}
	return 0, errUnbalancedAVT
}

// compileTVT scans character data the same way an AVT is scanned,
// active when expand-text is in effect on an ancestor literal result
// element (spec.md §4.3, "TVT"). Embedded expressions are compiled
// identically to an AVT's; a bare '<' opening an element constructor
// inside one is rejected by the underlying XPath scan as a syntax
// error, which is reported here as XTSE0350 per spec.md §4.3.
func compileTVT(facade *xpathFacade, raw string, loc Location) (AVT, error) {
	avt, err := compileAVT(facade, raw, loc)
	var xerr *XPathError
	if errors.As(err, &xerr) && strings.Contains(xerr.Expr, "<") {
		return AVT{}, staticErr(loc, XTSE0350, "%v", err)
	}
	return avt, err
}

var errUnbalancedAVT = &StaticError{Code: XTSE0350, Message: "unbalanced '{' in attribute value template"}
