package rdfio

import (
	"strings"
)

// Triple is one RDF statement with every term in N-Triples syntax:
// <iri>, _:blank or "literal" with optional @lang or ^^<datatype>.
type Triple struct {
	Subject   string
	Predicate string
	Object    string
}

const (
	RDFType    = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"
	XSDString  = "http://www.w3.org/2001/XMLSchema#string"
	LangString = "http://www.w3.org/1999/02/22-rdf-syntax-ns#langString"
)

// IRI renders an IRI term
func IRI(value string) string {
	return "<" + value + ">"
}

// IsIRI reports whether term is an IRI term
func IsIRI(term string) bool {
	return strings.HasPrefix(term, "<") && strings.HasSuffix(term, ">")
}

// IsBlank reports whether term is a blank node
func IsBlank(term string) bool {
	return strings.HasPrefix(term, "_:")
}

// IRIValue returns the IRI inside an IRI term, or "" for other terms
func IRIValue(term string) string {
	if !IsIRI(term) {
		return ""
	}
	return term[1 : len(term)-1]
}

// Literal renders a literal term. xsd:string is implied and not written.
func Literal(value, lang, datatype string) string {
	quoted := `"` + escapeLiteral(value) + `"`
	switch {
	case lang != "":
		return quoted + "@" + lang
	case datatype != "" && datatype != XSDString && datatype != LangString:
		return quoted + "^^" + IRI(datatype)
	default:
		return quoted
	}
}

// LiteralParts splits a literal term into value, language and datatype
func LiteralParts(term string) (value, lang, datatype string, ok bool) {
	if !strings.HasPrefix(term, `"`) {
		return "", "", "", false
	}
	end := closingQuote(term)
	if end < 0 {
		return "", "", "", false
	}
	value = unescapeLiteral(term[1:end])
	rest := term[end+1:]
	switch {
	case strings.HasPrefix(rest, "@"):
		lang = rest[1:]
	case strings.HasPrefix(rest, "^^"):
		datatype = IRIValue(rest[2:])
	}
	return value, lang, datatype, true
}

func closingQuote(term string) int {
	for i := 1; i < len(term); i++ {
		switch term[i] {
		case '\\':
			i++
		case '"':
			return i
		}
	}
	return -1
}

var literalEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

func escapeLiteral(s string) string {
	return literalEscaper.Replace(s)
}

func unescapeLiteral(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			b.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// Line renders the triple as one N-Triples line
func (t Triple) Line() string {
	return t.Subject + " " + t.Predicate + " " + t.Object + " .\n"
}
