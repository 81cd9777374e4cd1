package rdfio

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTurtle = `@prefix dct: <http://purl.org/dc/terms/> .
@prefix fdp: <https://w3id.org/fdp/fdp-o#> .
@prefix r3d: <http://www.re3data.org/schema/3-0#> .

<https://fdp.example.org> a r3d:Repository ;
    dct:title "Example FDP"@en ;
    dct:description "Line one\nline \"two\"" ;
    fdp:metadataCatalog <https://fdp.example.org/catalog/1> .
`

const sampleJSONLD = `{
  "@context": {
    "dct": "http://purl.org/dc/terms/",
    "r3d": "http://www.re3data.org/schema/3-0#"
  },
  "@id": "https://fdp.example.org",
  "@type": "r3d:Repository",
  "dct:title": {"@value": "Example FDP", "@language": "en"}
}`

const sampleRDFXML = `<?xml version="1.0"?>
<rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#"
         xmlns:dct="http://purl.org/dc/terms/">
  <rdf:Description rdf:about="https://fdp.example.org">
    <rdf:type rdf:resource="http://www.re3data.org/schema/3-0#Repository"/>
    <dct:title>Example FDP</dct:title>
  </rdf:Description>
</rdf:RDF>`

func findTriple(triples []Triple, subject, predicate string) (Triple, bool) {
	for _, t := range triples {
		if t.Subject == subject && t.Predicate == predicate {
			return t, true
		}
	}
	return Triple{}, false
}

func TestParseTurtle(t *testing.T) {
	triples, err := Parse(strings.NewReader(sampleTurtle), Turtle, "https://fdp.example.org")
	require.NoError(t, err)
	assert.Len(t, triples, 4)

	typ, ok := findTriple(triples, "<https://fdp.example.org>", IRI(RDFType))
	require.True(t, ok)
	assert.Equal(t, "<http://www.re3data.org/schema/3-0#Repository>", typ.Object)

	title, ok := findTriple(triples, "<https://fdp.example.org>", "<http://purl.org/dc/terms/title>")
	require.True(t, ok)
	value, lang, _, ok := LiteralParts(title.Object)
	require.True(t, ok)
	assert.Equal(t, "Example FDP", value)
	assert.Equal(t, "en", lang)

	desc, ok := findTriple(triples, "<https://fdp.example.org>", "<http://purl.org/dc/terms/description>")
	require.True(t, ok)
	value, _, _, _ = LiteralParts(desc.Object)
	assert.Equal(t, "Line one\nline \"two\"", value)
}

func TestParseJSONLD(t *testing.T) {
	triples, err := Parse(strings.NewReader(sampleJSONLD), JSONLD, "https://fdp.example.org")
	require.NoError(t, err)
	assert.Len(t, triples, 2)

	typ, ok := findTriple(triples, "<https://fdp.example.org>", IRI(RDFType))
	require.True(t, ok)
	assert.Equal(t, "<http://www.re3data.org/schema/3-0#Repository>", typ.Object)

	title, ok := findTriple(triples, "<https://fdp.example.org>", "<http://purl.org/dc/terms/title>")
	require.True(t, ok)
	assert.Equal(t, `"Example FDP"@en`, title.Object)
}

func TestParseRDFXML(t *testing.T) {
	triples, err := Parse(strings.NewReader(sampleRDFXML), RDFXML, "https://fdp.example.org")
	require.NoError(t, err)
	assert.Len(t, triples, 2)

	_, ok := findTriple(triples, "<https://fdp.example.org>", IRI(RDFType))
	assert.True(t, ok)
}

func TestParseSyntaxError(t *testing.T) {
	_, err := Parse(strings.NewReader("<https://a> <https://b> ."), Turtle, "")
	assert.ErrorIs(t, err, ErrSyntax)

	_, err = Parse(strings.NewReader("{not json"), JSONLD, "")
	assert.ErrorIs(t, err, ErrSyntax)
}

func TestParseScopesBlankNodes(t *testing.T) {
	doc := "_:a <http://purl.org/dc/terms/title> \"x\" .\n"
	first, err := Parse(strings.NewReader(doc), NTriples, "")
	require.NoError(t, err)
	second, err := Parse(strings.NewReader(doc), NTriples, "")
	require.NoError(t, err)

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.True(t, IsBlank(first[0].Subject))
	assert.NotEqual(t, first[0].Subject, second[0].Subject)
}

func TestWriteRoundTrip(t *testing.T) {
	triples, err := Parse(strings.NewReader(sampleTurtle), Turtle, "")
	require.NoError(t, err)

	for _, format := range []Format{Turtle, N3, NTriples, JSONLD, RDFXML} {
		t.Run(format.String(), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Write(&buf, format, triples))

			parsed, err := Parse(&buf, format, "")
			require.NoError(t, err)
			assert.Len(t, parsed, len(triples))

			_, ok := findTriple(parsed, "<https://fdp.example.org>", IRI(RDFType))
			assert.True(t, ok)
		})
	}
}

func TestWriteRDFXML_PredicatesWithoutPlainLocalName(t *testing.T) {
	doc := `<https://fdp.example.org> <http://example.org/vocab/1st> "first" .
<https://fdp.example.org> <http://example.org/vocab/2-b> <https://fdp.example.org/x> .
<https://fdp.example.org> <http://example.org/vocab#a.b> "dotted" .
<https://fdp.example.org> <http://purl.org/dc/terms/title> "Example" .
`
	triples, err := Parse(strings.NewReader(doc), NTriples, "")
	require.NoError(t, err)
	require.Len(t, triples, 4)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, RDFXML, triples))
	parsed, err := Parse(&buf, RDFXML, "")
	require.NoError(t, err)
	require.Len(t, parsed, len(triples))
	for _, want := range triples {
		got, ok := findTriple(parsed, want.Subject, want.Predicate)
		if assert.True(t, ok, "missing %s", want.Predicate) {
			assert.Equal(t, want.Object, got.Object)
		}
	}
}

func TestWriteRDFXML_UnrepresentablePredicate(t *testing.T) {
	triples := []Triple{
		{Subject: IRI("https://fdp.example.org"), Predicate: IRI("http://purl.org/dc/terms/title"), Object: Literal("Example", "", "")},
		{Subject: IRI("https://fdp.example.org"), Predicate: IRI("http://example.org/vocab/"), Object: Literal("x", "", "")},
	}

	var buf bytes.Buffer
	err := Write(&buf, RDFXML, triples)
	assert.ErrorIs(t, err, ErrNotRepresentable)

	buf.Reset()
	require.NoError(t, Write(&buf, NTriples, triples))
	parsed, err := Parse(&buf, NTriples, "")
	require.NoError(t, err)
	assert.Len(t, parsed, 2)
}

func TestFormatLookup(t *testing.T) {
	f, ok := FormatForContentType("text/turtle; charset=utf-8")
	assert.True(t, ok)
	assert.Equal(t, Turtle, f)

	f, ok = FormatForContentType("application/xml")
	assert.True(t, ok)
	assert.Equal(t, RDFXML, f)

	_, ok = FormatForContentType("text/html")
	assert.False(t, ok)

	f, ok = FormatForPath("/fdp/catalog.jsonld")
	assert.True(t, ok)
	assert.Equal(t, JSONLD, f)

	assert.Equal(t, "application/ld+json", JSONLD.ContentType())
}

func TestLiteralTerms(t *testing.T) {
	assert.Equal(t, `"plain"`, Literal("plain", "", XSDString))
	assert.Equal(t, `"hallo"@de`, Literal("hallo", "de", LangString))
	assert.Equal(t, `"5"^^<http://www.w3.org/2001/XMLSchema#int>`, Literal("5", "", "http://www.w3.org/2001/XMLSchema#int"))

	value, lang, datatype, ok := LiteralParts(`"a \"b\"\n"^^<http://example.org/dt>`)
	require.True(t, ok)
	assert.Equal(t, "a \"b\"\n", value)
	assert.Empty(t, lang)
	assert.Equal(t, "http://example.org/dt", datatype)

	_, _, _, ok = LiteralParts("<https://not-a-literal>")
	assert.False(t, ok)

	assert.Equal(t, "https://x", IRIValue("<https://x>"))
	assert.Empty(t, IRIValue(`"x"`))
}
