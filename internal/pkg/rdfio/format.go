package rdfio

import (
	"mime"
	"path"
	"strings"
)

// Format is an RDF serialization the index reads or writes
type Format int

const (
	Turtle Format = iota
	N3
	NTriples
	JSONLD
	RDFXML
)

var contentTypes = map[Format]string{
	Turtle:   "text/turtle",
	N3:       "text/n3",
	NTriples: "application/n-triples",
	JSONLD:   "application/ld+json",
	RDFXML:   "application/rdf+xml",
}

var formatsByContentType = map[string]Format{
	"text/turtle":           Turtle,
	"application/x-turtle":  Turtle,
	"text/n3":               N3,
	"text/rdf+n3":           N3,
	"application/n-triples": NTriples,
	"application/ld+json":   JSONLD,
	"application/json":      JSONLD,
	"application/rdf+xml":   RDFXML,
	"application/xml":       RDFXML,
	"text/xml":              RDFXML,
}

var formatsByExtension = map[string]Format{
	".ttl":    Turtle,
	".n3":     N3,
	".nt":     NTriples,
	".jsonld": JSONLD,
	".json":   JSONLD,
	".rdf":    RDFXML,
	".owl":    RDFXML,
	".xml":    RDFXML,
}

// ContentType returns the canonical media type of the format
func (f Format) ContentType() string {
	return contentTypes[f]
}

func (f Format) String() string {
	switch f {
	case Turtle:
		return "turtle"
	case N3:
		return "n3"
	case NTriples:
		return "n-triples"
	case JSONLD:
		return "json-ld"
	case RDFXML:
		return "rdf/xml"
	default:
		return "unknown"
	}
}

// FormatForContentType maps a Content-Type header value, parameters
// included, to a format
func FormatForContentType(contentType string) (Format, bool) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}
	f, ok := formatsByContentType[mediaType]
	return f, ok
}

// FormatForPath guesses the format from the extension of a URL path
func FormatForPath(p string) (Format, bool) {
	f, ok := formatsByExtension[strings.ToLower(path.Ext(p))]
	return f, ok
}

// AcceptHeader lists the formats the harvester understands, preferred first
func AcceptHeader() string {
	return "text/turtle, application/ld+json;q=0.9, application/rdf+xml;q=0.8, text/n3;q=0.7, " +
		"application/n-triples;q=0.7, application/xml;q=0.5, text/xml;q=0.5"
}

// Offers lists the media types the data endpoint can produce, default first
func Offers() []string {
	return []string{
		"text/turtle",
		"text/n3",
		"application/ld+json",
		"application/rdf+xml",
		"application/xml",
		"text/xml",
		"application/n-triples",
	}
}
