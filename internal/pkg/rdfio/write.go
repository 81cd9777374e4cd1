package rdfio

import (
	"bufio"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/knakk/rdf"
	"github.com/piprate/json-gold/ld"
)

// Write serializes triples in the given format
func Write(w io.Writer, format Format, triples []Triple) error {
	switch format {
	case NTriples:
		return writeNTriples(w, triples)
	case Turtle, N3:
		return writeTurtle(w, triples)
	case JSONLD:
		return writeJSONLD(w, triples)
	case RDFXML:
		return writeRDFXML(w, triples)
	default:
		return fmt.Errorf("unsupported format %d", format)
	}
}

func writeNTriples(w io.Writer, triples []Triple) error {
	bw := bufio.NewWriter(w)
	for _, t := range triples {
		if _, err := bw.WriteString(t.Line()); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func nTriplesDocument(triples []Triple) string {
	var b strings.Builder
	for _, t := range triples {
		b.WriteString(t.Line())
	}
	return b.String()
}

// writeTurtle re-reads the stored terms with the N-Triples decoder and hands
// them to the Turtle encoder, which groups statements by subject
func writeTurtle(w io.Writer, triples []Triple) error {
	dec := rdf.NewTripleDecoder(strings.NewReader(nTriplesDocument(triples)), rdf.NTriples)
	enc := rdf.NewTripleEncoder(w, rdf.Turtle)
	for {
		t, err := dec.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if err := enc.Encode(t); err != nil {
			return err
		}
	}
	return enc.Close()
}

func writeJSONLD(w io.Writer, triples []Triple) error {
	proc := ld.NewJsonLdProcessor()
	opts := ld.NewJsonLdOptions("")
	opts.Format = "application/n-quads"

	doc, err := proc.FromRDF(nTriplesDocument(triples), opts)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

const rdfNamespace = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"

// ErrNotRepresentable is returned when a graph has a predicate that RDF/XML
// cannot express as an element name
var ErrNotRepresentable = errors.New("predicate not representable in RDF/XML")

func isNameStart(r byte) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isNameChar(r byte) bool {
	return isNameStart(r) || r == '-' || r == '.' || (r >= '0' && r <= '9')
}

// splitIRI cuts an IRI into a namespace and the longest suffix that is a
// valid XML local name. ".../vocab/1st" becomes ".../vocab/1" and "st".
func splitIRI(iri string) (string, string, bool) {
	start := len(iri)
	for start > 0 && isNameChar(iri[start-1]) {
		start--
	}
	for start < len(iri) && !isNameStart(iri[start]) {
		start++
	}
	if start >= len(iri) || start == 0 {
		return "", "", false
	}
	return iri[:start], iri[start:], true
}

// writeRDFXML writes one rdf:Description per subject. A predicate without a
// valid local name fails the whole write with ErrNotRepresentable.
func writeRDFXML(w io.Writer, triples []Triple) error {
	prefixes := map[string]string{rdfNamespace: "rdf"}
	var order []string
	bySubject := map[string][]Triple{}
	for _, t := range triples {
		ns, _, ok := splitIRI(IRIValue(t.Predicate))
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotRepresentable, t.Predicate)
		}
		if _, known := prefixes[ns]; !known {
			prefixes[ns] = fmt.Sprintf("ns%d", len(prefixes))
		}
		if _, seen := bySubject[t.Subject]; !seen {
			order = append(order, t.Subject)
		}
		bySubject[t.Subject] = append(bySubject[t.Subject], t)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")

	root := xml.StartElement{Name: xml.Name{Local: "rdf:RDF"}}
	namespaces := make([]string, 0, len(prefixes))
	for ns := range prefixes {
		namespaces = append(namespaces, ns)
	}
	sort.Slice(namespaces, func(i, j int) bool { return prefixes[namespaces[i]] < prefixes[namespaces[j]] })
	for _, ns := range namespaces {
		root.Attr = append(root.Attr, xml.Attr{Name: xml.Name{Local: "xmlns:" + prefixes[ns]}, Value: ns})
	}
	if err := enc.EncodeToken(root); err != nil {
		return err
	}

	for _, subject := range order {
		desc := xml.StartElement{Name: xml.Name{Local: "rdf:Description"}}
		if IsBlank(subject) {
			desc.Attr = []xml.Attr{{Name: xml.Name{Local: "rdf:nodeID"}, Value: strings.TrimPrefix(subject, "_:")}}
		} else {
			desc.Attr = []xml.Attr{{Name: xml.Name{Local: "rdf:about"}, Value: IRIValue(subject)}}
		}
		if err := enc.EncodeToken(desc); err != nil {
			return err
		}
		for _, t := range bySubject[subject] {
			if err := encodeProperty(enc, prefixes, t); err != nil {
				return err
			}
		}
		if err := enc.EncodeToken(desc.End()); err != nil {
			return err
		}
	}

	if err := enc.EncodeToken(root.End()); err != nil {
		return err
	}
	return enc.Flush()
}

func encodeProperty(enc *xml.Encoder, prefixes map[string]string, t Triple) error {
	ns, local, _ := splitIRI(IRIValue(t.Predicate))
	prop := xml.StartElement{Name: xml.Name{Local: prefixes[ns] + ":" + local}}

	switch {
	case IsIRI(t.Object):
		prop.Attr = []xml.Attr{{Name: xml.Name{Local: "rdf:resource"}, Value: IRIValue(t.Object)}}
		if err := enc.EncodeToken(prop); err != nil {
			return err
		}
	case IsBlank(t.Object):
		prop.Attr = []xml.Attr{{Name: xml.Name{Local: "rdf:nodeID"}, Value: strings.TrimPrefix(t.Object, "_:")}}
		if err := enc.EncodeToken(prop); err != nil {
			return err
		}
	default:
		value, lang, datatype, _ := LiteralParts(t.Object)
		if lang != "" {
			prop.Attr = []xml.Attr{{Name: xml.Name{Local: "xml:lang"}, Value: lang}}
		} else if datatype != "" {
			prop.Attr = []xml.Attr{{Name: xml.Name{Local: "rdf:datatype"}, Value: datatype}}
		}
		if err := enc.EncodeToken(prop); err != nil {
			return err
		}
		if err := enc.EncodeToken(xml.CharData(value)); err != nil {
			return err
		}
	}
	return enc.EncodeToken(prop.End())
}
