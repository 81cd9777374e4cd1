package rdfio

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/knakk/rdf"
	"github.com/piprate/json-gold/ld"
)

// ErrSyntax wraps every parse failure
var ErrSyntax = errors.New("rdf syntax error")

// Parse decodes a document in the given format. Relative IRIs are resolved
// against base. Blank node labels are made unique per call so graphs merged
// from several documents do not share nodes by accident.
func Parse(r io.Reader, format Format, base string) ([]Triple, error) {
	scope := "b" + strings.ReplaceAll(uuid.New().String()[:8], "-", "")
	var (
		triples []Triple
		err     error
	)
	switch format {
	case JSONLD:
		triples, err = parseJSONLD(r, base, scope)
	case Turtle, N3:
		triples, err = parseKnakk(r, rdf.Turtle, base, scope)
	case NTriples:
		triples, err = parseKnakk(r, rdf.NTriples, base, scope)
	case RDFXML:
		triples, err = parseKnakk(r, rdf.RDFXML, base, scope)
	default:
		return nil, fmt.Errorf("%w: unsupported format %d", ErrSyntax, format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSyntax, format, err)
	}
	return triples, nil
}

func parseKnakk(r io.Reader, format rdf.Format, base, scope string) ([]Triple, error) {
	dec := rdf.NewTripleDecoder(r, format)
	if base != "" {
		if baseIRI, err := rdf.NewIRI(base); err == nil {
			_ = dec.SetOption(rdf.Base, baseIRI)
		}
	}

	var triples []Triple
	for {
		t, err := dec.Decode()
		if err == io.EOF {
			return triples, nil
		}
		if err != nil {
			return nil, err
		}
		triples = append(triples, Triple{
			Subject:   knakkTerm(t.Subj, scope),
			Predicate: knakkTerm(t.Pred, scope),
			Object:    knakkTerm(t.Obj, scope),
		})
	}
}

func knakkTerm(term rdf.Term, scope string) string {
	switch v := term.(type) {
	case rdf.IRI:
		return IRI(strings.TrimSuffix(strings.TrimPrefix(v.String(), "<"), ">"))
	case rdf.Blank:
		return "_:" + scope + strings.TrimPrefix(v.String(), "_:")
	case rdf.Literal:
		datatype := strings.TrimSuffix(strings.TrimPrefix(v.DataType.String(), "<"), ">")
		return Literal(v.String(), v.Lang(), datatype)
	default:
		return term.Serialize(rdf.NTriples)
	}
}

func parseJSONLD(r io.Reader, base, scope string) ([]Triple, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	proc := ld.NewJsonLdProcessor()
	opts := ld.NewJsonLdOptions(base)
	// remote @context documents are not fetched
	opts.DocumentLoader = offlineLoader{}

	out, err := proc.ToRDF(doc, opts)
	if err != nil {
		return nil, err
	}
	dataset, ok := out.(*ld.RDFDataset)
	if !ok {
		return nil, fmt.Errorf("unexpected JSON-LD result %T", out)
	}

	var triples []Triple
	for _, quads := range dataset.Graphs {
		for _, q := range quads {
			triples = append(triples, Triple{
				Subject:   ldTerm(q.Subject, scope),
				Predicate: ldTerm(q.Predicate, scope),
				Object:    ldTerm(q.Object, scope),
			})
		}
	}
	return triples, nil
}

func ldTerm(node ld.Node, scope string) string {
	switch v := node.(type) {
	case *ld.IRI:
		return IRI(v.Value)
	case *ld.BlankNode:
		return "_:" + scope + strings.TrimPrefix(v.Attribute, "_:")
	case *ld.Literal:
		return Literal(v.Value, v.Language, v.Datatype)
	default:
		return `""`
	}
}

// offlineLoader refuses remote contexts so harvesting a document never
// triggers requests to third parties
type offlineLoader struct{}

func (offlineLoader) LoadDocument(u string) (*ld.RemoteDocument, error) {
	return nil, ld.NewJsonLdError(ld.LoadingDocumentFailed, "remote context not allowed: "+u)
}
